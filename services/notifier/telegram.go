package notifier

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"sjsage522/dealnotifier/logger"
	pkgerrors "sjsage522/dealnotifier/pkg/errors"
)

// TelegramNotifier sends HTML messages through the Telegram Bot API
type TelegramNotifier struct {
	bot *tgbotapi.BotAPI
}

var _ Notifier = (*TelegramNotifier)(nil)

// NewTelegramNotifier authenticates token against the default Bot API endpoint
func NewTelegramNotifier(token string) (*TelegramNotifier, error) {
	return NewTelegramNotifierWithEndpoint(token, tgbotapi.APIEndpoint, &http.Client{Timeout: 30 * time.Second})
}

// NewTelegramNotifierWithEndpoint authenticates token against a custom Bot API
// endpoint of the form "https://host/bot%s/%s".
func NewTelegramNotifierWithEndpoint(token, endpoint string, client *http.Client) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, pkgerrors.NewConfiguration("telegram authentication failed", err)
	}

	logger.ForNotifier().Info().Str("bot", bot.Self.UserName).Msg("Telegram bot authorized")
	return &TelegramNotifier{bot: bot}, nil
}

// Send delivers text to a numeric chat id or an @channel username
func (n *TelegramNotifier) Send(ctx context.Context, channelID, text string, disablePreview bool) error {
	if err := ctx.Err(); err != nil {
		return pkgerrors.NewDelivery("telegram", "context done before send", err)
	}

	var msg tgbotapi.MessageConfig
	if id, err := strconv.ParseInt(strings.TrimSpace(channelID), 10, 64); err == nil {
		msg = tgbotapi.NewMessage(id, text)
	} else {
		msg = tgbotapi.NewMessageToChannel(channelID, text)
	}
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = disablePreview

	if _, err := n.bot.Send(msg); err != nil {
		return pkgerrors.NewDelivery("telegram", "sendMessage failed", err)
	}
	return nil
}

// Close is a no-op; the Bot API client holds no persistent connection
func (n *TelegramNotifier) Close() error {
	return nil
}
