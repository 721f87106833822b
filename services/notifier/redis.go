package notifier

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "sjsage522/dealnotifier/pkg/errors"
)

// RedisNotifier appends announcements to a Redis stream for downstream consumers
type RedisNotifier struct {
	client          *redis.Client
	stream          string
	streamMaxLength int64
}

var (
	_ Notifier = (*RedisNotifier)(nil)
	_ Trimmer  = (*RedisNotifier)(nil)
)

// NewRedisNotifier creates a new Redis stream notifier
func NewRedisNotifier(addr string, db int, stream string, streamMaxLength int) *RedisNotifier {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	return &RedisNotifier{
		client:          client,
		stream:          stream,
		streamMaxLength: int64(streamMaxLength),
	}
}

// Send adds one stream entry. The message is base64 encoded before publishing.
func (n *RedisNotifier) Send(ctx context.Context, channelID, text string, disablePreview bool) error {
	err := n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		MaxLen: n.streamMaxLength,
		Approx: true,
		Values: map[string]interface{}{
			"channel":         channelID,
			"b64_message":     base64.StdEncoding.EncodeToString([]byte(text)),
			"disable_preview": disablePreview,
			"sent_at":         time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		return pkgerrors.NewDelivery("redis", "XADD failed", err)
	}
	return nil
}

// Trim trims the stream to exactly the configured maximum length
func (n *RedisNotifier) Trim(ctx context.Context) error {
	return n.client.XTrimMaxLen(ctx, n.stream, n.streamMaxLength).Err()
}

// Ping checks the Redis connection
func (n *RedisNotifier) Ping(ctx context.Context) error {
	return n.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
