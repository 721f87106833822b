package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"sjsage522/dealnotifier/logger"
	pkgerrors "sjsage522/dealnotifier/pkg/errors"
)

// timestampLayout sorts lexicographically in time order
const timestampLayout = "2006-01-02T15:04:05.000000Z"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS posted (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL,
	price_current REAL NOT NULL,
	posted_at_utc TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posted_url ON posted(url);
CREATE INDEX IF NOT EXISTS idx_posted_url_price ON posted(url, price_current);
`

// SQLiteLedger keeps the ledger in a local SQLite file
type SQLiteLedger struct {
	conn *sql.DB
	now  func() time.Time
}

var _ Ledger = (*SQLiteLedger)(nil)

// NewSQLite opens (and creates if needed) the ledger database at path
func NewSQLite(path string) (*SQLiteLedger, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, pkgerrors.NewLedger("cannot create ledger directory", err)
		}
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, pkgerrors.NewLedger("cannot open sqlite ledger", err)
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(sqliteSchema); err != nil {
		conn.Close()
		return nil, pkgerrors.NewLedger("cannot initialise sqlite schema", err)
	}

	logger.ForLedger().Debug().Str("path", path).Msg("SQLite ledger ready")
	return &SQLiteLedger{conn: conn, now: time.Now}, nil
}

func (l *SQLiteLedger) WasRecentlyPosted(ctx context.Context, url string, price decimal.Decimal, window time.Duration) (bool, error) {
	var postedAt string
	err := l.conn.QueryRowContext(ctx,
		`SELECT posted_at_utc FROM posted
		WHERE url = ? AND ABS(price_current - ?) < ?
		ORDER BY posted_at_utc DESC, id DESC
		LIMIT 1`,
		url, price.InexactFloat64(), priceEpsilon,
	).Scan(&postedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, pkgerrors.NewLedger("recency query failed", err)
	}

	t, err := time.Parse(timestampLayout, postedAt)
	if err != nil {
		return false, pkgerrors.NewLedger(fmt.Sprintf("bad timestamp %q", postedAt), err)
	}

	return withinWindow(l.now().UTC(), t, window), nil
}

func (l *SQLiteLedger) MarkPosted(ctx context.Context, url string, price decimal.Decimal) error {
	_, err := l.conn.ExecContext(ctx,
		"INSERT INTO posted (url, price_current, posted_at_utc) VALUES (?, ?, ?)",
		url, price.InexactFloat64(), l.now().UTC().Format(timestampLayout),
	)
	if err != nil {
		return pkgerrors.NewLedger("insert failed", err)
	}
	return nil
}

// Count returns the number of rows in the ledger
func (l *SQLiteLedger) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM posted").Scan(&n); err != nil {
		return 0, pkgerrors.NewLedger("count failed", err)
	}
	return n, nil
}

func (l *SQLiteLedger) Close() error {
	return l.conn.Close()
}
