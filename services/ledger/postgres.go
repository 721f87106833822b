package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"sjsage522/dealnotifier/logger"
	pkgerrors "sjsage522/dealnotifier/pkg/errors"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS posted (
	id BIGSERIAL PRIMARY KEY,
	url TEXT NOT NULL,
	price_current DOUBLE PRECISION NOT NULL,
	posted_at_utc TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posted_url ON posted(url);
CREATE INDEX IF NOT EXISTS idx_posted_url_price ON posted(url, price_current);
`

// PostgresLedger keeps the ledger in a Postgres table
type PostgresLedger struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ Ledger = (*PostgresLedger)(nil)

// NewPostgres connects to dsn and creates the ledger table if needed
func NewPostgres(ctx context.Context, dsn string) (*PostgresLedger, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, pkgerrors.NewLedger("failed to parse config", err)
	}
	poolConfig.MaxConns = 2
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, pkgerrors.NewLedger("failed to create pool", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, pkgerrors.NewLedger("failed to ping database", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, pkgerrors.NewLedger("cannot initialise postgres schema", err)
	}

	logger.ForLedger().Debug().Msg("Postgres ledger ready")
	return &PostgresLedger{pool: pool, now: time.Now}, nil
}

func (l *PostgresLedger) WasRecentlyPosted(ctx context.Context, url string, price decimal.Decimal, window time.Duration) (bool, error) {
	var postedAt time.Time
	err := l.pool.QueryRow(ctx,
		`SELECT posted_at_utc FROM posted
		WHERE url = $1 AND ABS(price_current - $2) < $3
		ORDER BY posted_at_utc DESC, id DESC
		LIMIT 1`,
		url, price.InexactFloat64(), priceEpsilon,
	).Scan(&postedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, pkgerrors.NewLedger("recency query failed", err)
	}

	return withinWindow(l.now().UTC(), postedAt, window), nil
}

func (l *PostgresLedger) MarkPosted(ctx context.Context, url string, price decimal.Decimal) error {
	_, err := l.pool.Exec(ctx,
		"INSERT INTO posted (url, price_current, posted_at_utc) VALUES ($1, $2, $3)",
		url, price.InexactFloat64(), l.now().UTC(),
	)
	if err != nil {
		return pkgerrors.NewLedger("insert failed", err)
	}
	return nil
}

func (l *PostgresLedger) Close() error {
	l.pool.Close()
	return nil
}
