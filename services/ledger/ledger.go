package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// priceEpsilon is the largest price difference still treated as the same price
const priceEpsilon = 0.01

// Ledger is the append-only record of announced (url, price) pairs
type Ledger interface {
	// WasRecentlyPosted reports whether the most recent announcement of url at
	// a price within 0.01 of price happened less than window ago.
	WasRecentlyPosted(ctx context.Context, url string, price decimal.Decimal, window time.Duration) (bool, error)

	// MarkPosted appends an announcement stamped with the current UTC time
	MarkPosted(ctx context.Context, url string, price decimal.Decimal) error

	Close() error
}

// Driver names a ledger backend
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Options selects and configures a backend
type Options struct {
	Driver Driver
	Path   string
	DSN    string
}

// Open connects to the backend named by opts
func Open(ctx context.Context, opts Options) (Ledger, error) {
	switch opts.Driver {
	case DriverSQLite, "":
		return NewSQLite(opts.Path)
	case DriverPostgres:
		return NewPostgres(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", opts.Driver)
	}
}

func withinWindow(now, postedAt time.Time, window time.Duration) bool {
	return now.Sub(postedAt) < window
}
