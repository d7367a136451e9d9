// Package journal keeps a best-effort history of completed exports.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	u "savecsv/internal/utils"
)

// ErrDisabled is returned by Recent when no journal backend is configured.
var ErrDisabled = errors.New("export journal is disabled")

// Entry describes one uploaded export.
type Entry struct {
	MemberCode string    `json:"member_code"`
	Path       string    `json:"path"`
	Rows       int       `json:"rows"`
	Bytes      int       `json:"bytes"`
	Signed     bool      `json:"signed"`
	RequestID  string    `json:"request_id,omitempty"`
	At         time.Time `json:"at"`
}

// Journal records exports and lists them back newest first.
type Journal interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, memberCode string, limit int) ([]Entry, error)
	Close() error
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

func (Nop) Recent(context.Context, string, int) ([]Entry, error) { return nil, ErrDisabled }

func (Nop) Close() error { return nil }

// New builds the journal selected by cfg.Journal.Driver. The redis driver
// shares cfg.Redis.Addr with the rate limiter but uses its own database.
func New(cfg u.Config) (Journal, error) {
	switch cfg.Journal.Driver {
	case u.JournalNone, "":
		return Nop{}, nil
	case u.JournalPostgres:
		return NewPostgres(cfg.Journal.Postgres)
	case u.JournalRedis:
		client := redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.JournalDB,
		})
		return NewRedis(client, cfg.Journal.RedisKeep, cfg.Journal.RedisTTL), nil
	default:
		return nil, fmt.Errorf("unknown journal driver %q", cfg.Journal.Driver)
	}
}
