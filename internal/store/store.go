// Package store is the relay's persistence collaborator: an append-only
// chat log and a read-only user directory.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/watchparty/internal/domain"
)

var ErrNotFound = errors.New("not found")

type Store interface {
	PersistChat(ctx context.Context, sid domain.SessionID, uid domain.UserID, body string) (domain.Message, error)
	LookupUser(ctx context.Context, uid domain.UserID) (domain.User, error)
	Close() error
}

type Options struct {
	Driver        string
	DSN           string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open picks a backend by driver name.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite", "sqlite3":
		s, err := OpenSQLite(ctx, opts.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		s, err := OpenRedis(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", opts.Driver)
	}
}
