// Package storage holds the key/value backends that persist the clinic state
// blob and the theme preference. Every backend stores opaque byte values under
// string keys; encoding is the caller's concern.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("key not found")

// ErrInvalidKey is returned when a key contains characters a backend cannot store.
var ErrInvalidKey = errors.New("invalid key")

// Supported driver names.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
)

// KV is a flat key/value store.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Driver      string
	Dir         string
	DatabaseURL string
	MaxConns    int32
	MinConns    int32
	RedisURL    string
	SQLitePath  string
}

// Open connects the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (KV, error) {
	switch opts.Driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverFile, "":
		return NewFile(opts.Dir)
	case DriverPostgres:
		return NewPostgres(ctx, opts.DatabaseURL, opts.MaxConns, opts.MinConns)
	case DriverRedis:
		return NewRedis(ctx, opts.RedisURL)
	case DriverSQLite:
		return NewSQLite(opts.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

func validateKey(key string) error {
	if !keyPattern.MatchString(key) || key == "." || key == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
