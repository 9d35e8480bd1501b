// Package storage holds the client-local key/value stores that keep the
// widget identifiers across restarts.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrNotFound = errors.New("storage: key not found")

// Store is a string key/value store. Get returns ErrNotFound for absent keys.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendDynamoDB = "dynamodb"
)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type DynamoOptions struct {
	Table           string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type Options struct {
	Backend  string
	Path     string
	Redis    RedisOptions
	DynamoDB DynamoOptions
}

// New opens the store selected by opts.Backend. An empty backend means memory.
func New(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendFile:
		if opts.Path == "" {
			return nil, errors.New("storage: file backend requires a path")
		}
		return NewFile(opts.Path), nil
	case BackendRedis:
		return NewRedis(ctx, opts.Redis)
	case BackendDynamoDB:
		return NewDynamo(ctx, opts.DynamoDB)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", opts.Backend)
	}
}
