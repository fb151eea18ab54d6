package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apascualco/trafficcop/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	defaultClientName = "trafficcop"
	connectTimeout    = 5 * time.Second
)

// Client is the connection shared by the KV, session, state and event log
// stores of one trafficcop process.
type Client struct {
	*redis.Client
}

type ClientOption func(*redis.Options)

// WithClientName tags the connections in CLIENT LIST.
func WithClientName(name string) ClientOption {
	return func(o *redis.Options) {
		if name != "" {
			o.ClientName = name
		}
	}
}

func WithPoolSize(size int) ClientOption {
	return func(o *redis.Options) {
		if size > 0 {
			o.PoolSize = size
		}
	}
}

// NewClient connects to the redis:// or rediss:// URL and pings it. A
// server that does not answer is reported as domain.ErrStoreUnavailable.
func NewClient(rawURL string, opts ...ClientOption) (*Client, error) {
	options, err := parseOptions(rawURL, opts...)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", domain.ErrStoreUnavailable, options.Addr, err)
	}

	return &Client{Client: client}, nil
}

func parseOptions(rawURL string, opts ...ClientOption) (*redis.Options, error) {
	if rawURL == "" {
		return nil, errors.New("redis URL is required")
	}
	options, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	options.ClientName = defaultClientName
	for _, opt := range opts {
		opt(options)
	}
	return options, nil
}
