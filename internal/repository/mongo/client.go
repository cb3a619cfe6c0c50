package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
	RetryAttempts  int
	RetryInterval  time.Duration
}

// Connect dials the server and retries the initial ping.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, error) {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.RetryAttempts; attempt++ {
		opts := options.Client().
			ApplyURI(cfg.URI).
			SetConnectTimeout(cfg.ConnectTimeout)
		if cfg.MaxPoolSize > 0 {
			opts.SetMaxPoolSize(cfg.MaxPoolSize)
		}

		client, err := mongo.Connect(opts)
		if err == nil {
			if err = client.Ping(ctx, nil); err == nil {
				return client, nil
			}
			_ = client.Disconnect(context.Background())
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, fmt.Errorf("failed to connect to mongo: %w", lastErr)
}
