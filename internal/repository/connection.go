package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultMaxPoolSize = 100
	defaultMinPoolSize = 10
)

// PoolSize bounds the driver's connection pool. Zero fields use the defaults.
type PoolSize struct {
	Max uint64
	Min uint64
}

func clientOptions(uri string, pool PoolSize) *options.ClientOptions {
	if pool.Max == 0 {
		pool.Max = defaultMaxPoolSize
	}
	if pool.Min == 0 {
		pool.Min = min(defaultMinPoolSize, pool.Max)
	}
	return options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(pool.Max).
		SetMinPoolSize(pool.Min)
}

// ConnectMongoDB connects and pings before handing out the database, so a bad
// URI fails at startup rather than on the first cart request.
func ConnectMongoDB(ctx context.Context, uri, database string, pool PoolSize) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, clientOptions(uri, pool))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}
