package main

import (
	"context"
	"fmt"

	"github.com/reoring/leanvirtuals/internal/config"
	"github.com/reoring/leanvirtuals/query"
	"github.com/reoring/leanvirtuals/store/jsonl"
	"github.com/reoring/leanvirtuals/store/memory"
	mongostore "github.com/reoring/leanvirtuals/store/mongo"
	"github.com/reoring/leanvirtuals/store/postgres"
)

// openCollection builds the collection named by the configured driver. The
// returned func releases connections.
func openCollection(ctx context.Context, cfg config.Config, name string) (query.Collection, func(), error) {
	noop := func() {}
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return memory.New(), noop, nil
	case config.DriverJSONL:
		c, err := jsonl.Open(cfg.Store.JSONL.Dir, name)
		if err != nil {
			return nil, nil, err
		}
		return c, noop, nil
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.Store.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		c, err := postgres.New(pool, cfg.Store.Postgres.Table, name)
		if err == nil {
			err = c.EnsureSchema(ctx)
		}
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return c, pool.Close, nil
	case config.DriverMongo:
		client, err := mongostore.Connect(ctx, cfg.Store.Mongo.URI)
		if err != nil {
			return nil, nil, err
		}
		return mongostore.Open(client, cfg.Store.Mongo.Database, name), func() {
			_ = client.Disconnect(context.Background())
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
