// Package repository selects the storage backend for the binaries.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/enrollment-engine/internal/config"
	"github.com/ignite/enrollment-engine/internal/repository/dynamo"
	"github.com/ignite/enrollment-engine/internal/repository/memory"
	"github.com/ignite/enrollment-engine/internal/repository/postgres"
	"github.com/ignite/enrollment-engine/internal/service/campaign"
	"github.com/ignite/enrollment-engine/internal/service/engagement"
	"github.com/ignite/enrollment-engine/internal/service/enrollment"
	"github.com/ignite/enrollment-engine/internal/service/quota"
	"github.com/ignite/enrollment-engine/internal/service/recommendation"
	"github.com/ignite/enrollment-engine/internal/service/task"
)

// Store is every repository the services need. The memory, postgres and
// dynamo stores all satisfy it.
type Store interface {
	campaign.Repository
	enrollment.Repository
	task.Repository
	recommendation.Repository
	engagement.Repository
	quota.SettingsSource
	quota.Counter

	ListUserIDs(ctx context.Context) ([]string, error)
}

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

var (
	_ Store = (*memory.Store)(nil)
	_ Store = (*postgres.Store)(nil)
	_ Store = (*dynamo.Store)(nil)
)

// Backend is an opened store. DB is set for the postgres backend only and
// Pinger is nil for the memory backend.
type Backend struct {
	Store  Store
	DB     *sql.DB
	Pinger Pinger
}

// Close releases the database handle, if any.
func (b *Backend) Close() error {
	if b.DB == nil {
		return nil
	}
	return b.DB.Close()
}

// Open connects the backend named by cfg.Type.
func Open(ctx context.Context, cfg config.StoreConfig) (*Backend, error) {
	switch cfg.Type {
	case "memory":
		return &Backend{Store: memory.New()}, nil

	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres store requires database_url")
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		db, err := postgres.Open(pingCtx, cfg.DatabaseURL, cfg.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		s := postgres.NewStore(db)
		return &Backend{Store: s, DB: db, Pinger: s}, nil

	case "dynamodb":
		s, err := dynamo.New(ctx, cfg.DynamoDBTable, cfg.AWSRegion, cfg.GetAWSProfile())
		if err != nil {
			return nil, err
		}
		return &Backend{Store: s, Pinger: s}, nil

	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}
