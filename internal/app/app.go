// Package app wires the store, Redis and services from configuration. The
// server and worker binaries share it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/enrollment-engine/internal/api"
	"github.com/ignite/enrollment-engine/internal/config"
	"github.com/ignite/enrollment-engine/internal/mail"
	"github.com/ignite/enrollment-engine/internal/pkg/distlock"
	"github.com/ignite/enrollment-engine/internal/pkg/logger"
	"github.com/ignite/enrollment-engine/internal/repository"
	"github.com/ignite/enrollment-engine/internal/service/campaign"
	"github.com/ignite/enrollment-engine/internal/service/engagement"
	"github.com/ignite/enrollment-engine/internal/service/enrollment"
	"github.com/ignite/enrollment-engine/internal/service/quota"
	"github.com/ignite/enrollment-engine/internal/service/recommendation"
	"github.com/ignite/enrollment-engine/internal/service/task"
	"github.com/ignite/enrollment-engine/internal/worker"
)

// App holds the wired services.
type App struct {
	Config      *config.Config
	Backend     *repository.Backend
	Redis       *redis.Client
	Locks       distlock.Provider
	Guard       *quota.Guard
	Engine      *enrollment.Engine
	Recommender *recommendation.Service
	Tasks       *task.Service
	Engagement  *engagement.Recorder
	Campaigns   *campaign.Service
}

// New opens the backends named in cfg and builds every service.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.Redact())
	log := logger.With("component", "app")

	backend, err := repository.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	log.Info("store opened", "type", cfg.Store.Type)

	a := &App{Config: cfg, Backend: backend}
	if cfg.Redis.Enabled && cfg.Redis.URL != "" {
		a.Redis = connectRedis(ctx, cfg.Redis.URL, log)
	}
	a.Locks = distlock.NewProvider(a.Redis, backend.DB)

	var counter quota.Counter = backend.Store
	if a.Redis != nil {
		counter = quota.NewRedisCounter(a.Redis, backend.Store)
	}
	a.Guard = quota.NewGuard(backend.Store, counter, quota.Options{
		NearLimitRatio:    cfg.Quota.NearLimitRatio,
		DefaultDailyLimit: cfg.Quota.DefaultDailyLimit,
		ProviderLimits:    cfg.Quota.ProviderDailyLimits,
	})

	dispatcher, err := mail.FromConfig(ctx, cfg.Mail)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("mail provider: %w", err)
	}
	log.Info("mail provider ready", "provider", dispatcher.Name())

	a.Engine = enrollment.NewEngine(backend.Store, dispatcher, a.Guard, a.Locks, enrollment.Options{
		Concurrency: cfg.Engine.Concurrency,
		LockTTL:     cfg.Engine.LockTTL(),
		SendTimeout: cfg.Mail.SendTimeout(),
		FromName:    cfg.Mail.FromName,
		FromEmail:   cfg.Mail.FromEmail,
	})

	a.Recommender = recommendation.NewService(backend.Store, a.Guard, recommendation.KeywordMatcher{})
	if a.Redis != nil && cfg.Recommendations.CacheEnabled {
		a.Recommender.SetCache(recommendation.NewRedisCache(a.Redis))
	}
	if cfg.Archive.Enabled && cfg.Archive.S3Bucket != "" {
		archive, err := recommendation.NewS3Archive(ctx, cfg.Archive.S3Bucket, cfg.Archive.S3Region, cfg.Archive.KeyPrefix)
		if err != nil {
			log.Warn("recommendation archive disabled", "error", err.Error())
		} else {
			a.Recommender.SetArchiver(archive)
		}
	}

	a.Tasks = task.NewService(backend.Store, a.Engine, a.Guard)
	a.Engagement = engagement.NewRecorder(backend.Store)
	a.Campaigns = campaign.NewService(backend.Store)
	return a, nil
}

// connectRedis returns nil when Redis is unreachable so locks fall back to
// Postgres advisory locks or the in-process provider.
func connectRedis(ctx context.Context, url string, log *logger.Logger) *redis.Client {
	var client *redis.Client
	opts, err := redis.ParseURL(url)
	if err != nil {
		client = redis.NewClient(&redis.Options{Addr: url})
	} else {
		client = redis.NewClient(opts)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unavailable, continuing without it", "error", err.Error())
		client.Close()
		return nil
	}
	log.Info("redis connected")
	return client
}

// APIDeps exposes the services to the HTTP layer.
func (a *App) APIDeps() api.Deps {
	return api.Deps{
		Quota:       a.Guard,
		Recommender: a.Recommender,
		Tasks:       a.Tasks,
		Enrollments: a.Engine,
		Engagement:  a.Engagement,
		Campaigns:   a.Campaigns,
		Health:      api.NewHealthChecker(a.Backend.Pinger, a.Redis),
	}
}

// EnrollmentDriver builds the periodic tick loop.
func (a *App) EnrollmentDriver() *worker.EnrollmentDriver {
	return worker.NewEnrollmentDriver(a.Engine, a.Locks, a.Config.Engine.TickInterval(), a.Config.Engine.LockTTL())
}

// RecommendationScheduler builds the daily task creation loop.
func (a *App) RecommendationScheduler() *worker.RecommendationScheduler {
	var marker worker.DayMarker = worker.NewMemoryDayMarker()
	if a.Redis != nil {
		marker = worker.NewRedisDayMarker(a.Redis)
	}
	return worker.NewRecommendationScheduler(a.Backend.Store, a.Recommender, marker,
		a.Config.Recommendations.RunHourUTC, a.Config.Recommendations.CheckInterval())
}

// Close releases the store and Redis.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	a.Backend.Close()
}
