package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/enrollment-engine/internal/app"
	"github.com/ignite/enrollment-engine/internal/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	once := flag.Bool("once", false, "run a single enrollment tick and exit")
	flag.Parse()

	log.Println("[worker] Starting enrollment worker")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer a.Close()

	driver := a.EnrollmentDriver()
	if *once {
		report := driver.RunOnce(ctx)
		if report == nil {
			log.Println("[worker] Tick skipped: another worker holds the tick lock")
			return
		}
		log.Printf("[worker] Tick complete: listed=%d sent=%d errors=%d in %s",
			report.Listed, report.Sent, report.Errors, report.Duration)
		return
	}

	driver.Start()
	log.Printf("[worker] Enrollment driver started (every %s, concurrency %d)",
		cfg.Engine.TickInterval(), cfg.Engine.Concurrency)

	scheduler := a.RecommendationScheduler()
	if cfg.Recommendations.AutoTasks {
		scheduler.Start()
		log.Printf("[worker] Recommendation scheduler started (run hour %02d:00 UTC)", cfg.Recommendations.RunHourUTC)
	}

	// Heartbeat
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := driver.Stats()
				log.Printf("[worker] Heartbeat: ticks=%d sent=%d errors=%d", stats["ticks"], stats["sent"], stats["errors"])
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[worker] Shutting down...")
	cancel()
	driver.Stop()
	if cfg.Recommendations.AutoTasks {
		scheduler.Stop()
	}
	log.Println("[worker] Stopped")
}
