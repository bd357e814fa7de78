package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"drt-feedback/internal/config"
	"drt-feedback/internal/db"
	"drt-feedback/internal/feedback"
	"drt-feedback/internal/history"
	"drt-feedback/internal/metrics"
	"drt-feedback/internal/publisher"
	"drt-feedback/internal/sim"
	"drt-feedback/internal/trips"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	opts, err := cfg.Feedback.Options(cfg.OutputDir)
	if err != nil {
		log.Fatalf("feedback config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sqlDB, err := openRunDB(ctx, cfg)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer sqlDB.Close()

	runID := uuid.New()
	log.Printf("run %s", runID)

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(opts.TimeBin, cfg.ReplayWorkers)
		srv := mcol.Serve(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	network, err := db.FetchNetwork(ctx, sqlDB)
	if err != nil {
		log.Fatalf("fetch network error: %v", err)
	}
	log.Printf("network: %d links, bounds %v", network.Len(), network.Bound())

	engine, err := feedback.NewEngine(opts, network, wrapFeedbackMetrics(mcol))
	if err != nil {
		log.Fatalf("feedback engine error: %v", err)
	}
	engine.AddSink(func(ctx context.Context, _ int, s *history.Snapshot) error {
		return db.SaveSnapshot(ctx, sqlDB, runID, s)
	})

	// NATS is optional
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, runID, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		defer pub.Close()
		engine.AddSink(pub.PublishSnapshot)
	}

	fb := cfg.Feedback
	tracker := trips.NewTracker(network,
		trips.WithHorizonEnd(opts.Horizon.Seconds()),
		trips.WithRouter(trips.BeelineRouter{Links: network, Speed: fb.RouterSpeedMps, DetourFactor: fb.RouterDetour}),
	)
	caps := sim.RouteCaps{MaxWaitTime: fb.MaxWaitTime, Alpha: fb.MaxTravelAlpha, Beta: fb.MaxTravelBeta}
	mgr := sim.NewManager(db.EventStore{DB: sqlDB}, engine, tracker, caps, cfg.ReplayWorkers, mcol)

	if err := mgr.Run(ctx, cfg.Iterations); err != nil {
		log.Printf("replay stopped: %v", err)
	}
	log.Println("shutdown complete")
}

// openRunDB connects to the configured database, or to the latest finished
// run of SCENARIO resolved through the cluster's meta database.
func openRunDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	finalDSN := cfg.DatabaseURL
	if cfg.Scenario != "" {
		rootDSN, err := db.WithDBName(cfg.DatabaseURL, "postgres")
		if err != nil {
			return nil, err
		}
		metaDB, err := db.Open(rootDSN)
		if err != nil {
			return nil, err
		}
		defer metaDB.Close()
		if err := db.Ping(ctx, metaDB); err != nil {
			return nil, err
		}
		name, err := db.ResolveLatestRunDBName(ctx, metaDB, cfg.Scenario)
		if err != nil {
			return nil, err
		}
		if finalDSN, err = db.WithDBName(cfg.DatabaseURL, name); err != nil {
			return nil, err
		}
		log.Printf("Using database %q for scenario %q", name, cfg.Scenario)
	}
	sqlDB, err := db.Open(finalDSN)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return sqlDB, nil
}

// wrapFeedbackMetrics keeps a nil Collector a nil interface.
func wrapFeedbackMetrics(c *metrics.Collector) feedback.Metrics {
	if c == nil {
		return nil
	}
	return c
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
