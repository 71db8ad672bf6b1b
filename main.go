package main

import (
	"net/http"
	"os"
	"time"

	"swipehouse/cache"
	"swipehouse/commute"
	"swipehouse/config"
	"swipehouse/mapbox"
	"swipehouse/models"
	"swipehouse/rentcast"
	"swipehouse/server"
	"swipehouse/services"
	"swipehouse/storage"
	"swipehouse/utils"
)

func main() {
	logger := utils.NewLogger()
	cfg := config.Load()

	logger.Info("=== swipehouse listings core starting ===")
	logger.Info("Config: fresh TTL: %dh | stale TTL: %dh | refresh after: %dmin | chunk size: %d",
		cfg.FreshTTLHours, cfg.StaleTTLHours, cfg.RefreshAfterMin, cfg.MatrixChunkSize)

	if cfg.RentcastAPIKey == "" {
		logger.Error("RENTCAST_API_KEY is not set. Exiting.")
		os.Exit(1)
	}
	if cfg.MapboxToken == "" {
		logger.Warn("MAPBOX_TOKEN is not set, commute computation will be unavailable")
	}

	db, err := cache.OpenDB(cfg.CachePath)
	if err != nil {
		logger.Error("Failed to open cache database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	store, err := cache.NewSQLiteStore(db)
	if err != nil {
		logger.Error("Failed to init cache store: %v", err)
		os.Exit(1)
	}

	slot, err := commute.NewSQLiteSlot(db)
	if err != nil {
		logger.Error("Failed to init commute cache: %v", err)
		os.Exit(1)
	}

	rc := rentcast.New(cfg.RentcastAPIKey, cfg.RentcastRPS, cfg.MaxRetries, logger)
	listingCache := cache.New(store, rc.Search, logger, cache.WithTTLs(
		time.Duration(cfg.FreshTTLHours)*time.Hour,
		time.Duration(cfg.StaleTTLHours)*time.Hour,
		time.Duration(cfg.RefreshAfterMin)*time.Minute,
	))

	mb := mapbox.New(cfg.MapboxToken, logger)
	engine := commute.NewEngine(mb, mb, slot, logger,
		commute.WithChunkSize(cfg.MatrixChunkSize),
		commute.WithConcurrency(cfg.MaxConcurrency, cfg.RateLimitMs),
	)

	pipeline := services.NewPipeline(logger)

	// Snapshot persistence is optional: the core runs fine without
	// Postgres, logging a warning instead.
	var snapshots storage.ListingWriter
	var restored []*models.Listing
	if pg, err := storage.NewPostgresWriter(cfg.DSN()); err != nil {
		logger.Warn("PostgreSQL unavailable (%v), listing snapshots disabled", err)
	} else {
		snapshots = pg
		defer pg.Close()
		if restored, err = pg.FetchAll(); err != nil {
			logger.Warn("Snapshot restore failed: %v", err)
		} else if len(restored) > 0 {
			logger.Info("Restored %d listings from the last snapshot", len(restored))
		}
	}

	csvw, err := storage.NewCSVWriter(cfg.CSVOutputPath)
	if err != nil {
		logger.Error("Failed to create rejection CSV writer: %v", err)
		os.Exit(1)
	}
	defer csvw.Close()
	var rejected storage.RejectionWriter = csvw

	srv := server.New(listingCache, pipeline, engine, logger)
	srv.Seed(restored)
	srv.OnResult(func(res services.PipelineResult) {
		if snapshots != nil {
			if err := snapshots.Write(res.Accepted); err != nil {
				logger.Warn("Snapshot write failed: %v", err)
			}
		}
		if len(res.Rejected) > 0 {
			if err := rejected.WriteRejections(res.Rejected); err != nil {
				logger.Warn("Rejection CSV write failed: %v", err)
			}
		}
	})

	logger.Info("Listening on %s", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, srv.Router()); err != nil {
		logger.Error("Server failed: %v", err)
		os.Exit(1)
	}
}
