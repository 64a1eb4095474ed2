package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"genbanote/api/internal/app"
	"genbanote/api/internal/archive"
	"genbanote/api/internal/auth"
	"genbanote/api/internal/config"
	"genbanote/api/internal/history"
	"genbanote/api/internal/holiday"
	"genbanote/api/internal/lookup"
	"genbanote/api/internal/schedule"
	"genbanote/api/internal/search"
	"genbanote/api/internal/snapshot"
	"genbanote/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewDocStore(db)

	// Every committed write to a watched collection lands in the change log.
	snapshots := snapshot.NewStore(db)
	capture := snapshot.NewCapture(snapshots,
		schedule.CollectionClients,
		schedule.CollectionSites,
		schedule.CollectionWorkers,
		schedule.CollectionSchedules,
	)
	dataStore.Watch(capture.Handle)

	clients, err := lookup.NewTable(ctx, dataStore, schedule.CollectionClients)
	if err != nil {
		log.Fatalf("client lookup table failed: %v", err)
	}
	defer clients.Close()
	workers, err := lookup.NewTable(ctx, dataStore, schedule.CollectionWorkers)
	if err != nil {
		log.Fatalf("worker lookup table failed: %v", err)
	}
	defer workers.Close()

	historyEngine := history.NewEngine(snapshots, clients, workers, cfg.SnapshotPageSize)

	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("invalid REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}
	holidays := holiday.New(redisClient, cfg.HolidayBaseURL)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewPgLike(db))

	var archiver app.Archiver
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		archiveService, err := archive.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("archive storage failed: %v", err)
		}
		if err := archiveService.EnsureBucket(ctx); err != nil {
			log.Printf("WARNING: archive bucket check failed (exports may fail): %v", err)
		}
		archiver = archiveService
	}

	authService := auth.NewService(dataStore, []byte(cfg.JWTSecret), cfg.AccessTTL)

	service := app.NewService(
		dataStore,
		func() app.BatchWriter { return dataStore.Batch() },
		historyEngine,
		holidays,
		searchService,
		archiver,
		authService,
	)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("GenbaNote API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
