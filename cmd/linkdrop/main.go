package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"linkdrop/internal/api"
	"linkdrop/internal/bot"
	"linkdrop/internal/config"
	"linkdrop/internal/quota"
	"linkdrop/internal/scraper"
	"linkdrop/internal/storage"
	"linkdrop/internal/submission"
)

func main() {
	configDir := flag.String("config", "./configs", "directory containing config.yaml")
	flag.Parse()

	// --- Configuration Loading ---
	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Setup ---
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(cfg.Level())

	loc, err := cfg.Location()
	if err != nil {
		log.WithError(err).Fatal("Invalid timezone")
	}
	log.WithFields(logrus.Fields{
		"badgerdb_path": cfg.BadgerDBPath,
		"http_address":  cfg.HTTPAddress,
		"timezone":      loc.String(),
	}).Info("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize Components ---
	repo, err := storage.NewBadgerRepository(cfg.BadgerDBPath, log)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.WithError(err).Error("Error closing database")
		}
	}()

	seeds, err := userSeeds(cfg)
	if err != nil {
		log.WithError(err).Fatal("Invalid USERS setting")
	}
	if created, err := repo.SeedUsers(ctx, seeds); err != nil {
		log.WithError(err).Error("Failed to seed users")
	} else if created > 0 {
		log.WithField("created", created).Info("Seeded users")
	}

	go repo.RunGC(ctx, cfg.GCInterval)

	resolver := scraper.New(log, cfg.ScraperOptions())
	log.WithField("strategies", resolver.Strategies()).Info("Metadata resolver ready")

	gate := quota.NewGatekeeper(repo, log, quota.WithLocation(loc))
	svc := submission.NewService(repo, gate, resolver, log)

	// --- HTTP API ---
	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           api.NewRouter(api.NewHandler(svc, log), log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.WithField("address", cfg.HTTPAddress).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server failed")
			stop()
		}
	}()

	// --- Telegram Bot ---
	if cfg.TelegramBotToken != "" {
		botHandler, err := bot.NewHandler(cfg.TelegramBotToken, svc, loc, log)
		if err != nil {
			log.WithError(err).Error("Failed to initialize Telegram bot handler, continuing without it")
		} else {
			go botHandler.Start(ctx)
		}
	} else {
		log.Info("TELEGRAM_BOT_TOKEN not set, Telegram bot disabled")
	}

	log.Info("linkdrop is running. Press Ctrl+C to exit.")
	<-ctx.Done()

	// --- Graceful Shutdown ---
	log.Info("Shutting down linkdrop...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}
	log.Info("linkdrop shut down gracefully.")
}

// userSeeds converts the USERS setting into repository seeds.
func userSeeds(cfg config.Config) ([]storage.UserSeed, error) {
	seeds, err := cfg.SeedUsers()
	if err != nil {
		return nil, err
	}
	out := make([]storage.UserSeed, 0, len(seeds))
	for _, s := range seeds {
		out = append(out, storage.UserSeed{Slug: s.Slug, Name: s.Name})
	}
	return out, nil
}
