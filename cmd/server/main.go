package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TIROK547/telegram-study-bot/internal/calendar"
	"github.com/TIROK547/telegram-study-bot/internal/config"
	"github.com/TIROK547/telegram-study-bot/internal/database"
	"github.com/TIROK547/telegram-study-bot/internal/engine"
	"github.com/TIROK547/telegram-study-bot/internal/handlers"
	"github.com/TIROK547/telegram-study-bot/internal/middleware"
	"github.com/TIROK547/telegram-study-bot/internal/repository"
	"github.com/TIROK547/telegram-study-bot/internal/router"
	"github.com/TIROK547/telegram-study-bot/internal/stats"
)

func main() {
	log.Println("🚀 Starting Study Tracker Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Client ────
	redisClient, err := database.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClient.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Step 5: Clock & Calendar ────
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatalf("✗ Invalid timezone %q: %v", cfg.Timezone, err)
	}

	var cal calendar.Provider
	switch cfg.Calendar {
	case "jalali":
		cal = calendar.NewJalali(loc)
	case "gregorian":
		cal = calendar.NewGregorian(loc)
	default:
		log.Fatalf("✗ Unknown calendar %q (want jalali or gregorian)", cfg.Calendar)
	}
	clock := calendar.NewSystemClock(loc)
	log.Printf("✓ Calendar: %s buckets, %s local time", cfg.Calendar, cfg.Timezone)

	// ──── Initialize Repositories ────
	sessionRepo := repository.NewSessionRepo(pool)
	statsRepo := repository.NewStatsRepo(pool)
	userRepo := repository.NewUserRepo(pool)

	// ──── Initialize Engine & Sweeper ────
	eng := engine.New(sessionRepo, statsRepo, userRepo, clock, cal, int64(cfg.MinSessionSeconds))

	boardCache := stats.NewCache(redisClient, 15*time.Second)
	eng.SetInvalidator(boardCache)

	sweeper := engine.NewSweeper(eng, time.Duration(cfg.SweepIntervalSeconds)*time.Second, cfg.SweepBatchSize)
	sweeper.Start()

	reader := stats.NewReader(statsRepo, sessionRepo, userRepo, clock, cal, boardCache)
	reader.SetSweeper(eng)

	// ──── Initialize Handlers ────
	serviceAuth := middleware.NewServiceAuth(cfg.ServiceJWTSecret)
	sessionHandler := handlers.NewSessionHandler(eng, userRepo)
	statsHandler := handlers.NewStatsHandler(reader, eng, userRepo)
	userHandler := handlers.NewUserHandler(userRepo)

	// ──── Start HTTP Server ────
	r := router.New(
		serviceAuth,
		sessionHandler,
		statsHandler,
		userHandler,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		sweeper.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ Study Tracker Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
