package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/radar-overlay/internal/api/http"
	"github.com/i474232898/radar-overlay/internal/config"
	"github.com/i474232898/radar-overlay/internal/radar"
	"github.com/i474232898/radar-overlay/internal/radar/providers"
	"github.com/i474232898/radar-overlay/internal/scheduler"
	"github.com/i474232898/radar-overlay/internal/store"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Shared HTTP client for outbound tile provider calls. Per-call timeouts
	// are applied by the provider.
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 32,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	provider := providers.NewRainViewerProvider(httpClient, providers.RainViewerConfig{
		TimestampsURL:    cfg.TimestampsURL,
		TileBaseURL:      cfg.TileBaseURL,
		TileSize:         cfg.TileSize,
		TimestampTimeout: cfg.TimestampTimeout,
		TileTimeout:      cfg.TileTimeout,
	})

	// Geocoding is optional; without a key the locate endpoint reports 503.
	var locator radar.Locator
	if cfg.GeocoderAPIKey != "" {
		locator = providers.NewGoogleGeocoder(cfg.GeocoderAPIKey)
	}

	timestamps := radar.NewTimestampCache(provider, cfg.TimestampTTL, cfg.TimestampTimeout)
	tiles := store.NewMemoryStore(cfg.TileStoreMaxEntries, cfg.TileStoreMaxAge)

	// Core service coordinating timestamps and tile fetches.
	service := radar.NewService(provider, timestamps, tiles, locator, cfg.TileTimeout)

	// Animation clock and timestamp prewarm.
	sched := scheduler.New(cfg.FrameInterval, cfg.PrewarmInterval, service)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "radar-overlay",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"service":  "radar-overlay",
			"provider": provider.Name(),
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, service, sched)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()
	log.Printf("radar-overlay listening on :%s", cfg.Port)

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
