package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/i474232898/radar-overlay/internal/radar"
	"github.com/i474232898/radar-overlay/internal/radar/providers"
)

type AppConfig struct {
	Port string

	// Upstream tile provider.
	TimestampsURL string
	TileBaseURL   string
	TileSize      int

	// TimestampTTL is how long a fetched timestamp list is served without
	// asking the provider again.
	TimestampTTL     time.Duration
	TimestampTimeout time.Duration
	TileTimeout      time.Duration

	// Animation clock and cache prewarm cadence.
	FrameInterval   time.Duration
	PrewarmInterval time.Duration

	// In-memory tile store retention.
	TileStoreMaxEntries int           // max number of tiles (0 = unlimited)
	TileStoreMaxAge     time.Duration // max age of tiles (0 = unlimited)

	GeocoderAPIKey string
}

// fileConfig mirrors AppConfig for the optional TOML file. Durations are
// strings so they read naturally ("5m", "500ms").
type fileConfig struct {
	Port                string `toml:"port"`
	TimestampsURL       string `toml:"timestamps_url"`
	TileBaseURL         string `toml:"tile_base_url"`
	TileSize            int    `toml:"tile_size"`
	TimestampTTL        string `toml:"timestamp_ttl"`
	TimestampTimeout    string `toml:"timestamp_timeout"`
	TileTimeout         string `toml:"tile_timeout"`
	FrameInterval       string `toml:"frame_interval"`
	PrewarmInterval     string `toml:"prewarm_interval"`
	TileStoreMaxEntries int    `toml:"tile_store_max_entries"`
	TileStoreMaxAge     string `toml:"tile_store_max_age"`
	GeocoderAPIKey      string `toml:"geocoder_api_key"`
}

// Load reads configuration from defaults, an optional TOML file named by
// RADAR_CONFIG_FILE, and then the environment, each overriding the last.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	fc := fileConfig{
		Port:                "8080",
		TimestampsURL:       providers.DefaultTimestampsURL,
		TileBaseURL:         providers.DefaultTileBaseURL,
		TileSize:            providers.DefaultTileSize,
		TimestampTTL:        radar.DefaultTimestampTTL.String(),
		TimestampTimeout:    radar.DefaultTimestampTimeout.String(),
		TileTimeout:         radar.DefaultTileTimeout.String(),
		FrameInterval:       "1s",
		TileStoreMaxEntries: 2048,
		TileStoreMaxAge:     "30m",
	}

	if path := strings.TrimSpace(os.Getenv("RADAR_CONFIG_FILE")); path != "" {
		if err := loadFile(path, &fc); err != nil {
			return nil, err
		}
	}

	cfg := &AppConfig{}
	cfg.Port = getenvDefault("PORT", fc.Port)
	cfg.TimestampsURL = getenvDefault("RADAR_TIMESTAMPS_URL", fc.TimestampsURL)
	cfg.TileBaseURL = getenvDefault("RADAR_TILE_BASE_URL", fc.TileBaseURL)
	cfg.GeocoderAPIKey = getenvDefault("GEOCODER_API_KEY", fc.GeocoderAPIKey)

	ints := []struct {
		env string
		def int
		dst *int
	}{
		{"RADAR_TILE_SIZE", fc.TileSize, &cfg.TileSize},
		{"TILE_STORE_MAX_ENTRIES", fc.TileStoreMaxEntries, &cfg.TileStoreMaxEntries},
	}
	for _, n := range ints {
		v, err := getenvInt(n.env, n.def)
		if err != nil {
			return nil, err
		}
		*n.dst = v
	}

	durations := []struct {
		env string
		def string
		dst *time.Duration
	}{
		{"RADAR_TIMESTAMP_TTL", fc.TimestampTTL, &cfg.TimestampTTL},
		{"RADAR_TIMESTAMP_TIMEOUT", fc.TimestampTimeout, &cfg.TimestampTimeout},
		{"RADAR_TILE_TIMEOUT", fc.TileTimeout, &cfg.TileTimeout},
		{"RADAR_FRAME_INTERVAL", fc.FrameInterval, &cfg.FrameInterval},
		{"RADAR_PREWARM_INTERVAL", fc.PrewarmInterval, &cfg.PrewarmInterval},
		{"TILE_STORE_MAX_AGE", fc.TileStoreMaxAge, &cfg.TileStoreMaxAge},
	}
	for _, d := range durations {
		v, err := getenvDuration(d.env, d.def)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	if cfg.TileSize <= 0 {
		return nil, fmt.Errorf("invalid RADAR_TILE_SIZE: %d", cfg.TileSize)
	}
	if cfg.TimestampTTL <= 0 {
		return nil, fmt.Errorf("invalid RADAR_TIMESTAMP_TTL: must be positive")
	}
	if cfg.PrewarmInterval <= 0 {
		cfg.PrewarmInterval = cfg.TimestampTTL
	}

	return cfg, nil
}

func loadFile(path string, fc *fileConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("INFO: config file %s not found, using defaults", path)
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, fc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// getenvDuration parses key (or def when unset). An empty def means zero.
func getenvDuration(key, def string) (time.Duration, error) {
	s := getenvDefault(key, def)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
