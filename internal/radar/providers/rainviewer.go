package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/i474232898/radar-overlay/internal/radar"
	"github.com/sony/gobreaker"
)

const (
	DefaultTimestampsURL = "https://tilecache.rainviewer.com/api/maps.json"
	DefaultTileBaseURL   = "https://tilecache.rainviewer.com/v2/radar"
	DefaultTileSize      = 512

	// Color scheme 4, smoothed with snow shown.
	tileColorScheme = 4
	tileOptions     = "1_1"

	userAgent = "radar-overlay/1.0"
)

// Ensure RainViewerProvider implements radar.Provider at compile time.
var _ radar.Provider = (*RainViewerProvider)(nil)

// RainViewerConfig holds the endpoints and timeouts for RainViewer.
type RainViewerConfig struct {
	TimestampsURL    string
	TileBaseURL      string
	TileSize         int
	TimestampTimeout time.Duration
	TileTimeout      time.Duration
}

// RainViewerProvider implements the radar.Provider interface for the
// RainViewer tile cache.
type RainViewerProvider struct {
	name          string
	timestampsURL string
	tileBaseURL   string
	tileSize      int

	timestampsCfg HTTPClientConfig
	tilesCfg      HTTPClientConfig

	timestampsCircuit *gobreaker.CircuitBreaker
	tilesCircuit      *gobreaker.CircuitBreaker
}

func NewRainViewerProvider(client *http.Client, cfg RainViewerConfig) *RainViewerProvider {
	if cfg.TimestampsURL == "" {
		cfg.TimestampsURL = DefaultTimestampsURL
	}
	if cfg.TileBaseURL == "" {
		cfg.TileBaseURL = DefaultTileBaseURL
	}
	if cfg.TileSize <= 0 {
		cfg.TileSize = DefaultTileSize
	}
	if cfg.TimestampTimeout <= 0 {
		cfg.TimestampTimeout = radar.DefaultTimestampTimeout
	}
	if cfg.TileTimeout <= 0 {
		cfg.TileTimeout = radar.DefaultTileTimeout
	}

	headers := map[string]string{"User-Agent": userAgent}

	return &RainViewerProvider{
		name:          "rainviewer",
		timestampsURL: cfg.TimestampsURL,
		tileBaseURL:   strings.TrimSuffix(cfg.TileBaseURL, "/"),
		tileSize:      cfg.TileSize,
		timestampsCfg: HTTPClientConfig{
			Client:  client,
			Timeout: cfg.TimestampTimeout,
			Headers: headers,
		},
		tilesCfg: HTTPClientConfig{
			Client:  client,
			Timeout: cfg.TileTimeout,
			Headers: headers,
		},
		timestampsCircuit: newBreaker("rainviewer-timestamps"),
		tilesCircuit:      newBreaker("rainviewer-tiles"),
	}
}

func (p *RainViewerProvider) Name() string {
	return p.name
}

// FetchTimestamps returns the raw maps.json payload.
func (p *RainViewerProvider) FetchTimestamps(ctx context.Context) ([]byte, error) {
	return fetchBytes(ctx, p.timestampsCfg, p.timestampsCircuit, p.timestampsURL,
		map[string]string{"Accept": "application/json"})
}

// TileURL fills the RainViewer tile template:
// {base}/{timestamp}/{size}/{zoom}/{x}/{y}/{color}/{options}.png
func (p *RainViewerProvider) TileURL(timestamp int64, tile radar.Tile) string {
	return fmt.Sprintf("%s/%d/%d/%d/%d/%d/%d/%s.png",
		p.tileBaseURL, timestamp, p.tileSize, tile.Zoom, tile.X, tile.Y, tileColorScheme, tileOptions)
}

// FetchTile downloads one tile image.
func (p *RainViewerProvider) FetchTile(ctx context.Context, url string) ([]byte, error) {
	return fetchBytes(ctx, p.tilesCfg, p.tilesCircuit, url,
		map[string]string{"Accept": "image/png,image/webp,image/*"})
}
