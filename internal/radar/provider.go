package radar

import (
	"context"
	"time"
)

// TimestampSource fetches the raw published timestamp list.
type TimestampSource interface {
	FetchTimestamps(ctx context.Context) ([]byte, error)
}

// Provider abstracts a radar tile service (e.g. RainViewer).
type Provider interface {
	TimestampSource

	Name() string

	// TileURL builds the tile address for a frame timestamp.
	TileURL(timestamp int64, tile Tile) string

	// FetchTile downloads raw tile bytes. Any transport or HTTP 4xx/5xx
	// failure is returned as an error.
	FetchTile(ctx context.Context, url string) ([]byte, error)
}

// TileStore is the contract the in-memory tile store must satisfy.
type TileStore interface {
	SaveTile(key string, data []byte)
	GetTile(key string) ([]byte, bool)
}

// Locator resolves a location to latitude/longitude.
type Locator interface {
	Locate(ctx context.Context, loc Location) (lat, lon float64, err error)
}

// clock is swapped out in tests.
type clock func() time.Time
