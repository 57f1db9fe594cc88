package radar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	_ "golang.org/x/image/webp"
)

// DefaultTileTimeout bounds a single tile fetch. It is shorter than the
// timestamp timeout so a slow tile never backs up the map.
const DefaultTileTimeout = 5 * time.Second

var (
	// ErrDecode is returned when tile bytes are not a decodable image.
	ErrDecode = errors.New("tile is not a valid image")

	// ErrNoTimestamp marks a tile fetched before any timestamp list was known.
	ErrNoTimestamp = errors.New("no radar timestamp available")

	// ErrNoLocator is returned by Locate when no geocoder is configured.
	ErrNoLocator = errors.New("geocoding is not configured")

	// ErrInvalidTile is returned for coordinates outside the zoom grid.
	ErrInvalidTile = errors.New("tile coordinates out of range")
)

// Service coordinates timestamp discovery, frame resolution and tile fetches.
type Service struct {
	provider    Provider
	timestamps  *TimestampCache
	store       TileStore
	locator     Locator
	tileTimeout time.Duration
}

// NewService creates a new Service. store and locator may be nil.
func NewService(provider Provider, timestamps *TimestampCache, store TileStore, locator Locator, tileTimeout time.Duration) *Service {
	if tileTimeout <= 0 {
		tileTimeout = DefaultTileTimeout
	}
	return &Service{
		provider:    provider,
		timestamps:  timestamps,
		store:       store,
		locator:     locator,
		tileTimeout: tileTimeout,
	}
}

// NewTileRequest builds a request with a fresh correlation ID.
func NewTileRequest(tile Tile, frame uint64) TileRequest {
	return TileRequest{ID: uuid.NewString(), Tile: tile, Frame: frame}
}

// Timestamps returns the current timestamp list, refreshing it when stale.
func (s *Service) Timestamps(ctx context.Context) TimestampList {
	return s.timestamps.Get(ctx)
}

// TimestampStats reports the cache state without triggering a refresh.
func (s *Service) TimestampStats() TimestampStats {
	return s.timestamps.Stats()
}

// ResolveTimestamp returns the timestamp shown at the given frame.
func (s *Service) ResolveTimestamp(ctx context.Context, frame uint64) int64 {
	return ResolveFrame(s.timestamps.Get(ctx), frame)
}

// FetchTile serves one tile request end to end. It never returns an error:
// every failure is folded into a TileResult without an image.
func (s *Service) FetchTile(ctx context.Context, req TileRequest) TileResult {
	ts := s.ResolveTimestamp(ctx, req.Frame)
	url := s.provider.TileURL(ts, req.Tile)
	result := TileResult{Request: req, Timestamp: ts, URL: url}

	if ts == NoTimestamp {
		// The provider will most likely reject this URL.
		log.Printf("tiles: %s requested with no known timestamp", req.Tile)
	}

	key := storeKey(ts, req.Tile)
	if s.store != nil && ts != NoTimestamp {
		if data, ok := s.store.GetTile(key); ok {
			result.Image = data
			result.Format = "png"
			return result
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.tileTimeout)
	defer cancel()

	data, err := s.provider.FetchTile(fetchCtx, url)
	if err != nil {
		if ts == NoTimestamp {
			err = fmt.Errorf("%w: %v", ErrNoTimestamp, err)
		}
		log.Printf("tiles: fetch %s (request %s) failed: %v", req.Tile, req.ID, err)
		result.Err = err
		return result
	}

	format, err := decodeTile(data)
	if err != nil {
		log.Printf("tiles: decode %s (request %s) failed: %v", req.Tile, req.ID, err)
		result.Err = err
		return result
	}

	result.Image = data
	result.Format = format
	if s.store != nil && ts != NoTimestamp && format == "png" {
		s.store.SaveTile(key, data)
	}
	return result
}

// RequestTile serves req on its own goroutine and calls deliver exactly once
// with the outcome.
func (s *Service) RequestTile(ctx context.Context, req TileRequest, deliver func(TileResult)) {
	go func() {
		result := TileResult{Request: req}
		defer func() {
			if r := recover(); r != nil {
				log.Printf("tiles: request %s panicked: %v", req.ID, r)
				result = TileResult{Request: req, Err: fmt.Errorf("tile request panicked: %v", r)}
			}
			deliver(result)
		}()
		result = s.FetchTile(ctx, req)
	}()
}

// LocateTile geocodes loc and returns the tile covering it at zoom.
func (s *Service) LocateTile(ctx context.Context, loc Location, zoom int) (Tile, error) {
	if s.locator == nil {
		return Tile{}, ErrNoLocator
	}
	if zoom < 0 || zoom > MaxZoom {
		return Tile{}, fmt.Errorf("%w: zoom %d", ErrInvalidTile, zoom)
	}
	lat, lon, err := s.locator.Locate(ctx, loc)
	if err != nil {
		return Tile{}, fmt.Errorf("locate %s: %w", loc.Key(), err)
	}
	return TileAt(lat, lon, zoom), nil
}

// TileAt returns the tile containing lat/lon at zoom.
func TileAt(lat, lon float64, zoom int) Tile {
	t := maptile.At(orb.Point{lon, lat}, maptile.Zoom(zoom))
	return Tile{Zoom: zoom, X: int(t.X), Y: int(t.Y)}
}

func storeKey(ts int64, tile Tile) string {
	return fmt.Sprintf("%d/%s", ts, tile)
}

func decodeTile(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty body", ErrDecode)
	}
	_, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return format, nil
}
