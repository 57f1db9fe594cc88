package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/radar-overlay/internal/radar"
	"github.com/i474232898/radar-overlay/internal/store"
)

type fakeProvider struct {
	mu       sync.Mutex
	payload  string
	tiles    map[string][]byte
	requests []string
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) FetchTimestamps(ctx context.Context) ([]byte, error) {
	return []byte(p.payload), nil
}

func (p *fakeProvider) TileURL(ts int64, tile radar.Tile) string {
	return fmt.Sprintf("https://tiles.test/%d/%d/%d/%d.png", ts, tile.Zoom, tile.X, tile.Y)
}

func (p *fakeProvider) FetchTile(ctx context.Context, url string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, url)
	data, ok := p.tiles[url]
	if !ok {
		return nil, errors.New("server failure: status 503")
	}
	return data, nil
}

type fixedFrame uint64

func (f fixedFrame) Frame() uint64 { return uint64(f) }

type fakeLocator struct {
	lat, lon float64
}

func (l fakeLocator) Locate(ctx context.Context, loc radar.Location) (float64, float64, error) {
	return l.lat, l.lon, nil
}

func pngTile(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 10, G: 200, B: 10, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newTestApp(t *testing.T, p *fakeProvider, frames FrameSource, locator radar.Locator) *fiber.App {
	t.Helper()
	cache := radar.NewTimestampCache(p, time.Minute, time.Second)
	svc := radar.NewService(p, cache, store.NewMemoryStore(16, time.Hour), locator, time.Second)
	app := fiber.New()
	RegisterRoutes(app, svc, frames)
	return app
}

func TestTileEndpointServesImage(t *testing.T) {
	tile := pngTile(t)
	p := &fakeProvider{
		payload: "[100,200,300]",
		tiles:   map[string][]byte{"https://tiles.test/300/7/5/3.png": tile},
	}
	app := newTestApp(t, p, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/radar/tiles/7/5/3?frame=0", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected image/png, got %q", ct)
	}
	if ts := resp.Header.Get("X-Radar-Timestamp"); ts != "300" {
		t.Fatalf("expected timestamp 300, got %q", ts)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, tile) {
		t.Fatalf("tile body mismatch")
	}
}

func TestTileEndpointMissingTileIsNoContent(t *testing.T) {
	p := &fakeProvider{payload: "[100,200,300]"}
	app := newTestApp(t, p, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/radar/tiles/7/5/3?frame=1", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, resp.StatusCode)
	}
	if got := resp.Header.Get("X-Radar-Tile"); got != "missing" {
		t.Fatalf("expected missing marker, got %q", got)
	}
	if ts := resp.Header.Get("X-Radar-Timestamp"); ts != "200" {
		t.Fatalf("expected frame 1 to resolve to 200, got %q", ts)
	}
}

func TestTileEndpointUsesLiveFrame(t *testing.T) {
	p := &fakeProvider{payload: "[100,200,300]"}
	app := newTestApp(t, p, fixedFrame(2), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/radar/tiles/3/1/1", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts := resp.Header.Get("X-Radar-Timestamp"); ts != "100" {
		t.Fatalf("expected live frame 2 to resolve to 100, got %q", ts)
	}
}

func TestTileEndpointValidation(t *testing.T) {
	p := &fakeProvider{payload: "[100]"}
	app := newTestApp(t, p, nil, nil)

	paths := []string{
		fmt.Sprintf("/api/v1/radar/tiles/%d/0/0", radar.MaxZoom+1),
		"/api/v1/radar/tiles/-1/0/0",
		"/api/v1/radar/tiles/2/4/0",
		"/api/v1/radar/tiles/abc/0/0",
		"/api/v1/radar/tiles/2/1/1?frame=-3",
	}
	for _, path := range paths {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", path, err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusBadRequest, resp.StatusCode)
		}
	}
	if len(p.requests) != 0 {
		t.Fatalf("invalid requests must not reach the provider, got %v", p.requests)
	}
}

func TestZoomLimitFollowsMaxZoom(t *testing.T) {
	p := &fakeProvider{payload: "[100]"}
	app := newTestApp(t, p, nil, fakeLocator{})

	// The deepest zoom passes validation and reaches the provider.
	resp, err := app.Test(httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/api/v1/radar/tiles/%d/0/0", radar.MaxZoom), nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected status %d at max zoom, got %d", http.StatusNoContent, resp.StatusCode)
	}

	tests := []struct {
		zoom int
		want int
	}{
		{radar.MaxZoom, http.StatusOK},
		{radar.MaxZoom + 1, http.StatusBadRequest},
		{-1, http.StatusBadRequest},
	}
	for _, tt := range tests {
		path := fmt.Sprintf("/api/v1/radar/locate?city=Null&country=Island&zoom=%d", tt.zoom)
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", path, err)
		}
		if resp.StatusCode != tt.want {
			t.Errorf("%s: expected status %d, got %d", path, tt.want, resp.StatusCode)
		}
	}
}

func TestFrameEndpoint(t *testing.T) {
	p := &fakeProvider{payload: "[100,200,300]"}
	app := newTestApp(t, p, nil, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/radar/frame?frame=3", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Frame     uint64 `json:"frame"`
		Timestamp int64  `json:"timestamp"`
		Available int    `json:"available"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Timestamp != 300 || body.Available != 3 || body.Frame != 3 {
		t.Fatalf("unexpected frame response %+v", body)
	}
}

func TestTimestampsEndpoint(t *testing.T) {
	p := &fakeProvider{payload: "[100,200]"}
	app := newTestApp(t, p, nil, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/radar/timestamps", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var stats radar.TimestampStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(stats.Timestamps) != 2 || stats.Refreshes != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestLocateEndpoint(t *testing.T) {
	p := &fakeProvider{payload: "[100]"}

	app := newTestApp(t, p, nil, nil)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/radar/locate?city=Paris&country=FR", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected %d without a geocoder, got %d", http.StatusServiceUnavailable, resp.StatusCode)
	}

	app = newTestApp(t, p, nil, fakeLocator{lat: 0, lon: 0})
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/radar/locate?city=Null&country=Island&zoom=1", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var body struct {
		Tile radar.Tile `json:"tile"`
		Path string     `json:"path"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Tile != (radar.Tile{Zoom: 1, X: 1, Y: 1}) {
		t.Fatalf("unexpected tile %+v", body.Tile)
	}
	if body.Path != "/api/v1/radar/tiles/1/1/1" {
		t.Fatalf("unexpected path %q", body.Path)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/radar/locate?city=Paris", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d for missing country, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}
