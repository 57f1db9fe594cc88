package radar

import (
	"fmt"
	"time"

	"github.com/paulmach/orb/maptile"
)

// NoTimestamp is the resolved timestamp when no radar frames are known yet.
const NoTimestamp int64 = 0

// MaxZoom is the deepest zoom level the tile cache serves.
const MaxZoom = 20

// TimestampList is an ascending list of radar frame times in UNIX seconds.
// An empty list means no data has been fetched yet.
type TimestampList []int64

// Latest returns the newest timestamp, or NoTimestamp for an empty list.
func (l TimestampList) Latest() int64 {
	if len(l) == 0 {
		return NoTimestamp
	}
	return l[len(l)-1]
}

// Tile identifies one map cell at a zoom level (slippy-map numbering).
type Tile struct {
	Zoom int `json:"zoom"`
	X    int `json:"x"`
	Y    int `json:"y"`
}

// Valid reports whether x/y fall inside the grid for the tile's zoom.
func (t Tile) Valid() bool {
	if t.Zoom < 0 || t.Zoom > MaxZoom || t.X < 0 || t.Y < 0 {
		return false
	}
	return maptile.New(uint32(t.X), uint32(t.Y), maptile.Zoom(t.Zoom)).Valid()
}

func (t Tile) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Zoom, t.X, t.Y)
}

// TileRequest asks for one tile at an animation frame.
type TileRequest struct {
	ID    string
	Tile  Tile
	Frame uint64
}

// TileResult is the terminal outcome of a TileRequest. Image is nil when the
// tile could not be produced; Err then says why, for logging only.
type TileResult struct {
	Request   TileRequest
	Timestamp int64
	URL       string
	Image     []byte
	Format    string
	Err       error
}

// Missing reports whether the result carries the absence marker.
func (r TileResult) Missing() bool {
	return r.Image == nil
}

// Location is a place to geocode when looking up the tile that covers it.
type Location struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

// Key returns a canonical string key for this location.
func (l Location) Key() string {
	return l.City + ":" + l.Country
}

// TimestampStats describes the cache state for diagnostics.
type TimestampStats struct {
	Timestamps      TimestampList `json:"timestamps"`
	FetchedAt       time.Time     `json:"fetchedAt"`
	Age             time.Duration `json:"age"`
	Refreshes       uint64        `json:"refreshes"`
	RefreshFailures uint64        `json:"refreshFailures"`
}
