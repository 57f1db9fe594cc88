package store

import (
	"container/list"
	"sync"
	"time"

	"github.com/i474232898/radar-overlay/internal/radar"
)

var _ radar.TileStore = (*MemoryStore)(nil)

type tileEntry struct {
	key      string
	data     []byte
	storedAt time.Time
}

// MemoryStore is a concurrency-safe in-memory tile store. Tiles are keyed by
// timestamp and coordinates, so a stored tile never goes out of date; the
// limits only bound memory.
type MemoryStore struct {
	mu sync.Mutex

	// key -> element in order; front is oldest.
	data  map[string]*list.Element
	order *list.List

	// retention configuration
	maxEntries int           // max number of tiles kept
	maxAge     time.Duration // optional max age for tiles

	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxEntries is <= 0, it is treated as unlimited.
func NewMemoryStore(maxEntries int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// SaveTile stores a tile and enforces retention.
func (s *MemoryStore) SaveTile(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if el, ok := s.data[key]; ok {
		s.order.Remove(el)
	}
	s.data[key] = s.order.PushBack(&tileEntry{key: key, data: data, storedAt: now})

	// Enforce retention by count.
	for s.maxEntries > 0 && s.order.Len() > s.maxEntries {
		s.removeLocked(s.order.Front())
	}

	s.expireLocked(now)
}

// GetTile returns a stored tile if present and not older than maxAge.
func (s *MemoryStore) GetTile(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.data[key]
	if !ok {
		return nil, false
	}
	ent := el.Value.(*tileEntry)
	if s.maxAge > 0 && s.now().Sub(ent.storedAt) > s.maxAge {
		s.removeLocked(el)
		return nil, false
	}
	return ent.data, true
}

// Len returns the number of stored tiles.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// expireLocked drops entries older than maxAge. Entries are in insertion
// order, so it stops at the first one still inside the window.
func (s *MemoryStore) expireLocked(now time.Time) {
	if s.maxAge <= 0 {
		return
	}
	cutoff := now.Add(-s.maxAge)
	for el := s.order.Front(); el != nil; el = s.order.Front() {
		if !el.Value.(*tileEntry).storedAt.Before(cutoff) {
			break
		}
		s.removeLocked(el)
	}
}

func (s *MemoryStore) removeLocked(el *list.Element) {
	ent := s.order.Remove(el).(*tileEntry)
	delete(s.data, ent.key)
}
