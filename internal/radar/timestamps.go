package radar

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTimestampTTL is how long a fetched timestamp list stays fresh.
	DefaultTimestampTTL = 300 * time.Second

	// DefaultTimestampTimeout bounds a single timestamp list fetch.
	DefaultTimestampTimeout = 10 * time.Second

	refreshKey = "timestamps"
)

var (
	// ErrParse is returned when a timestamp payload has no usable entries.
	ErrParse = errors.New("no timestamps in payload")
)

// timestampSnapshot is never mutated after publication, so readers always see
// a list together with the time it was fetched.
type timestampSnapshot struct {
	list      TimestampList
	fetchedAt time.Time
}

// TimestampCache holds the most recent timestamp list and refreshes it at most
// once at a time, no matter how many tile requests find it stale.
type TimestampCache struct {
	source  TimestampSource
	ttl     time.Duration
	timeout time.Duration
	now     clock

	snap atomic.Pointer[timestampSnapshot]
	sf   singleflight.Group

	refreshes atomic.Uint64
	failures  atomic.Uint64
}

// NewTimestampCache creates an empty cache. The first Get always refreshes.
// Non-positive ttl/timeout fall back to the defaults.
func NewTimestampCache(source TimestampSource, ttl, timeout time.Duration) *TimestampCache {
	if ttl <= 0 {
		ttl = DefaultTimestampTTL
	}
	if timeout <= 0 {
		timeout = DefaultTimestampTimeout
	}
	c := &TimestampCache{
		source:  source,
		ttl:     ttl,
		timeout: timeout,
		now:     time.Now,
	}
	c.snap.Store(&timestampSnapshot{fetchedAt: time.Unix(0, 0)})
	return c
}

// Get returns the current timestamp list, refreshing it first when stale.
//
// Concurrent callers that find the list stale share one in-flight fetch. A
// failed fetch leaves the cached list and its fetch time untouched, so the
// previous (possibly empty) list is returned and the next call retries.
func (c *TimestampCache) Get(ctx context.Context) TimestampList {
	snap := c.snap.Load()
	if c.fresh(snap) {
		return snap.list
	}

	v, _, _ := c.sf.Do(refreshKey, func() (any, error) {
		return c.refresh(ctx), nil
	})
	return v.(TimestampList)
}

// FetchedAt returns when the cached list was last refreshed successfully.
func (c *TimestampCache) FetchedAt() time.Time {
	return c.snap.Load().fetchedAt
}

// Stats reports the cached list and refresh counters without triggering I/O.
func (c *TimestampCache) Stats() TimestampStats {
	snap := c.snap.Load()
	return TimestampStats{
		Timestamps:      snap.list,
		FetchedAt:       snap.fetchedAt,
		Age:             c.now().Sub(snap.fetchedAt),
		Refreshes:       c.refreshes.Load(),
		RefreshFailures: c.failures.Load(),
	}
}

func (c *TimestampCache) fresh(snap *timestampSnapshot) bool {
	return c.now().Sub(snap.fetchedAt) <= c.ttl
}

// refresh runs inside the singleflight call.
func (c *TimestampCache) refresh(ctx context.Context) TimestampList {
	prev := c.snap.Load()
	// Another flight may have finished between our staleness check and now.
	if c.fresh(prev) {
		return prev.list
	}

	// Waiters share this fetch, so it must not die with the first caller's ctx.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	c.refreshes.Add(1)
	payload, err := c.source.FetchTimestamps(fetchCtx)
	if err != nil {
		c.failures.Add(1)
		log.Printf("timestamps: refresh failed, keeping %d cached entries: %v", len(prev.list), err)
		return prev.list
	}

	list, err := ParseTimestamps(string(payload))
	if err != nil {
		c.failures.Add(1)
		log.Printf("timestamps: refresh returned unusable payload, keeping %d cached entries: %v", len(prev.list), err)
		return prev.list
	}

	fetchedAt := c.now()
	if fetchedAt.Before(prev.fetchedAt) {
		fetchedAt = prev.fetchedAt
	}
	c.snap.Store(&timestampSnapshot{list: list, fetchedAt: fetchedAt})
	log.Printf("timestamps: refreshed %d entries (latest %d)", len(list), list.Latest())
	return list
}

// ParseTimestamps extracts the integers from a bracketed, comma-separated
// payload such as "[100,200,300]". Entries that are not integers are skipped.
func ParseTimestamps(payload string) (TimestampList, error) {
	body := strings.TrimSpace(payload)
	body = strings.TrimPrefix(body, "[")
	body = strings.TrimSuffix(body, "]")

	var list TimestampList
	for _, part := range strings.Split(body, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ts, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		list = append(list, ts)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrParse, truncate(payload, 64))
	}
	return list, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
