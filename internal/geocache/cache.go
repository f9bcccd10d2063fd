// Package geocache implements the persistent reverse-geocoding cache
// shared by concurrent phototrack invocations. Entries are keyed by a
// quantized coordinate and looked up by great-circle radius; saves merge
// on top of whatever another process persisted in the meantime.
package geocache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/phototrack/phototrack/internal/model"
)

// lockRetryInterval is how often lock acquisition is retried until the
// configured timeout elapses.
const lockRetryInterval = 100 * time.Millisecond

// Cache is a persistent map of quantized coordinate keys to place
// records. It is not safe for concurrent use within a process; the
// cross-process hazard on the backing file is handled by an advisory
// lock around load and save.
type Cache struct {
	path        string
	loadTimeout time.Duration
	saveTimeout time.Duration

	entries map[string]entry
	hits    int
	misses  int
}

// entry pairs a record with the coordinate parsed from its key, so
// radius scans do not reparse on every lookup. Entries whose key fails
// to parse stay in the map (they still merge on save) but are skipped
// by FindNearby.
type entry struct {
	rec      model.PlaceRecord
	lat, lon float64
	valid    bool
}

// Stats contains cache lookup statistics for the run summary.
type Stats struct {
	Entries int     `json:"entries"`
	Hits    int     `json:"hits"`
	Misses  int     `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Option configures a Cache.
type Option func(*Cache)

// WithLoadTimeout sets the lock acquisition timeout for Load.
func WithLoadTimeout(d time.Duration) Option {
	return func(c *Cache) { c.loadTimeout = d }
}

// WithSaveTimeout sets the lock acquisition timeout for Save.
func WithSaveTimeout(d time.Duration) Option {
	return func(c *Cache) { c.saveTimeout = d }
}

// New creates a Cache backed by the given file path. The file is not
// touched until Load or Save is called.
func New(path string, opts ...Option) *Cache {
	c := &Cache{
		path:        path,
		loadTimeout: 30 * time.Second,
		saveTimeout: 60 * time.Second,
		entries:     make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key returns the quantized cache key for a coordinate.
func Key(lat, lon float64) string {
	return fmt.Sprintf("%.6f,%.6f", lat, lon)
}

// parseKey recovers the coordinate a key was built from.
func parseKey(key string) (lat, lon float64, ok bool) {
	parts := strings.Split(key, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(parts[0], 64)
	lon, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

// Load reads persisted state from disk, replacing the in-memory map. It
// never fails the caller: a missing or corrupt file yields an empty
// cache, and if the advisory lock cannot be acquired within the load
// timeout the file is read without it rather than blocking a reader
// forever.
func (c *Cache) Load() {
	log := zap.L().With(zap.String("component", "geocache"), zap.String("path", c.path))

	if _, err := os.Stat(c.path); err != nil {
		c.entries = make(map[string]entry)
		return
	}

	lock := flock.New(c.lockPath())
	ctx, cancel := context.WithTimeout(context.Background(), c.loadTimeout)
	locked, err := lock.TryRLockContext(ctx, lockRetryInterval)
	cancel()
	if err != nil || !locked {
		log.Warn("cache lock not acquired for load, reading unlocked",
			zap.Duration("timeout", c.loadTimeout))
	} else {
		defer func() { _ = lock.Unlock() }()
	}

	records, err := readStore(c.path)
	if err != nil {
		log.Warn("cache file unreadable, starting fresh", zap.Error(err))
		c.entries = make(map[string]entry)
		return
	}

	c.entries = make(map[string]entry, len(records))
	for key, rec := range records {
		c.entries[key] = newEntry(key, rec)
	}
	log.Debug("cache loaded", zap.Int("entries", len(c.entries)))
}

// FindNearby scans all entries and returns the first one within
// radiusKM of the query coordinate, along with its cache key. First
// match wins; no nearest-of-many tie-break is applied.
func (c *Cache) FindNearby(lat, lon, radiusKM float64) (model.PlaceRecord, string, bool) {
	for key, e := range c.entries {
		if !e.valid {
			continue
		}
		if DistanceKM(lat, lon, e.lat, e.lon) <= radiusKM {
			c.hits++
			return e.rec, key, true
		}
	}
	c.misses++
	return model.PlaceRecord{}, "", false
}

// Add inserts a record under the quantized key for the query coordinate,
// overwriting any entry with the exact same key, and returns the key.
func (c *Cache) Add(lat, lon float64, rec model.PlaceRecord) string {
	key := Key(lat, lon)
	c.entries[key] = newEntry(key, rec)
	return key
}

// Put replaces the record stored under an existing key. It is used for
// the one-time anonymization rewrite of a cached record.
func (c *Cache) Put(key string, rec model.PlaceRecord) {
	c.entries[key] = newEntry(key, rec)
}

// Get returns the record stored under the exact key.
func (c *Cache) Get(key string) (model.PlaceRecord, bool) {
	e, ok := c.entries[key]
	return e.rec, ok
}

// Len returns the number of entries currently held.
func (c *Cache) Len() int { return len(c.entries) }

// Keys returns every cache key, unordered.
func (c *Cache) Keys() []string {
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Stats returns lookup statistics accumulated since construction.
func (c *Cache) Stats() Stats {
	s := Stats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// Save persists the cache. It re-reads the store under an exclusive
// cross-process lock, shallow-merges the in-memory map on top (in-memory
// wins on key collision) and atomically rewrites the file, so no
// concurrent invocation's additions are silently lost. If the lock
// cannot be acquired within the save timeout the write is abandoned with
// a warning; the file is never truncated without the lock held.
func (c *Cache) Save() error {
	log := zap.L().With(zap.String("component", "geocache"), zap.String("path", c.path))

	lock := flock.New(c.lockPath())
	ctx, cancel := context.WithTimeout(context.Background(), c.saveTimeout)
	locked, err := lock.TryLockContext(ctx, lockRetryInterval)
	cancel()
	if err != nil || !locked {
		log.Warn("cache lock not acquired for save, abandoning write",
			zap.Duration("timeout", c.saveTimeout), zap.Error(err))
		return nil
	}
	defer func() { _ = lock.Unlock() }()

	// Pick up entries another process persisted since our load.
	merged, err := readStore(c.path)
	if err != nil {
		log.Warn("cache file unreadable at save, overwriting", zap.Error(err))
		merged = nil
	}
	if merged == nil {
		merged = make(map[string]model.PlaceRecord, len(c.entries))
	}
	for key, e := range c.entries {
		merged[key] = e.rec
	}

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return eris.Wrap(err, "geocache: marshal store")
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".geocache-*")
	if err != nil {
		return eris.Wrap(err, "geocache: create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return eris.Wrap(err, "geocache: write temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrap(err, "geocache: close temp file")
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrap(err, "geocache: replace store")
	}

	log.Debug("cache saved", zap.Int("entries", len(merged)))
	return nil
}

func (c *Cache) lockPath() string { return c.path + ".lock" }

func newEntry(key string, rec model.PlaceRecord) entry {
	lat, lon, ok := parseKey(key)
	return entry{rec: rec, lat: lat, lon: lon, valid: ok}
}

// readStore reads and decodes the persisted map. A missing file is an
// empty map; a corrupt file is an error for the caller to degrade on.
func readStore(path string) (map[string]model.PlaceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]model.PlaceRecord), nil
		}
		return nil, eris.Wrap(err, "geocache: read store")
	}
	if len(data) == 0 {
		return make(map[string]model.PlaceRecord), nil
	}
	var records map[string]model.PlaceRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, eris.Wrap(err, "geocache: decode store")
	}
	if records == nil {
		records = make(map[string]model.PlaceRecord)
	}
	return records, nil
}
