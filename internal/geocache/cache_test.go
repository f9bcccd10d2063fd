package geocache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phototrack/phototrack/internal/model"
)

func tempCache(t *testing.T) *Cache {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "geocoding_cache.json"))
}

func record(city string, lat, lon float64) model.PlaceRecord {
	return model.PlaceRecord{
		City:    city,
		Country: "France",
		Found:   true,
		Lat:     lat,
		Lon:     lon,
	}
}

func TestKey_Quantization(t *testing.T) {
	assert.Equal(t, "45.764043,4.835659", Key(45.7640431, 4.8356592))
	assert.Equal(t, "-12.500000,7.000000", Key(-12.5, 7))
}

func TestCache_FindNearby_RadiusCorrect(t *testing.T) {
	c := tempCache(t)
	c.Add(45.764043, 4.835659, record("Lyon", 45.764043, 4.835659))

	// ~2 km away: a hit.
	rec, key, ok := c.FindNearby(45.78, 4.84, 5)
	require.True(t, ok)
	assert.Equal(t, "Lyon", rec.City)
	assert.Equal(t, "45.764043,4.835659", key)

	// ~100 km away: a miss.
	_, _, ok = c.FindNearby(46.6, 5.9, 5)
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Hits)
	assert.Equal(t, 1, stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
}

func TestCache_FindNearby_EmptyCacheMisses(t *testing.T) {
	c := tempCache(t)
	_, _, ok := c.FindNearby(0, 0, 5)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Stats().Misses)
}

func TestCache_Add_OverwritesSameKey(t *testing.T) {
	c := tempCache(t)
	c.Add(45.764043, 4.835659, record("Old", 45.764043, 4.835659))
	c.Add(45.764043, 4.835659, record("New", 45.764043, 4.835659))

	assert.Equal(t, 1, c.Len())
	rec, _, ok := c.FindNearby(45.764043, 4.835659, 1)
	require.True(t, ok)
	assert.Equal(t, "New", rec.City)
}

func TestCache_Put_RewritesByKey(t *testing.T) {
	c := tempCache(t)
	key := c.Add(45.764043, 4.835659, record("Lyon", 45.764043, 4.835659))

	anon := record("Lyon", 45.75, 4.85)
	anon.Anonymized = true
	c.Put(key, anon)

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.True(t, got.Anonymized)
	assert.Equal(t, 45.75, got.Lat)
}

func TestCache_SaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	c := New(path)
	c.Add(45.764043, 4.835659, record("Lyon", 45.764043, 4.835659))
	c.Add(43.604652, 1.444209, record("Toulouse", 43.604652, 1.444209))
	require.NoError(t, c.Save())

	fresh := New(path)
	fresh.Load()
	assert.Equal(t, 2, fresh.Len())

	rec, _, ok := fresh.FindNearby(45.76, 4.83, 5)
	require.True(t, ok)
	assert.Equal(t, "Lyon", rec.City)
}

func TestCache_Load_MissingFile(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "nope.json"))
	c.Load()
	assert.Equal(t, 0, c.Len())
}

func TestCache_Load_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	c := New(path)
	c.Load()
	assert.Equal(t, 0, c.Len())

	// A corrupt store must not prevent saving fresh results.
	c.Add(45.764043, 4.835659, record("Lyon", 45.764043, 4.835659))
	require.NoError(t, c.Save())

	fresh := New(path)
	fresh.Load()
	assert.Equal(t, 1, fresh.Len())
}

func TestCache_Save_MergesConcurrentWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	// Two instances loaded from the same empty store.
	a := New(path)
	a.Load()
	b := New(path)
	b.Load()

	a.Add(45.764043, 4.835659, record("Lyon", 45.764043, 4.835659))
	b.Add(43.604652, 1.444209, record("Toulouse", 43.604652, 1.444209))

	require.NoError(t, a.Save())
	require.NoError(t, b.Save())

	// Neither instance's exclusively-added key may be lost.
	fresh := New(path)
	fresh.Load()
	assert.Equal(t, 2, fresh.Len())
	_, ok := fresh.Get("45.764043,4.835659")
	assert.True(t, ok)
	_, ok = fresh.Get("43.604652,1.444209")
	assert.True(t, ok)
}

func TestCache_Save_InMemoryWinsOnCollision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	a := New(path)
	a.Add(45.764043, 4.835659, record("Disk", 45.764043, 4.835659))
	require.NoError(t, a.Save())

	b := New(path)
	b.Load()
	b.Add(45.764043, 4.835659, record("Memory", 45.764043, 4.835659))
	require.NoError(t, b.Save())

	fresh := New(path)
	fresh.Load()
	rec, ok := fresh.Get("45.764043,4.835659")
	require.True(t, ok)
	assert.Equal(t, "Memory", rec.City)
}

func TestCache_SaveLoad_PreservesUnknownRecordFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	seed := `{
		"45.764043,4.835659": {
			"city": "Lyon", "state": "", "country": "France",
			"country_code": "FR", "found": true,
			"lat": 45.764043, "lon": 4.835659,
			"future_field": {"nested": [1, 2, 3]}
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	c := New(path)
	c.Load()
	require.NoError(t, c.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.JSONEq(t, `{"nested":[1,2,3]}`, string(raw["45.764043,4.835659"]["future_field"]))
}

func TestCache_Load_SkipsMalformedKeysInScanButKeepsThem(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	seed := `{
		"not-a-coordinate": {"city": "Ghost", "country": "Unknown", "country_code": "", "state": "", "found": true, "lat": 0, "lon": 0},
		"45.764043,4.835659": {"city": "Lyon", "country": "France", "country_code": "FR", "state": "", "found": true, "lat": 45.764043, "lon": 4.835659}
	}`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	c := New(path)
	c.Load()
	assert.Equal(t, 2, c.Len())

	// Scan only ever returns the parseable entry.
	rec, _, ok := c.FindNearby(45.76, 4.83, 5)
	require.True(t, ok)
	assert.Equal(t, "Lyon", rec.City)

	// The malformed key still survives a save.
	require.NoError(t, c.Save())
	fresh := New(path)
	fresh.Load()
	_, ok = fresh.Get("not-a-coordinate")
	assert.True(t, ok)
}

func TestCache_Save_AbandonsWriteWhenLockHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	seed := New(path)
	seed.Add(45.764043, 4.835659, record("Lyon", 45.764043, 4.835659))
	require.NoError(t, seed.Save())
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	// Another holder keeps the exclusive lock for the whole attempt.
	holder := flock.New(path + ".lock")
	locked, err := holder.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer holder.Unlock() //nolint:errcheck

	c := New(path,
		WithLoadTimeout(200*time.Millisecond),
		WithSaveTimeout(200*time.Millisecond),
	)
	c.Load()
	c.Add(43.604652, 1.444209, record("Toulouse", 43.604652, 1.444209))

	// The write is abandoned, not failed, and the store is untouched.
	require.NoError(t, c.Save())
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCache_Load_FallsBackToUnlockedRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	seed := New(path)
	seed.Add(45.764043, 4.835659, record("Lyon", 45.764043, 4.835659))
	require.NoError(t, seed.Save())

	holder := flock.New(path + ".lock")
	locked, err := holder.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer holder.Unlock() //nolint:errcheck

	// The shared lock cannot be acquired; the read proceeds without it.
	c := New(path, WithLoadTimeout(200*time.Millisecond))
	c.Load()
	assert.Equal(t, 1, c.Len())

	rec, _, ok := c.FindNearby(45.764043, 4.835659, 1)
	require.True(t, ok)
	assert.Equal(t, "Lyon", rec.City)
}
