package geocode

import (
	"context"

	"go.uber.org/zap"

	"github.com/phototrack/phototrack/internal/geocache"
	"github.com/phototrack/phototrack/internal/model"
)

// Coordinate is one batch input: the caller's index plus the query
// coordinate.
type Coordinate struct {
	Index int
	Lat   float64
	Lon   float64
}

// PlaceResolver is the resolver surface the batch coordinator depends
// on.
type PlaceResolver interface {
	Resolve(ctx context.Context, lat, lon float64, anonymize bool) model.PlaceRecord
	Anonymize(ctx context.Context, rec model.PlaceRecord) model.PlaceRecord
}

// Batch deduplicates coordinates against the cache and resolves the
// remainder through the rate-limited resolver, strictly sequentially.
type Batch struct {
	cache    *geocache.Cache
	resolver PlaceResolver
	radiusKM float64
}

// NewBatch creates a batch coordinator using the given cache radius for
// hit detection.
func NewBatch(cache *geocache.Cache, resolver PlaceResolver, radiusKM float64) *Batch {
	return &Batch{cache: cache, resolver: resolver, radiusKM: radiusKM}
}

// ResolveAll resolves every input coordinate to a place record, keyed by
// the original index. Cache hits are answered first, in input order;
// misses are then resolved sequentially (the provider rate policy
// forbids overlap) and persisted to the cache immediately, so a crash
// mid-batch loses at most the in-flight request. Every input index is
// present in the result.
func (b *Batch) ResolveAll(ctx context.Context, coords []Coordinate, anonymize bool) map[int]model.PlaceRecord {
	log := zap.L().With(zap.String("component", "geocode.batch"))

	results := make(map[int]model.PlaceRecord, len(coords))
	var misses []Coordinate

	for _, c := range coords {
		rec, key, ok := b.cache.FindNearby(c.Lat, c.Lon, b.radiusKM)
		if !ok {
			misses = append(misses, c)
			continue
		}
		// A cached record that predates anonymize mode gets its one-time
		// rewrite now, and the rewrite is persisted so later hits within
		// the same radius are already anonymized.
		if anonymize && rec.City != "" && !rec.Anonymized {
			if anon := b.resolver.Anonymize(ctx, rec); anon.Anonymized {
				rec = anon
				b.cache.Put(key, rec)
			}
		}
		results[c.Index] = rec
	}

	log.Info("cache partition",
		zap.Int("hits", len(results)),
		zap.Int("misses", len(misses)),
	)

	resolved := 0
	for i, c := range misses {
		// A record persisted by an earlier miss in this batch may already
		// cover this coordinate; re-check before going to the network.
		if resolved > 0 {
			if rec, _, ok := b.cache.FindNearby(c.Lat, c.Lon, b.radiusKM); ok {
				results[c.Index] = rec
				continue
			}
		}
		log.Debug("resolving",
			zap.Int("n", i+1),
			zap.Int("of", len(misses)),
			zap.Float64("lat", c.Lat),
			zap.Float64("lon", c.Lon),
		)
		rec := b.resolver.Resolve(ctx, c.Lat, c.Lon, anonymize)
		b.cache.Add(c.Lat, c.Lon, rec)
		if err := b.cache.Save(); err != nil {
			log.Warn("cache save failed, continuing", zap.Error(err))
		}
		results[c.Index] = rec
		resolved++
	}

	return results
}
