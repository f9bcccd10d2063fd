package geocode

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/phototrack/phototrack/internal/model"
)

// provider is the slice of the Nominatim client the resolver needs.
type provider interface {
	Reverse(ctx context.Context, lat, lon float64, zoom int) (model.PlaceRecord, error)
	Forward(ctx context.Context, query string) (lat, lon float64, err error)
}

// Resolver performs cascading reverse geocoding. Resolve never returns
// an error: every provider failure degrades to the next tier and
// ultimately to a coordinate-labeled fallback record, so callers always
// get a usable place.
type Resolver struct {
	client    provider
	fallbacks int
}

// NewResolver creates a Resolver on top of a Nominatim client.
func NewResolver(client provider) *Resolver {
	return &Resolver{client: client}
}

// tiers is the fixed cascade order, finest to coarsest.
var tiers = []int{ZoomStreet, ZoomRegion, ZoomCountry}

// Resolve reverse-geocodes a coordinate. Each tier succeeds only when it
// yields a non-empty city name; when all three fail, a terminal fallback
// record labels the place with the raw coordinate. With anonymize set, a
// successful resolution has its coordinate replaced by the city centroid
// when the forward lookup succeeds.
func (r *Resolver) Resolve(ctx context.Context, lat, lon float64, anonymize bool) model.PlaceRecord {
	log := zap.L().With(
		zap.String("component", "geocode"),
		zap.Float64("lat", lat),
		zap.Float64("lon", lon),
	)

	var last model.PlaceRecord
	for _, zoom := range tiers {
		rec, err := r.client.Reverse(ctx, lat, lon, zoom)
		if err != nil {
			log.Warn("reverse geocode tier failed", zap.Int("zoom", zoom), zap.Error(err))
			continue
		}
		last = rec
		if rec.City == "" {
			log.Debug("reverse geocode tier returned no city", zap.Int("zoom", zoom))
			continue
		}
		if anonymize {
			rec = r.Anonymize(ctx, rec)
		}
		return rec
	}

	// Terminal fallback: label the place with the coordinate itself.
	r.fallbacks++
	rec := model.PlaceRecord{
		City:        fmt.Sprintf("GPS %.4f, %.4f", lat, lon),
		State:       last.State,
		Country:     last.Country,
		CountryCode: last.CountryCode,
		Found:       true,
		Lat:         lat,
		Lon:         lon,
	}
	if rec.Country == "" {
		rec.Country = "Unknown"
	}
	log.Info("all tiers failed, using GPS fallback label", zap.String("city", rec.City))
	return rec
}

// Anonymize replaces the record's coordinate with the centroid of its
// place via a forward geocode. Best effort: on lookup failure the
// original coordinates are kept and Anonymized stays false. A record
// already anonymized is returned unchanged.
func (r *Resolver) Anonymize(ctx context.Context, rec model.PlaceRecord) model.PlaceRecord {
	if rec.Anonymized || rec.City == "" {
		return rec
	}

	query := anonymizeQuery(rec)
	lat, lon, err := r.client.Forward(ctx, query)
	if err != nil {
		zap.L().Warn("anonymization forward lookup failed, keeping exact coordinates",
			zap.String("component", "geocode"),
			zap.String("query", query),
			zap.Error(err),
		)
		return rec
	}

	rec.Lat = lat
	rec.Lon = lon
	rec.Anonymized = true
	return rec
}

// Fallbacks reports how many terminal coordinate-label fallbacks this
// resolver produced.
func (r *Resolver) Fallbacks() int { return r.fallbacks }

// anonymizeQuery composes the forward-geocode query, omitting empty
// parts.
func anonymizeQuery(rec model.PlaceRecord) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{rec.City, rec.State, rec.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
