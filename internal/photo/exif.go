package photo

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rwcarlsen/goexif/exif"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// scanConcurrency bounds parallel EXIF reads. Local disk only, so a
// modest limit avoids descriptor pressure without throttling.
const scanConcurrency = 8

// Metadata is what a photo's embedded EXIF yields. HasGPS and a zero
// Time distinguish absence from a read failure.
type Metadata struct {
	Lat      float64
	Lon      float64
	HasGPS   bool
	Altitude *float64
	Time     time.Time
}

// ReadMetadata extracts GPS position, altitude, and capture time from
// a single file. Missing GPS or timestamp is not an error; an
// undecodable file is.
func ReadMetadata(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, eris.Wrapf(err, "photo: open %s", path)
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return Metadata{}, eris.Wrapf(err, "photo: decode exif %s", path)
	}

	var md Metadata
	if lat, lon, err := x.LatLong(); err == nil {
		md.Lat, md.Lon, md.HasGPS = lat, lon, true
		md.Altitude = altitude(x)
	}
	if ts, err := x.DateTime(); err == nil {
		md.Time = ts
	}
	return md, nil
}

// altitude reads GPSAltitude honoring the below-sea-level reference
// flag. Returns nil when the tag is absent or malformed.
func altitude(x *exif.Exif) *float64 {
	tag, err := x.Get(exif.GPSAltitude)
	if err != nil {
		return nil
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return nil
	}
	alt := float64(num) / float64(den)
	if ref, err := x.Get(exif.GPSAltitudeRef); err == nil {
		if v, err := ref.Int(0); err == nil && v == 1 {
			alt = -alt
		}
	}
	return &alt
}

// Capture is a geotagged, timestamped photo ready for track
// generation.
type Capture struct {
	Path     string
	Lat      float64
	Lon      float64
	Altitude *float64
	Time     time.Time
}

// ScanStats summarizes a directory scan for the run report.
type ScanStats struct {
	Scanned int
	NoGPS   int
	NoTime  int
	Errors  int
}

// ScanDir reads every accepted photo under dir in parallel and returns
// the captures that carry both a GPS fix and a timestamp, in file-name
// order. Photos missing either are counted and skipped, never fatal.
func ScanDir(ctx context.Context, dir string, exts []string) ([]Capture, ScanStats, error) {
	log := zap.L().With(zap.String("component", "photo"))

	paths, err := Scan(dir, exts)
	if err != nil {
		return nil, ScanStats{}, err
	}

	results := make([]*Capture, len(paths))
	var mu sync.Mutex
	stats := ScanStats{Scanned: len(paths)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			md, err := ReadMetadata(path)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				log.Warn("unreadable photo, skipping", zap.String("path", path), zap.Error(err))
				stats.Errors++
			case !md.HasGPS:
				log.Debug("photo without GPS, skipping", zap.String("path", path))
				stats.NoGPS++
			case md.Time.IsZero():
				log.Debug("photo without capture time, skipping", zap.String("path", path))
				stats.NoTime++
			default:
				results[i] = &Capture{
					Path:     path,
					Lat:      md.Lat,
					Lon:      md.Lon,
					Altitude: md.Altitude,
					Time:     md.Time,
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, eris.Wrap(err, "photo: scan dir")
	}

	captures := make([]Capture, 0, len(paths))
	for _, c := range results {
		if c != nil {
			captures = append(captures, *c)
		}
	}
	return captures, stats, nil
}
