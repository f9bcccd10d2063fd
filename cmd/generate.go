package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phototrack/phototrack/internal/geocache"
	"github.com/phototrack/phototrack/internal/geocode"
	"github.com/phototrack/phototrack/internal/gpx"
	"github.com/phototrack/phototrack/internal/model"
	"github.com/phototrack/phototrack/internal/photo"
)

var generateCmd = &cobra.Command{
	Use:   "generate <photoDir> [outDir]",
	Short: "Generate a GPX track from geotagged photos",
	Long:  "Reads GPS positions and capture times from the photos in a directory, reverse-geocodes each point, and writes a GPX track. Resolved places are cached on disk across runs.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		anonymize, _ := cmd.Flags().GetBool("anonymize")

		photoDir := args[0]
		outDir := photoDir
		if len(args) == 2 {
			outDir = args[1]
		}
		if _, err := os.Stat(photoDir); err != nil {
			return eris.Wrapf(err, "generate: photo directory %s", photoDir)
		}

		runID := uuid.New().String()
		log := zap.L().With(zap.String("run_id", runID))
		log.Info("generate starting",
			zap.String("photo_dir", photoDir),
			zap.Bool("anonymize", anonymize),
		)

		captures, scanStats, err := photo.ScanDir(ctx, photoDir, photo.GenerateExts)
		if err != nil {
			return err
		}
		if len(captures) == 0 {
			return eris.Errorf("generate: no geotagged photos with capture time in %s", photoDir)
		}

		cache := geocache.New(cfg.Cache.Path,
			geocache.WithLoadTimeout(cfg.Cache.LoadTimeout()),
			geocache.WithSaveTimeout(cfg.Cache.SaveTimeout()),
		)
		cache.Load()

		client := geocode.NewClient(cfg.Geocode.BaseURL,
			geocode.WithUserAgent(cfg.Geocode.UserAgent),
			geocode.WithLanguage(cfg.Geocode.Language),
			geocode.WithTimeout(cfg.Geocode.Timeout()),
			geocode.WithRequestInterval(cfg.Geocode.RequestInterval()),
		)
		resolver := geocode.NewResolver(client)
		batch := geocode.NewBatch(cache, resolver, cfg.Cache.RadiusKM)

		coords := make([]geocode.Coordinate, len(captures))
		for i, c := range captures {
			coords[i] = geocode.Coordinate{Index: i, Lat: c.Lat, Lon: c.Lon}
		}
		places := batch.ResolveAll(ctx, coords, anonymize)

		points := make([]model.TrackPoint, len(captures))
		for i, c := range captures {
			rec := places[i]
			lat, lon := c.Lat, c.Lon
			if rec.Anonymized {
				// Anonymized records carry a representative city-center
				// point in place of the precise photo position.
				lat, lon = rec.Lat, rec.Lon
			}
			points[i] = model.TrackPoint{
				Lat:         lat,
				Lon:         lon,
				Time:        c.Time,
				Altitude:    c.Altitude,
				Name:        filepath.Base(c.Path),
				City:        rec.City,
				State:       rec.State,
				Country:     rec.Country,
				CountryCode: rec.CountryCode,
			}
		}
		sort.SliceStable(points, func(i, j int) bool {
			return points[i].Time.Before(points[j].Time)
		})

		if err := cache.Save(); err != nil {
			log.Warn("final cache save failed", zap.Error(err))
		}

		folder := filepath.Base(filepath.Clean(photoDir))
		outPath, err := versionedPath(outDir, folder, anonymize)
		if err != nil {
			return err
		}
		f, err := os.Create(outPath)
		if err != nil {
			return eris.Wrapf(err, "generate: create %s", outPath)
		}
		if err := gpx.Write(f, folder, points); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrapf(err, "generate: close %s", outPath)
		}

		cacheStats := cache.Stats()
		log.Info("generate complete",
			zap.String("output", outPath),
			zap.Int("points", len(points)),
			zap.Int("cache_hits", cacheStats.Hits),
			zap.Int("cache_misses", cacheStats.Misses),
			zap.Int("fallbacks", resolver.Fallbacks()),
		)

		fmt.Println("=== Track Generation ===")
		fmt.Printf("Photos scanned:     %d\n", scanStats.Scanned)
		fmt.Printf("Track points:       %d\n", len(points))
		fmt.Printf("Skipped (no GPS):   %d\n", scanStats.NoGPS)
		fmt.Printf("Skipped (no date):  %d\n", scanStats.NoTime)
		fmt.Printf("Skipped (errors):   %d\n", scanStats.Errors)
		fmt.Printf("Cache hits:         %d\n", cacheStats.Hits)
		fmt.Printf("Cache misses:       %d\n", cacheStats.Misses)
		fmt.Printf("Geocode fallbacks:  %d\n", resolver.Fallbacks())
		fmt.Printf("Output:             %s\n", outPath)

		return nil
	},
}

// versionedPath picks gps_track_<folder>[_anonymized].gpx under dir,
// appending _v2, _v3, ... rather than overwriting an earlier track.
func versionedPath(dir, folder string, anonymized bool) (string, error) {
	base := "gps_track_" + folder
	if anonymized {
		base += "_anonymized"
	}

	candidate := filepath.Join(dir, base+".gpx")
	for v := 2; ; v++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil {
			return "", eris.Wrapf(err, "generate: stat %s", candidate)
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_v%d.gpx", base, v))
	}
}

func init() {
	generateCmd.Flags().Bool("anonymize", false, "replace precise places with city-center coordinates")
	rootCmd.AddCommand(generateCmd)
}
