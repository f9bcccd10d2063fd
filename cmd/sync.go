package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phototrack/phototrack/internal/gpx"
	"github.com/phototrack/phototrack/internal/photo"
	"github.com/phototrack/phototrack/internal/tracksync"
)

var syncCmd = &cobra.Command{
	Use:   "sync <trackFile> <photoDir>",
	Short: "Write track locations onto photo metadata",
	Long:  "Matches each photo's capture time against the closest track point within the tolerance window and writes that point's GPS position and place names into the photo's metadata.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		backup, _ := cmd.Flags().GetBool("backup")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		trackFile, photoDir := args[0], args[1]

		runID := uuid.New().String()
		log := zap.L().With(zap.String("run_id", runID))
		log.Info("sync starting",
			zap.String("track", trackFile),
			zap.String("photo_dir", photoDir),
			zap.Bool("backup", backup),
			zap.Bool("dry_run", dryRun),
		)

		f, err := os.Open(trackFile)
		if err != nil {
			return eris.Wrapf(err, "sync: open track %s", trackFile)
		}
		points, skippedPoints, err := gpx.Parse(f)
		f.Close()
		if err != nil {
			return err
		}
		if len(points) == 0 {
			return eris.Errorf("sync: no usable track points in %s", trackFile)
		}
		if skippedPoints > 0 {
			log.Warn("track points without timestamps ignored", zap.Int("skipped", skippedPoints))
		}

		paths, err := photo.Scan(photoDir, photo.SyncExts)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return eris.Errorf("sync: no photos in %s", photoDir)
		}

		var opts []photo.WriterOption
		if backup {
			opts = append(opts, photo.WithBackup())
		}
		if dryRun {
			opts = append(opts, photo.WithDryRun())
		}
		writer, err := photo.NewWriter(opts...)
		if err != nil {
			return err
		}
		defer writer.Close()

		tolerance := cfg.Sync.Tolerance()
		var synced, skippedNoDate, skippedTooFar, errored int
		for _, path := range paths {
			if err := ctx.Err(); err != nil {
				return eris.Wrap(err, "sync: interrupted")
			}
			md, err := photo.ReadMetadata(path)
			if err != nil {
				log.Warn("unreadable photo, skipping", zap.String("path", path), zap.Error(err))
				errored++
				continue
			}
			if md.Time.IsZero() {
				log.Debug("photo without capture time, skipping", zap.String("path", path))
				skippedNoDate++
				continue
			}

			match, ok := tracksync.Closest(md.Time, points, tolerance)
			if !ok {
				log.Debug("no track point within tolerance",
					zap.String("path", path),
					zap.Duration("delta", match.Delta),
				)
				skippedTooFar++
				continue
			}

			p := match.Point
			upd := photo.Update{
				Lat:         p.Lat,
				Lon:         p.Lon,
				Altitude:    p.Altitude,
				City:        p.City,
				State:       p.State,
				Country:     p.Country,
				CountryCode: p.CountryCode,
			}
			if err := writer.Apply(path, upd); err != nil {
				log.Warn("metadata write failed", zap.String("path", path), zap.Error(err))
				errored++
				continue
			}
			log.Debug("photo synced",
				zap.String("path", path),
				zap.Duration("delta", match.Delta),
				zap.String("city", p.City),
			)
			synced++
		}

		log.Info("sync complete",
			zap.Int("synced", synced),
			zap.Int("skipped_no_date", skippedNoDate),
			zap.Int("skipped_too_far", skippedTooFar),
			zap.Int("errors", errored),
		)

		fmt.Println("=== Photo Sync ===")
		fmt.Printf("Track points:        %d\n", len(points))
		fmt.Printf("Photos:              %d\n", len(paths))
		fmt.Printf("Synced:              %d\n", synced)
		fmt.Printf("Skipped (no date):   %d\n", skippedNoDate)
		fmt.Printf("Skipped (too far):   %d\n", skippedTooFar)
		fmt.Printf("Errors:              %d\n", errored)
		if dryRun {
			fmt.Println("Dry run: no files were modified.")
		}

		return nil
	},
}

func init() {
	syncCmd.Flags().Bool("backup", false, "copy each photo to <file>.backup before the first write")
	syncCmd.Flags().Bool("dry-run", false, "report matches without writing any file")
	rootCmd.AddCommand(syncCmd)
}
