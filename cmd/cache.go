package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/phototrack/phototrack/internal/geocache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Geocode cache inspection",
	Long:  "Inspect the on-disk geocode cache shared by all runs.",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show geocode cache statistics",
	Long:  "Display entry counts for the on-disk geocode cache.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cache := geocache.New(cfg.Cache.Path,
			geocache.WithLoadTimeout(cfg.Cache.LoadTimeout()),
		)
		cache.Load()

		var anonymized, fallbacks int
		for _, key := range cache.Keys() {
			rec, _ := cache.Get(key)
			if rec.Anonymized {
				anonymized++
			}
			if rec.Country == "Unknown" {
				fallbacks++
			}
		}

		fmt.Println("=== Geocode Cache ===")
		fmt.Printf("Path:             %s\n", cfg.Cache.Path)
		fmt.Printf("Entries:          %d\n", cache.Len())
		fmt.Printf("Anonymized:       %d\n", anonymized)
		fmt.Printf("Fallback labels:  %d\n", fallbacks)

		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd)
	rootCmd.AddCommand(cacheCmd)
}
