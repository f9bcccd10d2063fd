package model

import "time"

// TrackPoint is a single timestamped location sample within a recorded
// track. It is parsed once from a GPX file and held read-only for the
// duration of a synchronization run.
type TrackPoint struct {
	Lat         float64
	Lon         float64
	Time        time.Time
	Altitude    *float64
	Name        string
	City        string
	State       string
	Country     string
	CountryCode string
}
