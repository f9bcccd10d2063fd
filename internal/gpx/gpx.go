// Package gpx reads and writes the GPX 1.1 track documents produced and
// consumed by phototrack. Parsing tolerates both namespaced and
// namespace-free documents; writing emits the namespaced form.
package gpx

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/phototrack/phototrack/internal/model"
)

const (
	gpxNamespace = "http://www.topografix.com/GPX/1/1"
	xsiNamespace = "http://www.w3.org/2001/XMLSchema-instance"
	schemaLoc    = "http://www.topografix.com/GPX/1/1 http://www.topografix.com/GPX/1/1/gpx.xsd"
)

// trkpt is the wire form of a track point. Unqualified element names
// match regardless of the document's namespace.
type trkpt struct {
	Lat  float64  `xml:"lat,attr"`
	Lon  float64  `xml:"lon,attr"`
	Ele  *float64 `xml:"ele,omitempty"`
	Time string   `xml:"time,omitempty"`
	Name string   `xml:"name,omitempty"`
	Desc string   `xml:"desc,omitempty"`
}

// Parse extracts all track points carrying a timestamp from a GPX
// document. Points without a parseable time cannot be synchronized and
// are skipped; the skip count is returned for the run summary.
func Parse(r io.Reader) (points []model.TrackPoint, skipped int, err error) {
	log := zap.L().With(zap.String("component", "gpx"))
	decoder := xml.NewDecoder(r)

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, eris.Wrap(err, "gpx: read token")
		}

		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "trkpt" {
			continue
		}

		var raw trkpt
		if err := decoder.DecodeElement(&raw, &se); err != nil {
			return nil, 0, eris.Wrap(err, "gpx: decode trkpt")
		}

		ts, err := parseTime(raw.Time)
		if err != nil {
			log.Warn("track point without usable timestamp, skipping",
				zap.Float64("lat", raw.Lat),
				zap.Float64("lon", raw.Lon),
				zap.String("time", raw.Time),
			)
			skipped++
			continue
		}

		p := model.TrackPoint{
			Lat:      raw.Lat,
			Lon:      raw.Lon,
			Time:     ts,
			Altitude: raw.Ele,
			Name:     raw.Name,
		}
		p.City, p.State, p.Country, p.CountryCode = ParseDesc(raw.Desc)
		points = append(points, p)
	}

	return points, skipped, nil
}

// parseTime accepts ISO-8601 UTC timestamps with or without the
// trailing Z.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, eris.New("gpx: empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", strings.TrimSuffix(s, "Z"), time.UTC)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "gpx: parse time %q", s)
	}
	return t, nil
}

// ParseDesc splits a point description of the form
// "City, State, Country (CODE)" or "City, Country (CODE)" into its
// parts. Missing pieces come back empty.
func ParseDesc(desc string) (city, state, country, countryCode string) {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return "", "", "", ""
	}

	if open := strings.LastIndex(desc, "("); open >= 0 {
		if end := strings.LastIndex(desc, ")"); end > open {
			countryCode = strings.TrimSpace(desc[open+1 : end])
			desc = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(desc[:open]), ","))
		}
	}

	var parts []string
	for _, p := range strings.Split(desc, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	switch len(parts) {
	case 0:
	case 1:
		city = parts[0]
	case 2:
		city, country = parts[0], parts[1]
	default:
		city, state, country = parts[0], parts[1], parts[2]
	}
	return city, state, country, countryCode
}

// FormatDesc renders the description for a resolved place, omitting the
// state segment when absent.
func FormatDesc(city, state, country, countryCode string) string {
	if state != "" {
		return fmt.Sprintf("%s, %s, %s (%s)", city, state, country, countryCode)
	}
	return fmt.Sprintf("%s, %s (%s)", city, country, countryCode)
}

// wire document for writing.
type gpxDoc struct {
	XMLName   xml.Name `xml:"gpx"`
	Version   string   `xml:"version,attr"`
	Creator   string   `xml:"creator,attr"`
	Xmlns     string   `xml:"xmlns,attr"`
	XmlnsXSI  string   `xml:"xmlns:xsi,attr"`
	SchemaLoc string   `xml:"xsi:schemaLocation,attr"`
	Metadata  metadata `xml:"metadata"`
	Trk       trk      `xml:"trk"`
}

type metadata struct {
	Name string `xml:"name"`
	Desc string `xml:"desc"`
}

type trk struct {
	Name   string `xml:"name"`
	Trkseg trkseg `xml:"trkseg"`
}

type trkseg struct {
	Points []trkpt `xml:"trkpt"`
}

// Write emits a GPX 1.1 document for the given track points.
func Write(w io.Writer, trackName string, points []model.TrackPoint) error {
	doc := gpxDoc{
		Version:   "1.1",
		Creator:   "phototrack",
		Xmlns:     gpxNamespace,
		XmlnsXSI:  xsiNamespace,
		SchemaLoc: schemaLoc,
		Metadata: metadata{
			Name: trackName,
			Desc: "Track generated from geotagged photos",
		},
		Trk: trk{Name: trackName},
	}

	for _, p := range points {
		raw := trkpt{
			Lat:  p.Lat,
			Lon:  p.Lon,
			Ele:  p.Altitude,
			Name: p.Name,
		}
		if !p.Time.IsZero() {
			raw.Time = p.Time.UTC().Format(time.RFC3339)
		}
		if p.City != "" || p.Country != "" {
			raw.Desc = FormatDesc(p.City, p.State, p.Country, p.CountryCode)
		}
		doc.Trk.Trkseg.Points = append(doc.Trk.Trkseg.Points, raw)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return eris.Wrap(err, "gpx: write header")
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return eris.Wrap(err, "gpx: encode document")
	}
	if err := enc.Close(); err != nil {
		return eris.Wrap(err, "gpx: flush encoder")
	}
	_, err := io.WriteString(w, "\n")
	return eris.Wrap(err, "gpx: write trailing newline")
}
