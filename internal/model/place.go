package model

import "encoding/json"

// PlaceRecord is the result of resolving a coordinate to a place. Lat/Lon
// hold the coordinate associated with the record, which diverges from the
// query coordinate once anonymization has replaced it with a city-center
// point.
type PlaceRecord struct {
	City        string  `json:"city"`
	State       string  `json:"state"`
	Country     string  `json:"country"`
	CountryCode string  `json:"country_code"`
	Found       bool    `json:"found"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Anonymized  bool    `json:"anonymized,omitempty"`

	// extra carries fields written by other (possibly newer) producers of
	// the cache file so a load/merge/save cycle never drops them.
	extra map[string]json.RawMessage
}

// knownPlaceFields are the fields owned by this version of the record.
var knownPlaceFields = map[string]bool{
	"city": true, "state": true, "country": true, "country_code": true,
	"found": true, "lat": true, "lon": true, "anonymized": true,
}

// placeRecordWire mirrors PlaceRecord for plain JSON (de)serialization.
type placeRecordWire struct {
	City        string  `json:"city"`
	State       string  `json:"state"`
	Country     string  `json:"country"`
	CountryCode string  `json:"country_code"`
	Found       bool    `json:"found"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Anonymized  bool    `json:"anonymized,omitempty"`
}

// UnmarshalJSON decodes a persisted record, retaining unknown fields.
func (r *PlaceRecord) UnmarshalJSON(data []byte) error {
	var w placeRecordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = PlaceRecord{
		City:        w.City,
		State:       w.State,
		Country:     w.Country,
		CountryCode: w.CountryCode,
		Found:       w.Found,
		Lat:         w.Lat,
		Lon:         w.Lon,
		Anonymized:  w.Anonymized,
	}
	for k, v := range raw {
		if knownPlaceFields[k] {
			continue
		}
		if r.extra == nil {
			r.extra = make(map[string]json.RawMessage)
		}
		r.extra[k] = v
	}
	return nil
}

// MarshalJSON encodes the record, folding retained unknown fields back in.
func (r PlaceRecord) MarshalJSON() ([]byte, error) {
	w := placeRecordWire{
		City:        r.City,
		State:       r.State,
		Country:     r.Country,
		CountryCode: r.CountryCode,
		Found:       r.Found,
		Lat:         r.Lat,
		Lon:         r.Lon,
		Anonymized:  r.Anonymized,
	}
	if len(r.extra) == 0 {
		return json.Marshal(w)
	}

	base, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.extra {
		merged[k] = v
	}
	return json.Marshal(merged)
}
