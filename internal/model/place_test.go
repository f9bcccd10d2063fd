package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceRecord_RoundTrip(t *testing.T) {
	rec := PlaceRecord{
		City:        "Lyon",
		State:       "Auvergne-Rhône-Alpes",
		Country:     "France",
		CountryCode: "FR",
		Found:       true,
		Lat:         45.764043,
		Lon:         4.835659,
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var back PlaceRecord
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, rec, back)
}

func TestPlaceRecord_AnonymizedOmittedWhenFalse(t *testing.T) {
	data, err := json.Marshal(PlaceRecord{City: "Oslo", Found: true})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "anonymized")

	data, err = json.Marshal(PlaceRecord{City: "Oslo", Found: true, Anonymized: true})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"anonymized":true`)
}

func TestPlaceRecord_PreservesUnknownFields(t *testing.T) {
	in := `{
		"city": "Bergen",
		"state": "",
		"country": "Norway",
		"country_code": "NO",
		"found": true,
		"lat": 60.39,
		"lon": 5.32,
		"resolved_by": "v3-experimental",
		"confidence": 0.92
	}`

	var rec PlaceRecord
	require.NoError(t, json.Unmarshal([]byte(in), &rec))
	assert.Equal(t, "Bergen", rec.City)

	out, err := json.Marshal(rec)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &raw))
	assert.JSONEq(t, `"v3-experimental"`, string(raw["resolved_by"]))
	assert.JSONEq(t, `0.92`, string(raw["confidence"]))
	assert.JSONEq(t, `"Bergen"`, string(raw["city"]))
}

func TestPlaceRecord_KnownFieldWinsOverStaleExtra(t *testing.T) {
	var rec PlaceRecord
	require.NoError(t, json.Unmarshal([]byte(`{"city":"Old","found":true,"custom":1}`), &rec))

	rec.City = "New"
	out, err := json.Marshal(rec)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &raw))
	assert.JSONEq(t, `"New"`, string(raw["city"]))
	assert.JSONEq(t, `1`, string(raw["custom"]))
}
