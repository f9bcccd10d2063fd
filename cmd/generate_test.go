package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionedPath(t *testing.T) {
	dir := t.TempDir()

	path, err := versionedPath(dir, "vacation", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "gps_track_vacation.gpx"), path)

	path, err = versionedPath(dir, "vacation", true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "gps_track_vacation_anonymized.gpx"), path)
}

func TestVersionedPath_ExistingFilesBumpVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gps_track_vacation.gpx"), nil, 0o644))

	path, err := versionedPath(dir, "vacation", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "gps_track_vacation_v2.gpx"), path)

	require.NoError(t, os.WriteFile(path, nil, 0o644))
	path, err = versionedPath(dir, "vacation", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "gps_track_vacation_v3.gpx"), path)
}
