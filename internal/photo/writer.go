package photo

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/barasher/go-exiftool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Update is the location payload written back onto a photo.
type Update struct {
	Lat         float64
	Lon         float64
	Altitude    *float64
	City        string
	State       string
	Country     string
	CountryCode string
}

// Writer applies location updates to photo files through exiftool.
// Close releases the underlying process; callers must defer it.
type Writer struct {
	et     *exiftool.Exiftool
	backup bool
	dryRun bool
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithBackup copies each file to <file>.backup before its first write.
func WithBackup() WriterOption {
	return func(w *Writer) { w.backup = true }
}

// WithDryRun logs what would be written without touching any file.
func WithDryRun() WriterOption {
	return func(w *Writer) { w.dryRun = true }
}

// NewWriter starts an exiftool session.
func NewWriter(opts ...WriterOption) (*Writer, error) {
	w := &Writer{}
	for _, opt := range opts {
		opt(w)
	}
	if w.dryRun {
		return w, nil
	}
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, eris.Wrap(err, "photo: start exiftool")
	}
	w.et = et
	return w, nil
}

// Close shuts the exiftool session down.
func (w *Writer) Close() error {
	if w.et == nil {
		return nil
	}
	return eris.Wrap(w.et.Close(), "photo: close exiftool")
}

// Apply writes the update's GPS and place tags onto the file at path.
func (w *Writer) Apply(path string, upd Update) error {
	log := zap.L().With(zap.String("component", "photo"), zap.String("path", path))

	if w.dryRun {
		log.Info("dry run, would write location",
			zap.Float64("lat", upd.Lat),
			zap.Float64("lon", upd.Lon),
			zap.String("city", upd.City),
		)
		return nil
	}

	if w.backup {
		if err := backupOnce(path); err != nil {
			return err
		}
	}

	fm := exiftool.EmptyFileMetadata()
	fm.File = path
	for key, value := range TagFields(upd) {
		fm.SetString(key, value)
	}
	// WriteMetadata reports per-file failures on the slice elements.
	fms := []exiftool.FileMetadata{fm}
	w.et.WriteMetadata(fms)
	if fms[0].Err != nil {
		return eris.Wrapf(fms[0].Err, "photo: write metadata %s", path)
	}
	return nil
}

// TagFields maps an update onto exiftool tag names. Coordinates go
// out in the sexagesimal form embedded GPS tags require.
func TagFields(upd Update) map[string]string {
	fields := map[string]string{
		"GPSLatitude":     FormatDMS(upd.Lat),
		"GPSLatitudeRef":  latRef(upd.Lat),
		"GPSLongitude":    FormatDMS(upd.Lon),
		"GPSLongitudeRef": lonRef(upd.Lon),
	}
	if upd.Altitude != nil {
		alt := *upd.Altitude
		ref := "0"
		if alt < 0 {
			alt, ref = -alt, "1"
		}
		fields["GPSAltitude"] = fmt.Sprintf("%.1f", alt)
		fields["GPSAltitudeRef"] = ref
	}
	if upd.City != "" {
		fields["City"] = upd.City
	}
	if upd.State != "" {
		fields["State"] = upd.State
	}
	if upd.Country != "" {
		fields["Country"] = upd.Country
	}
	if upd.CountryCode != "" {
		fields["CountryCode"] = upd.CountryCode
	}
	return fields
}

// DMS splits a decimal coordinate into degree, minute, and second
// components. The sign is dropped; hemisphere goes in the ref tag.
func DMS(dec float64) (deg, min int, sec float64) {
	dec = math.Abs(dec)
	deg = int(dec)
	rem := (dec - float64(deg)) * 60
	min = int(rem)
	sec = (rem - float64(min)) * 60
	return deg, min, sec
}

// FormatDMS renders a coordinate the way exiftool expects sexagesimal
// input, e.g. "48,51,23.81".
func FormatDMS(dec float64) string {
	deg, min, sec := DMS(dec)
	return fmt.Sprintf("%d,%d,%.2f", deg, min, sec)
}

func latRef(lat float64) string {
	if lat < 0 {
		return "S"
	}
	return "N"
}

func lonRef(lon float64) string {
	if lon < 0 {
		return "W"
	}
	return "E"
}

// backupOnce copies path to path.backup unless a backup already
// exists, so repeated syncs keep the original bytes.
func backupOnce(path string) error {
	backupPath := path + backupSuffix
	if _, err := os.Stat(backupPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return eris.Wrapf(err, "photo: stat backup %s", backupPath)
	}

	src, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "photo: open for backup %s", path)
	}
	defer src.Close()

	dst, err := os.Create(backupPath)
	if err != nil {
		return eris.Wrapf(err, "photo: create backup %s", backupPath)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return eris.Wrapf(err, "photo: copy backup %s", backupPath)
	}
	return eris.Wrapf(dst.Close(), "photo: close backup %s", backupPath)
}
