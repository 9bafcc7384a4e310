// Package dataset holds the read-only retrieval context: the exclusion list,
// the class frequency table and the histogram record of every dataset image.
// A Dataset is built once at startup and shared across requests without
// locking.
package dataset

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/kozaktomas/image-query/internal/histogram"
)

// Default file names inside the dataset directory.
const (
	DefaultExclusionsFile  = "class_with_none_objs.json"
	DefaultFrequenciesFile = "class_frequencies.json"
	DefaultHistogramsFile  = "img_hist.json"
)

var (
	// ErrEmptyImageID is returned for records without an identifier.
	ErrEmptyImageID = errors.New("image ID cannot be empty")

	// ErrBinMismatch is returned when records use different bin counts.
	ErrBinMismatch = errors.New("histogram records use different bin counts")

	// ErrNegativeCount is returned for frequency entries below zero.
	ErrNegativeCount = errors.New("class count cannot be negative")
)

// Record is one dataset image with its precomputed histogram.
type Record struct {
	ID        string
	Histogram histogram.Vector
}

// Files locates the three dataset files.
type Files struct {
	Exclusions  string
	Frequencies string
	Histograms  string
}

// FilesIn returns the default file locations inside dir.
func FilesIn(dir string) Files {
	return Files{
		Exclusions:  filepath.Join(dir, DefaultExclusionsFile),
		Frequencies: filepath.Join(dir, DefaultFrequenciesFile),
		Histograms:  filepath.Join(dir, DefaultHistogramsFile),
	}
}

// Dataset is the immutable retrieval context.
type Dataset struct {
	exclusions  ExclusionSet
	frequencies FrequencyTable
	records     []Record
	byID        map[string]int
	bins        int
	duplicates  int
}

// New assembles a dataset. Records must share one bin count; when an ID
// appears more than once the first record wins.
func New(exclusions ExclusionSet, frequencies FrequencyTable, records []Record) (*Dataset, error) {
	d := &Dataset{
		exclusions:  exclusions,
		frequencies: frequencies,
		records:     make([]Record, 0, len(records)),
		byID:        make(map[string]int, len(records)),
	}

	for _, rec := range records {
		if rec.ID == "" {
			return nil, ErrEmptyImageID
		}
		bins := rec.Histogram.Bins()
		if bins == 0 || len(rec.Histogram) != 3*bins {
			return nil, fmt.Errorf("record %s: %w", rec.ID, histogram.ErrChannelLength)
		}
		if d.bins == 0 {
			d.bins = bins
		} else if bins != d.bins {
			return nil, fmt.Errorf("record %s has %d bins, expected %d: %w", rec.ID, bins, d.bins, ErrBinMismatch)
		}
		if _, exists := d.byID[rec.ID]; exists {
			d.duplicates++
			continue
		}
		d.byID[rec.ID] = len(d.records)
		d.records = append(d.records, rec)
	}

	if d.bins == 0 {
		d.bins = histogram.DefaultBins
	}
	return d, nil
}

// Load reads the three dataset files and builds a Dataset.
func Load(files Files) (*Dataset, error) {
	exclusions, err := readFile(files.Exclusions, ReadExclusions)
	if err != nil {
		return nil, err
	}
	frequencies, err := readFile(files.Frequencies, ReadFrequencies)
	if err != nil {
		return nil, err
	}
	records, err := readFile(files.Histograms, ReadHistograms)
	if err != nil {
		return nil, err
	}
	return New(NewExclusionSet(exclusions), NewFrequencyTable(frequencies), records)
}

// Exclusions returns the exclusion set.
func (d *Dataset) Exclusions() ExclusionSet {
	return d.exclusions
}

// Frequencies returns the class frequency table.
func (d *Dataset) Frequencies() FrequencyTable {
	return d.frequencies
}

// Record returns the histogram of an image.
func (d *Dataset) Record(id string) (histogram.Vector, bool) {
	i, ok := d.byID[id]
	if !ok {
		return nil, false
	}
	return d.records[i].Histogram, true
}

// Records returns all records in file order. Callers must not modify them.
func (d *Dataset) Records() []Record {
	return d.records
}

// Len returns the number of distinct records.
func (d *Dataset) Len() int {
	return len(d.records)
}

// Bins returns the per-channel bin count shared by all records.
func (d *Dataset) Bins() int {
	return d.bins
}

// Duplicates returns how many records were skipped because their ID repeated.
func (d *Dataset) Duplicates() int {
	return d.duplicates
}

// Fingerprint returns a SHA-256 digest over the records in file order, covering
// IDs and histogram values. Datasets with equal fingerprints hold the same
// histograms.
func (d *Dataset) Fingerprint() string {
	h := sha256.New()
	var buf [4]byte
	for _, rec := range d.records {
		binary.BigEndian.PutUint32(buf[:], uint32(len(rec.ID)))
		h.Write(buf[:])
		h.Write([]byte(rec.ID))
		binary.BigEndian.PutUint32(buf[:], uint32(len(rec.Histogram)))
		h.Write(buf[:])
		for _, v := range rec.Histogram {
			binary.BigEndian.PutUint32(buf[:], math.Float32bits(v))
			h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func readFile[T any](path string, read func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return zero, fmt.Errorf("open dataset file: %w", err)
	}
	defer f.Close()

	v, err := read(f)
	if err != nil {
		return zero, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return v, nil
}
