package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/kozaktomas/image-query/internal/histogram"
)

// channels is the persisted per-channel histogram layout.
type channels struct {
	R []float32 `json:"R"`
	G []float32 `json:"G"`
	B []float32 `json:"B"`
}

type histogramRecord struct {
	ID        json.RawMessage `json:"ID"`
	Histogram channels        `json:"Histogram"`
}

// ImageClasses links one dataset image to the classes detected in it.
type ImageClasses struct {
	ID      string
	Classes []string
}

type imageClassesRecord struct {
	ID      json.RawMessage `json:"ID"`
	Classes []string        `json:"Classes"`
}

// parseImageID accepts a JSON string or number. Numbers keep their literal
// decimal form so that 17 and "17" identify the same image.
func parseImageID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", ErrEmptyImageID
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("invalid image ID %s: %w", raw, err)
		}
		if s == "" {
			return "", ErrEmptyImageID
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("invalid image ID %s: %w", raw, err)
	}
	return n.String(), nil
}

// formatImageID renders an ID so that integer IDs are written back as
// numbers.
func formatImageID(id string) json.RawMessage {
	if isInteger(id) {
		return json.RawMessage(id)
	}
	out, _ := json.Marshal(id)
	return out
}

func isInteger(s string) bool {
	if s == "" {
		return false
	}
	start := 0
	if s[0] == '-' {
		if len(s) == 1 {
			return false
		}
		start = 1
	}
	for i := start; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ReadExclusions parses the exclusion list: a JSON array of class names.
func ReadExclusions(r io.Reader) ([]string, error) {
	var labels []string
	if err := json.NewDecoder(r).Decode(&labels); err != nil {
		return nil, fmt.Errorf("decode exclusion list: %w", err)
	}
	return labels, nil
}

// ReadFrequencies parses the frequency table: a JSON array of
// {"Class": string, "Count": integer}.
func ReadFrequencies(r io.Reader) ([]Frequency, error) {
	var entries []Frequency
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode frequency table: %w", err)
	}
	for _, e := range entries {
		if e.Count < 0 {
			return nil, fmt.Errorf("class %q: %w", e.Class, ErrNegativeCount)
		}
	}
	return entries, nil
}

// WriteFrequencies writes a frequency table in the persisted format.
func WriteFrequencies(w io.Writer, entries []Frequency) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encode frequency table: %w", err)
	}
	return nil
}

// ReadHistograms parses the histogram table: a JSON array of
// {"ID": id, "Histogram": {"R": [...], "G": [...], "B": [...]}}.
func ReadHistograms(r io.Reader) ([]Record, error) {
	var raw []histogramRecord
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode histogram table: %w", err)
	}

	records := make([]Record, 0, len(raw))
	for i, rec := range raw {
		id, err := parseImageID(rec.ID)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		vec, err := histogram.FromChannels(rec.Histogram.R, rec.Histogram.G, rec.Histogram.B)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", id, err)
		}
		records = append(records, Record{ID: id, Histogram: vec})
	}
	return records, nil
}

// WriteHistograms writes records in the persisted histogram table format.
func WriteHistograms(w io.Writer, records []Record) error {
	out := make([]histogramRecord, 0, len(records))
	for _, rec := range records {
		r, g, b := rec.Histogram.Channels()
		out = append(out, histogramRecord{
			ID:        formatImageID(rec.ID),
			Histogram: channels{R: r, G: g, B: b},
		})
	}
	if err := json.NewEncoder(w).Encode(out); err != nil {
		return fmt.Errorf("encode histogram table: %w", err)
	}
	return nil
}

// ReadGraph parses a class graph export: a JSON array of
// {"ID": id, "Classes": [...]}. Labels are normalized and deduplicated.
func ReadGraph(r io.Reader) ([]ImageClasses, error) {
	var raw []imageClassesRecord
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode class graph: %w", err)
	}

	out := make([]ImageClasses, 0, len(raw))
	for i, rec := range raw {
		id, err := parseImageID(rec.ID)
		if err != nil {
			return nil, fmt.Errorf("graph entry %d: %w", i, err)
		}
		seen := make(map[string]struct{}, len(rec.Classes))
		classes := make([]string, 0, len(rec.Classes))
		for _, c := range rec.Classes {
			c = NormalizeLabel(c)
			if c == "" {
				continue
			}
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			classes = append(classes, c)
		}
		out = append(out, ImageClasses{ID: id, Classes: classes})
	}
	return out, nil
}

// ComputeFrequencies counts, for every class, the images linked to it.
// The result is sorted by descending count, then by class name.
func ComputeFrequencies(graph []ImageClasses) []Frequency {
	counts := make(map[string]int)
	seenImages := make(map[string]struct{}, len(graph))
	for _, img := range graph {
		if _, dup := seenImages[img.ID]; dup {
			continue
		}
		seenImages[img.ID] = struct{}{}
		for _, c := range img.Classes {
			counts[c]++
		}
	}

	out := make([]Frequency, 0, len(counts))
	for c, n := range counts {
		out = append(out, Frequency{Class: c, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Class < out[j].Class
	})
	return out
}
