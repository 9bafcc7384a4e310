package dataset

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeLabel returns the canonical form of a class label: surrounding
// whitespace trimmed and Unicode NFC composed. Case is preserved.
func NormalizeLabel(label string) string {
	return norm.NFC.String(strings.TrimSpace(label))
}

// ExclusionSet is an immutable set of class labels that are ignored even when
// detected.
type ExclusionSet struct {
	labels map[string]struct{}
}

// NewExclusionSet builds an exclusion set from labels.
func NewExclusionSet(labels []string) ExclusionSet {
	set := ExclusionSet{labels: make(map[string]struct{}, len(labels))}
	for _, l := range labels {
		if l = NormalizeLabel(l); l != "" {
			set.labels[l] = struct{}{}
		}
	}
	return set
}

// Contains reports whether label is excluded.
func (s ExclusionSet) Contains(label string) bool {
	_, ok := s.labels[NormalizeLabel(label)]
	return ok
}

// Len returns the number of excluded labels.
func (s ExclusionSet) Len() int {
	return len(s.labels)
}

// Frequency is one entry of the class frequency table.
type Frequency struct {
	Class string `json:"Class"`
	Count int    `json:"Count"`
}

// FrequencyTable maps class labels to the number of dataset images that
// contain them.
type FrequencyTable struct {
	counts map[string]int
}

// NewFrequencyTable builds a frequency table. Later duplicates of a class
// overwrite earlier ones.
func NewFrequencyTable(entries []Frequency) FrequencyTable {
	table := FrequencyTable{counts: make(map[string]int, len(entries))}
	for _, e := range entries {
		if c := NormalizeLabel(e.Class); c != "" {
			table.counts[c] = e.Count
		}
	}
	return table
}

// Count returns the frequency of label and whether it is known.
func (t FrequencyTable) Count(label string) (int, bool) {
	n, ok := t.counts[NormalizeLabel(label)]
	return n, ok
}

// Len returns the number of known classes.
func (t FrequencyTable) Len() int {
	return len(t.counts)
}

// Classes returns all known class labels in no particular order.
func (t FrequencyTable) Classes() []string {
	out := make([]string, 0, len(t.counts))
	for c := range t.counts {
		out = append(out, c)
	}
	return out
}
