package retrieval

import (
	"math"
	"slices"

	"github.com/kozaktomas/image-query/internal/dataset"
)

// Normalize removes duplicate and excluded labels from detector output,
// keeping the first-seen order. Labels are compared in their normalized form.
func Normalize(detected []string, exclusions dataset.ExclusionSet) []string {
	seen := make(map[string]struct{}, len(detected))
	out := make([]string, 0, len(detected))
	for _, label := range detected {
		label = dataset.NormalizeLabel(label)
		if label == "" || exclusions.Contains(label) {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	return out
}

// RankByFrequency orders classes from rarest to most common in the dataset.
// Classes missing from the table sort after all known ones; equal counts keep
// their input order. The input slice is not modified.
func RankByFrequency(classes []string, freq dataset.FrequencyTable) []string {
	out := slices.Clone(classes)
	weight := func(label string) int {
		if n, ok := freq.Count(label); ok {
			return n
		}
		return math.MaxInt
	}
	slices.SortStableFunc(out, func(a, b string) int {
		wa, wb := weight(a), weight(b)
		switch {
		case wa < wb:
			return -1
		case wa > wb:
			return 1
		default:
			return 0
		}
	})
	return out
}
