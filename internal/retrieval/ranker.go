package retrieval

import (
	"cmp"
	"slices"
	"strconv"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/kozaktomas/image-query/internal/histogram"
)

// defaultParallelThreshold is the candidate count above which scoring is
// spread over the worker pool.
const defaultParallelThreshold = 256

// Candidate is a dataset image considered for ranking.
type Candidate struct {
	ID        string
	Histogram histogram.Vector
}

// Score is the similarity of one candidate to the query.
type Score struct {
	ImageID    string  `json:"image_id"`
	Similarity float64 `json:"similarity"`
}

// Ranker scores candidates by cosine similarity and orders them.
type Ranker struct {
	pool      *ants.Pool
	threshold int
}

// NewRanker creates a ranker. With a non-nil pool, large candidate lists are
// scored concurrently; the output is identical to sequential scoring.
func NewRanker(pool *ants.Pool) *Ranker {
	return &Ranker{pool: pool, threshold: defaultParallelThreshold}
}

type scoreResult struct {
	score Score
	err   *ComputationError
}

// Rank returns candidate scores by descending similarity, ties by ascending
// image ID, and one ComputationError for every candidate that could not be
// scored. Failed candidates are not part of the ranking.
func (r *Ranker) Rank(query histogram.Vector, candidates []Candidate) ([]Score, []*ComputationError) {
	results := make([]scoreResult, len(candidates))
	score := func(i int) {
		c := candidates[i]
		sim, err := histogram.Cosine(query, c.Histogram)
		if err != nil {
			results[i].err = &ComputationError{ImageID: c.ID, Err: err}
			return
		}
		results[i].score = Score{ImageID: c.ID, Similarity: sim}
	}

	if r != nil && r.pool != nil && len(candidates) > r.threshold {
		var wg sync.WaitGroup
		for i := range candidates {
			wg.Add(1)
			if err := r.pool.Submit(func() {
				defer wg.Done()
				score(i)
			}); err != nil {
				// Pool closed or overloaded: score inline.
				score(i)
				wg.Done()
			}
		}
		wg.Wait()
	} else {
		for i := range candidates {
			score(i)
		}
	}

	scores := make([]Score, 0, len(candidates))
	var failed []*ComputationError
	for _, res := range results {
		if res.err != nil {
			failed = append(failed, res.err)
			continue
		}
		scores = append(scores, res.score)
	}

	slices.SortFunc(scores, func(a, b Score) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return CompareImageIDs(a.ImageID, b.ImageID)
	})
	return scores, failed
}

// CompareImageIDs orders image IDs that are base-10 integers before all
// other IDs. Integers compare numerically and the rest byte-wise. Integers of
// equal value fall back to byte order ("07" before "7") so that the order is
// total.
func CompareImageIDs(a, b string) int {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		if c := cmp.Compare(na, nb); c != 0 {
			return c
		}
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	return cmp.Compare(a, b)
}
