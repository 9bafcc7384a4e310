package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CandidateResolver returns every dataset image linked to all of the given
// classes. Implementations must apply strict AND semantics: an image linked
// to only some of the classes is not a candidate.
type CandidateResolver interface {
	ResolveCandidates(ctx context.Context, classes []string) ([]string, error)
}

// CandidateSet is an insertion-ordered set of image IDs.
type CandidateSet struct {
	ids  []string
	seen map[string]struct{}
}

// NewCandidateSet builds a set from ids, dropping repeats.
func NewCandidateSet(ids []string) *CandidateSet {
	s := &CandidateSet{
		ids:  make([]string, 0, len(ids)),
		seen: make(map[string]struct{}, len(ids)),
	}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id unless already present and reports whether it was added.
func (s *CandidateSet) Add(id string) bool {
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	s.ids = append(s.ids, id)
	return true
}

// Contains reports whether id is in the set.
func (s *CandidateSet) Contains(id string) bool {
	_, ok := s.seen[id]
	return ok
}

// IDs returns the members in insertion order.
func (s *CandidateSet) IDs() []string {
	return s.ids
}

// Len returns the number of members.
func (s *CandidateSet) Len() int {
	return len(s.ids)
}

// Resolution is the outcome of a candidate strategy.
type Resolution struct {
	Candidates *CandidateSet
	// QueryClasses are the classes of the store query that produced Candidates.
	QueryClasses []string
	// Eliminated are the classes dropped by a relaxing strategy, in drop order.
	Eliminated []string
}

// Strategy decides which store queries to issue for a frequency-ranked class
// list (rarest first).
type Strategy interface {
	Resolve(ctx context.Context, resolver CandidateResolver, classes []string) (*Resolution, error)
}

// StrictStrategy issues a single strict-AND query with every class.
type StrictStrategy struct{}

func (StrictStrategy) Resolve(ctx context.Context, resolver CandidateResolver, classes []string) (*Resolution, error) {
	ids, err := resolver.ResolveCandidates(ctx, classes)
	if err != nil {
		return nil, err
	}
	return &Resolution{Candidates: NewCandidateSet(ids), QueryClasses: classes}, nil
}

// RelaxingStrategy starts with the strict-AND query and, while fewer than
// Target candidates are found, drops the least discriminative class (the last
// one of the ranked list) and queries again. It stops with a single class left.
type RelaxingStrategy struct {
	Target int
}

func (s RelaxingStrategy) Resolve(ctx context.Context, resolver CandidateResolver, classes []string) (*Resolution, error) {
	query := classes
	var eliminated []string
	for {
		ids, err := resolver.ResolveCandidates(ctx, query)
		if err != nil {
			return nil, err
		}
		set := NewCandidateSet(ids)
		if set.Len() >= s.Target || len(query) <= 1 {
			return &Resolution{Candidates: set, QueryClasses: query, Eliminated: eliminated}, nil
		}
		last := len(query) - 1
		eliminated = append(eliminated, query[last])
		query = query[:last]
	}
}

// storeResolver bounds every store call with a timeout and marks failures as
// ErrStoreUnavailable.
type storeResolver struct {
	next    CandidateResolver
	timeout time.Duration
}

func (r storeResolver) ResolveCandidates(ctx context.Context, classes []string) ([]string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	ids, err := r.next.ResolveCandidates(ctx, classes)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return ids, nil
}
