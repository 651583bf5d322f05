package engine

import "github.com/okibi/tansa/internal/vector"

// Phase is the index lifecycle phase.
type Phase int

const (
	// PhaseUninitialized: no dimension committed, no index. A fresh data
	// directory, or the result of a drain or reset.
	PhaseUninitialized Phase = iota
	// PhaseEmpty: a dimension is committed (sidecar on disk) but no
	// vectors are indexed. Reached by recovery when only the sidecar
	// survived, or when a replace drains the index mid-ingest.
	PhaseEmpty
	// PhasePopulated: a live index holding at least one vector.
	PhasePopulated
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseEmpty:
		return "empty"
	case PhasePopulated:
		return "populated"
	default:
		return "unknown"
	}
}

// indexState is the engine's index lifecycle state. Invariants: dim is 0
// exactly in PhaseUninitialized; idx is non-nil exactly in PhasePopulated,
// and then holds at least one vector.
type indexState struct {
	phase Phase
	dim   int
	idx   vector.Index
}

func (s *indexState) toUninitialized() {
	s.phase, s.dim, s.idx = PhaseUninitialized, 0, nil
}

func (s *indexState) toEmpty(dim int) {
	s.phase, s.dim, s.idx = PhaseEmpty, dim, nil
}

func (s *indexState) toPopulated(idx vector.Index) {
	s.phase, s.dim, s.idx = PhasePopulated, idx.Dim(), idx
}
