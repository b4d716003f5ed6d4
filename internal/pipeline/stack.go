package pipeline

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/tjfontaine/phasemux/internal/phase"
)

// Ranker resolves a phase name and position into a sort key.
type Ranker interface {
	Rank(name string, pos phase.Position) (phase.Rank, error)
}

// Stack is the ordered sequence of layers a request is dispatched through.
//
// Every mutation re-sorts the whole stack by (rank, sequence). The sequence
// number is part of the key, so layers of equal rank keep their registration
// order however often the stack is re-sorted. The sorted slice is replaced on
// each mutation and never modified in place, so dispatches already running
// keep a consistent snapshot.
type Stack struct {
	ranker Ranker

	mu     sync.RWMutex
	logger *slog.Logger
	seq    uint64
	layers []*Layer
}

// NewStack creates an empty stack ranking layers with r.
func NewStack(r Ranker) *Stack {
	return &Stack{ranker: r}
}

// SetLogger sets where continuation misuse is reported. The default is
// slog.Default().
func (s *Stack) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// Logger returns the logger continuation misuse is reported to.
func (s *Stack) Logger() *slog.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}

// Insert assigns l the next sequence number and re-sorts. When l's phase
// cannot be ranked the stack is left untouched.
func (s *Stack) Insert(l *Layer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]*Layer, len(s.layers), len(s.layers)+1)
	copy(next, s.layers)
	next = append(next, l)

	seq := l.Seq
	s.seq++
	l.Seq = s.seq

	sorted, err := s.sort(next)
	if err != nil {
		s.seq--
		l.Seq = seq
		return err
	}
	s.layers = sorted
	return nil
}

// Resort recomputes the order, typically after the phase list changed. The
// previous order is kept if any layer fails to rank.
func (s *Stack) Resort() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted, err := s.sort(s.layers)
	if err != nil {
		return err
	}
	s.layers = sorted
	return nil
}

// Layers returns the sorted snapshot. Callers must not modify it.
func (s *Stack) Layers() []*Layer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.layers
}

// Len returns the number of layers.
func (s *Stack) Len() int {
	return len(s.Layers())
}

// Find returns the layer registered with h. It compares the registered value
// first and then the value it wraps (see Unwrap), so instrumented handlers
// are still found by their original. Func values are not comparable and are
// never found; handlers that need looking up should be pointers or other
// comparable values.
func (s *Stack) Find(h any) *Layer {
	for _, l := range s.Layers() {
		if sameHandler(l.Handler, h) || sameHandler(Unwrap(l.Handler), h) {
			return l
		}
	}
	return nil
}

type rankedLayer struct {
	layer *Layer
	rank  phase.Rank
}

func (s *Stack) sort(layers []*Layer) ([]*Layer, error) {
	ranked := make([]rankedLayer, len(layers))
	for i, l := range layers {
		rank := phase.BuiltinRank
		if !l.Builtin {
			var err error
			if rank, err = s.ranker.Rank(l.Phase, l.Position); err != nil {
				return nil, err
			}
		}
		ranked[i] = rankedLayer{layer: l, rank: rank}
	}

	slices.SortStableFunc(ranked, func(a, b rankedLayer) int {
		if c := a.rank.Compare(b.rank); c != 0 {
			return c
		}
		switch {
		case a.layer.Seq < b.layer.Seq:
			return -1
		case a.layer.Seq > b.layer.Seq:
			return 1
		}
		return 0
	})

	out := make([]*Layer, len(ranked))
	for i, r := range ranked {
		out[i] = r.layer
	}
	return out, nil
}
