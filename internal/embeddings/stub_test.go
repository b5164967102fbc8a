package embeddings

import (
	"context"
	"errors"
	"sync"
)

// stubProvider returns a vector derived from the text length and counts calls
type stubProvider struct {
	mu     sync.Mutex
	calls  int
	failN  int // fail the first failN calls
	err    error
	vector func(text string) []float32
}

func (s *stubProvider) Model() string { return "stub" }

func (s *stubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil && (s.failN == 0 || n <= s.failN) {
		return nil, s.err
	}
	if s.vector != nil {
		return s.vector(text), nil
	}
	return []float32{float32(len(text)), 1}, nil
}

func (s *stubProvider) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var errProviderDown = errors.New("provider down")
