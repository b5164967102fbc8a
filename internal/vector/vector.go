// Package vector ranks stored embeddings against a query by cosine similarity.
package vector

import (
	"errors"
	"math"
	"sort"
)

// epsilon is the norm product below which Cosine reports 0
const epsilon = 1e-10

// ErrMalformedVector marks a stored vector that cannot be used for ranking
var ErrMalformedVector = errors.New("malformed vector")

// Item is a keyed vector in a corpus
type Item struct {
	Key    int64
	Vector []float32
}

// Scored is a key with its similarity to the query
type Scored struct {
	Key   int64
	Score float64
}

// Cosine returns dot(a,b) / (|a||b|), accumulated in float64. Vectors of
// different length, and zero vectors, score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	d := math.Sqrt(na * nb)
	if d < epsilon {
		return 0
	}
	return dot / d
}

// Validate reports ErrMalformedVector for empty vectors or vectors holding NaN or Inf
func Validate(v []float32) error {
	if len(v) == 0 {
		return ErrMalformedVector
	}
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrMalformedVector
		}
	}
	return nil
}

// TopK scores every item against query and returns the best k, highest first.
// Equal scores keep input order. Items whose dimension differs from the
// query are skipped. k <= 0 returns every scored item.
func TopK(query []float32, items []Item, k int) []Scored {
	if len(query) == 0 {
		return nil
	}

	scored := make([]Scored, 0, len(items))
	for _, it := range items {
		if len(it.Vector) != len(query) {
			continue
		}
		scored = append(scored, Scored{Key: it.Key, Score: Cosine(query, it.Vector)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
