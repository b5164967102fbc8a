// Package embeddings turns text into vectors and keeps stored vectors current.
package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/schoolbot/schoolbot/internal/textnorm"
)

// Provider converts text into a fixed-length vector
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// ProviderError is returned when the provider failed after every attempt,
// or the call ran out of time.
type ProviderError struct {
	Model    string
	Attempts int
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider %s failed after %d attempt(s): %v", e.Model, e.Attempts, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ContentHash is the hex sha256 of the normalized text. Texts that normalize
// identically share a hash and are not re-embedded.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(textnorm.Normalize(text)))
	return hex.EncodeToString(sum[:])
}
