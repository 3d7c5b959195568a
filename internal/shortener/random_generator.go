package shortener

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/joshdurbin/shortlink/internal/domain"
)

// Base62 characters: 0-9, a-z, A-Z (case sensitive)
const base62Chars = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

var alphabetSize = big.NewInt(int64(len(base62Chars)))

// RandomGenerator draws keys uniformly from the base62 alphabet
type RandomGenerator struct {
	config  Config
	checker KeyChecker
}

// NewRandomGenerator creates a new random generator
func NewRandomGenerator(config Config, checker KeyChecker) *RandomGenerator {
	return &RandomGenerator{
		config:  config,
		checker: checker,
	}
}

// GenerateShortKey draws candidates until one is free in the store or the attempt cap is hit.
// Two concurrent callers may still receive the same key; the store's unique
// constraint rejects the second insert and the caller regenerates.
func (g *RandomGenerator) GenerateShortKey(ctx context.Context) (string, error) {
	for attempt := 0; attempt < g.config.MaxAttempts; attempt++ {
		candidate, err := randomKey(g.config.ShortKeyLength)
		if err != nil {
			return "", err
		}

		exists, err := g.checker.KeyExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check key existence: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: no free key after %d attempts", domain.ErrKeySpaceExhausted, g.config.MaxAttempts)
}

// GenerateSecretKey draws a single secret key
func (g *RandomGenerator) GenerateSecretKey() (string, error) {
	return randomKey(g.config.SecretKeyLength)
}

// Type returns the generator type
func (g *RandomGenerator) Type() string {
	return TypeRandom
}

func randomKey(length int) (string, error) {
	key := make([]byte, length)
	for i := range key {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}
		key[i] = base62Chars[n.Int64()]
	}
	return string(key), nil
}

// Ensure RandomGenerator implements Generator interface
var _ Generator = (*RandomGenerator)(nil)
