package shortener

import (
	"context"
)

// Generator defines the interface for generating short and secret keys
type Generator interface {
	// GenerateShortKey returns a short key that no stored record holds at the time of the check
	GenerateShortKey(ctx context.Context) (string, error)

	// GenerateSecretKey returns a random secret key; uniqueness is enforced at insert time
	GenerateSecretKey() (string, error)

	// Type returns the type identifier of the generator
	Type() string
}

// KeyChecker reports whether a short key is already taken.
// It is answered by the record store, never the cache, since the cache
// does not hold inactive or never-resolved records.
type KeyChecker interface {
	KeyExists(ctx context.Context, shortKey string) (bool, error)
}

// Config holds configuration for shortener generators
type Config struct {
	ShortKeyLength  int `json:"short_key_length" yaml:"short_key_length"`
	SecretKeyLength int `json:"secret_key_length" yaml:"secret_key_length"`
	MaxAttempts     int `json:"max_attempts" yaml:"max_attempts"` // Candidates drawn before giving up
}

// GeneratorType constants
const (
	TypeRandom = "random"
)

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		ShortKeyLength:  6,
		SecretKeyLength: 12,
		MaxAttempts:     10,
	}
}
