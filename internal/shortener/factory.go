package shortener

import (
	"fmt"
)

// NewGenerator creates a new random generator backed by checker
func NewGenerator(config Config, checker KeyChecker) (Generator, error) {
	if checker == nil {
		return nil, fmt.Errorf("key checker required for random generator")
	}
	if config.ShortKeyLength < 1 || config.SecretKeyLength < 1 {
		return nil, fmt.Errorf("key lengths must be positive, got short=%d secret=%d", config.ShortKeyLength, config.SecretKeyLength)
	}
	if config.MaxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be positive, got %d", config.MaxAttempts)
	}

	return NewRandomGenerator(config, checker), nil
}
