package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is returned when a configuration file fails parsing or validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// LoadStoreConfig parses, validates and converts the configuration file at path.
func LoadStoreConfig(path string) (*StoreConfig, error) {
	result := ParseConfig(path)
	if !result.IsValid() {
		msgs := make([]string, 0, len(result.AllErrors()))
		for _, err := range result.AllErrors() {
			msgs = append(msgs, err.Error())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
	}

	cfg, err := ConvertToStoreConfig(result.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}
