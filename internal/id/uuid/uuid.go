// Package uuid provides ID generation for batch runs and API requests.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUID v7 strings.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// MustNewID returns a UUID7 string, falling back to a random v4 when the
// v7 generator fails.
func (g Generator) MustNewID() string {
	if id, err := g.NewID(); err == nil {
		return id
	}
	return uuid.NewString()
}
