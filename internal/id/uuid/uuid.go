// Package uuid implements uploader.IDGenerator with random UUIDs.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator produces run IDs.
type Generator struct{}

// New returns a UUID generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a random UUID string.
func (g *Generator) NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return id.String(), nil
}
