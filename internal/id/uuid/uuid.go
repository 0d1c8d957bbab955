// Package uuid provides job ID generation helpers.
package uuid

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// jobIDLength is the number of hex characters in a job id. Job ids appear in
// URLs and directory prefixes, so they stay short.
const jobIDLength = 12

// Generator creates short random job identifiers.
type Generator struct{}

// NewGenerator creates a new Generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// NewID returns a 12-character hex id derived from a UUIDv4.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return hex.EncodeToString(id[:])[:jobIDLength], nil
}
