// Package sha256 derives stable record identities from content digests.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrEmptyContent means no identity can be derived from the input.
var ErrEmptyContent = errors.New("cannot derive identity from empty content")

// Hasher implements uploader.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest. Empty input is rejected:
// an identity derived from nothing would collide for every empty record.
func (h *Hasher) Hash(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyContent
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
