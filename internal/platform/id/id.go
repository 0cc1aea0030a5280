// Package id generates compact identifiers for players, factions, and blocks.
package id

import (
	"encoding/base32"
	"strings"

	"github.com/google/uuid"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a 26-character lowercase base32 identifier derived from a
// random UUIDv4. Lowercase keeps ids safe for case-insensitive contexts while
// preserving the version and variant bits of the underlying UUID.
func NewID() (string, error) {
	raw, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ToLower(encoding.EncodeToString(raw[:])), nil
}
