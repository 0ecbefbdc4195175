// Package identity builds and manipulates content encryption identifiers.
//
// An identifier is the hex string handed to the threshold-encryption layer
// as key-derivation input. It is the concatenation of a scope prefix (the
// byte-decoded service object reference, or a fixed default when no service
// exists) and a short random nonce. The nonce is what makes every encrypted
// object unique; the prefix is what the on-chain access policy matches
// against.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// NonceLen is the number of random nonce bytes appended to the prefix.
//
// Five bytes gives 2^40 possible suffixes per prefix. Collisions within a
// prefix are treated as a negligible probabilistic risk; the bound is not
// enforced anywhere.
const NonceLen = 5

// DefaultPrefix is the prefix used when a creator has no service object at
// publish time. It deliberately differs in value from any object reference.
var DefaultPrefix = []byte{0x01}

// Identifier is a lowercase hex string: prefix bytes followed by nonce
// bytes. The split point is not recoverable from the identifier alone; the
// reader has to know (or guess) the prefix it was built with.
type Identifier string

var ErrEmptyPrefix = errors.New("identity: prefix must not be empty")

// Derive builds a fresh identifier from prefix bytes and nonceLen random
// bytes drawn from crypto/rand. It is pure apart from consuming randomness.
func Derive(prefix []byte, nonceLen int) (Identifier, error) {
	if len(prefix) == 0 {
		return "", ErrEmptyPrefix
	}
	if nonceLen <= 0 {
		return "", fmt.Errorf("identity: nonce length must be positive, got %d", nonceLen)
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("identity: read nonce: %w", err)
	}
	return FromParts(prefix, nonce), nil
}

// FromParts builds an identifier from explicit prefix and nonce bytes.
// Mainly useful in tests and in strategy reconstruction.
func FromParts(prefix, nonce []byte) Identifier {
	return Identifier(hex.EncodeToString(prefix) + hex.EncodeToString(nonce))
}

// Normalize lowercases an identifier and strips a leading "0x", so that
// object references read off the chain can be compared and spliced against
// parsed ciphertext identifiers.
func Normalize(s string) Identifier {
	s = strings.ToLower(s)
	s = strings.TrimPrefix(s, "0x")
	return Identifier(s)
}

// Bytes decodes the identifier back into raw bytes.
func (id Identifier) Bytes() ([]byte, error) {
	b, err := hex.DecodeString(string(id))
	if err != nil {
		return nil, fmt.Errorf("identity: identifier is not valid hex: %w", err)
	}
	return b, nil
}

// String returns the identifier as a plain string.
func (id Identifier) String() string { return string(id) }

// RebuildWithPrefix splices a known prefix onto the nonce suffix of a
// previously parsed identifier: the trailing NonceLen bytes of original
// are kept as the nonce and prefix replaces everything before them. This
// is how a reader reconstructs the identifier of content encrypted under
// a service-scoped prefix when only the embedded identifier is available,
// and it works regardless of which prefix scheme produced the original.
//
// Returns false when original is malformed or too short to carry a prefix
// plus a full nonce.
func RebuildWithPrefix(prefix []byte, original Identifier) (Identifier, bool) {
	b, err := original.Bytes()
	if err != nil || len(b) <= NonceLen || len(prefix) == 0 {
		return "", false
	}
	return FromParts(prefix, b[len(b)-NonceLen:]), true
}
