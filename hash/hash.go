// Package hash provides the digest algorithms a digest tree can be built with.
package hash

import (
	"errors"
	"fmt"
	stdhash "hash"
	"slices"
	"strings"

	"github.com/minio/sha256-simd"
	"github.com/zeebo/blake3"
)

const (
	// Size is an alias to minio sha256.Size (32 bytes).
	Size = sha256.Size

	// SHA256 names the SHA-256 algorithm (minio sha256-simd).
	SHA256 = "sha256"
	// BLAKE3 names the 256-bit BLAKE3 algorithm.
	BLAKE3 = "blake3"
)

var (
	// New is an alias to minio sha256.New.
	New = sha256.New
	// Sum is an alias to minio sha256.Sum256.
	Sum = sha256.Sum256

	// ErrUnknownAlgorithm is returned by Factory for unsupported algorithm names.
	ErrUnknownAlgorithm = errors.New("unknown digest algorithm")
)

// Factory creates new hash.Hash instances of a single algorithm.
type Factory func() stdhash.Hash

var factories = map[string]Factory{
	SHA256: sha256.New,
	BLAKE3: func() stdhash.Hash { return blake3.New() },
}

// aliases accepted for compatibility with JCA-style names, e.g. "SHA-256".
var aliases = map[string]string{
	"sha-256": SHA256,
	"blake-3": BLAKE3,
}

// FactoryFor returns the Factory for the named algorithm. Names are case-insensitive.
func FactoryFor(name string) (Factory, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := aliases[key]; ok {
		key = alias
	}
	f, ok := factories[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
	return f, nil
}

// Algorithms returns the sorted list of supported algorithm names.
func Algorithms() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
