package chronosync

import "encoding/hex"

// Digest is an immutable fingerprint of a set of states.
// Digests compare equal with == iff their bytes are equal, and can be used as map keys.
type Digest struct {
	value string
}

// NewDigest creates a Digest from the raw hash bytes. The bytes are copied.
func NewDigest(b []byte) Digest {
	return Digest{value: string(b)}
}

// Bytes returns a copy of the digest bytes.
func (d Digest) Bytes() []byte {
	return []byte(d.value)
}

// Len returns the digest size in bytes.
func (d Digest) Len() int {
	return len(d.value)
}

// IsZero returns true for a Digest that holds no bytes.
func (d Digest) IsZero() bool {
	return len(d.value) == 0
}

// Equal returns true if both digests hold the same bytes.
func (d Digest) Equal(other Digest) bool {
	return d.value == other.value
}

// Hex returns the full lowercase hex representation of the digest.
func (d Digest) Hex() string {
	return hex.EncodeToString([]byte(d.value))
}

// String implements fmt.Stringer.
func (d Digest) String() string {
	return d.Hex()
}

// ShortString returns the first 5 bytes of the digest in hex, for logging.
func (d Digest) ShortString() string {
	if len(d.value) <= 5 {
		return d.Hex()
	}
	return hex.EncodeToString([]byte(d.value[:5]))
}
