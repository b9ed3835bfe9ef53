// Package checksum provides the SHA3-512 content-addressing primitive
// used for every block and header in the engine.
package checksum

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/sha3"

	"github.com/brightchain/brightchain-go/pkg/errcat"
)

const (
	// Size is the digest length in bytes.
	Size = 64
	// HexLength is the length of the lowercase hex string form.
	HexLength = Size * 2
)

var (
	ErrInvalidHexString       = errcat.Sentinel(errcat.Structural, "checksum: invalid hex string")
	ErrInvalidHexStringLength = errcat.Sentinel(errcat.Structural, "checksum: invalid hex string length")
)

// Checksum is a SHA3-512 digest. Equality is byte-exact; the zero value
// is never a valid digest of any input in practice.
type Checksum [Size]byte

// Calculate returns the digest of data. Deterministic, no side effects.
func Calculate(data []byte) Checksum {
	return Checksum(sha3.Sum512(data))
}

// CalculateReader computes the same digest as Calculate but consumes the
// input incrementally, bounding peak memory for large inputs. No partial
// digest is observable before the reader is drained.
func CalculateReader(r io.Reader) (Checksum, error) {
	h := sha3.New512()
	if _, err := io.Copy(h, r); err != nil {
		return Checksum{}, fmt.Errorf("checksum: reading input: %w", err)
	}
	var c Checksum
	copy(c[:], h.Sum(nil))
	return c, nil
}

// Validate recomputes the digest of data and compares it byte-for-byte.
// Checksums are not secrets, so the comparison is not constant-time.
func Validate(data []byte, c Checksum) bool {
	got := Calculate(data)
	return bytes.Equal(got[:], c[:])
}

// FromHex parses the fixed-length lowercase hex form.
func FromHex(s string) (Checksum, error) {
	if len(s) != HexLength {
		return Checksum{}, fmt.Errorf("%w: expected %d characters, got %d", ErrInvalidHexStringLength, HexLength, len(s))
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return Checksum{}, fmt.Errorf("%w: %v", ErrInvalidHexString, err)
	}
	var c Checksum
	copy(c[:], decoded)
	return c, nil
}

// String returns the lowercase hex form, HexLength characters long.
func (c Checksum) String() string {
	return hex.EncodeToString(c[:])
}

// Equal returns true if both digests are identical.
func (c Checksum) Equal(other Checksum) bool {
	return c == other
}

// IsZero returns true for the all-zero value.
func (c Checksum) IsZero() bool {
	return c == Checksum{}
}
