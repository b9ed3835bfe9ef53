package ecies

import (
	"fmt"

	"github.com/brightchain/brightchain-go/pkg/block"
	"github.com/brightchain/brightchain-go/pkg/errcat"
)

var (
	ErrInvalidEncryptedDataLength = errcat.Sentinel(errcat.Structural, "ecies: encrypted length not a multiple of block size")
	ErrInvalidDataLength          = errcat.Sentinel(errcat.Structural, "ecies: invalid data length")
	ErrInvalidPadding             = errcat.Sentinel(errcat.Structural, "ecies: declared padding exceeds capacity")
)

// Lengths is the accounting of a data stream packed into single-recipient
// encrypted blocks of one size class.
type Lengths struct {
	// Blocks is the number of blocks needed.
	Blocks int64
	// Capacity is the plaintext capacity per block: size minus Overhead.
	Capacity int64
	// Padding is the unused capacity in the final block.
	Padding int64
	// Total is the total encrypted size, Blocks × block size.
	Total int64
}

// EncryptedLength computes the block count, per-block capacity, final
// padding and total encrypted size for dataLength bytes in blocks of
// the given class.
func (s *Service) EncryptedLength(dataLength int64, size block.Size) (Lengths, error) {
	if !size.Valid() {
		return Lengths{}, fmt.Errorf("%w: %d", block.ErrInvalidBlockSize, int64(size))
	}
	if dataLength <= 0 {
		return Lengths{}, fmt.Errorf("%w: %d", ErrInvalidDataLength, dataLength)
	}
	capacity := int64(size) - Overhead
	blocks := (dataLength + capacity - 1) / capacity
	return Lengths{
		Blocks:   blocks,
		Capacity: capacity,
		Padding:  blocks*capacity - dataLength,
		Total:    blocks * int64(size),
	}, nil
}

// DecryptedLength is the inverse of EncryptedLength: the plaintext
// length of encryptedLength bytes in blocks of the given class with the
// declared final-block padding.
func (s *Service) DecryptedLength(encryptedLength int64, size block.Size, padding int64) (int64, error) {
	if !size.Valid() {
		return 0, fmt.Errorf("%w: %d", block.ErrInvalidBlockSize, int64(size))
	}
	if encryptedLength <= 0 || encryptedLength%int64(size) != 0 {
		return 0, fmt.Errorf("%w: %d bytes with block size %d", ErrInvalidEncryptedDataLength, encryptedLength, int64(size))
	}
	capacity := int64(size) - Overhead
	if padding < 0 || padding >= capacity {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPadding, padding)
	}
	blocks := encryptedLength / int64(size)
	return blocks*capacity - padding, nil
}
