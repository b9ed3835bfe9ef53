// Package block defines the fixed-size block model: size classes, type
// tags and the Block value type all other services operate on.
package block

import (
	"crypto/rand"
	"fmt"

	"github.com/brightchain/brightchain-go/pkg/checksum"
	"github.com/brightchain/brightchain-go/pkg/errcat"
)

// Size is a block size class in bytes.
type Size int64

const (
	SizeUnknown Size = 0
	// SizeMessage is the minimal class used for small protocol messages.
	SizeMessage Size = 512
	SizeTiny    Size = 1 << 10
	SizeSmall   Size = 1 << 12
	SizeMedium  Size = 1 << 20
	SizeLarge   Size = 1 << 24
	SizeHuge    Size = 1 << 26
)

var sizes = []Size{SizeMessage, SizeTiny, SizeSmall, SizeMedium, SizeLarge, SizeHuge}

var (
	ErrInvalidBlockSize = errcat.Sentinel(errcat.Structural, "block: invalid block size")
	ErrPayloadTooLarge  = errcat.Sentinel(errcat.Capacity, "block: payload exceeds block size")
	ErrEmptyPayload     = errcat.Sentinel(errcat.Structural, "block: empty payload")
)

// ParseSize maps a byte count onto a size class.
func ParseSize(n int64) (Size, error) {
	for _, s := range sizes {
		if int64(s) == n {
			return s, nil
		}
	}
	return SizeUnknown, fmt.Errorf("%w: %d", ErrInvalidBlockSize, n)
}

// Sizes returns the enumerated size classes, smallest first.
func Sizes() []Size {
	out := make([]Size, len(sizes))
	copy(out, sizes)
	return out
}

// Valid reports whether s is one of the enumerated classes.
func (s Size) Valid() bool {
	for _, k := range sizes {
		if s == k {
			return true
		}
	}
	return false
}

func (s Size) String() string {
	switch s {
	case SizeMessage:
		return "Message"
	case SizeTiny:
		return "Tiny"
	case SizeSmall:
		return "Small"
	case SizeMedium:
		return "Medium"
	case SizeLarge:
		return "Large"
	case SizeHuge:
		return "Huge"
	default:
		return fmt.Sprintf("Size(%d)", int64(s))
	}
}

// Type discriminates what a block's payload carries.
type Type byte

const (
	TypeUnknown Type = 0x00
	// TypeRaw is owned plaintext data, never persisted by the engine.
	TypeRaw Type = 0x01
	// TypeRandom is random filler used for whitening and parity.
	TypeRandom Type = 0x02
	// TypeWhitened is the XOR of a source block with random siblings.
	TypeWhitened Type = 0x03
	// TypeEncryptedSingle is a single-recipient ECIES envelope.
	TypeEncryptedSingle Type = 0x04
	// TypeEncryptedMulti is a multi-recipient ECIES envelope.
	TypeEncryptedMulti Type = 0x05
	// TypeCBL is a Content Block List header plus address list.
	TypeCBL Type = 0x06
	// TypeSuperCBL is a CBL whose addresses are themselves CBL checksums.
	TypeSuperCBL Type = 0x07
)

func (t Type) String() string {
	switch t {
	case TypeRaw:
		return "raw"
	case TypeRandom:
		return "random"
	case TypeWhitened:
		return "whitened"
	case TypeEncryptedSingle:
		return "encrypted-single"
	case TypeEncryptedMulti:
		return "encrypted-multi"
	case TypeCBL:
		return "cbl"
	case TypeSuperCBL:
		return "super-cbl"
	default:
		return fmt.Sprintf("Type(0x%02x)", byte(t))
	}
}

// Valid reports whether t is a known tag.
func (t Type) Valid() bool {
	return t >= TypeRaw && t <= TypeSuperCBL
}

// Block is an immutable fixed-size byte buffer with a type tag and a
// size class. The payload may be shorter than the size class but never
// longer. The checksum is always recomputed from the payload, never
// cached, because persisted blocks are immutable.
type Block struct {
	typ     Type
	size    Size
	payload []byte
}

// New validates and wraps payload. The block takes ownership of the
// slice; callers must not mutate it afterwards.
func New(typ Type, size Size, payload []byte) (*Block, error) {
	if !size.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBlockSize, int64(size))
	}
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	if int64(len(payload)) > int64(size) {
		return nil, fmt.Errorf("%w: %d > %s", ErrPayloadTooLarge, len(payload), size)
	}
	return &Block{typ: typ, size: size, payload: payload}, nil
}

// NewRandom returns a block of the given class filled with
// cryptographically random bytes, used as a whitening sibling.
func NewRandom(size Size) (*Block, error) {
	if !size.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBlockSize, int64(size))
	}
	payload := make([]byte, size)
	if _, err := rand.Read(payload); err != nil {
		return nil, fmt.Errorf("block: generating random payload: %w", err)
	}
	return &Block{typ: TypeRandom, size: size, payload: payload}, nil
}

// Type returns the block's type tag.
func (b *Block) Type() Type { return b.typ }

// Size returns the block's size class.
func (b *Block) Size() Size { return b.size }

// Len returns the payload length in bytes.
func (b *Block) Len() int { return len(b.payload) }

// Payload returns the backing payload. Callers must treat it as
// read-only.
func (b *Block) Payload() []byte { return b.payload }

// Checksum recomputes the SHA3-512 digest of the payload.
func (b *Block) Checksum() checksum.Checksum {
	return checksum.Calculate(b.payload)
}
