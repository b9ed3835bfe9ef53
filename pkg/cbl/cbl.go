// Package cbl builds and parses the binary headers of Content Block
// List blocks and their hierarchical SuperCBL variant.
//
// Layout, all multi-byte integers big-endian:
//
//	CBL:      magic(1) type(1) version(1) flags(1) creator(16)
//	          timestamp(8) originalDataLength(8) addressCount(4)
//	          tupleSize(1) [extended: fnLen(2) fn mimeLen(2) mime]
//	          signature(65) addresses(64 each)
//	SuperCBL: magic(1) type(1) version(1) flags(1) creator(16)
//	          timestamp(8) originalDataLength(8)
//	          originalDataChecksum(64) depth(2) subCblCount(4)
//	          totalBlockCount(8) signature(65) subCblChecksums(64 each)
//
// The signature covers every header byte ahead of the signature field
// plus the full address list, so mutating a single address byte
// invalidates it.
package cbl

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/google/uuid"

	"github.com/brightchain/brightchain-go/pkg/block"
	"github.com/brightchain/brightchain-go/pkg/checksum"
	"github.com/brightchain/brightchain-go/pkg/ecies"
	"github.com/brightchain/brightchain-go/pkg/errcat"
	"github.com/brightchain/brightchain-go/pkg/tuple"
)

const (
	// Magic is the first byte of every structured block header.
	Magic = 0xBC
	// Version is the current header format version.
	Version = 0x01

	flagExtended   = 0x01
	flagCompressed = 0x02

	// MaxFileSize bounds the declared original data length.
	MaxFileSize = 1 << 53

	fixedPrefix  = 1 + 1 + 1 + 1 + 16 + 8 + 8 // through originalDataLength
	cblFixedLen  = fixedPrefix + 4 + 1        // + addressCount + tupleSize
	superDataLen = fixedPrefix + checksum.Size + 2 + 4 + 8
)

var (
	ErrInvalidHeader         = errcat.Sentinel(errcat.Structural, "cbl: invalid header")
	ErrInsufficientCapacity  = errcat.Sentinel(errcat.Capacity, "cbl: header and addresses exceed block capacity")
	ErrInvalidAddressCount   = errcat.Sentinel(errcat.Structural, "cbl: address count not a multiple of tuple size")
	ErrFileSizeTooLarge      = errcat.Sentinel(errcat.Capacity, "cbl: original data length exceeds maximum file size")
	ErrInvalidDepth          = errcat.Sentinel(errcat.Structural, "cbl: depth out of range")
	ErrSubCblCountMismatch   = errcat.Sentinel(errcat.Consistency, "cbl: sub-CBL count does not match checksum list")
	ErrMetadataFieldTooLong  = errcat.Sentinel(errcat.Capacity, "cbl: extended metadata field too long")
	ErrInvalidSignature      = errcat.Sentinel(errcat.Crypto, "cbl: signature does not verify against creator key")
	ErrPrivateKeyRequired    = errcat.Sentinel(errcat.Crypto, "cbl: creator private key required")
	ErrAddressCountTooLarge  = errcat.Sentinel(errcat.Capacity, "cbl: address count exceeds field range")
	ErrTotalBlockCountOfZero = errcat.Sentinel(errcat.Structural, "cbl: total block count must be > 0")
)

// Service builds and parses CBL headers. Signing and verification go
// through the injected ECIES service.
type Service struct {
	ecies *ecies.Service
}

// NewService returns a Service using e for signatures.
func NewService(e *ecies.Service) *Service {
	return &Service{ecies: e}
}

// Params are the inputs of MakeCbl.
type Params struct {
	CreatorID          uuid.UUID
	CreatedAt          time.Time
	OriginalDataLength uint64
	TupleSize          int
	// Filename and MimeType are optional extended metadata; setting
	// either produces an extended header.
	Filename string
	MimeType string
	// Compressed records that the original data was compressed before
	// splitting, so retrieval knows to decompress after reassembly.
	Compressed bool
	// BlockSize is the class of the block that will own this header.
	BlockSize block.Size
}

// Header is a parsed CBL header.
type Header struct {
	Version            byte
	CreatorID          uuid.UUID
	CreatedAt          time.Time
	OriginalDataLength uint64
	AddressCount       uint32
	TupleSize          byte
	Filename           string
	MimeType           string
	Compressed         bool
	Signature          []byte
	Addresses          []checksum.Checksum
	// SignatureVerified is true only when the header was parsed with a
	// creator public key and the signature checked out.
	SignatureVerified bool
}

func writeFixedPrefix(buf []byte, typ block.Type, flags byte, creator uuid.UUID, createdAt time.Time, originalDataLength uint64) []byte {
	buf = append(buf, Magic, byte(typ), Version, flags)
	buf = append(buf, creator[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(createdAt.UnixMilli()))
	buf = binary.BigEndian.AppendUint64(buf, originalDataLength)
	return buf
}

// MaxAddresses returns how many block addresses a CBL of the given
// size class can carry alongside the given extended metadata.
func MaxAddresses(size block.Size, filename, mime string) int {
	header := cblFixedLen + ecies.SignatureLength
	if filename != "" || mime != "" {
		header += 2 + len(filename) + 2 + len(mime)
	}
	free := int(size) - header
	if free < 0 {
		return 0
	}
	return free / checksum.Size
}

// MaxSubCbls returns how many sub-CBL checksums a SuperCBL of the
// given size class can carry.
func MaxSubCbls(size block.Size) int {
	free := int(size) - superDataLen - ecies.SignatureLength
	if free < 0 {
		return 0
	}
	return free / checksum.Size
}

// MakeCbl builds the complete CBL block payload: header, signature and
// address list, signed with the creator's private key.
func (s *Service) MakeCbl(p Params, addresses []checksum.Checksum, priv *secp256k1.PrivateKey) ([]byte, error) {
	if priv == nil {
		return nil, ErrPrivateKeyRequired
	}
	if p.TupleSize < tuple.MinSize || p.TupleSize > tuple.MaxSize {
		return nil, fmt.Errorf("%w: %d", tuple.ErrInvalidTupleSize, p.TupleSize)
	}
	if len(addresses) == 0 || len(addresses)%p.TupleSize != 0 {
		return nil, fmt.Errorf("%w: %d addresses, tuple size %d", ErrInvalidAddressCount, len(addresses), p.TupleSize)
	}
	if uint64(len(addresses)) > 1<<32-1 {
		return nil, fmt.Errorf("%w: %d", ErrAddressCountTooLarge, len(addresses))
	}
	if p.OriginalDataLength > MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileSizeTooLarge, p.OriginalDataLength)
	}
	if len(p.Filename) > 0xffff || len(p.MimeType) > 0xffff {
		return nil, ErrMetadataFieldTooLong
	}

	var flags byte
	extended := p.Filename != "" || p.MimeType != ""
	if extended {
		flags |= flagExtended
	}
	if p.Compressed {
		flags |= flagCompressed
	}

	buf := writeFixedPrefix(nil, block.TypeCBL, flags, p.CreatorID, p.CreatedAt, p.OriginalDataLength)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(addresses)))
	buf = append(buf, byte(p.TupleSize))
	if extended {
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(p.Filename)))
		buf = append(buf, p.Filename...)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(p.MimeType)))
		buf = append(buf, p.MimeType...)
	}

	total := len(buf) + ecies.SignatureLength + len(addresses)*checksum.Size
	if !p.BlockSize.Valid() {
		return nil, fmt.Errorf("%w: %d", block.ErrInvalidBlockSize, int64(p.BlockSize))
	}
	if int64(total) > int64(p.BlockSize) {
		return nil, fmt.Errorf("%w: %d bytes into a %s block", ErrInsufficientCapacity, total, p.BlockSize)
	}

	addrBytes := make([]byte, 0, len(addresses)*checksum.Size)
	for _, a := range addresses {
		addrBytes = append(addrBytes, a[:]...)
	}

	signed := make([]byte, 0, len(buf)+len(addrBytes))
	signed = append(signed, buf...)
	signed = append(signed, addrBytes...)
	sig, err := s.ecies.Sign(priv, signed)
	if err != nil {
		return nil, fmt.Errorf("cbl: signing header: %w", err)
	}

	out := make([]byte, 0, total)
	out = append(out, buf...)
	out = append(out, sig...)
	out = append(out, addrBytes...)
	return out, nil
}

// ParseCbl parses a CBL block payload structurally, without signature
// verification.
func (s *Service) ParseCbl(data []byte) (*Header, error) {
	return s.parseCbl(data, nil)
}

// ParseCblVerified parses and additionally verifies the embedded
// signature against the creator's public key (compressed or
// uncompressed encoding).
func (s *Service) ParseCblVerified(data, creatorPubKey []byte) (*Header, error) {
	if creatorPubKey == nil {
		return nil, fmt.Errorf("%w: creator public key required", ErrInvalidSignature)
	}
	return s.parseCbl(data, creatorPubKey)
}

func (s *Service) parseCbl(data, creatorPubKey []byte) (*Header, error) {
	if len(data) < cblFixedLen+ecies.SignatureLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidHeader, len(data))
	}
	if data[0] != Magic {
		return nil, fmt.Errorf("%w: bad magic 0x%02x", ErrInvalidHeader, data[0])
	}
	if block.Type(data[1]) != block.TypeCBL {
		return nil, fmt.Errorf("%w: type 0x%02x is not a CBL", ErrInvalidHeader, data[1])
	}
	if data[2] != Version {
		return nil, fmt.Errorf("%w: unsupported version 0x%02x", ErrInvalidHeader, data[2])
	}
	flags := data[3]

	h := &Header{Version: data[2], Compressed: flags&flagCompressed != 0}
	copy(h.CreatorID[:], data[4:20])
	h.CreatedAt = time.UnixMilli(int64(binary.BigEndian.Uint64(data[20:28]))).UTC()
	h.OriginalDataLength = binary.BigEndian.Uint64(data[28:36])
	h.AddressCount = binary.BigEndian.Uint32(data[36:40])
	h.TupleSize = data[40]

	off := cblFixedLen
	if flags&flagExtended != 0 {
		var err error
		h.Filename, off, err = readLenPrefixed(data, off)
		if err != nil {
			return nil, err
		}
		h.MimeType, off, err = readLenPrefixed(data, off)
		if err != nil {
			return nil, err
		}
	}

	if h.OriginalDataLength > MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileSizeTooLarge, h.OriginalDataLength)
	}
	if h.TupleSize < tuple.MinSize || h.TupleSize > tuple.MaxSize {
		return nil, fmt.Errorf("%w: %d", tuple.ErrInvalidTupleSize, h.TupleSize)
	}
	if h.AddressCount == 0 || h.AddressCount%uint32(h.TupleSize) != 0 {
		return nil, fmt.Errorf("%w: %d addresses, tuple size %d", ErrInvalidAddressCount, h.AddressCount, h.TupleSize)
	}

	sigEnd := off + ecies.SignatureLength
	addrEnd := sigEnd + int(h.AddressCount)*checksum.Size
	if len(data) != addrEnd {
		return nil, fmt.Errorf("%w: %d bytes, expected %d for %d addresses", ErrInvalidHeader, len(data), addrEnd, h.AddressCount)
	}
	h.Signature = append([]byte(nil), data[off:sigEnd]...)

	h.Addresses = make([]checksum.Checksum, h.AddressCount)
	for i := range h.Addresses {
		copy(h.Addresses[i][:], data[sigEnd+i*checksum.Size:])
	}

	if creatorPubKey != nil {
		signed := make([]byte, 0, off+len(data)-sigEnd)
		signed = append(signed, data[:off]...)
		signed = append(signed, data[sigEnd:]...)
		ok, err := s.ecies.Verify(creatorPubKey, signed, h.Signature)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		if !ok {
			return nil, ErrInvalidSignature
		}
		h.SignatureVerified = true
	}
	return h, nil
}

func readLenPrefixed(data []byte, off int) (string, int, error) {
	if off+2 > len(data) {
		return "", 0, fmt.Errorf("%w: truncated metadata length", ErrInvalidHeader)
	}
	n := int(binary.BigEndian.Uint16(data[off : off+2]))
	off += 2
	if off+n > len(data) {
		return "", 0, fmt.Errorf("%w: truncated metadata field", ErrInvalidHeader)
	}
	return string(data[off : off+n]), off + n, nil
}
