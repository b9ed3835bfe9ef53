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
)

// SuperParams are the inputs of MakeSuperCbl.
type SuperParams struct {
	CreatorID          uuid.UUID
	CreatedAt          time.Time
	OriginalDataLength uint64
	// OriginalDataChecksum digests the fully reassembled original data.
	OriginalDataChecksum checksum.Checksum
	// Depth is the hierarchy depth, 1 for a SuperCBL of plain CBLs.
	Depth uint16
	// SubCblCount must equal the length of the checksum list.
	SubCblCount uint32
	// TotalBlockCount is the total data block count across all sub-CBLs.
	TotalBlockCount uint64
	BlockSize       block.Size
}

// SuperHeader is a parsed SuperCBL header.
type SuperHeader struct {
	Version              byte
	CreatorID            uuid.UUID
	CreatedAt            time.Time
	OriginalDataLength   uint64
	OriginalDataChecksum checksum.Checksum
	Depth                uint16
	SubCblCount          uint32
	TotalBlockCount      uint64
	Signature            []byte
	SubCblChecksums      []checksum.Checksum
	SignatureVerified    bool
}

// IsSuperCbl checks the structured-block discriminator at the header's
// second byte.
func IsSuperCbl(data []byte) bool {
	return len(data) >= 2 && data[0] == Magic && block.Type(data[1]) == block.TypeSuperCBL
}

// MakeSuperCbl builds the complete SuperCBL block payload.
func (s *Service) MakeSuperCbl(p SuperParams, subCbls []checksum.Checksum, priv *secp256k1.PrivateKey) ([]byte, error) {
	if priv == nil {
		return nil, ErrPrivateKeyRequired
	}
	if p.Depth < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, p.Depth)
	}
	if int(p.SubCblCount) != len(subCbls) {
		return nil, fmt.Errorf("%w: count %d, %d checksums", ErrSubCblCountMismatch, p.SubCblCount, len(subCbls))
	}
	if len(subCbls) == 0 {
		return nil, fmt.Errorf("%w: empty sub-CBL list", ErrSubCblCountMismatch)
	}
	if p.TotalBlockCount == 0 {
		return nil, ErrTotalBlockCountOfZero
	}
	if p.OriginalDataLength > MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileSizeTooLarge, p.OriginalDataLength)
	}

	buf := writeFixedPrefix(nil, block.TypeSuperCBL, 0, p.CreatorID, p.CreatedAt, p.OriginalDataLength)
	buf = append(buf, p.OriginalDataChecksum[:]...)
	buf = binary.BigEndian.AppendUint16(buf, p.Depth)
	buf = binary.BigEndian.AppendUint32(buf, p.SubCblCount)
	buf = binary.BigEndian.AppendUint64(buf, p.TotalBlockCount)

	total := len(buf) + ecies.SignatureLength + len(subCbls)*checksum.Size
	if !p.BlockSize.Valid() {
		return nil, fmt.Errorf("%w: %d", block.ErrInvalidBlockSize, int64(p.BlockSize))
	}
	if int64(total) > int64(p.BlockSize) {
		return nil, fmt.Errorf("%w: %d bytes into a %s block", ErrInsufficientCapacity, total, p.BlockSize)
	}

	addrBytes := make([]byte, 0, len(subCbls)*checksum.Size)
	for _, c := range subCbls {
		addrBytes = append(addrBytes, c[:]...)
	}

	signed := make([]byte, 0, len(buf)+len(addrBytes))
	signed = append(signed, buf...)
	signed = append(signed, addrBytes...)
	sig, err := s.ecies.Sign(priv, signed)
	if err != nil {
		return nil, fmt.Errorf("cbl: signing super header: %w", err)
	}

	out := make([]byte, 0, total)
	out = append(out, buf...)
	out = append(out, sig...)
	out = append(out, addrBytes...)
	return out, nil
}

// ParseSuperCbl parses a SuperCBL payload structurally.
func (s *Service) ParseSuperCbl(data []byte) (*SuperHeader, error) {
	return s.parseSuperCbl(data, nil)
}

// ParseSuperCblVerified parses and verifies the creator signature.
func (s *Service) ParseSuperCblVerified(data, creatorPubKey []byte) (*SuperHeader, error) {
	if creatorPubKey == nil {
		return nil, fmt.Errorf("%w: creator public key required", ErrInvalidSignature)
	}
	return s.parseSuperCbl(data, creatorPubKey)
}

func (s *Service) parseSuperCbl(data, creatorPubKey []byte) (*SuperHeader, error) {
	if len(data) < superDataLen+ecies.SignatureLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidHeader, len(data))
	}
	if data[0] != Magic {
		return nil, fmt.Errorf("%w: bad magic 0x%02x", ErrInvalidHeader, data[0])
	}
	if block.Type(data[1]) != block.TypeSuperCBL {
		return nil, fmt.Errorf("%w: type 0x%02x is not a SuperCBL", ErrInvalidHeader, data[1])
	}
	if data[2] != Version {
		return nil, fmt.Errorf("%w: unsupported version 0x%02x", ErrInvalidHeader, data[2])
	}

	h := &SuperHeader{Version: data[2]}
	copy(h.CreatorID[:], data[4:20])
	h.CreatedAt = time.UnixMilli(int64(binary.BigEndian.Uint64(data[20:28]))).UTC()
	h.OriginalDataLength = binary.BigEndian.Uint64(data[28:36])
	copy(h.OriginalDataChecksum[:], data[36:36+checksum.Size])
	off := 36 + checksum.Size
	h.Depth = binary.BigEndian.Uint16(data[off : off+2])
	h.SubCblCount = binary.BigEndian.Uint32(data[off+2 : off+6])
	h.TotalBlockCount = binary.BigEndian.Uint64(data[off+6 : off+14])
	off += 14

	if h.Depth < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, h.Depth)
	}
	if h.SubCblCount == 0 {
		return nil, fmt.Errorf("%w: zero sub-CBLs", ErrSubCblCountMismatch)
	}
	if h.OriginalDataLength > MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileSizeTooLarge, h.OriginalDataLength)
	}

	sigEnd := off + ecies.SignatureLength
	addrEnd := sigEnd + int(h.SubCblCount)*checksum.Size
	if len(data) != addrEnd {
		return nil, fmt.Errorf("%w: %d bytes, expected %d for %d sub-CBLs", ErrInvalidHeader, len(data), addrEnd, h.SubCblCount)
	}
	h.Signature = append([]byte(nil), data[off:sigEnd]...)

	h.SubCblChecksums = make([]checksum.Checksum, h.SubCblCount)
	for i := range h.SubCblChecksums {
		copy(h.SubCblChecksums[i][:], data[sigEnd+i*checksum.Size:])
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
