// Package store persists blocks by checksum and repairs damaged or
// missing blocks from their tuple siblings and parity records.
package store

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/sirupsen/logrus"

	"github.com/brightchain/brightchain-go/internal/erasure"
	"github.com/brightchain/brightchain-go/internal/keyvalstore"
	"github.com/brightchain/brightchain-go/pkg/block"
	"github.com/brightchain/brightchain-go/pkg/checksum"
	"github.com/brightchain/brightchain-go/pkg/errcat"
	"github.com/brightchain/brightchain-go/pkg/tuple"
)

var (
	ErrBlockNotFound         = errcat.Sentinel(errcat.Consistency, "store: block not found")
	ErrBlockAlreadyExists    = errcat.Sentinel(errcat.Consistency, "store: block already exists")
	ErrBlockSizeMismatch     = errcat.Sentinel(errcat.Structural, "store: block size does not match metadata")
	ErrBlockMetadataNotFound = errcat.Sentinel(errcat.Consistency, "store: block metadata not found")
	ErrSiblingNotFound       = errcat.Sentinel(errcat.Recovery, "store: tuple sibling not found")
	ErrRecoveryFailed        = errcat.Sentinel(errcat.Recovery, "store: block could not be recovered")
)

// Key prefixes. Block payloads and their metadata live side by side in
// the same keyspace.
var (
	blockPrefix    = []byte("b:")
	metadataPrefix = []byte("m:")
)

// Metadata is the per-block sidecar record. Tuple lists the sibling
// checksums whose payload XOR reconstructs this block; Parity and
// ParityShards carry the block's own forward error correction record.
type Metadata struct {
	Type         block.Type          `cbor:"1,keyasint"`
	Size         block.Size          `cbor:"2,keyasint"`
	Tuple        []checksum.Checksum `cbor:"3,keyasint,omitempty"`
	Parity       *erasure.Parity     `cbor:"4,keyasint,omitempty"`
	ParityShards [][]byte            `cbor:"5,keyasint,omitempty"`
}

// BlockStore is a content-addressed block repository. Reads always
// validate the stored payload against its address and fall back to
// tuple XOR reconstruction, then parity recovery, when the payload is
// missing or corrupt.
type BlockStore struct {
	kv     *keyvalstore.Store
	tuples *tuple.Service
	log    *logrus.Logger
}

func New(kv *keyvalstore.Store, tuples *tuple.Service, log *logrus.Logger) *BlockStore {
	if log == nil {
		log = logrus.New()
	}
	return &BlockStore{kv: kv, tuples: tuples, log: log}
}

func blockKey(cs checksum.Checksum) []byte {
	return append(append([]byte{}, blockPrefix...), cs[:]...)
}

func metadataKey(cs checksum.Checksum) []byte {
	return append(append([]byte{}, metadataPrefix...), cs[:]...)
}

// Put stores the block payload under its checksum. Storing a payload
// that is already present fails with ErrBlockAlreadyExists; the caller
// decides whether that is an error or a cache hit.
func (s *BlockStore) Put(b *block.Block) (checksum.Checksum, error) {
	cs := b.Checksum()
	exists, err := s.kv.Has(blockKey(cs))
	if err != nil {
		return checksum.Checksum{}, err
	}
	if exists {
		return cs, fmt.Errorf("%w: %s", ErrBlockAlreadyExists, cs)
	}
	if err := s.kv.Write(blockKey(cs), b.Payload()); err != nil {
		return checksum.Checksum{}, err
	}
	return cs, nil
}

// PutWithMetadata stores the block together with its sidecar record in
// one batch. The metadata size class must match the block's. A payload
// that is already present fails with ErrBlockAlreadyExists and keeps
// its existing sidecar record.
func (s *BlockStore) PutWithMetadata(b *block.Block, md Metadata) (checksum.Checksum, error) {
	if md.Size != b.Size() {
		return checksum.Checksum{}, fmt.Errorf("%w: metadata says %s, block is %s", ErrBlockSizeMismatch, md.Size, b.Size())
	}
	cs := b.Checksum()
	exists, err := s.kv.Has(blockKey(cs))
	if err != nil {
		return checksum.Checksum{}, err
	}
	if exists {
		return cs, fmt.Errorf("%w: %s", ErrBlockAlreadyExists, cs)
	}
	raw, err := cbor.Marshal(&md)
	if err != nil {
		return checksum.Checksum{}, fmt.Errorf("store: encoding metadata for %s: %w", cs, err)
	}
	batch := [][2][]byte{
		{blockKey(cs), b.Payload()},
		{metadataKey(cs), raw},
	}
	if err := s.kv.WriteBatch(batch); err != nil {
		return checksum.Checksum{}, err
	}
	return cs, nil
}

// Has reports whether the block payload is present, without
// validating it.
func (s *BlockStore) Has(cs checksum.Checksum) (bool, error) {
	return s.kv.Has(blockKey(cs))
}

// Metadata loads the sidecar record for a block.
func (s *BlockStore) Metadata(cs checksum.Checksum) (*Metadata, error) {
	raw, err := s.kv.Read(metadataKey(cs))
	if errors.Is(err, keyvalstore.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrBlockMetadataNotFound, cs)
	}
	if err != nil {
		return nil, err
	}
	var md Metadata
	if err := cbor.Unmarshal(raw, &md); err != nil {
		return nil, fmt.Errorf("store: decoding metadata for %s: %w", cs, err)
	}
	return &md, nil
}

// Delete removes a block and its metadata. Siblings referencing the
// block are untouched; their recovery paths simply lose one option.
func (s *BlockStore) Delete(cs checksum.Checksum) error {
	if err := s.kv.Delete(blockKey(cs)); err != nil {
		return err
	}
	return s.kv.Delete(metadataKey(cs))
}

// Get loads a block, validating the payload against its address. A
// missing or corrupt payload triggers recovery: tuple XOR
// reconstruction first, parity second, each attempted exactly once.
// Recovered payloads are written back.
func (s *BlockStore) Get(cs checksum.Checksum) (*block.Block, error) {
	payload, err := s.kv.Read(blockKey(cs))
	switch {
	case errors.Is(err, keyvalstore.ErrKeyNotFound):
		payload = nil
	case err != nil:
		return nil, err
	case checksum.Validate(payload, cs):
		md, err := s.Metadata(cs)
		if err != nil {
			// No sidecar record: a bare block is still valid.
			return block.New(block.TypeRaw, sizeOf(payload), payload)
		}
		return block.New(md.Type, md.Size, payload)
	}

	md, err := s.Metadata(cs)
	if err != nil {
		if payload == nil {
			return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, cs)
		}
		return nil, err
	}

	recovered, err := s.recover(cs, payload, md)
	if err != nil {
		return nil, err
	}

	if err := s.kv.Write(blockKey(cs), recovered.Payload()); err != nil {
		s.log.WithField("block", cs.String()).WithError(err).Warn("write-back of recovered block failed")
	}
	return recovered, nil
}

func (s *BlockStore) recover(cs checksum.Checksum, damaged []byte, md *Metadata) (*block.Block, error) {
	if b, err := s.recoverFromTuple(cs, md); err == nil {
		return b, nil
	} else {
		s.log.WithField("block", cs.String()).WithError(err).Debug("tuple reconstruction failed, trying parity")
	}

	b, err := s.recoverFromParity(cs, damaged, md)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRecoveryFailed, cs, err)
	}
	return b, nil
}

// recoverFromTuple XORs the sibling payloads listed in the metadata.
// Every sibling must be present and intact.
func (s *BlockStore) recoverFromTuple(cs checksum.Checksum, md *Metadata) (*block.Block, error) {
	if len(md.Tuple) == 0 {
		return nil, fmt.Errorf("%w: %s has no tuple record", ErrSiblingNotFound, cs)
	}

	members := make([]*block.Block, 0, len(md.Tuple))
	for _, sib := range md.Tuple {
		payload, err := s.kv.Read(blockKey(sib))
		if err != nil || !checksum.Validate(payload, sib) {
			return nil, fmt.Errorf("%w: sibling %s of %s", ErrSiblingNotFound, sib, cs)
		}
		b, err := block.New(block.TypeRaw, md.Size, payload)
		if err != nil {
			return nil, err
		}
		members = append(members, b)
	}

	candidate, err := s.tuples.Reconstruct(members[1:], members[0])
	if err != nil {
		return nil, err
	}
	if !checksum.Validate(candidate.Payload(), cs) {
		return nil, fmt.Errorf("%w: tuple XOR of %s does not match address", ErrRecoveryFailed, cs)
	}
	return block.New(md.Type, md.Size, candidate.Payload())
}

func (s *BlockStore) recoverFromParity(cs checksum.Checksum, damaged []byte, md *Metadata) (*block.Block, error) {
	if md.Parity == nil {
		return nil, erasure.ErrParityRecordRequired
	}
	candidate, err := s.tuples.RecoverDamaged(damaged, md.Size, md.Parity, md.ParityShards)
	if err != nil {
		return nil, err
	}
	if !checksum.Validate(candidate.Payload(), cs) {
		return nil, fmt.Errorf("parity recovery of %s does not match address", cs)
	}
	return block.New(md.Type, md.Size, candidate.Payload())
}

// sizeOf labels a payload without a sidecar record with the smallest
// class that fits; the original class of a short payload stored via
// Put is not recorded anywhere.
func sizeOf(payload []byte) block.Size {
	for _, sz := range block.Sizes() {
		if int64(len(payload)) <= int64(sz) {
			return sz
		}
	}
	return block.SizeHuge
}
