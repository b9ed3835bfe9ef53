// Package erasure provides the Reed-Solomon parity collaborator used
// for block damage recovery when XOR tuple reconstruction is not
// possible.
//
// A block payload is split into a fixed number of data shards; parity
// shards are stored separately. Because a damaged payload does not
// announce which of its bytes are bad, the parity record carries a
// checksum per data shard: recovery re-checksums the damaged payload's
// shards and treats every mismatch as an erasure.
package erasure

import (
	"bytes"
	"fmt"

	rs "github.com/klauspost/reedsolomon"

	"github.com/brightchain/brightchain-go/pkg/checksum"
	"github.com/brightchain/brightchain-go/pkg/errcat"
)

// DataShards is the fixed data shard count per block.
const DataShards = 4

var (
	ErrInvalidParityCount    = errcat.Sentinel(errcat.Structural, "erasure: parity count must be > 0")
	ErrParityRecordRequired  = errcat.Sentinel(errcat.Recovery, "erasure: parity record required")
	ErrParityShardMismatch   = errcat.Sentinel(errcat.Consistency, "erasure: parity shard count does not match record")
	ErrInsufficientParity    = errcat.Sentinel(errcat.Recovery, "erasure: insufficient intact shards to reconstruct")
	ErrRecoveredSizeMismatch = errcat.Sentinel(errcat.Consistency, "erasure: recovered payload size does not match record")
)

// Parity describes the Reed-Solomon encoding of one block payload. It
// is persisted alongside the block's metadata; the parity shard
// payloads themselves are stored as separate entries keyed by their
// checksums.
type Parity struct {
	DataShards      uint8               `cbor:"1,keyasint"`
	ParityShards    uint8               `cbor:"2,keyasint"`
	ShardSize       int                 `cbor:"3,keyasint"`
	PayloadSize     int                 `cbor:"4,keyasint"`
	ShardChecksums  []checksum.Checksum `cbor:"5,keyasint"`
	ParityChecksums []checksum.Checksum `cbor:"6,keyasint"`
}

// Encoder computes and applies Reed-Solomon parity.
type Encoder struct{}

// NewEncoder returns a ready Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode splits payload into DataShards shards, computes parityCount
// parity shards and returns the parity record plus the parity shard
// payloads, in record order.
func (e *Encoder) Encode(payload []byte, parityCount int) (*Parity, [][]byte, error) {
	if parityCount <= 0 {
		return nil, nil, fmt.Errorf("%w: %d", ErrInvalidParityCount, parityCount)
	}

	enc, err := rs.New(DataShards, parityCount)
	if err != nil {
		return nil, nil, fmt.Errorf("erasure: new encoder: %w", err)
	}
	shards, err := enc.Split(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("erasure: split: %w", err)
	}
	if err := enc.Encode(shards); err != nil {
		return nil, nil, fmt.Errorf("erasure: encode shards: %w", err)
	}

	par := &Parity{
		DataShards:   DataShards,
		ParityShards: uint8(parityCount),
		ShardSize:    len(shards[0]),
		PayloadSize:  len(payload),
	}
	for i := 0; i < DataShards; i++ {
		par.ShardChecksums = append(par.ShardChecksums, checksum.Calculate(shards[i]))
	}

	parityShards := make([][]byte, 0, parityCount)
	for i := DataShards; i < DataShards+parityCount; i++ {
		shard := make([]byte, len(shards[i]))
		copy(shard, shards[i])
		par.ParityChecksums = append(par.ParityChecksums, checksum.Calculate(shard))
		parityShards = append(parityShards, shard)
	}
	return par, parityShards, nil
}

// Recover reconstructs the original payload from a damaged (or missing)
// copy plus the stored parity shards. Data shards whose checksum does
// not match the record are treated as erasures; corrupt or missing
// parity shards (nil entries allowed) are likewise dropped.
func (e *Encoder) Recover(damaged []byte, par *Parity, parityShards [][]byte) ([]byte, error) {
	if par == nil {
		return nil, ErrParityRecordRequired
	}
	if len(parityShards) != int(par.ParityShards) {
		return nil, fmt.Errorf("%w: got %d, record says %d", ErrParityShardMismatch, len(parityShards), par.ParityShards)
	}

	enc, err := rs.New(int(par.DataShards), int(par.ParityShards))
	if err != nil {
		return nil, fmt.Errorf("erasure: new encoder: %w", err)
	}

	shards := make([][]byte, int(par.DataShards)+int(par.ParityShards))
	for i := 0; i < int(par.DataShards); i++ {
		shard := sliceShard(damaged, i, par.ShardSize)
		if shard != nil && checksum.Validate(shard, par.ShardChecksums[i]) {
			shards[i] = shard
		}
	}
	for i, shard := range parityShards {
		if shard != nil && len(shard) == par.ShardSize && checksum.Validate(shard, par.ParityChecksums[i]) {
			shards[int(par.DataShards)+i] = shard
		}
	}

	if err := enc.Reconstruct(shards); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsufficientParity, err)
	}

	var out bytes.Buffer
	if err := enc.Join(&out, shards, par.PayloadSize); err != nil {
		return nil, fmt.Errorf("erasure: join: %w", err)
	}
	recovered := out.Bytes()
	if len(recovered) != par.PayloadSize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrRecoveredSizeMismatch, len(recovered), par.PayloadSize)
	}
	return recovered, nil
}

// sliceShard extracts data shard i from a possibly short or missing
// payload, zero-padded to shardSize like reedsolomon's Split padding.
func sliceShard(payload []byte, i, shardSize int) []byte {
	if payload == nil {
		return nil
	}
	start := i * shardSize
	shard := make([]byte, shardSize)
	if start < len(payload) {
		end := start + shardSize
		if end > len(payload) {
			end = len(payload)
		}
		copy(shard, payload[start:end])
	}
	return shard
}
