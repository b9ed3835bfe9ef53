// Package tuple implements the XOR whitening scheme: fixed-size groups
// of same-size blocks combined byte-wise so that no stored member alone
// reveals the content, plus reconstruction of a missing member and
// FEC-assisted recovery for deeper damage.
package tuple

import (
	"fmt"

	"github.com/brightchain/brightchain-go/internal/erasure"
	"github.com/brightchain/brightchain-go/pkg/block"
	"github.com/brightchain/brightchain-go/pkg/errcat"
)

const (
	// MinSize and MaxSize bound the configurable tuple size, inclusive.
	MinSize = 2
	MaxSize = 5
	// DefaultSize is the tuple size used when none is configured.
	DefaultSize = 3
)

var (
	ErrInvalidTupleSize                 = errcat.Sentinel(errcat.Structural, "tuple: tuple size out of range")
	ErrNoBlocksToXor                    = errcat.Sentinel(errcat.Structural, "tuple: at least one block required")
	ErrBlockSizeMismatch                = errcat.Sentinel(errcat.Structural, "tuple: member block sizes differ")
	ErrWrongMemberCount                 = errcat.Sentinel(errcat.Structural, "tuple: wrong number of known members")
	ErrDamagedBlockRequired             = errcat.Sentinel(errcat.Recovery, "tuple: damaged block payload required for recovery")
	ErrParityBlocksRequired             = errcat.Sentinel(errcat.Recovery, "tuple: parity blocks required for recovery")
	ErrInvalidParityBlockSize           = errcat.Sentinel(errcat.Consistency, "tuple: parity block size does not match record")
	ErrInvalidRecoveredBlockSize        = errcat.Sentinel(errcat.Consistency, "tuple: recovered block size does not match expected size")
	ErrRecoveryFailedInsufficientParity = errcat.Sentinel(errcat.Recovery, "tuple: recovery failed, insufficient parity data")
)

// Service groups blocks into tuples of a fixed size and recovers
// missing or damaged members. The erasure encoder is the FEC
// collaborator consulted when fewer than size−1 members survive.
type Service struct {
	size int
	fec  *erasure.Encoder
}

// NewService validates the tuple size against [MinSize, MaxSize].
func NewService(size int, fec *erasure.Encoder) (*Service, error) {
	if size < MinSize || size > MaxSize {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidTupleSize, size, MinSize, MaxSize)
	}
	return &Service{size: size, fec: fec}, nil
}

// Size returns the configured tuple size.
func (s *Service) Size() int { return s.size }

// xorPayloads XORs all payloads together. All inputs must share one
// length; order is irrelevant to the result.
func xorPayloads(payloads [][]byte) ([]byte, error) {
	if len(payloads) == 0 {
		return nil, ErrNoBlocksToXor
	}
	n := len(payloads[0])
	for i, p := range payloads {
		if len(p) != n {
			return nil, fmt.Errorf("%w: member %d has %d bytes, member 0 has %d", ErrBlockSizeMismatch, i, len(p), n)
		}
	}
	out := make([]byte, n)
	copy(out, payloads[0])
	for _, p := range payloads[1:] {
		for i := range out {
			out[i] ^= p[i]
		}
	}
	return out, nil
}

// Whiten XORs all members of a full tuple into one whitened block. All
// members must share a size class and payload length.
func (s *Service) Whiten(members []*block.Block) (*block.Block, error) {
	if len(members) == 0 {
		return nil, ErrNoBlocksToXor
	}
	if len(members) != s.size {
		return nil, fmt.Errorf("%w: got %d members, tuple size is %d", ErrWrongMemberCount, len(members), s.size)
	}
	size := members[0].Size()
	payloads := make([][]byte, len(members))
	for i, m := range members {
		if m.Size() != size {
			return nil, fmt.Errorf("%w: member %d is %s, member 0 is %s", ErrBlockSizeMismatch, i, m.Size(), size)
		}
		payloads[i] = m.Payload()
	}
	out, err := xorPayloads(payloads)
	if err != nil {
		return nil, err
	}
	return block.New(block.TypeWhitened, size, out)
}

// Reconstruct recovers the single missing member of a tuple: the XOR of
// the whitened result with every known member. Exactly size−1 known
// members are required.
func (s *Service) Reconstruct(known []*block.Block, whitened *block.Block) (*block.Block, error) {
	if whitened == nil {
		return nil, ErrNoBlocksToXor
	}
	if len(known) != s.size-1 {
		return nil, fmt.Errorf("%w: got %d known members, need %d", ErrWrongMemberCount, len(known), s.size-1)
	}
	payloads := make([][]byte, 0, s.size)
	payloads = append(payloads, whitened.Payload())
	for i, m := range known {
		if m.Size() != whitened.Size() {
			return nil, fmt.Errorf("%w: member %d is %s, whitened is %s", ErrBlockSizeMismatch, i, m.Size(), whitened.Size())
		}
		payloads = append(payloads, m.Payload())
	}
	out, err := xorPayloads(payloads)
	if err != nil {
		return nil, err
	}
	return block.New(block.TypeRaw, whitened.Size(), out)
}

// RecoverDamaged repairs a damaged block via the FEC collaborator when
// too few tuple members survive for XOR reconstruction. The damaged
// payload may be nil when the stored bytes are gone entirely; recovery
// then relies on parity alone.
func (s *Service) RecoverDamaged(damaged []byte, size block.Size, par *erasure.Parity, parityShards [][]byte) (*block.Block, error) {
	if par == nil {
		return nil, ErrParityBlocksRequired
	}
	if damaged == nil && int(par.ParityShards) < int(par.DataShards) {
		// Parity alone cannot rebuild all data shards.
		return nil, fmt.Errorf("%w: no damaged payload and only %d parity shards for %d data shards",
			ErrDamagedBlockRequired, par.ParityShards, par.DataShards)
	}
	for i, shard := range parityShards {
		if shard != nil && len(shard) != par.ShardSize {
			return nil, fmt.Errorf("%w: parity shard %d has %d bytes, record says %d", ErrInvalidParityBlockSize, i, len(shard), par.ShardSize)
		}
	}

	recovered, err := s.fec.Recover(damaged, par, parityShards)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecoveryFailedInsufficientParity, err)
	}
	if int64(len(recovered)) > int64(size) {
		return nil, fmt.Errorf("%w: %d bytes exceed %s", ErrInvalidRecoveredBlockSize, len(recovered), size)
	}
	return block.New(block.TypeRaw, size, recovered)
}
