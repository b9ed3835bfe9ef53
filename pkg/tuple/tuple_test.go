package tuple

import (
	"bytes"
	"errors"
	"testing"

	"github.com/brightchain/brightchain-go/internal/erasure"
	"github.com/brightchain/brightchain-go/pkg/block"
)

func newService(t *testing.T, size int) *Service {
	t.Helper()
	svc, err := NewService(size, erasure.NewEncoder())
	if err != nil {
		t.Fatalf("NewService(%d) failed: %v", size, err)
	}
	return svc
}

func randomBlocks(t *testing.T, n int, size block.Size) []*block.Block {
	t.Helper()
	out := make([]*block.Block, n)
	for i := range out {
		b, err := block.NewRandom(size)
		if err != nil {
			t.Fatalf("NewRandom failed: %v", err)
		}
		out[i] = b
	}
	return out
}

func TestNewServiceBounds(t *testing.T) {
	for _, size := range []int{MinSize, DefaultSize, MaxSize} {
		if _, err := NewService(size, erasure.NewEncoder()); err != nil {
			t.Errorf("NewService(%d) failed: %v", size, err)
		}
	}
	for _, size := range []int{MinSize - 1, MaxSize + 1, 0, -1} {
		if _, err := NewService(size, erasure.NewEncoder()); !errors.Is(err, ErrInvalidTupleSize) {
			t.Errorf("NewService(%d): want ErrInvalidTupleSize", size)
		}
	}
}

func TestWhitenReconstructInvolution(t *testing.T) {
	svc := newService(t, 3)
	members := randomBlocks(t, 3, block.SizeMessage)

	whitened, err := svc.Whiten(members)
	if err != nil {
		t.Fatalf("Whiten failed: %v", err)
	}
	if whitened.Type() != block.TypeWhitened {
		t.Errorf("whitened type %v, want TypeWhitened", whitened.Type())
	}

	// Any k−1 members plus the whitened result reconstruct the missing
	// member exactly. Member order must not matter.
	for missing := 0; missing < len(members); missing++ {
		known := make([]*block.Block, 0, len(members)-1)
		for i, m := range members {
			if i != missing {
				known = append(known, m)
			}
		}
		got, err := svc.Reconstruct(known, whitened)
		if err != nil {
			t.Fatalf("Reconstruct (missing %d) failed: %v", missing, err)
		}
		if !bytes.Equal(got.Payload(), members[missing].Payload()) {
			t.Errorf("reconstructed member %d differs from original", missing)
		}
	}
}

func TestWhitenValidation(t *testing.T) {
	svc := newService(t, 3)

	if _, err := svc.Whiten(nil); !errors.Is(err, ErrNoBlocksToXor) {
		t.Errorf("no members: got %v, want ErrNoBlocksToXor", err)
	}

	short := randomBlocks(t, 2, block.SizeMessage)
	if _, err := svc.Whiten(short); !errors.Is(err, ErrWrongMemberCount) {
		t.Errorf("short tuple: got %v, want ErrWrongMemberCount", err)
	}

	mixed := randomBlocks(t, 2, block.SizeMessage)
	odd, err := block.NewRandom(block.SizeTiny)
	if err != nil {
		t.Fatalf("NewRandom failed: %v", err)
	}
	if _, err := svc.Whiten(append(mixed, odd)); !errors.Is(err, ErrBlockSizeMismatch) {
		t.Errorf("mixed sizes: got %v, want ErrBlockSizeMismatch", err)
	}
}

func TestReconstructValidation(t *testing.T) {
	svc := newService(t, 3)
	members := randomBlocks(t, 3, block.SizeMessage)
	whitened, err := svc.Whiten(members)
	if err != nil {
		t.Fatalf("Whiten failed: %v", err)
	}

	if _, err := svc.Reconstruct(members, whitened); !errors.Is(err, ErrWrongMemberCount) {
		t.Errorf("too many known members: got %v, want ErrWrongMemberCount", err)
	}
	if _, err := svc.Reconstruct(members[:2], nil); !errors.Is(err, ErrNoBlocksToXor) {
		t.Errorf("nil whitened: got %v, want ErrNoBlocksToXor", err)
	}
}

func TestRecoverDamagedViaParity(t *testing.T) {
	svc := newService(t, 3)
	fec := erasure.NewEncoder()

	original, err := block.NewRandom(block.SizeTiny)
	if err != nil {
		t.Fatalf("NewRandom failed: %v", err)
	}
	par, parity, err := fec.Encode(original.Payload(), 2)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	damaged := make([]byte, original.Len())
	copy(damaged, original.Payload())
	damaged[3] ^= 0xff

	got, err := svc.RecoverDamaged(damaged, block.SizeTiny, par, parity)
	if err != nil {
		t.Fatalf("RecoverDamaged failed: %v", err)
	}
	if !bytes.Equal(got.Payload(), original.Payload()) {
		t.Error("recovered payload differs from original")
	}
}

func TestRecoverDamagedErrors(t *testing.T) {
	svc := newService(t, 3)
	fec := erasure.NewEncoder()

	original, err := block.NewRandom(block.SizeTiny)
	if err != nil {
		t.Fatalf("NewRandom failed: %v", err)
	}
	par, parity, err := fec.Encode(original.Payload(), 2)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if _, err := svc.RecoverDamaged(original.Payload(), block.SizeTiny, nil, nil); !errors.Is(err, ErrParityBlocksRequired) {
		t.Errorf("nil parity record: got %v, want ErrParityBlocksRequired", err)
	}

	if _, err := svc.RecoverDamaged(nil, block.SizeTiny, par, parity); !errors.Is(err, ErrDamagedBlockRequired) {
		t.Errorf("missing payload with thin parity: got %v, want ErrDamagedBlockRequired", err)
	}

	bad := make([][]byte, len(parity))
	copy(bad, parity)
	bad[0] = bad[0][:len(bad[0])-1]
	if _, err := svc.RecoverDamaged(original.Payload(), block.SizeTiny, par, bad); !errors.Is(err, ErrInvalidParityBlockSize) {
		t.Errorf("short parity shard: got %v, want ErrInvalidParityBlockSize", err)
	}

	// Destroy more shards than parity can absorb.
	wrecked := make([]byte, original.Len())
	if _, err := svc.RecoverDamaged(wrecked, block.SizeTiny, par, [][]byte{nil, nil}); !errors.Is(err, ErrRecoveryFailedInsufficientParity) {
		t.Errorf("hopeless damage: got %v, want ErrRecoveryFailedInsufficientParity", err)
	}
}
