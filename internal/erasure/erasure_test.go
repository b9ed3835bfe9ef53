package erasure

import (
	"bytes"
	"errors"
	"testing"
)

func testPayload(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i % 253)
	}
	return out
}

func TestEncodeRecoverIntactPayload(t *testing.T) {
	enc := NewEncoder()
	payload := testPayload(1000)

	par, parity, err := enc.Encode(payload, 2)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(parity) != 2 {
		t.Fatalf("got %d parity shards, want 2", len(parity))
	}
	if len(par.ShardChecksums) != DataShards {
		t.Fatalf("got %d shard checksums, want %d", len(par.ShardChecksums), DataShards)
	}

	recovered, err := enc.Recover(payload, par, parity)
	if err != nil {
		t.Fatalf("Recover of intact payload failed: %v", err)
	}
	if !bytes.Equal(recovered, payload) {
		t.Error("recovered payload differs from original")
	}
}

func TestRecoverCorruptedShards(t *testing.T) {
	enc := NewEncoder()
	payload := testPayload(4096)

	par, parity, err := enc.Encode(payload, 2)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// Corrupt two data shards; two parity shards can absorb that.
	damaged := make([]byte, len(payload))
	copy(damaged, payload)
	damaged[0] ^= 0xff
	damaged[par.ShardSize] ^= 0xff

	recovered, err := enc.Recover(damaged, par, parity)
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if !bytes.Equal(recovered, payload) {
		t.Error("recovered payload differs from original")
	}
}

func TestRecoverTooMuchDamage(t *testing.T) {
	enc := NewEncoder()
	payload := testPayload(4096)

	par, parity, err := enc.Encode(payload, 1)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// Corrupt two data shards with only one parity shard available.
	damaged := make([]byte, len(payload))
	copy(damaged, payload)
	damaged[0] ^= 0xff
	damaged[par.ShardSize] ^= 0xff

	_, err = enc.Recover(damaged, par, parity)
	if !errors.Is(err, ErrInsufficientParity) {
		t.Errorf("got %v, want ErrInsufficientParity", err)
	}
}

func TestRecoverMissingParityRecord(t *testing.T) {
	enc := NewEncoder()
	if _, err := enc.Recover(testPayload(10), nil, nil); !errors.Is(err, ErrParityRecordRequired) {
		t.Errorf("got %v, want ErrParityRecordRequired", err)
	}
}

func TestRecoverParityCountMismatch(t *testing.T) {
	enc := NewEncoder()
	payload := testPayload(512)
	par, parity, err := enc.Encode(payload, 2)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := enc.Recover(payload, par, parity[:1]); !errors.Is(err, ErrParityShardMismatch) {
		t.Errorf("got %v, want ErrParityShardMismatch", err)
	}
}

func TestRecoverFullyMissingPayload(t *testing.T) {
	enc := NewEncoder()
	payload := testPayload(2048)

	// With parity >= data shards the whole payload is redundant.
	par, parity, err := enc.Encode(payload, DataShards)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	recovered, err := enc.Recover(nil, par, parity)
	if err != nil {
		t.Fatalf("Recover of missing payload failed: %v", err)
	}
	if !bytes.Equal(recovered, payload) {
		t.Error("recovered payload differs from original")
	}
}

func TestEncodeInvalidParityCount(t *testing.T) {
	enc := NewEncoder()
	if _, _, err := enc.Encode(testPayload(10), 0); !errors.Is(err, ErrInvalidParityCount) {
		t.Errorf("got %v, want ErrInvalidParityCount", err)
	}
}
