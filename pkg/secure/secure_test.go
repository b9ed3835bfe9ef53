package secure

import (
	"bytes"
	"errors"
	"sync"
	"testing"
)

func TestBufferRoundTrip(t *testing.T) {
	secret := []byte("correct horse battery staple")
	b := NewBuffer(secret)

	got, err := b.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	if !bytes.Equal(got, secret) {
		t.Error("recovered secret differs from input")
	}

	// The backing storage must not contain the plaintext.
	if bytes.Contains(b.obf, secret) {
		t.Error("obfuscated storage contains the plaintext secret")
	}
}

func TestBufferDisposeFailsClosed(t *testing.T) {
	b := NewBuffer([]byte("secret"))
	b.Dispose()

	if _, err := b.Bytes(); !errors.Is(err, ErrDisposed) {
		t.Errorf("Bytes after Dispose: got %v, want ErrDisposed", err)
	}
	if _, err := b.Len(); !errors.Is(err, ErrDisposed) {
		t.Errorf("Len after Dispose: got %v, want ErrDisposed", err)
	}
	if err := b.Use(func([]byte) error { return nil }); !errors.Is(err, ErrDisposed) {
		t.Errorf("Use after Dispose: got %v, want ErrDisposed", err)
	}

	// Double dispose is allowed.
	b.Dispose()
	if !b.Disposed() {
		t.Error("buffer not reported as disposed")
	}
}

func TestBufferConcurrentReadersAfterDispose(t *testing.T) {
	b := NewBuffer([]byte("secret"))
	b.Dispose()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.Bytes(); !errors.Is(err, ErrDisposed) {
				t.Errorf("concurrent read after dispose: got %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestStringRoundTrip(t *testing.T) {
	s := NewString("abandon abandon ability")
	got, err := s.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if got != "abandon abandon ability" {
		t.Error("recovered string differs from input")
	}

	s.Dispose()
	if _, err := s.Value(); !errors.Is(err, ErrDisposed) {
		t.Errorf("Value after Dispose: got %v, want ErrDisposed", err)
	}
}

func TestDistinctBuffersUseDistinctKeystreams(t *testing.T) {
	secret := []byte("same secret twice")
	a := NewBuffer(secret)
	b := NewBuffer(secret)
	if bytes.Equal(a.obf, b.obf) {
		t.Error("two buffers of the same secret share an obfuscated form")
	}
}
