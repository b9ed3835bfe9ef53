// Package secure provides disposable wrappers for secret byte material.
//
// A Buffer XOR-obfuscates its contents at construction time with a
// keystream derived from a random per-instance identifier, so the secret
// is never held in a directly-inspectable form between uses. Disposal
// zeroes the backing storage; every access after disposal fails closed.
package secure

import (
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"github.com/brightchain/brightchain-go/pkg/errcat"
)

// ErrDisposed is returned by every access to a disposed Buffer.
var ErrDisposed = errcat.Sentinel(errcat.Crypto, "secure: buffer already disposed")

// Buffer holds a secret in obfuscated form. The zero value is unusable;
// construct with NewBuffer.
type Buffer struct {
	mu       sync.Mutex
	id       uuid.UUID
	obf      []byte
	disposed bool
}

// NewBuffer wraps a copy of secret. The caller keeps ownership of the
// input slice and should zero it when no longer needed.
func NewBuffer(secret []byte) *Buffer {
	b := &Buffer{id: uuid.New()}
	b.obf = make([]byte, len(secret))
	ks := b.keystream(len(secret))
	for i := range secret {
		b.obf[i] = secret[i] ^ ks[i]
	}
	zero(ks)
	return b
}

func (b *Buffer) keystream(n int) []byte {
	ks := make([]byte, n)
	sha3.ShakeSum256(ks, b.id[:])
	return ks
}

// Bytes returns a de-obfuscated copy of the secret. The caller must zero
// the copy after use.
func (b *Buffer) Bytes() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed {
		return nil, ErrDisposed
	}
	out := make([]byte, len(b.obf))
	ks := b.keystream(len(b.obf))
	for i := range b.obf {
		out[i] = b.obf[i] ^ ks[i]
	}
	zero(ks)
	return out, nil
}

// Use invokes fn with the de-obfuscated secret and zeroes the temporary
// copy on every exit path, including panics inside fn.
func (b *Buffer) Use(fn func(secret []byte) error) error {
	plain, err := b.Bytes()
	if err != nil {
		return err
	}
	defer zero(plain)
	return fn(plain)
}

// Len returns the secret length without exposing the secret.
func (b *Buffer) Len() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed {
		return 0, ErrDisposed
	}
	return len(b.obf), nil
}

// Dispose zeroes the backing storage and marks the buffer terminal.
// Disposing twice is allowed; all reads after the first Dispose fail.
func (b *Buffer) Dispose() {
	b.mu.Lock()
	defer b.mu.Unlock()
	zero(b.obf)
	b.disposed = true
}

// Disposed reports whether the buffer has been disposed.
func (b *Buffer) Disposed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disposed
}

// String wraps a secret string, e.g. a mnemonic phrase.
type String struct {
	buf *Buffer
}

// NewString wraps a copy of the given string.
func NewString(secret string) *String {
	return &String{buf: NewBuffer([]byte(secret))}
}

// Value returns a copy of the wrapped string.
func (s *String) Value() (string, error) {
	plain, err := s.buf.Bytes()
	if err != nil {
		return "", err
	}
	out := string(plain)
	zero(plain)
	return out, nil
}

// Use invokes fn with the secret string.
func (s *String) Use(fn func(secret string) error) error {
	return s.buf.Use(func(b []byte) error {
		return fn(string(b))
	})
}

// Dispose zeroes the wrapped secret.
func (s *String) Dispose() { s.buf.Dispose() }

// Disposed reports whether the string has been disposed.
func (s *String) Disposed() bool { return s.buf.Disposed() }

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
