// Package ecies implements the engine's elliptic-curve integrated
// encryption: mnemonic-derived secp256k1 keys, single- and
// multi-recipient authenticated encryption, detached recoverable
// signatures and the length accounting used to place ciphertext into
// fixed-size blocks.
//
// Single-recipient wire format:
//
//	ephemeralPublicKey(65, 0x04-prefixed) ‖ iv(16) ‖ authTag(16) ‖ ciphertext
//
// The symmetric key is HKDF-SHA256 derived from the ECDH shared secret
// and used with AES-256-GCM.
package ecies

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/hkdf"

	"github.com/brightchain/brightchain-go/pkg/errcat"
)

const (
	// PublicKeyLength is the uncompressed public key length: one format
	// marker byte (0x04) plus the raw 64-byte curve point.
	PublicKeyLength = 65
	// PrivateKeyLength is the raw scalar length.
	PrivateKeyLength = 32
	// IVLength is the AES-GCM nonce length used on the wire.
	IVLength = 16
	// AuthTagLength is the AES-GCM tag length.
	AuthTagLength = 16
	// KeyLength is the AES-256 key length.
	KeyLength = 32
	// Overhead is the fixed per-message overhead of the single-recipient
	// format: ephemeral key, IV and auth tag.
	Overhead = PublicKeyLength + IVLength + AuthTagLength
	// WrappedKeyLength is the size of one symmetric key wrapped with the
	// single-recipient format.
	WrappedKeyLength = Overhead + KeyLength
)

// hkdfInfo domain-separates the shared-secret derivation.
var hkdfInfo = []byte("brightchain-ecies-v1")

var (
	ErrInvalidEphemeralPublicKey = errcat.Sentinel(errcat.Crypto, "ecies: invalid ephemeral public key")
	// ErrDecryptionFailed covers both AEAD authentication failure and a
	// wrong key; the two are deliberately indistinguishable.
	ErrDecryptionFailed              = errcat.Sentinel(errcat.Crypto, "ecies: decryption failed")
	ErrInvalidEncryptedMessageLength = errcat.Sentinel(errcat.Structural, "ecies: encrypted message too short")
)

// Service performs the cryptographic transforms. It is stateless; a
// single instance is constructed at process start and shared.
type Service struct{}

// NewService returns a ready Service.
func NewService() *Service {
	return &Service{}
}

// deriveKey turns the ECDH shared secret between priv and pub into an
// AES-256 key.
func deriveKey(priv *secp256k1.PrivateKey, pub *secp256k1.PublicKey) ([]byte, error) {
	shared := secp256k1.GenerateSharedSecret(priv, pub)
	key := make([]byte, KeyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("ecies: deriving key: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	blk, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("ecies: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(blk, IVLength)
	if err != nil {
		return nil, fmt.Errorf("ecies: creating GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt encrypts message for the holder of pub. A fresh ephemeral key
// and IV are generated per call.
func (s *Service) Encrypt(pub *secp256k1.PublicKey, message []byte) ([]byte, error) {
	eph, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("ecies: generating ephemeral key: %w", err)
	}
	key, err := deriveKey(eph, pub)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, IVLength)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("ecies: generating iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, message, nil)
	ct := sealed[:len(sealed)-AuthTagLength]
	tag := sealed[len(sealed)-AuthTagLength:]

	out := make([]byte, 0, Overhead+len(ct))
	out = append(out, eph.PubKey().SerializeUncompressed()...)
	out = append(out, iv...)
	out = append(out, tag...)
	out = append(out, ct...)
	return out, nil
}

// Decrypt reverses Encrypt using the recipient's static private key.
func (s *Service) Decrypt(priv *secp256k1.PrivateKey, data []byte) ([]byte, error) {
	if len(data) < Overhead {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidEncryptedMessageLength, len(data))
	}
	ephBytes := data[:PublicKeyLength]
	if ephBytes[0] != 0x04 {
		return nil, fmt.Errorf("%w: bad format marker 0x%02x", ErrInvalidEphemeralPublicKey, ephBytes[0])
	}
	ephPub, err := secp256k1.ParsePubKey(ephBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEphemeralPublicKey, err)
	}

	iv := data[PublicKeyLength : PublicKeyLength+IVLength]
	tag := data[PublicKeyLength+IVLength : Overhead]
	ct := data[Overhead:]

	key, err := deriveKey(priv, ephPub)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ct)+AuthTagLength)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plain, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		// Tampered ciphertext and wrong key intentionally collapse into
		// one error to avoid an oracle.
		return nil, ErrDecryptionFailed
	}
	return plain, nil
}
