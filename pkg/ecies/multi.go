package ecies

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/google/uuid"

	"github.com/brightchain/brightchain-go/pkg/errcat"
)

// Multi-recipient wire format, version 1 (all integers big-endian):
//
//	version(1) ‖ dataLength(8) ‖ recipientCount(2) ‖
//	recipientCount × recipientID(16) ‖
//	recipientCount × wrappedKey(129) ‖
//	iv(16) ‖ authTag(16) ‖ ciphertext
//
// The payload is AEAD-encrypted exactly once with a random symmetric
// key; only the key wrapping differs per recipient. The AEAD plaintext
// is prefixed with a 16-bit integrity checksum of the data, so an AEAD
// success with a bad embedded checksum is still rejected.
const (
	// MessageVersion tags the canonical layout. Older layouts carrying a
	// per-message IV/tag outside the shared envelope are not accepted.
	MessageVersion = 0x01
	// RecipientIDLength is the fixed recipient identifier length.
	RecipientIDLength = 16
	// MaxRecipients is the protocol maximum recipient count.
	MaxRecipients = 65535

	multiFixedHeader = 1 + 8 + 2
	crcLength        = 2
)

var (
	ErrNoRecipients              = errcat.Sentinel(errcat.Structural, "ecies: no recipients")
	ErrTooManyRecipients         = errcat.Sentinel(errcat.Capacity, "ecies: too many recipients")
	ErrRecipientNotFound         = errcat.Sentinel(errcat.Consistency, "ecies: recipient not found in message header")
	ErrPrivateKeyNotLoaded       = errcat.Sentinel(errcat.Crypto, "ecies: private key not loaded")
	ErrInvalidMessageCrc         = errcat.Sentinel(errcat.Consistency, "ecies: embedded message checksum mismatch")
	ErrUnsupportedMessageVersion = errcat.Sentinel(errcat.Structural, "ecies: unsupported message version")
)

// Recipient pairs an identifier with the public key the symmetric key
// is wrapped for.
type Recipient struct {
	ID        uuid.UUID
	PublicKey *secp256k1.PublicKey
}

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// crc16 is the 16-bit integrity value embedded ahead of the plaintext:
// CRC-32C truncated to its low 16 bits.
func crc16(data []byte) uint16 {
	return uint16(crc32.Checksum(data, crcTable) & 0xffff)
}

// MultiOverhead returns the byte overhead of a version-1 message with
// the given recipient count: header, recipient tables, AEAD envelope
// and the embedded checksum.
func MultiOverhead(recipients int) int {
	return multiFixedHeader +
		recipients*(RecipientIDLength+WrappedKeyLength) +
		IVLength + AuthTagLength +
		crcLength
}

// EncryptMultiple encrypts message once for all recipients. One random
// AES-256 key seals the payload; the key is then wrapped per recipient
// with the single-recipient format.
func (s *Service) EncryptMultiple(recipients []Recipient, message []byte) ([]byte, error) {
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}
	if len(recipients) > MaxRecipients {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyRecipients, len(recipients), MaxRecipients)
	}

	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("ecies: generating symmetric key: %w", err)
	}
	iv := make([]byte, IVLength)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("ecies: generating iv: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plain := make([]byte, 0, crcLength+len(message))
	plain = binary.BigEndian.AppendUint16(plain, crc16(message))
	plain = append(plain, message...)

	sealed := gcm.Seal(nil, iv, plain, nil)
	ct := sealed[:len(sealed)-AuthTagLength]
	tag := sealed[len(sealed)-AuthTagLength:]

	out := make([]byte, 0, MultiOverhead(len(recipients))+len(message))
	out = append(out, MessageVersion)
	out = binary.BigEndian.AppendUint64(out, uint64(len(message)))
	out = binary.BigEndian.AppendUint16(out, uint16(len(recipients)))
	for _, r := range recipients {
		out = append(out, r.ID[:]...)
	}
	for _, r := range recipients {
		wrapped, err := s.Encrypt(r.PublicKey, key)
		if err != nil {
			return nil, fmt.Errorf("ecies: wrapping key for %s: %w", r.ID, err)
		}
		if len(wrapped) != WrappedKeyLength {
			return nil, fmt.Errorf("ecies: wrapped key has length %d, want %d", len(wrapped), WrappedKeyLength)
		}
		out = append(out, wrapped...)
	}
	out = append(out, iv...)
	out = append(out, tag...)
	out = append(out, ct...)
	return out, nil
}

// DecryptMultipleForRecipient locates recipientID in the header, unwraps
// the symmetric key with priv and opens the shared envelope.
func (s *Service) DecryptMultipleForRecipient(priv *secp256k1.PrivateKey, recipientID uuid.UUID, data []byte) ([]byte, error) {
	if len(data) < multiFixedHeader {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidEncryptedMessageLength, len(data))
	}
	if data[0] != MessageVersion {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedMessageVersion, data[0])
	}

	dataLen := binary.BigEndian.Uint64(data[1:9])
	count := int(binary.BigEndian.Uint16(data[9:11]))
	idsEnd := multiFixedHeader + count*RecipientIDLength
	keysEnd := idsEnd + count*WrappedKeyLength
	envStart := keysEnd
	if len(data) < envStart+IVLength+AuthTagLength+crcLength {
		return nil, fmt.Errorf("%w: truncated header tables", ErrInvalidEncryptedMessageLength)
	}

	index := -1
	for i := 0; i < count; i++ {
		off := multiFixedHeader + i*RecipientIDLength
		if bytes.Equal(data[off:off+RecipientIDLength], recipientID[:]) {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, fmt.Errorf("%w: %s", ErrRecipientNotFound, recipientID)
	}
	if priv == nil {
		return nil, ErrPrivateKeyNotLoaded
	}

	wrappedOff := idsEnd + index*WrappedKeyLength
	key, err := s.Decrypt(priv, data[wrappedOff:wrappedOff+WrappedKeyLength])
	if err != nil {
		return nil, err
	}

	iv := data[envStart : envStart+IVLength]
	tag := data[envStart+IVLength : envStart+IVLength+AuthTagLength]
	ct := data[envStart+IVLength+AuthTagLength:]

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, 0, len(ct)+AuthTagLength)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plain, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	if len(plain) < crcLength {
		return nil, fmt.Errorf("%w: envelope shorter than checksum", ErrInvalidEncryptedMessageLength)
	}

	embedded := binary.BigEndian.Uint16(plain[:crcLength])
	message := plain[crcLength:]
	if uint64(len(message)) != dataLen {
		return nil, fmt.Errorf("%w: declared %d bytes, envelope carries %d", ErrInvalidEncryptedMessageLength, dataLen, len(message))
	}
	if crc16(message) != embedded {
		return nil, ErrInvalidMessageCrc
	}
	return message, nil
}
