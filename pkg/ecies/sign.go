package ecies

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"

	"github.com/brightchain/brightchain-go/pkg/errcat"
)

// SignatureLength is r(32) ‖ s(32) ‖ recoveryId(1).
const SignatureLength = 65

// ErrInvalidSignature is returned for a signature of the wrong length
// or an unparseable public key. A well-formed signature that simply
// does not match verifies to false without an error.
var ErrInvalidSignature = errcat.Sentinel(errcat.Crypto, "ecies: invalid signature")

var signPrefix = []byte("\x19BrightChain Signed Message:\n")

// messageHash computes the personal-message hash: SHA3-256 over the
// fixed prefix, the decimal message length and the message itself.
func messageHash(message []byte) [32]byte {
	var buf bytes.Buffer
	buf.Write(signPrefix)
	buf.WriteString(strconv.Itoa(len(message)))
	buf.Write(message)
	return sha3.Sum256(buf.Bytes())
}

// address derives the 20-byte address of a public key: the trailing 20
// bytes of SHA3-256 over the raw curve point.
func address(pub *secp256k1.PublicKey) [20]byte {
	sum := sha3.Sum256(pub.SerializeUncompressed()[1:])
	var addr [20]byte
	copy(addr[:], sum[12:])
	return addr
}

// Sign produces a recoverable ECDSA signature over the personal-message
// hash of message, encoded r ‖ s ‖ recoveryId.
func (s *Service) Sign(priv *secp256k1.PrivateKey, message []byte) ([]byte, error) {
	if priv == nil {
		return nil, ErrPrivateKeyNotLoaded
	}
	h := messageHash(message)
	compact := secpecdsa.SignCompact(priv, h[:], false)
	// SignCompact places the recovery byte first; the wire format wants
	// it last, normalized to 0..3.
	sig := make([]byte, SignatureLength)
	copy(sig, compact[1:])
	sig[64] = compact[0] - 27
	return sig, nil
}

// Verify recovers the signer's public key from the signature and
// compares derived addresses against pubKeyBytes, which may be
// compressed (33 bytes) or uncompressed (65 bytes, 0x04-prefixed).
func (s *Service) Verify(pubKeyBytes, message, sig []byte) (bool, error) {
	if len(sig) != SignatureLength {
		return false, fmt.Errorf("%w: length %d, want %d", ErrInvalidSignature, len(sig), SignatureLength)
	}
	pub, err := secp256k1.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	h := messageHash(message)
	compact := make([]byte, SignatureLength)
	compact[0] = sig[64] + 27
	copy(compact[1:], sig[:64])

	recovered, _, err := secpecdsa.RecoverCompact(compact, h[:])
	if err != nil {
		// A signature that cannot recover any key does not match.
		return false, nil
	}
	return address(recovered) == address(pub), nil
}
