package ecies

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	"github.com/brightchain/brightchain-go/pkg/errcat"
	"github.com/brightchain/brightchain-go/pkg/secure"
)

// DefaultMnemonicStrength is the default entropy, in bits, of a newly
// generated mnemonic.
const DefaultMnemonicStrength = 256

// ErrInvalidMnemonic is returned for a phrase that fails BIP-39
// checksum validation.
var ErrInvalidMnemonic = errcat.Sentinel(errcat.Crypto, "ecies: invalid mnemonic")

// derivationPath is the fixed HD key path m/44'/60'/0'/0/0.
var derivationPath = []uint32{
	bip32.FirstHardenedChild + 44,
	bip32.FirstHardenedChild + 60,
	bip32.FirstHardenedChild,
	0,
	0,
}

// NewMnemonic generates a BIP-39 phrase with the given entropy strength
// in bits (128-256, multiple of 32). Zero selects the default strength.
// The phrase is returned in a disposable secure wrapper.
func (s *Service) NewMnemonic(strength int) (*secure.String, error) {
	if strength == 0 {
		strength = DefaultMnemonicStrength
	}
	entropy, err := bip39.NewEntropy(strength)
	if err != nil {
		return nil, fmt.Errorf("ecies: generating entropy: %w", err)
	}
	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, fmt.Errorf("ecies: building mnemonic: %w", err)
	}
	return secure.NewString(phrase), nil
}

// KeyFromMnemonic derives the fixed-path key pair from a BIP-39
// mnemonic: seed → HD master key → m/44'/60'/0'/0/0.
func (s *Service) KeyFromMnemonic(mnemonic string) (*secp256k1.PrivateKey, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, "")

	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("ecies: deriving master key: %w", err)
	}
	for _, index := range derivationPath {
		key, err = key.NewChildKey(index)
		if err != nil {
			return nil, fmt.Errorf("ecies: deriving child key %d: %w", index, err)
		}
	}

	return secp256k1.PrivKeyFromBytes(key.Key), nil
}

// PublicKeyBytes returns the uncompressed (0x04-prefixed) encoding.
func PublicKeyBytes(pub *secp256k1.PublicKey) []byte {
	return pub.SerializeUncompressed()
}
