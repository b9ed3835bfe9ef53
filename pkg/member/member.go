// Package member models participants of the store: an identity, a
// public key, and optionally the matching private key held in
// obfuscated memory.
package member

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/google/uuid"

	"github.com/brightchain/brightchain-go/pkg/ecies"
	"github.com/brightchain/brightchain-go/pkg/errcat"
	"github.com/brightchain/brightchain-go/pkg/secure"
)

var ErrNoPrivateKey = errcat.Sentinel(errcat.Crypto, "member: private key not loaded")

// IDFromPublicKey derives the member's stable identifier from the
// public key. Envelopes address recipients by this ID, so it must be
// identical every time the same key is loaded.
func IDFromPublicKey(pub *secp256k1.PublicKey) uuid.UUID {
	ns := uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://brightchain.io/member"))
	return uuid.NewSHA1(ns, pub.SerializeCompressed())
}

// Member is a store participant. The private key is optional; a
// member loaded from a public directory carries only the public half.
type Member struct {
	ID        uuid.UUID
	PublicKey *secp256k1.PublicKey

	priv *secure.Buffer
}

// NewFromMnemonic derives a member's key pair from a BIP-39 mnemonic.
// The same mnemonic always yields the same member, ID included.
func NewFromMnemonic(svc *ecies.Service, mnemonic string) (*Member, error) {
	priv, err := svc.KeyFromMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}
	defer priv.Zero()

	return &Member{
		ID:        IDFromPublicKey(priv.PubKey()),
		PublicKey: priv.PubKey(),
		priv:      secure.NewBuffer(priv.Serialize()),
	}, nil
}

// Random creates a member with a freshly generated mnemonic and
// returns the mnemonic alongside so the caller can persist it. The
// mnemonic is the only way to recreate the key.
func Random(svc *ecies.Service) (*Member, *secure.String, error) {
	mnemonic, err := svc.NewMnemonic(ecies.DefaultMnemonicStrength)
	if err != nil {
		return nil, nil, err
	}

	var m *Member
	err = mnemonic.Use(func(phrase string) error {
		var err error
		m, err = NewFromMnemonic(svc, phrase)
		return err
	})
	if err != nil {
		mnemonic.Dispose()
		return nil, nil, err
	}
	return m, mnemonic, nil
}

// Public returns a copy of the member without the private key, safe
// to hand to other components.
func (m *Member) Public() *Member {
	return &Member{ID: m.ID, PublicKey: m.PublicKey}
}

func (m *Member) HasPrivateKey() bool {
	return m.priv != nil && !m.priv.Disposed()
}

// PrivateKey materializes the private key from obfuscated memory. The
// caller must call Zero on the returned key when done with it.
func (m *Member) PrivateKey() (*secp256k1.PrivateKey, error) {
	if !m.HasPrivateKey() {
		return nil, ErrNoPrivateKey
	}
	var priv *secp256k1.PrivateKey
	err := m.priv.Use(func(secret []byte) error {
		priv = secp256k1.PrivKeyFromBytes(secret)
		return nil
	})
	if err != nil {
		return nil, ErrNoPrivateKey
	}
	return priv, nil
}

// Recipient returns the member's encryption envelope entry.
func (m *Member) Recipient() ecies.Recipient {
	return ecies.Recipient{ID: m.ID, PublicKey: m.PublicKey}
}

// Dispose wipes the member's private key material.
func (m *Member) Dispose() {
	if m.priv != nil {
		m.priv.Dispose()
	}
}
