package member

import (
	"errors"
	"testing"

	"github.com/brightchain/brightchain-go/pkg/ecies"
)

func TestNewFromMnemonicDeterministic(t *testing.T) {
	svc := ecies.NewService()
	m1, mnemonic, err := Random(svc)
	if err != nil {
		t.Fatalf("random member: %v", err)
	}
	defer m1.Dispose()
	defer mnemonic.Dispose()

	phrase, err := mnemonic.Value()
	if err != nil {
		t.Fatalf("mnemonic value: %v", err)
	}

	m2, err := NewFromMnemonic(svc, phrase)
	if err != nil {
		t.Fatalf("member from mnemonic: %v", err)
	}
	defer m2.Dispose()

	if !m1.PublicKey.IsEqual(m2.PublicKey) {
		t.Error("same mnemonic produced different public keys")
	}
	if m1.ID != m2.ID {
		t.Error("same key must derive the same member ID")
	}
}

func TestNewFromMnemonicInvalid(t *testing.T) {
	svc := ecies.NewService()
	if _, err := NewFromMnemonic(svc, "correct horse battery staple"); !errors.Is(err, ecies.ErrInvalidMnemonic) {
		t.Fatalf("got %v, want ErrInvalidMnemonic", err)
	}
}

func TestPrivateKeyRoundTrip(t *testing.T) {
	svc := ecies.NewService()
	m, mnemonic, err := Random(svc)
	if err != nil {
		t.Fatalf("random member: %v", err)
	}
	defer mnemonic.Dispose()

	if !m.HasPrivateKey() {
		t.Fatal("freshly created member must hold its private key")
	}

	priv, err := m.PrivateKey()
	if err != nil {
		t.Fatalf("private key: %v", err)
	}
	defer priv.Zero()

	if !priv.PubKey().IsEqual(m.PublicKey) {
		t.Error("materialized private key does not match public key")
	}

	// Encrypt to the member, decrypt with the materialized key.
	ct, err := svc.Encrypt(m.PublicKey, []byte("hello"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	pt, err := svc.Decrypt(priv, ct)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(pt) != "hello" {
		t.Fatalf("decrypted %q", pt)
	}
}

func TestPublicCopyAndDispose(t *testing.T) {
	svc := ecies.NewService()
	m, mnemonic, err := Random(svc)
	if err != nil {
		t.Fatalf("random member: %v", err)
	}
	defer mnemonic.Dispose()

	pub := m.Public()
	if pub.HasPrivateKey() {
		t.Error("public copy must not carry the private key")
	}
	if _, err := pub.PrivateKey(); !errors.Is(err, ErrNoPrivateKey) {
		t.Errorf("got %v, want ErrNoPrivateKey", err)
	}

	m.Dispose()
	if m.HasPrivateKey() {
		t.Error("disposed member still reports a private key")
	}
	if _, err := m.PrivateKey(); !errors.Is(err, ErrNoPrivateKey) {
		t.Errorf("after dispose: got %v, want ErrNoPrivateKey", err)
	}
}
