package keystore

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hc-network/gcond/params"
)

func TestDerivationDeterministic(t *testing.T) {
	k1 := NewMemKeystore()
	k2 := NewMemKeystore()
	seed := bytes.Repeat([]byte{0x42}, 32)
	if err := k1.putSeed("root", seed); err != nil {
		t.Fatalf("put seed: %v", err)
	}
	if err := k2.putSeed("root", seed); err != nil {
		t.Fatalf("put seed: %v", err)
	}

	a1, err := k1.AddKeyFromSeed("root", "agent", params.SigningContext, 1)
	if err != nil {
		t.Fatalf("derive key: %v", err)
	}
	a2, err := k2.AddKeyFromSeed("root", "agent", params.SigningContext, 1)
	if err != nil {
		t.Fatalf("derive key: %v", err)
	}
	if a1 != a2 {
		t.Fatalf("same (seed, context, index) produced different keys: %s vs %s", a1, a2)
	}

	k3 := NewMemKeystore()
	k3.putSeed("root", seed)
	a3, _ := k3.AddKeyFromSeed("root", "agent", params.SigningContext, 2)
	if a3 == a1 {
		t.Fatalf("different index produced the same key")
	}

	k4 := NewMemKeystore()
	k4.putSeed("root", seed)
	a4, _ := k4.AddKeyFromSeed("root", "agent", params.EncryptingContext, 1)
	if a4 == a1 {
		t.Fatalf("different context produced the same key")
	}
}

func TestSubSeedDerivation(t *testing.T) {
	k := NewMemKeystore()
	if err := k.AddRandomSeed("root", 32); err != nil {
		t.Fatalf("add random seed: %v", err)
	}
	if err := k.AddSeedFromSeed("root", "app", params.SeedContext, 0); err != nil {
		t.Fatalf("derive sub-seed: %v", err)
	}
	if err := k.AddSeedFromSeed("root", "app", params.SeedContext, 0); !errors.Is(err, ErrIdentifierExists) {
		t.Fatalf("duplicate identifier accepted: %v", err)
	}
	got := k.List()
	if len(got) != 2 || got[0] != "app" || got[1] != "root" {
		t.Fatalf("list = %v", got)
	}
}

func TestSignVerify(t *testing.T) {
	k := NewMemKeystore()
	k.AddRandomSeed("root", 32)
	agent, err := k.AddKeyFromSeed("root", "agent", params.SigningContext, 0)
	if err != nil {
		t.Fatalf("derive key: %v", err)
	}
	payload := []byte("entry address bytes")
	sig, err := k.Sign("agent", payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !Verify(agent, payload, sig) {
		t.Fatalf("signature did not verify")
	}
	if Verify(agent, []byte("different payload"), sig) {
		t.Fatalf("signature verified against wrong payload")
	}
	if _, err := k.Sign("root", payload); !errors.Is(err, ErrNotAKey) {
		t.Fatalf("signing with a seed should fail: %v", err)
	}
}

func TestFileKeystoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keystore", "agent")
	f := NewFileKeystore(path, "hunter2")
	f.AddRandomSeed("root", 32)
	agent, err := f.AddKeyFromSeed("root", "agent", params.SigningContext, 0)
	if err != nil {
		t.Fatalf("derive key: %v", err)
	}
	if err := f.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	re := NewFileKeystore(path, "hunter2")
	if err := re.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	got, err := re.GetPublicKey("agent")
	if err != nil || got != agent {
		t.Fatalf("reloaded key mismatch: %s, %v", got, err)
	}
	sig, err := re.Sign("agent", []byte("payload"))
	if err != nil || !Verify(agent, []byte("payload"), sig) {
		t.Fatalf("reloaded key cannot sign: %v", err)
	}

	bad := NewFileKeystore(path, "wrong")
	if err := bad.Load(); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("wrong passphrase accepted: %v", err)
	}
}

func TestMnemonicRoundTrip(t *testing.T) {
	m, err := NewRootMnemonic()
	if err != nil {
		t.Fatalf("new mnemonic: %v", err)
	}
	k := NewMemKeystore()
	if err := k.ImportMnemonic("root", m); err != nil {
		t.Fatalf("import: %v", err)
	}
	out, err := k.ExportMnemonic("root")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if out != m {
		t.Fatalf("mnemonic round trip changed words")
	}

	k2 := NewMemKeystore()
	k2.ImportMnemonic("root", m)
	a1, _ := k.AddKeyFromSeed("root", "agent", params.SigningContext, 0)
	a2, _ := k2.AddKeyFromSeed("root", "agent", params.SigningContext, 0)
	if a1 != a2 {
		t.Fatalf("mnemonic-recovered seed derived a different key")
	}
}

func TestKeySigner(t *testing.T) {
	k := NewMemKeystore()
	k.AddRandomSeed("root", 32)
	agent, _ := k.AddKeyFromSeed("root", "agent", params.SigningContext, 0)
	s, err := NewKeySigner(k, "agent")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	if s.Address() != agent {
		t.Fatalf("signer address mismatch")
	}
	sig, err := s.Sign([]byte("msg"))
	if err != nil || !Verify(agent, []byte("msg"), sig) {
		t.Fatalf("signer signature invalid: %v", err)
	}
}
