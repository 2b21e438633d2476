package keystore

import (
	"fmt"

	bip39 "github.com/tyler-smith/go-bip39"
)

// NewRootMnemonic generates a fresh 24-word mnemonic for a root seed.
func NewRootMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("keystore: mnemonic entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// ImportMnemonic installs the seed encoded by a mnemonic under id.
func (k *MemKeystore) ImportMnemonic(id, mnemonic string) error {
	entropy, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return fmt.Errorf("keystore: invalid mnemonic: %w", err)
	}
	return k.putSeed(id, entropy)
}

// ExportMnemonic renders the named seed as a mnemonic. Only 16/20/24/28/32
// byte seeds are encodable.
func (k *MemKeystore) ExportMnemonic(id string) (string, error) {
	seed, err := k.getSeed(id)
	if err != nil {
		return "", err
	}
	m, err := bip39.NewMnemonic(seed)
	if err != nil {
		return "", fmt.Errorf("keystore: seed not mnemonic-encodable: %w", err)
	}
	return m, nil
}
