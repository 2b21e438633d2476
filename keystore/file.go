package keystore

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"

	"github.com/hc-network/gcond/common"
)

// scrypt parameters for the passphrase KDF.
const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltSize     = 32
	nonceSize    = 24
)

var ErrDecrypt = errors.New("keystore: could not decrypt key file (wrong passphrase?)")

// encryptedFile is the on-disk layout: nonce, salt and the secretbox
// ciphertext over the serialized secret map.
type encryptedFile struct {
	Version    int    `json:"version"`
	Nonce      []byte `json:"nonce"`
	Salt       []byte `json:"salt"`
	Ciphertext []byte `json:"ciphertext"`
}

// plainSecret is the serialized form of one secret inside the ciphertext.
type plainSecret struct {
	ID   string `json:"id"`
	Seed []byte `json:"seed,omitempty"`
	Priv []byte `json:"priv,omitempty"`
}

const fileVersion = 1

// FileKeystore is a MemKeystore persisted to a passphrase-encrypted file,
// conventionally keystore/<agent-address>.
type FileKeystore struct {
	*MemKeystore
	path       string
	passphrase string
}

// KeystorePath returns the conventional key file path for an agent.
func KeystorePath(dir string, agent common.Address) string {
	return filepath.Join(dir, "keystore", agent.String())
}

// NewFileKeystore wraps an empty keystore bound to path. Call Load to read
// an existing file, Save after mutating.
func NewFileKeystore(path, passphrase string) *FileKeystore {
	return &FileKeystore{MemKeystore: NewMemKeystore(), path: path, passphrase: passphrase}
}

// WrapFile binds already-populated in-memory secrets to a key file. Used
// when the file name derives from a key that exists only after bootstrap.
func WrapFile(mem *MemKeystore, path, passphrase string) *FileKeystore {
	return &FileKeystore{MemKeystore: mem, path: path, passphrase: passphrase}
}

// Load decrypts the key file into memory. A missing file is not an error;
// the keystore just starts empty.
func (f *FileKeystore) Load() error {
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("keystore: read file: %w", err)
	}
	var enc encryptedFile
	if err := json.Unmarshal(raw, &enc); err != nil {
		return fmt.Errorf("keystore: decode file: %w", err)
	}
	if enc.Version != fileVersion || len(enc.Nonce) != nonceSize || len(enc.Salt) != saltSize {
		return ErrDecrypt
	}
	key, err := scrypt.Key([]byte(f.passphrase), enc.Salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return fmt.Errorf("keystore: kdf: %w", err)
	}
	var boxKey [32]byte
	var nonce [24]byte
	copy(boxKey[:], key)
	copy(nonce[:], enc.Nonce)
	plain, ok := secretbox.Open(nil, enc.Ciphertext, &nonce, &boxKey)
	if !ok {
		return ErrDecrypt
	}
	var secrets []plainSecret
	if err := json.Unmarshal(plain, &secrets); err != nil {
		return fmt.Errorf("keystore: decode secrets: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range secrets {
		f.secrets[s.ID] = &secret{seed: s.Seed, priv: s.Priv}
	}
	return nil
}

// Save encrypts the current secrets to disk under a fresh salt and nonce.
func (f *FileKeystore) Save() error {
	f.mu.RLock()
	secrets := make([]plainSecret, 0, len(f.secrets))
	for id, s := range f.secrets {
		secrets = append(secrets, plainSecret{ID: id, Seed: s.seed, Priv: s.priv})
	}
	f.mu.RUnlock()

	plain, err := json.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("keystore: encode secrets: %w", err)
	}
	salt := make([]byte, saltSize)
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("keystore: salt entropy: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("keystore: nonce entropy: %w", err)
	}
	key, err := scrypt.Key([]byte(f.passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return fmt.Errorf("keystore: kdf: %w", err)
	}
	var boxKey [32]byte
	copy(boxKey[:], key)
	enc := encryptedFile{
		Version:    fileVersion,
		Nonce:      nonce[:],
		Salt:       salt,
		Ciphertext: secretbox.Seal(nil, plain, &nonce, &boxKey),
	}
	raw, err := json.Marshal(&enc)
	if err != nil {
		return fmt.Errorf("keystore: encode file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("keystore: create dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("keystore: write file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("keystore: rename file: %w", err)
	}
	return nil
}
