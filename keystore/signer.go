package keystore

import "github.com/hc-network/gcond/common"

// KeySigner binds one keypair identifier to the chain.Signer shape.
type KeySigner struct {
	ks   Keystore
	id   string
	addr common.Address
}

// NewKeySigner resolves id's public key once and returns a signer for it.
func NewKeySigner(ks Keystore, id string) (*KeySigner, error) {
	addr, err := ks.GetPublicKey(id)
	if err != nil {
		return nil, err
	}
	return &KeySigner{ks: ks, id: id, addr: addr}, nil
}

// Address returns the agent address of the bound keypair.
func (s *KeySigner) Address() common.Address { return s.addr }

// Sign delegates to the keystore oracle.
func (s *KeySigner) Sign(payload []byte) ([]byte, error) {
	return s.ks.Sign(s.id, payload)
}
