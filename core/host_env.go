package core

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/hc-network/gcond/chain"
	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/ribosome"
	"github.com/hc-network/gcond/types"
)

// Instance implements ribosome.HostEnv: the capability surface guest code
// reaches through the host imports.
var _ ribosome.HostEnv = (*Instance)(nil)

// CommitEntry implements ribosome.HostEnv.
func (inst *Instance) CommitEntry(entry types.Entry) (common.Address, error) {
	header, err := inst.commitEntry(context.Background(), entry, "")
	if err != nil {
		return common.NullAddress, err
	}
	return header.EntryAddress, nil
}

// GetEntry implements ribosome.HostEnv.
func (inst *Instance) GetEntry(addr common.Address, opts types.GetEntryOptions) (*types.EntryResult, error) {
	return inst.getEntry(context.Background(), addr, opts)
}

// GetLinks implements ribosome.HostEnv.
func (inst *Instance) GetLinks(base common.Address, linkType, tag string, opts types.GetLinksOptions) ([]types.LinkResult, error) {
	return inst.getLinks(context.Background(), base, linkType, tag, opts)
}

// LinkEntries implements ribosome.HostEnv.
func (inst *Instance) LinkEntries(link types.LinkData) (common.Address, error) {
	header, err := inst.commitEntry(context.Background(), types.NewLinkAddEntry(link), "")
	if err != nil {
		return common.NullAddress, err
	}
	return header.EntryAddress, nil
}

// RemoveLink implements ribosome.HostEnv. The %link_add entry address is
// content-derived from the link data, so removal needs no lookup.
func (inst *Instance) RemoveLink(link types.LinkData) (common.Address, error) {
	linkAddAddr := types.NewLinkAddEntry(link).Address()
	rm := types.NewLinkRemoveEntry(types.LinkRemoveData{LinkAddAddress: linkAddAddr})
	header, err := inst.commitEntry(context.Background(), rm, "")
	if err != nil {
		return common.NullAddress, err
	}
	return header.EntryAddress, nil
}

// UpdateEntry implements ribosome.HostEnv.
func (inst *Instance) UpdateEntry(old common.Address, newEntry types.Entry) (common.Address, error) {
	header, err := inst.commitEntry(context.Background(), newEntry, old)
	if err != nil {
		return common.NullAddress, err
	}
	return header.EntryAddress, nil
}

// RemoveEntry implements ribosome.HostEnv.
func (inst *Instance) RemoveEntry(addr common.Address) (common.Address, error) {
	del := types.NewDeletionEntry(types.DeletionData{DeletedEntryAddress: addr})
	header, err := inst.commitEntry(context.Background(), del, "")
	if err != nil {
		return common.NullAddress, err
	}
	return header.EntryAddress, nil
}

// Query implements ribosome.HostEnv.
func (inst *Instance) Query(patterns []string, opts chain.QueryOptions) ([]chain.QueryItem, error) {
	return inst.chain.Query(patterns, opts)
}

// Send implements ribosome.HostEnv.
func (inst *Instance) Send(to common.Address, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	return inst.sendToAgent(context.Background(), to, payload, timeout)
}

// Call implements ribosome.HostEnv: cross-zome calls re-enter the zome
// call workflow with a fresh call and guest instance.
func (inst *Instance) Call(zome, fn string, args json.RawMessage, capRequest types.CapabilityRequest) (json.RawMessage, error) {
	call := &ZomeFnCall{Zome: zome, Fn: fn, Args: args, CapRequest: capRequest}
	out, err := inst.CallZomeFunction(context.Background(), call)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(out), nil
}

// Sign implements ribosome.HostEnv.
func (inst *Instance) Sign(payload []byte) (types.Provenance, error) {
	sig, err := inst.signer.Sign(payload)
	if err != nil {
		return types.Provenance{}, err
	}
	return types.NewProvenance(inst.agent, sig), nil
}

// VerifySignature implements ribosome.HostEnv.
func (inst *Instance) VerifySignature(p types.Provenance, payload []byte) (bool, error) {
	return p.Verify(payload), nil
}

// Encrypt implements ribosome.HostEnv with a random-nonce secretbox under
// the agent's derived symmetric key.
func (inst *Instance) Encrypt(plaintext []byte) ([]byte, error) {
	key, err := inst.encryptionKey()
	if err != nil {
		return nil, err
	}
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &key), nil
}

// Decrypt implements ribosome.HostEnv.
func (inst *Instance) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 24 {
		return nil, fmt.Errorf("%w: ciphertext too short", types.ErrSerialization)
	}
	key, err := inst.encryptionKey()
	if err != nil {
		return nil, err
	}
	var nonce [24]byte
	copy(nonce[:], ciphertext[:24])
	out, ok := secretbox.Open(nil, ciphertext[24:], &nonce, &key)
	if !ok {
		return nil, fmt.Errorf("%w: decryption failed", types.ErrSerialization)
	}
	return out, nil
}

// KeystoreList implements ribosome.HostEnv.
func (inst *Instance) KeystoreList() ([]string, error) { return inst.keystore.List(), nil }

// KeystoreNewRandomSeed implements ribosome.HostEnv.
func (inst *Instance) KeystoreNewRandomSeed(id string, size int) error {
	return inst.keystore.AddRandomSeed(id, size)
}

// KeystoreDeriveSeed implements ribosome.HostEnv.
func (inst *Instance) KeystoreDeriveSeed(src, dst, context string, index uint64) error {
	return inst.keystore.AddSeedFromSeed(src, dst, context, index)
}

// KeystoreDeriveKey implements ribosome.HostEnv.
func (inst *Instance) KeystoreDeriveKey(src, dst, context string, index uint64) (common.Address, error) {
	return inst.keystore.AddKeyFromSeed(src, dst, context, index)
}

// KeystoreSign implements ribosome.HostEnv.
func (inst *Instance) KeystoreSign(id string, payload []byte) ([]byte, error) {
	return inst.keystore.Sign(id, payload)
}

// KeystoreGetPublicKey implements ribosome.HostEnv.
func (inst *Instance) KeystoreGetPublicKey(id string) (common.Address, error) {
	return inst.keystore.GetPublicKey(id)
}

// CommitCapabilityGrant implements ribosome.HostEnv.
func (inst *Instance) CommitCapabilityGrant(grant types.CapabilityGrant) (common.Address, error) {
	if grant.Grantor.IsNull() {
		grant.Grantor = inst.agent
	}
	header, err := inst.commitEntry(context.Background(), types.NewGrantEntry(grant), "")
	if err != nil {
		return common.NullAddress, err
	}
	return header.EntryAddress, nil
}

// CommitCapabilityClaim implements ribosome.HostEnv.
func (inst *Instance) CommitCapabilityClaim(claim types.CapabilityClaim) (common.Address, error) {
	header, err := inst.commitEntry(context.Background(), types.NewClaimEntry(claim), "")
	if err != nil {
		return common.NullAddress, err
	}
	return header.EntryAddress, nil
}

// Debug implements ribosome.HostEnv.
func (inst *Instance) Debug(msg string) {
	inst.log.WithField("guest", true).Debug(msg)
}

// EmitSignal implements ribosome.HostEnv.
func (inst *Instance) EmitSignal(name string, payload json.RawMessage) error {
	inst.publishSignal(Signal{Name: name, Payload: payload})
	return nil
}

// Sleep implements ribosome.HostEnv.
func (inst *Instance) Sleep(d time.Duration) { time.Sleep(d) }

// Property implements ribosome.HostEnv.
func (inst *Instance) Property(key string) (string, error) {
	val, ok := inst.dna.Properties[key]
	if !ok {
		return "", fmt.Errorf("core: unknown property %q", key)
	}
	return val, nil
}
