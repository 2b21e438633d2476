package core

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hc-network/gcond/chain"
	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/dht"
	"github.com/hc-network/gcond/keystore"
	"github.com/hc-network/gcond/net"
	"github.com/hc-network/gcond/ribosome"
	"github.com/hc-network/gcond/types"
)

// Signal is one application signal emitted by guest code, delivered to
// conductor-level subscribers.
type Signal struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// InstanceConfig wires one instance together. Network may be nil for an
// offline instance.
type InstanceConfig struct {
	Dna      *types.Dna
	Chain    *chain.SourceChain
	Shard    *dht.Shard
	Runner   ribosome.Runner
	Network  net.Network
	Keystore keystore.Keystore
	// KeyID names the agent keypair inside the keystore.
	KeyID    string
	Signer   chain.Signer
	Sharding dht.ShardingConfig
	// Nick is the agent nickname committed in the %agent_id entry.
	Nick string
}

// Instance is one running DNA for one agent: the unit that owns a source
// chain, a DHT shard, a network space membership and a reducer store.
type Instance struct {
	dna      *types.Dna
	space    common.Address
	agent    common.Address
	nick     string
	chain    *chain.SourceChain
	shard    *dht.Shard
	runner   ribosome.Runner
	network  net.Network
	keystore keystore.Keystore
	keyID    string
	signer   chain.Signer
	sharding dht.ShardingConfig
	store    *Store
	log      *logrus.Entry

	signalMu   sync.RWMutex
	signalSubs []chan Signal

	gossipCancel context.CancelFunc
	gossipDone   chan struct{}
}

// NewInstance assembles an instance and starts its reducer.
func NewInstance(cfg InstanceConfig) *Instance {
	inst := &Instance{
		dna:      cfg.Dna,
		space:    cfg.Dna.Address(),
		agent:    cfg.Signer.Address(),
		nick:     cfg.Nick,
		chain:    cfg.Chain,
		shard:    cfg.Shard,
		runner:   cfg.Runner,
		network:  cfg.Network,
		keystore: cfg.Keystore,
		keyID:    cfg.KeyID,
		signer:   cfg.Signer,
		sharding: cfg.Sharding,
	}
	inst.log = logrus.WithFields(logrus.Fields{"pkg": "core", "agent": inst.agent, "dna": cfg.Dna.Name})
	inst.store = NewStore(inst.reduce)
	return inst
}

// Agent returns the instance's agent address.
func (inst *Instance) Agent() common.Address { return inst.agent }

// Space returns the DNA address identifying the instance's network space.
func (inst *Instance) Space() common.Address { return inst.space }

// Chain exposes the instance's source chain.
func (inst *Instance) Chain() *chain.SourceChain { return inst.chain }

// Shard exposes the instance's DHT shard.
func (inst *Instance) Shard() *dht.Shard { return inst.shard }

// Status returns the current nucleus status.
func (inst *Instance) Status() NucleusStatus {
	var status NucleusStatus
	inst.store.View(func(st *State) { status = st.Nucleus.Status })
	return status
}

// Start joins the network space, runs genesis if the chain is fresh and
// launches the gossip loop.
func (inst *Instance) Start(ctx context.Context) error {
	if inst.network != nil {
		if err := inst.network.Join(inst.space, inst.handleMessage); err != nil {
			return err
		}
	}
	if err := inst.initializeChain(ctx); err != nil {
		return err
	}
	if inst.network != nil {
		gctx, cancel := context.WithCancel(context.Background())
		inst.gossipCancel = cancel
		inst.gossipDone = make(chan struct{})
		go inst.gossipLoop(gctx)
	}
	return nil
}

// Stop leaves the space and halts the reducer.
func (inst *Instance) Stop() {
	if inst.gossipCancel != nil {
		inst.gossipCancel()
		<-inst.gossipDone
	}
	if inst.network != nil {
		inst.network.Leave(inst.space)
	}
	inst.store.Stop()
}

// SubscribeSignals registers a conductor-level signal consumer.
func (inst *Instance) SubscribeSignals() <-chan Signal {
	ch := make(chan Signal, 16)
	inst.signalMu.Lock()
	inst.signalSubs = append(inst.signalSubs, ch)
	inst.signalMu.Unlock()
	return ch
}

func (inst *Instance) publishSignal(sig Signal) {
	inst.signalMu.RLock()
	defer inst.signalMu.RUnlock()
	for _, ch := range inst.signalSubs {
		select {
		case ch <- sig:
		default:
			// Slow subscribers drop signals rather than stall guest code.
		}
	}
}

// encryptionKey derives a stable symmetric key for the encrypt/decrypt
// host calls from the agent key: ed25519 signatures are deterministic, so
// hashing a fixed-label signature reproduces the key without the keystore
// ever releasing seed material.
func (inst *Instance) encryptionKey() ([32]byte, error) {
	sig, err := inst.keystore.Sign(inst.keyID, []byte("gcond-encryption-key"))
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(sig), nil
}
