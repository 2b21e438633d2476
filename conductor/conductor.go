package conductor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hc-network/gcond/cas"
	"github.com/hc-network/gcond/chain"
	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/core"
	"github.com/hc-network/gcond/dht"
	"github.com/hc-network/gcond/eav"
	"github.com/hc-network/gcond/keystore"
	"github.com/hc-network/gcond/net"
	"github.com/hc-network/gcond/net/memnet"
	"github.com/hc-network/gcond/net/wsnet"
	"github.com/hc-network/gcond/params"
	"github.com/hc-network/gcond/ribosome"
	"github.com/hc-network/gcond/types"
)

// agentKeyID names the signing keypair inside the keystore file.
const agentKeyID = "primary-agent"

// Conductor owns one instance and the resources around it.
type Conductor struct {
	cfg      Config
	keystore *keystore.FileKeystore
	signer   *keystore.KeySigner
	instance *core.Instance
	wsClient *wsnet.Client
	log      *logrus.Entry
}

// LoadDna reads a DNA manifest from JSON.
func LoadDna(path string) (*types.Dna, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("conductor: read dna: %w", err)
	}
	var dna types.Dna
	if err := json.Unmarshal(raw, &dna); err != nil {
		return nil, fmt.Errorf("%w: dna manifest: %v", types.ErrSerialization, err)
	}
	return &dna, nil
}

// New assembles a conductor from configuration. A memnet hub may be
// passed for in-process networks; nil creates a private one.
func New(cfg Config, hub *memnet.Hub) (*Conductor, error) {
	return NewWithRunner(cfg, hub, ribosome.New())
}

// NewWithRunner assembles a conductor around a specific guest runner,
// which harnesses use to substitute the wasm engine.
func NewWithRunner(cfg Config, hub *memnet.Hub, runner ribosome.Runner) (*Conductor, error) {
	c := &Conductor{cfg: cfg, log: logrus.WithField("pkg", "conductor")}

	dna, err := LoadDna(cfg.DnaPath)
	if err != nil {
		return nil, err
	}

	if err := c.openKeystore(); err != nil {
		return nil, err
	}

	sourceChain, shard, err := c.openStorage()
	if err != nil {
		return nil, err
	}

	var network net.Network
	switch cfg.Network.Type {
	case "", "none":
	case "mem":
		if hub == nil {
			hub = memnet.NewHub()
		}
		network = hub.NewNode(c.signer)
	case "ws":
		client, err := wsnet.Dial(cfg.Network.RelayURL, c.signer)
		if err != nil {
			return nil, err
		}
		c.wsClient = client
		network = client
	default:
		return nil, fmt.Errorf("conductor: unknown network type %q", cfg.Network.Type)
	}

	sharding := dht.ShardingConfig{Mode: dht.FullSync}
	if cfg.Sharding.Mode == "neighborhood" {
		sharding = dht.ShardingConfig{Mode: dht.Neighborhood, Redundancy: cfg.Sharding.Redundancy}
	}

	c.instance = core.NewInstance(core.InstanceConfig{
		Dna:      dna,
		Chain:    sourceChain,
		Shard:    shard,
		Runner:   runner,
		Network:  network,
		Keystore: c.keystore,
		KeyID:    agentKeyID,
		Signer:   c.signer,
		Sharding: sharding,
		Nick:     cfg.Nick,
	})
	return c, nil
}

// openKeystore loads the passphrase-encrypted key file, bootstrapping a
// fresh agent key when none exists. The file lives at
// keystore/<agent-public-key> under the data dir.
func (c *Conductor) openKeystore() error {
	dir := c.cfg.dataPath("keystore")
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("conductor: scan keystore: %w", err)
	}

	var ks *keystore.FileKeystore
	var existing string
	for _, e := range entries {
		if !e.IsDir() {
			existing = e.Name()
			break
		}
	}
	if existing != "" {
		ks = keystore.NewFileKeystore(keystore.KeystorePath(c.cfg.DataDir, common.Address(existing)), c.cfg.Passphrase)
		if err := ks.Load(); err != nil {
			return err
		}
	} else {
		mem := keystore.NewMemKeystore()
		if err := mem.AddRandomSeed("root", 32); err != nil {
			return err
		}
		agent, err := mem.AddKeyFromSeed("root", agentKeyID, params.SigningContext, 0)
		if err != nil {
			return err
		}
		ks = keystore.WrapFile(mem, keystore.KeystorePath(c.cfg.DataDir, agent), c.cfg.Passphrase)
		if err := ks.Save(); err != nil {
			return err
		}
		c.log.WithField("agent", agent).Info("bootstrapped new agent key")
	}

	signer, err := keystore.NewKeySigner(ks, agentKeyID)
	if err != nil {
		return err
	}
	c.keystore = ks
	c.signer = signer
	return nil
}

// openStorage builds the chain and shard over the configured backends.
func (c *Conductor) openStorage() (*chain.SourceChain, *dht.Shard, error) {
	var (
		chainStore, shardStore cas.Storage
		index                  eav.Index
		tops                   chain.TopStore
		err                    error
	)
	switch c.cfg.Storage.Backend {
	case "mem":
		chainStore, shardStore = cas.NewMemStore(), cas.NewMemStore()
		index = eav.NewMemIndex()
		tops = chain.NewMemTop()
	case "file":
		if chainStore, err = cas.NewFileStore(c.cfg.dataPath("cas", "chain")); err != nil {
			return nil, nil, err
		}
		if shardStore, err = cas.NewFileStore(c.cfg.dataPath("cas", "dht")); err != nil {
			return nil, nil, err
		}
		if index, err = eav.NewFileIndex(c.cfg.dataPath("eav")); err != nil {
			return nil, nil, err
		}
		if tops, err = chain.NewFileTop(c.cfg.DataDir); err != nil {
			return nil, nil, err
		}
	case "leveldb":
		if chainStore, err = cas.NewLevelDBStore(c.cfg.dataPath("cas", "chain")); err != nil {
			return nil, nil, err
		}
		if shardStore, err = cas.NewLevelDBStore(c.cfg.dataPath("cas", "dht")); err != nil {
			return nil, nil, err
		}
		if index, err = eav.NewLevelDBIndex(c.cfg.dataPath("eav")); err != nil {
			return nil, nil, err
		}
		if tops, err = chain.NewFileTop(c.cfg.DataDir); err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, fmt.Errorf("conductor: unknown storage backend %q", c.cfg.Storage.Backend)
	}

	sourceChain, err := chain.Open(chainStore, tops, c.signer)
	if err != nil {
		return nil, nil, err
	}
	shard := dht.NewShard(shardStore, index, c.signer.Address())
	return sourceChain, shard, nil
}

// Instance exposes the running instance.
func (c *Conductor) Instance() *core.Instance { return c.instance }

// Agent returns the conductor's agent address.
func (c *Conductor) Agent() string { return c.signer.Address().String() }

// Start brings the instance up.
func (c *Conductor) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.instance.Start(gctx) })
	if err := g.Wait(); err != nil {
		return err
	}
	c.log.WithField("agent", c.signer.Address()).Info("conductor started")
	return nil
}

// Stop tears the instance and transport down.
func (c *Conductor) Stop() {
	c.instance.Stop()
	if c.wsClient != nil {
		c.wsClient.Close()
	}
}
