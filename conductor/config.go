// Package conductor assembles running instances from configuration: the
// keystore, the storage backends, the network transport and the wasm
// engine, bound together into a core.Instance per application.
package conductor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/naoina/toml"
)

// StorageConfig selects the CAS and EAV backends.
type StorageConfig struct {
	// Backend is one of "mem", "file", "leveldb".
	Backend string
}

// NetworkConfig selects the transport.
type NetworkConfig struct {
	// Type is one of "mem" (in-process hub), "ws" (websocket relay), or
	// "none" for an offline instance.
	Type string
	// RelayURL is the websocket relay endpoint for Type = "ws".
	RelayURL string
}

// ShardingConfig mirrors dht.ShardingConfig in file form.
type ShardingConfig struct {
	// Mode is "full" or "neighborhood".
	Mode       string
	Redundancy int
}

// Config is the conductor TOML configuration.
type Config struct {
	// DataDir roots all persistent state: cas/, eav/, keystore/, chain_top.
	DataDir string
	// DnaPath locates the DNA manifest JSON.
	DnaPath string
	// Nick is the agent nickname committed at genesis.
	Nick string
	// Passphrase unlocks the keystore file. Usually supplied via flag or
	// environment rather than the file.
	Passphrase string

	Storage  StorageConfig
	Network  NetworkConfig
	Sharding ShardingConfig
}

// DefaultConfig returns the baseline configuration overlaid by file and
// flags.
func DefaultConfig() Config {
	return Config{
		DataDir: ".gcond",
		Nick:    "agent",
		Storage: StorageConfig{Backend: "leveldb"},
		Network: NetworkConfig{Type: "none"},
		Sharding: ShardingConfig{
			Mode: "full",
		},
	}
}

// LoadConfig reads a TOML file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("conductor: open config: %w", err)
	}
	defer f.Close()
	if err := toml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("conductor: decode config: %w", err)
	}
	return cfg, nil
}

// dataPath roots a relative path under the data dir.
func (c Config) dataPath(elem ...string) string {
	return filepath.Join(append([]string{c.DataDir}, elem...)...)
}
