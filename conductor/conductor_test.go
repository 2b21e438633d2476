package conductor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hc-network/gcond/ribosome"
	"github.com/hc-network/gcond/types"
)

// nopRunner accepts every callback, standing in for the wasm engine.
type nopRunner struct{}

func (nopRunner) RunZomeFunction(dna *types.Dna, zome, fn string, args json.RawMessage, env ribosome.HostEnv) (json.RawMessage, error) {
	return json.RawMessage(`null`), nil
}

func (nopRunner) RunCallback(dna *types.Dna, zome, callback string, arg interface{}, env ribosome.HostEnv) (json.RawMessage, error) {
	return nil, fmt.Errorf("%w: export %q", types.ErrNotImplemented, callback)
}

func writeTestDna(t *testing.T, dir string) string {
	t.Helper()
	dna := types.Dna{
		Name: "test-app",
		UUID: "11111111-2222-4333-8444-555555555555",
		Zomes: map[string]types.Zome{
			"main": {
				Code:       []byte{0x00},
				EntryTypes: map[string]types.EntryTypeDef{"note": {Sharing: types.SharingPublic}},
				Functions:  []types.FnDeclaration{{Name: "read", Public: true}},
			},
		},
	}
	raw, err := json.Marshal(&dna)
	if err != nil {
		t.Fatalf("marshal dna: %v", err)
	}
	path := filepath.Join(dir, "app.dna.json")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write dna: %v", err)
	}
	return path
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gcond.toml")
	body := `
DataDir = "/tmp/gcond-test"
Nick = "alice"

[Storage]
Backend = "mem"

[Network]
Type = "none"

[Sharding]
Mode = "neighborhood"
Redundancy = 8
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DataDir != "/tmp/gcond-test" || cfg.Nick != "alice" {
		t.Fatalf("overrides lost: %+v", cfg)
	}
	if cfg.Storage.Backend != "mem" || cfg.Sharding.Redundancy != 8 {
		t.Fatalf("sections lost: %+v", cfg)
	}
}

func TestConductorLifecycleMemBackend(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DataDir = dir
	cfg.DnaPath = writeTestDna(t, dir)
	cfg.Passphrase = "test"
	cfg.Storage.Backend = "mem"
	cfg.Network.Type = "none"

	c, err := NewWithRunner(cfg, nil, nopRunner{})
	if err != nil {
		t.Fatalf("new conductor: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	if c.Instance().Chain().Len() != 2 {
		t.Fatalf("genesis chain length = %d, want 2", c.Instance().Chain().Len())
	}
	headers, err := c.Instance().Chain().Headers()
	if err != nil {
		t.Fatalf("headers: %v", err)
	}
	if headers[1].Type != types.TypeDna || headers[0].Type != types.TypeAgentID {
		t.Fatalf("genesis order wrong: %s then %s", headers[1].Type, headers[0].Type)
	}
}

func TestKeystorePersistsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DataDir = dir
	cfg.DnaPath = writeTestDna(t, dir)
	cfg.Passphrase = "test"
	cfg.Storage.Backend = "file"
	cfg.Network.Type = "none"

	c1, err := NewWithRunner(cfg, nil, nopRunner{})
	if err != nil {
		t.Fatalf("first conductor: %v", err)
	}
	if err := c1.Start(context.Background()); err != nil {
		t.Fatalf("first start: %v", err)
	}
	agent := c1.Agent()
	c1.Stop()

	c2, err := NewWithRunner(cfg, nil, nopRunner{})
	if err != nil {
		t.Fatalf("second conductor: %v", err)
	}
	if err := c2.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	defer c2.Stop()
	if c2.Agent() != agent {
		t.Fatalf("agent key not persisted: %s vs %s", c2.Agent(), agent)
	}
	// The chain persisted too: genesis must not repeat.
	if c2.Instance().Chain().Len() != 2 {
		t.Fatalf("restart chain length = %d, want 2", c2.Instance().Chain().Len())
	}
}
