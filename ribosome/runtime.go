package ribosome

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/hc-network/gcond/types"
)

// Runner abstracts guest execution so core workflows can run against a
// stub in tests. *Ribosome is the production implementation.
type Runner interface {
	// RunZomeFunction invokes an exported zome function with canonical
	// JSON arguments and returns its canonical JSON result.
	RunZomeFunction(dna *types.Dna, zome, fn string, args json.RawMessage, env HostEnv) (json.RawMessage, error)
	// RunCallback invokes a reserved guest export. A missing export
	// returns types.ErrNotImplemented.
	RunCallback(dna *types.Dna, zome, callback string, arg interface{}, env HostEnv) (json.RawMessage, error)
}

// Ribosome executes guest bytecode on a shared wasmer engine. Every call
// gets a fresh instance with its own linear memory; nothing is cached
// across calls.
type Ribosome struct {
	engine *wasmer.Engine
	log    *logrus.Entry
}

// New creates a Ribosome with a JIT engine.
func New() *Ribosome {
	return &Ribosome{
		engine: wasmer.NewEngine(),
		log:    logrus.WithField("pkg", "ribosome"),
	}
}

var errNoSuchZome = errors.New("ribosome: no such zome")

func zomeCode(dna *types.Dna, zome string) ([]byte, error) {
	z, ok := dna.Zomes[zome]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errNoSuchZome, zome)
	}
	if len(z.Code) == 0 {
		return nil, fmt.Errorf("%w: zome %q has no bytecode", types.ErrRibosomeFailed, zome)
	}
	return z.Code, nil
}

// callContext is the per-call state shared between host imports: the guest
// memory, the argument/return stack and the host environment.
type callContext struct {
	env   HostEnv
	mem   *wasmer.Memory
	stack WasmStack
	log   *logrus.Entry
}

// read copies the bytes an encoded allocation describes out of guest
// memory.
func (c *callContext) read(enc EncodedAllocation) ([]byte, error) {
	alloc, err := enc.Decode()
	if err != nil {
		return nil, err
	}
	data := c.mem.Data()
	end := uint32(alloc.Offset) + uint32(alloc.Length)
	if end > uint32(len(data)) {
		return nil, ErrOutOfMemory
	}
	out := make([]byte, alloc.Length)
	copy(out, data[alloc.Offset:end])
	return out, nil
}

// write places b at the stack top in guest memory and returns the encoded
// allocation describing it.
func (c *callContext) write(b []byte) (EncodedAllocation, error) {
	alloc, err := c.stack.Allocate(len(b))
	if err != nil {
		return 0, err
	}
	data := c.mem.Data()
	end := uint32(alloc.Offset) + uint32(alloc.Length)
	if end > uint32(len(data)) {
		return 0, ErrOutOfMemory
	}
	copy(data[alloc.Offset:end], b)
	return alloc.Encode(), nil
}

// instantiate compiles and instantiates one zome module with the host
// import table bound to env.
func (r *Ribosome) instantiate(code []byte, env HostEnv) (*wasmer.Instance, *callContext, error) {
	store := wasmer.NewStore(r.engine)
	mod, err := wasmer.NewModule(store, code)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: compile: %v", types.ErrRibosomeFailed, err)
	}
	cctx := &callContext{env: env, log: r.log}
	imports := registerHost(store, cctx)
	instance, err := wasmer.NewInstance(mod, imports)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: instantiate: %v", types.ErrRibosomeFailed, err)
	}
	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return nil, nil, fmt.Errorf("%w: memory export missing", types.ErrRibosomeFailed)
	}
	cctx.mem = mem
	return instance, cctx, nil
}

// invoke runs one export with the single-allocation calling convention.
func (r *Ribosome) invoke(instance *wasmer.Instance, cctx *callContext, export string, arg []byte, missingIsNotImplemented bool) (json.RawMessage, error) {
	fn, err := instance.Exports.GetFunction(export)
	if err != nil {
		if missingIsNotImplemented {
			return nil, fmt.Errorf("%w: export %q", types.ErrNotImplemented, export)
		}
		return nil, fmt.Errorf("%w: export %q missing", types.ErrRibosomeFailed, export)
	}

	var param EncodedAllocation
	if len(arg) > 0 {
		param, err = cctx.write(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: write argument: %v", types.ErrRibosomeFailed, err)
		}
	}

	raw, err := fn(int32(uint32(param)))
	if err != nil {
		// Traps, unreachable, OOB access inside the guest.
		return nil, fmt.Errorf("%w: %v", types.ErrRibosomeFailed, err)
	}
	ret, ok := raw.(int32)
	if !ok {
		return nil, fmt.Errorf("%w: export %q does not follow the calling convention", types.ErrRibosomeFailed, export)
	}
	enc := EncodedAllocation(uint32(ret))
	if code, isCode := enc.Code(); isCode {
		if code == CodeSuccess {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", types.ErrRibosomeFailed, code.Err())
	}
	out, err := cctx.read(enc)
	if err != nil {
		return nil, fmt.Errorf("%w: read result: %v", types.ErrRibosomeFailed, err)
	}
	return json.RawMessage(out), nil
}

// RunZomeFunction implements Runner.
func (r *Ribosome) RunZomeFunction(dna *types.Dna, zome, fn string, args json.RawMessage, env HostEnv) (json.RawMessage, error) {
	code, err := zomeCode(dna, zome)
	if err != nil {
		return nil, err
	}
	instance, cctx, err := r.instantiate(code, env)
	if err != nil {
		return nil, err
	}
	r.log.WithFields(logrus.Fields{"zome": zome, "fn": fn}).Debug("running zome function")
	return r.invoke(instance, cctx, fn, args, false)
}

// RunCallback implements Runner.
func (r *Ribosome) RunCallback(dna *types.Dna, zome, callback string, arg interface{}, env HostEnv) (json.RawMessage, error) {
	code, err := zomeCode(dna, zome)
	if err != nil {
		return nil, err
	}
	var argBytes []byte
	if arg != nil {
		argBytes, err = types.CanonicalJSON(arg)
		if err != nil {
			return nil, err
		}
	}
	instance, cctx, err := r.instantiate(code, env)
	if err != nil {
		return nil, err
	}
	r.log.WithFields(logrus.Fields{"zome": zome, "callback": callback}).Debug("running callback")
	return r.invoke(instance, cctx, callback, argBytes, true)
}
