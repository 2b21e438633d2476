package ribosome

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/hc-network/gcond/params"
	"github.com/hc-network/gcond/types"
)

// hostResult is the uniform envelope every host call writes back into
// guest memory. Guests branch on ok before touching value.
type hostResult struct {
	OK    bool            `json:"ok"`
	Value json.RawMessage `json:"value,omitempty"`
	Error string          `json:"error,omitempty"`
}

func okResult(v interface{}) ([]byte, error) {
	var raw json.RawMessage
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(hostResult{OK: true, Value: raw})
}

func errResult(err error) []byte {
	b, merr := json.Marshal(hostResult{OK: false, Error: err.Error()})
	if merr != nil {
		return []byte(`{"ok":false,"error":"result serialization failed"}`)
	}
	return b
}

// handler is one host call: canonical JSON argument in, result envelope
// payload out.
type handler func(c *callContext, arg []byte) ([]byte, error)

// hostFn adapts a handler to the wasm calling convention: read the
// argument allocation, run, write the result envelope, return its encoded
// allocation. Memory-level failures return bare status codes; application
// failures travel inside the envelope.
func hostFn(store *wasmer.Store, c *callContext, h handler) wasmer.IntoExtern {
	sig := wasmer.NewFunctionType(
		wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I32)),
		wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I32)),
	)
	return wasmer.NewFunction(store, sig, func(args []wasmer.Value) ([]wasmer.Value, error) {
		enc := EncodedAllocation(uint32(args[0].I32()))
		var argBytes []byte
		if code, isCode := enc.Code(); isCode {
			if code != CodeSuccess {
				return []wasmer.Value{wasmer.NewI32(int32(uint32(EncodeCode(CodeNotAnAllocation))))}, nil
			}
		} else {
			var err error
			argBytes, err = c.read(enc)
			if err != nil {
				return []wasmer.Value{wasmer.NewI32(int32(uint32(EncodeCode(CodeNotAnAllocation))))}, nil
			}
		}

		out, err := h(c, argBytes)
		if err != nil {
			out = errResult(err)
		}
		ret, err := c.write(out)
		if err != nil {
			return []wasmer.Value{wasmer.NewI32(int32(uint32(EncodeCode(CodeOutOfMemory))))}, nil
		}
		return []wasmer.Value{wasmer.NewI32(int32(uint32(ret)))}, nil
	})
}

func decodeArg(arg []byte, dst interface{}) error {
	return types.FromCanonicalJSON(arg, dst)
}

// registerHost builds the "env" import namespace for one call context.
func registerHost(store *wasmer.Store, c *callContext) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()
	ns := map[string]wasmer.IntoExtern{}
	add := func(name string, h handler) { ns[name] = hostFn(store, c, h) }

	add(FnCommitEntry, func(c *callContext, arg []byte) ([]byte, error) {
		var in commitEntryArgs
		if err := decodeArg(arg, &in); err != nil {
			return nil, err
		}
		addr, err := c.env.CommitEntry(in.Entry)
		if err != nil {
			return nil, err
		}
		return okResult(addressResult{Address: addr})
	})

	add(FnGetEntry, func(c *callContext, arg []byte) ([]byte, error) {
		var in getEntryArgs
		if err := decodeArg(arg, &in); err != nil {
			return nil, err
		}
		res, err := c.env.GetEntry(in.Address, in.Options)
		if err != nil {
			return nil, err
		}
		return okResult(res)
	})

	add(FnGetLinks, func(c *callContext, arg []byte) ([]byte, error) {
		var in getLinksArgs
		if err := decodeArg(arg, &in); err != nil {
			return nil, err
		}
		links, err := c.env.GetLinks(in.Base, in.LinkType, in.Tag, in.Options)
		if err != nil {
			return nil, err
		}
		return okResult(links)
	})

	add(FnLinkEntries, func(c *callContext, arg []byte) ([]byte, error) {
		var in types.LinkData
		if err := decodeArg(arg, &in); err != nil {
			return nil, err
		}
		addr, err := c.env.LinkEntries(in)
		if err != nil {
			return nil, err
		}
		return okResult(addressResult{Address: addr})
	})

	add(FnRemoveLink, func(c *callContext, arg []byte) ([]byte, error) {
		var in types.LinkData
		if err := decodeArg(arg, &in); err != nil {
			return nil, err
		}
		addr, err := c.env.RemoveLink(in)
		if err != nil {
			return nil, err
		}
		return okResult(addressResult{Address: addr})
	})

	add(FnUpdateEntry, func(c *callContext, arg []byte) ([]byte, error) {
		var in updateEntryArgs
		if err := decodeArg(arg, &in); err != nil {
			return nil, err
		}
		addr, err := c.env.UpdateEntry(in.Address, in.NewEntry)
		if err != nil {
			return nil, err
		}
		return okResult(addressResult{Address: addr})
	})

	add(FnRemoveEntry, func(c *callContext, arg []byte) ([]byte, error) {
		var in removeEntryArgs
		if err := decodeArg(arg, &in); err != nil {
			return nil, err
		}
		addr, err := c.env.RemoveEntry(in.Address)
		if err != nil {
			return nil, err
		}
		return okResult(addressResult{Address: addr})
	})

	add(FnQuery, func(c *callContext, arg []byte) ([]byte, error) {
		var in queryArgs
		if err := decodeArg(arg, &in); err != nil {
			return nil, err
		}
		items, err := c.env.Query(in.Patterns, in.Options)
		if err != nil {
			return nil, err
		}
		return okResult(items)
	})

	add(FnSend, func(c *callContext, arg []byte) ([]byte, error) {
		var in sendArgs
		if err := decodeArg(arg, &in); err != nil {
			return nil, err
		}
		timeout := params.SendTimeout
		if in.TimeoutMs > 0 {
			timeout = time.Duration(in.TimeoutMs) * time.Millisecond
		}
		resp, err := c.env.Send(in.To, in.Payload, timeout)
		if err != nil {
			return nil, err
		}
		return okResult(resp)
	})

	add(FnCall, func(c *callContext, arg []byte) ([]byte, error) {
		var in callArgs
		if err := decodeArg(arg, &in); err != nil {
			return nil, err
		}
		resp, err := c.env.Call(in.Zome, in.Fn, in.Args, in.CapRequest)
		if err != nil {
			return nil, err
		}
		return okResult(resp)
	})

	add(FnSign, func(c *callContext, arg []byte) ([]byte, error) {
		var in signArgs
		if err := decodeArg(arg, &in); err != nil {
			return nil, err
		}
		prov, err := c.env.Sign([]byte(in.Payload))
		if err != nil {
			return nil, err
		}
		return okResult(prov)
	})

	add(FnVerifySignature, func(c *callContext, arg []byte) ([]byte, error) {
		var in verifyArgs
		if err := decodeArg(arg, &in); err != nil {
			return nil, err
		}
		ok, err := c.env.VerifySignature(in.Provenance, []byte(in.Payload))
		if err != nil {
			return nil, err
		}
		return okResult(ok)
	})

	add(FnEncrypt, func(c *callContext, arg []byte) ([]byte, error) {
		var in cryptArgs
		if err := decodeArg(arg, &in); err != nil {
			return nil, err
		}
		out, err := c.env.Encrypt(in.Data)
		if err != nil {
			return nil, err
		}
		return okResult(base64.StdEncoding.EncodeToString(out))
	})

	add(FnDecrypt, func(c *callContext, arg []byte) ([]byte, error) {
		var in cryptArgs
		if err := decodeArg(arg, &in); err != nil {
			return nil, err
		}
		out, err := c.env.Decrypt(in.Data)
		if err != nil {
			return nil, err
		}
		return okResult(base64.StdEncoding.EncodeToString(out))
	})

	add(FnKeystoreList, func(c *callContext, arg []byte) ([]byte, error) {
		ids, err := c.env.KeystoreList()
		if err != nil {
			return nil, err
		}
		return okResult(ids)
	})

	add(FnKeystoreNewSeed, func(c *callContext, arg []byte) ([]byte, error) {
		var in keystoreSeedArgs
		if err := decodeArg(arg, &in); err != nil {
			return nil, err
		}
		if err := c.env.KeystoreNewRandomSeed(in.ID, in.Size); err != nil {
			return nil, err
		}
		return okResult(nil)
	})

	add(FnKeystoreDerive, func(c *callContext, arg []byte) ([]byte, error) {
		var in keystoreDeriveArgs
		if err := decodeArg(arg, &in); err != nil {
			return nil, err
		}
		if err := c.env.KeystoreDeriveSeed(in.Src, in.Dst, in.Context, in.Index); err != nil {
			return nil, err
		}
		return okResult(nil)
	})

	add(FnKeystoreKey, func(c *callContext, arg []byte) ([]byte, error) {
		var in keystoreDeriveArgs
		if err := decodeArg(arg, &in); err != nil {
			return nil, err
		}
		addr, err := c.env.KeystoreDeriveKey(in.Src, in.Dst, in.Context, in.Index)
		if err != nil {
			return nil, err
		}
		return okResult(addressResult{Address: addr})
	})

	add(FnKeystoreSign, func(c *callContext, arg []byte) ([]byte, error) {
		var in keystoreSignArgs
		if err := decodeArg(arg, &in); err != nil {
			return nil, err
		}
		sig, err := c.env.KeystoreSign(in.ID, []byte(in.Payload))
		if err != nil {
			return nil, err
		}
		return okResult(base64.StdEncoding.EncodeToString(sig))
	})

	add(FnKeystorePubKey, func(c *callContext, arg []byte) ([]byte, error) {
		var in keystoreSeedArgs
		if err := decodeArg(arg, &in); err != nil {
			return nil, err
		}
		addr, err := c.env.KeystoreGetPublicKey(in.ID)
		if err != nil {
			return nil, err
		}
		return okResult(addressResult{Address: addr})
	})

	add(FnCapabilityGrant, func(c *callContext, arg []byte) ([]byte, error) {
		var in types.CapabilityGrant
		if err := decodeArg(arg, &in); err != nil {
			return nil, err
		}
		addr, err := c.env.CommitCapabilityGrant(in)
		if err != nil {
			return nil, err
		}
		return okResult(addressResult{Address: addr})
	})

	add(FnCapabilityClaim, func(c *callContext, arg []byte) ([]byte, error) {
		var in types.CapabilityClaim
		if err := decodeArg(arg, &in); err != nil {
			return nil, err
		}
		addr, err := c.env.CommitCapabilityClaim(in)
		if err != nil {
			return nil, err
		}
		return okResult(addressResult{Address: addr})
	})

	add(FnDebug, func(c *callContext, arg []byte) ([]byte, error) {
		var msg string
		if err := decodeArg(arg, &msg); err != nil {
			return nil, err
		}
		c.env.Debug(msg)
		return okResult(nil)
	})

	add(FnEmitSignal, func(c *callContext, arg []byte) ([]byte, error) {
		var in emitSignalArgs
		if err := decodeArg(arg, &in); err != nil {
			return nil, err
		}
		if err := c.env.EmitSignal(in.Name, in.Payload); err != nil {
			return nil, err
		}
		return okResult(nil)
	})

	add(FnSleep, func(c *callContext, arg []byte) ([]byte, error) {
		var ns int64
		if err := decodeArg(arg, &ns); err != nil {
			return nil, err
		}
		c.env.Sleep(time.Duration(ns))
		return okResult(nil)
	})

	add(FnProperty, func(c *callContext, arg []byte) ([]byte, error) {
		var in propertyArgs
		if err := decodeArg(arg, &in); err != nil {
			return nil, err
		}
		val, err := c.env.Property(in.Key)
		if err != nil {
			return nil, err
		}
		return okResult(val)
	})

	imports.Register("env", ns)
	return imports
}
