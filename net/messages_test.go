package net

import (
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/types"
)

type frameSigner struct {
	addr common.Address
	priv ed25519.PrivateKey
}

func newFrameSigner(t *testing.T) *frameSigner {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &frameSigner{addr: types.AgentAddress(pub), priv: priv}
}

func (s *frameSigner) Address() common.Address       { return s.addr }
func (s *frameSigner) Sign(p []byte) ([]byte, error) { return ed25519.Sign(s.priv, p), nil }

func TestFrameRoundTrip(t *testing.T) {
	signer := newFrameSigner(t)
	msg := &Message{
		Type:         MsgQueryEntry,
		SpaceAddress: common.AddressOf([]byte("space")),
		RequestID:    "req-1",
		EntryAddress: common.AddressOf([]byte("entry")),
	}
	frame, err := EncodeFrame(signer, msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != msg.Type || got.RequestID != msg.RequestID || got.EntryAddress != msg.EntryAddress {
		t.Fatalf("frame mangled: %+v", got)
	}
	if got.FromAgent != signer.Address() {
		t.Fatalf("from agent = %s, want %s", got.FromAgent, signer.Address())
	}
}

func TestDecodeRejectsTamperedFrame(t *testing.T) {
	signer := newFrameSigner(t)
	frame, err := EncodeFrame(signer, &Message{Type: MsgDirectMessage, SpaceAddress: "s"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// Flip one byte of the compressed payload.
	frame[len(frame)-1] ^= 0xff
	if _, err := DecodeFrame(frame); err == nil {
		t.Fatalf("tampered frame accepted")
	}
}

func TestDecodeRejectsForgedSource(t *testing.T) {
	signer := newFrameSigner(t)
	impostor := newFrameSigner(t)
	msg := &Message{Type: MsgDirectMessage, SpaceAddress: "s", FromAgent: impostor.Address()}
	frame, err := EncodeFrame(signer, msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeFrame(frame); !errors.Is(err, ErrWrongSource) {
		t.Fatalf("forged source accepted: %v", err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := DecodeFrame([]byte("not a frame")); !errors.Is(err, ErrBadFrame) {
		t.Fatalf("garbage accepted: %v", err)
	}
}
