package common

import (
	"bytes"
	"testing"
)

func TestAddressOfDeterministic(t *testing.T) {
	a := AddressOf([]byte(`{"entry_type":"note","value":"hello"}`))
	b := AddressOf([]byte(`{"entry_type":"note","value":"hello"}`))
	if a != b {
		t.Fatalf("same content produced different addresses: %s vs %s", a, b)
	}
	c := AddressOf([]byte(`{"entry_type":"note","value":"world"}`))
	if a == c {
		t.Fatalf("different content produced the same address: %s", a)
	}
}

func TestAddressDigestStable(t *testing.T) {
	a := AddressOf([]byte("content"))
	d1, d2 := a.Digest(), a.Digest()
	if d1 != d2 {
		t.Fatalf("digest not stable")
	}
	if bytes.Equal(d1[:], make([]byte, 32)) {
		t.Fatalf("digest is all zeroes")
	}
}

func TestDistanceSymmetric(t *testing.T) {
	a := AddressOf([]byte("a"))
	b := AddressOf([]byte("b"))
	if Distance(a, b) != Distance(b, a) {
		t.Fatalf("distance is not symmetric")
	}
	var zero [32]byte
	if Distance(a, a) != zero {
		t.Fatalf("distance to self is not zero")
	}
}

func TestCloser(t *testing.T) {
	target := AddressOf([]byte("target"))
	a := AddressOf([]byte("a"))
	b := AddressOf([]byte("b"))
	if Closer(target, a, b) && Closer(target, b, a) {
		t.Fatalf("both addresses closer than each other")
	}
	if Closer(target, a, a) {
		t.Fatalf("address strictly closer than itself")
	}
}

func TestSortAddresses(t *testing.T) {
	addrs := []Address{"c", "a", "b"}
	SortAddresses(addrs)
	if addrs[0] != "a" || addrs[1] != "b" || addrs[2] != "c" {
		t.Fatalf("unexpected order: %v", addrs)
	}
}
