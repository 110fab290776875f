package dbus

import (
	"bytes"
	"testing"

	"github.com/nilcore/dbus/wire"
)

// TestHelloFixture encodes the first message any connection ever
// sends — the method_call to org.freedesktop.DBus, member Hello, with
// an empty body — and checks it against the published byte fixture
// for the 12-byte prologue, then round-trips the full message through
// DecodeMessage to confirm the header fields it carries.
func TestHelloFixture(t *testing.T) {
	m := newCall(1, busDestination, busPath, busInterface, "Hello", Signature{}, nil, false)

	bs, err := EncodeMessage(wire.LittleEndian, m)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}

	wantPrologue := []byte{0x6c, 0x01, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00}
	if len(bs) < len(wantPrologue) {
		t.Fatalf("encoded message too short: got %d bytes", len(bs))
	}
	if gotPrologue := bs[:len(wantPrologue)]; !bytes.Equal(gotPrologue, wantPrologue) {
		t.Errorf("prologue mismatch:\n  got:  % x\n want: % x", gotPrologue, wantPrologue)
	}

	got, err := DecodeMessage(bytes.NewReader(bs))
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if got.Type != msgTypeCall {
		t.Errorf("Type = %v, want msgTypeCall", got.Type)
	}
	if got.Serial != 1 {
		t.Errorf("Serial = %d, want 1", got.Serial)
	}
	if got.Destination() != busDestination {
		t.Errorf("Destination = %q, want %q", got.Destination(), busDestination)
	}
	if got.Path() != busPath {
		t.Errorf("Path = %q, want %q", got.Path(), busPath)
	}
	if got.Interface() != busInterface {
		t.Errorf("Interface = %q, want %q", got.Interface(), busInterface)
	}
	if got.Member() != "Hello" {
		t.Errorf("Member = %q, want Hello", got.Member())
	}
	if len(got.Body) != 0 {
		t.Errorf("Body = %v, want empty", got.Body)
	}
}
