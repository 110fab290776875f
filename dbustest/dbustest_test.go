package dbustest_test

import (
	"context"
	"testing"
	"time"

	"github.com/nilcore/dbus"
	"github.com/nilcore/dbus/dbustest"
)

func TestBus(t *testing.T) {
	b := dbustest.New(t, true)
	conn := b.MustConn(t)
	cl := dbus.NewClient(conn)
	if err := cl.Peer("org.freedesktop.DBus").Ping(context.Background()); err != nil {
		t.Fatalf("failed to ping test bus: %v", err)
	}
}

// TestCallsSignalsProperties exercises the three core client
// operations against a real dbus-daemon: a method call, reading a
// property, and subscribing to a signal the bus emits as a side
// effect of a call (spec.md 8, end-to-end scenarios 2 through 5).
func TestCallsSignalsProperties(t *testing.T) {
	ctx := context.Background()
	b := dbustest.New(t, true)
	conn := b.MustConn(t)
	defer conn.Close()
	cl := dbus.NewClient(conn)

	if got := conn.UniqueName(); got == "" {
		t.Fatal("UniqueName() is empty after connecting")
	}

	// Call.
	id, err := conn.BusID(ctx)
	if err != nil {
		t.Fatalf("BusID() failed: %v", err)
	}
	if len(id) != 32 {
		t.Errorf("BusID() = %q, want a 32-hex-character string", id)
	}

	// Property.
	feats, err := conn.Features(ctx)
	if err != nil {
		t.Fatalf("Features() failed: %v", err)
	}
	props, err := cl.GetAllProperties(ctx, "org.freedesktop.DBus", "/org/freedesktop/DBus", "org.freedesktop.DBus")
	if err != nil {
		t.Fatalf("GetAllProperties() failed: %v", err)
	}
	allFeats, ok := props["Features"]
	if !ok {
		t.Fatal("GetAllProperties() did not return Features")
	}
	if got := len(allFeats.Elements()); got != len(feats) {
		t.Errorf("GetAllProperties()[\"Features\"] has %d elements, Features() returned %d", got, len(feats))
	}

	// Signal: requesting a name the bus has never seen triggers a
	// NameOwnerChanged signal naming it.
	sub, err := conn.SubscribeSignal(ctx, dbus.NewMatch().Interface("org.freedesktop.DBus").Member("NameOwnerChanged"))
	if err != nil {
		t.Fatalf("SubscribeSignal() failed: %v", err)
	}
	defer sub.Close()

	const spuriousName = "org.nilcore.dbus.test.spurious"
	if _, err := conn.RequestName(ctx, dbus.NameRequest{Name: spuriousName}); err != nil {
		t.Fatalf("RequestName(%q) failed: %v", spuriousName, err)
	}

	select {
	case rec := <-sub.Chan():
		noc, err := dbus.ParseNameOwnerChanged(rec)
		if err != nil {
			t.Fatalf("ParseNameOwnerChanged() failed: %v", err)
		}
		if noc.Name != spuriousName {
			t.Errorf("NameOwnerChanged.Name = %q, want %q", noc.Name, spuriousName)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for NameOwnerChanged signal")
	}
}
