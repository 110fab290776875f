package dbus

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/creachadair/mds/mapset"

	"github.com/nilcore/dbus/wire"
)

// fakeTransport is a [transport.Transport] that never talks to a real
// socket: Write captures each outgoing message for a test to inspect
// and reply to directly, and Read blocks until the transport is
// closed.
type fakeTransport struct {
	written chan []byte
	closed  chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		written: make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

func (t *fakeTransport) Read(bs []byte) (int, error) {
	<-t.closed
	return 0, io.EOF
}

func (t *fakeTransport) Write(bs []byte) (int, error) {
	cp := append([]byte(nil), bs...)
	t.written <- cp
	return len(bs), nil
}

func (t *fakeTransport) Close() error {
	select {
	case <-t.closed:
	default:
		close(t.closed)
	}
	return nil
}

func (t *fakeTransport) ReadLine() (string, error) { return "", io.EOF }

func (t *fakeTransport) GetFiles(n int) ([]*os.File, error) { return nil, nil }

func (t *fakeTransport) WriteWithFiles(bs []byte, fds []*os.File) (int, error) {
	return t.Write(bs)
}

func (t *fakeTransport) SetDeadline(time.Time) error { return nil }

func newTestConn() (*Conn, *fakeTransport) {
	tr := newFakeTransport()
	c := &Conn{
		t:     tr,
		order: wire.NativeEndian,
		calls: map[uint32]*pendingCall{},
		subs:  mapset.New[*SignalSubscription](),
	}
	return c, tr
}

// TestCallCorrelation drives N concurrent calls and replies to them in
// the reverse of the order they were sent, proving that each reply
// routes back to its originating caller by serial rather than by
// arrival order.
func TestCallCorrelation(t *testing.T) {
	c, tr := newTestConn()

	const n = 8
	type result struct {
		tag   string
		reply string
		err   error
	}
	results := make(chan result, n)
	for i := range n {
		tag := fmt.Sprintf("req%d", i)
		go func(tag string) {
			reply, err := c.call(context.Background(), "com.example.Dest", ObjectPath("/p"), "com.example.Iface", "Method", MustParseSignature("s"), []Value{Str(tag)}, false)
			r := result{tag: tag, err: err}
			if err == nil && len(reply) == 1 {
				r.reply = reply[0].Str()
			}
			results <- r
		}(tag)
	}

	var serials []uint32
	var tags []string
	for range n {
		bs := <-tr.written
		m, err := DecodeMessage(bytes.NewReader(bs))
		if err != nil {
			t.Fatalf("decoding outgoing call: %v", err)
		}
		serials = append(serials, m.Serial)
		tags = append(tags, m.Body[0].Str())
	}
	for i := n - 1; i >= 0; i-- {
		c.resolveCall(serials[i], []Value{Str("resp:" + tags[i])}, nil)
	}

	got := make(map[string]string, n)
	for range n {
		r := <-results
		if r.err != nil {
			t.Errorf("call %q failed: %v", r.tag, r.err)
			continue
		}
		got[r.tag] = r.reply
	}
	for i := range n {
		tag := fmt.Sprintf("req%d", i)
		if want := "resp:" + tag; got[tag] != want {
			t.Errorf("call %q got reply %q, want %q", tag, got[tag], want)
		}
	}
}

// TestCallCancellation checks the three properties spec.md 8 names
// for cancellation: a cancelled call never completes with a reply, a
// reply that arrives afterward is silently dropped, and the pending
// call table ends up empty.
func TestCallCancellation(t *testing.T) {
	c, tr := newTestConn()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var callErr error
	go func() {
		_, callErr = c.call(ctx, "com.example.Dest", ObjectPath("/p"), "com.example.Iface", "Method", Signature{}, nil, false)
		close(done)
	}()

	bs := <-tr.written
	m, err := DecodeMessage(bytes.NewReader(bs))
	if err != nil {
		t.Fatalf("decoding outgoing call: %v", err)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled call never completed")
	}
	if !Cancelled(callErr) {
		t.Errorf("call error = %v, want a cancellation error", callErr)
	}

	c.mu.Lock()
	n := len(c.calls)
	c.mu.Unlock()
	if n != 0 {
		t.Errorf("pending call table has %d entries after cancellation, want 0", n)
	}

	// A reply that arrives after cancellation must be dropped, not
	// delivered to anyone (there's no one left to deliver it to) and
	// not re-populate the pending table.
	c.resolveCall(m.Serial, []Value{Str("too late")}, nil)

	c.mu.Lock()
	n = len(c.calls)
	c.mu.Unlock()
	if n != 0 {
		t.Errorf("pending call table has %d entries after late reply, want 0", n)
	}
}

// TestSignalFanout checks that two subscriptions with overlapping
// match predicates each receive every signal they match exactly once,
// in the order the bus delivered them.
func TestSignalFanout(t *testing.T) {
	c, _ := newTestConn()

	newSub := func(m *Match) *SignalSubscription {
		s := &SignalSubscription{
			conn:        c,
			match:       *m,
			wake:        make(chan struct{}, 1),
			out:         make(chan *SignalRecord),
			pumpStopped: make(chan struct{}),
		}
		if err := c.subscribe(s); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		go s.pump()
		return s
	}

	broad := newSub(NewMatch().Interface("com.example.Iface"))
	narrow := newSub(NewMatch().Interface("com.example.Iface").Member("Foo"))
	defer broad.close()
	defer narrow.close()

	foo := newSignal(1, "/p", "com.example.Iface", "Foo", MustParseSignature("s"), []Value{Str("one")})
	bar := newSignal(2, "/p", "com.example.Iface", "Bar", MustParseSignature("s"), []Value{Str("two")})

	c.dispatchSignal(foo)
	c.dispatchSignal(bar)

	var broadGot []string
	for i := range 2 {
		select {
		case rec := <-broad.Chan():
			broadGot = append(broadGot, rec.Member)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for broad subscription signal %d", i)
		}
	}
	if want := []string{"Foo", "Bar"}; !slices.Equal(broadGot, want) {
		t.Errorf("broad subscription got %v, want %v (bus order)", broadGot, want)
	}

	select {
	case rec := <-narrow.Chan():
		if rec.Member != "Foo" {
			t.Errorf("narrow subscription got %q, want Foo", rec.Member)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for narrow subscription signal")
	}

	select {
	case rec := <-narrow.Chan():
		t.Fatalf("narrow subscription unexpectedly received a second signal: %v", rec)
	case <-time.After(100 * time.Millisecond):
	}
}
