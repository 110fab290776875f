package dbus

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"maps"
	"os"
	"strings"
	"sync"

	"github.com/creachadair/mds/mapset"
	"github.com/creachadair/taskgroup"

	"github.com/nilcore/dbus/transport"
	"github.com/nilcore/dbus/wire"
)

// SystemBus connects to the system message bus.
func SystemBus(ctx context.Context) (*Conn, error) {
	return Dial(ctx, "unix:path=/run/dbus/system_bus_socket")
}

// SessionBus connects to the calling user's session message bus, as
// named by the DBUS_SESSION_BUS_ADDRESS environment variable.
func SessionBus(ctx context.Context) (*Conn, error) {
	addr := os.Getenv("DBUS_SESSION_BUS_ADDRESS")
	if addr == "" {
		return nil, errors.New("DBUS_SESSION_BUS_ADDRESS is not set, no session bus available")
	}
	return Dial(ctx, addr)
}

// Dial connects to the message bus at the given DBus server address.
//
// address is a semicolon-separated list of address candidates, each
// of the form "transport:key1=value1,key2=value2". Dial tries each
// candidate in order and uses the first one it can connect and
// authenticate to. Only the "unix" transport is supported, with
// "path" or "abstract" keys naming the socket.
func Dial(ctx context.Context, address string) (*Conn, error) {
	candidates := strings.Split(address, ";")
	var errs []error
	for _, c := range candidates {
		name, err := parseUnixAddress(c)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		conn, err := open(ctx, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c, err))
			continue
		}
		return conn, nil
	}
	if len(errs) == 0 {
		return nil, errors.New("empty DBus server address")
	}
	return nil, fmt.Errorf("could not connect to any address in %q: %w", address, errors.Join(errs...))
}

// parseUnixAddress parses one "unix:..." address candidate into the
// socket name transport.DialUnix expects.
func parseUnixAddress(candidate string) (string, error) {
	kind, rest, ok := strings.Cut(candidate, ":")
	if !ok || kind != "unix" {
		return "", fmt.Errorf("unsupported transport in address %q", candidate)
	}
	for _, kv := range strings.Split(rest, ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch k {
		case "path":
			return v, nil
		case "abstract":
			return "@" + v, nil
		}
	}
	return "", fmt.Errorf("no path or abstract key in unix address %q", candidate)
}

func open(ctx context.Context, socketName string) (*Conn, error) {
	t, err := transport.DialUnix(ctx, socketName)
	if err != nil {
		return nil, err
	}
	guid, _, err := authenticate(t)
	if err != nil {
		t.Close()
		return nil, err
	}

	c := &Conn{
		t:     t,
		order: wire.NativeEndian,
		guid:  guid,
		calls: map[uint32]*pendingCall{},
		subs:  mapset.New[*SignalSubscription](),
	}
	c.tasks = taskgroup.New(nil)
	c.tasks.Go(func() error {
		c.readLoop()
		return nil
	})

	reply, err := c.call(ctx, busDestination, busPath, busInterface, "Hello", Signature{}, nil, false)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("sending Hello: %w", err)
	}
	if len(reply) != 1 || reply[0].Kind() != KindString {
		c.Close()
		return nil, ProtocolError{"Hello reply did not contain a single string"}
	}
	c.uniqueName = reply[0].Str()

	return c, nil
}

// Conn is a client connection to a DBus message bus.
//
// A Conn can only originate method calls, and receive their
// responses and the bus's signals: it cannot export objects or answer incoming
// method calls. A method_call message addressed to a Conn always
// gets an org.freedesktop.DBus.Error.NotSupported reply.
type Conn struct {
	t     transport.Transport
	order wire.ByteOrder
	guid  string

	uniqueName string

	writeMu sync.Mutex

	mu         sync.Mutex
	closed     bool
	calls      map[uint32]*pendingCall
	lastSerial uint32
	subs       mapset.Set[*SignalSubscription]

	tasks *taskgroup.Group
}

// pendingCall tracks an in-flight method call awaiting its reply.
type pendingCall struct {
	notify chan struct{}
	reply  []Value
	err    error
}

// UniqueName returns the unique bus name the message bus assigned
// this connection when it connected (its Hello reply).
func (c *Conn) UniqueName() string { return c.uniqueName }

// Close closes the connection, failing all pending calls and
// draining all signal subscriptions.
func (c *Conn) Close() error {
	var pending map[uint32]*pendingCall
	var subs mapset.Set[*SignalSubscription]
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pending, c.calls = c.calls, nil
	subs, c.subs = c.subs, nil
	c.mu.Unlock()

	for _, p := range maps.Values(pending) {
		p.err = ErrDisconnected
		close(p.notify)
	}
	for s := range subs {
		s.close()
	}

	err := c.t.Close()
	c.tasks.Wait()
	return err
}

// nextSerial allocates the next message serial, skipping zero (which
// is not a valid message serial).
func (c *Conn) nextSerial() (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, false
	}
	c.lastSerial++
	if c.lastSerial == 0 {
		c.lastSerial++
	}
	return c.lastSerial, true
}

func (c *Conn) writeMessage(m *Message) error {
	data, err := EncodeMessage(c.order, m)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if m.FDs.Len() > 0 {
		_, err = c.t.WriteWithFiles(data, m.FDs.files)
	} else {
		_, err = c.t.Write(data)
	}
	return err
}

// call sends a method call and blocks for its reply, honoring ctx
// cancellation. A zero response is returned for noReply calls, which
// do not wait for a server reply at all.
func (c *Conn) call(ctx context.Context, destination string, path ObjectPath, iface, method string, sig Signature, body []Value, noReply bool) ([]Value, error) {
	serial, ok := c.nextSerial()
	if !ok {
		return nil, ErrDisconnected
	}

	m := newCall(serial, destination, path, iface, method, sig, body, noReply)
	m.Flags |= callFlags(ctx)

	var pending *pendingCall
	if !noReply {
		pending = &pendingCall{notify: make(chan struct{})}
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, ErrDisconnected
		}
		c.calls[serial] = pending
		c.mu.Unlock()
	}

	if err := c.writeMessage(m); err != nil {
		if pending != nil {
			c.mu.Lock()
			delete(c.calls, serial)
			c.mu.Unlock()
		}
		return nil, err
	}
	if noReply {
		return nil, nil
	}

	select {
	case <-pending.notify:
		return pending.reply, pending.err
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.calls, serial)
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}
}

// callFlags derives outgoing call flags from ctx.
func callFlags(ctx context.Context) byte {
	var flags byte
	if v, ok := ctx.Value(interactiveAuthContextKey{}).(bool); ok && v {
		flags |= 0x4
	}
	return flags
}

// interactiveAuthContextKey is the context key set by
// [WithInteractiveAuthorization].
type interactiveAuthContextKey struct{}

// WithInteractiveAuthorization marks ctx so that calls made with it
// set the allow-interactive-authorization flag, letting the bus or
// destination service trigger a privilege escalation prompt instead
// of failing outright.
func WithInteractiveAuthorization(ctx context.Context) context.Context {
	return context.WithValue(ctx, interactiveAuthContextKey{}, true)
}

// readLoop reads and dispatches messages until the transport fails or
// is closed. It runs as the connection's single reader task; all
// writes are independently serialized by c.writeMu, so no other
// goroutine ever reads from c.t.
func (c *Conn) readLoop() {
	for {
		m, err := DecodeMessage(c.t)
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				log.Printf("dbus: connection read error: %v", err)
				go c.Close()
			}
			return
		}
		if m.header.NumFDs > 0 {
			files, err := c.t.GetFiles(int(m.header.NumFDs))
			if err != nil {
				log.Printf("dbus: reading attached files: %v", err)
			} else {
				m.FDs.files = files
			}
		}
		c.dispatch(m)
	}
}

func (c *Conn) dispatch(m *Message) {
	switch m.Type {
	case msgTypeReturn:
		c.resolveCall(m.header.ReplySerial, m.Body, nil)
	case msgTypeError:
		detail := ""
		if len(m.Body) > 0 && m.Body[0].Kind() == KindString {
			detail = m.Body[0].Str()
		}
		c.resolveCall(m.header.ReplySerial, nil, CallError{Name: m.header.ErrName, Detail: detail})
	case msgTypeSignal:
		c.dispatchSignal(m)
	case msgTypeCall:
		c.replyNotSupported(m)
	}
}

func (c *Conn) resolveCall(serial uint32, reply []Value, err error) {
	c.mu.Lock()
	pending := c.calls[serial]
	delete(c.calls, serial)
	c.mu.Unlock()
	if pending == nil {
		// Reply to a call we've already given up on (context
		// cancelled, or Close raced the reply). Silently discard.
		return
	}
	pending.reply = reply
	pending.err = err
	close(pending.notify)
}

func (c *Conn) dispatchSignal(m *Message) {
	c.mu.Lock()
	subs := make([]*SignalSubscription, 0, len(c.subs))
	for s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()
	for _, s := range subs {
		if s.match.matches(m) {
			s.deliver(m)
		}
	}
}

// replyNotSupported answers an incoming method call with
// org.freedesktop.DBus.Error.NotSupported: this package implements a
// DBus client only, and never exports objects of its own.
func (c *Conn) replyNotSupported(m *Message) {
	if !m.WantReply() {
		return
	}
	serial, ok := c.nextSerial()
	if !ok {
		return
	}
	reply := newError(serial, m, "org.freedesktop.DBus.Error.NotSupported", "this connection does not export any objects")
	if err := c.writeMessage(reply); err != nil {
		log.Printf("dbus: replying NotSupported to %s: %v", m.Member(), err)
	}
}

// subscribe registers s to receive signals matching its predicate
// until s is closed.
func (c *Conn) subscribe(s *SignalSubscription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrDisconnected
	}
	c.subs.Add(s)
	return nil
}

func (c *Conn) unsubscribe(s *SignalSubscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs != nil {
		c.subs.Remove(s)
	}
}

// fdFromMessage fulfills a single KindUnixFD Value against the message
// it arrived with.
func fdFromMessage(m *Message, v Value) (*os.File, bool) {
	return m.FDs.Get(v.UnixFD())
}

// machineID reads the local machine's DBus machine ID, as used by the
// org.freedesktop.DBus.Peer.GetMachineId convenience call.
var machineID = sync.OnceValues(func() (string, error) {
	bs, err := os.ReadFile("/etc/machine-id")
	if errors.Is(err, fs.ErrNotExist) {
		bs, err = os.ReadFile("/var/lib/dbus/machine-id")
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(bs)), nil
})
