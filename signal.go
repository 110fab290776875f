package dbus

import (
	"context"
	"sync"

	"github.com/creachadair/mds/queue"
)

// Well-known bus address, used for AddMatch/RemoveMatch and the Hello
// handshake.
const (
	busDestination = "org.freedesktop.DBus"
	busPath        = ObjectPath("/org/freedesktop/DBus")
	busInterface   = "org.freedesktop.DBus"
)

// maxSignalQueueLen bounds how many undelivered signals a
// SignalSubscription buffers before it starts dropping the oldest one
// to make room for new arrivals.
const maxSignalQueueLen = 20

// SignalRecord is one signal delivered to a [SignalSubscription].
type SignalRecord struct {
	Sender    string
	Path      ObjectPath
	Interface string
	Member    string
	Body      []Value

	// Overflow reports that the subscription's bounded queue dropped
	// one or more older signals to make room for this one.
	Overflow bool
}

// SignalSubscription delivers signals from the bus that satisfy a
// [Match] predicate.
//
// A subscription is a lazy, finite-on-close sequence: signals queue up
// behind a bounded buffer, and a slow consumer causes the oldest
// queued signal to be dropped rather than blocking the connection's
// receive loop.
type SignalSubscription struct {
	conn  *Conn
	match Match

	wake        chan struct{} // buffered 1; closed to stop the pump
	out         chan *SignalRecord
	pumpStopped chan struct{}

	mu         sync.Mutex
	closed     bool
	queue      queue.Queue[*SignalRecord]
	overflowed bool
}

// SubscribeSignal registers a match rule with the bus and returns a
// subscription that yields every signal satisfying m.
//
// The returned subscription's lifetime is tied to the caller: it must
// be closed with [SignalSubscription.Close] to release the match rule
// and stop receiving signals. Closing the [Conn] also closes every
// live subscription.
func (c *Conn) SubscribeSignal(ctx context.Context, m *Match) (*SignalSubscription, error) {
	if err := m.valid(); err != nil {
		return nil, err
	}
	mc := m.clone()

	s := &SignalSubscription{
		conn:        c,
		match:       *mc,
		wake:        make(chan struct{}, 1),
		out:         make(chan *SignalRecord),
		pumpStopped: make(chan struct{}),
	}

	rule := mc.filterString()
	if err := c.addMatch(ctx, rule); err != nil {
		return nil, err
	}
	if err := c.subscribe(s); err != nil {
		c.removeMatch(ctx, rule)
		return nil, err
	}

	go s.pump()
	return s, nil
}

// Chan returns the channel on which matching signals are delivered.
//
// The channel closes when the subscription is closed. The caller
// should drain it promptly: a consumer that falls behind causes older
// queued signals to be dropped, per the bounded oldest-drop policy.
func (s *SignalSubscription) Chan() <-chan *SignalRecord {
	return s.out
}

func (s *SignalSubscription) stopOnce() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.queue.Clear()
	return true
}

// close is invoked by Conn.Close when the connection is torn down. It
// does not attempt to remove the now-moot match rule.
func (s *SignalSubscription) close() {
	if !s.stopOnce() {
		return
	}
	close(s.wake)
	<-s.pumpStopped
}

// Close stops the subscription and removes its match rule from the
// bus. Any signal queued but not yet delivered is discarded.
func (s *SignalSubscription) Close() error {
	if !s.stopOnce() {
		return nil
	}
	close(s.wake)
	<-s.pumpStopped
	s.conn.unsubscribe(s)
	return s.conn.removeMatch(context.Background(), s.match.filterString())
}

// deliver enqueues m for this subscription. The caller must already
// have confirmed that m satisfies s.match.
func (s *SignalSubscription) deliver(m *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	rec := &SignalRecord{
		Sender:    m.Sender(),
		Path:      m.Path(),
		Interface: m.Interface(),
		Member:    m.Member(),
		Body:      m.Body,
	}
	if s.queue.Len() >= maxSignalQueueLen {
		s.queue.Pop()
		s.overflowed = true
	}
	if s.overflowed {
		rec.Overflow = true
		s.overflowed = false
	}

	s.queue.Add(rec)
	if s.queue.Len() == 1 {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

func (s *SignalSubscription) popRecord() *SignalRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, _ := s.queue.Pop()
	return rec
}

func (s *SignalSubscription) pump() {
	defer close(s.pumpStopped)
	defer close(s.out)
	for {
		rec := s.popRecord()
		if rec == nil {
			_, ok := <-s.wake
			if !ok {
				return
			}
			continue
		}
	deliver:
		for {
			select {
			case s.out <- rec:
				break deliver
			case _, ok := <-s.wake:
				if !ok {
					return
				}
				continue
			}
		}
	}
}

// addMatch registers a match rule with the bus daemon.
func (c *Conn) addMatch(ctx context.Context, rule string) error {
	_, err := c.call(ctx, busDestination, busPath, busInterface, "AddMatch", MustParseSignature("s"), []Value{Str(rule)}, false)
	return err
}

// removeMatch unregisters a match rule previously installed with
// addMatch.
func (c *Conn) removeMatch(ctx context.Context, rule string) error {
	_, err := c.call(ctx, busDestination, busPath, busInterface, "RemoveMatch", MustParseSignature("s"), []Value{Str(rule)}, false)
	return err
}
