package dbus

import (
	"context"
	"sync"
)

// Watcher multiplexes several [SignalSubscription]s onto a single
// bounded output channel, the idiom this package uses whenever a
// caller needs to react to more than one kind of signal as a single
// stream (spec.md 4.4, C.4): for instance [Conn.Claim] watches both
// NameAcquired and NameLost for its target name.
//
// A Watcher starts out matching nothing: use [Watcher.Match] to add
// match rules.
type Watcher struct {
	conn *Conn

	mu   sync.Mutex
	subs map[*SignalSubscription]bool

	out     chan *SignalRecord
	stop    chan struct{}
	stopped sync.WaitGroup
}

// Watch creates an empty Watcher bound to c.
func (c *Conn) Watch() *Watcher {
	return &Watcher{
		conn: c,
		subs: map[*SignalSubscription]bool{},
		out:  make(chan *SignalRecord),
		stop: make(chan struct{}),
	}
}

// Match adds a match rule to the watcher: every signal satisfying m is
// delivered on [Watcher.Chan]. The returned remove function detaches
// just this match, without affecting others or closing the Watcher.
func (w *Watcher) Match(ctx context.Context, m *Match) (remove func() error, err error) {
	sub, err := w.conn.SubscribeSignal(ctx, m)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	if w.subs == nil {
		w.mu.Unlock()
		sub.Close()
		return nil, ErrDisconnected
	}
	w.subs[sub] = true
	w.mu.Unlock()

	w.stopped.Add(1)
	go w.pump(sub)

	return sub.Close, nil
}

func (w *Watcher) pump(sub *SignalSubscription) {
	defer w.stopped.Done()
	for {
		select {
		case rec, ok := <-sub.Chan():
			if !ok {
				return
			}
			select {
			case w.out <- rec:
			case <-w.stop:
				return
			}
		case <-w.stop:
			return
		}
	}
}

// Chan returns the channel on which matching signals from every
// registered match are delivered. It is closed by [Watcher.Close].
func (w *Watcher) Chan() <-chan *SignalRecord { return w.out }

// Close detaches every match and stops the watcher. It does not close
// the underlying [Conn].
func (w *Watcher) Close() error {
	w.mu.Lock()
	subs := w.subs
	w.subs = nil
	w.mu.Unlock()
	if subs == nil {
		return nil
	}

	close(w.stop)
	var err error
	for sub := range subs {
		if e := sub.Close(); e != nil && err == nil {
			err = e
		}
	}
	w.stopped.Wait()
	close(w.out)
	return err
}
