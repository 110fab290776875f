package dbus

import (
	"context"
	"fmt"
	"sync"
)

// ClaimOptions are the options for a [Conn.Claim] request for a bus
// name.
type ClaimOptions struct {
	// AllowReplacement is whether to allow another request that sets
	// TryReplace to take over ownership.
	//
	// A claim that gets replaced as the current owner gets moved to
	// the head of the backup queue, or gets dropped from the line of
	// succession entirely if NoQueue is set.
	AllowReplacement bool
	// TryReplace is whether to attempt to replace the current owner,
	// if the name already has an owner.
	//
	// Replacement is only permitted if the current owner made its
	// claim with the AllowReplacement option set. Otherwise, the
	// request for ownership joins the backup queue or returns an
	// error, depending on the NoQueue setting.
	TryReplace bool
	// NoQueue, if set, causes this claim to never join the backup
	// queue for any reason.
	NoQueue bool
}

func (o ClaimOptions) toRequest(name string) NameRequest {
	return NameRequest{
		Name:             name,
		ReplaceCurrent:   o.TryReplace,
		NoQueue:          o.NoQueue,
		AllowReplacement: o.AllowReplacement,
	}
}

// Claim is a claim to ownership of a bus name.
//
// Multiple DBus clients may claim ownership of the same name. The bus
// tracks a single current owner, as well as a queue of other
// claimants that are eligible to succeed the current owner.
type Claim struct {
	conn *Conn
	name string
	w    *Watcher

	owner       chan bool
	pumpStopped chan struct{}

	closeOnce sync.Once
}

// Claim requests ownership of a bus name.
//
// Claiming a name does not guarantee ownership of it. Callers must
// monitor [Claim.Chan] to find out if and when the name is assigned to
// this connection.
func (c *Conn) Claim(ctx context.Context, name string, opts ClaimOptions) (*Claim, error) {
	w := c.Watch()

	if _, err := w.Match(ctx, NewMatch().Interface(busInterface).Member("NameAcquired").ArgStr(0, name)); err != nil {
		w.Close()
		return nil, err
	}
	if _, err := w.Match(ctx, NewMatch().Interface(busInterface).Member("NameLost").ArgStr(0, name)); err != nil {
		w.Close()
		return nil, err
	}

	cl := &Claim{
		conn:        c,
		name:        name,
		w:           w,
		owner:       make(chan bool, 1),
		pumpStopped: make(chan struct{}),
	}
	cl.owner <- false

	if _, err := c.RequestName(ctx, opts.toRequest(name)); err != nil {
		w.Close()
		return nil, err
	}

	go cl.pump()
	return cl, nil
}

// Name returns the claimed bus name.
func (c *Claim) Name() string { return c.name }

// Chan reports, each time ownership changes, whether this connection
// currently owns the name.
func (c *Claim) Chan() <-chan bool { return c.owner }

// Request updates the claim's options. If the claim is the current
// owner, this changes AllowReplacement/NoQueue without relinquishing
// ownership; otherwise it is treated as a fresh request.
func (c *Claim) Request(ctx context.Context, opts ClaimOptions) error {
	_, err := c.conn.RequestName(ctx, opts.toRequest(c.name))
	return err
}

// Close abandons the claim, releasing ownership if held.
func (c *Claim) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.w.Close()
		<-c.pumpStopped
		err2 := c.conn.ReleaseName(context.Background(), c.name)
		if err == nil {
			err = err2
		}
	})
	return err
}

func (c *Claim) send(isOwner bool) {
	select {
	case c.owner <- isOwner:
	case <-c.owner:
		c.owner <- isOwner
	}
}

func (c *Claim) pump() {
	defer close(c.pumpStopped)
	last := false
	for rec := range c.w.Chan() {
		var isOwner bool
		switch rec.Member {
		case "NameAcquired":
			isOwner = true
		case "NameLost":
			isOwner = false
		default:
			panic(fmt.Sprintf("dbus: claim watcher received unexpected signal %q", rec.Member))
		}
		if isOwner != last {
			last = isOwner
			c.send(last)
		}
	}
}
