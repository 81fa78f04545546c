// Package transporttest provides an in-memory transport for tests.
package transporttest

import (
	"context"
	"sync"

	"eventlink-go/infrastructure/transport"
)

// Conn is an in-memory transport.Conn that records sent frames.
type Conn struct {
	ConnectionID string

	mu        sync.Mutex
	sent      []string
	closed    bool
	ended     bool
	onMessage func(string)
	onEnded   func()
}

func (c *Conn) Send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrConnClosed
	}
	c.sent = append(c.sent, text)
	return nil
}

func (c *Conn) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// Sent returns a copy of the frames sent so far.
func (c *Conn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Deliver feeds an inbound message as the peer would.
func (c *Conn) Deliver(raw string) {
	c.onMessage(raw)
}

// Drop ends the inbound direction as a peer disconnect would. Only the first call has an effect.
func (c *Conn) Drop() {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	c.mu.Unlock()
	c.onEnded()
}

// Dialer is an in-memory transport.Dialer. Set Err to make dials fail.
type Dialer struct {
	mu    sync.Mutex
	err   error
	conns []*Conn
}

// NewDialer creates a dialer whose dials succeed.
func NewDialer() *Dialer {
	return &Dialer{}
}

// SetErr makes subsequent dials fail with err, or succeed again when err is nil.
func (d *Dialer) SetErr(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func (d *Dialer) Dial(ctx context.Context, connectionID string, onMessage func(string), onEnded func()) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := &Conn{ConnectionID: connectionID, onMessage: onMessage, onEnded: onEnded}
	d.conns = append(d.conns, c)
	return c, nil
}

// Conns returns every connection dialed so far, oldest first.
func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Conn(nil), d.conns...)
}

// Last returns the most recently dialed connection, or nil.
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// Open returns the connections not yet closed.
func (d *Dialer) Open() []*Conn {
	var open []*Conn
	for _, c := range d.Conns() {
		if !c.Closed() {
			open = append(open, c)
		}
	}
	return open
}

var (
	_ transport.Conn   = (*Conn)(nil)
	_ transport.Dialer = (*Dialer)(nil)
)
