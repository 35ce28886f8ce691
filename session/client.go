package session

import (
	"context"
	"time"

	"webthrottle/conn"
)

// Client runs a Session on its own goroutine and serializes everything that
// can touch it: transport events, notification expiry timers, and operator
// actions posted through Do.
type Client struct {
	sess    *Session
	mgr     *conn.Manager
	ops     chan func(*Session)
	stopped chan struct{}
}

// NewClient wires a connection manager into a new Session. The Transport
// and Schedule fields of cfg are overwritten.
func NewClient(mgr *conn.Manager, cfg Config) (*Client, error) {
	c := &Client{
		mgr:     mgr,
		ops:     make(chan func(*Session), 16),
		stopped: make(chan struct{}),
	}
	cfg.Transport = mgr
	cfg.Schedule = c.schedule
	sess, err := New(cfg)
	if err != nil {
		return nil, err
	}
	c.sess = sess
	return c, nil
}

// Run connects and processes events until ctx is done, the connection
// manager is closed, or (under FailPolicy) a frame fails to decode. Each
// handler runs to completion before the next event is taken.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.stopped)
	c.mgr.Connect()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.mgr.Events():
			switch ev.Kind {
			case conn.Open:
				c.sess.HandleOpen()
			case conn.Closed:
				c.sess.HandleClosed(ev.Err)
			case conn.Frame:
				if err := c.sess.HandleFrame(ev.Data); err != nil {
					return err
				}
			}
		case op := <-c.ops:
			op(c.sess)
		}
	}
}

// Do posts an operator action into the session loop. It is safe to call
// from any goroutine; after Run returns the action is discarded.
func (c *Client) Do(op func(*Session)) {
	select {
	case c.ops <- op:
	case <-c.stopped:
	}
}

// Done is closed when Run has returned. Callers waiting on a reply from a
// posted action should also wait on Done: an op accepted into the queue may
// never execute once the loop stops.
func (c *Client) Done() <-chan struct{} {
	return c.stopped
}

// schedule arms a timer whose callback is delivered through the loop, so
// expiry handlers obey the single-goroutine contract.
func (c *Client) schedule(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, func() {
		c.Do(func(*Session) { fn() })
	})
	return func() { t.Stop() }
}
