// Package conn owns the single websocket connection to the throttle server:
// dialing, the read pump, sends, and the fixed-delay reconnect loop.
package conn

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by Send when no connection is open. Commands
// are never buffered; the caller decides whether that is fatal.
var ErrNotConnected = errors.New("conn: not connected")

// DefaultRetryDelay is the wait between a close and the next dial attempt.
const DefaultRetryDelay = time.Second

// EventKind discriminates connection lifecycle events.
type EventKind int

const (
	// Open fires when a dial succeeds.
	Open EventKind = iota
	// Frame carries one inbound text frame.
	Frame
	// Closed fires when an open connection goes away, orderly or not.
	Closed
)

// Event is one lifecycle or traffic event, delivered in order on Events().
type Event struct {
	Kind EventKind
	Data []byte
	Err  error
}

// Options tune a Manager. The zero value is usable.
type Options struct {
	RetryDelay time.Duration     // reconnect wait, DefaultRetryDelay if zero
	Dialer     *websocket.Dialer // websocket.DefaultDialer if nil
	Logger     *slog.Logger      // slog.Default() if nil
}

// Manager maintains at most one live connection and retries forever after
// every close. All lifecycle mutation happens under one mutex; frames are
// delivered strictly in read order.
type Manager struct {
	url    string
	delay  time.Duration
	dialer *websocket.Dialer
	log    *slog.Logger

	events chan Event
	done   chan struct{}

	mu      sync.Mutex
	ws      *websocket.Conn
	pending bool // a dial is running or a retry timer is armed
	closed  bool
	retry   *time.Timer

	writeMu sync.Mutex
}

// New builds a Manager for the given ws:// or wss:// URL. No connection is
// made until Connect.
func New(rawURL string, opts Options) *Manager {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		url:    rawURL,
		delay:  opts.RetryDelay,
		dialer: opts.Dialer,
		log:    opts.Logger,
		events: make(chan Event, 32),
		done:   make(chan struct{}),
	}
}

// Derive maps a page URL to its websocket address: http becomes ws, https
// becomes wss, ws and wss pass through.
func Derive(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("conn: parse url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("conn: unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// Events delivers lifecycle events and inbound frames. The channel must be
// drained until Close is called.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Connect opens a connection unless one is already open, dialing, or waiting
// on the retry timer.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.closed || m.ws != nil || m.pending {
		m.mu.Unlock()
		return
	}
	m.pending = true
	m.mu.Unlock()

	go m.dial()
}

func (m *Manager) dial() {
	ws, _, err := m.dialer.Dial(m.url, nil)

	m.mu.Lock()
	m.pending = false
	if m.closed {
		m.mu.Unlock()
		if ws != nil {
			ws.Close()
		}
		return
	}
	if err != nil {
		m.log.Warn("dial failed", "url", m.url, "err", err)
		m.scheduleRetryLocked()
		m.mu.Unlock()
		return
	}
	m.ws = ws
	m.mu.Unlock()

	m.emit(Event{Kind: Open})
	go m.readPump(ws)
}

// readPump delivers frames until the first read error, then tears the
// connection down and arms exactly one retry.
func (m *Manager) readPump(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			ws.Close()
			m.mu.Lock()
			stale := m.ws != ws
			if !stale {
				m.ws = nil
				m.scheduleRetryLocked()
			}
			m.mu.Unlock()
			if !stale {
				m.emit(Event{Kind: Closed, Err: err})
			}
			return
		}
		m.emit(Event{Kind: Frame, Data: data})
	}
}

func (m *Manager) scheduleRetryLocked() {
	if m.closed || m.pending || m.ws != nil {
		return
	}
	m.pending = true
	m.retry = time.AfterFunc(m.delay, func() {
		m.mu.Lock()
		m.pending = false
		closed := m.closed
		m.mu.Unlock()
		if !closed {
			m.Connect()
		}
	})
}

// Send writes one text frame. It fails with ErrNotConnected when no
// connection is open, and forces the connection closed on a write error so
// nothing is left half-open.
func (m *Manager) Send(data []byte) error {
	m.mu.Lock()
	ws := m.ws
	m.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	err := ws.WriteMessage(websocket.TextMessage, data)
	m.writeMu.Unlock()
	if err != nil {
		ws.Close() // the read pump notices and handles the close
		return fmt.Errorf("conn: send: %w", err)
	}
	return nil
}

// Close shuts the manager down for good: no further events, no retries.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.retry != nil {
		m.retry.Stop()
	}
	ws := m.ws
	m.ws = nil
	m.mu.Unlock()

	close(m.done)
	if ws != nil {
		m.writeMu.Lock()
		ws.WriteMessage(websocket.CloseMessage, []byte{})
		m.writeMu.Unlock()
		return ws.Close()
	}
	return nil
}

func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}
