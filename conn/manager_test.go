package conn

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func waitEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for connection event")
		return Event{}
	}
}

func waitKind(t *testing.T, events <-chan Event, kind EventKind) Event {
	t.Helper()
	for {
		ev := waitEvent(t, events)
		if ev.Kind == kind {
			return ev
		}
	}
}

func TestDerive(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"http://host:8080/throttle", "ws://host:8080/throttle"},
		{"https://host/throttle", "wss://host/throttle"},
		{"ws://host/throttle", "ws://host/throttle"},
		{"wss://host/throttle", "wss://host/throttle"},
	}
	for _, tc := range cases {
		got, err := Derive(tc.in)
		if err != nil {
			t.Fatalf("Derive(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("Derive(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if _, err := Derive("ftp://host"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}

func TestSendBeforeConnect(t *testing.T) {
	m := New("ws://127.0.0.1:1/none", Options{})
	defer m.Close()
	if err := m.Send([]byte("{}")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestConnectAndEcho(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			mt, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	url, err := Derive(srv.URL)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	m := New(url, Options{})
	defer m.Close()

	m.Connect()
	waitKind(t, m.Events(), Open)

	if err := m.Send([]byte(`{"action":"get_train_list"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	frame := waitKind(t, m.Events(), Frame)
	if string(frame.Data) != `{"action":"get_train_list"}` {
		t.Fatalf("unexpected echo payload: %s", frame.Data)
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	var upgrades atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		upgrades.Add(1)
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				ws.Close()
				return
			}
		}
	}))
	defer srv.Close()

	url, _ := Derive(srv.URL)
	m := New(url, Options{})
	defer m.Close()

	m.Connect()
	waitKind(t, m.Events(), Open)
	m.Connect()
	m.Connect()

	time.Sleep(100 * time.Millisecond)
	if n := upgrades.Load(); n != 1 {
		t.Fatalf("expected a single connection, server saw %d", n)
	}
}

func TestReconnectAfterServerClose(t *testing.T) {
	var upgrades atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := upgrades.Add(1)
		if n == 1 {
			// Drop the first connection straight away to force a retry.
			ws.Close()
			return
		}
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				ws.Close()
				return
			}
		}
	}))
	defer srv.Close()

	url, _ := Derive(srv.URL)
	m := New(url, Options{RetryDelay: 20 * time.Millisecond})
	defer m.Close()

	m.Connect()
	waitKind(t, m.Events(), Open)
	waitKind(t, m.Events(), Closed)
	waitKind(t, m.Events(), Open)

	// One close, one reconnection.
	time.Sleep(100 * time.Millisecond)
	if n := upgrades.Load(); n != 2 {
		t.Fatalf("expected exactly one reconnection, server saw %d connections", n)
	}
	if err := m.Send([]byte("{}")); err != nil {
		t.Fatalf("Send after reconnect: %v", err)
	}
}
