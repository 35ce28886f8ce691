// Package session is the synchronization engine behind the web throttle: it
// multiplexes any number of throttle state machines over one connection,
// folds server events into per-throttle state, restores prior train
// assignments after a reconnect or world reload, and carries the global
// emergency-stop fail-safe.
//
// The engine is single-threaded by contract: every method of Session and
// Throttle must be called from one goroutine. Client provides that goroutine
// and wires a conn.Manager in.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"webthrottle/store"
	"webthrottle/wire"
)

// DefaultNotificationTTL is how long a notification stays visible unless
// dismissed or replaced.
const DefaultNotificationTTL = 5 * time.Second

// Policy decides what happens to inbound frames that do not decode: unknown
// discriminators and malformed payloads.
type Policy int

const (
	// DropPolicy logs the frame and drops it.
	DropPolicy Policy = iota
	// IgnorePolicy drops the frame silently.
	IgnorePolicy
	// FailPolicy surfaces the decode error from HandleFrame, ending the
	// session loop.
	FailPolicy
)

// Transport is the outbound side of the connection, satisfied by
// *conn.Manager. Send must fail rather than silently succeed when no
// connection is open.
type Transport interface {
	Connect()
	Send(data []byte) error
}

// Config assembles a Session. Store and Transport are required.
type Config struct {
	Store     store.Store
	Transport Transport

	// DefaultName is the cab name used when the store has none; a generated
	// name is used when both are empty.
	DefaultName string

	NotificationTTL time.Duration // DefaultNotificationTTL if zero
	Policy          Policy
	Logger          *slog.Logger // slog.Default() if nil

	// Schedule arms a one-shot timer and returns its cancel. The default
	// uses time.AfterFunc, which runs the callback on its own goroutine;
	// Client replaces it with one that posts back into the session loop.
	Schedule func(d time.Duration, fn func()) (cancel func())
}

// Session owns the throttle pool and the world lifecycle.
type Session struct {
	store     store.Store
	transport Transport
	log       *slog.Logger
	policy    Policy
	ttl       time.Duration
	schedule  func(time.Duration, func()) func()
	cabName   string

	alloc       idAllocator
	throttles   map[int]*Throttle
	worldName   string
	worldLoaded bool
	catalog     []wire.TrainInfo
	connected   bool
}

// New builds a Session. No connection is made and no throttle exists yet;
// the first throttle appears on the first world event (or via AddThrottle).
func New(cfg Config) (*Session, error) {
	if cfg.Store == nil {
		return nil, errors.New("session: store is required")
	}
	if cfg.Transport == nil {
		return nil, errors.New("session: transport is required")
	}
	if cfg.NotificationTTL <= 0 {
		cfg.NotificationTTL = DefaultNotificationTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Schedule == nil {
		cfg.Schedule = func(d time.Duration, fn func()) func() {
			t := time.AfterFunc(d, fn)
			return func() { t.Stop() }
		}
	}
	if cfg.DefaultName == "" {
		cfg.DefaultName = "Cab-" + uuid.NewString()
	}
	return &Session{
		store:     cfg.Store,
		transport: cfg.Transport,
		log:       cfg.Logger,
		policy:    cfg.Policy,
		ttl:       cfg.NotificationTTL,
		schedule:  cfg.Schedule,
		cabName:   cfg.DefaultName,
		throttles: make(map[int]*Throttle),
	}, nil
}

// Connected reports whether the transport currently has an open connection.
func (s *Session) Connected() bool { return s.connected }

// WorldLoaded reports whether a world is loaded server-side.
func (s *Session) WorldLoaded() bool { return s.worldLoaded }

// WorldName returns the loaded world's name, empty when none is loaded.
func (s *Session) WorldName() string { return s.worldName }

// Catalog returns the current train catalog snapshot.
func (s *Session) Catalog() []wire.TrainInfo { return s.catalog }

// Throttle returns the throttle with the given id, or nil.
func (s *Session) Throttle(id int) *Throttle { return s.throttles[id] }

// Throttles returns all throttles in id order.
func (s *Session) Throttles() []*Throttle {
	out := make([]*Throttle, 0, len(s.throttles))
	for _, id := range s.throttleIDs() {
		out = append(out, s.throttles[id])
	}
	return out
}

// AddThrottle creates a throttle on the smallest unused id. Ids are never
// reused, not even when the throttle later loses its train. Creating a
// throttle also makes sure a connection attempt is underway.
func (s *Session) AddThrottle() *Throttle {
	id := s.alloc.next()
	t := newThrottle(s, id)
	t.active = s.worldLoaded
	s.throttles[id] = t
	s.transport.Connect()
	return t
}

// HandleOpen is called when the connection opens. Server order is not
// assumed; the world event will follow on the server's initiative.
func (s *Session) HandleOpen() {
	s.connected = true
	s.log.Info("connected")
}

// HandleClosed is called when the connection goes away. The connection
// manager owns the retry; here everything is just marked disconnected.
func (s *Session) HandleClosed(err error) {
	s.connected = false
	s.log.Info("disconnected", "err", err)
}

// HandleFrame decodes and dispatches one inbound frame. Frames that do not
// decode are handled per the configured Policy.
func (s *Session) HandleFrame(data []byte) error {
	ev, err := wire.DecodeEvent(data)
	if err != nil {
		switch s.policy {
		case IgnorePolicy:
			return nil
		case FailPolicy:
			return err
		default:
			s.log.Warn("dropping frame", "err", err)
			return nil
		}
	}
	s.log.Debug("RX", "frame", string(data))
	s.dispatch(ev)
	return nil
}

// dispatch routes a decoded event to the orchestrator or the addressed
// throttle.
func (s *Session) dispatch(ev wire.Event) {
	switch ev := ev.(type) {
	case *wire.WorldEvent:
		s.handleWorld(ev)
	case *wire.TrainListEvent:
		// Snapshot semantics: the new list replaces the old one entirely.
		s.catalog = ev.List
	case *wire.MessageEvent:
		// The server addresses messages by throttle id; id zero means the
		// message is not for any throttle.
		if ev.ThrottleID == 0 {
			return
		}
		if t := s.throttles[ev.ThrottleID]; t != nil {
			t.showMessage(ev)
		} else {
			s.log.Warn("message for unknown throttle", "throttle", ev.ThrottleID)
		}
	case *wire.TrainEvent:
		if t := s.throttles[ev.ThrottleID]; t != nil {
			t.applyTrain(ev.Train)
		}
	case *wire.DirectionEvent:
		if t := s.throttles[ev.ThrottleID]; t != nil {
			t.applyDirection(ev.Value)
		}
	case *wire.IsStoppedEvent:
		if t := s.throttles[ev.ThrottleID]; t != nil {
			t.applyStopped(ev.Value)
		}
	case *wire.SpeedEvent:
		if t := s.throttles[ev.ThrottleID]; t != nil {
			t.applySpeed(wire.Speed{Value: ev.Value, Unit: ev.Unit})
		}
	case *wire.ThrottleSpeedEvent:
		if t := s.throttles[ev.ThrottleID]; t != nil {
			t.applyTargetSpeed(wire.Speed{Value: ev.Value, Unit: ev.Unit})
		}
	case *wire.FunctionValueEvent:
		if t := s.throttles[ev.ThrottleID]; t != nil {
			t.applyFunctionValue(ev.VehicleID, ev.Number, ev.Value)
		}
	}
}

// handleWorld drives the world lifecycle. Loading a world names every
// throttle on the server and re-acquires persisted assignments; unloading
// hides the throttles but leaves persisted assignments alone.
func (s *Session) handleWorld(ev *wire.WorldEvent) {
	if ev.Name == nil {
		s.worldLoaded = false
		s.worldName = ""
		s.catalog = nil
		for _, t := range s.throttles {
			t.deactivate()
		}
		s.log.Info("world unloaded")
		return
	}

	s.worldLoaded = true
	s.worldName = *ev.Name
	s.catalog = nil
	s.log.Info("world loaded", "name", s.worldName)

	if len(s.throttles) == 0 {
		s.AddThrottle()
	} else {
		for _, t := range s.throttles {
			t.active = true
		}
	}

	s.send(&wire.GetTrainList{})

	name := s.displayName()
	for _, id := range s.throttleIDs() {
		s.send(&wire.SetName{ThrottleID: id, Value: fmt.Sprintf("%s #%d", name, id)})
		if trainID, ok := s.store.Assignment(id); ok {
			s.send(&wire.Acquire{ThrottleID: id, TrainID: trainID, Steal: false})
		}
	}
}

// SetHidden feeds the page-visibility fail-safe: the moment the page goes
// hidden, every train on the layout is emergency-stopped, no matter what
// any individual throttle is doing.
func (s *Session) SetHidden(hidden bool) {
	if !hidden {
		return
	}
	s.send(&wire.EStopAll{})
}

func (s *Session) displayName() string {
	if name, ok := s.store.DisplayName(); ok && name != "" {
		return name
	}
	return s.cabName
}

func (s *Session) throttleIDs() []int {
	ids := make([]int, 0, len(s.throttles))
	for id := range s.throttles {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// send encodes and transmits one command. Commands are fire and forget;
// a transport error is returned to user-action callers and logged for
// orchestrator-driven sends.
func (s *Session) send(c wire.Command) error {
	data, err := wire.EncodeCommand(c)
	if err != nil {
		s.log.Error("encode command", "action", c.Action(), "err", err)
		return err
	}
	s.log.Debug("TX", "frame", string(data))
	if err := s.transport.Send(data); err != nil {
		s.log.Warn("send failed", "action", c.Action(), "err", err)
		return err
	}
	return nil
}

// idAllocator hands out throttle ids: the smallest value never used before.
// Ids are never released.
type idAllocator struct {
	used map[int]bool
}

func (a *idAllocator) next() int {
	if a.used == nil {
		a.used = make(map[int]bool)
	}
	id := 1
	for a.used[id] {
		id++
	}
	a.used[id] = true
	return id
}
