package session

import (
	"errors"

	"webthrottle/wire"
)

// ErrNoTrain is returned by command methods while no train is acquired.
var ErrNoTrain = errors.New("session: no train acquired")

// ErrDirectionLocked is returned when a direction change is refused because
// the train is moving the other way.
var ErrDirectionLocked = errors.New("session: direction change requires a stopped train")

// ErrNoSteal is returned by Steal when no steal remediation is pending.
var ErrNoSteal = errors.New("session: no steal remediation pending")

// ErrNoWorld is returned by Select while no world is loaded; without a world
// there is nothing to acquire or release.
var ErrNoWorld = errors.New("session: no world loaded")

// Notification is the transient message shown on one throttle. At most one
// is visible per throttle; a newer one cancels and replaces the old one, and
// each self-clears after the session's notification TTL.
type Notification struct {
	Type string
	Tag  string
	Text string

	stealTrainID string
	cancel       func()
}

// CanSteal reports whether this notification carries the steal remediation.
func (n *Notification) CanSteal() bool {
	return n.stealTrainID != ""
}

// Throttle is one operator-facing control surface, bound to at most one
// train at a time. All methods must be called from the session goroutine.
type Throttle struct {
	s  *Session
	id int

	active        bool
	trainID       string
	direction     wire.Direction
	stopped       bool
	actualSpeed   wire.Speed
	targetSpeed   wire.Speed
	functions     []wire.FunctionGroup
	pendingSelect string
	note          *Notification
}

func newThrottle(s *Session, id int) *Throttle {
	return &Throttle{s: s, id: id, direction: wire.DirectionUnknown}
}

func (t *Throttle) ID() int { return t.id }

// Active reports whether the throttle should be presented at all; false
// while no world is loaded.
func (t *Throttle) Active() bool { return t.active }

// Assigned reports whether a train is currently bound.
func (t *Throttle) Assigned() bool { return t.trainID != "" }

func (t *Throttle) TrainID() string                 { return t.trainID }
func (t *Throttle) Direction() wire.Direction       { return t.direction }
func (t *Throttle) Stopped() bool                   { return t.stopped }
func (t *Throttle) ActualSpeed() wire.Speed         { return t.actualSpeed }
func (t *Throttle) TargetSpeed() wire.Speed         { return t.targetSpeed }
func (t *Throttle) Functions() []wire.FunctionGroup { return t.functions }

// Notification returns the currently visible notification, if any.
func (t *Throttle) Notification() *Notification { return t.note }

// SelectionDisplay is what the train selector should show: the optimistic
// pending selection while an acquire is in flight, otherwise the recorded
// assignment.
func (t *Throttle) SelectionDisplay() string {
	if t.pendingSelect != "" {
		return t.pendingSelect
	}
	return t.trainID
}

// Select acquires the given train, or releases the current one when trainID
// is empty. Release passes the stop-on-release preference along.
func (t *Throttle) Select(trainID string) error {
	if !t.active {
		return ErrNoWorld
	}
	if trainID == "" {
		return t.s.send(&wire.Release{ThrottleID: t.id, Stop: t.s.store.StopOnRelease()})
	}
	t.pendingSelect = trainID
	return t.s.send(&wire.Acquire{ThrottleID: t.id, TrainID: trainID, Steal: false})
}

func (t *Throttle) Faster() error {
	if !t.Assigned() {
		return ErrNoTrain
	}
	return t.s.send(&wire.Faster{ThrottleID: t.id, Immediate: t.s.store.ImmediateSpeedControl()})
}

func (t *Throttle) Slower() error {
	if !t.Assigned() {
		return ErrNoTrain
	}
	return t.s.send(&wire.Slower{ThrottleID: t.id, Immediate: t.s.store.ImmediateSpeedControl()})
}

func (t *Throttle) Stop() error {
	if !t.Assigned() {
		return ErrNoTrain
	}
	return t.s.send(&wire.Stop{ThrottleID: t.id, Immediate: t.s.store.ImmediateSpeedControl()})
}

// EStop is the per-throttle emergency stop.
func (t *Throttle) EStop() error {
	if !t.Assigned() {
		return ErrNoTrain
	}
	return t.s.send(&wire.EStop{ThrottleID: t.id})
}

// CanSetDirection reports whether a direction change to d is allowed: the
// train must be stopped or already heading that way.
func (t *Throttle) CanSetDirection(d wire.Direction) bool {
	return t.stopped || t.direction == d
}

func (t *Throttle) Forward() error {
	if !t.Assigned() {
		return ErrNoTrain
	}
	if !t.CanSetDirection(wire.DirectionForward) {
		return ErrDirectionLocked
	}
	return t.s.send(&wire.Forward{ThrottleID: t.id})
}

func (t *Throttle) Reverse() error {
	if !t.Assigned() {
		return ErrNoTrain
	}
	if !t.CanSetDirection(wire.DirectionReverse) {
		return ErrDirectionLocked
	}
	return t.s.send(&wire.Reverse{ThrottleID: t.id})
}

// ToggleFunction flips one function on a vehicle of the acquired train.
func (t *Throttle) ToggleFunction(vehicleID string, number int) error {
	if !t.Assigned() {
		return ErrNoTrain
	}
	return t.s.send(&wire.ToggleFunction{ThrottleID: t.id, VehicleID: vehicleID, FunctionNumber: number})
}

// Steal re-issues the acquire that an already_acquired notification refused,
// this time forcing the binding, and dismisses the notification.
func (t *Throttle) Steal() error {
	n := t.note
	if n == nil || n.stealTrainID == "" {
		return ErrNoSteal
	}
	err := t.s.send(&wire.Acquire{ThrottleID: t.id, TrainID: n.stealTrainID, Steal: true})
	t.clearNotification()
	return err
}

// Dismiss clears the visible notification, if any.
func (t *Throttle) Dismiss() {
	t.clearNotification()
}

// applyTrain handles a train event: non-nil assigns (or replaces) the bound
// train and persists the assignment, nil releases and removes it. A nil
// train on an already idle throttle is a no-op.
func (t *Throttle) applyTrain(train *wire.Train) {
	if train == nil {
		if t.trainID == "" {
			return
		}
		if err := t.s.store.ClearAssignment(t.id); err != nil {
			t.s.log.Error("clear assignment", "throttle", t.id, "err", err)
		}
		t.trainID = ""
		t.direction = wire.DirectionUnknown
		t.stopped = false
		t.actualSpeed = wire.Speed{}
		t.targetSpeed = wire.Speed{}
		t.functions = nil
		t.pendingSelect = ""
		return
	}

	if err := t.s.store.SetAssignment(t.id, train.ID); err != nil {
		t.s.log.Error("persist assignment", "throttle", t.id, "err", err)
	}
	t.trainID = train.ID
	t.direction = train.Direction
	t.stopped = train.IsStopped
	t.actualSpeed = train.Speed
	t.targetSpeed = train.ThrottleSpeed
	t.functions = train.Functions
	t.pendingSelect = ""
}

func (t *Throttle) applyDirection(d wire.Direction) { t.direction = d }
func (t *Throttle) applyStopped(v bool)             { t.stopped = v }
func (t *Throttle) applySpeed(s wire.Speed)         { t.actualSpeed = s }
func (t *Throttle) applyTargetSpeed(s wire.Speed)   { t.targetSpeed = s }

func (t *Throttle) applyFunctionValue(vehicleID string, number int, value bool) {
	for gi := range t.functions {
		if t.functions[gi].ID != vehicleID {
			continue
		}
		for fi := range t.functions[gi].Items {
			if t.functions[gi].Items[fi].Number == number {
				t.functions[gi].Items[fi].Value = value
				return
			}
		}
	}
}

// showMessage displays a server message, replacing any prior notification
// and arming its expiry timer.
func (t *Throttle) showMessage(ev *wire.MessageEvent) {
	if ev.Tag == wire.TagCanNotActivateTrain {
		// The acquire was refused; put the selector back on the recorded
		// assignment.
		t.pendingSelect = ""
	}

	n := &Notification{Type: ev.Type, Tag: ev.Tag, Text: ev.Text}
	if ev.Tag == wire.TagAlreadyAcquired {
		n.stealTrainID = ev.TrainID
		if n.stealTrainID == "" {
			n.stealTrainID = t.pendingSelect
		}
	}

	t.clearNotification()
	t.note = n
	n.cancel = t.s.schedule(t.s.ttl, func() {
		t.expireNotification(n)
	})
}

func (t *Throttle) expireNotification(n *Notification) {
	if t.note == n {
		t.note = nil
	}
}

func (t *Throttle) clearNotification() {
	if t.note == nil {
		return
	}
	if t.note.cancel != nil {
		t.note.cancel()
	}
	t.note = nil
}

// deactivate hides the throttle while no world is loaded and presents it as
// unassigned: the in-memory binding is dropped so no command can reach the
// wire. Only the persisted assignment survives, for the next world load to
// resume.
func (t *Throttle) deactivate() {
	t.active = false
	t.clearNotification()
	t.trainID = ""
	t.direction = wire.DirectionUnknown
	t.stopped = false
	t.actualSpeed = wire.Speed{}
	t.targetSpeed = wire.Speed{}
	t.functions = nil
	t.pendingSelect = ""
}
