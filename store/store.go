// Package store persists operator preferences and per-throttle train
// assignments across restarts. Assignments are the only state that survives
// a reconnect or a process restart; everything else is rebuilt from server
// events.
package store

import "strconv"

// Store is a small typed key/value surface. Preference reads fall back to
// their defaults when the key was never written; an explicitly stored false
// stays false.
type Store interface {
	// DisplayName is the operator's configured cab name base; the second
	// return is false when none was ever set.
	DisplayName() (string, bool)
	SetDisplayName(name string) error

	// StopOnRelease reports whether releasing a train should also stop it.
	// Defaults to true.
	StopOnRelease() bool
	SetStopOnRelease(v bool) error

	// ImmediateSpeedControl reports whether speed commands skip ramping.
	// Defaults to true.
	ImmediateSpeedControl() bool
	SetImmediateSpeedControl(v bool) error

	// Assignment returns the persisted train id for a throttle, if any.
	Assignment(throttleID int) (string, bool)
	SetAssignment(throttleID int, trainID string) error
	ClearAssignment(throttleID int) error

	Close() error
}

const (
	keyDisplayName           = "name"
	keyStopOnRelease         = "stop_on_release"
	keyImmediateSpeedControl = "immediate_speed_control"
)

func assignmentKey(throttleID int) string {
	return "throttle." + strconv.Itoa(throttleID) + ".train"
}

// Memory is a map-backed Store for tests and ephemeral runs.
type Memory struct {
	values map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) DisplayName() (string, bool) {
	name, ok := m.values[keyDisplayName]
	return name, ok
}

func (m *Memory) SetDisplayName(name string) error {
	m.values[keyDisplayName] = name
	return nil
}

func (m *Memory) StopOnRelease() bool {
	return m.values[keyStopOnRelease] != "false"
}

func (m *Memory) SetStopOnRelease(v bool) error {
	m.values[keyStopOnRelease] = strconv.FormatBool(v)
	return nil
}

func (m *Memory) ImmediateSpeedControl() bool {
	return m.values[keyImmediateSpeedControl] != "false"
}

func (m *Memory) SetImmediateSpeedControl(v bool) error {
	m.values[keyImmediateSpeedControl] = strconv.FormatBool(v)
	return nil
}

func (m *Memory) Assignment(throttleID int) (string, bool) {
	trainID, ok := m.values[assignmentKey(throttleID)]
	return trainID, ok
}

func (m *Memory) SetAssignment(throttleID int, trainID string) error {
	m.values[assignmentKey(throttleID)] = trainID
	return nil
}

func (m *Memory) ClearAssignment(throttleID int) error {
	delete(m.values, assignmentKey(throttleID))
	return nil
}

func (m *Memory) Close() error { return nil }
