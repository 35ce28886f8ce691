package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownEvent marks an inbound frame whose "event" discriminator is not
// part of the protocol. The session decides whether that is fatal.
var ErrUnknownEvent = errors.New("wire: unknown event")

// Event is an inbound server event. The set is closed; DecodeEvent is the
// only producer.
type Event interface {
	eventName() string
}

// WorldEvent announces the loaded world. A nil Name means no world is
// loaded and nothing can be controlled.
type WorldEvent struct {
	Name *string `json:"name"`
}

// TrainListEvent replaces the train catalog wholesale.
type TrainListEvent struct {
	List []TrainInfo `json:"list"`
}

// MessageEvent is a server-side rejection or notice scoped to one throttle.
// TrainID is set for tags where remediation needs it (already_acquired).
type MessageEvent struct {
	ThrottleID int    `json:"throttle_id"`
	Type       string `json:"type"`
	Tag        string `json:"tag"`
	Text       string `json:"text"`
	TrainID    string `json:"train_id,omitempty"`
}

// Tags carried by MessageEvent that trigger structured remediation.
const (
	TagAlreadyAcquired     = "already_acquired"
	TagCanNotActivateTrain = "can_not_activate_train"
)

// TrainEvent assigns (non-nil Train) or releases (nil Train) a throttle.
type TrainEvent struct {
	ThrottleID int    `json:"throttle_id"`
	Train      *Train `json:"train"`
}

type DirectionEvent struct {
	ThrottleID int       `json:"throttle_id"`
	Value      Direction `json:"value"`
}

type IsStoppedEvent struct {
	ThrottleID int  `json:"throttle_id"`
	Value      bool `json:"value"`
}

// SpeedEvent reports the actual speed of the acquired train.
type SpeedEvent struct {
	ThrottleID int     `json:"throttle_id"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
}

// ThrottleSpeedEvent reports the target speed set on the throttle.
type ThrottleSpeedEvent struct {
	ThrottleID int     `json:"throttle_id"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
}

// FunctionValueEvent updates one function button's state.
type FunctionValueEvent struct {
	ThrottleID int    `json:"throttle_id"`
	VehicleID  string `json:"vehicle_id"`
	Number     int    `json:"number"`
	Value      bool   `json:"value"`
}

func (WorldEvent) eventName() string         { return "world" }
func (TrainListEvent) eventName() string     { return "train_list" }
func (MessageEvent) eventName() string       { return "message" }
func (TrainEvent) eventName() string         { return "train" }
func (DirectionEvent) eventName() string     { return "direction" }
func (IsStoppedEvent) eventName() string     { return "is_stopped" }
func (SpeedEvent) eventName() string         { return "speed" }
func (ThrottleSpeedEvent) eventName() string { return "throttle_speed" }
func (FunctionValueEvent) eventName() string { return "function_value" }

// DecodeEvent parses one inbound frame. It returns ErrUnknownEvent (wrapped
// with the discriminator) for events outside the protocol and a plain decode
// error for malformed JSON.
func DecodeEvent(data []byte) (Event, error) {
	var env struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("wire: decode event envelope: %w", err)
	}

	var ev Event
	switch env.Event {
	case "world":
		ev = &WorldEvent{}
	case "train_list":
		ev = &TrainListEvent{}
	case "message":
		ev = &MessageEvent{}
	case "train":
		ev = &TrainEvent{}
	case "direction":
		ev = &DirectionEvent{}
	case "is_stopped":
		ev = &IsStoppedEvent{}
	case "speed":
		ev = &SpeedEvent{}
	case "throttle_speed":
		ev = &ThrottleSpeedEvent{}
	case "function_value":
		ev = &FunctionValueEvent{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("wire: decode %s event: %w", env.Event, err)
	}
	return ev, nil
}
