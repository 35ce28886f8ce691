package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownAction marks a command payload whose "action" discriminator is
// not part of the protocol.
var ErrUnknownAction = errors.New("wire: unknown action")

// Command is an outbound intent. The set is closed; every throttle-scoped
// command carries its throttle id, the two world-scoped ones (GetTrainList,
// EStopAll) do not.
type Command interface {
	Action() string
}

// GetTrainList requests a fresh train catalog snapshot.
type GetTrainList struct{}

// EStopAll stops every train on the layout, regardless of who acquired it.
type EStopAll struct{}

// SetName labels the throttle on the server side.
type SetName struct {
	ThrottleID int    `json:"throttle_id"`
	Value      string `json:"value"`
}

// Acquire binds a train to the throttle. Steal forces the binding even if
// another throttle already holds the train.
type Acquire struct {
	ThrottleID int    `json:"throttle_id"`
	TrainID    string `json:"train_id"`
	Steal      bool   `json:"steal"`
}

// Release gives the train back; Stop asks the server to halt it first.
type Release struct {
	ThrottleID int  `json:"throttle_id"`
	Stop       bool `json:"stop"`
}

// Faster raises the target speed one step. Immediate skips ramping.
type Faster struct {
	ThrottleID int  `json:"throttle_id"`
	Immediate  bool `json:"immediate"`
}

// Slower lowers the target speed one step.
type Slower struct {
	ThrottleID int  `json:"throttle_id"`
	Immediate  bool `json:"immediate"`
}

// Stop sets the target speed to zero.
type Stop struct {
	ThrottleID int  `json:"throttle_id"`
	Immediate  bool `json:"immediate"`
}

type Reverse struct {
	ThrottleID int `json:"throttle_id"`
}

type Forward struct {
	ThrottleID int `json:"throttle_id"`
}

// EStop is the per-throttle emergency stop.
type EStop struct {
	ThrottleID int `json:"throttle_id"`
}

// ToggleFunction flips one boolean function on a vehicle of the acquired train.
type ToggleFunction struct {
	ThrottleID     int    `json:"throttle_id"`
	VehicleID      string `json:"vehicle_id"`
	FunctionNumber int    `json:"function_number"`
}

func (GetTrainList) Action() string   { return "get_train_list" }
func (EStopAll) Action() string       { return "estop_all" }
func (SetName) Action() string        { return "set_name" }
func (Acquire) Action() string        { return "acquire" }
func (Release) Action() string        { return "release" }
func (Faster) Action() string         { return "faster" }
func (Slower) Action() string         { return "slower" }
func (Stop) Action() string           { return "stop" }
func (Reverse) Action() string        { return "reverse" }
func (Forward) Action() string        { return "forward" }
func (EStop) Action() string          { return "estop" }
func (ToggleFunction) Action() string { return "toggle_function" }

// EncodeCommand serializes a command to one wire frame, injecting the
// "action" discriminator next to the command's own fields.
func EncodeCommand(c Command) ([]byte, error) {
	fields, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s: %w", c.Action(), err)
	}
	payload := map[string]json.RawMessage{}
	if err := json.Unmarshal(fields, &payload); err != nil {
		return nil, fmt.Errorf("wire: encode %s: %w", c.Action(), err)
	}
	action, _ := json.Marshal(c.Action())
	payload["action"] = action
	return json.Marshal(payload)
}

// DecodeCommand parses a command frame back into its typed form. Mostly a
// test aid; the client never receives commands.
func DecodeCommand(data []byte) (Command, error) {
	var env struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("wire: decode command envelope: %w", err)
	}

	var c Command
	switch env.Action {
	case "get_train_list":
		c = &GetTrainList{}
	case "estop_all":
		c = &EStopAll{}
	case "set_name":
		c = &SetName{}
	case "acquire":
		c = &Acquire{}
	case "release":
		c = &Release{}
	case "faster":
		c = &Faster{}
	case "slower":
		c = &Slower{}
	case "stop":
		c = &Stop{}
	case "reverse":
		c = &Reverse{}
	case "forward":
		c = &Forward{}
	case "estop":
		c = &EStop{}
	case "toggle_function":
		c = &ToggleFunction{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, env.Action)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("wire: decode %s command: %w", env.Action, err)
	}
	return c, nil
}
