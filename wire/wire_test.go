package wire

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestDecodeEvent_World(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"event":"world","name":"Layout1"}`))
	if err != nil {
		t.Fatalf("DecodeEvent returned error: %v", err)
	}
	world, ok := ev.(*WorldEvent)
	if !ok {
		t.Fatalf("expected *WorldEvent, got %T", ev)
	}
	if world.Name == nil || *world.Name != "Layout1" {
		t.Fatalf("unexpected world name: %v", world.Name)
	}

	ev, err = DecodeEvent([]byte(`{"event":"world","name":null}`))
	if err != nil {
		t.Fatalf("DecodeEvent returned error: %v", err)
	}
	if world := ev.(*WorldEvent); world.Name != nil {
		t.Fatalf("expected nil name, got %q", *world.Name)
	}
}

func TestDecodeEvent_Train(t *testing.T) {
	frame := []byte(`{
		"event": "train",
		"throttle_id": 2,
		"train": {
			"id": "42",
			"direction": "forward",
			"is_stopped": true,
			"speed": {"value": 0, "unit": "kmph"},
			"throttle_speed": {"value": 0, "unit": "kmph"},
			"functions": [
				{"id": "loc-1", "name": "Loc 1", "items": [
					{"number": 0, "name": "Light", "value": true}
				]}
			]
		}
	}`)
	ev, err := DecodeEvent(frame)
	if err != nil {
		t.Fatalf("DecodeEvent returned error: %v", err)
	}
	train, ok := ev.(*TrainEvent)
	if !ok {
		t.Fatalf("expected *TrainEvent, got %T", ev)
	}
	if train.ThrottleID != 2 {
		t.Fatalf("expected throttle id 2, got %d", train.ThrottleID)
	}
	if train.Train == nil || train.Train.ID != "42" {
		t.Fatalf("unexpected train payload: %+v", train.Train)
	}
	if train.Train.Direction != DirectionForward || !train.Train.IsStopped {
		t.Fatalf("unexpected motion state: %+v", train.Train)
	}
	if len(train.Train.Functions) != 1 || len(train.Train.Functions[0].Items) != 1 {
		t.Fatalf("unexpected functions: %+v", train.Train.Functions)
	}
	if fn := train.Train.Functions[0].Items[0]; fn.Number != 0 || !fn.Value {
		t.Fatalf("unexpected function: %+v", fn)
	}
}

func TestDecodeEvent_TrainNull(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"event":"train","throttle_id":1,"train":null}`))
	if err != nil {
		t.Fatalf("DecodeEvent returned error: %v", err)
	}
	if train := ev.(*TrainEvent); train.Train != nil {
		t.Fatalf("expected nil train, got %+v", train.Train)
	}
}

func TestDecodeEvent_Unknown(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"event":"telemetry","value":1}`))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestDecodeEvent_Malformed(t *testing.T) {
	if _, err := DecodeEvent([]byte(`{"event":`)); err == nil {
		t.Fatalf("expected error for truncated frame")
	}
	if _, err := DecodeEvent([]byte(`{"event":"speed","throttle_id":"one"}`)); err == nil {
		t.Fatalf("expected error for mistyped field")
	}
}

func TestCommandRoundTrip(t *testing.T) {
	commands := []Command{
		&GetTrainList{},
		&EStopAll{},
		&SetName{ThrottleID: 1, Value: "Cab #1"},
		&Acquire{ThrottleID: 1, TrainID: "42", Steal: true},
		&Release{ThrottleID: 2, Stop: true},
		&Faster{ThrottleID: 3, Immediate: true},
		&Slower{ThrottleID: 3},
		&Stop{ThrottleID: 3, Immediate: true},
		&Reverse{ThrottleID: 4},
		&Forward{ThrottleID: 4},
		&EStop{ThrottleID: 5},
		&ToggleFunction{ThrottleID: 1, VehicleID: "loc-1", FunctionNumber: 7},
	}
	for _, cmd := range commands {
		data, err := EncodeCommand(cmd)
		if err != nil {
			t.Fatalf("encode %s: %v", cmd.Action(), err)
		}
		decoded, err := DecodeCommand(data)
		if err != nil {
			t.Fatalf("decode %s: %v", cmd.Action(), err)
		}
		if !reflect.DeepEqual(cmd, decoded) {
			t.Fatalf("%s round trip mismatch: sent %+v, got %+v", cmd.Action(), cmd, decoded)
		}
	}
}

func TestEncodeCommand_WireShape(t *testing.T) {
	data, err := EncodeCommand(&Acquire{ThrottleID: 1, TrainID: "42"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("frame is not a JSON object: %v", err)
	}
	if payload["action"] != "acquire" {
		t.Fatalf("expected action acquire, got %v", payload["action"])
	}
	if payload["throttle_id"] != float64(1) {
		t.Fatalf("expected throttle_id 1, got %v", payload["throttle_id"])
	}
	if payload["train_id"] != "42" {
		t.Fatalf("expected train_id 42, got %v", payload["train_id"])
	}
	if payload["steal"] != false {
		t.Fatalf("expected steal false, got %v", payload["steal"])
	}
}

func TestEncodeCommand_WorldScopedOmitThrottleID(t *testing.T) {
	for _, cmd := range []Command{&GetTrainList{}, &EStopAll{}} {
		data, err := EncodeCommand(cmd)
		if err != nil {
			t.Fatalf("encode %s: %v", cmd.Action(), err)
		}
		var payload map[string]any
		if err := json.Unmarshal(data, &payload); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if _, present := payload["throttle_id"]; present {
			t.Fatalf("%s must not carry throttle_id", cmd.Action())
		}
		if len(payload) != 1 {
			t.Fatalf("%s should carry only the action, got %v", cmd.Action(), payload)
		}
	}
}

func TestFormatSpeed(t *testing.T) {
	cases := []struct {
		speed Speed
		want  string
	}{
		{Speed{Value: 80.4, Unit: "kmph"}, "80 km/h"},
		{Speed{Value: 25.6, Unit: "mph"}, "26 mph"},
		{Speed{Value: 3.14, Unit: "mps"}, "3.1 m/s"},
		{Speed{Value: 12, Unit: "knots"}, "12 knots"},
	}
	for _, tc := range cases {
		if got := FormatSpeed(tc.speed); got != tc.want {
			t.Fatalf("FormatSpeed(%+v) = %q, want %q", tc.speed, got, tc.want)
		}
	}
}
