// Command wireschema writes a JSON Schema describing the throttle wire
// protocol, for server-side validation and protocol documentation.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"webthrottle/wire"
)

// protocol groups every inbound event and outbound command so one reflection
// pass covers the whole vocabulary.
type protocol struct {
	Events   events   `json:"events"`
	Commands commands `json:"commands"`
}

type events struct {
	World         wire.WorldEvent         `json:"world"`
	TrainList     wire.TrainListEvent     `json:"train_list"`
	Message       wire.MessageEvent       `json:"message"`
	Train         wire.TrainEvent         `json:"train"`
	Direction     wire.DirectionEvent     `json:"direction"`
	IsStopped     wire.IsStoppedEvent     `json:"is_stopped"`
	Speed         wire.SpeedEvent         `json:"speed"`
	ThrottleSpeed wire.ThrottleSpeedEvent `json:"throttle_speed"`
	FunctionValue wire.FunctionValueEvent `json:"function_value"`
}

type commands struct {
	GetTrainList   wire.GetTrainList   `json:"get_train_list"`
	EStopAll       wire.EStopAll       `json:"estop_all"`
	SetName        wire.SetName        `json:"set_name"`
	Acquire        wire.Acquire        `json:"acquire"`
	Release        wire.Release        `json:"release"`
	Faster         wire.Faster         `json:"faster"`
	Slower         wire.Slower         `json:"slower"`
	Stop           wire.Stop           `json:"stop"`
	Reverse        wire.Reverse        `json:"reverse"`
	Forward        wire.Forward        `json:"forward"`
	EStop          wire.EStop          `json:"estop"`
	ToggleFunction wire.ToggleFunction `json:"toggle_function"`
}

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	if err := writeSchema(outPath, buildSchema()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(protocol))
	schema.Title = "Web Throttle Wire Protocol"
	schema.Description = "Inbound events (keyed on \"event\") and outbound commands (keyed on \"action\") exchanged with the throttle server"
	return schema
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}

	return nil
}
