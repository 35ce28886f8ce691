// Package wire defines the JSON vocabulary spoken with the throttle server:
// inbound events keyed on "event" and outbound commands keyed on "action".
// Both sides exchange UTF-8 text frames carrying one object each.
package wire

import "fmt"

// Direction of travel as reported by the server.
type Direction string

const (
	DirectionForward Direction = "forward"
	DirectionReverse Direction = "reverse"
	DirectionUnknown Direction = "unknown"
)

// Speed is a value with its unit tag ("kmph", "mph", "mps", ...).
type Speed struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Function is one boolean control (lights, horn, ...) on a vehicle.
type Function struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
	Value  bool   `json:"value"`
}

// FunctionGroup collects the functions of one vehicle within a train.
type FunctionGroup struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Items []Function `json:"items"`
}

// Train is the full snapshot sent when a throttle acquires a train.
type Train struct {
	ID            string          `json:"id"`
	Direction     Direction       `json:"direction"`
	IsStopped     bool            `json:"is_stopped"`
	Speed         Speed           `json:"speed"`
	ThrottleSpeed Speed           `json:"throttle_speed"`
	Functions     []FunctionGroup `json:"functions"`
}

// TrainInfo is one catalog entry from a train_list event.
type TrainInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FormatSpeed renders a speed for display. Kilometers and miles per hour
// round to whole numbers, meters per second keep one decimal, unknown
// units pass through untouched.
func FormatSpeed(s Speed) string {
	switch s.Unit {
	case "kmph":
		return fmt.Sprintf("%.0f km/h", s.Value)
	case "mph":
		return fmt.Sprintf("%.0f mph", s.Value)
	case "mps":
		return fmt.Sprintf("%.1f m/s", s.Value)
	}
	return fmt.Sprintf("%v %s", s.Value, s.Unit)
}
