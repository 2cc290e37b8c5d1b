package model

import (
	"fmt"
	"time"
)

// AlertKind selects which field of a quote an alert observes.
type AlertKind string

const (
	AlertPrice         AlertKind = "price"
	AlertVolume        AlertKind = "volume"
	AlertPercentChange AlertKind = "percentChange"
)

// Condition is the comparison direction of an alert.
type Condition string

const (
	Above Condition = "above"
	Below Condition = "below"
)

// AlertState is the evaluator's per-alert edge state.
type AlertState int

const (
	Armed     AlertState = 0
	Triggered AlertState = 1
)

func (s AlertState) String() string {
	switch s {
	case Armed:
		return "armed"
	case Triggered:
		return "triggered"
	default:
		return "unknown"
	}
}

// CustomAlert is a user-defined rule on one instrument.
type CustomAlert struct {
	ID        string    `json:"id" msgpack:"id"`
	Symbol    string    `json:"symbol" msgpack:"symbol"`
	Kind      AlertKind `json:"kind" msgpack:"kind"`
	Condition Condition `json:"condition" msgpack:"condition"`
	Threshold float64   `json:"threshold" msgpack:"threshold"`
	Active    bool      `json:"active" msgpack:"active"`

	// State is owned by the alert evaluator and not user-editable.
	State AlertState `json:"state" msgpack:"state"`
}

// Validate checks the enumerations and the target symbol.
func (a *CustomAlert) Validate() error {
	if a.Symbol == "" {
		return fmt.Errorf("alert: empty symbol: %w", ErrInvalidParameter)
	}
	switch a.Kind {
	case AlertPrice, AlertVolume, AlertPercentChange:
	default:
		return fmt.Errorf("alert: unknown kind %q: %w", a.Kind, ErrInvalidParameter)
	}
	switch a.Condition {
	case Above, Below:
	default:
		return fmt.Errorf("alert: unknown condition %q: %w", a.Condition, ErrInvalidParameter)
	}
	return nil
}

// AlertEvent is emitted on an Armed → Triggered transition.
type AlertEvent struct {
	AlertID   string    `json:"alert_id"`
	Symbol    string    `json:"symbol"`
	Kind      AlertKind `json:"kind"`
	Condition Condition `json:"condition"`
	Observed  float64   `json:"observed"`
	Threshold float64   `json:"threshold"`
	TS        time.Time `json:"ts"`
}

// Title is a short human-readable summary used by notifiers.
func (e *AlertEvent) Title() string {
	return fmt.Sprintf("%s %s %s %g", e.Symbol, e.Kind, e.Condition, e.Threshold)
}
