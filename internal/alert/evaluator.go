// Package alert evaluates user-defined alert rules against incoming quotes.
//
// Each active alert is a two-state machine (Armed, Triggered). An event is
// emitted only on Armed → Triggered, so a condition that keeps holding over
// many ticks fires once. The alert re-arms when the condition stops holding.
// Inactive alerts are skipped and keep whatever state they had.
package alert

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"aurelius-engine/internal/model"
)

// Evaluator owns a set of alerts and their edge state.
type Evaluator struct {
	mu     sync.Mutex
	order  []string
	alerts map[string]*model.CustomAlert

	newID func() string
}

// NewEvaluator creates an empty evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		alerts: make(map[string]*model.CustomAlert),
		newID:  func() string { return uuid.NewString() },
	}
}

func validate(a *model.CustomAlert) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if math.IsNaN(a.Threshold) || math.IsInf(a.Threshold, 0) {
		return fmt.Errorf("alert: threshold %v: %w", a.Threshold, model.ErrInvalidParameter)
	}
	return nil
}

// Add registers a new alert in the Armed state and returns its ID. A caller
// supplied ID is kept if unused.
func (e *Evaluator) Add(a model.CustomAlert) (string, error) {
	if err := validate(&a); err != nil {
		return "", fmt.Errorf("alert: add: %w", err)
	}
	a.State = model.Armed

	e.mu.Lock()
	defer e.mu.Unlock()
	if a.ID == "" {
		a.ID = e.newID()
	} else if _, dup := e.alerts[a.ID]; dup {
		return "", fmt.Errorf("alert: add: duplicate id %q: %w", a.ID, model.ErrInvalidParameter)
	}
	e.alerts[a.ID] = &a
	e.order = append(e.order, a.ID)
	return a.ID, nil
}

// Remove deletes an alert.
func (e *Evaluator) Remove(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.alerts[id]; !ok {
		return fmt.Errorf("alert: remove %q: %w", id, model.ErrNotFound)
	}
	delete(e.alerts, id)
	for i, v := range e.order {
		if v == id {
			e.order = append(e.order[:i:i], e.order[i+1:]...)
			break
		}
	}
	return nil
}

// SetActive toggles evaluation. The edge state is frozen, not cleared, while
// an alert is inactive.
func (e *Evaluator) SetActive(id string, active bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.alerts[id]
	if !ok {
		return fmt.Errorf("alert: set active %q: %w", id, model.ErrNotFound)
	}
	a.Active = active
	return nil
}

// State returns the edge state of an alert.
func (e *Evaluator) State(id string) (model.AlertState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.alerts[id]
	if !ok {
		return model.Armed, fmt.Errorf("alert: state %q: %w", id, model.ErrNotFound)
	}
	return a.State, nil
}

// Alerts returns a snapshot in insertion order.
func (e *Evaluator) Alerts() []model.CustomAlert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.CustomAlert, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, *e.alerts[id])
	}
	return out
}

// ForSymbol returns a snapshot of the alerts targeting symbol.
func (e *Evaluator) ForSymbol(symbol string) []model.CustomAlert {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []model.CustomAlert
	for _, id := range e.order {
		if a := e.alerts[id]; a.Symbol == symbol {
			out = append(out, *a)
		}
	}
	return out
}

// Restore replaces all alerts, keeping their persisted edge state. Every
// alert is validated first; on error nothing changes.
func (e *Evaluator) Restore(alerts []model.CustomAlert) error {
	next := make(map[string]*model.CustomAlert, len(alerts))
	order := make([]string, 0, len(alerts))
	for i := range alerts {
		a := alerts[i]
		if err := validate(&a); err != nil {
			return fmt.Errorf("alert: restore %q: %w", a.ID, err)
		}
		if a.ID == "" {
			return fmt.Errorf("alert: restore: empty id: %w", model.ErrInvalidParameter)
		}
		if _, dup := next[a.ID]; dup {
			return fmt.Errorf("alert: restore: duplicate id %q: %w", a.ID, model.ErrInvalidParameter)
		}
		if a.State != model.Triggered {
			a.State = model.Armed
		}
		next[a.ID] = &a
		order = append(order, a.ID)
	}

	e.mu.Lock()
	e.alerts = next
	e.order = order
	e.mu.Unlock()
	return nil
}

// Evaluate runs every active alert on q.Symbol against q and returns the
// alerts that transitioned Armed → Triggered on this quote.
func (e *Evaluator) Evaluate(q model.Quote) []model.AlertEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	var events []model.AlertEvent
	for _, id := range e.order {
		a := e.alerts[id]
		if a.Symbol != q.Symbol || !a.Active {
			continue
		}
		observed, holds := Check(a, q)
		switch {
		case holds && a.State == model.Armed:
			a.State = model.Triggered
			ts := q.TS
			if ts.IsZero() {
				ts = time.Now()
			}
			events = append(events, model.AlertEvent{
				AlertID:   a.ID,
				Symbol:    a.Symbol,
				Kind:      a.Kind,
				Condition: a.Condition,
				Observed:  observed,
				Threshold: a.Threshold,
				TS:        ts,
			})
		case !holds && a.State == model.Triggered:
			a.State = model.Armed
		}
	}
	return events
}

// Check reports the observed value for a's kind and whether a's condition
// holds for q. It does not touch edge state.
//
// price and volume compare strictly. percentChange reads as "up by" (Above)
// or "down by" (Below) the threshold's magnitude, inclusively: "above 2"
// matches +2% and +2.5% but not -3%, "below 2" matches -2% and -3%.
func Check(a *model.CustomAlert, q model.Quote) (float64, bool) {
	switch a.Kind {
	case model.AlertPrice:
		return q.Price, compare(q.Price, a.Condition, a.Threshold)
	case model.AlertVolume:
		return q.Volume, compare(q.Volume, a.Condition, a.Threshold)
	case model.AlertPercentChange:
		move := math.Abs(a.Threshold)
		switch a.Condition {
		case model.Above:
			return q.PercentChange, q.PercentChange >= move
		case model.Below:
			return q.PercentChange, q.PercentChange <= -move
		}
		return q.PercentChange, false
	}
	return 0, false
}

func compare(v float64, c model.Condition, threshold float64) bool {
	switch c {
	case model.Above:
		return v > threshold
	case model.Below:
		return v < threshold
	}
	return false
}
