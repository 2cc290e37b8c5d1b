// Package notification delivers alert events to external channels
// (Telegram, webhooks, the log).
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"aurelius-engine/internal/model"
)

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert event. Returns error if delivery fails.
	Send(ctx context.Context, ev model.AlertEvent) error
}

// LogNotifier logs events (useful for development).
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: slog.Default().With("component", "notify")}
}

func (n *LogNotifier) Send(ctx context.Context, ev model.AlertEvent) error {
	n.log.InfoContext(ctx, "alert triggered",
		"alert_id", ev.AlertID,
		"symbol", ev.Symbol,
		"kind", ev.Kind,
		"condition", ev.Condition,
		"observed", ev.Observed,
		"threshold", ev.Threshold,
	)
	return nil
}

// Multi sends every event to all notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, ev model.AlertEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// message renders the human-readable body shared by the chat backends.
func message(ev *model.AlertEvent) string {
	return fmt.Sprintf("%s %s is %g (threshold %g) at %s",
		ev.Symbol, ev.Kind, ev.Observed, ev.Threshold, ev.TS.UTC().Format("15:04:05 MST"))
}
