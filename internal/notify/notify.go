// ABOUTME: Alert type, Sink interface and the log and fan-out sinks
// ABOUTME: Alerts describe a device pair whose correlation exceeded the notify threshold

package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/hvac-mesh/internal/correlation"
)

// Alert describes one high-correlation measurement.
type Alert struct {
	Record correlation.Record
	// Agents is the number of agent inboxes that accepted the notification.
	Agents int
	// Dropped is the number of agent inboxes that did not.
	Dropped int
}

// Sink delivers alerts.
type Sink interface {
	Name() string
	Notify(ctx context.Context, a Alert) error
}

// Format renders an alert as a short Markdown line.
func Format(a Alert) string {
	r := a.Record
	return fmt.Sprintf("**High correlation** between devices %d and %d: degree %.2f, notified %d agents (%d dropped) at %s",
		r.DeviceA, r.DeviceB, r.Degree, a.Agents, a.Dropped, r.MeasuredAt.UTC().Format(time.RFC3339))
}

// LogSink writes alerts to a logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "notify")}
}

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// Notify implements Sink.
func (s *LogSink) Notify(ctx context.Context, a Alert) error {
	s.logger.WarnContext(ctx, "high correlation detected",
		"device_a", a.Record.DeviceA,
		"device_b", a.Record.DeviceB,
		"degree", a.Record.Degree,
		"agents", a.Agents,
		"dropped", a.Dropped,
	)
	return nil
}

// Multi delivers to every sink and joins their errors.
type Multi []Sink

// Name implements Sink.
func (m Multi) Name() string { return "multi" }

// Notify implements Sink. Every sink is tried even if an earlier one fails.
func (m Multi) Notify(ctx context.Context, a Alert) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
