// Package notify delivers best-effort market notifications. Deliveries run
// off the request path and their failures never reach the triggering write.
package notify

import (
	"context"
	"time"

	"github.com/wonny/predico/internal/contracts"
	"github.com/wonny/predico/pkg/logger"
)

// Event is one rendered notification
type Event struct {
	Template    string                 `json:"template"`
	Destination string                 `json:"destination"`
	Args        map[string]interface{} `json:"args,omitempty"`
	At          time.Time              `json:"at"`
}

// Sink delivers events to one channel
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e Event) error
}

// Fanout forwards every notification to each notifier in order
type Fanout []contracts.Notifier

var _ contracts.Notifier = Fanout(nil)

// Notify implements contracts.Notifier
func (f Fanout) Notify(ctx context.Context, templateKey, destination string, args map[string]interface{}) {
	for _, n := range f {
		if n != nil {
			n.Notify(ctx, templateKey, destination, args)
		}
	}
}

// LogSink writes events to the structured log
type LogSink struct {
	log *logger.Logger
}

// NewLogSink creates a log sink
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log.Component("notify")}
}

// Name implements Sink
func (s *LogSink) Name() string { return "log" }

// Deliver implements Sink
func (s *LogSink) Deliver(_ context.Context, e Event) error {
	s.log.WithFields(map[string]interface{}{
		"template":    e.Template,
		"destination": e.Destination,
		"args":        e.Args,
	}).Info("notification")
	return nil
}
