// internal/emr/events.go
package emr

import (
	"context"

	"go.uber.org/zap"
)

// Status is the kind of a progress event.
type Status string

const (
	StatusStandard Status = "standard"
	StatusCritical Status = "critical"
	StatusComplete Status = "complete"
	StatusAllDone  Status = "all_done"
	StatusFailed   Status = "failed"
)

// Event is one progress record of a running task.
type Event struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// Emitter delivers an event. It returns an error when the consumer is gone.
type Emitter func(Event) error

func standard(msg string) Event { return Event{Status: StatusStandard, Message: msg} }
func critical(msg string) Event { return Event{Status: StatusCritical, Message: msg} }

// channelEmitter sends to ch, giving up when ctx ends.
func channelEmitter(ctx context.Context, ch chan<- Event, logger *zap.Logger) Emitter {
	return func(ev Event) error {
		logEvent(logger, ev)
		select {
		case ch <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func logEvent(logger *zap.Logger, ev Event) {
	switch ev.Status {
	case StatusCritical, StatusFailed:
		logger.Warn(ev.Message, zap.String("status", string(ev.Status)), zap.String("error", ev.Error))
	default:
		logger.Info(ev.Message, zap.String("status", string(ev.Status)))
	}
}
