package humanoid

import (
	"context"

	"go.uber.org/zap"
)

// Scroll implements Controller. The wheel turns in a single event; the
// distance per click is the platform's.
func (h *Humanoid) Scroll(ctx context.Context, clicks int) error {
	if clicks == 0 {
		return ctx.Err()
	}
	h.logger.Debug("Scrolling", zap.Int("clicks", clicks))
	return h.event(ctx, "scroll", func() error { return h.executor.ScrollWheel(ctx, clicks) })
}
