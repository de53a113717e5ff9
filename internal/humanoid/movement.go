package humanoid

import (
	"context"

	"go.uber.org/zap"
)

// MoveTo implements Controller. A smooth move animates from the current
// pointer location; otherwise the pointer jumps straight to the target.
func (h *Humanoid) MoveTo(ctx context.Context, x, y int, smooth bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := Vector2D{X: float64(x), Y: float64(y)}

	if !smooth || !h.cfg.Smooth {
		return h.event(ctx, "mouse move", func() error { return h.executor.MoveMouse(ctx, x, y) })
	}

	sx, sy, err := h.executor.Location(ctx)
	if err != nil {
		// An unknown start is not fatal; a jump still lands on target.
		h.logger.Debug("Pointer location unavailable, moving directly", zap.Error(err))
		return h.event(ctx, "mouse move", func() error { return h.executor.MoveMouse(ctx, x, y) })
	}
	return h.simulateTrajectory(ctx, Vector2D{X: float64(sx), Y: float64(sy)}, target)
}
