package humanoid

import (
	"context"
	"fmt"
	"time"
)

// Click implements Controller. Each click holds the button for the
// configured dwell time; interval separates consecutive clicks.
func (h *Humanoid) Click(ctx context.Context, button MouseButton, clicks int, interval time.Duration) error {
	if clicks <= 0 {
		return fmt.Errorf("input: click count must be positive, got %d", clicks)
	}
	if button == "" {
		button = ButtonLeft
	}

	for i := 0; i < clicks; i++ {
		if i > 0 {
			if err := h.pause(ctx, interval); err != nil {
				return err
			}
		}
		if err := h.mouseToggle(ctx, button, true); err != nil {
			return err
		}
		if err := h.pause(ctx, h.cfg.ClickHold); err != nil {
			// Never leave a button pressed behind a cancelled context.
			_ = h.mouseToggle(context.WithoutCancel(ctx), button, false)
			return err
		}
		if err := h.mouseToggle(ctx, button, false); err != nil {
			return err
		}
	}
	return nil
}

func (h *Humanoid) mouseToggle(ctx context.Context, button MouseButton, down bool) error {
	name := "mouse up"
	if down {
		name = "mouse down"
	}
	if err := h.event(ctx, name, func() error { return h.executor.MouseToggle(ctx, button, down) }); err != nil {
		return err
	}
	h.mu.Lock()
	if down {
		h.heldButtons[button] = struct{}{}
	} else {
		delete(h.heldButtons, button)
	}
	h.mu.Unlock()
	return nil
}
