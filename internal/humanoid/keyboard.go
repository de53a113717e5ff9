// -- internal/humanoid/keyboard.go --
package humanoid

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// Write implements Controller. With paste set the text goes through the
// clipboard and a single modifier+v; otherwise it is typed one character at
// a time with interval between characters.
func (h *Humanoid) Write(ctx context.Context, text string, interval time.Duration, paste bool) error {
	if text == "" {
		return ctx.Err()
	}
	if paste {
		if err := h.event(ctx, "clipboard", func() error { return h.executor.SetClipboard(ctx, text) }); err != nil {
			return err
		}
		return h.Hotkey(ctx, []string{h.modifier, "v"}, 1, 0)
	}

	for i, r := range []rune(text) {
		if i > 0 {
			if err := h.pause(ctx, interval); err != nil {
				return err
			}
		}
		ch := string(r)
		if err := h.event(ctx, "type", func() error { return h.executor.TypeText(ctx, ch) }); err != nil {
			return fmt.Errorf("%w (character %d)", err, i)
		}
	}
	return nil
}

// Press implements Controller.
func (h *Humanoid) Press(ctx context.Context, key string, presses int, interval time.Duration) error {
	return h.Hotkey(ctx, []string{key}, presses, interval)
}

// Hotkey implements Controller. Keys go down in order and come up in
// reverse, once per press.
func (h *Humanoid) Hotkey(ctx context.Context, keys []string, presses int, interval time.Duration) error {
	if len(keys) == 0 {
		return fmt.Errorf("input: no keys given")
	}
	if presses <= 0 {
		return fmt.Errorf("input: press count must be positive, got %d", presses)
	}

	for p := 0; p < presses; p++ {
		if p > 0 {
			if err := h.pause(ctx, interval); err != nil {
				return err
			}
		}
		for _, k := range keys {
			if err := h.keyToggle(ctx, k, true); err != nil {
				h.releaseKeys(context.WithoutCancel(ctx), keys)
				return err
			}
		}
		if err := h.pause(ctx, h.cfg.KeyHold); err != nil {
			h.releaseKeys(context.WithoutCancel(ctx), keys)
			return err
		}
		for i := len(keys) - 1; i >= 0; i-- {
			if err := h.keyToggle(ctx, keys[i], false); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReleaseAll implements Controller. Every key and button this controller
// pressed, plus the common modifiers, is released. The first error is
// returned after all releases were attempted.
func (h *Humanoid) ReleaseAll(ctx context.Context) error {
	h.mu.Lock()
	keys := make([]string, 0, len(h.heldKeys)+4)
	for k := range h.heldKeys {
		keys = append(keys, k)
	}
	buttons := make([]MouseButton, 0, len(h.heldButtons))
	for b := range h.heldButtons {
		buttons = append(buttons, b)
	}
	h.mu.Unlock()

	for _, m := range []string{KeyShift, KeyCtrl, KeyAlt, KeyCmd} {
		if !slices.Contains(keys, m) {
			keys = append(keys, m)
		}
	}

	var first error
	for _, k := range keys {
		if err := h.keyToggle(ctx, k, false); err != nil && first == nil {
			first = err
		}
	}
	for _, b := range buttons {
		if err := h.mouseToggle(ctx, b, false); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (h *Humanoid) keyToggle(ctx context.Context, key string, down bool) error {
	name := "key up"
	if down {
		name = "key down"
	}
	if err := h.event(ctx, name, func() error { return h.executor.KeyToggle(ctx, key, down) }); err != nil {
		return fmt.Errorf("%w (key %q)", err, key)
	}
	h.mu.Lock()
	if down {
		h.heldKeys[key] = struct{}{}
	} else {
		delete(h.heldKeys, key)
	}
	h.mu.Unlock()
	return nil
}

// releaseKeys is best effort cleanup after a failed chord.
func (h *Humanoid) releaseKeys(ctx context.Context, keys []string) {
	h.mu.Lock()
	held := make([]string, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		if _, ok := h.heldKeys[keys[i]]; ok {
			held = append(held, keys[i])
		}
	}
	h.mu.Unlock()
	for _, k := range held {
		_ = h.keyToggle(ctx, k, false)
	}
}
