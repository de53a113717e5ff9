// Filename: internal/humanoid/interface.go
package humanoid

import (
	"context"
	"runtime"
	"time"
)

// Controller is the primitive input surface the EMR automation drives. Every
// call blocks until the OS has accepted the events, and every backend
// failure is returned to the caller.
type Controller interface {
	// MoveTo moves the pointer to (x, y) in OS input coordinates, animating
	// the path when smooth is set.
	MoveTo(ctx context.Context, x, y int, smooth bool) error
	Click(ctx context.Context, button MouseButton, clicks int, interval time.Duration) error
	// Write types text, either key by key or through the clipboard.
	Write(ctx context.Context, text string, interval time.Duration, paste bool) error
	Press(ctx context.Context, key string, presses int, interval time.Duration) error
	Hotkey(ctx context.Context, keys []string, presses int, interval time.Duration) error
	ReleaseAll(ctx context.Context) error
	// Scroll turns the wheel. Positive clicks scroll up, negative scroll down.
	Scroll(ctx context.Context, clicks int) error
	// Pause blocks for d or until ctx ends.
	Pause(ctx context.Context, d time.Duration) error
	// Modifier is the platform's shortcut modifier key.
	Modifier() string
}

// Executor is the raw OS event backend. It is kept minimal so tests can
// record events instead of moving a real pointer.
type Executor interface {
	// Sleep pauses execution, respecting context cancellation.
	Sleep(ctx context.Context, d time.Duration) error
	MoveMouse(ctx context.Context, x, y int) error
	MouseToggle(ctx context.Context, button MouseButton, down bool) error
	KeyToggle(ctx context.Context, key string, down bool) error
	TypeText(ctx context.Context, text string) error
	SetClipboard(ctx context.Context, text string) error
	ScrollWheel(ctx context.Context, clicks int) error
	Location(ctx context.Context) (x, y int, err error)
}

// MouseButton names a pointer button.
type MouseButton string

const (
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)

// ParseButton maps a workflow button name to a MouseButton.
func ParseButton(name string) (MouseButton, bool) {
	switch MouseButton(name) {
	case ButtonLeft, ButtonRight, ButtonMiddle:
		return MouseButton(name), true
	case "":
		return ButtonLeft, true
	}
	return "", false
}

// Key names understood by the backend.
const (
	KeyCmd   = "cmd"
	KeyCtrl  = "ctrl"
	KeyShift = "shift"
	KeyAlt   = "alt"
)

// ModifierFor returns the shortcut modifier for an operating system.
func ModifierFor(goos string) string {
	if goos == "darwin" {
		return KeyCmd
	}
	return KeyCtrl
}

// DefaultModifier is the shortcut modifier of the running platform.
func DefaultModifier() string { return ModifierFor(runtime.GOOS) }
