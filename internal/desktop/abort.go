// File: internal/desktop/abort.go
package desktop

import (
	"context"
	"strings"

	hook "github.com/robotn/gohook"
	"go.uber.org/zap"
)

// DefaultAbortKeys is the emergency stop chord.
var DefaultAbortKeys = []string{"esc", "ctrl", "shift"}

// AbortHotkey installs a global keyboard hook that calls cancel when keys
// are pressed together. The hook is removed when ctx ends. It blocks, so
// run it in its own goroutine.
func AbortHotkey(ctx context.Context, keys []string, cancel context.CancelFunc, logger *zap.Logger) {
	if len(keys) == 0 {
		keys = DefaultAbortKeys
	}
	logger = logger.Named("abort")

	hook.Register(hook.KeyDown, keys, func(hook.Event) {
		logger.Warn("Abort hotkey pressed, cancelling", zap.String("keys", strings.Join(keys, "+")))
		cancel()
	})
	events := hook.Start()
	done := hook.Process(events)

	logger.Info("Abort hotkey armed", zap.String("keys", strings.Join(keys, "+")))
	select {
	case <-ctx.Done():
		hook.End()
	case <-done:
	}
}
