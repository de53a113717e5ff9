// File: cmd/app.go
package cmd

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/vision-assistant/internal/config"
	"github.com/xkilldash9x/vision-assistant/internal/desktop"
	"github.com/xkilldash9x/vision-assistant/internal/emr"
	"github.com/xkilldash9x/vision-assistant/internal/emrdata"
	"github.com/xkilldash9x/vision-assistant/internal/humanoid"
	"github.com/xkilldash9x/vision-assistant/internal/templates"
	"github.com/xkilldash9x/vision-assistant/internal/vision"
	"go.uber.org/zap"
)

// Backend is the OS surface the assistant drives: screen capture plus raw
// input events.
type Backend interface {
	vision.Screen
	humanoid.Executor
}

// Define function variables for dependency injection/mocking in tests.
var (
	newBackend = func(logger *zap.Logger) Backend { return desktop.NewRobot(logger) }
	// armAbort installs the global emergency stop hotkey.
	armAbort = func(ctx context.Context, onAbort func(), logger *zap.Logger) {
		go desktop.AbortHotkey(ctx, desktop.DefaultAbortKeys, onAbort, logger)
	}
)

// app is the wired assistant of one command invocation.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	finder    *templates.Finder
	assistant *emr.Assistant
	emrSystem string
}

// newApp wires the desktop backend, aligner, input controller and assistant,
// then loads the EMR system.
func newApp(cfg *config.Config, emrSystem string, logger *zap.Logger) (*app, error) {
	backend := newBackend(logger)
	aligner, err := vision.NewAligner(backend, cfg.Aligner, cfg.Screen, logger)
	if err != nil {
		return nil, err
	}
	input := humanoid.New(cfg.Input, backend, logger)
	assistant := emr.NewAssistant(cfg, aligner, input, emrdata.New(nil), logger)

	if emrSystem == "" {
		emrSystem = cfg.Templates.DefaultEMR
	}
	finder := templates.NewFinder(cfg.Templates)
	path, err := finder.EMRPath(emrSystem)
	if err != nil {
		return nil, fmt.Errorf("failed to locate templates for %s: %w", emrSystem, err)
	}
	if err := assistant.LoadEMR(path); err != nil {
		return nil, err
	}

	size := aligner.ScreenSize()
	logger.Info("Assistant ready",
		zap.String("emr", emrSystem),
		zap.String("templates", path),
		zap.Int("screen_width", size.X),
		zap.Int("screen_height", size.Y),
		zap.String("modifier", input.Modifier()))
	return &app{cfg: cfg, logger: logger, finder: finder, assistant: assistant, emrSystem: emrSystem}, nil
}
