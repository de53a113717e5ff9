// internal/emr/assistant.go
package emr

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/xkilldash9x/vision-assistant/internal/config"
	"github.com/xkilldash9x/vision-assistant/internal/emrdata"
	"github.com/xkilldash9x/vision-assistant/internal/humanoid"
	"github.com/xkilldash9x/vision-assistant/internal/vision"
	"github.com/xkilldash9x/vision-assistant/internal/workflow"
	"go.uber.org/zap"
)

// State is a phase of the assistant's task state machine.
type State int

const (
	StateIdle State = iota
	StateConfigLoaded
	StatePageSelected
	StateCoordinatesResolved
	StateExecutingField
	StatePageComplete
	StateTaskComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConfigLoaded:
		return "ConfigLoaded"
	case StatePageSelected:
		return "PageSelected"
	case StateCoordinatesResolved:
		return "CoordinatesResolved"
	case StateExecutingField:
		return "ExecutingField"
	case StatePageComplete:
		return "PageComplete"
	case StateTaskComplete:
		return "TaskComplete"
	case StateFailed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Snapshot is the observable state of an assistant.
type Snapshot struct {
	State State
	Page  string
	// Field is the 1-based index of the executing field.
	Field int
}

// eventBuffer bounds how far a task may run ahead of its consumer.
const eventBuffer = 16

// Assistant drives one EMR system. It owns the screen while a task runs, so
// an Assistant runs at most one task at a time.
type Assistant struct {
	cfg         *config.Config
	aligner     *vision.Aligner
	input       humanoid.Controller
	data        *emrdata.Record
	resolver    *Resolver
	interpreter *Interpreter
	logger      *zap.Logger

	run sync.Mutex

	mu         sync.Mutex
	snap       Snapshot
	layout     *Layout
	imagesDir  string
	configsDir string
	coords     map[string]FieldCoordinate
}

// NewAssistant wires an assistant over the shared aligner and input
// controller. data is read by the actions and owned by the caller.
func NewAssistant(cfg *config.Config, aligner *vision.Aligner, input humanoid.Controller, data *emrdata.Record, logger *zap.Logger) *Assistant {
	a := &Assistant{
		cfg:     cfg,
		aligner: aligner,
		input:   input,
		data:    data,
		logger:  logger.Named("assistant"),
	}
	a.resolver = NewResolver(aligner, input, cfg.Resolver, cfg.Debug.FramesDir, logger)
	a.interpreter = NewInterpreter(input, data, a, cfg.Input.ActionPause, logger)
	return a
}

// State returns the current snapshot.
func (a *Assistant) State() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap
}

func (a *Assistant) setState(s State, field int) {
	a.mu.Lock()
	a.snap.State = s
	a.snap.Field = field
	a.mu.Unlock()
}

// Data returns the record the actions read.
func (a *Assistant) Data() *emrdata.Record { return a.data }

// Coordinates returns a copy of the current page's resolved fields.
func (a *Assistant) Coordinates() map[string]FieldCoordinate {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]FieldCoordinate, len(a.coords))
	for k, v := range a.coords {
		out[k] = v
	}
	return out
}

// LoadEMR switches to the EMR system rooted at root and selects its general
// page.
func (a *Assistant) LoadEMR(root string) error {
	layout, err := LoadLayout(root)
	if err != nil {
		a.logger.Error("Failed to load EMR configuration", zap.String("root", root), zap.Error(err))
		return err
	}

	a.mu.Lock()
	a.layout = layout
	a.coords = nil
	a.mu.Unlock()
	a.aligner.ResetTemplates()

	if err := a.changePageInfo(workflow.GeneralPage); err != nil {
		return err
	}
	a.setState(StateConfigLoaded, 0)
	a.logger.Info("EMR configuration loaded", zap.String("root", layout.Root), zap.Int("pages", len(layout.Config.Pages)))
	return nil
}

// Layout returns the loaded EMR layout, or nil.
func (a *Assistant) Layout() *Layout {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.layout
}

// Run executes a task's operations and streams progress. The channel is
// closed when the task ends; its last event is either the success message
// or a failed event. Cancelling ctx stops the task between fields and
// operations.
func (a *Assistant) Run(ctx context.Context, task string) <-chan Event {
	ch := make(chan Event, eventBuffer)
	go func() {
		defer close(ch)
		a.run.Lock()
		defer a.run.Unlock()

		emit := channelEmitter(ctx, ch, a.logger)
		if err := a.runTask(ctx, task, emit); err != nil {
			a.setState(StateFailed, 0)
			a.logger.Error("Task failed", zap.String("task", task), zap.Error(err))
			if emit(critical(fmt.Sprintf("Task execution failed: %v", err))) != nil {
				return
			}
			_ = emit(Event{Status: StatusFailed, Message: fmt.Sprintf("Task '%s' failed", task), Error: err.Error()})
		}
	}()
	return ch
}

func (a *Assistant) runTask(ctx context.Context, name string, emit Emitter) error {
	layout := a.Layout()
	if layout == nil {
		return ConfigurationError(name, errors.New("no EMR system loaded"))
	}
	task, err := layout.Config.Task(name)
	if err != nil {
		return ConfigurationError(name, err)
	}
	if err := a.changePageInfo(task.InitialPage); err != nil {
		return err
	}
	if err := a.input.Pause(ctx, a.cfg.Input.ActionPause); err != nil {
		return err
	}
	if err := emit(standard(fmt.Sprintf("Starting task: %s", name))); err != nil {
		return err
	}

	for _, op := range task.Operations {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(standard(fmt.Sprintf("Executing: %s", op.Method()))); err != nil {
			return err
		}
		if err := a.runOperation(ctx, op, emit); err != nil {
			a.logger.Error("Operation failed", zap.String("method", op.Method()), zap.Error(err))
			return err
		}
		if err := a.input.Pause(ctx, a.cfg.Input.ActionPause); err != nil {
			return err
		}
	}

	a.setState(StateTaskComplete, 0)
	return emit(standard(fmt.Sprintf("Task '%s' completed successfully", name)))
}

// ExecutePage resolves the current page and fills every configured field.
func (a *Assistant) ExecutePage(ctx context.Context, emit Emitter) error {
	if err := emit(standard("Starting page actions...")); err != nil {
		return err
	}
	a.setState(StatePageSelected, 0)
	page, imagesDir, configsDir := a.pageDirs()

	if err := emit(standard("Initializing scrolling parameters...")); err != nil {
		return err
	}
	frames, err := a.resolver.CaptureFrames(ctx, page)
	if err != nil {
		_ = emit(critical(fmt.Sprintf("Failed to initialize scrolling: %v", err)))
		return err
	}

	if err := emit(standard("Detecting page elements...")); err != nil {
		return err
	}
	coords, err := a.resolver.Resolve(ctx, imagesDir, frames)
	if err != nil {
		_ = emit(critical(fmt.Sprintf("Failed to detect page elements: %v", err)))
		return err
	}
	a.mu.Lock()
	a.coords = coords
	a.mu.Unlock()
	a.setState(StateCoordinatesResolved, 0)

	steps, err := workflow.LoadSteps(filepath.Join(configsDir, "steps.json"))
	if err != nil {
		err = ConfigurationError("steps.json", err)
		_ = emit(critical(fmt.Sprintf("Failed to load step configuration: %v", err)))
		return err
	}

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		a.setState(StateExecutingField, i+1)
		if err := emit(standard(fmt.Sprintf("Processing field (%d/%d): %s", i+1, len(steps), step.Name))); err != nil {
			return err
		}

		out := a.executeField(ctx, step, coords)
		switch {
		case out.IsFatal():
			return out.Err()
		case out.IsRecoverable():
			if err := emit(critical(out.Err().Error())); err != nil {
				return err
			}
		}
	}

	if err := a.resolver.BackToTop(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := emit(critical(fmt.Sprintf("Failed to reset page position: %v", err))); err != nil {
			return err
		}
	}
	a.setState(StatePageComplete, 0)
	return emit(standard("Page completed successfully"))
}

// ResolvePage selects page and locates its fields without executing any
// step.
func (a *Assistant) ResolvePage(ctx context.Context, page string) (map[string]FieldCoordinate, error) {
	a.run.Lock()
	defer a.run.Unlock()

	if err := a.changePageInfo(page); err != nil {
		return nil, err
	}
	a.setState(StatePageSelected, 0)
	_, imagesDir, _ := a.pageDirs()

	frames, err := a.resolver.CaptureFrames(ctx, page)
	if err != nil {
		return nil, err
	}
	coords, err := a.resolver.Resolve(ctx, imagesDir, frames)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.coords = coords
	a.mu.Unlock()
	a.setState(StateCoordinatesResolved, 0)
	return a.Coordinates(), nil
}

// executeField runs one step. Missing coordinates, missing data and action
// failures are recoverable; the message of a recoverable outcome is the
// event text.
func (a *Assistant) executeField(ctx context.Context, step workflow.Step, coords map[string]FieldCoordinate) Outcome {
	coord, ok := coords[step.Name]
	if !ok {
		return Recoverable(step.Name, fmt.Errorf("No element found for configured step: %s", step.Name))
	}
	if !a.data.CheckActionData(step.RequireData) {
		return Recoverable(step.Name, fmt.Errorf("Missing %v for action: %s", step.RequireData, step.Name))
	}
	if err := a.resolver.ScrollTo(ctx, coord.ScrollOffset); err != nil {
		if out := classify(ctx, step.Name, err); out.IsFatal() {
			return out
		}
		return Recoverable(step.Name, fmt.Errorf("Failed to get coordinates for %s: %w", step.Name, err))
	}

	field := Field{Name: step.Name, X: coord.X, Y: coord.Y, Located: true}
	if err := a.interpreter.RunField(ctx, field, step.Actions); err != nil {
		if out := classify(ctx, step.Name, err); out.IsFatal() {
			return out
		}
		return Recoverable(step.Name, fmt.Errorf("Action failed for %s: %w", step.Name, err))
	}
	return Done
}

func (a *Assistant) pageDirs() (page, images, configs string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap.Page, a.imagesDir, a.configsDir
}

// changePageInfo selects page and drops the previous page's coordinates.
func (a *Assistant) changePageInfo(page string) error {
	layout := a.Layout()
	if layout == nil {
		return ConfigurationError(page, errors.New("no EMR system loaded"))
	}
	images, configs, err := layout.PageDirs(page)
	if err != nil {
		return ActionError("change_page_info", fmt.Errorf("error changing page info: %w", err))
	}
	a.mu.Lock()
	a.snap.Page = page
	a.imagesDir = images
	a.configsDir = configs
	a.coords = nil
	a.mu.Unlock()
	return nil
}

// SelectionOptions implements Host.
func (a *Assistant) SelectionOptions(field string) (workflow.SelectionOptions, error) {
	_, _, configs := a.pageDirs()
	return workflow.LoadSelectionOptions(filepath.Join(configs, field+".json"))
}

// BackToTop implements Host.
func (a *Assistant) BackToTop(ctx context.Context) error {
	return a.resolver.BackToTop(ctx)
}
