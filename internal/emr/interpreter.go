// internal/emr/interpreter.go
package emr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/vision-assistant/internal/emrdata"
	"github.com/xkilldash9x/vision-assistant/internal/humanoid"
	"github.com/xkilldash9x/vision-assistant/internal/workflow"
	"go.uber.org/zap"
)

// CheckLoadingRequest waits for a general template to appear.
type CheckLoadingRequest struct {
	Template string
	// Attempts overrides the configured attempt count when positive.
	Attempts     int
	CloseWindow  bool
	SelectResult bool
}

// Host provides the assistant-level operations that some actions need.
type Host interface {
	BackToTop(ctx context.Context) error
	CheckLoading(ctx context.Context, req CheckLoadingRequest) error
	SelectionOptions(field string) (workflow.SelectionOptions, error)
}

// Interpreter executes workflow actions against the input controller.
type Interpreter struct {
	input    humanoid.Controller
	data     *emrdata.Record
	host     Host
	modifier string
	pause    time.Duration
	logger   *zap.Logger
}

// NewInterpreter creates an interpreter. pause is inserted after every
// top-level action of a field.
func NewInterpreter(input humanoid.Controller, data *emrdata.Record, host Host, pause time.Duration, logger *zap.Logger) *Interpreter {
	return &Interpreter{
		input:    input,
		data:     data,
		host:     host,
		modifier: input.Modifier(),
		pause:    pause,
		logger:   logger.Named("interpreter"),
	}
}

// Field is the execution scope of one step.
type Field struct {
	Name string
	// X and Y are the resolved coordinate, valid when Located is set.
	X, Y    int
	Located bool
}

// element is the current item of a loop.
type element struct {
	value any
	tuple bool
}

// RunField executes a step's actions in order. A get_selection_options
// action loads the field's option table, which the step's final
// keyboard_press then consumes.
func (in *Interpreter) RunField(ctx context.Context, field Field, actions []workflow.Action) error {
	var (
		value   any
		options workflow.SelectionOptions
	)
	for j, action := range actions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, ok := action.(workflow.GetSelectionOptions); ok {
			opts, err := in.host.SelectionOptions(field.Name)
			if err != nil {
				return ActionError(string(action.Kind()), fmt.Errorf("error checking selection options: %w", err))
			}
			options = opts
			continue
		}

		if name, ok := action.Bound(); ok {
			v, _ := in.data.GetValue(name)
			if emrdata.IsEmpty(v) {
				return ActionError(string(action.Kind()), fmt.Errorf("missing value: %s", name))
			}
			value = v
		}

		if press, ok := action.(workflow.KeyboardPress); ok && options != nil && j == len(actions)-1 {
			key, _ := emrdata.AsString(value)
			opt, err := options.Lookup(key)
			if err != nil {
				return ActionError(string(action.Kind()), err)
			}
			options = nil
			if opt.Presses == 0 {
				continue
			}
			action = workflow.KeyboardPress{Binding: press.Binding, Key: opt.Key, Presses: opt.Presses, Interval: press.Interval}
		}

		if err := in.Execute(ctx, field, action, value); err != nil {
			return err
		}
		if err := in.input.Pause(ctx, in.pause); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs one action outside of any loop. value is the field's bound
// data value, if any.
func (in *Interpreter) Execute(ctx context.Context, field Field, action workflow.Action, value any) error {
	if err := in.execute(ctx, field, action, value, nil); err != nil {
		var e *Error
		if errors.As(err, &e) || ctx.Err() != nil {
			return err
		}
		return ActionError(string(action.Kind()), fmt.Errorf("failed to execute %s: %w", action.Kind(), err))
	}
	return nil
}

func (in *Interpreter) execute(ctx context.Context, field Field, action workflow.Action, value any, elem *element) error {
	in.logger.Debug("Executing action", zap.String("field", field.Name), zap.String("action", string(action.Kind())))

	switch a := action.(type) {
	case workflow.MouseMove:
		x, y := field.X, field.Y
		switch {
		case a.X != nil && a.Y != nil:
			x, y = *a.X, *a.Y
		case !field.Located:
			return fmt.Errorf("no coordinate for %s", field.Name)
		}
		return in.input.MoveTo(ctx, x, y, a.Smooth)

	case workflow.MouseClick:
		button, ok := humanoid.ParseButton(a.Button)
		if !ok {
			return fmt.Errorf("unknown mouse button %q", a.Button)
		}
		return in.input.Click(ctx, button, a.Clicks, a.Interval.Duration())

	case workflow.KeyboardWrite:
		text, err := writeText(a, value, elem)
		if err != nil {
			return err
		}
		return in.input.Write(ctx, text, a.Interval.Duration(), a.CanPaste)

	case workflow.KeyboardPress:
		if a.Key == "" {
			return errors.New("keyboard_press requires a key")
		}
		return in.input.Press(ctx, a.Key, a.Presses, a.Interval.Duration())

	case workflow.KeyboardHotkey:
		return in.input.Hotkey(ctx, a.ResolveKeys(in.modifier), a.Presses, a.Interval.Duration())

	case workflow.KeyboardReleaseAllKeys:
		return in.input.ReleaseAll(ctx)

	case workflow.MouseScroll:
		return in.input.Scroll(ctx, a.Clicks)

	case workflow.LoopArray:
		return in.loop(ctx, field, a.Loop, loopValue(value, elem), false)

	case workflow.LoopTupleArray:
		return in.loop(ctx, field, a.Loop, loopValue(value, elem), true)

	case workflow.Wait:
		return in.input.Pause(ctx, a.Seconds.Duration())

	case workflow.CheckLoading:
		return in.host.CheckLoading(ctx, CheckLoadingRequest{
			Template:     a.TemplateName,
			CloseWindow:  a.CloseWindow,
			SelectResult: a.SelectResult,
		})

	case workflow.BackToTop:
		return in.host.BackToTop(ctx)

	case workflow.GetSelectionOptions:
		return errors.New("get_selection_options is only valid as a step action")
	}
	return fmt.Errorf("%w: %T", workflow.ErrUnknownAction, action)
}

// loop runs the loop body once per element. The last pass stops short of
// the trailing SkipInLastLoop actions.
func (in *Interpreter) loop(ctx context.Context, field Field, l workflow.Loop, value any, tuple bool) error {
	items, ok := emrdata.AsList(value)
	if !ok {
		return fmt.Errorf("loop value for %s is not a list", field.Name)
	}
	kind := "Array"
	if tuple {
		kind = "Tuple array"
	}
	for i, item := range items {
		limit := l.Limit(i, len(items))
		for _, inner := range l.LoopActions[:limit] {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := in.execute(ctx, field, inner, item, &element{value: item, tuple: tuple}); err != nil {
				return fmt.Errorf("%s loop failed: %w", kind, err)
			}
		}
	}
	return nil
}

// loopValue picks the collection a loop iterates: the enclosing loop's
// element when nested, otherwise the field value.
func loopValue(value any, elem *element) any {
	if elem != nil {
		return elem.value
	}
	return value
}

// writeText picks what keyboard_write types: the loop element inside a
// loop, then the bound data value, then a literal text.
func writeText(a workflow.KeyboardWrite, value any, elem *element) (string, error) {
	if elem != nil {
		if elem.tuple {
			return emrdata.AsTuple(elem.value, a.TupleIndex)
		}
		if s, ok := emrdata.AsString(elem.value); ok {
			return s, nil
		}
		return "", fmt.Errorf("loop element %v is not text", elem.value)
	}
	if value == nil {
		if a.Text != nil {
			return *a.Text, nil
		}
		return "", errors.New("keyboard_write has no text and no data value")
	}
	if _, ok := value.(map[string]any); ok {
		return emrdata.Lookup(value, a.TextKey)
	}
	if s, ok := emrdata.AsString(value); ok {
		return s, nil
	}
	return "", fmt.Errorf("value %v is not text", value)
}
