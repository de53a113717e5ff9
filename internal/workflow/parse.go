// File: internal/workflow/parse.go
package workflow

import (
	"errors"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/jsonc"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrUnknownAction is returned for an action name outside the known set.
var ErrUnknownAction = errors.New("unknown action")

// readJSONC reads a workflow file, tolerating comments and trailing commas.
func readJSONC(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jsonc.ToJSON(raw), nil
}

// LoadSteps reads a page's steps.json.
func LoadSteps(path string) (Steps, error) {
	data, err := readJSONC(path)
	if err != nil {
		return nil, err
	}
	steps, err := ParseSteps(data)
	if err != nil {
		return nil, fmt.Errorf("invalid steps file %s: %w", path, err)
	}
	return steps, nil
}

// ParseSteps decodes a steps document. Steps keep the order in which they
// are declared in the object.
func ParseSteps(data []byte) (Steps, error) {
	iter := jsoniter.ParseBytes(json, data)
	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return nil, errors.New("steps document must be a JSON object")
	}

	var (
		steps Steps
		seen  = make(map[string]struct{})
		err   error
	)
	iter.ReadObjectCB(func(it *jsoniter.Iterator, name string) bool {
		raw := it.SkipAndReturnBytes()
		if it.Error != nil {
			return false
		}
		if _, dup := seen[name]; dup {
			err = fmt.Errorf("step %q declared twice", name)
			return false
		}
		seen[name] = struct{}{}

		var step Step
		if step, err = parseStep(name, raw); err != nil {
			return false
		}
		steps = append(steps, step)
		return true
	})
	if err != nil {
		return nil, err
	}
	if iter.Error != nil {
		return nil, fmt.Errorf("malformed steps document: %w", iter.Error)
	}
	return steps, nil
}

func parseStep(name string, raw []byte) (Step, error) {
	var body struct {
		RequireData []string              `json:"require_data"`
		Actions     []jsoniter.RawMessage `json:"actions"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return Step{}, fmt.Errorf("step %q: %w", name, err)
	}
	actions, err := parseActions(body.Actions)
	if err != nil {
		return Step{}, fmt.Errorf("step %q: %w", name, err)
	}
	return Step{Name: name, RequireData: body.RequireData, Actions: actions}, nil
}

func parseActions(raws []jsoniter.RawMessage) ([]Action, error) {
	actions := make([]Action, 0, len(raws))
	for i, raw := range raws {
		a, err := ParseAction(raw)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i+1, err)
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// ParseAction decodes one `[name, params]` pair. The params object may be
// omitted. Defaults are applied for every parameter not given.
func ParseAction(raw []byte) (Action, error) {
	var pair []jsoniter.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil {
		return nil, fmt.Errorf("action must be a [name, params] array: %w", err)
	}
	if len(pair) == 0 || len(pair) > 2 {
		return nil, fmt.Errorf("action must be a [name, params] array, got %d elements", len(pair))
	}
	var name string
	if err := json.Unmarshal(pair[0], &name); err != nil {
		return nil, fmt.Errorf("action name must be a string: %w", err)
	}
	params := []byte("{}")
	if len(pair) == 2 && string(pair[1]) != "null" {
		params = pair[1]
	}

	switch Kind(name) {
	case KindMouseMove:
		a := MouseMove{Smooth: true}
		return decode(params, &a)
	case KindMouseClick:
		a := MouseClick{Button: "left", Clicks: 1, Interval: 0.1}
		return decode(params, &a)
	case KindKeyboardWrite:
		a := KeyboardWrite{Interval: 0.01, CanPaste: true}
		return decode(params, &a)
	case KindKeyboardPress:
		a := KeyboardPress{Presses: 1, Interval: 0.1}
		return decode(params, &a)
	case KindKeyboardHotkey:
		a := KeyboardHotkey{Presses: 1, Interval: 0.1}
		return decode(params, &a)
	case KindKeyboardReleaseAllKeys:
		return decode(params, &KeyboardReleaseAllKeys{})
	case KindMouseScroll:
		return decode(params, &MouseScroll{})
	case KindLoopArray:
		b, l, err := parseLoop(params)
		if err != nil {
			return nil, err
		}
		return LoopArray{Binding: b, Loop: l}, nil
	case KindLoopTupleArray:
		b, l, err := parseLoop(params)
		if err != nil {
			return nil, err
		}
		return LoopTupleArray{Binding: b, Loop: l}, nil
	case KindWait:
		return decode(params, &Wait{Seconds: 1})
	case KindCheckLoading:
		return decode(params, &CheckLoading{})
	case KindBackToTop:
		return decode(params, &BackToTop{})
	case KindGetSelectionOptions:
		return decode(params, &GetSelectionOptions{})
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, name)
}

// decode fills a pre-defaulted action from its params object and returns
// it by value.
func decode[T Action](params []byte, a *T) (Action, error) {
	if err := json.Unmarshal(params, a); err != nil {
		return nil, fmt.Errorf("invalid %s params: %w", (*a).Kind(), err)
	}
	if err := validate(*a); err != nil {
		return nil, fmt.Errorf("invalid %s params: %w", (*a).Kind(), err)
	}
	return *a, nil
}

func parseLoop(params []byte) (Binding, Loop, error) {
	var body struct {
		Binding
		LoopActions    []jsoniter.RawMessage `json:"loop_actions"`
		SkipInLastLoop int                   `json:"skip_in_last_loop"`
	}
	if err := json.Unmarshal(params, &body); err != nil {
		return Binding{}, Loop{}, fmt.Errorf("invalid loop params: %w", err)
	}
	if body.SkipInLastLoop < 0 || body.SkipInLastLoop > len(body.LoopActions) {
		return Binding{}, Loop{}, fmt.Errorf("skip_in_last_loop %d out of range for %d loop actions",
			body.SkipInLastLoop, len(body.LoopActions))
	}
	actions, err := parseActions(body.LoopActions)
	if err != nil {
		return Binding{}, Loop{}, fmt.Errorf("loop: %w", err)
	}
	return body.Binding, Loop{LoopActions: actions, SkipInLastLoop: body.SkipInLastLoop}, nil
}

func validate(a Action) error {
	switch a := a.(type) {
	case MouseClick:
		if a.Clicks <= 0 {
			return fmt.Errorf("clicks must be positive")
		}
	case KeyboardPress:
		if a.Presses <= 0 {
			return fmt.Errorf("presses must be positive")
		}
	case KeyboardHotkey:
		if len(a.Keys) == 0 {
			return fmt.Errorf("keys must not be empty")
		}
		if a.Presses <= 0 {
			return fmt.Errorf("presses must be positive")
		}
	case KeyboardWrite:
		if a.TupleIndex < 0 {
			return fmt.Errorf("tuple_index must not be negative")
		}
	case Wait:
		if a.Seconds < 0 {
			return fmt.Errorf("seconds must not be negative")
		}
	}
	return nil
}
