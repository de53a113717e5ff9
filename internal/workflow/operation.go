// File: internal/workflow/operation.go
package workflow

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// ErrUnknownOperation is returned for a task method outside the known set.
var ErrUnknownOperation = errors.New("unknown operation")

// Operation is one scripted assistant call in a task. The set of
// implementations is closed.
type Operation interface {
	Method() string
	isOperation()
}

type op struct{}

func (op) isOperation() {}

type OpInitializeTask struct {
	op
	TaskName string `json:"task_name"`
}

type OpChangePageInfo struct {
	op
	TargetPage string `json:"target_page"`
}

type OpChangePageWithinTask struct {
	op
	TargetPage string `json:"target_page"`
}

type OpChangeToSubPage struct {
	op
	TargetButton string `json:"target_button"`
}

type OpToNormalScale struct{ op }

type OpBackToTop struct{ op }

type OpCheckLoading struct {
	op
	TemplateName string `json:"template_name"`
	// Attempts overrides the configured attempt count when positive.
	Attempts     int  `json:"attempt_time"`
	CloseWindow  bool `json:"close_window"`
	SelectResult bool `json:"select_result"`
}

type OpWait struct {
	op
	Seconds Seconds `json:"seconds"`
}

type OpExecutePage struct{ op }

func (OpInitializeTask) Method() string       { return "initialize_task" }
func (OpChangePageInfo) Method() string       { return "change_page_info" }
func (OpChangePageWithinTask) Method() string { return "change_page_within_task" }
func (OpChangeToSubPage) Method() string      { return "change_to_sub_page" }
func (OpToNormalScale) Method() string        { return "to_normal_scale" }
func (OpBackToTop) Method() string            { return "back_to_top" }
func (OpCheckLoading) Method() string         { return "check_loading" }
func (OpWait) Method() string                 { return "wait" }
func (OpExecutePage) Method() string          { return "execute_page" }

// operationParams lists each method's parameters in positional order.
var operationParams = map[string][]string{
	"initialize_task":         {"task_name"},
	"change_page_info":        {"target_page"},
	"change_page_within_task": {"target_page"},
	"change_to_sub_page":      {"target_button"},
	"to_normal_scale":         nil,
	"back_to_top":             nil,
	"check_loading":           {"template_name", "attempt_time", "close_window", "select_result"},
	"wait":                    {"seconds"},
	"execute_page":            nil,
}

type rawOperation struct {
	Method string                         `json:"method"`
	Args   []jsoniter.RawMessage          `json:"args"`
	Kwargs map[string]jsoniter.RawMessage `json:"kwargs"`
}

// ParseOperation decodes `{method, args, kwargs}`. Positional args bind to
// parameters in declaration order, kwargs by name.
func ParseOperation(raw []byte) (Operation, error) {
	var r rawOperation
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("operation must be an object: %w", err)
	}
	names, ok := operationParams[r.Method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, r.Method)
	}
	if len(r.Args) > len(names) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", r.Method, len(names), len(r.Args))
	}

	bound := make(map[string]jsoniter.RawMessage, len(names))
	for i, a := range r.Args {
		bound[names[i]] = a
	}
	for k, v := range r.Kwargs {
		if !slices.Contains(names, k) {
			return nil, fmt.Errorf("%s got an unexpected keyword argument %q", r.Method, k)
		}
		if _, dup := bound[k]; dup {
			return nil, fmt.Errorf("%s got multiple values for argument %q", r.Method, k)
		}
		bound[k] = v
	}
	params, err := json.Marshal(bound)
	if err != nil {
		return nil, err
	}

	switch r.Method {
	case "initialize_task":
		var v OpInitializeTask
		return bindRequired(r.Method, params, &v, "task_name", &v.TaskName)
	case "change_page_info":
		var v OpChangePageInfo
		return bindRequired(r.Method, params, &v, "target_page", &v.TargetPage)
	case "change_page_within_task":
		var v OpChangePageWithinTask
		return bindRequired(r.Method, params, &v, "target_page", &v.TargetPage)
	case "change_to_sub_page":
		var v OpChangeToSubPage
		return bindRequired(r.Method, params, &v, "target_button", &v.TargetButton)
	case "check_loading":
		var v OpCheckLoading
		return bindRequired(r.Method, params, &v, "template_name", &v.TemplateName)
	case "wait":
		v := OpWait{Seconds: 1}
		if err := json.Unmarshal(params, &v); err != nil {
			return nil, fmt.Errorf("%s: %w", r.Method, err)
		}
		if v.Seconds < 0 {
			return nil, fmt.Errorf("%s: seconds must not be negative", r.Method)
		}
		return v, nil
	case "to_normal_scale":
		return OpToNormalScale{}, nil
	case "back_to_top":
		return OpBackToTop{}, nil
	default:
		return OpExecutePage{}, nil
	}
}

// bindRequired decodes params into v and checks that the named string
// parameter was given.
func bindRequired[T Operation](method string, params []byte, v *T, name string, field *string) (Operation, error) {
	if err := json.Unmarshal(params, v); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if strings.TrimSpace(*field) == "" {
		return nil, fmt.Errorf("%s: missing required argument %q", method, name)
	}
	return *v, nil
}
