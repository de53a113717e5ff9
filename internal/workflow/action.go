// File: internal/workflow/action.go
// Package workflow models the declarative EMR workflow files: the per-page
// steps.json action lists, the general config.json with its pages, tasks
// and routes, and the per-field selection option tables.
package workflow

import (
	"time"
)

// Kind is the wire name of an action.
type Kind string

const (
	KindMouseMove              Kind = "mouse_move"
	KindMouseClick             Kind = "mouse_click"
	KindKeyboardWrite          Kind = "keyboard_write"
	KindKeyboardPress          Kind = "keyboard_press"
	KindKeyboardHotkey         Kind = "keyboard_hotkey"
	KindKeyboardReleaseAllKeys Kind = "keyboard_release_all_keys"
	KindMouseScroll            Kind = "mouse_scroll"
	KindLoopArray              Kind = "loop_array"
	KindLoopTupleArray         Kind = "loop_tuple_array"
	KindWait                   Kind = "wait"
	KindCheckLoading           Kind = "check_loading"
	KindBackToTop              Kind = "back_to_top"
	KindGetSelectionOptions    Kind = "get_selection_options"
)

// ModifierKey is the placeholder hotkey entry that stands for the
// platform's shortcut modifier.
const ModifierKey = "<MODIFIER_KEY>"

// Action is one entry of a step's action list. The set of implementations
// is closed; consumers switch over the concrete types.
type Action interface {
	Kind() Kind
	// Bound returns the data name the action reads its value from, if any.
	Bound() (string, bool)
	isAction()
}

// Seconds is a duration written in JSON as fractional seconds.
type Seconds float64

// Duration converts s to a time.Duration.
func (s Seconds) Duration() time.Duration {
	return time.Duration(float64(s) * float64(time.Second))
}

// Binding is embedded by every action. A non-empty DataName makes the
// action read its field value from the EMR data record.
type Binding struct {
	DataName string `json:"data_name,omitempty"`
}

func (b Binding) Bound() (string, bool) { return b.DataName, b.DataName != "" }
func (Binding) isAction()               {}

type MouseMove struct {
	Binding
	// X and Y are explicit coordinates. When either is nil the pointer goes
	// to the field's resolved coordinate.
	X      *int `json:"x,omitempty"`
	Y      *int `json:"y,omitempty"`
	Smooth bool `json:"smooth"`
}

type MouseClick struct {
	Binding
	Button   string  `json:"button"`
	Clicks   int     `json:"clicks"`
	Interval Seconds `json:"interval"`
}

type KeyboardWrite struct {
	Binding
	// Text is a literal to type instead of the bound value.
	Text *string `json:"text,omitempty"`
	// TextKey selects the entry of an object-shaped value.
	TextKey string `json:"text_key,omitempty"`
	// TupleIndex selects the element of a tuple inside loop_tuple_array.
	TupleIndex int     `json:"tuple_index"`
	Interval   Seconds `json:"interval"`
	CanPaste   bool    `json:"can_paste"`
}

type KeyboardPress struct {
	Binding
	Key      string  `json:"key"`
	Presses  int     `json:"presses"`
	Interval Seconds `json:"interval"`
}

type KeyboardHotkey struct {
	Binding
	Keys     []string `json:"keys"`
	Presses  int      `json:"presses"`
	Interval Seconds  `json:"interval"`
}

// ResolveKeys substitutes the modifier placeholder.
func (a KeyboardHotkey) ResolveKeys(modifier string) []string {
	keys := make([]string, len(a.Keys))
	for i, k := range a.Keys {
		if k == ModifierKey {
			k = modifier
		}
		keys[i] = k
	}
	return keys
}

type KeyboardReleaseAllKeys struct {
	Binding
}

type MouseScroll struct {
	Binding
	Clicks int `json:"clicks"`
}

// Loop is the shared body of the two loop kinds. On the final iteration the
// trailing SkipInLastLoop actions are not run.
type Loop struct {
	LoopActions    []Action
	SkipInLastLoop int
}

// Limit returns how many loop actions run on iteration i of n.
func (l Loop) Limit(i, n int) int {
	if i == n-1 {
		return max(0, len(l.LoopActions)-l.SkipInLastLoop)
	}
	return len(l.LoopActions)
}

type LoopArray struct {
	Binding
	Loop
}

type LoopTupleArray struct {
	Binding
	Loop
}

type Wait struct {
	Binding
	Seconds Seconds `json:"seconds"`
}

type CheckLoading struct {
	Binding
	TemplateName string `json:"template_name"`
	CloseWindow  bool   `json:"close_window"`
	SelectResult bool   `json:"select_result"`
}

type BackToTop struct {
	Binding
}

type GetSelectionOptions struct {
	Binding
}

func (MouseMove) Kind() Kind              { return KindMouseMove }
func (MouseClick) Kind() Kind             { return KindMouseClick }
func (KeyboardWrite) Kind() Kind          { return KindKeyboardWrite }
func (KeyboardPress) Kind() Kind          { return KindKeyboardPress }
func (KeyboardHotkey) Kind() Kind         { return KindKeyboardHotkey }
func (KeyboardReleaseAllKeys) Kind() Kind { return KindKeyboardReleaseAllKeys }
func (MouseScroll) Kind() Kind            { return KindMouseScroll }
func (LoopArray) Kind() Kind              { return KindLoopArray }
func (LoopTupleArray) Kind() Kind         { return KindLoopTupleArray }
func (Wait) Kind() Kind                   { return KindWait }
func (CheckLoading) Kind() Kind           { return KindCheckLoading }
func (BackToTop) Kind() Kind              { return KindBackToTop }
func (GetSelectionOptions) Kind() Kind    { return KindGetSelectionOptions }

// Step is one configured field of a page.
type Step struct {
	Name        string
	RequireData []string
	Actions     []Action
}

// Steps is a page's step list in declaration order.
type Steps []Step
