// File: internal/workflow/selection.go
package workflow

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// SelectionOption is the keyboard navigation that picks one dropdown entry.
type SelectionOption struct {
	Key     string
	Presses int
}

// UnmarshalJSON decodes the `[key, count]` pair form.
func (o *SelectionOption) UnmarshalJSON(data []byte) error {
	var pair []jsoniter.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("selection option must be a [key, count] pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("selection option must be a [key, count] pair, got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &o.Key); err != nil {
		return fmt.Errorf("selection key: %w", err)
	}
	if err := json.Unmarshal(pair[1], &o.Presses); err != nil {
		return fmt.Errorf("selection count: %w", err)
	}
	// Zero presses keeps the dropdown's preselected entry.
	if o.Key == "" || o.Presses < 0 {
		return fmt.Errorf("selection option [%q, %d] is invalid", o.Key, o.Presses)
	}
	return nil
}

// SelectionOptions maps a data value to its dropdown navigation.
type SelectionOptions map[string]SelectionOption

// Lookup returns the navigation for value.
func (s SelectionOptions) Lookup(value string) (SelectionOption, error) {
	o, ok := s[value]
	if !ok {
		return SelectionOption{}, fmt.Errorf("no selection option for value %q", value)
	}
	return o, nil
}

// LoadSelectionOptions reads a `<field>.json` table.
func LoadSelectionOptions(path string) (SelectionOptions, error) {
	data, err := readJSONC(path)
	if err != nil {
		return nil, err
	}
	var opts SelectionOptions
	if err := json.Unmarshal(data, &opts); err != nil {
		return nil, fmt.Errorf("invalid selection options %s: %w", path, err)
	}
	return opts, nil
}
