// internal/taskqueue/message.go
package taskqueue

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/vision-assistant/internal/emr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SelectedEMRKey switches the EMR system for one data item.
const SelectedEMRKey = "selected_emr"

// Message is an incoming work request. Data is either one item or a list
// of items; every item is a flat map of EMR field values.
type Message struct {
	FromUser string              `json:"from_user"`
	Data     jsoniter.RawMessage `json:"data"`
}

// Response is the outgoing progress record relayed for every task event.
type Response struct {
	ToUser         string     `json:"to_user"`
	PatientName    string     `json:"patient_name"`
	ExecutedAction string     `json:"executed_action"`
	Type           emr.Status `json:"type"`
	Error          string     `json:"error,omitempty"`
}

// DecodeMessage parses a raw message.
func DecodeMessage(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("invalid message: %w", err)
	}
	return m, nil
}

// Items returns the message's data items.
func (m Message) Items() ([]map[string]any, error) {
	if m.FromUser == "" {
		return nil, errors.New("missing from_user")
	}
	if len(m.Data) == 0 || string(m.Data) == "null" {
		return nil, errors.New("missing data")
	}

	switch jsoniter.Get(m.Data).ValueType() {
	case jsoniter.ArrayValue:
		var items []map[string]any
		if err := json.Unmarshal(m.Data, &items); err != nil {
			return nil, fmt.Errorf("data items must be objects: %w", err)
		}
		if len(items) == 0 {
			return nil, errors.New("empty data list")
		}
		return items, nil
	case jsoniter.ObjectValue:
		var item map[string]any
		if err := json.Unmarshal(m.Data, &item); err != nil {
			return nil, err
		}
		if len(item) == 0 {
			return nil, errors.New("empty data item")
		}
		return []map[string]any{item}, nil
	}
	return nil, errors.New("data must be an object or a list of objects")
}
