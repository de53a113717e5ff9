// File: internal/emrdata/record.go
// Package emrdata holds the patient and encounter values that the workflow
// types into the EMR. Values keep the shape they arrived in as JSON:
// strings, numbers, booleans, lists (including lists of tuples) and objects.
package emrdata

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Well-known keys used to label a record in progress messages.
const (
	FirstNameKey = "person_first_name"
	LastNameKey  = "person_last_name"
)

// Record is a mutable bag of named values. It is safe for concurrent use.
type Record struct {
	mu     sync.RWMutex
	values map[string]any
}

// New creates a record seeded with values.
func New(values map[string]any) *Record {
	r := &Record{values: make(map[string]any, len(values))}
	r.Update(values)
	return r
}

// GetValue returns the named value. ok is false when the key is absent.
func (r *Record) GetValue(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[name]
	return v, ok
}

// CheckActionData reports whether every named value is present and not
// empty.
func (r *Record) CheckActionData(names []string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range names {
		if IsEmpty(r.values[n]) {
			return false
		}
	}
	return true
}

// Update merges values into the record, replacing existing keys.
func (r *Record) Update(values map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.values == nil {
		r.values = make(map[string]any, len(values))
	}
	for k, v := range values {
		r.values[k] = v
	}
}

// Reset drops every value.
func (r *Record) Reset() {
	r.mu.Lock()
	r.values = make(map[string]any)
	r.mu.Unlock()
}

// Len returns the number of keys.
func (r *Record) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.values)
}

// PatientName joins the first and last name, skipping missing parts.
func (r *Record) PatientName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	first, _ := AsString(r.values[FirstNameKey])
	last, _ := AsString(r.values[LastNameKey])
	return strings.TrimSpace(first + " " + last)
}

// Display logs the record one key per line, in key order.
func (r *Record) Display(logger *zap.Logger) {
	r.mu.RLock()
	keys := make([]string, 0, len(r.values))
	for k := range r.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, zap.Any(k, r.values[k]))
	}
	r.mu.RUnlock()

	logger.Info("EMR data", zap.Int("fields", len(keys)))
	for _, f := range fields {
		logger.Info("  "+f.Key, f)
	}
}

// IsEmpty reports whether v carries no usable data. Numbers and booleans
// always count as data, including zero and false.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

// AsString renders a scalar value as text. Whole numbers print without a
// decimal point.
func AsString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	case fmt.Stringer:
		return t.String(), true
	}
	return "", false
}

// AsList returns v as a list of elements.
func AsList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// AsTuple returns element index of a tuple-shaped value as text.
func AsTuple(v any, index int) (string, error) {
	tuple, ok := AsList(v)
	if !ok {
		return "", fmt.Errorf("value %v is not a tuple", v)
	}
	if index < 0 || index >= len(tuple) {
		return "", fmt.Errorf("tuple index %d out of range for %d elements", index, len(tuple))
	}
	s, ok := AsString(tuple[index])
	if !ok {
		return "", fmt.Errorf("tuple element %d is not a scalar", index)
	}
	return s, nil
}

// Lookup returns key from an object-shaped value as text.
func Lookup(v any, key string) (string, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", fmt.Errorf("value is not an object")
	}
	s, ok := AsString(m[key])
	if !ok {
		return "", fmt.Errorf("object has no text at key %q", key)
	}
	return s, nil
}
