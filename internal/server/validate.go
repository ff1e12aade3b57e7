package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jercomio/LuT-1/internal/domain"
	"github.com/jercomio/LuT-1/internal/engine"
)

const (
	msgInvalidTask  = "Invalid task data"
	msgInvalidTasks = "Invalid tasks data"
)

// FieldError describes one rejected field of a request payload.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when a payload does not match the shape an
// operation expects. It always carries at least one FieldError.
type ValidationError struct {
	Message string
	Fields  []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

// deleteTarget is the single-delete payload shape.
type deleteTarget struct {
	ID     string
	Title  string
	UserID string
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// fieldReader pulls typed fields out of a decoded JSON object and collects
// every problem instead of stopping at the first one.
type fieldReader struct {
	raw    map[string]json.RawMessage
	prefix string
	errs   []FieldError
}

func newFieldReader(raw map[string]json.RawMessage, prefix string) *fieldReader {
	return &fieldReader{raw: raw, prefix: prefix}
}

func (r *fieldReader) fail(field, msg string) {
	r.errs = append(r.errs, FieldError{Field: r.prefix + field, Message: msg})
}

func (r *fieldReader) lookup(field string) (json.RawMessage, bool) {
	v, ok := r.raw[field]
	if !ok || len(bytes.TrimSpace(v)) == 0 {
		return nil, false
	}
	return v, true
}

func (r *fieldReader) requiredString(field, missing string) string {
	v, ok := r.lookup(field)
	if !ok || isNullRaw(v) {
		r.fail(field, missing)
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		r.fail(field, expected("string", v))
		return ""
	}
	if s == "" {
		r.fail(field, missing)
	}
	return s
}

func (r *fieldReader) optionalString(field string) *string {
	v, ok := r.lookup(field)
	if !ok {
		return nil
	}
	var s string
	if isNullRaw(v) || json.Unmarshal(v, &s) != nil {
		r.fail(field, expected("string", v))
		return nil
	}
	return &s
}

// nullableString reports null separately so callers can clear a value.
func (r *fieldReader) nullableString(field string) (*string, bool) {
	v, ok := r.lookup(field)
	if !ok {
		return nil, false
	}
	if isNullRaw(v) {
		return nil, true
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		r.fail(field, expected("string", v))
		return nil, false
	}
	return &s, false
}

func (r *fieldReader) optionalNumber(field string) *float64 {
	v, ok := r.lookup(field)
	if !ok {
		return nil
	}
	var n float64
	if isNullRaw(v) || json.Unmarshal(v, &n) != nil {
		r.fail(field, expected("number", v))
		return nil
	}
	return &n
}

// optionalDate accepts a date string in one of dateLayouts or a number of
// milliseconds since the Unix epoch.
func (r *fieldReader) optionalDate(field string) (*time.Time, bool) {
	v, ok := r.lookup(field)
	if !ok {
		return nil, false
	}
	if isNullRaw(v) {
		return nil, true
	}
	var ms float64
	if err := json.Unmarshal(v, &ms); err == nil {
		if math.IsInf(ms, 0) || math.IsNaN(ms) {
			r.fail(field, "Invalid date")
			return nil, false
		}
		t := time.UnixMilli(int64(ms)).UTC()
		return &t, false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		r.fail(field, expected("date", v))
		return nil, false
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, false
		}
	}
	r.fail(field, "Invalid date")
	return nil, false
}

func (r *fieldReader) err(message string) error {
	if len(r.errs) == 0 {
		return nil
	}
	return &ValidationError{Message: message, Fields: r.errs}
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("expected object")
	}
	return raw, nil
}

func bodyError(message string, data []byte) error {
	msg := "Expected object"
	if len(bytes.TrimSpace(data)) == 0 {
		msg = "Required"
	}
	return &ValidationError{Message: message, Fields: []FieldError{{Field: "body", Message: msg}}}
}

// validateCreate checks a create payload. userPriority is accepted but never
// used: the rank is always derived from priority.
func validateCreate(data []byte) (engine.TaskCreateOptions, error) {
	raw, err := decodeObject(data)
	if err != nil {
		return engine.TaskCreateOptions{}, bodyError(msgInvalidTask, data)
	}
	r := newFieldReader(raw, "")
	opts := engine.TaskCreateOptions{
		Title:      r.requiredString("title", "Title is required"),
		Label:      r.optionalString("label"),
		Status:     r.optionalString("status"),
		Priority:   r.optionalString("priority"),
		AIPriority: r.optionalNumber("aiPriority"),
		UserID:     r.requiredString("userId", "User ID is required"),
	}
	opts.Content, _ = r.nullableString("content")
	r.optionalNumber("userPriority")
	if err := r.err(msgInvalidTask); err != nil {
		return engine.TaskCreateOptions{}, err
	}
	return opts, nil
}

func validateUpdate(data []byte) (engine.TaskUpdateOptions, error) {
	raw, err := decodeObject(data)
	if err != nil {
		return engine.TaskUpdateOptions{}, bodyError(msgInvalidTask, data)
	}
	r := newFieldReader(raw, "")
	opts := engine.TaskUpdateOptions{
		ID:     r.requiredString("id", "Task ID is required"),
		UserID: r.requiredString("userId", "User ID is required"),
		Patch: domain.TaskPatch{
			Title:      r.optionalString("title"),
			Label:      r.optionalString("label"),
			Status:     r.optionalString("status"),
			Priority:   r.optionalString("priority"),
			AIPriority: r.optionalNumber("aiPriority"),
		},
	}
	opts.Patch.Content, opts.Patch.ClearContent = r.nullableString("content")
	opts.Patch.DueOfDate, opts.Patch.ClearDueOfDate = r.optionalDate("dueOfDate")
	// Type-checked only; the engine derives the rank from priority.
	r.optionalNumber("userPriority")
	if err := r.err(msgInvalidTask); err != nil {
		return engine.TaskUpdateOptions{}, err
	}
	return opts, nil
}

func readDeleteTarget(r *fieldReader) deleteTarget {
	t := deleteTarget{
		ID:     r.requiredString("id", "Task ID is required"),
		UserID: r.requiredString("userId", "User ID is required"),
	}
	if title := r.optionalString("title"); title != nil {
		t.Title = *title
	}
	return t
}

// validateDelete decodes either a single target object or an array of them.
// The shape of the payload selects between single and bulk deletion.
func validateDelete(data []byte) ([]deleteTarget, bool, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, true, &ValidationError{Message: msgInvalidTasks, Fields: []FieldError{{Field: "body", Message: "Expected array"}}}
		}
		targets := make([]deleteTarget, 0, len(items))
		var errs []FieldError
		for i, item := range items {
			raw, err := decodeObject(item)
			if err != nil {
				errs = append(errs, FieldError{Field: fmt.Sprintf("[%d]", i), Message: "Expected object"})
				continue
			}
			r := newFieldReader(raw, fmt.Sprintf("[%d].", i))
			targets = append(targets, readDeleteTarget(r))
			errs = append(errs, r.errs...)
		}
		if len(errs) > 0 {
			return nil, true, &ValidationError{Message: msgInvalidTasks, Fields: errs}
		}
		return targets, true, nil
	}
	raw, err := decodeObject(data)
	if err != nil {
		return nil, false, bodyError(msgInvalidTask, data)
	}
	r := newFieldReader(raw, "")
	target := readDeleteTarget(r)
	if err := r.err(msgInvalidTask); err != nil {
		return nil, false, err
	}
	return []deleteTarget{target}, false, nil
}

func expected(want string, raw json.RawMessage) string {
	return fmt.Sprintf("Expected %s, received %s", want, jsonType(raw))
}

func jsonType(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "undefined"
	}
	switch trimmed[0] {
	case '"':
		return "string"
	case '{':
		return "object"
	case '[':
		return "array"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}

func isNullRaw(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
