package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ErrNetwork marks a request that got no usable response: connection
// failure, timeout, or cancelled context.
var ErrNetwork = errors.New("backend unreachable")

const maxMessageLen = 500

// FieldError is one field-level complaint returned by the backend.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RejectionError is a structured refusal from the backend: validation
// detail or a business rule such as insufficient stock.
type RejectionError struct {
	StatusCode int
	Message    string
	Fields     []FieldError
}

func (e *RejectionError) Error() string {
	return e.Message
}

// IsRejection reports whether err carries a backend rejection and returns it.
func IsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// parseRejection extracts a readable message from whichever error shape the
// backend used: a bare string, {"error": ...}, {"message": ...},
// {"errors": [...]} or any other object.
func parseRejection(status int, body []byte) *RejectionError {
	rej := &RejectionError{StatusCode: status}
	trimmed := bytes.TrimSpace(body)

	var v any
	if len(trimmed) > 0 && json.Unmarshal(trimmed, &v) == nil {
		rej.Message, rej.Fields = messageFrom(v)
	} else if len(trimmed) > 0 {
		rej.Message = string(trimmed)
	}

	rej.Message = strings.TrimSpace(rej.Message)
	if rej.Message == "" {
		rej.Message = http.StatusText(status)
	}
	if rej.Message == "" {
		rej.Message = fmt.Sprintf("backend returned status %d", status)
	}
	if len(rej.Message) > maxMessageLen {
		rej.Message = rej.Message[:maxMessageLen]
	}
	return rej
}

// errorEnvelope detects {"error": ...} bodies sent with a success status.
func errorEnvelope(status int, body []byte) *RejectionError {
	var obj map[string]any
	if json.Unmarshal(bytes.TrimSpace(body), &obj) != nil {
		return nil
	}
	e, ok := obj["error"]
	if !ok || e == nil || e == false || e == "" {
		return nil
	}
	rej := parseRejection(status, body)
	rej.StatusCode = http.StatusUnprocessableEntity
	return rej
}

func messageFrom(v any) (string, []FieldError) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []any:
		fields := fieldsFrom(t)
		return joinFields(fields), fields
	case map[string]any:
		if errs, ok := t["errors"]; ok {
			var fields []FieldError
			switch e := errs.(type) {
			case []any:
				fields = fieldsFrom(e)
			case map[string]any:
				fields = fieldsFromMap(e)
			case string:
				return e, nil
			}
			if len(fields) > 0 {
				msg := joinFields(fields)
				if head, ok := t["message"].(string); ok && head != "" {
					msg = head + ": " + msg
				}
				return msg, fields
			}
		}
		for _, key := range []string{"error", "message", "mensaje", "detail", "msg"} {
			inner, ok := t[key]
			if !ok || inner == nil {
				continue
			}
			if msg, fields := messageFrom(inner); msg != "" {
				return msg, fields
			}
		}
		return compact(t), nil
	case nil:
		return "", nil
	default:
		return fmt.Sprint(t), nil
	}
}

func fieldsFrom(items []any) []FieldError {
	var out []FieldError
	for _, it := range items {
		switch e := it.(type) {
		case string:
			out = append(out, FieldError{Message: e})
		case map[string]any:
			fe := FieldError{
				Field:   firstString(e, "field", "campo", "path", "param"),
				Message: firstString(e, "message", "mensaje", "msg", "error"),
			}
			if fe.Message == "" {
				fe.Message = compact(e)
			}
			out = append(out, fe)
		}
	}
	return out
}

func fieldsFromMap(m map[string]any) []FieldError {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []FieldError
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			out = append(out, FieldError{Field: k, Message: v})
		case []any:
			for _, item := range v {
				out = append(out, FieldError{Field: k, Message: fmt.Sprint(item)})
			}
		default:
			out = append(out, FieldError{Field: k, Message: fmt.Sprint(v)})
		}
	}
	return out
}

func joinFields(fields []FieldError) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Field != "" {
			parts = append(parts, f.Field+": "+f.Message)
		} else {
			parts = append(parts, f.Message)
		}
	}
	return strings.Join(parts, "; ")
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func compact(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
