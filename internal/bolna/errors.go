package bolna

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnreachable matches every *TransportError via errors.Is.
var ErrUnreachable = errors.New("bolna: provider unreachable")

// APIError is returned for any non-2xx response.
type APIError struct {
	Status  int
	Code    string
	Message string
	Body    json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bolna: api error status=%d: %s", e.Status, e.Message)
}

// TransportError means no HTTP response was received (dial failure, timeout, reset).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("bolna: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrUnreachable }

// decodeAPIError picks the richest message field: detail, then message, then error.
func decodeAPIError(status int, data []byte) *APIError {
	out := &APIError{Status: status}
	if len(data) > 0 && json.Valid(data) {
		out.Body = json.RawMessage(data)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err == nil {
		for _, k := range []string{"detail", "message", "error"} {
			if msg := coerceString(fields[k]); msg != "" {
				out.Message = msg
				break
			}
		}
		out.Code = coerceString(fields["code"])
	}
	if out.Message == "" {
		out.Message = fmt.Sprintf("request failed with status %d", status)
	}
	return out
}

// coerceString returns strings as-is and the compact JSON text of anything structured.
func coerceString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return buf.String()
}

// MessageOf extracts a user-facing message from a provider error, or "" when err is not one.
func MessageOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if errors.Is(err, ErrUnreachable) {
		return "voice provider unreachable"
	}
	return ""
}
