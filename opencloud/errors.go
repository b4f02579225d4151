package opencloud

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType classifies errors returned by the library
type ErrorType int

const (
	ErrorTypeHTTP ErrorType = iota
	ErrorTypeNotFound
	ErrorTypeRateLimited
	ErrorTypeForbidden
	ErrorTypePreconditionFailed
	ErrorTypeInvalidCode
	ErrorTypeInvalidFile
	ErrorTypeModeratedText
	ErrorTypeUnknownEventType
	ErrorTypeUnhandledEventType
	ErrorTypeTimeout
)

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the string representation of ErrorType
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeHTTP:
		return "HTTP"
	case ErrorTypeNotFound:
		return "NotFound"
	case ErrorTypeRateLimited:
		return "RateLimited"
	case ErrorTypeForbidden:
		return "Forbidden"
	case ErrorTypePreconditionFailed:
		return "PreconditionFailed"
	case ErrorTypeInvalidCode:
		return "InvalidCode"
	case ErrorTypeInvalidFile:
		return "InvalidFile"
	case ErrorTypeModeratedText:
		return "ModeratedText"
	case ErrorTypeUnknownEventType:
		return "UnknownEventType"
	case ErrorTypeUnhandledEventType:
		return "UnhandledEventType"
	case ErrorTypeTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// String returns the string representation of ErrorSeverity
func (s ErrorSeverity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

type sentinelError struct {
	typ ErrorType
	msg string
}

func (e *sentinelError) Error() string { return e.msg }

// Sentinel errors for use with errors.Is. Every *HTTPError matches ErrHTTP
// in addition to the sentinel of its own type.
var (
	ErrHTTP               error = &sentinelError{ErrorTypeHTTP, "opencloud: http error"}
	ErrNotFound           error = &sentinelError{ErrorTypeNotFound, "opencloud: not found"}
	ErrRateLimited        error = &sentinelError{ErrorTypeRateLimited, "opencloud: rate limited"}
	ErrForbidden          error = &sentinelError{ErrorTypeForbidden, "opencloud: forbidden"}
	ErrPreconditionFailed error = &sentinelError{ErrorTypePreconditionFailed, "opencloud: precondition failed"}
	ErrInvalidCode        error = &sentinelError{ErrorTypeInvalidCode, "opencloud: invalid authorization code"}
	ErrInvalidFile        error = &sentinelError{ErrorTypeInvalidFile, "opencloud: invalid file"}
	ErrModeratedText      error = &sentinelError{ErrorTypeModeratedText, "opencloud: moderated text"}
	ErrUnknownEventType   error = &sentinelError{ErrorTypeUnknownEventType, "opencloud: unknown event type"}
	ErrUnhandledEventType error = &sentinelError{ErrorTypeUnhandledEventType, "opencloud: unhandled event type"}
	ErrTimeout            error = &sentinelError{ErrorTypeTimeout, "opencloud: timeout exceeded"}
)

// HTTPError is returned when Open Cloud responds with an unexpected status
type HTTPError struct {
	StatusCode int           `json:"status_code"`
	Code       string        `json:"code,omitempty"`
	Message    string        `json:"message"`
	Details    any           `json:"details,omitempty"`
	Type       ErrorType     `json:"type"`
	Severity   ErrorSeverity `json:"severity"`
	Suggestion string        `json:"suggestion,omitempty"`
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

// DetailedError returns a multi-line description including the suggestion
func (e *HTTPError) DetailedError() string {
	parts := []string{fmt.Sprintf("[%s] %s Error", e.Severity, e.Type)}
	parts = append(parts, fmt.Sprintf("Status: %d", e.StatusCode))
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("Code: %s", e.Code))
	}
	if e.Message != "" {
		parts = append(parts, fmt.Sprintf("Message: %s", e.Message))
	}
	if e.Details != nil {
		if b, err := json.Marshal(e.Details); err == nil {
			parts = append(parts, fmt.Sprintf("Details: %s", b))
		}
	}
	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}
	return strings.Join(parts, "\n")
}

// Is matches ErrHTTP and the sentinel for the error's type
func (e *HTTPError) Is(target error) bool {
	if target == ErrHTTP {
		return true
	}
	if s, ok := target.(*sentinelError); ok {
		return s.typ == e.Type
	}
	return false
}

// IsRetryable reports whether sending the request again may succeed
func (e *HTTPError) IsRetryable() bool {
	return e.Type == ErrorTypeRateLimited || e.StatusCode >= 500
}

// WithSuggestion replaces the suggestion
func (e *HTTPError) WithSuggestion(suggestion string) *HTTPError {
	e.Suggestion = suggestion
	return e
}

// WithType changes the type, resetting the default severity and suggestion
func (e *HTTPError) WithType(t ErrorType) *HTTPError {
	e.Type = t
	e.Severity = defaultSeverity(t)
	e.Suggestion = defaultSuggestion(t, e.StatusCode)
	return e
}

// WithMessage replaces the message
func (e *HTTPError) WithMessage(message string) *HTTPError {
	e.Message = message
	return e
}

// PreconditionFailedError is returned when a conditional write is rejected.
// Value and Info describe the entry's current state when the server returns it.
type PreconditionFailedError struct {
	*HTTPError
	Value json.RawMessage
	Info  *EntryInfo
}

func (e *PreconditionFailedError) Unwrap() error { return e.HTTPError }

// EventError is produced while dispatching a webhook notification
type EventError struct {
	Type      ErrorType
	EventType string
	Message   string
}

func (e *EventError) Error() string {
	if e.EventType != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.EventType)
	}
	return e.Message
}

func (e *EventError) Is(target error) bool {
	if s, ok := target.(*sentinelError); ok {
		return s.typ == e.Type
	}
	return false
}

// NewHTTPError creates an HTTPError for status with the default message,
// severity and suggestion of its type.
func NewHTTPError(status int, t ErrorType) *HTTPError {
	return &HTTPError{
		StatusCode: status,
		Message:    defaultMessage(status, t),
		Type:       t,
		Severity:   defaultSeverity(t),
		Suggestion: defaultSuggestion(t, status),
	}
}

func newPreconditionFailed(status int, message string) *PreconditionFailedError {
	return &PreconditionFailedError{
		HTTPError: NewHTTPError(status, ErrorTypePreconditionFailed).WithMessage(message),
	}
}

// errorTypeForStatus maps an unexpected status to the error type raised for it
func errorTypeForStatus(status int) ErrorType {
	switch status {
	case http.StatusForbidden:
		return ErrorTypeForbidden
	case http.StatusNotFound:
		return ErrorTypeNotFound
	case http.StatusTooManyRequests:
		return ErrorTypeRateLimited
	default:
		return ErrorTypeHTTP
	}
}

// errorFromResponse builds a typed error from an unexpected response,
// reading the code, message and details Roblox puts in error bodies.
func errorFromResponse(resp *Response) *HTTPError {
	e := NewHTTPError(resp.StatusCode, errorTypeForStatus(resp.StatusCode))

	if !resp.JSON {
		if text := strings.TrimSpace(resp.Text()); text != "" {
			e.Message = text
		}
		return e
	}

	var body any
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return e
	}

	switch v := body.(type) {
	case string:
		if v != "" {
			e.Message = v
		}
	case map[string]any:
		if list, ok := v["errors"].([]any); ok && len(list) > 0 {
			if first, ok := list[0].(map[string]any); ok {
				e.Code = stringField(first, "code")
				if msg := stringField(first, "message"); msg != "" {
					e.Message = msg
				}
			}
			e.Details = list
			return e
		}

		e.Code = stringField(v, "code")
		if e.Code == "" {
			e.Code = stringField(v, "error")
		}
		if msg := stringField(v, "message"); msg != "" {
			e.Message = msg
		}
		if details, ok := v["details"]; ok {
			e.Details = details
		} else if details, ok := v["errorDetails"]; ok {
			e.Details = details
		}
	}

	return e
}

// bodyField reads a top-level field of a JSON error body
func bodyField(resp *Response, key string) string {
	if !resp.JSON {
		return ""
	}
	var body map[string]any
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return ""
	}
	return stringField(body, key)
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%v", v)
	default:
		return ""
	}
}

func defaultMessage(status int, t ErrorType) string {
	switch {
	case t == ErrorTypeForbidden:
		return "Authorization lacks permission to this resource"
	case status == http.StatusUnauthorized:
		return "Authorization was denied"
	case status == http.StatusNotFound:
		return "Resource not found"
	case status == http.StatusTooManyRequests:
		return "The resource is being rate limited"
	case status >= 500:
		return "Internal server error"
	default:
		return fmt.Sprintf("Unexpected HTTP %d", status)
	}
}

func defaultSeverity(t ErrorType) ErrorSeverity {
	switch t {
	case ErrorTypeRateLimited, ErrorTypeNotFound, ErrorTypePreconditionFailed:
		return SeverityWarning
	case ErrorTypeForbidden, ErrorTypeInvalidCode:
		return SeverityCritical
	default:
		return SeverityError
	}
}

func defaultSuggestion(t ErrorType, status int) string {
	switch t {
	case ErrorTypeForbidden:
		return "Check that the API key or OAuth2 token has the scope and experience/group access required for this resource"
	case ErrorTypeNotFound:
		return "Verify the identifiers in the request; the resource may have been deleted"
	case ErrorTypeRateLimited:
		return "Reduce the request rate or configure a lower --rate limit"
	case ErrorTypePreconditionFailed:
		return "Fetch the current value and retry the write against its version"
	case ErrorTypeInvalidCode:
		return "Authorization codes are single-use and expire quickly; restart the authorization flow"
	case ErrorTypeInvalidFile:
		return "Check the file is a supported format for the asset type"
	case ErrorTypeModeratedText:
		return "Change the asset name or description"
	}
	switch {
	case status == http.StatusUnauthorized:
		return "Check the API key is valid, enabled and not expired"
	case status >= 500:
		return "Roblox returned a server error; try again later"
	default:
		return ""
	}
}
