package internal

import (
	"fmt"
	"strings"
)

// ValueSource says where a rejected value came from
type ValueSource string

const (
	SourceArgument   ValueSource = "argument"
	SourceFlag       ValueSource = "flag"
	SourceEnv        ValueSource = "environment"
	SourceConfigFile ValueSource = "config file"
)

// ValidationError is returned for a command line argument, flag, environment
// variable or config attribute that can not be used to build a request.
type ValidationError struct {
	Field      string      `json:"field"`
	Message    string      `json:"message"`
	Value      any         `json:"value,omitempty"`
	Source     ValueSource `json:"source,omitempty"`
	Suggestion string      `json:"suggestion,omitempty"`
	Err        error       `json:"-"`
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid ")
	if e.Source != "" {
		b.WriteString(string(e.Source))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%s: %s", e.Field, e.Message)
	if e.Suggestion != "" {
		fmt.Fprintf(&b, " (%s)", e.Suggestion)
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// DetailedError is the multi-line form written to the log
func (e *ValidationError) DetailedError() string {
	lines := []string{fmt.Sprintf("%s: %s", e.Field, e.Message)}
	if e.Source != "" {
		lines = append(lines, "from: "+string(e.Source))
	}
	if e.Value != nil {
		lines = append(lines, fmt.Sprintf("value: %v", redactValue(e.Field, e.Value)))
	}
	if e.Err != nil {
		lines = append(lines, "cause: "+e.Err.Error())
	}
	if e.Suggestion != "" {
		lines = append(lines, "try: "+e.Suggestion)
	}
	return strings.Join(lines, "\n  ")
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NewValidationErrorWithValue records the rejected value. Values of fields
// holding credentials are redacted when printed.
func NewValidationErrorWithValue(field, message string, value any) *ValidationError {
	return &ValidationError{Field: field, Message: message, Value: value}
}

func (e *ValidationError) WithSuggestion(suggestion string) *ValidationError {
	e.Suggestion = suggestion
	return e
}

func (e *ValidationError) WithSource(source ValueSource) *ValidationError {
	e.Source = source
	return e
}

func (e *ValidationError) WithCause(err error) *ValidationError {
	e.Err = err
	return e
}

// InvalidIDError rejects a universe, place, user, group, asset or role id
func InvalidIDError(field string, value any) *ValidationError {
	return NewValidationErrorWithValue(field, "must be a positive integer id", value).
		WithSource(SourceArgument).
		WithSuggestion("Use the number from the resource's URL, such as 1818 in roblox.com/games/1818")
}

// InvalidRateError rejects a --rate value that ParseRate could not read
func InvalidRateError(value string, err error) *ValidationError {
	return NewValidationErrorWithValue("rate", "unrecognized request rate", value).
		WithSource(SourceFlag).
		WithCause(err).
		WithSuggestion("Use requests per second like 10, or a count per unit like 300/m or 5000/h")
}

// ScopedKeyError rejects a data store key that is not in scope/key form when
// the store spans every scope.
func ScopedKeyError(key string) *ValidationError {
	return NewValidationErrorWithValue("key", "must be written as scope/key", key).
		WithSource(SourceArgument).
		WithSuggestion("Prefix the key with its scope, for example global/" + key + ", or drop --all-scopes")
}

// MissingCredentialError is returned when a credential is set nowhere
func MissingCredentialError(field, envVar string) *ValidationError {
	return NewValidationError(field, "is required").
		WithSuggestion(fmt.Sprintf("Set %s or add %s to the config file", envVar, field))
}

// ExclusiveFlagsError is returned when two flags that can not be combined are set
func ExclusiveFlagsError(first, second string) *ValidationError {
	return NewValidationError(first, fmt.Sprintf("--%s and --%s can not be used together", first, second)).
		WithSource(SourceFlag)
}

func redactValue(field string, value any) any {
	lower := strings.ToLower(field)
	for _, s := range []string{"key", "secret", "token"} {
		if strings.Contains(lower, s) && lower != "key" {
			return "[REDACTED]"
		}
	}
	return value
}
