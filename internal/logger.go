package internal

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// SecureLogger provides secure logging with sensitive data redaction
type SecureLogger struct {
	logger    hclog.Logger
	redactors []Redactor
}

// Redactor defines an interface for redacting sensitive information
type Redactor interface {
	Redact(input string) string
}

// CredentialRedactor redacts API keys and bearer tokens from strings
type CredentialRedactor struct{}

func (r *CredentialRedactor) Redact(input string) string {
	patterns := []string{
		"x-api-key:",
		"x-api-key=",
		"Bearer ",
		"Roblox-Signature:",
	}

	return redactAfter(input, patterns, func(b byte) bool {
		return b == ' ' || b == ';' || b == '\n' || b == '\r' || b == '"'
	})
}

// URLRedactor redacts sensitive URL and form parameters
type URLRedactor struct{}

func (r *URLRedactor) Redact(input string) string {
	sensitiveParams := []string{
		"client_secret=",
		"refresh_token=",
		"access_token=",
		"code_verifier=",
		"token=",
		"code=",
	}

	return redactAfter(input, sensitiveParams, func(b byte) bool {
		return b == '&' || b == ' ' || b == '\n'
	})
}

// redactAfter replaces the text following every occurrence of each pattern up to
// the first terminator byte.
func redactAfter(input string, patterns []string, terminator func(byte) bool) string {
	result := input
	for _, pattern := range patterns {
		lowerPattern := strings.ToLower(pattern)
		offset := 0
		for {
			lower := strings.ToLower(result)
			index := strings.Index(lower[offset:], lowerPattern)
			if index == -1 {
				break
			}
			start := offset + index + len(pattern)
			for start < len(result) && result[start] == ' ' {
				start++
			}
			end := start
			for end < len(result) && !terminator(result[end]) {
				end++
			}
			if end > start && result[start:end] != "[REDACTED]" {
				result = result[:start] + "[REDACTED]" + result[end:]
				end = start + len("[REDACTED]")
			}
			offset = end
			if offset >= len(result) {
				break
			}
		}
	}
	return result
}

// NewSecureLogger creates a new secure logger writing to output
func NewSecureLogger(output io.Writer, level hclog.Level, debug bool) *SecureLogger {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:            "rblxcloud",
		Level:           level,
		Output:          output,
		IncludeLocation: debug,
	})

	return WrapLogger(logger)
}

// WrapLogger adds redaction to an existing hclog logger
func WrapLogger(logger hclog.Logger) *SecureLogger {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &SecureLogger{
		logger: logger,
		redactors: []Redactor{
			&CredentialRedactor{},
			&URLRedactor{},
		},
	}
}

// NewDefaultLogger creates a logger with default settings
func NewDefaultLogger(debug, quiet bool) *SecureLogger {
	level := hclog.Info
	if debug {
		level = hclog.Debug
	}
	if quiet {
		level = hclog.Error
	}

	return NewSecureLogger(os.Stderr, level, debug)
}

// NewNullLogger returns a logger that discards everything
func NewNullLogger() *SecureLogger {
	return WrapLogger(hclog.NewNullLogger())
}

// Logger exposes the underlying hclog logger
func (sl *SecureLogger) Logger() hclog.Logger {
	return sl.logger
}

// redactSensitiveData applies all redactors to the input string
func (sl *SecureLogger) redactSensitiveData(input string) string {
	result := input
	for _, redactor := range sl.redactors {
		result = redactor.Redact(result)
	}
	return result
}

// Error logs an error message
func (sl *SecureLogger) Error(format string, args ...interface{}) {
	if !sl.logger.IsError() {
		return
	}
	sl.logger.Error(sl.redactSensitiveData(fmt.Sprintf(format, args...)))
}

// Warn logs a warning message
func (sl *SecureLogger) Warn(format string, args ...interface{}) {
	if !sl.logger.IsWarn() {
		return
	}
	sl.logger.Warn(sl.redactSensitiveData(fmt.Sprintf(format, args...)))
}

// Info logs an info message
func (sl *SecureLogger) Info(format string, args ...interface{}) {
	if !sl.logger.IsInfo() {
		return
	}
	sl.logger.Info(sl.redactSensitiveData(fmt.Sprintf(format, args...)))
}

// Debug logs a debug message
func (sl *SecureLogger) Debug(format string, args ...interface{}) {
	if !sl.logger.IsDebug() {
		return
	}
	sl.logger.Debug(sl.redactSensitiveData(fmt.Sprintf(format, args...)))
}

// LogHTTPRequest logs an HTTP request with sensitive data redacted
func (sl *SecureLogger) LogHTTPRequest(req *http.Request) {
	if !sl.logger.IsDebug() {
		return
	}

	sl.logger.Debug("http request",
		"method", req.Method,
		"url", sl.redactSensitiveData(req.URL.String()),
		"headers", sanitizeHeaders(req.Header),
	)
}

// LogHTTPResponse logs an HTTP response with sensitive data redacted
func (sl *SecureLogger) LogHTTPResponse(resp *http.Response) {
	if !sl.logger.IsDebug() {
		return
	}

	url := ""
	if resp.Request != nil {
		url = sl.redactSensitiveData(resp.Request.URL.String())
	}

	sl.logger.Debug("http response",
		"status", resp.StatusCode,
		"url", url,
		"headers", sanitizeHeaders(resp.Header),
	)
}

func sanitizeHeaders(header http.Header) map[string]string {
	sanitized := make(map[string]string, len(header))
	for name, values := range header {
		if isSensitiveHeader(name) {
			sanitized[name] = "[REDACTED]"
		} else {
			sanitized[name] = strings.Join(values, ", ")
		}
	}
	return sanitized
}

// isSensitiveHeader checks if a header contains sensitive information
func isSensitiveHeader(name string) bool {
	sensitiveHeaders := []string{
		"authorization",
		"cookie",
		"x-api-key",
		"roblox-signature",
		"token",
	}

	lowerName := strings.ToLower(name)
	for _, sensitive := range sensitiveHeaders {
		if strings.Contains(lowerName, sensitive) {
			return true
		}
	}
	return false
}

// SetLevel sets the logging level
func (sl *SecureLogger) SetLevel(level hclog.Level) {
	sl.logger.SetLevel(level)
}

// AddRedactor adds a custom redactor
func (sl *SecureLogger) AddRedactor(redactor Redactor) {
	sl.redactors = append(sl.redactors, redactor)
}
