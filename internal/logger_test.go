package internal

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureLogger_RedactSensitiveData(t *testing.T) {
	logger := NewDefaultLogger(false, false)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "redact_bearer_token",
			input:    "Authorization: Bearer token123",
			expected: "Authorization: Bearer [REDACTED]",
		},
		{
			name:     "redact_api_key_header",
			input:    "x-api-key: abcdef; next",
			expected: "x-api-key: [REDACTED]; next",
		},
		{
			name:     "redact_url_parameters",
			input:    "https://apis.roblox.com/oauth/v1/token?client_secret=secret123&grant_type=refresh_token",
			expected: "https://apis.roblox.com/oauth/v1/token?client_secret=[REDACTED]&grant_type=refresh_token",
		},
		{
			name:     "redact_form_body",
			input:    "code=abc&code_verifier=xyz&refresh_token=rt",
			expected: "code=[REDACTED]&code_verifier=[REDACTED]&refresh_token=[REDACTED]",
		},
		{
			name:     "no_sensitive_data",
			input:    "GET datastores/v1/universes/1/standard-datastores",
			expected: "GET datastores/v1/universes/1/standard-datastores",
		},
		{
			name:     "multiple_sensitive_items",
			input:    "Bearer one and Bearer two",
			expected: "Bearer [REDACTED] and Bearer [REDACTED]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, logger.redactSensitiveData(tt.input))
		})
	}
}

func TestSecureLogger_LogLevels(t *testing.T) {
	tests := []struct {
		name      string
		level     hclog.Level
		logFunc   func(*SecureLogger)
		shouldLog bool
	}{
		{"error_at_error", hclog.Error, func(l *SecureLogger) { l.Error("boom") }, true},
		{"info_at_error", hclog.Error, func(l *SecureLogger) { l.Info("hello") }, false},
		{"warn_at_info", hclog.Info, func(l *SecureLogger) { l.Warn("careful") }, true},
		{"debug_at_info", hclog.Info, func(l *SecureLogger) { l.Debug("detail") }, false},
		{"debug_at_debug", hclog.Debug, func(l *SecureLogger) { l.Debug("detail") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewSecureLogger(&buf, tt.level, false)
			tt.logFunc(logger)
			assert.Equal(t, tt.shouldLog, buf.Len() > 0)
		})
	}
}

func TestSecureLogger_RedactsFormattedMessages(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSecureLogger(&buf, hclog.Debug, false)

	logger.Info("sending with Bearer %s", "very-secret")

	out := buf.String()
	assert.NotContains(t, out, "very-secret")
	assert.Contains(t, out, "[REDACTED]")
}

func TestSecureLogger_LogHTTPRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSecureLogger(&buf, hclog.Debug, false)

	req, err := http.NewRequest(http.MethodGet, "https://apis.roblox.com/cloud/v2/users/1?token=abc", nil)
	require.NoError(t, err)
	req.Header.Set("x-api-key", "super-secret-key")
	req.Header.Set("User-Agent", "rblxcloud/test")

	logger.LogHTTPRequest(req)

	out := buf.String()
	assert.NotContains(t, out, "super-secret-key")
	assert.NotContains(t, out, "token=abc")
	assert.Contains(t, out, "rblxcloud/test")
}

func TestSecureLogger_LogHTTPResponseWithoutRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSecureLogger(&buf, hclog.Debug, false)

	logger.LogHTTPResponse(&http.Response{StatusCode: 204, Header: http.Header{}})

	assert.True(t, strings.Contains(buf.String(), "204"))
}

func TestIsSensitiveHeader(t *testing.T) {
	assert.True(t, isSensitiveHeader("X-Api-Key"))
	assert.True(t, isSensitiveHeader("Authorization"))
	assert.True(t, isSensitiveHeader("Roblox-Signature"))
	assert.False(t, isSensitiveHeader("Content-Type"))
}

func TestWrapLogger_Nil(t *testing.T) {
	logger := WrapLogger(nil)
	require.NotNil(t, logger)
	logger.Error("discarded")
}

type upperRedactor struct{}

func (upperRedactor) Redact(input string) string {
	return strings.ReplaceAll(input, "robux", "[HIDDEN]")
}

func TestSecureLogger_AddRedactor(t *testing.T) {
	logger := NewNullLogger()
	logger.AddRedactor(upperRedactor{})
	assert.Equal(t, "100 [HIDDEN]", logger.redactSensitiveData("100 robux"))
}
