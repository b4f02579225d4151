package internal

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ValidationError
		want string
	}{
		{
			name: "basic",
			err:  NewValidationError("timeout", "must be > 0"),
			want: "invalid timeout: must be > 0",
		},
		{
			name: "with_source_and_suggestion",
			err:  NewValidationError("proxy", "bad scheme").WithSource(SourceEnv).WithSuggestion("use socks5://"),
			want: "invalid environment proxy: bad scheme (use socks5://)",
		},
		{
			name: "exclusive_flags",
			err:  ExclusiveFlagsError("user", "group"),
			want: "invalid flag user: --user and --group can not be used together",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestValidationError_DetailedError(t *testing.T) {
	cause := errors.New("strconv.ParseFloat: parsing \"fast\": invalid syntax")
	err := InvalidRateError("fast", cause)

	detailed := err.DetailedError()
	assert.True(t, strings.HasPrefix(detailed, "rate: unrecognized request rate"))
	assert.Contains(t, detailed, "from: flag")
	assert.Contains(t, detailed, "value: fast")
	assert.Contains(t, detailed, "cause: "+cause.Error())
	assert.Contains(t, detailed, "try: Use requests per second")
	assert.ErrorIs(t, err, cause)
}

func TestValidationError_RedactsCredentialValues(t *testing.T) {
	for _, field := range []string{"api_key", "webhook_secret", "refresh_token"} {
		detailed := NewValidationErrorWithValue(field, "is malformed", "my-real-credential").DetailedError()
		assert.NotContains(t, detailed, "my-real-credential", field)
		assert.Contains(t, detailed, "[REDACTED]", field)
	}

	// data store keys are not credentials
	assert.Contains(t, ScopedKeyError("player_1").DetailedError(), "value: player_1")
}

func TestInvalidIDError(t *testing.T) {
	err := InvalidIDError("universe", "abc")
	assert.Equal(t, "universe", err.Field)
	assert.Equal(t, SourceArgument, err.Source)
	assert.Contains(t, err.Error(), "must be a positive integer id")
}

func TestScopedKeyError(t *testing.T) {
	err := ScopedKeyError("player_1")
	assert.Contains(t, err.Suggestion, "global/player_1")

	var validationErr *ValidationError
	require.True(t, errors.As(error(err), &validationErr))
	assert.Equal(t, "key", validationErr.Field)
}

func TestMissingCredentialError(t *testing.T) {
	err := MissingCredentialError("oauth2_client_id", "RBLXCLOUD_OAUTH2_CLIENT_ID")
	assert.Equal(t, "invalid oauth2_client_id: is required (Set RBLXCLOUD_OAUTH2_CLIENT_ID or add oauth2_client_id to the config file)", err.Error())
}
