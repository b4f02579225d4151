package opencloud

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_RequiresCredential(t *testing.T) {
	_, err := NewClient("")
	assert.Error(t, err)
}

func TestNewClient_RejectsBadBaseURL(t *testing.T) {
	_, err := NewClient("key", WithBaseURL("ftp://example.com"))
	assert.Error(t, err)
}

func TestClient_Do_SendsAPIKey(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{})
	})

	_, err := client.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/universes/1"})
	require.NoError(t, err)

	got := rec.last()
	assert.Equal(t, "/cloud/v2/universes/1", got.Path)
	assert.Equal(t, "test-key", got.Header.Get("x-api-key"))
	assert.Empty(t, got.Header.Get("Authorization"))
	assert.Contains(t, got.Header.Get("User-Agent"), "rblxcloud/")
}

func TestClient_Do_SendsBearerToken(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{})
	})
	bearer := client.withCredential("Bearer abc")

	_, err := bearer.Do(context.Background(), &Request{Method: http.MethodGet, Path: "oauth/v1/userinfo"})
	require.NoError(t, err)

	got := rec.last()
	assert.Equal(t, "/oauth/v1/userinfo", got.Path)
	assert.Equal(t, "Bearer abc", got.Header.Get("Authorization"))
	assert.Empty(t, got.Header.Get("x-api-key"))
}

func TestClient_Do_EncodesQuery(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		w.WriteHeader(http.StatusOK)
	})

	when := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	_, err := client.Do(context.Background(), &Request{
		Method: http.MethodGet,
		Path:   "x",
		Query: Params{
			"flag":  true,
			"n":     7,
			"skip":  nil,
			"when":  when,
			"mask":  []string{"a", "b"},
			"float": 1.5,
		},
	})
	require.NoError(t, err)

	q := rec.last().Query
	assert.Equal(t, "true", q.Get("flag"))
	assert.Equal(t, "7", q.Get("n"))
	assert.False(t, q.Has("skip"))
	assert.Equal(t, "2024-01-02T03:04:05Z", q.Get("when"))
	assert.Equal(t, "a,b", q.Get("mask"))
	assert.Equal(t, "1.5", q.Get("float"))
}

func TestClient_Do_MapsStatusToErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     any
		sentinel error
		code     string
		message  string
	}{
		{"not_found", 404, map[string]any{"code": "NOT_FOUND", "message": "missing"}, ErrNotFound, "NOT_FOUND", "missing"},
		{"forbidden", 403, map[string]any{"errors": []any{map[string]any{"code": "INSUFFICIENT_SCOPE", "message": "no scope"}}}, ErrForbidden, "INSUFFICIENT_SCOPE", "no scope"},
		{"bad_request", 400, map[string]any{"error": "INVALID_ARGUMENT", "message": "bad"}, ErrHTTP, "INVALID_ARGUMENT", "bad"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
				writeJSON(w, tt.status, tt.body)
			})

			_, err := client.Do(context.Background(), &Request{
				Method:         http.MethodGet,
				Path:           "x",
				ExpectedStatus: []int{http.StatusOK},
			})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.sentinel))
			assert.True(t, errors.Is(err, ErrHTTP))

			var httpErr *HTTPError
			require.True(t, errors.As(err, &httpErr))
			assert.Equal(t, tt.status, httpErr.StatusCode)
			assert.Equal(t, tt.code, httpErr.Code)
			assert.Equal(t, tt.message, httpErr.Message)
		})
	}
}

func TestClient_Do_PlainTextError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("conflict happened"))
	})

	_, err := client.Do(context.Background(), &Request{Method: http.MethodGet, Path: "x", ExpectedStatus: []int{200}})
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, "conflict happened", httpErr.Message)
	assert.Equal(t, ErrorTypeHTTP, httpErr.Type)
}

func TestClient_Do_RetriesRateLimit(t *testing.T) {
	calls := 0
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		calls++
		if calls < 3 {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{"message": "slow down"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	resp, err := client.Do(context.Background(), &Request{
		Method:         http.MethodPost,
		Path:           "x",
		JSON:           map[string]any{"a": 1},
		ExpectedStatus: []int{http.StatusOK},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	requests := rec.all()
	require.Len(t, requests, 3)
	for _, r := range requests {
		assert.JSONEq(t, `{"a":1}`, string(r.Body))
	}
}

func TestClient_Do_RateLimitedAfterRetries(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"message": "slow down"})
	})

	_, err := client.Do(context.Background(), &Request{Method: http.MethodGet, Path: "x", ExpectedStatus: []int{200}})
	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.Len(t, rec.all(), 3)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.True(t, httpErr.IsRetryable())
}

func TestHTTPError_Formatting(t *testing.T) {
	err := NewHTTPError(404, ErrorTypeNotFound)
	err.Code = "NOT_FOUND"
	assert.Equal(t, "404 NOT_FOUND: "+err.Message, err.Error())
	assert.Contains(t, err.DetailedError(), "Status: 404")

	plain := NewHTTPError(500, ErrorTypeHTTP).WithMessage("boom")
	assert.Equal(t, "500: boom", plain.Error())
	assert.True(t, plain.IsRetryable())
}

func TestPreconditionFailedError_Unwraps(t *testing.T) {
	err := error(newPreconditionFailed(412, "nope"))
	assert.True(t, errors.Is(err, ErrPreconditionFailed))
	assert.True(t, errors.Is(err, ErrHTTP))
	assert.False(t, errors.Is(err, ErrNotFound))
}
