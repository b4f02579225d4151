package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResourcePath(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		expectErr bool
		last      string
		lastID    string
	}{
		{"universe_place", "universes/1/places/2", false, "places", "2"},
		{"leading_slash", "/groups/7/roles/3", false, "roles", "3"},
		{"cloud_prefix", "cloud/v2/users/99", false, "users", "99"},
		{"odd_segments", "universes/1/places", true, "", ""},
		{"empty", "", true, "", ""},
		{"empty_id", "users//groups/1", true, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rp, err := ParseResourcePath(tt.path)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			collection, id := rp.Last()
			assert.Equal(t, tt.last, collection)
			assert.Equal(t, tt.lastID, id)
		})
	}
}

func TestResourcePath_ID(t *testing.T) {
	rp, err := ParseResourcePath("universes/123/subscription-products/abc/subscriptions/456")
	require.NoError(t, err)

	id, err := rp.ID("universes")
	require.NoError(t, err)
	assert.Equal(t, int64(123), id)

	product, ok := rp.Get("subscription-products")
	assert.True(t, ok)
	assert.Equal(t, "abc", product)

	_, err = rp.ID("subscription-products")
	assert.Error(t, err)

	_, err = rp.ID("places")
	assert.Error(t, err)
}

func TestResourceID(t *testing.T) {
	assert.Equal(t, int64(42), ResourceID("users/42", "users"))
	assert.Equal(t, int64(5), ResourceID("groups/1/roles/5", "roles"))
	assert.Equal(t, int64(0), ResourceID("groups/1", "users"))
	assert.Equal(t, int64(0), ResourceID("garbage", "users"))
}

func TestLastSegment(t *testing.T) {
	assert.Equal(t, "op-1", LastSegment("universes/1/memory-store/operations/op-1"))
	assert.Equal(t, "plain", LastSegment("plain"))
}

func TestJoinPath(t *testing.T) {
	assert.Equal(t, "universes/1/topics/my%20topic", JoinPath("universes", "1", "topics", "my topic"))
	assert.Equal(t, "a%2Fb", JoinPath("a/b"))
}

func TestValidateBaseURL(t *testing.T) {
	u, err := ValidateBaseURL("http://127.0.0.1:8080")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8080/", u.String())

	_, err = ValidateBaseURL("ftp://host")
	assert.Error(t, err)

	_, err = ValidateBaseURL("https://")
	assert.Error(t, err)
}
