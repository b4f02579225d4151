package opencloud

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_FetchInfo(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{
			"name":              "deploy",
			"enabled":           true,
			"expirationUtcTime": "2030-01-01T00:00:00Z",
			"authorizedUserId":  156,
			"scopes": []map[string]any{
				{"name": "universe-places", "operations": []string{"write"}, "universeIds": []string{"9"}},
				{"name": "group", "operations": []string{"read"}, "groupIds": []string{"*"}},
				{
					"name":       "universe-datastores.objects",
					"operations": []string{"read", "create"},
					"universeDatastores": []map[string]any{
						{"universeId": "9", "datastoreName": "players"},
						{"universeId": "10"},
					},
				},
			},
		})
	})

	info, err := client.FetchInfo(context.Background())
	require.NoError(t, err)

	got := rec.last()
	assert.Equal(t, "/api-keys/v1/introspect", got.Path)
	assert.JSONEq(t, `{"apiKey": "test-key"}`, string(got.Body))

	assert.Equal(t, "deploy", info.Name)
	assert.True(t, info.Enabled)
	assert.Equal(t, 2030, info.ExpiresAt.Year())
	assert.Equal(t, int64(156), info.AuthorizedUser.ID)
	require.Len(t, info.Scopes, 3)

	places := info.Scopes[0]
	require.Len(t, places.Experiences, 1)
	assert.Equal(t, int64(9), places.Experiences[0].ID)
	assert.Nil(t, places.DataStores)

	assert.True(t, info.Scopes[1].AllGroups)
	assert.Nil(t, info.Scopes[1].Groups)

	stores := info.Scopes[2]
	require.Len(t, stores.DataStores, 1)
	assert.Equal(t, "players", stores.DataStores[0].Name)
	assert.Equal(t, int64(9), stores.DataStores[0].Experience.ID)
	require.Len(t, stores.Experiences, 1)
	assert.Equal(t, int64(10), stores.Experiences[0].ID)
}

func TestClient_FetchInfoAllDataStores(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{
			"scopes": []map[string]any{{
				"name":               "universe-datastores.objects",
				"universeDatastores": []map[string]any{{"universeId": "*"}},
			}},
		})
	})

	info, err := client.FetchInfo(context.Background())
	require.NoError(t, err)
	require.Len(t, info.Scopes, 1)
	assert.True(t, info.Scopes[0].AllExperiences)
	assert.Nil(t, info.Scopes[0].DataStores)
}

func TestClient_Handles(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {})

	exp := client.Experience(9)
	assert.Equal(t, "Experience(9)", exp.String())
	assert.Equal(t, "Place(3, experience=9)", exp.Place(3).String())
	assert.Equal(t, `SortedMap("scores", experience=9)`, exp.SortedMap("scores").String())
	assert.Equal(t, "Group(7)", client.Group(7).String())
	assert.Equal(t, CreatorTypeUser, client.User(1).Type)
}
