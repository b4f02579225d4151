package opencloud

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const entryPath = "/datastores/v1/universes/42/standard-datastores/datastore/entries/entry"

func entryHeaders(w http.ResponseWriter) {
	w.Header().Set("roblox-entry-version", "08DA0000000000000000000000000001")
	w.Header().Set("roblox-entry-created-time", "2024-01-01T00:00:00.000Z")
	w.Header().Set("roblox-entry-version-created-time", "2024-02-01T00:00:00.000Z")
	w.Header().Set("roblox-entry-userids", "[1, 2]")
	w.Header().Set("roblox-entry-attributes", `{"source":"test"}`)
}

func TestDataStore_GetEntry(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		entryHeaders(w)
		writeJSON(w, http.StatusOK, map[string]any{"coins": 10})
	})
	ds := client.Experience(42).DataStore("players", "global")

	value, info, err := ds.GetEntry(context.Background(), "user_1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"coins":10}`, string(value))
	assert.Equal(t, "08DA0000000000000000000000000001", info.Version)
	assert.Equal(t, []int64{1, 2}, info.Users)
	assert.Equal(t, "test", info.Metadata["source"])
	assert.Equal(t, 2024, info.Created.Year())
	assert.Equal(t, 2, int(info.Updated.Month()))

	got := rec.last()
	assert.Equal(t, entryPath, got.Path)
	assert.Equal(t, "players", got.Query.Get("datastoreName"))
	assert.Equal(t, "global", got.Query.Get("scope"))
	assert.Equal(t, "user_1", got.Query.Get("entryKey"))
}

func TestDataStore_ScopedKeys(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		entryHeaders(w)
		writeJSON(w, http.StatusOK, 1)
	})
	ds := client.Experience(42).DataStore("players", "")

	_, _, err := ds.GetEntry(context.Background(), "user_1")
	assert.ErrorIs(t, err, ErrScopedKey)
	assert.Empty(t, rec.all())

	_, _, err = ds.GetEntry(context.Background(), "season1/user_1")
	require.NoError(t, err)
	assert.Equal(t, "season1", rec.last().Query.Get("scope"))
	assert.Equal(t, "user_1", rec.last().Query.Get("entryKey"))
}

func TestDataStore_SetEntry(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{
			"version":           "v2",
			"deleted":           false,
			"contentLength":     11,
			"createdTime":       "2024-03-01T00:00:00Z",
			"objectCreatedTime": "2024-01-01T00:00:00Z",
		})
	})
	ds := client.Experience(42).DataStore("players", "global")

	version, err := ds.SetEntry(context.Background(), "user_1", map[string]int{"coins": 10}, SetEntryOptions{
		Users:           []int64{7},
		Metadata:        map[string]any{"a": "b"},
		PreviousVersion: "v1",
	})
	require.NoError(t, err)
	assert.Equal(t, "v2", version.Version)
	assert.Equal(t, int64(11), version.ContentLength)
	assert.Equal(t, 3, int(version.Created.Month()))

	got := rec.last()
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, entryPath, got.Path)
	assert.Equal(t, "v1", got.Query.Get("matchVersion"))
	assert.Equal(t, "false", got.Query.Get("exclusiveCreate"))
	assert.Equal(t, "[7]", got.Header.Get("roblox-entry-userids"))
	assert.JSONEq(t, `{"a":"b"}`, got.Header.Get("roblox-entry-attributes"))
	assert.JSONEq(t, `{"coins":10}`, string(got.Body))

	sum := md5.Sum(got.Body)
	assert.Equal(t, base64.StdEncoding.EncodeToString(sum[:]), got.Header.Get("content-md5"))
}

func TestDataStore_SetEntryPreconditionFailed(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		entryHeaders(w)
		writeJSON(w, http.StatusPreconditionFailed, map[string]any{"coins": 3})
	})
	ds := client.Experience(42).DataStore("players", "global")

	_, err := ds.SetEntry(context.Background(), "user_1", 5, SetEntryOptions{ExclusiveCreate: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPreconditionFailed))

	var perr *PreconditionFailedError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "A value already exists for this key.", perr.Message)
	assert.JSONEq(t, `{"coins":3}`, string(perr.Value))
	assert.Equal(t, "08DA0000000000000000000000000001", perr.Info.Version)
}

func TestDataStore_SetEntryRejectsConflictingConditions(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{})
	})
	ds := client.Experience(42).DataStore("players", "global")

	_, err := ds.SetEntry(context.Background(), "k", 1, SetEntryOptions{ExclusiveCreate: true, PreviousVersion: "v1"})
	assert.Error(t, err)
	assert.Empty(t, rec.all())
}

func TestDataStore_IncrementEntry(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		entryHeaders(w)
		writeJSON(w, http.StatusOK, 15)
	})
	ds := client.Experience(42).DataStore("players", "global")

	value, info, err := ds.IncrementEntry(context.Background(), "coins", 5, nil, nil)
	require.NoError(t, err)
	assert.JSONEq(t, "15", string(value))
	assert.NotNil(t, info)

	got := rec.last()
	assert.Equal(t, entryPath+"/increment", got.Path)
	assert.Equal(t, "5", got.Query.Get("incrementBy"))
	assert.Equal(t, "[]", got.Header.Get("roblox-entry-userids"))
}

func TestDataStore_RemoveEntry(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		w.WriteHeader(http.StatusNoContent)
	})
	ds := client.Experience(42).DataStore("players", "global")

	require.NoError(t, ds.RemoveEntry(context.Background(), "user_1"))
	assert.Equal(t, http.MethodDelete, rec.last().Method)
}

func TestDataStore_ListKeys(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		if r.Query.Get("cursor") == "" {
			writeJSON(w, http.StatusOK, map[string]any{
				"keys":           []map[string]string{{"key": "a", "scope": "s1"}, {"key": "b", "scope": "s2"}},
				"nextPageCursor": "next",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"keys": []map[string]string{{"key": "c", "scope": "s1"}}})
	})
	ds := client.Experience(42).DataStore("players", "")

	keys, err := Collect(ds.ListKeys(context.Background(), "pre", 0))
	require.NoError(t, err)
	assert.Equal(t, []ListedEntry{{"a", "s1"}, {"b", "s2"}, {"c", "s1"}}, keys)

	first := rec.all()[0]
	assert.Equal(t, "true", first.Query.Get("AllScopes"))
	assert.False(t, first.Query.Has("scope"))
	assert.Equal(t, "pre", first.Query.Get("prefix"))
	assert.Equal(t, "100", first.Query.Get("limit"))
}

func TestDataStore_ListVersionsAndGetValue(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		switch r.Path {
		case entryPath[:len(entryPath)-len("/entry")] + "/versions":
			writeJSON(w, http.StatusOK, map[string]any{
				"versions": []map[string]any{
					{"version": "v1", "createdTime": "2024-01-01T00:00:00Z"},
					{"version": "v2", "deleted": true, "createdTime": "2024-01-02T00:00:00Z"},
				},
			})
		case entryPath + "/versions/version":
			entryHeaders(w)
			writeJSON(w, http.StatusOK, "old")
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	})
	ds := client.Experience(42).DataStore("players", "")

	versions, err := Collect(ds.ListVersions(context.Background(), "s1/user_1", ListVersionsOptions{Descending: true}))
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.True(t, versions[1].Deleted)
	assert.Equal(t, "Descending", rec.last().Query.Get("sortOrder"))
	assert.False(t, versions[0].Equal(versions[1]))
	assert.True(t, versions[0].Equal(versions[0]))

	value, _, err := versions[0].GetValue(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `"old"`, string(value))

	got := rec.last()
	assert.Equal(t, "v1", got.Query.Get("versionId"))
	assert.Equal(t, "s1", got.Query.Get("scope"))
	assert.Equal(t, "user_1", got.Query.Get("entryKey"))
}

func TestDataStore_GetVersionInvalidID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "INVALID_ARGUMENT", "message": "Invalid version id."})
	})
	ds := client.Experience(42).DataStore("players", "global")

	_, _, err := ds.GetVersion(context.Background(), "user_1", "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestExperience_ListDataStores(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{
			"datastores": []map[string]any{
				{"name": "players", "createdTime": "2023-05-01T00:00:00Z"},
				{"name": "guilds", "createdTime": "2023-06-01T00:00:00Z"},
			},
		})
	})

	stores, err := Collect(client.Experience(42).ListDataStores(context.Background(), "", 0, "global"))
	require.NoError(t, err)
	require.Len(t, stores, 2)
	assert.Equal(t, "players", stores[0].Name)
	assert.Equal(t, "global", stores[0].Scope)
	assert.Equal(t, 2023, stores[1].Created.Year())
	assert.Equal(t, "/datastores/v1/universes/42/standard-datastores", rec.last().Path)
}
