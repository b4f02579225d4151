package opencloud

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderedEntries = "/ordered-data-stores/v1/universes/42/orderedDataStores/points/scopes/global/entries"

func TestOrderedDataStore_SortKeys(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		if r.Query.Get("page_token") == "" {
			writeJSON(w, http.StatusOK, map[string]any{
				"entries":       []map[string]any{{"id": "a", "value": 30}, {"id": "b", "value": "20"}},
				"nextPageToken": "t2",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": []map[string]any{{"id": "c", "value": 10}}})
	})
	ds := client.Experience(42).OrderedDataStore("points", "global")

	lo, hi := int64(5), int64(50)
	entries, err := Collect(ds.SortKeys(context.Background(), SortKeysOptions{Descending: true, Min: &lo, Max: &hi}))
	require.NoError(t, err)
	assert.Equal(t, []SortedEntry{{"a", "global", 30}, {"b", "global", 20}, {"c", "global", 10}}, entries)

	first := rec.all()[0]
	assert.Equal(t, orderedEntries, first.Path)
	assert.Equal(t, "desc", first.Query.Get("order_by"))
	assert.Equal(t, "entry >= 5 && entry <= 50", first.Query.Get("filter"))
	assert.Equal(t, "t2", rec.last().Query.Get("page_token"))
}

func TestOrderedDataStore_SortKeysValidation(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{})
	})

	_, err := Collect(client.Experience(42).OrderedDataStore("points", "").SortKeys(context.Background(), SortKeysOptions{}))
	assert.Error(t, err)

	lo, hi := int64(10), int64(1)
	_, err = Collect(client.Experience(42).OrderedDataStore("points", "global").SortKeys(context.Background(), SortKeysOptions{Min: &lo, Max: &hi}))
	assert.Error(t, err)
	assert.Empty(t, rec.all())
}

func TestOrderedDataStore_GetIncrementRemove(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		switch r.Method {
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			writeJSON(w, http.StatusOK, map[string]any{"value": "12"})
		}
	})
	ds := client.Experience(42).OrderedDataStore("points", "global")

	value, err := ds.GetEntry(context.Background(), "player one")
	require.NoError(t, err)
	assert.Equal(t, int64(12), value)
	assert.Equal(t, orderedEntries+"/player one", rec.last().Path)

	value, err = ds.IncrementEntry(context.Background(), "p1", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(12), value)
	assert.Equal(t, orderedEntries+"/p1:increment", rec.last().Path)
	assert.JSONEq(t, `{"amount":3}`, string(rec.last().Body))

	require.NoError(t, ds.RemoveEntry(context.Background(), "p1"))
	assert.Equal(t, http.MethodDelete, rec.last().Method)
}

func TestOrderedDataStore_SetEntry(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{"value": 9})
	})
	ds := client.Experience(42).OrderedDataStore("points", "global")

	_, err := ds.SetEntry(context.Background(), "p1", 9, false, false)
	require.NoError(t, err)
	got := rec.last()
	assert.Equal(t, http.MethodPatch, got.Method)
	assert.Equal(t, "true", got.Query.Get("allow_missing"))
	assert.JSONEq(t, `{"value":9}`, string(got.Body))

	_, err = ds.SetEntry(context.Background(), "p1", 9, true, false)
	require.NoError(t, err)
	got = rec.last()
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, orderedEntries, got.Path)
	assert.Equal(t, "p1", got.Query.Get("id"))

	_, err = ds.SetEntry(context.Background(), "p1", 9, true, true)
	assert.Error(t, err)
}

func TestOrderedDataStore_SetEntryPreconditions(t *testing.T) {
	tests := []struct {
		name            string
		status          int
		body            map[string]any
		exclusiveCreate bool
		exclusiveUpdate bool
		precondition    bool
	}{
		{"exists", 400, map[string]any{"message": "Entry already exists."}, true, false, true},
		{"missing_exclusive_update", 404, map[string]any{"code": "NOT_FOUND", "message": "Entry not found."}, false, true, true},
		{"missing_plain", 404, map[string]any{"code": "NOT_FOUND", "message": "Entry not found."}, false, false, false},
		{"other_bad_request", 400, map[string]any{"message": "Invalid value."}, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {
				writeJSON(w, tt.status, tt.body)
			})
			ds := client.Experience(42).OrderedDataStore("points", "global")

			_, err := ds.SetEntry(context.Background(), "p1", 1, tt.exclusiveCreate, tt.exclusiveUpdate)
			require.Error(t, err)
			assert.Equal(t, tt.precondition, errors.Is(err, ErrPreconditionFailed))
		})
	}
}
