package opencloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// SortedEntry is an entry of an ordered data store
type SortedEntry struct {
	Key   string
	Scope string
	Value int64
}

// OrderedDataStore is an ordered data store of an experience
type OrderedDataStore struct {
	Name       string
	Scope      string
	Experience *Experience

	client *Client
}

func (ds *OrderedDataStore) String() string {
	return fmt.Sprintf("OrderedDataStore(%q, scope=%q, experience=%d)", ds.Name, ds.Scope, ds.Experience.ID)
}

func (ds *OrderedDataStore) entriesPath(scope string) string {
	return fmt.Sprintf("ordered-data-stores/v1/universes/%d/orderedDataStores/%s/scopes/%s/entries",
		ds.Experience.ID, url.PathEscape(ds.Name), url.PathEscape(scope))
}

func (ds *OrderedDataStore) entryPath(key string) (string, error) {
	scope, key, err := splitScopedKey(ds.Scope, key)
	if err != nil {
		return "", err
	}
	return ds.entriesPath(scope) + "/" + url.PathEscape(key), nil
}

// SortKeysOptions controls SortKeys. Min and Max are inclusive bounds and are
// ignored when nil.
type SortKeysOptions struct {
	Descending bool
	Limit      int
	Min        *int64
	Max        *int64
}

// SortKeys iterates the store's entries ordered by value
func (ds *OrderedDataStore) SortKeys(ctx context.Context, opts SortKeysOptions) iter.Seq2[SortedEntry, error] {
	if ds.Scope == "" {
		return errSeq[SortedEntry](errors.New("scope is required to list keys with OrderedDataStore"))
	}

	var filter any
	switch {
	case opts.Min != nil && opts.Max != nil:
		if *opts.Min > *opts.Max {
			return errSeq[SortedEntry](errors.New("min must not be greater than max"))
		}
		filter = fmt.Sprintf("entry >= %d && entry <= %d", *opts.Min, *opts.Max)
	case opts.Min != nil:
		filter = fmt.Sprintf("entry >= %d", *opts.Min)
	case opts.Max != nil:
		filter = fmt.Sprintf("entry <= %d", *opts.Max)
	}

	var orderBy any
	if opts.Descending {
		orderBy = "desc"
	}

	scope := ds.Scope
	return paginate(ctx, ds.client, pageRequest{
		req: Request{
			Method: http.MethodGet,
			Path:   ds.entriesPath(scope),
			Query: Params{
				"max_page_size": pageSize(opts.Limit, defaultPageSize),
				"order_by":      orderBy,
				"filter":        filter,
			},
		},
		cursorKey: "page_token",
		dataKey:   "entries",
		limit:     opts.Limit,
	}, func(raw json.RawMessage) (SortedEntry, error) {
		var data struct {
			ID    string  `json:"id"`
			Value flexInt `json:"value"`
		}
		if err := json.Unmarshal(raw, &data); err != nil {
			return SortedEntry{}, err
		}
		return SortedEntry{Key: data.ID, Scope: scope, Value: int64(data.Value)}, nil
	})
}

type orderedValue struct {
	Value flexInt `json:"value"`
}

func decodeOrderedValue(resp *Response) (int64, error) {
	var data orderedValue
	if err := resp.Decode(&data); err != nil {
		return 0, err
	}
	return int64(data.Value), nil
}

// GetEntry returns the value of key
func (ds *OrderedDataStore) GetEntry(ctx context.Context, key string) (int64, error) {
	path, err := ds.entryPath(key)
	if err != nil {
		return 0, err
	}
	resp, err := ds.client.Do(ctx, &Request{
		Method:         http.MethodGet,
		Path:           path,
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return 0, err
	}
	return decodeOrderedValue(resp)
}

// SetEntry writes value to key. exclusiveCreate fails when the key exists and
// exclusiveUpdate fails when it doesn't, both with a *PreconditionFailedError.
func (ds *OrderedDataStore) SetEntry(ctx context.Context, key string, value int64, exclusiveCreate, exclusiveUpdate bool) (int64, error) {
	if err := validation.Validate(exclusiveUpdate,
		validation.When(exclusiveCreate, validation.Empty.Error("exclusiveCreate and exclusiveUpdate can not both be set")),
	); err != nil {
		return 0, err
	}

	scope, bareKey, err := splitScopedKey(ds.Scope, key)
	if err != nil {
		return 0, err
	}

	req := &Request{
		JSON:           map[string]int64{"value": value},
		ExpectedStatus: []int{http.StatusOK, http.StatusBadRequest, http.StatusNotFound},
	}
	if exclusiveCreate {
		req.Method = http.MethodPost
		req.Path = ds.entriesPath(scope)
		req.Query = Params{"id": bareKey}
	} else {
		req.Method = http.MethodPatch
		req.Path = ds.entriesPath(scope) + "/" + url.PathEscape(bareKey)
		req.Query = Params{"allow_missing": !exclusiveUpdate}
	}

	resp, err := ds.client.Do(ctx, req)
	if err != nil {
		return 0, err
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		httpErr := errorFromResponse(resp)
		if httpErr.Message == "Entry already exists." {
			return 0, &PreconditionFailedError{HTTPError: httpErr.WithType(ErrorTypePreconditionFailed)}
		}
		return 0, httpErr
	case http.StatusNotFound:
		httpErr := errorFromResponse(resp)
		if exclusiveUpdate && httpErr.Code == "NOT_FOUND" {
			return 0, &PreconditionFailedError{HTTPError: httpErr.WithType(ErrorTypePreconditionFailed)}
		}
		return 0, httpErr
	}

	return decodeOrderedValue(resp)
}

// IncrementEntry adds delta to key and returns the new value
func (ds *OrderedDataStore) IncrementEntry(ctx context.Context, key string, delta int64) (int64, error) {
	path, err := ds.entryPath(key)
	if err != nil {
		return 0, err
	}
	resp, err := ds.client.Do(ctx, &Request{
		Method:         http.MethodPost,
		Path:           path + ":increment",
		JSON:           map[string]int64{"amount": delta},
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return 0, err
	}
	return decodeOrderedValue(resp)
}

// RemoveEntry deletes key
func (ds *OrderedDataStore) RemoveEntry(ctx context.Context, key string) error {
	path, err := ds.entryPath(key)
	if err != nil {
		return err
	}
	_, err = ds.client.Do(ctx, &Request{
		Method:         http.MethodDelete,
		Path:           path,
		ExpectedStatus: []int{http.StatusOK, http.StatusNoContent},
	})
	return err
}
