package opencloud

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ErrScopedKey is returned when a store without a scope is given a key not in
// "scope/key" form.
var ErrScopedKey = errors.New("'scope/key' syntax expected for key.")

// EntryInfo is the metadata stored alongside a data store entry
type EntryInfo struct {
	Version  string
	Created  time.Time
	Updated  time.Time
	Users    []int64
	Metadata map[string]any
}

// EntryVersion describes one version of a data store entry
type EntryVersion struct {
	Version       string
	Deleted       bool
	ContentLength int64
	Created       time.Time
	KeyCreated    time.Time

	datastore *DataStore
	key       string
	scope     string
}

// GetValue fetches the value of the entry at this version
func (v *EntryVersion) GetValue(ctx context.Context) (json.RawMessage, *EntryInfo, error) {
	key := v.key
	if v.datastore.Scope == "" {
		key = v.scope + "/" + v.key
	}
	return v.datastore.GetVersion(ctx, key, v.Version)
}

// Equal reports whether both refer to the same version of the same entry
func (v *EntryVersion) Equal(other *EntryVersion) bool {
	if other == nil {
		return false
	}
	return v.key == other.key && v.scope == other.scope && v.Version == other.Version
}

// ListedEntry is a key returned by ListKeys
type ListedEntry struct {
	Key   string `json:"key"`
	Scope string `json:"scope"`
}

// DataStore is a standard data store of an experience. When Scope is empty
// every key must be given as "scope/key".
type DataStore struct {
	Name       string
	Scope      string
	Experience *Experience
	// Created is only known for data stores returned by ListDataStores
	Created time.Time

	client *Client
}

func (ds *DataStore) String() string {
	return fmt.Sprintf("DataStore(%q, scope=%q, experience=%d)", ds.Name, ds.Scope, ds.Experience.ID)
}

func (ds *DataStore) basePath() string {
	return fmt.Sprintf("datastores/v1/universes/%d/standard-datastores/datastore/entries", ds.Experience.ID)
}

func (ds *DataStore) entryParams(key string) (Params, string, string, error) {
	scope, key, err := splitScopedKey(ds.Scope, key)
	if err != nil {
		return nil, "", "", err
	}
	return Params{"datastoreName": ds.Name, "scope": scope, "entryKey": key}, scope, key, nil
}

func splitScopedKey(scope, key string) (string, string, error) {
	if scope != "" {
		return scope, key, nil
	}
	s, k, ok := strings.Cut(key, "/")
	if !ok {
		return "", "", ErrScopedKey
	}
	return s, k, nil
}

// ListKeys iterates the keys in the data store, or in every scope when the
// store has no scope. limit caps the number of keys; 0 lists all of them.
func (ds *DataStore) ListKeys(ctx context.Context, prefix string, limit int) iter.Seq2[ListedEntry, error] {
	var scope any
	if ds.Scope != "" {
		scope = ds.Scope
	}
	return paginate(ctx, ds.client, pageRequest{
		req: Request{
			Method: http.MethodGet,
			Path:   ds.basePath(),
			Query: Params{
				"datastoreName": ds.Name,
				"scope":         scope,
				"AllScopes":     ds.Scope == "",
				"prefix":        prefix,
				"limit":         pageSize(limit, defaultPageSize),
			},
		},
		cursorKey: "cursor",
		dataKey:   "keys",
		limit:     limit,
	}, decodeJSON[ListedEntry])
}

// GetEntry fetches the current value of key
func (ds *DataStore) GetEntry(ctx context.Context, key string) (json.RawMessage, *EntryInfo, error) {
	params, _, _, err := ds.entryParams(key)
	if err != nil {
		return nil, nil, err
	}

	resp, err := ds.client.Do(ctx, &Request{
		Method:         http.MethodGet,
		Path:           ds.basePath() + "/entry",
		Query:          params,
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return nil, nil, err
	}
	return json.RawMessage(resp.Body), entryInfoFromHeader(resp.Header), nil
}

// SetEntryOptions are the optional arguments of SetEntry
type SetEntryOptions struct {
	// Users are the user ids associated with the entry
	Users []int64
	// Metadata is stored as the entry's attributes
	Metadata map[string]any
	// ExclusiveCreate fails the write when the key already exists
	ExclusiveCreate bool
	// PreviousVersion fails the write unless the current version matches
	PreviousVersion string
}

// SetEntry writes value to key. A rejected condition returns a
// *PreconditionFailedError carrying the entry's current value and info.
func (ds *DataStore) SetEntry(ctx context.Context, key string, value any, opts SetEntryOptions) (*EntryVersion, error) {
	if err := validation.Validate(opts.PreviousVersion,
		validation.When(opts.ExclusiveCreate, validation.Empty.Error("PreviousVersion and ExclusiveCreate are mutually exclusive")),
	); err != nil {
		return nil, err
	}

	params, scope, key, err := ds.entryParams(key)
	if err != nil {
		return nil, err
	}
	params["exclusiveCreate"] = opts.ExclusiveCreate
	if opts.PreviousVersion != "" {
		params["matchVersion"] = opts.PreviousVersion
	}

	body, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	header, err := entryHeader(opts.Users, opts.Metadata)
	if err != nil {
		return nil, err
	}
	sum := md5.Sum(body)
	header.Set("content-md5", base64.StdEncoding.EncodeToString(sum[:]))

	resp, err := ds.client.Do(ctx, &Request{
		Method:         http.MethodPost,
		Path:           ds.basePath() + "/entry",
		Query:          params,
		Header:         header,
		Body:           body,
		ContentType:    "application/json",
		ExpectedStatus: []int{http.StatusOK, http.StatusPreconditionFailed},
	})
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusPreconditionFailed {
		message := "Precondition failed."
		switch {
		case opts.ExclusiveCreate:
			message = "A value already exists for this key."
		case opts.PreviousVersion != "":
			message = fmt.Sprintf("The current version is not '%s'", opts.PreviousVersion)
		}
		perr := newPreconditionFailed(resp.StatusCode, message)
		if len(resp.Body) > 0 {
			perr.Value = json.RawMessage(resp.Body)
		}
		perr.Info = entryInfoFromHeader(resp.Header)
		return nil, perr
	}

	return ds.decodeVersion(resp.Body, key, scope)
}

type rawEntryVersion struct {
	Version           string `json:"version"`
	Deleted           bool   `json:"deleted"`
	ContentLength     int64  `json:"contentLength"`
	CreatedTime       string `json:"createdTime"`
	ObjectCreatedTime string `json:"objectCreatedTime"`
}

func (ds *DataStore) decodeVersion(raw []byte, key, scope string) (*EntryVersion, error) {
	var data rawEntryVersion
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode entry version: %w", err)
	}
	return &EntryVersion{
		Version:       data.Version,
		Deleted:       data.Deleted,
		ContentLength: data.ContentLength,
		Created:       parseTime(data.CreatedTime),
		KeyCreated:    parseTime(data.ObjectCreatedTime),
		datastore:     ds,
		key:           key,
		scope:         scope,
	}, nil
}

// IncrementEntry adds delta to a numeric entry and returns the new value
func (ds *DataStore) IncrementEntry(ctx context.Context, key string, delta float64, users []int64, metadata map[string]any) (json.RawMessage, *EntryInfo, error) {
	params, _, _, err := ds.entryParams(key)
	if err != nil {
		return nil, nil, err
	}
	params["incrementBy"] = delta

	header, err := entryHeader(users, metadata)
	if err != nil {
		return nil, nil, err
	}

	resp, err := ds.client.Do(ctx, &Request{
		Method:         http.MethodPost,
		Path:           ds.basePath() + "/entry/increment",
		Query:          params,
		Header:         header,
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return nil, nil, err
	}
	return json.RawMessage(resp.Body), entryInfoFromHeader(resp.Header), nil
}

// RemoveEntry deletes key
func (ds *DataStore) RemoveEntry(ctx context.Context, key string) error {
	params, _, _, err := ds.entryParams(key)
	if err != nil {
		return err
	}
	_, err = ds.client.Do(ctx, &Request{
		Method:         http.MethodDelete,
		Path:           ds.basePath() + "/entry",
		Query:          params,
		ExpectedStatus: []int{http.StatusNoContent},
	})
	return err
}

// ListVersionsOptions filters ListVersions
type ListVersionsOptions struct {
	After      time.Time
	Before     time.Time
	Limit      int
	Descending bool
}

// ListVersions iterates the stored versions of key
func (ds *DataStore) ListVersions(ctx context.Context, key string, opts ListVersionsOptions) iter.Seq2[*EntryVersion, error] {
	params, scope, key, err := ds.entryParams(key)
	if err != nil {
		return errSeq[*EntryVersion](err)
	}

	params["sortOrder"] = "Ascending"
	if opts.Descending {
		params["sortOrder"] = "Descending"
	}
	if !opts.After.IsZero() {
		params["startTime"] = opts.After
	}
	if !opts.Before.IsZero() {
		params["endTime"] = opts.Before
	}
	params["limit"] = pageSize(opts.Limit, defaultPageSize)

	return paginate(ctx, ds.client, pageRequest{
		req:       Request{Method: http.MethodGet, Path: ds.basePath() + "/versions", Query: params},
		cursorKey: "cursor",
		dataKey:   "versions",
		limit:     opts.Limit,
	}, func(raw json.RawMessage) (*EntryVersion, error) {
		return ds.decodeVersion(raw, key, scope)
	})
}

// GetVersion fetches the value of key at versionID
func (ds *DataStore) GetVersion(ctx context.Context, key, versionID string) (json.RawMessage, *EntryInfo, error) {
	params, _, _, err := ds.entryParams(key)
	if err != nil {
		return nil, nil, err
	}
	params["versionId"] = versionID

	resp, err := ds.client.Do(ctx, &Request{
		Method:         http.MethodGet,
		Path:           ds.basePath() + "/entry/versions/version",
		Query:          params,
		ExpectedStatus: []int{http.StatusOK, http.StatusBadRequest},
	})
	if err != nil {
		return nil, nil, err
	}

	if resp.StatusCode == http.StatusBadRequest {
		httpErr := errorFromResponse(resp)
		if httpErr.Message == "Invalid version id." {
			httpErr.WithType(ErrorTypeNotFound)
		}
		return nil, nil, httpErr
	}

	return json.RawMessage(resp.Body), entryInfoFromHeader(resp.Header), nil
}

func entryHeader(users []int64, metadata map[string]any) (http.Header, error) {
	if users == nil {
		users = []int64{}
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	u, err := json.Marshal(users)
	if err != nil {
		return nil, err
	}
	m, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	header := http.Header{}
	header.Set("roblox-entry-userids", string(u))
	header.Set("roblox-entry-attributes", string(m))
	return header, nil
}

func entryInfoFromHeader(header http.Header) *EntryInfo {
	info := &EntryInfo{
		Version:  header.Get("roblox-entry-version"),
		Created:  parseTime(header.Get("roblox-entry-created-time")),
		Updated:  parseTime(header.Get("roblox-entry-version-created-time")),
		Users:    []int64{},
		Metadata: map[string]any{},
	}
	if raw := header.Get("roblox-entry-userids"); raw != "" {
		var ids []flexInt
		if json.Unmarshal([]byte(raw), &ids) == nil {
			for _, id := range ids {
				info.Users = append(info.Users, int64(id))
			}
		}
	}
	if raw := header.Get("roblox-entry-attributes"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &info.Metadata)
	}
	return info
}

// errSeq yields err once. Used when a listing's arguments are invalid.
func errSeq[T any](err error) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		yield(zero, err)
	}
}

// ListDataStores iterates the experience's standard data stores. The returned
// stores use scope, which may be empty to address keys as "scope/key".
func (e *Experience) ListDataStores(ctx context.Context, prefix string, limit int, scope string) iter.Seq2[*DataStore, error] {
	return paginate(ctx, e.client, pageRequest{
		req: Request{
			Method: http.MethodGet,
			Path:   fmt.Sprintf("datastores/v1/universes/%d/standard-datastores", e.ID),
			Query:  Params{"prefix": prefix, "limit": strconv.Itoa(pageSize(limit, defaultPageSize))},
		},
		cursorKey: "cursor",
		dataKey:   "datastores",
		limit:     limit,
	}, func(raw json.RawMessage) (*DataStore, error) {
		var data struct {
			Name        string `json:"name"`
			CreatedTime string `json:"createdTime"`
		}
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, err
		}
		ds := e.DataStore(data.Name, scope)
		ds.Created = parseTime(data.CreatedTime)
		return ds, nil
	})
}
