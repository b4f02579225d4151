package opencloud

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// MaxSortedMapExpiration is the longest time a sorted map item may live
const MaxSortedMapExpiration = 3888000 * time.Second

// SortedMapEntry is an item in a memory store sorted map
type SortedMapEntry struct {
	Key string
	// SortKey is a string, a float64 or nil
	SortKey any
	Value   json.RawMessage
	Etag    string
	Expires time.Time
}

type rawSortedMapEntry struct {
	ID             string          `json:"id"`
	Value          json.RawMessage `json:"value"`
	Etag           string          `json:"etag"`
	ExpireTime     string          `json:"expireTime"`
	StringSortKey  *string         `json:"stringSortKey"`
	NumericSortKey *float64        `json:"numericSortKey"`
}

func decodeSortedMapEntry(raw json.RawMessage) (*SortedMapEntry, error) {
	var data rawSortedMapEntry
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode sorted map item: %w", err)
	}
	entry := &SortedMapEntry{
		Key:     data.ID,
		Value:   data.Value,
		Etag:    data.Etag,
		Expires: parseTime(data.ExpireTime),
	}
	switch {
	case data.NumericSortKey != nil:
		entry.SortKey = *data.NumericSortKey
	case data.StringSortKey != nil:
		entry.SortKey = *data.StringSortKey
	}
	return entry, nil
}

// SortedMap is a memory store sorted map
type SortedMap struct {
	Name       string
	Experience *Experience

	client *Client
}

func (m *SortedMap) String() string {
	return fmt.Sprintf("SortedMap(%q, experience=%d)", m.Name, m.Experience.ID)
}

func (m *SortedMap) itemsPath() string {
	return fmt.Sprintf("/universes/%d/memory-store/sorted-maps/%s/items", m.Experience.ID, url.PathEscape(m.Name))
}

// ListSortedMapOptions controls ListKeys. Bounds are exclusive and ignored when
// nil; they may be strings or numbers.
type ListSortedMapOptions struct {
	Descending        bool
	Limit             int
	LowerBoundKey     any
	UpperBoundKey     any
	LowerBoundSortKey any
	UpperBoundSortKey any
}

func (o ListSortedMapOptions) filter() string {
	var clauses []string
	add := func(field, op string, bound any) {
		if bound == nil {
			return
		}
		clauses = append(clauses, fmt.Sprintf("%s %s %s", field, op, filterLiteral(bound)))
	}
	add("id", ">", o.LowerBoundKey)
	add("id", "<", o.UpperBoundKey)
	add("sortKey", ">", o.LowerBoundSortKey)
	add("sortKey", "<", o.UpperBoundSortKey)
	return strings.Join(clauses, " && ")
}

func filterLiteral(v any) string {
	if s, ok := v.(string); ok {
		return `"` + s + `"`
	}
	return fmt.Sprint(v)
}

// ListKeys iterates the map's items in sort order
func (m *SortedMap) ListKeys(ctx context.Context, opts ListSortedMapOptions) iter.Seq2[*SortedMapEntry, error] {
	var orderBy any
	if opts.Descending {
		orderBy = "desc"
	}
	var filter any
	if f := opts.filter(); f != "" {
		filter = f
	}

	return paginate(ctx, m.client, pageRequest{
		req: Request{
			Method: http.MethodGet,
			Path:   m.itemsPath(),
			Query: Params{
				"orderBy":     orderBy,
				"maxPageSize": pageSize(opts.Limit, defaultPageSize),
				"filter":      filter,
			},
		},
		cursorKey: "pageToken",
		dataKey:   "items",
		limit:     opts.Limit,
	}, decodeSortedMapEntry)
}

// GetKey fetches one item
func (m *SortedMap) GetKey(ctx context.Context, key string) (*SortedMapEntry, error) {
	resp, err := m.client.Do(ctx, &Request{
		Method:         http.MethodGet,
		Path:           m.itemsPath() + "/" + url.PathEscape(key),
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}
	return decodeSortedMapEntry(resp.Body)
}

// SetKeyOptions are the arguments of SetKey besides the key and value
type SetKeyOptions struct {
	Expiration time.Duration
	// SortKey is a string or a number
	SortKey         any
	ExclusiveCreate bool
	ExclusiveUpdate bool
}

// SetKey writes an item. Exclusive writes that are rejected return a
// *PreconditionFailedError.
func (m *SortedMap) SetKey(ctx context.Context, key string, value any, opts SetKeyOptions) (*SortedMapEntry, error) {
	if err := validation.ValidateStruct(&opts,
		validation.Field(&opts.Expiration, validation.Required, validation.Max(MaxSortedMapExpiration)),
		validation.Field(&opts.ExclusiveUpdate, validation.When(opts.ExclusiveCreate,
			validation.Empty.Error("ExclusiveCreate and ExclusiveUpdate can not both be set"))),
	); err != nil {
		return nil, err
	}

	body := map[string]any{
		"id":    key,
		"Value": value,
		"Ttl":   fmt.Sprintf("%ds", int64(opts.Expiration/time.Second)),
	}
	switch sk := opts.SortKey.(type) {
	case nil:
	case string:
		body["stringSortKey"] = sk
	default:
		body["numericSortKey"] = sk
	}

	req := &Request{JSON: body}
	if opts.ExclusiveCreate {
		req.Method = http.MethodPost
		req.Path = m.itemsPath()
		req.Query = Params{"id": key}
		req.ExpectedStatus = []int{http.StatusOK, http.StatusConflict}
	} else {
		req.Method = http.MethodPatch
		req.Path = m.itemsPath() + "/" + url.PathEscape(key)
		req.Query = Params{"allowMissing": !opts.ExclusiveUpdate}
		req.ExpectedStatus = []int{http.StatusOK, http.StatusNotFound, http.StatusConflict}
	}

	resp, err := m.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		httpErr := errorFromResponse(resp)
		if opts.ExclusiveUpdate {
			return nil, &PreconditionFailedError{HTTPError: httpErr.WithType(ErrorTypePreconditionFailed)}
		}
		return nil, httpErr
	case http.StatusConflict:
		httpErr := errorFromResponse(resp)
		if httpErr.Code == "ALREADY_EXISTS" || bodyField(resp, "error") == "ALREADY_EXISTS" {
			return nil, &PreconditionFailedError{HTTPError: httpErr.WithType(ErrorTypePreconditionFailed)}
		}
		return nil, httpErr
	}

	entry, err := decodeSortedMapEntry(resp.Body)
	if err != nil {
		return nil, err
	}
	if entry.Key == "" {
		entry.Key = key
	}
	return entry, nil
}

// RemoveKey deletes an item. A non-empty etag makes the delete conditional.
func (m *SortedMap) RemoveKey(ctx context.Context, key, etag string) error {
	var params Params
	if etag != "" {
		params = Params{"etag": etag}
	}
	_, err := m.client.Do(ctx, &Request{
		Method:         http.MethodDelete,
		Path:           m.itemsPath() + "/" + url.PathEscape(key),
		Query:          params,
		ExpectedStatus: []int{http.StatusOK, http.StatusNoContent},
	})
	return err
}

// MemoryStoreQueue is a memory store queue
type MemoryStoreQueue struct {
	Name       string
	Experience *Experience

	client *Client
}

func (q *MemoryStoreQueue) String() string {
	return fmt.Sprintf("MemoryStoreQueue(%q, experience=%d)", q.Name, q.Experience.ID)
}

func (q *MemoryStoreQueue) path(action string) string {
	return fmt.Sprintf("/universes/%d/memory-store/queues/%s/items:%s", q.Experience.ID, url.PathEscape(q.Name), action)
}

// QueueAddOptions are the optional arguments of AddItem
type QueueAddOptions struct {
	// Expiration defaults to 30 seconds
	Expiration time.Duration
	Priority   float64
}

// AddItem pushes value onto the queue
func (q *MemoryStoreQueue) AddItem(ctx context.Context, value any, opts QueueAddOptions) error {
	if opts.Expiration <= 0 {
		opts.Expiration = 30 * time.Second
	}
	_, err := q.client.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   q.path("add"),
		JSON: map[string]any{
			"Data":     value,
			"Ttl":      fmt.Sprintf("%ds", int64(opts.Expiration/time.Second)),
			"Priority": opts.Priority,
		},
		ExpectedStatus: []int{http.StatusOK},
	})
	return err
}

// ReadItems reads up to count items and hides them for invisibility. The
// returned read id is passed to RemoveItems; it is empty when the queue had
// nothing to read.
func (q *MemoryStoreQueue) ReadItems(ctx context.Context, count int, allOrNothing bool, invisibility time.Duration) ([]json.RawMessage, string, error) {
	if count <= 0 {
		count = 1
	}
	if invisibility <= 0 {
		invisibility = 30 * time.Second
	}

	resp, err := q.client.Do(ctx, &Request{
		Method: http.MethodGet,
		Path:   q.path("read"),
		Query: Params{
			"count":                      count,
			"allOrNothing":               allOrNothing,
			"invisibilityTimeoutSeconds": int64(invisibility / time.Second),
		},
		ExpectedStatus: []int{http.StatusOK, http.StatusNoContent},
	})
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode == http.StatusNoContent {
		return []json.RawMessage{}, "", nil
	}

	var data struct {
		Data []json.RawMessage `json:"data"`
		ID   string            `json:"id"`
	}
	if err := resp.Decode(&data); err != nil {
		return nil, "", err
	}
	if data.Data == nil {
		data.Data = []json.RawMessage{}
	}
	return data.Data, data.ID, nil
}

// RemoveItems discards the items returned by a read
func (q *MemoryStoreQueue) RemoveItems(ctx context.Context, readID string) error {
	if err := validation.Validate(readID, validation.Required); err != nil {
		return fmt.Errorf("readID: %w", err)
	}
	_, err := q.client.Do(ctx, &Request{
		Method:         http.MethodPost,
		Path:           q.path("discard"),
		Query:          Params{"readId": readID},
		JSON:           map[string]any{},
		ExpectedStatus: []int{http.StatusOK},
	})
	return err
}
