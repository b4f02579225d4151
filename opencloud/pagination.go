package opencloud

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"maps"
	"net/http"
)

const defaultPageSize = 100

// errSkipItem is returned by a decode function for items that are not yielded
var errSkipItem = errors.New("skip item")

// pageRequest describes a cursor paginated list endpoint
type pageRequest struct {
	req Request
	// cursorKey is the query parameter the next page cursor is sent in
	cursorKey string
	// dataKey is the field holding the page's items
	dataKey string
	// limit stops iteration after this many items; 0 is unlimited
	limit int
	// next returns the cursor of the page after one holding count items.
	// When nil the nextPageCursor or nextPageToken field is used.
	next func(page map[string]json.RawMessage, cursor string, count int) string
	// onPage is called with every page before its items are decoded
	onPage func(page map[string]json.RawMessage) error
}

// paginate lazily walks every page of a list endpoint. A page is only fetched
// when the consumer asks for an item past the end of the previous one, and
// stopping the loop stops further requests. The first error is yielded and
// ends iteration.
func paginate[T any](ctx context.Context, c *Client, p pageRequest, decode func(json.RawMessage) (T, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		cursor := ""
		yielded := 0

		for {
			req := p.req
			req.Query = maps.Clone(p.req.Query)
			if req.Query == nil {
				req.Query = Params{}
			}
			if cursor != "" {
				req.Query[p.cursorKey] = cursor
			}
			if req.Method == "" {
				req.Method = http.MethodGet
			}
			if len(req.ExpectedStatus) == 0 {
				req.ExpectedStatus = []int{http.StatusOK}
			}

			resp, err := c.Do(ctx, &req)
			if err != nil {
				yield(zero, err)
				return
			}

			var page map[string]json.RawMessage
			if err := resp.Decode(&page); err != nil {
				yield(zero, err)
				return
			}

			if p.onPage != nil {
				if err := p.onPage(page); err != nil {
					yield(zero, err)
					return
				}
			}

			var items []json.RawMessage
			if raw, ok := page[p.dataKey]; ok {
				if err := json.Unmarshal(raw, &items); err != nil {
					yield(zero, err)
					return
				}
			}

			for _, raw := range items {
				item, err := decode(raw)
				if errors.Is(err, errSkipItem) {
					continue
				}
				if !yield(item, err) || err != nil {
					return
				}
				yielded++
				if p.limit > 0 && yielded >= p.limit {
					return
				}
			}

			if p.next != nil {
				cursor = p.next(page, cursor, len(items))
			} else {
				cursor = nextCursor(page)
			}
			if cursor == "" {
				return
			}
		}
	}
}

func nextCursor(page map[string]json.RawMessage) string {
	for _, key := range []string{"nextPageCursor", "nextPageToken"} {
		var cursor string
		if raw, ok := page[key]; ok && json.Unmarshal(raw, &cursor) == nil && cursor != "" {
			return cursor
		}
	}
	return ""
}

// pageSize picks the page size to request for a listing capped at max items
// per page.
func pageSize(limit, max int) int {
	if limit > 0 && limit < max {
		return limit
	}
	return max
}

// Collect drains seq into a slice, stopping at the first error
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var items []T
	for item, err := range seq {
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, nil
}
