package opencloud

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// parseTime reads the timestamps Open Cloud returns in bodies and headers.
// An empty or unparsable value yields the zero time.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

// flexInt decodes an integer sent either as a JSON number or a string
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		fl, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("invalid integer %s", b)
		}
		n = int64(fl)
	}
	*f = flexInt(n)
	return nil
}

// idFromPath returns the trailing numeric identifier of a resource path such
// as "users/123", or 0.
func idFromPath(path string) int64 {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	n, _ := strconv.ParseInt(path, 10, 64)
	return n
}

func decodeJSON[T any](raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("failed to decode response: %w", err)
	}
	return v, nil
}

// resourceID decodes an identifier sent as a number, a numeric string or a
// resource path such as "users/123"
type resourceID int64

func (r *resourceID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = resourceID(idFromPath(s))
		return nil
	}
	var n flexInt
	if err := n.UnmarshalJSON(b); err != nil {
		return err
	}
	*r = resourceID(n)
	return nil
}
