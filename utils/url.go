package utils

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ResourcePath is a parsed Open Cloud resource name such as
// "universes/123/places/456". Collection names map to their identifiers.
type ResourcePath struct {
	Raw   string
	parts map[string]string
	order []string
}

// ParseResourcePath splits a resource name into collection/identifier pairs.
// A leading "/" or a "cloud/v2/" prefix is ignored.
func ParseResourcePath(path string) (*ResourcePath, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(path, "/"), "cloud/v2/")
	segments := strings.Split(trimmed, "/")
	if trimmed == "" || len(segments)%2 != 0 {
		return nil, fmt.Errorf("invalid resource path %q", path)
	}

	rp := &ResourcePath{Raw: path, parts: make(map[string]string, len(segments)/2)}
	for i := 0; i < len(segments); i += 2 {
		collection, id := segments[i], segments[i+1]
		if collection == "" || id == "" {
			return nil, fmt.Errorf("invalid resource path %q", path)
		}
		rp.parts[collection] = id
		rp.order = append(rp.order, collection)
	}
	return rp, nil
}

// Get returns the identifier for a collection
func (r *ResourcePath) Get(collection string) (string, bool) {
	id, ok := r.parts[collection]
	return id, ok
}

// ID returns the numeric identifier for a collection
func (r *ResourcePath) ID(collection string) (int64, error) {
	id, ok := r.parts[collection]
	if !ok {
		return 0, fmt.Errorf("resource path %q has no %s", r.Raw, collection)
	}
	return strconv.ParseInt(id, 10, 64)
}

// Last returns the final collection and identifier
func (r *ResourcePath) Last() (collection, id string) {
	collection = r.order[len(r.order)-1]
	return collection, r.parts[collection]
}

// ResourceID extracts the numeric identifier of collection from a resource name,
// returning 0 when absent or malformed.
func ResourceID(path, collection string) int64 {
	rp, err := ParseResourcePath(path)
	if err != nil {
		return 0
	}
	id, err := rp.ID(collection)
	if err != nil {
		return 0
	}
	return id
}

// LastSegment returns the part of a path after its final "/"
func LastSegment(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// JoinPath joins path segments, escaping each one
func JoinPath(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return strings.Join(escaped, "/")
}

// ValidateBaseURL checks that a base URL is absolute and uses http(s)
func ValidateBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base URL %q has no host", raw)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}
