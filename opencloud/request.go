package opencloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Params are query parameters. Nil values are dropped and booleans are
// sent in lowercase.
type Params map[string]any

// Request describes a single Open Cloud call. Path is relative to the base
// URL; a leading "/" selects the "cloud/v2" API.
type Request struct {
	Method string
	Path   string
	Query  Params
	Header http.Header

	// At most one of JSON, Body or Form is sent.
	JSON        any
	Body        []byte
	ContentType string
	Form        url.Values

	// ExpectedStatus lists the statuses returned to the caller untouched.
	// Any other status becomes a typed error. When empty no status is
	// treated as an error.
	ExpectedStatus []int
}

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// JSON is set when the server labelled the body application/json
	JSON bool
}

// Decode unmarshals a JSON body into v
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("empty response body (HTTP %d)", r.StatusCode)
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Text returns the body as a string
func (r *Response) Text() string {
	return string(r.Body)
}

// Do sends req with the client's credential, retrying transient failures.
// It can be used for endpoints the library does not wrap.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	path := req.Path
	if strings.HasPrefix(path, "/") {
		path = "cloud/v2" + path
	}

	ctx, span := c.tracer.Start(ctx, "opencloud "+req.Method, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.String("opencloud.path", path),
	)

	target, err := url.Parse(c.baseURL.String() + path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("invalid request path %q: %w", req.Path, err)
	}
	target.RawQuery = encodeQuery(req.Query).Encode()

	payload, contentType, err := req.payload()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	build := func(ctx context.Context) (*http.Request, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
		if err != nil {
			return nil, err
		}
		for key, values := range req.Header {
			for _, v := range values {
				httpReq.Header.Add(key, v)
			}
		}
		if contentType != "" {
			httpReq.Header.Set("Content-Type", contentType)
		}
		c.authorize(httpReq)
		return httpReq, nil
	}

	httpResp, err := c.http.Do(ctx, build)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%s %s: %w", req.Method, path, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
		JSON:       strings.Contains(httpResp.Header.Get("Content-Type"), "application/json"),
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if len(req.ExpectedStatus) > 0 && !slices.Contains(req.ExpectedStatus, resp.StatusCode) {
		httpErr := errorFromResponse(resp)
		c.logger.Debug("%s %s failed: %s", req.Method, path, httpErr.Error())
		span.SetStatus(codes.Error, httpErr.Error())
		return nil, httpErr
	}

	return resp, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.credential == "" {
		return
	}
	if strings.HasPrefix(c.credential, "Bearer ") {
		req.Header.Set("Authorization", c.credential)
	} else {
		req.Header.Set("x-api-key", c.credential)
	}
}

func (r *Request) payload() ([]byte, string, error) {
	switch {
	case r.JSON != nil:
		b, err := json.Marshal(r.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode request body: %w", err)
		}
		return b, "application/json", nil
	case r.Form != nil:
		return []byte(r.Form.Encode()), "application/x-www-form-urlencoded", nil
	case r.Body != nil:
		return r.Body, r.ContentType, nil
	default:
		return nil, "", nil
	}
}

func encodeQuery(params Params) url.Values {
	values := url.Values{}
	for key, value := range params {
		if s, ok := queryValue(value); ok {
			values.Set(key, s)
		}
	}
	return values
}

func queryValue(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case time.Time:
		return v.UTC().Format(time.RFC3339), true
	case []string:
		return strings.Join(v, ","), true
	case *string:
		if v == nil {
			return "", false
		}
		return *v, true
	case *bool:
		if v == nil {
			return "", false
		}
		return strconv.FormatBool(*v), true
	case *int:
		if v == nil {
			return "", false
		}
		return strconv.Itoa(*v), true
	case *int64:
		if v == nil {
			return "", false
		}
		return strconv.FormatInt(*v, 10), true
	case *time.Time:
		if v == nil {
			return "", false
		}
		return v.UTC().Format(time.RFC3339), true
	default:
		return fmt.Sprint(v), true
	}
}
