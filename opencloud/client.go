package opencloud

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-hclog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"rblxcloud/internal"
	"rblxcloud/utils"
)

const tracerName = "rblxcloud/opencloud"

// Client is an authenticated Open Cloud client. It is safe for concurrent use.
type Client struct {
	credential string
	baseURL    *url.URL
	http       *utils.HTTPClient
	limiter    *utils.RequestLimiter
	logger     *internal.SecureLogger
	tracer     trace.Tracer
}

// Option configures a Client
type Option func(*clientSettings)

type clientSettings struct {
	baseURL    string
	httpClient *http.Client
	logger     hclog.Logger
	retry      utils.RetryConfig
	rate       float64
	proxyURL   string
	userAgent  string
	timeout    time.Duration
}

// WithBaseURL sends requests to baseURL instead of https://apis.roblox.com/
func WithBaseURL(baseURL string) Option {
	return func(s *clientSettings) { s.baseURL = baseURL }
}

// WithHTTPClient uses client for transport. WithProxy and WithTimeout are
// ignored when it is set.
func WithHTTPClient(client *http.Client) Option {
	return func(s *clientSettings) { s.httpClient = client }
}

// WithLogger logs requests to logger at debug level with credentials redacted
func WithLogger(logger hclog.Logger) Option {
	return func(s *clientSettings) { s.logger = logger }
}

// WithRetry sets how many times rate limited and server error responses are
// retried, and the fixed wait between attempts.
func WithRetry(maxRetries int, interval time.Duration) Option {
	return func(s *clientSettings) {
		s.retry = utils.RetryConfig{MaxRetries: maxRetries, Interval: interval}
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables the cap.
func WithRateLimit(requestsPerSecond float64) Option {
	return func(s *clientSettings) { s.rate = requestsPerSecond }
}

// WithProxy routes requests through an http, https or socks5 proxy
func WithProxy(proxyURL string) Option {
	return func(s *clientSettings) { s.proxyURL = proxyURL }
}

// WithUserAgent overrides the User-Agent header
func WithUserAgent(userAgent string) Option {
	return func(s *clientSettings) { s.userAgent = userAgent }
}

// WithTimeout sets the per-attempt request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(s *clientSettings) { s.timeout = timeout }
}

// NewClient creates a client authorised by credential. An API key is sent in
// the x-api-key header; a value starting with "Bearer " is sent as the
// Authorization header.
func NewClient(credential string, opts ...Option) (*Client, error) {
	if err := validation.Validate(credential, validation.Required.Error("an API key or bearer token is required")); err != nil {
		return nil, err
	}
	return newClient(credential, opts...)
}

func newClient(credential string, opts ...Option) (*Client, error) {
	settings := &clientSettings{
		baseURL:   DefaultBaseURL,
		retry:     *utils.DefaultRetryConfig(),
		userAgent: DefaultUserAgent,
		timeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(settings)
	}

	baseURL, err := utils.ValidateBaseURL(settings.baseURL)
	if err != nil {
		return nil, err
	}

	logger := internal.WrapLogger(settings.logger)

	var limiter *utils.RequestLimiter
	var rl internal.RateLimiter
	if settings.rate > 0 {
		limiter = utils.NewRequestLimiter(settings.rate, 0)
		rl = limiter
	}

	httpClient, err := utils.NewHTTPClientWithConfig(&utils.HTTPClientConfig{
		Timeout:     settings.timeout,
		ProxyURL:    settings.proxyURL,
		UserAgent:   settings.userAgent,
		RetryConfig: &settings.retry,
		Limiter:     rl,
		Logger:      logger,
		Client:      settings.httpClient,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		credential: credential,
		baseURL:    baseURL,
		http:       httpClient,
		limiter:    limiter,
		logger:     logger,
		tracer:     otel.Tracer(tracerName),
	}, nil
}

// withCredential returns a copy of c sharing its transport but sending credential
func (c *Client) withCredential(credential string) *Client {
	clone := *c
	clone.credential = credential
	return &clone
}

// BaseURL returns the URL requests are resolved against
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// SetRateLimit changes the requests per second cap of a client created with
// WithRateLimit.
func (c *Client) SetRateLimit(requestsPerSecond float64) {
	if c.limiter != nil {
		c.limiter.SetRate(requestsPerSecond)
	}
}

// Experience returns a handle for the experience (universe) id
func (c *Client) Experience(id int64) *Experience {
	return &Experience{ID: id, client: c}
}

// Group returns a handle for the group id
func (c *Client) Group(id int64) *Group {
	return newGroup(id, c)
}

// User returns a handle for the user id
func (c *Client) User(id int64) *User {
	return newUser(id, c)
}

// APIKeyInfo describes an API key as returned by introspection
type APIKeyInfo struct {
	Name           string
	Enabled        bool
	Expired        bool
	ExpiresAt      time.Time
	AuthorizedUser *User
	Scopes         []APIKeyScope
}

// APIKeyScope is one permission scope of an API key. A nil list means the
// scope does not restrict that kind of resource; the All flags are set when
// it applies to every resource of that kind.
type APIKeyScope struct {
	Name           string
	Operations     []string
	AllExperiences bool
	Experiences    []*Experience
	AllUsers       bool
	Users          []*User
	AllGroups      bool
	Groups         []*Group
	DataStores     []*DataStore
}

type introspectResponse struct {
	Name              string   `json:"name"`
	Enabled           bool     `json:"enabled"`
	Expired           bool     `json:"expired"`
	ExpirationUTCTime string   `json:"expirationUtcTime"`
	AuthorizedUserID  flexInt  `json:"authorizedUserId"`
	Scopes            []rawKey `json:"scopes"`
}

type rawKey struct {
	Name               string   `json:"name"`
	Operations         []string `json:"operations"`
	UniverseIDs        []string `json:"universeIds"`
	UserIDs            []string `json:"userIds"`
	GroupIDs           []string `json:"groupIds"`
	UniverseDatastores []struct {
		UniverseID    string  `json:"universeId"`
		DatastoreName *string `json:"datastoreName"`
	} `json:"universeDatastores"`
}

// FetchInfo introspects the client's API key
func (c *Client) FetchInfo(ctx context.Context) (*APIKeyInfo, error) {
	resp, err := c.Do(ctx, &Request{
		Method:         http.MethodPost,
		Path:           "api-keys/v1/introspect",
		JSON:           map[string]string{"apiKey": c.credential},
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}

	var data introspectResponse
	if err := resp.Decode(&data); err != nil {
		return nil, err
	}

	info := &APIKeyInfo{
		Name:           data.Name,
		Enabled:        data.Enabled,
		Expired:        data.Expired,
		ExpiresAt:      parseTime(data.ExpirationUTCTime),
		AuthorizedUser: c.User(int64(data.AuthorizedUserID)),
	}
	for _, raw := range data.Scopes {
		info.Scopes = append(info.Scopes, c.newAPIKeyScope(raw))
	}
	return info, nil
}

func (c *Client) newAPIKeyScope(raw rawKey) APIKeyScope {
	scope := APIKeyScope{Name: raw.Name, Operations: raw.Operations}
	experiences := map[string]*Experience{}

	experience := func(id string) *Experience {
		if e, ok := experiences[id]; ok {
			return e
		}
		n, _ := strconv.ParseInt(id, 10, 64)
		e := c.Experience(n)
		experiences[id] = e
		return e
	}

	if len(raw.UniverseIDs) > 0 {
		if raw.UniverseIDs[0] == "*" {
			scope.AllExperiences = true
		} else {
			for _, id := range raw.UniverseIDs {
				scope.Experiences = append(scope.Experiences, experience(id))
			}
		}
	}
	if len(raw.UserIDs) > 0 {
		if raw.UserIDs[0] == "*" {
			scope.AllUsers = true
		} else {
			for _, id := range raw.UserIDs {
				n, _ := strconv.ParseInt(id, 10, 64)
				scope.Users = append(scope.Users, c.User(n))
			}
		}
	}
	if len(raw.GroupIDs) > 0 {
		if raw.GroupIDs[0] == "*" {
			scope.AllGroups = true
		} else {
			for _, id := range raw.GroupIDs {
				n, _ := strconv.ParseInt(id, 10, 64)
				scope.Groups = append(scope.Groups, c.Group(n))
			}
		}
	}

	if len(raw.UniverseDatastores) > 0 {
		if raw.UniverseDatastores[0].UniverseID == "*" {
			scope.AllExperiences = true
			return scope
		}
		scope.DataStores = []*DataStore{}
		for _, ds := range raw.UniverseDatastores {
			e := experience(ds.UniverseID)
			if ds.DatastoreName == nil {
				if !containsExperience(scope.Experiences, e) {
					scope.Experiences = append(scope.Experiences, e)
				}
				continue
			}
			scope.DataStores = append(scope.DataStores, e.DataStore(*ds.DatastoreName, "global"))
		}
	}

	return scope
}

func containsExperience(list []*Experience, e *Experience) bool {
	for _, item := range list {
		if item.ID == e.ID {
			return true
		}
	}
	return false
}

func (c *Client) String() string {
	return fmt.Sprintf("opencloud.Client(%s)", c.baseURL)
}
