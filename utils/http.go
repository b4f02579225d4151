package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/proxy"

	"rblxcloud/internal"
)

// RetryConfig defines retry behavior configuration
type RetryConfig struct {
	MaxRetries int
	Interval   time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 2,
		Interval:   1 * time.Second,
	}
}

// HTTPClientConfig contains configuration for the HTTP client
type HTTPClientConfig struct {
	Timeout     time.Duration
	ProxyURL    string
	UserAgent   string
	RetryConfig *RetryConfig
	Limiter     internal.RateLimiter
	Logger      *internal.SecureLogger

	// Client replaces the default tuned client when set. ProxyURL is ignored.
	Client *http.Client
}

// HTTPClient sends requests with a fixed-interval retry on rate limits and
// server errors.
type HTTPClient struct {
	client      *http.Client
	userAgent   string
	retryConfig *RetryConfig
	limiter     internal.RateLimiter
	logger      *internal.SecureLogger
}

// RequestBuilder creates a fresh request for every attempt.
type RequestBuilder func(ctx context.Context) (*http.Request, error)

// NewHTTPClient creates a new HTTP client with default configuration
func NewHTTPClient() *HTTPClient {
	client, _ := NewHTTPClientWithConfig(&HTTPClientConfig{
		Timeout:     30 * time.Second,
		RetryConfig: DefaultRetryConfig(),
	})
	return client
}

// NewHTTPClientWithConfig creates a new HTTP client with custom configuration
func NewHTTPClientWithConfig(config *HTTPClientConfig) (*HTTPClient, error) {
	if config.RetryConfig == nil {
		config.RetryConfig = DefaultRetryConfig()
	}
	if config.Logger == nil {
		config.Logger = internal.NewNullLogger()
	}

	client := config.Client
	if client == nil {
		transport, err := NewTransport(config.ProxyURL)
		if err != nil {
			return nil, err
		}
		client = &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		}
	}

	return &HTTPClient{
		client:      client,
		userAgent:   config.UserAgent,
		retryConfig: config.RetryConfig,
		limiter:     config.Limiter,
		logger:      config.Logger,
	}, nil
}

// NewTransport builds the tuned, instrumented transport used for every
// Open Cloud request.
func NewTransport(proxyURL string) (http.RoundTripper, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}

	if proxyURL != "" {
		if err := configureProxy(transport, proxyURL); err != nil {
			return nil, err
		}
	}

	return otelhttp.NewTransport(transport), nil
}

// configureProxy sets up proxy configuration for the transport
func configureProxy(transport *http.Transport, proxyURL string) error {
	parsedURL, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL: %w", err)
	}

	switch parsedURL.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsedURL)
	case "socks5":
		var auth *proxy.Auth
		if parsedURL.User != nil {
			password, _ := parsedURL.User.Password()
			auth = &proxy.Auth{User: parsedURL.User.Username(), Password: password}
		}
		dialer, err := proxy.SOCKS5("tcp", parsedURL.Host, auth, proxy.Direct)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 proxy: %w", err)
		}
		transport.Proxy = nil
		if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = contextDialer.DialContext
		} else {
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	default:
		return fmt.Errorf("unsupported proxy scheme: %s", parsedURL.Scheme)
	}

	return nil
}

// Client returns the underlying http.Client
func (c *HTTPClient) Client() *http.Client {
	return c.client
}

// UserAgent returns the user agent attached to every request
func (c *HTTPClient) UserAgent() string {
	return c.userAgent
}

// Do sends the request produced by build. Responses with a retryable status are
// retried up to MaxRetries times; the last response is returned to the caller
// whatever its status.
func (c *HTTPClient) Do(ctx context.Context, build RequestBuilder) (*http.Response, error) {
	var (
		resp    *http.Response
		attempt int
	)

	operation := func() error {
		attempt++

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		req, err := build(ctx)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		c.logger.LogHTTPRequest(req)
		r, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil || !isRetryableError(err) {
				return backoff.Permanent(err)
			}
			c.logger.Warn("%s %s failed on attempt %d: %v", req.Method, req.URL.Path, attempt, err)
			return err
		}
		c.logger.LogHTTPResponse(r)

		if IsRetryableStatus(r.StatusCode) && attempt <= c.retryConfig.MaxRetries {
			io.Copy(io.Discard, r.Body)
			r.Body.Close()
			c.logger.Warn("%s %s returned %d, retrying in %s", req.Method, req.URL.Path, r.StatusCode, c.retryConfig.Interval)
			return &retryableStatusError{StatusCode: r.StatusCode}
		}

		resp = r
		return nil
	}

	var policy backoff.BackOff = backoff.NewConstantBackOff(c.retryConfig.Interval)
	policy = backoff.WithMaxRetries(policy, uint64(max(c.retryConfig.MaxRetries, 0)))
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}

	return resp, nil
}

type retryableStatusError struct {
	StatusCode int
}

func (e *retryableStatusError) Error() string {
	return fmt.Sprintf("retryable HTTP status %d", e.StatusCode)
}

// IsRetryableStatus reports whether a status is retried: 429 and every 5xx.
func IsRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// isRetryableError determines if a transport error should trigger a retry
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	retryableErrors := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"no such host",
		"network is unreachable",
		"temporary failure",
		"eof",
	}

	for _, retryableErr := range retryableErrors {
		if strings.Contains(errStr, retryableErr) {
			return true
		}
	}

	return false
}
