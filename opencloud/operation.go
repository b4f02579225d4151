package opencloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Operation is a long-running Open Cloud request such as an asset upload or a
// memory store flush.
type Operation[T any] struct {
	client *Client
	path   string
	decode func(json.RawMessage) (T, error)

	done   bool
	result T
}

func newOperation[T any](c *Client, path string, decode func(json.RawMessage) (T, error)) *Operation[T] {
	return &Operation[T]{client: c, path: path, decode: decode}
}

// completedOperation wraps a result the server returned immediately
func completedOperation[T any](c *Client, path string, result T) *Operation[T] {
	return &Operation[T]{client: c, path: path, done: true, result: result}
}

// Path returns the operation's resource path
func (o *Operation[T]) Path() string {
	return o.path
}

// IsDone reports whether the operation is known to be complete, in which case
// Wait returns without a request.
func (o *Operation[T]) IsDone() bool {
	return o.done
}

// FetchStatus checks the operation once. The boolean is false while the
// operation is still running.
func (o *Operation[T]) FetchStatus(ctx context.Context) (T, bool, error) {
	var zero T
	if o.done {
		return o.result, true, nil
	}

	resp, err := o.client.Do(ctx, &Request{
		Method:         http.MethodGet,
		Path:           o.path,
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return zero, false, err
	}

	var status struct {
		Done     bool            `json:"done"`
		Response json.RawMessage `json:"response"`
	}
	if err := resp.Decode(&status); err != nil {
		return zero, false, err
	}
	if !status.Done {
		return zero, false, nil
	}

	result, err := o.decode(status.Response)
	if err != nil {
		return zero, false, err
	}
	o.done, o.result = true, result
	return result, true, nil
}

// WaitOptions controls how Wait polls
type WaitOptions struct {
	// Timeout stops waiting; zero waits until ctx is done
	Timeout time.Duration
	// Interval is the first wait between checks
	Interval time.Duration
	// Exponent multiplies the interval after every check
	Exponent float64
}

// DefaultWaitOptions returns a 60 second timeout with intervals growing by 1.3x
func DefaultWaitOptions() *WaitOptions {
	return &WaitOptions{Timeout: 60 * time.Second, Exponent: 1.3}
}

const minPollInterval = 100 * time.Millisecond

// Wait polls until the operation completes. When opts.Timeout passes first the
// returned error matches ErrTimeout.
func (o *Operation[T]) Wait(ctx context.Context, opts *WaitOptions) (T, error) {
	if o.done {
		return o.result, nil
	}
	if opts == nil {
		opts = DefaultWaitOptions()
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = max(opts.Interval, minPollInterval)
	policy.Multiplier = opts.Exponent
	if policy.Multiplier < 1 {
		policy.Multiplier = 1
	}
	policy.RandomizationFactor = 0
	policy.MaxInterval = max(policy.InitialInterval, 30*time.Second)
	policy.MaxElapsedTime = opts.Timeout

	var result T
	poll := func() error {
		value, done, err := o.FetchStatus(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !done {
			return errNotDone
		}
		result = value
		return nil
	}

	if err := backoff.Retry(poll, backoff.WithContext(policy, ctx)); err != nil {
		if errors.Is(err, errNotDone) {
			return result, fmt.Errorf("%w: operation %s not complete after %s", ErrTimeout, o.path, opts.Timeout)
		}
		return result, err
	}
	return result, nil
}

var errNotDone = errors.New("operation not done")
