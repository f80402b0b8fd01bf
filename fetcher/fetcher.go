// Package fetcher implements the HTTP helper used to query all the upstream
// catalogs and marketplaces, with timeouts, bounded retries and browser-like
// headers.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/corpix/uarand"
	cleanhttp "github.com/hashicorp/go-cleanhttp"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/mtgban/go-buyback/buyback"
)

const (
	DefaultTimeout     = 12 * time.Second
	DefaultRetries     = 2
	DefaultBackoffStep = 250 * time.Millisecond

	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:135.0) Gecko/20100101 Firefox/135.0"

	maxBodySize      = 32 << 20
	maxErrorBodySize = 4096
)

var ErrTimeout = errors.New("request timed out")
var ErrNotFound = errors.New("not found")

// StatusError is returned when the upstream replies with a non-2xx code
type StatusError struct {
	StatusCode int
	URL        string

	// The beginning of the response body
	Body []byte
}

func (se *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d for %s", se.StatusCode, se.URL)
}

func (se *StatusError) Is(target error) bool {
	return target == ErrNotFound && se.StatusCode == http.StatusNotFound
}

type Options struct {
	// Timeout of every single attempt
	Timeout time.Duration

	// How many times a request is retried after the first attempt
	Retries int

	// Wait before retry N is BackoffStep * N
	BackoffStep time.Duration

	// Sent with every request, unless RandomUserAgent is set
	UserAgent string

	// Pick a new browser User-Agent for every request
	RandomUserAgent bool

	// Any additional header to send
	Headers map[string]string

	// Requests per second allowed, zero means no limit
	RateLimit float64
}

// DefaultOptions returns the settings used when nothing else is configured.
func DefaultOptions() Options {
	return Options{
		Timeout:     DefaultTimeout,
		Retries:     DefaultRetries,
		BackoffStep: DefaultBackoffStep,
		UserAgent:   DefaultUserAgent,
	}
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.BackoffStep <= 0 {
		o.BackoffStep = DefaultBackoffStep
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	return o
}

type Client struct {
	LogCallback buyback.LogCallbackFunc

	opts   Options
	client *retryablehttp.Client
}

func (c *Client) printf(format string, a ...interface{}) {
	if c.LogCallback != nil {
		c.LogCallback("[FETCH] "+format, a...)
	}
}

func NewClient(opts Options) *Client {
	c := Client{}
	c.opts = opts.withDefaults()

	client := retryablehttp.NewClient()
	client.Logger = nil
	client.HTTPClient = cleanhttp.DefaultPooledClient()
	client.HTTPClient.Timeout = c.opts.Timeout
	client.RetryMax = c.opts.Retries
	client.RetryWaitMin = c.opts.BackoffStep
	client.RetryWaitMax = c.opts.BackoffStep * time.Duration(c.opts.Retries+1)
	client.Backoff = LinearBackoff
	client.ErrorHandler = statusErrorHandler
	client.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			c.printf("retrying %s (attempt %d/%d)", req.URL, attempt+1, c.opts.Retries+1)
		}
	}

	if c.opts.RateLimit > 0 {
		client.HTTPClient.Transport = &limitTransport{
			Parent:  client.HTTPClient.Transport,
			Limiter: rate.NewLimiter(rate.Limit(c.opts.RateLimit), 1),
		}
	}

	c.client = client
	return &c
}

// LinearBackoff waits min for the first retry, then increases the wait
// by min for every attempt, up to max.
func LinearBackoff(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
	wait := min * time.Duration(attemptNum+1)
	if max > 0 && wait > max {
		wait = max
	}
	return wait
}

// Called when retries are exhausted or not allowed, drop the response
// and return a StatusError instead
func statusErrorHandler(resp *http.Response, err error, numTries int) (*http.Response, error) {
	if resp != nil {
		statusErr := newStatusError(resp, resp.Request.URL.String())
		return nil, fmt.Errorf("giving up after %d attempt(s): %w", numTries, statusErr)
	}
	if err == nil {
		err = errors.New("request failed")
	}
	return nil, fmt.Errorf("giving up after %d attempt(s): %w", numTries, err)
}

// Consume and close the body of a failed response
func newStatusError(resp *http.Response, link string) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	resp.Body.Close()
	return &StatusError{
		StatusCode: resp.StatusCode,
		URL:        link,
		Body:       body,
	}
}

type limitTransport struct {
	Parent  http.RoundTripper
	Limiter *rate.Limiter
}

func (t *limitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	err := t.Limiter.Wait(req.Context())
	if err != nil {
		return nil, err
	}
	return t.Parent.RoundTrip(req)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Do performs the request with the configured headers and retry policy.
// Any non-2xx reply is returned as a *StatusError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ua := c.opts.UserAgent
	if c.opts.RandomUserAgent {
		ua = uarand.GetRandom()
	}
	req.Header.Set("User-Agent", ua)
	for key, val := range c.opts.Headers {
		req.Header.Set(key, val)
	}

	retryReq, err := retryablehttp.FromRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(retryReq)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return nil, err
	}

	// Non-retryable replies (like 4xx) are not handled by the ErrorHandler
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newStatusError(resp, req.URL.String())
	}

	return resp, nil
}

// Get returns the body of the page at link.
func (c *Client) Get(ctx context.Context, link string) ([]byte, error) {
	return c.fetch(ctx, link, nil)
}

// Text returns the body of the page at link as a string.
func (c *Client) Text(ctx context.Context, link string) (string, error) {
	data, err := c.Get(ctx, link)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// JSON decodes the JSON document at link into v. A body that is cut off
// before it forms a valid document is fetched again.
func (c *Client) JSON(ctx context.Context, link string, v interface{}) error {
	_, err := c.fetch(ctx, link, func(data []byte) error {
		return json.Unmarshal(data, v)
	})
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("unmarshal error for %s: %w", link, err)
	}
	return err
}

// Retry the body transfer as well: retryablehttp only covers the request
// until the response headers arrive.
func (c *Client) fetch(ctx context.Context, link string, decode func([]byte) error) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		data, retry, err := c.readBody(ctx, link, decode)
		if err == nil {
			return data, nil
		}
		if !retry || attempt >= c.opts.Retries || ctx.Err() != nil {
			return nil, err
		}

		wait := LinearBackoff(c.opts.BackoffStep, c.opts.BackoffStep*time.Duration(c.opts.Retries+1), attempt, nil)
		c.printf("reading %s failed (%s), retrying in %s", link, err, wait)
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(wait):
		}
	}
}

// Errors from Do already went through the retry policy and are final.
// Only a broken or undecodable body is reported as retryable.
func (c *Client) readBody(ctx context.Context, link string, decode func([]byte) error) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, false, err
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if isTimeout(err) {
			return nil, true, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return nil, true, err
	}

	if decode != nil {
		err = decode(data)
		if err != nil {
			var syntaxErr *json.SyntaxError
			return nil, errors.As(err, &syntaxErr), err
		}
	}
	return data, false, nil
}
