// Package petstore calls the downstream pet, product and order services and
// translates their failures into typed errors.
package petstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/chtrembl/petstoreapp/internal/metrics"
	"github.com/chtrembl/petstoreapp/internal/outbound"
)

const defaultUserAgent = "PetStoreApp"

// Client calls a single downstream service.
type Client struct {
	httpClient *HTTPClient
	target     string
}

// ClientOpts holds the settings of a downstream client.
type ClientOpts struct {
	URL        string
	Target     string
	Propagator *outbound.Propagator

	CAFile         string
	CAPath         string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	RetryMax       int
	RetryWaitMin   time.Duration
	RetryWaitMax   time.Duration
}

// New creates a Client for the downstream service described by opts.
func New(opts ClientOpts) (*Client, error) {
	httpClient, err := NewHTTPClient(
		opts.URL,
		opts.Target,
		opts.Propagator,
		WithCA(opts.CAFile, opts.CAPath),
		WithTimeouts(opts.ConnectTimeout, opts.ReadTimeout),
		WithRetry(opts.RetryMax, opts.RetryWaitMin, opts.RetryWaitMax),
	)
	if err != nil {
		return nil, err
	}

	return &Client{httpClient: httpClient, target: opts.Target}, nil
}

// Target returns the name of the downstream service.
func (c *Client) Target() string {
	return c.target
}

// Descriptor names an operation of the downstream service in errors and logs.
func (c *Client) Descriptor(operation string) string {
	return c.target + "#" + operation
}

// Do executes a request with the given method, path, and data. A response
// with a failure status is returned as *Error, a call without a response as
// *TransportError.
func (c *Client) Do(ctx context.Context, method, path string, data any, operation string) (*http.Response, error) {
	descriptor := c.Descriptor(operation)

	request, err := newRequest(ctx, method, c.httpClient.Host, path, data)
	if err != nil {
		return nil, err
	}

	response, respErr := c.httpClient.RetryableHTTP.Do(request)
	if err := c.parseError(descriptor, response, respErr); err != nil {
		return nil, err
	}

	return response, nil
}

// DoJSON executes a request and decodes the JSON response body into out.
func (c *Client) DoJSON(ctx context.Context, method, path string, data any, operation string, out any) error {
	response, err := c.Do(ctx, method, path, data, operation)
	if err != nil {
		return err
	}
	defer func() { _ = response.Body.Close() }()

	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.Descriptor(operation), err)
	}

	return nil
}

func (c *Client) parseError(descriptor string, resp *http.Response, respErr error) error {
	if respErr != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}

		if errors.Is(respErr, outbound.ErrNoRequestContext) {
			return fmt.Errorf("%s: %w", descriptor, outbound.ErrNoRequestContext)
		}

		metrics.DownstreamErrorsTotal.WithLabelValues(c.target, "Transport").Inc()
		return &TransportError{Method: descriptor, Err: respErr}
	}

	if resp == nil {
		metrics.DownstreamErrorsTotal.WithLabelValues(c.target, "Transport").Inc()
		return &TransportError{Method: descriptor, Err: errors.New("no response")}
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 399 {
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	translated := Translate(resp.StatusCode, resp.Header, resp.Body, descriptor)
	metrics.DownstreamErrorsTotal.WithLabelValues(c.target, translated.Kind.String()).Inc()

	return translated
}

func newRequest(ctx context.Context, method, host, path string, data any) (*retryablehttp.Request, error) {
	var jsonReader io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}

		jsonReader = bytes.NewReader(jsonData)
	}

	request, err := retryablehttp.NewRequestWithContext(ctx, method, appendPath(host, path), jsonReader)
	if err != nil {
		return nil, err
	}

	return request, nil
}
