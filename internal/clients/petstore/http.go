package petstore

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"gitlab.com/gitlab-org/labkit/correlation"
	"gitlab.com/gitlab-org/labkit/log"
	"gitlab.com/gitlab-org/labkit/tracing"

	"github.com/chtrembl/petstoreapp/internal/metrics"
	"github.com/chtrembl/petstoreapp/internal/outbound"
)

const (
	httpProtocol            = "http://"
	httpsProtocol           = "https://"
	defaultConnectTimeout   = 5 * time.Second
	defaultReadTimeout      = 5 * time.Second
	defaultRetryWaitMinimum = 100 * time.Millisecond
	defaultRetryWaitMaximum = time.Second
	defaultRetryMax         = 2
)

// ErrCafileNotFound indicates that the specified CA file was not found
var ErrCafileNotFound = errors.New("cafile not found")

// HTTPClient provides an HTTP client with retry capabilities
type HTTPClient struct {
	RetryableHTTP *retryablehttp.Client
	Host          string
}

type httpClientCfg struct {
	caFile, caPath              string
	connectTimeout, readTimeout time.Duration
	retryWaitMin, retryWaitMax  time.Duration
	retryMax                    int
}

// HTTPClientOpt provides options for configuring an HTTPClient
type HTTPClientOpt func(*httpClientCfg)

// WithCA trusts the certificates in caFile and in every file of caPath in
// addition to the system pool.
func WithCA(caFile, caPath string) HTTPClientOpt {
	return func(hcc *httpClientCfg) {
		hcc.caFile = caFile
		hcc.caPath = caPath
	}
}

// WithTimeouts overrides the connect and read timeouts. Zero values keep the
// defaults.
func WithTimeouts(connect, read time.Duration) HTTPClientOpt {
	return func(hcc *httpClientCfg) {
		if connect > 0 {
			hcc.connectTimeout = connect
		}
		if read > 0 {
			hcc.readTimeout = read
		}
	}
}

// WithRetry overrides how often and how fast failed connection attempts are
// retried.
func WithRetry(retryMax int, waitMin, waitMax time.Duration) HTTPClientOpt {
	return func(hcc *httpClientCfg) {
		hcc.retryMax = retryMax
		if waitMin > 0 {
			hcc.retryWaitMin = waitMin
		}
		if waitMax > 0 {
			hcc.retryWaitMax = waitMax
		}
	}
}

// NewHTTPClient builds the client used to call the target service at
// serviceURL. Every request is stamped by propagator before it is sent.
func NewHTTPClient(
	serviceURL,
	target string,
	propagator *outbound.Propagator,
	opts ...HTTPClientOpt,
) (*HTTPClient, error) {
	hcc := &httpClientCfg{
		connectTimeout: defaultConnectTimeout,
		readTimeout:    defaultReadTimeout,
		retryWaitMin:   defaultRetryWaitMinimum,
		retryWaitMax:   defaultRetryWaitMaximum,
		retryMax:       defaultRetryMax,
	}

	for _, opt := range opts {
		opt(hcc)
	}

	if propagator == nil {
		return nil, errors.New("propagator is required")
	}

	var transport *http.Transport
	var err error
	switch {
	case strings.HasPrefix(serviceURL, httpProtocol):
		transport = buildHTTPTransport(*hcc)
	case strings.HasPrefix(serviceURL, httpsProtocol):
		if err = validateCaFile(hcc.caFile); err != nil {
			return nil, err
		}
		transport = buildHTTPSTransport(*hcc)
	default:
		return nil, fmt.Errorf("unknown URL prefix for %s: %q", target, serviceURL)
	}

	c := retryablehttp.NewClient()
	c.RetryMax = hcc.retryMax
	c.RetryWaitMax = hcc.retryWaitMax
	c.RetryWaitMin = hcc.retryWaitMin
	c.Logger = nil
	c.CheckRetry = checkRetry
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.HTTPClient.Transport = propagator.RoundTripper(target, NewTransport(transport))
	c.HTTPClient.Timeout = hcc.readTimeout

	return &HTTPClient{RetryableHTTP: c, Host: strings.TrimSuffix(serviceURL, "/")}, nil
}

// checkRetry retries only connections that could not be established.
// Timeouts and responses of any status are handed back to the caller.
func checkRetry(ctx context.Context, _ *http.Response, err error) (bool, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}

	if err == nil || errors.Is(err, outbound.ErrNoRequestContext) || isTimeout(err) {
		return false, nil
	}

	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial", nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func dialer(hcc httpClientCfg) *net.Dialer {
	return &net.Dialer{Timeout: hcc.connectTimeout, KeepAlive: 30 * time.Second}
}

func buildHTTPTransport(hcc httpClientCfg) *http.Transport {
	transport := DefaultTransport()
	transport.DialContext = dialer(hcc).DialContext
	transport.TLSHandshakeTimeout = hcc.connectTimeout

	return transport
}

func buildHTTPSTransport(hcc httpClientCfg) *http.Transport {
	certPool, err := x509.SystemCertPool()
	if err != nil {
		certPool = x509.NewCertPool()
	}

	if hcc.caFile != "" {
		addCertToPool(certPool, hcc.caFile)
	}

	if hcc.caPath != "" {
		fis, _ := os.ReadDir(hcc.caPath)
		for _, fi := range fis {
			if fi.IsDir() {
				continue
			}

			addCertToPool(certPool, filepath.Join(hcc.caPath, fi.Name()))
		}
	}

	transport := buildHTTPTransport(hcc)
	transport.TLSClientConfig = &tls.Config{
		RootCAs:    certPool,
		MinVersion: tls.VersionTLS12,
	}

	return transport
}

func appendPath(host string, path string) string {
	return strings.TrimSuffix(host, "/") + "/" + strings.TrimPrefix(path, "/")
}

func addCertToPool(certPool *x509.CertPool, fileName string) {
	cert, err := os.ReadFile(filepath.Clean(fileName))
	if err == nil {
		certPool.AppendCertsFromPEM(cert)
	}
}

func validateCaFile(filename string) error {
	if filename == "" {
		return nil
	}

	if _, err := os.Stat(filename); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("cannot find cafile '%s': %w", filename, ErrCafileNotFound)
		}

		return err
	}

	return nil
}

type transport struct {
	next http.RoundTripper
}

// NewTransport creates a new transport with logging, metrics, tracing, and
// correlation handling.
func NewTransport(next http.RoundTripper) http.RoundTripper {
	t := &transport{next: next}
	return correlation.NewInstrumentedRoundTripper(tracing.NewRoundTripper(metrics.NewRoundTripper(t)))
}

// RoundTrip executes a single HTTP transaction, adding logging capabilities.
func (rt *transport) RoundTrip(request *http.Request) (*http.Response, error) {
	ctx := request.Context()

	request.Header.Set("User-Agent", defaultUserAgent)

	start := time.Now()

	response, err := rt.next.RoundTrip(request)

	fields := log.Fields{
		"method":      request.Method,
		"url":         request.URL.String(),
		"duration_ms": time.Since(start) / time.Millisecond,
	}
	logger := log.WithContextFields(ctx, fields)

	if err != nil {
		logger.WithError(err).Error("Downstream service unreachable")
		return response, err
	}

	logger = logger.WithField("status", response.StatusCode)

	if response.StatusCode >= 400 {
		logger.Error("Downstream service error")
		return response, nil
	}

	if response.ContentLength >= 0 {
		logger = logger.WithField("content_length_bytes", response.ContentLength)
	}

	logger.Info("Finished HTTP request")

	return response, nil
}

// DefaultTransport returns a clone of the default HTTP transport.
func DefaultTransport() *http.Transport {
	return http.DefaultTransport.(*http.Transport).Clone()
}
