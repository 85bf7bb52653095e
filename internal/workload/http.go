// Package workload provides the HTTP workload driven by the load engine.
//
// One HTTP value is shared by every VU. Each iteration renders the request
// templates, sends the request, evaluates the configured checks and fails
// the iteration when the transport errors or the status code is not in the
// success set.
package workload

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/wesleyorama2/volley/internal/load"
)

// ClientConfig contains HTTP client configuration.
type ClientConfig struct {
	// Timeout for HTTP requests (0 = none; the iteration timeout still applies)
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits the total connections per host
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// DisableKeepAlives disables HTTP keep-alives
	DisableKeepAlives bool

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool
}

// DefaultClientConfig returns sensible defaults for load testing.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     0, // Unlimited
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewClient creates an HTTP client with the configured settings.
func NewClient(c ClientConfig) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        c.MaxIdleConns,
		MaxIdleConnsPerHost: c.MaxIdleConnsPerHost,
		MaxConnsPerHost:     c.MaxConnsPerHost,
		IdleConnTimeout:     c.IdleConnTimeout,
		DisableKeepAlives:   c.DisableKeepAlives,
	}
	if c.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for test targets
	}
	return &http.Client{
		Transport: transport,
		Timeout:   c.Timeout,
	}
}

// HTTPConfig describes the request each iteration sends.
type HTTPConfig struct {
	// Name for this request (used in logs)
	Name string

	// Method is the HTTP method (default GET)
	Method string

	// URL is the request URL (supports placeholders)
	URL string

	// Headers are sent with every request (values support placeholders)
	Headers map[string]string

	// Body is the request body (supports placeholders)
	Body string

	// SuccessStatus lists the status codes that count as success.
	// Empty means any status below 400.
	SuccessStatus []int

	// Checks are evaluated against every response.
	Checks []Check

	// Variables resolve {{name}} placeholders.
	Variables map[string]string

	// Client configures the shared HTTP client.
	Client ClientConfig
}

// StatusError fails an iteration whose status code is not a success.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

// HTTP is a load.Workload that sends one HTTP request per iteration.
type HTTP struct {
	name    string
	method  string
	url     *Template
	body    *Template
	headers map[string]*Template
	success []int
	checks  []compiledCheck
	client  *http.Client
}

var _ load.Workload = (*HTTP)(nil)

// NewHTTP compiles templates and checks once, up front.
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodGet
	}

	h := &HTTP{
		name:    cfg.Name,
		method:  method,
		headers: make(map[string]*Template, len(cfg.Headers)),
		success: slices.Clone(cfg.SuccessStatus),
		client:  NewClient(cfg.Client),
	}

	var err error
	if h.url, err = ParseTemplate(cfg.URL, cfg.Variables); err != nil {
		return nil, err
	}
	if cfg.Body != "" {
		if h.body, err = ParseTemplate(cfg.Body, cfg.Variables); err != nil {
			return nil, err
		}
	}
	for k, v := range cfg.Headers {
		if h.headers[k], err = ParseTemplate(v, cfg.Variables); err != nil {
			return nil, err
		}
	}
	for _, c := range cfg.Checks {
		cc, err := compileCheck(c)
		if err != nil {
			return nil, err
		}
		h.checks = append(h.checks, cc)
	}
	return h, nil
}

// Run sends one request and evaluates the checks.
func (h *HTTP) Run(ctx context.Context, it *load.Iteration) error {
	req, err := h.buildRequest(ctx, it)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		for _, c := range h.checks {
			it.Check(c.name, false)
		}
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	r := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}
	for _, c := range h.checks {
		it.Check(c.name, c.eval(r))
	}

	if !h.isSuccess(resp.StatusCode) {
		return &StatusError{Method: h.method, URL: req.URL.String(), StatusCode: resp.StatusCode}
	}
	return nil
}

func (h *HTTP) buildRequest(ctx context.Context, it *load.Iteration) (*http.Request, error) {
	var body io.Reader
	if h.body != nil {
		body = strings.NewReader(h.body.Render(it))
	}

	req, err := http.NewRequestWithContext(ctx, h.method, h.url.Render(it), body)
	if err != nil {
		return nil, err
	}
	for key, value := range h.headers {
		req.Header.Set(key, value.Render(it))
	}
	return req, nil
}

func (h *HTTP) isSuccess(status int) bool {
	if len(h.success) == 0 {
		return status < 400
	}
	return slices.Contains(h.success, status)
}

// Name returns the request name.
func (h *HTTP) Name() string {
	return h.name
}

// Close releases idle connections.
func (h *HTTP) Close() {
	h.client.CloseIdleConnections()
}
