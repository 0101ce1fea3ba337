package checks

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/xnetvn/monitord/internal/config"
)

// NetworkOptions carries cross-check network behavior from configuration.
type NetworkOptions struct {
	// OnlyIPv4 forces all outbound dials onto IPv4.
	OnlyIPv4 bool
}

// NewHTTPClient builds an http.Client honoring the network options. Used by
// the HTTP check, the update checker, and the webhook notifiers so they all
// dial the same way.
func NewHTTPClient(opts NetworkOptions, verifyTLS bool, timeout time.Duration) *http.Client {
	network := "tcp"
	if opts.OnlyIPv4 {
		network = "tcp4"
	}
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		},
		TLSClientConfig:   &tls.Config{InsecureSkipVerify: !verifyTLS},
		ForceAttemptHTTP2: true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// httpCheck probes an HTTP endpoint and judges status code and latency.
type httpCheck struct {
	checkMethod    string
	url            string
	method         string
	headers        map[string]string
	expectedStatus map[int]bool
	maxResponse    time.Duration
	client         *http.Client
}

func newHTTPCheck(svc config.Service, netOpts NetworkOptions) (*httpCheck, error) {
	parsed, err := url.Parse(svc.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("service %q: invalid url %q", svc.Name, svc.URL)
	}

	method := strings.ToUpper(svc.HTTPMethod)
	if method == "" {
		method = http.MethodGet
	}

	expected := make(map[int]bool)
	for _, code := range svc.ExpectedStatus {
		expected[code] = true
	}
	if len(expected) == 0 {
		expected[http.StatusOK] = true
	}

	verifyTLS := config.BoolOr(svc.VerifyTLS, true)
	timeout := svc.CheckTimeout.Or(DefaultTimeout)

	return &httpCheck{
		checkMethod:    svc.CheckMethod,
		url:            svc.URL,
		method:         method,
		headers:        svc.Headers,
		expectedStatus: expected,
		maxResponse:    time.Duration(svc.MaxResponseMs) * time.Millisecond,
		client:         NewHTTPClient(netOpts, verifyTLS, timeout),
	}, nil
}

func (c *httpCheck) Describe() string { return c.checkMethod }

func (c *httpCheck) Check(ctx context.Context) Result {
	req, err := http.NewRequestWithContext(ctx, c.method, c.url, nil)
	if err != nil {
		return Result{Err: fmt.Errorf("building request: %w", err)}
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return unhealthy(fmt.Sprintf("request to %s failed: %v", c.url, err))
	}
	defer resp.Body.Close()

	if !c.expectedStatus[resp.StatusCode] {
		return unhealthy(fmt.Sprintf("unexpected status %d from %s (want %s)",
			resp.StatusCode, c.url, c.expectedList()))
	}
	if c.maxResponse > 0 && elapsed > c.maxResponse {
		return unhealthy(fmt.Sprintf("response from %s took %s (limit %s)",
			c.url, elapsed.Round(time.Millisecond), c.maxResponse))
	}
	return healthy(fmt.Sprintf("status %d from %s in %s",
		resp.StatusCode, c.url, elapsed.Round(time.Millisecond)))
}

func (c *httpCheck) expectedList() string {
	codes := make([]int, 0, len(c.expectedStatus))
	for code := range c.expectedStatus {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	parts := make([]string, len(codes))
	for i, code := range codes {
		parts[i] = fmt.Sprint(code)
	}
	return strings.Join(parts, ",")
}
