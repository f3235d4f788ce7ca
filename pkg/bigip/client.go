// Package bigip implements a minimal iControl REST client for BIG-IP
// devices: JSON GET/POST plus the chunked file-transfer upload protocol.
package bigip

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// uploadChunkSize is the per-request payload limit of the file-transfer
// endpoint.
const uploadChunkSize = 512 * 1024

const defaultTimeout = 30 * time.Second

// Response is a raw device reply. Non-2xx replies are returned as values,
// not errors; callers decide how to surface them.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the device accepted the request (2xx).
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode device response: %w", err)
	}
	return nil
}

// Options configure a Client.
type Options struct {
	// Address is the device management address, e.g. https://lb.example.com
	// or lb.example.com (https assumed).
	Address  string
	Username string
	Password string
	// TokenAuth exchanges the credentials for an X-F5-Auth-Token on the
	// first request instead of sending basic auth with every call.
	TokenAuth bool
	// SkipVerify disables TLS certificate verification.
	SkipVerify bool
	// Timeout bounds each individual HTTP request.
	Timeout time.Duration
	// Transport overrides the base transport, mainly for tests.
	Transport http.RoundTripper
	Logger    *slog.Logger
	Metrics   *Metrics
}

// Client talks to a single BIG-IP device. It is safe for concurrent use.
type Client struct {
	base    *url.URL
	http    *http.Client
	opts    Options
	logger  *slog.Logger
	metrics *Metrics

	token tokenState
}

// NewClient validates the options and builds a device client. The HTTP
// transport is instrumented with otelhttp so device calls show up as child
// spans of the calling operation.
func NewClient(opts Options) (*Client, error) {
	addr := strings.TrimSpace(opts.Address)
	if addr == "" {
		return nil, fmt.Errorf("device address is required")
	}
	if !strings.Contains(addr, "://") {
		addr = "https://" + addr
	}
	base, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse device address: %w", err)
	}

	transport := opts.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		if opts.SkipVerify {
			t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 - lab devices commonly run self-signed certs
		}
		transport = t
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		base: base,
		http: &http.Client{
			Transport: otelhttp.NewTransport(transport),
			Timeout:   timeout,
		},
		opts:    opts,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Get performs a GET against a device path (including query).
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, "")
}

// Post sends body as JSON to a device path.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, payload, "application/json")
}

// UploadFile pushes content to a file-transfer endpoint under the given
// destination filename, splitting it into Content-Range chunks the way the
// device expects.
func (c *Client) UploadFile(ctx context.Context, path string, content []byte, filename string) error {
	dest := strings.TrimSuffix(path, "/") + "/" + url.PathEscape(filename)
	total := len(content)

	for start := 0; start == 0 || start < total; start += uploadChunkSize {
		end := start + uploadChunkSize
		if end > total {
			end = total
		}

		req, err := c.newRequest(ctx, http.MethodPost, dest, content[start:end], "application/octet-stream")
		if err != nil {
			return err
		}
		// Content-Range end is inclusive. An empty file still needs one
		// request with a 0--1/0 range, which the device accepts.
		req.Header.Set("Content-Range", fmt.Sprintf("%d-%d/%d", start, end-1, total))

		resp, err := c.send(req)
		if err != nil {
			return fmt.Errorf("failed to upload the file: %w", err)
		}
		if !resp.OK() {
			return fmt.Errorf("failed to upload the file: device returned status %d: %s", resp.StatusCode, resp.Body)
		}
		if c.metrics != nil {
			c.metrics.uploadBytes.Add(float64(end - start))
		}
	}

	c.logger.Debug("uploaded file to device", "filename", filename, "bytes", total)
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string) (*Response, error) {
	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return nil, err
	}
	return c.send(req)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte, contentType string) (*http.Request, error) {
	u, err := c.base.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("build device url: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build device request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if err := c.authorize(req); err != nil {
		return nil, err
	}
	return req, nil
}

func (c *Client) send(req *http.Request) (*Response, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.requestsTotal.WithLabelValues(req.Method, "error").Inc()
		}
		return nil, fmt.Errorf("device request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read device response: %w", err)
	}

	if c.metrics != nil {
		c.metrics.requestsTotal.WithLabelValues(req.Method, fmt.Sprintf("%d", resp.StatusCode)).Inc()
		c.metrics.requestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	}

	c.logger.Debug("device request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}
