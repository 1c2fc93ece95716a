// Package client opens validation streams against an assay backend.
//
// The client owns request construction and response classification only.
// Consuming the stream — line scanning, frame parsing, state reduction —
// belongs to the sse, wire, and session packages.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pithecene-io/assay/iox"
	"github.com/pithecene-io/assay/types"
)

const (
	// streamPath is the validation endpoint, per PROTOCOL.md.
	streamPath = "/api/validate/playbook/stream"

	contentTypeJSON  = "application/json"
	mediaEventStream = "text/event-stream"

	// acceptValue tells the backend SSE is preferred but a single JSON
	// document is acceptable.
	acceptValue = "text/event-stream, application/json"
)

// Config holds backend connection settings.
type Config struct {
	// BaseURL is the backend root, e.g. "http://localhost:8000".
	BaseURL string

	// Headers are set on every request (e.g. Authorization).
	Headers map[string]string

	// Timeout bounds connection setup and response headers when set.
	// Zero leaves headers bounded only by the request context, which is
	// how the session enforces its overall budget. It never limits how
	// long an open stream runs.
	Timeout time.Duration

	// HTTPClient overrides the default client. Timeout is ignored when
	// set.
	HTTPClient *http.Client
}

// Client submits playbooks to the backend validation endpoint.
type Client struct {
	config Config
	client *http.Client
}

// New creates a client for the backend at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("client: base URL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("client: invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("client: unsupported scheme %q in base URL", u.Scheme)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// http.Client.Timeout would cut a long validation off
		// mid-stream, so only response headers are ever bounded.
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = cfg.Timeout
		httpClient = &http.Client{Transport: transport}
	}

	return &Client{config: cfg, client: httpClient}, nil
}

// ValidationRequest is the body of a validation submission.
type ValidationRequest struct {
	PlaybookContent string        `json:"playbook_content"`
	Profile         types.Profile `json:"profile"`
}

// Stream is an open validation response. The caller owns Body and must
// close it on every exit path.
type Stream struct {
	// Body is the raw response stream.
	Body io.ReadCloser

	// ContentType is the response Content-Type header as sent.
	ContentType string

	// StatusCode is the HTTP status of the response.
	StatusCode int
}

// IsEventStream reports whether the backend chose SSE framing.
func (s *Stream) IsEventStream() bool {
	return s.mediaType() == mediaEventStream
}

// IsJSONDocument reports whether the response is a single JSON document.
// A stream that is neither SSE nor JSON is a transport error for callers.
func (s *Stream) IsJSONDocument() bool {
	return s.mediaType() == contentTypeJSON
}

func (s *Stream) mediaType() string {
	mediaType, _, err := mime.ParseMediaType(s.ContentType)
	if err != nil {
		return ""
	}
	return mediaType
}

// Close releases the response body.
func (s *Stream) Close() error {
	return s.Body.Close()
}

// StatusError reports a non-2xx response from the backend.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Detail)
	}
	return fmt.Sprintf("backend returned status %d", e.Code)
}

// OpenValidationStream POSTs req to the validation endpoint and returns
// the open response. ctx governs both the request and the returned
// stream: cancelling it unblocks reads on Stream.Body.
func (c *Client) OpenValidationStream(ctx context.Context, req ValidationRequest) (*Stream, error) {
	if req.Profile == "" {
		req.Profile = types.DefaultProfile
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+streamPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentTypeJSON)
	httpReq.Header.Set("Accept", acceptValue)
	for k, v := range c.config.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := readErrorDetail(resp.Body)
		iox.DrainClose(resp.Body)
		return nil, &StatusError{Code: resp.StatusCode, Detail: detail}
	}

	return &Stream{
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}, nil
}

// Close releases idle connections held by the underlying HTTP client.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// maxErrorBody caps how much of an error response is read for detail.
const maxErrorBody = 8 << 10

// readErrorDetail extracts a short human-readable message from an error
// response body. JSON bodies yield their "detail" or "error" field;
// anything else yields the trimmed raw text.
func readErrorDetail(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var doc struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(raw, &doc) == nil {
		if doc.Detail != "" {
			return doc.Detail
		}
		if doc.Error != "" {
			return doc.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
