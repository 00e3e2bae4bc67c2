// Package transport issues HTTP requests against the REST authority:
// bounded timeout, bearer credential attachment, response envelope decoding,
// and a bounded retry policy for transient failures.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/lfmelo/dealdesk/internal/auth"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a single request attempt.
const DefaultTimeout = 30 * time.Second

// envelope is the authority's success wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message,omitempty"`
}

// wireError is the authority's structured error body.
type wireError struct {
	Success bool           `json:"success"`
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// FormField is one ordered business field of a multipart request.
type FormField struct {
	Name  string
	Value string
}

// FilePart is one file entry of a multipart request. Field repeats for
// multiple files under the same form name.
type FilePart struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	Credentials auth.TokenProvider
	Retry       RetryPolicy
	Logger      *zap.Logger
	HTTPClient  *http.Client
}

// Client issues requests with a fixed timeout and classifies responses. It
// holds no domain state and is safe for concurrent use.
type Client struct {
	base    string
	http    *http.Client
	creds   auth.TokenProvider
	timeout time.Duration
	retry   RetryPolicy
	logger  *zap.Logger
}

// New creates a transport client. Zero-value options fall back to defaults.
func New(opts Options) *Client {
	c := &Client{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		http:    opts.HTTPClient,
		creds:   opts.Credentials,
		timeout: opts.Timeout,
		retry:   opts.Retry,
		logger:  opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.creds == nil {
		c.creds = auth.None()
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

type callCfg struct {
	retry  *RetryPolicy
	header http.Header
}

// CallOption adjusts a single call.
type CallOption func(*callCfg)

// WithIdempotencyKey attaches an Idempotency-Key header so a retried
// non-idempotent request cannot be applied twice.
func WithIdempotencyKey(key string) CallOption {
	return func(cfg *callCfg) {
		if cfg.header == nil {
			cfg.header = make(http.Header)
		}
		cfg.header.Set("Idempotency-Key", key)
	}
}

// WithRetry overrides the client's retry policy for one call.
func WithRetry(p RetryPolicy) CallOption {
	return func(cfg *callCfg) { cfg.retry = &p }
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string, opts ...CallOption) (json.RawMessage, error) {
	return c.call(ctx, http.MethodGet, path, nil, "", opts)
}

// Post issues a POST request with an optional JSON body.
func (c *Client) Post(ctx context.Context, path string, body any, opts ...CallOption) (json.RawMessage, error) {
	payload, err := marshalBody(body)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, http.MethodPost, path, payload, "application/json", opts)
}

// Patch issues a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any, opts ...CallOption) (json.RawMessage, error) {
	payload, err := marshalBody(body)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, http.MethodPatch, path, payload, "application/json", opts)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, opts ...CallOption) (json.RawMessage, error) {
	return c.call(ctx, http.MethodDelete, path, nil, "", opts)
}

// Upload issues a multipart POST: business fields first, in order, then one
// part per file. The multipart writer owns the Content-Type boundary.
func (c *Client) Upload(ctx context.Context, path string, fields []FormField, files []FilePart, opts ...CallOption) (json.RawMessage, error) {
	payload, contentType, err := encodeMultipart(fields, files)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, http.MethodPost, path, payload, contentType, opts)
}

func marshalBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return payload, nil
}

func encodeMultipart(fields []FormField, files []FilePart) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return nil, "", fmt.Errorf("encode form field %s: %w", f.Name, err)
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.Filename))
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("encode file part %s: %w", f.Filename, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("encode file part %s: %w", f.Filename, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func (c *Client) call(ctx context.Context, method, path string, payload []byte, contentType string, opts []CallOption) (json.RawMessage, error) {
	var cfg callCfg
	for _, opt := range opts {
		opt(&cfg)
	}
	policy := c.retry
	if cfg.retry != nil {
		policy = *cfg.retry
	}

	data, err := policy.Do(ctx, c.logger, func(ctx context.Context) (json.RawMessage, error) {
		return c.roundTrip(ctx, method, path, payload, contentType, cfg.header)
	})

	requestsTotal.WithLabelValues(method, outcomeLabel(err)).Inc()
	return data, err
}

// roundTrip performs a single attempt.
func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, contentType string, extra http.Header) (json.RawMessage, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if tok, ok := c.creds.Token(); ok {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// The caller cancelling is not a transport failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &Error{Timeout: true, Message: "could not reach server", cause: err}
		}
		return nil, &Error{Message: fmt.Sprintf("request failed: %v", err), cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &Error{Timeout: true, Message: "could not reach server", cause: err}
		}
		return nil, &Error{Status: resp.StatusCode, Message: fmt.Sprintf("read response: %v", err), cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeFailure(resp.StatusCode, raw)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, NewDecodeError("response envelope", err)
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "request was not successful"
		}
		return nil, &Error{Status: resp.StatusCode, Message: msg}
	}
	return env.Data, nil
}

// decodeFailure parses a structured error body, synthesizing one when the
// body is not parseable. The numeric status always survives.
func decodeFailure(status int, raw []byte) *Error {
	var we wireError
	if err := json.Unmarshal(raw, &we); err == nil && we.Error != "" {
		return &Error{
			Status:  status,
			Code:    we.Code,
			Message: we.Error,
			Details: we.Details,
		}
	}
	return &Error{
		Status:  status,
		Message: fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status)),
	}
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	var te *Error
	if errors.As(err, &te) {
		if te.Timeout {
			return "timeout"
		}
		if te.Status > 0 {
			return "http_error"
		}
		return "network_error"
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return "decode_error"
	}
	return "error"
}
