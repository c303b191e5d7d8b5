package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/dortmed-client/internal/errors"
	"github.com/jrsteele09/dortmed-client/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	contentTypeJSON = "application/json"
	contentTypeForm = "application/x-www-form-urlencoded"

	// RequestIDHeader carries a per-call correlation id.
	RequestIDHeader = "X-Request-ID"

	maxBodySize = 10 << 20
)

// Request describes one backend call. Path is relative to the client's base URL.
// At most one of JSON and Form is used as the body.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	JSON        any
	Form        url.Values
	Header      http.Header
	BearerToken string
}

// Response is a fully read 2xx response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("decode response: empty body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Client is the generic HTTP transport for the backend API. It never retries and never
// interprets status codes beyond turning non-2xx responses into *errors.APIError and
// missing responses into *errors.NetworkError.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*Response]
	log        zerolog.Logger
	tracer     trace.Tracer
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-call timeout. It applies to a copy of the current
// *http.Client, so a client passed to WithHTTPClient is left untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// WithUserAgent sets the User-Agent header sent on every call.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a transport client rooted at baseURL (e.g. "https://host/api").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.Logger,
		tracer:     otel.Tracer("github.com/jrsteele09/dortmed-client/transport"),
		userAgent:  "dortmed-client",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the base URL calls are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL resolves a backend-relative path.
func (c *Client) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// Do issues the request. A 2xx response is returned as *Response; any other status is
// returned as *errors.APIError; a failure to obtain a response is *errors.NetworkError.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	target := c.URL(r.Path)
	if len(r.Query) > 0 {
		target += "?" + r.Query.Encode()
	}

	ctx, span := c.tracer.Start(ctx, method+" "+r.Path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	httpReq, err := c.newHTTPRequest(ctx, method, target, r)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var resp *Response
	if c.breaker != nil {
		resp, err = c.breaker.Execute(func() (*Response, error) {
			return c.roundTrip(httpReq)
		})
		if isBreakerRejection(err) {
			err = &apperrors.NetworkError{Op: method, URL: target, Err: err}
		}
	} else {
		resp, err = c.roundTrip(httpReq)
	}

	status := 0
	var apiErr *apperrors.APIError
	switch {
	case err == nil:
		status = resp.StatusCode
	case apperrors.As(err, &apiErr):
		status = apiErr.Status
	}
	span.SetAttributes(attribute.Int("http.response.status_code", status))
	metrics.RequestsTotal.WithLabelValues(metrics.OutcomeLabel(status)).Inc()

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.log.Debug().
			Str("method", method).
			Str("path", r.Path).
			Int("status", status).
			Str("request_id", httpReq.Header.Get(RequestIDHeader)).
			Err(err).
			Msg("backend call failed")
		return nil, err
	}
	return resp, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, method, target string, r Request) (*http.Request, error) {
	var (
		body        io.Reader = http.NoBody
		contentType string
	)
	switch {
	case r.Form != nil:
		body = strings.NewReader(r.Form.Encode())
		contentType = contentTypeForm
	case r.JSON != nil:
		b, err := json.Marshal(r.JSON)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = contentTypeJSON
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", contentTypeJSON)
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set(RequestIDHeader, uuid.New().String())
	if r.BearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.BearerToken)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))
	return httpReq, nil
}

func (c *Client) roundTrip(httpReq *http.Request) (*Response, error) {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &apperrors.NetworkError{Op: httpReq.Method, URL: httpReq.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &apperrors.NetworkError{Op: "read " + httpReq.Method, URL: httpReq.URL.String(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(resp.StatusCode, body)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// newAPIError builds an APIError, lifting "detail" (FastAPI style) or
// "error_description"/"error" (OAuth style) into Detail when they are strings.
func newAPIError(status int, body []byte) *apperrors.APIError {
	apiErr := &apperrors.APIError{Status: status, Body: body}

	var payload struct {
		Detail           json.RawMessage `json:"detail"`
		Error            string          `json:"error"`
		ErrorDescription string          `json:"error_description"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return apiErr
	}

	var detail string
	switch {
	case len(payload.Detail) > 0 && json.Unmarshal(payload.Detail, &detail) == nil:
		apiErr.Detail = detail
	case payload.ErrorDescription != "":
		apiErr.Detail = payload.ErrorDescription
	case payload.Error != "":
		apiErr.Detail = payload.Error
	}
	return apiErr
}

// HealthStatus is the backend's /health document.
type HealthStatus struct {
	Status             string `json:"status"`
	DatabaseConnection string `json:"database_connection"`
	AIServiceStatus    string `json:"ai_service_status"`
	OCRServiceStatus   string `json:"ocr_service_status"`
}

// Health performs the unauthenticated platform health check.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/health"})
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Health]")
	}
	var hs HealthStatus
	if err := resp.Decode(&hs); err != nil {
		return nil, err
	}
	return &hs, nil
}
