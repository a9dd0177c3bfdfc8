package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"nordagri/internal/config"
	"nordagri/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("nordagri/backend")

// maxErrorBody bounds how much of a failed response is kept in APIError.
const maxErrorBody = 4 << 10

// APIError is returned when the backend answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend http %d", e.StatusCode)
	}
	return fmt.Sprintf("backend http %d: %s", e.StatusCode, e.Body)
}

// Client inserts rows through the backend's REST interface (PostgREST style).
type Client struct {
	baseURL           string
	apiKey            string
	healthPath        string
	timeSessionsTable string
	fuelLogsTable     string
	httpClient        *http.Client
	limiter           *rate.Limiter
}

// NewClient builds a Client from cfg. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg config.BackendConfig, httpClient *http.Client) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base url is required")
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = models.DefaultBackendTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		baseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:            cfg.APIKey,
		healthPath:        orDefault(cfg.HealthPath, "/rest/v1/"),
		timeSessionsTable: orDefault(cfg.TimeSessionsTable, "time_sessions"),
		fuelLogsTable:     orDefault(cfg.FuelLogsTable, "fuel_logs"),
		httpClient:        httpClient,
	}

	if cfg.RateLimit.RPS > 0 {
		burst := cfg.RateLimit.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), burst)
	}
	return c, nil
}

func (c *Client) InsertTimeSession(ctx context.Context, payload json.RawMessage) error {
	return c.insert(ctx, c.timeSessionsTable, payload)
}

func (c *Client) InsertFuelLog(ctx context.Context, payload json.RawMessage) error {
	return c.insert(ctx, c.fuelLogsTable, payload)
}

// Ping checks that the backend answers on the health path. Any response below
// 500 counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.healthPath, nil)
	if err != nil {
		return err
	}
	c.addHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return &APIError{StatusCode: resp.StatusCode}
	}
	return nil
}

func (c *Client) insert(ctx context.Context, table string, payload json.RawMessage) (err error) {
	ctx, span := tracer.Start(ctx, "backend.insert",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("table", table)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	endpoint := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, table)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")
	c.addHeaders(req)
	return c.do(req)
}

func (c *Client) do(req *http.Request) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
