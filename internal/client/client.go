// Package client talks to the remote histories REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Project-Sylos/Chronicle/internal/logging"
	"github.com/Project-Sylos/Chronicle/internal/metrics"
	"github.com/Project-Sylos/Chronicle/internal/types"
	"github.com/Project-Sylos/Chronicle/internal/utils"
)

// ViewDetailed requests the expanded history serialization
const ViewDetailed = "dev-detailed"

// Client issues requests against the histories API. Requests are never retried.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config holds client configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client // optional, overrides Timeout
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}
}

// APIError is returned for any non-2xx response.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: server returned %d: %s", e.Method, e.URL, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: server returned %d", e.Method, e.URL, e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// errorBody is the server's error envelope
type errorBody struct {
	ErrMsg  string `json:"err_msg"`
	ErrCode int    `json:"err_code"`
}

// request describes one API call
type request struct {
	method   string
	endpoint string // metrics label
	path     []string
	query    url.Values
	body     any
	out      any
}

// do sends the request, decodes a JSON response into out and returns the
// server's Date header (zero if absent).
func (c *Client) do(ctx context.Context, r request) (time.Time, error) {
	target := utils.JoinURL(c.baseURL, r.path...)
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return time.Time{}, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	requestID := logging.GetRequestID(ctx)
	if requestID == "" {
		requestID = logging.NewRequestID()
	}
	req.Header.Set(logging.RequestIDHeader, requestID)

	log := logging.WithContext(ctx).Named("client")
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordAPIRequest(r.method, r.endpoint, 0, time.Since(start))
		log.Error("request failed",
			zap.String("method", r.method),
			zap.String("endpoint", r.endpoint),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return time.Time{}, fmt.Errorf("%s %s: %w", r.method, target, err)
	}
	defer resp.Body.Close()
	metrics.RecordAPIRequest(r.method, r.endpoint, resp.StatusCode, time.Since(start))

	log.Debug("request completed",
		zap.String("method", r.method),
		zap.String("endpoint", r.endpoint),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Method: r.method, URL: target, StatusCode: resp.StatusCode}
		var eb errorBody
		if json.NewDecoder(resp.Body).Decode(&eb) == nil {
			apiErr.Message = eb.ErrMsg
		}
		return time.Time{}, apiErr
	}

	var serverTime time.Time
	if date := resp.Header.Get("Date"); date != "" {
		if parsed, err := http.ParseTime(date); err == nil {
			serverTime = parsed
		}
	}

	if r.out != nil {
		if err := json.NewDecoder(resp.Body).Decode(r.out); err != nil {
			return serverTime, fmt.Errorf("failed to decode %s response: %w", r.endpoint, err)
		}
	}
	return serverTime, nil
}

// Ping checks that the API root answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, request{
		method:   http.MethodGet,
		endpoint: "version",
		path:     []string{"api", "version"},
	})
	return err
}

// ListContents fetches one page of a history's contents.
func (c *Client) ListContents(ctx context.Context, historyID string, query url.Values) ([]types.Item, time.Time, error) {
	var items []types.Item
	serverTime, err := c.do(ctx, request{
		method:   http.MethodGet,
		endpoint: "histories/{id}/contents",
		path:     []string{"api", "histories", historyID, "contents"},
		query:    query,
		out:      &items,
	})
	if err != nil {
		return nil, time.Time{}, err
	}
	if items == nil {
		items = []types.Item{}
	}
	return items, serverTime, nil
}

// ListHistories fetches one page of histories.
func (c *Client) ListHistories(ctx context.Context, q types.HistoryQuery) ([]types.History, error) {
	values := url.Values{}
	if q.View != "" {
		values.Set("view", q.View)
	}
	if q.Order != "" {
		values.Set("order", q.Order)
	}
	values.Set("offset", strconv.Itoa(q.Offset))
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	for _, key := range sortedKeys(q.Filters) {
		values.Add("q", key)
		values.Add("qv", q.Filters[key])
	}

	var histories []types.History
	_, err := c.do(ctx, request{
		method:   http.MethodGet,
		endpoint: "histories",
		path:     []string{"api", "histories"},
		query:    values,
		out:      &histories,
	})
	if err != nil {
		return nil, err
	}
	return histories, nil
}

// GetHistory fetches a history into into. Only the attributes present in
// the response are overwritten, so a keys-restricted fetch merges into the
// existing attributes. Returns the server's response time.
func (c *Client) GetHistory(ctx context.Context, historyID string, keys []string, view string, into *types.History) (time.Time, error) {
	values := url.Values{}
	if len(keys) > 0 {
		values.Set("keys", joinKeys(keys))
	}
	if view != "" {
		values.Set("view", view)
	}
	return c.do(ctx, request{
		method:   http.MethodGet,
		endpoint: "histories/{id}",
		path:     []string{"api", "histories", historyID},
		query:    values,
		out:      into,
	})
}

// CopyHistory creates a copy of a history and returns the new one.
func (c *Client) CopyHistory(ctx context.Context, req types.CopyRequest) (*types.History, error) {
	created := types.DefaultHistory()
	_, err := c.do(ctx, request{
		method:   http.MethodPost,
		endpoint: "histories",
		path:     []string{"api", "histories"},
		body:     req,
		out:      &created,
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateHistory applies changes to a history (rename, soft-delete, purge,
// undelete) and returns the updated attributes.
func (c *Client) UpdateHistory(ctx context.Context, historyID string, changes map[string]any) (*types.History, error) {
	var updated types.History
	_, err := c.do(ctx, request{
		method:   http.MethodPut,
		endpoint: "histories/{id}",
		path:     []string{"api", "histories", historyID},
		body:     changes,
		out:      &updated,
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// SetAsCurrent makes a history the session's current history.
func (c *Client) SetAsCurrent(ctx context.Context, historyID string) error {
	_, err := c.do(ctx, request{
		method:   http.MethodGet,
		endpoint: "history/set_as_current",
		path:     []string{"history", "set_as_current"},
		query:    url.Values{"id": []string{historyID}},
	})
	return err
}

// CreateNewCurrent creates an empty history and makes it current.
func (c *Client) CreateNewCurrent(ctx context.Context) (*types.History, error) {
	created := types.DefaultHistory()
	_, err := c.do(ctx, request{
		method:   http.MethodGet,
		endpoint: "history/create_new_current",
		path:     []string{"history", "create_new_current"},
		out:      &created,
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}
