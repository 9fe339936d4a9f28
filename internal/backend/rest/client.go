// Package rest implements the row-query capability over a PostgREST-style
// HTTP API: one GET per query, filters and ordering encoded as query
// parameters, counts answered from the Content-Range header.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"moutamayiz/pkg/moutamayiz"
)

const (
	defaultTimeout = 30 * time.Second
	restPathPrefix = "/rest/v1/"
)

// Error is one failed backend response.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend responded %d: %s", e.Status, e.Message)
}

// Option mutates client configuration.
type Option func(*Client)

// WithHTTPClient injects the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithTimeout overrides the per-request timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// Client is the HTTP implementation of moutamayiz.Querier.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a client for the backend at baseURL, authenticating every
// request with apiKey.
func New(baseURL, apiKey string, options ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("new rest client: empty base url")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("new rest client: empty api key")
	}

	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, option := range options {
		option(client)
	}

	return client, nil
}

// Query runs one row query. Zero matching rows return an empty slice and a
// nil error; callers that treat absence specially check the length.
func (c *Client) Query(ctx context.Context, q moutamayiz.Query) ([]moutamayiz.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", moutamayiz.ErrInvalidQuery, err)
	}

	request, err := c.newRequest(ctx, http.MethodGet, q)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Table, err)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Table, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, fmt.Errorf("query %s: %w", q.Table, responseError(response))
	}

	var records []moutamayiz.Record
	if err := json.NewDecoder(response.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("query %s: decode response: %w", q.Table, err)
	}

	return records, nil
}

// Count returns the number of matching rows without transferring them, using
// a HEAD request with exact-count preference and the Content-Range answer.
func (c *Client) Count(ctx context.Context, q moutamayiz.Query) (int, error) {
	if err := q.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", moutamayiz.ErrInvalidQuery, err)
	}

	request, err := c.newRequest(ctx, http.MethodHead, q)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Table, err)
	}
	request.Header.Set("Prefer", "count=exact")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Table, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return 0, fmt.Errorf("count %s: %w", q.Table, responseError(response))
	}

	count, err := parseContentRangeTotal(response.Header.Get("Content-Range"))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Table, err)
	}

	return count, nil
}

func (c *Client) newRequest(ctx context.Context, method string, q moutamayiz.Query) (*http.Request, error) {
	endpoint := c.baseURL + restPathPrefix + url.PathEscape(q.Table) + "?" + encodeQuery(q)
	request, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	request.Header.Set("apikey", c.apiKey)
	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Accept", "application/json")

	return request, nil
}

// encodeQuery translates a row query into PostgREST query parameters.
func encodeQuery(q moutamayiz.Query) string {
	values := url.Values{}
	values.Set("select", "*")

	for _, filter := range q.Filters {
		values.Add(filter.Column, encodeFilterOperand(filter))
	}
	if len(q.AnyOf) > 0 {
		parts := make([]string, 0, len(q.AnyOf))
		for _, filter := range q.AnyOf {
			parts = append(parts, filter.Column+"."+encodeFilterOperand(filter))
		}
		values.Set("or", "("+strings.Join(parts, ",")+")")
	}
	if q.OrderBy != "" {
		direction := "asc"
		if q.Descending {
			direction = "desc"
		}
		values.Set("order", q.OrderBy+"."+direction)
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}

	return values.Encode()
}

func encodeFilterOperand(filter moutamayiz.Filter) string {
	switch filter.Op {
	case moutamayiz.FilterIsNull:
		return "is.null"
	default:
		return "eq." + filter.Value
	}
}

func responseError(response *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(response.StatusCode)
	}

	return &Error{Status: response.StatusCode, Message: message}
}

// parseContentRangeTotal extracts the total from a "start-end/total" or
// "*/total" Content-Range value.
func parseContentRangeTotal(contentRange string) (int, error) {
	_, total, found := strings.Cut(contentRange, "/")
	if !found {
		return 0, fmt.Errorf("missing content-range total in %q", contentRange)
	}

	count, err := strconv.Atoi(strings.TrimSpace(total))
	if err != nil {
		return 0, fmt.Errorf("parse content-range total %q: %w", total, err)
	}

	return count, nil
}

var _ moutamayiz.Querier = (*Client)(nil)
