package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// apiClient talks to the resolver debug API.
type apiClient struct {
	base string
	key  string
	http *http.Client
}

func newAPIClient(base, key string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		key:  key,
		http: &http.Client{Timeout: 2 * time.Minute},
	}
}

type apiError struct {
	Status int
	Msg    string
}

func (e *apiError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("api returned %d", e.Status)
	}
	return fmt.Sprintf("api returned %d: %s", e.Status, e.Msg)
}

// do sends the request and returns the raw body of a 2xx response.
func (c *apiClient) do(ctx context.Context, method, path string, body any) ([]byte, int, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("contact api: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode/100 != 2 && resp.StatusCode != http.StatusServiceUnavailable {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &e)
		return nil, resp.StatusCode, &apiError{Status: resp.StatusCode, Msg: e.Error}
	}
	return raw, resp.StatusCode, nil
}

func (c *apiClient) Show(ctx context.Context) ([]byte, error) {
	raw, _, err := c.do(ctx, http.MethodGet, "/api/endpoint", nil)
	return raw, err
}

func (c *apiClient) Resolve(ctx context.Context, force bool, timeout time.Duration) ([]byte, error) {
	q := url.Values{}
	if force {
		q.Set("force", "true")
	}
	if timeout > 0 {
		q.Set("timeout_ms", strconv.FormatInt(timeout.Milliseconds(), 10))
	}
	path := "/api/endpoint/resolve"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	raw, _, err := c.do(ctx, http.MethodPost, path, nil)
	return raw, err
}

func (c *apiClient) Set(ctx context.Context, endpoint string) ([]byte, error) {
	raw, _, err := c.do(ctx, http.MethodPut, "/api/endpoint", map[string]string{"url": endpoint})
	return raw, err
}

func (c *apiClient) Reset(ctx context.Context) error {
	_, _, err := c.do(ctx, http.MethodDelete, "/api/endpoint", nil)
	return err
}

// Health reports healthy=false with a nil error when the API answered 503.
func (c *apiClient) Health(ctx context.Context) ([]byte, bool, error) {
	raw, status, err := c.do(ctx, http.MethodGet, "/api/endpoint/health", nil)
	return raw, err == nil && status == http.StatusOK, err
}

func (c *apiClient) Candidates(ctx context.Context) ([]byte, error) {
	raw, _, err := c.do(ctx, http.MethodGet, "/api/candidates", nil)
	return raw, err
}
