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

	"github.com/jpalmerr/entrywatch/internal/server"
)

const (
	defaultAPI    = "http://localhost:8080"
	clientTimeout = 10 * time.Second
)

// apiClient talks to the admin API of a running entrywatch server.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: clientTimeout},
	}
}

func (c *apiClient) listTargets(ctx context.Context) ([]server.TargetResponse, error) {
	var out []server.TargetResponse
	err := c.do(ctx, http.MethodGet, "/api/targets", nil, &out)
	return out, err
}

func (c *apiClient) addTarget(ctx context.Context, req server.CreateTargetRequest) (server.TargetResponse, error) {
	var out server.TargetResponse
	err := c.do(ctx, http.MethodPost, "/api/targets", req, &out)
	return out, err
}

func (c *apiClient) deleteTarget(ctx context.Context, id string) (bool, error) {
	var out struct {
		Removed int `json:"removed"`
	}
	err := c.do(ctx, http.MethodDelete, "/api/targets/"+url.PathEscape(id), nil, &out)
	return out.Removed == 1, err
}

func (c *apiClient) history(ctx context.Context, id string, limit int) ([]server.HistoryEntryResponse, error) {
	path := "/api/targets/" + url.PathEscape(id) + "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []server.HistoryEntryResponse
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", c.base, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		var apiErr server.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
			return fmt.Errorf("%s %s: %s", method, path, resp.Status)
		}
		return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
