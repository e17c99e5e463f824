// internal/api/client.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/scribblemap/arcapture/internal/geo"
	"github.com/scribblemap/arcapture/internal/search"
)

var (
	ErrSearchFailed = errors.New("scribble search failed")
	ErrUploadFailed = errors.New("scribble upload failed")
	ErrResetFailed  = errors.New("scribble reset failed")
	ErrPingFailed   = errors.New("scribble ping failed")
	ErrListFailed   = errors.New("scribble list failed")
)

// maxErrorBody bounds how much of an error response is quoted.
const maxErrorBody = 512

// Client handles communication with the scribble backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client. A zero timeout means 30 seconds.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// UploadRequest is a scribble submitted for search indexing.
type UploadRequest struct {
	Text        string         `json:"text"`
	ImageURL    string         `json:"imageUrl,omitempty"`
	Coordinates geo.Coordinate `json:"coordinates"`
}

type searchRequest struct {
	Query string `json:"query"`
}

type pingRequest struct {
	Coordinates geo.Coordinate `json:"coordinates"`
}

type resultsResponse struct {
	Results []search.Hit `json:"results"`
}

type allResponse struct {
	Scribbles []search.Hit `json:"scribbles"`
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	return c.httpClient.Do(req)
}

func statusError(sentinel error, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if s := strings.TrimSpace(string(msg)); s != "" {
		return fmt.Errorf("%w: status %d: %s", sentinel, resp.StatusCode, s)
	}
	return fmt.Errorf("%w: status %d", sentinel, resp.StatusCode)
}

// Healthcheck checks that the backend is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/badges", nil)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// Search runs a free-text query and returns the matching scribbles.
func (c *Client) Search(ctx context.Context, query string) ([]search.Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrSearchFailed)
	}

	resp, err := c.do(ctx, http.MethodPost, "/scribble/search", searchRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(ErrSearchFailed, resp)
	}

	var out resultsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrSearchFailed, err)
	}
	if out.Results == nil {
		out.Results = []search.Hit{}
	}
	return out.Results, nil
}

// Reset restores visibility of every scribble after a search.
func (c *Client) Reset(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, "/scribble/reset", struct{}{})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResetFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(ErrResetFailed, resp)
	}
	return nil
}

// Upload submits a scribble. Text and a valid coordinate are required.
func (c *Client) Upload(ctx context.Context, in UploadRequest) error {
	if strings.TrimSpace(in.Text) == "" {
		return fmt.Errorf("%w: text is required", ErrUploadFailed)
	}
	if err := in.Coordinates.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/scribble/upload", in)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(ErrUploadFailed, resp)
	}
	return nil
}

// Ping returns the scribbles the backend finds near c. No content means
// nothing is in range and yields an empty slice.
func (c *Client) Ping(ctx context.Context, coord geo.Coordinate) ([]search.Hit, error) {
	if err := coord.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPingFailed, err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/scribble/ping", pingRequest{Coordinates: coord})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPingFailed, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return []search.Hit{}, nil
	case http.StatusOK:
	default:
		return nil, statusError(ErrPingFailed, resp)
	}

	var out resultsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrPingFailed, err)
	}
	if out.Results == nil {
		out.Results = []search.Hit{}
	}
	return out.Results, nil
}

// All lists every stored scribble.
func (c *Client) All(ctx context.Context) ([]search.Hit, error) {
	resp, err := c.do(ctx, http.MethodGet, "/scribble/get_all", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(ErrListFailed, resp)
	}

	var out allResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrListFailed, err)
	}
	if out.Scribbles == nil {
		out.Scribbles = []search.Hit{}
	}
	return out.Scribbles, nil
}
