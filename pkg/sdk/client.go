// Package sdk is a Go client for the quorum REST and WebSocket API.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

type Config struct {
	// BaseURL defaults to QUORUM_URL, then http://localhost:8080.
	BaseURL string
	// APIKey defaults to QUORUM_API_KEY.
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client

	Users         *UsersService
	SavedSearches *SavedSearchesService
	Topics        *TopicsService
	Search        *SearchService
	Messages      *MessagesService
	Admin         *AdminService
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("QUORUM_API_KEY"))
	}
	c := &Client{
		BaseURL: resolveURL(cfg.BaseURL),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: cfg.Timeout},
	}
	c.Users = &UsersService{client: c}
	c.SavedSearches = &SavedSearchesService{client: c}
	c.Topics = &TopicsService{client: c}
	c.Search = &SearchService{client: c}
	c.Messages = &MessagesService{client: c}
	c.Admin = &AdminService{client: c}
	return c
}

func resolveURL(override string) string {
	if v := strings.TrimSpace(override); v != "" {
		return strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(os.Getenv("QUORUM_URL")); v != "" {
		return strings.TrimRight(v, "/")
	}
	return "http://localhost:8080"
}

// APIError is a non-ok response envelope.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" && e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}

type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
}

type envelope[T any] struct {
	OK         bool        `json:"ok"`
	Data       T           `json:"data"`
	Error      *APIError   `json:"error"`
	Pagination *Pagination `json:"pagination"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) (*Pagination, error) {
	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var raw envelope[json.RawMessage]
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if !raw.OK {
		apiErr := raw.Error
		if apiErr == nil {
			apiErr = &APIError{}
		}
		apiErr.Status = resp.StatusCode
		return nil, apiErr
	}
	if out != nil && len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, out); err != nil {
			return nil, err
		}
	}
	return raw.Pagination, nil
}
