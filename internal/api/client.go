package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	// DefaultBaseURL is the hosted phospho backend
	DefaultBaseURL = "https://api.phospho.ai"

	// DefaultTimeout bounds a single backend call
	DefaultTimeout = 60 * time.Second

	maxErrorBody = 4 << 10
)

// CacheInterface defines the caching contract
type CacheInterface interface {
	GetCachedMetadata(ctx context.Context, projectID, cacheType string, result interface{}) (bool, error)
	CacheMetadata(ctx context.Context, projectID, cacheType string, data interface{}, ttlHours int) error
	GetCachedQuery(ctx context.Context, queryHash string, resultData interface{}) (bool, error)
	CacheQuery(ctx context.Context, queryID, projectID, queryHash string, queryParams, resultData interface{}, rowCount int, ttlHours *int) error
	Close() error
}

// Client talks to the phospho backend with a project API key
type Client struct {
	baseURL     string
	httpClient  *http.Client
	cacheClient CacheInterface // optional
	cacheTTL    int            // hours
}

// StatusError is returned when the backend answers with a non-2xx status
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s returned status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s returned status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// NewClient creates a backend client. The API key is sent as a bearer token.
func NewClient(baseURL, apiKey string) (*Client, error) {
	return NewClientWithCache(baseURL, apiKey, nil)
}

// NewClientWithCache creates a backend client that caches metadata
// fields and pivot results
func NewClientWithCache(baseURL, apiKey string, cacheClient CacheInterface) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API key not configured - run 'phospho config set --api-key <key>' first")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: apiKey,
		TokenType:   "Bearer",
	})
	httpClient := oauth2.NewClient(context.Background(), tokenSource)
	httpClient.Timeout = DefaultTimeout

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  httpClient,
		cacheClient: cacheClient,
		cacheTTL:    1,
	}, nil
}

// SetCacheTTL sets how long cached responses stay valid, in hours
func (c *Client) SetCacheTTL(hours int) {
	if hours > 0 {
		c.cacheTTL = hours
	}
}

// BaseURL returns the backend root the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close closes any resources (like cache connections)
func (c *Client) Close() error {
	if c.cacheClient != nil {
		return c.cacheClient.Close()
	}
	return nil
}

// doJSON sends body (when non-nil) as JSON and returns the raw response body
func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case []byte:
			reader = bytes.NewReader(b)
		default:
			jsonData, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal request: %w", err)
			}
			reader = bytes.NewReader(jsonData)
		}
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request to phospho API: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, &StatusError{Method: method, URL: url, StatusCode: resp.StatusCode, Body: msg}
	}

	return data, nil
}
