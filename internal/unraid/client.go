package unraid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jamesprial/unraid-spindown/internal/config"
)

const defaultTimeout = 10 * time.Second

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// HTTPClient sends GraphQL requests over HTTP with the x-api-key header.
type HTTPClient struct {
	httpClient *http.Client
	graphqlURL string
	apiKey     string
}

// NewHTTPClient builds an HTTPClient. The URL is required and the API key
// must be set; a missing key would only surface as a 401 at the worst
// moment, so it is rejected here.
func NewHTTPClient(cfg config.UnraidConfig) (*HTTPClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("unraid: URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("unraid: API key is required")
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if cfg.Timeout <= 0 {
		timeout = defaultTimeout
	}

	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		graphqlURL: normalizeURL(cfg.URL),
		apiKey:     cfg.APIKey,
	}, nil
}

// normalizeURL trims trailing slashes and appends /graphql when missing.
func normalizeURL(rawURL string) string {
	u := strings.TrimRight(rawURL, "/")
	if !strings.HasSuffix(u, "/graphql") {
		u += "/graphql"
	}
	return u
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors"`
}

// Execute posts query and returns the raw "data" member.
func (c *HTTPClient) Execute(ctx context.Context, query string, variables map[string]any) ([]byte, error) {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("unraid: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("unraid: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unraid: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("unraid: authentication failed (HTTP %d)", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unraid: unexpected HTTP status %d", resp.StatusCode)
	}

	var gqlResp graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gqlResp); err != nil {
		return nil, fmt.Errorf("unraid: decode response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		msgs := make([]string, len(gqlResp.Errors))
		for i, e := range gqlResp.Errors {
			msgs[i] = e.Message
		}
		return nil, fmt.Errorf("unraid: %s", strings.Join(msgs, "; "))
	}

	return []byte(gqlResp.Data), nil
}
