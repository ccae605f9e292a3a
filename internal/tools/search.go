package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SearchClient queries a SearXNG instance's JSON API.
type SearchClient struct {
	baseURL    string
	maxResults int
	client     *http.Client
}

// NewSearch creates a SearXNG client. maxResults caps how many hits are
// passed on to the responder.
func NewSearch(baseURL string, maxResults int) *SearchClient {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &SearchClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxResults: maxResults,
		client: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// SearchResult is a single hit from SearXNG.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Search runs a query and returns the top results.
func (s *SearchClient) Search(ctx context.Context, query string) ([]SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, "GET", s.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncateStr(string(body), 200))
	}

	var searchResp struct {
		Results []SearchResult `json:"results"`
	}
	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}

	results := searchResp.Results
	if len(results) > s.maxResults {
		results = results[:s.maxResults]
	}
	return results, nil
}

// RenderResults formats hits as plain text context for the responder.
func RenderResults(results []SearchResult) string {
	if len(results) == 0 {
		return "No results found."
	}
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "%s\n%s\n%s\n\n", r.Title, r.URL, r.Content)
	}
	return strings.TrimSpace(b.String())
}
