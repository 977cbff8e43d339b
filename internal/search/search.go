// Package search implements the web search port over a SearxNG-style
// JSON endpoint. Search degrades instead of failing: any upstream
// problem yields a fallback string the planner can reason over.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPSearch queries an HTTP search endpoint.
type HTTPSearch struct {
	endpoint string
	client   *http.Client
}

// Config contains configuration for creating an HTTPSearch.
type Config struct {
	// Endpoint is the search service base URL. Empty disables search.
	Endpoint string
	// Timeout bounds each request.
	Timeout time.Duration
}

// New creates a search port backed by an HTTP endpoint.
func New(cfg Config) *HTTPSearch {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSearch{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search returns formatted results for the query, or a degraded
// fallback string on any upstream failure. It never returns an error.
func (s *HTTPSearch) Search(ctx context.Context, query string) string {
	if s.endpoint == "" {
		return fallback(query)
	}

	u := fmt.Sprintf("%s/search?q=%s&format=json", s.endpoint, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		log.Printf("[search] build request: %v", err)
		return fallback(query)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("[search] query failed: %v", err)
		return fallback(query)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[search] endpoint returned %d", resp.StatusCode)
		return fallback(query)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		log.Printf("[search] decode response: %v", err)
		return fallback(query)
	}
	if len(parsed.Results) == 0 {
		return fallback(query)
	}

	var sb strings.Builder
	for i, r := range parsed.Results {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&sb, "%d. %s (%s)\n%s\n", i+1, r.Title, r.URL, r.Content)
	}
	return strings.TrimSpace(sb.String())
}

func fallback(query string) string {
	return fmt.Sprintf("No search results available for %q. Proceed using existing knowledge.", query)
}
