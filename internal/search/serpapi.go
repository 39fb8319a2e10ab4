package search

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

// SerpAPI queries serpapi.com and joins the top organic snippets.
type SerpAPI struct {
	apiKey     string
	maxResults int
	client     *http.Client
}

func NewSerpAPI(apiKey string, maxResults int, timeout time.Duration) *SerpAPI {
	return &SerpAPI{
		apiKey:     apiKey,
		maxResults: maxResults,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *SerpAPI) Name() string { return "serpapi" }

type serpAPIResponse struct {
	OrganicResults []struct {
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
}

func (s *SerpAPI) Search(ctx context.Context, query string) (string, error) {
	if s.apiKey == "" {
		return "", fmt.Errorf("serpapi: no API key configured")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("api_key", s.apiKey)
	params.Set("engine", "google")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://serpapi.com/search?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("serpapi request: %w", err)
	}

	res, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("serpapi request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("serpapi read response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("serpapi: status %d, body: %s", res.StatusCode, string(body))
	}

	var parsed serpAPIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("serpapi unmarshal: %w", err)
	}

	snippets := make([]string, 0, s.maxResults)
	for _, r := range parsed.OrganicResults {
		if len(snippets) == s.maxResults {
			break
		}
		if r.Snippet != "" {
			snippets = append(snippets, r.Snippet)
		}
	}
	if len(snippets) == 0 {
		return "", fmt.Errorf("serpapi: no results for %q", query)
	}
	return strings.Join(snippets, "\n"), nil
}
