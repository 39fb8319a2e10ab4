package search

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/tools/duckduckgo"
)

const userAgent = "Mozilla/5.0 (compatible; local-llm-chat/1.0)"

// DuckDuckGo needs no API key, so it is the default provider.
type DuckDuckGo struct {
	tool *duckduckgo.Tool
}

func NewDuckDuckGo(maxResults int) (*DuckDuckGo, error) {
	tool, err := duckduckgo.New(maxResults, userAgent)
	if err != nil {
		return nil, fmt.Errorf("init duckduckgo: %w", err)
	}
	return &DuckDuckGo{tool: tool}, nil
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

func (d *DuckDuckGo) Search(ctx context.Context, query string) (string, error) {
	result, err := d.tool.Call(ctx, query)
	if err != nil {
		return "", fmt.Errorf("duckduckgo search: %w", err)
	}
	return result, nil
}
