package plugins

import (
	"context"

	"github.com/harunnryd/aide/pkg/search"
)

type WebSearch struct {
	searcher search.Searcher
}

func NewWebSearch(s search.Searcher) *WebSearch { return &WebSearch{searcher: s} }

func (*WebSearch) Name() string { return "web_search" }

func (p *WebSearch) Tools() []Tool {
	return []Tool{{
		Tool: llmTool("web_search", "Search the web for recent or time-sensitive information.", []string{"query"}, map[string]any{
			"query": map[string]any{"type": "string", "description": "The topic or question to search for."},
		}),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			q, err := requiredString(args, "query")
			if err != nil {
				return "", err
			}
			results, err := p.searcher.Search(ctx, q)
			if err != nil {
				return "", err
			}
			return search.Format(results), nil
		},
	}}
}
