// Package search queries Google Custom Search.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harunnryd/aide/pkg/errorsx"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const NoResults = "No results found."

type Result struct {
	Title   string
	Snippet string
	Link    string
}

// Searcher is the contract the chat loop and the web_search tool depend on.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

type Config struct {
	APIKey   string        `mapstructure:"api_key"`
	EngineID string        `mapstructure:"engine_id"`
	Results  int           `mapstructure:"results"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// Endpoint overrides the API base URL.
	Endpoint string `mapstructure:"endpoint"`
}

type Google struct {
	svc     *customsearch.Service
	cx      string
	num     int64
	timeout time.Duration
}

func NewGoogle(ctx context.Context, cfg Config) (*Google, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.EngineID) == "" {
		return nil, errorsx.Wrap(errors.New("search requires api_key and engine_id"), errorsx.ReasonConfigMissing)
	}
	if cfg.Results <= 0 {
		cfg.Results = 3
	}
	if cfg.Results > 10 {
		cfg.Results = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("customsearch client: %w", err)
	}
	return &Google{svc: svc, cx: cfg.EngineID, num: int64(cfg.Results), timeout: cfg.Timeout}, nil
}

func (g *Google) Search(ctx context.Context, query string) ([]Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	res, err := g.svc.Cse.List().Q(query).Cx(g.cx).Num(g.num).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			err = fmt.Errorf("search api status %d: %s", apiErr.Code, apiErr.Message)
		}
		return nil, errorsx.Wrap(err, errorsx.ReasonSearchRequest)
	}
	out := make([]Result, 0, len(res.Items))
	for _, item := range res.Items {
		if item == nil {
			continue
		}
		out = append(out, Result{Title: item.Title, Snippet: item.Snippet, Link: item.Link})
	}
	return out, nil
}

// Format renders results as Title/Snippet/Link blocks separated by "---".
func Format(results []Result) string {
	if len(results) == 0 {
		return NoResults
	}
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "Title: %s\nSnippet: %s\nLink: %s\n---\n", r.Title, r.Snippet, r.Link)
	}
	return b.String()
}
