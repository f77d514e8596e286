// Package websearch provides the lookup backend used to inject web context
// into providers that cannot search on their own.
package websearch

import (
	"context"
	"fmt"
	"time"

	"github.com/typesense/typesense-go/v4/typesense"
	"github.com/typesense/typesense-go/v4/typesense/api"
	"github.com/typesense/typesense-go/v4/typesense/api/pointer"

	"courier.chat/relay/internal/model"
)

// Searcher returns ranked results for a free-text query. Implementations
// must be safe for concurrent use.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error)
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
}

func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("typesense URL is required")
	}
	if c.Collection == "" {
		return fmt.Errorf("typesense collection is required")
	}
	return nil
}

type client struct {
	ts         *typesense.Client
	collection string
}

// New creates a Typesense-backed Searcher over a pre-built index of web
// documents (fields: title, url, snippet, published_at).
func New(cfg Config) (Searcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("websearch config: %w", err)
	}
	ts := typesense.NewClient(
		typesense.WithServer(cfg.URL),
		typesense.WithAPIKey(cfg.APIKey),
		typesense.WithConnectionTimeout(10*time.Second),
	)
	return &client{ts: ts, collection: cfg.Collection}, nil
}

func (c *client) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}
	res, err := c.ts.Collection(c.collection).Documents().Search(ctx, &api.SearchCollectionParams{
		Q:       pointer.String(query),
		QueryBy: pointer.String("title,snippet"),
		PerPage: pointer.Int(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	if res.Hits == nil {
		return nil, nil
	}

	results := make([]model.SearchResult, 0, len(*res.Hits))
	for _, hit := range *res.Hits {
		if hit.Document == nil {
			continue
		}
		doc := *hit.Document
		results = append(results, model.SearchResult{
			Title:   docString(doc, "title"),
			URL:     docString(doc, "url"),
			Snippet: docString(doc, "snippet"),
		})
	}
	return results, nil
}

func docString(doc map[string]interface{}, key string) string {
	v, ok := doc[key].(string)
	if !ok {
		return ""
	}
	return v
}
