// Package feed reads TPXA documents the way a plain feed reader does, which
// shows what an Atom-only consumer gets out of an export.
package feed

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/robertmeta/tpxa/tpxa"
)

// Summary is the Atom subset of a document.
type Summary struct {
	Title     string         `json:"title"`
	Link      string         `json:"link"`
	FeedType  string         `json:"feed_type"`
	Generator string         `json:"generator,omitempty"`
	Updated   *time.Time     `json:"updated,omitempty"`
	IsTPXA    bool           `json:"is_tpxa"`
	Entries   []EntrySummary `json:"entries"`
	// Extensions counts foreign top-level elements by prefixed name.
	Extensions map[string]int `json:"extensions,omitempty"`
}

// EntrySummary is the Atom subset of one entry.
type EntrySummary struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Link       string         `json:"link"`
	Authors    []string       `json:"authors,omitempty"`
	Categories []string       `json:"categories,omitempty"`
	Published  *time.Time     `json:"published,omitempty"`
	Updated    *time.Time     `json:"updated,omitempty"`
	Extensions map[string]int `json:"extensions,omitempty"`
}

// Inspector summarizes feeds with a generic feed parser.
type Inspector struct {
	parser *gofeed.Parser
}

// NewInspector creates a new Inspector.
func NewInspector() *Inspector {
	return &Inspector{
		parser: gofeed.NewParser(),
	}
}

// Parse summarizes a document read from r.
func (i *Inspector) Parse(r io.Reader) (*Summary, error) {
	parsed, err := i.parser.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return summarize(parsed), nil
}

// ParseString summarizes a document held in memory.
func (i *Inspector) ParseString(content string) (*Summary, error) {
	if content == "" {
		return nil, fmt.Errorf("feed content is empty")
	}
	return i.Parse(strings.NewReader(content))
}

// Fetch retrieves and summarizes a document from a URL.
func (i *Inspector) Fetch(ctx context.Context, url string) (*Summary, error) {
	parsed, err := i.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed from %s: %w", url, err)
	}
	return summarize(parsed), nil
}

func summarize(f *gofeed.Feed) *Summary {
	s := &Summary{
		Title:      f.Title,
		Link:       f.Link,
		FeedType:   f.FeedType,
		Generator:  f.Generator,
		Updated:    f.UpdatedParsed,
		IsTPXA:     strings.HasPrefix(f.Generator, tpxa.GeneratorName),
		Extensions: countExtensions(f.Extensions),
	}
	for _, item := range f.Items {
		s.Entries = append(s.Entries, summarizeItem(item))
	}
	return s
}

func summarizeItem(item *gofeed.Item) EntrySummary {
	e := EntrySummary{
		ID:         item.GUID,
		Title:      item.Title,
		Link:       item.Link,
		Categories: item.Categories,
		Published:  item.PublishedParsed,
		Updated:    item.UpdatedParsed,
		Extensions: countExtensions(item.Extensions),
	}
	if e.ID == "" {
		e.ID = item.Link
	}
	for _, a := range item.Authors {
		if a == nil {
			continue
		}
		name := a.Name
		if a.Email != "" {
			name = strings.TrimSpace(name + " <" + a.Email + ">")
		}
		e.Authors = append(e.Authors, name)
	}
	return e
}

// countExtensions flattens gofeed's prefix → name → elements map.
func countExtensions[M ~map[string]map[string][]E, E any](exts M) map[string]int {
	if len(exts) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for prefix, byName := range exts {
		for name, elements := range byName {
			counts[prefix+":"+name] += len(elements)
		}
	}
	return counts
}

// ExtensionNames returns the sorted extension element names of a summary.
func (s *Summary) ExtensionNames() []string {
	names := make([]string, 0, len(s.Extensions))
	for name := range s.Extensions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
