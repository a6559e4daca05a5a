package tpxa

import (
	"log/slog"
	"slices"

	"github.com/robertmeta/tpxa/xmltree"
)

// Extension takes part in an import. Like Participant it opts into decode
// steps by implementing any of RootHandler, PostPostprocessor,
// AuthorLookup, TermClassifier and CommentParser. A nil result from a
// lookup hook means the extension passes.
type Extension interface {
	Name() string
}

// RootHandler runs once, after all entries are parsed and comments linked.
type RootHandler interface {
	HandleRoot(blog *Blog) error
}

// PostPostprocessor runs for every entry once it is fully parsed.
type PostPostprocessor interface {
	PostprocessPost(post *Post) error
}

// AuthorLookup resolves the author element of an entry.
type AuthorLookup interface {
	LookupAuthor(author, entry *xmltree.Node, username, email string) (*Author, error)
}

// TermClassifier decides whether a category element is a tag or a category.
type TermClassifier interface {
	TagOrCategory(el *xmltree.Node) (Term, error)
}

// CommentParser reconstructs the comments of an entry. Parent ids are only
// declared; the parser links them after all entries are read.
type CommentParser interface {
	ParseComments(post *Post) ([]*Comment, error)
}

// ExtensionFactory registers an extension for the feed variants it handles.
type ExtensionFactory struct {
	Name      string
	FeedTypes []string
	New       func(p *AtomParser, root *xmltree.Node) (Extension, error)
}

// Handles reports whether the factory applies to a feed variant.
func (f ExtensionFactory) Handles(feedType string) bool {
	return slices.Contains(f.FeedTypes, feedType)
}

// DefaultExtensions returns the extensions a full import uses.
func DefaultExtensions() []ExtensionFactory {
	return []ExtensionFactory{TextPressExtensionFactory}
}

// DefaultParsers are the markup parsers an import recognizes unless told
// otherwise.
var DefaultParsers = []string{"html", "text", "plain", "zeml", "markdown"}

// ParseOptions configures an import.
type ParseOptions struct {
	// Extensions defaults to DefaultExtensions. An empty non-nil slice
	// disables extensions.
	Extensions []ExtensionFactory
	// Parsers lists the recognized parser ids and defaults to DefaultParsers.
	Parsers []string
	Logger  *slog.Logger
}

func (o ParseOptions) withDefaults() ParseOptions {
	if o.Extensions == nil {
		o.Extensions = DefaultExtensions()
	}
	if o.Parsers == nil {
		o.Parsers = DefaultParsers
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
