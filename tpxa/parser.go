package tpxa

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/robertmeta/tpxa/xmltree"
)

// Feed variants.
const (
	FeedTypeAtom = "atom"
	FeedTypeRSS  = "rss"
)

// ParseFeed decodes a document into a blog graph. Either the whole graph is
// returned or an error; no partially resolved graph is ever exposed.
func ParseFeed(r io.Reader, opts ParseOptions) (*Blog, error) {
	opts = opts.withDefaults()

	root, err := xmltree.Parse(r)
	if err != nil {
		return nil, NewError(CodeFormat, err, "unknown feed uploaded")
	}

	switch root.Name {
	case atom("feed"):
	case xmltree.Name{Local: FeedTypeRSS}:
		return nil, NewError(CodeUnsupportedVariant, nil, "importing of rss feeds is currently not possible")
	default:
		return nil, formatErrorf("unknown feed uploaded: unexpected root element %s", root.Name)
	}

	p, err := NewAtomParser(root, opts)
	if err != nil {
		return nil, err
	}
	return p.Parse()
}

// AtomParser decodes an Atom based document. Its lookup caches live for one
// document.
type AtomParser struct {
	root       *xmltree.Node
	logger     *slog.Logger
	parsers    []string
	extensions []Extension

	authors    []*Author
	tags       []*Tag
	categories []*Category
	posts      []*Post
	terms      map[Term]bool

	authorsByEmail    map[string]*Author
	authorsByUsername map[string]*Author
	categoriesByTerm  map[string]*Category
}

// NewAtomParser prepares a parser for root and constructs every extension
// registered for the atom variant.
func NewAtomParser(root *xmltree.Node, opts ParseOptions) (*AtomParser, error) {
	opts = opts.withDefaults()
	p := &AtomParser{
		root:              root,
		logger:            opts.Logger,
		parsers:           opts.Parsers,
		terms:             make(map[Term]bool),
		authorsByEmail:    make(map[string]*Author),
		authorsByUsername: make(map[string]*Author),
		categoriesByTerm:  make(map[string]*Category),
	}
	for _, f := range opts.Extensions {
		if !f.Handles(FeedTypeAtom) {
			continue
		}
		ext, err := f.New(p, root)
		if err != nil {
			return nil, fmt.Errorf("extension %s: %w", f.Name, err)
		}
		p.extensions = append(p.extensions, ext)
	}
	return p, nil
}

// Logger returns the logger extensions should log to.
func (p *AtomParser) Logger() *slog.Logger {
	return p.logger
}

// Authors returns the authors known so far.
func (p *AtomParser) Authors() []*Author {
	return p.authors
}

// AddAuthor records a new author and makes it findable by email and
// username.
func (p *AtomParser) AddAuthor(a *Author) {
	p.authors = append(p.authors, a)
	p.rememberAuthor(a)
}

func (p *AtomParser) rememberAuthor(a *Author) {
	if a.Email != "" {
		if _, ok := p.authorsByEmail[a.Email]; !ok {
			p.authorsByEmail[a.Email] = a
		}
	}
	if a.Username != "" {
		if _, ok := p.authorsByUsername[a.Username]; !ok {
			p.authorsByUsername[a.Username] = a
		}
	}
}

// ParserName maps a parser id to one the importing side recognizes.
func (p *AtomParser) ParserName(id string) string {
	if id == "" || !slices.Contains(p.parsers, id) {
		return DefaultParser
	}
	return id
}

// Parse decodes every entry, links comment parents and hands the blog to
// the extensions' root handlers.
func (p *AtomParser) Parse() (*Blog, error) {
	for _, entry := range p.root.FindAll(atom("entry")) {
		post, err := p.parsePost(entry)
		if err != nil {
			return nil, err
		}
		p.posts = append(p.posts, post)
	}

	if err := linkComments(p.posts); err != nil {
		return nil, err
	}

	updated, err := parseTime(p.root.ChildText(atom("updated")), "feed updated")
	if err != nil {
		return nil, err
	}
	lang := p.root.AttrValue(xmlLang)
	if lang == "" {
		lang = "en"
	}
	var link string
	if el := p.root.Find(atom("link")); el != nil {
		link = el.AttrValue(attrHref)
	}

	blog := &Blog{
		Title:         textContent(p.root.FindAll(atom("title"))),
		Subtitle:      textContent(p.root.FindAll(atom("subtitle"))),
		Link:          link,
		Language:      lang,
		ID:            p.root.ChildText(atom("id")),
		Updated:       updated,
		Configuration: make(map[string]string),
		Authors:       p.authors,
		Tags:          p.tags,
		Categories:    p.categories,
		Posts:         p.posts,
		Element:       p.root,
	}

	for _, ext := range p.extensions {
		if h, ok := ext.(RootHandler); ok {
			if err := h.HandleRoot(blog); err != nil {
				return nil, err
			}
		}
	}
	// root handlers may add authors
	blog.Authors = p.authors

	p.logger.Debug("feed parsed",
		"posts", len(blog.Posts),
		"authors", len(blog.Authors),
		"tags", len(blog.Tags),
		"categories", len(blog.Categories),
	)
	return blog, nil
}

func (p *AtomParser) parsePost(entry *xmltree.Node) (*Post, error) {
	uid := entry.ChildText(atom("id"))

	updated, err := parseTime(entry.ChildText(atom("updated")), "updated")
	if err != nil {
		return nil, err
	}
	// An empty published element counts as absent.
	published := updated
	if text, ok := entry.FindText(atom("published")); ok && strings.TrimSpace(text) != "" {
		if published, err = parseTime(text, "published"); err != nil {
			return nil, err
		}
	}

	tags, categories, err := p.parseCategories(entry)
	if err != nil {
		return nil, err
	}

	var link string
	if el := entry.Find(atom("link")); el != nil {
		link = el.AttrValue(attrHref)
	}

	var data PostData
	if text := entry.ChildText(tp("data")); strings.TrimSpace(text) != "" {
		if err := DecodePayload(text, &data); err != nil {
			return nil, NewError(CodePayloadDecode, err, "entry %q has an invalid payload", uid)
		}
	}

	author, err := p.parseAuthor(entry)
	if err != nil {
		return nil, err
	}

	post := &Post{
		UID:         uid,
		Slug:        entry.ChildText(tp("slug")),
		Title:       textContent(entry.FindAll(atom("title"))),
		Link:        link,
		Author:      author,
		Published:   published,
		Updated:     updated,
		Intro:       htmlContent(entry.FindAll(atom("summary"))),
		Body:        htmlContent(entry.FindAll(atom("content"))),
		RawBody:     data.RawBody,
		RawIntro:    data.RawIntro,
		Parser:      p.ParserName(data.Parser),
		ParserData:  data.ParserData,
		Extra:       data.Extra,
		ContentType: ContentTypeEntry,
		Tags:        tags,
		Categories:  categories,
		Element:     entry,
	}

	for _, ext := range p.extensions {
		if cp, ok := ext.(CommentParser); ok {
			comments, err := cp.ParseComments(post)
			if err != nil {
				return nil, err
			}
			post.Comments = append(post.Comments, comments...)
		}
	}

	for _, ext := range p.extensions {
		if pp, ok := ext.(PostPostprocessor); ok {
			if err := pp.PostprocessPost(post); err != nil {
				return nil, err
			}
		}
	}
	return post, nil
}

func (p *AtomParser) parseAuthor(entry *xmltree.Node) (*Author, error) {
	el := entry.Find(atom("author"))
	if el == nil {
		return nil, nil
	}
	email := el.ChildText(atom("email"))
	username := el.ChildText(atom("name"))

	for _, ext := range p.extensions {
		lookup, ok := ext.(AuthorLookup)
		if !ok {
			continue
		}
		a, err := lookup.LookupAuthor(el, entry, username, email)
		if err != nil {
			return nil, err
		}
		if a != nil {
			p.rememberAuthor(a)
			return a, nil
		}
	}

	if a, ok := p.authorsByEmail[email]; ok && email != "" {
		return a, nil
	}
	if a, ok := p.authorsByUsername[username]; ok && username != "" {
		return a, nil
	}
	a := &Author{Username: username, Email: email}
	p.AddAuthor(a)
	return a, nil
}

func (p *AtomParser) parseCategories(entry *xmltree.Node) ([]*Tag, []*Category, error) {
	var tags []*Tag
	var categories []*Category

	for _, el := range entry.FindAll(atom("category")) {
		term := el.AttrValue(attrTerm)
		if term == "" {
			return nil, nil, formatErrorf("category without term in entry %q", entry.ChildText(atom("id")))
		}

		var rv Term
		for _, ext := range p.extensions {
			c, ok := ext.(TermClassifier)
			if !ok {
				continue
			}
			t, err := c.TagOrCategory(el)
			if err != nil {
				return nil, nil, err
			}
			if t != nil {
				rv = t
				break
			}
		}
		if rv == nil {
			c, ok := p.categoriesByTerm[term]
			if !ok {
				c = &Category{Slug: term, Name: el.AttrValue(attrLabel)}
			}
			rv = c
		}

		switch t := rv.(type) {
		case *Tag:
			tags = append(tags, t)
			if !p.terms[t] {
				p.terms[t] = true
				p.tags = append(p.tags, t)
			}
		case *Category:
			categories = append(categories, t)
			if _, ok := p.categoriesByTerm[term]; !ok {
				p.categoriesByTerm[term] = t
			}
			if !p.terms[t] {
				p.terms[t] = true
				p.categories = append(p.categories, t)
			}
		default:
			return nil, nil, formatErrorf("term %q classified as unknown type %T", term, rv)
		}
	}
	return tags, categories, nil
}

// linkComments resolves declared comment parents. The first phase indexes
// the comments of every entry by id, the second resolves every declared
// parent against the index of its own entry.
func linkComments(posts []*Post) error {
	index := make([]map[int64]*Comment, len(posts))
	for i, post := range posts {
		byID := make(map[int64]*Comment, len(post.Comments))
		for _, c := range post.Comments {
			if _, dup := byID[c.ID]; dup {
				return referenceErrorf("entry %q has more than one comment with id %d", post.UID, c.ID)
			}
			byID[c.ID] = c
		}
		index[i] = byID
	}

	for i, post := range posts {
		for _, c := range post.Comments {
			if c.ParentID == nil {
				continue
			}
			parent, ok := index[i][*c.ParentID]
			if !ok {
				return referenceErrorf("comment %d of entry %q references unknown parent %d",
					c.ID, post.UID, *c.ParentID)
			}
			if parent == c {
				return referenceErrorf("comment %d of entry %q is its own parent", c.ID, post.UID)
			}
			c.Parent = parent
		}
	}
	return nil
}

func parseTime(s, field string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, NewError(CodeFormat, err, "invalid %s timestamp %q", field, s)
	}
	return t.UTC(), nil
}

func parseBool(s, field string) (bool, error) {
	switch strings.TrimSpace(s) {
	case "yes":
		return true, nil
	case "no", "":
		return false, nil
	}
	return false, formatErrorf("invalid %s flag %q, expected yes/no", field, s)
}

func parseInt(s, field string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, NewError(CodeFormat, err, "invalid %s %q", field, s)
	}
	return n, nil
}
