package tpxa

import (
	"strings"

	"github.com/robertmeta/tpxa/model"
	"github.com/robertmeta/tpxa/xmltree"
)

// TextPressExtensionFactory registers TextPressExtension for Atom feeds.
var TextPressExtensionFactory = ExtensionFactory{
	Name:      "textpress",
	FeedTypes: []string{FeedTypeAtom},
	New: func(p *AtomParser, root *xmltree.Node) (Extension, error) {
		return NewTextPressExtension(p, root)
	},
}

// TextPressExtension decodes the TextPress namespace. Because feeds written
// by the exporter are strict about references, authors, tags and categories
// are resolved through the extension's own caches rather than the parser's
// fallback matching.
type TextPressExtension struct {
	parser *AtomParser

	deps  map[string]*xmltree.Node
	order []string

	authors    map[string]*Author
	tags       map[string]*Tag
	categories map[string]*Category
}

// NewTextPressExtension indexes the dependencies block of root.
func NewTextPressExtension(p *AtomParser, root *xmltree.Node) (*TextPressExtension, error) {
	e := &TextPressExtension{
		parser:     p,
		deps:       make(map[string]*xmltree.Node),
		authors:    make(map[string]*Author),
		tags:       make(map[string]*Tag),
		categories: make(map[string]*Category),
	}
	for _, block := range root.FindAll(tp("dependencies")) {
		for _, el := range block.FindAll(tp("user")) {
			id := el.AttrValue(dependencyAttr)
			if id == "" {
				return nil, formatErrorf("user definition without %s attribute", dependencyAttr.Local)
			}
			if _, dup := e.deps[id]; dup {
				return nil, referenceErrorf("dependency %q is defined more than once", id)
			}
			e.deps[id] = el
			e.order = append(e.order, id)
		}
	}
	return e, nil
}

// Name implements Extension.
func (e *TextPressExtension) Name() string { return "textpress" }

func (e *TextPressExtension) author(id string) (*Author, error) {
	if a, ok := e.authors[id]; ok {
		return a, nil
	}
	el, ok := e.deps[id]
	if !ok {
		return nil, referenceErrorf("reference to unknown dependency %q", id)
	}

	role, err := parseInt(el.ChildText(tp("role")), "role")
	if err != nil {
		return nil, err
	}
	var pwHash []byte
	if text := el.ChildText(tp("pw_hash")); strings.TrimSpace(text) != "" {
		if pwHash, err = decodeBase64Text(text); err != nil {
			return nil, err
		}
	}
	var extra map[string]any
	if text := el.ChildText(tp("extra")); strings.TrimSpace(text) != "" {
		if err := DecodePayload(text, &extra); err != nil {
			return nil, err
		}
	}
	var privileges []string
	for _, p := range el.FindAll(tp("privilege")) {
		if p.Text != "" {
			privileges = append(privileges, p.Text)
		}
	}

	a := &Author{
		Username:     el.ChildText(tp("username")),
		Email:        el.ChildText(tp("email")),
		WWW:          el.ChildText(tp("www")),
		RealName:     el.ChildText(tp("real_name")),
		DisplayName:  el.ChildText(tp("display_name")),
		FirstName:    el.ChildText(tp("first_name")),
		LastName:     el.ChildText(tp("last_name")),
		Description:  el.ChildText(tp("description")),
		PwHash:       pwHash,
		Role:         model.Role(role),
		Privileges:   privileges,
		Extra:        extra,
		DependencyID: id,
	}
	e.authors[id] = a
	e.parser.AddAuthor(a)
	return a, nil
}

// LookupAuthor implements AuthorLookup.
func (e *TextPressExtension) LookupAuthor(author, _ *xmltree.Node, _, _ string) (*Author, error) {
	id, ok := author.Attr(dependencyAttr)
	if !ok {
		return nil, nil
	}
	return e.author(id)
}

// TagOrCategory implements TermClassifier.
func (e *TextPressExtension) TagOrCategory(el *xmltree.Node) (Term, error) {
	term := el.AttrValue(attrTerm)
	switch el.AttrValue(attrScheme) {
	case TagSchemeURI:
		t, ok := e.tags[term]
		if !ok {
			t = &Tag{Slug: term, Name: el.AttrValue(attrLabel)}
			e.tags[term] = t
		}
		return t, nil
	case CategorySchemeURI:
		c, ok := e.categories[term]
		if !ok {
			c = &Category{
				Slug:        term,
				Name:        el.AttrValue(attrLabel),
				Description: el.ChildText(tp("description")),
			}
			e.categories[term] = c
		}
		return c, nil
	}
	return nil, nil
}

// ParseComments implements CommentParser.
func (e *TextPressExtension) ParseComments(post *Post) ([]*Comment, error) {
	var comments []*Comment
	for _, el := range post.Element.FindAll(tp("comment")) {
		c, err := e.parseComment(el)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, nil
}

func (e *TextPressExtension) parseComment(el *xmltree.Node) (*Comment, error) {
	idText, ok := el.FindText(tp("id"))
	if !ok {
		return nil, formatErrorf("comment without id")
	}
	id, err := parseInt(idText, "comment id")
	if err != nil {
		return nil, err
	}
	c := &Comment{ID: id}

	if author := el.Find(tp("author")); author != nil {
		c.Author = author.ChildText(tp("name"))
		c.Email = author.ChildText(tp("email"))
		c.WWW = author.ChildText(tp("uri"))
		if dep, ok := author.Attr(dependencyAttr); ok {
			u, err := e.author(dep)
			if err != nil {
				return nil, err
			}
			c.User = u
			if c.Author == "" {
				c.Author = u.Username
			}
			if c.Email == "" {
				c.Email = u.Email
			}
		}
	}

	if c.Published, err = parseTime(el.ChildText(tp("published")), "comment published"); err != nil {
		return nil, err
	}
	if c.Blocked, err = parseBool(el.ChildText(tp("blocked")), "blocked"); err != nil {
		return nil, err
	}
	if c.IsPingback, err = parseBool(el.ChildText(tp("is_pingback")), "is_pingback"); err != nil {
		return nil, err
	}
	status, err := parseInt(el.ChildText(tp("status")), "comment status")
	if err != nil {
		return nil, err
	}
	c.Status = int(status)
	c.BlockedMsg = el.ChildText(tp("blocked_msg"))
	c.SubmitterIP = el.ChildText(tp("submitter_ip"))

	if parent := strings.TrimSpace(el.ChildText(tp("parent"))); parent != "" {
		pid, err := parseInt(parent, "comment parent")
		if err != nil {
			return nil, err
		}
		c.ParentID = &pid
	}

	var data CommentData
	if text := el.ChildText(tp("data")); strings.TrimSpace(text) != "" {
		if err := DecodePayload(text, &data); err != nil {
			return nil, NewError(CodePayloadDecode, err, "comment %d has an invalid payload", id)
		}
	}
	c.Body = data.RawBody
	c.Parser = e.parser.ParserName(data.Parser)
	c.ParserData = data.ParserData
	return c, nil
}

// PostprocessPost implements PostPostprocessor.
func (e *TextPressExtension) PostprocessPost(post *Post) error {
	el := post.Element
	switch ct := el.ChildText(tp("content_type")); ct {
	case ContentTypeEntry, ContentTypePage:
		post.ContentType = ct
	}

	id, err := parseInt(el.ChildText(tp("id")), "entry id")
	if err != nil {
		return err
	}
	post.ID = id
	status, err := parseInt(el.ChildText(tp("status")), "entry status")
	if err != nil {
		return err
	}
	post.Status = int(status)
	if post.CommentsEnabled, err = parseBool(el.ChildText(tp("comments_enabled")), "comments_enabled"); err != nil {
		return err
	}
	if post.PingsEnabled, err = parseBool(el.ChildText(tp("pings_enabled")), "pings_enabled"); err != nil {
		return err
	}
	return nil
}

// HandleRoot implements RootHandler. It merges the configuration block and
// materializes users that no entry referenced.
func (e *TextPressExtension) HandleRoot(blog *Blog) error {
	for _, block := range blog.Element.FindAll(tp("configuration")) {
		for _, item := range block.FindAll(tp("item")) {
			key, ok := item.Attr(attrKey)
			if !ok {
				return formatErrorf("configuration item without key")
			}
			blog.Configuration[key] = item.Text
		}
	}
	for _, id := range e.order {
		if _, err := e.author(id); err != nil {
			return err
		}
	}
	return nil
}
