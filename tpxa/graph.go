package tpxa

import (
	"time"

	"github.com/robertmeta/tpxa/model"
	"github.com/robertmeta/tpxa/xmltree"
)

// Content type discriminators of an entry.
const (
	ContentTypeEntry = "entry"
	ContentTypePage  = "page"
)

// DefaultParser is the markup parser assumed when an entry names none or
// names one the importing installation does not know.
const DefaultParser = "html"

// Blog is a decoded blog graph.
type Blog struct {
	Title         string            `json:"title"`
	Subtitle      string            `json:"subtitle"`
	Link          string            `json:"link"`
	Language      string            `json:"language"`
	ID            string            `json:"id"`
	Updated       time.Time         `json:"updated"`
	Configuration map[string]string `json:"configuration"`

	Authors    []*Author   `json:"authors"`
	Tags       []*Tag      `json:"tags"`
	Categories []*Category `json:"categories"`
	Posts      []*Post     `json:"posts"`

	// Element is the document root.
	Element *xmltree.Node `json:"-"`
}

// Author is a decoded post or comment author.
type Author struct {
	Username     string         `json:"username"`
	Email        string         `json:"email,omitempty"`
	WWW          string         `json:"www,omitempty"`
	RealName     string         `json:"real_name,omitempty"`
	DisplayName  string         `json:"display_name,omitempty"`
	FirstName    string         `json:"first_name,omitempty"`
	LastName     string         `json:"last_name,omitempty"`
	Description  string         `json:"description,omitempty"`
	PwHash       []byte         `json:"-"`
	Role         model.Role     `json:"role"`
	Privileges   []string       `json:"privileges,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
	DependencyID string         `json:"dependency_id,omitempty"`
}

// IsAdmin reports whether the author administered the exporting blog.
func (a *Author) IsAdmin() bool {
	return a.Role == model.RoleAdmin
}

// Term is a decoded tag or category.
type Term interface {
	Term() string
}

// Tag is a decoded tag.
type Tag struct {
	Slug string `json:"slug"`
	Name string `json:"name,omitempty"`
}

// Term implements Term.
func (t *Tag) Term() string { return t.Slug }

// Category is a decoded category.
type Category struct {
	Slug        string `json:"slug"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// Term implements Term.
func (c *Category) Term() string { return c.Slug }

// Post is a decoded entry, either a post or a page.
type Post struct {
	UID             string         `json:"uid"`
	ID              int64          `json:"id,omitempty"`
	Slug            string         `json:"slug"`
	Title           string         `json:"title"`
	Link            string         `json:"link"`
	Author          *Author        `json:"-"`
	Published       time.Time      `json:"published"`
	Updated         time.Time      `json:"updated"`
	Intro           string         `json:"intro,omitempty"`
	Body            string         `json:"body"`
	RawBody         string         `json:"raw_body,omitempty"`
	RawIntro        string         `json:"raw_intro,omitempty"`
	Parser          string         `json:"parser"`
	ParserData      map[string]any `json:"parser_data,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
	ContentType     string         `json:"content_type"`
	Status          int            `json:"status"`
	CommentsEnabled bool           `json:"comments_enabled"`
	PingsEnabled    bool           `json:"pings_enabled"`
	Tags            []*Tag         `json:"-"`
	Categories      []*Category    `json:"-"`
	Comments        []*Comment     `json:"-"`

	// Element is the entry the post was decoded from.
	Element *xmltree.Node `json:"-"`
}

// IsPage reports whether the entry is a static page.
func (p *Post) IsPage() bool {
	return p.ContentType == ContentTypePage
}

// Comment is a decoded comment.
type Comment struct {
	ID          int64          `json:"id"`
	Author      string         `json:"author"`
	Email       string         `json:"email,omitempty"`
	WWW         string         `json:"www,omitempty"`
	User        *Author        `json:"-"`
	Published   time.Time      `json:"published"`
	Blocked     bool           `json:"blocked"`
	BlockedMsg  string         `json:"blocked_msg,omitempty"`
	IsPingback  bool           `json:"is_pingback"`
	Status      int            `json:"status"`
	SubmitterIP string         `json:"submitter_ip,omitempty"`
	Body        string         `json:"body"`
	Parser      string         `json:"parser"`
	ParserData  map[string]any `json:"parser_data,omitempty"`

	// ParentID is the declared parent comment id; Parent is set once the
	// declaration has been resolved.
	ParentID *int64   `json:"parent_id,omitempty"`
	Parent   *Comment `json:"-"`
}
