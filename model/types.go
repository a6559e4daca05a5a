// Package model defines the blog entities read from and written to a blog store.
package model

import (
	"errors"
	"time"
)

// Role is the permission level of a blog user.
type Role int

// User roles, ordered by privilege.
const (
	RoleNobody Role = iota
	RoleSubscriber
	RoleAuthor
	RoleEditor
	RoleAdmin
)

// User represents a registered blog user.
type User struct {
	ID          int64          `json:"id"`
	Username    string         `json:"username"`
	Email       string         `json:"email,omitempty"`
	WWW         string         `json:"www,omitempty"`
	PwHash      []byte         `json:"-"`
	Role        Role           `json:"role"`
	DisplayName string         `json:"display_name,omitempty"`
	FirstName   string         `json:"first_name,omitempty"`
	LastName    string         `json:"last_name,omitempty"`
	Description string         `json:"description,omitempty"`
	Privileges  []string       `json:"privileges,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// Validate checks if the user has required fields.
func (u *User) Validate() error {
	if u.Username == "" {
		return errors.New("username is required")
	}
	if u.Role < RoleNobody || u.Role > RoleAdmin {
		return errors.New("invalid user role")
	}
	return nil
}

// IsManager returns true if the user may manage blog content.
func (u *User) IsManager() bool {
	return u.Role >= RoleAuthor
}

// Name returns the name shown next to the user's content.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// RealName joins first and last name.
func (u *User) RealName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.LastName
	}
}

// Tag is a label attached to posts. A tag flagged as category is exported as
// a taxonomic category unless the export keeps it a tag.
type Tag struct {
	ID          int64  `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsCategory  bool   `json:"is_category,omitempty"`
}

// Validate checks if the tag has required fields.
func (t *Tag) Validate() error {
	if t.Slug == "" {
		return errors.New("tag slug is required")
	}
	return nil
}

// Post represents a blog post. Body and Intro hold rendered HTML, the raw
// fields the markup they were rendered from.
type Post struct {
	ID              int64          `json:"id"`
	UID             string         `json:"uid"`
	Slug            string         `json:"slug"`
	Title           string         `json:"title"`
	URL             string         `json:"url"`
	AuthorID        int64          `json:"author_id"`
	PubDate         time.Time      `json:"pub_date"`
	LastUpdate      time.Time      `json:"last_update"`
	CommentsEnabled bool           `json:"comments_enabled"`
	PingsEnabled    bool           `json:"pings_enabled"`
	Status          int            `json:"status"`
	Body            string         `json:"body"`
	Intro           string         `json:"intro,omitempty"`
	RawBody         string         `json:"raw_body"`
	RawIntro        string         `json:"raw_intro,omitempty"`
	Parser          string         `json:"parser,omitempty"`
	ParserData      map[string]any `json:"parser_data,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
	Tags            []Tag          `json:"tags,omitempty"`
	Comments        []Comment      `json:"comments,omitempty"`
}

// Validate checks if the post has required fields.
func (p *Post) Validate() error {
	if p.Slug == "" {
		return errors.New("post slug is required")
	}
	if p.AuthorID == 0 {
		return errors.New("post author is required")
	}
	return nil
}

// HasTag checks if the post has the tag with the given slug.
func (p *Post) HasTag(slug string) bool {
	for _, t := range p.Tags {
		if t.Slug == slug {
			return true
		}
	}
	return false
}

// Comment represents a comment or pingback on a post. UserID is set when the
// comment was written by a registered user.
type Comment struct {
	ID          int64          `json:"id"`
	PostID      int64          `json:"post_id"`
	ParentID    *int64         `json:"parent_id,omitempty"`
	UserID      *int64         `json:"user_id,omitempty"`
	Author      string         `json:"author"`
	Email       string         `json:"email,omitempty"`
	WWW         string         `json:"www,omitempty"`
	PubDate     time.Time      `json:"pub_date"`
	Blocked     bool           `json:"blocked"`
	BlockedMsg  string         `json:"blocked_msg,omitempty"`
	IsPingback  bool           `json:"is_pingback"`
	Status      int            `json:"status"`
	SubmitterIP string         `json:"submitter_ip,omitempty"`
	Body        string         `json:"body"`
	RawBody     string         `json:"raw_body"`
	Parser      string         `json:"parser,omitempty"`
	ParserData  map[string]any `json:"parser_data,omitempty"`
}

// IsReply returns true if the comment answers another comment.
func (c *Comment) IsReply() bool {
	return c.ParentID != nil
}

// Page is a static page. Pages have no timestamps of their own.
type Page struct {
	ID      int64          `json:"id"`
	Key     string         `json:"key"`
	Title   string         `json:"title"`
	URL     string         `json:"url"`
	Body    string         `json:"body"`
	RawBody string         `json:"raw_body"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// Validate checks if the page has required fields.
func (p *Page) Validate() error {
	if p.Key == "" {
		return errors.New("page key is required")
	}
	return nil
}

// ConfigItem is one blog configuration value.
type ConfigItem struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Well-known configuration keys.
const (
	ConfigBlogTitle   = "blog_title"
	ConfigBlogTagline = "blog_tagline"
	ConfigBlogURL     = "blog_url"
)
