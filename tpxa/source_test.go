package tpxa

import (
	"bytes"
	"context"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robertmeta/tpxa/model"
)

type fakeSource struct {
	config   []model.ConfigItem
	users    []*model.User
	posts    []*model.Post
	pages    []*model.Page
	postsErr error
}

func (s *fakeSource) Config(context.Context) ([]model.ConfigItem, error) {
	return s.config, nil
}

func (s *fakeSource) Users(context.Context) ([]*model.User, error) {
	return s.users, nil
}

func (s *fakeSource) Posts(context.Context) iter.Seq2[*model.Post, error] {
	return func(yield func(*model.Post, error) bool) {
		if s.postsErr != nil {
			yield(nil, s.postsErr)
			return
		}
		for _, p := range s.posts {
			if !yield(p, nil) {
				return
			}
		}
	}
}

func (s *fakeSource) Pages(context.Context) iter.Seq2[*model.Page, error] {
	return func(yield func(*model.Page, error) bool) {
		for _, p := range s.pages {
			if !yield(p, nil) {
				return
			}
		}
	}
}

var fixedNow = time.Date(2024, 3, 9, 12, 30, 0, 0, time.UTC)

func exportString(t *testing.T, src Source, opts ExportOptions) string {
	t.Helper()
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	w, err := NewWriter(src, opts)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = w.WriteTo(context.Background(), &buf)
	require.NoError(t, err)
	require.Equal(t, StateDone, w.State())
	return buf.String()
}

func int64p(v int64) *int64 { return &v }

// scenarioBlog has two users A and B, a post P1 by A with a top-level
// comment and a reply to it filed under the category "news", and a post P2
// by A.
func scenarioBlog() *fakeSource {
	a := &model.User{ID: 1, Username: "alice", Email: "alice@example.com", Role: model.RoleAdmin, PwHash: []byte("sha1$x$y")}
	b := &model.User{ID: 2, Username: "bob", Email: "bob@example.com", Role: model.RoleSubscriber}
	t1 := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	p1 := &model.Post{
		ID: 10, UID: "urn:uuid:p1", Slug: "2024/03/hello", Title: "Hello", URL: "http://blog.example.com/2024/03/hello",
		AuthorID: a.ID, PubDate: t1, LastUpdate: t1, CommentsEnabled: true, Status: 2,
		Body: "<p>Hello</p>", RawBody: "Hello", Parser: "zeml",
		Tags: []model.Tag{{Slug: "news", Name: "News", IsCategory: true}},
		Comments: []model.Comment{
			{ID: 100, PostID: 10, Author: "Carol", Email: "carol@example.com", PubDate: t1, RawBody: "First!", Status: 1},
			{ID: 101, PostID: 10, ParentID: int64p(100), UserID: int64p(b.ID), Author: "bob", PubDate: t1, RawBody: "Welcome", Status: 1, SubmitterIP: "10.0.0.1"},
		},
	}
	p2 := &model.Post{
		ID: 11, UID: "urn:uuid:p2", Slug: "2024/03/second", Title: "Second", URL: "http://blog.example.com/2024/03/second",
		AuthorID: a.ID, PubDate: t2, LastUpdate: t2, Status: 2, Body: "<p>Again</p>", RawBody: "Again",
	}
	return &fakeSource{
		config: []model.ConfigItem{
			{Key: model.ConfigBlogTitle, Value: "Example Blog"},
			{Key: model.ConfigBlogTagline, Value: "Just testing"},
			{Key: model.ConfigBlogURL, Value: "http://blog.example.com/"},
		},
		users: []*model.User{a, b},
		posts: []*model.Post{p1, p2},
	}
}
