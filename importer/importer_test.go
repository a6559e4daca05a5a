package importer

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertmeta/tpxa/logger"
	"github.com/robertmeta/tpxa/tpxa"
)

const minimalFeed = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:tp="http://textpress.pocoo.org/">
  <title>Tiny Blog</title>
  <updated>2024-03-02T10:00:00Z</updated>
  <tp:configuration><tp:item key="blog_title">Tiny Blog</tp:item></tp:configuration>
</feed>`

type fakeQueue struct {
	blogs   []*tpxa.Blog
	sources []string
	err     error
}

func (q *fakeQueue) Enqueue(blog *tpxa.Blog, source string) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.blogs = append(q.blogs, blog)
	q.sources = append(q.sources, source)
	return "imp-test", nil
}

func TestValidateDownloadURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr string
	}{
		{name: "http", url: "http://example.com/blog.tpxa"},
		{name: "https with query", url: "https://example.com/dl/blog.tpxa?token=1"},
		{name: "empty", url: "", wantErr: "not a valid URL"},
		{name: "relative", url: "/blog.tpxa", wantErr: "not a valid URL"},
		{name: "ftp", url: "ftp://example.com/blog.tpxa", wantErr: "not an http or https URL"},
		{name: "feed url", url: "http://example.com/feed.atom", wantErr: "don't pass a real feed URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDownloadURL(tt.url)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tpxa.ErrValidation)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/blog.tpxa":
			_, _ = io.WriteString(w, minimalFeed)
		case "/broken.tpxa":
			_, _ = io.WriteString(w, "<rss version=\"2.0\"></rss>")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestImporter_Download(t *testing.T) {
	srv := newTestServer(t)
	imp := New(nil, Options{Logger: logger.Discard()})

	body, err := imp.Download(context.Background(), srv.URL+"/blog.tpxa")
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Equal(t, minimalFeed, string(data))

	_, err = imp.Download(context.Background(), srv.URL+"/missing.tpxa")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error downloading from URL")
	assert.Contains(t, err.Error(), "404")
}

func TestImporter_DownloadLimit(t *testing.T) {
	srv := newTestServer(t)

	t.Run("at limit", func(t *testing.T) {
		imp := New(nil, Options{MaxSize: int64(len(minimalFeed)), Logger: logger.Discard()})
		body, err := imp.Download(context.Background(), srv.URL+"/blog.tpxa")
		require.NoError(t, err)
		defer body.Close()
		data, err := io.ReadAll(body)
		require.NoError(t, err)
		assert.Equal(t, minimalFeed, string(data))
	})

	t.Run("over limit", func(t *testing.T) {
		imp := New(nil, Options{MaxSize: 10, Logger: logger.Discard()})
		body, err := imp.Download(context.Background(), srv.URL+"/blog.tpxa")
		require.NoError(t, err)
		defer body.Close()
		_, err = io.ReadAll(body)
		var download *DownloadError
		require.ErrorAs(t, err, &download)
		assert.Equal(t, srv.URL+"/blog.tpxa", download.URL)
		assert.Contains(t, err.Error(), "exceeds 10 bytes")
	})

	t.Run("submit rejects oversized document", func(t *testing.T) {
		imp := New(&fakeQueue{}, Options{MaxSize: 10, Logger: logger.Discard()})
		_, err := imp.SubmitURL(context.Background(), srv.URL+"/blog.tpxa")
		var download *DownloadError
		require.ErrorAs(t, err, &download)
		assert.Contains(t, err.Error(), "exceeds 10 bytes")
	})
}

func TestImporter_Parse(t *testing.T) {
	imp := New(nil, Options{Logger: logger.Discard()})

	blog, err := imp.Parse(strings.NewReader(minimalFeed))
	require.NoError(t, err)
	assert.Equal(t, "Tiny Blog", blog.Title)
	assert.Equal(t, "Tiny Blog", blog.Configuration["blog_title"])

	tests := []struct {
		name    string
		content string
		want    error
	}{
		{name: "not xml", content: "nope", want: tpxa.ErrFormat},
		{name: "html", content: "<html></html>", want: tpxa.ErrFormat},
		{name: "rss", content: `<rss version="2.0"></rss>`, want: tpxa.ErrUnsupportedVariant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := imp.Parse(strings.NewReader(tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, strings.HasPrefix(err.Error(), "error parsing feed: "))
		})
	}
}

func TestImporter_Submit(t *testing.T) {
	q := &fakeQueue{}
	imp := New(q, Options{Logger: logger.Discard()})

	id, err := imp.Submit(context.Background(), strings.NewReader(minimalFeed), "upload")
	require.NoError(t, err)
	assert.Equal(t, "imp-test", id)
	require.Len(t, q.blogs, 1)
	assert.Equal(t, []string{"upload"}, q.sources)

	_, err = imp.Submit(context.Background(), strings.NewReader("<html/>"), "upload")
	assert.ErrorIs(t, err, tpxa.ErrFormat)
	assert.Len(t, q.blogs, 1, "nothing is queued for a broken document")

	q.err = errors.New("full")
	_, err = imp.Submit(context.Background(), strings.NewReader(minimalFeed), "upload")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to queue import")
}

func TestImporter_SubmitURL(t *testing.T) {
	srv := newTestServer(t)
	q := &fakeQueue{}
	imp := New(q, Options{Logger: logger.Discard()})

	_, err := imp.SubmitURL(context.Background(), srv.URL+"/blog.tpxa")
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/blog.tpxa"}, q.sources)

	_, err = imp.SubmitURL(context.Background(), srv.URL+"/broken.tpxa")
	assert.ErrorIs(t, err, tpxa.ErrUnsupportedVariant)

	_, err = imp.SubmitURL(context.Background(), srv.URL+"/feed.xml")
	assert.ErrorIs(t, err, tpxa.ErrValidation)
}
