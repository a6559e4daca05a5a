package tpxa

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedHead = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:x="http://textpress.pocoo.org/" xml:lang="de">
<title>Handmade</title>
<link href="http://example.com/"/>
<updated>2024-01-02T03:04:05Z</updated>
`

func feedDoc(body string) string {
	return feedHead + body + "</feed>"
}

func parseString(t *testing.T, doc string, opts ParseOptions) (*Blog, error) {
	t.Helper()
	return ParseFeed(strings.NewReader(doc), opts)
}

func TestParseFeed_RootDetection(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{"rss", `<rss version="2.0"><channel/></rss>`, ErrUnsupportedVariant},
		{"unknown root", `<html><body/></html>`, ErrFormat},
		{"foreign feed", `<feed xmlns="http://example.com/not-atom"/>`, ErrFormat},
		{"malformed", `<feed xmlns="http://www.w3.org/2005/Atom"><title>`, ErrFormat},
		{"empty", ``, ErrFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blog, err := parseString(t, tt.doc, ParseOptions{})
			assert.Nil(t, blog)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseFeed_RSSIsNotAFormatError(t *testing.T) {
	_, err := parseString(t, `<rss/>`, ParseOptions{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrFormat)
}

func TestParseFeed_FeedMetadata(t *testing.T) {
	blog, err := parseString(t, feedDoc(""), ParseOptions{})
	require.NoError(t, err)

	assert.Equal(t, "Handmade", blog.Title)
	assert.Equal(t, "http://example.com/", blog.Link)
	assert.Equal(t, "de", blog.Language)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), blog.Updated)
	assert.Empty(t, blog.Posts)
	assert.NotNil(t, blog.Configuration)
}

func plainEntry(id, author, email string, categories ...string) string {
	var cats strings.Builder
	for _, c := range categories {
		fmt.Fprintf(&cats, `<category term="%s" label="%s label"/>`, c, c)
	}
	return fmt.Sprintf(`<entry>
<id>%s</id><title type="html">&lt;b&gt;Bold&lt;/b&gt; title</title>
<updated>2024-01-01T00:00:00Z</updated>
<author><name>%s</name><email>%s</email></author>
<content type="html">&lt;p&gt;body&lt;/p&gt;</content>
%s</entry>
`, id, author, email, cats.String())
}

func TestParseFeed_BaseProtocol(t *testing.T) {
	doc := feedDoc(
		plainEntry("e1", "alice", "alice@example.com", "news", "go") +
			plainEntry("e2", "Alice", "alice@example.com", "news") +
			plainEntry("e3", "alice", "", "go"))

	blog, err := parseString(t, doc, ParseOptions{Extensions: []ExtensionFactory{}})
	require.NoError(t, err)
	require.Len(t, blog.Posts, 3)

	p1, p2, p3 := blog.Posts[0], blog.Posts[1], blog.Posts[2]
	assert.Equal(t, "Bold title", p1.Title)
	assert.Equal(t, "<p>body</p>", p1.Body)
	assert.Equal(t, p1.Updated, p1.Published)
	assert.Equal(t, DefaultParser, p1.Parser)
	assert.Equal(t, ContentTypeEntry, p1.ContentType)

	// same email, then same username
	require.Len(t, blog.Authors, 1)
	assert.Same(t, p1.Author, p2.Author)
	assert.Same(t, p1.Author, p3.Author)

	// untracked terms fall back to categories and resolve to one instance
	require.Len(t, blog.Categories, 2)
	assert.Empty(t, blog.Tags)
	assert.Same(t, p1.Categories[0], p2.Categories[0])
	assert.Same(t, p1.Categories[1], p3.Categories[0])
	assert.Equal(t, "news label", p1.Categories[0].Name)
	assert.Empty(t, p1.Comments)
}

func tpEntry(inner string) string {
	return `<entry><id>x</id><updated>2024-01-01T00:00:00Z</updated>` + inner + `</entry>`
}

func tpComment(id, parent string) string {
	return fmt.Sprintf(`<x:comment><x:id>%s</x:id><x:author><x:name>c</x:name></x:author>`+
		`<x:published>2024-01-01T00:00:00Z</x:published><x:blocked>no</x:blocked>`+
		`<x:is_pingback>no</x:is_pingback><x:parent>%s</x:parent><x:status>1</x:status></x:comment>`, id, parent)
}

func TestParseFeed_EmptyPublishedFallsBackToUpdated(t *testing.T) {
	updated := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		published string
		want      time.Time
	}{
		{"absent", ``, updated},
		{"empty element", `<published/>`, updated},
		{"whitespace", `<published>  \n </published>`, updated},
		{"set", `<published>2023-06-07T08:09:10Z</published>`, time.Date(2023, 6, 7, 8, 9, 10, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := feedDoc(`<entry><id>urn:x:1</id><title>t</title>
<updated>2024-01-01T00:00:00Z</updated>` + tt.published + `
<author><name>alice</name></author></entry>`)
			blog, err := parseString(t, doc, ParseOptions{})
			require.NoError(t, err)
			require.Len(t, blog.Posts, 1)
			assert.Equal(t, tt.want, blog.Posts[0].Published)
			assert.Equal(t, updated, blog.Posts[0].Updated)
		})
	}
}

func TestParseFeed_CommentLinking(t *testing.T) {
	// the reply is declared before its parent
	doc := feedDoc(tpEntry(tpComment("2", "1") + tpComment("1", "") + tpComment("3", "2")))

	blog, err := parseString(t, doc, ParseOptions{})
	require.NoError(t, err)
	comments := blog.Posts[0].Comments
	require.Len(t, comments, 3)

	assert.Same(t, comments[1], comments[0].Parent)
	assert.Nil(t, comments[1].Parent)
	assert.Nil(t, comments[1].ParentID)
	assert.Same(t, comments[0], comments[2].Parent)
	assert.Equal(t, DefaultParser, comments[0].Parser)
}

func TestParseFeed_ReferenceErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"dangling parent", feedDoc(tpEntry(tpComment("1", "") + tpComment("2", "99")))},
		{"parent in other entry", feedDoc(tpEntry(tpComment("1", "")) + tpEntry(tpComment("2", "1")))},
		{"duplicate comment id", feedDoc(tpEntry(tpComment("1", "") + tpComment("1", "")))},
		{"own parent", feedDoc(tpEntry(tpComment("1", "1")))},
		{"unknown dependency", feedDoc(tpEntry(`<author x:dependency="7"><name>a</name></author>`))},
		{"duplicate definition", feedDoc(`<x:dependencies><x:user x:dependency="1"/><x:user x:dependency="1"/></x:dependencies>`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blog, err := parseString(t, tt.doc, ParseOptions{})
			assert.Nil(t, blog)
			assert.ErrorIs(t, err, ErrReference)
		})
	}
}

func TestParseFeed_FormatErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad flag", feedDoc(tpEntry(`<x:comments_enabled>maybe</x:comments_enabled>`))},
		{"bad timestamp", feedDoc(`<entry><updated>yesterday</updated></entry>`)},
		{"bad status", feedDoc(tpEntry(`<x:status>draft</x:status>`))},
		{"category without term", feedDoc(tpEntry(`<category scheme="x"/>`))},
		{"comment without id", feedDoc(tpEntry(`<x:comment/>`))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseString(t, tt.doc, ParseOptions{})
			assert.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestParseFeed_PayloadErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"entry payload", feedDoc(tpEntry(`<x:data>!!!</x:data>`))},
		{"comment payload", feedDoc(tpEntry(`<x:comment><x:id>1</x:id><x:data>e30=!</x:data></x:comment>`))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseString(t, tt.doc, ParseOptions{})
			assert.ErrorIs(t, err, ErrPayloadDecode)
		})
	}
}

func TestParseFeed_EmptyPayloadIsAbsent(t *testing.T) {
	blog, err := parseString(t, feedDoc(tpEntry(`<x:data>  </x:data>`)), ParseOptions{})
	require.NoError(t, err)
	assert.Empty(t, blog.Posts[0].RawBody)
}

func TestParseFeed_UnknownParser(t *testing.T) {
	data, err := EncodePayload(PostData{RawBody: "x", Parser: "textile"})
	require.NoError(t, err)
	doc := feedDoc(tpEntry(`<x:data>` + data + `</x:data>`))

	blog, err := parseString(t, doc, ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultParser, blog.Posts[0].Parser)

	blog, err = parseString(t, doc, ParseOptions{Parsers: []string{"html", "textile"}})
	require.NoError(t, err)
	assert.Equal(t, "textile", blog.Posts[0].Parser)
}

func TestParseFeed_TermSchemes(t *testing.T) {
	doc := feedDoc(
		tpEntry(`<category term="go" scheme="http://textpress.pocoo.org/#tag-scheme"/>`+
			`<category term="news" label="News" scheme="http://textpress.pocoo.org/#category-scheme"><x:description>Daily</x:description></category>`) +
			tpEntry(`<category term="go" scheme="http://textpress.pocoo.org/#tag-scheme"/>`+
				`<category term="news" scheme="http://textpress.pocoo.org/#category-scheme"/>`+
				`<category term="misc"/>`))

	blog, err := parseString(t, doc, ParseOptions{})
	require.NoError(t, err)

	require.Len(t, blog.Tags, 1)
	require.Len(t, blog.Categories, 2)
	p1, p2 := blog.Posts[0], blog.Posts[1]
	assert.Same(t, p1.Tags[0], p2.Tags[0])
	assert.Same(t, p1.Categories[0], p2.Categories[0])
	assert.Equal(t, "Daily", p1.Categories[0].Description)
	assert.Equal(t, "News", p1.Categories[0].Name)
	assert.Equal(t, "misc", p2.Categories[1].Slug)
}

func TestParseFeed_Configuration(t *testing.T) {
	doc := feedDoc(`<x:configuration><x:item key="blog_title">Handmade</x:item><x:item key="language">de</x:item></x:configuration>`)
	blog, err := parseString(t, doc, ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"blog_title": "Handmade", "language": "de"}, blog.Configuration)
}
