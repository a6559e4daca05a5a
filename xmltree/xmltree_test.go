package xmltree

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	nsA = "http://www.w3.org/2005/Atom"
	nsB = "http://example.com/ext/"
)

func testWriter() *Writer {
	return NewWriter(map[string]string{nsA: "a", nsB: "b"})
}

func TestQualify(t *testing.T) {
	n := Qualify(nsA, "entry")
	assert.Equal(t, Name{Space: nsA, Local: "entry"}, n)
	assert.Equal(t, "{http://www.w3.org/2005/Atom}entry", n.String())
	assert.Equal(t, "href", Name{Local: "href"}.String())
}

func TestWriter_Dump(t *testing.T) {
	tests := []struct {
		name string
		node func() *Node
		want string
	}{
		{
			name: "self closing",
			node: func() *Node { return New(Qualify(nsA, "link"), A("href", "http://x/")) },
			want: `<a:link href="http://x/"/>`,
		},
		{
			name: "nested with text",
			node: func() *Node {
				n := New(Qualify(nsA, "author"))
				n.AddText(Qualify(nsA, "name"), "Alice")
				n.AddText(Qualify(nsB, "id"), "1")
				return n
			},
			want: `<a:author><a:name>Alice</a:name><b:id>1</b:id></a:author>`,
		},
		{
			name: "escaping",
			node: func() *Node {
				n := New(Qualify(nsA, "title"), A("type", `a"b<c`))
				n.Text = "Fish & <Chips>\nline"
				return n
			},
			want: `<a:title type="a&quot;b&lt;c">Fish &amp; &lt;Chips&gt;` + "\n" + `line</a:title>`,
		},
		{
			name: "namespaced and xml attributes",
			node: func() *Node {
				n := New(Qualify(nsA, "entry"))
				n.Set(Qualify(XMLNamespace, "base"), "http://x/p")
				n.Set(Qualify(nsB, "dependency"), "1f")
				return n
			},
			want: `<a:entry xml:base="http://x/p" b:dependency="1f"/>`,
		},
	}

	w := testWriter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := w.Dump(tt.node())
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestWriter_DumpDrainsBuffer(t *testing.T) {
	w := testWriter()

	first, err := w.Dump(New(Qualify(nsA, "one")))
	require.NoError(t, err)
	second, err := w.Dump(New(Qualify(nsA, "two")))
	require.NoError(t, err)

	assert.Equal(t, "<a:one/>", string(first))
	assert.Equal(t, "<a:two/>", string(second))
	assert.Zero(t, w.buf.Len())
}

func TestWriter_UnknownNamespace(t *testing.T) {
	w := testWriter()

	n := New(Qualify(nsA, "entry"))
	n.SubElement(Qualify("http://elsewhere/", "x"))
	_, err := w.Dump(n)

	var serr *SerializationError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "x", serr.Name.Local)
	assert.Zero(t, w.buf.Len(), "failed dumps must not leak into the next fragment")

	_, err = w.Dump(New(Name{Local: "bare"}))
	assert.Error(t, err)

	bad := New(Qualify(nsA, "entry"))
	bad.Set(Qualify("http://elsewhere/", "attr"), "v")
	_, err = w.Dump(bad)
	assert.Error(t, err)
}

func TestParse_ResolvesNamespaces(t *testing.T) {
	doc := `<?xml version="1.0" encoding="utf-8"?>
<!-- comment -->
<x:feed xmlns:x="http://www.w3.org/2005/Atom" xmlns:e="http://example.com/ext/" xml:lang="de">` +
		`<x:title>T &amp; U</x:title><e:user e:dependency="1"><e:username>alice</e:username></e:user>` +
		`<x:category term="news" scheme="s"/></x:feed>`

	root, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, Qualify(nsA, "feed"), root.Name)
	assert.Equal(t, "de", root.AttrValue(Qualify(XMLNamespace, "lang")))
	require.Len(t, root.Attrs, 1, "namespace declarations are dropped")

	text, ok := root.FindText(Qualify(nsA, "title"))
	assert.True(t, ok)
	assert.Equal(t, "T & U", text)

	user := root.Find(Qualify(nsB, "user"))
	require.NotNil(t, user)
	assert.Equal(t, "1", user.AttrValue(Qualify(nsB, "dependency")))
	assert.Equal(t, "alice", user.ChildText(Qualify(nsB, "username")))

	cats := root.FindAll(Qualify(nsA, "category"))
	require.Len(t, cats, 1)
	assert.Equal(t, "news", cats[0].AttrValue(Name{Local: "term"}))

	_, ok = root.FindText(Qualify(nsA, "missing"))
	assert.False(t, ok)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"mismatched tags", "<a><b></a>"},
		{"unterminated", "<a><b>"},
		{"only prolog", `<?xml version="1.0"?>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestWriterParse_RoundTrip(t *testing.T) {
	n := New(Qualify(nsA, "entry"))
	n.Set(Qualify(XMLNamespace, "base"), "http://x/?a=1&b=2")
	n.AddText(Qualify(nsA, "content"), "<p>Hello\n\"world\"</p>", A("type", "html"))
	n.AddText(Qualify(nsB, "data"), "")

	frag, err := testWriter().Dump(n)
	require.NoError(t, err)

	doc := `<a:feed xmlns:a="` + nsA + `" xmlns:b="` + nsB + `">` + string(frag) + `</a:feed>`
	root, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)

	entry := root.Find(Qualify(nsA, "entry"))
	require.NotNil(t, entry)
	assert.Equal(t, "http://x/?a=1&b=2", entry.AttrValue(Qualify(XMLNamespace, "base")))
	assert.Equal(t, "<p>Hello\n\"world\"</p>", entry.ChildText(Qualify(nsA, "content")))
	assert.NotNil(t, entry.Find(Qualify(nsB, "data")))
}

func TestEscapeString(t *testing.T) {
	got, err := EscapeString("a & b <c>")
	require.NoError(t, err)
	assert.Equal(t, "a &amp; b &lt;c&gt;", got)

	got, err = EscapeString("replacement \uFFFD is a real character")
	require.NoError(t, err)
	assert.Equal(t, "replacement \uFFFD is a real character", got)

	got, err = EscapeAttr("say \"hi\"\n")
	require.NoError(t, err)
	assert.Equal(t, "say &quot;hi&quot;&#xA;", got)

	_, err = EscapeString("x\x00y")
	assert.ErrorContains(t, err, "U+0000")
	_, err = EscapeAttr("x\xffy")
	assert.ErrorContains(t, err, "invalid UTF-8")
}

func TestWriter_UnrepresentableContent(t *testing.T) {
	tests := []struct {
		name    string
		node    func() *Node
		wantErr string
	}{
		{
			name: "NUL in text",
			node: func() *Node {
				n := New(Qualify(nsA, "entry"))
				n.AddText(Qualify(nsA, "title"), "a\x00b")
				return n
			},
			wantErr: "U+0000",
		},
		{
			name: "invalid UTF-8 in text",
			node: func() *Node {
				n := New(Qualify(nsA, "entry"))
				n.AddText(Qualify(nsA, "content"), "x\xffy")
				return n
			},
			wantErr: "invalid UTF-8",
		},
		{
			name: "control character in attribute",
			node: func() *Node {
				n := New(Qualify(nsA, "link"))
				n.Set(Name{Local: "href"}, "http://example.com/\x01")
				return n
			},
			wantErr: "U+0001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testWriter()
			out, err := w.Dump(tt.node())
			require.Error(t, err)
			assert.Nil(t, out)

			var serr *SerializationError
			require.True(t, errors.As(err, &serr))
			assert.Contains(t, serr.Error(), tt.wantErr)
			assert.Zero(t, w.buf.Len())
		})
	}
}
