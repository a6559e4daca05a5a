package xmltree

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

// SerializationError reports a name that cannot be written with the
// writer's namespace mapping, or content that is not representable in XML.
type SerializationError struct {
	Name   Name
	Reason string
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("cannot serialize %s: %s", e.Name, e.Reason)
}

// Writer serializes single nodes as XML fragments using a fixed
// namespace-to-prefix mapping. Prefixes are expected to be declared by the
// surrounding document, so fragments never carry xmlns attributes.
//
// A Writer owns one buffer that is drained on every Dump call; it must not
// be shared between goroutines.
type Writer struct {
	prefixes map[string]string
	buf      bytes.Buffer
}

// NewWriter creates a fragment writer for the namespace → prefix mapping.
func NewWriter(prefixes map[string]string) *Writer {
	m := make(map[string]string, len(prefixes))
	for ns, prefix := range prefixes {
		m[ns] = prefix
	}
	return &Writer{prefixes: m}
}

// Dump serializes n and returns the fragment. The internal buffer is empty
// again when Dump returns, also on error.
func (w *Writer) Dump(n *Node) ([]byte, error) {
	defer w.buf.Reset()

	if err := w.writeNode(n); err != nil {
		return nil, err
	}
	out := make([]byte, w.buf.Len())
	copy(out, w.buf.Bytes())
	return out, nil
}

// Tag returns the prefixed form of an element name, e.g. "tp:user".
func (w *Writer) Tag(name Name) (string, error) {
	prefix, ok := w.prefixes[name.Space]
	if !ok {
		return "", &SerializationError{Name: name, Reason: "namespace has no prefix"}
	}
	if prefix == "" {
		return name.Local, nil
	}
	return prefix + ":" + name.Local, nil
}

func (w *Writer) attrName(name Name) (string, error) {
	switch name.Space {
	case "":
		return name.Local, nil
	case XMLNamespace:
		return "xml:" + name.Local, nil
	}
	prefix, ok := w.prefixes[name.Space]
	if !ok || prefix == "" {
		return "", &SerializationError{Name: name, Reason: "attribute namespace has no prefix"}
	}
	return prefix + ":" + name.Local, nil
}

func (w *Writer) writeNode(n *Node) error {
	tag, err := w.Tag(n.Name)
	if err != nil {
		return err
	}

	w.buf.WriteByte('<')
	w.buf.WriteString(tag)
	for _, a := range n.Attrs {
		name, err := w.attrName(a.Name)
		if err != nil {
			return err
		}
		w.buf.WriteByte(' ')
		w.buf.WriteString(name)
		w.buf.WriteString(`="`)
		if err := escape(&w.buf, a.Value, true); err != nil {
			return &SerializationError{Name: a.Name, Reason: err.Error()}
		}
		w.buf.WriteByte('"')
	}

	if n.Text == "" && len(n.Children) == 0 {
		w.buf.WriteString("/>")
		return nil
	}

	w.buf.WriteByte('>')
	if err := escape(&w.buf, n.Text, false); err != nil {
		return &SerializationError{Name: n.Name, Reason: err.Error()}
	}
	for _, c := range n.Children {
		if err := w.writeNode(c); err != nil {
			return err
		}
	}
	w.buf.WriteString("</")
	w.buf.WriteString(tag)
	w.buf.WriteByte('>')
	return nil
}

// EscapeString escapes s for use as XML text content.
func EscapeString(s string) (string, error) {
	var buf bytes.Buffer
	if err := escape(&buf, s, false); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// EscapeAttr escapes s for use inside a double-quoted attribute value.
func EscapeAttr(s string) (string, error) {
	var buf bytes.Buffer
	if err := escape(&buf, s, true); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// escape writes s with markup characters replaced. Attribute values also
// escape quotes and whitespace that attribute normalization would eat.
// Invalid UTF-8 and characters not allowed in XML 1.0 are errors.
func escape(buf *bytes.Buffer, s string, attr bool) error {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			return fmt.Errorf("invalid UTF-8 byte 0x%02x at offset %d", s[i], i)
		}
		i += size
		switch {
		case r == '&':
			buf.WriteString("&amp;")
		case r == '<':
			buf.WriteString("&lt;")
		case r == '>':
			buf.WriteString("&gt;")
		case r == '\r':
			buf.WriteString("&#xD;")
		case attr && r == '"':
			buf.WriteString("&quot;")
		case attr && r == '\n':
			buf.WriteString("&#xA;")
		case attr && r == '\t':
			buf.WriteString("&#x9;")
		case !isXMLChar(r):
			return fmt.Errorf("character %U is not allowed in XML", r)
		default:
			buf.WriteRune(r)
		}
	}
	return nil
}

func isXMLChar(r rune) bool {
	return r == 0x09 || r == 0x0A || r == 0x0D ||
		r >= 0x20 && r <= 0xD7FF ||
		r >= 0xE000 && r <= 0xFFFD ||
		r >= 0x10000 && r <= 0x10FFFF
}
