// Package xmltree provides small namespace-aware element trees, a fragment
// writer that serializes one tree at a time, and a strict document reader.
package xmltree

// XMLNamespace is the namespace bound to the reserved xml: prefix.
const XMLNamespace = "http://www.w3.org/XML/1998/namespace"

// Name is a namespace-qualified element or attribute name.
type Name struct {
	Space string
	Local string
}

// Qualify builds the qualified name of local within space.
func Qualify(space, local string) Name {
	return Name{Space: space, Local: local}
}

// String returns the name in Clark notation, e.g. {http://ns}local.
func (n Name) String() string {
	if n.Space == "" {
		return n.Local
	}
	return "{" + n.Space + "}" + n.Local
}

// Attr is a single attribute.
type Attr struct {
	Name  Name
	Value string
}

// A creates an unqualified attribute.
func A(local, value string) Attr {
	return Attr{Name: Name{Local: local}, Value: value}
}

// Node is an element with attributes, text content and child elements.
// Attributes keep their insertion order.
type Node struct {
	Name     Name
	Attrs    []Attr
	Text     string
	Children []*Node
}

// New creates a detached element.
func New(name Name, attrs ...Attr) *Node {
	return &Node{Name: name, Attrs: attrs}
}

// SubElement appends a new child element and returns it.
func (n *Node) SubElement(name Name, attrs ...Attr) *Node {
	child := New(name, attrs...)
	n.Children = append(n.Children, child)
	return child
}

// AddText appends a child element holding text and returns it.
func (n *Node) AddText(name Name, text string, attrs ...Attr) *Node {
	child := n.SubElement(name, attrs...)
	child.Text = text
	return child
}

// Append attaches existing nodes as children.
func (n *Node) Append(children ...*Node) {
	n.Children = append(n.Children, children...)
}

// Set sets an attribute, replacing an existing value in place.
func (n *Node) Set(name Name, value string) {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
}

// Attr returns the value of an attribute and whether it is present.
func (n *Node) Attr(name Name) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// AttrValue returns the value of an attribute or "" when absent.
func (n *Node) AttrValue(name Name) string {
	v, _ := n.Attr(name)
	return v
}

// Find returns the first direct child with the given name, or nil.
func (n *Node) Find(name Name) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// FindAll returns all direct children with the given name.
func (n *Node) FindAll(name Name) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// FindText returns the text of the first direct child with the given name
// and whether such a child exists.
func (n *Node) FindText(name Name) (string, bool) {
	c := n.Find(name)
	if c == nil {
		return "", false
	}
	return c.Text, true
}

// ChildText returns the text of the first direct child with the given name,
// or "" when there is none.
func (n *Node) ChildText(name Name) string {
	text, _ := n.FindText(name)
	return text
}
