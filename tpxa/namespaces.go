// Package tpxa reads and writes TextPress eXtended Atom (TPXA), an Atom
// superset that carries a blog's complete content graph between two
// blog installations.
//
// Writing is streamed: the document is produced as a sequence of
// independently serialized fragments, so exporting a large blog never holds
// the whole document in memory. Entities referenced from many places, such
// as users, are written once into a trailing dependencies block and
// referenced by id.
//
// Reading needs random access to the dependencies block, so the whole
// document is parsed into a tree before the graph is reconstructed.
package tpxa

import "github.com/robertmeta/tpxa/xmltree"

// Namespaces and scheme URIs of the format.
const (
	AtomNS      = "http://www.w3.org/2005/Atom"
	TextPressNS = "http://textpress.pocoo.org/"

	TagSchemeURI      = TextPressNS + "#tag-scheme"
	CategorySchemeURI = TextPressNS + "#category-scheme"
)

// GeneratorURI and GeneratorName identify this exporter in the feed header.
const (
	GeneratorURI  = "http://textpress.pocoo.org/"
	GeneratorName = "TextPress TPXA Export"
)

// Version is written into the generator element of every export.
var Version = "0.1.0"

var prefixes = map[string]string{
	AtomNS:      "a",
	TextPressNS: "tp",
}

func atom(local string) xmltree.Name { return xmltree.Qualify(AtomNS, local) }
func tp(local string) xmltree.Name   { return xmltree.Qualify(TextPressNS, local) }

// Names used in more than one place.
var (
	dependencyAttr = tp("dependency")
	xmlBase        = xmltree.Qualify(xmltree.XMLNamespace, "base")
	xmlLang        = xmltree.Qualify(xmltree.XMLNamespace, "lang")

	attrTerm   = xmltree.Name{Local: "term"}
	attrLabel  = xmltree.Name{Local: "label"}
	attrScheme = xmltree.Name{Local: "scheme"}
	attrType   = xmltree.Name{Local: "type"}
	attrHref   = xmltree.Name{Local: "href"}
	attrKey    = xmltree.Name{Local: "key"}
)

// AtomName returns the qualified name of an Atom element.
func AtomName(local string) xmltree.Name { return atom(local) }

// TPName returns the qualified name of a TextPress extension element.
func TPName(local string) xmltree.Name { return tp(local) }

// DependencyAttr is the attribute linking a reference to its definition.
func DependencyAttr() xmltree.Name { return dependencyAttr }
