package tpxa

import (
	"strconv"

	"github.com/robertmeta/tpxa/xmltree"
)

// DependencyTable holds the canonical definitions of shared entities until
// they are flushed at the end of an export. Ids are assigned in registration
// order and never reused. The table does not deduplicate: callers remember
// which entity got which id.
type DependencyTable struct {
	next    uint64
	nodes   []*xmltree.Node
	flushed bool
}

// Register allocates the next id and returns it together with an empty
// definition node of the given kind. The caller populates the node; the
// table keeps it by reference until Flush.
func (t *DependencyTable) Register(kind xmltree.Name) (string, *xmltree.Node, error) {
	if t.flushed {
		return "", nil, ErrTableFlushed
	}
	t.next++
	id := strconv.FormatUint(t.next, 16)
	node := xmltree.New(kind, xmltree.Attr{Name: dependencyAttr, Value: id})
	t.nodes = append(t.nodes, node)
	return id, node, nil
}

// Reference returns the attribute value that marks an element as standing
// for the entity registered under id.
func (t *DependencyTable) Reference(id string) string {
	return id
}

// Len returns the number of definitions waiting to be flushed.
func (t *DependencyTable) Len() int {
	return len(t.nodes)
}

// Flush returns all definitions in registration order and empties the table.
// No further registration is possible afterwards.
func (t *DependencyTable) Flush() []*xmltree.Node {
	nodes := t.nodes
	t.nodes = nil
	t.flushed = true
	return nodes
}
