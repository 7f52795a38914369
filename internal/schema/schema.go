// Package schema implements the subset of YANG semantics this engine needs
// to exercise §8's testable properties: containers, lists with keys, leaves
// with a handful of base types, mandatory enforcement, and user-ordered
// lists. A real deployment would delegate to the external YANG/XPath
// library spec.md §1 treats as a black box; this package is that library's
// stand-in, built as an in-repo Go DSL rather than a text parser.
package schema

import "fmt"

// Kind is the class of a schema node.
type Kind int

const (
	Container Kind = iota
	PresenceContainer
	List
	Leaf
	LeafList
)

func (k Kind) String() string {
	switch k {
	case Container:
		return "container"
	case PresenceContainer:
		return "presence-container"
	case List:
		return "list"
	case Leaf:
		return "leaf"
	case LeafList:
		return "leaf-list"
	default:
		return "unknown"
	}
}

// LeafType is the base type of a leaf or leaf-list value.
type LeafType int

const (
	TypeString LeafType = iota
	TypeBool
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeDecimal64
	TypeEnumeration
	TypeIdentityref
	TypeBinary
	TypeEmpty
)

func (t LeafType) String() string {
	names := [...]string{
		"string", "boolean", "int8", "int16", "int32", "int64",
		"uint8", "uint16", "uint32", "uint64", "decimal64",
		"enumeration", "identityref", "binary", "empty",
	}
	if int(t) < 0 || int(t) >= len(names) {
		return "unknown"
	}
	return names[t]
}

// Ordering controls how list instances are kept relative to one another.
type Ordering int

const (
	// OrderedBySystem lets the engine reorder instances at will (the
	// default for YANG lists).
	OrderedBySystem Ordering = iota
	// OrderedByUser preserves caller insertion order and supports
	// move_list.
	OrderedByUser
)

// Node describes one schema node: a container, list, leaf or leaf-list.
// Modules are built as a tree of Nodes by Builder.
type Node struct {
	Name       string
	Kind       Kind
	LeafType   LeafType
	Mandatory  bool
	Keys       []string // List: names of child leaves that form the key tuple
	Ordering   Ordering // List only
	Scale      int      // TypeDecimal64 only: digits after the decimal point, 1-18
	Enum       []string // TypeEnumeration only: permitted values
	Children   []*Node
	childIndex map[string]int
}

func (n *Node) child(name string) (*Node, bool) {
	if n.childIndex == nil {
		return nil, false
	}
	i, ok := n.childIndex[name]
	if !ok {
		return nil, false
	}
	return n.Children[i], true
}

func (n *Node) addChild(c *Node) {
	if n.childIndex == nil {
		n.childIndex = make(map[string]int)
	}
	n.childIndex[c.Name] = len(n.Children)
	n.Children = append(n.Children, c)
}

// Module is a named YANG module: namespace, prefix, and the root nodes its
// schema tree declares, plus the revisions the schema context has loaded.
type Module struct {
	Name        string
	Namespace   string
	Prefix      string
	Revision    string
	Root        *Node
	Features    []string
	Identities  []string
}

// Error reports a schema violation found during validation, carrying the
// data-tree path that failed so callers can report it verbatim in a
// VALIDATION_FAILED response (§7).
type Error struct {
	Path    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}
