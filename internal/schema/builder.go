package schema

// Builder constructs a Module's schema tree programmatically, standing in
// for a parsed YANG source file (§1: "out of scope, treated as a
// black-box"; this repo ships a minimal but real subset directly as Go
// structs, analogous to how the teacher's pkg/types package declares
// domain objects as plain structs rather than generating them).
type Builder struct {
	module *Module
	stack  []*Node
}

// NewBuilder starts building a module with the given name, namespace and
// prefix. Container/List/Leaf calls below operate on the top of an
// implicit node stack, starting at the module's synthetic root.
func NewBuilder(name, namespace, prefix string) *Builder {
	root := &Node{Name: name, Kind: Container}
	m := &Module{Name: name, Namespace: namespace, Prefix: prefix, Root: root}
	return &Builder{module: m, stack: []*Node{root}}
}

func (b *Builder) top() *Node {
	return b.stack[len(b.stack)-1]
}

// Container opens a container node, pushing it onto the builder's stack.
// Callers must close it with End.
func (b *Builder) Container(name string, presence bool, mandatory bool) *Builder {
	kind := Container
	if presence {
		kind = PresenceContainer
	}
	n := &Node{Name: name, Kind: kind, Mandatory: mandatory}
	b.top().addChild(n)
	b.stack = append(b.stack, n)
	return b
}

// List opens a list node keyed by the given child leaf names. Callers add
// the key leaves and any other children, then close it with End.
func (b *Builder) List(name string, keys []string, ordering Ordering) *Builder {
	n := &Node{Name: name, Kind: List, Keys: keys, Ordering: ordering}
	b.top().addChild(n)
	b.stack = append(b.stack, n)
	return b
}

// End closes the most recently opened Container or List.
func (b *Builder) End() *Builder {
	b.stack = b.stack[:len(b.stack)-1]
	return b
}

// Leaf adds a typed leaf to the node currently open on the stack.
func (b *Builder) Leaf(name string, t LeafType, mandatory bool) *Builder {
	b.top().addChild(&Node{Name: name, Kind: Leaf, LeafType: t, Mandatory: mandatory})
	return b
}

// Decimal64Leaf adds a decimal64 leaf with the given fraction-digit scale
// (1-18 per the YANG spec this subset borrows from).
func (b *Builder) Decimal64Leaf(name string, scale int, mandatory bool) *Builder {
	b.top().addChild(&Node{Name: name, Kind: Leaf, LeafType: TypeDecimal64, Scale: scale, Mandatory: mandatory})
	return b
}

// EnumLeaf adds an enumeration leaf restricted to the given values.
func (b *Builder) EnumLeaf(name string, values []string, mandatory bool) *Builder {
	b.top().addChild(&Node{Name: name, Kind: Leaf, LeafType: TypeEnumeration, Enum: values, Mandatory: mandatory})
	return b
}

// LeafList adds a leaf-list of the given base type.
func (b *Builder) LeafList(name string, t LeafType) *Builder {
	b.top().addChild(&Node{Name: name, Kind: LeafList, LeafType: t})
	return b
}

// Feature declares a named if-feature toggle for the module (§9 enabled
// feature set, persisted per-module via internal/persist).
func (b *Builder) Feature(name string) *Builder {
	b.module.Features = append(b.module.Features, name)
	return b
}

// Identity declares a named identity the module contributes, for
// identityref leaves (by name only; no derivation graph per SPEC_FULL §3).
func (b *Builder) Identity(name string) *Builder {
	b.module.Identities = append(b.module.Identities, name)
	return b
}

// Revision sets the module's latest revision date string (e.g. "2024-01-01").
func (b *Builder) Revision(rev string) *Builder {
	b.module.Revision = rev
	return b
}

// Build finalises and returns the constructed Module. The builder must not
// be reused afterwards.
func (b *Builder) Build() *Module {
	return b.module
}
