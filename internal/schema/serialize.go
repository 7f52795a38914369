package schema

import (
	"fmt"
	"strings"
)

// ToYANG renders a module's in-memory tree back to YANG source text, so
// get_schema's wire contract (§4.3) is unaffected by this subset being
// modelled as a Go DSL instead of parsed from a .yang file on disk.
func ToYANG(m *Module) string {
	var b strings.Builder
	fmt.Fprintf(&b, "module %s {\n", m.Name)
	fmt.Fprintf(&b, "  namespace %q;\n", m.Namespace)
	fmt.Fprintf(&b, "  prefix %q;\n", m.Prefix)
	if m.Revision != "" {
		fmt.Fprintf(&b, "  revision %q;\n", m.Revision)
	}
	for _, f := range m.Features {
		fmt.Fprintf(&b, "  feature %s;\n", f)
	}
	for _, id := range m.Identities {
		fmt.Fprintf(&b, "  identity %s;\n", id)
	}
	for _, c := range m.Root.Children {
		writeNodeYANG(&b, c, 1)
	}
	b.WriteString("}\n")
	return b.String()
}

func writeNodeYANG(b *strings.Builder, n *Node, depth int) {
	indent := strings.Repeat("  ", depth)
	switch n.Kind {
	case Container, PresenceContainer:
		fmt.Fprintf(b, "%scontainer %s {\n", indent, n.Name)
		if n.Kind == PresenceContainer {
			fmt.Fprintf(b, "%s  presence true;\n", indent)
		}
		for _, c := range n.Children {
			writeNodeYANG(b, c, depth+1)
		}
		fmt.Fprintf(b, "%s}\n", indent)
	case List:
		fmt.Fprintf(b, "%slist %s {\n", indent, n.Name)
		if len(n.Keys) > 0 {
			fmt.Fprintf(b, "%s  key %q;\n", indent, strings.Join(n.Keys, " "))
		}
		if n.Ordering == OrderedByUser {
			fmt.Fprintf(b, "%s  ordered-by user;\n", indent)
		}
		for _, c := range n.Children {
			writeNodeYANG(b, c, depth+1)
		}
		fmt.Fprintf(b, "%s}\n", indent)
	case Leaf:
		fmt.Fprintf(b, "%sleaf %s {\n", indent, n.Name)
		fmt.Fprintf(b, "%s  type %s;\n", indent, n.LeafType)
		if n.Mandatory {
			fmt.Fprintf(b, "%s  mandatory true;\n", indent)
		}
		fmt.Fprintf(b, "%s}\n", indent)
	case LeafList:
		fmt.Fprintf(b, "%sleaf-list %s {\n", indent, n.Name)
		fmt.Fprintf(b, "%s  type %s;\n", indent, n.LeafType)
		fmt.Fprintf(b, "%s}\n", indent)
	}
}
