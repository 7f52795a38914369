package datastore

import (
	"fmt"

	"github.com/cuemby/sysrepo-engine/internal/schema"
)

// Validate runs the tree's invariants from §3: every leaf value conforms to
// its schema type (enforced incrementally by Set, re-checked here since a
// replay can graft mismatched subtrees), all list keys present, no two
// siblings share a key tuple, and mandatory descendants are present
// whenever their ancestor is present. It returns every violation found,
// matching §4.3 validate's "→ () | errors[]" contract.
func (t *Tree) Validate() []error {
	var errs []error
	t.validateNode(t.root, nil, &errs)
	return errs
}

func (t *Tree) validateNode(h int, pathSoFar []Step, errs *[]error) {
	n := &t.nodes[h]
	if n.deleted {
		return
	}

	switch n.schema.Kind {
	case schema.Leaf, schema.LeafList:
		if n.value != nil {
			if err := schema.ValidateValue(n.schema, n.value); err != nil {
				*errs = append(*errs, &schema.Error{Path: JoinPath(pathSoFar), Message: err.Error()})
			}
		}
	}

	if n.schema.Mandatory && n.schema.Kind != schema.Leaf && n.schema.Kind != schema.LeafList {
		// Mandatory containers/lists are checked via their presence
		// among the parent's live children, handled by the caller loop
		// below; nothing extra to do at this node itself.
	}

	seenKeys := make(map[string]bool)
	childrenByName := make(map[string][]int)
	for _, c := range n.children {
		if t.nodes[c].deleted {
			continue
		}
		childrenByName[t.nodes[c].schema.Name] = append(childrenByName[t.nodes[c].schema.Name], c)
	}

	for _, schemaChild := range n.schema.Children {
		live := childrenByName[schemaChild.Name]
		if schemaChild.Mandatory && len(live) == 0 {
			*errs = append(*errs, &schema.Error{
				Path:    JoinPath(append(append([]Step(nil), pathSoFar...), Step{Name: schemaChild.Name})),
				Message: fmt.Sprintf("mandatory node %q is missing", schemaChild.Name),
			})
		}
	}

	for name, handles := range childrenByName {
		first := t.nodes[handles[0]].schema
		if first.Kind == schema.List {
			for _, h2 := range handles {
				tuple := keyTuple(t.nodes[h2].keys, first.Keys)
				if seenKeys[name+"|"+tuple] {
					*errs = append(*errs, &schema.Error{
						Path:    JoinPath(append(append([]Step(nil), pathSoFar...), Step{Name: name, Keys: t.nodes[h2].keys})),
						Message: "duplicate list key tuple",
					})
				}
				seenKeys[name+"|"+tuple] = true
			}
		}
		for _, h2 := range handles {
			childStep := Step{Name: name}
			if t.nodes[h2].keys != nil {
				childStep.Keys = t.nodes[h2].keys
			}
			t.validateNode(h2, append(append([]Step(nil), pathSoFar...), childStep), errs)
		}
	}
}

func keyTuple(keys map[string]string, order []string) string {
	out := ""
	for _, k := range order {
		out += k + "=" + keys[k] + ";"
	}
	return out
}
