package datastore

import "github.com/cuemby/sysrepo-engine/internal/schema"

// Item is one leaf value found while walking a tree, addressed by its full
// path. Used both to serialise a tree for persistence and to answer
// get_items-style reads.
type Item struct {
	Path  string
	Value any
}

// Items returns every leaf/leaf-list value in the tree, in tree order,
// each tagged with its full module-qualified path.
func (t *Tree) Items() []Item {
	var out []Item
	t.walkItems(t.root, nil, &out)
	return out
}

func (t *Tree) walkItems(h int, pathSoFar []Step, out *[]Item) {
	n := &t.nodes[h]
	if n.deleted {
		return
	}

	if n.schema.Kind == schema.Leaf || n.schema.Kind == schema.LeafList {
		if n.value != nil {
			*out = append(*out, Item{Path: JoinPath(pathSoFar), Value: n.value})
		}
		return
	}

	var keySet map[string]bool
	if n.schema.Kind == schema.List && len(n.schema.Keys) > 0 {
		keySet = make(map[string]bool, len(n.schema.Keys))
		for _, k := range n.schema.Keys {
			keySet[k] = true
		}
	}

	for _, c := range n.children {
		cn := &t.nodes[c]
		if cn.deleted {
			continue
		}
		if keySet != nil && keySet[cn.schema.Name] {
			// Key leaves are implied by the list instance's own key
			// tuple and are re-created by Set when the instance is
			// (re)created; emitting them separately would make Rebuild
			// try to set a list key leaf directly, which Set forbids.
			continue
		}
		step := Step{Name: cn.schema.Name}
		if cn.schema.Kind == schema.List {
			step.Keys = cn.keys
		}
		if len(pathSoFar) == 0 {
			step.Module = t.module.Name
		}
		t.walkItems(c, append(append([]Step(nil), pathSoFar...), step), out)
	}
}

// Rebuild replays a flat item list onto a fresh tree for the module,
// reconstructing the structure Items() flattened — the round-trip used by
// internal/engine to persist and reload a committed datastore.
func Rebuild(m *schema.Module, items []Item) (*Tree, error) {
	tree := NewTree(m)
	for _, it := range items {
		if err := tree.Set(it.Path, it.Value, FlagNone); err != nil {
			return nil, err
		}
	}
	return tree, nil
}
