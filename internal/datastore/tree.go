// Package datastore implements the data tree, per-session overlay, and
// operation log described in spec.md §3 and §4.4: arena-allocated nodes
// addressed by index handles rather than reciprocal pointers (§9), so a
// child's weak reference to its parent never needs special-case cleanup
// when a subtree is cloned for an overlay fork.
package datastore

import (
	"fmt"

	"github.com/cuemby/sysrepo-engine/internal/schema"
)

// Flag controls set_item/delete_item behaviour (§4.3).
type Flag int

const (
	FlagNone Flag = 0
	// FlagStrict fails set_item if the node already exists, or
	// delete_item if it's absent.
	FlagStrict Flag = 1 << iota
	// FlagNonRecursive fails set_item instead of auto-creating missing
	// ancestors.
	FlagNonRecursive
	// FlagDefault marks a value as a schema default rather than an
	// explicit edit (carried through but not given special treatment by
	// this subset).
	FlagDefault
)

func (f Flag) has(bit Flag) bool { return f&bit != 0 }

// Direction is a move_list direction (§4.3).
type Direction int

const (
	MoveUp Direction = iota
	MoveDown
	MoveFirst
	MoveLast
)

const noHandle = -1

// node is one arena slot: a data-tree node bound to a schema node, with a
// parent handle instead of an owning pointer.
type node struct {
	schema   *schema.Node
	parent   int
	children []int
	value    any               // set only on Leaf/LeafList nodes
	keys     map[string]string // set only on List instance nodes
	deleted  bool              // tombstoned slot, skipped by iteration
}

// Tree is a forest rooted at a module's schema root, the in-memory form of
// one (module, datastore) pair or one session's overlay of it.
type Tree struct {
	module *schema.Module
	nodes  []node
	root   int
}

// NewTree creates an empty tree for a module, containing only its
// synthetic root node.
func NewTree(m *schema.Module) *Tree {
	t := &Tree{module: m}
	t.root = t.alloc(node{schema: m.Root, parent: noHandle})
	return t
}

func (t *Tree) alloc(n node) int {
	t.nodes = append(t.nodes, n)
	return len(t.nodes) - 1
}

// Clone deep-copies the tree's arena, the operation a session performs when
// forking an overlay from a datastore's base tree (§3 "per-session
// overlay").
func (t *Tree) Clone() *Tree {
	clone := &Tree{module: t.module, root: t.root}
	clone.nodes = make([]node, len(t.nodes))
	for i, n := range t.nodes {
		cn := n
		cn.children = append([]int(nil), n.children...)
		if n.keys != nil {
			cn.keys = make(map[string]string, len(n.keys))
			for k, v := range n.keys {
				cn.keys[k] = v
			}
		}
		clone.nodes[i] = cn
	}
	return clone
}

func (t *Tree) childByStep(parent int, step Step) (int, bool) {
	for _, c := range t.nodes[parent].children {
		if t.nodes[c].deleted {
			continue
		}
		if t.nodes[c].schema.Name != step.Name {
			continue
		}
		if t.nodes[c].schema.Kind == schema.List {
			if keysEqual(t.nodes[c].keys, step.Keys) {
				return c, true
			}
			continue
		}
		return c, true
	}
	return noHandle, false
}

func keysEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func (t *Tree) schemaChild(parentSchema *schema.Node, name string) (*schema.Node, bool) {
	for _, c := range parentSchema.Children {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// navigate walks steps from the root, optionally creating missing
// containers/list instances along the way. It returns the handle of the
// final step and the schema node it's bound to.
func (t *Tree) navigate(steps []Step, create bool, nonRecursive bool) (int, error) {
	cur := t.root
	for i, step := range steps {
		curSchema := t.nodes[cur].schema
		childSchema, ok := t.schemaChild(curSchema, step.Name)
		if !ok {
			return noHandle, &schema.Error{Path: JoinPath(steps[:i+1]), Message: "no such schema node"}
		}

		childHandle, found := t.childByStep(cur, step)
		if !found {
			if !create {
				return noHandle, &schema.Error{Path: JoinPath(steps[:i+1]), Message: "node does not exist"}
			}
			if nonRecursive && i < len(steps)-1 {
				return noHandle, &schema.Error{Path: JoinPath(steps[:i+1]), Message: "missing ancestor, NON_RECURSIVE set"}
			}
			if childSchema.Kind == schema.List && len(step.Keys) != len(childSchema.Keys) {
				return noHandle, &schema.Error{Path: JoinPath(steps[:i+1]), Message: "list instance missing key leaves"}
			}
			newNode := node{schema: childSchema, parent: cur}
			if childSchema.Kind == schema.List {
				newNode.keys = step.Keys
			}
			childHandle = t.alloc(newNode)
			t.nodes[cur].children = append(t.nodes[cur].children, childHandle)

			if childSchema.Kind == schema.List {
				for _, keyName := range childSchema.Keys {
					keyLeaf, ok := t.schemaChild(childSchema, keyName)
					if !ok {
						continue
					}
					leafHandle := t.alloc(node{schema: keyLeaf, parent: childHandle, value: step.Keys[keyName]})
					t.nodes[childHandle].children = append(t.nodes[childHandle].children, leafHandle)
				}
			}
		}
		cur = childHandle
	}
	return cur, nil
}

// Get resolves a path to its leaf value, or to a subtree marker for
// container/list nodes (value is nil in that case; existence is what's
// reported).
func (t *Tree) Get(path string) (any, error) {
	steps, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	h, err := t.navigate(steps, false, false)
	if err != nil {
		return nil, err
	}
	return t.nodes[h].value, nil
}

// Set creates or updates a leaf/leaf-list/list-instance/presence-container
// at path (§4.3 set_item).
func (t *Tree) Set(path string, value any, flags Flag) error {
	steps, err := ParsePath(path)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		return fmt.Errorf("datastore: empty path")
	}

	last := steps[len(steps)-1]
	parentSteps := steps[:len(steps)-1]

	parent := t.root
	if len(parentSteps) > 0 {
		parent, err = t.navigate(parentSteps, !flags.has(FlagNonRecursive), flags.has(FlagNonRecursive))
		if err != nil {
			return err
		}
	}

	parentSchema := t.nodes[parent].schema
	childSchema, ok := t.schemaChild(parentSchema, last.Name)
	if !ok {
		return &schema.Error{Path: JoinPath(steps), Message: "no such schema node"}
	}
	if parentSchema.Kind == schema.List {
		for _, k := range parentSchema.Keys {
			if k == last.Name {
				return &schema.Error{Path: JoinPath(steps), Message: "list key leaves cannot be set directly"}
			}
		}
	}

	existing, found := t.childByStep(parent, last)
	if found && flags.has(FlagStrict) {
		return &schema.Error{Path: JoinPath(steps), Message: "node already exists, STRICT set"}
	}

	if childSchema.Kind == schema.Leaf || childSchema.Kind == schema.LeafList {
		if err := schema.ValidateValue(childSchema, value); err != nil {
			return &schema.Error{Path: JoinPath(steps), Message: err.Error()}
		}
	}

	if found {
		t.nodes[existing].value = value
		return nil
	}

	if childSchema.Kind == schema.List && len(last.Keys) != len(childSchema.Keys) {
		return &schema.Error{Path: JoinPath(steps), Message: "list instance missing key leaves"}
	}

	h := t.alloc(node{schema: childSchema, parent: parent, value: value})
	if childSchema.Kind == schema.List {
		t.nodes[h].keys = last.Keys
		for _, keyName := range childSchema.Keys {
			keyLeaf, ok := t.schemaChild(childSchema, keyName)
			if !ok {
				continue
			}
			leafHandle := t.alloc(node{schema: keyLeaf, parent: h, value: last.Keys[keyName]})
			t.nodes[h].children = append(t.nodes[h].children, leafHandle)
		}
	}
	t.nodes[parent].children = append(t.nodes[parent].children, h)
	return nil
}

// Delete removes the node(s) matching path (§4.3 delete_item).
func (t *Tree) Delete(path string, flags Flag) error {
	steps, err := ParsePath(path)
	if err != nil {
		return err
	}
	last := steps[len(steps)-1]

	h, err := t.navigate(steps, false, false)
	if err != nil {
		if flags.has(FlagStrict) {
			return err
		}
		return nil
	}

	if t.nodes[h].schema.Kind == schema.List && len(last.Keys) == 0 {
		return &schema.Error{Path: JoinPath(steps), Message: "deleting a list key directly is forbidden"}
	}
	if parentSchema := t.nodes[t.nodes[h].parent].schema; parentSchema.Kind == schema.List {
		for _, k := range parentSchema.Keys {
			if k == last.Name {
				return &schema.Error{Path: JoinPath(steps), Message: "deleting a list key leaf is forbidden, delete the list instance instead"}
			}
		}
	}

	t.deleteSubtree(h)
	parent := t.nodes[h].parent
	t.nodes[parent].children = removeHandle(t.nodes[parent].children, h)
	return nil
}

func (t *Tree) deleteSubtree(h int) {
	t.nodes[h].deleted = true
	for _, c := range t.nodes[h].children {
		t.deleteSubtree(c)
	}
}

func removeHandle(handles []int, target int) []int {
	out := handles[:0]
	for _, h := range handles {
		if h != target {
			out = append(out, h)
		}
	}
	return out
}

// MoveList reorders a user-ordered list instance relative to its siblings
// (§4.3 move_list). Non-ordered lists return INVAL_ARG-equivalent errors.
func (t *Tree) MoveList(path string, dir Direction) error {
	steps, err := ParsePath(path)
	if err != nil {
		return err
	}
	h, err := t.navigate(steps, false, false)
	if err != nil {
		return err
	}
	listSchema := t.nodes[h].schema
	if listSchema.Kind != schema.List {
		return &schema.Error{Path: JoinPath(steps), Message: "move_list target is not a list instance"}
	}
	if listSchema.Ordering != schema.OrderedByUser {
		return &schema.Error{Path: JoinPath(steps), Message: "move_list on a non-ordered list"}
	}

	parent := t.nodes[h].parent
	siblings := t.nodes[parent].children
	idx := indexOf(siblings, h)
	if idx < 0 {
		return fmt.Errorf("datastore: internal: node not found among its own parent's children")
	}

	switch dir {
	case MoveUp:
		if idx == 0 {
			return nil
		}
		siblings[idx-1], siblings[idx] = siblings[idx], siblings[idx-1]
	case MoveDown:
		if idx == len(siblings)-1 {
			return nil
		}
		siblings[idx+1], siblings[idx] = siblings[idx], siblings[idx+1]
	case MoveFirst:
		moveToFront(siblings, idx)
	case MoveLast:
		moveToBack(siblings, idx)
	}
	return nil
}

func indexOf(handles []int, target int) int {
	for i, h := range handles {
		if h == target {
			return i
		}
	}
	return -1
}

func moveToFront(s []int, idx int) {
	v := s[idx]
	copy(s[1:idx+1], s[0:idx])
	s[0] = v
}

func moveToBack(s []int, idx int) {
	v := s[idx]
	copy(s[idx:len(s)-1], s[idx+1:])
	s[len(s)-1] = v
}
