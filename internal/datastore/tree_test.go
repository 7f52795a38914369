package datastore

import (
	"testing"
	"time"

	"github.com/cuemby/sysrepo-engine/internal/schema"
)

func buildTestModule() *schema.Module {
	b := schema.NewBuilder("test-module", "urn:test-module", "tm")
	b.Container("location", false, false)
	b.Leaf("name", schema.TypeString, false)
	b.Leaf("latitude", schema.TypeString, true)
	b.Leaf("longitude", schema.TypeString, true)
	b.End()
	b.List("user", []string{"name"}, schema.OrderedByUser)
	b.Leaf("name", schema.TypeString, true)
	b.End()
	b.List("list", []string{"key"}, schema.OrderedBySystem)
	b.Leaf("key", schema.TypeString, true)
	b.Leaf("leaf", schema.TypeString, false)
	b.End()
	return b.Build()
}

func TestSetGetRoundTrip(t *testing.T) {
	tree := NewTree(buildTestModule())

	if err := tree.Set("/test-module:list[key='abc']/leaf", "Leaf value", FlagNone); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := tree.Get("/test-module:list[key='abc']/leaf")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "Leaf value" {
		t.Errorf("Get() = %v, want %q", got, "Leaf value")
	}
}

func TestMandatoryLeafValidation(t *testing.T) {
	tree := NewTree(buildTestModule())

	if err := tree.Set("/test-module:location/name", "Banska Bystrica", FlagNone); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	errs := tree.Validate()
	if len(errs) != 2 {
		t.Fatalf("Validate() = %d errors, want 2 (latitude, longitude missing); got %v", len(errs), errs)
	}

	if err := tree.Set("/test-module:location/latitude", "48.7", FlagNone); err != nil {
		t.Fatalf("Set(latitude) error = %v", err)
	}
	if err := tree.Set("/test-module:location/longitude", "19.1", FlagNone); err != nil {
		t.Fatalf("Set(longitude) error = %v", err)
	}

	if errs := tree.Validate(); len(errs) != 0 {
		t.Errorf("Validate() after filling mandatory leaves = %v, want none", errs)
	}
}

func TestUserOrderedMove(t *testing.T) {
	tree := NewTree(buildTestModule())

	for _, name := range []string{"A", "B", "C"} {
		if err := tree.Set("/test-module:user[name='"+name+"']", nil, FlagNone); err != nil {
			t.Fatalf("Set(%s) error = %v", name, err)
		}
	}

	if err := tree.MoveList("/test-module:user[name='A']", MoveDown); err != nil {
		t.Fatalf("MoveList(A, DOWN) error = %v", err)
	}
	if err := tree.MoveList("/test-module:user[name='C']", MoveUp); err != nil {
		t.Fatalf("MoveList(C, UP) error = %v", err)
	}

	order := userOrder(t, tree)
	want := []string{"B", "C", "A"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order = %v, want %v", order, want)
		}
	}
}

func userOrder(t *testing.T, tree *Tree) []string {
	t.Helper()
	var out []string
	for _, h := range tree.nodes[tree.root].children {
		n := tree.nodes[h]
		if n.deleted || n.schema.Name != "user" {
			continue
		}
		out = append(out, n.keys["name"])
	}
	return out
}

func TestDeleteListKeyForbidden(t *testing.T) {
	tree := NewTree(buildTestModule())
	_ = tree.Set("/test-module:list[key='abc']/leaf", "v", FlagNone)

	if err := tree.Delete("/test-module:list[key='abc']/key", FlagNone); err == nil {
		t.Error("Delete() on a list key leaf should fail")
	}
}

func TestMoveListOnNonOrderedListFails(t *testing.T) {
	tree := NewTree(buildTestModule())
	_ = tree.Set("/test-module:list[key='abc']/leaf", "v", FlagNone)

	if err := tree.MoveList("/test-module:list[key='abc']", MoveUp); err == nil {
		t.Error("MoveList() on a system-ordered list should fail")
	}
}

func TestOverlayReplayConflict(t *testing.T) {
	base := NewTree(buildTestModule())
	overlay := NewOverlay("test-module", base, time.Now())

	if err := overlay.Apply(Entry{Kind: OpSet, Path: "/test-module:list[key='abc']/leaf", Value: "A's value"}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	committed := NewTree(buildTestModule())
	_ = committed.Set("/test-module:list[key='abc']/leaf", "B's committed value", FlagNone)

	replayed, err := overlay.Replay(committed)
	if err != nil {
		t.Fatalf("Replay() error = %v, want success (overwrite is allowed)", err)
	}
	got, _ := replayed.Get("/test-module:list[key='abc']/leaf")
	if got != "A's value" {
		t.Errorf("Replay() result = %v, want A's replayed value to win", got)
	}
}
