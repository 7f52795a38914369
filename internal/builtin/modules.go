// Package builtin is the compiled-in schema registry module_install draws
// from. spec.md §1 treats YANG parsing as an external black box; rather than
// fabricate a parser this engine ships a small fixed set of module shapes as
// Go code, the same stand-in internal/schema's Builder already is for a
// single module (see internal/engine's engine_test.go buildTestModule). A
// real deployment would swap this package for one that loads compiled
// schema from an external library; nothing else in the engine depends on
// modules being defined this way.
package builtin

import "github.com/cuemby/sysrepo-engine/internal/schema"

// ExampleModule returns "example-module", the container/list/leaf shape used
// throughout spec.md §8's scenarios: a presence container holding a
// configurable greeting, and a system-ordered list of named entries.
func ExampleModule() *schema.Module {
	b := schema.NewBuilder("example-module", "urn:example:example-module", "ex").Revision("2024-01-01")

	b.Container("settings", true, false)
	b.Leaf("greeting", schema.TypeString, false)
	b.Leaf("max-entries", schema.TypeUint32, false)
	b.End()

	b.List("entry", []string{"name"}, schema.OrderedBySystem)
	b.Leaf("name", schema.TypeString, true)
	b.Leaf("value", schema.TypeString, false)
	b.Leaf("enabled", schema.TypeBool, false)
	b.End()

	b.Feature("extended-entries")
	return b.Build()
}

// TestModule returns "test-module": a location container with two mandatory
// leaves (exercising §8 scenario 2's mandatory-leaf validation failure), a
// system-ordered keyed list, and a user-ordered list supporting move_list.
// Grounded directly on internal/engine's own buildTestModule helper, kept as
// a named, installable module rather than a test-local one so
// cmd/sysrepo-engined can preload it at startup.
func TestModule() *schema.Module {
	b := schema.NewBuilder("test-module", "urn:test-module", "tm").Revision("2024-01-01")

	b.Container("location", false, false)
	b.Leaf("name", schema.TypeString, false)
	b.Leaf("latitude", schema.TypeString, true)
	b.Leaf("longitude", schema.TypeString, true)
	b.End()

	b.List("list", []string{"key"}, schema.OrderedBySystem)
	b.Leaf("key", schema.TypeString, true)
	b.Leaf("leaf", schema.TypeString, false)
	b.End()

	b.List("user", []string{"name"}, schema.OrderedByUser)
	b.Leaf("name", schema.TypeString, true)
	b.End()

	return b.Build()
}

// Registry returns every builtin module keyed by name, the set
// module_install may activate by name and cmd/sysrepo-engined preloads at
// startup.
func Registry() map[string]*schema.Module {
	return map[string]*schema.Module{
		"example-module": ExampleModule(),
		"test-module":    TestModule(),
	}
}
