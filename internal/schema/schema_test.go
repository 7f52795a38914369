package schema

import (
	"strings"
	"testing"
)

func buildTuringConfig() *Module {
	b := NewBuilder("turing-config", "urn:sysrepo:turing-config", "tc").Revision("2024-01-01")
	b.Container("interfaces", false, false)
	b.List("interface", []string{"name"}, OrderedByUser)
	b.Leaf("name", TypeString, true)
	b.EnumLeaf("type", []string{"ethernet", "loopback"}, true)
	b.Leaf("enabled", TypeBool, false)
	b.Decimal64Leaf("mtu-factor", 2, false)
	b.End() // interface
	b.End() // interfaces
	return b.Build()
}

func TestBuilderProducesExpectedTree(t *testing.T) {
	m := buildTuringConfig()

	ifaces, ok := m.Root.child("interfaces")
	if !ok {
		t.Fatal("module missing interfaces container")
	}
	if ifaces.Kind != Container {
		t.Errorf("interfaces kind = %v, want Container", ifaces.Kind)
	}

	iface, ok := ifaces.child("interface")
	if !ok {
		t.Fatal("interfaces missing interface list")
	}
	if iface.Kind != List {
		t.Errorf("interface kind = %v, want List", iface.Kind)
	}
	if len(iface.Keys) != 1 || iface.Keys[0] != "name" {
		t.Errorf("interface keys = %v, want [name]", iface.Keys)
	}
	if iface.Ordering != OrderedByUser {
		t.Errorf("interface ordering = %v, want OrderedByUser", iface.Ordering)
	}

	nameLeaf, ok := iface.child("name")
	if !ok || !nameLeaf.Mandatory {
		t.Error("interface.name should exist and be mandatory")
	}
}

func TestContextInstallAndLookup(t *testing.T) {
	ctx := NewContext()
	m := buildTuringConfig()

	if err := ctx.Install(m); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	got, ok := ctx.Module("turing-config")
	if !ok {
		t.Fatal("Module() did not find installed module")
	}
	if got.Revision != "2024-01-01" {
		t.Errorf("Revision = %q, want 2024-01-01", got.Revision)
	}

	if mods := ctx.ListModules(); len(mods) != 1 {
		t.Errorf("ListModules() returned %d modules, want 1", len(mods))
	}
}

func TestContextLatestRevisionWins(t *testing.T) {
	ctx := NewContext()

	old := NewBuilder("turing-config", "urn:x", "tc").Revision("2023-01-01").Build()
	latest := NewBuilder("turing-config", "urn:x", "tc").Revision("2024-06-01").Build()

	_ = ctx.Install(old)
	_ = ctx.Install(latest)

	got, _ := ctx.Module("turing-config")
	if got.Revision != "2024-06-01" {
		t.Errorf("Module() returned revision %q, want latest 2024-06-01", got.Revision)
	}

	if _, ok := ctx.ModuleRevision("turing-config", "2023-01-01"); !ok {
		t.Error("older revision should still be retrievable by exact revision")
	}
}

func TestValidateValueTypeConformance(t *testing.T) {
	enabled := &Node{Name: "enabled", Kind: Leaf, LeafType: TypeBool}
	if err := ValidateValue(enabled, true); err != nil {
		t.Errorf("ValidateValue(bool, true) error = %v", err)
	}
	if err := ValidateValue(enabled, "true"); err == nil {
		t.Error("ValidateValue(bool, \"true\") should fail, string is not bool")
	}

	age := &Node{Name: "age", Kind: Leaf, LeafType: TypeUint8}
	if err := ValidateValue(age, uint64(200)); err != nil {
		t.Errorf("ValidateValue(uint8, 200) error = %v", err)
	}
	if err := ValidateValue(age, uint64(300)); err == nil {
		t.Error("ValidateValue(uint8, 300) should fail, out of range")
	}

	kind := &Node{Name: "type", Kind: Leaf, LeafType: TypeEnumeration, Enum: []string{"ethernet", "loopback"}}
	if err := ValidateValue(kind, "ethernet"); err != nil {
		t.Errorf("ValidateValue(enum, ethernet) error = %v", err)
	}
	if err := ValidateValue(kind, "wireless"); err == nil {
		t.Error("ValidateValue(enum, wireless) should fail, not a permitted value")
	}
}

func TestToYANGRoundTripsStructure(t *testing.T) {
	m := buildTuringConfig()
	text := ToYANG(m)

	for _, want := range []string{
		"module turing-config {",
		"container interfaces {",
		"list interface {",
		`key "name";`,
		"ordered-by user;",
		"leaf name {",
		"mandatory true;",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("ToYANG() missing %q in:\n%s", want, text)
		}
	}
}
