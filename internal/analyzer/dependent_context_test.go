package analyzer

import (
	"testing"

	"github.com/funvibe/funxy/internal/symbols"
	"github.com/funvibe/funxy/internal/typesystem"
)

func TestResolveAssociatedTypeThroughSymbolTable(t *testing.T) {
	table := symbols.NewSymbolTable()
	table.DefineTrait("Container", nil, nil, "test")
	if err := table.RegisterImplementation("Container", []typesystem.Type{typesystem.TCon{Name: "Box"}}, nil, "$dict_Box_Container"); err != nil {
		t.Fatalf("RegisterImplementation failed: %v", err)
	}
	table.RegisterInstanceMethod("Container", "Box", "Out", typesystem.TCon{Name: "Int"})

	result := ResolveAssociatedType(typesystem.TCon{Name: "Box"}, "Out", table)
	got, ok := result.(typesystem.TCon)
	if !ok || got.Name != "Int" {
		t.Fatalf("expected the Container.Out projection on Box to resolve to Int, got %#v", result)
	}
}

func TestResolveAssociatedTypeUnresolvedIsPreserved(t *testing.T) {
	table := symbols.NewSymbolTable()
	result := ResolveAssociatedType(typesystem.TCon{Name: "Widget"}, "Out", table)
	proj, ok := result.(typesystem.Proj)
	if !ok || proj.Attr != "Out" {
		t.Fatalf("expected an unresolvable projection to be preserved unchanged, got %#v", result)
	}
}

// TestResolveEmbeddedAssociatedTypesInMethodSignature exercises the path
// declarations_instances.go/declarations_instances_methods.go/
// declarations.go call right after RegisterInstanceMethod: a method
// signature that itself names an associated type (here, a method
// returning Container.Out for the Box instance) is rewritten so the
// stored signature carries the resolved type instead of a bare Proj.
func TestResolveEmbeddedAssociatedTypesInMethodSignature(t *testing.T) {
	table := symbols.NewSymbolTable()
	table.DefineTrait("Container", nil, nil, "test")
	if err := table.RegisterImplementation("Container", []typesystem.Type{typesystem.TCon{Name: "Box"}}, nil, "$dict_Box_Container"); err != nil {
		t.Fatalf("RegisterImplementation failed: %v", err)
	}
	table.RegisterInstanceMethod("Container", "Box", "Out", typesystem.TCon{Name: "Int"})

	sig := typesystem.Subr{
		SubrKind:   typesystem.SubrFunc,
		NonDefault: []typesystem.Param{{Name: "self", Typ: typesystem.TCon{Name: "Box"}}},
		Return:     typesystem.Proj{Lhs: typesystem.TCon{Name: "Box"}, Attr: "Out"},
	}

	resolved := ResolveEmbeddedAssociatedTypes(sig, table)
	subr, ok := resolved.(typesystem.Subr)
	if !ok {
		t.Fatalf("expected a Subr back, got %T", resolved)
	}
	ret, ok := subr.Return.(typesystem.TCon)
	if !ok || ret.Name != "Int" {
		t.Fatalf("expected the embedded Container.Out projection to resolve to Int, got %#v", subr.Return)
	}
}
