package typesystem

import "testing"

func TestCellRegistryRoundTrip(t *testing.T) {
	c := NewUnbound(0, Uninited)
	id := RegisterCell(c)

	got, ok := LookupCell(id)
	if !ok || got != c {
		t.Fatalf("expected LookupCell to resolve the registered cell")
	}

	again := RegisterCell(c)
	if again != id {
		t.Fatalf("re-registering the same cell must return the same uuid")
	}

	ForgetCell(c)
	if _, ok := LookupCell(id); ok {
		t.Fatalf("expected ForgetCell to remove the registry entry")
	}
}
