package typesystem

import "testing"

func TestInferKindPolyAppliedConstructor(t *testing.T) {
	// List(Int) should infer to kind * — List :: * -> *, fully applied.
	poly := Poly{Name: "List", Params: []TyParam{TPType{Typ: TCon{Name: "Int", KindVal: Star}}}}
	k, _, err := InferKind(poly, NewKindContext())
	if err != nil {
		t.Fatalf("InferKind failed: %v", err)
	}
	if !k.Equal(Star) {
		t.Fatalf("expected kind *, got %s", k)
	}
}

func TestInferKindPolyPartiallyApplied(t *testing.T) {
	// Map(Int) is partially applied — Map :: * -> * -> *, one arg supplied.
	poly := Poly{Name: "Map", Params: []TyParam{TPType{Typ: TCon{Name: "Int", KindVal: Star}}}}
	k, _, err := InferKind(poly, NewKindContext())
	if err != nil {
		t.Fatalf("InferKind failed: %v", err)
	}
	if !k.Equal(MakeArrow(Star, Star)) {
		t.Fatalf("expected kind * -> *, got %s", k)
	}
}

func TestInferKindPolyRejectsMalformedArgument(t *testing.T) {
	poly := Poly{Name: "List", Params: []TyParam{TPType{Typ: TVar{Name: "f", KindVal: MakeArrow(Star, Star)}}}}
	_, _, err := InferKind(poly, NewKindContext())
	if err == nil {
		t.Fatalf("expected a kind mismatch error for a higher-kinded argument to List")
	}
}

func TestInferKindQuantifiedSubr(t *testing.T) {
	tCell := NewNamedFreeVarType("T", GenericLevel, NewSubtypeOf(ObjType))
	q := Quantified{Inner: Subr{
		SubrKind:   SubrFunc,
		NonDefault: []Param{{Name: "x", Typ: tCell}},
		Return:     tCell,
	}}
	k, _, err := InferKind(q, NewKindContext())
	if err != nil {
		t.Fatalf("InferKind failed: %v", err)
	}
	if !k.Equal(Star) {
		t.Fatalf("expected kind *, got %s", k)
	}
}
