package typesystem

import "testing"

// forallTToT builds the quantified function ∀T. T -> T, with two
// occurrences of T sharing one NamedUnbound cell, as a lowering driver
// would hand it to the instantiation engine.
func forallTToT() Quantified {
	tCell := NewNamedFreeVarType("T", GenericLevel, NewSubtypeOf(ObjType))
	return Quantified{Inner: Subr{
		SubrKind:   SubrFunc,
		NonDefault: []Param{{Name: "x", Typ: tCell}},
		Return:     tCell,
	}}
}

func TestInstantiationIdentity(t *testing.T) {
	q := forallTToT()
	cache := NewTyVarCache(1)
	inst, err := cache.Instantiate(q, nil, Location{})
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	subr, ok := inst.(Subr)
	if !ok {
		t.Fatalf("expected Subr, got %T", inst)
	}
	paramFV, ok := subr.NonDefault[0].Typ.(FreeVar)
	if !ok {
		t.Fatalf("expected param type to be a FreeVar, got %T", subr.NonDefault[0].Typ)
	}
	returnFV, ok := subr.Return.(FreeVar)
	if !ok {
		t.Fatalf("expected return type to be a FreeVar, got %T", subr.Return)
	}
	if paramFV.Cell != returnFV.Cell {
		t.Fatalf("two occurrences of T must instantiate to the same cell")
	}
}

func TestInstantiationProducesDistinctCellsAcrossCalls(t *testing.T) {
	q := forallTToT()
	a, err := NewTyVarCache(1).Instantiate(q, nil, Location{})
	if err != nil {
		t.Fatalf("first Instantiate failed: %v", err)
	}
	b, err := NewTyVarCache(1).Instantiate(q, nil, Location{})
	if err != nil {
		t.Fatalf("second Instantiate failed: %v", err)
	}
	aFV := a.(Subr).Return.(FreeVar)
	bFV := b.(Subr).Return.(FreeVar)
	if aFV.Cell == bFV.Cell {
		t.Fatalf("separate instantiations must not share a cell")
	}
}

func TestNoLeftoverGenericLevel(t *testing.T) {
	q := forallTToT()
	inst, err := NewTyVarCache(3).Instantiate(q, nil, Location{})
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	subr := inst.(Subr)
	fv := subr.Return.(FreeVar)
	if fv.Cell.IsGeneralized() {
		t.Fatalf("instantiated cell must not remain at the generic level")
	}
	if fv.Cell.Level() != 3 {
		t.Fatalf("instantiated cell should carry the requested level, got %v", fv.Cell.Level())
	}
}

func TestCyclicConstraintInstantiation(t *testing.T) {
	// ∀T <: Add(T). T -> T
	tCell := NewNamedFreeVarType("T", GenericLevel, Uninited)
	tCell.Cell.UpdateConstraint(NewSandwiched(NeverType, Poly{Name: "Add", Params: []TyParam{TPType{Typ: tCell}}}), true)
	q := Quantified{Inner: Subr{
		SubrKind:   SubrFunc,
		NonDefault: []Param{{Name: "x", Typ: tCell}},
		Return:     tCell,
	}}
	inst, err := NewTyVarCache(1).Instantiate(q, nil, Location{})
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	fv := inst.(Subr).Return.(FreeVar)
	sub, sup, ok := fv.Cell.GetSubSup()
	if !ok {
		t.Fatalf("expected a sandwiched constraint")
	}
	if sub != NeverType {
		t.Fatalf("expected sub == Never, got %v", sub)
	}
	poly, ok := sup.(Poly)
	if !ok || poly.Name != "Add" {
		t.Fatalf("expected sup == Add(?T), got %v", sup)
	}
	innerFV, ok := poly.Params[0].(TPType)
	if !ok {
		t.Fatalf("expected Add's argument to be a type, got %T", poly.Params[0])
	}
	innerCell, ok := innerFV.Typ.(FreeVar)
	if !ok || innerCell.Cell != fv.Cell {
		t.Fatalf("self-referential bound must reference the same cell as ?T itself")
	}
	// Structural equality must terminate despite the self-reference.
	_ = LimitedFmt(fv, 10)
}

func TestInstantiateRejectsNestedQuantified(t *testing.T) {
	inner := Quantified{Inner: TCon{Name: "Int"}}
	outer := Quantified{Inner: inner}
	_, err := NewTyVarCache(1).Instantiate(outer, nil, Location{})
	if err == nil {
		t.Fatalf("expected an error instantiating a nested Quantified")
	}
	if _, ok := err.(InternalInvariantError); !ok {
		t.Fatalf("expected InternalInvariantError, got %T", err)
	}
}

// fakeMethodCtx is a minimal typesystem.Context stub for exercising the
// collaborator calls a real lowering driver would make (spec.md §4.6):
// Intersection/Union/Complement simplify instead of reconstructing, and
// SubUnify just records its arguments.
type fakeMethodCtx struct {
	subUnifyCalls []struct{ Sub, Sup Type }
	subUnifyErr   error
}

func (f *fakeMethodCtx) GetNominalSuperTypeCtxs(t Type) []SuperTypeCtx { return nil }
func (f *fakeMethodCtx) RecGetConstObj(name string) (ValueObj, bool)   { return nil, false }
func (f *fakeMethodCtx) SubtypeOf(sub, sup Type) bool                  { return false }
func (f *fakeMethodCtx) Intersection(l, r Type) Type                   { return l }
func (f *fakeMethodCtx) Union(l, r Type) Type                          { return l }
func (f *fakeMethodCtx) Complement(t Type) Type                        { return NeverType }
func (f *fakeMethodCtx) SubUnify(sub, sup Type, loc Location) error {
	f.subUnifyCalls = append(f.subUnifyCalls, struct{ Sub, Sup Type }{sub, sup})
	return f.subUnifyErr
}
func (f *fakeMethodCtx) SubUnifyTP(tp, other TyParam, loc Location) error { return nil }

// methodForallSelfToT builds ∀T. (self: Box) -> T, as a bound-method Subr
// whose receiver a call site would unify via Instantiate's callee param.
func methodForallSelfToT() (Quantified, Type) {
	tCell := NewNamedFreeVarType("T", GenericLevel, NewSubtypeOf(ObjType))
	boxType := TCon{Name: "Box"}
	return Quantified{Inner: Subr{
		SubrKind:   SubrFunc,
		NonDefault: []Param{{Name: "self", Typ: boxType}},
		Return:     tCell,
	}}, boxType
}

func TestInstantiateUnifiesCalleeWithSelfParam(t *testing.T) {
	q, boxType := methodForallSelfToT()
	ctx := &fakeMethodCtx{}
	callee := TCon{Name: "Box"}
	_, err := NewTyVarCacheWithContext(1, ctx).Instantiate(q, callee, Location{Line: 3})
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	if len(ctx.subUnifyCalls) != 1 {
		t.Fatalf("expected exactly one SubUnify call for the self parameter, got %d", len(ctx.subUnifyCalls))
	}
	if ctx.subUnifyCalls[0].Sub != Type(callee) || ctx.subUnifyCalls[0].Sup != Type(boxType) {
		t.Fatalf("expected SubUnify(callee, self's type), got %#v", ctx.subUnifyCalls[0])
	}
}

func TestInstantiateWithoutCalleeSkipsSelfUnification(t *testing.T) {
	q, _ := methodForallSelfToT()
	ctx := &fakeMethodCtx{}
	if _, err := NewTyVarCacheWithContext(1, ctx).Instantiate(q, nil, Location{}); err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	if len(ctx.subUnifyCalls) != 0 {
		t.Fatalf("expected no SubUnify call when callee is nil, got %d", len(ctx.subUnifyCalls))
	}
}

func TestInstantiatePropagatesSelfUnificationError(t *testing.T) {
	q, _ := methodForallSelfToT()
	wantErr := InternalInvariantError{Message: "mismatched receiver"}
	ctx := &fakeMethodCtx{subUnifyErr: wantErr}
	_, err := NewTyVarCacheWithContext(1, ctx).Instantiate(q, TCon{Name: "Box"}, Location{})
	if err != wantErr {
		t.Fatalf("expected Instantiate to propagate the self-unification error, got %v", err)
	}
}

func TestInstantiateDummySkipsSelfUnification(t *testing.T) {
	_, boxType := methodForallSelfToT()
	ctx := &fakeMethodCtx{}
	s := Subr{SubrKind: SubrFunc, NonDefault: []Param{{Name: "self", Typ: boxType}}, Return: TCon{Name: "Int"}}
	if _, err := NewTyVarCacheWithContext(1, ctx).InstantiateDummy(s); err != nil {
		t.Fatalf("InstantiateDummy failed: %v", err)
	}
	if len(ctx.subUnifyCalls) != 0 {
		t.Fatalf("InstantiateDummy must never attempt self unification, got %d calls", len(ctx.subUnifyCalls))
	}
}

func TestInstantiateCollapsesAndOrNotThroughContext(t *testing.T) {
	ctx := &fakeMethodCtx{}
	and := Quantified{Inner: AndType{L: TCon{Name: "A"}, R: TCon{Name: "B"}}}
	got, err := NewTyVarCacheWithContext(1, ctx).Instantiate(and, nil, Location{})
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	if _, ok := got.(AndType); ok {
		t.Fatalf("expected AndType to collapse via ctx.Intersection, got %#v", got)
	}

	or := Quantified{Inner: OrType{L: TCon{Name: "A"}, R: TCon{Name: "B"}}}
	got, err = NewTyVarCacheWithContext(1, ctx).Instantiate(or, nil, Location{})
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	if _, ok := got.(OrType); ok {
		t.Fatalf("expected OrType to collapse via ctx.Union, got %#v", got)
	}

	not := Quantified{Inner: NotType{Inner: TCon{Name: "A"}}}
	got, err = NewTyVarCacheWithContext(1, ctx).Instantiate(not, nil, Location{})
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	if got != Type(NeverType) {
		t.Fatalf("expected NotType to collapse via ctx.Complement to Never, got %#v", got)
	}
}

func TestInstantiateWithoutContextReconstructsAndOrNot(t *testing.T) {
	and := Quantified{Inner: AndType{L: TCon{Name: "A"}, R: TCon{Name: "B"}}}
	got, err := NewTyVarCache(1).Instantiate(and, nil, Location{})
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	if _, ok := got.(AndType); !ok {
		t.Fatalf("expected AndType to be reconstructed without a Context, got %#v", got)
	}
}
