package typesystem

import "testing"

func TestEvalBinTPNumericFolding(t *testing.T) {
	res := EvalBinTP(OpAdd, TPValue{Val: VONat{3}}, TPValue{Val: VONat{4}})
	v, ok := res.(TPValue)
	if !ok {
		t.Fatalf("expected TPValue, got %T", res)
	}
	nat, ok := v.Val.(VONat)
	if !ok || nat.Value != 7 {
		t.Fatalf("expected Nat(7), got %#v", v.Val)
	}
}

func TestEvalBinTPDivisionWidensToFloat(t *testing.T) {
	res := EvalBinTP(OpDiv, TPValue{Val: VOInt{-6}}, TPValue{Val: VOInt{3}})
	v := res.(TPValue)
	f, ok := v.Val.(VOFloat)
	if !ok || f.Value != -2.0 {
		t.Fatalf("expected Float(-2.0), got %#v", v.Val)
	}
}

func TestEvalBinTPErasedAbsorption(t *testing.T) {
	erased := TPErased{Typ: TCon{Name: "Nat"}}
	res := EvalBinTP(OpMul, erased, TPValue{Val: VONat{2}})
	got, ok := res.(TPErased)
	if !ok || got.Typ.String() != "Nat" {
		t.Fatalf("expected Erased(Nat) to pass through unchanged, got %#v", res)
	}
}

func TestEvalBinTPSymbolicResidue(t *testing.T) {
	mono := TPMono{Name: "N"}
	res := EvalBinTP(OpAdd, mono, TPValue{Val: VONat{1}})
	binop, ok := res.(TPBinOp)
	if !ok || binop.Op != OpAdd {
		t.Fatalf("expected a symbolic BinOp residue, got %#v", res)
	}
}

func TestEvalTPIdempotentWithoutProjection(t *testing.T) {
	tp := TPBinOp{Op: OpAdd, Lhs: TPValue{Val: VONat{1}}, Rhs: TPValue{Val: VONat{2}}}
	once := EvalTP(tp)
	twice := EvalTP(once)
	if once.String() != twice.String() {
		t.Fatalf("EvalTP should be idempotent: %s != %s", once.String(), twice.String())
	}
}

// fakeMethodEnv is a minimal Context/MethodEnv pair grounding S5 and S6.
type fakeMethodEnv struct {
	consts map[string]ValueObj
}

func (m *fakeMethodEnv) GetConstLocal(symbol string) (ValueObj, bool) {
	v, ok := m.consts[symbol]
	return v, ok
}
func (m *fakeMethodEnv) MethodsList() []ImplEntry { return nil }

type fakeContext struct {
	superCtxs map[string][]SuperTypeCtx
}

func (f *fakeContext) GetNominalSuperTypeCtxs(t Type) []SuperTypeCtx {
	if tc, ok := t.(TCon); ok {
		return f.superCtxs[tc.Name]
	}
	return nil
}
func (f *fakeContext) RecGetConstObj(name string) (ValueObj, bool)    { return nil, false }
func (f *fakeContext) SubtypeOf(sub, sup Type) bool                  { return true }
func (f *fakeContext) Intersection(l, r Type) Type                   { return AndType{L: l, R: r} }
func (f *fakeContext) Union(l, r Type) Type                           { return OrType{L: l, R: r} }
func (f *fakeContext) Complement(t Type) Type                         { return NotType{Inner: t} }
func (f *fakeContext) SubUnify(sub, sup Type, loc Location) error     { return nil }
func (f *fakeContext) SubUnifyTP(tp, other TyParam, loc Location) error { return nil }

func TestProjectionResolvesThroughSuperTypeContext(t *testing.T) {
	c := TCon{Name: "C"}
	ctx := &fakeContext{superCtxs: map[string][]SuperTypeCtx{
		"C": {{Base: c, Env: &fakeMethodEnv{consts: map[string]ValueObj{"Out": VOType{Typ: TCon{Name: "Int"}}}}}},
	}}
	proj := Proj{Lhs: c, Attr: "Out"}
	result := EvalTParams(proj, ctx)
	tc, ok := result.(TCon)
	if !ok || tc.Name != "Int" {
		t.Fatalf("expected projection to resolve to Int, got %#v", result)
	}
}

func TestProjectionThroughUnboundSub(t *testing.T) {
	c := TCon{Name: "C"}
	ctx := &fakeContext{superCtxs: map[string][]SuperTypeCtx{
		"C": {{Base: c, Env: &fakeMethodEnv{consts: map[string]ValueObj{"Out": VOType{Typ: TCon{Name: "Int"}}}}}},
	}}
	cell := NewUnbound(0, NewSandwiched(c, ObjType))
	proj := Proj{Lhs: FreeVar{Cell: cell}, Attr: "Out"}
	result := EvalTParams(proj, ctx)
	tc, ok := result.(TCon)
	if !ok || tc.Name != "Int" {
		t.Fatalf("expected projection through an unbound sub to resolve to Int, got %#v", result)
	}
}

func TestUnresolvedProjectionIsPreserved(t *testing.T) {
	proj := Proj{Lhs: NeverType, Attr: "Out"}
	result := EvalTParams(proj, &fakeContext{superCtxs: map[string][]SuperTypeCtx{}})
	got, ok := result.(Proj)
	if !ok || got.Attr != "Out" {
		t.Fatalf("expected the unresolved projection to be returned unchanged, got %#v", result)
	}
}

func TestProjectionMonotonicity(t *testing.T) {
	c := TCon{Name: "C"}
	ctx := &fakeContext{superCtxs: map[string][]SuperTypeCtx{
		"C": {{Base: c, Env: &fakeMethodEnv{consts: map[string]ValueObj{"Out": VOType{Typ: TCon{Name: "Int"}}}}}},
	}}
	proj := Proj{Lhs: c, Attr: "Out"}
	once := EvalTParams(proj, ctx)
	if _, ok := once.(Proj); ok {
		t.Fatalf("expected the first pass to resolve the projection")
	}
	twice := EvalTParams(once, ctx)
	if once.String() != twice.String() {
		t.Fatalf("re-applying EvalTParams to a resolved projection must be a no-op: %s != %s", once.String(), twice.String())
	}
}

func TestEvalPredPreservesBooleanStructure(t *testing.T) {
	pred := PredAnd{
		L: PredEqual{Lhs: TPValue{Val: VONat{1}}, Rhs: TPValue{Val: VONat{1}}},
		R: PredLessEqual{Lhs: TPValue{Val: VONat{2}}, Rhs: TPValue{Val: VONat{3}}},
	}
	result := EvalPred(pred)
	if _, ok := result.(PredAnd); !ok {
		t.Fatalf("expected EvalPred to preserve the And structure, got %T", result)
	}
}
