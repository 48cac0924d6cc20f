package typesystem

// TyVarCache drives a single instantiation pass: every NamedUnbound cell
// encountered is rewritten to a fresh cell exactly once, and any later
// reference to a quantifier of the same name resolves to that same fresh
// cell (spec.md §4.4 V3 — pointer equality, not structural equality).
//
// Ctx is the §4.6 collaborator used to collapse And/Or/Not nodes through
// the real type algebra, and to sub-unify a call site's receiver against
// the rewritten function's self parameter on Instantiate. It may be nil
// (e.g. tests exercising the cell-rewriting machinery in isolation), in
// which case And/Or/Not are reconstructed structurally and no callee
// unification is attempted.
type TyVarCache struct {
	TyVarInstances   map[string]Type
	TyParamInstances map[string]TyParam
	AlreadyAppeared  map[string]bool
	StructuralInner  bool
	Level            Level
	Ctx              Context
}

// NewTyVarCache creates an empty cache for instantiating at level, with no
// Context collaborator.
func NewTyVarCache(level Level) *TyVarCache {
	return &TyVarCache{
		TyVarInstances:   map[string]Type{},
		TyParamInstances: map[string]TyParam{},
		AlreadyAppeared:  map[string]bool{},
		Level:            level,
	}
}

// NewTyVarCacheWithContext creates an empty cache for instantiating at
// level, backed by ctx for And/Or/Not collapse and self-parameter
// unification.
func NewTyVarCacheWithContext(level Level, ctx Context) *TyVarCache {
	c := NewTyVarCache(level)
	c.Ctx = ctx
	return c
}

// Instantiate turns q's Subr into a fresh instance: every distinct
// quantifier name in Inner gets one new NamedUnbound cell at Level, and all
// occurrences of that name share the SAME cell pointer. Used on a
// function-call site: once rewritten, if the result is a Subr whose first
// non-default parameter is named "self", callee is sub-unified against
// that parameter's type through c.Ctx (spec.md §4.4's instantiate(quantified,
// callee) entry point). callee may be nil (e.g. a call with no receiver
// expression), in which case no self-unification is attempted.
func (c *TyVarCache) Instantiate(q Quantified, callee Type, loc Location) (Type, error) {
	inst, err := c.instantiateType(q.Inner)
	if err != nil {
		return nil, err
	}
	if callee != nil && c.Ctx != nil {
		if subr, ok := inst.(Subr); ok && len(subr.NonDefault) > 0 && subr.NonDefault[0].Name == "self" {
			if err := c.Ctx.SubUnify(callee, subr.NonDefault[0].Typ, loc); err != nil {
				return nil, err
			}
		}
	}
	return inst, nil
}

// InstantiateDummy instantiates without enforcing the top-level Quantified
// shape and without the self-parameter unification step, used for
// type-only queries (spec.md §4.4's instantiate_dummy(quantified)) and when
// a Subr already escaped its Quantified wrapper (e.g. a recursive call
// re-entering instantiation for a nested default param).
func (c *TyVarCache) InstantiateDummy(t Type) (Type, error) {
	return c.instantiateType(t)
}

func (c *TyVarCache) instantiateType(t Type) (Type, error) {
	switch v := t.(type) {
	case FreeVar:
		return c.instantiateFreeVar(v)
	case Quantified:
		return nil, InternalInvariantError{Message: "nested Quantified encountered during instantiation"}
	case Refinement:
		base, err := c.instantiateType(v.Base)
		if err != nil {
			return nil, err
		}
		preds := make([]Predicate, len(v.Predicates))
		for i, p := range v.Predicates {
			np, err := c.instantiatePred(p)
			if err != nil {
				return nil, err
			}
			preds[i] = np
		}
		return Refinement{VarName: v.VarName, Base: base, Predicates: preds}, nil
	case Subr:
		return c.instantiateSubr(v)
	case Poly:
		params := make([]TyParam, len(v.Params))
		for i, p := range v.Params {
			np, err := c.instantiateTyParam(p)
			if err != nil {
				return nil, err
			}
			params[i] = np
		}
		return Poly{Name: v.Name, Params: params}, nil
	case Proj:
		lhs, err := c.instantiateType(v.Lhs)
		if err != nil {
			return nil, err
		}
		return Proj{Lhs: lhs, Attr: v.Attr}, nil
	case ProjCall:
		lhs, err := c.instantiateTyParam(v.Lhs)
		if err != nil {
			return nil, err
		}
		args := make([]TyParam, len(v.Args))
		for i, a := range v.Args {
			na, err := c.instantiateTyParam(a)
			if err != nil {
				return nil, err
			}
			args[i] = na
		}
		return ProjCall{Lhs: lhs, Attr: v.Attr, Args: args}, nil
	case RefType:
		inner, err := c.instantiateType(v.Inner)
		if err != nil {
			return nil, err
		}
		return RefType{Inner: inner}, nil
	case RefMutType:
		before, err := c.instantiateType(v.Before)
		if err != nil {
			return nil, err
		}
		var after *Type
		if v.After != nil {
			a, err := c.instantiateType(*v.After)
			if err != nil {
				return nil, err
			}
			after = &a
		}
		return RefMutType{Before: before, After: after}, nil
	case AndType:
		l, err := c.instantiateType(v.L)
		if err != nil {
			return nil, err
		}
		r, err := c.instantiateType(v.R)
		if err != nil {
			return nil, err
		}
		if c.Ctx != nil {
			return c.Ctx.Intersection(l, r), nil
		}
		return AndType{L: l, R: r}, nil
	case OrType:
		l, err := c.instantiateType(v.L)
		if err != nil {
			return nil, err
		}
		r, err := c.instantiateType(v.R)
		if err != nil {
			return nil, err
		}
		if c.Ctx != nil {
			return c.Ctx.Union(l, r), nil
		}
		return OrType{L: l, R: r}, nil
	case NotType:
		inner, err := c.instantiateType(v.Inner)
		if err != nil {
			return nil, err
		}
		if c.Ctx != nil {
			return c.Ctx.Complement(inner), nil
		}
		return NotType{Inner: inner}, nil
	case Structural:
		if c.StructuralInner {
			// Revisiting the same Structural cycle during one instantiation
			// pass: return it unexpanded rather than recursing forever.
			return v, nil
		}
		c.StructuralInner = true
		inner, err := c.instantiateType(v.Inner)
		c.StructuralInner = false
		if err != nil {
			return nil, err
		}
		return Structural{Inner: inner}, nil
	case TApp:
		args := make([]Type, len(v.Args))
		for i, a := range v.Args {
			na, err := c.instantiateType(a)
			if err != nil {
				return nil, err
			}
			args[i] = na
		}
		return TApp{Constructor: v.Constructor, Args: args, KindVal: v.KindVal}, nil
	case TTuple:
		elems := make([]Type, len(v.Elements))
		for i, e := range v.Elements {
			ne, err := c.instantiateType(e)
			if err != nil {
				return nil, err
			}
			elems[i] = ne
		}
		return TTuple{Elements: elems}, nil
	case TUnion:
		types := make([]Type, len(v.Types))
		for i, m := range v.Types {
			nm, err := c.instantiateType(m)
			if err != nil {
				return nil, err
			}
			types[i] = nm
		}
		return NormalizeUnion(types), nil
	default:
		// TVar/TCon/TRecord/TForall/TType and anything else without a
		// quantifier cell inside are returned unchanged: they carry no
		// NamedUnbound machinery for this engine to rewrite.
		return t, nil
	}
}

func (c *TyVarCache) instantiateFreeVar(fv FreeVar) (Type, error) {
	if fv.Cell.IsLinked() {
		inner, err := c.instantiateType(fv.Cell.Crack())
		if err != nil {
			return nil, err
		}
		return inner, nil
	}
	if !fv.Cell.IsNamed() {
		// An anonymous unbound cell observed mid-instantiation (e.g. a
		// dummy instantiation over a partially-solved Subr) is shared as-is.
		return fv, nil
	}
	name := fv.Cell.Name()
	// A name already registered in this cache — whether fully built or
	// still Uninited mid-construction (the self-referential-bound case,
	// S4) — always resolves to the SAME cell. Fixing up its constraint is
	// the job of the call that registered it (below), not of this lookup:
	// recomputing here would re-enter the same constraint instantiation
	// and recurse forever on a self-referential bound.
	if existing, ok := c.TyVarInstances[name]; ok {
		return existing, nil
	}
	if existing, ok := c.TyParamInstances[name]; ok {
		if tt, ok := existing.(TPType); ok {
			return tt.Typ, nil
		}
	}
	c.AlreadyAppeared[name] = true
	// Register before recursing into the constraint, so a self-reference
	// inside that constraint (handled by the branch above) aliases this
	// same cell instead of a separate copy — this is the cycle-break point.
	fresh := NewNamedFreeVarType(name, c.Level, Uninited)
	c.TyVarInstances[name] = fresh
	constraint, err := c.instantiateConstraint(fv.Cell.Constraint())
	if err != nil {
		return nil, err
	}
	fresh.Cell.UpdateConstraint(constraint, true)
	return fresh, nil
}

func (c *TyVarCache) instantiateConstraint(vc VarConstraint) (VarConstraint, error) {
	switch vc.Kind {
	case ConstraintSandwiched:
		sub, err := c.instantiateType(vc.Sub)
		if err != nil {
			return VarConstraint{}, err
		}
		sup, err := c.instantiateType(vc.Sup)
		if err != nil {
			return VarConstraint{}, err
		}
		return NewSandwiched(sub, sup), nil
	case ConstraintTypeOf:
		of, err := c.instantiateType(vc.Of)
		if err != nil {
			return VarConstraint{}, err
		}
		return NewTypeOf(of), nil
	default:
		return Uninited, nil
	}
}

func (c *TyVarCache) instantiateSubr(s Subr) (Type, error) {
	nd := make([]Param, len(s.NonDefault))
	for i, p := range s.NonDefault {
		t, err := c.instantiateType(p.Typ)
		if err != nil {
			return nil, err
		}
		nd[i] = Param{Name: p.Name, Typ: t}
	}
	var vp *Param
	if s.VarParams != nil {
		t, err := c.instantiateType(s.VarParams.Typ)
		if err != nil {
			return nil, err
		}
		vp = &Param{Name: s.VarParams.Name, Typ: t}
	}
	df := make([]Param, len(s.Default))
	for i, p := range s.Default {
		t, err := c.instantiateType(p.Typ)
		if err != nil {
			return nil, err
		}
		df[i] = Param{Name: p.Name, Typ: t}
	}
	ret, err := c.instantiateType(s.Return)
	if err != nil {
		return nil, err
	}
	return Subr{SubrKind: s.SubrKind, NonDefault: nd, VarParams: vp, Default: df, Return: ret}, nil
}

func (c *TyVarCache) instantiateTyParam(tp TyParam) (TyParam, error) {
	switch v := tp.(type) {
	case TPType:
		t, err := c.instantiateType(v.Typ)
		if err != nil {
			return nil, err
		}
		return TPType{Typ: t}, nil
	case TPFreeVar:
		inst, err := c.instantiateFreeVar(FreeVar{Cell: v.Cell})
		if err != nil {
			return nil, err
		}
		if fv, ok := inst.(FreeVar); ok {
			return TPFreeVar{Cell: fv.Cell}, nil
		}
		return TPType{Typ: inst}, nil
	case TPApp:
		args := make([]TyParam, len(v.Args))
		for i, a := range v.Args {
			na, err := c.instantiateTyParam(a)
			if err != nil {
				return nil, err
			}
			args[i] = na
		}
		return TPApp{Name: v.Name, Args: args}, nil
	case TPArray:
		elems, err := c.instantiateTyParams(v.Elems)
		if err != nil {
			return nil, err
		}
		return TPArray{Elems: elems}, nil
	case TPTuple:
		elems, err := c.instantiateTyParams(v.Elems)
		if err != nil {
			return nil, err
		}
		return TPTuple{Elems: elems}, nil
	case TPSet:
		elems, err := c.instantiateTyParams(v.Elems)
		if err != nil {
			return nil, err
		}
		return TPSet{Elems: elems}, nil
	case TPBinOp:
		l, err := c.instantiateTyParam(v.Lhs)
		if err != nil {
			return nil, err
		}
		r, err := c.instantiateTyParam(v.Rhs)
		if err != nil {
			return nil, err
		}
		return TPBinOp{Op: v.Op, Lhs: l, Rhs: r}, nil
	case TPUnaryOp:
		val, err := c.instantiateTyParam(v.Val)
		if err != nil {
			return nil, err
		}
		return TPUnaryOp{Op: v.Op, Val: val}, nil
	case TPProj:
		obj, err := c.instantiateTyParam(v.Obj)
		if err != nil {
			return nil, err
		}
		return TPProj{Obj: obj, Attr: v.Attr}, nil
	case TPProjCall:
		obj, err := c.instantiateTyParam(v.Obj)
		if err != nil {
			return nil, err
		}
		args, err := c.instantiateTyParams(v.Args)
		if err != nil {
			return nil, err
		}
		return TPProjCall{Obj: obj, Attr: v.Attr, Args: args}, nil
	case TPErased:
		t, err := c.instantiateType(v.Typ)
		if err != nil {
			return nil, err
		}
		return TPErased{Typ: t}, nil
	default:
		return tp, nil
	}
}

func (c *TyVarCache) instantiateTyParams(tps []TyParam) ([]TyParam, error) {
	out := make([]TyParam, len(tps))
	for i, tp := range tps {
		ntp, err := c.instantiateTyParam(tp)
		if err != nil {
			return nil, err
		}
		out[i] = ntp
	}
	return out, nil
}

func (c *TyVarCache) instantiatePred(p Predicate) (Predicate, error) {
	switch v := p.(type) {
	case PredEqual:
		l, r, err := c.instantiatePredOperands(v.Lhs, v.Rhs)
		if err != nil {
			return nil, err
		}
		return PredEqual{Lhs: l, Rhs: r}, nil
	case PredNotEqual:
		l, r, err := c.instantiatePredOperands(v.Lhs, v.Rhs)
		if err != nil {
			return nil, err
		}
		return PredNotEqual{Lhs: l, Rhs: r}, nil
	case PredLessEqual:
		l, r, err := c.instantiatePredOperands(v.Lhs, v.Rhs)
		if err != nil {
			return nil, err
		}
		return PredLessEqual{Lhs: l, Rhs: r}, nil
	case PredGreaterEqual:
		l, r, err := c.instantiatePredOperands(v.Lhs, v.Rhs)
		if err != nil {
			return nil, err
		}
		return PredGreaterEqual{Lhs: l, Rhs: r}, nil
	case PredAnd:
		l, err := c.instantiatePred(v.L)
		if err != nil {
			return nil, err
		}
		r, err := c.instantiatePred(v.R)
		if err != nil {
			return nil, err
		}
		return PredAnd{L: l, R: r}, nil
	case PredOr:
		l, err := c.instantiatePred(v.L)
		if err != nil {
			return nil, err
		}
		r, err := c.instantiatePred(v.R)
		if err != nil {
			return nil, err
		}
		return PredOr{L: l, R: r}, nil
	case PredNot:
		inner, err := c.instantiatePred(v.Inner)
		if err != nil {
			return nil, err
		}
		return PredNot{Inner: inner}, nil
	default:
		return p, nil
	}
}

func (c *TyVarCache) instantiatePredOperands(lhs, rhs TyParam) (TyParam, TyParam, error) {
	l, err := c.instantiateTyParam(lhs)
	if err != nil {
		return nil, nil, err
	}
	r, err := c.instantiateTyParam(rhs)
	if err != nil {
		return nil, nil, err
	}
	return l, r, nil
}
