package typesystem

// EvalBinTP evaluates a binary TyParam operator node (spec.md §4.5(b)):
// both sides Value delegates to ValueObj arithmetic; either side Erased
// makes the erased side the result; a linked FreeVar is followed and
// retried; otherwise the node is left symbolic.
func EvalBinTP(op OpKind, lhs, rhs TyParam) TyParam {
	if fv, ok := lhs.(TPFreeVar); ok && fv.Cell.IsLinked() {
		return EvalBinTP(op, TPType{Typ: fv.Cell.Crack()}, rhs)
	}
	if fv, ok := rhs.(TPFreeVar); ok && fv.Cell.IsLinked() {
		return EvalBinTP(op, lhs, TPType{Typ: fv.Cell.Crack()})
	}
	if er, ok := lhs.(TPErased); ok {
		return er
	}
	if er, ok := rhs.(TPErased); ok {
		return er
	}
	lv, lok := lhs.(TPValue)
	rv, rok := rhs.(TPValue)
	if lok && rok {
		if res, ok := evalValueBinOp(op, lv.Val, rv.Val); ok {
			return TPValue{Val: res}
		}
		return TPValue{Val: VOIllegal{Reason: "operator " + op.String() + " not defined for these operands"}}
	}
	return TPBinOp{Op: op, Lhs: lhs, Rhs: rhs}
}

// EvalUnaryTP is the unary counterpart of EvalBinTP.
func EvalUnaryTP(op OpKind, val TyParam) TyParam {
	if fv, ok := val.(TPFreeVar); ok && fv.Cell.IsLinked() {
		return EvalUnaryTP(op, TPType{Typ: fv.Cell.Crack()})
	}
	if er, ok := val.(TPErased); ok {
		return er
	}
	if v, ok := val.(TPValue); ok {
		if res, ok := evalValueUnaryOp(op, v.Val); ok {
			return TPValue{Val: res}
		}
		return TPValue{Val: VOIllegal{Reason: "unary operator " + op.String() + " not defined for this operand"}}
	}
	return TPUnaryOp{Op: op, Val: val}
}

func evalValueBinOp(op OpKind, l, r ValueObj) (ValueObj, bool) {
	switch op {
	case OpAdd:
		return TryAdd(l, r)
	case OpSub:
		return TrySub(l, r)
	case OpMul:
		return TryMul(l, r)
	case OpDiv:
		return TryDiv(l, r)
	case OpFloorDiv:
		res, ok := TryDiv(l, r)
		if !ok {
			return nil, false
		}
		f, ok := res.(VOFloat)
		if !ok {
			return res, true
		}
		return VOInt{int64(f.Value)}, true
	case OpMod:
		lf, lok := toFloat(l)
		rf, rok := toFloat(r)
		if !lok || !rok || rf == 0 {
			return nil, false
		}
		lv, rv := int64(lf), int64(rf)
		return VOInt{lv % rv}, true
	case OpGt:
		cmp, ok := TryCmp(l, r)
		return VOBool{cmp > 0}, ok
	case OpLt:
		cmp, ok := TryCmp(l, r)
		return VOBool{cmp < 0}, ok
	case OpGe:
		cmp, ok := TryCmp(l, r)
		return VOBool{cmp >= 0}, ok
	case OpLe:
		cmp, ok := TryCmp(l, r)
		return VOBool{cmp <= 0}, ok
	case OpEq:
		cmp, ok := TryCmp(l, r)
		return VOBool{ok && cmp == 0}, true
	case OpNe:
		cmp, ok := TryCmp(l, r)
		return VOBool{!ok || cmp != 0}, true
	case OpAnd:
		lb, lok := l.(VOBool)
		rb, rok := r.(VOBool)
		if !lok || !rok {
			return nil, false
		}
		return VOBool{lb.Value && rb.Value}, true
	case OpOr:
		lb, lok := l.(VOBool)
		rb, rok := r.(VOBool)
		if !lok || !rok {
			return nil, false
		}
		return VOBool{lb.Value || rb.Value}, true
	default:
		return nil, false
	}
}

func evalValueUnaryOp(op OpKind, v ValueObj) (ValueObj, bool) {
	switch op {
	case OpNeg:
		switch vv := v.(type) {
		case VOInt:
			return VOInt{-vv.Value}, true
		case VONat:
			return VOInt{-int64(vv.Value)}, true
		case VOFloat:
			return VOFloat{-vv.Value}, true
		case VOInf:
			return VONegInf{}, true
		case VONegInf:
			return VOInf{}, true
		}
	case OpPos:
		return v, true
	case OpInvert:
		if b, ok := v.(VOBool); ok {
			return VOBool{!b.Value}, true
		}
	}
	return nil, false
}

// EvalTP recursively evaluates a TyParam tree, folding BinOp/UnaryOp nodes
// bottom-up. Idempotent on any input that contains no projection (spec.md
// §8 "evaluator idempotence").
func EvalTP(tp TyParam) TyParam {
	switch v := tp.(type) {
	case TPBinOp:
		return EvalBinTP(v.Op, EvalTP(v.Lhs), EvalTP(v.Rhs))
	case TPUnaryOp:
		return EvalUnaryTP(v.Op, EvalTP(v.Val))
	case TPFreeVar:
		if v.Cell.IsLinked() {
			var result TyParam
			DoAvoidingRecursion(v.Cell, func() {
				result = EvalTP(TPType{Typ: v.Cell.Crack()})
			})
			if result != nil {
				return result
			}
			return v
		}
		return v
	case TPApp:
		args := make([]TyParam, len(v.Args))
		for i, a := range v.Args {
			args[i] = EvalTP(a)
		}
		return TPApp{Name: v.Name, Args: args}
	case TPArray:
		return TPArray{Elems: evalTPs(v.Elems)}
	case TPTuple:
		return TPTuple{Elems: evalTPs(v.Elems)}
	case TPSet:
		return TPSet{Elems: evalTPs(v.Elems)}
	case TPType:
		return TPType{Typ: EvalTParams(v.Typ, nil)}
	default:
		return tp
	}
}

func evalTPs(tps []TyParam) []TyParam {
	out := make([]TyParam, len(tps))
	for i, tp := range tps {
		out[i] = EvalTP(tp)
	}
	return out
}

// EvalPred rewrites a predicate by evaluating each TyParam it contains,
// preserving its boolean structure (spec.md §4.5 eval_pred).
func EvalPred(p Predicate) Predicate {
	switch v := p.(type) {
	case PredEqual:
		return PredEqual{Lhs: EvalTP(v.Lhs), Rhs: EvalTP(v.Rhs)}
	case PredNotEqual:
		return PredNotEqual{Lhs: EvalTP(v.Lhs), Rhs: EvalTP(v.Rhs)}
	case PredLessEqual:
		return PredLessEqual{Lhs: EvalTP(v.Lhs), Rhs: EvalTP(v.Rhs)}
	case PredGreaterEqual:
		return PredGreaterEqual{Lhs: EvalTP(v.Lhs), Rhs: EvalTP(v.Rhs)}
	case PredAnd:
		return PredAnd{L: EvalPred(v.L), R: EvalPred(v.R)}
	case PredOr:
		return PredOr{L: EvalPred(v.L), R: EvalPred(v.R)}
	case PredNot:
		return PredNot{Inner: EvalPred(v.Inner)}
	default:
		return p
	}
}

// EvalTParams recursively rewrites t by evaluating each embedded TyParam
// and resolving Proj{lhs,attr} nodes against ctx (spec.md §4.5(c)). A nil
// ctx degrades projection resolution to a no-op (the projection is left
// unchanged, matching S6's "unresolved projection is preserved").
func EvalTParams(t Type, ctx Context) Type {
	switch v := t.(type) {
	case FreeVar:
		if !v.Cell.IsLinked() {
			return v
		}
		var result Type
		DoAvoidingRecursion(v.Cell, func() {
			result = EvalTParams(v.Cell.Crack(), ctx)
		})
		if result == nil {
			return v
		}
		return result
	case Refinement:
		base := EvalTParams(v.Base, ctx)
		preds := make([]Predicate, len(v.Predicates))
		for i, p := range v.Predicates {
			preds[i] = EvalPred(p)
		}
		return Refinement{VarName: v.VarName, Base: base, Predicates: preds}
	case Subr:
		nd := make([]Param, len(v.NonDefault))
		for i, p := range v.NonDefault {
			nd[i] = Param{Name: p.Name, Typ: EvalTParams(p.Typ, ctx)}
		}
		var vp *Param
		if v.VarParams != nil {
			vp = &Param{Name: v.VarParams.Name, Typ: EvalTParams(v.VarParams.Typ, ctx)}
		}
		df := make([]Param, len(v.Default))
		for i, p := range v.Default {
			df[i] = Param{Name: p.Name, Typ: EvalTParams(p.Typ, ctx)}
		}
		return Subr{SubrKind: v.SubrKind, NonDefault: nd, VarParams: vp, Default: df, Return: EvalTParams(v.Return, ctx)}
	case Poly:
		params := make([]TyParam, len(v.Params))
		for i, p := range v.Params {
			params[i] = EvalTP(p)
		}
		return Poly{Name: v.Name, Params: params}
	case Proj:
		return resolveProj(v, ctx)
	case RefType:
		return RefType{Inner: EvalTParams(v.Inner, ctx)}
	case RefMutType:
		before := EvalTParams(v.Before, ctx)
		var after *Type
		if v.After != nil {
			a := EvalTParams(*v.After, ctx)
			after = &a
		}
		return RefMutType{Before: before, After: after}
	case AndType:
		l := EvalTParams(v.L, ctx)
		r := EvalTParams(v.R, ctx)
		if ctx != nil {
			return ctx.Intersection(l, r)
		}
		return AndType{L: l, R: r}
	case OrType:
		l := EvalTParams(v.L, ctx)
		r := EvalTParams(v.R, ctx)
		if ctx != nil {
			return ctx.Union(l, r)
		}
		return OrType{L: l, R: r}
	case NotType:
		inner := EvalTParams(v.Inner, ctx)
		if ctx != nil {
			return ctx.Complement(inner)
		}
		return NotType{Inner: inner}
	case Structural:
		return v
	case TApp:
		args := make([]Type, len(v.Args))
		for i, a := range v.Args {
			args[i] = EvalTParams(a, ctx)
		}
		return TApp{Constructor: v.Constructor, Args: args, KindVal: v.KindVal}
	default:
		return t
	}
}

// resolveProj implements spec.md §4.5(c)'s projection resolution algorithm.
func resolveProj(p Proj, ctx Context) Type {
	sub, sup, hasSup := followForProjection(p.Lhs)
	if isNever(sub) {
		return p
	}
	if ctx == nil {
		return p
	}
	for _, sctx := range ctx.GetNominalSuperTypeCtxs(sub) {
		if sctx.Env == nil {
			continue
		}
		if val, ok := sctx.Env.GetConstLocal(p.Attr); ok {
			if quantT, ok := val.(VOType); ok {
				sc := NewSubstContext(sub, sctx.ParamNames)
				substituted := sc.Substitute(quantT.Typ, ctx)
				return EvalTParams(substituted, ctx)
			}
			continue
		}
		for _, impl := range sctx.Env.MethodsList() {
			matches := false
			if hasSup {
				matches = ctx.SubtypeOf(sup, impl.ImplTrait)
			} else {
				matches = ctx.SubtypeOf(sub, impl.ImplTrait)
			}
			if !matches || impl.Methods == nil {
				continue
			}
			if val, ok := impl.Methods.GetConstLocal(p.Attr); ok {
				if quantT, ok := val.(VOType); ok {
					sc := NewSubstContext(sub, sctx.ParamNames)
					substituted := sc.Substitute(quantT.Typ, ctx)
					return EvalTParams(substituted, ctx)
				}
			}
		}
	}
	return p
}

// followForProjection fully follows lhs through linked free variables,
// returning (sub, sup, hasSup) per spec.md §4.5(c) step 1.
func followForProjection(t Type) (Type, Type, bool) {
	for {
		fv, ok := t.(FreeVar)
		if !ok {
			return t, nil, false
		}
		if fv.Cell.IsLinked() {
			t = fv.Cell.Crack()
			continue
		}
		sub, sup, ok := fv.Cell.GetSubSup()
		if !ok {
			return t, nil, false
		}
		return sub, sup, true
	}
}

// SubstContext pairs a super-type context's declared formal parameters
// (positionally) with the actual type arguments drawn from sub's applied
// parameters, then substitutes those formals for the quantifier names they
// name inside a target type (spec.md §4.5 SubstContext construction).
type SubstContext struct {
	formals []string
	actuals []TyParam
}

// NewSubstContext builds the pairing described above: paramNames are the
// context's declared formal parameter names, read off sub's own applied
// parameters (Poly.Params / TApp.Args wrapped as TPType) positionally.
func NewSubstContext(sub Type, paramNames []string) *SubstContext {
	var actuals []TyParam
	switch v := sub.(type) {
	case Poly:
		actuals = v.Params
	case TApp:
		actuals = make([]TyParam, len(v.Args))
		for i, a := range v.Args {
			actuals[i] = TPType{Typ: a}
		}
	}
	n := len(paramNames)
	if len(actuals) < n {
		n = len(actuals)
	}
	return &SubstContext{formals: paramNames[:n], actuals: actuals[:n]}
}

// Substitute walks target and, for each free variable whose unbound name
// matches a formal, sub-unifies it with the paired actual, then returns
// target with those quantifier occurrences replaced by the actuals.
func (sc *SubstContext) Substitute(target Type, ctx Context) Type {
	lookup := make(map[string]TyParam, len(sc.formals))
	for i, name := range sc.formals {
		lookup[name] = sc.actuals[i]
	}
	return sc.substituteType(target, lookup, ctx)
}

func (sc *SubstContext) substituteType(t Type, lookup map[string]TyParam, ctx Context) Type {
	switch v := t.(type) {
	case FreeVar:
		if v.Cell.IsLinked() {
			return sc.substituteType(v.Cell.Crack(), lookup, ctx)
		}
		if v.Cell.IsNamed() {
			if actual, ok := lookup[v.Cell.Name()]; ok {
				if tt, ok := actual.(TPType); ok {
					if ctx != nil {
						_ = ctx.SubUnify(v, tt.Typ, Location{})
					}
					return tt.Typ
				}
			}
		}
		return v
	case Refinement:
		base := sc.substituteType(v.Base, lookup, ctx)
		preds := make([]Predicate, len(v.Predicates))
		for i, p := range v.Predicates {
			preds[i] = sc.substitutePred(p, lookup, ctx)
		}
		return Refinement{VarName: v.VarName, Base: base, Predicates: preds}
	case Subr:
		nd := make([]Param, len(v.NonDefault))
		for i, p := range v.NonDefault {
			nd[i] = Param{Name: p.Name, Typ: sc.substituteType(p.Typ, lookup, ctx)}
		}
		var vp *Param
		if v.VarParams != nil {
			vp = &Param{Name: v.VarParams.Name, Typ: sc.substituteType(v.VarParams.Typ, lookup, ctx)}
		}
		df := make([]Param, len(v.Default))
		for i, p := range v.Default {
			df[i] = Param{Name: p.Name, Typ: sc.substituteType(p.Typ, lookup, ctx)}
		}
		return Subr{SubrKind: v.SubrKind, NonDefault: nd, VarParams: vp, Default: df, Return: sc.substituteType(v.Return, lookup, ctx)}
	case Poly:
		params := make([]TyParam, len(v.Params))
		for i, p := range v.Params {
			params[i] = sc.substituteTyParam(p, lookup, ctx)
		}
		return Poly{Name: v.Name, Params: params}
	case Proj:
		return Proj{Lhs: sc.substituteType(v.Lhs, lookup, ctx), Attr: v.Attr}
	case RefType:
		return RefType{Inner: sc.substituteType(v.Inner, lookup, ctx)}
	case RefMutType:
		before := sc.substituteType(v.Before, lookup, ctx)
		var after *Type
		if v.After != nil {
			a := sc.substituteType(*v.After, lookup, ctx)
			after = &a
		}
		return RefMutType{Before: before, After: after}
	case AndType:
		return AndType{L: sc.substituteType(v.L, lookup, ctx), R: sc.substituteType(v.R, lookup, ctx)}
	case OrType:
		return OrType{L: sc.substituteType(v.L, lookup, ctx), R: sc.substituteType(v.R, lookup, ctx)}
	case NotType:
		return NotType{Inner: sc.substituteType(v.Inner, lookup, ctx)}
	case TApp:
		args := make([]Type, len(v.Args))
		for i, a := range v.Args {
			args[i] = sc.substituteType(a, lookup, ctx)
		}
		return TApp{Constructor: v.Constructor, Args: args, KindVal: v.KindVal}
	default:
		return t
	}
}

func (sc *SubstContext) substituteTyParam(tp TyParam, lookup map[string]TyParam, ctx Context) TyParam {
	switch v := tp.(type) {
	case TPType:
		return TPType{Typ: sc.substituteType(v.Typ, lookup, ctx)}
	case TPFreeVar:
		if v.Cell.IsNamed() {
			if actual, ok := lookup[v.Cell.Name()]; ok {
				if ctx != nil {
					_ = ctx.SubUnifyTP(v, actual, Location{})
				}
				return actual
			}
		}
		return v
	case TPApp:
		args := make([]TyParam, len(v.Args))
		for i, a := range v.Args {
			args[i] = sc.substituteTyParam(a, lookup, ctx)
		}
		return TPApp{Name: v.Name, Args: args}
	case TPBinOp:
		return TPBinOp{Op: v.Op, Lhs: sc.substituteTyParam(v.Lhs, lookup, ctx), Rhs: sc.substituteTyParam(v.Rhs, lookup, ctx)}
	case TPUnaryOp:
		return TPUnaryOp{Op: v.Op, Val: sc.substituteTyParam(v.Val, lookup, ctx)}
	default:
		return tp
	}
}

func (sc *SubstContext) substitutePred(p Predicate, lookup map[string]TyParam, ctx Context) Predicate {
	switch v := p.(type) {
	case PredEqual:
		return PredEqual{Lhs: sc.substituteTyParam(v.Lhs, lookup, ctx), Rhs: sc.substituteTyParam(v.Rhs, lookup, ctx)}
	case PredNotEqual:
		return PredNotEqual{Lhs: sc.substituteTyParam(v.Lhs, lookup, ctx), Rhs: sc.substituteTyParam(v.Rhs, lookup, ctx)}
	case PredLessEqual:
		return PredLessEqual{Lhs: sc.substituteTyParam(v.Lhs, lookup, ctx), Rhs: sc.substituteTyParam(v.Rhs, lookup, ctx)}
	case PredGreaterEqual:
		return PredGreaterEqual{Lhs: sc.substituteTyParam(v.Lhs, lookup, ctx), Rhs: sc.substituteTyParam(v.Rhs, lookup, ctx)}
	case PredAnd:
		return PredAnd{L: sc.substitutePred(v.L, lookup, ctx), R: sc.substitutePred(v.R, lookup, ctx)}
	case PredOr:
		return PredOr{L: sc.substitutePred(v.L, lookup, ctx), R: sc.substitutePred(v.R, lookup, ctx)}
	case PredNot:
		return PredNot{Inner: sc.substitutePred(v.Inner, lookup, ctx)}
	default:
		return p
	}
}
