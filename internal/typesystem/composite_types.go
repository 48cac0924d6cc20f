package typesystem

import (
	"fmt"
	"strings"
)

// LimitedFmt is the single display entry point that short-circuits with
// "…" once the depth budget is exhausted, protecting against stack blow-ups
// on cyclic types (spec.md §4.2, §5).
func LimitedFmt(t Type, depth int) string {
	if depth <= 0 {
		return "..."
	}
	switch v := t.(type) {
	case FreeVar:
		return v.limitedFmt(depth)
	case Refinement:
		return fmt.Sprintf("{%s: %s | %s}", v.VarName, LimitedFmt(v.Base, depth-1), limitedFmtPreds(v.Predicates, depth-1))
	case Quantified:
		return LimitedFmt(v.Inner, depth-1)
	case Poly:
		return v.limitedFmt(depth)
	case Proj:
		return fmt.Sprintf("%s.%s", LimitedFmt(v.Lhs, depth-1), v.Attr)
	case ProjCall:
		return fmt.Sprintf("%s.%s(...)", v.Lhs.String(), v.Attr)
	case RefType:
		return "Ref(" + LimitedFmt(v.Inner, depth-1) + ")"
	case RefMutType:
		if v.After != nil {
			return fmt.Sprintf("RefMut(%s => %s)", LimitedFmt(v.Before, depth-1), LimitedFmt(*v.After, depth-1))
		}
		return "RefMut(" + LimitedFmt(v.Before, depth-1) + "!)"
	case AndType:
		return LimitedFmt(v.L, depth-1) + " and " + LimitedFmt(v.R, depth-1)
	case OrType:
		return LimitedFmt(v.L, depth-1) + " or " + LimitedFmt(v.R, depth-1)
	case NotType:
		return "not " + LimitedFmt(v.Inner, depth-1)
	case Structural:
		return "Structural(" + LimitedFmt(v.Inner, depth-1) + ")"
	case Subr:
		return v.limitedFmt(depth)
	default:
		if t == nil {
			return "<nil>"
		}
		return t.String()
	}
}

func limitedFmtPreds(preds []Predicate, depth int) string {
	parts := make([]string, len(preds))
	for i, p := range preds {
		parts[i] = p.limitedFmt(depth)
	}
	return strings.Join(parts, "; ")
}

// Refinement is a type of the form {x: T | P(x), …}.
type Refinement struct {
	VarName    string
	Base       Type
	Predicates []Predicate
}

func (r Refinement) String() string { return LimitedFmt(r, 10) }
func (r Refinement) Apply(s Subst) Type {
	return Refinement{VarName: r.VarName, Base: r.Base.Apply(s), Predicates: r.Predicates}
}
func (r Refinement) FreeTypeVariables() []TVar { return r.Base.FreeTypeVariables() }
func (r Refinement) Kind() Kind                { return Star }

// Subr is a function/procedure type: non-default params, an optional
// variadic tail, defaulted params, and a return type.
type SubrKind int

const (
	SubrFunc SubrKind = iota
	SubrProc
)

type Param struct {
	Name string
	Typ  Type
}

type Subr struct {
	SubrKind   SubrKind
	NonDefault []Param
	VarParams  *Param
	Default    []Param
	Return     Type
}

func (s Subr) limitedFmt(depth int) string {
	parts := make([]string, 0, len(s.NonDefault)+len(s.Default)+1)
	for _, p := range s.NonDefault {
		parts = append(parts, LimitedFmt(p.Typ, depth-1))
	}
	if s.VarParams != nil {
		parts = append(parts, "..."+LimitedFmt(s.VarParams.Typ, depth-1))
	}
	for _, p := range s.Default {
		parts = append(parts, LimitedFmt(p.Typ, depth-1)+"?")
	}
	arrow := "->"
	if s.SubrKind == SubrProc {
		arrow = "=>"
	}
	return fmt.Sprintf("(%s) %s %s", strings.Join(parts, ", "), arrow, LimitedFmt(s.Return, depth-1))
}

func (s Subr) String() string { return s.limitedFmt(10) }
func (s Subr) Apply(subst Subst) Type {
	nd := make([]Param, len(s.NonDefault))
	for i, p := range s.NonDefault {
		nd[i] = Param{Name: p.Name, Typ: p.Typ.Apply(subst)}
	}
	var vp *Param
	if s.VarParams != nil {
		vp = &Param{Name: s.VarParams.Name, Typ: s.VarParams.Typ.Apply(subst)}
	}
	df := make([]Param, len(s.Default))
	for i, p := range s.Default {
		df[i] = Param{Name: p.Name, Typ: p.Typ.Apply(subst)}
	}
	return Subr{SubrKind: s.SubrKind, NonDefault: nd, VarParams: vp, Default: df, Return: s.Return.Apply(subst)}
}
func (s Subr) FreeTypeVariables() []TVar {
	vars := []TVar{}
	for _, p := range s.NonDefault {
		vars = append(vars, p.Typ.FreeTypeVariables()...)
	}
	if s.VarParams != nil {
		vars = append(vars, s.VarParams.Typ.FreeTypeVariables()...)
	}
	for _, p := range s.Default {
		vars = append(vars, p.Typ.FreeTypeVariables()...)
	}
	vars = append(vars, s.Return.FreeTypeVariables()...)
	return uniqueTVars(vars)
}
func (s Subr) Kind() Kind { return Star }

// Quantified is the universal (rank-1) wrapper over a Subr whose quantifier
// variables are NamedUnbound free-var cells reachable from Inner. Per
// spec.md §4.4, a Quantified may not appear nested inside another type.
type Quantified struct {
	Inner Type // must be a Subr
}

func (q Quantified) String() string { return LimitedFmt(q, 10) }
func (q Quantified) Apply(s Subst) Type {
	return Quantified{Inner: q.Inner.Apply(s)}
}
func (q Quantified) FreeTypeVariables() []TVar { return q.Inner.FreeTypeVariables() }
func (q Quantified) Kind() Kind                { return Star }

// Poly is an applied type constructor, e.g. Array(Int, 3).
type Poly struct {
	Name   string
	Params []TyParam
}

func (p Poly) limitedFmt(depth int) string {
	if len(p.Params) == 0 {
		return p.Name
	}
	parts := make([]string, len(p.Params))
	for i, tp := range p.Params {
		parts[i] = tp.String()
	}
	return fmt.Sprintf("%s(%s)", p.Name, strings.Join(parts, ", "))
}
func (p Poly) String() string { return p.limitedFmt(10) }
func (p Poly) Apply(s Subst) Type {
	// Poly's params are TyParams, which do not participate in the legacy
	// Subst mechanism; only a nested Type inside a TPType param is rewritten.
	params := make([]TyParam, len(p.Params))
	for i, tp := range p.Params {
		if tt, ok := tp.(TPType); ok {
			params[i] = TPType{Typ: tt.Typ.Apply(s)}
		} else {
			params[i] = tp
		}
	}
	return Poly{Name: p.Name, Params: params}
}
func (p Poly) FreeTypeVariables() []TVar {
	vars := []TVar{}
	for _, tp := range p.Params {
		if tt, ok := tp.(TPType); ok {
			vars = append(vars, tt.Typ.FreeTypeVariables()...)
		}
	}
	return uniqueTVars(vars)
}
func (p Poly) Kind() Kind {
	k, ok := builtinKinds[p.Name]
	if !ok {
		return Star
	}
	for range p.Params {
		if arrow, ok := k.(KArrow); ok {
			k = arrow.Right
		} else {
			return Star
		}
	}
	return k
}

// Proj is a projection type T.Attr, resolved by searching T's nominal
// super-type environments for a declaration named Attr.
type Proj struct {
	Lhs  Type
	Attr string
}

func (p Proj) String() string { return LimitedFmt(p, 10) }
func (p Proj) Apply(s Subst) Type {
	return Proj{Lhs: p.Lhs.Apply(s), Attr: p.Attr}
}
func (p Proj) FreeTypeVariables() []TVar { return p.Lhs.FreeTypeVariables() }
func (p Proj) Kind() Kind                { return Star }

// ProjCall is a method-style projection on a term, e.g. n.Output(m).
type ProjCall struct {
	Lhs  TyParam
	Attr string
	Args []TyParam
}

func (p ProjCall) String() string { return LimitedFmt(p, 10) }
func (p ProjCall) Apply(s Subst) Type { return p }
func (p ProjCall) FreeTypeVariables() []TVar { return nil }
func (p ProjCall) Kind() Kind                { return Star }

// RefType is an immutable reference view of a type.
type RefType struct{ Inner Type }

func (r RefType) String() string               { return LimitedFmt(r, 10) }
func (r RefType) Apply(s Subst) Type            { return RefType{Inner: r.Inner.Apply(s)} }
func (r RefType) FreeTypeVariables() []TVar     { return r.Inner.FreeTypeVariables() }
func (r RefType) Kind() Kind                    { return Star }

// RefMutType is a mutable reference view, optionally tracking the type
// After a mutation (e.g. `push!` on an array changes its length parameter).
type RefMutType struct {
	Before Type
	After  *Type
}

func (r RefMutType) String() string { return LimitedFmt(r, 10) }
func (r RefMutType) Apply(s Subst) Type {
	var after *Type
	if r.After != nil {
		a := (*r.After).Apply(s)
		after = &a
	}
	return RefMutType{Before: r.Before.Apply(s), After: after}
}
func (r RefMutType) FreeTypeVariables() []TVar {
	vars := r.Before.FreeTypeVariables()
	if r.After != nil {
		vars = append(vars, (*r.After).FreeTypeVariables()...)
	}
	return uniqueTVars(vars)
}
func (r RefMutType) Kind() Kind { return Star }

// AndType is an intersection of two types.
type AndType struct{ L, R Type }

func (a AndType) String() string           { return LimitedFmt(a, 10) }
func (a AndType) Apply(s Subst) Type        { return AndType{L: a.L.Apply(s), R: a.R.Apply(s)} }
func (a AndType) FreeTypeVariables() []TVar { return uniqueTVars(append(a.L.FreeTypeVariables(), a.R.FreeTypeVariables()...)) }
func (a AndType) Kind() Kind                { return Star }

// OrType is a union of two types (distinct from the legacy TUnion, which
// normalizes a flat N-ary set; OrType composes pairwise during evaluation
// of `And`/`Or`/`Not` type-parameter expressions).
type OrType struct{ L, R Type }

func (o OrType) String() string           { return LimitedFmt(o, 10) }
func (o OrType) Apply(s Subst) Type        { return OrType{L: o.L.Apply(s), R: o.R.Apply(s)} }
func (o OrType) FreeTypeVariables() []TVar { return uniqueTVars(append(o.L.FreeTypeVariables(), o.R.FreeTypeVariables()...)) }
func (o OrType) Kind() Kind                { return Star }

// NotType is the complement of a type.
type NotType struct{ Inner Type }

func (n NotType) String() string           { return LimitedFmt(n, 10) }
func (n NotType) Apply(s Subst) Type        { return NotType{Inner: n.Inner.Apply(s)} }
func (n NotType) FreeTypeVariables() []TVar { return n.Inner.FreeTypeVariables() }
func (n NotType) Kind() Kind                { return Star }

// Structural wraps a type to mark it as compared by shape rather than by
// name; it is the only legitimate producer of genuine self-reference
// (spec.md §3, GLOSSARY).
type Structural struct{ Inner Type }

func (s Structural) String() string { return LimitedFmt(s, 10) }
func (s Structural) Apply(subst Subst) Type {
	return Structural{Inner: s.Inner.Apply(subst)}
}
func (s Structural) FreeTypeVariables() []TVar { return s.Inner.FreeTypeVariables() }
func (s Structural) Kind() Kind                { return Star }

// Structuralize returns the type unwrapped from a Structural cycle-break
// point, used by the instantiation engine when it revisits a Structural it
// has already entered (spec.md §4.4).
func (s Structural) Structuralize() Type { return s }
