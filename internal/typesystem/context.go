package typesystem

// SuperTypeCtx is one nominal super-type environment of a type: a handle to
// the constants and methods declared for it, consulted in lookup order by
// projection resolution (spec.md §4.6, §GLOSSARY "super-type context").
type SuperTypeCtx struct {
	Base       Type
	ParamNames []string
	Env        MethodEnv
}

// ImplEntry is one entry of a MethodEnv's methods list: a trait this
// context implements, together with the table of constants/methods it
// contributes.
type ImplEntry struct {
	ImplTrait Type
	Methods   MethodEnv
}

// MethodEnv is the constant/method table attached to one super-type
// context. GetConstLocal looks up a constant declared directly in this
// context; MethodsList enumerates the trait impls layered onto it.
type MethodEnv interface {
	GetConstLocal(symbol string) (ValueObj, bool)
	MethodsList() []ImplEntry
}

// Context is the narrow external-collaborator surface the core consumes
// for name/method lookup and type algebra (spec.md §4.6). The core never
// looks up names itself; it is handed a Context by the caller (the
// lowering driver, out of this core's scope).
type Context interface {
	// GetNominalSuperTypeCtxs returns t's nominal supertype environments in
	// lookup order, including t itself.
	GetNominalSuperTypeCtxs(t Type) []SuperTypeCtx
	// RecGetConstObj performs upward constant lookup through lexical scopes.
	RecGetConstObj(name string) (ValueObj, bool)
	// SubtypeOf, Intersection, Union, and Complement are the unifier and
	// type algebra; their algorithms are out of this core's scope.
	SubtypeOf(sub, sup Type) bool
	Intersection(l, r Type) Type
	Union(l, r Type) Type
	Complement(t Type) Type
	// SubUnify and SubUnifyTP perform one side of unification; SubstContext
	// calls these while substituting a projection's resolved quantifiers.
	SubUnify(sub, sup Type, loc Location) error
	SubUnifyTP(tp, other TyParam, loc Location) error
}
