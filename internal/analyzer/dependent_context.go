package analyzer

import (
	"github.com/funvibe/funxy/internal/symbols"
	"github.com/funvibe/funxy/internal/typesystem"
)

// symbolTableContext adapts a *symbols.SymbolTable to typesystem.Context, so
// the constant evaluator / projection resolver (typesystem.EvalTParams) can
// walk trait implementations already registered in the symbol table when
// resolving an associated-type projection such as C.Out.
type symbolTableContext struct {
	table *symbols.SymbolTable
}

func newSymbolTableContext(table *symbols.SymbolTable) *symbolTableContext {
	return &symbolTableContext{table: table}
}

func (c *symbolTableContext) GetNominalSuperTypeCtxs(t typesystem.Type) []typesystem.SuperTypeCtx {
	name := dependentTypeConstructorName(t)
	if name == "" {
		return nil
	}
	var ctxs []typesystem.SuperTypeCtx
	for traitName, impls := range c.table.GetAllImplementations() {
		for _, impl := range impls {
			if len(impl.TargetTypes) == 0 {
				continue
			}
			if dependentTypeConstructorName(impl.TargetTypes[0]) != name {
				continue
			}
			ctxs = append(ctxs, typesystem.SuperTypeCtx{
				Base: t,
				Env:  &instanceMethodEnv{table: c.table, traitName: traitName, typeName: name},
			})
		}
	}
	return ctxs
}

func (c *symbolTableContext) RecGetConstObj(name string) (typesystem.ValueObj, bool) {
	return nil, false
}

func (c *symbolTableContext) SubtypeOf(sub, sup typesystem.Type) bool {
	traitName := dependentTypeConstructorName(sup)
	if traitName == "" {
		return false
	}
	return c.table.IsImplementationExists(traitName, []typesystem.Type{sub})
}

func (c *symbolTableContext) Intersection(l, r typesystem.Type) typesystem.Type {
	return typesystem.AndType{L: l, R: r}
}

func (c *symbolTableContext) Union(l, r typesystem.Type) typesystem.Type {
	return typesystem.OrType{L: l, R: r}
}

func (c *symbolTableContext) Complement(t typesystem.Type) typesystem.Type {
	return typesystem.NotType{Inner: t}
}

func (c *symbolTableContext) SubUnify(sub, sup typesystem.Type, loc typesystem.Location) error {
	_, err := typesystem.UnifyAllowExtraWithResolver(sub, sup, c.table)
	return err
}

func (c *symbolTableContext) SubUnifyTP(tp, other typesystem.TyParam, loc typesystem.Location) error {
	return nil
}

// instanceMethodEnv exposes one trait implementation's registered methods
// (including associated-type constants stored via RegisterInstanceMethod)
// as a typesystem.MethodEnv.
type instanceMethodEnv struct {
	table     *symbols.SymbolTable
	traitName string
	typeName  string
}

func (m *instanceMethodEnv) GetConstLocal(symbol string) (typesystem.ValueObj, bool) {
	t, ok := m.table.GetInstanceMethodType(m.traitName, m.typeName, symbol)
	if !ok {
		return nil, false
	}
	return typesystem.VOType{Typ: t}, true
}

func (m *instanceMethodEnv) MethodsList() []typesystem.ImplEntry { return nil }

func dependentTypeConstructorName(t typesystem.Type) string {
	switch tt := t.(type) {
	case typesystem.TCon:
		return tt.Name
	case typesystem.TApp:
		return dependentTypeConstructorName(tt.Constructor)
	case typesystem.Poly:
		return tt.Name
	default:
		return ""
	}
}

// ResolveAssociatedType resolves a trait associated-type projection (e.g.
// Container.Out for an instance registered as
// RegisterInstanceMethod("Container", "Option", "Out", ...)) against table's
// registered trait implementations, through the shared projection resolver.
// Returns the unresolved projection type unchanged if no implementation
// supplies attr (spec.md §8 S6's "unresolved projection is preserved").
func ResolveAssociatedType(base typesystem.Type, attr string, table *symbols.SymbolTable) typesystem.Type {
	proj := typesystem.Proj{Lhs: base, Attr: attr}
	return typesystem.EvalTParams(proj, newSymbolTableContext(table))
}

// ResolveEmbeddedAssociatedTypes walks t and resolves every Container.Out
// style projection found inside it through ResolveAssociatedType, so a
// registered instance method signature that names an associated type in
// its own shape (e.g. a method returning Self.Out) is stored already
// resolved rather than carrying an unresolved Proj forward into inference.
// Called from declarations_instances.go/declarations_instances_methods.go
// right after RegisterInstanceMethod; a signature with no embedded
// projection round-trips unchanged.
func ResolveEmbeddedAssociatedTypes(t typesystem.Type, table *symbols.SymbolTable) typesystem.Type {
	switch v := t.(type) {
	case typesystem.Proj:
		lhs := ResolveEmbeddedAssociatedTypes(v.Lhs, table)
		return ResolveAssociatedType(lhs, v.Attr, table)
	case typesystem.Subr:
		nd := make([]typesystem.Param, len(v.NonDefault))
		for i, p := range v.NonDefault {
			nd[i] = typesystem.Param{Name: p.Name, Typ: ResolveEmbeddedAssociatedTypes(p.Typ, table)}
		}
		var vp *typesystem.Param
		if v.VarParams != nil {
			vp = &typesystem.Param{Name: v.VarParams.Name, Typ: ResolveEmbeddedAssociatedTypes(v.VarParams.Typ, table)}
		}
		df := make([]typesystem.Param, len(v.Default))
		for i, p := range v.Default {
			df[i] = typesystem.Param{Name: p.Name, Typ: ResolveEmbeddedAssociatedTypes(p.Typ, table)}
		}
		ret := ResolveEmbeddedAssociatedTypes(v.Return, table)
		return typesystem.Subr{SubrKind: v.SubrKind, NonDefault: nd, VarParams: vp, Default: df, Return: ret}
	case typesystem.TApp:
		args := make([]typesystem.Type, len(v.Args))
		for i, a := range v.Args {
			args[i] = ResolveEmbeddedAssociatedTypes(a, table)
		}
		return typesystem.TApp{Constructor: v.Constructor, Args: args, KindVal: v.KindVal}
	case typesystem.TTuple:
		elems := make([]typesystem.Type, len(v.Elements))
		for i, e := range v.Elements {
			elems[i] = ResolveEmbeddedAssociatedTypes(e, table)
		}
		return typesystem.TTuple{Elements: elems}
	case typesystem.AndType:
		return typesystem.AndType{L: ResolveEmbeddedAssociatedTypes(v.L, table), R: ResolveEmbeddedAssociatedTypes(v.R, table)}
	case typesystem.OrType:
		return typesystem.OrType{L: ResolveEmbeddedAssociatedTypes(v.L, table), R: ResolveEmbeddedAssociatedTypes(v.R, table)}
	case typesystem.NotType:
		return typesystem.NotType{Inner: ResolveEmbeddedAssociatedTypes(v.Inner, table)}
	case typesystem.RefType:
		return typesystem.RefType{Inner: ResolveEmbeddedAssociatedTypes(v.Inner, table)}
	default:
		return t
	}
}
