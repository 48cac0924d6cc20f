package typesystem

// ConstraintKind tags the shape of a VarConstraint.
type ConstraintKind int

const (
	// ConstraintSandwiched means sub <: ? <: sup.
	ConstraintSandwiched ConstraintKind = iota
	// ConstraintTypeOf means the variable's value inhabits a type (term-level params).
	ConstraintTypeOf
	// ConstraintUninited is a placeholder inserted during cyclic construction.
	ConstraintUninited
)

// NeverType and ObjType are the bottom and top of the nominal lattice;
// Sandwiched{Never, Obj} is the canonical "must be a type" constraint.
var (
	NeverType Type = TCon{Name: "Never"}
	ObjType   Type = TCon{Name: "Obj"}
)

// VarConstraint is the bound carried by a free-variable cell: either a
// sandwiched sub/sup range, a TypeOf bound for term-level parameters, or
// the Uninited placeholder used while building cyclic constraints.
type VarConstraint struct {
	Kind ConstraintKind
	Sub  Type // valid when Kind == ConstraintSandwiched
	Sup  Type // valid when Kind == ConstraintSandwiched
	Of   Type // valid when Kind == ConstraintTypeOf
}

// NewSandwiched builds a :> sub, <: sup constraint.
func NewSandwiched(sub, sup Type) VarConstraint {
	return VarConstraint{Kind: ConstraintSandwiched, Sub: sub, Sup: sup}
}

// NewTypeOf builds a : t constraint, coalescing TypeOf(Type) into the
// canonical Sandwiched{Never, Obj} form so "is a type" has one shape.
func NewTypeOf(t Type) VarConstraint {
	if tc, ok := t.(TCon); ok && tc.Name == "Type" {
		return NewSandwiched(NeverType, ObjType)
	}
	return VarConstraint{Kind: ConstraintTypeOf, Of: t}
}

// NewSubtypeOf builds a <: sup constraint (sub defaults to Never).
func NewSubtypeOf(sup Type) VarConstraint { return NewSandwiched(NeverType, sup) }

// NewSupertypeOf builds a :> sub constraint (sup defaults to Obj).
func NewSupertypeOf(sub Type) VarConstraint { return NewSandwiched(sub, ObjType) }

// Uninited is the placeholder constraint used during cyclic construction.
var Uninited = VarConstraint{Kind: ConstraintUninited}

func (vc VarConstraint) IsUninited() bool { return vc.Kind == ConstraintUninited }

// GetSub returns the sub bound, if this is a Sandwiched constraint.
func (vc VarConstraint) GetSub() (Type, bool) {
	if vc.Kind == ConstraintSandwiched {
		return vc.Sub, true
	}
	return nil, false
}

// GetSuper returns the sup bound, if this is a Sandwiched constraint.
func (vc VarConstraint) GetSuper() (Type, bool) {
	if vc.Kind == ConstraintSandwiched {
		return vc.Sup, true
	}
	return nil, false
}

// GetSubSup returns both bounds at once.
func (vc VarConstraint) GetSubSup() (Type, Type, bool) {
	if vc.Kind == ConstraintSandwiched {
		return vc.Sub, vc.Sup, true
	}
	return nil, nil, false
}

// GetType reads the constraint as a type bound: either an explicit TypeOf,
// or the canonical Sandwiched{Never, Obj} "is a type" shape.
func (vc VarConstraint) GetType() (Type, bool) {
	switch vc.Kind {
	case ConstraintTypeOf:
		return vc.Of, true
	case ConstraintSandwiched:
		if isNever(vc.Sub) && isObj(vc.Sup) {
			return TCon{Name: "Type"}, true
		}
	}
	return nil, false
}

// SetSuper mutates the sup bound of a Sandwiched constraint in place; used
// by the instantiation engine's Uninited fix-up step.
func (vc *VarConstraint) SetSuper(sup Type) {
	if vc.Kind == ConstraintSandwiched {
		vc.Sup = sup
	}
}

// SetSub mutates the sub bound of a Sandwiched constraint in place.
func (vc *VarConstraint) SetSub(sub Type) {
	if vc.Kind == ConstraintSandwiched {
		vc.Sub = sub
	}
}

// Lift propagates a level-lift into the types the constraint contains.
func (vc VarConstraint) Lift() {
	switch vc.Kind {
	case ConstraintSandwiched:
		cascadeLift(vc.Sub)
		cascadeLift(vc.Sup)
	case ConstraintTypeOf:
		cascadeLift(vc.Of)
	}
}

func (vc VarConstraint) cascadeLevel(l Level) {
	switch vc.Kind {
	case ConstraintSandwiched:
		cascadeLevel(vc.Sub, l)
		cascadeLevel(vc.Sup, l)
	case ConstraintTypeOf:
		cascadeLevel(vc.Of, l)
	}
}

func cascadeLift(t Type) {
	if fv, ok := t.(FreeVar); ok {
		fv.Cell.Lift()
	}
}

func isNever(t Type) bool {
	tc, ok := t.(TCon)
	return ok && tc.Name == "Never"
}

func isObj(t Type) bool {
	tc, ok := t.(TCon)
	return ok && tc.Name == "Obj"
}
