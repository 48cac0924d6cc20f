package typesystem

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueObj is a compile-time constant value: the payload of a TPValue and
// the operand type of the constant evaluator's arithmetic (spec.md §4.5).
type ValueObj interface {
	Inspect() string
	valueObj()
}

// VOInt/VONat/VOFloat are the numeric ValueObj variants. Nat is kept
// distinct from Int (as in the original), since widening rules differ by
// direction: Int absorbs Nat, Nat narrows to Int on subtraction underflow.
type VOInt struct{ Value int64 }
type VONat struct{ Value uint64 }
type VOFloat struct{ Value float64 }
type VOStr struct{ Value string }
type VOBool struct{ Value bool }

// VOInf/VONegInf are the absorbing +/-infinity sentinels.
type VOInf struct{}
type VONegInf struct{}

// VONone is the unit/"no value" constant.
type VONone struct{}

// VOEllipsis and VONotImplemented mirror the original's placeholder constants.
type VOEllipsis struct{}
type VONotImplemented struct{}

// VOType wraps a Type as a first-class compile-time value (used by
// TypeOf-constrained cells and by Proj resolution's const-local lookup).
type VOType struct{ Typ Type }

// VOArray/VOTuple/VOSet are structured sequence-like ValueObjs.
type VOArray struct{ Elems []ValueObj }
type VOTuple struct{ Elems []ValueObj }
type VOSet struct{ Elems []ValueObj }

// VODictEntry is one key/value pair of a VODict.
type VODictEntry struct{ Key, Value ValueObj }
type VODict struct{ Entries []VODictEntry }

// VORecordField is one named field of a VORecord.
type VORecordField struct {
	Name  string
	Value ValueObj
}
type VORecord struct{ Fields []VORecordField }

// VOCode is an opaque compiled-code constant (closures captured at
// compile time); it carries no arithmetic.
type VOCode struct{ Label string }

// VOIllegal marks a value that failed to evaluate; carried instead of
// panicking so callers can report a diagnostic at the use site.
type VOIllegal struct{ Reason string }

// MutCell is a mutable ValueObj wrapper: every binary operation forwards
// through the contained value and writes the result back in place,
// matching original_source's ValueObj::Mut(RcCell<ValueObj>) (spec.md
// §4.5(a), §5 interior mutability).
type MutCell struct {
	Inner ValueObj
}
type VOMut struct{ Cell *MutCell }

func (VOInt) valueObj()            {}
func (VONat) valueObj()            {}
func (VOFloat) valueObj()          {}
func (VOStr) valueObj()            {}
func (VOBool) valueObj()           {}
func (VOInf) valueObj()            {}
func (VONegInf) valueObj()         {}
func (VONone) valueObj()           {}
func (VOEllipsis) valueObj()       {}
func (VONotImplemented) valueObj() {}
func (VOType) valueObj()           {}
func (VOArray) valueObj()          {}
func (VOTuple) valueObj()          {}
func (VOSet) valueObj()            {}
func (VODict) valueObj()           {}
func (VORecord) valueObj()         {}
func (VOCode) valueObj()           {}
func (VOIllegal) valueObj()        {}
func (VOMut) valueObj()            {}

func (v VOInt) Inspect() string   { return strconv.FormatInt(v.Value, 10) }
func (v VONat) Inspect() string   { return strconv.FormatUint(v.Value, 10) }
func (v VOFloat) Inspect() string { return strconv.FormatFloat(v.Value, 'g', -1, 64) }
func (v VOStr) Inspect() string   { return strconv.Quote(v.Value) }
func (v VOBool) Inspect() string  { return strconv.FormatBool(v.Value) }
func (VOInf) Inspect() string     { return "Inf" }
func (VONegInf) Inspect() string  { return "-Inf" }
func (VONone) Inspect() string    { return "None" }
func (VOEllipsis) Inspect() string       { return "..." }
func (VONotImplemented) Inspect() string { return "NotImplemented" }
func (v VOType) Inspect() string { return v.Typ.String() }
func (v VOArray) Inspect() string {
	return "[" + joinVO(v.Elems) + "]"
}
func (v VOTuple) Inspect() string { return "(" + joinVO(v.Elems) + ")" }
func (v VOSet) Inspect() string   { return "{" + joinVO(v.Elems) + "}" }
func (v VODict) Inspect() string {
	parts := make([]string, len(v.Entries))
	for i, e := range v.Entries {
		parts[i] = e.Key.Inspect() + ": " + e.Value.Inspect()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
func (v VORecord) Inspect() string {
	parts := make([]string, len(v.Fields))
	for i, f := range v.Fields {
		parts[i] = f.Name + " = " + f.Value.Inspect()
	}
	return "{" + strings.Join(parts, "; ") + "}"
}
func (v VOCode) Inspect() string    { return "<code " + v.Label + ">" }
func (v VOIllegal) Inspect() string { return "<illegal: " + v.Reason + ">" }
func (v VOMut) Inspect() string     { return v.Cell.Inner.Inspect() + "!" }

func joinVO(elems []ValueObj) string {
	parts := make([]string, len(elems))
	for i, e := range elems {
		parts[i] = e.Inspect()
	}
	return strings.Join(parts, ", ")
}

func isInf(v ValueObj) bool {
	switch v.(type) {
	case VOInf, VONegInf:
		return true
	}
	return false
}

// TryAdd mirrors original_source's ValueObj::try_add, including its
// asymmetric Float/Nat widening (the original subtracts, not adds, when
// combining Float with Nat or Int — reproduced verbatim since the spec
// leaves exact mixed-numeric-kind arithmetic to the original's behavior).
func TryAdd(l, r ValueObj) (ValueObj, bool) {
	if m, ok := l.(VOMut); ok {
		res, ok := TryAdd(m.Cell.Inner, r)
		if !ok {
			return nil, false
		}
		m.Cell.Inner = res
		return m, true
	}
	if m, ok := r.(VOMut); ok {
		return TryAdd(l, m.Cell.Inner)
	}
	if isInf(l) {
		return l, true
	}
	if isInf(r) {
		return r, true
	}
	switch lv := l.(type) {
	case VOInt:
		switch rv := r.(type) {
		case VOInt:
			return VOInt{lv.Value + rv.Value}, true
		case VONat:
			return VOInt{lv.Value + int64(rv.Value)}, true
		case VOFloat:
			return VOFloat{float64(lv.Value) - rv.Value}, true
		}
	case VONat:
		switch rv := r.(type) {
		case VONat:
			return VONat{lv.Value + rv.Value}, true
		case VOInt:
			return VOInt{int64(lv.Value) + rv.Value}, true
		case VOFloat:
			return VOFloat{float64(lv.Value) - rv.Value}, true
		}
	case VOFloat:
		switch rv := r.(type) {
		case VOFloat:
			return VOFloat{lv.Value + rv.Value}, true
		case VONat:
			return VOFloat{lv.Value - float64(rv.Value)}, true
		case VOInt:
			return VOFloat{lv.Value - float64(rv.Value)}, true
		}
	case VOStr:
		if rv, ok := r.(VOStr); ok {
			return VOStr{lv.Value + rv.Value}, true
		}
	}
	return nil, false
}

// TrySub mirrors try_sub: Nat-Nat narrows to Int, ±Inf absorbs unless the
// other operand is also infinite (in which case the result is undefined).
func TrySub(l, r ValueObj) (ValueObj, bool) {
	if m, ok := l.(VOMut); ok {
		res, ok := TrySub(m.Cell.Inner, r)
		if !ok {
			return nil, false
		}
		m.Cell.Inner = res
		return m, true
	}
	if m, ok := r.(VOMut); ok {
		return TrySub(l, m.Cell.Inner)
	}
	lInf, rInf := isInf(l), isInf(r)
	if lInf && !rInf {
		return l, true
	}
	if rInf && !lInf {
		return r, true
	}
	if lInf && rInf {
		return nil, false
	}
	switch lv := l.(type) {
	case VOInt:
		switch rv := r.(type) {
		case VOInt:
			return VOInt{lv.Value - rv.Value}, true
		case VONat:
			return VOInt{lv.Value - int64(rv.Value)}, true
		case VOFloat:
			return VOFloat{float64(lv.Value) - rv.Value}, true
		}
	case VONat:
		switch rv := r.(type) {
		case VONat:
			return VOInt{int64(lv.Value) - int64(rv.Value)}, true
		case VOInt:
			return VOInt{int64(lv.Value) - rv.Value}, true
		case VOFloat:
			return VOFloat{float64(lv.Value) - rv.Value}, true
		}
	case VOFloat:
		switch rv := r.(type) {
		case VOFloat:
			return VOFloat{lv.Value - rv.Value}, true
		case VONat:
			return VOFloat{lv.Value - float64(rv.Value)}, true
		case VOInt:
			return VOFloat{lv.Value - float64(rv.Value)}, true
		}
	}
	return nil, false
}

// TryMul mirrors try_mul: Str*Nat repeats the string.
func TryMul(l, r ValueObj) (ValueObj, bool) {
	if m, ok := l.(VOMut); ok {
		res, ok := TryMul(m.Cell.Inner, r)
		if !ok {
			return nil, false
		}
		m.Cell.Inner = res
		return m, true
	}
	if m, ok := r.(VOMut); ok {
		return TryMul(l, m.Cell.Inner)
	}
	if isInf(l) {
		return l, true
	}
	if isInf(r) {
		return r, true
	}
	switch lv := l.(type) {
	case VOInt:
		switch rv := r.(type) {
		case VOInt:
			return VOInt{lv.Value * rv.Value}, true
		case VONat:
			return VOInt{lv.Value * int64(rv.Value)}, true
		case VOFloat:
			return VOFloat{float64(lv.Value) * rv.Value}, true
		}
	case VONat:
		switch rv := r.(type) {
		case VONat:
			return VONat{lv.Value * rv.Value}, true
		case VOInt:
			return VOInt{int64(lv.Value) * rv.Value}, true
		case VOFloat:
			return VOFloat{float64(lv.Value) * rv.Value}, true
		}
	case VOFloat:
		switch rv := r.(type) {
		case VOFloat:
			return VOFloat{lv.Value * rv.Value}, true
		case VONat:
			return VOFloat{lv.Value * float64(rv.Value)}, true
		case VOInt:
			return VOFloat{lv.Value * float64(rv.Value)}, true
		}
	case VOStr:
		if rv, ok := r.(VONat); ok {
			return VOStr{strings.Repeat(lv.Value, int(rv.Value))}, true
		}
	}
	return nil, false
}

// TryDiv mirrors try_div: every numeric pair widens to Float, division is
// never integer-truncating at the constant-evaluation level.
func TryDiv(l, r ValueObj) (ValueObj, bool) {
	if m, ok := l.(VOMut); ok {
		res, ok := TryDiv(m.Cell.Inner, r)
		if !ok {
			return nil, false
		}
		m.Cell.Inner = res
		return m, true
	}
	if m, ok := r.(VOMut); ok {
		return TryDiv(l, m.Cell.Inner)
	}
	lf, lok := toFloat(l)
	rf, rok := toFloat(r)
	if !lok || !rok {
		return nil, false
	}
	return VOFloat{lf / rf}, true
}

func toFloat(v ValueObj) (float64, bool) {
	switch vv := v.(type) {
	case VOInt:
		return float64(vv.Value), true
	case VONat:
		return float64(vv.Value), true
	case VOFloat:
		return vv.Value, true
	default:
		return 0, false
	}
}

// TryCmp mirrors try_gt/try_ge/etc.: numeric pairs compare after widening,
// returning -1/0/1, or false if the operands are not comparable.
func TryCmp(l, r ValueObj) (int, bool) {
	if m, ok := l.(VOMut); ok {
		return TryCmp(m.Cell.Inner, r)
	}
	if m, ok := r.(VOMut); ok {
		return TryCmp(l, m.Cell.Inner)
	}
	lf, lok := toFloat(l)
	rf, rok := toFloat(r)
	if lok && rok {
		switch {
		case lf < rf:
			return -1, true
		case lf > rf:
			return 1, true
		default:
			return 0, true
		}
	}
	if ls, ok := l.(VOStr); ok {
		if rs, ok := r.(VOStr); ok {
			return strings.Compare(ls.Value, rs.Value), true
		}
	}
	return 0, false
}

func ValueObjString(v ValueObj) string {
	if v == nil {
		return fmt.Sprintf("%v", v)
	}
	return v.Inspect()
}
