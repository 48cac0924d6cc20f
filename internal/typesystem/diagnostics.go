package typesystem

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Location is a source span, kept deliberately independent of the parser's
// token representation so this package has no dependency on out-of-scope
// lexer/parser collaborators: callers translate their own token positions
// into a Location at the boundary.
type Location struct {
	Line      int `yaml:"line"`
	Column    int `yaml:"column"`
	EndLine   int `yaml:"end_line,omitempty"`
	EndColumn int `yaml:"end_column,omitempty"`
}

// DiagnosticKind classifies a Diagnostic for display/filtering, mirroring
// severity levels used elsewhere in the corpus's analyzer errors.
type DiagnosticKind int

const (
	DiagError DiagnosticKind = iota
	DiagWarning
	DiagHint
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagError:
		return "error"
	case DiagWarning:
		return "warning"
	case DiagHint:
		return "hint"
	default:
		return "unknown"
	}
}

// Diagnostic is the shared record shape produced by every error in the §7
// taxonomy below: a kind, a primary message, zero or more sub-messages
// (each an optional hint attached to its own Location), and the primary
// Location. Field names mirror Line/Column/Code so the teacher's existing
// diagnostics conversion keeps working unmodified against this shape.
type Diagnostic struct {
	Kind        DiagnosticKind `yaml:"kind"`
	Code        string         `yaml:"code"`
	MainMessage string         `yaml:"main_message"`
	SubMessages []SubMessage   `yaml:"sub_messages,omitempty"`
	Location    Location       `yaml:"location"`
}

// SubMessage is one secondary annotation of a Diagnostic, e.g. "expected
// type declared here" pointing at a different Location than the main one.
type SubMessage struct {
	Message  string   `yaml:"message"`
	Hint     string   `yaml:"hint,omitempty"`
	Location Location `yaml:"location"`
}

func (d Diagnostic) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%s]: %s", d.Kind, d.Code, d.MainMessage)
	for _, sm := range d.SubMessages {
		fmt.Fprintf(&b, "\n  - %s", sm.Message)
		if sm.Hint != "" {
			fmt.Fprintf(&b, " (hint: %s)", sm.Hint)
		}
	}
	return b.String()
}

// MarshalYAML and the corresponding unmarshal round-trip through yaml.v3
// give the Diagnostic record a stable, machine-checkable serialization
// alongside its display form (see TestDiagnosticsYAMLRoundTrip).
func MarshalDiagnostics(diags []Diagnostic) ([]byte, error) {
	return yaml.Marshal(diags)
}

func UnmarshalDiagnostics(data []byte) ([]Diagnostic, error) {
	var diags []Diagnostic
	if err := yaml.Unmarshal(data, &diags); err != nil {
		return nil, err
	}
	return diags, nil
}

// Errors is a growable sequence of independent failures, matching the
// analyzer's existing pattern of accumulating errors into a context-wide
// slice rather than stopping at the first one.
type Errors []error

func (es Errors) Error() string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "\n")
}

func (es *Errors) Add(err error) {
	if err != nil {
		*es = append(*es, err)
	}
}

func (es Errors) Empty() bool { return len(es) == 0 }

// --- §7 error taxonomy ---

// TypeMismatchError reports that two types were required to unify (or be
// compatible) but are not.
type TypeMismatchError struct {
	Expected, Actual Type
	Diag             Diagnostic
}

func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch: expected %s, got %s", e.Expected.String(), e.Actual.String())
}

// SubtypingError reports that Sub was required to be a subtype of Sup.
type SubtypingError struct {
	Sub, Sup Type
	Diag     Diagnostic
}

func (e SubtypingError) Error() string {
	return fmt.Sprintf("%s is not a subtype of %s", e.Sub.String(), e.Sup.String())
}

// NotATypeError reports that a value was used where a Type was required
// (its cell's constraint is not a "is a type" Sandwiched bound).
type NotATypeError struct {
	Got  ValueObj
	Diag Diagnostic
}

func (e NotATypeError) Error() string {
	return fmt.Sprintf("not a type: %s", ValueObjString(e.Got))
}

// AmbiguousTypeError reports that a free variable remained unbound at the
// point its type was required to be fully resolved.
type AmbiguousTypeError struct {
	Var  FreeVar
	Diag Diagnostic
}

func (e AmbiguousTypeError) Error() string {
	return fmt.Sprintf("ambiguous type: %s", e.Var.String())
}

// InvalidTypeCastError reports a failed explicit cast between two types
// that are not related by subtyping in either direction.
type InvalidTypeCastError struct {
	From, To Type
	Diag     Diagnostic
}

func (e InvalidTypeCastError) Error() string {
	return fmt.Sprintf("cannot cast %s to %s", e.From.String(), e.To.String())
}

// ProjectionUnresolvedError reports that a Proj/ProjCall could not be
// resolved against any nominal super-type context of its receiver.
type ProjectionUnresolvedError struct {
	Receiver Type
	Attr     string
	Diag     Diagnostic
}

func (e ProjectionUnresolvedError) Error() string {
	return fmt.Sprintf("could not resolve %s.%s", e.Receiver.String(), e.Attr)
}

// FeatureUnavailableError reports a construct that is syntactically valid
// but whose evaluation this engine deliberately does not support (e.g. a
// TyParam operator over two Code values).
type FeatureUnavailableError struct {
	Feature string
	Diag    Diagnostic
}

func (e FeatureUnavailableError) Error() string {
	return fmt.Sprintf("feature unavailable: %s", e.Feature)
}

// InternalInvariantError reports a broken internal invariant (e.g. nested
// Quantified, UndoableLink called twice) — these indicate a defect in the
// engine itself rather than in the program being checked.
type InternalInvariantError struct {
	Message string
	Diag    Diagnostic
}

func (e InternalInvariantError) Error() string {
	return fmt.Sprintf("internal invariant violated: %s", e.Message)
}
