package typesystem

import "testing"

func TestDiagnosticsYAMLRoundTrip(t *testing.T) {
	diags := []Diagnostic{
		{
			Kind:        DiagError,
			Code:        "E0301",
			MainMessage: "type mismatch",
			SubMessages: []SubMessage{
				{Message: "expected type declared here", Hint: "declared as Int", Location: Location{Line: 4, Column: 1}},
			},
			Location: Location{Line: 10, Column: 5, EndLine: 10, EndColumn: 12},
		},
		{
			Kind:        DiagWarning,
			Code:        "W0104",
			MainMessage: "unused constraint",
			Location:    Location{Line: 2, Column: 1},
		},
	}

	data, err := MarshalDiagnostics(diags)
	if err != nil {
		t.Fatalf("MarshalDiagnostics failed: %v", err)
	}

	got, err := UnmarshalDiagnostics(data)
	if err != nil {
		t.Fatalf("UnmarshalDiagnostics failed: %v", err)
	}

	if len(got) != len(diags) {
		t.Fatalf("expected %d diagnostics, got %d", len(diags), len(got))
	}
	for i := range diags {
		if got[i].Kind != diags[i].Kind || got[i].Code != diags[i].Code || got[i].MainMessage != diags[i].MainMessage {
			t.Fatalf("round-tripped diagnostic %d mismatch: got %#v, want %#v", i, got[i], diags[i])
		}
		if got[i].Location != diags[i].Location {
			t.Fatalf("round-tripped location %d mismatch: got %#v, want %#v", i, got[i].Location, diags[i].Location)
		}
		if len(got[i].SubMessages) != len(diags[i].SubMessages) {
			t.Fatalf("round-tripped sub-messages %d mismatch: got %d, want %d", i, len(got[i].SubMessages), len(diags[i].SubMessages))
		}
	}
}

func TestErrorsAccumulate(t *testing.T) {
	var es Errors
	if !es.Empty() {
		t.Fatalf("expected a fresh Errors to be empty")
	}
	es.Add(nil)
	if !es.Empty() {
		t.Fatalf("adding a nil error must be a no-op")
	}
	es.Add(NotATypeError{Got: VOInt{5}})
	if es.Empty() {
		t.Fatalf("expected a non-empty Errors after adding a real error")
	}
	if es.Error() == "" {
		t.Fatalf("expected a non-empty combined error message")
	}
}
