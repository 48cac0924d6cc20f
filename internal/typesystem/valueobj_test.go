package typesystem

import "testing"

func TestTryAddNumericWidening(t *testing.T) {
	res, ok := TryAdd(VONat{3}, VONat{4})
	if !ok {
		t.Fatalf("expected TryAdd to succeed")
	}
	if nat, ok := res.(VONat); !ok || nat.Value != 7 {
		t.Fatalf("expected Nat(7), got %#v", res)
	}
}

func TestTryDivWidensToFloat(t *testing.T) {
	res, ok := TryDiv(VOInt{-6}, VOInt{3})
	if !ok {
		t.Fatalf("expected TryDiv to succeed")
	}
	f, ok := res.(VOFloat)
	if !ok || f.Value != -2.0 {
		t.Fatalf("expected Float(-2.0), got %#v", res)
	}
}

func TestTryAddStringConcat(t *testing.T) {
	res, ok := TryAdd(VOStr{"foo"}, VOStr{"bar"})
	if !ok {
		t.Fatalf("expected TryAdd to succeed on strings")
	}
	if s, ok := res.(VOStr); !ok || s.Value != "foobar" {
		t.Fatalf("expected Str(foobar), got %#v", res)
	}
}

func TestTryMulStringRepeat(t *testing.T) {
	res, ok := TryMul(VOStr{"ab"}, VONat{3})
	if !ok {
		t.Fatalf("expected TryMul to succeed")
	}
	if s, ok := res.(VOStr); !ok || s.Value != "ababab" {
		t.Fatalf("expected Str(ababab), got %#v", res)
	}
}

func TestInfinityAbsorption(t *testing.T) {
	res, ok := TryAdd(VOInt{5}, VOInf{})
	if !ok {
		t.Fatalf("expected TryAdd with Inf to succeed")
	}
	if _, ok := res.(VOInf); !ok {
		t.Fatalf("expected Inf to absorb, got %#v", res)
	}
}

func TestMutCellForwarding(t *testing.T) {
	cell := &MutCell{Inner: VONat{10}}
	res, ok := TryAdd(VOMut{Cell: cell}, VONat{5})
	if !ok {
		t.Fatalf("expected TryAdd on Mut to succeed")
	}
	if _, ok := res.(VOMut); !ok {
		t.Fatalf("expected result to remain a Mut wrapper")
	}
	if nat, ok := cell.Inner.(VONat); !ok || nat.Value != 15 {
		t.Fatalf("expected Mut cell's contained value to be written back, got %#v", cell.Inner)
	}
}
