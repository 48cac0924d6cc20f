package typesystem

import "testing"

func TestUnboundIDsAreUnique(t *testing.T) {
	seen := map[uint64]bool{}
	for i := 0; i < 100; i++ {
		c := NewUnbound(0, Uninited)
		if seen[c.ID()] {
			t.Fatalf("duplicate cell id %d", c.ID())
		}
		seen[c.ID()] = true
	}
}

func TestLinkSelfIsNoOp(t *testing.T) {
	c := NewUnbound(0, NewSubtypeOf(ObjType))
	before := c.state
	c.Link(FreeVar{Cell: c})
	if c.state != before {
		t.Fatalf("self-link mutated cell state: %v -> %v", before, c.state)
	}
	// Following the (rejected) link must not recurse forever.
	if c.IsLinked() {
		t.Fatalf("self-link should not mark the cell as linked")
	}
}

func TestUndoIsInvolutive(t *testing.T) {
	c := NewNamedUnbound("T", 3, NewSubtypeOf(ObjType))
	wantLevel := c.level
	wantName := c.name
	c.UndoableLink(TCon{Name: "Int"})
	if !c.IsLinked() {
		t.Fatalf("expected cell to be linked after UndoableLink")
	}
	c.Undo()
	if c.IsLinked() {
		t.Fatalf("expected cell to be unbound after Undo")
	}
	if c.level != wantLevel || c.name != wantName {
		t.Fatalf("Undo did not restore prior state: level=%v name=%v", c.level, c.name)
	}
}

func TestUndoPanicsWhenNotUndoableLinked(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic calling Undo on a cell that is not undoable-linked")
		}
	}()
	c := NewUnbound(0, Uninited)
	c.Undo()
}

func TestDoAvoidingRecursionTerminatesOnSelfLinkedCell(t *testing.T) {
	c := NewUnbound(0, Uninited)
	depth := 0
	var walk func(*Cell)
	walk = func(cell *Cell) {
		depth++
		if depth > 1000 {
			t.Fatalf("recursion did not terminate")
		}
		DoAvoidingRecursion(cell, func() {
			if cell.IsLinked() {
				if inner, ok := cell.Crack().(FreeVar); ok {
					walk(inner.Cell)
				}
			}
		})
	}
	c.Link(FreeVar{Cell: c})
	walk(c)
}

func TestLimitedFmtTerminatesOnCyclicCell(t *testing.T) {
	c := NewUnbound(0, Uninited)
	c.UndoableLink(FreeVar{Cell: c})
	// Revisiting the same cell through its own placeholder must short-circuit.
	result := FreeVar{Cell: c}.limitedFmt(5)
	if result == "" {
		t.Fatalf("expected a non-empty terminating display string")
	}
}

func TestGeneralizedCellRejectsConstraintUpdateOutsideInstantiation(t *testing.T) {
	c := NewNamedUnbound("T", GenericLevel, NewSubtypeOf(ObjType))
	c.UpdateConstraint(NewSubtypeOf(NeverType), false)
	if sup, _ := c.GetSuper(); sup != ObjType {
		t.Fatalf("generalized cell's constraint was mutated outside instantiation")
	}
	c.UpdateConstraint(NewSubtypeOf(NeverType), true)
	if sup, _ := c.GetSuper(); sup != NeverType {
		t.Fatalf("in-instantiation update should have been applied")
	}
}

func TestSetLevelCascadesThroughLink(t *testing.T) {
	inner := NewUnbound(0, Uninited)
	outer := NewUnbound(0, Uninited)
	outer.Link(FreeVar{Cell: inner})
	outer.SetLevel(7)
	if inner.level != 7 {
		t.Fatalf("SetLevel did not cascade through a linked cell: got %d", inner.level)
	}
}
