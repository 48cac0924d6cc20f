package typesystem

import (
	"sync"

	"github.com/google/uuid"
)

// cellRegistry is a debug-only lookup from a stable UUID key back to the
// Cell it names, so an LSP hover on a displayed "?123" free variable can
// be resolved back to the live cell without threading a pointer through
// the wire protocol. Registration is opt-in (RegisterCell), not automatic
// on every NewUnbound/NewNamedUnbound: most cells never reach a client
// and never need a durable key.
type cellRegistry struct {
	mu     sync.RWMutex
	byUUID map[uuid.UUID]*Cell
	byCell map[*Cell]uuid.UUID
}

var debugCellRegistry = &cellRegistry{
	byUUID: make(map[uuid.UUID]*Cell),
	byCell: make(map[*Cell]uuid.UUID),
}

// RegisterCell assigns c a stable UUID key in the debug registry, reusing
// an existing key if c is already registered.
func RegisterCell(c *Cell) uuid.UUID {
	debugCellRegistry.mu.Lock()
	defer debugCellRegistry.mu.Unlock()
	if id, ok := debugCellRegistry.byCell[c]; ok {
		return id
	}
	id := uuid.New()
	debugCellRegistry.byUUID[id] = c
	debugCellRegistry.byCell[c] = id
	return id
}

// LookupCell resolves a UUID previously returned by RegisterCell back to
// its Cell, for LSP hover/goto-definition on a displayed free variable.
func LookupCell(id uuid.UUID) (*Cell, bool) {
	debugCellRegistry.mu.RLock()
	defer debugCellRegistry.mu.RUnlock()
	c, ok := debugCellRegistry.byUUID[id]
	return c, ok
}

// ForgetCell removes c from the debug registry, e.g. once its owning
// declaration is no longer live in the analyzer's cache.
func ForgetCell(c *Cell) {
	debugCellRegistry.mu.Lock()
	defer debugCellRegistry.mu.Unlock()
	if id, ok := debugCellRegistry.byCell[c]; ok {
		delete(debugCellRegistry.byUUID, id)
		delete(debugCellRegistry.byCell, c)
	}
}
