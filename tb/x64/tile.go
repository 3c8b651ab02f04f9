package x64

import "github.com/c3lang/tilde-backend/tb"

// Tile is the single-slot pending memory operand produced by an
// array_access/member_access node (spec.md §4.3 Memory-operand tiling): a
// [base + index*scale + disp] expression that a following load/store may
// fold directly into its own ModR/M instead of materialising an address
// into a GPR first.
type Tile struct {
	owner tb.Reg // the array_access/member_access node this tile belongs to
	val   Val
	live  bool
}

// Set records a freshly computed address expression as the pending tile.
func (t *Tile) Set(owner tb.Reg, val Val) {
	t.owner, t.val, t.live = owner, val, true
}

// Consume folds the tile into a memory operand if owner matches the
// pending tile, clearing it (a tile is single-use). On a mismatch it
// returns false and leaves the pending tile as it is.
func (t *Tile) Consume(owner tb.Reg) (Val, bool) {
	if t.live && t.owner == owner {
		t.live = false
		return t.val, true
	}
	return Val{}, false
}

// Clear drops the pending tile without consuming it (the caller is
// about to spill it to a GPR via lea).
func (t *Tile) Clear() { t.live = false }

// Pending reports whether a tile is currently held and, if so, which
// node owns it.
func (t *Tile) Pending() (tb.Reg, bool) { return t.owner, t.live }
