package rename

// ════════════════════════════════════════════════════════════════════════════════════════════════
// CURSORS
// ════════════════════════════════════════════════════════════════════════════════════════════════
//
// Cursor is a position in a circular structure (free list ring, snapshot ring).
//
// Hardware keeps an index plus a wrap flag and compares (flag, index) pairs.
// The model keeps the unwrapped counter instead: the index is the counter modulo
// the capacity and the flag is the parity of the lap, so ordering and distance are
// plain integer comparisons. A 64-bit counter does not wrap in any simulation.
//
// Example (capacity 8):
//
//	counter 5  → index 5, flag 0
//	counter 13 → index 5, flag 1   (same slot, one lap later)
//	13.IsAfter(5) = true, 5.DistanceTo(13) = 8
type Cursor uint64

// Index returns the slot addressed by the cursor.
func (c Cursor) Index(capacity int) int {
	return int(uint64(c) % uint64(capacity))
}

// Flag returns the wrap flag a flag-bit pointer would carry.
func (c Cursor) Flag(capacity int) bool {
	return (uint64(c)/uint64(capacity))&1 == 1
}

// IsAfter reports whether c is strictly younger than o.
func (c Cursor) IsAfter(o Cursor) bool {
	return c > o
}

// DistanceTo returns the number of positions from c forward to later.
// later must not precede c.
func (c Cursor) DistanceTo(later Cursor) int {
	if c > later {
		panic(bugf("cursor distance from %d back to %d", c, later))
	}
	return int(later - c)
}

// Add moves the cursor forward by n positions.
func (c Cursor) Add(n int) Cursor {
	return c + Cursor(n)
}

// Sub moves the cursor backward by n positions.
func (c Cursor) Sub(n int) Cursor {
	if Cursor(n) > c {
		panic(bugf("cursor %d moved back by %d", c, n))
	}
	return c - Cursor(n)
}
