// Package bitmap provides the fixed-width bit cell that frame bitmaps are
// built from.
package bitmap

// CellBits is the number of bits tracked by a single Cell.
const CellBits = 8

// Cell is an 8-bit wide bit field. Bit i is stored at (1 << i). Operations
// on bit indices outside [0, CellBits) are ignored.
type Cell uint8

// IsSet returns true if bit is 1.
func (c Cell) IsSet(bit uint) bool {
	if bit >= CellBits {
		return false
	}
	return c&(1<<bit) != 0
}

// IsFull returns true if every bit in the cell is 1.
func (c Cell) IsFull() bool {
	return c == ^Cell(0)
}

// IsEmpty returns true if every bit in the cell is 0.
func (c Cell) IsEmpty() bool {
	return c == 0
}

// Set sets bit to 1.
func (c *Cell) Set(bit uint) {
	if bit < CellBits {
		*c |= 1 << bit
	}
}

// Clear sets bit to 0.
func (c *Cell) Clear(bit uint) {
	if bit < CellBits {
		*c &^= 1 << bit
	}
}

// Toggle flips bit and returns true if the bit is now 1.
func (c *Cell) Toggle(bit uint) bool {
	if bit >= CellBits {
		return false
	}
	*c ^= 1 << bit
	return c.IsSet(bit)
}

// Fill sets every bit to 1.
func (c *Cell) Fill() {
	*c = ^Cell(0)
}

// Zero sets every bit to 0.
func (c *Cell) Zero() {
	*c = 0
}

// FirstClear returns the index of the lowest 0 bit and true, or false if the
// cell is full.
func (c Cell) FirstClear() (uint, bool) {
	for bit := uint(0); bit < CellBits; bit++ {
		if c&(1<<bit) == 0 {
			return bit, true
		}
	}
	return 0, false
}
