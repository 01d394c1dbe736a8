package console

const (
	defaultFg = LightGrey
	defaultBg = Black
)

// Terminal implements a simple terminal that can process LF and CR
// characters on top of an Ega console. Output that reaches the end of the
// last line scrolls the console up.
type Terminal struct {
	// Interfaces are avoided until memory allocation is available.
	cons *Ega

	width  uint16
	height uint16

	curX    uint16
	curY    uint16
	curAttr Attr
}

// AttachTo links the terminal with the specified console device and clears
// it.
func (t *Terminal) AttachTo(cons *Ega) {
	t.cons = cons
	t.width, t.height = cons.Dimensions()
	t.curX = 0
	t.curY = 0

	// Default to lightgrey on black text.
	t.curAttr = MakeAttr(defaultFg, defaultBg)
	t.Clear()
}

// Clear clears the terminal and moves the cursor to the top-left corner.
func (t *Terminal) Clear() {
	t.cons.Clear(0, 0, t.width, t.height)
	t.curX, t.curY = 0, 0
}

// Position returns the current cursor position (x, y).
func (t *Terminal) Position() (uint16, uint16) {
	return t.curX, t.curY
}

// SetPosition sets the current cursor position to (x,y).
func (t *Terminal) SetPosition(x, y uint16) {
	if x >= t.width {
		x = t.width - 1
	}

	if y >= t.height {
		y = t.height - 1
	}

	t.curX, t.curY = x, y
}

// Write implements io.Writer.
func (t *Terminal) Write(data []byte) (int, error) {
	for _, b := range data {
		switch b {
		case '\r':
			t.cr()
		case '\n':
			t.cr()
			t.lf()
		case '\t':
			for spaces := 4 - t.curX%4; spaces > 0; spaces-- {
				t.put(' ')
			}
		default:
			t.put(b)
		}
	}

	return len(data), nil
}

// put writes a character at the cursor and advances it, wrapping to the
// next line at the right edge.
func (t *Terminal) put(b byte) {
	t.cons.Write(b, t.curAttr, t.curX, t.curY)
	t.curX++
	if t.curX == t.width {
		t.cr()
		t.lf()
	}
}

// cr resets the x coordinate of the terminal cursor to 0.
func (t *Terminal) cr() {
	t.curX = 0
}

// lf advances the y coordinate of the terminal cursor by one line scrolling
// the terminal contents if the end of the last terminal line is reached.
func (t *Terminal) lf() {
	if t.curY+1 < t.height {
		t.curY++
		return
	}

	t.cons.Scroll(Up, 1)
	t.cons.Clear(0, t.height-1, t.width, 1)
}
