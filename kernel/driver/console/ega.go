package console

import (
	"github.com/erynofwales/polka/kernel"
	"github.com/erynofwales/polka/kernel/mem"
)

const (
	// EgaWidth and EgaHeight are the dimensions of the text mode set up
	// by the BIOS.
	EgaWidth  = 80
	EgaHeight = 25

	// EgaFramebuffer is the physical address of the text-mode buffer.
	EgaFramebuffer = uintptr(0xB8000)

	clearColor = Black
	clearChar  = byte(' ')
)

var (
	errFramebufferUnavailable = &kernel.Error{Module: "ega", Message: "framebuffer is not backed by physical memory"}
)

// Ega implements an EGA-compatible text console. Each character cell is
// stored as two bytes: the character followed by its color attribute.
type Ega struct {
	width  uint16
	height uint16

	fb []byte
}

// Init sets up the console to use the framebuffer at fbPhysAddr.
func (cons *Ega) Init(physMem mem.PhysicalMemory, width, height uint16, fbPhysAddr uintptr) *kernel.Error {
	fb := physMem.Bytes(fbPhysAddr, mem.Size(width)*mem.Size(height)*2)
	if fb == nil {
		return errFramebufferUnavailable
	}

	cons.width = width
	cons.height = height
	cons.fb = fb
	return nil
}

// Clear clears the specified rectangular region
func (cons *Ega) Clear(x, y, width, height uint16) {
	var (
		attr                 = MakeAttr(clearColor, clearColor)
		rowOffset, colOffset uint16
	)

	// clip rectangle
	if x >= cons.width {
		x = cons.width
	}
	if y >= cons.height {
		y = cons.height
	}

	if x+width > cons.width {
		width = cons.width - x
	}
	if y+height > cons.height {
		height = cons.height - y
	}

	rowOffset = (y * cons.width) + x
	for ; height > 0; height, rowOffset = height-1, rowOffset+cons.width {
		for colOffset = rowOffset; colOffset < rowOffset+width; colOffset++ {
			cons.set(colOffset, clearChar, attr)
		}
	}
}

// Dimensions returns the console width and height in characters.
func (cons *Ega) Dimensions() (uint16, uint16) {
	return cons.width, cons.height
}

// Scroll a particular number of lines to the specified direction.
func (cons *Ega) Scroll(dir ScrollDir, lines uint16) {
	if lines == 0 || lines > cons.height {
		return
	}

	offset := int(lines) * int(cons.width) * 2

	switch dir {
	case Up:
		copy(cons.fb, cons.fb[offset:])
	case Down:
		copy(cons.fb[offset:], cons.fb)
	}
}

// Write a char to the specified location.
func (cons *Ega) Write(ch byte, attr Attr, x, y uint16) {
	if x >= cons.width || y >= cons.height {
		return
	}

	cons.set((y*cons.width)+x, ch, attr)
}

// Char returns the character and attribute stored at the specified location.
func (cons *Ega) Char(x, y uint16) (byte, Attr) {
	if x >= cons.width || y >= cons.height {
		return 0, 0
	}

	offset := int((y*cons.width)+x) * 2
	return cons.fb[offset], Attr(cons.fb[offset+1])
}

func (cons *Ega) set(cell uint16, ch byte, attr Attr) {
	cons.fb[int(cell)*2] = ch
	cons.fb[int(cell)*2+1] = byte(attr)
}
