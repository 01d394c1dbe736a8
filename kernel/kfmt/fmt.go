// Package kfmt implements allocation-free formatted output for the kernel's
// diagnostics sink.
package kfmt

import (
	"io"
	"strconv"
	"unsafe"
)

// pointerDigits is the minimum number of hex digits printed by %p.
const pointerDigits = 8

var (
	errMissingArg   = []byte("%!(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")

	// scratch stages string bytes and padding runs on their way to the
	// writer. Handing a string to io.Writer directly would need a []byte
	// conversion, which allocates.
	scratch [64]byte

	// digitBuf receives the digits of a formatted integer. It fits a
	// uint64 in base 10.
	digitBuf [24]byte
)

// Fprintf writes a formatted message to w. It does not allocate memory so it
// can be used before the Go heap exists. A nil w discards the output.
//
// Supported verbs:
//
//	%s  string or []byte, space padded
//	%d  any built-in integer in base 10, space padded
//	%x  any built-in integer in base 16, zero padded
//	%p  uintptr or unsafe.Pointer as 0x-prefixed hex, at least 8 digits
//	%%  a literal percent sign
//
// A decimal width may precede the verb. Values shorter than the width are
// right-aligned. Missing, surplus and mistyped arguments are reported inline
// as %!(MISSING), %!(EXTRA) and %!(WRONGTYPE) markers and unknown verbs as
// %!(NOVERB).
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var argIndex int

	for i := 0; i < len(format); {
		if format[i] != '%' {
			start := i
			for i < len(format) && format[i] != '%' {
				i++
			}
			writeString(w, format[start:i])
			continue
		}

		width, verb, next := parseVerb(format, i+1)
		i = next

		switch {
		case verb == '%':
			writeString(w, "%")
		case verb != 's' && verb != 'd' && verb != 'x' && verb != 'p':
			doWrite(w, errNoVerb)
		case argIndex >= len(args):
			doWrite(w, errMissingArg)
		default:
			formatArg(w, verb, width, args[argIndex])
			argIndex++
		}
	}

	for ; argIndex < len(args); argIndex++ {
		doWrite(w, errExtraArg)
	}
}

// parseVerb scans the width digits and the verb character starting at
// format[start]. It returns the index of the byte following the verb; verb
// is 0 when format ends before one is found.
func parseVerb(format string, start int) (width int, verb byte, next int) {
	for next = start; next < len(format); next++ {
		ch := format[next]
		if ch < '0' || ch > '9' {
			return width, ch, next + 1
		}
		width = width*10 + int(ch-'0')
	}

	return width, 0, next
}

func formatArg(w io.Writer, verb byte, width int, arg interface{}) {
	switch verb {
	case 's':
		formatString(w, arg, width)
	case 'd':
		formatInt(w, arg, 10, width)
	case 'x':
		formatInt(w, arg, 16, width)
	case 'p':
		formatPointer(w, arg, width)
	}
}

func formatString(w io.Writer, arg interface{}, width int) {
	switch s := arg.(type) {
	case string:
		pad(w, ' ', width-len(s))
		writeString(w, s)
	case []byte:
		pad(w, ' ', width-len(s))
		doWrite(w, s)
	default:
		doWrite(w, errWrongArgType)
	}
}

func formatPointer(w io.Writer, arg interface{}, width int) {
	var addr uintptr

	switch p := arg.(type) {
	case uintptr:
		addr = p
	case unsafe.Pointer:
		addr = uintptr(p)
	default:
		doWrite(w, errWrongArgType)
		return
	}

	if width < pointerDigits {
		width = pointerDigits
	}

	writeString(w, "0x")
	writeNumber(w, uint64(addr), false, 16, width)
}

func formatInt(w io.Writer, arg interface{}, base, width int) {
	mag, neg, ok := magnitude(arg)
	if !ok {
		doWrite(w, errWrongArgType)
		return
	}

	writeNumber(w, mag, neg, base, width)
}

// magnitude splits an integer argument of any built-in type into its
// absolute value and sign. ok is false for non-integer arguments.
func magnitude(arg interface{}) (mag uint64, neg, ok bool) {
	var v int64

	switch n := arg.(type) {
	case uint8:
		return uint64(n), false, true
	case uint16:
		return uint64(n), false, true
	case uint32:
		return uint64(n), false, true
	case uint64:
		return n, false, true
	case uint:
		return uint64(n), false, true
	case uintptr:
		return uint64(n), false, true
	case int8:
		v = int64(n)
	case int16:
		v = int64(n)
	case int32:
		v = int64(n)
	case int64:
		v = n
	case int:
		v = int64(n)
	default:
		return 0, false, false
	}

	if v < 0 {
		// -v wraps for math.MinInt64 but its uint64 conversion is still
		// the correct magnitude.
		return uint64(-v), true, true
	}
	return uint64(v), false, true
}

// writeNumber prints mag right-aligned to width. Base 16 pads with zeroes
// after the sign; other bases pad with spaces before it.
func writeNumber(w io.Writer, mag uint64, neg bool, base, width int) {
	digits := strconv.AppendUint(digitBuf[:0], mag, base)

	n := len(digits)
	if neg {
		n++
	}

	if base == 16 {
		if neg {
			writeString(w, "-")
		}
		pad(w, '0', width-n)
	} else {
		pad(w, ' ', width-n)
		if neg {
			writeString(w, "-")
		}
	}

	doWrite(w, digits)
}

// writeString sends s to w through scratch.
func writeString(w io.Writer, s string) {
	for len(s) > 0 {
		n := copy(scratch[:], s)
		doWrite(w, scratch[:n])
		s = s[n:]
	}
}

// pad writes count copies of ch. A non-positive count writes nothing.
func pad(w io.Writer, ch byte, count int) {
	for count > 0 {
		n := count
		if n > len(scratch) {
			n = len(scratch)
		}

		for i := 0; i < n; i++ {
			scratch[i] = ch
		}
		doWrite(w, scratch[:n])
		count -= n
	}
}

// doWrite hands p to w while hiding p from escape analysis. The compiler
// cannot see through the call to an unknown io.Writer and would otherwise
// move every formatted argument to the heap.
func doWrite(w io.Writer, p []byte) {
	if w == nil {
		return
	}
	writeNoEscape(w, noEscape(unsafe.Pointer(&p)))
}

func writeNoEscape(w io.Writer, bufPtr unsafe.Pointer) {
	w.Write(*(*[]byte)(bufPtr))
}

// noEscape hides a pointer from escape analysis. It mirrors noescape in
// runtime/stubs.go.
//
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
