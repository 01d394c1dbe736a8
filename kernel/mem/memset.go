package mem

import (
	"reflect"
	"unsafe"
)

// Memset sets every byte of target to the supplied value. Instead of using a
// for loop, this function uses log2(len(target)) copy calls which gives a
// speed boost when clearing whole pages.
func Memset(target []byte, value byte) {
	if len(target) == 0 {
		return
	}

	// Set first element and make log2(size) optimized copies
	target[0] = value
	for index := 1; index < len(target); index *= 2 {
		copy(target[index:], target[:index])
	}
}

// Overlay returns a byte slice of the given size that aliases the memory
// region starting at addr. The caller must ensure that the region is
// accessible at addr (e.g. identity-mapped physical memory).
func Overlay(addr uintptr, size Size) []byte {
	if size == 0 {
		return nil
	}

	return *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(size),
		Cap:  int(size),
		Data: addr,
	}))
}
