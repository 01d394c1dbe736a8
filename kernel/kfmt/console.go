package kfmt

import "io"

// earlyBufferSize defines the size of the ring buffer that holds diagnostics
// written before a console device is attached. It can buffer the contents
// of a standard 80*25 text-mode console and must be a power of 2.
const earlyBufferSize = 2048

// ringBuffer is a fixed-size byte ring. When full, new writes overwrite the
// oldest data.
type ringBuffer struct {
	buffer         [earlyBufferSize]byte
	rIndex, wIndex int
}

// Write writes len(p) bytes from p to the ringBuffer.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.buffer[rb.wIndex] = b
		rb.wIndex = (rb.wIndex + 1) & (earlyBufferSize - 1)
		if rb.rIndex == rb.wIndex {
			rb.rIndex = (rb.rIndex + 1) & (earlyBufferSize - 1)
		}
	}

	return len(p), nil
}

// Read reads up to len(p) bytes into p. It returns io.EOF once the buffer
// has been drained.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	if rb.rIndex == rb.wIndex {
		return 0, io.EOF
	}

	// read the contiguous chunk that starts at rIndex
	chunkEnd := rb.wIndex
	if rb.rIndex > rb.wIndex {
		chunkEnd = earlyBufferSize
	}

	n := copy(p, rb.buffer[rb.rIndex:chunkEnd])
	rb.rIndex = (rb.rIndex + n) & (earlyBufferSize - 1)
	return n, nil
}

// Len returns the number of buffered bytes.
func (rb *ringBuffer) Len() int {
	return (rb.wIndex - rb.rIndex) & (earlyBufferSize - 1)
}

// Console is the kernel's diagnostics sink. Until a device is attached via
// SetSink, output is retained in a ring buffer; attaching a device replays
// the buffered output to it.
type Console struct {
	sink  io.Writer
	early ringBuffer
}

// Write implements io.Writer.
func (c *Console) Write(p []byte) (int, error) {
	if c.sink == nil {
		return c.early.Write(p)
	}
	return c.sink.Write(p)
}

// SetSink attaches w as the output device and flushes any buffered output
// to it. Passing nil detaches the current device.
func (c *Console) SetSink(w io.Writer) {
	c.sink = w
	if w != nil {
		io.Copy(w, &c.early)
	}
}

// Buffered returns the number of bytes waiting for a device.
func (c *Console) Buffered() int {
	return c.early.Len()
}
