package main

import (
	"github.com/erynofwales/polka/kernel/mem/pmm"
	"github.com/fogleman/gg"
	"github.com/pkg/errors"
)

const (
	// frameMapColumns is the number of frames drawn per row.
	frameMapColumns = 64

	// frameCellSize is the size in pixels of the square drawn for a frame.
	frameCellSize = 6
)

// frameStateFn reports whether a frame is reserved.
type frameStateFn func(pmm.Frame) bool

// renderFrameMap draws one cell per frame (reserved frames dark, free frames
// light) and saves the image as a PNG file at path.
func renderFrameMap(path string, frameCount uint32, isReserved frameStateFn) error {
	if frameCount == 0 {
		return errors.New("no frames to render")
	}

	rows := (int(frameCount) + frameMapColumns - 1) / frameMapColumns
	dc := gg.NewContext(frameMapColumns*frameCellSize, rows*frameCellSize)

	dc.SetRGB(1, 1, 1)
	dc.Clear()

	for frame := uint32(0); frame < frameCount; frame++ {
		x := float64(int(frame)%frameMapColumns) * frameCellSize
		y := float64(int(frame)/frameMapColumns) * frameCellSize

		if isReserved(pmm.Frame(frame)) {
			dc.SetRGB(0.2, 0.2, 0.3)
		} else {
			dc.SetRGB(0.6, 0.85, 0.6)
		}

		dc.DrawRectangle(x, y, frameCellSize-1, frameCellSize-1)
		dc.Fill()
	}

	if err := dc.SavePNG(path); err != nil {
		return errors.Wrapf(err, "saving frame map to %s", path)
	}

	return nil
}
