// Package canvas owns the authoritative pixel grid: the raw RGB buffer,
// the set of pixels changed since the last broadcast, and the operations
// the tick engine uses to mutate and snapshot it.
package canvas

import "fmt"

// ErrOutOfBounds is returned when a requested region exceeds the canvas.
var ErrOutOfBounds = fmt.Errorf("region out of bounds")

// Region is an axis-aligned rectangle plus the RGB bytes covering it, row
// by row. It is produced by the delta compressor and by full snapshots,
// and consumed by the wire-frame encoder.
type Region struct {
	X, Y, W, H uint32
	Data       []byte // len == W*H*3, RGB
}

// Canvas is the width x height RGB pixel grid. It is mutated only by the
// tick engine; every other goroutine only ever reads it through a Region
// handed out under that discipline.
type Canvas struct {
	Width, Height uint32
	Pixels        []byte // row-major, 3 bytes/pixel, no row padding

	dirty map[[2]uint32]struct{}
}

// Blank creates a white w x h canvas with no dirty pixels.
func Blank(w, h uint32) *Canvas {
	pixels := make([]byte, int(w)*int(h)*3)
	for i := range pixels {
		pixels[i] = 255
	}
	return &Canvas{Width: w, Height: h, Pixels: pixels, dirty: make(map[[2]uint32]struct{})}
}

func (c *Canvas) index(x, y uint32) int {
	return int(c.Width*y+x) * 3
}

// SetPixel overwrites the pixel at (x, y) and marks it dirty. Out-of-bounds
// coordinates are silently ignored. Setting the same color twice still
// marks the pixel dirty: this is intentionally idempotent in color, not in
// dirty-tracking.
func (c *Canvas) SetPixel(x, y uint32, r, g, b byte) {
	if x >= c.Width || y >= c.Height {
		return
	}
	i := c.index(x, y)
	c.Pixels[i+0] = r
	c.Pixels[i+1] = g
	c.Pixels[i+2] = b
	c.dirty[[2]uint32{x, y}] = struct{}{}
}

// Region extracts a bounds-checked rectangle of the canvas, row by row.
func (c *Canvas) Region(x, y, w, h uint32) (Region, error) {
	if x >= c.Width || x+w > c.Width || y >= c.Height || y+h > c.Height {
		return Region{}, ErrOutOfBounds
	}
	data := make([]byte, 0, int(w)*int(h)*3)
	for iy := y; iy < y+h; iy++ {
		start := c.index(x, iy)
		end := c.index(x+w, iy)
		data = append(data, c.Pixels[start:end]...)
	}
	return Region{X: x, Y: y, W: w, H: h, Data: data}, nil
}

// Resize allocates a new white w x h buffer, copies the overlapping
// top-left sub-rectangle of the previous canvas into it, and clears the
// dirty set: a resize always triggers a fresh full-update to every client,
// so per-pixel deltas spanning the resize would be redundant.
func (c *Canvas) Resize(newW, newH uint32) {
	next := make([]byte, int(newW)*int(newH)*3)
	for i := range next {
		next[i] = 255
	}

	maxX := c.Width
	if newW < maxX {
		maxX = newW
	}
	maxY := c.Height
	if newH < maxY {
		maxY = newH
	}

	for y := uint32(0); y < maxY; y++ {
		srcStart := c.index(0, y)
		srcEnd := c.index(maxX, y)
		dstStart := int(newW*y) * 3
		copy(next[dstStart:dstStart+(srcEnd-srcStart)], c.Pixels[srcStart:srcEnd])
	}

	c.Width = newW
	c.Height = newH
	c.Pixels = next
	c.dirty = make(map[[2]uint32]struct{})
}

// DrainDeltas runs the quadtree delta compressor (see quadtree.go) over the
// dirty set, removing every coordinate it consumes. When maxPixels is
// positive, only that many dirty points are considered this call; the rest
// remain dirty for a subsequent call.
func (c *Canvas) DrainDeltas(maxPixels int) ([]Region, error) {
	qt := newQuadNode(0, 0, c.Width, c.Height)

	i := 0
	for pt := range c.dirty {
		if maxPixels > 0 && i == maxPixels {
			break
		}
		qt.insert(pt[0], pt[1])
		delete(c.dirty, pt)
		i++
	}

	qt.reduce()

	var regions []Region
	for _, rect := range qt.regions() {
		region, err := c.Region(rect.x, rect.y, rect.w, rect.h)
		if err != nil {
			return nil, fmt.Errorf("delta compressor produced invalid rectangle: %w", err)
		}
		regions = append(regions, region)
	}
	return regions, nil
}

// DirtyCount reports how many coordinates are currently pending broadcast.
func (c *Canvas) DirtyCount() int {
	return len(c.dirty)
}
