package canvas

import (
	"encoding/binary"
	"fmt"
)

const headerSize = 8

// ErrMalformedSnapshot is returned by Load when the byte blob's declared
// dimensions do not match its payload length.
var ErrMalformedSnapshot = fmt.Errorf("malformed snapshot")

// Load parses an 8-byte big-endian {width, height} header followed by the
// raw pixel buffer. Unlike the original encoder this never repeats width
// into the height slot — see Save.
func Load(data []byte) (*Canvas, error) {
	if len(data) < headerSize {
		return nil, ErrMalformedSnapshot
	}
	w := binary.BigEndian.Uint32(data[0:4])
	h := binary.BigEndian.Uint32(data[4:8])
	pixels := data[headerSize:]
	if uint64(w)*uint64(h)*3 != uint64(len(pixels)) {
		return nil, ErrMalformedSnapshot
	}
	buf := make([]byte, len(pixels))
	copy(buf, pixels)
	return &Canvas{Width: w, Height: h, Pixels: buf, dirty: make(map[[2]uint32]struct{})}, nil
}

// Save emits the header-plus-pixels blob. Both header slots carry their
// respective dimension: width then height.
func (c *Canvas) Save() []byte {
	out := make([]byte, headerSize+len(c.Pixels))
	binary.BigEndian.PutUint32(out[0:4], c.Width)
	binary.BigEndian.PutUint32(out[4:8], c.Height)
	copy(out[headerSize:], c.Pixels)
	return out
}
