package engine

import "github.com/cpsdqs/place/internal/registry"

// Msg is the tagged union of mutation events session handlers push onto
// the engine's queue. The tick engine is the sole consumer.
type Msg interface{ isMsg() }

// FullUpdateJoin registers a newly connected client and sends it a full
// canvas snapshot as soon as the join is processed. The snapshot reflects
// the mutations that precede the join in its batch, and is shared by any
// later join in the same batch.
type FullUpdateJoin struct {
	ID    uint64
	Label string
	Send  registry.Sender
}

// Remove unregisters a client. Idempotent if already absent.
type Remove struct {
	ID uint64
}

// SetPixel applies one pixel write to the canvas.
type SetPixel struct {
	X, Y    uint32
	R, G, B byte
}

// ChatMessage is a geolocated chat note from a client.
type ChatMessage struct {
	X, Y float32
	Text string
}

// Broadcast is an admin-originated text broadcast.
type Broadcast struct {
	Text string
}

// SetSize resizes the canvas to N x N.
type SetSize struct {
	N uint32
}

func (FullUpdateJoin) isMsg() {}
func (Remove) isMsg()         {}
func (SetPixel) isMsg()       {}
func (ChatMessage) isMsg()    {}
func (Broadcast) isMsg()      {}
func (SetSize) isMsg()        {}
