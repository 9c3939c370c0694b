// Package engine is the single-writer tick loop: it is the only mutator
// of the canvas and the client registry, the sole consumer of the
// inbound mutation queue, and the thing that paces outbound broadcasts
// and snapshot persistence.
package engine

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cpsdqs/place/internal/canvas"
	"github.com/cpsdqs/place/internal/registry"
	"github.com/cpsdqs/place/internal/wire"
)

// Options configures the tick engine's pacing and persistence behavior.
type Options struct {
	CanvasPath       string
	TickRate         time.Duration
	SaveInterval     time.Duration
	MaxPixelsPerTick int
	QueueIdleTimeout time.Duration
	BlankWidth       uint32
	BlankHeight      uint32
}

// Engine is the tick loop. Construct with New, then run it on its own
// goroutine via Run.
type Engine struct {
	opts     Options
	canvas   *canvas.Canvas
	registry *registry.Registry
	queue    *queue

	lastSave      time.Time
	dirtySnapshot bool
}

// New loads opts.CanvasPath if present, otherwise starts from a blank
// canvas; a missing snapshot file is not a fatal condition.
func New(opts Options, reg *registry.Registry) (*Engine, error) {
	c, err := loadOrBlank(opts)
	if err != nil {
		return nil, err
	}
	return &Engine{
		opts:     opts,
		canvas:   c,
		registry: reg,
		queue:    newQueue(),
		lastSave: time.Now(),
	}, nil
}

func loadOrBlank(opts Options) (*canvas.Canvas, error) {
	data, err := os.ReadFile(opts.CanvasPath)
	if os.IsNotExist(err) {
		log.Printf("no snapshot at %s, creating blank %dx%d canvas", opts.CanvasPath, opts.BlankWidth, opts.BlankHeight)
		return canvas.Blank(opts.BlankWidth, opts.BlankHeight), nil
	}
	if err != nil {
		return nil, err
	}
	c, err := canvas.Load(data)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded %dx%d canvas from %s", c.Width, c.Height, opts.CanvasPath)
	return c, nil
}

// Enqueue pushes one mutation event onto the inbound queue. Safe to call
// from any goroutine.
func (e *Engine) Enqueue(msg Msg) {
	e.queue.push(msg)
}

// Run drives the tick loop until ctx is canceled.
func (e *Engine) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		batch := e.queue.waitAndDrain(e.opts.QueueIdleTimeout)
		if len(batch) > 0 {
			e.processBatch(batch)
		}

		e.maybePersist()

		select {
		case <-ctx.Done():
			return
		case <-time.After(e.opts.TickRate):
		}
	}
}

// processBatch applies every message in arrival order, then computes and
// broadcasts deltas and any queued chat/admin events.
func (e *Engine) processBatch(batch []Msg) {
	var chatBroadcasts [][]byte
	var fullUpdateFrame []byte

	for _, msg := range batch {
		switch m := msg.(type) {
		case FullUpdateJoin:
			e.registry.Join(m.ID, m.Label, m.Send)
			if fullUpdateFrame == nil {
				region, err := e.canvas.Region(0, 0, e.canvas.Width, e.canvas.Height)
				if err != nil {
					log.Printf("engine: building full update: %v", err)
					continue
				}
				frame, err := wire.EncodeFullUpdate(region)
				if err != nil {
					log.Printf("engine: encoding full update: %v", err)
					continue
				}
				fullUpdateFrame = frame
			}
			if err := m.Send.Send(fullUpdateFrame); err != nil {
				log.Printf("engine: send full update to %d: %v", m.ID, err)
			}

		case Remove:
			e.registry.Remove(m.ID)

		case SetPixel:
			e.canvas.SetPixel(m.X, m.Y, m.R, m.G, m.B)
			e.dirtySnapshot = true

		case ChatMessage:
			text := strings.TrimSpace(m.Text)
			if text == "" {
				continue
			}
			frame, err := wire.EncodeChat(m.X, m.Y, text, false)
			if err != nil {
				log.Printf("engine: encoding chat message: %v", err)
				continue
			}
			chatBroadcasts = append(chatBroadcasts, frame)

		case Broadcast:
			frame, err := wire.EncodeChat(0, 0, m.Text, true)
			if err != nil {
				log.Printf("engine: encoding admin broadcast: %v", err)
				continue
			}
			chatBroadcasts = append(chatBroadcasts, frame)

		case SetSize:
			e.canvas.Resize(m.N, m.N)
			e.dirtySnapshot = true
			region, err := e.canvas.Region(0, 0, e.canvas.Width, e.canvas.Height)
			if err != nil {
				log.Printf("engine: building post-resize full update: %v", err)
				continue
			}
			frame, err := wire.EncodeFullUpdate(region)
			if err != nil {
				log.Printf("engine: encoding post-resize full update: %v", err)
				continue
			}
			chatBroadcasts = append(chatBroadcasts, frame)
		}
	}

	e.fanOutDeltas()

	for _, frame := range chatBroadcasts {
		e.broadcast(frame)
	}
}

func (e *Engine) fanOutDeltas() {
	regions, err := e.canvas.DrainDeltas(e.opts.MaxPixelsPerTick)
	if err != nil {
		log.Printf("engine: delta compression failed: %v", err)
		return
	}
	if len(regions) == 0 {
		return
	}
	frame, err := wire.EncodeRegions(regions)
	if err != nil {
		log.Printf("engine: encoding regions: %v", err)
		return
	}
	e.broadcast(frame)
}

func (e *Engine) broadcast(frame []byte) {
	if errs := e.registry.Broadcast(frame); errs != nil {
		for id, err := range errs {
			log.Printf("engine: broadcast to %d failed: %v", id, err)
		}
	}
}

func (e *Engine) maybePersist() {
	if !e.dirtySnapshot || time.Since(e.lastSave) < e.opts.SaveInterval {
		return
	}

	blob := e.canvas.Save()
	path := e.opts.CanvasPath
	go func() {
		if err := os.WriteFile(path, blob, 0o644); err != nil {
			log.Printf("engine: failed to save snapshot: %v", err)
		}
	}()

	e.lastSave = time.Now()
	e.dirtySnapshot = false
}

// SetSize, Broadcast, and ListClients implement admin.Dependencies, so
// the admin console package can dispatch operator commands without
// reaching into canvas or registry state directly.

// SetSize enqueues a resize mutation.
func (e *Engine) SetSize(n uint32) {
	e.Enqueue(SetSize{N: n})
}

// Broadcast enqueues an admin-originated broadcast.
func (e *Engine) Broadcast(text string) {
	e.Enqueue(Broadcast{Text: text})
}

// ListClients returns the label (or numeric id, if unset) of every
// registered client. Reads the registry directly rather than going
// through the queue: it's a point-in-time read, not a mutation, so
// there's nothing for the tick loop to serialize here.
func (e *Engine) ListClients() []string {
	clients := e.registry.List()
	out := make([]string, len(clients))
	for i, c := range clients {
		if c.Label != "" {
			out[i] = c.Label
		} else {
			out[i] = strconv.FormatUint(c.ID, 10)
		}
	}
	return out
}
