// Package session implements one connection's side of the protocol: it
// decodes inbound JSON frames, translates them into engine mutation
// events, and owns the per-connection send/receive pumps (read timeouts,
// ping/pong keepalive, write pacing) that the engine never has to know
// about.
package session

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/cpsdqs/place/internal/admin"
	"github.com/cpsdqs/place/internal/audit"
	"github.com/cpsdqs/place/internal/auth"
	"github.com/cpsdqs/place/internal/engine"
	"github.com/cpsdqs/place/internal/wire"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 16

	authFailureCooldown = 3 * time.Second
)

// Conn is the subset of *websocket.Conn a session needs; abstracted so
// the pumps can be exercised without a real socket.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// EngineHandle is the slice of *engine.Engine a session needs: enqueuing
// mutation events, and the three admin.Dependencies methods for console
// dispatch.
type EngineHandle interface {
	Enqueue(msg engine.Msg)
	SetSize(n uint32)
	Broadcast(text string)
	ListClients() []string
}

// Handler is one connection's session. Construct with New, then call
// Serve from the connection's own goroutine.
type Handler struct {
	id     uint64
	label  string
	conn   Conn
	engine EngineHandle
	auth   *auth.Store
	audit  *audit.Store

	send chan []byte

	login           string
	lastAuthFailure time.Time

	limiter *rate.Limiter
}

// New creates a session handler for a freshly upgraded connection. id
// must be unique and monotonically assigned by the listener; label is an
// opaque human-readable fingerprint (see transport's uuid-based
// assignment).
func New(id uint64, label string, conn Conn, eng EngineHandle, authStore *auth.Store, auditStore *audit.Store) *Handler {
	return &Handler{
		id:      id,
		label:   label,
		conn:    conn,
		engine:  eng,
		auth:    authStore,
		audit:   auditStore,
		send:    make(chan []byte, 256),
		limiter: rate.NewLimiter(50, 100),
	}
}

// Send implements registry.Sender: it queues a frame for the write pump,
// returning an error if the connection's outbound buffer is full rather
// than blocking the engine's single-writer tick.
func (h *Handler) Send(frame []byte) error {
	select {
	case h.send <- frame:
		return nil
	default:
		return errSendBufferFull
	}
}

var errSendBufferFull = errors.New("session: send buffer full")

// Serve runs the read and write pumps until the connection closes. It
// blocks until both pumps have exited.
func (h *Handler) Serve() {
	h.engine.Enqueue(engine.FullUpdateJoin{ID: h.id, Label: h.label, Send: h})

	done := make(chan struct{})
	go func() {
		h.writePump()
		close(done)
	}()

	h.readPump()

	h.engine.Enqueue(engine.Remove{ID: h.id})
	h.conn.Close()
	<-done
}

func (h *Handler) readPump() {
	h.conn.SetReadLimit(maxMsgSize)
	h.conn.SetReadDeadline(time.Now().Add(pongWait))
	h.conn.SetPongHandler(func(string) error {
		h.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, data, err := h.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			h.sendError("socket-message-type", "Message type must be text")
			continue
		}
		if !h.limiter.Allow() {
			continue
		}
		h.handleRequest(data)
	}
}

func (h *Handler) handleRequest(data []byte) {
	req, err := wire.DecodeRequest(data)
	if err != nil {
		h.sendError("message-json", "Invalid message: "+err.Error())
		return
	}

	switch req.Type {
	case "set-pixel":
		var payload wire.SetPixelData
		if err := json.Unmarshal(req.Data, &payload); err != nil {
			h.sendError("message-json", "Invalid message: "+err.Error())
			return
		}
		h.engine.Enqueue(engine.SetPixel{X: payload.X, Y: payload.Y, R: payload.R, G: payload.G, B: payload.B})

	case "chat-message":
		var payload wire.ChatMessageData
		if err := json.Unmarshal(req.Data, &payload); err != nil {
			h.sendError("message-json", "Invalid message: "+err.Error())
			return
		}
		h.engine.Enqueue(engine.ChatMessage{X: payload.X, Y: payload.Y, Text: payload.Text})

	case "auth":
		var payload wire.AuthData
		if err := json.Unmarshal(req.Data, &payload); err != nil {
			h.sendError("message-json", "Invalid message: "+err.Error())
			return
		}
		h.handleAuth(payload)

	case "console":
		var line string
		if err := json.Unmarshal(req.Data, &line); err != nil {
			h.sendError("message-json", "Invalid message: "+err.Error())
			return
		}
		h.handleConsole(line)

	default:
		h.sendError("message-json", "Invalid message: unknown type "+req.Type)
	}
}

// handleAuth rate-limits repeated failures: an attempt less than
// authFailureCooldown after the last failure yields a null
// (rate-limited) reply without consulting the credential store at all.
func (h *Handler) handleAuth(payload wire.AuthData) {
	if !h.lastAuthFailure.IsZero() && time.Since(h.lastAuthFailure) < authFailureCooldown {
		h.sendAuthResult(nil)
		return
	}

	ok := h.auth.Verify(payload.Login, payload.Password)
	if ok {
		h.login = payload.Login
	} else {
		h.lastAuthFailure = time.Now()
	}
	h.sendAuthResult(&ok)
}

func (h *Handler) sendAuthResult(result *bool) {
	raw, err := wire.EncodeAuthResult(result)
	if err != nil {
		log.Printf("session %d: encode auth result: %v", h.id, err)
		return
	}
	if err := h.Send(raw); err != nil {
		log.Printf("session %d: send: %v", h.id, err)
	}
}

// handleConsole requires a prior successful auth (see DESIGN.md): no
// console command takes effect until h.login is set.
func (h *Handler) handleConsole(line string) {
	if h.login == "" {
		h.sendError("unauthorized", "console access requires authentication")
		return
	}

	reply := admin.Run(h.engine, line)
	if reply != "" {
		raw, err := wire.EncodeConsole(reply)
		if err != nil {
			log.Printf("session %d: encode console reply: %v", h.id, err)
		} else {
			h.Send(raw)
		}
	}

	if h.audit != nil {
		if err := h.audit.RecordInvocation(h.login, line, reply); err != nil {
			log.Printf("session %d: audit log write failed: %v", h.id, err)
		}
	}
}

func (h *Handler) sendError(code, message string) {
	raw, err := wire.EncodeError(code, message)
	if err != nil {
		log.Printf("session %d: encode error frame: %v", h.id, err)
		return
	}
	if err := h.Send(raw); err != nil {
		log.Printf("session %d: send: %v", h.id, err)
	}
}

func (h *Handler) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer h.conn.Close()

	for {
		select {
		case frame, ok := <-h.send:
			h.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				h.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := h.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("session %d: write error: %v", h.id, err)
				return
			}
		case <-ticker.C:
			h.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := h.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
