package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cpsdqs/place/internal/audit"
	"github.com/cpsdqs/place/internal/auth"
	"github.com/cpsdqs/place/internal/engine"
)

// fakeConn is an in-memory Conn: ReadMessage drains a queue of inbound
// frames fed by the test, WriteMessage records everything written out.
type fakeConn struct {
	mu      sync.Mutex
	inbound []fakeInboundMsg
	written [][]byte
	closed  bool
}

type fakeInboundMsg struct {
	msgType int
	data    []byte
}

func (c *fakeConn) feed(msgType int, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inbound = append(c.inbound, fakeInboundMsg{msgType, data})
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	for {
		c.mu.Lock()
		if len(c.inbound) > 0 {
			msg := c.inbound[0]
			c.inbound = c.inbound[1:]
			c.mu.Unlock()
			return msg.msgType, msg.data, nil
		}
		if c.closed {
			c.mu.Unlock()
			return 0, nil, errClosed
		}
		c.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
}

func (c *fakeConn) WriteMessage(msgType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msgType == websocket.TextMessage {
		cp := append([]byte(nil), data...)
		c.written = append(c.written, cp)
	}
	return nil
}

func (c *fakeConn) writtenFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) SetReadLimit(int64)               {}
func (c *fakeConn) SetPongHandler(func(string) error) {}
func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type closedError struct{}

func (closedError) Error() string { return "fakeConn: closed" }

var errClosed = closedError{}

type fakeEngine struct {
	mu        sync.Mutex
	enqueued  []engine.Msg
	sizes     []uint32
	broadcast []string
}

func (f *fakeEngine) Enqueue(msg engine.Msg) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, msg)
}
func (f *fakeEngine) SetSize(n uint32)      { f.mu.Lock(); f.sizes = append(f.sizes, n); f.mu.Unlock() }
func (f *fakeEngine) Broadcast(text string) { f.mu.Lock(); f.broadcast = append(f.broadcast, text); f.mu.Unlock() }
func (f *fakeEngine) ListClients() []string { return []string{"a", "b"} }

func (f *fakeEngine) msgs() []engine.Msg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.Msg(nil), f.enqueued...)
}

func newTestAuthStore(t *testing.T) *auth.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logins.json")
	sum := sha256.Sum256([]byte("hunter2" + "s4lt"))
	digest := hex.EncodeToString(sum[:])
	data, _ := json.Marshal(map[string]auth.Login{"admin": {Salt: "s4lt", Digest: digest}})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write logins: %v", err)
	}
	store, err := auth.Load(path)
	if err != nil {
		t.Fatalf("auth.Load: %v", err)
	}
	return store
}

func decodeEnvelope(t *testing.T, frame []byte) (string, json.RawMessage) {
	t.Helper()
	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env.Type, env.Data
}

func TestSetPixelEnqueuesMutation(t *testing.T) {
	conn := &fakeConn{}
	eng := &fakeEngine{}
	h := New(1, "tester", conn, eng, newTestAuthStore(t), nil)

	h.handleRequest([]byte(`{"type":"set-pixel","data":{"x":1,"y":2,"r":10,"g":20,"b":30}}`))

	msgs := eng.msgs()
	if len(msgs) != 1 {
		t.Fatalf("len(msgs) = %d, want 1", len(msgs))
	}
	sp, ok := msgs[0].(engine.SetPixel)
	if !ok {
		t.Fatalf("expected engine.SetPixel, got %T", msgs[0])
	}
	if sp.X != 1 || sp.Y != 2 || sp.R != 10 || sp.G != 20 || sp.B != 30 {
		t.Fatalf("unexpected SetPixel payload: %+v", sp)
	}
}

func TestMalformedJSONSendsMessageJSONError(t *testing.T) {
	conn := &fakeConn{}
	eng := &fakeEngine{}
	h := New(1, "tester", conn, eng, newTestAuthStore(t), nil)

	h.handleRequest([]byte(`not json`))

	if len(h.send) != 1 {
		t.Fatalf("expected exactly one queued error frame")
	}
	frame := <-h.send
	typ, data := decodeEnvelope(t, frame)
	if typ != "error" {
		t.Fatalf("frame type = %q, want error", typ)
	}
	var errFrame struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(data, &errFrame); err != nil {
		t.Fatalf("decode error data: %v", err)
	}
	if errFrame.Code != "message-json" {
		t.Fatalf("error code = %q, want message-json", errFrame.Code)
	}
}

func TestAuthRateLimitsRepeatedFailures(t *testing.T) {
	conn := &fakeConn{}
	eng := &fakeEngine{}
	h := New(1, "tester", conn, eng, newTestAuthStore(t), nil)

	h.handleRequest([]byte(`{"type":"auth","data":{"login":"admin","password":"wrong"}}`))
	first := <-h.send
	_, data := decodeEnvelope(t, first)
	var firstResult *bool
	if err := json.Unmarshal(data, &firstResult); err != nil {
		t.Fatalf("decode auth result: %v", err)
	}
	if firstResult == nil || *firstResult != false {
		t.Fatalf("expected false on first failed attempt, got %v", firstResult)
	}

	h.handleRequest([]byte(`{"type":"auth","data":{"login":"admin","password":"wrong"}}`))
	second := <-h.send
	_, data2 := decodeEnvelope(t, second)
	var secondResult *bool
	if err := json.Unmarshal(data2, &secondResult); err != nil {
		t.Fatalf("decode auth result: %v", err)
	}
	if secondResult != nil {
		t.Fatalf("expected null (rate-limited) on immediate retry, got %v", *secondResult)
	}
}

func TestAuthSuccessAllowsConsole(t *testing.T) {
	conn := &fakeConn{}
	eng := &fakeEngine{}
	auditStore, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	defer auditStore.Close()
	h := New(1, "tester", conn, eng, newTestAuthStore(t), auditStore)

	h.handleRequest([]byte(`{"type":"auth","data":{"login":"admin","password":"hunter2"}}`))
	authFrame := <-h.send
	_, data := decodeEnvelope(t, authFrame)
	var result *bool
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("decode auth result: %v", err)
	}
	if result == nil || !*result {
		t.Fatalf("expected successful auth, got %v", result)
	}

	h.handleRequest([]byte(`{"type":"console","data":"set-size 300"}`))
	consoleFrame := <-h.send
	typ, _ := decodeEnvelope(t, consoleFrame)
	if typ != "console" {
		t.Fatalf("frame type = %q, want console", typ)
	}

	sizes := eng.sizes
	if len(sizes) != 1 || sizes[0] != 300 {
		t.Fatalf("SetSize not invoked with 300, got %v", sizes)
	}

	recent, err := auditStore.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 || recent[0].Login != "admin" {
		t.Fatalf("expected one audited invocation by admin, got %+v", recent)
	}
}

func TestConsoleWithoutAuthIsRejected(t *testing.T) {
	conn := &fakeConn{}
	eng := &fakeEngine{}
	h := New(1, "tester", conn, eng, newTestAuthStore(t), nil)

	h.handleRequest([]byte(`{"type":"console","data":"help"}`))
	frame := <-h.send
	typ, data := decodeEnvelope(t, frame)
	if typ != "error" {
		t.Fatalf("frame type = %q, want error", typ)
	}
	var errFrame struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(data, &errFrame); err != nil {
		t.Fatalf("decode error data: %v", err)
	}
	if errFrame.Code != "unauthorized" {
		t.Fatalf("error code = %q, want unauthorized", errFrame.Code)
	}
	if len(eng.msgs()) != 0 {
		t.Fatalf("unauthorized console should not enqueue anything")
	}
}

func TestNonTextFrameSendsSocketMessageTypeError(t *testing.T) {
	conn := &fakeConn{}
	conn.feed(websocket.BinaryMessage, []byte{1, 2, 3})
	eng := &fakeEngine{}
	h := New(1, "tester", conn, eng, newTestAuthStore(t), nil)

	done := make(chan struct{})
	go func() {
		h.readPump()
		close(done)
	}()

	var frame []byte
	select {
	case frame = <-h.send:
	case <-time.After(2 * time.Second):
		conn.Close()
		t.Fatalf("no error frame queued in time")
	}
	conn.Close()
	<-done

	typ, data := decodeEnvelope(t, frame)
	if typ != "error" {
		t.Fatalf("frame type = %q, want error", typ)
	}
	var errFrame struct {
		Code string `json:"code"`
	}
	json.Unmarshal(data, &errFrame)
	if errFrame.Code != "socket-message-type" {
		t.Fatalf("error code = %q, want socket-message-type", errFrame.Code)
	}
}
