// Package wire defines the JSON-framed request/reply types exchanged over
// the /canvas socket, plus the RGB-to-RGBA base64 conversion the outbound
// frames use.
package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/cpsdqs/place/internal/canvas"
)

// Request is a decoded inbound frame, discriminated by Type.
type Request struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// SetPixelData is the payload of a "set-pixel" request.
type SetPixelData struct {
	X uint32 `json:"x"`
	Y uint32 `json:"y"`
	R uint8  `json:"r"`
	G uint8  `json:"g"`
	B uint8  `json:"b"`
}

// ChatMessageData is the payload of a "chat-message" request.
type ChatMessageData struct {
	X    float32 `json:"x"`
	Y    float32 `json:"y"`
	Text string  `json:"text"`
}

// AuthData is the payload of an "auth" request.
type AuthData struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// RGBARegion is a wire-ready region: RGBA bytes, base64 encoded.
type RGBARegion struct {
	X    uint32 `json:"x"`
	Y    uint32 `json:"y"`
	W    uint32 `json:"w"`
	H    uint32 `json:"h"`
	Data string `json:"data"`
}

// NewRGBARegion converts a canvas.Region's packed RGB bytes into a
// base64-encoded RGBA (alpha=255) wire region, so browser clients can
// paint directly into an image buffer.
func NewRGBARegion(r canvas.Region) RGBARegion {
	rgba := make([]byte, 0, len(r.Data)/3*4)
	for i := 0; i+2 < len(r.Data); i += 3 {
		rgba = append(rgba, r.Data[i], r.Data[i+1], r.Data[i+2], 255)
	}
	return RGBARegion{
		X:    r.X,
		Y:    r.Y,
		W:    r.W,
		H:    r.H,
		Data: base64.StdEncoding.EncodeToString(rgba),
	}
}

// FullUpdateFrame is the outbound "full-update" reply.
type FullUpdateFrame struct {
	W    uint32 `json:"w"`
	H    uint32 `json:"h"`
	Data string `json:"data"`
}

// ChatFrame is the outbound "chat-message" broadcast.
type ChatFrame struct {
	X       float32  `json:"x"`
	Y       float32  `json:"y"`
	Text    string   `json:"text"`
	IDHue   *float32 `json:"id_hue"`
	IsAdmin bool     `json:"is_admin"`
}

// ErrorFrame is the outbound "error" reply.
type ErrorFrame struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type outbound struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// EncodeFullUpdate serializes a "full-update" frame from a whole-canvas region.
func EncodeFullUpdate(r canvas.Region) ([]byte, error) {
	rgba := NewRGBARegion(r)
	return json.Marshal(outbound{Type: "full-update", Data: FullUpdateFrame{W: r.W, H: r.H, Data: rgba.Data}})
}

// EncodeRegions serializes a "regions" frame from a batch of delta regions.
func EncodeRegions(regions []canvas.Region) ([]byte, error) {
	out := make([]RGBARegion, len(regions))
	for i, r := range regions {
		out[i] = NewRGBARegion(r)
	}
	return json.Marshal(outbound{Type: "regions", Data: out})
}

// EncodeChat serializes a "chat-message" outbound frame. id_hue is always
// null on server-originated frames: the wire format carries no sender id.
func EncodeChat(x, y float32, text string, isAdmin bool) ([]byte, error) {
	return json.Marshal(outbound{Type: "chat-message", Data: ChatFrame{X: x, Y: y, Text: text, IDHue: nil, IsAdmin: isAdmin}})
}

// EncodeError serializes an "error" outbound frame.
func EncodeError(code, message string) ([]byte, error) {
	return json.Marshal(outbound{Type: "error", Data: ErrorFrame{Code: code, Message: message}})
}

// EncodeAuthResult serializes an "auth" outbound frame. result is nil for
// the rate-limited case.
func EncodeAuthResult(result *bool) ([]byte, error) {
	return json.Marshal(outbound{Type: "auth", Data: result})
}

// EncodeConsole serializes a "console" outbound reply line.
func EncodeConsole(line string) ([]byte, error) {
	return json.Marshal(outbound{Type: "console", Data: line})
}

// DecodeRequest parses an inbound text frame into a Request envelope.
func DecodeRequest(raw []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}
