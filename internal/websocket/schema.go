package websocket

import "encoding/json"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is the only message a monitor client sends.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError              Event = "error"
	EventSnapshot           Event = "snapshot"
	EventCredentialConsumed Event = "credential_consumed"
	EventPong               Event = "pong"
)

// SnapshotResponse is sent once when a monitor attaches.
type SnapshotResponse struct {
	Event  Event  `json:"event"`
	ExamID int64  `json:"exam_id"`
	Name   string `json:"name"`
	Active bool   `json:"is_active"`
	Total  int    `json:"total_credentials"`
	Used   int    `json:"used_credentials"`
}

// CredentialConsumedResponse forwards a login event. Data is the raw
// published payload.
type CredentialConsumedResponse struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
