package ws

import "encoding/json"

// Inbound events.
const (
	EventJoinRoom     = "join_room"
	EventLeaveRoom    = "leave_room"
	EventVideoControl = "video_control"
	EventSendMessage  = "send_message"
	EventSyncRequest  = "sync_request"
)

// Outbound events. video_control is relayed under its inbound name.
const (
	EventRoomUpdate     = "room_update"
	EventReceiveMessage = "receive_message"
	EventSyncResponse   = "sync_response"
	EventError          = "error"
)

// Playback actions carried by video_control.
const (
	ActionPlay  = "play"
	ActionPause = "pause"
	ActionSeek  = "seek"
)

// Envelope wraps every WS frame.
type Envelope struct {
	Event string          `json:"event"`          // e.g. "join_room"
	Body  json.RawMessage `json:"body,omitempty"` // arbitrary JSON object
}

// ──────────────────────────── Request DTOs ────────────────────────────────────

// JoinRoomRequest is the body for "join_room". UserID is optional; when sent
// it must match the authenticated identity.
type JoinRoomRequest struct {
	RoomID string `json:"roomId" validate:"required,max=128"`
	UserID string `json:"userId,omitempty"`
}

// LeaveRoomRequest is the body for "leave_room".
type LeaveRoomRequest struct {
	RoomID string `json:"roomId" validate:"required,max=128"`
	UserID string `json:"userId,omitempty"`
}

// VideoControlRequest is the body for "video_control".
type VideoControlRequest struct {
	RoomID string   `json:"roomId" validate:"required,max=128"`
	Action string   `json:"action" validate:"required"`
	Time   *float64 `json:"time,omitempty"`
}

// SendMessageRequest is the body for "send_message". Message is relayed as-is.
type SendMessageRequest struct {
	RoomID  string          `json:"roomId" validate:"required,max=128"`
	Message json.RawMessage `json:"message"`
}

// SyncRequest is the body for "sync_request".
type SyncRequest struct {
	RoomID string `json:"roomId" validate:"required,max=128"`
}

// ──────────────────────────── Response DTOs ───────────────────────────────────

// Member is one identity inside a room.
type Member struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// RoomUpdateBody is broadcast to the whole room on membership changes.
type RoomUpdateBody struct {
	Members     []Member `json:"members"`
	CurrentTime float64  `json:"currentTime"`
	IsPlaying   bool     `json:"isPlaying"`
}

// VideoControlBody is relayed to everyone but the sender.
type VideoControlBody struct {
	Action string   `json:"action"`
	Time   *float64 `json:"time,omitempty"`
}

// SyncResponseBody answers a sync_request.
type SyncResponseBody struct {
	CurrentTime float64 `json:"currentTime"`
	IsPlaying   bool    `json:"isPlaying"`
}

// ErrorBody is returned for failures when error replies are enabled.
type ErrorBody struct {
	Event string `json:"event,omitempty"`
	Error string `json:"error"`
}

// frame encodes an outbound envelope once so fan-out can share the bytes.
func frame(event string, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Body: raw})
}
