package relay

import (
	"encoding/json"
	"fmt"

	"github.com/wricardo/chess-relay/game/chess"
)

// Event names on the wire.
const (
	EventCreateSession  = "create-session"
	EventSessionCreated = "session-created"
	EventJoinSession    = "join-session"
	EventSessionStarted = "session-started"
	EventSubmitMove     = "submit-move"
	EventMoveApplied    = "move-applied"
	EventError          = "error"
)

// CreateSessionRequest is the payload of create-session.
type CreateSessionRequest struct {
	ParticipantID string `json:"participantId"`
}

// UnmarshalJSON also accepts a bare string, which older clients send.
func (r *CreateSessionRequest) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		r.ParticipantID = id
		return nil
	}

	type plain CreateSessionRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("create-session payload: %w", err)
	}
	*r = CreateSessionRequest(p)
	return nil
}

// SessionCreated is sent to the creator only.
type SessionCreated struct {
	SessionID string `json:"sessionId"`
}

// JoinSessionRequest is the payload of join-session.
type JoinSessionRequest struct {
	SessionID     string `json:"sessionId"`
	ParticipantID string `json:"participantId"`
}

// Participants names who sits on each side.
type Participants struct {
	FirstSide  string `json:"firstSide"`
	SecondSide string `json:"secondSide"`
}

// SessionStarted is broadcast to the room once the second participant joins.
type SessionStarted struct {
	Participants Participants `json:"participants"`
	BoardState   string       `json:"boardState"`
	ActiveSide   chess.Side   `json:"activeSide"`
}

// SubmitMoveRequest is the payload of submit-move. From and To are carried
// through untouched; the relay does not look at them.
type SubmitMoveRequest struct {
	SessionID  string          `json:"sessionId"`
	From       json.RawMessage `json:"from,omitempty"`
	To         json.RawMessage `json:"to,omitempty"`
	BoardState string          `json:"boardState"`
	ActiveSide chess.Side      `json:"activeSide"`
}

// MoveApplied is broadcast to the room after every accepted move.
type MoveApplied struct {
	BoardState string     `json:"boardState"`
	ActiveSide chess.Side `json:"activeSide"`
}

// ErrorMessage is sent to a single connection when its request failed.
type ErrorMessage struct {
	Message string `json:"message"`
}
