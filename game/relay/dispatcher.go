package relay

import (
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/wricardo/chess-relay/game/chess"
	"github.com/wricardo/chess-relay/game/session"
)

// Registry is the session state the dispatcher drives.
type Registry interface {
	Create(creatorID string) session.Session
	Get(id string) (session.Session, error)
	Join(id, joinerID string) (session.Session, error)
	ApplyMove(id, boardState string, activeSide chess.Side) (session.Session, bool)
}

// Transport is everything the dispatcher needs from the connection layer.
// Rooms are named after session ids.
type Transport interface {
	// Emit sends an event to one connection.
	Emit(connID, event string, payload any)
	// EmitToRoom sends an event to every connection in the room.
	EmitToRoom(room, event string, payload any)
	// Join binds the connection to room, leaving any previous room.
	Join(connID, room string)
	// Leave unbinds the connection from its room, if any.
	Leave(connID string)
}

// Dispatcher routes inbound connection events to the registry and relays
// the results. It expects events to arrive one at a time.
type Dispatcher struct {
	registry  Registry
	transport Transport
	logger    *zap.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(registry Registry, transport Transport, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		transport: transport,
		logger:    logger,
	}
}

// HandleEvent processes one named event received on connID.
func (d *Dispatcher) HandleEvent(connID, event string, data json.RawMessage) {
	switch event {
	case EventCreateSession:
		d.handleCreateSession(connID, data)
	case EventJoinSession:
		d.handleJoinSession(connID, data)
	case EventSubmitMove:
		d.handleSubmitMove(connID, data)
	default:
		d.logger.Debug("unknown event",
			zap.String("conn_id", connID),
			zap.String("event", event),
		)
		d.emitError(connID, "unknown event: "+event)
	}
}

// HandleDisconnect releases the connection's room membership.
func (d *Dispatcher) HandleDisconnect(connID string) {
	d.transport.Leave(connID)
	d.logger.Debug("connection released", zap.String("conn_id", connID))
}

func (d *Dispatcher) handleCreateSession(connID string, data json.RawMessage) {
	var req CreateSessionRequest
	if err := decode(data, &req); err != nil {
		d.rejectPayload(connID, EventCreateSession, err)
		return
	}

	s := d.registry.Create(req.ParticipantID)
	d.transport.Join(connID, s.ID)
	d.transport.Emit(connID, EventSessionCreated, SessionCreated{SessionID: s.ID})

	d.logger.Info("session created",
		zap.String("session_id", s.ID),
		zap.String("participant_id", req.ParticipantID),
		zap.String("conn_id", connID),
	)
}

func (d *Dispatcher) handleJoinSession(connID string, data json.RawMessage) {
	var req JoinSessionRequest
	if err := decode(data, &req); err != nil {
		d.rejectPayload(connID, EventJoinSession, err)
		return
	}

	s, err := d.registry.Join(req.SessionID, req.ParticipantID)
	if err != nil {
		d.logger.Info("join rejected",
			zap.String("session_id", req.SessionID),
			zap.String("participant_id", req.ParticipantID),
			zap.Error(err),
		)
		d.emitError(connID, joinErrorMessage(err))
		return
	}

	d.transport.Join(connID, s.ID)
	d.transport.EmitToRoom(s.ID, EventSessionStarted, SessionStarted{
		Participants: Participants{
			FirstSide:  s.FirstParticipant,
			SecondSide: s.SecondParticipant,
		},
		BoardState: s.BoardState,
		ActiveSide: s.ActiveSide,
	})

	d.logger.Info("session started",
		zap.String("session_id", s.ID),
		zap.String("first_side", s.FirstParticipant),
		zap.String("second_side", s.SecondParticipant),
	)
}

func (d *Dispatcher) handleSubmitMove(connID string, data json.RawMessage) {
	var req SubmitMoveRequest
	if err := decode(data, &req); err != nil {
		// Moves for unknown sessions are dropped without a reply, even unreadable ones.
		var target struct {
			SessionID string `json:"sessionId"`
		}
		if json.Unmarshal(data, &target) == nil && !d.sessionExists(target.SessionID) {
			d.dropMove(connID, target.SessionID)
			return
		}
		d.rejectPayload(connID, EventSubmitMove, err)
		return
	}
	if !d.sessionExists(req.SessionID) {
		d.dropMove(connID, req.SessionID)
		return
	}

	side, err := chess.ParseSide(string(req.ActiveSide))
	if err != nil {
		d.emitError(connID, "invalid activeSide: "+string(req.ActiveSide))
		return
	}

	s, ok := d.registry.ApplyMove(req.SessionID, req.BoardState, side)
	if !ok {
		// reaped since the lookup
		d.dropMove(connID, req.SessionID)
		return
	}

	d.transport.EmitToRoom(s.ID, EventMoveApplied, MoveApplied{
		BoardState: s.BoardState,
		ActiveSide: s.ActiveSide,
	})

	d.logger.Debug("move applied",
		zap.String("session_id", s.ID),
		zap.String("active_side", s.ActiveSide.String()),
		zap.Int("move_count", s.MoveCount),
	)
}

func (d *Dispatcher) sessionExists(id string) bool {
	_, err := d.registry.Get(id)
	return err == nil
}

func (d *Dispatcher) dropMove(connID, sessionID string) {
	d.logger.Debug("move for unknown session dropped",
		zap.String("session_id", sessionID),
		zap.String("conn_id", connID),
	)
}

func (d *Dispatcher) rejectPayload(connID, event string, err error) {
	d.logger.Debug("malformed payload",
		zap.String("conn_id", connID),
		zap.String("event", event),
		zap.Error(err),
	)
	d.emitError(connID, "malformed "+event+" payload")
}

func (d *Dispatcher) emitError(connID, message string) {
	d.transport.Emit(connID, EventError, ErrorMessage{Message: message})
}

func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return "session not found"
	case errors.Is(err, session.ErrSessionFull):
		return "session is already full"
	default:
		return "could not join session"
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	return json.Unmarshal(data, v)
}
