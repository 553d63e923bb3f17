package session

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wricardo/chess-relay/game/chess"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionFull     = errors.New("session is already full")
)

// Session is a snapshot of one two-player game. Values handed out by the
// Manager are copies; mutating them does not affect the registry.
type Session struct {
	ID                string
	FirstParticipant  string
	SecondParticipant string
	// Joined flips to true exactly once, when SecondParticipant is set.
	Joined         bool
	BoardState     string
	ActiveSide     chess.Side
	MoveCount      int
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// Manager is the session registry. All methods are safe for concurrent use
// and each one is a single critical section.
type Manager struct {
	sessions map[string]*Session
	newID    IDGenerator
	now      func() time.Time
	mu       sync.RWMutex
}

// NewManager creates a registry that generates random 7-character codes.
func NewManager() *Manager {
	return NewManagerWithGenerator(RandomID)
}

// NewManagerWithGenerator creates a registry using gen for session ids.
func NewManagerWithGenerator(gen IDGenerator) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		newID:    gen,
		now:      time.Now,
	}
}

// Create registers a new session owned by creatorID and returns it.
// A generated id that collides with a live session replaces it.
func (m *Manager) Create(creatorID string) Session {
	id := m.newID()
	now := m.now()

	s := &Session{
		ID:               id,
		FirstParticipant: creatorID,
		BoardState:       chess.StartingPosition,
		ActiveSide:       chess.FirstSide,
		CreatedAt:        now,
		LastActivityAt:   now,
	}

	m.mu.Lock()
	m.sessions[normalizeID(id)] = s
	m.mu.Unlock()

	return *s
}

// Join seats joinerID as the second participant.
func (m *Manager) Join(id, joinerID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[normalizeID(id)]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if s.Joined {
		return Session{}, ErrSessionFull
	}

	s.SecondParticipant = joinerID
	s.Joined = true
	s.LastActivityAt = m.now()

	return *s, nil
}

// ApplyMove overwrites the board and the side to move. The second return
// value is false when no session has the given id.
//
// Nothing about the move is checked: not its legality, not whether the
// caller sits in the session, not whose turn it is.
func (m *Manager) ApplyMove(id, boardState string, activeSide chess.Side) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[normalizeID(id)]
	if !ok {
		return Session{}, false
	}

	s.BoardState = boardState
	s.ActiveSide = activeSide
	s.MoveCount++
	s.LastActivityAt = m.now()

	return *s, true
}

// Get returns a session by id.
func (m *Manager) Get(id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[normalizeID(id)]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return *s, nil
}

// List returns all live sessions ordered by id.
func (m *Manager) List() []Session {
	m.mu.RLock()
	result := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		result = append(result, *s)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupIdleSessions removes sessions with no activity within maxAge and
// returns how many were removed. Sessions otherwise live for the whole
// process; callers opt in to reaping explicitly.
func (m *Manager) CleanupIdleSessions(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxAge)
	removed := 0

	for id, s := range m.sessions {
		if s.LastActivityAt.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}

	return removed
}

// normalizeID makes hand-typed codes match generated ones.
func normalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
