// Package session provides the session registry for chess-relay.
//
// The session package implements:
//   - Thread-safe storage of two-player sessions keyed by a short code
//   - Random 7-character session code generation (A-Z, 0-9)
//   - The three state transitions: create, join, apply move
//   - Read access for introspection (Get, List, Count)
//   - Opt-in reaping of idle sessions
//
// Core Types:
//
// Manager is the registry. Session is a value snapshot of one game: the two
// participants, the opaque board state and the side to move.
//
// Session Identifiers:
//
// Codes are drawn from crypto/rand and are short enough to read out loud.
// They are not checked for collisions; a collision replaces the older
// session. Lookups ignore surrounding whitespace and letter case.
//
// Trust:
//
// ApplyMove overwrites board and turn with whatever the caller supplies.
// The registry does not check legality, participation or turn order.
//
// Usage:
//
//	manager := session.NewManager()
//
//	s := manager.Create("alice")
//
//	s, err := manager.Join(s.ID, "bob")
//	if errors.Is(err, session.ErrSessionFull) {
//		// someone else got there first
//	}
//
//	s, ok := manager.ApplyMove(s.ID, fen, chess.SecondSide)
//
// Lifetime:
//
// Sessions live as long as the process. CleanupIdleSessions exists for
// deployments that choose to bound memory; nothing calls it by default.
package session
