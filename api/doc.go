// Package api provides the HTTP surface of chess-relay.
//
// Endpoints:
//
// Realtime:
//   - GET /ws - WebSocket upgrade; all gameplay happens over this connection
//
// Introspection (read-only):
//   - GET /api/sessions - List live sessions, without codes (sort=created|activity, order=asc|desc, limit=N)
//   - GET /api/sessions/{id} - Get one session summary
//   - GET /api/stats - Session, connection and room counts
//   - GET /healthz - Liveness probe
//
// Session summaries name the participants and the side to move but never
// carry the board; only connections bound to the session see positions.
// Listings also leave out session codes, so a caller must already know a code
// to look a session up.
//
// Browser requests to /api are checked against the same origin allow-list
// as websocket upgrades.
//
// Errors are returned as {"error": "message"} with a matching status code.
package api
