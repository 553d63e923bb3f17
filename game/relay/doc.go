// Package relay implements the connection dispatcher of chess-relay.
//
// The dispatcher sits between a connection transport and the session
// registry. For every inbound event it decodes the payload, applies the
// matching registry transition and emits the outcome:
//
//	create-session  -> Create    -> session-created to the requester
//	join-session    -> Join      -> session-started to the room, or error to the requester
//	submit-move     -> ApplyMove -> move-applied to the room, or nothing
//
// Rooms are named after session ids. A connection joins the room of the
// session it created or joined and leaves it when it disconnects.
//
// Join failures are reported; moves against an unknown session are not.
// The dispatcher performs no move validation and does not check that the
// sender of a move belongs to the session.
//
// Transport is deliberately narrow: emit to one connection, emit to a room,
// join a room, leave a room. transport/websocket provides the production
// implementation; tests use an in-memory recorder.
package relay
