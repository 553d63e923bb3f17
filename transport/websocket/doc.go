// Package websocket provides the WebSocket transport for chess-relay.
//
// The websocket package implements:
//   - Connection upgrade with an origin allow-list
//   - A unique id per connection
//   - Named JSON events in both directions
//   - Rooms, with each connection in at most one room
//   - Emission to a single connection or to a whole room
//
// Architecture:
//
// The package uses a hub-and-spoke model where a central Hub manages all
// WebSocket connections. Each connection has a read goroutine and a write
// goroutine; the hub's event loop serializes registration, disconnection
// and inbound events, and hands each event to an EventHandler.
//
// Message Protocol:
//
// Every frame is a JSON envelope:
//
//	{"event": "join-session", "data": {"sessionId": "K3X9Q2A", "participantId": "bob"}}
//
// Outbound frames use the same shape, one event per text frame. Frames that
// do not decode produce an "error" event for the sender.
//
// Usage:
//
//	hub := websocket.NewHub(logger, allowedOrigins)
//	go hub.Run(dispatcher)
//	http.HandleFunc("/ws", hub.ServeWS)
//
// The Hub also satisfies relay.Transport, so the dispatcher it feeds can
// emit and manage rooms through it.
//
// Slow Consumers:
//
// Emission never blocks. A connection whose send queue is full is dropped
// and removed from its room.
package websocket
