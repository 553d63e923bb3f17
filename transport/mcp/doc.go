// Package mcp exposes the chess relay to AI agents over the Model Context Protocol.
//
// The Client is a thin proxy: every tool call becomes a request against the
// read-only REST API served by package api, so the same tools work over stdio
// against a remote server or through the /mcp HTTP endpoint of a local one.
//
// MCP Tools:
//   - list_sessions: live sessions with participants, side to move and move count, no codes
//   - get_session: one session by code
//   - relay_stats: session, connection and room counts
//   - protocol_guide: the websocket events players exchange
//
// None of the tools can create sessions or submit moves, and none return the
// board position.
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:3001")
//	server.ServeStdio(client.GetMCPServer())
package mcp
