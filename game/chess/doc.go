// Package chess holds the small amount of chess vocabulary the relay needs.
//
// The relay never interprets positions. A board state is an opaque string
// (FEN in practice) that clients compute and the server stores and forwards.
// What the package does define:
//   - Side, the two seats of a session ("first-side" moves first)
//   - StartingPosition, the board every new session begins with
//
// Move legality is intentionally absent: clients are trusted to submit
// positions that follow from legal moves.
package chess
