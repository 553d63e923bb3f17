// Command smoke drives a two-player game against a running chess relay and
// fails if any broadcast is missing or wrong.
//
//	smoke --url ws://127.0.0.1:3001/ws
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/wricardo/chess-relay/config"
	"github.com/wricardo/chess-relay/game/chess"
	"github.com/wricardo/chess-relay/game/relay"
	"github.com/wricardo/chess-relay/observability"
	hub "github.com/wricardo/chess-relay/transport/websocket"
)

// Opening plays 1.e4 e5.
var Opening = []Move{
	{From: "e2", To: "e4", BoardState: "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"},
	{From: "e7", To: "e5", BoardState: "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq e6 0 2"},
}

// Move is one half-move sent by whichever side is active.
type Move struct {
	From       string
	To         string
	BoardState string
}

// Player is one websocket connection to the relay.
type Player struct {
	name    string
	conn    *websocket.Conn
	timeout time.Duration
}

func Dial(ctx context.Context, url, name string, timeout time.Duration) (*Player, error) {
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s as %s: %w", url, name, err)
	}
	return &Player{name: name, conn: conn, timeout: timeout}, nil
}

func (p *Player) Close() error {
	return p.conn.Close()
}

func (p *Player) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	p.conn.SetWriteDeadline(time.Now().Add(p.timeout))
	if err := p.conn.WriteJSON(hub.Envelope{Event: event, Data: data}); err != nil {
		return fmt.Errorf("%s send %s: %w", p.name, event, err)
	}
	return nil
}

// Expect reads the next frame and decodes it into v if it carries event.
func (p *Player) Expect(event string, v any) error {
	p.conn.SetReadDeadline(time.Now().Add(p.timeout))

	var env hub.Envelope
	if err := p.conn.ReadJSON(&env); err != nil {
		return fmt.Errorf("%s waiting for %s: %w", p.name, event, err)
	}
	if env.Event != event {
		return fmt.Errorf("%s expected %s, got %s: %s", p.name, event, env.Event, env.Data)
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%s parse %s: %w", p.name, event, err)
	}
	return nil
}

// Result summarizes a completed scenario.
type Result struct {
	SessionID  string
	Moves      int
	BoardState string
	ActiveSide chess.Side
}

// Run creates a session as first, joins it as second, then plays moves
// alternately, checking that both players see every broadcast.
func Run(ctx context.Context, url string, first, second string, moves []Move, timeout time.Duration, logger *zap.Logger) (*Result, error) {
	a, err := Dial(ctx, url, first, timeout)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	b, err := Dial(ctx, url, second, timeout)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	if err := a.Send(relay.EventCreateSession, relay.CreateSessionRequest{ParticipantID: first}); err != nil {
		return nil, err
	}
	var created relay.SessionCreated
	if err := a.Expect(relay.EventSessionCreated, &created); err != nil {
		return nil, err
	}
	logger.Info("session created", zap.String("session_id", created.SessionID), zap.String("creator", first))

	if err := b.Send(relay.EventJoinSession, relay.JoinSessionRequest{SessionID: created.SessionID, ParticipantID: second}); err != nil {
		return nil, err
	}

	result := &Result{SessionID: created.SessionID}
	for _, p := range []*Player{a, b} {
		var started relay.SessionStarted
		if err := p.Expect(relay.EventSessionStarted, &started); err != nil {
			return nil, err
		}
		if started.Participants.FirstSide != first || started.Participants.SecondSide != second {
			return nil, fmt.Errorf("%s saw participants %+v", p.name, started.Participants)
		}
		if started.ActiveSide != chess.FirstSide {
			return nil, fmt.Errorf("%s saw %s to move at start", p.name, started.ActiveSide)
		}
		result.BoardState, result.ActiveSide = started.BoardState, started.ActiveSide
	}
	logger.Info("session started", zap.String("session_id", created.SessionID), zap.String("opponent", second))

	movers := map[chess.Side]*Player{chess.FirstSide: a, chess.SecondSide: b}
	for i, m := range moves {
		mover := movers[result.ActiveSide]
		next := result.ActiveSide.Opponent()

		req := relay.SubmitMoveRequest{
			SessionID:  created.SessionID,
			From:       json.RawMessage(fmt.Sprintf("%q", m.From)),
			To:         json.RawMessage(fmt.Sprintf("%q", m.To)),
			BoardState: m.BoardState,
			ActiveSide: next,
		}
		if err := mover.Send(relay.EventSubmitMove, req); err != nil {
			return nil, err
		}

		for _, p := range []*Player{a, b} {
			var applied relay.MoveApplied
			if err := p.Expect(relay.EventMoveApplied, &applied); err != nil {
				return nil, err
			}
			if applied.BoardState != m.BoardState || applied.ActiveSide != next {
				return nil, fmt.Errorf("%s saw move %d as %+v", p.name, i+1, applied)
			}
		}

		result.Moves++
		result.BoardState, result.ActiveSide = m.BoardState, next
		logger.Info("move relayed",
			zap.String("session_id", created.SessionID),
			zap.String("by", mover.name),
			zap.String("from", m.From),
			zap.String("to", m.To),
		)
	}

	return result, nil
}

func main() {
	cmd := &cli.Command{
		Name:  "smoke",
		Usage: "play a short game against a chess relay",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "ws://127.0.0.1:3001/ws", Usage: "relay websocket URL", Sources: cli.EnvVars("RELAY_URL")},
			&cli.StringFlag{Name: "first", Value: "alice", Usage: "participant id of the creator"},
			&cli.StringFlag{Name: "second", Value: "bob", Usage: "participant id of the joiner"},
			&cli.DurationFlag{Name: "timeout", Value: 5 * time.Second, Usage: "per-event timeout"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "log level"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger, err := observability.NewLogger(config.LoggingConfig{
				Level:  cmd.String("log-level"),
				Format: "console",
			}, observability.BuildInfo{App: "smoke"})
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cmd.String("first") == cmd.String("second") {
				return errors.New("first and second must differ")
			}

			result, err := Run(ctx, cmd.String("url"), cmd.String("first"), cmd.String("second"),
				Opening, cmd.Duration("timeout"), logger)
			if err != nil {
				return err
			}

			fmt.Printf("PASS session=%s moves=%d to_move=%s\n", result.SessionID, result.Moves, result.ActiveSide)
			fmt.Printf("board: %s\n", result.BoardState)
			return nil
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}
}
