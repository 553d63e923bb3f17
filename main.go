// Command chess-relay starts the chess relay server.
//
// It supports two modes:
//  1. "serve" (default) – runs the HTTP server exposing the player websocket,
//     a read-only REST API and an /mcp HTTP endpoint
//  2. "mcp" – runs an MCP stdio server against a running relay, or spins up an
//     internal one if none answers
//
// Flags (and their environment variables) control host/port, allowed browser
// origins, logging, idle session reaping and optional ngrok tunneling.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/chess-relay/api"
	"github.com/wricardo/chess-relay/config"
	"github.com/wricardo/chess-relay/game/relay"
	"github.com/wricardo/chess-relay/game/session"
	"github.com/wricardo/chess-relay/observability"
	"github.com/wricardo/chess-relay/transport/mcp"
	"github.com/wricardo/chess-relay/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Chess Relay Server"
)

// main loads .env, parses flags and runs the selected mode.
func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: error loading .env file: %v\n", err)
	}

	if err := newRootCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:    "chess-relay",
		Usage:   "relay chess positions between two remote players",
		Version: Version,
		Flags:   config.Flags(),
		Action:  runServe,
		Commands: []*cli.Command{
			{
				Name:    "serve",
				Aliases: []string{"server", "http"},
				Usage:   "run the HTTP server with websocket, REST API and MCP endpoint (default)",
				Action:  runServe,
			},
			{
				Name:    "mcp",
				Aliases: []string{"stdio-mcp", "mcp-stdio"},
				Usage:   "run an MCP stdio server, starting an internal relay if none is reachable",
				Action:  runMCP,
			},
		},
	}
}

// setup reads configuration and builds the logger shared by every mode.
func setup(cmd *cli.Command) (config.Config, *zap.Logger, error) {
	cfg, err := config.FromCommand(cmd)
	if err != nil {
		return config.Config{}, nil, err
	}

	logger, err := observability.NewLogger(cfg.Logging, observability.BuildInfo{App: AppName, Version: Version})
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// relayStack is one running relay: registry, hub and the HTTP surface over them.
type relayStack struct {
	sessions *session.Manager
	hub      *websocket.Hub
	api      *api.Server
}

// newRelayStack wires the registry, the websocket hub and the dispatcher
// between them, and starts the hub loop. Callers stop it with hub.Stop.
func newRelayStack(cfg config.Config, logger *zap.Logger) *relayStack {
	sessions := session.NewManager()
	hub := websocket.NewHub(logger, cfg.Server.AllowedOrigins)
	dispatcher := relay.NewDispatcher(sessions, hub, logger)
	go hub.Run(dispatcher)

	return &relayStack{
		sessions: sessions,
		hub:      hub,
		api:      api.NewServer(sessions, hub, logger),
	}
}

// runServe starts the HTTP server with the websocket hub, REST API and an /mcp proxy endpoint.
// If ngrok is enabled it also provisions a public tunnel.
func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting", zap.String("mode", "serve"))

	stack := newRelayStack(cfg, logger)
	defer stack.hub.Stop()

	addr := cfg.Server.Addr()
	mcpClient := mcp.NewClient(loopbackURL(cfg.Server))
	stack.api.Handle("/mcp", mcpHandler(mcpClient))

	if cfg.Session.Reaping() {
		go reapIdleSessions(ctx, stack.sessions, cfg.Session, logger)
	}

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      stack.api,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()

		logger.Info("HTTP server listening",
			zap.String("addr", addr),
			zap.String("websocket", fmt.Sprintf("ws://%s/ws", addr)),
			zap.String("rest", fmt.Sprintf("http://%s/api", addr)),
			zap.String("mcp", fmt.Sprintf("http://%s/mcp", addr)),
			zap.Strings("allowed_origins", cfg.Server.AllowedOrigins),
		)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	if cfg.Tunnel.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := serveTunnel(ctx, cfg.Tunnel, stack.api, logger); err != nil {
				logger.Error("ngrok tunnel failed", zap.Error(err))
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-serveErr:
		stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	stack.hub.Stop()

	wg.Wait()
	logger.Info("server stopped")
	return runErr
}

// serveTunnel serves handler through an ngrok tunnel until ctx is cancelled.
func serveTunnel(ctx context.Context, cfg config.TunnelConfig, handler http.Handler, logger *zap.Logger) error {
	var tunnel ngrokConfig.Tunnel
	if cfg.Domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(cfg.Domain))
		logger.Info("using custom ngrok domain", zap.String("domain", cfg.Domain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(cfg.AuthToken))
	if err != nil {
		return fmt.Errorf("start ngrok tunnel: %w", err)
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			logger.Warn("failed to close ngrok tunnel", zap.Error(err))
		}
	}()

	publicURL := tun.URL()
	logger.Info("ngrok tunnel established",
		zap.String("url", publicURL),
		zap.String("websocket", strings.Replace(publicURL, "https://", "wss://", 1)+"/ws"),
	)

	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		return err
	}
	logger.Info("ngrok tunnel closed")
	return nil
}

// reapIdleSessions periodically removes sessions with no activity within the
// configured TTL. It only runs when reaping is enabled.
func reapIdleSessions(ctx context.Context, sessions *session.Manager, cfg config.SessionConfig, logger *zap.Logger) {
	ticker := time.NewTicker(cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := sessions.CleanupIdleSessions(cfg.IdleTTL); removed > 0 {
				logger.Info("reaped idle sessions",
					zap.Int("removed", removed),
					zap.Duration("idle_ttl", cfg.IdleTTL),
				)
			}
		}
	}
}

// mcpHandler serves MCP JSON-RPC messages over plain HTTP POST.
func mcpHandler(client *mcp.Client) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := client.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})
}

// loopbackURL is the base URL this process uses to reach its own REST API.
func loopbackURL(s config.ServerConfig) string {
	host := s.Host
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, fmt.Sprint(s.Port))
}

// relayReachable reports whether a relay answers health checks at baseURL.
func relayReachable(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// runMCP runs an MCP stdio server. It reuses a relay already listening on the
// configured address; if none answers, it starts an internal relay bound to a
// random loopback port and targets that.
func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	baseURL := loopbackURL(cfg.Server)
	logger.Info("checking for running relay", zap.String("url", baseURL))

	if relayReachable(ctx, baseURL) {
		logger.Info("relay found, using it for MCP", zap.String("url", baseURL))
	} else {
		logger.Info("no relay found, starting internal HTTP server")

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}

		stack := newRelayStack(cfg, logger)
		defer stack.hub.Stop()

		httpServer := &http.Server{Handler: stack.api}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("internal HTTP server error", zap.Error(err))
			}
		}()
		defer httpServer.Close()

		baseURL = "http://" + listener.Addr().String()
		logger.Info("internal relay listening", zap.String("url", baseURL))
	}

	mcpClient := mcp.NewClient(baseURL)
	logger.Info("MCP stdio server ready", zap.String("api", baseURL))

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}
