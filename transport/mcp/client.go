package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/chess-relay/api"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Chess Relay",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Chess Relay - MCP Interface

Read-only operator view of a running chess relay. Players talk to the relay over
a websocket at /ws; these tools only observe.

AVAILABLE TOOLS:
- list_sessions: List live sessions (sort by created or activity); codes are not shown
- get_session: Get one session by its 7-character code, if you already know it
- relay_stats: Count sessions, open connections and rooms
- protocol_guide: Describe the websocket events players exchange

Board positions are never exposed here.`),
	)

	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List live chess sessions without their codes",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"sort": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"created", "activity"},
					"description": "Sort key (default activity)",
				},
				"order": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"asc", "desc"},
					"description": "Sort order (default desc)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of sessions to return",
				},
			},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details of a specific session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session code to retrieve",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleGetSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "relay_stats",
		Description: "Get session, connection and room counts",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleRelayStats)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "protocol_guide",
		Description: "Describe the websocket protocol spoken by players",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleProtocolGuide)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	endpoint := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

type sessionList struct {
	Count    int                  `json:"count"`
	Total    int                  `json:"total"`
	Sessions []api.SessionListing `json:"sessions"`
	Sort     string               `json:"sort"`
	Order    string               `json:"order"`
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	params := url.Values{}
	if v, ok := args["sort"].(string); ok && v != "" {
		params.Set("sort", v)
	}
	if v, ok := args["order"].(string); ok && v != "" {
		params.Set("order", v)
	}
	// JSON numbers arrive as float64
	if v, ok := args["limit"].(float64); ok && v > 0 {
		params.Set("limit", fmt.Sprintf("%d", int(v)))
	}

	path := "/api/sessions"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var list sessionList
	if err := c.apiCall(ctx, "GET", path, nil, &list); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionList(&list)), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	sessionID, _ := args["session_id"].(string)
	if strings.TrimSpace(sessionID) == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	var summary api.SessionSummary
	err := c.apiCall(ctx, "GET", "/api/sessions/"+url.PathEscape(sessionID), nil, &summary)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSession(&summary)), nil
}

func (c *Client) handleRelayStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var stats api.Stats
	if err := c.apiCall(ctx, "GET", "/api/stats", nil, &stats); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Sessions: %d\nConnections: %d\nRooms: %d\n",
		stats.Sessions, stats.Connections, stats.Rooms)
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleProtocolGuide(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(protocolGuide), nil
}

const protocolGuide = `Chess Relay - Websocket Protocol

CONNECTING:
Open a websocket to /ws. Every frame is one JSON object:
  {"event": "<name>", "data": <payload>}

CLIENT EVENTS:
- create-session {"participantId": "alice"}
    Reply to you only: session-created {"sessionId": "K3J9QXA"}
- join-session {"sessionId": "K3J9QXA", "participantId": "bob"}
    Reply to both players: session-started
      {"participants": {"firstSide": "alice", "secondSide": "bob"},
       "boardState": "<FEN>", "activeSide": "first-side"}
    Failure to you only: error {"message": "session not found" | "session is already full"}
- submit-move {"sessionId", "from", "to", "boardState", "activeSide"}
    Reply to both players: move-applied {"boardState", "activeSide"}
    Moves for unknown sessions are dropped without a reply.

SIDES:
first-side moves first. activeSide names who moves next.

RULES THE RELAY DOES NOT ENFORCE:
The relay stores whatever boardState and activeSide it is sent. It does not check
move legality, whose turn it is, or whether the sender sits in the session.

Session codes are 7 characters, A-Z and 0-9, and are matched case-insensitively.`

func formatSessionList(list *sessionList) string {
	if len(list.Sessions) == 0 {
		return "No live sessions"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Sessions: %d of %d (sort=%s, order=%s)\n\n",
		list.Count, list.Total, list.Sort, list.Order))
	for _, s := range list.Sessions {
		status := "waiting"
		if s.Full {
			status = "playing"
		}
		second := s.SecondSide
		if second == "" {
			second = "-"
		}
		b.WriteString(fmt.Sprintf("%-8s %s vs %s  to move: %s  moves: %d\n",
			status, s.FirstSide, second, s.ActiveSide, s.MoveCount))
	}
	return b.String()
}

func formatSession(s *api.SessionSummary) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Session: %s\n", s.ID))
	b.WriteString(fmt.Sprintf("First side: %s\n", s.FirstSide))
	if s.Full {
		b.WriteString(fmt.Sprintf("Second side: %s\n", s.SecondSide))
	} else {
		b.WriteString("Second side: (waiting for opponent)\n")
	}
	b.WriteString(fmt.Sprintf("To move: %s\n", s.ActiveSide))
	b.WriteString(fmt.Sprintf("Moves: %d\n", s.MoveCount))
	b.WriteString(fmt.Sprintf("Connections: %d\n", s.Connections))
	b.WriteString(fmt.Sprintf("Created: %s\n", s.CreatedAt.Format("2006-01-02 15:04:05")))
	b.WriteString(fmt.Sprintf("Last activity: %s\n", s.LastActivityAt.Format("2006-01-02 15:04:05")))
	return b.String()
}
