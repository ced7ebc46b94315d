package postwatch

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Lallians/Linkedin-post-scrapper/kit"
)

// RegisterMCP registers the collection tools on an MCP server, mirroring
// the HTTP control surface.
func (e *Engine) RegisterMCP(srv *mcp.Server) {
	e.registerStartTool(srv)
	e.registerStopTool(srv)
	e.registerDownloadTool(srv)
	e.registerCountTool(srv)
	e.registerCleanTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

type mcpStartRequest struct {
	Selector        string `json:"selector,omitempty"`
	ContentSelector string `json:"content_selector,omitempty"`
}

type mcpStatusResponse struct {
	Success bool   `json:"success"`
	State   string `json:"state,omitempty"`
}

func (e *Engine) registerStartTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "postwatch_start",
		Description: "Start collecting posts from the watched page. Selectors default to the configured ones.",
		InputSchema: inputSchema(map[string]any{
			"selector":         map[string]any{"type": "string", "description": "CSS selector matching post containers"},
			"content_selector": map[string]any{"type": "string", "description": "Class selector (or bare class name) of the text body"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*mcpStartRequest)
		if err := e.Start(ctx, r.Selector, r.ContentSelector); err != nil {
			return nil, err
		}
		return mcpStatusResponse{Success: true, State: e.State().String()}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r mcpStartRequest
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (e *Engine) registerStopTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "postwatch_stop",
		Description: "Stop the running collection session. Collected records are kept.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		if err := e.Stop(ctx); err != nil {
			return nil, err
		}
		return mcpStatusResponse{Success: true, State: e.State().String()}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, emptyDecode)
}

func (e *Engine) registerDownloadTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "postwatch_download",
		Description: "Export collected records to a tab-separated file and return its name.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		filename, err := e.ExportCSV(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "filename": filename, "count": e.Count()}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, emptyDecode)
}

func (e *Engine) registerCountTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "postwatch_count",
		Description: "Return the number of records collected so far.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return map[string]any{"success": true, "count": e.Count()}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, emptyDecode)
}

func (e *Engine) registerCleanTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "postwatch_clean",
		Description: "Drop all collected records. Already-seen posts stay excluded unless dedup reset is configured.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		if err := e.Clear(ctx); err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "count": e.Count()}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, emptyDecode)
}

func emptyDecode(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	return &kit.MCPDecodeResult{Request: struct{}{}}, nil
}
