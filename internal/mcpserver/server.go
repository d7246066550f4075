// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes graft tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/caldermaw/graft/internal/api"
	"github.com/caldermaw/graft/internal/storage"
)

// Server wraps the MCP server with graft tools.
type Server struct {
	mcp      *server.MCPServer
	svc      *api.Service
	payloads storage.Provider
}

// New creates a new MCP server with all graft tools registered.
func New(svc *api.Service, payloads storage.Provider) *Server {
	s := &Server{svc: svc, payloads: payloads}

	s.mcp = server.NewMCPServer(
		"graft",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("channel_status",
		mcp.WithDescription("Report the lifecycle status of a channel (active, staged, unpublished or deleted)."),
		mcp.WithString("channel_id", mcp.Required(), mcp.Description("Channel id")),
	), s.channelStatus)

	s.mcp.AddTool(mcp.NewTool("staged_diff",
		mcp.WithDescription("Diff a channel's staged tree against its live one. "+
			"Returns nodes added, deleted, modified and moved, keyed by node id."),
		mcp.WithString("channel_id", mcp.Required(), mcp.Description("Channel id")),
	), s.stagedDiff)

	s.mcp.AddTool(mcp.NewTool("get_tree_data",
		mcp.WithDescription("Fetch a channel tree as nested topic data."),
		mcp.WithString("channel_id", mcp.Required(), mcp.Description("Channel id")),
		mcp.WithString("tree", mcp.Description("Tree to fetch: main (default), staging, chef or previous")),
	), s.getTreeData)

	s.mcp.AddTool(mcp.NewTool("compare_trees",
		mcp.WithDescription("Summarize node presence between a channel's previous tree and its live or staged one."),
		mcp.WithString("channel_id", mcp.Required(), mcp.Description("Channel id")),
		mcp.WithBoolean("staging", mcp.Description("Compare against the staged tree instead of the live one")),
	), s.compareTrees)

	s.mcp.AddTool(mcp.NewTool("upload_payload",
		mcp.WithDescription("Upload a node descriptor JSON payload into the content-addressed store. "+
			"The payload MUST follow the canonical import format. Read the contract first via "+
			"the get_import_contract tool or the graft://import-format resource. "+
			"Returns the reference to use in structure imports."),
		mcp.WithString("url", mcp.Required(), mcp.Description("HTTP(S) URL or base64 data URI of the JSON payload")),
	), s.uploadPayload)

	s.mcp.AddTool(mcp.NewTool("get_import_contract",
		mcp.WithDescription("Returns the canonical graft import payload contract. "+
			"Call this before uploading payloads or building structures."),
	), s.getImportContract)

	// Resource: import format contract.
	s.mcp.AddResource(
		mcp.NewResource("graft://import-format", "Import Format Contract",
			mcp.WithResourceDescription("Canonical payload format that all channel imports must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readImportFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) channelStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	channelID, err := req.RequireString("channel_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status, err := s.svc.Status(channelID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(status), nil
}

func (s *Server) stagedDiff(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	channelID, err := req.RequireString("channel_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.StagedDiff(channelID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getTreeData(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	channelID, err := req.RequireString("channel_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	which := ""
	if v, tErr := req.RequireString("tree"); tErr == nil {
		which = v
	}
	root, err := s.svc.TreeData(channelID, which)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(root, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) compareTrees(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	channelID, err := req.RequireString("channel_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	useStaging := req.GetBool("staging", false)
	res, err := s.svc.Compare(channelID, useStaging)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getImportContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ImportFormatContract), nil
}

func (s *Server) readImportFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "graft://import-format",
			MIMEType: "text/markdown",
			Text:     ImportFormatContract,
		},
	}, nil
}
