// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes plantops tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/daewon/plantops/internal/apperr"
	"github.com/daewon/plantops/internal/catalog"
	"github.com/daewon/plantops/internal/itemid"
	"github.com/daewon/plantops/internal/masters"
)

// ItemIDFormatURI is the resource URI of the identifier format contract.
const ItemIDFormatURI = "plantops://item-id-format"

// Masters is the read side of the master projection.
type Masters interface {
	Snapshot() masters.Snapshot
	GetProcessTag(code string) string
}

// Server wraps the MCP server with plantops tools.
type Server struct {
	mcp     *server.MCPServer
	masters Masters
	catalog *catalog.Service
}

// New creates a new MCP server with all plantops tools registered.
func New(m Masters, cat *catalog.Service) *Server {
	s := &Server{masters: m, catalog: cat}

	s.mcp = server.NewMCPServer(
		"Plantops",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_masters",
		mcp.WithDescription("List the enabled entries of the types, lines and processes vocabularies, "+
			"in display order, with the process code to tag lookup."),
	), s.listMasters)

	s.mcp.AddTool(mcp.NewTool("get_process_tag",
		mcp.WithDescription("Return the tag of a process code. Unknown codes return an empty tag."),
		mcp.WithString("code", mcp.Required(), mcp.Description("Process code")),
	), s.getProcessTag)

	s.mcp.AddTool(mcp.NewTool("build_item_id",
		mcp.WithDescription("Build an item identifier without storing anything. "+
			"Give a process code to resolve its tag from the vocabularies, or a tag directly. "+
			"Read the format via get_item_id_contract or the plantops://item-id-format resource."),
		mcp.WithString("type", mcp.Required(), mcp.Description("Type code")),
		mcp.WithString("line", mcp.Required(), mcp.Description("Line code")),
		mcp.WithNumber("inch", mcp.Required(), mcp.Description("Nominal size in inches")),
		mcp.WithString("process", mcp.Description("Process code (tag is resolved)")),
		mcp.WithString("tag", mcp.Description("Process tag, used when no process is given")),
		mcp.WithNumber("lengthMm", mcp.Required(), mcp.Description("Length in whole millimetres")),
	), s.buildItemID)

	s.mcp.AddTool(mcp.NewTool("create_item",
		mcp.WithDescription("Create a catalog item. Codes must be enabled vocabulary entries; "+
			"the identifier is built from the process tag."),
		mcp.WithString("type", mcp.Required(), mcp.Description("Type code")),
		mcp.WithString("line", mcp.Required(), mcp.Description("Line code")),
		mcp.WithNumber("inch", mcp.Required(), mcp.Description("Nominal size in inches")),
		mcp.WithString("process", mcp.Required(), mcp.Description("Process code")),
		mcp.WithNumber("lengthMm", mcp.Required(), mcp.Description("Length in whole millimetres")),
	), s.createItem)

	s.mcp.AddTool(mcp.NewTool("list_items",
		mcp.WithDescription("List catalog items ordered by identifier."),
		mcp.WithString("prefix", mcp.Description("Optional identifier prefix, e.g. PIPE_L1_")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of items (default 100)")),
	), s.listItems)

	s.mcp.AddTool(mcp.NewTool("get_item_id_contract",
		mcp.WithDescription("Returns the item identifier format contract. "+
			"Call this before building or creating items."),
	), s.getItemIDContract)

	// Resource: identifier format contract.
	s.mcp.AddResource(
		mcp.NewResource(ItemIDFormatURI, "Item Identifier Format",
			mcp.WithResourceDescription("How item identifiers are composed from vocabulary codes."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readItemIDFormatResource,
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

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func itemRequest(req mcp.CallToolRequest) (catalog.ItemRequest, error) {
	var r catalog.ItemRequest
	var err error
	if r.Type, err = req.RequireString("type"); err != nil {
		return r, err
	}
	if r.Line, err = req.RequireString("line"); err != nil {
		return r, err
	}
	inch, err := req.RequireFloat("inch")
	if err != nil {
		return r, err
	}
	length, err := req.RequireFloat("lengthMm")
	if err != nil {
		return r, err
	}
	r.Inch, r.LengthMm = itemid.Number(inch), itemid.Number(length)
	if p, pErr := req.RequireString("process"); pErr == nil {
		r.Process = p
	}
	return r, nil
}

func (s *Server) listMasters(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.masters.Snapshot())
}

func (s *Server) getProcessTag(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := req.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(s.masters.GetProcessTag(code)), nil
}

func (s *Server) buildItemID(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := itemRequest(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if r.Process != "" {
		res, err := s.catalog.Resolve(r)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(res.ItemID), nil
	}

	attrs := itemid.Attrs{Type: r.Type, Line: r.Line, Inch: float64(r.Inch), LengthMm: float64(r.LengthMm)}
	if tag, tErr := req.RequireString("tag"); tErr == nil {
		attrs.Tag = tag
	}
	if err := attrs.Validate(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(itemid.Build(attrs)), nil
}

func (s *Server) createItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := itemRequest(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	item, err := s.catalog.Create(ctx, r)
	if errors.Is(err, apperr.ErrAlreadyExists) {
		res, _ := s.catalog.Resolve(r)
		return mcp.NewToolResultError(fmt.Sprintf("item already exists: %s", res.ItemID)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", item.ItemID)), nil
}

func (s *Server) listItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opts := catalog.ListOptions{Limit: 100}
	if p, err := req.RequireString("prefix"); err == nil {
		opts.Prefix = p
	}
	if n, err := req.RequireFloat("limit"); err == nil && n > 0 {
		opts.Limit = int(n)
	}
	items, err := s.catalog.List(ctx, opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(items)
}

func (s *Server) getItemIDContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ItemIDFormatContract), nil
}

func (s *Server) readItemIDFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ItemIDFormatURI,
			MIMEType: "text/markdown",
			Text:     ItemIDFormatContract,
		},
	}, nil
}
