// Package server exposes the agent over the Model Context Protocol.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/yosida95/uritemplate/v3"

	"github.com/txn2/dbms-agent/pkg/agent"
	"github.com/txn2/dbms-agent/pkg/schema"
)

// schemaTemplateURI addresses a single catalog object by qualified name,
// e.g. dbms://schema/public.users.
const schemaTemplateURI = "dbms://schema/{object}"

// Server wraps the agent in an MCP server.
type Server struct {
	agent   *agent.Agent
	mcp     *mcp.Server
	version string
}

// New builds the MCP server and registers tools and resource templates.
func New(a *agent.Agent, version string) *Server {
	s := &Server{agent: a, version: version}
	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "dbms-agent",
		Version: version,
	}, nil)
	s.registerTools()
	s.registerResourceTemplates()
	return s
}

// MCP returns the underlying MCP server, primarily for transport wiring.
func (s *Server) MCP() *mcp.Server { return s.mcp }

// Run serves MCP over stdio until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("running stdio server: %w", err)
	}
	return nil
}

// HTTPHandler returns a streamable HTTP handler for the MCP server.
func (s *Server) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
}

// askInput is the ask_database tool input.
type askInput struct {
	Question string `json:"question" jsonschema:"natural-language question about the database"`
}

// catalogInput is empty since schema_catalog has no parameters.
type catalogInput struct{}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "ask_database",
		Description: "Answer a natural-language question about the connected database. " +
			"Selects relevant tables, drafts SQL, executes it through the configured " +
			"backend, and returns the result as markdown with routing details.",
	}, s.handleAsk)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "schema_catalog",
		Description: "List the discovered database objects (tables and views) with " +
			"their columns. Call this to understand what data is available.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ catalogInput) (*mcp.CallToolResult, any, error) {
		return s.handleCatalog(ctx, req)
	})
}

// handleAsk handles the ask_database tool call.
func (s *Server) handleAsk(ctx context.Context, _ *mcp.CallToolRequest, in askInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(in.Question) == "" {
		return toolError("question is required"), nil, nil
	}

	resp := s.agent.Answer(ctx, in.Question)
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return toolError("encoding answer: " + err.Error()), nil, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
		IsError: !resp.Executed && resp.Error != "",
	}, nil, nil
}

// handleCatalog handles the schema_catalog tool call.
func (s *Server) handleCatalog(ctx context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, any, error) {
	catalog := s.agent.Catalog(ctx)
	if len(catalog) == 0 {
		return toolError("schema is empty or unavailable"), nil, nil
	}

	data, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		return toolError("encoding catalog: " + err.Error()), nil, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil, nil
}

func (s *Server) registerResourceTemplates() {
	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: schemaTemplateURI,
		Name:        "Object Schema",
		Description: "Columns and type for a single table or view, addressed by qualified name",
		MIMEType:    "application/json",
	}, s.handleSchemaResource)
}

// handleSchemaResource handles dbms://schema/{object} requests.
func (s *Server) handleSchemaResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	vars, err := parseTemplateVars(schemaTemplateURI, uri)
	if err != nil {
		return nil, mcp.ResourceNotFoundError(uri) //nolint:wrapcheck // MCP protocol error returned as-is for SDK type matching
	}

	object := vars["object"]
	if object == "" {
		return nil, mcp.ResourceNotFoundError(uri) //nolint:wrapcheck // MCP protocol error returned as-is for SDK type matching
	}

	obj, ok := findObject(s.agent.Catalog(ctx), object)
	if !ok {
		return nil, mcp.ResourceNotFoundError(uri) //nolint:wrapcheck // MCP protocol error returned as-is for SDK type matching
	}

	return marshalResourceResult(uri, obj)
}

// findObject looks up a catalog entry by qualified name, falling back to a
// bare-name match when the request omits the schema.
func findObject(catalog []schema.Object, name string) (schema.Object, bool) {
	for _, obj := range catalog {
		if obj.Name == name {
			return obj, true
		}
	}
	for _, obj := range catalog {
		if obj.Table == name {
			return obj, true
		}
	}
	return schema.Object{}, false
}

// parseTemplateVars extracts named variables from a URI using a URI template.
func parseTemplateVars(templateStr, uri string) (map[string]string, error) {
	tmpl, err := uritemplate.New(templateStr)
	if err != nil {
		return nil, fmt.Errorf("invalid template %q: %w", templateStr, err)
	}

	match := tmpl.Match(uri)
	if match == nil {
		return nil, fmt.Errorf("uri %q does not match template %q", uri, templateStr)
	}

	result := make(map[string]string)
	for _, name := range tmpl.Varnames() {
		result[name] = match.Get(name).String()
	}
	return result, nil
}

// marshalResourceResult marshals a value to JSON and wraps it in a ReadResourceResult.
func marshalResourceResult(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling resource %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "Error: " + msg},
		},
		IsError: true,
	}
}
