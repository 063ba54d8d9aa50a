package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/cortexhub/cortexd/internal/docs"
	"github.com/cortexhub/cortexd/internal/rag"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Docs         *docs.Manager
	Orchestrator *rag.Orchestrator
}

// NewMCPServer creates an MCP server with the cortexd tools registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"cortexd",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("cortexd — document knowledge base with grounded question answering."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_documents",
			mcp.WithDescription("Ask a question answered only from the processed documents in a workspace, with source citations."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithString("workspace_id", mcp.Description("Workspace to search"), mcp.Required()),
			mcp.WithArray("document_ids", mcp.Description("Optional list of document IDs to restrict the search to")),
		),
		mcpAskDocuments(deps),
	)

	s.AddTool(
		mcp.NewTool("list_documents",
			mcp.WithDescription("List the documents in a workspace with their processing state."),
			mcp.WithString("workspace_id", mcp.Description("Workspace to list"), mcp.Required()),
			mcp.WithBoolean("processed_only", mcp.Description("Only return processed documents (default false)")),
		),
		mcpListDocuments(deps),
	)

	return s
}

func mcpAskDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		workspaceID, err := req.RequireString("workspace_id")
		if err != nil {
			return mcpError("workspace_id is required"), nil
		}
		documentIDs := req.GetStringSlice("document_ids", nil)

		result, err := deps.Orchestrator.Answer(ctx, rag.Request{
			Question:    question,
			WorkspaceID: workspaceID,
			DocumentIDs: documentIDs,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("query failed: %v", err)), nil
		}

		type askResult struct {
			Answer    string   `json:"answer"`
			Citations []string `json:"citations"`
			NextSteps []string `json:"next_steps,omitempty"`
			ChartHint string   `json:"chart_hint,omitempty"`
		}
		b, err := json.Marshal(askResult{
			Answer:    result.Answer,
			Citations: result.Citations,
			NextSteps: result.NextSteps,
			ChartHint: result.ChartHint,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpListDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		workspaceID, err := req.RequireString("workspace_id")
		if err != nil {
			return mcpError("workspace_id is required"), nil
		}
		processedOnly := req.GetBool("processed_only", false)

		list, err := deps.Docs.List(workspaceID, processedOnly)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list documents: %v", err)), nil
		}

		if len(list) == 0 {
			return mcpText("[]"), nil
		}

		type documentSummary struct {
			ID         string `json:"id"`
			FileName   string `json:"file_name"`
			Processed  bool   `json:"processed"`
			UploadedAt string `json:"uploaded_at"`
		}
		summaries := make([]documentSummary, len(list))
		for i, d := range list {
			summaries[i] = documentSummary{
				ID:         d.ID,
				FileName:   d.FileName,
				Processed:  d.Processed,
				UploadedAt: d.UploadedAt.UTC().Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal documents: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
