package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cortexhub/cortexd/internal/config"
)

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a document and embed it",
	Long: `Upload a document, persist it, and embed it into the vector store.

Examples:
  cortexd upload report.pdf --workspace w1
  cortexd upload notes.csv --workspace research`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workspace, _ := cmd.Flags().GetString("workspace")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Uploading %s", args[0])
		resp, err := client.upload(args[0], workspace)
		if err != nil {
			return err
		}

		var doc struct {
			ID           string `json:"id"`
			FileName     string `json:"file_name"`
			Processed    bool   `json:"processed"`
			VectorHandle string `json:"vector_handle"`
		}
		if err := decodeJSON(resp, &doc); err != nil {
			return err
		}

		printSuccess("Uploaded %s (document %s)", doc.FileName, doc.ID)
		if doc.Processed {
			printStatus("Vector handle", "%s", doc.VectorHandle)
		} else {
			printWarning("document is pending; retry with: cortexd docs embed %s", doc.ID)
		}
		return nil
	},
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question answered from your documents",
	Long: `Ask a question answered only from the processed documents in a
workspace, with source citations.

Examples:
  cortexd ask "What was Q3 revenue?" --workspace w1
  cortexd ask "And the year before?" --workspace w1 --session review`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workspace, _ := cmd.Flags().GetString("workspace")
		session, _ := cmd.Flags().GetString("session")
		docIDs, _ := cmd.Flags().GetStringSlice("documents")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"question":     strings.Join(args, " "),
			"workspace_id": workspace,
		}
		if session != "" {
			req["session_id"] = session
		}
		if len(docIDs) > 0 {
			req["document_ids"] = docIDs
		}

		resp, err := client.post("/query", req)
		if err != nil {
			return err
		}

		var result struct {
			Answer    string   `json:"answer"`
			Citations []string `json:"citations"`
			NextSteps []string `json:"next_steps"`
			ChartHint string   `json:"chart_hint"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Fprintln(os.Stdout, result.Answer)
		if len(result.Citations) > 0 {
			fmt.Fprintln(os.Stdout)
			for _, c := range result.Citations {
				fmt.Fprintf(os.Stdout, "  [%s]\n", c)
			}
		}
		if result.ChartHint != "" {
			printStatus("Chart", "%s", result.ChartHint)
		}
		for _, step := range result.NextSteps {
			printStep("%s", step)
		}
		return nil
	},
}

// --- docs ---

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage documents",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents in a workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		workspace, _ := cmd.Flags().GetString("workspace")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/documents?workspace_id=" + url.QueryEscape(workspace))
		if err != nil {
			return err
		}

		var list []struct {
			ID         string `json:"id"`
			FileName   string `json:"file_name"`
			Processed  bool   `json:"processed"`
			UploadedAt string `json:"uploaded_at"`
		}
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}

		if len(list) == 0 {
			fmt.Fprintln(os.Stdout, "no documents")
			return nil
		}
		for _, d := range list {
			state := "pending"
			if d.Processed {
				state = "processed"
			}
			fmt.Fprintf(os.Stdout, "%s  %-9s  %s  %s\n", d.ID, state, d.UploadedAt, d.FileName)
		}
		return nil
	},
}

var docsEmbedCmd = &cobra.Command{
	Use:   "embed <id>",
	Short: "Retry embedding for a pending document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workspace, _ := cmd.Flags().GetString("workspace")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/documents/"+url.PathEscape(args[0])+"/embed?workspace_id="+url.QueryEscape(workspace), nil)
		if err != nil {
			return err
		}

		var doc struct {
			ID           string `json:"id"`
			VectorHandle string `json:"vector_handle"`
		}
		if err := decodeJSON(resp, &doc); err != nil {
			return err
		}

		printSuccess("Document %s embedded (handle %s)", doc.ID, doc.VectorHandle)
		return nil
	},
}

// --- queries ---

var queriesCmd = &cobra.Command{
	Use:   "queries",
	Short: "Show recent answered questions",
	RunE: func(cmd *cobra.Command, args []string) error {
		workspace, _ := cmd.Flags().GetString("workspace")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(fmt.Sprintf("/queries?workspace_id=%s&limit=%d", url.QueryEscape(workspace), limit))
		if err != nil {
			return err
		}

		var entries []struct {
			Question  string `json:"question"`
			Answer    string `json:"answer"`
			CreatedAt string `json:"created_at"`
		}
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stdout, "no queries")
			return nil
		}
		for _, e := range entries {
			fmt.Fprintf(os.Stdout, "%s  Q: %s\n", e.CreatedAt, e.Question)
			fmt.Fprintf(os.Stdout, "%s  A: %s\n", strings.Repeat(" ", len(e.CreatedAt)), e.Answer)
		}
		return nil
	},
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage conversation sessions",
}

var historyShowCmd = &cobra.Command{
	Use:   "show <session>",
	Short: "Show a session's conversation turns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/sessions/" + url.PathEscape(args[0]) + "/history")
		if err != nil {
			return err
		}

		var history []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}
		if err := decodeJSON(resp, &history); err != nil {
			return err
		}

		if len(history) == 0 {
			fmt.Fprintln(os.Stdout, "empty session")
			return nil
		}
		for _, m := range history {
			fmt.Fprintf(os.Stdout, "[%s] %s\n", m.Role, m.Content)
		}
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear <session>",
	Short: "Delete a session's conversation turns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete("/sessions/" + url.PathEscape(args[0]) + "/history")
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Cleared session %s", args[0])
		return nil
	},
}

// --- graph ---

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Generate a knowledge graph from text",
	Long: `Generate a knowledge graph (concepts and relationships) from text.

Examples:
  cortexd graph --text "CortexHub ingests documents and answers questions."
  cortexd graph --file notes.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")

		if text == "" && file == "" {
			return fmt.Errorf("one of --text or --file is required")
		}
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			text = string(data)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/graph", map[string]any{"text": text})
		if err != nil {
			return err
		}

		var graph any
		if err := decodeJSON(resp, &graph); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(graph)
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, info := range config.ShowAll(cfg) {
			fmt.Fprintf(os.Stdout, "%-22s %-34s %s\n", info.Key, info.EnvVar, info.Value)
		}
		return nil
	},
}

func init() {
	uploadCmd.Flags().String("workspace", "default", "workspace to upload into")

	askCmd.Flags().String("workspace", "default", "workspace to search")
	askCmd.Flags().String("session", "", "session ID for conversational context")
	askCmd.Flags().StringSlice("documents", nil, "restrict to specific document IDs")

	docsListCmd.Flags().String("workspace", "default", "workspace to list")
	docsEmbedCmd.Flags().String("workspace", "default", "workspace of the document")
	docsCmd.AddCommand(docsListCmd)
	docsCmd.AddCommand(docsEmbedCmd)

	queriesCmd.Flags().String("workspace", "default", "workspace to show")
	queriesCmd.Flags().Int("limit", 20, "maximum entries to show")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyClearCmd)

	graphCmd.Flags().String("text", "", "text to analyze")
	graphCmd.Flags().String("file", "", "file whose content to analyze")

	configCmd.AddCommand(configShowCmd)
}
