package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/cortexhub/cortexd/internal/api"
	"github.com/cortexhub/cortexd/internal/config"
	"github.com/cortexhub/cortexd/internal/docs"
	"github.com/cortexhub/cortexd/internal/llm"
	"github.com/cortexhub/cortexd/internal/ollama"
	"github.com/cortexhub/cortexd/internal/rag"
	"github.com/cortexhub/cortexd/internal/retrieval"
	"github.com/cortexhub/cortexd/internal/storage"
	"github.com/cortexhub/cortexd/internal/worker"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the cortexd server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running cortexd server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cortexd system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "cortexd.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func parseTimeout(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("invalid timeout, using default", "value", value, "default", fallback, "error", err)
		return fallback
	}
	return d
}

// buildEmbeddingBackend returns the embedding and retrieval services for the
// configured worker mode.
func buildEmbeddingBackend(cfg config.Config, store *storage.Store) (worker.EmbeddingService, worker.RetrievalService, error) {
	switch cfg.Worker.Mode {
	case "script":
		invoker := worker.NewScriptInvoker(
			cfg.Worker.PythonBin,
			cfg.Worker.ScriptPath,
			parseTimeout(cfg.Worker.EmbedTimeout, 2*time.Minute),
			parseTimeout(cfg.Worker.QueryTimeout, 30*time.Second),
		)
		return invoker, invoker, nil
	case "native":
		ollamaClient := ollama.New(cfg.Ollama.BaseURL)
		vectors := retrieval.NewVectorStore(store.DB())
		native := retrieval.NewNative(ollamaClient, cfg.Ollama.EmbedModel, vectors, cfg.Retrieval.TopK)
		return native, native, nil
	default:
		return nil, nil, fmt.Errorf("unknown worker mode %q", cfg.Worker.Mode)
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "cortexd version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("cortexd is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("cortexd is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	embedder, retriever, err := buildEmbeddingBackend(cfg, store)
	if err != nil {
		return err
	}
	if cfg.Worker.Mode == "native" {
		if !ollama.New(cfg.Ollama.BaseURL).IsRunning(ctx) {
			printWarning("Ollama not reachable at %s; embedding will fail until it is up", cfg.Ollama.BaseURL)
		}
	}
	slog.Info("embedding backend ready", "mode", cfg.Worker.Mode)

	// Build the document manager and query orchestrator.
	manager := docs.NewManager(store, embedder, cfg.Storage.UploadsDir)
	synth := llm.NewClient(cfg.LLM.APIKey, cfg.LLM.Model)
	orchestrator := rag.NewOrchestrator(store, retriever, synth, nil)

	// Build HTTP handler and server.
	handler := api.NewAppHandler(api.AppDeps{
		Store:        store,
		Docs:         manager,
		Orchestrator: orchestrator,
		Token:        cfg.API.Token,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Docs:         manager,
		Orchestrator: orchestrator,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "cortexd listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("cortexd is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop cortexd (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to cortexd (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Worker mode", "%s", cfg.Worker.Mode)
	if cfg.Worker.Mode == "native" {
		ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
		if err != nil {
			printStatus("Ollama", "not running")
		} else {
			ollamaResp.Body.Close()
			printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
		}
		printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)
	} else {
		printStatus("Worker script", "%s", cfg.Worker.ScriptPath)
	}
	printStatus("LLM model", "%s", cfg.LLM.Model)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
