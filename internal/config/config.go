package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	LLM       LLMConfig
	Ollama    OllamaConfig
	Storage   StorageConfig
	Worker    WorkerConfig
	Retrieval RetrievalConfig
	Log       LogConfig
	API       APIConfig
}

type ServerConfig struct {
	Port int
}

type LLMConfig struct {
	APIKey string
	Model  string
}

type OllamaConfig struct {
	BaseURL    string
	EmbedModel string
}

type StorageConfig struct {
	DataDir    string
	UploadsDir string
}

// WorkerConfig selects the embedding backend. Mode "script" shells out to the
// Python worker; mode "native" runs extraction and retrieval in-process.
type WorkerConfig struct {
	Mode         string
	PythonBin    string
	ScriptPath   string
	EmbedTimeout string
	QueryTimeout string
}

type RetrievalConfig struct {
	TopK int
}

type LogConfig struct {
	Level string
}

type APIConfig struct {
	Token string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		LLM: LLMConfig{
			Model: "gemini-2.5-pro",
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			EmbedModel: "nomic-embed-text",
		},
		Storage: StorageConfig{
			DataDir:    dataDir,
			UploadsDir: filepath.Join(dataDir, "uploads"),
		},
		Worker: WorkerConfig{
			Mode:         "native",
			PythonBin:    "python3",
			EmbedTimeout: "2m",
			QueryTimeout: "30s",
		},
		Retrieval: RetrievalConfig{
			TopK: 5,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cortexd"
	}
	return filepath.Join(home, ".cortexd")
}

// Load reads configuration from an optional .env file in the working
// directory, then applies CORTEXD_* environment variable overrides on top of
// the defaults. The Gemini API key is required.
func Load() (Config, error) {
	_ = godotenv.Load()
	return loadFromEnv()
}

func loadFromEnv() (Config, error) {
	cfg := defaults()

	applyEnvOverrides(&cfg)

	if cfg.LLM.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: Gemini API key. Set it via environment variable CORTEXD_GEMINI_API_KEY or a .env file")
	}
	if cfg.Worker.Mode != "script" && cfg.Worker.Mode != "native" {
		return Config{}, fmt.Errorf("invalid worker mode %q: must be \"script\" or \"native\"", cfg.Worker.Mode)
	}
	if cfg.Worker.Mode == "script" && cfg.Worker.ScriptPath == "" {
		return Config{}, fmt.Errorf("worker mode \"script\" requires CORTEXD_WORKER_SCRIPT_PATH")
	}

	return cfg, nil
}
