package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "CORTEXD_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "llm.gemini_api_key", typ: kString, env: "CORTEXD_GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "llm.model", typ: kString, env: "CORTEXD_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "ollama.base_url", typ: kString, env: "CORTEXD_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "CORTEXD_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "CORTEXD_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.uploads_dir", typ: kString, env: "CORTEXD_STORAGE_UPLOADS_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.UploadsDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.UploadsDir },
	},
	{
		key: "worker.mode", typ: kString, env: "CORTEXD_WORKER_MODE",
		apply:   func(cfg *Config, v any) { cfg.Worker.Mode = v.(string) },
		extract: func(cfg Config) any { return cfg.Worker.Mode },
	},
	{
		key: "worker.python_bin", typ: kString, env: "CORTEXD_WORKER_PYTHON_BIN",
		apply:   func(cfg *Config, v any) { cfg.Worker.PythonBin = v.(string) },
		extract: func(cfg Config) any { return cfg.Worker.PythonBin },
	},
	{
		key: "worker.script_path", typ: kString, env: "CORTEXD_WORKER_SCRIPT_PATH",
		apply:   func(cfg *Config, v any) { cfg.Worker.ScriptPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Worker.ScriptPath },
	},
	{
		key: "worker.embed_timeout", typ: kString, env: "CORTEXD_WORKER_EMBED_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Worker.EmbedTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Worker.EmbedTimeout },
	},
	{
		key: "worker.query_timeout", typ: kString, env: "CORTEXD_WORKER_QUERY_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Worker.QueryTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Worker.QueryTimeout },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "CORTEXD_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "log.level", typ: kString, env: "CORTEXD_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "api.token", typ: kString, env: "CORTEXD_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all non-secret config key/value pairs from the current config.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}
