// Package config loads the buddy configuration from ~/.buddy/config.yaml
// and the BUDDY_* environment. Environment variables take precedence over
// file values. The resulting Config is an immutable value injected into the
// components that need it; nothing reads configuration ambiently after
// startup.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type LLMConfig struct {
	BaseURL        string        `yaml:"baseURL"`
	APIKey         string        `yaml:"apiKey"`
	ChatModel      string        `yaml:"chatModel"`
	SmallModel     string        `yaml:"smallModel"`
	EmbeddingModel string        `yaml:"embeddingModel"`
	MinInterval    time.Duration `yaml:"minInterval"`
}

type RetrievalConfig struct {
	// MaxResults caps similarity hits per query; ScoreThreshold drops weak
	// matches before they reach the answer prompt.
	MaxResults     int     `yaml:"maxResults"`
	ScoreThreshold float64 `yaml:"scoreThreshold"`
}

type QueueConfig struct {
	PollInterval time.Duration `yaml:"pollInterval"`
	TaskTimeout  time.Duration `yaml:"taskTimeout"`
	// RetryFailed re-claims terminal failed tasks on the next pass. A task
	// left running by a crashed runner is always retried regardless.
	RetryFailed bool `yaml:"retryFailed"`
}

type AgentConfig struct {
	// MaxToolIterations bounds the tool-call loop of a single chat turn.
	MaxToolIterations int `yaml:"maxToolIterations"`
	RecentMessages    int `yaml:"recentMessages"`
}

type Config struct {
	Addr       string          `yaml:"addr"`
	SQLitePath string          `yaml:"sqlitePath"`
	TempDir    string          `yaml:"tempDir"`
	LLM        LLMConfig       `yaml:"llm"`
	Retrieval  RetrievalConfig `yaml:"retrieval"`
	Queue      QueueConfig     `yaml:"queue"`
	Agent      AgentConfig     `yaml:"agent"`
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".buddy")
	return Config{
		Addr:       ":8089",
		SQLitePath: filepath.Join(base, "buddy.db"),
		TempDir:    filepath.Join(os.TempDir(), "buddy-repos"),
		LLM: LLMConfig{
			BaseURL:        "http://127.0.0.1:11434/v1",
			ChatModel:      "qwen2.5-coder",
			SmallModel:     "llama3.2",
			EmbeddingModel: "nomic-embed-text",
		},
		Retrieval: RetrievalConfig{MaxResults: 5, ScoreThreshold: 0.5},
		Queue:     QueueConfig{PollInterval: 2 * time.Second, TaskTimeout: 2 * time.Minute},
		Agent:     AgentConfig{MaxToolIterations: 10, RecentMessages: 5},
	}
}

// Load reads ~/.buddy/config.yaml (or .yml) when present, then applies
// environment overrides. A missing file is not an error.
func Load() (Config, error) {
	cfg := Default()
	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		for _, name := range []string{"config.yaml", "config.yml"} {
			b, err := os.ReadFile(filepath.Join(home, ".buddy", name))
			if err != nil {
				continue
			}
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, err
			}
			break
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

// LoadFile is used by tests and by --config to read an explicit path.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Addr, "BUDDY_ADDR")
	setString(&cfg.SQLitePath, "BUDDY_SQLITE_PATH")
	setString(&cfg.TempDir, "BUDDY_TEMP_DIR")
	setString(&cfg.LLM.BaseURL, "BUDDY_OPENAI_BASE_URL")
	setString(&cfg.LLM.APIKey, "BUDDY_OPENAI_API_KEY")
	setString(&cfg.LLM.ChatModel, "BUDDY_CHAT_MODEL")
	setString(&cfg.LLM.SmallModel, "BUDDY_SMALL_MODEL")
	setString(&cfg.LLM.EmbeddingModel, "BUDDY_EMBEDDING_MODEL")
	if v := os.Getenv("BUDDY_LLM_MIN_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.LLM.MinInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("BUDDY_RETRIEVAL_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Retrieval.MaxResults = n
		}
	}
	if v := os.Getenv("BUDDY_RETRIEVAL_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.Retrieval.ScoreThreshold = f
		}
	}
	if v := os.Getenv("BUDDY_QUEUE_RETRY_FAILED"); v == "1" || v == "true" {
		cfg.Queue.RetryFailed = true
	}
	if v := os.Getenv("BUDDY_MAX_TOOL_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Agent.MaxToolIterations = n
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
