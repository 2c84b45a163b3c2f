package main

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds all stageline server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr string `json:"listen_addr"`
	DBPath     string `json:"db_path"`
	LogLevel   string `json:"log_level"`
	MCP        bool   `json:"mcp"`

	LLM       ProviderConfig `json:"llm"`
	Search    ProviderConfig `json:"search"`
	Mailer    ProviderConfig `json:"mailer"`
	Media     ProviderConfig `json:"media"`
	Analytics ProviderConfig `json:"analytics"`

	LLMModel   string `json:"llm_model"`
	MailerFrom string `json:"mailer_from"`
}

// ProviderConfig holds connection settings for one upstream provider.
type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr: ":4200",
		DBPath:     filepath.Join(stagelineDir(), "stageline.db"),
		LogLevel:   "info",
		LLMModel:   "gpt-4o-mini",
		MailerFrom: "outreach@stageline.dev",
	}
}

func stagelineDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stageline"
	}
	return filepath.Join(home, ".stageline")
}

func settingsPath() string {
	return filepath.Join(stagelineDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("STAGELINE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("STAGELINE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("STAGELINE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STAGELINE_MCP"); v != "" {
		cfg.MCP = v == "true" || v == "1"
	}
	if v := os.Getenv("STAGELINE_LLM_MODEL"); v != "" {
		cfg.LLMModel = v
	}
	if v := os.Getenv("STAGELINE_MAILER_FROM"); v != "" {
		cfg.MailerFrom = v
	}

	overrideProvider(&cfg.LLM, "LLM")
	overrideProvider(&cfg.Search, "SEARCH")
	overrideProvider(&cfg.Mailer, "MAILER")
	overrideProvider(&cfg.Media, "MEDIA")
	overrideProvider(&cfg.Analytics, "ANALYTICS")

	return cfg
}

func overrideProvider(pc *ProviderConfig, name string) {
	if v := os.Getenv("STAGELINE_" + name + "_URL"); v != "" {
		pc.BaseURL = v
	}
	if v := os.Getenv("STAGELINE_" + name + "_API_KEY"); v != "" {
		pc.APIKey = v
	}
}
