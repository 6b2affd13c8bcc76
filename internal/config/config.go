package config

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
)

type Config struct {
	Server  ServerConfig  `json:"server"`
	Policy  PolicyConfig  `json:"policy"`
	Masking MaskingConfig `json:"masking"`
	Healing HealingConfig `json:"healing"`
	LLM     LLMConfig     `json:"llm"`
	Storage StorageConfig `json:"storage"`
}

type ServerConfig struct {
	HTTPAddr string `json:"http_addr"`
}

type PolicyConfig struct {
	MaxCallsPerHour    int    `json:"max_calls_per_hour"`
	MaxComplexityScore int    `json:"max_complexity_score"`
	CacheTTLSecs       int    `json:"cache_ttl_secs"`
	SweepSchedule      string `json:"sweep_schedule"`
}

type MaskingConfig struct {
	// Sensitivity is "standard" or "strict"; empty means standard.
	Sensitivity string `json:"sensitivity"`
}

type HealingConfig struct {
	MaxRetries        int    `json:"max_retries"`
	OracleTimeoutSecs int    `json:"oracle_timeout_secs"`
	OntologyPath      string `json:"ontology_path"`
}

type LLMConfig struct {
	Provider        string   `json:"provider"`
	APIKey          string   `json:"api_key"`
	APIBase         string   `json:"api_base"`
	Model           string   `json:"model"`
	MaxOutputTokens int      `json:"max_output_tokens"`
	RedactPatterns  []string `json:"redact_patterns"`
}

type StorageConfig struct {
	PostgresDSN string `json:"postgres_dsn"`
}

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.HTTPAddr) == "" {
		return errors.New("server.http_addr required")
	}
	if strings.TrimSpace(c.Storage.PostgresDSN) == "" {
		return errors.New("storage.postgres_dsn required")
	}
	if c.Policy.MaxCallsPerHour < 0 {
		return errors.New("policy.max_calls_per_hour must not be negative")
	}
	if c.Policy.MaxComplexityScore < 0 {
		return errors.New("policy.max_complexity_score must not be negative")
	}
	if c.Policy.CacheTTLSecs < 0 {
		return errors.New("policy.cache_ttl_secs must not be negative")
	}

	switch strings.ToLower(strings.TrimSpace(c.Masking.Sensitivity)) {
	case "", "standard", "strict":
	default:
		return errors.New("masking.sensitivity must be standard or strict")
	}

	if c.Healing.MaxRetries < 0 {
		return errors.New("healing.max_retries must not be negative")
	}
	if c.Healing.OracleTimeoutSecs < 0 {
		return errors.New("healing.oracle_timeout_secs must not be negative")
	}

	if strings.TrimSpace(c.LLM.Provider) != "" {
		if strings.TrimSpace(c.LLM.Model) == "" {
			return errors.New("llm.model required when llm.provider is set")
		}
		p := strings.ToLower(strings.TrimSpace(c.LLM.Provider))
		if (p == "openai" || p == "anthropic") && strings.TrimSpace(c.LLM.APIKey) == "" {
			return errors.New("llm.api_key required for llm.provider " + p)
		}
	}
	return nil
}
