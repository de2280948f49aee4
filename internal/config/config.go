// Package config centralizes configuration loading and defaults.
// Precedence (viper's order): environment variables > config file
// values > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/planvane/planvane/internal/llm"
	"github.com/planvane/planvane/internal/prompt"
	"github.com/planvane/planvane/models"
)

// Default values.
const (
	DefaultProjectDir  = ".planvane"
	DefaultStateFile   = "state.json"
	DefaultStoreDriver = "file"
	DefaultFormat      = "json"
	DefaultProvider    = string(llm.ProviderOpenAI)
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultOllamaModel = "llama3.2"
)

// AppConfig is the unmarshaled application configuration.
type AppConfig struct {
	Project struct {
		Dir    string `mapstructure:"dir"`
		File   string `mapstructure:"file"`
		Format string `mapstructure:"format"`
	} `mapstructure:"project"`
	Store struct {
		Driver string `mapstructure:"driver"` // file or sqlite
		DB     string `mapstructure:"db"`     // sqlite database path
	} `mapstructure:"store"`
	LLM struct {
		Provider string `mapstructure:"provider"`
		Model    string `mapstructure:"model"`
		APIKey   string `mapstructure:"apiKey"`
		BaseURL  string `mapstructure:"baseUrl"`
	} `mapstructure:"llm"`
	Planner struct {
		Mode        string `mapstructure:"mode"` // conversation or checklist
		TemplateDir string `mapstructure:"templateDir"`
	} `mapstructure:"planner"`
	Executor struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"executor"`
	Approvals struct {
		RequireExecution bool `mapstructure:"requireExecution"`
		RequireRetry     bool `mapstructure:"requireRetry"`
	} `mapstructure:"approvals"`
	Telemetry struct {
		Enabled bool   `mapstructure:"enabled"`
		APIKey  string `mapstructure:"apiKey"`
	} `mapstructure:"telemetry"`
	Verbose bool `mapstructure:"verbose"`
}

// SetDefaults installs every default into viper. Called before
// ReadInConfig so a partial config file only overrides what it names.
func SetDefaults() {
	viper.SetDefault("project.dir", DefaultProjectDir)
	viper.SetDefault("project.file", DefaultStateFile)
	viper.SetDefault("project.format", DefaultFormat)
	viper.SetDefault("store.driver", DefaultStoreDriver)
	viper.SetDefault("store.db", "state.db")
	viper.SetDefault("llm.provider", DefaultProvider)
	viper.SetDefault("llm.model", "")
	viper.SetDefault("llm.apiKey", "")
	viper.SetDefault("llm.baseUrl", "")
	viper.SetDefault("planner.mode", string(prompt.DefaultMode))
	viper.SetDefault("executor.url", "")
	viper.SetDefault("approvals.requireExecution", false)
	viper.SetDefault("approvals.requireRetry", true)
	viper.SetDefault("telemetry.enabled", false)
}

// Load unmarshals the current viper state into an AppConfig and fills
// derived defaults (model per provider, API key from env conventions).
func Load() (*AppConfig, error) {
	var cfg AppConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultModelForProvider(cfg.LLM.Provider)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = apiKeyFromEnv(cfg.LLM.Provider)
	}
	return &cfg, nil
}

// StatePath returns the full path of the state file.
func (c *AppConfig) StatePath() string {
	return filepath.Join(c.Project.Dir, c.Project.File)
}

// DBPath returns the full path of the sqlite database.
func (c *AppConfig) DBPath() string {
	return filepath.Join(c.Project.Dir, c.Store.DB)
}

// LLMConfig translates the app config into the llm client config.
func (c *AppConfig) LLMConfig() llm.Config {
	return llm.Config{
		Provider: llm.Provider(c.LLM.Provider),
		Model:    c.LLM.Model,
		APIKey:   c.LLM.APIKey,
		BaseURL:  c.LLM.BaseURL,
	}
}

// Settings translates the approval gates into project settings.
func (c *AppConfig) Settings() models.Settings {
	return models.Settings{
		RequireExecutionApproval: c.Approvals.RequireExecution,
		RequireRetryApproval:     c.Approvals.RequireRetry,
	}
}

// DefaultModelForProvider returns the default model for a given provider.
func DefaultModelForProvider(provider string) string {
	switch provider {
	case string(llm.ProviderOpenAI):
		return DefaultOpenAIModel
	case string(llm.ProviderOllama):
		return DefaultOllamaModel
	default:
		return ""
	}
}

// apiKeyFromEnv checks the conventional environment variables for the
// provider's API key. Viper's AutomaticEnv covers PLANVANE_LLM_APIKEY;
// these are the vendor-standard names.
func apiKeyFromEnv(provider string) string {
	var names []string
	switch provider {
	case string(llm.ProviderOpenAI):
		names = []string{"OPENAI_API_KEY"}
	case string(llm.ProviderAnthropic):
		names = []string{"ANTHROPIC_API_KEY"}
	case string(llm.ProviderGemini):
		names = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	}
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
