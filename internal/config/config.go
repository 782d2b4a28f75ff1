package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/llm"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/models"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "SENTINEL"

// Config holds the application's configuration.
type Config struct {
	Server struct {
		Port       string        `yaml:"port"`
		AuthSecret string        `yaml:"auth_secret"`
		TokenTTL   time.Duration `yaml:"token_ttl"`
	} `yaml:"server"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Scan struct {
		XMLDir        string `yaml:"xml_dir"`
		ContextWindow int    `yaml:"context_window"`
		KeywordOnly   bool   `yaml:"keyword_only"`
		KeywordsFile  string `yaml:"keywords_file"`
		RunLabel      string `yaml:"run_label"`
	} `yaml:"scan"`
	Providers               []llm.ProviderConfig `yaml:"providers"`
	MaxFailuresBeforeSwitch int                  `yaml:"max_failures_before_switch"`
	Logging                 struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
	Report struct {
		SigningSecret string `yaml:"signing_secret"`
		Version       string `yaml:"version"`
	} `yaml:"report"`
	ContactRelationships Relationships `yaml:"contact_relationships"`
}

// Relationships keeps contact_relationships in file order; the first
// matching entry wins.
type Relationships []models.Relationship

// UnmarshalYAML decodes a name -> tags mapping without losing its order
func (r *Relationships) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("contact_relationships: expected a mapping, got line %d", node.Line)
	}
	out := make(Relationships, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var tags []string
		if err := node.Content[i+1].Decode(&tags); err != nil {
			return fmt.Errorf("contact_relationships.%s: %w", node.Content[i].Value, err)
		}
		if tags == nil {
			tags = []string{}
		}
		out = append(out, models.Relationship{Name: node.Content[i].Value, Tags: tags})
	}
	*r = out
	return nil
}

// envOverrides lists the settings that can be replaced from the environment,
// e.g. SENTINEL_DB_PATH.
type envOverrides struct {
	DBPath        string `envconfig:"DB_PATH"`
	Port          string `envconfig:"PORT"`
	LogLevel      string `envconfig:"LOG_LEVEL"`
	LogFormat     string `envconfig:"LOG_FORMAT"`
	XMLDir        string `envconfig:"XML_DIR"`
	KeywordOnly   *bool  `envconfig:"KEYWORD_ONLY"`
	OllamaHost    string `envconfig:"OLLAMA_HOST"`
	Model         string `envconfig:"MODEL"`
	AuthSecret    string `envconfig:"AUTH_SECRET"`
	SigningSecret string `envconfig:"SIGNING_SECRET"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.Server.TokenTTL = 24 * time.Hour
	cfg.Database.Path = "sentinel_output/sentinel.db"
	cfg.Scan.XMLDir = "."
	cfg.Scan.ContextWindow = 2
	cfg.Providers = []llm.ProviderConfig{{
		Type:      llm.ProviderOllama,
		BaseURL:   "http://localhost:11434/v1",
		ModelName: "llama3.1:8b",
	}}
	cfg.MaxFailuresBeforeSwitch = 3
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"
	cfg.Logging.Output = "stderr"
	cfg.Report.Version = "1.0"
	return cfg
}

// LoadConfig reads configuration from the specified YAML file on top of the
// defaults, then applies environment overrides. An empty path skips the file.
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	config.Server.AuthSecret = os.ExpandEnv(config.Server.AuthSecret)
	config.Report.SigningSecret = os.ExpandEnv(config.Report.SigningSecret)
	for i := range config.Providers {
		config.Providers[i].APIKey = os.ExpandEnv(config.Providers[i].APIKey)
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	if env.DBPath != "" {
		c.Database.Path = env.DBPath
	}
	if env.Port != "" {
		c.Server.Port = env.Port
	}
	if env.LogLevel != "" {
		c.Logging.Level = env.LogLevel
	}
	if env.LogFormat != "" {
		c.Logging.Format = env.LogFormat
	}
	if env.XMLDir != "" {
		c.Scan.XMLDir = env.XMLDir
	}
	if env.KeywordOnly != nil {
		c.Scan.KeywordOnly = *env.KeywordOnly
	}
	if env.AuthSecret != "" {
		c.Server.AuthSecret = env.AuthSecret
	}
	if env.SigningSecret != "" {
		c.Report.SigningSecret = env.SigningSecret
	}
	if env.OllamaHost != "" || env.Model != "" {
		c.overrideOllama(env.OllamaHost, env.Model)
	}
	return nil
}

// overrideOllama points the first Ollama provider at host and/or model,
// adding one at the head of the chain when none is configured.
func (c *Config) overrideOllama(host, model string) {
	idx := -1
	for i, p := range c.Providers {
		if p.Type == llm.ProviderOllama || p.Type == "" {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.Providers = append([]llm.ProviderConfig{{Type: llm.ProviderOllama}}, c.Providers...)
		idx = 0
	}
	if host != "" {
		c.Providers[idx].BaseURL = strings.TrimRight(host, "/") + "/v1"
	}
	if model != "" {
		c.Providers[idx].ModelName = model
	}
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Scan.ContextWindow < 0 {
		return fmt.Errorf("scan.context_window must be >= 0, got %d", c.Scan.ContextWindow)
	}
	if !c.Scan.KeywordOnly && len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider is required unless scan.keyword_only is set")
	}
	for i, p := range c.Providers {
		switch p.Type {
		case "", llm.ProviderOllama, llm.ProviderGroq, llm.ProviderOpenRouter, llm.ProviderOpenAI, llm.ProviderGemini:
		default:
			return fmt.Errorf("providers[%d]: unknown type %q", i, p.Type)
		}
	}
	return nil
}

const redacted = "********"

// Redacted returns the configuration as served by the API, with every
// secret replaced.
func (c *Config) Redacted() map[string]interface{} {
	providers := make([]map[string]interface{}, 0, len(c.Providers))
	for _, p := range c.Providers {
		entry := map[string]interface{}{
			"type":                string(p.Type),
			"base_url":            p.BaseURL,
			"model_name":          p.ModelName,
			"requests_per_minute": p.RequestsPerMinute,
		}
		if p.APIKey != "" {
			entry["api_key"] = redacted
		}
		providers = append(providers, entry)
	}

	hide := func(secret string) string {
		if secret == "" {
			return ""
		}
		return redacted
	}

	return map[string]interface{}{
		"server": map[string]interface{}{
			"port":        c.Server.Port,
			"auth_secret": hide(c.Server.AuthSecret),
			"token_ttl":   c.Server.TokenTTL.String(),
		},
		"database": map[string]interface{}{"path": c.Database.Path},
		"scan": map[string]interface{}{
			"xml_dir":        c.Scan.XMLDir,
			"context_window": c.Scan.ContextWindow,
			"keyword_only":   c.Scan.KeywordOnly,
			"keywords_file":  c.Scan.KeywordsFile,
			"run_label":      c.Scan.RunLabel,
		},
		"providers":                  providers,
		"max_failures_before_switch": c.MaxFailuresBeforeSwitch,
		"logging": map[string]interface{}{
			"level":  c.Logging.Level,
			"format": c.Logging.Format,
		},
		"report": map[string]interface{}{
			"signing_secret": hide(c.Report.SigningSecret),
			"version":        c.Report.Version,
		},
		"contact_relationships": len(c.ContactRelationships),
	}
}
