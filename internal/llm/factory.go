package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/gemini"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/openaicompat"

	"go.uber.org/zap"
)

// ProviderType represents the type of LLM provider
type ProviderType string

const (
	ProviderOllama     ProviderType = "ollama"
	ProviderGroq       ProviderType = "groq"
	ProviderOpenRouter ProviderType = "openrouter"
	ProviderOpenAI     ProviderType = "openai"
	ProviderGemini     ProviderType = "gemini"
)

// ProviderConfig holds configuration for a single provider instance
type ProviderConfig struct {
	Type        ProviderType  `yaml:"type"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	ModelName   string        `yaml:"model_name"`
	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float32       `yaml:"temperature"`
	// Rate limiting per provider
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// NewProvider builds a single rate-limited provider
func NewProvider(ctx context.Context, cfg ProviderConfig, logger *zap.Logger) (*RateLimitedAdapter, error) {
	var adapter Adapter

	switch cfg.Type {
	case ProviderOllama, ProviderGroq, ProviderOpenRouter, ProviderOpenAI, "":
		kind := cfg.Type
		if kind == "" {
			kind = ProviderOllama
		}
		client, err := openaicompat.NewClient(openaicompat.Config{
			Provider:    string(kind),
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			ModelName:   cfg.ModelName,
			MaxRetries:  cfg.MaxRetries,
			RetryDelay:  cfg.RetryDelay,
			Timeout:     cfg.Timeout,
			Temperature: cfg.Temperature,
		}, logger)
		if err != nil {
			return nil, err
		}
		adapter = client
	case ProviderGemini:
		client, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:      cfg.APIKey,
			ModelName:   cfg.ModelName,
			MaxRetries:  cfg.MaxRetries,
			RetryDelay:  cfg.RetryDelay,
			Temperature: cfg.Temperature,
		}, logger)
		if err != nil {
			return nil, err
		}
		adapter = client
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}

	name := string(cfg.Type)
	if cfg.ModelName != "" {
		name += "/" + cfg.ModelName
	}
	return NewRateLimitedAdapter(adapter, name, cfg.RequestsPerMinute, logger), nil
}

// NewFromConfig builds the failover chain. Providers that fail to
// initialize are skipped; an error is returned only when none remain.
func NewFromConfig(ctx context.Context, providers []ProviderConfig, maxFailures int, logger *zap.Logger) (*MultiProviderAdapter, error) {
	var built []*RateLimitedAdapter
	for i, cfg := range providers {
		p, err := NewProvider(ctx, cfg, logger)
		if err != nil {
			logger.Warn("Failed to initialize provider",
				zap.Int("index", i),
				zap.String("type", string(cfg.Type)),
				zap.Error(err))
			continue
		}
		built = append(built, p)
	}
	if len(built) == 0 {
		return nil, fmt.Errorf("no LLM provider could be initialized")
	}

	logger.Info("LLM providers initialized", zap.Int("provider_count", len(built)))
	return NewMultiProviderAdapter(built, maxFailures, logger)
}
