package openaicompat

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/models"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/prompt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var defaultBaseURLs = map[string]string{
	"ollama":     "http://localhost:11434/v1",
	"groq":       "https://api.groq.com/openai/v1",
	"openrouter": "https://openrouter.ai/api/v1",
}

var defaultModels = map[string]string{
	"ollama":     "llama3.1:8b",
	"groq":       "llama-3.3-70b-versatile",
	"openrouter": "meta-llama/llama-3.2-3b-instruct:free",
	"openai":     "gpt-4o-mini",
}

// Client talks to any OpenAI-compatible chat completion endpoint:
// Ollama's /v1 API, Groq, OpenRouter or OpenAI itself.
type Client struct {
	client      *openai.Client
	provider    string
	baseURL     string
	modelName   string
	temperature float32
	maxTokens   int
	jsonMode    bool
	logger      *zap.Logger
	maxRetries  int
	retryDelay  time.Duration
}

// Config for an OpenAI-compatible client
type Config struct {
	Provider    string // ollama, groq, openrouter, openai
	BaseURL     string
	APIKey      string
	ModelName   string
	MaxRetries  int
	RetryDelay  time.Duration
	Timeout     time.Duration
	Temperature float32
	MaxTokens   int
	// DisableJSONMode drops response_format for servers that reject it
	DisableJSONMode bool
}

// NewClient creates a new client
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Provider == "" {
		cfg.Provider = "ollama"
	}
	if _, known := defaultModels[cfg.Provider]; !known {
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}

	if cfg.APIKey == "" && cfg.Provider != "ollama" {
		return nil, fmt.Errorf("%s API key is required", cfg.Provider)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURLs[cfg.Provider]
	}

	if cfg.ModelName == "" {
		cfg.ModelName = defaultModels[cfg.Provider]
	}

	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}

	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	if cfg.Temperature == 0 {
		cfg.Temperature = 0.1
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 400
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	logger.Info("LLM client initialized",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.ModelName),
		zap.Int("max_retries", cfg.MaxRetries))

	return &Client{
		client:      openai.NewClientWithConfig(clientCfg),
		provider:    cfg.Provider,
		baseURL:     clientCfg.BaseURL,
		modelName:   cfg.ModelName,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		jsonMode:    !cfg.DisableJSONMode,
		logger:      logger,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
	}, nil
}

// ListModels returns the model ids the backend serves
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	list, err := c.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s list models: %w", c.provider, err)
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// IsAvailable checks that the backend answers and serves the configured
// model. A bare model name also matches any of its tags ("llama3" matches
// "llama3:8b").
func (c *Client) IsAvailable(ctx context.Context) bool {
	ids, err := c.ListModels(ctx)
	if err != nil {
		c.logger.Warn("LLM backend not reachable",
			zap.String("provider", c.provider),
			zap.Error(err))
		return false
	}
	for _, id := range ids {
		if id == c.modelName || strings.HasPrefix(id, c.modelName+":") {
			return true
		}
	}
	c.logger.Warn("Model not served by backend",
		zap.String("provider", c.provider),
		zap.String("model", c.modelName),
		zap.Int("models_listed", len(ids)))
	return false
}

// Analyze sends one message for analysis
func (c *Client) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResponse, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: prompt.SystemInstruction,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt.BuildPrompt(req),
			},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if c.jsonMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Retrying LLM request",
				zap.String("provider", c.provider),
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", c.maxRetries))
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := c.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			lastErr = fmt.Errorf("%s API error: %w", c.provider, err)
			c.logger.Error("LLM API error",
				zap.String("provider", c.provider),
				zap.Error(err),
				zap.Int("attempt", attempt+1))
			continue
		}

		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("empty response from %s", c.provider)
			c.logger.Error("Empty LLM response",
				zap.String("provider", c.provider),
				zap.Int("attempt", attempt+1))
			continue
		}

		result, err := prompt.ParseResponse(resp.Choices[0].Message.Content, c.modelName)
		if err != nil {
			lastErr = err
			c.logger.Error("Failed to parse LLM response",
				zap.String("provider", c.provider),
				zap.Error(err),
				zap.Int("attempt", attempt+1))
			continue
		}

		c.logger.Debug("LLM analysis complete",
			zap.String("provider", c.provider),
			zap.Bool("confirmed", result.Confirmed),
			zap.Int("attempt", attempt+1))

		return result, nil
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", c.maxRetries, lastErr)
}

// GetModelInfo returns model information
func (c *Client) GetModelInfo() map[string]interface{} {
	return map[string]interface{}{
		"provider":    c.provider,
		"model":       c.modelName,
		"base_url":    c.baseURL,
		"max_retries": c.maxRetries,
		"retry_delay": c.retryDelay.String(),
	}
}
