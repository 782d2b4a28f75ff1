package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/metrics"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/models"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitedAdapter wraps an adapter with a per-minute request budget
type RateLimitedAdapter struct {
	adapter Adapter
	name    string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewRateLimitedAdapter wraps adapter; requestsPerMinute <= 0 disables limiting
func NewRateLimitedAdapter(adapter Adapter, name string, requestsPerMinute int, logger *zap.Logger) *RateLimitedAdapter {
	limit := rate.Inf
	burst := 1
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
		burst = requestsPerMinute
	}
	return &RateLimitedAdapter{
		adapter: adapter,
		name:    name,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

func (p *RateLimitedAdapter) IsAvailable(ctx context.Context) bool {
	return p.adapter.IsAvailable(ctx)
}

func (p *RateLimitedAdapter) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	start := time.Now()
	resp, err := p.adapter.Analyze(ctx, req)
	status := "ok"
	if err != nil || resp == nil {
		status = "error"
	}
	metrics.LLMDuration.WithLabelValues(p.name, status).Observe(time.Since(start).Seconds())

	return resp, err
}

func (p *RateLimitedAdapter) ListModels(ctx context.Context) ([]string, error) {
	if lister, ok := p.adapter.(ModelLister); ok {
		return lister.ListModels(ctx)
	}
	return nil, fmt.Errorf("provider %s cannot list models", p.name)
}

func (p *RateLimitedAdapter) GetModelInfo() map[string]interface{} {
	if d, ok := p.adapter.(Describer); ok {
		return d.GetModelInfo()
	}
	return map[string]interface{}{"provider": p.name}
}

// Close releases the wrapped adapter when it holds resources
func (p *RateLimitedAdapter) Close() error {
	if c, ok := p.adapter.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// MultiProviderAdapter tries providers in order and moves on after repeated
// failures of the current one.
type MultiProviderAdapter struct {
	providers    []*RateLimitedAdapter
	currentIndex int
	mu           sync.RWMutex
	logger       *zap.Logger
	maxFailures  int
	failureCount map[int]int
}

// NewMultiProviderAdapter creates a failover chain over providers
func NewMultiProviderAdapter(providers []*RateLimitedAdapter, maxFailures int, logger *zap.Logger) (*MultiProviderAdapter, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}
	if maxFailures <= 0 {
		maxFailures = 3
	}
	return &MultiProviderAdapter{
		providers:    providers,
		logger:       logger,
		maxFailures:  maxFailures,
		failureCount: make(map[int]int),
	}, nil
}

// IsAvailable reports whether any provider is reachable and makes the first
// reachable one current.
func (m *MultiProviderAdapter) IsAvailable(ctx context.Context) bool {
	for i, p := range m.providers {
		if p.IsAvailable(ctx) {
			m.mu.Lock()
			m.currentIndex = i
			m.failureCount[i] = 0
			m.mu.Unlock()
			return true
		}
		m.logger.Warn("Provider unavailable", zap.String("provider", p.name))
	}
	return false
}

func (m *MultiProviderAdapter) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResponse, error) {
	m.mu.RLock()
	start := m.currentIndex
	m.mu.RUnlock()

	var lastErr error
	for attempt := 0; attempt < len(m.providers); attempt++ {
		idx := (start + attempt) % len(m.providers)
		provider := m.providers[idx]

		resp, err := provider.Analyze(ctx, req)
		if err == nil && resp != nil {
			m.mu.Lock()
			m.failureCount[idx] = 0
			m.mu.Unlock()
			return resp, nil
		}
		if err == nil {
			err = fmt.Errorf("provider %s returned no response", provider.name)
		}
		lastErr = err

		m.recordFailure(idx, err)
		if ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf("all providers failed: %w", lastErr)
}

func (m *MultiProviderAdapter) recordFailure(idx int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failureCount[idx]++
	m.logger.Warn("Provider request failed",
		zap.String("provider", m.providers[idx].name),
		zap.Int("failures", m.failureCount[idx]),
		zap.Error(err))

	if idx == m.currentIndex && m.failureCount[idx] >= m.maxFailures {
		next := (idx + 1) % len(m.providers)
		m.logger.Warn("Switching provider",
			zap.String("from", m.providers[idx].name),
			zap.String("to", m.providers[next].name))
		m.currentIndex = next
		m.failureCount[idx] = 0
	}
}

// ListModels lists models of the current provider
func (m *MultiProviderAdapter) ListModels(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	p := m.providers[m.currentIndex]
	m.mu.RUnlock()
	return p.ListModels(ctx)
}

// GetModelInfo describes the current provider
func (m *MultiProviderAdapter) GetModelInfo() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := m.providers[m.currentIndex].GetModelInfo()
	info["provider_count"] = len(m.providers)
	info["current_index"] = m.currentIndex
	return info
}

// Close closes all providers
func (m *MultiProviderAdapter) Close() error {
	var firstErr error
	for _, p := range m.providers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
