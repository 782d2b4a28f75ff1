package llm

import (
	"context"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/models"
)

// Adapter is the capability every LLM backend provides.
// Analyze returns a nil response or an error when no usable answer exists.
type Adapter interface {
	IsAvailable(ctx context.Context) bool
	Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResponse, error)
}

// ModelLister is implemented by adapters that can enumerate backend models
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Describer is implemented by adapters that report provider details
type Describer interface {
	GetModelInfo() map[string]interface{}
}
