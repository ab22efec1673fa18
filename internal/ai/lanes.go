package ai

import (
	"fmt"

	"ragdocs-api/internal/config"
	"ragdocs-api/models"
)

// LaneConfig binds a content lane to its embedding model, vector
// dimensionality and vector collection.
type LaneConfig struct {
	Lane       models.Lane
	Collection string
	Dimension  int
	Model      string
}

// LaneRouter resolves a lane to its embedding space. Lane assignment itself
// happens during chunking; at runtime this only answers "which collection,
// which dimension, which model".
type LaneRouter struct {
	lanes map[models.Lane]LaneConfig
}

// NewLaneRouter builds the router from the two configured lanes.
func NewLaneRouter(cfg *config.Config) *LaneRouter {
	return &LaneRouter{
		lanes: map[models.Lane]LaneConfig{
			models.LaneText: {
				Lane:       models.LaneText,
				Collection: cfg.TextCollection,
				Dimension:  cfg.TextVectorDim,
				Model:      cfg.TextEmbeddingModel,
			},
			models.LaneCode: {
				Lane:       models.LaneCode,
				Collection: cfg.CodeCollection,
				Dimension:  cfg.CodeVectorDim,
				Model:      cfg.CodeEmbeddingModel,
			},
		},
	}
}

// Resolve returns the configuration for a lane, or fails for unknown lanes.
func (r *LaneRouter) Resolve(lane models.Lane) (LaneConfig, error) {
	lc, ok := r.lanes[lane]
	if !ok {
		return LaneConfig{}, fmt.Errorf("%w: %q", models.ErrLaneNotConfigured, lane)
	}
	return lc, nil
}

// Lanes returns all configured lanes in stable order (text first).
func (r *LaneRouter) Lanes() []models.Lane {
	return []models.Lane{models.LaneText, models.LaneCode}
}
