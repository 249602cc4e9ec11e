package opt

import (
	"log/slog"
	"math"
)

// ConvergenceConfig defines when a search is considered stagnant
type ConvergenceConfig struct {
	// Enabled controls whether stagnation detection is active
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Patience is the number of generations with no significant improvement
	// of the incumbent before the search counts as converged
	Patience int `json:"patience" yaml:"patience"`

	// Threshold is the minimum relative improvement that counts as progress.
	// Relative improvement = (last - new) / |last|
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// DefaultConvergenceConfig returns sensible defaults for stagnation detection
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled:   true,
		Patience:  10,
		Threshold: 1e-6,
	}
}

// ConvergenceTracker tracks the incumbent cost per generation and detects stagnation
type ConvergenceTracker struct {
	config          ConvergenceConfig
	costHistory     []float64
	bestCost        float64
	lastSignificant float64
	staleCount      int
}

// NewConvergenceTracker creates a new tracker with the given config
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	return &ConvergenceTracker{
		config:          config,
		bestCost:        math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records a new incumbent cost and returns true once stagnation is detected
func (c *ConvergenceTracker) Update(cost float64) bool {
	if !c.config.Enabled {
		return false
	}

	c.costHistory = append(c.costHistory, cost)
	if cost < c.bestCost {
		c.bestCost = cost
	}

	if len(c.costHistory) == 1 {
		c.lastSignificant = cost
		return false
	}

	var improvement float64
	if c.lastSignificant != 0 && !math.IsInf(c.lastSignificant, 0) {
		improvement = (c.lastSignificant - cost) / math.Abs(c.lastSignificant)
	} else if cost < c.lastSignificant {
		improvement = math.Inf(1)
	}

	if improvement >= c.config.Threshold && improvement > 0 {
		c.lastSignificant = cost
		c.staleCount = 0
		return false
	}

	c.staleCount++
	if c.staleCount >= c.config.Patience {
		slog.Debug("Search stagnated",
			"stale_generations", c.staleCount,
			"patience", c.config.Patience,
			"best_cost", c.bestCost,
		)
		return true
	}
	return false
}

// BestCost returns the best cost seen so far
func (c *ConvergenceTracker) BestCost() float64 {
	return c.bestCost
}

// History returns the per-generation incumbent costs
func (c *ConvergenceTracker) History() []float64 {
	return append([]float64{}, c.costHistory...)
}

// StaleCount returns the number of generations without improvement
func (c *ConvergenceTracker) StaleCount() int {
	return c.staleCount
}
