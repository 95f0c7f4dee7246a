// Package clocknorm provides the clock normalization used when every
// receiver stamps messages against a GPS-disciplined clock: all timestamps
// already share one timebase, so normalization is the identity and the whole
// receiver set forms a single comparable component.
package clocknorm

import (
	"github.com/skysieve/mlatd/internal/domain/cluster"
	"github.com/skysieve/mlatd/internal/domain/model"
)

// defaultVariance is the clock variance assigned to a GPS-disciplined
// receiver, in seconds squared. One microsecond of timing jitter.
const defaultVariance = 1e-12

// GPS is a Normalizer for receivers on a shared GPS timebase.
type GPS struct {
	variance float64
}

// Option applies a configuration option to GPS.
type Option func(*GPS)

// WithVariance overrides the per-receiver clock variance, in s^2.
func WithVariance(v float64) Option {
	return func(g *GPS) {
		if v > 0 {
			g.variance = v
		}
	}
}

// NewGPS creates the identity normalizer.
func NewGPS(opts ...Option) *GPS {
	g := &GPS{variance: defaultVariance}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Normalize returns the input as one component with a fixed variance per
// receiver. An empty input yields no components.
func (g *GPS) Normalize(timestamps map[*model.Receiver][]float64) []cluster.Component {
	if len(timestamps) == 0 {
		return nil
	}
	component := make(cluster.Component, len(timestamps))
	for rx, ts := range timestamps {
		component[rx] = cluster.ComponentEntry{Variance: g.variance, Timestamps: ts}
	}
	return []cluster.Component{component}
}
