package stats

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrUnknownDecay        = errors.New("stats: unknown decay kind")
	ErrDecayNotImplemented = errors.New("stats: decay kind not implemented")
)

// minDecayDistance keeps weights finite for observations located exactly at
// the query point.
const minDecayDistance = 1.0

// Decay turns a distance in meters into a weight.
type Decay interface {
	Weight(meters float64) float64
	Name() string
}

type decayFunc struct {
	name string
	fn   func(km float64) float64
}

func (d decayFunc) Name() string { return d.name }

func (d decayFunc) Weight(meters float64) float64 {
	return d.fn(math.Max(meters, minDecayDistance) / 1000)
}

var (
	// PowerDecay weighs by d_km^-2.
	PowerDecay Decay = decayFunc{"POWER_DECAY", func(km float64) float64 { return 1 / (km * km) }}
	// InverseDecay weighs by d_km^-1.
	InverseDecay Decay = decayFunc{"INVERSE_DECAY", func(km float64) float64 { return 1 / km }}
	// ExponentialDecay weighs by e^-d_km.
	ExponentialDecay Decay = decayFunc{"EXPONENTIAL_DECAY", func(km float64) float64 { return math.Exp(-km) }}
)

// ParseDecay resolves a configured decay name. SPATIAL_CORRELATION is a
// recognised kind without a defined weighting and fails with
// ErrDecayNotImplemented.
func ParseDecay(name string) (Decay, error) {
	switch name {
	case "POWER_DECAY":
		return PowerDecay, nil
	case "INVERSE_DECAY":
		return InverseDecay, nil
	case "EXPONENTIAL_DECAY":
		return ExponentialDecay, nil
	case "SPATIAL_CORRELATION":
		return nil, fmt.Errorf("%w: %s", ErrDecayNotImplemented, name)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDecay, name)
	}
}
