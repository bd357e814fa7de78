// Package smoothing reduces the per-iteration history of a statistic to the
// single value fed back to the next iteration.
package smoothing

import (
	"errors"
	"fmt"
	"math"

	"drt-feedback/internal/history"
	"drt-feedback/internal/stats"
)

var ErrUnknownKind = errors.New("smoothing: unknown kind")

// Configured smoothing kinds.
const (
	KindIterationBased    = "IterationBased"
	KindMovingAverage     = "MovingAverage"
	KindSuccessiveAverage = "SuccessiveAverage"
)

// Reducer folds one statistic over the iterations of a history, oldest
// first. Empty bins appear as NaN.
type Reducer interface {
	Reduce(series []float64) float64
	// ReduceFresh is Reduce with the latest element replaced by fresh.
	ReduceFresh(series []float64, fresh float64) float64
	Name() string
}

// Smoother reads the history tables through a Reducer.
type Smoother interface {
	ZonalValue(v history.View, zone string, timeBin int, st stats.Stat) float64
	DistanceValue(v history.View, distanceBin, timeBin int, st stats.Stat) float64
	DynamicValue(v history.View, fresh stats.Summary, zone string, timeBin int, st stats.Stat) float64
	GlobalValue(v history.View, m history.Metric, st stats.Stat) float64
	Name() string
}

// New returns the Smoother of a configured kind. window is read by
// MovingAverage, weight by SuccessiveAverage.
func New(kind string, window int, weight float64) (Smoother, error) {
	switch kind {
	case KindIterationBased:
		return Of(LastIteration{}), nil
	case KindMovingAverage:
		if window < 1 {
			return nil, fmt.Errorf("smoothing: moving window must be at least 1, got %d", window)
		}
		return Of(MovingWindow{Window: window}), nil
	case KindSuccessiveAverage:
		if !(weight > 0 && weight <= 1) {
			return nil, fmt.Errorf("smoothing: successive average weight must be in (0,1], got %g", weight)
		}
		return Of(SuccessiveAverage{Weight: weight}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Of wraps a Reducer.
func Of(r Reducer) Smoother { return smoother{r} }

type smoother struct{ r Reducer }

func (s smoother) Name() string { return s.r.Name() }

func (s smoother) ZonalValue(v history.View, zone string, timeBin int, st stats.Stat) float64 {
	return s.r.Reduce(values(v.ZonalSeries(zone, timeBin), st))
}

func (s smoother) DistanceValue(v history.View, distanceBin, timeBin int, st stats.Stat) float64 {
	return s.r.Reduce(values(v.DistanceSeries(distanceBin, timeBin), st))
}

// DynamicValue smooths the zonal series of the query zone with the latest
// iteration replaced by a summary of the trips around the query point.
func (s smoother) DynamicValue(v history.View, fresh stats.Summary, zone string, timeBin int, st stats.Stat) float64 {
	return s.r.ReduceFresh(values(v.ZonalSeries(zone, timeBin), st), fresh.Value(st))
}

func (s smoother) GlobalValue(v history.View, m history.Metric, st stats.Stat) float64 {
	return s.r.Reduce(values(v.GlobalSeries(m), st))
}

func values(series []stats.Summary, st stats.Stat) []float64 {
	out := make([]float64, len(series))
	for i, s := range series {
		out[i] = s.Value(st)
	}
	return out
}

// LastIteration only looks at the most recent iteration.
type LastIteration struct{}

func (LastIteration) Name() string { return KindIterationBased }

func (LastIteration) Reduce(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}

func (LastIteration) ReduceFresh(_ []float64, fresh float64) float64 { return fresh }

// MovingWindow averages the non-NaN values of the last Window iterations.
type MovingWindow struct{ Window int }

func (MovingWindow) Name() string { return KindMovingAverage }

func (w MovingWindow) Reduce(series []float64) float64 {
	start := max(0, len(series)-w.Window)
	return nanMean(series[start:], math.NaN())
}

// ReduceFresh averages fresh with the Window-1 iterations preceding the
// latest one. A NaN fresh value is ignored like any other empty bin.
func (w MovingWindow) ReduceFresh(series []float64, fresh float64) float64 {
	if len(series) == 0 {
		return fresh
	}
	start := max(0, len(series)-w.Window)
	return nanMean(series[start:len(series)-1], fresh)
}

func nanMean(series []float64, extra float64) float64 {
	var sum float64
	var n int
	for _, v := range append(series[:len(series):len(series)], extra) {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// SuccessiveAverage folds every iteration with (1-Weight)*prev + Weight*next.
// NaN values leave the running value unchanged.
type SuccessiveAverage struct{ Weight float64 }

func (SuccessiveAverage) Name() string { return KindSuccessiveAverage }

func (a SuccessiveAverage) Reduce(series []float64) float64 {
	v := math.NaN()
	for _, x := range series {
		v = a.combine(v, x)
	}
	return v
}

func (a SuccessiveAverage) ReduceFresh(series []float64, fresh float64) float64 {
	if len(series) == 0 {
		return fresh
	}
	return a.combine(a.Reduce(series[:len(series)-1]), fresh)
}

func (a SuccessiveAverage) combine(prev, next float64) float64 {
	switch {
	case math.IsNaN(prev):
		return next
	case math.IsNaN(next):
		return prev
	default:
		return (1-a.Weight)*prev + a.Weight*next
	}
}
