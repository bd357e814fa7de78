// Package stats computes descriptive summaries of trip samples and combines
// them across iterations.
package stats

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrUnknownStat   = errors.New("stats: unknown statistic")
	ErrSampleLengths = errors.New("stats: values and distances differ in length")
)

// Summary is an immutable set of descriptive statistics over one sample.
// Every float field is NaN when the sample was empty.
type Summary struct {
	Count        int
	Mean         float64
	Median       float64
	Min          float64
	P5           float64
	P25          float64
	P75          float64
	P95          float64
	Max          float64
	Std          float64
	WeightedMean float64
	WeightedStd  float64
}

// Empty returns the summary of an empty sample.
func Empty() Summary {
	nan := math.NaN()
	return Summary{
		Mean: nan, Median: nan, Min: nan, Max: nan,
		P5: nan, P25: nan, P75: nan, P95: nan,
		Std: nan, WeightedMean: nan, WeightedStd: nan,
	}
}

// IsEmpty reports whether no observation contributed to s.
func (s Summary) IsEmpty() bool { return s.Count == 0 }

// Summarize computes unweighted statistics. WeightedMean and WeightedStd
// mirror Mean and Std.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Empty()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	s := Summary{
		Count:  len(sorted),
		Mean:   stat.Mean(sorted, nil),
		Median: percentile(sorted, 50),
		Min:    sorted[0],
		P5:     percentile(sorted, 5),
		P25:    percentile(sorted, 25),
		P75:    percentile(sorted, 75),
		P95:    percentile(sorted, 95),
		Max:    sorted[len(sorted)-1],
		Std:    0,
	}
	if len(sorted) > 1 {
		s.Std = stat.StdDev(sorted, nil)
	}
	s.WeightedMean = s.Mean
	s.WeightedStd = s.Std
	return s
}

// SummarizeWeighted is Summarize with a weighted mean whose weights come from
// decay applied to each value's distance in meters. WeightedStd is the
// unbiased weighted estimate for reliability weights.
func SummarizeWeighted(values, distances []float64, decay Decay) (Summary, error) {
	if len(values) != len(distances) {
		return Empty(), fmt.Errorf("%w: %d values, %d distances", ErrSampleLengths, len(values), len(distances))
	}
	s := Summarize(values)
	if s.IsEmpty() {
		return s, nil
	}

	w := make([]float64, len(values))
	for i, d := range distances {
		w[i] = decay.Weight(d)
	}
	sumW := floats.Sum(w)
	s.WeightedMean = stat.Mean(values, w)
	if len(values) == 1 {
		s.WeightedStd = 0
		return s, nil
	}

	var sumSquares float64
	for i, v := range values {
		sumSquares += v * v * w[i]
	}
	// rounding can push the variance of a constant sample below zero
	a := math.Max(sumSquares/sumW-s.WeightedMean*s.WeightedMean, 0)
	b := sumW * sumW / (sumW*sumW - floats.Dot(w, w))
	s.WeightedStd = math.Sqrt(a * b)
	return s, nil
}

// percentile estimates the p-th percentile of an ascending sample with
// position p(n+1)/100 and linear interpolation between neighbours.
func percentile(sorted []float64, p float64) float64 {
	n := float64(len(sorted))
	pos := p * (n + 1) / 100
	if pos < 1 {
		return sorted[0]
	}
	if pos >= n {
		return sorted[len(sorted)-1]
	}
	lower := math.Floor(pos)
	d := pos - lower
	lo := sorted[int(lower)-1]
	hi := sorted[int(lower)]
	return lo + d*(hi-lo)
}

// Combine blends two summaries field by field as (1-w)*previous + w*current.
// A NaN on either side yields the other side, so an iteration without
// observations keeps the previous estimate. Counts add up.
func Combine(previous, current Summary, weight float64) Summary {
	c := func(p, q float64) float64 {
		if math.IsNaN(p) {
			return q
		}
		if math.IsNaN(q) {
			return p
		}
		return (1-weight)*p + weight*q
	}
	return Summary{
		Count:        previous.Count + current.Count,
		Mean:         c(previous.Mean, current.Mean),
		Median:       c(previous.Median, current.Median),
		Min:          c(previous.Min, current.Min),
		P5:           c(previous.P5, current.P5),
		P25:          c(previous.P25, current.P25),
		P75:          c(previous.P75, current.P75),
		P95:          c(previous.P95, current.P95),
		Max:          c(previous.Max, current.Max),
		Std:          c(previous.Std, current.Std),
		WeightedMean: c(previous.WeightedMean, current.WeightedMean),
		WeightedStd:  c(previous.WeightedStd, current.WeightedStd),
	}
}

// Stat selects one field of a Summary.
type Stat int

const (
	StatMean Stat = iota
	StatMedian
	StatMin
	StatP5
	StatP25
	StatP75
	StatP95
	StatMax
	StatWeightedMean
)

var statNames = []string{"avg", "median", "min", "p_5", "p_25", "p_75", "p_95", "max", "weightedAvg"}

func (s Stat) String() string {
	if s < 0 || int(s) >= len(statNames) {
		return "Stat(" + strconv.Itoa(int(s)) + ")"
	}
	return statNames[s]
}

// ParseStat accepts the CSV column names and the long forms "average" and
// "weightedAverage".
func ParseStat(name string) (Stat, error) {
	switch name {
	case "average":
		return StatMean, nil
	case "weightedAverage":
		return StatWeightedMean, nil
	}
	for i, n := range statNames {
		if n == name {
			return Stat(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStat, name)
}

// Value returns the selected statistic, NaN for an unknown selector.
func (s Summary) Value(st Stat) float64 {
	switch st {
	case StatMean:
		return s.Mean
	case StatMedian:
		return s.Median
	case StatMin:
		return s.Min
	case StatP5:
		return s.P5
	case StatP25:
		return s.P25
	case StatP75:
		return s.P75
	case StatP95:
		return s.P95
	case StatMax:
		return s.Max
	case StatWeightedMean:
		return s.WeightedMean
	default:
		return math.NaN()
	}
}

// Header lists the statistic columns written by Record.
func Header() []string { return slices.Clone(statNames) }

// HeaderLine joins Header with sep.
func HeaderLine(sep string) string { return strings.Join(statNames, sep) }

// Record formats the statistics in Header order.
func (s Summary) Record() []string {
	out := make([]string, len(statNames))
	for i := range statNames {
		out[i] = strconv.FormatFloat(s.Value(Stat(i)), 'f', -1, 64)
	}
	return out
}
