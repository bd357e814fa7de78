// Package binning maps simulation times and trip distances onto bin indexes.
package binning

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// SingleBin as a distance bin width collapses every distance into one bin.
const SingleBin = -1

// DefaultLastBinStart is the distance in meters after which every trip shares the overflow bin.
const DefaultLastBinStart = 10000

var (
	ErrNegativeTime     = errors.New("binning: negative time")
	ErrNegativeDistance = errors.New("binning: negative distance")
	ErrInvalidBinSize   = errors.New("binning: invalid bin size")
)

// TimeBinner splits a simulation day into fixed-width bins. Times are seconds
// since simulation start.
type TimeBinner struct {
	size    float64
	horizon float64
	count   int
}

// NewTimeBinner returns a binner with bins of binSize covering horizon.
func NewTimeBinner(binSize, horizon time.Duration) (TimeBinner, error) {
	if binSize <= 0 {
		return TimeBinner{}, fmt.Errorf("%w: time bin %s", ErrInvalidBinSize, binSize)
	}
	if horizon <= 0 {
		return TimeBinner{}, fmt.Errorf("%w: horizon %s", ErrInvalidBinSize, horizon)
	}
	size := binSize.Seconds()
	h := horizon.Seconds()
	return TimeBinner{size: size, horizon: h, count: int(math.Ceil(h / size))}, nil
}

// Bin returns floor(t / binSize). Times past the horizon still get an index;
// use InRange to check it against Count.
func (b TimeBinner) Bin(t float64) (int, error) {
	if t < 0 || math.IsNaN(t) {
		return 0, fmt.Errorf("%w: %g", ErrNegativeTime, t)
	}
	return int(math.Floor(t / b.size)), nil
}

// Count is ceil(horizon / binSize).
func (b TimeBinner) Count() int { return b.count }

// InRange reports whether bin is a valid index below Count.
func (b TimeBinner) InRange(bin int) bool { return bin >= 0 && bin < b.count }

// BinSize returns the bin width in seconds.
func (b TimeBinner) BinSize() float64 { return b.size }

// Start returns the first second covered by bin.
func (b TimeBinner) Start(bin int) float64 { return float64(bin) * b.size }

// DistanceBinner maps distances in meters onto [0, w), [w, 2w), ... bins with
// a final bin that is open to the right.
type DistanceBinner struct {
	width        float64
	count        int
	lastBinStart float64
}

// NewDistanceBinner derives the bin count from the requested overflow start:
// count = ceil(lastBinStart / width) + 1, and the overflow bin begins at
// (count-1) * width. A width of SingleBin yields exactly one bin.
func NewDistanceBinner(width, lastBinStart float64) (DistanceBinner, error) {
	if width == SingleBin {
		return DistanceBinner{width: SingleBin, count: 1}, nil
	}
	if width <= 0 || math.IsNaN(width) {
		return DistanceBinner{}, fmt.Errorf("%w: distance bin width %g", ErrInvalidBinSize, width)
	}
	if lastBinStart < 0 {
		return DistanceBinner{}, fmt.Errorf("%w: last bin start %g", ErrInvalidBinSize, lastBinStart)
	}
	n := int(math.Ceil(lastBinStart/width)) + 1
	return DistanceBinner{
		width:        width,
		count:        n,
		lastBinStart: float64(n-1) * width,
	}, nil
}

func (b DistanceBinner) Bin(d float64) (int, error) {
	if d < 0 || math.IsNaN(d) {
		return 0, fmt.Errorf("%w: %g", ErrNegativeDistance, d)
	}
	if d >= b.lastBinStart {
		return b.count - 1, nil
	}
	return int(math.Floor(d / b.width)), nil
}

func (b DistanceBinner) Count() int { return b.count }

// LastBinStart is the lower bound of the overflow bin.
func (b DistanceBinner) LastBinStart() float64 { return b.lastBinStart }

func (b DistanceBinner) Width() float64 { return b.width }
