// Package dynamic answers zone-free proximity queries over the trips of the
// latest iteration.
package dynamic

import (
	"errors"
	"fmt"
	"math"

	"drt-feedback/internal/spatial"
)

var ErrUnknownNeighborhood = errors.New("dynamic: unknown neighborhood kind")

// DefaultKMax caps the neighbour count of KNNShare.
const DefaultKMax = 1000

// Neighborhood selects the trips that describe the conditions around a point.
type Neighborhood interface {
	Select(tree *spatial.Tree[int], x, y float64) []spatial.Neighbor[int]
	Name() string
}

// KNNConstant takes a fixed number of nearest trips.
type KNNConstant struct{ K int }

func (n KNNConstant) Name() string { return "KNN_CN" }

func (n KNNConstant) Select(tree *spatial.Tree[int], x, y float64) []spatial.Neighbor[int] {
	return tree.KNearestNeighbors(x, y, n.K)
}

// KNNShare takes a share of the trips in the time bin, at most Max.
type KNNShare struct {
	Share float64
	Max   int
}

func (n KNNShare) Name() string { return "KNN_PN" }

// K is min(Max, ceil(size * Share)).
func (n KNNShare) K(size int) int {
	return min(n.Max, int(math.Ceil(float64(size)*n.Share)))
}

func (n KNNShare) Select(tree *spatial.Tree[int], x, y float64) []spatial.Neighbor[int] {
	return tree.KNearestNeighbors(x, y, n.K(tree.Len()))
}

// FixedDistance takes every trip within Radius meters.
type FixedDistance struct{ Radius float64 }

func (n FixedDistance) Name() string { return "FD" }

func (n FixedDistance) Select(tree *spatial.Tree[int], x, y float64) []spatial.Neighbor[int] {
	return tree.DiskNeighbors(x, y, n.Radius)
}

// NeighborhoodConfig holds the parameters of every neighbourhood kind; only
// those of Kind are read.
type NeighborhoodConfig struct {
	Kind   string
	K      int
	KShare float64
	KMax   int
	Radius float64
}

// NewNeighborhood validates cfg and returns the matching strategy.
func NewNeighborhood(cfg NeighborhoodConfig) (Neighborhood, error) {
	switch cfg.Kind {
	case "KNN_CN":
		if cfg.K < 1 {
			return nil, fmt.Errorf("dynamic: KNN_CN needs k >= 1, got %d", cfg.K)
		}
		return KNNConstant{K: cfg.K}, nil
	case "KNN_PN":
		if !(cfg.KShare > 0 && cfg.KShare <= 1) {
			return nil, fmt.Errorf("dynamic: KNN_PN share must be in (0,1], got %g", cfg.KShare)
		}
		kMax := cfg.KMax
		if kMax == 0 {
			kMax = DefaultKMax
		}
		if kMax < 1 {
			return nil, fmt.Errorf("dynamic: KNN_PN kMax must be positive, got %d", cfg.KMax)
		}
		return KNNShare{Share: cfg.KShare, Max: kMax}, nil
	case "FD":
		if !(cfg.Radius > 0) {
			return nil, fmt.Errorf("dynamic: FD radius must be positive, got %g", cfg.Radius)
		}
		return FixedDistance{Radius: cfg.Radius}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNeighborhood, cfg.Kind)
	}
}
