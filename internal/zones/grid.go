package zones

import (
	"fmt"
	"log"
	"math"
	"strconv"

	"github.com/paulmach/orb"

	"drt-feedback/internal/spatial"
)

// NewSquareGrid tiles the network extent with cellSize squares anchored at
// the lower-left corner. Zone ids count up from "1", column by column.
func NewSquareGrid(network Network, cellSize float64) (*System, error) {
	if !(cellSize > 0) {
		return nil, fmt.Errorf("zones: square cell size must be positive, got %g", cellSize)
	}
	log.Printf("[zones] creating square grid (cell %gm)", cellSize)
	b := network.Bound()
	nx := max(1, int(math.Ceil((b.Max.X()-b.Min.X())/cellSize)))
	ny := max(1, int(math.Ceil((b.Max.Y()-b.Min.Y())/cellSize)))

	zones := make([]Zone, 0, nx*ny)
	for i := 0; i < nx; i++ {
		x := b.Min.X() + float64(i)*cellSize
		for j := 0; j < ny; j++ {
			y := b.Min.Y() + float64(j)*cellSize
			cell := orb.Polygon{orb.Ring{
				{x, y}, {x + cellSize, y}, {x + cellSize, y + cellSize}, {x, y + cellSize}, {x, y},
			}}
			zones = append(zones, gridZone(len(zones)+1, cell, orb.Point{x + cellSize/2, y + cellSize/2}))
		}
	}
	s := newSystem(SquareGrid, network, zones)
	if err := s.indexCentroids(); err != nil {
		return nil, err
	}
	log.Printf("[zones] square grid ready: %d zones", len(zones))
	return s, nil
}

// NewHexGrid tiles the network extent with flat-topped hexagons of the given
// circumradius. Centroids sit on two interleaved lattices: the primary one
// starts at the lower-left corner and steps 3r horizontally and two apothems
// vertically, the secondary one is offset by (1.5r, apothem). Rows and
// columns continue while a hexagon still reaches into the extent, so the
// union covers it without gaps.
func NewHexGrid(network Network, radius float64) (*System, error) {
	if !(radius > 0) {
		return nil, fmt.Errorf("zones: hexagon radius must be positive, got %g", radius)
	}
	log.Printf("[zones] creating hexagon grid (radius %gm)", radius)
	b := network.Bound()
	apothem := radius * math.Sqrt(3) / 2

	var zones []Zone
	lattice := func(x0, y0 float64) {
		for y := y0; y-apothem < b.Max.Y() || y == y0; y += 2 * apothem {
			for x := x0; x-radius < b.Max.X() || x == x0; x += 3 * radius {
				zones = append(zones, gridZone(len(zones)+1, hexagon(x, y, radius), orb.Point{x, y}))
			}
		}
	}
	lattice(b.Min.X(), b.Min.Y())
	lattice(b.Min.X()+1.5*radius, b.Min.Y()+apothem)

	s := newSystem(HexGrid, network, zones)
	if err := s.indexCentroids(); err != nil {
		return nil, err
	}
	log.Printf("[zones] hexagon grid ready: %d zones", len(zones))
	return s, nil
}

func gridZone(n int, cell orb.Polygon, centroid orb.Point) Zone {
	mp := orb.MultiPolygon{cell}
	return Zone{ID: strconv.Itoa(n), Geometry: mp, Centroid: centroid, bound: mp.Bound()}
}

func hexagon(cx, cy, r float64) orb.Polygon {
	a := r * math.Sqrt(3) / 2
	p1 := orb.Point{cx - r, cy}
	return orb.Polygon{orb.Ring{
		p1,
		{cx - r/2, cy - a},
		{cx + r/2, cy - a},
		{cx + r, cy},
		{cx + r/2, cy + a},
		{cx - r/2, cy + a},
		p1,
	}}
}

// indexCentroids builds the nearest-centroid index. The tree extent covers
// the network and every centroid, so cells along the upper edges stay
// reachable.
func (s *System) indexCentroids() error {
	nb := s.network.Bound()
	ext := spatial.NewRect(nb.Min.X(), nb.Min.Y(), nb.Max.X(), nb.Max.Y())
	for _, z := range s.zones {
		ext = ext.Extend(z.Centroid.X(), z.Centroid.Y())
	}
	tree := spatial.NewWithLeafSize[int](ext, spatial.DefaultLeafSize)
	for i, z := range s.zones {
		if _, err := tree.Put(z.Centroid.X(), z.Centroid.Y(), i); err != nil {
			return fmt.Errorf("index zone %s: %w", z.ID, err)
		}
	}
	s.centroids = tree
	return nil
}
