// Package spatial provides a point quadtree over a fixed rectangular extent.
//
// Every coordinate stores the distinct values inserted at it. Queries that
// rank values by distance break ties by insertion order, so results are
// deterministic for a given sequence of Put calls.
package spatial

import (
	"container/heap"
	"errors"
	"fmt"
	"sort"
)

// DefaultLeafSize is the number of distinct coordinates a leaf holds before it splits.
const DefaultLeafSize = 128

// maxDepth bounds subdivision. Leaves at this depth grow without splitting,
// which only happens for pathological clusters of nearly identical points.
const maxDepth = 48

var (
	ErrOutOfBounds    = errors.New("spatial: coordinate outside tree bounds")
	ErrInvalidEllipse = errors.New("spatial: ellipse diameter shorter than focal distance")
	ErrInvalidRing    = errors.New("spatial: invalid ring radii")
)

// Neighbor is a value returned by a distance query together with the
// location it was stored at and its distance from the query point.
type Neighbor[T comparable] struct {
	Value    T
	X, Y     float64
	Distance float64
	seq      uint64
}

type entry[T comparable] struct {
	x, y   float64
	values []T
	seqs   []uint64
}

const (
	nw = iota
	ne
	se
	sw
)

type node[T comparable] struct {
	bounds   Rect
	depth    int
	entries  []*entry[T]
	children *[4]*node[T]
}

// Tree is a point quadtree. The zero value is not usable; construct with New.
// A Tree is not safe for concurrent mutation. Concurrent reads are fine once
// all Put calls have returned.
type Tree[T comparable] struct {
	root     *node[T]
	leafSize int
	size     int
	seq      uint64
}

// New returns an empty tree covering the rectangle spanned by the two corners.
func New[T comparable](minX, minY, maxX, maxY float64) *Tree[T] {
	return NewWithLeafSize[T](NewRect(minX, minY, maxX, maxY), DefaultLeafSize)
}

// NewWithLeafSize returns an empty tree over bounds with a custom split threshold.
func NewWithLeafSize[T comparable](bounds Rect, leafSize int) *Tree[T] {
	if leafSize < 1 {
		leafSize = 1
	}
	return &Tree[T]{
		root:     &node[T]{bounds: bounds},
		leafSize: leafSize,
	}
}

// Bounds returns the extent the tree was created with.
func (t *Tree[T]) Bounds() Rect { return t.root.bounds }

// Len returns the number of stored values.
func (t *Tree[T]) Len() int { return t.size }

// Put stores v at (x, y). It returns false when v is already stored at
// exactly that coordinate, and ErrOutOfBounds when the coordinate lies
// outside the tree extent.
func (t *Tree[T]) Put(x, y float64, v T) (bool, error) {
	if !t.root.bounds.ContainsOrEquals(x, y) {
		return false, fmt.Errorf("%w: (%g,%g) not in %s", ErrOutOfBounds, x, y, t.root.bounds)
	}
	t.seq++
	if !t.root.put(x, y, v, t.seq, t.leafSize) {
		return false, nil
	}
	t.size++
	return true, nil
}

// Remove deletes v from (x, y). It reports whether the value was present.
func (t *Tree[T]) Remove(x, y float64, v T) bool {
	if !t.root.bounds.ContainsOrEquals(x, y) {
		return false
	}
	if t.root.remove(x, y, v) {
		t.size--
		return true
	}
	return false
}

// Clear drops every value while keeping the bounds.
func (t *Tree[T]) Clear() {
	t.root = &node[T]{bounds: t.root.bounds}
	t.size = 0
}

func (n *node[T]) child(x, y float64) *node[T] {
	cx, cy := n.bounds.CenterX(), n.bounds.CenterY()
	if x < cx {
		if y < cy {
			return n.children[sw]
		}
		return n.children[nw]
	}
	if y < cy {
		return n.children[se]
	}
	return n.children[ne]
}

func (n *node[T]) split() {
	b := n.bounds
	cx, cy := b.CenterX(), b.CenterY()
	d := n.depth + 1
	n.children = &[4]*node[T]{
		nw: {bounds: Rect{MinX: b.MinX, MinY: cy, MaxX: cx, MaxY: b.MaxY}, depth: d},
		ne: {bounds: Rect{MinX: cx, MinY: cy, MaxX: b.MaxX, MaxY: b.MaxY}, depth: d},
		se: {bounds: Rect{MinX: cx, MinY: b.MinY, MaxX: b.MaxX, MaxY: cy}, depth: d},
		sw: {bounds: Rect{MinX: b.MinX, MinY: b.MinY, MaxX: cx, MaxY: cy}, depth: d},
	}
	for _, e := range n.entries {
		c := n.child(e.x, e.y)
		c.entries = append(c.entries, e)
	}
	n.entries = nil
}

func (n *node[T]) put(x, y float64, v T, seq uint64, leafSize int) bool {
	for n.children != nil {
		n = n.child(x, y)
	}
	for _, e := range n.entries {
		if e.x != x || e.y != y {
			continue
		}
		for _, existing := range e.values {
			if existing == v {
				return false
			}
		}
		e.values = append(e.values, v)
		e.seqs = append(e.seqs, seq)
		return true
	}
	if len(n.entries) >= leafSize && n.depth < maxDepth {
		n.split()
		return n.put(x, y, v, seq, leafSize)
	}
	n.entries = append(n.entries, &entry[T]{x: x, y: y, values: []T{v}, seqs: []uint64{seq}})
	return true
}

func (n *node[T]) remove(x, y float64, v T) bool {
	for n.children != nil {
		n = n.child(x, y)
	}
	for i, e := range n.entries {
		if e.x != x || e.y != y {
			continue
		}
		for j, existing := range e.values {
			if existing != v {
				continue
			}
			e.values = append(e.values[:j], e.values[j+1:]...)
			e.seqs = append(e.seqs[:j], e.seqs[j+1:]...)
			if len(e.values) == 0 {
				n.entries = append(n.entries[:i], n.entries[i+1:]...)
			}
			return true
		}
		return false
	}
	return false
}

// Walk calls fn for every stored value until fn returns false.
func (t *Tree[T]) Walk(fn func(x, y float64, v T) bool) {
	t.root.walk(fn)
}

func (n *node[T]) walk(fn func(x, y float64, v T) bool) bool {
	if n.children != nil {
		for _, c := range n.children {
			if !c.walk(fn) {
				return false
			}
		}
		return true
	}
	for _, e := range n.entries {
		for _, v := range e.values {
			if !fn(e.x, e.y, v) {
				return false
			}
		}
	}
	return true
}

// Values returns every stored value.
func (t *Tree[T]) Values() []T {
	out := make([]T, 0, t.size)
	t.Walk(func(_, _ float64, v T) bool {
		out = append(out, v)
		return true
	})
	return out
}

// Nearest returns the value closest to (x, y). Ties go to the value inserted
// first. The second result is false when the tree is empty.
func (t *Tree[T]) Nearest(x, y float64) (T, bool) {
	var best Neighbor[T]
	found := false
	t.root.nearest(x, y, &best, &found)
	return best.Value, found
}

func (n *node[T]) nearest(x, y float64, best *Neighbor[T], found *bool) {
	if n.children != nil {
		first := n.child(x, y)
		first.nearest(x, y, best, found)
		for _, c := range n.children {
			if c == first {
				continue
			}
			if !*found || c.bounds.MinDistance(x, y) <= best.Distance {
				c.nearest(x, y, best, found)
			}
		}
		return
	}
	for _, e := range n.entries {
		d := distance(x, y, e.x, e.y)
		for i, v := range e.values {
			cand := Neighbor[T]{Value: v, X: e.x, Y: e.y, Distance: d, seq: e.seqs[i]}
			if !*found || closer(cand, *best) {
				*best = cand
				*found = true
			}
		}
	}
}

func closer[T comparable](a, b Neighbor[T]) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.seq < b.seq
}

// worstFirst is a max-heap on (distance, insertion order).
type worstFirst[T comparable] []Neighbor[T]

func (h worstFirst[T]) Len() int           { return len(h) }
func (h worstFirst[T]) Less(i, j int) bool { return closer(h[j], h[i]) }
func (h worstFirst[T]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *worstFirst[T]) Push(x any)        { *h = append(*h, x.(Neighbor[T])) }
func (h *worstFirst[T]) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// KNearest returns up to k values closest to (x, y), nearest first.
func (t *Tree[T]) KNearest(x, y float64, k int) []T {
	return valuesOf(t.KNearestNeighbors(x, y, k))
}

// KNearestNeighbors is KNearest with locations and distances attached.
func (t *Tree[T]) KNearestNeighbors(x, y float64, k int) []Neighbor[T] {
	if k <= 0 || t.size == 0 {
		return nil
	}
	h := make(worstFirst[T], 0, min(k, t.size))
	t.root.kNearest(x, y, k, &h)
	out := []Neighbor[T](h)
	sortNeighbors(out)
	return out
}

func (n *node[T]) kNearest(x, y float64, k int, h *worstFirst[T]) {
	if h.Len() == k && n.bounds.MinDistance(x, y) > (*h)[0].Distance {
		return
	}
	if n.children != nil {
		order := [4]*node[T]{}
		copy(order[:], n.children[:])
		sort.SliceStable(order[:], func(i, j int) bool {
			return order[i].bounds.MinDistance(x, y) < order[j].bounds.MinDistance(x, y)
		})
		for _, c := range order {
			c.kNearest(x, y, k, h)
		}
		return
	}
	for _, e := range n.entries {
		d := distance(x, y, e.x, e.y)
		for i, v := range e.values {
			cand := Neighbor[T]{Value: v, X: e.x, Y: e.y, Distance: d, seq: e.seqs[i]}
			if h.Len() < k {
				heap.Push(h, cand)
				continue
			}
			if closer(cand, (*h)[0]) {
				(*h)[0] = cand
				heap.Fix(h, 0)
			}
		}
	}
}

// Disk returns every value within distance r of (x, y), nearest first.
func (t *Tree[T]) Disk(x, y, r float64) []T {
	return valuesOf(t.DiskNeighbors(x, y, r))
}

// DiskNeighbors is Disk with locations and distances attached.
func (t *Tree[T]) DiskNeighbors(x, y, r float64) []Neighbor[T] {
	var out []Neighbor[T]
	t.root.collect(
		func(b Rect) bool { return b.MinDistance(x, y) <= r },
		func(ex, ey float64) (float64, bool) {
			d := distance(x, y, ex, ey)
			return d, d <= r
		},
		&out,
	)
	sortNeighbors(out)
	return out
}

// Ring returns every value whose distance to (x, y) is within [rMin, rMax].
func (t *Tree[T]) Ring(x, y, rMin, rMax float64) ([]T, error) {
	if rMin < 0 || rMax < rMin {
		return nil, fmt.Errorf("%w: [%g, %g]", ErrInvalidRing, rMin, rMax)
	}
	var out []Neighbor[T]
	t.root.collect(
		func(b Rect) bool { return b.MinDistance(x, y) <= rMax && b.MaxDistance(x, y) >= rMin },
		func(ex, ey float64) (float64, bool) {
			d := distance(x, y, ex, ey)
			return d, d >= rMin && d <= rMax
		},
		&out,
	)
	sortNeighbors(out)
	return valuesOf(out), nil
}

// Ellipse returns every value whose summed distance to the two foci is at
// most diameter.
func (t *Tree[T]) Ellipse(x1, y1, x2, y2, diameter float64) ([]T, error) {
	if diameter < distance(x1, y1, x2, y2) {
		return nil, fmt.Errorf("%w: diameter %g, foci (%g,%g) (%g,%g)", ErrInvalidEllipse, diameter, x1, y1, x2, y2)
	}
	var out []Neighbor[T]
	t.root.collect(
		func(b Rect) bool {
			d1 := b.MinDistance(x1, y1)
			return d1 <= diameter && d1+b.MinDistance(x2, y2) <= diameter
		},
		func(ex, ey float64) (float64, bool) {
			d := distance(x1, y1, ex, ey) + distance(x2, y2, ex, ey)
			return d, d <= diameter
		},
		&out,
	)
	sortNeighbors(out)
	return valuesOf(out), nil
}

// Rectangle returns every value located inside r, borders included.
func (t *Tree[T]) Rectangle(r Rect) []T {
	var out []Neighbor[T]
	t.root.collect(
		func(b Rect) bool { return b.Intersects(r) },
		func(ex, ey float64) (float64, bool) { return 0, r.ContainsOrEquals(ex, ey) },
		&out,
	)
	sortNeighbors(out)
	return valuesOf(out)
}

func (n *node[T]) collect(visit func(Rect) bool, keep func(x, y float64) (float64, bool), out *[]Neighbor[T]) {
	if !visit(n.bounds) {
		return
	}
	if n.children != nil {
		for _, c := range n.children {
			c.collect(visit, keep, out)
		}
		return
	}
	for _, e := range n.entries {
		d, ok := keep(e.x, e.y)
		if !ok {
			continue
		}
		for i, v := range e.values {
			*out = append(*out, Neighbor[T]{Value: v, X: e.x, Y: e.y, Distance: d, seq: e.seqs[i]})
		}
	}
}

func sortNeighbors[T comparable](ns []Neighbor[T]) {
	sort.Slice(ns, func(i, j int) bool { return closer(ns[i], ns[j]) })
}

func valuesOf[T comparable](ns []Neighbor[T]) []T {
	if ns == nil {
		return nil
	}
	out := make([]T, len(ns))
	for i, n := range ns {
		out[i] = n.Value
	}
	return out
}
