package zones

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testNetwork struct {
	bound orb.Bound
	links map[string]orb.Point
}

func (n testNetwork) LinkCoord(id string) (orb.Point, bool) {
	p, ok := n.links[id]
	return p, ok
}

func (n testNetwork) Bound() orb.Bound { return n.bound }

func newTestNetwork(maxX, maxY float64, links map[string]orb.Point) testNetwork {
	return testNetwork{bound: orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{maxX, maxY}}, links: links}
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{SquareGrid, HexGrid, Polygon, Single} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("Voronoi")
	assert.True(t, errors.Is(err, ErrUnknownKind))
}

func TestSquareGrid(t *testing.T) {
	net := newTestNetwork(1000, 1000, map[string]orb.Point{
		"sw": {100, 100}, "nw": {100, 700}, "se": {700, 100}, "edge": {1000, 1000},
	})
	sys, err := NewSquareGrid(net, 500)
	require.NoError(t, err)
	require.Len(t, sys.Zones(), 4)

	for link, want := range map[string]string{"sw": "1", "nw": "2", "se": "3", "edge": "4"} {
		got, ok := sys.ZoneForLink(link)
		require.True(t, ok, link)
		assert.Equal(t, want, got, link)
	}

	z, ok := sys.Zone("4")
	require.True(t, ok)
	assert.Equal(t, orb.Point{750, 750}, z.Centroid)
}

func TestSquareGrid_PartialCells(t *testing.T) {
	net := newTestNetwork(1200, 300, nil)
	sys, err := NewSquareGrid(net, 500)
	require.NoError(t, err)
	assert.Len(t, sys.Zones(), 3)

	// the last column's centroid lies outside the network extent
	id, ok := sys.ZoneForPoint(orb.Point{1190, 10})
	require.True(t, ok)
	assert.Equal(t, "3", id)
}

func TestHexGrid_CoversExtent(t *testing.T) {
	net := newTestNetwork(5000, 3000, nil)
	sys, err := NewHexGrid(net, 400)
	require.NoError(t, err)

	ids := map[string]bool{}
	for i, z := range sys.Zones() {
		assert.Equal(t, fmt.Sprint(i+1), z.ID)
		ids[z.ID] = true
	}

	r := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 2000; i++ {
		p := orb.Point{r.Float64() * 5000, r.Float64() * 3000}
		id, ok := sys.ZoneForPoint(p)
		require.True(t, ok)
		z, _ := sys.Zone(id)
		assert.True(t, z.Contains(p), "point %v not inside hexagon %s at %v", p, id, z.Centroid)
	}

	for _, corner := range []orb.Point{{0, 0}, {5000, 0}, {0, 3000}, {5000, 3000}} {
		id, ok := sys.ZoneForPoint(corner)
		require.True(t, ok)
		z, _ := sys.Zone(id)
		assert.True(t, z.Contains(corner), "corner %v", corner)
	}
}

func TestHexGrid_DegenerateExtent(t *testing.T) {
	net := newTestNetwork(0, 0, map[string]orb.Point{"a": {0, 0}})
	sys, err := NewHexGrid(net, 100)
	require.NoError(t, err)
	assert.NotEmpty(t, sys.Zones())
	_, ok := sys.ZoneForLink("a")
	assert.True(t, ok)

	_, err = NewHexGrid(net, 0)
	assert.Error(t, err)
}

func TestSingleZone(t *testing.T) {
	net := newTestNetwork(10, 10, map[string]orb.Point{"a": {1, 1}})
	sys, err := New(Config{Kind: Single}, net)
	require.NoError(t, err)

	id, ok := sys.ZoneForLink("a")
	require.True(t, ok)
	assert.Equal(t, GlobalZoneID, id)
	assert.Len(t, sys.Zones(), 1)
	assert.Equal(t, orb.Point{5, 5}, sys.Zones()[0].Centroid)
}

const zonesGeoJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"zoneId":"A"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[10,0],[10,10],[0,10],[0,0]]]}},
 {"type":"Feature","id":"B","properties":{},"geometry":{"type":"Polygon","coordinates":[[[5,5],[20,5],[20,20],[5,20],[5,5]]]}},
 {"type":"Feature","properties":{"zoneId":"P"},"geometry":{"type":"Point","coordinates":[1,1]}},
 {"type":"Feature","properties":{},"geometry":{"type":"MultiPolygon","coordinates":[[[[30,30],[40,30],[40,40],[30,40],[30,30]]]]}}
]}`

func TestPolygonSystem(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zones.geojson")
	require.NoError(t, os.WriteFile(path, []byte(zonesGeoJSON), 0o644))

	net := newTestNetwork(50, 50, map[string]orb.Point{
		"overlap": {7, 7}, "b": {15, 15}, "none": {25, 25}, "multi": {35, 35}, "border": {0, 5},
	})
	sys, err := New(Config{Kind: Polygon, ZonesFile: path}, net)
	require.NoError(t, err)
	require.Len(t, sys.Zones(), 3)
	assert.Equal(t, "4", sys.Zones()[2].ID)

	cases := []struct {
		link string
		want string
		ok   bool
	}{
		{"overlap", "A", true},
		{"b", "B", true},
		{"none", "", false},
		{"multi", "4", true},
		{"border", "A", true},
		{"unknown-link", "", false},
	}
	for _, tc := range cases {
		got, ok := sys.ZoneForLink(tc.link)
		assert.Equal(t, tc.ok, ok, tc.link)
		assert.Equal(t, tc.want, got, tc.link)
	}
	assert.Equal(t, len(cases), sys.CachedLinks())

	// cached results are stable on repeat
	got, ok := sys.ZoneForLink("none")
	assert.False(t, ok)
	assert.Empty(t, got)
	assert.Equal(t, len(cases), sys.CachedLinks())
}

func TestPolygonSystem_Errors(t *testing.T) {
	net := newTestNetwork(1, 1, nil)
	_, err := NewPolygonSystem(net, nil)
	assert.Error(t, err)

	z, err := NewZone("x", orb.Bound{Max: orb.Point{1, 1}})
	require.NoError(t, err)
	_, err = NewPolygonSystem(net, []Zone{z, z})
	assert.Error(t, err)

	_, err = NewZone("line", orb.LineString{{0, 0}, {1, 1}})
	assert.Error(t, err)

	_, err = LoadGeoJSONZones(net, filepath.Join(t.TempDir(), "missing.geojson"), "")
	assert.Error(t, err)
}

func TestZoneForLink_Concurrent(t *testing.T) {
	links := map[string]orb.Point{}
	r := rand.New(rand.NewPCG(8, 9))
	for i := 0; i < 200; i++ {
		links[fmt.Sprintf("l%d", i)] = orb.Point{r.Float64() * 2000, r.Float64() * 2000}
	}
	sys, err := NewHexGrid(newTestNetwork(2000, 2000, links), 250)
	require.NoError(t, err)

	want := map[string]string{}
	for id, p := range links {
		want[id], _ = sys.ZoneForPoint(p)
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range links {
				got, ok := sys.ZoneForLink(id)
				assert.True(t, ok)
				assert.Equal(t, want[id], got)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, len(links), sys.CachedLinks())
}

func TestExports(t *testing.T) {
	net := newTestNetwork(1000, 1000, map[string]orb.Point{"b": {700, 100}, "a": {100, 100}})
	sys, err := NewSquareGrid(net, 500)
	require.NoError(t, err)
	sys.ZoneForLink("b")
	sys.ZoneForLink("a")
	sys.ZoneForLink("missing")

	var links bytes.Buffer
	require.NoError(t, sys.WriteLinkZones(&links))
	assert.Equal(t, "link_id;zone\na;1\nb;3\n", links.String())

	var gj bytes.Buffer
	require.NoError(t, sys.WriteGeoJSON(&gj))
	assert.True(t, strings.Contains(gj.String(), `"centerX":250`))

	back, err := ParseGeoJSONZones(gj.Bytes(), "")
	require.NoError(t, err)
	require.Len(t, back, 4)
	for i, z := range back {
		assert.Equal(t, sys.Zones()[i].ID, z.ID)
		assert.InDelta(t, sys.Zones()[i].Centroid.X(), z.Centroid.X(), 1e-9)
	}
}
