package trips

import (
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNetwork() *Network {
	return NewNetwork([]Link{
		{ID: "a", Coord: orb.Point{0, 0}},
		{ID: "b", Coord: orb.Point{3000, 4000}},
		{ID: "c", Coord: orb.Point{-100, 200}},
	})
}

func TestNetwork(t *testing.T) {
	n := testNetwork()
	assert.Equal(t, 3, n.Len())
	assert.Equal(t, orb.Bound{Min: orb.Point{-100, 0}, Max: orb.Point{3000, 4000}}, n.Bound())

	p, ok := n.LinkCoord("b")
	require.True(t, ok)
	assert.Equal(t, orb.Point{3000, 4000}, p)
	_, ok = n.LinkCoord("zz")
	assert.False(t, ok)
}

func TestObservation_DelayFactor(t *testing.T) {
	cases := []struct {
		name string
		obs  Observation
		want float64
		ok   bool
	}{
		{"router preferred", Observation{TotalTravelTime: 900, RouterUnsharedTime: 600, EstimatedUnsharedTime: 300}, 1.5, true},
		{"estimate fallback", Observation{TotalTravelTime: 900, EstimatedUnsharedTime: 300}, 3, true},
		{"negative router value", Observation{TotalTravelTime: 900, RouterUnsharedTime: -1, EstimatedUnsharedTime: 450}, 2, true},
		{"no denominator", Observation{TotalTravelTime: 900}, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tc.obs.DelayFactor()
			assert.Equal(t, tc.ok, ok)
			assert.InDelta(t, tc.want, got, 1e-12)
		})
	}
}

func TestObservation_EuclideanDistance(t *testing.T) {
	o := Observation{StartCoord: orb.Point{0, 0}, EndCoord: orb.Point{3000, 4000}}
	assert.InDelta(t, 5000, o.EuclideanDistance(), 1e-9)
}

func TestBeelineRouter(t *testing.T) {
	r := BeelineRouter{Links: testNetwork(), Speed: 10, DetourFactor: 1.2}
	tt, ok := r.UnsharedTime("a", "b", 0)
	require.True(t, ok)
	assert.InDelta(t, 600, tt, 1e-9)

	_, ok = r.UnsharedTime("a", "missing", 0)
	assert.False(t, ok)
	_, ok = BeelineRouter{Links: testNetwork()}.UnsharedTime("a", "b", 0)
	assert.False(t, ok)
}

func TestTracker_Lifecycle(t *testing.T) {
	tr := NewTracker(testNetwork(), WithRouter(BeelineRouter{Links: testNetwork(), Speed: 10}))

	events := []Event{
		RequestSubmitted{Time: 100, RequestID: "r1", PersonID: "p1", FromLinkID: "a", ToLinkID: "b", UnsharedRideTime: 450, UnsharedRideDistance: 5200},
		RequestSubmitted{Time: 150, RequestID: "r2", PersonID: "p2", FromLinkID: "c", ToLinkID: "a"},
		PassengerPickedUp{Time: 400, RequestID: "r1", PersonID: "p1", Mode: "drt"},
		PassengerPickedUp{Time: 410, RequestID: "r2", PersonID: "p2", Mode: "car"},
		RequestRejected{Time: 420, RequestID: "r2", PersonID: "p2"},
		PassengerDroppedOff{Time: 1300, RequestID: "r1", PersonID: "p1", Mode: "drt"},
		PassengerDroppedOff{Time: 1400, RequestID: "r1", PersonID: "p1", Mode: "drt"},
		PassengerPickedUp{Time: 10, RequestID: "ghost", Mode: "drt"},
	}
	for _, e := range events {
		tr.Handle(e)
	}

	obs := tr.Observations()
	require.Len(t, obs, 1)
	o := obs[0]
	assert.Equal(t, "r1", o.RequestID)
	assert.Equal(t, 300.0, o.WaitTime)
	assert.Equal(t, 900.0, o.TotalTravelTime)
	assert.Equal(t, 1300.0, o.ArrivalTime)
	assert.Equal(t, orb.Point{3000, 4000}, o.EndCoord)
	assert.InDelta(t, 500, o.RouterUnsharedTime, 1e-9)
	assert.Equal(t, 450.0, o.EstimatedUnsharedTime)
	assert.False(t, o.Rejected)

	rej := tr.Rejected()
	require.Len(t, rej, 1)
	assert.True(t, rej[0].Rejected)
	assert.Equal(t, 24*3600.0, rej[0].PickupTime)
	assert.Equal(t, 24*3600.0-150, rej[0].WaitTime)
	assert.Equal(t, orb.Point{-100, 200}, rej[0].StartCoord)

	// returned slices are detached copies
	obs[0].WaitTime = -1
	assert.Equal(t, 300.0, tr.Observations()[0].WaitTime)

	tr.Reset()
	assert.Empty(t, tr.Observations())
	assert.Empty(t, tr.Rejected())
}

func TestTracker_ModeAndConcurrency(t *testing.T) {
	tr := NewTracker(testNetwork(), WithMode("taxi"), WithHorizonEnd(30*3600))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		id := string(rune('A'+i%26)) + string(rune('a'+i/26))
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Handle(RequestSubmitted{Time: 0, RequestID: id, FromLinkID: "a", ToLinkID: "b", UnsharedRideTime: 100})
			tr.Handle(PassengerPickedUp{Time: 60, RequestID: id, Mode: "taxi"})
			tr.Handle(PassengerDroppedOff{Time: 260, RequestID: id, Mode: "taxi"})
		}()
	}
	wg.Wait()

	obs := tr.Observations()
	require.Len(t, obs, 50)
	for _, o := range obs {
		f, ok := o.DelayFactor()
		require.True(t, ok)
		assert.InDelta(t, 2.0, f, 1e-12)
		assert.Zero(t, o.RouterUnsharedTime)
	}
}

func TestTracker_UnknownLinks(t *testing.T) {
	tr := NewTracker(testNetwork())
	tr.Handle(RequestSubmitted{Time: 0, RequestID: "r1", FromLinkID: "b", ToLinkID: "gone", UnsharedRideTime: 100})
	tr.Handle(PassengerPickedUp{Time: 30, RequestID: "r1", Mode: DefaultMode})
	tr.Handle(PassengerDroppedOff{Time: 230, RequestID: "r1", Mode: DefaultMode})
	tr.Handle(RequestSubmitted{Time: 5, RequestID: "r2", FromLinkID: "gone", ToLinkID: "a"})
	tr.Handle(RequestRejected{Time: 10, RequestID: "r2"})

	obs := tr.Observations()
	require.Len(t, obs, 1)
	assert.False(t, obs[0].StartUnlocated)
	assert.True(t, obs[0].EndUnlocated)
	assert.False(t, obs[0].Located())

	rej := tr.Rejected()
	require.Len(t, rej, 1)
	assert.True(t, rej[0].StartUnlocated)
	assert.False(t, rej[0].EndUnlocated)

	assert.True(t, Observation{}.Located())
}
