package sim

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drt-feedback/internal/feedback"
	"drt-feedback/internal/smoothing"
	"drt-feedback/internal/stats"
	"drt-feedback/internal/trips"
	"drt-feedback/internal/zones"
)

type memorySource map[int][]trips.Event

func (s memorySource) Iterations(context.Context) ([]int, error) {
	its := make([]int, 0, len(s))
	for i := 0; i < len(s); i++ {
		its = append(its, i)
	}
	return its, nil
}

func (s memorySource) Events(_ context.Context, it int) ([]trips.Event, error) {
	return s[it], nil
}

func rideEvents(wait float64) []trips.Event {
	return []trips.Event{
		trips.RequestSubmitted{Time: 5400, RequestID: "r1", PersonID: "p1", FromLinkID: "a", ToLinkID: "b", UnsharedRideTime: 100},
		trips.RequestSubmitted{Time: 5450, RequestID: "r2", PersonID: "p2", FromLinkID: "a", ToLinkID: "b", UnsharedRideTime: 100},
		trips.RequestRejected{Time: 5460, RequestID: "r2", PersonID: "p2"},
		trips.PassengerPickedUp{Time: 5400 + wait, RequestID: "r1", PersonID: "p1", Mode: trips.DefaultMode},
		trips.PassengerDroppedOff{Time: 5400 + wait + 150, RequestID: "r1", PersonID: "p1", Mode: trips.DefaultMode},
	}
}

func newTestManager(t *testing.T, src Source, outputDir string) *Manager {
	t.Helper()
	network := trips.NewNetwork([]trips.Link{
		{ID: "a", Coord: orb.Point{100, 100}},
		{ID: "b", Coord: orb.Point{900, 100}},
	})
	engine, err := feedback.NewEngine(feedback.Options{
		Config: feedback.Config{
			Method:         feedback.MethodSpatioTemporal,
			Stat:           stats.StatMean,
			UseWaitTime:    true,
			UseDelayFactor: true,
		},
		TimeBin:      30 * time.Minute,
		Horizon:      24 * time.Hour,
		DistanceBin:  1500,
		LastBinStart: 10000,
		Zones:        zones.Config{Kind: zones.SquareGrid, CellSize: 1000},
		Smoothing:    smoothing.KindIterationBased,
		OutputDir:    outputDir,
	}, network, nil)
	require.NoError(t, err)
	caps := RouteCaps{MaxWaitTime: 600, Alpha: 1.5, Beta: 240}
	return NewManager(src, engine, trips.NewTracker(network), caps, 3, nil)
}

func TestRouteCaps(t *testing.T) {
	r := RouteCaps{MaxWaitTime: 600, Alpha: 1.5, Beta: 240}.Route(trips.Observation{
		StartLinkID: "a", EndLinkID: "b", EstimatedUnsharedTime: 200,
	})
	assert.Equal(t, trips.Route{StartLinkID: "a", EndLinkID: "b", MaxWaitTime: 600, MaxTravelTime: 540, DirectRideTime: 200}, r)
}

func TestManager_Run(t *testing.T) {
	dir := t.TempDir()
	src := memorySource{0: rideEvents(120), 1: rideEvents(240)}
	m := newTestManager(t, src, dir)

	require.NoError(t, m.Run(context.Background(), 0))

	preds := m.LastPredictions()
	require.Len(t, preds, 1, "rejected requests are not predicted")
	assert.Equal(t, 240.0, preds[0].Trip.WaitTime)
	assert.Equal(t, 120.0, preds[0].WaitTime, "estimate comes from the previous iteration")
	assert.Equal(t, 150.0, preds[0].TravelTime)
	assert.Equal(t, 1, preds[0].Wait.Count)

	f, err := os.Open(filepath.Join(dir, "it.0", SimulatedTripsFile))
	require.NoError(t, err)
	defer f.Close()
	r := csv.NewReader(f)
	r.Comma = ';'
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0], 32)
	assert.Equal(t, "p1", rows[1][0])
	assert.Equal(t, "600", rows[1][6], "first iteration falls back to the wait cap")
	assert.Equal(t, "390", rows[1][7])
	assert.Equal(t, "0", rows[1][31])

	assert.FileExists(t, filepath.Join(dir, "it.1", SimulatedTripsFile))
	assert.FileExists(t, filepath.Join(dir, feedback.LinkZonesFile))
}

func TestManager_RunLimit(t *testing.T) {
	src := memorySource{0: rideEvents(120), 1: rideEvents(240), 2: rideEvents(360)}
	m := newTestManager(t, src, "")

	require.NoError(t, m.Run(context.Background(), 1))
	assert.Equal(t, 600.0, m.LastPredictions()[0].WaitTime)
}

func TestManager_RunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := newTestManager(t, memorySource{0: rideEvents(120)}, "")
	assert.True(t, errors.Is(m.Run(ctx, 0), context.Canceled))
}
