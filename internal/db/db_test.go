package db

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drt-feedback/internal/history"
	"drt-feedback/internal/stats"
	"drt-feedback/internal/trips"
)

func TestWithDBName(t *testing.T) {
	got, err := WithDBName("postgres://sim:pw@db:5432/postgres?sslmode=disable", "drt_lyon_42")
	require.NoError(t, err)
	assert.Equal(t, "postgres://sim:pw@db:5432/drt_lyon_42?sslmode=disable", got)

	got, err = WithDBName("sim@db:5432/postgres", "/runs")
	require.NoError(t, err)
	assert.Equal(t, "postgres://sim@db:5432/runs", got)

	_, err = WithDBName("", "x")
	assert.Error(t, err)
}

func TestResolveLatestRunDBName_EmptyScenario(t *testing.T) {
	for _, name := range []string{"", "   "} {
		_, err := ResolveLatestRunDBName(context.Background(), nil, name)
		assert.Error(t, err, "scenario %q", name)
		assert.False(t, errors.Is(err, ErrNoFinishedRun))
	}
}

func TestEventRow_Event(t *testing.T) {
	e, err := EventRow{Kind: "submitted", Time: 10, RequestID: "r", FromLinkID: "a", ToLinkID: "b", UnsharedTime: 300}.Event()
	require.NoError(t, err)
	assert.Equal(t, trips.RequestSubmitted{Time: 10, RequestID: "r", FromLinkID: "a", ToLinkID: "b", UnsharedRideTime: 300}, e)

	e, err = EventRow{Kind: "pickup", Time: 50, RequestID: "r", Mode: "drt"}.Event()
	require.NoError(t, err)
	assert.Equal(t, trips.PassengerPickedUp{Time: 50, RequestID: "r", Mode: "drt"}, e)

	e, err = EventRow{Kind: "dropoff", Time: 90, RequestID: "r", Mode: "drt"}.Event()
	require.NoError(t, err)
	assert.Equal(t, 90.0, e.At())

	e, err = EventRow{Kind: "rejected", Time: 11, RequestID: "q"}.Event()
	require.NoError(t, err)
	assert.IsType(t, trips.RequestRejected{}, e)

	_, err = EventRow{Kind: "teleported"}.Event()
	assert.True(t, errors.Is(err, ErrUnknownEventKind))
}

func TestSnapshotRows(t *testing.T) {
	s := &history.Snapshot{
		Iteration: 2,
		Zonal: map[history.ZoneBin]stats.Summary{
			{Zone: "b", TimeBin: 1}: stats.Summarize([]float64{1}),
			{Zone: "a", TimeBin: 4}: stats.Summarize([]float64{2}),
		},
		Distance: map[history.DistanceBin]stats.Summary{
			{DistanceBin: 3, TimeBin: 0}: stats.Summarize([]float64{1.2}),
		},
		GlobalWait:  stats.Summarize([]float64{1, 2}),
		GlobalDelay: stats.Empty(),
	}

	rows := SnapshotRows(s)
	require.Len(t, rows, 5)
	assert.Equal(t, "global_wait", rows[0].Table)
	assert.Equal(t, "global_delay", rows[1].Table)
	assert.Equal(t, "a", rows[2].Zone)
	assert.Equal(t, "b", rows[3].Zone)
	assert.Equal(t, StatRow{Table: "distance", DistanceBin: 3, TimeBin: 0, Summary: s.Distance[history.DistanceBin{DistanceBin: 3}]}, rows[4])

	assert.False(t, nullable(rows[1].Summary.Mean).Valid)
	assert.True(t, nullable(rows[0].Summary.Mean).Valid)
}
