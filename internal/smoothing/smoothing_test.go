package smoothing

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drt-feedback/internal/history"
	"drt-feedback/internal/stats"
)

var nan = math.NaN()

func TestLastIteration(t *testing.T) {
	r := LastIteration{}
	assert.True(t, math.IsNaN(r.Reduce(nil)))
	assert.True(t, math.IsNaN(r.Reduce([]float64{1, 2, nan})), "an empty latest bin is not filled from older ones")
	assert.Equal(t, 2.0, r.Reduce([]float64{nan, 1, 2}))
	assert.Equal(t, 7.0, r.ReduceFresh([]float64{1, 2}, 7))
}

func TestMovingWindow(t *testing.T) {
	r := MovingWindow{Window: 3}

	t.Run("mean of last window ignoring NaN", func(t *testing.T) {
		assert.Equal(t, 5.0, r.Reduce([]float64{100, 4, nan, 6}))
		assert.Equal(t, 2.0, r.Reduce([]float64{1, 3}))
	})

	t.Run("all NaN", func(t *testing.T) {
		assert.True(t, math.IsNaN(r.Reduce([]float64{1, nan, nan, nan})))
		assert.True(t, math.IsNaN(r.Reduce(nil)))
	})

	t.Run("fresh replaces latest", func(t *testing.T) {
		// window over {4, 6, latest}; latest replaced by 20
		assert.Equal(t, 10.0, r.ReduceFresh([]float64{100, 4, 6, 999}, 20))
		assert.Equal(t, 5.0, r.ReduceFresh([]float64{100, 4, 6, 999}, nan))
		assert.Equal(t, 8.0, r.ReduceFresh(nil, 8))
	})
}

func TestSuccessiveAverage(t *testing.T) {
	r := SuccessiveAverage{Weight: 0.5}

	assert.True(t, math.IsNaN(r.Reduce(nil)))
	assert.Equal(t, 10.0, r.Reduce([]float64{10}))
	assert.Equal(t, 15.0, r.Reduce([]float64{10, 20}))
	assert.Equal(t, 15.0, r.Reduce([]float64{nan, 10, nan, 20, nan}))
	// ((10+20)/2 + 40)/2
	assert.Equal(t, 27.5, r.Reduce([]float64{10, 20, 40}))

	assert.Equal(t, 27.5, r.ReduceFresh([]float64{10, 20, 999}, 40))
	assert.Equal(t, 15.0, r.ReduceFresh([]float64{10, 20, 999}, nan))
	assert.Equal(t, 3.0, r.ReduceFresh(nil, 3))
}

func summary(values ...float64) stats.Summary { return stats.Summarize(values) }

func testView() history.View {
	return history.View{
		{
			Iteration:  0,
			Zonal:      map[history.ZoneBin]stats.Summary{{Zone: "z", TimeBin: 3}: summary(100)},
			Distance:   map[history.DistanceBin]stats.Summary{{DistanceBin: 1, TimeBin: 3}: summary(1.5)},
			GlobalWait: summary(100), GlobalDelay: summary(1.5),
		},
		{
			Iteration:  1,
			Zonal:      map[history.ZoneBin]stats.Summary{},
			Distance:   map[history.DistanceBin]stats.Summary{},
			GlobalWait: stats.Empty(), GlobalDelay: stats.Empty(),
		},
		{
			Iteration:  2,
			Zonal:      map[history.ZoneBin]stats.Summary{{Zone: "z", TimeBin: 3}: summary(120, 240, 360)},
			Distance:   map[history.DistanceBin]stats.Summary{{DistanceBin: 1, TimeBin: 3}: summary(2.5)},
			GlobalWait: summary(300), GlobalDelay: summary(2.5),
		},
	}
}

func TestSmoother_Tables(t *testing.T) {
	v := testView()

	last := Of(LastIteration{})
	assert.Equal(t, 240.0, last.ZonalValue(v, "z", 3, stats.StatMedian))
	assert.Equal(t, 360.0, last.ZonalValue(v, "z", 3, stats.StatMax))
	assert.Equal(t, 2.5, last.DistanceValue(v, 1, 3, stats.StatMean))
	assert.Equal(t, 300.0, last.GlobalValue(v, history.WaitTime, stats.StatMean))
	assert.True(t, math.IsNaN(last.ZonalValue(v, "other", 3, stats.StatMean)))

	window := Of(MovingWindow{Window: 3})
	assert.Equal(t, 170.0, window.ZonalValue(v, "z", 3, stats.StatMean))
	assert.Equal(t, 2.0, window.GlobalValue(v, history.DelayFactor, stats.StatMean))

	msa := Of(SuccessiveAverage{Weight: 0.25})
	assert.Equal(t, 0.75*100+0.25*240, msa.ZonalValue(v, "z", 3, stats.StatMean))
	assert.Equal(t, 0.75*1.5+0.25*2.5, msa.DistanceValue(v, 1, 3, stats.StatMean))
}

func TestSmoother_DynamicValue(t *testing.T) {
	v := testView()
	fresh := summary(50)

	assert.Equal(t, 50.0, Of(LastIteration{}).DynamicValue(v, fresh, "z", 3, stats.StatMean))
	assert.Equal(t, 75.0, Of(MovingWindow{Window: 3}).DynamicValue(v, fresh, "z", 3, stats.StatMean))
	assert.Equal(t, 75.0, Of(SuccessiveAverage{Weight: 0.5}).DynamicValue(v, fresh, "z", 3, stats.StatMean))

	assert.Equal(t, 100.0, Of(SuccessiveAverage{Weight: 0.5}).DynamicValue(v, stats.Empty(), "z", 3, stats.StatMean))
}

func TestNew(t *testing.T) {
	s, err := New(KindIterationBased, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, KindIterationBased, s.Name())

	s, err = New(KindMovingAverage, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, KindMovingAverage, s.Name())

	s, err = New(KindSuccessiveAverage, 0, 0.1)
	require.NoError(t, err)
	assert.Equal(t, KindSuccessiveAverage, s.Name())

	_, err = New(KindMovingAverage, 0, 0)
	assert.Error(t, err)
	_, err = New(KindSuccessiveAverage, 0, 1.5)
	assert.Error(t, err)
	_, err = New("Kalman", 0, 0)
	assert.True(t, errors.Is(err, ErrUnknownKind))
}
