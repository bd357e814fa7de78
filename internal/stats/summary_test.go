package stats

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var equateSummaries = cmp.Options{cmpopts.EquateNaNs(), cmpopts.EquateApprox(0, 1e-9)}

func TestSummarize_ThreeWaits(t *testing.T) {
	s := Summarize([]float64{360, 120, 240})

	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 240.0, s.Mean)
	assert.Equal(t, 240.0, s.Median)
	assert.Equal(t, 360.0, s.Max)
	assert.Equal(t, 120.0, s.Min)
	assert.Equal(t, 120.0, s.P5)
	assert.Equal(t, 360.0, s.P95)
	assert.InDelta(t, 120.0, s.Std, 1e-9)
	assert.Equal(t, s.Mean, s.WeightedMean)
}

func TestSummarize_Percentiles(t *testing.T) {
	s := Summarize([]float64{10, 9, 8, 7, 6, 5, 4, 3, 2, 1})

	assert.InDelta(t, 5.5, s.Median, 1e-12)
	assert.InDelta(t, 2.75, s.P25, 1e-12)
	assert.InDelta(t, 8.25, s.P75, 1e-12)
	assert.InDelta(t, 1.0, s.P5, 1e-12)
	assert.InDelta(t, 10.0, s.P95, 1e-12)
}

func TestSummarize_SingleAndEmpty(t *testing.T) {
	one := Summarize([]float64{42})
	assert.Equal(t, 42.0, one.Median)
	assert.Zero(t, one.Std)
	assert.Zero(t, one.WeightedStd)

	empty := Summarize(nil)
	assert.True(t, empty.IsEmpty())
	if diff := cmp.Diff(Empty(), empty, equateSummaries); diff != "" {
		t.Errorf("empty summary mismatch (-want +got):\n%s", diff)
	}
	for st := StatMean; st <= StatWeightedMean; st++ {
		assert.True(t, math.IsNaN(empty.Value(st)), st.String())
	}
}

func TestSummarizeWeighted(t *testing.T) {
	values := []float64{10, 20}
	distances := []float64{1000, 2000}

	inv, err := SummarizeWeighted(values, distances, InverseDecay)
	require.NoError(t, err)
	assert.InDelta(t, 20.0/1.5, inv.WeightedMean, 1e-9)
	assert.InDelta(t, 15.0, inv.Mean, 1e-12)

	wantA := (100*1+400*0.5)/1.5 - (20.0/1.5)*(20.0/1.5)
	wantB := 2.25 / (2.25 - 1.25)
	assert.InDelta(t, math.Sqrt(wantA*wantB), inv.WeightedStd, 1e-9)

	pow, err := SummarizeWeighted(values, distances, PowerDecay)
	require.NoError(t, err)
	assert.InDelta(t, 12.0, pow.WeightedMean, 1e-9)

	exp, err := SummarizeWeighted(values, distances, ExponentialDecay)
	require.NoError(t, err)
	w1, w2 := math.Exp(-1), math.Exp(-2)
	assert.InDelta(t, (10*w1+20*w2)/(w1+w2), exp.WeightedMean, 1e-9)
}

func TestSummarizeWeighted_ZeroDistanceStaysFinite(t *testing.T) {
	s, err := SummarizeWeighted([]float64{100, 200}, []float64{0, 1000}, InverseDecay)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(s.WeightedMean))
	assert.InDelta(t, (100*1000+200*1)/1001.0, s.WeightedMean, 1e-9)
}

func TestSummarizeWeighted_ConstantSampleHasZeroStd(t *testing.T) {
	for n := 2; n < 60; n++ {
		values := make([]float64, n)
		distances := make([]float64, n)
		for i := range values {
			values[i] = 0.3
			distances[i] = 50 + 137*float64(i)
		}
		s, err := SummarizeWeighted(values, distances, PowerDecay)
		require.NoError(t, err)
		require.False(t, math.IsNaN(s.WeightedStd), "n=%d", n)
		assert.InDelta(t, 0, s.WeightedStd, 1e-6, "n=%d", n)
		assert.InDelta(t, 0.3, s.WeightedMean, 1e-12, "n=%d", n)
	}
}

func TestSummarizeWeighted_Errors(t *testing.T) {
	_, err := SummarizeWeighted([]float64{1}, nil, PowerDecay)
	assert.True(t, errors.Is(err, ErrSampleLengths))

	s, err := SummarizeWeighted(nil, nil, PowerDecay)
	require.NoError(t, err)
	assert.True(t, s.IsEmpty())
}

func TestCombine(t *testing.T) {
	x := Summarize([]float64{100, 200})
	y := Summarize([]float64{300})

	t.Run("empty previous", func(t *testing.T) {
		got := Combine(Empty(), x, 0.3)
		if diff := cmp.Diff(x, got, equateSummaries); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	})

	t.Run("empty current", func(t *testing.T) {
		got := Combine(x, Empty(), 0.3)
		if diff := cmp.Diff(x, got, equateSummaries); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	})

	t.Run("blend", func(t *testing.T) {
		got := Combine(x, y, 0.25)
		assert.InDelta(t, 0.75*150+0.25*300, got.Mean, 1e-9)
		assert.InDelta(t, 0.75*200+0.25*300, got.Max, 1e-9)
		assert.InDelta(t, 0.75*x.Std+0.25*0, got.Std, 1e-9)
		assert.Equal(t, 3, got.Count)
	})

	t.Run("both empty", func(t *testing.T) {
		assert.True(t, math.IsNaN(Combine(Empty(), Empty(), 0.5).Mean))
	})
}

func TestParseStat(t *testing.T) {
	for _, name := range []string{"avg", "median", "min", "p_5", "p_25", "p_75", "p_95", "max", "weightedAvg"} {
		st, err := ParseStat(name)
		require.NoError(t, err)
		assert.Equal(t, name, st.String())
	}

	st, err := ParseStat("average")
	require.NoError(t, err)
	assert.Equal(t, StatMean, st)

	st, err = ParseStat("weightedAverage")
	require.NoError(t, err)
	assert.Equal(t, StatWeightedMean, st)

	_, err = ParseStat("mode")
	assert.True(t, errors.Is(err, ErrUnknownStat))
}

func TestParseDecay(t *testing.T) {
	d, err := ParseDecay("EXPONENTIAL_DECAY")
	require.NoError(t, err)
	assert.Equal(t, "EXPONENTIAL_DECAY", d.Name())

	_, err = ParseDecay("SPATIAL_CORRELATION")
	assert.True(t, errors.Is(err, ErrDecayNotImplemented))

	_, err = ParseDecay("GAUSSIAN")
	assert.True(t, errors.Is(err, ErrUnknownDecay))
}

func TestRecord(t *testing.T) {
	assert.Equal(t, "avg;median;min;p_5;p_25;p_75;p_95;max;weightedAvg", HeaderLine(";"))

	rec := Summarize([]float64{1.5}).Record()
	require.Len(t, rec, len(Header()))
	assert.Equal(t, "1.5", rec[0])
	assert.Equal(t, "NaN", Empty().Record()[8])
}
