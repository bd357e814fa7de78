package sim

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"drt-feedback/internal/stats"
)

// SimulatedTripsFile holds the per-trip predictions of an iteration.
const SimulatedTripsFile = "drt_simulatedTrips.csv"

var summaryColumns = []string{"avg", "std", "weightedAvg", "weightedStd", "min", "p5", "p25", "median", "p75", "p95", "max", "nTrips"}

func reportHeader() []string {
	h := []string{"personId", "startTime", "startLink", "endLink",
		"waitTime_real", "travelTime_real", "waitTime_predicted", "travelTime_predicted"}
	for _, prefix := range []string{"waitTime_", "delayFactor_"} {
		for _, c := range summaryColumns {
			h = append(h, prefix+c)
		}
	}
	return h
}

func summaryRecord(s stats.Summary) []string {
	return []string{
		ftoa(s.Mean), ftoa(s.Std), ftoa(s.WeightedMean), ftoa(s.WeightedStd),
		ftoa(s.Min), ftoa(s.P5), ftoa(s.P25), ftoa(s.Median), ftoa(s.P75), ftoa(s.P95), ftoa(s.Max),
		strconv.Itoa(s.Count),
	}
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// WriteSimulatedTrips writes one row per prediction into dir and returns the
// file path.
func WriteSimulatedTrips(dir string, preds []Prediction) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, SimulatedTripsFile)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = ';'
	if err := w.Write(reportHeader()); err != nil {
		return "", err
	}
	for _, p := range preds {
		row := []string{
			p.Trip.PersonID, ftoa(p.Trip.StartTime), p.Trip.StartLinkID, p.Trip.EndLinkID,
			ftoa(p.Trip.WaitTime), ftoa(p.Trip.TotalTravelTime), ftoa(p.WaitTime), ftoa(p.TravelTime),
		}
		row = append(row, summaryRecord(p.Wait)...)
		row = append(row, summaryRecord(p.Delay)...)
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return path, f.Close()
}
