package history

import (
	"encoding/csv"
	"io"
	"math"
	"sort"
	"strconv"

	"drt-feedback/internal/stats"
	"drt-feedback/internal/trips"
)

// Diagnostic file names, one set per iteration directory.
const (
	ZonalFile    = "drt_zonalAndTimeBinWaitingTime.csv"
	DistanceFile = "drt_distanceAndTimeBinDelayFactor.csv"
	GlobalFile   = "drt_globalStats.csv"
	TripsFile    = "drt_drtTripsStats.csv"
)

func newWriter(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	return cw
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// WriteZonalCSV writes one row per time bin for every zone with at least one
// observation. Bins without data are written as NaN.
func WriteZonalCSV(w io.Writer, s *Snapshot, timeBins int) error {
	cw := newWriter(w)
	if err := cw.Write(append([]string{"zone", "timeBin"}, stats.Header()...)); err != nil {
		return err
	}
	seen := map[string]struct{}{}
	for k := range s.Zonal {
		seen[k.Zone] = struct{}{}
	}
	zones := make([]string, 0, len(seen))
	for z := range seen {
		zones = append(zones, z)
	}
	sort.Strings(zones)
	for _, z := range zones {
		for tb := 0; tb < timeBins; tb++ {
			if err := cw.Write(append([]string{z, strconv.Itoa(tb)}, s.ZonalWait(z, tb).Record()...)); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteDistanceCSV writes every distance bin and time bin combination.
func WriteDistanceCSV(w io.Writer, s *Snapshot, distanceBins, timeBins int) error {
	cw := newWriter(w)
	if err := cw.Write(append([]string{"distanceBin", "timeBin"}, stats.Header()...)); err != nil {
		return err
	}
	for db := 0; db < distanceBins; db++ {
		for tb := 0; tb < timeBins; tb++ {
			row := append([]string{strconv.Itoa(db), strconv.Itoa(tb)}, s.DistanceDelay(db, tb).Record()...)
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteGlobalCSV writes the two global summaries of a snapshot.
func WriteGlobalCSV(w io.Writer, s *Snapshot) error {
	cw := newWriter(w)
	rows := [][]string{
		append([]string{"metric"}, stats.Header()...),
		append([]string{"globalWaitingTime"}, s.GlobalWait.Record()...),
		append([]string{"globalDelayFactor"}, s.GlobalDelay.Record()...),
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteTripsCSV writes the raw observations of an iteration.
func WriteTripsCSV(w io.Writer, obs []trips.Observation) error {
	cw := newWriter(w)
	header := []string{
		"personId", "requestId", "startTime", "arrivalTime", "totalTravelTime",
		"routerUnsharedTime", "estimatedUnsharedTime", "delayFactor", "waitTime",
		"startX", "startY", "endX", "endY", "euclideanDistance", "rejected",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, o := range obs {
		factor, ok := o.DelayFactor()
		if !ok {
			factor = math.NaN()
		}
		row := []string{
			o.PersonID, o.RequestID, ftoa(o.StartTime), ftoa(o.ArrivalTime), ftoa(o.TotalTravelTime),
			ftoa(o.RouterUnsharedTime), ftoa(o.EstimatedUnsharedTime), ftoa(factor), ftoa(o.WaitTime),
			ftoa(o.StartCoord.X()), ftoa(o.StartCoord.Y()), ftoa(o.EndCoord.X()), ftoa(o.EndCoord.Y()),
			ftoa(o.EuclideanDistance()), strconv.FormatBool(o.Rejected),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
