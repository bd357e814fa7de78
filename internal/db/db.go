package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"drt-feedback/internal/history"
	"drt-feedback/internal/stats"
	"drt-feedback/internal/trips"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var ErrUnknownEventKind = errors.New("db: unknown event kind")

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// FetchNetwork loads the representative coordinate of every network link.
func FetchNetwork(ctx context.Context, db *sql.DB) (*trips.Network, error) {
	rows, err := db.QueryContext(ctx, `SELECT link_id, x, y FROM network_links ORDER BY link_id`)
	if err != nil {
		return nil, fmt.Errorf("query network_links: %w", err)
	}
	defer rows.Close()

	var links []trips.Link
	for rows.Next() {
		var l trips.Link
		var x, y float64
		if err := rows.Scan(&l.ID, &x, &y); err != nil {
			return nil, err
		}
		l.Coord = orb.Point{x, y}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, errors.New("network_links is empty")
	}
	return trips.NewNetwork(links), nil
}

// FetchIterations lists the iterations with stored events in ascending order.
func FetchIterations(ctx context.Context, db *sql.DB) ([]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT iteration FROM drt_events ORDER BY iteration`)
	if err != nil {
		return nil, fmt.Errorf("query iterations: %w", err)
	}
	defer rows.Close()
	var its []int
	for rows.Next() {
		var it int
		if err := rows.Scan(&it); err != nil {
			return nil, err
		}
		its = append(its, it)
	}
	return its, rows.Err()
}

// EventRow is one row of drt_events.
type EventRow struct {
	Time             float64
	Kind             string // submitted|pickup|dropoff|rejected
	RequestID        string
	PersonID         string
	FromLinkID       string
	ToLinkID         string
	UnsharedTime     float64
	UnsharedDistance float64
	Mode             string
}

// Event converts the row into a tracker event.
func (r EventRow) Event() (trips.Event, error) {
	switch r.Kind {
	case "submitted":
		return trips.RequestSubmitted{
			Time:                 r.Time,
			RequestID:            r.RequestID,
			PersonID:             r.PersonID,
			FromLinkID:           r.FromLinkID,
			ToLinkID:             r.ToLinkID,
			UnsharedRideTime:     r.UnsharedTime,
			UnsharedRideDistance: r.UnsharedDistance,
		}, nil
	case "pickup":
		return trips.PassengerPickedUp{Time: r.Time, RequestID: r.RequestID, PersonID: r.PersonID, Mode: r.Mode}, nil
	case "dropoff":
		return trips.PassengerDroppedOff{Time: r.Time, RequestID: r.RequestID, PersonID: r.PersonID, Mode: r.Mode}, nil
	case "rejected":
		return trips.RequestRejected{Time: r.Time, RequestID: r.RequestID, PersonID: r.PersonID}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventKind, r.Kind)
	}
}

// FetchEvents returns the passenger events of one iteration in simulation order.
func FetchEvents(ctx context.Context, db *sql.DB, iteration int) ([]trips.Event, error) {
	q := `
SELECT time, kind, request_id, COALESCE(person_id, ''),
       COALESCE(from_link, ''), COALESCE(to_link, ''),
       COALESCE(unshared_time, 0), COALESCE(unshared_distance, 0),
       COALESCE(mode, '')
FROM drt_events
WHERE iteration = $1
ORDER BY time, seq`
	rows, err := db.QueryContext(ctx, q, iteration)
	if err != nil {
		return nil, fmt.Errorf("query drt_events: %w", err)
	}
	defer rows.Close()

	var events []trips.Event
	for rows.Next() {
		var r EventRow
		if err := rows.Scan(&r.Time, &r.Kind, &r.RequestID, &r.PersonID, &r.FromLinkID, &r.ToLinkID,
			&r.UnsharedTime, &r.UnsharedDistance, &r.Mode); err != nil {
			return nil, err
		}
		e, err := r.Event()
		if err != nil {
			return nil, fmt.Errorf("iteration %d request %s: %w", iteration, r.RequestID, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// StatRow is one persisted summary of a snapshot table.
type StatRow struct {
	Table       string // zonal|distance|global_wait|global_delay
	Zone        string
	DistanceBin int
	TimeBin     int
	Summary     stats.Summary
}

// SnapshotRows flattens a snapshot in a stable order. Global rows carry time
// bin -1.
func SnapshotRows(s *history.Snapshot) []StatRow {
	rows := []StatRow{
		{Table: "global_wait", DistanceBin: -1, TimeBin: -1, Summary: s.GlobalWait},
		{Table: "global_delay", DistanceBin: -1, TimeBin: -1, Summary: s.GlobalDelay},
	}
	for _, k := range history.SortedZoneBins(s) {
		rows = append(rows, StatRow{Table: "zonal", Zone: k.Zone, DistanceBin: -1, TimeBin: k.TimeBin, Summary: s.Zonal[k]})
	}
	for _, k := range history.SortedDistanceBins(s) {
		rows = append(rows, StatRow{Table: "distance", DistanceBin: k.DistanceBin, TimeBin: k.TimeBin, Summary: s.Distance[k]})
	}
	return rows
}

// SaveSnapshot replaces the stored statistics of an iteration of a run.
// NaN statistics are stored as NULL.
func SaveSnapshot(ctx context.Context, db *sql.DB, runID uuid.UUID, s *history.Snapshot) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM drt_feedback_stats WHERE run_id = $1 AND iteration = $2`,
		runID.String(), s.Iteration); err != nil {
		return fmt.Errorf("clear drt_feedback_stats: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO drt_feedback_stats
  (run_id, iteration, table_name, zone, distance_bin, time_bin, n,
   avg, median, min, p5, p25, p75, p95, max, std, weighted_avg)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range SnapshotRows(s) {
		v := r.Summary
		if _, err := stmt.ExecContext(ctx, runID.String(), s.Iteration, r.Table, r.Zone, r.DistanceBin, r.TimeBin, v.Count,
			nullable(v.Mean), nullable(v.Median), nullable(v.Min), nullable(v.P5), nullable(v.P25),
			nullable(v.P75), nullable(v.P95), nullable(v.Max), nullable(v.Std), nullable(v.WeightedMean)); err != nil {
			return fmt.Errorf("insert %s row: %w", r.Table, err)
		}
	}
	return tx.Commit()
}

func nullable(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}

// EventStore reads stored iterations from a run database.
type EventStore struct{ DB *sql.DB }

func (s EventStore) Iterations(ctx context.Context) ([]int, error) { return FetchIterations(ctx, s.DB) }

func (s EventStore) Events(ctx context.Context, iteration int) ([]trips.Event, error) {
	return FetchEvents(ctx, s.DB, iteration)
}
