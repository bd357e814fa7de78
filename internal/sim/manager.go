package sim

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"drt-feedback/internal/feedback"
	mmetrics "drt-feedback/internal/metrics"
	"drt-feedback/internal/stats"
	"drt-feedback/internal/trips"
)

// Source provides the stored passenger events of a simulation run.
type Source interface {
	Iterations(ctx context.Context) ([]int, error)
	Events(ctx context.Context, iteration int) ([]trips.Event, error)
}

// RouteCaps derives the hard caps of a replayed trip: MaxWaitTime and
// Alpha*direct + Beta for the travel time.
type RouteCaps struct {
	MaxWaitTime float64
	Alpha       float64
	Beta        float64
}

// Route builds the candidate route matching an observed trip.
func (c RouteCaps) Route(o trips.Observation) trips.Route {
	return trips.Route{
		StartLinkID:    o.StartLinkID,
		EndLinkID:      o.EndLinkID,
		MaxWaitTime:    c.MaxWaitTime,
		MaxTravelTime:  c.Beta + c.Alpha*o.EstimatedUnsharedTime,
		DirectRideTime: o.EstimatedUnsharedTime,
	}
}

// Prediction compares the estimates for a trip with what was observed.
type Prediction struct {
	Trip       trips.Observation
	WaitTime   float64
	TravelTime float64
	Wait       stats.Summary
	Delay      stats.Summary
}

// Manager replays stored iterations through the feedback engine. Each
// iteration first predicts every completed trip from the history so far,
// with queries spread over a worker pool, then records the iteration.
type Manager struct {
	source  Source
	engine  *feedback.Engine
	tracker *trips.Tracker
	caps    RouteCaps
	workers int
	metrics *mmetrics.Collector

	mu   sync.Mutex
	last []Prediction
}

func NewManager(source Source, engine *feedback.Engine, tracker *trips.Tracker, caps RouteCaps, workers int, metrics *mmetrics.Collector) *Manager {
	if workers < 1 {
		workers = 1
	}
	return &Manager{
		source:  source,
		engine:  engine,
		tracker: tracker,
		caps:    caps,
		workers: workers,
		metrics: metrics,
	}
}

// Run replays up to limit iterations, all of them when limit is 0, and
// writes the shutdown exports.
func (m *Manager) Run(ctx context.Context, limit int) error {
	its, err := m.source.Iterations(ctx)
	if err != nil {
		return fmt.Errorf("list iterations: %w", err)
	}
	if limit > 0 && len(its) > limit {
		its = its[:limit]
	}
	if len(its) == 0 {
		log.Printf("no stored iterations to replay")
	}
	for _, it := range its {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.runIteration(ctx, it); err != nil {
			return fmt.Errorf("iteration %d: %w", it, err)
		}
	}
	return m.engine.Shutdown()
}

func (m *Manager) runIteration(ctx context.Context, it int) error {
	start := time.Now()
	events, err := m.source.Events(ctx, it)
	if err != nil {
		return err
	}

	m.tracker.Reset()
	for _, e := range events {
		m.tracker.Handle(e)
	}
	completed := m.tracker.Observations()
	rejected := m.tracker.Rejected()
	if m.metrics != nil {
		m.metrics.ReplayedEvents.Add(float64(len(events)))
	}

	preds, err := m.predict(ctx, completed)
	if err != nil {
		return err
	}
	if m.engine.WritesDiagnostics() {
		path, err := WriteSimulatedTrips(m.engine.IterationDir(it), preds)
		if err != nil {
			return err
		}
		log.Printf("iteration %d: predictions written to %s", it, path)
	}
	m.mu.Lock()
	m.last = preds
	m.mu.Unlock()

	if _, err := m.engine.EndIteration(ctx, it, append(completed, rejected...)); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.IterationDuration.Observe(time.Since(start).Seconds())
	}
	log.Printf("iteration %d replayed: %d events, %d trips, %d rejected in %s",
		it, len(events), len(completed), len(rejected), time.Since(start).Round(time.Millisecond))
	return nil
}

// predict queries the resolver for every trip. No snapshot is recorded while
// the workers run.
func (m *Manager) predict(ctx context.Context, completed []trips.Observation) ([]Prediction, error) {
	resolver := m.engine.Resolver()
	out := make([]Prediction, len(completed))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < m.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				o := completed[i]
				r := m.caps.Route(o)
				out[i] = Prediction{
					Trip:       o,
					WaitTime:   resolver.WaitTime(r, o.StartTime),
					TravelTime: resolver.DelayedTravelTime(r, o.StartTime),
					Wait:       resolver.WaitTimeSummary(r, o.StartTime),
					Delay:      resolver.DelayFactorSummary(r, o.StartTime),
				}
				if m.metrics != nil {
					m.metrics.Predictions.Inc()
				}
			}
		}()
	}

	var err error
feed:
	for i := range completed {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LastPredictions returns the predictions of the most recent iteration.
func (m *Manager) LastPredictions() []Prediction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
