package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"drt-feedback/internal/history"
	"drt-feedback/internal/stats"
)

type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	runID       uuid.UUID
	logSubjects bool
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, runID uuid.UUID, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("drt-feedback"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, prefix: prefix, runID: runID, logSubjects: logSubjects, metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// SnapshotMessage is the JSON body published once per iteration.
type SnapshotMessage struct {
	RunID       string         `json:"runId"`
	Iteration   int            `json:"iteration"`
	Timestamp   time.Time      `json:"timestamp"`
	Trips       int            `json:"trips"`
	GlobalWait  SummaryMessage `json:"globalWait"`
	GlobalDelay SummaryMessage `json:"globalDelay"`
	Zones       []ZoneMessage  `json:"zones"`
}

type ZoneMessage struct {
	Zone    string         `json:"zone"`
	TimeBin int            `json:"timeBin"`
	Wait    SummaryMessage `json:"wait"`
}

// SummaryMessage carries the statistics of a Summary. Empty statistics are
// omitted since JSON has no NaN.
type SummaryMessage struct {
	Count  int      `json:"n"`
	Mean   *float64 `json:"avg,omitempty"`
	Median *float64 `json:"median,omitempty"`
	P95    *float64 `json:"p95,omitempty"`
	Max    *float64 `json:"max,omitempty"`
}

func summaryMessage(s stats.Summary) SummaryMessage {
	m := SummaryMessage{Count: s.Count}
	if s.IsEmpty() {
		return m
	}
	mean, median, p95, maxV := s.Mean, s.Median, s.P95, s.Max
	m.Mean, m.Median, m.P95, m.Max = &mean, &median, &p95, &maxV
	return m
}

// NewSnapshotMessage flattens a snapshot; zones are sorted by id and time bin.
func NewSnapshotMessage(runID uuid.UUID, s *history.Snapshot, at time.Time) SnapshotMessage {
	msg := SnapshotMessage{
		RunID:       runID.String(),
		Iteration:   s.Iteration,
		Timestamp:   at,
		Trips:       s.Trips,
		GlobalWait:  summaryMessage(s.GlobalWait),
		GlobalDelay: summaryMessage(s.GlobalDelay),
		Zones:       make([]ZoneMessage, 0, len(s.Zonal)),
	}
	for _, k := range history.SortedZoneBins(s) {
		msg.Zones = append(msg.Zones, ZoneMessage{Zone: k.Zone, TimeBin: k.TimeBin, Wait: summaryMessage(s.Zonal[k])})
	}
	return msg
}

// PublishSnapshot publishes s on <prefix>.<runID>.snapshot.
func (p *NATSPublisher) PublishSnapshot(ctx context.Context, iteration int, s *history.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject := fmt.Sprintf("%s.%s.snapshot", p.prefix, subjectToken(p.runID.String()))
	b, err := json.Marshal(NewSnapshotMessage(p.runID, s, time.Now().UTC()))
	if err != nil {
		return err
	}
	if p.logSubjects {
		log.Printf("nats publish subject=%s iteration=%d", subject, iteration)
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
