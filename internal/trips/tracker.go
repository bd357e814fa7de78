package trips

import (
	"log"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// DefaultMode is the leg mode whose pickups and drop-offs are tracked.
const DefaultMode = "drt"

// LinkLocator resolves link coordinates.
type LinkLocator interface {
	LinkCoord(linkID string) (orb.Point, bool)
}

// Router recomputes the unshared ride time of a trip for a departure time.
type Router interface {
	UnsharedTime(fromLinkID, toLinkID string, departure float64) (float64, bool)
}

// BeelineRouter estimates unshared ride times from straight-line distance.
type BeelineRouter struct {
	Links        LinkLocator
	Speed        float64 // m/s
	DetourFactor float64 // 0 means 1
}

func (r BeelineRouter) UnsharedTime(from, to string, _ float64) (float64, bool) {
	a, ok := r.Links.LinkCoord(from)
	if !ok {
		return 0, false
	}
	b, ok := r.Links.LinkCoord(to)
	if !ok || r.Speed <= 0 {
		return 0, false
	}
	detour := r.DetourFactor
	if detour <= 0 {
		detour = 1
	}
	return planar.Distance(a, b) * detour / r.Speed, true
}

// Tracker assembles observations from the events of one iteration.
// Handle may be called from several goroutines.
type Tracker struct {
	mode       string
	links      LinkLocator
	router     Router
	horizonEnd float64

	mu        sync.Mutex
	submitted map[string]*Observation
	completed []*Observation
	rejected  []*Observation
}

// TrackerOption customises a Tracker.
type TrackerOption func(*Tracker)

// WithMode tracks pickups and drop-offs of another leg mode.
func WithMode(mode string) TrackerOption { return func(t *Tracker) { t.mode = mode } }

// WithRouter recomputes unshared ride times at drop-off.
func WithRouter(r Router) TrackerOption { return func(t *Tracker) { t.router = r } }

// WithHorizonEnd sets the pickup time assigned to rejected requests.
func WithHorizonEnd(seconds float64) TrackerOption {
	return func(t *Tracker) { t.horizonEnd = seconds }
}

func NewTracker(links LinkLocator, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		mode:       DefaultMode,
		links:      links,
		horizonEnd: 24 * 3600,
		submitted:  make(map[string]*Observation),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Handle applies one event. Events for unknown or finished requests and for
// other modes are ignored.
func (t *Tracker) Handle(e Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev := e.(type) {
	case RequestSubmitted:
		t.submitted[ev.RequestID] = &Observation{
			RequestID:             ev.RequestID,
			PersonID:              ev.PersonID,
			StartLinkID:           ev.FromLinkID,
			EndLinkID:             ev.ToLinkID,
			StartTime:             ev.Time,
			EstimatedUnsharedTime: ev.UnsharedRideTime,
			UnsharedDistance:      ev.UnsharedRideDistance,
		}
	case PassengerPickedUp:
		o, ok := t.submitted[ev.RequestID]
		if !ok || ev.Mode != t.mode {
			return
		}
		o.PickupTime = ev.Time
		o.WaitTime = o.PickupTime - o.StartTime
	case PassengerDroppedOff:
		o, ok := t.submitted[ev.RequestID]
		if !ok || ev.Mode != t.mode {
			return
		}
		o.ArrivalTime = ev.Time
		o.TotalTravelTime = ev.Time - o.PickupTime
		t.locate(o)
		if t.router != nil {
			if tt, ok := t.router.UnsharedTime(o.StartLinkID, o.EndLinkID, o.PickupTime); ok {
				o.RouterUnsharedTime = tt
			}
		}
		t.completed = append(t.completed, o)
		delete(t.submitted, ev.RequestID)
	case RequestRejected:
		o, ok := t.submitted[ev.RequestID]
		if !ok {
			return
		}
		o.Rejected = true
		o.PickupTime = t.horizonEnd
		o.WaitTime = t.horizonEnd - o.StartTime
		t.locate(o)
		t.rejected = append(t.rejected, o)
		delete(t.submitted, ev.RequestID)
	}
}

func (t *Tracker) locate(o *Observation) {
	var ok bool
	if o.StartCoord, ok = t.links.LinkCoord(o.StartLinkID); !ok {
		o.StartUnlocated = true
		log.Printf("[trips] request %s: unknown start link %s", o.RequestID, o.StartLinkID)
	}
	if o.EndCoord, ok = t.links.LinkCoord(o.EndLinkID); !ok {
		o.EndUnlocated = true
		log.Printf("[trips] request %s: unknown end link %s", o.RequestID, o.EndLinkID)
	}
}

// Observations returns copies of the completed trips in drop-off order.
func (t *Tracker) Observations() []Observation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return copyAll(t.completed)
}

// Rejected returns copies of the rejected requests in rejection order.
func (t *Tracker) Rejected() []Observation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return copyAll(t.rejected)
}

// Reset forgets every request so the tracker can serve the next iteration.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.submitted = make(map[string]*Observation)
	t.completed = nil
	t.rejected = nil
}

func copyAll(in []*Observation) []Observation {
	out := make([]Observation, len(in))
	for i, o := range in {
		out[i] = *o
	}
	return out
}
