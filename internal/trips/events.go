package trips

// Event is one of the passenger events consumed by Tracker.
type Event interface {
	isEvent()
	// At is the simulation time of the event in seconds.
	At() float64
}

type RequestSubmitted struct {
	Time                 float64
	RequestID            string
	PersonID             string
	FromLinkID           string
	ToLinkID             string
	UnsharedRideTime     float64
	UnsharedRideDistance float64
}

type PassengerPickedUp struct {
	Time      float64
	RequestID string
	PersonID  string
	Mode      string
}

type PassengerDroppedOff struct {
	Time      float64
	RequestID string
	PersonID  string
	Mode      string
}

type RequestRejected struct {
	Time      float64
	RequestID string
	PersonID  string
}

func (RequestSubmitted) isEvent()    {}
func (PassengerPickedUp) isEvent()   {}
func (PassengerDroppedOff) isEvent() {}
func (RequestRejected) isEvent()     {}

func (e RequestSubmitted) At() float64    { return e.Time }
func (e PassengerPickedUp) At() float64   { return e.Time }
func (e PassengerDroppedOff) At() float64 { return e.Time }
func (e RequestRejected) At() float64     { return e.Time }
