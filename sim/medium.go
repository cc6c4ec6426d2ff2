package sim

// Transmission is a Msg placed on the Medium at StartTick. A neighbor
// R of msg.Src observes it during
// [StartTick + floor(d(Src,R)), StartTick + floor(d(Src,R)) + Msg.Length).
type Transmission struct {
	StartTick int
	Msg       Msg
}

// arrivalWindow returns the half-open tick range [lo, hi) during which a
// receiver at distance ticks from the transmission's source observes it.
func (t Transmission) arrivalWindow(distance int) (lo, hi int) {
	lo = t.StartTick + distance
	hi = lo + t.Msg.Length
	return lo, hi
}

// Topology is the read-only geometric view the Medium needs: which
// nodes are within earshot of each other, and how many ticks a signal
// takes to cross between them. The driver's node registry implements
// it; the Medium itself never touches node state directly — it stays
// a pure function of {transmissions, positions, now}.
type Topology interface {
	Distance(a, b NodeID) int
	IsNeighbor(a, b NodeID) bool
	NodeIDs() []NodeID
}

// Medium holds every in-flight Transmission and answers "what can
// receiver observe right now". It is owned by the driver and borrowed
// by each node for the duration of its step (sim/driver.go); it is not
// safe for concurrent use, matching the single-threaded cooperative
// tick loop the driver runs.
type Medium struct {
	topo            Topology
	transmissions   []Transmission
}

// NewMedium creates an empty Medium over the given Topology.
func NewMedium(topo Topology) *Medium {
	return &Medium{topo: topo}
}

// Add appends a new Transmission to the medium.
func (m *Medium) Add(t Transmission) {
	m.transmissions = append(m.transmissions, t)
}

// Observe returns every Transmission that receiver can hear at tick
// now: transmissions whose source is a neighbor of receiver and whose
// arrival window contains now.
func (m *Medium) Observe(receiver NodeID, now int) []Transmission {
	var out []Transmission
	for _, t := range m.transmissions {
		if !m.topo.IsNeighbor(t.Msg.Src, receiver) {
			continue
		}
		lo, hi := t.arrivalWindow(m.topo.Distance(t.Msg.Src, receiver))
		if now >= lo && now < hi {
			out = append(out, t)
		}
	}
	return out
}

// ArrivingNow is the subset of Observe's result whose arrival window
// opens exactly at now: start_tick + floor(d(src,R)) == now. This is
// the tie-break for "arriving this tick" versus already in flight.
func (m *Medium) ArrivingNow(receiver NodeID, now int) []Transmission {
	var out []Transmission
	for _, t := range m.transmissions {
		if !m.topo.IsNeighbor(t.Msg.Src, receiver) {
			continue
		}
		lo, _ := t.arrivalWindow(m.topo.Distance(t.Msg.Src, receiver))
		if lo == now {
			out = append(out, t)
		}
	}
	return out
}

// GC drops transmissions that no neighbor of their source could still
// be receiving at tick now.
func (m *Medium) GC(now int) {
	kept := m.transmissions[:0]
	for _, t := range m.transmissions {
		stillLive := false
		for _, id := range m.topo.NodeIDs() {
			if id == t.Msg.Src || !m.topo.IsNeighbor(t.Msg.Src, id) {
				continue
			}
			_, hi := t.arrivalWindow(m.topo.Distance(t.Msg.Src, id))
			if now < hi {
				stillLive = true
				break
			}
		}
		if stillLive {
			kept = append(kept, t)
		}
	}
	m.transmissions = kept
}
