package sim

import "testing"

// lineTopology places nodes on a number line at the given coordinate,
// with every pair within reach treated as neighbors.
type lineTopology struct {
	pos   map[NodeID]float64
	reach float64
}

func (l lineTopology) Distance(a, b NodeID) int {
	return FloorDistance(Position{X: l.pos[a]}, Position{X: l.pos[b]})
}

func (l lineTopology) IsNeighbor(a, b NodeID) bool {
	if a == b {
		return false
	}
	d := l.pos[a] - l.pos[b]
	if d < 0 {
		d = -d
	}
	return d < l.reach
}

func (l lineTopology) NodeIDs() []NodeID {
	ids := make([]NodeID, 0, len(l.pos))
	for id := range l.pos {
		ids = append(ids, id)
	}
	return ids
}

func TestMediumObserveArrivalWindow(t *testing.T) {
	topo := lineTopology{pos: map[NodeID]float64{0: 0, 1: 5}, reach: 10}
	m := NewMedium(topo)
	m.Add(Transmission{StartTick: 10, Msg: Msg{Src: 0, Length: 3}})

	for _, tc := range []struct {
		now  int
		want bool
	}{
		{14, false}, // before arrival (10+5)
		{15, true},  // window opens
		{17, true},  // last tick in window
		{18, false}, // window closed
	} {
		got := len(m.Observe(1, tc.now)) > 0
		if got != tc.want {
			t.Errorf("Observe(1, %d): got %v, want %v", tc.now, got, tc.want)
		}
	}
}

func TestMediumArrivingNowIsTieBreak(t *testing.T) {
	topo := lineTopology{pos: map[NodeID]float64{0: 0, 1: 5}, reach: 10}
	m := NewMedium(topo)
	m.Add(Transmission{StartTick: 10, Msg: Msg{Src: 0, Length: 3}})

	if len(m.ArrivingNow(1, 15)) != 1 {
		t.Error("expected a transmission arriving exactly at tick 15")
	}
	if len(m.ArrivingNow(1, 16)) != 0 {
		t.Error("ArrivingNow should not match ticks after the arrival tick")
	}
}

func TestMediumObserveIgnoresNonNeighbors(t *testing.T) {
	topo := lineTopology{pos: map[NodeID]float64{0: 0, 1: 50}, reach: 10}
	m := NewMedium(topo)
	m.Add(Transmission{StartTick: 0, Msg: Msg{Src: 0, Length: 5}})

	if len(m.Observe(1, 0)) != 0 {
		t.Error("a non-neighbor should never observe a transmission")
	}
}

func TestMediumGCDropsExpiredTransmissions(t *testing.T) {
	topo := lineTopology{pos: map[NodeID]float64{0: 0, 1: 5}, reach: 10}
	m := NewMedium(topo)
	m.Add(Transmission{StartTick: 0, Msg: Msg{Src: 0, Length: 2}})

	m.GC(6) // window for node 1 is [5, 7) -- still live
	if len(m.transmissions) != 1 {
		t.Fatal("transmission still observable by a neighbor should not be GC'd")
	}

	m.GC(7) // window closed for every neighbor
	if len(m.transmissions) != 0 {
		t.Fatal("transmission with no remaining observers should be GC'd")
	}
}
