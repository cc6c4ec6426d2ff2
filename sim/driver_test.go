package sim

import (
	"math/rand"
	"testing"

	"github.com/go-kit/kit/log"
)

type fakeSink struct {
	macRows     [][2]int
	routingRows [][3]int
	closed      bool
}

func (f *fakeSink) WriteMAC(simulationTime, collisionCount int) error {
	f.macRows = append(f.macRows, [2]int{simulationTime, collisionCount})
	return nil
}

func (f *fakeSink) WriteRouting(establishedTick, deliveredTick, hopCount int) error {
	f.routingRows = append(f.routingRows, [3]int{establishedTick, deliveredTick, hopCount})
	return nil
}

func (f *fakeSink) Close() error {
	f.closed = true
	return nil
}

func TestRunStopsOnceAllScheduledMessagesDeliver(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s := NewSimulator("run-termination", 0, 5, 1000, rng, log.NewNopLogger())
	s.AddNode(0, Position{X: 0, Y: 0}, ProtocolALOHA, DefaultMaxBackoffCap)
	s.AddNode(1, Position{X: 0, Y: 3}, ProtocolALOHA, DefaultMaxBackoffCap)
	s.Node(0).Routing.table[1] = DSDVEntry{NextHop: 1, Metric: 3, Seq: 2}
	s.Schedule([]ScheduleEntry{
		{Tick: 1, SourceID: 0, Message: AppMsg{Target: 1, Content: "hi", Length: 3}},
	})

	sink := &fakeSink{}
	finalTick, err := s.Run(sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if finalTick >= 1000 {
		t.Errorf("expected the run to stop before the tick cap once delivered, stopped at %d", finalTick)
	}
	if len(sink.routingRows) != 1 {
		t.Fatalf("expected exactly one routing metrics row, got %d", len(sink.routingRows))
	}
	if len(sink.macRows) != 1 {
		t.Errorf("expected exactly one final MAC row, got %d", len(sink.macRows))
	}
}

func TestRunHitsTickCapWithoutDelivery(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	// N0's schedule targets a node that is never added, so routing can
	// never learn a route and the message sits buffered forever.
	s := NewSimulator("run-no-route", 0, 5, 50, rng, log.NewNopLogger())
	s.AddNode(0, Position{X: 0, Y: 0}, ProtocolALOHA, DefaultMaxBackoffCap)
	s.Schedule([]ScheduleEntry{
		{Tick: 1, SourceID: 0, Message: AppMsg{Target: 9, Content: "nowhere", Length: 1}},
	})

	sink := &fakeSink{}
	finalTick, err := s.Run(sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if finalTick != 50 {
		t.Errorf("expected the run to exhaust its 50-tick cap, stopped at %d", finalTick)
	}
	if len(sink.routingRows) != 0 {
		t.Errorf("expected no routing deliveries, got %d", len(sink.routingRows))
	}
}

func TestDistanceAndIsNeighbor(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s := NewSimulator("topology", 0.5, 4, 10, rng, log.NewNopLogger())
	s.AddNode(0, Position{X: 0, Y: 0}, ProtocolALOHA, DefaultMaxBackoffCap)
	s.AddNode(1, Position{X: 0, Y: 4.9}, ProtocolALOHA, DefaultMaxBackoffCap)

	if d := s.Distance(0, 1); d != 4 {
		t.Errorf("Distance = %d, want 4 (floor of 4.9)", d)
	}
	if !s.IsNeighbor(0, 1) {
		t.Error("expected neighbors within transceive_range + 2*radius (4 + 1 = 5 > 4.9)")
	}
}

func TestAddNodeKeepsAscendingOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s := NewSimulator("order", 0, 5, 10, rng, log.NewNopLogger())
	s.AddNode(5, Position{}, ProtocolALOHA, DefaultMaxBackoffCap)
	s.AddNode(1, Position{}, ProtocolALOHA, DefaultMaxBackoffCap)
	s.AddNode(3, Position{}, ProtocolALOHA, DefaultMaxBackoffCap)

	order := s.NodeIDs()
	want := []NodeID{1, 3, 5}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("got %v, want %v", order, want)
		}
	}
}
