package sim

import (
	"math/rand"
	"testing"

	"github.com/go-kit/kit/log"
)

// The end-to-end scenarios below exercise the documented topologies:
// clean two-node exchange, hidden-terminal collision under plain
// ALOHA, RTS/CTS arbitration resolving that same collision, and DSDV
// route establishment/withdrawal along a line. Direct sender-to-
// neighbor routes are pre-seeded in several of them so the test
// isolates the MAC/medium round trip from DSDV convergence timing,
// which has its own dedicated scenario below.

func TestTwoNodeCleanExchangeALOHA(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s := NewSimulator("clean-exchange", 0, 5, 0, rng, log.NewNopLogger())
	s.AddNode(0, Position{X: 0, Y: 0}, ProtocolALOHA, DefaultMaxBackoffCap)
	s.AddNode(1, Position{X: 0, Y: 3}, ProtocolALOHA, DefaultMaxBackoffCap)
	s.Node(0).Routing.table[1] = DSDVEntry{NextHop: 1, Metric: 3, Seq: 2}

	s.Schedule([]ScheduleEntry{
		{Tick: 3, SourceID: 0, Message: AppMsg{Target: 1, Content: "hi", Length: 5}},
	})

	var events []deliveryRecord
	for s.now = 0; s.now < 60 && len(events) == 0; s.now++ {
		evs, err := s.RunTick()
		if err != nil {
			t.Fatalf("RunTick: %v", err)
		}
		events = append(events, evs...)
	}

	if len(events) != 1 {
		t.Fatalf("expected exactly one delivery, got %d", len(events))
	}
	if events[0].Hops != 0 {
		t.Errorf("a direct neighbor delivery should have 0 hops, got %d", events[0].Hops)
	}
	if got := s.Node(1).CollisionCount(); got != 0 {
		t.Errorf("collision count = %d, want 0", got)
	}
}

func TestHiddenTerminalCollisionALOHA(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s := NewSimulator("hidden-terminal", 0, 6, 0, rng, log.NewNopLogger())
	s.AddNode(0, Position{X: 0, Y: 0}, ProtocolALOHA, DefaultMaxBackoffCap)
	s.AddNode(1, Position{X: 0, Y: 5}, ProtocolALOHA, DefaultMaxBackoffCap)
	s.AddNode(2, Position{X: 0, Y: 10}, ProtocolALOHA, DefaultMaxBackoffCap)

	if s.IsNeighbor(0, 2) {
		t.Fatal("test setup: N0 and N2 must not be neighbors")
	}

	s.Node(0).Routing.table[1] = DSDVEntry{NextHop: 1, Metric: 5, Seq: 2}
	s.Node(2).Routing.table[1] = DSDVEntry{NextHop: 1, Metric: 5, Seq: 2}

	s.Schedule([]ScheduleEntry{
		{Tick: 3, SourceID: 0, Message: AppMsg{Target: 1, Length: 5}},
		{Tick: 3, SourceID: 2, Message: AppMsg{Target: 1, Length: 5}},
	})

	for s.now = 0; s.now < 300; s.now++ {
		if _, err := s.RunTick(); err != nil {
			t.Fatalf("RunTick: %v", err)
		}
	}

	if s.Node(1).CollisionCount() == 0 {
		t.Error("expected N1 to observe at least one collision from simultaneous hidden-terminal senders")
	}
}

func TestRTSCTSResolvesHiddenTerminal(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s := NewSimulator("hidden-terminal-rtscts", 0, 6, 0, rng, log.NewNopLogger())
	s.AddNode(0, Position{X: 0, Y: 0}, ProtocolRTSCTS, DefaultMaxBackoffCap)
	s.AddNode(1, Position{X: 0, Y: 5}, ProtocolRTSCTS, DefaultMaxBackoffCap)
	s.AddNode(2, Position{X: 0, Y: 10}, ProtocolRTSCTS, DefaultMaxBackoffCap)

	s.Node(0).Routing.table[1] = DSDVEntry{NextHop: 1, Metric: 5, Seq: 2}
	s.Node(2).Routing.table[1] = DSDVEntry{NextHop: 1, Metric: 5, Seq: 2}

	s.Schedule([]ScheduleEntry{
		{Tick: 3, SourceID: 0, Message: AppMsg{Target: 1, Length: 5}},
		{Tick: 3, SourceID: 2, Message: AppMsg{Target: 1, Length: 5}},
	})

	for s.now = 0; s.now < 3000; s.now++ {
		if _, err := s.RunTick(); err != nil {
			t.Fatalf("RunTick: %v", err)
		}
	}

	if len(s.Node(0).sendQueue) != 0 {
		t.Error("N0's DATA should eventually be ACKed under RTS/CTS arbitration")
	}
	if len(s.Node(2).sendQueue) != 0 {
		t.Error("N2's DATA should eventually be ACKed under RTS/CTS arbitration")
	}
}

func TestDSDVRouteEstablishmentAlongALine(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s := NewSimulator("dsdv-line", 0, 3, 0, rng, log.NewNopLogger())
	for i := 0; i < 6; i++ {
		s.AddNode(NodeID(i), Position{X: float64(2 * i), Y: 0}, ProtocolALOHA, DefaultMaxBackoffCap)
	}

	for s.now = 0; s.now < 6*MaxBroadcastBackoff+200; s.now++ {
		if _, err := s.RunTick(); err != nil {
			t.Fatalf("RunTick: %v", err)
		}
	}

	e, ok := s.Node(0).Routing.Entry(5)
	if !ok || e.Metric >= InfMetric {
		t.Fatalf("expected N0 to have learned a finite-metric route to N5, got %+v (ok=%v)", e, ok)
	}
	if e.NextHop != 1 {
		t.Errorf("expected N0's route to N5 to go via N1 (the only path in a line topology), got next hop %d", e.NextHop)
	}
}

func TestDSDVWithdrawalPropagatesAcrossAHop(t *testing.T) {
	logger := log.NewNopLogger()
	r0 := NewRouting(0, rand.New(rand.NewSource(1)), logger)
	r1 := NewRouting(1, rand.New(rand.NewSource(1)), logger)

	// N1 has learned a route to N2 via itself, then that route goes
	// stale and gets withdrawn (seq flips odd, metric -> inf).
	r1.table[2] = DSDVEntry{NextHop: 2, Metric: 1, Seq: 4}
	r1.staleness[2] = 0
	for i := 0; i <= StalenessFactor*MaxBroadcastBackoff; i++ {
		r1.ageStaleness()
	}
	withdrawn, _ := r1.Entry(2)
	if withdrawn.Metric != InfMetric || withdrawn.Seq%2 == 0 {
		t.Fatalf("test setup: expected N1 to withdraw its route to N2, got %+v", withdrawn)
	}

	// N0 previously knew a good route to N2 via N1; N1's next
	// advertisement should propagate the withdrawal.
	r0.table[2] = DSDVEntry{NextHop: 1, Metric: 3, Seq: 4}
	r0.mergeTable(1, r1.Snapshot(), 1)

	got, _ := r0.Entry(2)
	if got.Metric != InfMetric || got.Seq%2 == 0 {
		t.Errorf("expected N0 to adopt the withdrawal, got %+v", got)
	}
}

func TestBackoffCapReachedAfterRepeatedLosses(t *testing.T) {
	m := NewMacProtocol(rand.New(rand.NewSource(1)), 256)
	for i := 0; i < 20; i++ {
		m.SetBackoff()
		if m.MaxBackoff > m.MaxBackoffCap {
			t.Fatalf("MaxBackoff %d exceeded cap %d after %d losses", m.MaxBackoff, m.MaxBackoffCap, i+1)
		}
	}
	if m.MaxBackoff != m.MaxBackoffCap {
		t.Errorf("expected MaxBackoff to have reached its cap %d after 20 consecutive losses, got %d", m.MaxBackoffCap, m.MaxBackoff)
	}

	m.ResetMaxBackoff()
	if m.MaxBackoff != InitialMaxBackoff {
		t.Errorf("expected MaxBackoff reset to %d after a successful ACK, got %d", InitialMaxBackoff, m.MaxBackoff)
	}
}

func TestBroadcastDeliveredWithoutAck(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	n := NewNode(0, 0, 5, ProtocolALOHA, lineTopology{pos: map[NodeID]float64{0: 0, 1: 3}, reach: 5}, rng, DefaultMaxBackoffCap, log.NewNopLogger())
	n.state = StateReceiving

	n.processBroadcast(Msg{Type: MsgBroadcast, Src: 1, Dst: BroadcastID, Table: map[NodeID]DSDVEntry{}})

	if n.Delivered == nil {
		t.Fatal("expected a BROADCAST to set Delivered")
	}
	if n.State() != StateIdle {
		t.Errorf("a BROADCAST is never ACKed, expected Idle, got %v", n.State())
	}
}

func TestAckPopsSendQueueOnlyOnce(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	n := NewNode(0, 0, 5, ProtocolALOHA, lineTopology{pos: map[NodeID]float64{0: 0, 1: 3}, reach: 5}, rng, DefaultMaxBackoffCap, log.NewNopLogger())
	n.sendQueue = []AppMsg{{Target: 1, Content: "x"}}
	n.state = StateReceiving

	ack := Msg{Type: MsgAck, Src: 1, Dst: 0}
	n.processAck(ack)
	if len(n.sendQueue) != 0 {
		t.Fatalf("expected the first ACK to pop the queue, got len %d", len(n.sendQueue))
	}

	// A duplicate ACK for the same DATA must not pop again.
	n.state = StateReceiving
	n.processAck(ack)
	if len(n.sendQueue) != 0 {
		t.Errorf("a second ACK must not underflow an already-empty queue")
	}
}

func TestFireLegalTransition(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	n := NewNode(0, 0, 5, ProtocolALOHA, lineTopology{pos: map[NodeID]float64{0: 0, 1: 3}, reach: 5}, rng, DefaultMaxBackoffCap, log.NewNopLogger())

	n.fire(evArrive)
	if n.State() != StateReceiving {
		t.Errorf("got state %v, want Receiving after evArrive from Idle", n.State())
	}
}

func TestFireIllegalTransitionPanics(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	n := NewNode(0, 0, 5, ProtocolALOHA, lineTopology{pos: map[NodeID]float64{0: 0, 1: 3}, reach: 5}, rng, DefaultMaxBackoffCap, log.NewNopLogger())

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected fire to panic on an event with no matching transition")
		}
	}()
	n.fire(evWaitExpired)
}
