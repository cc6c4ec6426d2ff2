package sim

import (
	"math/rand"
	"sort"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// ScheduleEntry injects an AppMsg into a source node's routing buffer
// at a given tick.
type ScheduleEntry struct {
	Tick     int
	SourceID NodeID
	Message  AppMsg
}

// MetricsSink receives rows as the driver produces them. Both the MAC
// and routing row shapes are delivered through the same interface;
// the caller picks the sink's kind (internal/cli/run.go) and the sink
// (metrics.go) drops rows of the other shape.
type MetricsSink interface {
	WriteMAC(simulationTime, collisionCount int) error
	WriteRouting(establishedTick, deliveredTick, hopCount int) error
	Close() error
}

// NodeSnapshot is the immutable, read-only view of one node published
// on the driver's per-tick snapshot channel for the inspector.
type NodeSnapshot struct {
	ID               NodeID
	State            State
	Timers           Timers
	CollisionCount   int
	RoutingTableSize int
}

// Snapshot is the whole-simulator view published once per tick.
type Snapshot struct {
	Tick  int
	Nodes []NodeSnapshot
}

// Simulator owns the Medium, the node registry, and the per-tick
// step sequence. It implements Topology itself so nodes query
// distances/neighbors through the same interface the Medium uses,
// never through back-pointers to other Node values.
type Simulator struct {
	name            string
	radius          float64
	transceiveRange int
	tickCap         int

	positions map[NodeID]Position
	order     []NodeID
	nodes     map[NodeID]*Node
	medium    *Medium

	schedule        []ScheduleEntry
	pending         int // scheduled messages not yet delivered to a final route target
	establishedTick map[establishKey]int

	rng    *rand.Rand
	logger log.Logger

	now int

	// Snapshots is a capacity-1, latest-wins channel the driver
	// publishes to after every tick, for an optional C10 inspector.
	// Nothing in the core ever reads from it. Run closes it when it
	// returns.
	Snapshots chan Snapshot
}

// NewSimulator constructs a Simulator with no nodes; AddNode populates
// it. ScenarioConfig.NewSimulator (scenario package) is the usual caller.
func NewSimulator(name string, radius float64, transceiveRange, tickCap int, rng *rand.Rand, logger log.Logger) *Simulator {
	s := &Simulator{
		name:            name,
		radius:          radius,
		transceiveRange: transceiveRange,
		tickCap:         tickCap,
		positions:       map[NodeID]Position{},
		nodes:           map[NodeID]*Node{},
		establishedTick: map[establishKey]int{},
		rng:             rng,
		logger:          logger,
		Snapshots:       make(chan Snapshot, 1),
	}
	s.medium = NewMedium(s)
	return s
}

// AddNode registers a node at pos with the given MAC protocol and
// backoff cap, keeping the ID order the tick loop steps in ascending.
func (s *Simulator) AddNode(id NodeID, pos Position, protocol Protocol, maxBackoffCap int) *Node {
	n := NewNode(id, s.radius, s.transceiveRange, protocol, s, s.rng, maxBackoffCap, s.logger)
	s.positions[id] = pos
	s.nodes[id] = n
	s.order = append(s.order, id)
	sort.Slice(s.order, func(i, j int) bool { return s.order[i] < s.order[j] })
	return n
}

// Schedule registers scheduled AppMsg injections, sorted by tick so
// Run can inject them in order without re-scanning the whole list.
func (s *Simulator) Schedule(entries []ScheduleEntry) {
	s.schedule = append(s.schedule, entries...)
	sort.SliceStable(s.schedule, func(i, j int) bool { return s.schedule[i].Tick < s.schedule[j].Tick })
	s.pending += len(entries)
}

// Node returns the node registered under id, or nil.
func (s *Simulator) Node(id NodeID) *Node { return s.nodes[id] }

// SetPosition updates a node's position; neighbor sets are derived
// fresh every tick from positions, never cached across moves.
func (s *Simulator) SetPosition(id NodeID, pos Position) {
	s.positions[id] = pos
}

// Distance implements Topology.
func (s *Simulator) Distance(a, b NodeID) int {
	return FloorDistance(s.positions[a], s.positions[b])
}

// IsNeighbor implements Topology: d(a,b) < transceive_range + 2*radius.
func (s *Simulator) IsNeighbor(a, b NodeID) bool {
	if a == b {
		return false
	}
	d := euclideanDistance(s.positions[a], s.positions[b])
	return d < float64(s.transceiveRange)+2*s.radius
}

// NodeIDs implements Topology.
func (s *Simulator) NodeIDs() []NodeID {
	return s.order
}

// Run steps the simulator until every scheduled message has reached
// its final route target or the tick cap is hit, writing a routing row
// to sink as each delivery completes and a final MAC row at
// termination. It returns the tick the run stopped on.
func (s *Simulator) Run(sink MetricsSink) (int, error) {
	defer close(s.Snapshots)

	totalCollisions := func() int {
		total := 0
		for _, id := range s.order {
			total += s.nodes[id].CollisionCount()
		}
		return total
	}

	for s.now = 0; s.now < s.tickCap; s.now++ {
		events, err := s.RunTick()
		if err != nil {
			return s.now, err
		}
		for _, ev := range events {
			if err := sink.WriteRouting(ev.EstablishedTick, ev.Tick, ev.Hops); err != nil {
				return s.now, err
			}
		}
		if s.pending <= 0 && len(s.schedule) == 0 {
			break
		}
	}

	if err := sink.WriteMAC(s.now, totalCollisions()); err != nil {
		return s.now, err
	}
	return s.now, nil
}

// deliveryRecord pairs a routing DeliveryEvent with the tick its route
// was first established, for the routing metrics row shape.
type deliveryRecord struct {
	EstablishedTick int
	Tick            int
	Hops            int
}

// RunTick executes exactly one tick of the seven-step sequence and
// returns any routing deliveries that completed during it.
func (s *Simulator) RunTick() ([]deliveryRecord, error) {
	now := s.now

	// (1) inject scheduled AppMsgs into their source's routing buffer.
	for len(s.schedule) > 0 && s.schedule[0].Tick == now {
		entry := s.schedule[0]
		s.schedule = s.schedule[1:]
		if n := s.nodes[entry.SourceID]; n != nil {
			n.Routing.Send(entry.Message)
		}
	}

	// (2)-(3) position/neighbor recompute: positions are updated via
	// SetPosition by the caller before RunTick when mobility is
	// enabled; IsNeighbor/Distance are already derived fresh per call,
	// so there is nothing further to precompute here.

	// (4) step every node's FSM in ascending ID order.
	for _, id := range s.order {
		s.nodes[id].Step(now, s.medium)
	}

	// (5) drain deliveries: hand each node's Delivered message to its
	// own Routing, collect any resulting forward/broadcast AppMsg into
	// the MAC send queue, and surface completed deliveries as metrics.
	var delivered []deliveryRecord
	for _, id := range s.order {
		n := s.nodes[id]
		if n.Delivered != nil {
			m := *n.Delivered
			n.Delivered = nil
			distance := s.Distance(m.Src, id)
			if fwd := n.Routing.Reply(m, distance, now); fwd != nil {
				n.Enqueue(*fwd)
			}
			if d := n.Routing.PopDelivery(); d != nil {
				established := s.establishedTick[establishKey{d.RouteSource, d.RouteTarget}]
				delivered = append(delivered, deliveryRecord{EstablishedTick: established, Tick: d.Tick, Hops: d.Hops})
				s.pending--
			}
			continue
		}
		if am := n.Routing.Tick(); am != nil {
			n.Enqueue(*am)
		}
	}

	// track first tick at which a route becomes known, for the
	// established_tick metric field.
	for _, srcID := range s.order {
		src := s.nodes[srcID]
		for _, dstID := range s.order {
			if srcID == dstID {
				continue
			}
			key := establishKey{srcID, dstID}
			if _, known := s.establishedTick[key]; known {
				continue
			}
			if e, ok := src.Routing.Entry(dstID); ok && e.Metric < InfMetric {
				s.establishedTick[key] = now
			}
		}
	}

	// (6) GC the medium.
	s.medium.GC(now)

	// (7) publish a snapshot for the optional inspector; latest wins.
	snap := Snapshot{Tick: now, Nodes: make([]NodeSnapshot, 0, len(s.order))}
	for _, id := range s.order {
		n := s.nodes[id]
		snap.Nodes = append(snap.Nodes, NodeSnapshot{
			ID:               id,
			State:            n.State(),
			Timers:           n.timers,
			CollisionCount:   n.CollisionCount(),
			RoutingTableSize: len(n.Routing.Snapshot()),
		})
	}
	select {
	case <-s.Snapshots:
	default:
	}
	select {
	case s.Snapshots <- snap:
	default:
	}

	level.Debug(s.logger).Log("message", "tick complete", "tick", now, "deliveries", len(delivered))
	return delivered, nil
}

type establishKey struct {
	Src, Dst NodeID
}
