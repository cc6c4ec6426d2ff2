package sim

import (
	"math"
	"math/rand"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// InfMetric represents an unreachable DSDV route. It is large enough
// that candidate_metric = incoming.Metric + distance never wraps for
// any realistic network diameter.
const InfMetric = math.MaxInt32

// DSDVEntry is one row of a node's distance-vector table.
type DSDVEntry struct {
	NextHop NodeID
	Metric  int
	Seq     int
}

// Routing is a node's DSDV state: its table, per-neighbor staleness
// counters, broadcast backoff, and the buffer of AppMsgs waiting on a
// route.
type Routing struct {
	id               NodeID
	table            map[NodeID]DSDVEntry
	staleness        map[NodeID]int
	broadcastBackoff int
	ownSeq           int
	buffer           []AppMsg
	lastDelivery     *DeliveryEvent

	rng    *rand.Rand
	logger log.Logger
}

// NewRouting constructs a Routing with only its own row populated, at
// metric 0 and an even (live) sequence number.
func NewRouting(id NodeID, rng *rand.Rand, logger log.Logger) *Routing {
	r := &Routing{
		id:        id,
		table:     map[NodeID]DSDVEntry{id: {NextHop: id, Metric: 0, Seq: 0}},
		staleness: map[NodeID]int{},
		rng:       rng,
		logger:    logger,
	}
	r.broadcastBackoff = rng.Intn(MaxBroadcastBackoff + 1)
	return r
}

// Entry returns the table row for id, and whether one exists.
func (r *Routing) Entry(id NodeID) (DSDVEntry, bool) {
	e, ok := r.table[id]
	return e, ok
}

// Send enqueues an application message to be routed once (or if) a
// route to its target becomes known.
func (r *Routing) Send(am AppMsg) {
	level.Debug(r.logger).Log("message", "buffered application message awaiting route", "node", r.id, "target", am.Target)
	r.buffer = append(r.buffer, am)
}

// Tick ages staleness counters, drains the first buffered message
// whose route is now known, and otherwise counts down to the next
// table broadcast. It returns the AppMsg to hand to the MAC layer, or
// nil if there is nothing to send this tick.
func (r *Routing) Tick() *AppMsg {
	r.ageStaleness()
	r.broadcastBackoff--
	return r.pendingAction()
}

// pendingAction drains the first buffered message whose route is now
// known, or fires the node's own due table broadcast. Callers must
// have already aged staleness and decremented broadcastBackoff for
// this tick.
func (r *Routing) pendingAction() *AppMsg {
	for i, am := range r.buffer {
		e, ok := r.table[am.Target]
		if !ok || e.Metric >= InfMetric {
			continue
		}
		r.buffer = append(r.buffer[:i:i], r.buffer[i+1:]...)
		am.HasRoute = true
		am.RouteTarget = am.Target
		am.RouteSource = r.id
		am.NextHop = e.NextHop
		return &am
	}

	if r.broadcastBackoff <= 0 {
		r.broadcastBackoff = r.rng.Intn(MaxBroadcastBackoff + 1)
		r.ownSeq += 2
		own := r.table[r.id]
		own.Seq = r.ownSeq
		r.table[r.id] = own
		return &AppMsg{Target: BroadcastID, Length: 1, Table: r.Snapshot()}
	}
	return nil
}

// DeliveryEvent records a DATA message reaching its final route
// target, for the driver to turn into a routing metrics row
// (established_tick/delivered_tick/hop_count).
type DeliveryEvent struct {
	RouteSource NodeID
	RouteTarget NodeID
	Content     string
	Hops        int
	Tick        int
}

// PopDelivery returns and clears the most recent DeliveryEvent, or nil
// if nothing was delivered to this node since the last call.
func (r *Routing) PopDelivery() *DeliveryEvent {
	d := r.lastDelivery
	r.lastDelivery = nil
	return d
}

// Reply hands an arriving Msg to the routing layer: it resets the
// sender's staleness, merges a BROADCAST's advertised table, forwards
// a DATA message addressed elsewhere if a route exists (dropping it
// with a warning otherwise), and delivers a DATA message addressed
// here. Staleness aging and the broadcast-backoff countdown always run
// exactly once, even when a DATA message is forwarded in the same
// tick; only the buffer-drain/own-broadcast action that pendingAction
// would otherwise return is skipped in that case, since a forward
// already claims this tick's one outgoing slot.
func (r *Routing) Reply(m Msg, distanceToSrc, now int) *AppMsg {
	r.staleness[m.Src] = 0
	r.ageStaleness()
	r.broadcastBackoff--

	switch m.Type {
	case MsgData:
		if m.RouteTarget == r.id {
			level.Info(r.logger).Log("message", "delivered application message", "node", r.id, "from", m.RouteSource, "content", m.Content, "hops", m.Hops)
			r.lastDelivery = &DeliveryEvent{RouteSource: m.RouteSource, RouteTarget: r.id, Content: m.Content, Hops: m.Hops, Tick: now}
		} else if e, ok := r.table[m.RouteTarget]; ok && e.Metric < InfMetric {
			return &AppMsg{
				Target:      m.RouteTarget,
				Content:     m.Content,
				Length:      m.Length,
				HasRoute:    true,
				RouteTarget: m.RouteTarget,
				RouteSource: m.RouteSource,
				NextHop:     e.NextHop,
				Hops:        m.Hops + 1,
			}
		} else {
			level.Warn(r.logger).Log("message", "message died for lack of a route", "node", r.id, "route_source", m.RouteSource, "route_target", m.RouteTarget)
		}
	case MsgBroadcast:
		r.mergeTable(m.Src, m.Table, distanceToSrc)
	}

	return r.pendingAction()
}

// mergeTable applies DSDV's "prefer fresher sequence, then shorter
// metric" rule, adopting odd-sequence withdrawals verbatim.
func (r *Routing) mergeTable(advertiser NodeID, advert map[NodeID]DSDVEntry, distance int) {
	for target, incoming := range advert {
		current, ok := r.table[target]
		if !ok {
			current = DSDVEntry{NextHop: -1, Metric: InfMetric, Seq: -1}
		}

		candidate := incoming.Metric + distance
		if incoming.Metric >= InfMetric {
			candidate = InfMetric
		}

		switch {
		case incoming.Seq > current.Seq && current.Metric >= candidate:
			r.table[target] = DSDVEntry{NextHop: advertiser, Metric: candidate, Seq: incoming.Seq}
		case incoming.Seq%2 == 1 && incoming.Seq > current.Seq:
			r.table[target] = DSDVEntry{NextHop: incoming.NextHop, Metric: incoming.Metric, Seq: incoming.Seq}
		}
	}
}

// ageStaleness increments every tracked neighbor's staleness counter
// and withdraws any directly-owned row that has gone unheard for too
// long, flipping its sequence number odd and its metric to infinity.
func (r *Routing) ageStaleness() {
	for id := range r.staleness {
		r.staleness[id]++
		if r.staleness[id] <= StalenessFactor*MaxBroadcastBackoff {
			continue
		}
		e, ok := r.table[id]
		if !ok || e.Seq%2 != 0 || e.NextHop != id {
			continue
		}
		level.Debug(r.logger).Log("message", "staleness detected, withdrawing route", "node", r.id, "target", id)
		e.Seq++
		e.Metric = InfMetric
		r.table[id] = e
	}
}

// Snapshot returns a copy of the table suitable for embedding in a
// BROADCAST Msg, so later mutation of the live table cannot alias into
// an already-sent advertisement.
func (r *Routing) Snapshot() map[NodeID]DSDVEntry {
	out := make(map[NodeID]DSDVEntry, len(r.table))
	for k, v := range r.table {
		out[k] = v
	}
	return out
}
