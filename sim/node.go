package sim

import (
	"math/rand"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// Node FSM events. Named for the transition they drive rather than
// the raw stimulus, since several distinct stimuli (a collision, a
// foreign-addressed arrival, an expired wait) resolve to the same
// destination state.
const (
	evArrive           = "arrive"
	evSendQueued       = "send_queued"
	evSentAwaiting     = "sent_awaiting_answer"
	evSentNoAnswer     = "sent_no_answer"
	evCollideToWait    = "collide_to_wait"
	evCollideToBackoff = "collide_to_backoff"
	evCollideToIdle    = "collide_to_idle"
	evRecvToWait       = "recv_to_wait"
	evRecvToBackoff    = "recv_to_backoff"
	evRecvToIdle       = "recv_to_idle"
	evRecvToVC         = "recv_to_vc"
	evRecvToSending    = "recv_to_sending"
	evWaitExpired      = "wait_expired"
	evBackoffExpired   = "backoff_expired"
	evVCToBackoff      = "vc_to_backoff"
	evVCToIdle         = "vc_to_idle"
)

// Timers holds a Node's named countdowns. At most one of
// WaitForAck/WaitForCts/WaitForData is ever positive; the others are
// orthogonal and may overlap freely (e.g. Receiving while also
// counting down VirtualCarrier).
type Timers struct {
	Sending        int
	Receiving      int
	WaitForAck     int
	WaitForCts     int
	WaitForData    int
	VirtualCarrier int
}

// Node is a single simulated radio: physical-layer countdowns, a MAC
// protocol, and the wire-level send queue the MAC drains. Routing
// lives alongside it (exported so the driver can hand it delivered
// messages and drain its own tick), but Node's FSM never calls into
// Routing directly — see SPEC_FULL.md on why the Open Question about
// where DATA->ACK "delivered" belongs resolves to the receiver's
// physical layer setting Delivered, with the driver bridging to
// Routing.Reply at the same node.
type Node struct {
	ID              NodeID
	Radius          float64
	TransceiveRange int
	Protocol        Protocol

	Routing *Routing

	state       State
	transitions []stateTransition
	timers      Timers

	mac *MacProtocol

	sendQueue []AppMsg
	// Delivered is set whenever a DATA or BROADCAST message addressed
	// to this node finishes Receiving; the driver hands it to Routing
	// and clears it every tick.
	Delivered *Msg

	collisionCounter int

	latched        *Msg
	pendingOutType MsgType
	pendingDataLen int

	topo   Topology
	rng    *rand.Rand
	logger log.Logger
}

// stateTransition describes a single legal move: from state "from", on
// any of "events", move to state "to".
type stateTransition struct {
	from, to string
	events   []string
}

// nodeTransitions is the legal-transition table shared by every Node.
// It exists to make an illegal transition a loud, immediate panic
// rather than a silently wrong state; the actual timer and queue
// bookkeeping happens in the step* methods below, not in a transition
// hook, since most of it has to run before the destination state is
// even known.
func nodeTransitions() []stateTransition {
	return []stateTransition{
		{from: string(StateIdle), to: string(StateReceiving), events: []string{evArrive}},
		{from: string(StateIdle), to: string(StateSending), events: []string{evSendQueued}},

		{from: string(StateSending), to: string(StateWaitingForAnswer), events: []string{evSentAwaiting}},
		{from: string(StateSending), to: string(StateIdle), events: []string{evSentNoAnswer}},

		{from: string(StateReceiving), to: string(StateWaitingForAnswer), events: []string{evCollideToWait, evRecvToWait}},
		{from: string(StateReceiving), to: string(StateBackingOff), events: []string{evCollideToBackoff, evRecvToBackoff}},
		{from: string(StateReceiving), to: string(StateIdle), events: []string{evCollideToIdle, evRecvToIdle}},
		{from: string(StateReceiving), to: string(StateVirtualCarrierWait), events: []string{evRecvToVC}},
		{from: string(StateReceiving), to: string(StateSending), events: []string{evRecvToSending}},

		{from: string(StateWaitingForAnswer), to: string(StateBackingOff), events: []string{evWaitExpired}},
		{from: string(StateWaitingForAnswer), to: string(StateReceiving), events: []string{evArrive}},

		{from: string(StateBackingOff), to: string(StateIdle), events: []string{evBackoffExpired}},
		{from: string(StateBackingOff), to: string(StateReceiving), events: []string{evArrive}},

		{from: string(StateVirtualCarrierWait), to: string(StateBackingOff), events: []string{evVCToBackoff}},
		{from: string(StateVirtualCarrierWait), to: string(StateIdle), events: []string{evVCToIdle}},
		{from: string(StateVirtualCarrierWait), to: string(StateReceiving), events: []string{evArrive}},
	}
}

// NewNode constructs an idle Node. rng must be owned by the simulator,
// never a process-global source, so runs are reproducible given a
// seed.
func NewNode(id NodeID, radius float64, transceiveRange int, protocol Protocol, topo Topology, rng *rand.Rand, maxBackoffCap int, logger log.Logger) *Node {
	n := &Node{
		ID:              id,
		Radius:          radius,
		TransceiveRange: transceiveRange,
		Protocol:        protocol,
		state:           StateIdle,
		mac:             NewMacProtocol(rng, maxBackoffCap),
		topo:            topo,
		rng:             rng,
		logger:          log.With(logger, "node", id),
	}
	n.transitions = nodeTransitions()
	n.Routing = NewRouting(id, rng, n.logger)
	return n
}

// State returns the node's current FSM state.
func (n *Node) State() State { return n.state }

// CollisionCount returns the number of collisions this node has
// observed, for metrics.
func (n *Node) CollisionCount() int { return n.collisionCounter }

// Enqueue appends an already-routed AppMsg to the MAC send queue. The
// driver calls this with whatever Routing.Send/Tick/Reply hand back;
// Node itself never reaches into Routing.
func (n *Node) Enqueue(am AppMsg) {
	n.sendQueue = append(n.sendQueue, am)
}

// fire looks up event against the current state in n.transitions and
// moves to the matching destination state, or panics via
// mustNotHappen if no transition covers it.
func (n *Node) fire(event string) {
	from := string(n.state)
	for _, t := range n.transitions {
		if t.from != from {
			continue
		}
		for _, e := range t.events {
			if e == event {
				n.state = State(t.to)
				return
			}
		}
	}
	mustNotHappen("node %d in state %v: no transition defined for event %v", n.ID, n.state, event)
}

func (n *Node) distanceTo(other NodeID) int {
	return n.topo.Distance(n.ID, other)
}

// Step advances the node by exactly one tick.
func (n *Node) Step(now int, medium *Medium) {
	switch n.state {
	case StateIdle:
		n.stepIdle(now, medium)
	case StateSending:
		n.stepSending(now, medium)
	case StateReceiving:
		n.stepReceiving(now, medium)
	case StateBackingOff:
		n.stepBackingOff(now, medium)
	case StateWaitingForAnswer:
		n.stepWaitingForAnswer(now, medium)
	case StateVirtualCarrierWait:
		n.stepVirtualCarrierWait(now, medium)
	default:
		mustNotHappen("node %d: unreachable state %v", n.ID, n.state)
	}
}

// checkArrival latches a single new arrival into Receiving, or counts
// a collision if two or more arrive simultaneously. It reports whether
// it consumed the tick (a caller that gets true should do nothing
// else this step).
func (n *Node) checkArrival(now int, medium *Medium) bool {
	arriving := medium.ArrivingNow(n.ID, now)
	switch len(arriving) {
	case 0:
		return false
	case 1:
		m := arriving[0].Msg
		n.latched = &m
		n.timers.Receiving = m.Length
		n.fire(evArrive)
		return true
	default:
		n.collisionCounter++
		level.Debug(n.logger).Log("message", "collision on arrival", "count", len(arriving))
		return false
	}
}

// emit places msg on the Medium starting next tick and transitions
// from Receiving into Sending. Used whenever processReceived decides
// to answer: an ACK, a CTS, or a DATA built after a matching CTS.
func (n *Node) emit(now int, medium *Medium, msg Msg, fromEvent string) {
	n.timers.Sending = msg.Length
	n.pendingOutType = msg.Type
	medium.Add(Transmission{StartTick: now + 1, Msg: msg})
	n.fire(fromEvent)
}

func (n *Node) stepIdle(now int, medium *Medium) {
	if n.checkArrival(now, medium) {
		return
	}
	if len(n.sendQueue) == 0 {
		return
	}
	n.beginSending(now, medium)
}

// beginSending builds the head-of-queue outgoing message appropriate
// to the node's protocol: ALOHA sends DATA/BROADCAST directly, RTS/CTS
// first clears the channel with an RTS (unless the message is itself a
// BROADCAST, which is never RTS/CTS-gated).
func (n *Node) beginSending(now int, medium *Medium) {
	am := n.sendQueue[0]

	if am.Target == BroadcastID {
		msg := n.mac.MakeBroadcast(n.ID, am.Table)
		n.sendQueue = n.sendQueue[1:]
		n.timers.Sending = msg.Length
		n.pendingOutType = msg.Type
		medium.Add(Transmission{StartTick: now + 1, Msg: msg})
		n.fire(evSendQueued)
		return
	}

	dst := am.Target
	if am.HasRoute {
		dst = am.NextHop
	}

	switch n.Protocol {
	case ProtocolRTSCTS:
		distance := n.distanceTo(dst)
		n.pendingDataLen = am.Length
		msg := n.mac.MakeRTS(n.ID, dst, distance, am.Length)
		n.timers.Sending = msg.Length
		n.pendingOutType = msg.Type
		medium.Add(Transmission{StartTick: now + 1, Msg: msg})
		n.fire(evSendQueued)
	default:
		msg := n.mac.MakeData(n.ID, am)
		n.pendingDataLen = am.Length
		n.timers.Sending = msg.Length
		n.pendingOutType = msg.Type
		medium.Add(Transmission{StartTick: now + 1, Msg: msg})
		n.fire(evSendQueued)
	}
}

func (n *Node) stepSending(now int, medium *Medium) {
	n.timers.Sending--
	if n.timers.Sending > 0 {
		return
	}

	switch n.pendingOutType {
	case MsgAck, MsgBroadcast:
		n.fire(evSentNoAnswer)
	case MsgData:
		n.timers.WaitForAck = 2 * (n.TransceiveRange + n.pendingDataLen)
		n.fire(evSentAwaiting)
	case MsgRTS:
		n.timers.WaitForCts = 2 * (n.TransceiveRange + n.pendingDataLen)
		n.fire(evSentAwaiting)
	case MsgCTS:
		n.timers.WaitForData = 2 * (n.TransceiveRange + n.pendingDataLen + SmallMargin)
		n.fire(evSentAwaiting)
	default:
		mustNotHappen("node %d: finished sending unknown message type %v", n.ID, n.pendingOutType)
	}
}

func (n *Node) stepReceiving(now int, medium *Medium) {
	arriving := medium.ArrivingNow(n.ID, now)
	var collides bool
	for _, t := range arriving {
		if n.latched != nil && t.Msg.Src == n.latched.Src && t.Msg.Seq == n.latched.Seq {
			continue
		}
		collides = true
	}

	if collides {
		n.collisionCounter++
		consumed := n.latched.Length - n.timers.Receiving
		n.timers.Receiving = 0
		n.latched = nil
		n.creditAndReturn(consumed, evCollideToWait, evCollideToBackoff, evCollideToIdle)
		return
	}

	n.timers.Receiving--
	if n.timers.Receiving > 0 {
		return
	}
	m := *n.latched
	n.latched = nil
	n.processReceived(now, medium, m)
}

// creditAndReturn deducts amount from whichever wait timer is active
// (or the MAC backoff counter) and fires the matching transition, or
// returns to Idle if nothing was waiting. Shared by mid-Receiving
// collisions, foreign-addressed arrivals, and self-addressed arrivals
// that don't match the state currently waited for — in every case
// the rule is the same: credit back the ticks spent, resume whatever
// was interrupted.
func (n *Node) creditAndReturn(amount int, toWait, toBackoff, toIdle string) {
	switch {
	case n.timers.WaitForAck > 0:
		n.timers.WaitForAck -= amount
		n.fire(toWait)
	case n.timers.WaitForCts > 0:
		n.timers.WaitForCts -= amount
		n.fire(toWait)
	case n.timers.WaitForData > 0:
		n.timers.WaitForData -= amount
		n.fire(toWait)
	case n.mac.Backoff > 0:
		n.mac.Backoff -= amount
		n.fire(toBackoff)
	default:
		n.fire(toIdle)
	}
}

func (n *Node) processReceived(now int, medium *Medium, m Msg) {
	if n.Protocol == ProtocolRTSCTS && (m.Type == MsgRTS || m.Type == MsgCTS) && !m.IsAddressedTo(n.ID) {
		n.enterVirtualCarrierWait(m)
		return
	}
	if !m.IsAddressedTo(n.ID) {
		n.creditAndReturn(m.Length, evRecvToWait, evRecvToBackoff, evRecvToIdle)
		return
	}

	switch m.Type {
	case MsgData:
		n.processData(now, medium, m)
	case MsgAck:
		n.processAck(m)
	case MsgRTS:
		n.processRTS(now, medium, m)
	case MsgCTS:
		n.processCTS(now, medium, m)
	case MsgBroadcast:
		n.processBroadcast(m)
	default:
		mustNotHappen("node %d: received unknown message type %v", n.ID, m.Type)
	}
}

// enterVirtualCarrierWait handles an overheard RTS/CTS not addressed
// to this node: extend the existing virtual-carrier countdown rather
// than replace it if one is already running longer.
func (n *Node) enterVirtualCarrierWait(m Msg) {
	var vc int
	switch m.Type {
	case MsgRTS:
		d, _, err := DecodeRTSPayload(m.Payload)
		if err != nil {
			mustNotHappen("node %d: %v", n.ID, err)
		}
		vc = d
	case MsgCTS:
		d, err := DecodeCTSPayload(m.Payload)
		if err != nil {
			mustNotHappen("node %d: %v", n.ID, err)
		}
		vc = d
	}
	if vc > n.timers.VirtualCarrier {
		n.timers.VirtualCarrier = vc
	}
	n.fire(evRecvToVC)
}

// processData handles a DATA message addressed to this node: if we are
// ourselves mid DATA->ACK wait, this cannot be our expected ACK (wrong
// type), so credit the ticks back and keep waiting. Otherwise latch it
// for the driver to hand to Routing and answer with an ACK.
func (n *Node) processData(now int, medium *Medium, m Msg) {
	if n.timers.WaitForAck > 0 {
		n.timers.WaitForAck -= m.Length
		n.fire(evRecvToWait)
		return
	}
	n.timers.WaitForData = 0
	n.Delivered = &m
	ack := n.mac.MakeAck(n.ID, m.Src)
	n.emit(now, medium, ack, evRecvToSending)
}

// processAck completes a DATA round trip: pop the send queue entry
// that earned this ACK and reset the backoff window. It does not touch
// Delivered — the receiver's processData already surfaced the payload
// at DATA-arrival time (see SPEC_FULL.md for why the receiver, not the
// sender, owns that signal).
func (n *Node) processAck(m Msg) {
	if len(n.sendQueue) > 0 {
		n.sendQueue = n.sendQueue[1:]
	}
	n.timers.WaitForAck = 0
	n.mac.ResetMaxBackoff()
	n.fire(evRecvToIdle)
}

// processRTS answers an RTS addressed to us with a CTS, unless we are
// ourselves mid-wait for something else, in which case we credit the
// ticks back and keep waiting.
func (n *Node) processRTS(now int, medium *Medium, m Msg) {
	if n.timers.WaitForAck > 0 || n.timers.WaitForCts > 0 || n.timers.WaitForData > 0 {
		n.creditAndReturn(m.Length, evRecvToWait, evRecvToBackoff, evRecvToIdle)
		return
	}
	vc, dataLen, err := DecodeRTSPayload(m.Payload)
	if err != nil {
		mustNotHappen("node %d: received malformed RTS: %v", n.ID, err)
	}
	_ = vc
	n.pendingDataLen = dataLen
	distance := n.distanceTo(m.Src)
	cts := n.mac.MakeCTS(n.ID, m.Src, distance, dataLen)
	n.emit(now, medium, cts, evRecvToSending)
}

// processCTS builds and sends the DATA message an outstanding RTS
// cleared the channel for, or credits the ticks back if this CTS
// doesn't match what we're waiting on.
func (n *Node) processCTS(now int, medium *Medium, m Msg) {
	if n.timers.WaitForCts > 0 && len(n.sendQueue) > 0 {
		am := n.sendQueue[0]
		n.timers.WaitForCts = 0
		data := n.mac.MakeData(n.ID, am)
		n.emit(now, medium, data, evRecvToSending)
		return
	}
	n.creditAndReturn(m.Length, evRecvToWait, evRecvToBackoff, evRecvToIdle)
}

// processBroadcast surfaces a DSDV advertisement to the driver; a
// BROADCAST is never ACKed, so we return straight to Idle.
func (n *Node) processBroadcast(m Msg) {
	n.Delivered = &m
	n.fire(evRecvToIdle)
}

func (n *Node) stepWaitingForAnswer(now int, medium *Medium) {
	if n.checkArrival(now, medium) {
		return
	}
	switch {
	case n.timers.WaitForAck > 0:
		n.timers.WaitForAck--
		if n.timers.WaitForAck == 0 {
			n.mac.SetBackoff()
			n.fire(evWaitExpired)
		}
	case n.timers.WaitForCts > 0:
		n.timers.WaitForCts--
		if n.timers.WaitForCts == 0 {
			n.mac.SetBackoff()
			n.fire(evWaitExpired)
		}
	case n.timers.WaitForData > 0:
		n.timers.WaitForData--
		if n.timers.WaitForData == 0 {
			n.mac.SetBackoff()
			n.fire(evWaitExpired)
		}
	default:
		mustNotHappen("node %d: waiting_for_answer with no active wait timer", n.ID)
	}
}

func (n *Node) stepBackingOff(now int, medium *Medium) {
	if n.checkArrival(now, medium) {
		return
	}
	n.mac.Backoff--
	if n.mac.Backoff <= 0 {
		n.fire(evBackoffExpired)
	}
}

func (n *Node) stepVirtualCarrierWait(now int, medium *Medium) {
	if n.checkArrival(now, medium) {
		return
	}
	n.timers.VirtualCarrier--
	if n.timers.VirtualCarrier <= 0 {
		n.timers.VirtualCarrier = 0
		if n.mac.Backoff > 0 {
			n.fire(evVCToBackoff)
		} else {
			n.fire(evVCToIdle)
		}
	}
}
