package sim

import "math/rand"

// MacProtocol holds the per-node MAC state shared by both the ALOHA
// and RTS/CTS variants: the binary-exponential backoff counters, the
// monotonic sequence stream, and the packet factory methods. The
// random draws use a *rand.Rand owned by the simulator (sim/driver.go),
// never the process-global source, so scenarios reproduce exactly
// given the same seed.
type MacProtocol struct {
	Backoff       int
	MaxBackoff    int
	MinBackoff    int
	MaxBackoffCap int
	Seq           uint32

	rng *rand.Rand
}

// NewMacProtocol constructs a MacProtocol with the default starting
// backoff window and the given cap (see ScenarioConfig.MaxBackoffCap).
func NewMacProtocol(rng *rand.Rand, cap int) *MacProtocol {
	if cap <= 0 {
		cap = DefaultMaxBackoffCap
	}
	return &MacProtocol{
		MaxBackoff:    InitialMaxBackoff,
		MinBackoff:    MinBackoff,
		MaxBackoffCap: cap,
		rng:           rng,
	}
}

// SetBackoff draws a fresh Backoff uniformly from [MinBackoff,
// MaxBackoff], then doubles MaxBackoff towards MaxBackoffCap
// (binary-exponential backoff). Called on every unsuccessful DATA
// attempt (timer expiry into BackingOff).
func (m *MacProtocol) SetBackoff() {
	if m.MaxBackoff > m.MaxBackoffCap {
		m.MaxBackoff = m.MaxBackoffCap
	}
	span := m.MaxBackoff - m.MinBackoff + 1
	m.Backoff = m.MinBackoff + m.rng.Intn(span)
	if m.MaxBackoff < m.MaxBackoffCap {
		m.MaxBackoff *= 2
		if m.MaxBackoff > m.MaxBackoffCap {
			m.MaxBackoff = m.MaxBackoffCap
		}
	}
}

// ResetMaxBackoff restores MaxBackoff to its starting window. Called
// once a DATA message is finally ACKed.
func (m *MacProtocol) ResetMaxBackoff() {
	m.MaxBackoff = InitialMaxBackoff
}

func (m *MacProtocol) nextSeq() uint32 {
	m.Seq++
	return m.Seq
}

// MakeData builds a DATA Msg from the head of a node's send queue.
func (m *MacProtocol) MakeData(src NodeID, am AppMsg) Msg {
	dst := am.Target
	if am.HasRoute {
		dst = am.NextHop
	}
	return Msg{
		Type:        MsgData,
		Seq:         m.nextSeq(),
		Src:         src,
		Dst:         dst,
		Length:      am.Length,
		Content:     am.Content,
		RouteTarget: am.RouteTarget,
		RouteSource: am.RouteSource,
		Hops:        am.Hops,
	}
}

// MakeAck builds a one-tick ACK addressed back to the DATA's sender.
func (m *MacProtocol) MakeAck(src, dst NodeID) Msg {
	return Msg{
		Type:   MsgAck,
		Seq:    m.nextSeq(),
		Src:    src,
		Dst:    dst,
		Length: 1,
	}
}

// MakeBroadcast builds a BROADCAST Msg carrying a DSDV table
// advertisement.
func (m *MacProtocol) MakeBroadcast(src NodeID, table map[NodeID]DSDVEntry) Msg {
	return Msg{
		Type:   MsgBroadcast,
		Seq:    m.nextSeq(),
		Src:    src,
		Dst:    BroadcastID,
		Length: 1,
		Table:  table,
	}
}

// MakeRTS builds an RTS reserving the channel for a DATA transmission
// of dataLength ticks to a neighbor distance ticks away. The
// virtual-carrier duration 3*distance + dataLength + 2 covers RTS
// propagation, CTS, DATA and ACK round trips.
func (m *MacProtocol) MakeRTS(src, dst NodeID, distance, dataLength int) Msg {
	vc := 3*distance + dataLength + 2
	return Msg{
		Type:    MsgRTS,
		Seq:     m.nextSeq(),
		Src:     src,
		Dst:     dst,
		Length:  1,
		Payload: EncodeRTSPayload(vc, dataLength),
	}
}

// MakeCTS builds a CTS clearing the channel for the DATA the RTS
// described. virtual-carrier duration is 2*distance + dataLength + 1.
func (m *MacProtocol) MakeCTS(src, dst NodeID, distance, dataLength int) Msg {
	vc := 2*distance + dataLength + 1
	return Msg{
		Type:    MsgCTS,
		Seq:     m.nextSeq(),
		Src:     src,
		Dst:     dst,
		Length:  1,
		Payload: EncodeCTSPayload(vc),
	}
}
