package sim

import (
	"encoding/binary"
	"fmt"
)

// NodeID identifies a node. BroadcastID is the reserved destination
// used by BROADCAST messages; it never names a real node.
type NodeID int

// BroadcastID is the reserved destination address for BROADCAST
// messages.
const BroadcastID NodeID = -1

// MsgType tags the variant carried by a Msg.
type MsgType int

const (
	MsgData MsgType = iota
	MsgRTS
	MsgCTS
	MsgAck
	MsgBroadcast
)

func (t MsgType) String() string {
	switch t {
	case MsgData:
		return "DATA"
	case MsgRTS:
		return "RTS"
	case MsgCTS:
		return "CTS"
	case MsgAck:
		return "ACK"
	case MsgBroadcast:
		return "BROADCAST"
	default:
		return fmt.Sprintf("MsgType(%d)", int(t))
	}
}

// AppMsg is an application-level message: the unit routing and the
// MAC layer buffer, as opposed to the wire-level Msg they eventually
// produce. RouteTarget/RouteSource are populated once routing has
// attached its envelope (see routing.go); a zero AppMsg (no envelope)
// is a message fresh off the send schedule.
type AppMsg struct {
	Target  NodeID
	Content string
	Length  int

	HasRoute    bool
	RouteTarget NodeID
	RouteSource NodeID
	// NextHop is the wire-level destination routing chose; it may
	// differ from RouteTarget when the message is forwarded.
	NextHop NodeID
	// Table carries a DSDV advertisement snapshot when Target ==
	// BroadcastID; nil otherwise.
	Table map[NodeID]DSDVEntry
	// Hops counts nodes that have forwarded this message so far,
	// excluding the originator. Carried through to the wire Msg so the
	// eventual final recipient can report it as a hop count metric.
	Hops int
}

// Msg is the wire-level message placed on the Medium. RTS carries its
// virtual-carrier duration and the length of the DATA it is clearing
// the channel for, packed into Payload; CTS carries only the
// virtual-carrier duration. Both are produced by mac.go and consumed
// by node.go — see DecodeRTSPayload/DecodeCTSPayload.
type Msg struct {
	Type    MsgType
	Seq     uint32
	Src     NodeID
	Dst     NodeID
	Length  int
	Payload []byte

	// Content/RouteTarget/RouteSource only matter for DATA/BROADCAST:
	// the application payload and routing envelope it carries.
	Content     string
	RouteTarget NodeID
	RouteSource NodeID
	// Table is the DSDV advertisement carried by a BROADCAST message.
	Table map[NodeID]DSDVEntry
	// Hops is copied from the originating AppMsg and incremented by
	// every intermediate forward (see routing.go's Reply).
	Hops int
}

// IsAddressedTo reports whether m is directed at id, treating
// BROADCAST as addressed to everyone.
func (m Msg) IsAddressedTo(id NodeID) bool {
	return m.Dst == id || m.Dst == BroadcastID
}

// EncodeRTSPayload packs the virtual-carrier duration and the length
// of the DATA message the RTS is clearing the channel for, as two
// big-endian uint32 fields.
func EncodeRTSPayload(virtualCarrier, dataLength int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint32(b[0:4], uint32(virtualCarrier))
	binary.BigEndian.PutUint32(b[4:8], uint32(dataLength))
	return b
}

// DecodeRTSPayload is the inverse of EncodeRTSPayload. A payload that
// does not parse into the two expected fields is a programmer error:
// callers that received it from mac.go should never see the error
// branch in practice; node.go treats it as an invariant violation if
// it does.
func DecodeRTSPayload(payload []byte) (virtualCarrier, dataLength int, err error) {
	if len(payload) != 8 {
		return 0, 0, fmt.Errorf("malformed RTS payload: want 8 bytes, got %d", len(payload))
	}
	return int(binary.BigEndian.Uint32(payload[0:4])), int(binary.BigEndian.Uint32(payload[4:8])), nil
}

// EncodeCTSPayload packs the virtual-carrier duration a CTS clears.
func EncodeCTSPayload(virtualCarrier int) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(virtualCarrier))
	return b
}

// DecodeCTSPayload is the inverse of EncodeCTSPayload.
func DecodeCTSPayload(payload []byte) (virtualCarrier int, err error) {
	if len(payload) != 4 {
		return 0, fmt.Errorf("malformed CTS payload: want 4 bytes, got %d", len(payload))
	}
	return int(binary.BigEndian.Uint32(payload)), nil
}
