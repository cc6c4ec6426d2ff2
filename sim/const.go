package sim

// Protocol-wide defaults: InitialMaxBackoff=16, MinBackoff=1,
// MaxBroadcastBackoff=200, DefaultMaxBackoffCap=1024 (configurable per
// scenario).
const (
	// MinBackoff is the smallest number of ticks set_backoff() can draw.
	MinBackoff = 1
	// InitialMaxBackoff is max_backoff's starting value, and the value
	// reset_max_backoff() restores it to after a successful ACK.
	InitialMaxBackoff = 16
	// DefaultMaxBackoffCap is the ceiling set_backoff() doubles max_backoff
	// towards. ScenarioConfig.MaxBackoffCap overrides this per run.
	DefaultMaxBackoffCap = 1024
	// MaxBroadcastBackoff is the upper bound of the uniform draw for a
	// node's next DSDV table broadcast.
	MaxBroadcastBackoff = 200
	// StalenessFactor expresses the staleness limit as a multiple of MaxBroadcastBackoff:
	// a row is withdrawn once its staleness counter exceeds
	// StalenessFactor*MaxBroadcastBackoff ticks without being refreshed.
	StalenessFactor = 4
	// DefaultTickCap is the hard stop applied when a scenario never
	// reaches quiescence.
	DefaultTickCap = 10000
	// SmallMargin pads wait_for_data's worst-case round trip budget.
	SmallMargin = 2
)

// State names the Node FSM's tagged variant. Declared as a string (not
// an iota) so the transition table in node.go can use it directly as
// both the transition key and a human-readable log field.
type State string

const (
	StateIdle               State = "idle"
	StateSending            State = "sending"
	StateReceiving          State = "receiving"
	StateBackingOff         State = "backing_off"
	StateWaitingForAnswer   State = "waiting_for_answer"
	StateVirtualCarrierWait State = "virtual_carrier_wait"
)

// Protocol selects which MAC variant a Node runs.
type Protocol int

const (
	ProtocolALOHA Protocol = iota
	ProtocolRTSCTS
)

func (p Protocol) String() string {
	switch p {
	case ProtocolALOHA:
		return "aloha"
	case ProtocolRTSCTS:
		return "rts-cts"
	default:
		return "unknown"
	}
}
