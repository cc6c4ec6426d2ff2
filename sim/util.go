package sim

import (
	"fmt"
	"math"
)

// Position is a node's location in the 2-D plane.
type Position struct {
	X, Y float64
}

// euclideanDistance returns the real-valued distance between a and b.
func euclideanDistance(a, b Position) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// FloorDistance returns the integer propagation delay in ticks between
// two positions: floor(euclidean distance).
func FloorDistance(a, b Position) int {
	return int(math.Floor(euclideanDistance(a, b)))
}

// mustNotHappen reports an invariant violation: an fsm transition with
// no table entry, a payload that doesn't decode, a waiting state with
// no active wait timer, an unknown message type. No caller checks for
// two wait timers being positive at the same time. These are
// programmer errors, not runtime conditions
// a caller can recover from, so they panic rather than returning an
// error.
func mustNotHappen(format string, args ...interface{}) {
	panic(fmt.Sprintf("invariant violation: "+format, args...))
}
