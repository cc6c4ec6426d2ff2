// Package metrics implements the CSV result sink: one row per
// scenario run (MAC experiments) or one row per delivered message
// (routing experiments), written to the path the caller passes to
// Open. Open truncates an existing file at that path; rows are not
// appended to earlier runs' output, and the path is not derived from
// the scenario name.
//
// This is the one place the module falls back to the standard
// library's encoding/csv rather than an ecosystem dependency — see
// DESIGN.md.
package metrics

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// flushEvery bounds how long rows sit in memory before Close, so a
// tick-cap early termination still gets a best-effort flush.
const flushEvery = 64

// Kind selects which of the two documented row shapes a sink writes.
type Kind int

const (
	// KindMAC writes {simulation_time, collision_count} rows.
	KindMAC Kind = iota
	// KindRouting writes {established_tick, delivered_tick, hop_count} rows.
	KindRouting
)

// Sink is a buffered CSV writer implementing sim.MetricsSink. It is
// not safe for concurrent use; the driver calls it from its own
// single-threaded tick loop only.
type Sink struct {
	kind Kind

	f       *os.File
	w       *csv.Writer
	pending int
}

// Open creates (or truncates) path and writes kind's header row.
func Open(path string, kind Kind) (*Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open metrics sink %s: %w", path, err)
	}
	w := csv.NewWriter(f)

	var header []string
	switch kind {
	case KindMAC:
		header = []string{"simulation_time", "collision_count"}
	case KindRouting:
		header = []string{"established_tick", "delivered_tick", "hop_count"}
	default:
		f.Close()
		return nil, fmt.Errorf("unknown metrics kind %v", kind)
	}
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write metrics header: %w", err)
	}

	return &Sink{kind: kind, f: f, w: w}, nil
}

func (s *Sink) writeRow(cols []string) error {
	if err := s.w.Write(cols); err != nil {
		return fmt.Errorf("write metrics row: %w", err)
	}
	s.pending++
	if s.pending >= flushEvery {
		s.w.Flush()
		s.pending = 0
		return s.w.Error()
	}
	return nil
}

// WriteMAC appends a MAC-experiment row. The driver calls both
// WriteMAC and WriteRouting without knowing which shape a given sink
// was opened for (it shouldn't have to); a sink opened for the other
// shape silently ignores the call rather than erroring the whole run.
func (s *Sink) WriteMAC(simulationTime, collisionCount int) error {
	if s.kind != KindMAC {
		return nil
	}
	return s.writeRow([]string{
		strconv.Itoa(simulationTime),
		strconv.Itoa(collisionCount),
	})
}

// WriteRouting appends a routing-experiment row; see WriteMAC on why a
// kind mismatch is a silent no-op rather than an error.
func (s *Sink) WriteRouting(establishedTick, deliveredTick, hopCount int) error {
	if s.kind != KindRouting {
		return nil
	}
	return s.writeRow([]string{
		strconv.Itoa(establishedTick),
		strconv.Itoa(deliveredTick),
		strconv.Itoa(hopCount),
	})
}

// Close flushes any buffered rows and closes the underlying file.
func (s *Sink) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}
