// Package scenario parses a TOML scenario description into a
// ScenarioConfig and builds a ready-to-run sim.Simulator from it.
package scenario

import (
	"fmt"
	"hash/fnv"
	"math/rand"

	"github.com/go-kit/kit/log"
	"github.com/pelletier/go-toml"

	"github.com/adhocsim/macsim/sim"
)

// NodeConfig is one [[node]] table entry in a scenario file.
type NodeConfig struct {
	ID NodeIDInt
	X  float64
	Y  float64
}

// NodeIDInt is the TOML-facing node identifier type: a plain int,
// converted to sim.NodeID when NewSimulator builds the nodes.
type NodeIDInt = int

// ScheduleEntryConfig is one [[schedule]] table entry: inject an
// application message from source_id at tick, targeted at target_id.
type ScheduleEntryConfig struct {
	Tick     int
	SourceID NodeIDInt
	TargetID NodeIDInt
	Content  string
	Length   int
}

// ScenarioConfig is the fully parsed, validated scenario description:
// node topology, schedule, and the protocol/backoff/seed parameters a
// reproducible run needs.
type ScenarioConfig struct {
	Name            string
	Radius          float64
	TransceiveRange int
	MaxBackoffCap   int
	TickCap         int
	Protocol        sim.Protocol
	Seed            int64

	Nodes    []NodeConfig
	Schedule []ScheduleEntryConfig
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}

func toString(v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected a string, got %T", v)
	}
	return s, nil
}

func toProtocol(v interface{}) (sim.Protocol, error) {
	s, err := toString(v)
	if err != nil {
		return 0, err
	}
	switch s {
	case "aloha":
		return sim.ProtocolALOHA, nil
	case "rts-cts":
		return sim.ProtocolRTSCTS, nil
	}
	return 0, fmt.Errorf("expected 'aloha' or 'rts-cts', got %q", s)
}

func newNodeConfig(nm map[string]interface{}) (NodeConfig, error) {
	var nc NodeConfig
	for k, v := range nm {
		var err error
		switch k {
		case "id":
			nc.ID, err = toInt(v)
		case "x":
			nc.X, err = toFloat(v)
		case "y":
			nc.Y, err = toFloat(v)
		default:
			return NodeConfig{}, fmt.Errorf("unrecognised node parameter %q", k)
		}
		if err != nil {
			return NodeConfig{}, fmt.Errorf("node.%v: %v", k, err)
		}
	}
	return nc, nil
}

func newScheduleEntry(sm map[string]interface{}) (ScheduleEntryConfig, error) {
	se := ScheduleEntryConfig{Length: 1}
	for k, v := range sm {
		var err error
		switch k {
		case "tick":
			se.Tick, err = toInt(v)
		case "source_id":
			se.SourceID, err = toInt(v)
		case "target_id":
			se.TargetID, err = toInt(v)
		case "content":
			se.Content, err = toString(v)
		case "length":
			se.Length, err = toInt(v)
		default:
			return ScheduleEntryConfig{}, fmt.Errorf("unrecognised schedule parameter %q", k)
		}
		if err != nil {
			return ScheduleEntryConfig{}, fmt.Errorf("schedule.%v: %v", k, err)
		}
	}
	return se, nil
}

func newScenarioConfig(cm map[string]interface{}) (*ScenarioConfig, error) {
	cfg := &ScenarioConfig{
		MaxBackoffCap: sim.DefaultMaxBackoffCap,
		TickCap:       sim.DefaultTickCap,
		Protocol:      sim.ProtocolALOHA,
	}

	for k, v := range cm {
		var err error
		switch k {
		case "name":
			cfg.Name, err = toString(v)
		case "radius":
			cfg.Radius, err = toFloat(v)
		case "transceive_range":
			cfg.TransceiveRange, err = toInt(v)
		case "max_backoff_cap":
			cfg.MaxBackoffCap, err = toInt(v)
		case "tick_cap":
			cfg.TickCap, err = toInt(v)
		case "protocol":
			cfg.Protocol, err = toProtocol(v)
		case "seed":
			var s int
			s, err = toInt(v)
			cfg.Seed = int64(s)
		case "node":
			err = cfg.loadNodes(v)
		case "schedule":
			err = cfg.loadSchedule(v)
		default:
			return nil, fmt.Errorf("unrecognised parameter %q", k)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to process %v: %v", k, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *ScenarioConfig) loadNodes(v interface{}) error {
	entries, ok := v.([]interface{})
	if !ok {
		return fmt.Errorf("node must be an array of tables, e.g. '[[node]]'")
	}
	for _, got := range entries {
		nm, ok := got.(map[string]interface{})
		if !ok {
			return fmt.Errorf("node entry isn't a table")
		}
		nc, err := newNodeConfig(nm)
		if err != nil {
			return err
		}
		cfg.Nodes = append(cfg.Nodes, nc)
	}
	return nil
}

func (cfg *ScenarioConfig) loadSchedule(v interface{}) error {
	entries, ok := v.([]interface{})
	if !ok {
		return fmt.Errorf("schedule must be an array of tables, e.g. '[[schedule]]'")
	}
	for _, got := range entries {
		sm, ok := got.(map[string]interface{})
		if !ok {
			return fmt.Errorf("schedule entry isn't a table")
		}
		se, err := newScheduleEntry(sm)
		if err != nil {
			return err
		}
		cfg.Schedule = append(cfg.Schedule, se)
	}
	return nil
}

// validate rejects malformed scenarios at load time rather than at
// tick time: duplicate node IDs, schedule entries naming unknown
// nodes, non-positive message lengths, negative coordinates.
func (cfg *ScenarioConfig) validate() error {
	if cfg.Name == "" {
		return fmt.Errorf("scenario must set 'name'")
	}
	if cfg.TransceiveRange <= 0 {
		return fmt.Errorf("transceive_range must be positive")
	}

	seen := make(map[int]bool, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		if seen[n.ID] {
			return fmt.Errorf("duplicate node id %d", n.ID)
		}
		seen[n.ID] = true
		if n.X < 0 || n.Y < 0 {
			return fmt.Errorf("node %d: coordinates must be non-negative", n.ID)
		}
	}

	for i, s := range cfg.Schedule {
		if !seen[s.SourceID] {
			return fmt.Errorf("schedule[%d]: unknown source_id %d", i, s.SourceID)
		}
		if s.TargetID != -1 && !seen[s.TargetID] {
			return fmt.Errorf("schedule[%d]: unknown target_id %d", i, s.TargetID)
		}
		if s.Length <= 0 {
			return fmt.Errorf("schedule[%d]: length must be positive", i)
		}
	}
	return nil
}

// LoadScenario parses and validates a scenario file.
func LoadScenario(path string) (*ScenarioConfig, error) {
	tree, err := toml.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load scenario file: %v", err)
	}
	return newScenarioConfig(tree.ToMap())
}

// LoadScenarioString parses and validates a scenario given as a TOML
// string, primarily for tests.
func LoadScenarioString(content string) (*ScenarioConfig, error) {
	tree, err := toml.Load(content)
	if err != nil {
		return nil, fmt.Errorf("failed to load scenario string: %v", err)
	}
	return newScenarioConfig(tree.ToMap())
}

// seedFromName derives a deterministic seed from the scenario name
// when Seed == 0, so a caller never has to pick one just to get a
// reproducible run.
func seedFromName(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}

// NewSimulator builds a sim.Simulator from the scenario: one node per
// [[node]] entry at its configured position, and the schedule
// translated into sim.ScheduleEntry values ready for Simulator.Run.
func (cfg *ScenarioConfig) NewSimulator(logger log.Logger) (*sim.Simulator, error) {
	seed := cfg.Seed
	if seed == 0 {
		seed = seedFromName(cfg.Name)
	}
	rng := rand.New(rand.NewSource(seed))

	s := sim.NewSimulator(cfg.Name, cfg.Radius, cfg.TransceiveRange, cfg.TickCap, rng, logger)

	for _, nc := range cfg.Nodes {
		s.AddNode(sim.NodeID(nc.ID), sim.Position{X: nc.X, Y: nc.Y}, cfg.Protocol, cfg.MaxBackoffCap)
	}

	entries := make([]sim.ScheduleEntry, 0, len(cfg.Schedule))
	for _, se := range cfg.Schedule {
		entries = append(entries, sim.ScheduleEntry{
			Tick:     se.Tick,
			SourceID: sim.NodeID(se.SourceID),
			Message: sim.AppMsg{
				Target:  sim.NodeID(se.TargetID),
				Content: se.Content,
				Length:  se.Length,
			},
		})
	}
	s.Schedule(entries)

	return s, nil
}
