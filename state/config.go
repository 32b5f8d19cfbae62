package state

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

type Protocol string

const (
	ProtocolDV Protocol = "dv"
	ProtocolLS Protocol = "ls"
)

// LinkCfg declares a bidirectional link between two nodes.
type LinkCfg struct {
	A    Addr `yaml:"a"`
	B    Addr `yaml:"b"`
	Cost Cost `yaml:"cost"`
}

// TraceCfg injects a probe packet at From addressed to To.
type TraceCfg struct {
	From Addr `yaml:"from"`
	To   Addr `yaml:"to"`
}

// EventCfg is one entry in the scenario script. Exactly one of Add,
// Remove, Trace must be set.
type EventCfg struct {
	AtMillis int64     `yaml:"at_ms"`
	Add      *LinkCfg  `yaml:"add,omitempty"`
	Remove   *LinkCfg  `yaml:"remove,omitempty"`
	Trace    *TraceCfg `yaml:"trace,omitempty"`
}

// ScenarioCfg describes a full simulation run: the protocol under test,
// the initial topology, and a timed event script.
type ScenarioCfg struct {
	Protocol    Protocol   `yaml:"protocol"`
	HeartbeatMs int64      `yaml:"heartbeat_ms,omitempty"`
	DurationMs  int64      `yaml:"duration_ms,omitempty"`
	Nodes       []Addr     `yaml:"nodes"`
	Links       []LinkCfg  `yaml:"links"`
	Events      []EventCfg `yaml:"events,omitempty"`
	Seed        uint64     `yaml:"seed,omitempty"`
	Loss        float64    `yaml:"loss,omitempty"`
	Duplicate   float64    `yaml:"duplicate,omitempty"`
}

func LoadScenario(path string) (ScenarioCfg, error) {
	var cfg ScenarioCfg
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("scenario %s: %w", path, err)
	}
	return cfg, nil
}

func (c *ScenarioCfg) Validate() error {
	if c.Protocol != ProtocolDV && c.Protocol != ProtocolLS {
		return fmt.Errorf("unknown protocol %q", c.Protocol)
	}
	if len(c.Nodes) == 0 {
		return fmt.Errorf("no nodes declared")
	}
	if c.HeartbeatMs == 0 {
		c.HeartbeatMs = DefaultHeartbeat
	}
	if c.HeartbeatMs < 0 {
		return fmt.Errorf("heartbeat_ms must be positive")
	}
	if c.DurationMs == 0 {
		c.DurationMs = 10 * c.HeartbeatMs
	}
	if c.Loss < 0 || c.Loss >= 1 || c.Duplicate < 0 || c.Duplicate >= 1 {
		return fmt.Errorf("loss and duplicate must be in [0, 1)")
	}
	known := make(map[Addr]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if n == "" {
			return fmt.Errorf("empty node address")
		}
		if known[n] {
			return fmt.Errorf("duplicate node %q", n)
		}
		known[n] = true
	}
	checkLink := func(l *LinkCfg, needCost bool) error {
		if !known[l.A] || !known[l.B] {
			return fmt.Errorf("link %s-%s references unknown node", l.A, l.B)
		}
		if l.A == l.B {
			return fmt.Errorf("self link on %s", l.A)
		}
		if needCost && (l.Cost == 0 || l.Cost >= INF) {
			return fmt.Errorf("link %s-%s cost must be in [1, %d)", l.A, l.B, INF)
		}
		return nil
	}
	for i := range c.Links {
		if err := checkLink(&c.Links[i], true); err != nil {
			return err
		}
	}
	for i, ev := range c.Events {
		set := 0
		if ev.Add != nil {
			set++
			if err := checkLink(ev.Add, true); err != nil {
				return err
			}
		}
		if ev.Remove != nil {
			set++
			if err := checkLink(ev.Remove, false); err != nil {
				return err
			}
		}
		if ev.Trace != nil {
			set++
			if !known[ev.Trace.From] || !known[ev.Trace.To] {
				return fmt.Errorf("trace %s->%s references unknown node", ev.Trace.From, ev.Trace.To)
			}
		}
		if set != 1 {
			return fmt.Errorf("event %d must set exactly one of add, remove, trace", i)
		}
		if ev.AtMillis < 0 {
			return fmt.Errorf("event %d has negative at_ms", i)
		}
	}
	return nil
}
