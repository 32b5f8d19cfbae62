package mock

import (
	"github.com/encodeous/weft/state"
)

// LineScenario is the three-node chain used throughout the tests:
// bob --1-- jeb --1-- kat
func LineScenario(protocol state.Protocol) state.ScenarioCfg {
	return state.ScenarioCfg{
		Protocol:    protocol,
		HeartbeatMs: 1000,
		DurationMs:  10000,
		Nodes:       []state.Addr{"bob", "jeb", "kat"},
		Links: []state.LinkCfg{
			{A: "bob", B: "jeb", Cost: 1},
			{A: "jeb", B: "kat", Cost: 1},
		},
	}
}

// MeshScenario is a five-node network with one expensive shortcut, so
// shortest paths are not just hop counts.
func MeshScenario(protocol state.Protocol) state.ScenarioCfg {
	return state.ScenarioCfg{
		Protocol:    protocol,
		HeartbeatMs: 1000,
		DurationMs:  15000,
		Nodes:       []state.Addr{"bob", "jeb", "kat", "eve", "ada"},
		Links: []state.LinkCfg{
			{A: "bob", B: "jeb", Cost: 1},
			{A: "bob", B: "kat", Cost: 1},
			{A: "bob", B: "eve", Cost: 10},
			{A: "jeb", B: "kat", Cost: 1},
			{A: "kat", B: "ada", Cost: 1},
			{A: "kat", B: "eve", Cost: 1},
			{A: "eve", B: "ada", Cost: 2},
		},
	}
}
