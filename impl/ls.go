package impl

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/encodeous/weft/state"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// LSRouter runs link-state routing: every change to a local link is
// flooded as a versioned advertisement, every accepted advertisement is
// applied to a directed weighted graph of the whole network, and the
// forwarding table is rebuilt from a Dijkstra pass rooted at this node.
type LSRouter struct {
	addr          state.Addr
	heartbeat     int64
	lastBroadcast int64
	nextPacketId  uint64

	g     *simple.WeightedDirectedGraph
	ids   map[state.Addr]int64
	addrs map[int64]state.Addr

	// live local links and the highest advertisement id accepted per
	// origin; lastSeen is monotone for the lifetime of the router
	ports    map[state.Addr]state.Port
	lastSeen map[state.Addr]uint64

	fwd map[state.Addr]state.Port
	out PortSender
	log *slog.Logger
}

func NewLSRouter(addr state.Addr, heartbeatMs int64, out PortSender, log *slog.Logger) *LSRouter {
	r := &LSRouter{
		addr:      addr,
		heartbeat: heartbeatMs,
		g:         simple.NewWeightedDirectedGraph(0, math.Inf(1)),
		ids:       make(map[state.Addr]int64),
		addrs:     make(map[int64]state.Addr),
		ports:     make(map[state.Addr]state.Port),
		lastSeen:  make(map[state.Addr]uint64),
		fwd:       make(map[state.Addr]state.Port),
		out:       out,
		log:       log,
	}
	r.node(addr)
	return r
}

func (r *LSRouter) Addr() state.Addr { return r.addr }

func (r *LSRouter) HandleNewLink(port state.Port, addr state.Addr, cost state.Cost) {
	r.ports[addr] = port
	r.setEdge(r.addr, addr, cost)
	r.log.Debug("link up", "port", port, "neigh", addr, "cost", cost)
	r.recompute()
	r.floodSelf()
}

func (r *LSRouter) HandlePacket(port state.Port, pkt state.Packet) {
	if pkt.IsData() {
		if out, ok := r.fwd[pkt.Dst]; ok {
			r.out.Send(out, pkt)
		}
		return
	}

	adv, err := state.DecodeLsAdvertisement(pkt.Payload)
	if err != nil {
		r.log.Warn("dropping malformed lsa", "port", port, "err", err)
		return
	}
	if adv.SourceAddr == r.addr {
		return
	}
	if last, ok := r.lastSeen[adv.SourceAddr]; ok && adv.PacketId <= last {
		// stale or duplicate flood copy
		return
	}
	r.lastSeen[adv.SourceAddr] = adv.PacketId

	for _, nb := range adv.LsNeighbors {
		if nb.Cost == state.INF {
			r.removeEdge(adv.SourceAddr, nb.Addr)
		} else {
			r.setEdge(adv.SourceAddr, nb.Addr, nb.Cost)
		}
	}
	r.recompute()

	// controlled flooding: relay the advertisement bytes untouched to
	// every live link except the one it arrived on
	for _, out := range r.ports {
		if out == port {
			continue
		}
		r.out.Send(out, pkt)
	}
}

func (r *LSRouter) HandleRemoveLink(port state.Port) {
	var dead state.Addr
	found := false
	for addr, p := range r.ports {
		if p == port {
			dead = addr
			found = true
			break
		}
	}
	if !found {
		panic(fmt.Sprintf("ls %s: remove on unbound port %d", r.addr, port))
	}

	// advertise the retraction first so peers drop the edge, then take
	// it out of the local graph
	r.setEdge(r.addr, dead, state.INF)
	r.floodSelf()

	r.removeEdge(r.addr, dead)
	delete(r.ports, dead)
	r.log.Debug("link down", "port", port, "neigh", dead)
	r.recompute()
}

func (r *LSRouter) HandleTime(nowMillis int64) {
	if nowMillis-r.lastBroadcast >= r.heartbeat {
		r.lastBroadcast = nowMillis
		r.floodSelf()
	}
}

func (r *LSRouter) DebugString() string {
	edges := make(map[string]state.Cost)
	it := r.g.WeightedEdges()
	for it.Next() {
		e := it.WeightedEdge()
		key := fmt.Sprintf("%s->%s", r.addrs[e.From().ID()], r.addrs[e.To().ID()])
		edges[key] = state.Cost(e.Weight())
	}
	dump, _ := json.MarshalIndent(map[string]any{
		"fwd":       r.fwd,
		"edges":     edges,
		"last_seen": r.lastSeen,
	}, "", "  ")
	return string(dump)
}

// node returns the graph node for addr, creating it on first sight. An
// advertisement may reference an origin before any of its own LSAs have
// been seen.
func (r *LSRouter) node(addr state.Addr) graph.Node {
	if id, ok := r.ids[addr]; ok {
		return r.g.Node(id)
	}
	n := r.g.NewNode()
	r.g.AddNode(n)
	r.ids[addr] = n.ID()
	r.addrs[n.ID()] = addr
	return n
}

func (r *LSRouter) setEdge(from, to state.Addr, cost state.Cost) {
	r.g.SetWeightedEdge(r.g.NewWeightedEdge(r.node(from), r.node(to), float64(cost)))
}

func (r *LSRouter) removeEdge(from, to state.Addr) {
	fid, ok1 := r.ids[from]
	tid, ok2 := r.ids[to]
	if ok1 && ok2 {
		r.g.RemoveEdge(fid, tid)
	}
}

func (r *LSRouter) edgeCost(from, to state.Addr) state.Cost {
	e := r.g.WeightedEdge(r.ids[from], r.ids[to])
	if e == nil {
		panic(fmt.Sprintf("ls %s: missing edge %s->%s", r.addr, from, to))
	}
	return state.Cost(e.Weight())
}

// floodSelf originates a fresh advertisement of this node's direct links
// and sends it on every live port.
func (r *LSRouter) floodSelf() {
	nbs := make([]state.LsNeighbor, 0, len(r.ports))
	for addr := range r.ports {
		nbs = append(nbs, state.LsNeighbor{Addr: addr, Cost: r.edgeCost(r.addr, addr)})
	}
	sort.Slice(nbs, func(i, j int) bool { return nbs[i].Addr < nbs[j].Addr })

	adv := state.LsAdvertisement{
		SourceAddr:  r.addr,
		PacketId:    r.nextPacketId,
		LsNeighbors: nbs,
	}
	r.nextPacketId++

	payload, err := state.EncodeLsAdvertisement(adv)
	if err != nil {
		r.log.Error("encode lsa", "err", err)
		return
	}
	for addr, out := range r.ports {
		r.out.Send(out, state.Packet{
			Kind:    state.KindRouting,
			Src:     r.addr,
			Dst:     addr,
			Payload: payload,
		})
	}
}

// recompute rebuilds the forwarding table from a shortest-path pass
// rooted at this node. Each reachable destination forwards on the local
// port of the first hop; paths of aggregate cost >= INF are not
// installed.
func (r *LSRouter) recompute() {
	fwd := make(map[state.Addr]state.Port)
	sp := path.DijkstraFrom(r.g.Node(r.ids[r.addr]), r.g)
	for id, addr := range r.addrs {
		if addr == r.addr {
			continue
		}
		nodes, cost := sp.To(id)
		if math.IsInf(cost, 1) || cost >= float64(state.INF) || len(nodes) < 2 {
			continue
		}
		hop := r.addrs[nodes[1].ID()]
		port, ok := r.ports[hop]
		if !ok {
			continue
		}
		fwd[addr] = port
	}
	r.fwd = fwd
}
