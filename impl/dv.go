package impl

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/encodeous/weft/state"
)

// DVRouter runs distance-vector routing with split horizon and poisoned
// reverse. Bad news from a neighbour wipes every route through that port
// before re-relaxing against the cached neighbour vectors, so the
// Bellman-Ford inequality cannot pin a dead route in place.
type DVRouter struct {
	addr          state.Addr
	heartbeat     int64
	lastBroadcast int64
	dv            state.DistanceVector
	fwd           map[state.Addr]state.Port
	neighbours    map[state.Port]*state.Neighbour
	out           PortSender
	log           *slog.Logger
}

func NewDVRouter(addr state.Addr, heartbeatMs int64, out PortSender, log *slog.Logger) *DVRouter {
	return &DVRouter{
		addr:       addr,
		heartbeat:  heartbeatMs,
		dv:         state.DistanceVector{addr: 0},
		fwd:        make(map[state.Addr]state.Port),
		neighbours: make(map[state.Port]*state.Neighbour),
		out:        out,
		log:        log,
	}
}

func (r *DVRouter) Addr() state.Addr { return r.addr }

func (r *DVRouter) HandleNewLink(port state.Port, addr state.Addr, cost state.Cost) {
	nb := &state.Neighbour{
		Addr: addr,
		Port: port,
		Cost: cost,
		Dv:   state.DistanceVector{addr: 0},
	}
	r.neighbours[port] = nb
	r.log.Debug("link up", "port", port, "neigh", addr, "cost", cost)
	if r.relax(nb) {
		r.broadcast()
	}
}

func (r *DVRouter) HandlePacket(port state.Port, pkt state.Packet) {
	if pkt.IsData() {
		if out, ok := r.fwd[pkt.Dst]; ok {
			r.out.Send(out, pkt)
		}
		return
	}

	nb, ok := r.neighbours[port]
	if !ok {
		panic(fmt.Sprintf("dv %s: routing packet on unbound port %d", r.addr, port))
	}
	upd, err := state.DecodeDvUpdate(pkt.Payload)
	if err != nil {
		r.log.Warn("dropping malformed dv update", "port", port, "err", err)
		return
	}
	if upd.Addr != nb.Addr {
		panic(fmt.Sprintf("dv %s: update from %s on port bound to %s", r.addr, upd.Addr, nb.Addr))
	}

	prev := nb.Dv
	nb.Dv = upd.Dv

	// A route through this neighbour got more expensive or vanished.
	// Purge everything learned through this port and rebuild from the
	// cached neighbour vectors, otherwise the old entry masks the loss.
	if badNews(prev, upd.Dv) {
		r.wipePort(port)
		r.broadcast()
		return
	}

	if r.relax(nb) {
		r.broadcast()
	}
}

func (r *DVRouter) HandleRemoveLink(port state.Port) {
	delete(r.neighbours, port)
	r.log.Debug("link down", "port", port)
	r.wipePort(port)
	r.broadcast()
}

func (r *DVRouter) HandleTime(nowMillis int64) {
	if r.lastBroadcast+r.heartbeat < nowMillis {
		r.broadcast()
		r.lastBroadcast = nowMillis
	}
}

func (r *DVRouter) DebugString() string {
	dump, _ := json.MarshalIndent(map[string]any{
		"dv":  r.dv,
		"fwd": r.fwd,
	}, "", "  ")
	return string(dump)
}

// relax applies the Bellman-Ford inequality against one neighbour's
// reported vector. Entries driven to INF or beyond are deleted on the
// spot, keeping dv and fwd consistent. Returns true if anything changed.
func (r *DVRouter) relax(nb *state.Neighbour) bool {
	updated := false
	for addr, cost := range nb.Dv {
		if cost >= state.INF {
			continue // a well-behaved peer never advertises these
		}
		proposed := cost + nb.Cost
		if r.dv.Get(addr) <= proposed {
			continue
		}
		r.dv[addr] = proposed
		r.fwd[addr] = nb.Port
		if proposed >= state.INF {
			delete(r.dv, addr)
			delete(r.fwd, addr)
		}
		updated = true
	}
	return updated
}

// badNews reports whether a neighbour's fresh vector withdraws or worsens
// anything it previously advertised. Good news never wipes.
func badNews(prev, next state.DistanceVector) bool {
	for addr, cost := range prev {
		if c, ok := next[addr]; !ok || c > cost {
			return true
		}
	}
	return false
}

// wipePort drops every route installed through port, then re-relaxes
// against all remaining neighbour vectors.
func (r *DVRouter) wipePort(port state.Port) {
	for addr, p := range r.fwd {
		if p == port {
			delete(r.fwd, addr)
			delete(r.dv, addr)
		}
	}
	for _, nb := range r.neighbours {
		r.relax(nb)
	}
}

// broadcast sends the current vector to every neighbour. Poisoned
// reverse: entries forwarded through the receiving neighbour are filtered
// out while serializing; receivers treat absence as INF.
func (r *DVRouter) broadcast() {
	for _, nb := range r.neighbours {
		trimmed := make(state.DistanceVector, len(r.dv))
		for addr, cost := range r.dv {
			if p, ok := r.fwd[addr]; ok && p == nb.Port {
				continue
			}
			trimmed[addr] = cost
		}
		payload, err := state.EncodeDvUpdate(state.DvUpdate{Addr: r.addr, Dv: trimmed})
		if err != nil {
			r.log.Error("encode dv update", "err", err)
			return
		}
		r.out.Send(nb.Port, state.Packet{
			Kind:    state.KindRouting,
			Src:     r.addr,
			Dst:     nb.Addr,
			Payload: payload,
		})
	}
}
