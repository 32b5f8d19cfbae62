package impl

import (
	"log/slog"
	"testing"

	"github.com/encodeous/weft/state"
)

// recorder captures everything a router sends without delivering it.
type recorder struct {
	sent []sentPacket
}

type sentPacket struct {
	Port state.Port
	Pkt  state.Packet
}

func (r *recorder) Send(port state.Port, pkt state.Packet) {
	r.sent = append(r.sent, sentPacket{Port: port, Pkt: pkt})
}

func (r *recorder) take() []sentPacket {
	out := r.sent
	r.sent = nil
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fabric wires routers together and shuttles their traffic until the
// network is quiet, standing in for the course simulator's event loop.
type fabric struct {
	t        *testing.T
	routers  map[state.Addr]Router
	recs     map[state.Addr]*recorder
	links    map[state.Addr]map[state.Port]fabricEnd
	nextPort map[state.Addr]state.Port
}

type fabricEnd struct {
	addr state.Addr
	port state.Port
}

func newFabric(t *testing.T) *fabric {
	return &fabric{
		t:        t,
		routers:  make(map[state.Addr]Router),
		recs:     make(map[state.Addr]*recorder),
		links:    make(map[state.Addr]map[state.Port]fabricEnd),
		nextPort: make(map[state.Addr]state.Port),
	}
}

func (f *fabric) addDV(addr state.Addr, heartbeatMs int64) *DVRouter {
	rec := &recorder{}
	r := NewDVRouter(addr, heartbeatMs, rec, testLogger())
	f.register(addr, r, rec)
	return r
}

func (f *fabric) addLS(addr state.Addr, heartbeatMs int64) *LSRouter {
	rec := &recorder{}
	r := NewLSRouter(addr, heartbeatMs, rec, testLogger())
	f.register(addr, r, rec)
	return r
}

func (f *fabric) register(addr state.Addr, r Router, rec *recorder) {
	f.routers[addr] = r
	f.recs[addr] = rec
	f.links[addr] = make(map[state.Port]fabricEnd)
	f.nextPort[addr] = 1
}

func (f *fabric) connect(a, b state.Addr, cost state.Cost) {
	ap := f.nextPort[a]
	bp := f.nextPort[b]
	f.nextPort[a]++
	f.nextPort[b]++
	f.links[a][ap] = fabricEnd{addr: b, port: bp}
	f.links[b][bp] = fabricEnd{addr: a, port: ap}
	f.routers[a].HandleNewLink(ap, b, cost)
	f.routers[b].HandleNewLink(bp, a, cost)
	f.pump()
}

func (f *fabric) disconnect(a, b state.Addr) {
	for port, end := range f.links[a] {
		if end.addr != b {
			continue
		}
		delete(f.links[a], port)
		delete(f.links[b], end.port)
		f.routers[a].HandleRemoveLink(port)
		f.routers[b].HandleRemoveLink(end.port)
		f.pump()
		return
	}
	f.t.Fatalf("no link %s-%s", a, b)
}

func (f *fabric) tick(nowMillis int64) {
	for _, r := range f.routers {
		r.HandleTime(nowMillis)
	}
	f.pump()
}

// pump drains every recorder, delivering packets across links until no
// router has anything left to send. Delivery is serialized, one packet
// at a time, like the simulator contract requires.
func (f *fabric) pump() {
	type inFlight struct {
		to   state.Addr
		port state.Port
		pkt  state.Packet
	}
	queue := make([]inFlight, 0)
	collect := func(from state.Addr) {
		for _, s := range f.recs[from].take() {
			end, ok := f.links[from][s.Port]
			if !ok {
				continue // link dropped while the packet was queued
			}
			queue = append(queue, inFlight{to: end.addr, port: end.port, pkt: s.Pkt})
		}
	}
	for addr := range f.routers {
		collect(addr)
	}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		f.routers[next.to].HandlePacket(next.port, next.pkt)
		collect(next.to)
	}
}

// port returns a's local port for its link to b.
func (f *fabric) port(a, b state.Addr) state.Port {
	for port, end := range f.links[a] {
		if end.addr == b {
			return port
		}
	}
	f.t.Fatalf("no link %s-%s", a, b)
	return 0
}
