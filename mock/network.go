package mock

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/encodeous/weft/impl"
	"github.com/encodeous/weft/state"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

// Probe is one traceroute packet in flight through the mock network.
type Probe struct {
	Id   uuid.UUID
	From state.Addr
	To   state.Addr
}

type link struct {
	peer     state.Addr
	peerPort state.Port
	cost     state.Cost
}

type delivery struct {
	to   state.Addr
	port state.Port
	pkt  state.Packet
}

// Network is an in-memory substrate standing in for the course
// simulator. It owns every router's links, serializes event delivery on
// the caller's goroutine, and keeps the millisecond clock.
type Network struct {
	log     *slog.Logger
	routers map[state.Addr]impl.Router
	links   map[state.Addr]map[state.Port]link
	nextPrt map[state.Addr]state.Port
	queue   []delivery
	clock   int64

	rng  *rand.Rand
	loss float64
	dup  float64

	// outstanding probes; expiry means the probe was lost in transit
	probes  *ttlcache.Cache[uuid.UUID, Probe]
	arrived map[uuid.UUID]bool
}

// New builds a network of routers for the scenario's node set. The
// protocol selects the automaton and the scenario's initial links are
// brought up here; events are applied by Run or manually by the caller.
func New(cfg state.ScenarioCfg, log *slog.Logger) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := &Network{
		log:     log,
		routers: make(map[state.Addr]impl.Router),
		links:   make(map[state.Addr]map[state.Port]link),
		nextPrt: make(map[state.Addr]state.Port),
		rng:     rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b9)),
		loss:    cfg.Loss,
		dup:     cfg.Duplicate,
		probes: ttlcache.New[uuid.UUID, Probe](
			ttlcache.WithTTL[uuid.UUID, Probe](state.ProbeTTL),
			ttlcache.WithDisableTouchOnHit[uuid.UUID, Probe](),
		),
		arrived: make(map[uuid.UUID]bool),
	}
	n.probes.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[uuid.UUID, Probe]) {
		if reason == ttlcache.EvictionReasonExpired {
			p := item.Value()
			log.Warn("probe lost", "id", p.Id, "from", p.From, "to", p.To)
		}
	})
	go n.probes.Start()
	for _, addr := range cfg.Nodes {
		var r impl.Router
		out := portSender{n: n, addr: addr}
		rlog := log.With("node", addr)
		switch cfg.Protocol {
		case state.ProtocolDV:
			r = impl.NewDVRouter(addr, cfg.HeartbeatMs, out, rlog)
		case state.ProtocolLS:
			r = impl.NewLSRouter(addr, cfg.HeartbeatMs, out, rlog)
		default:
			return nil, fmt.Errorf("unknown protocol %q", cfg.Protocol)
		}
		n.routers[addr] = r
		n.links[addr] = make(map[state.Port]link)
		n.nextPrt[addr] = 1
	}
	for _, l := range cfg.Links {
		n.AddLink(l.A, l.B, l.Cost)
	}
	return n, nil
}

// portSender queues a router's outbound packet on the network, applying
// the loss and duplication model at the sending edge.
type portSender struct {
	n    *Network
	addr state.Addr
}

func (ps portSender) Send(port state.Port, pkt state.Packet) {
	ps.n.enqueue(ps.addr, port, pkt)
}

func (n *Network) enqueue(from state.Addr, port state.Port, pkt state.Packet) {
	end, ok := n.links[from][port]
	if !ok {
		return // link died with the packet on the wire
	}
	if n.rng.Float64() < n.loss {
		return
	}
	d := delivery{to: end.peer, port: end.peerPort, pkt: pkt}
	n.queue = append(n.queue, d)
	if n.rng.Float64() < n.dup {
		n.queue = append(n.queue, d)
	}
}

// AddLink brings up a bidirectional link and notifies both ends.
func (n *Network) AddLink(a, b state.Addr, cost state.Cost) {
	ap := n.nextPrt[a]
	bp := n.nextPrt[b]
	n.nextPrt[a]++
	n.nextPrt[b]++
	n.links[a][ap] = link{peer: b, peerPort: bp, cost: cost}
	n.links[b][bp] = link{peer: a, peerPort: ap, cost: cost}
	n.routers[a].HandleNewLink(ap, b, cost)
	n.routers[b].HandleNewLink(bp, a, cost)
	n.drain()
}

// RemoveLink tears down the link between a and b, if one exists.
func (n *Network) RemoveLink(a, b state.Addr) {
	for port, l := range n.links[a] {
		if l.peer != b {
			continue
		}
		delete(n.links[a], port)
		delete(n.links[b], l.peerPort)
		n.routers[a].HandleRemoveLink(port)
		n.routers[b].HandleRemoveLink(l.peerPort)
		n.drain()
		return
	}
}

// Tick advances the clock and fires every router's timer.
func (n *Network) Tick(deltaMillis int64) {
	n.clock += deltaMillis
	for _, addr := range n.sortedAddrs() {
		n.routers[addr].HandleTime(n.clock)
	}
	n.drain()
}

// Now returns the current simulated time in milliseconds.
func (n *Network) Now() int64 { return n.clock }

// SendProbe injects a traceroute packet at from, addressed to to. The
// probe is tracked until it arrives or its TTL expires.
func (n *Network) SendProbe(from, to state.Addr) uuid.UUID {
	p := Probe{Id: uuid.New(), From: from, To: to}
	n.probes.Set(p.Id, p, ttlcache.DefaultTTL)
	pkt := state.Packet{Kind: state.KindData, Src: from, Dst: to, Payload: p.Id[:]}
	n.routers[from].HandlePacket(0, pkt)
	n.drain()
	return p.Id
}

// Delivered reports whether the probe reached its destination.
func (n *Network) Delivered(id uuid.UUID) bool { return n.arrived[id] }

// Close releases the probe tracker.
func (n *Network) Close() { n.probes.Stop() }

// drain delivers queued packets one at a time until the network is
// quiet. A data packet addressed to the receiving node terminates there;
// everything else, routing packets included, is handed to the router.
func (n *Network) drain() {
	for len(n.queue) > 0 {
		d := n.queue[0]
		n.queue = n.queue[1:]
		if d.pkt.IsData() && d.pkt.Dst == d.to {
			if id, err := uuid.FromBytes(d.pkt.Payload); err == nil {
				if item := n.probes.Get(id); item != nil {
					n.arrived[id] = true
					n.probes.Delete(id)
					n.log.Debug("probe delivered", "id", id, "at", d.to)
				}
			}
			continue
		}
		n.routers[d.to].HandlePacket(d.port, d.pkt)
	}
}

// Run executes the scenario script: timed link churn and probes,
// interleaved with heartbeat ticks until the configured duration.
func (n *Network) Run(cfg state.ScenarioCfg) {
	events := make([]state.EventCfg, len(cfg.Events))
	copy(events, cfg.Events)
	sort.SliceStable(events, func(i, j int) bool { return events[i].AtMillis < events[j].AtMillis })

	step := cfg.HeartbeatMs / 4
	if step == 0 {
		step = 1
	}
	next := 0
	for n.clock < cfg.DurationMs {
		for next < len(events) && events[next].AtMillis <= n.clock {
			n.apply(events[next])
			next++
		}
		n.Tick(step)
	}
	for next < len(events) {
		n.apply(events[next])
		next++
	}
}

func (n *Network) apply(ev state.EventCfg) {
	switch {
	case ev.Add != nil:
		n.log.Info("scenario: add link", "a", ev.Add.A, "b", ev.Add.B, "cost", ev.Add.Cost)
		n.AddLink(ev.Add.A, ev.Add.B, ev.Add.Cost)
	case ev.Remove != nil:
		n.log.Info("scenario: remove link", "a", ev.Remove.A, "b", ev.Remove.B)
		n.RemoveLink(ev.Remove.A, ev.Remove.B)
	case ev.Trace != nil:
		n.log.Info("scenario: probe", "from", ev.Trace.From, "to", ev.Trace.To)
		n.SendProbe(ev.Trace.From, ev.Trace.To)
	}
}

// DebugString dumps every router's snapshot, for the sim command and for
// eyeballing failed tests.
func (n *Network) DebugString() string {
	var b strings.Builder
	for _, addr := range n.sortedAddrs() {
		fmt.Fprintf(&b, "=== %s ===\n%s\n", addr, n.routers[addr].DebugString())
	}
	return b.String()
}

func (n *Network) sortedAddrs() []state.Addr {
	addrs := make([]state.Addr, 0, len(n.routers))
	for addr := range n.routers {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}
