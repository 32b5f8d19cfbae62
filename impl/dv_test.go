package impl

import (
	"testing"

	"github.com/encodeous/weft/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeDv(t *testing.T, pkt state.Packet) state.DvUpdate {
	t.Helper()
	require.True(t, pkt.IsRouting())
	upd, err := state.DecodeDvUpdate(pkt.Payload)
	require.NoError(t, err)
	return upd
}

func TestDVTwoNodeLinkUp(t *testing.T) {
	// a --1-- b
	f := newFabric(t)
	a := f.addDV("a", 1000)
	b := f.addDV("b", 1000)
	f.connect("a", "b", 1)

	assert.Equal(t, state.DistanceVector{"a": 0, "b": 1}, a.dv)
	assert.Equal(t, state.DistanceVector{"b": 0, "a": 1}, b.dv)
	assert.Equal(t, f.port("a", "b"), a.fwd["b"])
	assert.Equal(t, f.port("b", "a"), b.fwd["a"])
}

func TestDVLinearConvergence(t *testing.T) {
	// a --1-- b --1-- c
	f := newFabric(t)
	a := f.addDV("a", 1000)
	b := f.addDV("b", 1000)
	c := f.addDV("c", 1000)
	f.connect("a", "b", 1)
	f.connect("b", "c", 1)

	assert.Equal(t, state.DistanceVector{"a": 0, "b": 1, "c": 2}, a.dv)
	assert.Equal(t, state.DistanceVector{"a": 1, "b": 0, "c": 1}, b.dv)
	assert.Equal(t, state.DistanceVector{"a": 2, "b": 1, "c": 0}, c.dv)
	assert.Equal(t, f.port("a", "b"), a.fwd["c"])
}

func TestDVBadNewsWipesRoutes(t *testing.T) {
	// a --1-- b --1-- c, then the b-c link dies
	f := newFabric(t)
	a := f.addDV("a", 1000)
	b := f.addDV("b", 1000)
	f.addDV("c", 1000)
	f.connect("a", "b", 1)
	f.connect("b", "c", 1)
	require.Equal(t, state.Cost(2), a.dv.Get("c"))

	f.disconnect("b", "c")

	assert.Equal(t, state.DistanceVector{"a": 1, "b": 0}, b.dv)
	assert.Equal(t, state.DistanceVector{"a": 0, "b": 1}, a.dv)
	assert.NotContains(t, a.fwd, state.Addr("c"))
	assert.NotContains(t, b.fwd, state.Addr("c"))
}

func TestDVRecoversAlternatePath(t *testing.T) {
	// triangle: a-b cost 1, b-c cost 1, a-c cost 5. Losing a-b should
	// shift a's route to b onto the long way around.
	f := newFabric(t)
	a := f.addDV("a", 1000)
	f.addDV("b", 1000)
	f.addDV("c", 1000)
	f.connect("a", "b", 1)
	f.connect("b", "c", 1)
	f.connect("a", "c", 5)
	require.Equal(t, state.Cost(1), a.dv.Get("b"))

	f.disconnect("a", "b")
	// heartbeats carry the refreshed vectors back around
	for now := int64(1001); now <= 5005; now += 1001 {
		f.tick(now)
	}

	assert.Equal(t, state.Cost(6), a.dv.Get("b"))
	assert.Equal(t, f.port("a", "c"), a.fwd["b"])
}

func TestDVPoisonedReverse(t *testing.T) {
	// a learns c through b; its advertisement back to b must omit both
	// b and c, while the copy toward d still carries them.
	f := newFabric(t)
	a := f.addDV("a", 1000)
	f.addDV("b", 1000)
	f.addDV("c", 1000)
	f.addDV("d", 1000)
	f.connect("a", "b", 1)
	f.connect("b", "c", 1)
	f.connect("a", "d", 1)
	require.Equal(t, state.Cost(2), a.dv.Get("c"))

	rec := f.recs["a"]
	rec.take()
	a.HandleTime(2000)
	sent := rec.take()
	require.Len(t, sent, 2)

	for _, s := range sent {
		upd := decodeDv(t, s.Pkt)
		switch s.Port {
		case f.port("a", "b"):
			assert.NotContains(t, upd.Dv, state.Addr("b"))
			assert.NotContains(t, upd.Dv, state.Addr("c"))
			assert.Equal(t, state.Cost(0), upd.Dv.Get("a"))
		case f.port("a", "d"):
			assert.Equal(t, state.Cost(1), upd.Dv.Get("b"))
			assert.Equal(t, state.Cost(2), upd.Dv.Get("c"))
			assert.NotContains(t, upd.Dv, state.Addr("d"))
		default:
			t.Fatalf("unexpected port %d", s.Port)
		}
	}
}

func TestDVUnreachableCostNeverInstalled(t *testing.T) {
	rec := &recorder{}
	r := NewDVRouter("a", 1000, rec, testLogger())
	r.HandleNewLink(1, "b", 1)
	rec.take()

	payload, err := state.EncodeDvUpdate(state.DvUpdate{
		Addr: "b",
		Dv:   state.DistanceVector{"b": 0, "x": 15},
	})
	require.NoError(t, err)
	r.HandlePacket(1, state.Packet{Kind: state.KindRouting, Src: "b", Dst: "a", Payload: payload})

	// 15 + 1 reaches INF: the entry must not survive relaxation
	assert.NotContains(t, r.dv, state.Addr("x"))
	assert.NotContains(t, r.fwd, state.Addr("x"))
	assert.Equal(t, state.Cost(1), r.dv.Get("b"))
}

func TestDVDuplicateUpdateIsQuiet(t *testing.T) {
	rec := &recorder{}
	r := NewDVRouter("a", 1000, rec, testLogger())
	r.HandleNewLink(1, "b", 1)
	rec.take()

	payload, err := state.EncodeDvUpdate(state.DvUpdate{
		Addr: "b",
		Dv:   state.DistanceVector{"b": 0, "c": 1},
	})
	require.NoError(t, err)
	pkt := state.Packet{Kind: state.KindRouting, Src: "b", Dst: "a", Payload: payload}

	r.HandlePacket(1, pkt)
	assert.NotEmpty(t, rec.take(), "first update should improve and broadcast")

	r.HandlePacket(1, pkt)
	assert.Empty(t, rec.take(), "identical update must not rebroadcast")
}

func TestDVHeartbeat(t *testing.T) {
	rec := &recorder{}
	r := NewDVRouter("a", 1000, rec, testLogger())
	r.HandleNewLink(1, "b", 1)
	rec.take()

	r.HandleTime(999)
	assert.Empty(t, rec.take())

	r.HandleTime(1001)
	assert.Len(t, rec.take(), 1)

	// timer rearms from the last broadcast
	r.HandleTime(1500)
	assert.Empty(t, rec.take())
	r.HandleTime(2002)
	assert.Len(t, rec.take(), 1)
}

func TestDVDataForwarding(t *testing.T) {
	rec := &recorder{}
	r := NewDVRouter("b", 1000, rec, testLogger())
	r.HandleNewLink(1, "a", 1)
	r.HandleNewLink(2, "c", 1)
	rec.take()

	probe := state.Packet{Kind: state.KindData, Src: "a", Dst: "c", Payload: []byte("ping")}
	r.HandlePacket(1, probe)
	sent := rec.take()
	require.Len(t, sent, 1)
	assert.Equal(t, state.Port(2), sent[0].Port)
	assert.Equal(t, probe, sent[0].Pkt)

	// unknown destination: drop
	r.HandlePacket(1, state.Packet{Kind: state.KindData, Src: "a", Dst: "z"})
	assert.Empty(t, rec.take())
}

func TestDVRoutingOnUnboundPortPanics(t *testing.T) {
	rec := &recorder{}
	r := NewDVRouter("a", 1000, rec, testLogger())
	payload, _ := state.EncodeDvUpdate(state.DvUpdate{Addr: "b", Dv: state.DistanceVector{"b": 0}})
	assert.Panics(t, func() {
		r.HandlePacket(9, state.Packet{Kind: state.KindRouting, Src: "b", Dst: "a", Payload: payload})
	})
}

func TestDVInvariants(t *testing.T) {
	f := newFabric(t)
	a := f.addDV("a", 1000)
	b := f.addDV("b", 1000)
	c := f.addDV("c", 1000)
	f.connect("a", "b", 2)
	f.connect("b", "c", 3)
	f.connect("a", "c", 9)
	f.disconnect("a", "b")
	f.tick(1001)

	for _, r := range []*DVRouter{a, b, c} {
		assert.Equal(t, state.Cost(0), r.dv[r.addr])
		for addr, cost := range r.dv {
			assert.Less(t, cost, state.INF, "dv entry %s", addr)
		}
		for addr, port := range r.fwd {
			assert.Contains(t, r.dv, addr)
			_, live := r.neighbours[port]
			assert.True(t, live, "fwd[%s] uses dead port %d", addr, port)
		}
	}
}
