package impl

import (
	"github.com/encodeous/weft/state"
)

// PortSender is the single output primitive a router borrows from its
// host. The host owns the links; the router only picks the port.
type PortSender interface {
	Send(port state.Port, pkt state.Packet)
}

// Router is the event surface driven by the simulation host. Calls are
// serialized by the host and must not block; each returns before the
// next event is delivered.
type Router interface {
	Addr() state.Addr
	HandleNewLink(port state.Port, neigh state.Addr, cost state.Cost)
	HandlePacket(port state.Port, pkt state.Packet)
	HandleRemoveLink(port state.Port)
	HandleTime(nowMillis int64)
	DebugString() string
}
