package rtp

import (
	"errors"
	"net"
	"time"

	"github.com/encodeous/weft/state"
)

// RecvKind classifies the outcome of one socket read. The endpoint state
// machines branch on exactly these three cases.
type RecvKind int

const (
	RecvPacket RecvKind = iota
	RecvTimeout
	RecvCorrupt
)

// Inbound is one validated datagram.
type Inbound struct {
	Hdr     Header
	Payload []byte
	From    net.Addr
}

// Conn wraps a datagram socket with RTP framing. A read deadline is the
// only liveness source: the retransmission scan runs when it fires.
type Conn struct {
	pc  net.PacketConn
	buf []byte
}

func NewConn(pc net.PacketConn) *Conn {
	return &Conn{pc: pc, buf: make([]byte, state.MaxDatagram)}
}

// Recv performs one read. timeout <= 0 blocks indefinitely. Hard socket
// errors surface as err; a late or mangled datagram does not.
func (c *Conn) Recv(timeout time.Duration) (Inbound, RecvKind, error) {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.pc.SetReadDeadline(deadline); err != nil {
		return Inbound{}, RecvTimeout, err
	}
	n, from, err := c.pc.ReadFrom(c.buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return Inbound{}, RecvTimeout, nil
		}
		return Inbound{}, RecvTimeout, err
	}
	hdr, payload, perr := Parse(c.buf[:n])
	if perr != nil {
		return Inbound{}, RecvCorrupt, nil
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return Inbound{Hdr: hdr, Payload: out, From: from}, RecvPacket, nil
}

// Send frames and transmits one packet to addr.
func (c *Conn) Send(addr net.Addr, t PacketType, seq uint32, payload []byte) error {
	_, err := c.pc.WriteTo(Encode(t, seq, payload), addr)
	return err
}

func (c *Conn) Close() error { return c.pc.Close() }
