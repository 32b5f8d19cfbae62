package rtp

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/encodeous/weft/state"
)

type inFlightPacket struct {
	payload []byte
	sentAt  time.Time
}

// Sender transmits a byte stream to a receiver over an unreliable
// datagram channel. Packets are retransmitted until acknowledged; the
// receiver's reassembly makes delivery exactly-once. Single-threaded.
type Sender struct {
	window   int
	conn     *Conn
	peer     net.Addr
	seq      uint32
	queue    [][]byte
	inFlight map[uint32]*inFlightPacket
	log      *slog.Logger
}

// Dial opens a local socket on an ephemeral port aimed at the receiver.
// No traffic flows until Connect.
func Dial(receiverAddr string, window int, log *slog.Logger) (*Sender, error) {
	if window <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", window)
	}
	peer, err := net.ResolveUDPAddr("udp", receiverAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve receiver: %w", err)
	}
	pc, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, err
	}
	return NewSender(NewConn(pc), peer, window, log), nil
}

// NewSender wires a sender onto an existing socket. Tests use this to
// substitute a lossy in-memory channel.
func NewSender(conn *Conn, peer net.Addr, window int, log *slog.Logger) *Sender {
	return &Sender{
		window:   window,
		conn:     conn,
		peer:     peer,
		inFlight: make(map[uint32]*inFlightPacket),
		log:      log,
	}
}

// Connect performs the START handshake: resend on every timeout or
// mangled reply until an ack arrives.
func (s *Sender) Connect() error {
	if s.seq != 0 {
		panic("rtp: Connect called twice")
	}
	for {
		if err := s.conn.Send(s.peer, TypeStart, 0, nil); err != nil {
			return err
		}
		in, kind, err := s.conn.Recv(state.RtpTimeout)
		if err != nil {
			return err
		}
		if kind != RecvPacket || in.Hdr.Type != TypeAck {
			continue
		}
		s.seq = 1
		s.log.Debug("connected", "peer", s.peer)
		return nil
	}
}

// Send fragments the payload and transmits it under the window,
// returning once every chunk has been acknowledged.
func (s *Sender) Send(payload []byte) error {
	for off := 0; off < len(payload); off += state.PayloadMaxBytes {
		end := min(off+state.PayloadMaxBytes, len(payload))
		s.queue = append(s.queue, payload[off:end])
	}
	return s.drain()
}

// Close flushes pending data, then sends END and reads until its ack
// arrives or a read sees no traffic for one timeout, then releases the
// socket.
func (s *Sender) Close() error {
	if err := s.drain(); err != nil {
		s.conn.Close()
		return err
	}
	endSeq := s.seq
	s.seq++
	if err := s.conn.Send(s.peer, TypeEnd, endSeq, nil); err != nil {
		s.conn.Close()
		return err
	}
	for {
		in, kind, err := s.conn.Recv(state.RtpTimeout)
		if err != nil {
			break
		}
		if kind == RecvTimeout {
			s.log.Debug("no ack for END, closing anyway")
			break
		}
		if kind == RecvPacket && in.Hdr.Type == TypeAck && in.Hdr.Seq == endSeq {
			break
		}
	}
	return s.conn.Close()
}

// drain runs the window until the send queue and in-flight map are both
// empty. Timeouts trigger a retransmission scan; acks retire exactly the
// sequence number they carry.
func (s *Sender) drain() error {
	for len(s.queue)+len(s.inFlight) > 0 {
		for len(s.queue) > 0 && len(s.inFlight) < s.window {
			chunk := s.queue[0]
			s.queue = s.queue[1:]
			if err := s.conn.Send(s.peer, TypeData, s.seq, chunk); err != nil {
				return err
			}
			s.inFlight[s.seq] = &inFlightPacket{payload: chunk, sentAt: time.Now()}
			s.seq++
		}

		in, kind, err := s.conn.Recv(state.RtpTimeout)
		if err != nil {
			return err
		}
		switch kind {
		case RecvTimeout:
			now := time.Now()
			for seq, f := range s.inFlight {
				if now.Sub(f.sentAt) > state.RtpTimeout {
					if err := s.conn.Send(s.peer, TypeData, seq, f.payload); err != nil {
						return err
					}
					f.sentAt = now
				}
			}
		case RecvCorrupt:
			// mangled ack; the next one will do
		case RecvPacket:
			if in.Hdr.Type == TypeAck {
				delete(s.inFlight, in.Hdr.Seq)
			}
		}
	}
	return nil
}
