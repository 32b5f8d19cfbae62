package rtp

import (
	"container/heap"
	"fmt"
	"io"
	"log/slog"
	"net"
)

type bufferedPacket struct {
	hdr     Header
	payload []byte
}

// bufferHeap is a min-heap keyed by sequence number.
type bufferHeap []bufferedPacket

func (h bufferHeap) Len() int           { return len(h) }
func (h bufferHeap) Less(i, j int) bool { return h[i].hdr.Seq < h[j].hdr.Seq }
func (h bufferHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *bufferHeap) Push(x any)        { *h = append(*h, x.(bufferedPacket)) }
func (h *bufferHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (h bufferHeap) contains(seq uint32) bool {
	for _, b := range h {
		if b.hdr.Seq == seq {
			return true
		}
	}
	return false
}

// Receiver reassembles a sender's stream and hands payloads out strictly
// in sequence order, exactly once, never buffering more than the window.
type Receiver struct {
	window int
	conn   *Conn
	peer   net.Addr
	next   uint32
	buf    bufferHeap
	log    *slog.Logger
}

// Listen binds the datagram socket. The stream starts with Accept.
func Listen(port, window int, log *slog.Logger) (*Receiver, error) {
	if window <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", window)
	}
	pc, err := net.ListenPacket("udp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	return NewReceiver(NewConn(pc), window, log), nil
}

// NewReceiver wires a receiver onto an existing socket.
func NewReceiver(conn *Conn, window int, log *slog.Logger) *Receiver {
	return &Receiver{window: window, conn: conn, log: log}
}

// Accept blocks until a valid START arrives, acks it, and arms the
// stream at sequence 1. Anything else on the wire is dropped.
func (r *Receiver) Accept() error {
	for {
		in, kind, err := r.conn.Recv(0)
		if err != nil {
			return err
		}
		if kind != RecvPacket || in.Hdr.Type != TypeStart || in.Hdr.Seq != 0 {
			continue
		}
		r.peer = in.From
		if err := r.ack(0); err != nil {
			return err
		}
		r.next = 1
		r.log.Debug("accepted", "peer", r.peer)
		return nil
	}
}

// Pipe delivers payloads to w in order until END. Every popped packet is
// acked with its own sequence number, so a lost ack is repaired by the
// sender retransmitting and the receiver re-acking from the buffer path.
func (r *Receiver) Pipe(w io.Writer) error {
	for {
		in, kind, err := r.conn.Recv(0)
		if err != nil {
			return err
		}
		if kind != RecvPacket || in.Hdr.Type == TypeAck {
			continue
		}

		// admit only inside the window, and never twice: a duplicate
		// must not evict an already-acked larger sequence number
		if in.Hdr.Seq < r.next+uint32(r.window) && !r.buf.contains(in.Hdr.Seq) {
			heap.Push(&r.buf, bufferedPacket{hdr: in.Hdr, payload: in.Payload})
		}

		for r.buf.Len() > 0 && r.buf[0].hdr.Seq <= r.next {
			b := heap.Pop(&r.buf).(bufferedPacket)
			if err := r.ack(b.hdr.Seq); err != nil {
				return err
			}
			if b.hdr.Seq == r.next {
				r.next++
				if b.hdr.Type == TypeData {
					if _, err := w.Write(b.payload); err != nil {
						return err
					}
					flush(w)
				}
			}
			if b.hdr.Type == TypeEnd {
				if r.buf.Len() != 0 {
					panic("rtp: data buffered past END")
				}
				return nil
			}
		}

		if r.buf.Len() > r.window {
			panic("rtp: reassembly buffer exceeded window")
		}
	}
}

// Close releases the socket.
func (r *Receiver) Close() error { return r.conn.Close() }

func (r *Receiver) ack(seq uint32) error {
	return r.conn.Send(r.peer, TypeAck, seq, nil)
}

// flush pushes delivered bytes through immediately; a lost END must not
// strand data in a buffer.
func flush(w io.Writer) {
	type syncer interface{ Sync() error }
	type flusher interface{ Flush() error }
	switch f := w.(type) {
	case flusher:
		f.Flush()
	case syncer:
		f.Sync()
	}
}
