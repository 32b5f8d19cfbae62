package rtp

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

type PacketType uint32

const (
	TypeStart PacketType = iota
	TypeEnd
	TypeData
	TypeAck
)

func (t PacketType) String() string {
	switch t {
	case TypeStart:
		return "START"
	case TypeEnd:
		return "END"
	case TypeData:
		return "DATA"
	case TypeAck:
		return "ACK"
	}
	return "UNKNOWN"
}

// HeaderLen is the fixed preamble size: four big-endian uint32 fields.
const HeaderLen = 16

// Header is the RTP packet preamble. Checksum is CRC-32 (IEEE) over the
// header with the checksum field zeroed, followed by the payload.
type Header struct {
	Type     PacketType
	Seq      uint32
	Length   uint32
	Checksum uint32
}

// ErrCorrupt marks a datagram whose checksum does not match or whose
// declared length overruns the datagram.
var ErrCorrupt = errors.New("rtp: corrupt packet")

// Encode frames a payload into a checksummed datagram.
func Encode(t PacketType, seq uint32, payload []byte) []byte {
	pkt := make([]byte, HeaderLen+len(payload))
	binary.BigEndian.PutUint32(pkt[0:4], uint32(t))
	binary.BigEndian.PutUint32(pkt[4:8], seq)
	binary.BigEndian.PutUint32(pkt[8:12], uint32(len(payload)))
	copy(pkt[HeaderLen:], payload)
	binary.BigEndian.PutUint32(pkt[12:16], crc32.ChecksumIEEE(pkt))
	return pkt
}

// Parse validates a datagram and splits it into header and payload. The
// payload aliases the input.
func Parse(datagram []byte) (Header, []byte, error) {
	if len(datagram) < HeaderLen {
		return Header{}, nil, ErrCorrupt
	}
	h := Header{
		Type:     PacketType(binary.BigEndian.Uint32(datagram[0:4])),
		Seq:      binary.BigEndian.Uint32(datagram[4:8]),
		Length:   binary.BigEndian.Uint32(datagram[8:12]),
		Checksum: binary.BigEndian.Uint32(datagram[12:16]),
	}
	if int(h.Length) > len(datagram)-HeaderLen {
		return Header{}, nil, ErrCorrupt
	}
	payload := datagram[HeaderLen : HeaderLen+int(h.Length)]

	scratch := make([]byte, HeaderLen+len(payload))
	copy(scratch, datagram[:HeaderLen])
	binary.BigEndian.PutUint32(scratch[12:16], 0)
	copy(scratch[HeaderLen:], payload)
	if crc32.ChecksumIEEE(scratch) != h.Checksum {
		return Header{}, nil, ErrCorrupt
	}
	return h, payload, nil
}
