package state

import (
	"encoding/json"
	"fmt"
)

type PacketKind uint8

const (
	// KindData carries an opaque application payload (traceroute probes in
	// the mock network). Routers forward it by destination address.
	KindData PacketKind = iota
	// KindRouting carries a protocol payload produced by a router.
	KindRouting
)

// Packet is the unit the simulation host hands to and accepts from a
// router. The host owns delivery; the router only decides the port.
type Packet struct {
	Kind    PacketKind
	Src     Addr
	Dst     Addr
	Payload []byte
}

func (p Packet) IsRouting() bool { return p.Kind == KindRouting }
func (p Packet) IsData() bool    { return p.Kind == KindData }

// DvUpdate is the distance-vector wire payload: the origin and its full
// current vector, already trimmed by poisoned reverse.
type DvUpdate struct {
	Addr Addr           `json:"addr"`
	Dv   DistanceVector `json:"dv"`
}

// LsNeighbor is one directed link in an advertisement. Cost INF retracts
// the edge.
type LsNeighbor struct {
	Addr Addr `json:"addr"`
	Cost Cost `json:"cost"`
}

// LsAdvertisement is a versioned announcement of one node's direct links.
// PacketId is monotone per origin; receivers drop anything not strictly
// newer than the last id seen from that origin.
type LsAdvertisement struct {
	SourceAddr  Addr         `json:"source_addr"`
	PacketId    uint64       `json:"packet_id"`
	LsNeighbors []LsNeighbor `json:"ls_neighbors"`
}

func EncodeDvUpdate(u DvUpdate) ([]byte, error) {
	return json.Marshal(u)
}

func DecodeDvUpdate(payload []byte) (DvUpdate, error) {
	var u DvUpdate
	if err := json.Unmarshal(payload, &u); err != nil {
		return DvUpdate{}, fmt.Errorf("decode dv update: %w", err)
	}
	if u.Addr == "" {
		return DvUpdate{}, fmt.Errorf("decode dv update: missing origin")
	}
	if u.Dv == nil {
		u.Dv = DistanceVector{}
	}
	return u, nil
}

func EncodeLsAdvertisement(a LsAdvertisement) ([]byte, error) {
	return json.Marshal(a)
}

func DecodeLsAdvertisement(payload []byte) (LsAdvertisement, error) {
	var a LsAdvertisement
	if err := json.Unmarshal(payload, &a); err != nil {
		return LsAdvertisement{}, fmt.Errorf("decode lsa: %w", err)
	}
	if a.SourceAddr == "" {
		return LsAdvertisement{}, fmt.Errorf("decode lsa: missing origin")
	}
	return a, nil
}
