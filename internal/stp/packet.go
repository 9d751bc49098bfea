// Package stp implements the tool's reliable-UDP transport: a fixed
// 32-byte header, cumulative ACKs with RTT echo, loss detection by
// reordering threshold and timeout, BBR-style congestion control, and
// rate-based pacing. This is the only wire format the project treats as
// frozen — packet.go in particular must never change field order or
// width.
package stp

import (
	"encoding/binary"
	"fmt"
)

// HeaderLen is the fixed, frozen size of an StpHeader on the wire.
const HeaderLen = 32

// StpHeader is the 32-byte fixed header carried by every STP datagram:
// four big-endian uint64 fields, in this exact order.
type StpHeader struct {
	PacketNumber     uint64
	TimestampUs      uint64
	LatestAck        uint64
	AckTimestampEcho uint64
}

// StpPacket is a decoded header plus its payload. An empty payload marks
// an ACK-only packet.
type StpPacket struct {
	Header  StpHeader
	Payload []byte
}

// IsAckOnly reports whether this packet carries no payload.
func (p StpPacket) IsAckOnly() bool { return len(p.Payload) == 0 }

// Encode serializes the packet as header ‖ payload.
func Encode(p StpPacket) []byte {
	buf := make([]byte, HeaderLen+len(p.Payload))
	binary.BigEndian.PutUint64(buf[0:8], p.Header.PacketNumber)
	binary.BigEndian.PutUint64(buf[8:16], p.Header.TimestampUs)
	binary.BigEndian.PutUint64(buf[16:24], p.Header.LatestAck)
	binary.BigEndian.PutUint64(buf[24:32], p.Header.AckTimestampEcho)
	copy(buf[HeaderLen:], p.Payload)
	return buf
}

// Decode parses a datagram into an StpPacket. It rejects any input
// shorter than HeaderLen bytes, per the wire format invariant.
func Decode(buf []byte) (StpPacket, error) {
	if len(buf) < HeaderLen {
		return StpPacket{}, fmt.Errorf("stp: short datagram: %d bytes, need at least %d", len(buf), HeaderLen)
	}
	h := StpHeader{
		PacketNumber:     binary.BigEndian.Uint64(buf[0:8]),
		TimestampUs:      binary.BigEndian.Uint64(buf[8:16]),
		LatestAck:        binary.BigEndian.Uint64(buf[16:24]),
		AckTimestampEcho: binary.BigEndian.Uint64(buf[24:32]),
	}
	var payload []byte
	if len(buf) > HeaderLen {
		payload = append([]byte(nil), buf[HeaderLen:]...)
	}
	return StpPacket{Header: h, Payload: payload}, nil
}
