package stp

import (
	"net"
	"sync"
	"time"
)

// LossThreshold is the default reordering threshold: a packet is
// declared lost once the largest acked number has moved this many
// numbers past it.
const LossThreshold = 3

// LossTimeoutUs is the default age, in microseconds, past which an
// unacknowledged packet is declared lost regardless of reordering.
const LossTimeoutUs = 1_000_000

// NowMicros returns a microsecond Unix-epoch timestamp suitable for
// stamping an StpHeader.
func NowMicros() uint64 {
	return uint64(time.Now().UnixMicro())
}

// InFlightPacket is a sent-but-not-yet-resolved packet tracked by a
// ConnectionState's loss-recovery FIFO.
type InFlightPacket struct {
	PacketNumber   uint64
	SentTimeUs     uint64
	Size           int
	Data           []byte
	Retransmitted  bool
}

// ConnectionState is bound to a single remote address and owned by a
// single goroutine: its local_packet_number counter and in-flight FIFO
// are never accessed concurrently, so no internal locking is needed for
// the send path. A mutex guards only the fields a progress/metrics
// reader may consult from another goroutine.
type ConnectionState struct {
	PeerAddr *net.UDPAddr

	localPacketNumber uint64
	inFlight          []InFlightPacket
	largestAcked      uint64

	mu                   sync.Mutex
	PeerLatestAck        uint64
	LastReceivedPacket   uint64
	LastReceivedTimestamp uint64
	Established          bool

	LossThreshold uint64
	LossTimeoutUs uint64
}

// NewConnectionState builds a ConnectionState bound to peer, with the
// spec's default loss-recovery thresholds.
func NewConnectionState(peer *net.UDPAddr) *ConnectionState {
	return &ConnectionState{
		PeerAddr:      peer,
		LossThreshold: LossThreshold,
		LossTimeoutUs: LossTimeoutUs,
	}
}

// NextPacketNumber returns the next strictly increasing packet number
// for this connection.
func (c *ConnectionState) NextPacketNumber() uint64 {
	c.localPacketNumber++
	return c.localPacketNumber
}

// OnReceived updates peer-tracking fields from a just-received header
// and marks the connection established.
func (c *ConnectionState) OnReceived(h StpHeader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PeerLatestAck = h.LatestAck
	c.LastReceivedPacket = h.PacketNumber
	c.LastReceivedTimestamp = h.TimestampUs
	c.Established = true
}

// RecordSent appends a freshly-sent packet to the in-flight FIFO.
func (c *ConnectionState) RecordSent(p InFlightPacket) {
	c.inFlight = append(c.inFlight, p)
}

// InFlightCount returns the number of packets currently tracked as
// in-flight.
func (c *ConnectionState) InFlightCount() int { return len(c.inFlight) }

// BytesInFlight sums the size of every in-flight packet.
func (c *ConnectionState) BytesInFlight() int64 {
	var total int64
	for _, p := range c.inFlight {
		total += int64(p.Size)
	}
	return total
}

// OnAckReceived applies the loss-recovery policy: walks the
// in-flight FIFO against the newly observed latest_ack, partitioning it
// into delivered and lost. Packets that are neither are retained.
func (c *ConnectionState) OnAckReceived(latestAck uint64, nowUs uint64) (delivered, lost []InFlightPacket) {
	if latestAck > c.largestAcked {
		c.largestAcked = latestAck
	}

	retained := c.inFlight[:0:0]
	for _, p := range c.inFlight {
		switch {
		case p.PacketNumber <= latestAck:
			delivered = append(delivered, p)
		case p.PacketNumber <= c.largestAcked && c.largestAcked-p.PacketNumber >= c.lossThreshold() || nowUs-p.SentTimeUs > c.lossTimeoutUs():
			lost = append(lost, p)
		default:
			retained = append(retained, p)
		}
	}
	c.inFlight = retained
	return delivered, lost
}

func (c *ConnectionState) lossThreshold() uint64 {
	if c.LossThreshold == 0 {
		return LossThreshold
	}
	return c.LossThreshold
}

func (c *ConnectionState) lossTimeoutUs() uint64 {
	if c.LossTimeoutUs == 0 {
		return LossTimeoutUs
	}
	return c.LossTimeoutUs
}

// LargestAcked returns the highest latest_ack observed so far.
func (c *ConnectionState) LargestAcked() uint64 { return c.largestAcked }
