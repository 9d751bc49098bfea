package stp

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/nik1740/netspeed/pkg/measure"
)

// drainPollInterval is how long the client's non-blocking receive waits
// for an incoming datagram before giving up and returning to the send
// side of the loop.
const drainPollInterval = 2 * time.Millisecond

// Client drives the STP client send loop: a single goroutine
// alternates between draining the socket for ACKs (feeding loss
// recovery and congestion control) and sending new data when cwnd
// allows, paced by Pacer.
type Client struct {
	conn  *net.UDPConn
	peer  *net.UDPAddr
	state *ConnectionState
	cc    *BBR
	pacer *Pacer

	sentAt map[uint64]time.Time
}

// NewClient builds a Client on an unconnected local UDP socket that
// sends to and receives from the server's address peer.
func NewClient(conn *net.UDPConn, peer *net.UDPAddr) *Client {
	pacer := NewPacer(MinPacingRate)
	return &Client{
		conn:   conn,
		peer:   peer,
		state:  NewConnectionState(peer),
		cc:     NewBBR(pacer),
		pacer:  pacer,
		sentAt: make(map[uint64]time.Time),
	}
}

// Ping sends a single "PING" probe and blocks (up to timeout) for its
// ACK, returning the round-trip time.
func (c *Client) Ping(timeout time.Duration) (time.Duration, error) {
	sent := NowMicros()
	p := StpPacket{
		Header:  StpHeader{PacketNumber: c.state.NextPacketNumber(), TimestampUs: sent},
		Payload: []byte(payloadPing),
	}
	if _, err := c.conn.WriteToUDP(Encode(p), c.peer); err != nil {
		return 0, err
	}

	buf := make([]byte, HeaderLen+16)
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	n, _, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		return 0, err
	}
	ack, err := Decode(buf[:n])
	if err != nil {
		return 0, err
	}
	c.state.OnReceived(ack.Header)
	rtt := time.Duration(NowMicros()-sent) * time.Microsecond
	return rtt, nil
}

// Upload runs the generic STP send loop, pushing
// payloadSize-byte data packets until ctx is done and emitting one
// Success measurement per packet the server's ACK confirms delivered.
// Lost packets are retransmitted transparently as new packet numbers
// and do not themselves produce a measurement.
func (c *Client) Upload(ctx context.Context, payloadSize int, emit func(measure.ThroughputMeasurement)) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.drainAcks(emit)

		if c.cc.CanSend(c.state.BytesInFlight()) {
			c.sendDataPacket(payloadSize, false)
		}
	}
}

// sendDataPacket builds and sends one data packet of the given payload
// size, paced by the client's Pacer, and records it in-flight.
func (c *Client) sendDataPacket(payloadSize int, retransmit bool) {
	num := c.state.NextPacketNumber()

	wait := c.pacer.Wait(payloadSize, time.Now())
	if wait > 0 {
		time.Sleep(wait)
	}

	now := time.Now()
	payload := make([]byte, payloadSize)
	p := StpPacket{Header: StpHeader{
		PacketNumber: num,
		TimestampUs:  uint64(now.UnixMicro()),
	}, Payload: payload}

	if _, err := c.conn.WriteToUDP(Encode(p), c.peer); err != nil {
		return
	}

	c.sentAt[num] = now
	c.state.RecordSent(InFlightPacket{
		PacketNumber:  num,
		SentTimeUs:    p.Header.TimestampUs,
		Size:          payloadSize,
		Data:          payload,
		Retransmitted: retransmit,
	})
}

// drainAcks does a short non-blocking read of any pending server
// replies, feeding loss recovery and congestion control, emitting a
// Success measurement for every newly delivered packet, and
// retransmitting every newly lost one.
func (c *Client) drainAcks(emit func(measure.ThroughputMeasurement)) {
	buf := make([]byte, HeaderLen+16)
	_ = c.conn.SetReadDeadline(time.Now().Add(drainPollInterval))
	n, _, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		return
	}
	ack, err := Decode(buf[:n])
	if err != nil {
		return
	}
	c.state.OnReceived(ack.Header)

	nowUs := NowMicros()
	delivered, lost := c.state.OnAckReceived(ack.Header.LatestAck, nowUs)

	var rtt time.Duration
	if ack.Header.AckTimestampEcho != 0 {
		rtt = time.Duration(nowUs-ack.Header.AckTimestampEcho) * time.Microsecond
	}

	var bytesAcked int64
	for _, p := range delivered {
		bytesAcked += int64(p.Size)
		sentAt, ok := c.sentAt[p.PacketNumber]
		duration := rtt
		if ok {
			duration = time.Since(sentAt)
			delete(c.sentAt, p.PacketNumber)
		}
		if emit != nil {
			emit(measure.NewSuccess(int64(p.Size), duration))
		}
	}
	if bytesAcked > 0 {
		c.cc.OnAck(bytesAcked, rtt, time.Now())
		c.cc.OnDrainExit(c.state.BytesInFlight(), time.Now())
	}

	for _, p := range lost {
		delete(c.sentAt, p.PacketNumber)
		c.retransmit(p)
	}
}

func (c *Client) retransmit(p InFlightPacket) {
	num := c.state.NextPacketNumber()
	now := time.Now()
	pkt := StpPacket{Header: StpHeader{
		PacketNumber: num,
		TimestampUs:  uint64(now.UnixMicro()),
	}, Payload: p.Data}

	if _, err := c.conn.WriteToUDP(Encode(pkt), c.peer); err != nil {
		return
	}
	c.sentAt[num] = now
	c.state.RecordSent(InFlightPacket{
		PacketNumber:  num,
		SentTimeUs:    pkt.Header.TimestampUs,
		Size:          len(p.Data),
		Data:          p.Data,
		Retransmitted: true,
	})
}

// RequestDownload sends the DOWNLOAD trigger the server peer role
// recognizes, switching it into download mode for this client's
// address.
func (c *Client) RequestDownload(payloadSize int) error {
	text := payloadDownload + ":" + strconv.Itoa(payloadSize)
	p := StpPacket{
		Header:  StpHeader{PacketNumber: c.state.NextPacketNumber(), TimestampUs: NowMicros()},
		Payload: []byte(text),
	}
	_, err := c.conn.WriteToUDP(Encode(p), c.peer)
	return err
}

// Download drains the socket until ctx is done, re-issuing the
// DOWNLOAD trigger periodically (the server bursts data back after
// every datagram it receives from a peer in download mode), and emits
// one Success measurement per data packet received.
func (c *Client) Download(ctx context.Context, payloadSize int, emit func(measure.ThroughputMeasurement)) {
	if err := c.RequestDownload(payloadSize); err != nil {
		return
	}

	buf := make([]byte, payloadSize+HeaderLen+64)
	lastTrigger := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if time.Since(lastTrigger) > 50*time.Millisecond {
			_ = c.RequestDownload(payloadSize)
			lastTrigger = time.Now()
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(drainPollInterval))
		start := time.Now()
		n, _, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		pkt, err := Decode(buf[:n])
		if err != nil {
			continue
		}
		c.state.OnReceived(pkt.Header)
		if pkt.IsAckOnly() {
			continue
		}
		if emit != nil {
			emit(measure.NewSuccess(int64(len(pkt.Payload)), time.Since(start)))
		}
	}
}
