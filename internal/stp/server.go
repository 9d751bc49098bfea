package stp

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nik1740/netspeed/pkg/logging"
)

// ServerConfig holds the peer-role knobs spec.md's Open Questions call
// out as tunable rather than hardcoded: download burst size and the
// inter-fragment/inter-burst pacing sleeps.
type ServerConfig struct {
	BurstSize           int
	InterFragmentSleep  time.Duration
	InterBurstSleep     time.Duration
	FragmentCeiling     int
	DefaultDownloadSize int
}

// DefaultServerConfig returns netspeed's default tuning: 10-packet
// bursts, 50µs between fragments, 500µs between bursts, a 1400-byte
// fragment ceiling, and a 1024-byte default download payload size.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		BurstSize:           10,
		InterFragmentSleep:  50 * time.Microsecond,
		InterBurstSleep:     500 * time.Microsecond,
		FragmentCeiling:     MSS,
		DefaultDownloadSize: 1024,
	}
}

const (
	payloadPing     = "PING"
	payloadDownload = "DOWNLOAD"
)

type peerSession struct {
	state              *ConnectionState
	downloadMode       bool
	downloadPayloadSize int
	totalBytesReceived  int64
	totalPacketsReceived int64
}

// Server implements the STP peer role: decode each inbound
// datagram, track per-peer connection state, ACK it, and — for peers
// that have requested download mode — stream a data burst back.
type Server struct {
	conn   *net.UDPConn
	cfg    ServerConfig
	logger *logging.Logger

	mu    sync.Mutex
	peers map[string]*peerSession
}

// NewServer wraps an already-bound UDP socket as an STP peer server.
func NewServer(conn *net.UDPConn, cfg ServerConfig, logger *logging.Logger) *Server {
	return &Server{
		conn:   conn,
		cfg:    cfg,
		logger: logger,
		peers:  make(map[string]*peerSession),
	}
}

// Serve reads datagrams until ctx is done or the socket errors.
func (s *Server) Serve(ctx context.Context) error {
	buf := make([]byte, 64*1024)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_ = s.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}

		s.handleDatagram(addr, append([]byte(nil), buf[:n]...))
	}
}

func (s *Server) handleDatagram(addr *net.UDPAddr, data []byte) {
	pkt, err := Decode(data)
	if err != nil {
		if s.logger != nil {
			s.logger.WithComponent("stp-server").WithFields(map[string]interface{}{
				"peer": addr.String(),
			}).Debug("dropped short datagram")
		}
		return
	}

	sess := s.session(addr)
	sess.state.OnReceived(pkt.Header)
	sess.totalBytesReceived += int64(len(data))
	sess.totalPacketsReceived++

	ack := StpPacket{Header: StpHeader{
		PacketNumber:     sess.state.NextPacketNumber(),
		TimestampUs:      NowMicros(),
		LatestAck:        pkt.Header.PacketNumber,
		AckTimestampEcho: pkt.Header.TimestampUs,
	}}
	s.send(addr, ack)

	s.applyPayload(sess, pkt.Payload)

	if sess.downloadMode {
		s.emitDownloadBurst(addr, sess)
	}
}

func (s *Server) applyPayload(sess *peerSession, payload []byte) {
	text := string(payload)
	switch {
	case text == payloadPing:
		// ACK already sent above; nothing further for a pure latency probe.
	case strings.HasPrefix(text, payloadDownload):
		size := s.cfg.DefaultDownloadSize
		if rest := strings.TrimPrefix(text, payloadDownload); strings.HasPrefix(rest, ":") {
			if n, err := strconv.Atoi(strings.TrimPrefix(rest, ":")); err == nil && n > 0 {
				size = n
			}
		}
		sess.downloadMode = true
		sess.downloadPayloadSize = size
	}
}

func (s *Server) emitDownloadBurst(addr *net.UDPAddr, sess *peerSession) {
	for i := 0; i < s.cfg.BurstSize; i++ {
		s.emitDataPacket(addr, sess, sess.downloadPayloadSize)
	}
	time.Sleep(s.cfg.InterBurstSleep)
}

func (s *Server) emitDataPacket(addr *net.UDPAddr, sess *peerSession, size int) {
	ceiling := s.cfg.FragmentCeiling
	if ceiling <= 0 {
		ceiling = MSS
	}
	if size <= ceiling {
		s.sendDataFragment(addr, sess, size)
		return
	}

	remaining := size
	for remaining > 0 {
		n := remaining
		if n > ceiling {
			n = ceiling
		}
		s.sendDataFragment(addr, sess, n)
		remaining -= n
		if remaining > 0 {
			time.Sleep(s.cfg.InterFragmentSleep)
		}
	}
}

func (s *Server) sendDataFragment(addr *net.UDPAddr, sess *peerSession, size int) {
	payload := bytes.Repeat([]byte{0}, size)
	p := StpPacket{Header: StpHeader{
		PacketNumber: sess.state.NextPacketNumber(),
		TimestampUs:  NowMicros(),
	}, Payload: payload}
	s.send(addr, p)
}

func (s *Server) send(addr *net.UDPAddr, p StpPacket) {
	_, _ = s.conn.WriteToUDP(Encode(p), addr)
}

func (s *Server) session(addr *net.UDPAddr) *peerSession {
	key := addr.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.peers[key]
	if !ok {
		sess = &peerSession{state: NewConnectionState(addr)}
		s.peers[key] = sess
	}
	return sess
}

// PeerCount returns the number of distinct peers seen so far.
func (s *Server) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}
