// Package udpnet wires internal/stp into a UDP socket driving the STP
// peer protocol for both the measurement client and the multi-protocol
// server core.
package udpnet

import (
	"context"
	"net"
	"time"

	"github.com/nik1740/netspeed/internal/stp"
	"github.com/nik1740/netspeed/pkg/logging"
	"github.com/nik1740/netspeed/pkg/measure"
)

// Download opens a UDP socket to addr and runs the STP client's
// download role until ctx is done, emitting one Success measurement
// per data packet received from the server's burst.
func Download(ctx context.Context, addr string, payloadSize int, emit func(measure.ThroughputMeasurement)) error {
	client, conn, err := dial(addr)
	if err != nil {
		emit(measure.NewFailure(measure.ErrorConnectionFailed, err.Error(), 0, 0))
		return err
	}
	defer conn.Close()

	client.Download(ctx, payloadSize, emit)
	return nil
}

// Upload opens a UDP socket to addr and runs the STP client's generic
// send loop until ctx is done, emitting one Success measurement per
// packet the server's ACK confirms delivered.
func Upload(ctx context.Context, addr string, payloadSize int, emit func(measure.ThroughputMeasurement)) error {
	client, conn, err := dial(addr)
	if err != nil {
		emit(measure.NewFailure(measure.ErrorConnectionFailed, err.Error(), 0, 0))
		return err
	}
	defer conn.Close()

	client.Upload(ctx, payloadSize, emit)
	return nil
}

// Latency opens a UDP socket to addr and sends PING probes until ctx is
// done, recording one LatencyMeasurement per probe (dropped probes
// carry a nil RTT) with a 100ms gap between probes.
func Latency(ctx context.Context, addr string, emit func(measure.LatencyMeasurement)) error {
	client, conn, err := dial(addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	const probeTimeout = 500 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		start := time.Now()
		rtt, err := client.Ping(probeTimeout)
		elapsed := time.Since(start)
		if err != nil {
			emit(measure.LatencyMeasurement{RTTMs: nil, ElapsedTime: elapsed})
		} else {
			ms := float64(rtt.Microseconds()) / 1000.0
			emit(measure.LatencyMeasurement{RTTMs: &ms, ElapsedTime: elapsed})
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func dial(addr string) (*stp.Client, *net.UDPConn, error) {
	peer, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, nil, err
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return nil, nil, err
	}
	return stp.NewClient(conn, peer), conn, nil
}

// Server wraps an STP peer server bound to a UDP listener.
type Server struct {
	stpServer *stp.Server
}

// NewServer builds the UDP server role: an STP peer listening on conn.
func NewServer(conn *net.UDPConn, cfg stp.ServerConfig, logger *logging.Logger) *Server {
	return &Server{stpServer: stp.NewServer(conn, cfg, logger)}
}

// Serve runs the STP peer loop until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	return s.stpServer.Serve(ctx)
}

// PeerCount returns the number of distinct peers seen.
func (s *Server) PeerCount() int { return s.stpServer.PeerCount() }
