package udpnet

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/nik1740/netspeed/internal/stp"
	"github.com/nik1740/netspeed/pkg/measure"
)

func startUDPServer(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	srv := NewServer(conn, stp.DefaultServerConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	t.Cleanup(func() {
		cancel()
		conn.Close()
	})
	return conn.LocalAddr().String()
}

func TestUDPDownloadEndToEnd(t *testing.T) {
	addr := startUDPServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var measurements []measure.ThroughputMeasurement
	if err := Download(ctx, addr, 512, func(m measure.ThroughputMeasurement) {
		measurements = append(measurements, m)
	}); err != nil {
		t.Fatalf("Download: %v", err)
	}

	if len(measurements) == 0 {
		t.Fatal("expected at least one download measurement over loopback")
	}
}

func TestUDPLatencyEndToEnd(t *testing.T) {
	addr := startUDPServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	var measurements []measure.LatencyMeasurement
	if err := Latency(ctx, addr, func(m measure.LatencyMeasurement) {
		measurements = append(measurements, m)
	}); err != nil {
		t.Fatalf("Latency: %v", err)
	}

	if len(measurements) == 0 {
		t.Fatal("expected at least one latency probe")
	}
	found := false
	for _, m := range measurements {
		if !m.Dropped() {
			found = true
		}
	}
	if !found {
		t.Fatal("expected at least one successful ping over loopback")
	}
}
