package tcpnet

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/nik1740/netspeed/pkg/measure"
)

func startServer(t *testing.T, cfg ServerConfig) (*Server, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	srv := NewServer(ln, cfg, nil, nil)
	go srv.Serve()
	t.Cleanup(srv.Shutdown)
	return srv, ln.Addr().String()
}

func TestLoopbackDownload(t *testing.T) {
	_, addr := startServer(t, DefaultServerConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var measurements []measure.ThroughputMeasurement
	Download(ctx, addr, 4096, func(m measure.ThroughputMeasurement) {
		measurements = append(measurements, m)
	})

	if len(measurements) == 0 {
		t.Fatal("expected at least one download measurement")
	}
	var total int64
	for _, m := range measurements {
		if !m.Success {
			t.Fatalf("unexpected failure measurement: %+v", m)
		}
		total += m.Bytes
	}
	if total <= 0 {
		t.Fatal("expected positive bytes transferred")
	}
}

func TestLoopbackUpload(t *testing.T) {
	srv, addr := startServer(t, DefaultServerConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var measurements []measure.ThroughputMeasurement
	Upload(ctx, addr, 4096, func(m measure.ThroughputMeasurement) {
		measurements = append(measurements, m)
	})

	if len(measurements) == 0 {
		t.Fatal("expected at least one upload measurement")
	}
	time.Sleep(50 * time.Millisecond)
	snap := srv.Metrics().Snapshot()
	if snap.BytesReceived <= 0 {
		t.Fatalf("server should have recorded received bytes, snapshot = %+v", snap)
	}
}

func TestInvalidCommandByteClosesConnection(t *testing.T) {
	srv, addr := startServer(t, DefaultServerConfig())

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte{'X'}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 1)
	_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	_, err = conn.Read(buf)
	if err == nil {
		t.Fatal("expected connection to be closed after an invalid command byte")
	}

	time.Sleep(50 * time.Millisecond)
	snap := srv.Metrics().Snapshot()
	if snap.ErrorCount == 0 {
		t.Fatal("expected ErrorCount to be incremented for invalid command byte")
	}
}

func TestMaxConnectionsBounded(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.MaxConnections = 1
	_, addr := startServer(t, cfg)

	// Hold one connection open by never sending a command byte.
	held, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer held.Close()
	time.Sleep(20 * time.Millisecond)

	// A second connection should be accepted at the TCP layer, then
	// immediately dropped by the server because the semaphore is full.
	second, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer second.Close()

	buf := make([]byte, 1)
	_ = second.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	_, err = second.Read(buf)
	if err == nil {
		t.Fatal("expected the second connection to be closed when MaxConnections=1 is already in use")
	}
}
