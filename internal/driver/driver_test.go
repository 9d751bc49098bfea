package driver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/nik1740/netspeed/internal/tcpnet"
	"github.com/nik1740/netspeed/pkg/config"
)

func startTCPServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	srv := tcpnet.NewServer(ln, tcpnet.DefaultServerConfig(), nil, nil)
	go srv.Serve()
	t.Cleanup(srv.Shutdown)
	return ln.Addr().String()
}

func TestDriverDownloadComposesReport(t *testing.T) {
	addr := startTCPServer(t)

	result, err := Run(context.Background(), RunConfig{
		Protocol:     config.ProtocolTCP,
		TestType:     config.TestDownload,
		PayloadSizes: []int{1024, 4096},
		Duration:     150 * time.Millisecond,
		Workers:      2,
		Target:       addr,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := result.Download.Sizes(); len(got) != 2 || got[0] != 1024 || got[1] != 4096 {
		t.Fatalf("Download sizes = %v, want [1024 4096] in order", got)
	}
	for _, size := range []int{1024, 4096} {
		r, ok := result.Download.Get(size)
		if !ok || r.SuccessCount() == 0 {
			t.Fatalf("expected successful download measurements for size %d", size)
		}
	}
}

func TestDriverBidirectional(t *testing.T) {
	addr := startTCPServer(t)

	result, err := Run(context.Background(), RunConfig{
		Protocol:     config.ProtocolTCP,
		TestType:     config.TestBidirectional,
		PayloadSizes: []int{2048},
		Duration:     100 * time.Millisecond,
		Workers:      1,
		Target:       addr,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Download) != 1 || len(result.Upload) != 1 {
		t.Fatalf("expected one download and one upload result, got %d/%d", len(result.Download), len(result.Upload))
	}
}

func TestDriverSimultaneousRespectsDeadline(t *testing.T) {
	addr := startTCPServer(t)

	start := time.Now()
	_, err := Run(context.Background(), RunConfig{
		Protocol:     config.ProtocolTCP,
		TestType:     config.TestSimultaneous,
		PayloadSizes: []int{1024},
		Duration:     100 * time.Millisecond,
		Workers:      1,
		Target:       addr,
	})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed > 500*time.Millisecond {
		t.Fatalf("Simultaneous phase took %v, want close to the 100ms deadline", elapsed)
	}
}

func TestDriverLatencyOnly(t *testing.T) {
	addr := startTCPServer(t)

	result, err := Run(context.Background(), RunConfig{
		Protocol: config.ProtocolTCP,
		TestType: config.TestLatencyOnly,
		Duration: 150 * time.Millisecond,
		Workers:  1,
		Target:   addr,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Latency == nil || result.Latency.Count() == 0 {
		t.Fatal("expected at least one latency measurement")
	}
}
