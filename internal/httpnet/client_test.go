package httpnet

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nik1740/netspeed/pkg/measure"
)

func TestProbeLatencyAndLoop(t *testing.T) {
	srv := httptest.NewServer(NewRouter(DefaultServerConfig(), nil))
	defer srv.Close()

	client, err := NewClient("http1")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	rtt, err := ProbeLatency(context.Background(), client, srv.URL)
	if err != nil {
		t.Fatalf("ProbeLatency: %v", err)
	}
	if rtt < 0 {
		t.Fatalf("rtt = %v, want >= 0", rtt)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	var measurements []measure.LatencyMeasurement
	LatencyLoop(ctx, client, srv.URL, func(m measure.LatencyMeasurement) {
		measurements = append(measurements, m)
	})
	if len(measurements) == 0 {
		t.Fatal("expected at least one latency measurement")
	}
}

func TestDownloadWorkerEndToEnd(t *testing.T) {
	srv := httptest.NewServer(NewRouter(DefaultServerConfig(), nil))
	defer srv.Close()

	client, err := NewClient("http1")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var measurements []measure.ThroughputMeasurement
	DownloadWorker(ctx, client, srv.URL, 65536, 16384, 0, func(m measure.ThroughputMeasurement) {
		measurements = append(measurements, m)
	})

	if len(measurements) == 0 {
		t.Fatal("expected at least one download measurement")
	}
	for _, m := range measurements {
		if !m.Success || m.Bytes != 65536 {
			t.Fatalf("unexpected measurement: %+v", m)
		}
	}
}

func TestUploadWorkerChunking(t *testing.T) {
	srv := httptest.NewServer(NewRouter(DefaultServerConfig(), nil))
	defer srv.Close()

	client, err := NewClient("http1")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var measurements []measure.ThroughputMeasurement
	UploadWorker(ctx, client, srv.URL, 10000, 4096, func(m measure.ThroughputMeasurement) {
		measurements = append(measurements, m)
	})

	if len(measurements) == 0 {
		t.Fatal("expected at least one upload measurement")
	}
	for _, m := range measurements {
		if !m.Success || m.Bytes != 10000 {
			t.Fatalf("unexpected measurement: %+v", m)
		}
	}
}
