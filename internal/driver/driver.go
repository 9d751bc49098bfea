// Package driver composes one client-side test: transport selection,
// payload-size fan-out, and sequential vs. concurrent phase
// composition.
package driver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/nik1740/netspeed/internal/collector"
	"github.com/nik1740/netspeed/internal/httpnet"
	"github.com/nik1740/netspeed/internal/tcpnet"
	"github.com/nik1740/netspeed/internal/udpnet"
	"github.com/nik1740/netspeed/pkg/config"
	"github.com/nik1740/netspeed/pkg/measure"
)

// RunConfig is the protocol-agnostic description of one client test,
// assembled by the CLI layer from the Tcp/Udp/HttpTestConfig entities.
type RunConfig struct {
	Protocol     config.Protocol
	TestType     config.TestType
	PayloadSizes []int
	Duration     time.Duration
	Workers      int
	// Target is host:port for TCP/UDP, a base URL for the HTTP family.
	Target string
	// ChunkSize is consulted only for the HTTP family's download/upload
	// chunking.
	ChunkSize int
}

// Run executes the configured test against Target and returns the
// composed NetworkTestResult. The caller wraps it in a measure.TestReport
// stamped with the producer's build version.
func Run(ctx context.Context, cfg RunConfig) (measure.NetworkTestResult, error) {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	result := measure.NetworkTestResult{Protocol: string(cfg.Protocol)}

	if cfg.TestType == config.TestLatencyOnly {
		latency, err := runLatency(ctx, cfg)
		if err != nil {
			return result, err
		}
		result.Latency = &latency
		return result, nil
	}

	for _, size := range cfg.PayloadSizes {
		switch cfg.TestType {
		case config.TestDownload:
			dl := runPhase(ctx, cfg, size, phaseDownload)
			result.Download = append(result.Download, measure.SizedResult{PayloadSize: size, Result: dl})
		case config.TestUpload:
			ul := runPhase(ctx, cfg, size, phaseUpload)
			result.Upload = append(result.Upload, measure.SizedResult{PayloadSize: size, Result: ul})
		case config.TestBidirectional:
			dl := runPhase(ctx, cfg, size, phaseDownload)
			result.Download = append(result.Download, measure.SizedResult{PayloadSize: size, Result: dl})
			ul := runPhase(ctx, cfg, size, phaseUpload)
			result.Upload = append(result.Upload, measure.SizedResult{PayloadSize: size, Result: ul})
		case config.TestSimultaneous:
			dl, ul := runSimultaneous(ctx, cfg, size)
			result.Download = append(result.Download, measure.SizedResult{PayloadSize: size, Result: dl})
			result.Upload = append(result.Upload, measure.SizedResult{PayloadSize: size, Result: ul})
		default:
			return result, fmt.Errorf("driver: unsupported test type %q", cfg.TestType)
		}
	}

	return result, nil
}

type phaseKind int

const (
	phaseDownload phaseKind = iota
	phaseUpload
)

func runPhase(ctx context.Context, cfg RunConfig, size int, kind phaseKind) measure.ThroughputResult {
	deadline := time.Now().Add(cfg.Duration)
	phaseCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	measurements, dur := collector.Run[measure.ThroughputMeasurement](phaseCtx, cfg.Workers, func(ctx context.Context, workerID int, emit func(measure.ThroughputMeasurement)) {
		runWorker(ctx, cfg, size, workerID, kind, emit)
	}, nil)

	return measure.ThroughputResult{Measurements: measurements, TotalDuration: dur, Timestamp: time.Now()}
}

func runSimultaneous(ctx context.Context, cfg RunConfig, size int) (measure.ThroughputResult, measure.ThroughputResult) {
	deadline := time.Now().Add(cfg.Duration)
	phaseCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	type outcome struct {
		result measure.ThroughputResult
	}
	dlCh := make(chan outcome, 1)
	ulCh := make(chan outcome, 1)

	go func() {
		measurements, dur := collector.Run[measure.ThroughputMeasurement](phaseCtx, cfg.Workers, func(ctx context.Context, workerID int, emit func(measure.ThroughputMeasurement)) {
			runWorker(ctx, cfg, size, workerID, phaseDownload, emit)
		}, nil)
		dlCh <- outcome{measure.ThroughputResult{Measurements: measurements, TotalDuration: dur, Timestamp: time.Now()}}
	}()
	go func() {
		measurements, dur := collector.Run[measure.ThroughputMeasurement](phaseCtx, cfg.Workers, func(ctx context.Context, workerID int, emit func(measure.ThroughputMeasurement)) {
			runWorker(ctx, cfg, size, workerID, phaseUpload, emit)
		}, nil)
		ulCh <- outcome{measure.ThroughputResult{Measurements: measurements, TotalDuration: dur, Timestamp: time.Now()}}
	}()

	dl := <-dlCh
	ul := <-ulCh
	return dl.result, ul.result
}

func runWorker(ctx context.Context, cfg RunConfig, size, workerID int, kind phaseKind, emit func(measure.ThroughputMeasurement)) {
	switch cfg.Protocol {
	case config.ProtocolTCP:
		if kind == phaseDownload {
			tcpnet.Download(ctx, cfg.Target, size, emit)
		} else {
			tcpnet.Upload(ctx, cfg.Target, size, emit)
		}
	case config.ProtocolUDP:
		// udpnet records its own setup failure as a single Failure
		// measurement, so the returned error is not emitted again here.
		if kind == phaseDownload {
			_ = udpnet.Download(ctx, cfg.Target, size, emit)
		} else {
			_ = udpnet.Upload(ctx, cfg.Target, size, emit)
		}
	default:
		client, err := httpnet.NewClient(cfg.Protocol)
		if err != nil {
			emit(measure.NewFailure(measure.ErrorConnectionFailed, err.Error(), 0, 0))
			return
		}
		chunk := cfg.ChunkSize
		if chunk <= 0 {
			chunk = 65536
		}
		if kind == phaseDownload {
			httpnet.DownloadWorker(ctx, client, cfg.Target, size, chunk, workerID, emit)
		} else {
			httpnet.UploadWorker(ctx, client, cfg.Target, size, chunk, emit)
		}
	}
}

func runLatency(ctx context.Context, cfg RunConfig) (measure.LatencyResult, error) {
	deadline := time.Now().Add(cfg.Duration)
	phaseCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	measurements, _ := collector.Run[measure.LatencyMeasurement](phaseCtx, 1, func(ctx context.Context, workerID int, emit func(measure.LatencyMeasurement)) {
		switch cfg.Protocol {
		case config.ProtocolTCP:
			runTCPLatency(ctx, cfg.Target, emit)
		case config.ProtocolUDP:
			_ = udpnet.Latency(ctx, cfg.Target, emit)
		default:
			client, err := httpnet.NewClient(cfg.Protocol)
			if err != nil {
				return
			}
			httpnet.LatencyLoop(ctx, client, cfg.Target, emit)
		}
	}, nil)

	return measure.LatencyResult{Measurements: measurements, Timestamp: time.Now()}, nil
}

// runTCPLatency times the TCP handshake itself: netspeed's TCP server
// has no echo role, so connect-time is the transport-specific latency
// signal for TCP, on the same 100ms probe cadence as the HTTP version.
func runTCPLatency(ctx context.Context, addr string, emit func(measure.LatencyMeasurement)) {
	var d net.Dialer
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		start := time.Now()
		dialCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		conn, err := d.DialContext(dialCtx, "tcp", addr)
		cancel()
		elapsed := time.Since(start)
		if err != nil {
			emit(measure.LatencyMeasurement{RTTMs: nil, ElapsedTime: elapsed})
		} else {
			conn.Close()
			ms := float64(elapsed.Microseconds()) / 1000.0
			emit(measure.LatencyMeasurement{RTTMs: &ms, ElapsedTime: elapsed})
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
}
