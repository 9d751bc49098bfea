// Package httpnet implements the HTTP client version matrix and the
// zero-allocation streaming HTTP(S) server.
package httpnet

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/quic-go/quic-go/http3"
	"golang.org/x/net/http2"

	"github.com/nik1740/netspeed/pkg/config"
	"github.com/nik1740/netspeed/pkg/measure"
)

const (
	requestTimeout  = 30 * time.Second
	connectTimeout  = 10 * time.Second
	idlePoolTimeout = 30 * time.Second
	maxIdlePerHost  = 100
	tcpKeepAlive    = 60 * time.Second
)

// NewClient builds the shared *http.Client for one protocol, per the
// version matrix. The client is reused across every worker in a
// phase for connection pooling.
func NewClient(version config.Protocol) (*http.Client, error) {
	switch version {
	case config.ProtocolHTTP1:
		return &http.Client{Timeout: requestTimeout, Transport: http1Transport()}, nil
	case config.ProtocolH2C:
		return &http.Client{Timeout: requestTimeout, Transport: h2cTransport()}, nil
	case config.ProtocolHTTP2:
		return &http.Client{Timeout: requestTimeout, Transport: http2Transport()}, nil
	case config.ProtocolHTTP3:
		return &http.Client{Timeout: requestTimeout, Transport: http3Transport()}, nil
	default:
		return nil, fmt.Errorf("httpnet: unsupported protocol %q", version)
	}
}

func dialer() *net.Dialer {
	return &net.Dialer{Timeout: connectTimeout, KeepAlive: tcpKeepAlive}
}

func http1Transport() *http.Transport {
	t := &http.Transport{
		DialContext:         dialer().DialContext,
		IdleConnTimeout:     idlePoolTimeout,
		MaxIdleConnsPerHost: maxIdlePerHost,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
		// http1_only: forbid transport-negotiated HTTP/2 upgrade.
		TLSNextProto: map[string]func(string, *tls.Conn) http.RoundTripper{},
	}
	return t
}

// h2cTransport dials cleartext and speaks HTTP/2 with prior knowledge,
// never attempting an HTTP/1.1 Upgrade: h2c handshake.
func h2cTransport() *http2.Transport {
	return &http2.Transport{
		AllowHTTP: true,
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialer().DialContext(ctx, network, addr)
		},
		IdleConnTimeout: idlePoolTimeout,
	}
}

// http2Transport always dials prior-knowledge HTTP/2 directly over TLS;
// it never attempts an HTTP/1.1-then-upgrade negotiation.
func http2Transport() *http2.Transport {
	return &http2.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true, NextProtos: []string{"h2"}},
		DialTLSContext: func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
			d := tls.Dialer{NetDialer: dialer(), Config: cfg}
			return d.DialContext(ctx, network, addr)
		},
		IdleConnTimeout:  idlePoolTimeout,
		ReadIdleTimeout:  idlePoolTimeout,
		MaxReadFrameSize: 64 * 1024, // 64 KiB max frame
	}
}

func http3Transport() *http3.Transport {
	return &http3.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
}

// ProbeLatency issues one HEAD /latency request and reports its elapsed
// time, or an error on failure.
func ProbeLatency(ctx context.Context, client *http.Client, baseURL string) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, baseURL+"/latency", nil)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return time.Since(start), nil
}

// LatencyLoop runs ProbeLatency on a 100ms cadence until ctx is done,
// emitting one LatencyMeasurement per probe.
func LatencyLoop(ctx context.Context, client *http.Client, baseURL string, emit func(measure.LatencyMeasurement)) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rtt, err := ProbeLatency(ctx, client, baseURL)
		if err != nil {
			emit(measure.LatencyMeasurement{RTTMs: nil, ElapsedTime: rtt})
		} else {
			ms := float64(rtt.Microseconds()) / 1000.0
			emit(measure.LatencyMeasurement{RTTMs: &ms, ElapsedTime: rtt})
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// DownloadWorker repeatedly GETs /download?size=...&chunk_size=...&id=N
// until ctx is done, emitting one Success measurement per completed
// request. The worker starts the next request immediately after one
// finishes, so long as the deadline has not passed. A request cut short
// by the deadline ends the worker without a measurement.
func DownloadWorker(ctx context.Context, client *http.Client, baseURL string, payloadSize, chunkSize, workerID int, emit func(measure.ThroughputMeasurement)) {
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		default:
		}

		url := fmt.Sprintf("%s/download?size=%d&chunk_size=%d&id=%d-%d", baseURL, payloadSize, chunkSize, workerID, i)
		start := time.Now()
		n, err := fetchOne(ctx, client, url)
		duration := time.Since(start)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			emit(measure.NewFailure(classify(err), err.Error(), duration, 0))
			continue
		}
		emit(measure.NewSuccess(n, duration))
	}
}

func fetchOne(ctx context.Context, client *http.Client, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return 0, fmt.Errorf("httpnet: unexpected status %d", resp.StatusCode)
	}
	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return n, err
	}
	return n, nil
}

// UploadWorker sends payloadSize bytes to /upload in
// ceil(payloadSize/chunkSize) POSTs, each carrying X-Chunk-Index and
// X-Total-Chunks. Every POST must return 2xx or the worker emits a
// Failure and stops for this iteration, then continues with the next
// one until ctx is done. An iteration cut short by ctx ending records no
// measurement.
func UploadWorker(ctx context.Context, client *http.Client, baseURL string, payloadSize, chunkSize int, emit func(measure.ThroughputMeasurement)) {
	if chunkSize <= 0 {
		chunkSize = payloadSize
	}
	source := make([]byte, chunkSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		start := time.Now()
		if err := uploadOnce(ctx, client, baseURL, payloadSize, chunkSize, source); err != nil {
			if ctx.Err() != nil {
				return
			}
			emit(measure.NewFailure(classify(err), err.Error(), time.Since(start), 0))
			continue
		}
		emit(measure.NewSuccess(int64(payloadSize), time.Since(start)))
	}
}

func uploadOnce(ctx context.Context, client *http.Client, baseURL string, payloadSize, chunkSize int, source []byte) error {
	totalChunks := (payloadSize + chunkSize - 1) / chunkSize
	remaining := payloadSize
	for idx := 0; idx < totalChunks; idx++ {
		n := chunkSize
		if remaining < chunkSize {
			n = remaining
		}
		remaining -= n

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/upload", bytes.NewReader(source[:n]))
		if err != nil {
			return err
		}
		req.ContentLength = int64(n)
		req.Header.Set("X-Chunk-Index", fmt.Sprintf("%d", idx))
		req.Header.Set("X-Total-Chunks", fmt.Sprintf("%d", totalChunks))

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode/100 != 2 {
			return fmt.Errorf("httpnet: upload chunk %d/%d got status %d", idx, totalChunks, resp.StatusCode)
		}
	}
	return nil
}

func classify(err error) measure.ErrorKind {
	if err == nil {
		return measure.ErrorUnknown
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return measure.ErrorTimeout
	}
	return measure.ErrorTransferFailed
}
