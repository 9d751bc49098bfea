package tcpnet

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/nik1740/netspeed/pkg/measure"
)

// RoleDownload and RoleUpload are the one-byte role selectors the
// client sends immediately after connect.
const (
	RoleDownload byte = 'D'
	RoleUpload   byte = 'U'
)

// maxReadBuffer caps the client's download read buffer regardless of
// the configured payload size.
const maxReadBuffer = 8192

// Download connects to addr, requests the download role, and emits one
// Success measurement per read until ctx is done or the server closes
// the connection (a zero-length read ends the phase cleanly). Errors
// become a single Failure measurement and end the worker.
func Download(ctx context.Context, addr string, payloadSize int, emit func(measure.ThroughputMeasurement)) {
	bufSize := payloadSize
	if bufSize > maxReadBuffer || bufSize <= 0 {
		bufSize = maxReadBuffer
	}
	runRole(ctx, addr, RoleDownload, bufSize, emit, func(conn net.Conn, bufSize int, emit func(measure.ThroughputMeasurement)) {
		buf := make([]byte, bufSize)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			start := time.Now()
			n, err := conn.Read(buf)
			if n > 0 {
				emit(measure.NewSuccess(int64(n), time.Since(start)))
			}
			if err != nil {
				if ctx.Err() == nil && err != io.EOF {
					emit(measure.NewFailure(measure.ErrorTransferFailed, err.Error(), time.Since(start), 0))
				}
				return
			}
			if n == 0 {
				return
			}
		}
	})
}

// Upload connects to addr, requests the upload role, and repeatedly
// writes a payloadSize-byte buffer until ctx is done, emitting one
// Success measurement per write.
func Upload(ctx context.Context, addr string, payloadSize int, emit func(measure.ThroughputMeasurement)) {
	if payloadSize <= 0 {
		payloadSize = maxReadBuffer
	}
	runRole(ctx, addr, RoleUpload, payloadSize, emit, func(conn net.Conn, bufSize int, emit func(measure.ThroughputMeasurement)) {
		buf := make([]byte, bufSize)
		for i := range buf {
			buf[i] = byte(i)
		}
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			start := time.Now()
			n, err := conn.Write(buf)
			if err != nil {
				if ctx.Err() == nil {
					emit(measure.NewFailure(measure.ErrorTransferFailed, err.Error(), time.Since(start), 0))
				}
				return
			}
			emit(measure.NewSuccess(int64(n), time.Since(start)))
		}
	})
}

func runRole(ctx context.Context, addr string, role byte, bufSize int, emit func(measure.ThroughputMeasurement), body func(net.Conn, int, func(measure.ThroughputMeasurement))) {
	var d net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	start := time.Now()
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		emit(measure.NewFailure(measure.ErrorConnectionFailed, err.Error(), time.Since(start), 0))
		return
	}
	defer conn.Close()

	if _, err := conn.Write([]byte{role}); err != nil {
		emit(measure.NewFailure(measure.ErrorConnectionFailed, err.Error(), time.Since(start), 0))
		return
	}

	go func() {
		<-ctx.Done()
		_ = conn.SetDeadline(time.Now())
	}()

	body(conn, bufSize, emit)
}
