package stp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/nik1740/netspeed/pkg/measure"
)

func listenLoopback(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	return conn
}

func TestClientServerPing(t *testing.T) {
	serverConn := listenLoopback(t)
	defer serverConn.Close()
	srv := NewServer(serverConn, DefaultServerConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go srv.Serve(ctx)

	clientConn := listenLoopback(t)
	defer clientConn.Close()
	client := NewClient(clientConn, serverConn.LocalAddr().(*net.UDPAddr))

	rtt, err := client.Ping(500 * time.Millisecond)
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if rtt < 0 {
		t.Fatalf("Ping rtt = %v, want >= 0", rtt)
	}
}

func TestClientServerDownload(t *testing.T) {
	serverConn := listenLoopback(t)
	defer serverConn.Close()
	srv := NewServer(serverConn, DefaultServerConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go srv.Serve(ctx)

	clientConn := listenLoopback(t)
	defer clientConn.Close()
	client := NewClient(clientConn, serverConn.LocalAddr().(*net.UDPAddr))

	dlCtx, dlCancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer dlCancel()

	var measurements []measure.ThroughputMeasurement
	client.Download(dlCtx, 512, func(m measure.ThroughputMeasurement) {
		measurements = append(measurements, m)
	})

	if len(measurements) == 0 {
		t.Fatal("expected at least one data packet from the server's download burst")
	}
	for _, m := range measurements {
		if !m.Success || m.Bytes != 512 {
			t.Fatalf("unexpected measurement: %+v", m)
		}
	}
}

func TestClientUploadDeliversAndAcks(t *testing.T) {
	serverConn := listenLoopback(t)
	defer serverConn.Close()
	srv := NewServer(serverConn, DefaultServerConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go srv.Serve(ctx)

	clientConn := listenLoopback(t)
	defer clientConn.Close()
	client := NewClient(clientConn, serverConn.LocalAddr().(*net.UDPAddr))

	upCtx, upCancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer upCancel()

	var measurements []measure.ThroughputMeasurement
	client.Upload(upCtx, 256, func(m measure.ThroughputMeasurement) {
		measurements = append(measurements, m)
	})

	if len(measurements) == 0 {
		t.Fatal("expected at least one delivered upload packet")
	}
}
