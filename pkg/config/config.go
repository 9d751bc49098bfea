// Package config defines the protocol/test-type identities and the
// configuration entities shared by the client driver and the server
// subcommands.
package config

import (
	"fmt"
	"time"
)

// Protocol is the closed set of transports netspeed can drive or serve.
type Protocol string

const (
	ProtocolTCP   Protocol = "tcp"
	ProtocolUDP   Protocol = "udp"
	ProtocolHTTP1 Protocol = "http1"
	ProtocolH2C   Protocol = "h2c"
	ProtocolHTTP2 Protocol = "http2"
	ProtocolHTTP3 Protocol = "http3"
)

// Secure reports whether the protocol is served over TLS.
func (p Protocol) Secure() bool {
	return p == ProtocolHTTP2 || p == ProtocolHTTP3
}

// Scheme returns the URL scheme implied by the protocol, for HTTP variants.
func (p Protocol) Scheme() string {
	if p.Secure() {
		return "https"
	}
	return "http"
}

// DefaultPort returns the conventional port for the protocol.
func (p Protocol) DefaultPort() int {
	switch p {
	case ProtocolTCP, ProtocolUDP:
		return 5201
	case ProtocolHTTP1, ProtocolH2C:
		return 8080
	case ProtocolHTTP2, ProtocolHTTP3:
		return 8443
	default:
		return 0
	}
}

// TestType is the closed set of phase compositions a client test can run.
type TestType string

const (
	TestDownload      TestType = "download"
	TestUpload        TestType = "upload"
	TestBidirectional TestType = "bidirectional"
	TestSimultaneous  TestType = "simultaneous"
	TestLatencyOnly   TestType = "latency-only"
)

// DefaultPayloadSizes is used whenever a config omits an explicit list.
var DefaultPayloadSizes = []int{1024, 65536, 1048576}

// TcpTestConfig configures a TCP client test.
type TcpTestConfig struct {
	Server              string        `json:"server" yaml:"server"`
	Port                int           `json:"port" yaml:"port"`
	Duration            time.Duration `json:"duration" yaml:"duration"`
	ParallelConnections int           `json:"parallel_connections" yaml:"parallel_connections"`
	PayloadSizes        []int         `json:"payload_sizes" yaml:"payload_sizes"`
}

// Validate normalizes defaults and checks invariants.
func (c *TcpTestConfig) Validate() error {
	if c.ParallelConnections < 1 {
		c.ParallelConnections = 1
	}
	if c.Port == 0 {
		c.Port = ProtocolTCP.DefaultPort()
	}
	if len(c.PayloadSizes) == 0 {
		c.PayloadSizes = append([]int(nil), DefaultPayloadSizes...)
	}
	return validatePayloadSizes(c.PayloadSizes)
}

// UdpTestConfig configures a UDP (STP) client test.
type UdpTestConfig struct {
	Server          string        `json:"server" yaml:"server"`
	Port            int           `json:"port" yaml:"port"`
	Duration        time.Duration `json:"duration" yaml:"duration"`
	ParallelStreams int           `json:"parallel_streams" yaml:"parallel_streams"`
	PayloadSizes    []int         `json:"payload_sizes" yaml:"payload_sizes"`
}

// Validate normalizes defaults and checks invariants.
func (c *UdpTestConfig) Validate() error {
	if c.ParallelStreams < 1 {
		c.ParallelStreams = 1
	}
	if c.Port == 0 {
		c.Port = ProtocolUDP.DefaultPort()
	}
	if len(c.PayloadSizes) == 0 {
		c.PayloadSizes = append([]int(nil), DefaultPayloadSizes...)
	}
	return validatePayloadSizes(c.PayloadSizes)
}

// HttpTestConfig configures an HTTP(S) client test across any HTTP variant.
type HttpTestConfig struct {
	ServerURL           string        `json:"server_url" yaml:"server_url"`
	Duration            time.Duration `json:"duration" yaml:"duration"`
	ParallelConnections int           `json:"parallel_connections" yaml:"parallel_connections"`
	TestType            TestType      `json:"test_type" yaml:"test_type"`
	PayloadSizes        []int         `json:"payload_sizes" yaml:"payload_sizes"`
	HTTPVersion         Protocol      `json:"http_version" yaml:"http_version"`
}

// Validate normalizes defaults, derives ServerURL when absent, and checks
// invariants.
func (c *HttpTestConfig) Validate(host string, port int) error {
	if c.ParallelConnections < 1 {
		c.ParallelConnections = 1
	}
	if c.TestType == "" {
		c.TestType = TestDownload
	}
	if len(c.PayloadSizes) == 0 {
		c.PayloadSizes = append([]int(nil), DefaultPayloadSizes...)
	}
	if c.ServerURL == "" {
		if port == 0 {
			port = c.HTTPVersion.DefaultPort()
		}
		c.ServerURL = fmt.Sprintf("%s://%s:%d", c.HTTPVersion.Scheme(), host, port)
	}
	return validatePayloadSizes(c.PayloadSizes)
}

func validatePayloadSizes(sizes []int) error {
	if len(sizes) == 0 {
		return fmt.Errorf("payload_sizes must be non-empty")
	}
	for _, s := range sizes {
		if s <= 0 {
			return fmt.Errorf("payload_sizes must all be positive, got %d", s)
		}
	}
	return nil
}

// ServerConfig configures the multi-protocol server subcommand.
type ServerConfig struct {
	Bind         string        `yaml:"bind"`
	EnableTCP    bool          `yaml:"enable_tcp"`
	EnableUDP    bool          `yaml:"enable_udp"`
	EnableHTTP   bool          `yaml:"enable_http"`
	EnableHTTPS  bool          `yaml:"enable_https"`
	TCPPort      int           `yaml:"tcp_port"`
	UDPPort      int           `yaml:"udp_port"`
	HTTPPort     int           `yaml:"http_port"`
	HTTPSPort    int           `yaml:"https_port"`
	CertFile     string        `yaml:"cert_file"`
	KeyFile      string        `yaml:"key_file"`
	MaxConns     int           `yaml:"max_connections"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DefaultServerConfig returns the built-in defaults, overridden by any
// config file and then by explicit flags.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Bind:         "0.0.0.0",
		TCPPort:      5201,
		UDPPort:      5201,
		HTTPPort:     8080,
		HTTPSPort:    8443,
		MaxConns:     1000,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
