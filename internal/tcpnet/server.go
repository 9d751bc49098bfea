package tcpnet

import (
	"bytes"
	"net"
	"sync"
	"time"

	"github.com/nik1740/netspeed/pkg/logging"
)

// ServerConfig holds the TCP peer role's tunable limits.
type ServerConfig struct {
	MaxConnections  int
	CommandTimeout  time.Duration
	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	FillBufferSize  int
	DrainBufferSize int
	ShutdownDrain   time.Duration
}

// DefaultServerConfig returns netspeed's default limits: 1000
// concurrent connections, a 5s command-byte timeout, a 30s read
// timeout, a 128KiB fill/drain buffer, and a ~3s shutdown drain.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		MaxConnections:  1000,
		CommandTimeout:  5 * time.Second,
		ReadTimeout:     30 * time.Second,
		IdleTimeout:     60 * time.Second,
		FillBufferSize:  128 * 1024,
		DrainBufferSize: 128 * 1024,
		ShutdownDrain:   3 * time.Second,
	}
}

// Server is the bounded-concurrency TCP sink/source server. It
// multiplexes on a one-byte role selector read immediately after accept:
// 'U' drains (sink), 'D' fills (source); it has no echo role.
type Server struct {
	listener net.Listener
	cfg      ServerConfig
	logger   *logging.Logger
	metrics  *ServerMetrics

	sem chan struct{}

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// NewServer wraps an already-bound listener as a command-byte TCP
// server.
func NewServer(listener net.Listener, cfg ServerConfig, logger *logging.Logger, metrics *ServerMetrics) *Server {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultServerConfig().MaxConnections
	}
	if metrics == nil {
		metrics = NewServerMetrics()
	}
	return &Server{
		listener: listener,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		sem:      make(chan struct{}, cfg.MaxConnections),
		shutdown: make(chan struct{}),
	}
}

// Metrics returns the server's prometheus.Collector.
func (s *Server) Metrics() *ServerMetrics { return s.metrics }

// Serve accepts connections until Shutdown is called. Other accept
// errors are logged and retried after a short pause. Excess connections
// beyond MaxConnections are accepted and immediately closed
// (backpressure by drop).
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return nil
			default:
			}
			s.logf("accept error: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		select {
		case s.sem <- struct{}{}:
		default:
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Shutdown stops accepting new connections, waits up to ShutdownDrain
// for in-flight connections to finish, and closes the listener.
func (s *Server) Shutdown() {
	close(s.shutdown)
	_ = s.listener.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownDrain):
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() {
		conn.Close()
		<-s.sem
		s.wg.Done()
		s.metrics.connectionClosed()
	}()

	s.metrics.connectionAccepted()

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.CommandTimeout))
	cmd := make([]byte, 1)
	if _, err := conn.Read(cmd); err != nil {
		s.metrics.addError()
		return
	}

	switch cmd[0] {
	case RoleUpload:
		s.drainLoop(conn)
	case RoleDownload:
		s.fillLoop(conn)
	default:
		s.metrics.addError()
	}
}

// drainLoop reads into a large buffer until EOF, idle timeout, or
// shutdown, counting received bytes.
func (s *Server) drainLoop(conn net.Conn) {
	buf := make([]byte, s.cfg.DrainBufferSize)
	for {
		select {
		case <-s.shutdown:
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		n, err := conn.Read(buf)
		if n > 0 {
			s.metrics.addBytesReceived(int64(n))
		}
		if err != nil {
			return
		}
	}
}

// fillLoop repeatedly writes a pattern-filled buffer until the peer
// disconnects, an error occurs, or shutdown is signaled. It yields
// between iterations so the server's other connections stay responsive.
func (s *Server) fillLoop(conn net.Conn) {
	buf := bytes.Repeat([]byte{0xAA}, s.cfg.FillBufferSize)
	for {
		select {
		case <-s.shutdown:
			return
		default:
		}

		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.ReadTimeout))
		n, err := conn.Write(buf)
		if n > 0 {
			s.metrics.addBytesSent(int64(n))
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.logger == nil {
		return
	}
	s.logger.WithComponent("tcp-server").Debugf(format, args...)
}
