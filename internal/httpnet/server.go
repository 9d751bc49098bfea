package httpnet

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/quic-go/quic-go/http3"

	"github.com/nik1740/netspeed/internal/certs"
	"github.com/nik1740/netspeed/pkg/logging"
)

// ZeroBufferSize is the size of the process-wide immutable buffer
// /download streams slices of without copying.
const ZeroBufferSize = 1 << 20 // 1 MiB

var zeroBuffer = make([]byte, ZeroBufferSize)

// DefaultMaxUploadSize is the default body-size cap for
// POST /upload.
const DefaultMaxUploadSize int64 = 100 << 30 // 100 GiB

// ServerConfig configures the HTTP(S) server core.
type ServerConfig struct {
	MaxUploadSize int64
	EnableCORS    bool
	Version       string
}

// DefaultServerConfig returns the built-in defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{MaxUploadSize: DefaultMaxUploadSize, EnableCORS: true, Version: "dev"}
}

// NewRouter builds the HTTP server's route table: /download,
// /upload, /latency, /info, /health, optionally wrapped in a permissive
// CORS layer.
func NewRouter(cfg ServerConfig, logger *logging.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/download", handleDownload)
	mux.HandleFunc("/upload", handleUpload(cfg.MaxUploadSize))
	mux.HandleFunc("/latency", handleLatency)
	mux.HandleFunc("/info", handleInfo(cfg.Version))
	mux.HandleFunc("/health", handleHealth)

	var handler http.Handler = mux
	if cfg.EnableCORS {
		handler = withCORS(handler)
	}
	return handler
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleDownload streams exactly N bytes over the shared zero buffer in
// chunks of C, never allocating more than one chunk's worth per
// request.
func handleDownload(w http.ResponseWriter, r *http.Request) {
	size, err := strconv.ParseInt(r.URL.Query().Get("size"), 10, 64)
	if err != nil || size < 0 {
		http.Error(w, "invalid size", http.StatusBadRequest)
		return
	}
	chunkSize, err := strconv.Atoi(r.URL.Query().Get("chunk_size"))
	if err != nil || chunkSize <= 0 {
		chunkSize = 65536
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)

	remaining := size
	for remaining > 0 {
		n := int64(chunkSize)
		if n > remaining {
			n = remaining
		}
		chunk := chunkFromZeroBuffer(int(n), chunkSize)
		if _, err := w.Write(chunk); err != nil {
			return
		}
		remaining -= n
	}
}

// chunkFromZeroBuffer returns an n-byte slice backed by the shared zero
// buffer when it fits; requested sizes larger than the zero buffer fall
// back to repeated copy (rare — only when chunk_size exceeds
// ZeroBufferSize).
func chunkFromZeroBuffer(n, chunkSize int) []byte {
	if n <= len(zeroBuffer) {
		return zeroBuffer[:n]
	}
	out := make([]byte, n)
	for copied := 0; copied < n; {
		copied += copy(out[copied:], zeroBuffer)
	}
	return out
}

// handleUpload drains the request body, counting bytes and dropping
// each chunk immediately, enforcing MaxUploadSize.
func handleUpload(maxUploadSize int64) http.HandlerFunc {
	if maxUploadSize <= 0 {
		maxUploadSize = DefaultMaxUploadSize
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > maxUploadSize {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}

		limited := http.MaxBytesReader(w, r.Body, maxUploadSize)
		var total int64
		buf := make([]byte, 64*1024)
		for {
			n, err := limited.Read(buf)
			total += int64(n)
			if err == io.EOF {
				break
			}
			if err != nil {
				http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int64{"bytes_received": total})
	}
}

func handleLatency(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write([]byte("OK"))
	}
}

func handleInfo(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"name":      "netspeed",
			"version":   version,
			"endpoints": []string{"/download", "/upload", "/latency", "/info", "/health"},
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Server runs the HTTP(S) server core across the protocol variants
// needed for HTTP1/H2C/HTTP2/HTTP3.
type Server struct {
	handler http.Handler
	logger  *logging.Logger

	mu      sync.Mutex
	servers []io.Closer
}

// NewServer builds a multi-variant HTTP server core sharing one router.
func NewServer(cfg ServerConfig, logger *logging.Logger) *Server {
	return &Server{handler: NewRouter(cfg, logger), logger: logger}
}

// ServeH2C serves HTTP/1.1 and prior-knowledge cleartext HTTP/2 on the
// same addr until ctx is done: h2c.NewHandler dispatches each connection
// to HTTP/2 or falls back to the wrapped HTTP/1.1 handler.
func (s *Server) ServeH2C(ctx context.Context, addr string) error {
	h2s := &http2.Server{}
	srv := &http.Server{Addr: addr, Handler: h2c.NewHandler(s.handler, h2s)}
	return s.run(ctx, srv)
}

// ServeHTTP2 serves prior-knowledge HTTP/2 over TLS on addr until ctx is
// done, loading certFile/keyFile or falling back to a self-signed
// certificate.
func (s *Server) ServeHTTP2(ctx context.Context, addr, certFile, keyFile string) error {
	tlsCfg, err := certs.Load(certFile, keyFile)
	if err != nil {
		return err
	}
	tlsCfg.NextProtos = []string{"h2"}
	srv := &http.Server{Addr: addr, Handler: s.handler, TLSConfig: tlsCfg}
	if err := http2.ConfigureServer(srv, &http2.Server{}); err != nil {
		return err
	}
	return s.runTLS(ctx, srv, tlsCfg)
}

// ServeHTTP3 serves HTTP/3 over QUIC on addr until ctx is done.
func (s *Server) ServeHTTP3(ctx context.Context, addr, certFile, keyFile string) error {
	tlsCfg, err := certs.Load(certFile, keyFile)
	if err != nil {
		return err
	}
	tlsCfg.NextProtos = []string{"h3"}
	srv := &http3.Server{Addr: addr, Handler: s.handler, TLSConfig: tlsCfg}

	s.track(srv)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		_ = srv.Close()
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) run(ctx context.Context, srv *http.Server) error {
	s.track(srv)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	return s.waitOrClose(ctx, srv, errCh)
}

func (s *Server) runTLS(ctx context.Context, srv *http.Server, tlsCfg *tls.Config) error {
	s.track(srv)
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	tlsLn := tls.NewListener(ln, tlsCfg)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(tlsLn) }()
	return s.waitOrClose(ctx, srv, errCh)
}

func (s *Server) waitOrClose(ctx context.Context, srv *http.Server, errCh chan error) error {
	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) track(c io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers = append(s.servers, c)
}

// Close closes every variant server currently tracked.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.servers {
		_ = c.Close()
	}
}
