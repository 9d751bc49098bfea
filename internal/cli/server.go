package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nik1740/netspeed/internal/httpnet"
	"github.com/nik1740/netspeed/internal/stp"
	"github.com/nik1740/netspeed/internal/tcpnet"
	"github.com/nik1740/netspeed/internal/udpnet"
	"github.com/nik1740/netspeed/pkg/config"
	"github.com/nik1740/netspeed/pkg/logging"
)

// NewServerCommand builds the `server` subcommand, which runs any
// combination of the TCP, UDP (STP), HTTP, and HTTPS listeners.
func NewServerCommand() *cobra.Command {
	var (
		configPath  string
		all         bool
		enableTCP   bool
		enableUDP   bool
		enableHTTP  bool
		enableHTTPS bool
		bind        string
		tcpPort     int
		udpPort     int
		httpPort    int
		httpsPort   int
		certFile    string
		keyFile     string
		debug       bool
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the netspeed multi-protocol server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServerConfig(configPath)
			if err != nil {
				return fmt.Errorf("server: %w", err)
			}
			if bind != "" {
				cfg.Bind = bind
			}
			if all {
				enableTCP, enableUDP, enableHTTP, enableHTTPS = true, true, true, true
			}
			if !enableTCP && !enableUDP && !enableHTTP && !enableHTTPS {
				fmt.Fprintln(os.Stderr, "server: at least one of --all, --tcp, --udp, --http, --https is required")
				os.Exit(2)
				return nil
			}
			if tcpPort != 0 {
				cfg.TCPPort = tcpPort
			}
			if udpPort != 0 {
				cfg.UDPPort = udpPort
			}
			if httpPort != 0 {
				cfg.HTTPPort = httpPort
			}
			if httpsPort != 0 {
				cfg.HTTPSPort = httpsPort
			}
			if certFile != "" {
				cfg.CertFile = certFile
			} else if _, err := os.Stat("./cert.pem"); err == nil {
				cfg.CertFile = "./cert.pem"
			}
			if keyFile != "" {
				cfg.KeyFile = keyFile
			} else if _, err := os.Stat("./key.pem"); err == nil {
				cfg.KeyFile = "./key.pem"
			}

			logger := logging.NewDefault()
			if debug {
				logger, _ = logging.NewLogger("debug", "text", "")
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				logger.WithComponent("server").Info("received shutdown signal")
				cancel()
			}()

			g, gctx := errgroup.WithContext(ctx)

			if enableTCP {
				ln, err := net.Listen("tcp", net.JoinHostPort(cfg.Bind, strconv.Itoa(cfg.TCPPort)))
				if err != nil {
					return fmt.Errorf("server: tcp listen: %w", err)
				}
				srv := tcpnet.NewServer(ln, tcpnet.DefaultServerConfig(), logger, tcpnet.NewServerMetrics())
				logger.WithComponent("server").WithField("addr", ln.Addr().String()).Info("tcp listening")
				g.Go(srv.Serve)
				g.Go(func() error {
					<-gctx.Done()
					srv.Shutdown()
					return nil
				})
			}

			if enableUDP {
				addr := &net.UDPAddr{IP: net.ParseIP(cfg.Bind), Port: cfg.UDPPort}
				conn, err := net.ListenUDP("udp", addr)
				if err != nil {
					return fmt.Errorf("server: udp listen: %w", err)
				}
				srv := udpnet.NewServer(conn, stp.DefaultServerConfig(), logger)
				logger.WithComponent("server").WithField("addr", conn.LocalAddr().String()).Info("udp (stp) listening")
				g.Go(func() error { return srv.Serve(gctx) })
			}

			httpCfg := httpnet.DefaultServerConfig()
			httpCfg.Version = Version
			httpSrv := httpnet.NewServer(httpCfg, logger)

			if enableHTTP {
				addr := net.JoinHostPort(cfg.Bind, strconv.Itoa(cfg.HTTPPort))
				logger.WithComponent("server").WithField("addr", addr).Info("http/1.1 + h2c listening")
				g.Go(func() error { return httpSrv.ServeH2C(gctx, addr) })
			}
			if enableHTTPS {
				addr := net.JoinHostPort(cfg.Bind, strconv.Itoa(cfg.HTTPSPort))
				logger.WithComponent("server").WithField("addr", addr).Info("https (http2) listening")
				g.Go(func() error { return httpSrv.ServeHTTP2(gctx, addr, cfg.CertFile, cfg.KeyFile) })
				g.Go(func() error { return httpSrv.ServeHTTP3(gctx, addr, cfg.CertFile, cfg.KeyFile) })
			}

			if err := g.Wait(); err != nil {
				logger.WithComponent("server").WithError(err).Error("server stopped with error")
				return err
			}
			logger.WithComponent("server").Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "optional YAML config file")
	cmd.Flags().BoolVar(&all, "all", false, "enable tcp, udp, http, and https")
	cmd.Flags().BoolVar(&enableTCP, "tcp", false, "enable the TCP sink/source server")
	cmd.Flags().BoolVar(&enableUDP, "udp", false, "enable the UDP (STP) server")
	cmd.Flags().BoolVar(&enableHTTP, "http", false, "enable the HTTP/1.1 and h2c server")
	cmd.Flags().BoolVar(&enableHTTPS, "https", false, "enable the HTTPS (HTTP/2 + HTTP/3) server")
	cmd.Flags().StringVar(&bind, "bind", "", "bind address (defaults to 0.0.0.0)")
	cmd.Flags().IntVar(&tcpPort, "tcp-port", 0, "TCP port")
	cmd.Flags().IntVar(&udpPort, "udp-port", 0, "UDP port")
	cmd.Flags().IntVar(&httpPort, "http-port", 0, "HTTP port")
	cmd.Flags().IntVar(&httpsPort, "https-port", 0, "HTTPS port")
	cmd.Flags().StringVar(&certFile, "cert", "", "TLS certificate file")
	cmd.Flags().StringVar(&keyFile, "key", "", "TLS key file")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	return cmd
}
