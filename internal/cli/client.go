package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nik1740/netspeed/internal/driver"
	"github.com/nik1740/netspeed/internal/report"
	"github.com/nik1740/netspeed/pkg/config"
	"github.com/nik1740/netspeed/pkg/logging"
	"github.com/nik1740/netspeed/pkg/measure"
)

// NewClientCommand builds the `client` subcommand that drives a
// throughput/latency test against a running netspeed server.
func NewClientCommand() *cobra.Command {
	var (
		server      string
		port        int
		duration    time.Duration
		useTCP      bool
		useUDP      bool
		useHTTP1    bool
		useHTTP2    bool
		useH2C      bool
		useHTTP3    bool
		connections int
		sizesFlag   string
		testType    string
		exportPath  string
		debug       bool
	)

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Drive a network performance test against a netspeed server",
		RunE: func(cmd *cobra.Command, args []string) error {
			protocol, err := selectProtocol(useTCP, useUDP, useHTTP1, useHTTP2, useH2C, useHTTP3)
			if err != nil {
				cmd.SilenceUsage = true
				os.Exit(2)
				return err
			}

			sizes, err := parseSizes(sizesFlag)
			if err != nil {
				cmd.SilenceUsage = true
				os.Exit(2)
				return err
			}

			tt := config.TestType(testType)
			switch tt {
			case config.TestDownload, config.TestUpload, config.TestBidirectional,
				config.TestSimultaneous, config.TestLatencyOnly:
			default:
				cmd.SilenceUsage = true
				fmt.Fprintf(os.Stderr, "client: invalid --type %q\n", testType)
				os.Exit(2)
				return nil
			}

			logger := logging.NewDefault()
			if debug {
				logger, _ = logging.NewLogger("debug", "text", "")
			}

			if port == 0 {
				port = protocol.DefaultPort()
			}
			var target string
			if protocol == config.ProtocolTCP || protocol == config.ProtocolUDP {
				target = server + ":" + strconv.Itoa(port)
			} else {
				target = fmt.Sprintf("%s://%s:%d", protocol.Scheme(), server, port)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				logger.WithComponent("client").Info("received shutdown signal")
				cancel()
			}()

			runCfg := driver.RunConfig{
				Protocol:     protocol,
				TestType:     tt,
				PayloadSizes: sizes,
				Duration:     duration,
				Workers:      connections,
				Target:       target,
			}

			result, err := driver.Run(ctx, runCfg)
			if err != nil {
				return fmt.Errorf("client: run: %w", err)
			}

			rep := measure.TestReport{
				StartTime: time.Now().Add(-duration),
				Config:    runCfg,
				Result:    result,
				Timestamp: time.Now(),
				Version:   Version,
			}

			printSummary(logger, rep)

			if exportPath != "" {
				format := report.DetectFormat(exportPath)
				if err := report.Save(exportPath, format, rep); err != nil {
					return fmt.Errorf("client: export %s: %w", exportPath, err)
				}
				logger.WithComponent("client").WithField("path", exportPath).Info("report exported")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "127.0.0.1", "server host")
	cmd.Flags().IntVar(&port, "port", 0, "server port (defaults to the protocol's conventional port)")
	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "test duration per phase")
	cmd.Flags().BoolVar(&useTCP, "tcp", false, "use TCP")
	cmd.Flags().BoolVar(&useUDP, "udp", false, "use UDP (STP)")
	cmd.Flags().BoolVar(&useHTTP1, "http1", false, "use HTTP/1.1")
	cmd.Flags().BoolVar(&useHTTP2, "http2", false, "use HTTP/2 over TLS")
	cmd.Flags().BoolVar(&useH2C, "h2c", false, "use HTTP/2 cleartext")
	cmd.Flags().BoolVar(&useHTTP3, "http3", false, "use HTTP/3 (QUIC)")
	cmd.Flags().IntVar(&connections, "connections", 1, "parallel workers")
	cmd.Flags().StringVar(&sizesFlag, "sizes", "1024,65536,1048576", "comma-separated payload sizes in bytes")
	cmd.Flags().StringVar(&testType, "type", string(config.TestDownload), "download|upload|bidirectional|simultaneous|latency-only")
	cmd.Flags().StringVar(&exportPath, "export", "", "write the report to PATH (.json, .cbor, or .html)")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	return cmd
}

func selectProtocol(tcp, udp, http1, http2, h2c, http3 bool) (config.Protocol, error) {
	chosen := 0
	var p config.Protocol
	for _, c := range []struct {
		on bool
		p  config.Protocol
	}{
		{tcp, config.ProtocolTCP},
		{udp, config.ProtocolUDP},
		{http1, config.ProtocolHTTP1},
		{http2, config.ProtocolHTTP2},
		{h2c, config.ProtocolH2C},
		{http3, config.ProtocolHTTP3},
	} {
		if c.on {
			chosen++
			p = c.p
		}
	}
	if chosen != 1 {
		return "", fmt.Errorf("client: exactly one protocol flag must be set, got %d", chosen)
	}
	return p, nil
}

func parseSizes(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	sizes := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("client: invalid payload size %q", p)
		}
		sizes = append(sizes, n)
	}
	if len(sizes) == 0 {
		return nil, fmt.Errorf("client: --sizes must list at least one positive integer")
	}
	return sizes, nil
}

func printSummary(logger *logging.Logger, rep measure.TestReport) {
	entry := logger.WithComponent("client").WithProtocol(rep.Result.Protocol)
	if rep.Result.Latency != nil {
		entry.WithField("count", rep.Result.Latency.Count()).
			WithField("avg_rtt_ms", rep.Result.Latency.AvgRTT()).
			WithField("loss_rate", rep.Result.Latency.LossRate()).
			Info("latency summary")
	}
	for _, sr := range rep.Result.Download {
		entry.WithField("size", sr.PayloadSize).
			WithField("success", sr.Result.SuccessCount()).
			WithField("avg_throughput_bps", sr.Result.AvgThroughput()).
			Info("download summary")
	}
	for _, sr := range rep.Result.Upload {
		entry.WithField("size", sr.PayloadSize).
			WithField("success", sr.Result.SuccessCount()).
			WithField("avg_throughput_bps", sr.Result.AvgThroughput()).
			Info("upload summary")
	}
}
