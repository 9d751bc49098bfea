package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nik1740/netspeed/internal/report"
)

// NewReportCommand builds the `report` subcommand, which reads a saved
// JSON or CBOR report and optionally renders it as HTML.
func NewReportCommand() *cobra.Command {
	var (
		file       string
		exportHTML string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Inspect a saved netspeed report",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				fmt.Fprintln(os.Stderr, "report: --file is required")
				os.Exit(2)
				return nil
			}

			rep, err := report.Load(file)
			if err != nil {
				return fmt.Errorf("report: %w", err)
			}

			fmt.Printf("protocol: %s\nversion: %s\ntimestamp: %s\n", rep.Result.Protocol, rep.Version, rep.Timestamp)
			if rep.Result.Latency != nil {
				fmt.Printf("latency: count=%d avg_ms=%.3f loss_rate=%.2f\n",
					rep.Result.Latency.Count(), rep.Result.Latency.AvgRTT(), rep.Result.Latency.LossRate())
			}
			for _, sr := range rep.Result.Download {
				fmt.Printf("download size=%d success=%d avg_bps=%.0f\n", sr.PayloadSize, sr.Result.SuccessCount(), sr.Result.AvgThroughput())
			}
			for _, sr := range rep.Result.Upload {
				fmt.Printf("upload size=%d success=%d avg_bps=%.0f\n", sr.PayloadSize, sr.Result.SuccessCount(), sr.Result.AvgThroughput())
			}

			if exportHTML != "" {
				if err := report.Save(exportHTML, report.FormatHTML, rep); err != nil {
					return fmt.Errorf("report: export html %s: %w", exportHTML, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "path to a saved JSON or CBOR report")
	cmd.Flags().StringVar(&exportHTML, "export-html", "", "render the report as HTML to PATH")

	return cmd
}
