// twr-conformance runs the release gate: the full pattern catalogue, the
// reference end-to-end scenarios, and the per-tier SLO summaries. The
// process exits non-zero when the gate fails, so CI can block on it.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tiger/tiered-workflow-runtime/internal/tooling/conformance"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "twr-conformance: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var outPath string

	root := &cobra.Command{
		Use:           "twr-conformance",
		Short:         "Run the runtime conformance gate and emit a JSON report",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report := conformance.Run()
			raw, err := report.Encode()
			if err != nil {
				return err
			}
			if err := conformance.ValidateReport(raw); err != nil {
				return err
			}

			if outPath != "" {
				if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
					return fmt.Errorf("create report directory: %w", err)
				}
				if err := os.WriteFile(outPath, raw, 0o644); err != nil {
					return fmt.Errorf("write report %s: %w", outPath, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "twr-conformance: report=%s patterns=%d passed=%t\n",
					outPath, len(report.Patterns), report.Passed)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			}

			if !report.Passed {
				return fmt.Errorf("gate failed with %d violation(s)", len(report.Violations))
			}
			return nil
		},
	}
	root.Flags().StringVar(&outPath, "out", "", "write the report to this path instead of stdout")
	return root
}
