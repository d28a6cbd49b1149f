// twr-runtime is the runtime daemon and operator CLI. "serve" runs the
// runtime with its durable stores and metrics endpoint; "dispatch" executes
// one operation against an ephemeral runtime for inspection; "receipts"
// queries the durable receipt log.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tiger/tiered-workflow-runtime/api/execution"
	"github.com/tiger/tiered-workflow-runtime/internal/config"
	"github.com/tiger/tiered-workflow-runtime/internal/engine/patterns"
	"github.com/tiger/tiered-workflow-runtime/internal/observability/receipt"
	"github.com/tiger/tiered-workflow-runtime/internal/observability/slo"
	"github.com/tiger/tiered-workflow-runtime/internal/observability/telemetry"
	"github.com/tiger/tiered-workflow-runtime/internal/runtime/dispatcher"
	"github.com/tiger/tiered-workflow-runtime/internal/runtime/executionpool"
	"github.com/tiger/tiered-workflow-runtime/internal/store/casestore"
	"github.com/tiger/tiered-workflow-runtime/internal/store/kv"
	"github.com/tiger/tiered-workflow-runtime/internal/store/receiptlog"
	"github.com/tiger/tiered-workflow-runtime/internal/store/triggerstore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "twr-runtime: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "twr-runtime",
		Short:         "Tiered workflow runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config (defaults apply when empty)")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newDispatchCmd(&configPath))
	root.AddCommand(newReceiptsCmd(&configPath))
	root.AddCommand(newCaseCmd(&configPath))
	return root
}

// runtimeParts bundles everything a command builds from configuration.
type runtimeParts struct {
	dispatcher *dispatcher.Dispatcher
	receipts   receiptlog.Log
	cases      casestore.Store
	anchors    *receipt.Anchorer
	close      func() error
}

func buildRuntime(cfg config.Config) (*runtimeParts, error) {
	db, err := kv.Open(kv.Config{Path: cfg.Store.Path, InMemory: cfg.Store.InMemory})
	if err != nil {
		return nil, err
	}
	receipts, err := receiptlog.NewBadger(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	triggers, err := triggerstore.NewBadger(db)
	if err != nil {
		receipts.Close()
		db.Close()
		return nil, err
	}
	cases, err := casestore.NewBadger(db)
	if err != nil {
		receipts.Close()
		db.Close()
		return nil, err
	}

	engine := patterns.NewEngine(triggers)
	if err := engine.Triggers().Restore(); err != nil {
		receipts.Close()
		db.Close()
		return nil, fmt.Errorf("restore persistent triggers: %w", err)
	}

	monitor, err := slo.NewMonitor(cfg.SLO.Window)
	if err != nil {
		receipts.Close()
		db.Close()
		return nil, err
	}

	anchors := receipt.NewAnchorer()
	coldPool := executionpool.New(executionpool.Config{})
	d, err := dispatcher.New(dispatcher.Config{
		Engine:   engine,
		Monitor:  monitor,
		Receipts: receipts,
		Anchors:  anchors,
		ColdPool: coldPool,
		Cases:    cases,
	})
	if err != nil {
		coldPool.Close()
		receipts.Close()
		db.Close()
		return nil, err
	}

	return &runtimeParts{
		dispatcher: d,
		receipts:   receipts,
		cases:      cases,
		anchors:    anchors,
		close: func() error {
			coldPool.Close()
			if err := receipts.Close(); err != nil {
				db.Close()
				return err
			}
			return db.Close()
		},
	}, nil
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the runtime with durable stores and a metrics endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			cleanup, err := setupTelemetry(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			// The metrics pipeline must exist before the dispatcher so
			// execution metrics land in the registry.
			var metricsServer *http.Server
			if cfg.Metrics.Enabled {
				registry := prometheus.NewRegistry()
				sink, err := telemetry.NewPrometheusSink(registry)
				if err != nil {
					return err
				}
				metricsPipeline := telemetry.NewPipeline(sink, telemetry.Config{})
				defer metricsPipeline.Close()
				telemetry.SetDefaultEmitter(metricsPipeline)

				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
				mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(http.StatusOK)
					_, _ = w.Write([]byte("ok\n"))
				})
				metricsServer = &http.Server{
					Addr:              cfg.Metrics.ListenAddr,
					Handler:           mux,
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						fmt.Fprintf(cmd.ErrOrStderr(), "twr-runtime: metrics server: %v\n", err)
					}
				}()
				fmt.Fprintf(cmd.OutOrStdout(), "twr-runtime: metrics on %s\n", cfg.Metrics.ListenAddr)
			}

			parts, err := buildRuntime(cfg)
			if err != nil {
				return err
			}
			defer parts.close()

			fmt.Fprintln(cmd.OutOrStdout(), "twr-runtime: serving")
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop

			if metricsServer != nil {
				_ = metricsServer.Close()
			}
			fmt.Fprintln(cmd.OutOrStdout(), "twr-runtime: shutdown")
			return nil
		},
	}
}

// setupTelemetry wires the OTLP pipeline when the config or environment asks
// for it. The returned cleanup restores the previous default emitter.
func setupTelemetry(cfg config.Config) (func(), error) {
	previous := telemetry.DefaultEmitter()

	var pipeline *telemetry.Pipeline
	if cfg.Telemetry.Enabled {
		sink, err := telemetry.NewOTLPHTTPSink(telemetry.OTLPHTTPSinkConfig{
			Endpoint:    cfg.Telemetry.Endpoint,
			ServiceName: cfg.Telemetry.Service,
		})
		if err != nil {
			return nil, err
		}
		pipeline = telemetry.NewPipeline(sink, telemetry.Config{
			QueueCapacity: cfg.Telemetry.QueueCapacity,
			ExportTimeout: cfg.Telemetry.ExportTimeout(),
			LogSampleRate: cfg.Telemetry.LogSampleRate,
		})
	} else {
		var err error
		pipeline, err = telemetry.NewPipelineFromEnv()
		if err != nil {
			return nil, err
		}
	}
	if pipeline == nil {
		return func() { telemetry.SetDefaultEmitter(previous) }, nil
	}
	telemetry.SetDefaultEmitter(pipeline)
	return func() {
		_ = pipeline.Close()
		telemetry.SetDefaultEmitter(previous)
	}, nil
}

func newDispatchCmd(configPath *string) *cobra.Command {
	var (
		operation  string
		inputSize  uint64
		patternID  uint8
		caseID     string
		workflowID string
		vars       []string
		arrived    []string
		inMemory   bool
	)

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Execute one operation through the tiered path and print the outcome",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if inMemory {
				cfg.Store.InMemory = true
			}
			parts, err := buildRuntime(cfg)
			if err != nil {
				return err
			}
			defer parts.close()

			variables, err := parseVars(vars)
			if err != nil {
				return err
			}
			outcome, err := parts.dispatcher.Dispatch(dispatcher.Request{
				Operation: operation,
				InputSize: inputSize,
				Pattern:   execution.PatternID(patternID),
				Context: &execution.Context{
					CaseID:      caseID,
					WorkflowID:  workflowID,
					Variables:   variables,
					ArrivedFrom: arrived,
				},
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, outcome)
		},
	}
	cmd.Flags().StringVar(&operation, "op", "", "operation name (e.g. ASK_SP)")
	cmd.Flags().Uint64Var(&inputSize, "size", 0, "operation input size in elements")
	cmd.Flags().Uint8Var(&patternID, "pattern", 1, "pattern id (1-43)")
	cmd.Flags().StringVar(&caseID, "case", "cli-case", "case id")
	cmd.Flags().StringVar(&workflowID, "workflow", "cli-wf", "workflow id")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "context variable key=value (repeatable)")
	cmd.Flags().StringArrayVar(&arrived, "arrived", nil, "arrived edge id (repeatable)")
	cmd.Flags().BoolVar(&inMemory, "in-memory", false, "force an in-memory store")
	_ = cmd.MarkFlagRequired("op")
	return cmd
}

func newReceiptsCmd(configPath *string) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "receipts",
		Short: "List recent execution receipts, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			parts, err := buildRuntime(cfg)
			if err != nil {
				return err
			}
			defer parts.close()

			recent, err := parts.receipts.QueryRecent(count)
			if err != nil {
				return err
			}
			return printJSON(cmd, recent)
		},
	}
	cmd.Flags().IntVar(&count, "recent", 10, "number of receipts to list")
	return cmd
}

func newCaseCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "case <case-id>",
		Short: "Show the persisted state of one workflow case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			parts, err := buildRuntime(cfg)
			if err != nil {
				return err
			}
			defer parts.close()

			c, err := parts.cases.Load(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, c)
		},
	}
}

func parseVars(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --var %q, want key=value", pair)
		}
		out[key] = value
	}
	return out, nil
}

func printJSON(cmd *cobra.Command, payload any) error {
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(raw))
	return nil
}
