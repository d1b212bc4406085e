package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kyokomi/emoji"
	"github.com/litmuschaos/litmus-scenarios/pkg/environment"
	"github.com/litmuschaos/litmus-scenarios/pkg/events"
	"github.com/litmuschaos/litmus-scenarios/pkg/executor"
	"github.com/litmuschaos/litmus-scenarios/pkg/injector"
	"github.com/litmuschaos/litmus-scenarios/pkg/log"
	"github.com/litmuschaos/litmus-scenarios/pkg/result"
	"github.com/litmuschaos/litmus-scenarios/pkg/runner"
	"github.com/litmuschaos/litmus-scenarios/pkg/scenario"
	"github.com/litmuschaos/litmus-scenarios/pkg/slo"
	"github.com/litmuschaos/litmus-scenarios/pkg/status"
	"github.com/litmuschaos/litmus-scenarios/pkg/target"
	"github.com/litmuschaos/litmus-scenarios/pkg/telemetry"
	"github.com/litmuschaos/litmus-scenarios/pkg/types"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newRunCmd(config *environment.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario-file>",
		Short: "Run a scenario and persist its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd, *config, args[0])
		},
	}
	flags := cmd.Flags()
	flags.String(environment.ProcMount, "/proc", "procfs mount used to resolve targets")
	flags.Duration(environment.HoldTick, 100*time.Millisecond, "granularity at which a hold notices a stop request")
	flags.Duration(environment.RevertTimeout, 30*time.Second, "upper bound of a single revert")
	flags.Duration(environment.StatusTick, 500*time.Millisecond, "status refresh interval")
	flags.Uint(environment.ApplyAttempts, 1, "apply attempts for unavailable targets")
	flags.Duration(environment.RetryWait, time.Second, "wait between apply attempts")
	flags.String(environment.OTelEndpoint, "", "OTLP gRPC endpoint, tracing is disabled when empty")
	flags.String(environment.MetricsAddr, "", "address serving /metrics, disabled when empty")
	flags.Float64(environment.MinSuccessRate, 0, "fail when the success rate is below this value")
	flags.Int(environment.MaxRevertFailures, 0, "fail when more reverts than this failed")
	flags.Duration(environment.MaxRevertP99, 0, "fail when the p99 revert latency exceeds this value")
	return cmd
}

func runScenario(cmd *cobra.Command, config environment.Config, path string) error {
	s, err := scenario.ParseFile(path)
	if err != nil {
		return err
	}

	ctx := telemetry.GetTraceParentContext()
	if config.OTelEndpoint != "" {
		shutdown, err := telemetry.InitOTelSDK(ctx, config.OTelEndpoint)
		if err != nil {
			return errors.Wrap(err, "unable to initialise tracing")
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Errorf("Failed to shutdown OTel SDK, err: %v", err)
			}
		}()
	}

	registry := prometheus.NewRegistry()
	metrics, err := telemetry.NewMetrics(registry)
	if err != nil {
		return errors.Wrap(err, "unable to create metrics")
	}
	defer metrics.Shutdown(context.Background())
	if config.MetricsAddr != "" {
		server := serveMetrics(config.MetricsAddr, registry)
		defer server.Close()
	}

	resolver, err := target.NewResolver(config.ProcMount)
	if err != nil {
		return err
	}
	injectors := injector.New(resolver)
	exec := executor.New(resolver, injectors, executor.Config{
		HoldTick:      config.HoldTick,
		RevertTimeout: config.RevertTimeout,
		ApplyAttempts: config.ApplyAttempts,
		RetryWait:     config.RetryWait,
	})

	sloTracker := slo.NewTracker()
	r := runner.New(exec,
		runner.WithTracker(status.NewTracker(config.RecentLimit)),
		runner.WithSink(result.NewFileStore(config.ResultsDir)),
		runner.WithRecorder(events.NewRecorder(events.LogSink{}, metrics, sloTracker)),
		runner.WithStatusTick(config.StatusTick),
	)

	handle, err := r.Start(ctx, s)
	if err != nil {
		return err
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	go func() {
		select {
		case <-signals:
			r.RequestStop()
		case <-handle.Done():
		}
	}()

	res, runErr := handle.Wait()
	out := cmd.OutOrStdout()
	result.PrintSummary(out, res)

	if live := injectors.Live(); len(live) > 0 {
		log.ErrorWithValues("[Revert]: Faults left behind, manual cleanup required", map[string]interface{}{"Faults": live})
	}
	if runErr != nil {
		return runErr
	}

	if config.Objectives.Enabled() {
		violations := slo.Evaluate(res, sloTracker.Report(), config.Objectives)
		for _, v := range violations {
			fmt.Fprintln(out, emoji.Sprint(":x: ")+v.String())
		}
		if len(violations) > 0 {
			return errors.Errorf("%d objective(s) violated", len(violations))
		}
		fmt.Fprintln(out, emoji.Sprint(":white_check_mark: all objectives met"))
	}
	if handle.State() == types.StateStopped {
		fmt.Fprintln(out, emoji.Sprint(":stop_sign: scenario stopped before completion"))
	}
	return nil
}

func serveMetrics(addr string, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Infof("[Metrics]: Serving metrics on %s/metrics", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("[Metrics]: Metrics server stopped, err: %v", err)
		}
	}()
	return server
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <scenario-file>...",
		Short: "Parse and validate scenario files without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			invalid := 0
			for _, path := range args {
				s, err := scenario.ParseFile(path)
				if err != nil {
					invalid++
					fmt.Fprintln(out, emoji.Sprintf(":x: %v", err))
					continue
				}
				fmt.Fprintln(out, emoji.Sprintf(":white_check_mark: %s: %s, %d phase(s), %d injection(s)",
					path, s.Name, len(s.Phases), s.InjectionCount()))
			}
			if invalid > 0 {
				return errors.Errorf("%d invalid scenario file(s)", invalid)
			}
			return nil
		},
	}
}

func newScenariosCmd(config *environment.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the valid scenarios of the scenarios directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := scenario.LoadDir(config.ScenariosDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, entry := range entries {
				fmt.Fprintf(out, "%-32s %-40s %v\n", entry.Scenario.Name, entry.Path, entry.Scenario.Duration)
			}
			return nil
		},
	}
}

func newResultsCmd(config *environment.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "results [id]",
		Short: "List stored results or print one of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := result.NewFileStore(config.ResultsDir)
			if len(args) == 1 {
				res, err := store.Load(args[0])
				if err != nil {
					return err
				}
				result.PrintSummary(cmd.OutOrStdout(), res)
				return nil
			}
			summaries, err := store.List()
			if err != nil {
				return err
			}
			result.PrintList(cmd.OutOrStdout(), summaries)
			return nil
		},
	}
}
