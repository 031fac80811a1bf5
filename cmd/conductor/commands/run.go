package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vulntor/conductor/cmd/conductor/internal/format"
	"github.com/vulntor/conductor/pkg/config"
	"github.com/vulntor/conductor/pkg/engine"
	"github.com/vulntor/conductor/pkg/event"
	"github.com/vulntor/conductor/pkg/plugin"
	"github.com/vulntor/conductor/pkg/session"
)

func newRunCommand() *cobra.Command {
	var (
		outputFormat string
		progress     bool
		quiet        bool
	)

	cmd := &cobra.Command{
		Use:     "run <target>",
		Short:   "Run the selected plugins against a target",
		GroupID: "scan",
		Args:    cobra.ExactArgs(1),
		Example: `  conductor run example.com -m plugins.yaml
  conductor run example.com -m plugins/ --allow-active --parallel --max-workers 8
  conductor run example.com -m plugins.yaml --plugins dns-enum,nmap --timeout nmap=15m
  conductor run example.com -m plugins.yaml --dry-run --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := format.ValidateMode(outputFormat); err != nil {
				return fmt.Errorf("%w: %v", plugin.ErrConfig, err)
			}
			cfg, err := scanConfig(cmd.Context())
			if err != nil {
				return err
			}
			reg, err := loadRegistry(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			opts, err := sessionOptions(args[0], cfg)
			if err != nil {
				return err
			}

			bus := event.New()
			var registry *prometheus.Registry
			sessOpts := []session.Option{
				session.WithLogger(log.Logger),
				session.WithEventBus(bus),
			}
			if cfg.MetricsFile != "" {
				registry = prometheus.NewRegistry()
				sessOpts = append(sessOpts, session.WithMetrics(engine.NewMetrics(registry)))
			}

			sess, err := session.New(reg, opts, sessOpts...)
			if err != nil {
				return err
			}

			stderr := cmd.ErrOrStderr()
			showProgress := useColor(stderr)
			if cmd.Flags().Changed("progress") {
				showProgress = progress
			}
			if showProgress {
				newProgressPrinter(stderr, sess.Schedule().Len(), useColor(stderr)).attach(bus)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out, err := sess.Run(ctx)
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			formatter := format.New(stdout, stderr, format.ParseMode(outputFormat), quiet, useColor(stdout))
			if err := formatter.PrintSession(out.Summary); err != nil {
				return err
			}
			if out.SummaryPath != "" {
				if err := formatter.PrintSummary("Summary written to " + out.SummaryPath); err != nil {
					return err
				}
			}

			if registry != nil {
				if err := prometheus.WriteToTextfile(cfg.MetricsFile, registry); err != nil {
					return fmt.Errorf("write metrics: %w", err)
				}
			}

			if out.Summary.Interrupted {
				return fmt.Errorf("%w before all plugins finished", engine.ErrCancelled)
			}
			return nil
		},
	}

	config.BindSelectionFlags(cmd.Flags())
	config.BindScanFlags(cmd.Flags())
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "table", "Output format: table, json or yaml")
	cmd.Flags().BoolVar(&progress, "progress", false, "Print plugin progress to stderr (default: on when stderr is a terminal)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress the summary output")

	return cmd
}

// sessionOptions maps the scan configuration onto session options.
func sessionOptions(target string, cfg config.ScanConfig) (session.Options, error) {
	timeouts, err := cfg.TimeoutOverrides()
	if err != nil {
		return session.Options{}, fmt.Errorf("%w: %v", plugin.ErrConfig, err)
	}

	return session.Options{
		Target:            target,
		OutputDir:         cfg.OutputDir,
		Plugins:           cfg.Plugins,
		AllowActive:       cfg.AllowActive,
		Parallel:          cfg.Parallel,
		MaxWorkers:        cfg.MaxWorkers,
		DryRun:            cfg.DryRun,
		ReportOnly:        cfg.ReportOnly,
		DefaultTimeout:    cfg.DefaultTimeout,
		Timeouts:          timeouts,
		DependencyWait:    cfg.DependencyWait,
		KillGrace:         cfg.KillGrace,
		MissingDependency: cfg.MissingDependency,
		Args:              os.Args,
	}, nil
}
