package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/vulntor/conductor/pkg/appctx"
	"github.com/vulntor/conductor/pkg/config"
	"github.com/vulntor/conductor/pkg/logging"
	"github.com/vulntor/conductor/pkg/manifest"
	"github.com/vulntor/conductor/pkg/paths"
	"github.com/vulntor/conductor/pkg/plugin"
)

const cliExecutable = "conductor"

// NewCommand constructs the top-level conductor CLI command, wiring global
// flags and loading the layered configuration before any subcommand runs.
func NewCommand() *cobra.Command {
	var (
		configFile     string
		verbosityCount int
	)

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "Conductor runs scanning tools as a dependency-ordered plugin session",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := configFile
			if path == "" {
				path = paths.ConfigFile()
			}
			manager := config.NewManager()
			if err := manager.Load(cmd.Flags(), path); err != nil {
				return fmt.Errorf("%w: %v", plugin.ErrConfig, err)
			}

			cfg := manager.Get()
			logging.SetFormat(cfg.Log.Format)
			if err := logging.ConfigureGlobalLogging(logging.VerbosityLevel(verbosityCount, cfg.Log.Level)); err != nil {
				return fmt.Errorf("%w: %v", plugin.ErrConfig, err)
			}

			cmd.SetContext(appctx.WithConfig(cmd.Context(), manager))
			return nil
		},
	}

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path (default "+paths.ConfigFile()+")")
	cmd.PersistentFlags().CountVarP(&verbosityCount, "verbosity", "v", "Increase logging verbosity (repeatable)")

	config.BindFlags(cmd.PersistentFlags())

	cmd.AddGroup(&cobra.Group{ID: "scan", Title: "Scan Commands"})
	cmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands"})

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newPlanCommand())
	cmd.AddCommand(newPluginsCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// scanConfig returns the scan section of the configuration loaded by the
// root command.
func scanConfig(ctx context.Context) (config.ScanConfig, error) {
	manager, ok := appctx.Config(ctx)
	if !ok {
		return config.ScanConfig{}, fmt.Errorf("%w: configuration not loaded", plugin.ErrConfig)
	}
	return manager.Get().Scan, nil
}

// loadRegistry returns the registry stored on ctx, or builds one from the
// configured manifests.
func loadRegistry(ctx context.Context, cfg config.ScanConfig) (*plugin.Registry, error) {
	if reg, ok := appctx.Registry(ctx); ok {
		return reg, nil
	}
	if len(cfg.Manifests) == 0 {
		return nil, fmt.Errorf("%w: no plugin manifests given (use --manifest or scan.manifests)", plugin.ErrConfig)
	}

	reg := plugin.NewRegistry()
	if _, err := manifest.Register(reg, cfg.Manifests...); err != nil {
		return nil, err
	}
	return reg, nil
}

// useColor reports whether w is an interactive terminal.
func useColor(w any) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
