package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vulntor/conductor/cmd/conductor/internal/format"
	"github.com/vulntor/conductor/pkg/config"
	"github.com/vulntor/conductor/pkg/plugin"
)

func newPluginsCommand() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:     "plugins",
		Aliases: []string{"list"},
		Short:   "List registered plugins and whether their tools are available",
		GroupID: "core",
		Args:    cobra.NoArgs,
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

			rows := make([][]string, 0, reg.Len())
			for _, d := range reg.List() {
				available := "no"
				if d.Plugin.IsAvailable(cmd.Context()) {
					available = "yes"
				}
				version := d.Version
				if version == "" {
					version = "-"
				}
				timeout := "default"
				if d.Timeout > 0 {
					timeout = d.Timeout.String()
				}
				deps := "-"
				if names := d.DependsOn(); len(names) > 0 {
					deps = strings.Join(names, ",")
				}
				rows = append(rows, []string{
					d.Name, version, string(d.Category), strconv.Itoa(d.Priority), timeout, available, deps,
				})
			}

			stdout := cmd.OutOrStdout()
			formatter := format.New(stdout, cmd.ErrOrStderr(), format.ParseMode(outputFormat), false, useColor(stdout))
			return formatter.PrintTable([]string{"name", "version", "category", "priority", "timeout", "available", "depends_on"}, rows)
		},
	}

	config.BindManifestFlags(cmd.Flags())
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "table", "Output format: table, json or yaml")

	return cmd
}
