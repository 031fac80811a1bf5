package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vulntor/conductor/cmd/conductor/internal/format"
	"github.com/vulntor/conductor/pkg/config"
	"github.com/vulntor/conductor/pkg/engine"
	"github.com/vulntor/conductor/pkg/plugin"
)

func newPlanCommand() *cobra.Command {
	var (
		outputFormat string
		saveTo       string
	)

	cmd := &cobra.Command{
		Use:     "plan",
		Short:   "Resolve and print the execution order without running anything",
		GroupID: "scan",
		Args:    cobra.NoArgs,
		Example: `  conductor plan -m plugins.yaml
  conductor plan -m plugins/ --allow-active --format yaml
  conductor plan -m plugins.yaml --save plan.json`,
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

			selected, err := reg.Filter(cfg.AllowActive, cfg.Plugins)
			if err != nil {
				return err
			}
			schedule, err := engine.NewSchedule(selected)
			if err != nil {
				return err
			}
			plan := schedule.Plan()

			if saveTo != "" {
				if err := engine.SavePlanToFile(plan, saveTo); err != nil {
					return err
				}
			}

			stdout := cmd.OutOrStdout()
			formatter := format.New(stdout, cmd.ErrOrStderr(), format.ParseMode(outputFormat), false, useColor(stdout))
			if mode := format.ParseMode(outputFormat); mode != format.ModeTable {
				if err := engine.WritePlan(stdout, plan, string(mode)); err != nil {
					return err
				}
			} else if err := formatter.PrintTable(planHeaders, planRows(plan)); err != nil {
				return err
			}

			warnMissing(cmd.ErrOrStderr(), plan, cfg.MissingDependency)

			if saveTo != "" {
				return formatter.PrintSummary("Plan saved to " + saveTo)
			}
			return nil
		},
	}

	config.BindSelectionFlags(cmd.Flags())
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "table", "Output format: table, json or yaml")
	cmd.Flags().StringVar(&saveTo, "save", "", "Also write the plan to a .json, .yaml or .yml file")

	return cmd
}

var planHeaders = []string{"#", "plugin", "category", "priority", "layer", "timeout", "depends on"}

func planRows(plan engine.Plan) [][]string {
	rows := make([][]string, 0, len(plan.Nodes))
	for i, n := range plan.Nodes {
		timeout := n.Timeout
		if timeout == "" {
			timeout = "default"
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			n.Name,
			n.Category,
			strconv.Itoa(n.Priority),
			strconv.Itoa(n.Layer),
			timeout,
			describeEdges(n.DependsOn),
		})
	}
	return rows
}

// warnMissing reports required dependencies that are outside the selection.
func warnMissing(w io.Writer, plan engine.Plan, policy string) {
	if policy == "" {
		policy = string(engine.MissingSkip)
	}
	for _, n := range plan.Nodes {
		for _, e := range n.DependsOn {
			if e.Missing && !e.Optional {
				fmt.Fprintf(w, "Warning: %s depends on %s, which is not selected (missing dependency policy: %s)\n", n.Name, e.Plugin, policy)
			}
		}
	}
}

func describeEdges(edges []engine.PlanEdge) string {
	if len(edges) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(edges))
	for _, e := range edges {
		s := e.Plugin + "(" + e.Condition
		if e.Optional {
			s += ",optional"
		}
		if e.Missing {
			s += ",missing"
		}
		parts = append(parts, s+")")
	}
	return strings.Join(parts, " ")
}
