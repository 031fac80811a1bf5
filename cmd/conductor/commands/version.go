package commands

import (
	"fmt"
	"io"
	"text/template"

	"github.com/spf13/cobra"

	"github.com/vulntor/conductor/cmd/conductor/internal/format"
	"github.com/vulntor/conductor/pkg/version"
)

var versionTemplate = `Version:      {{.Version}}
Commit:       {{.Commit}}
Go version:   {{.GoVersion}}
Built:        {{.BuildDate}}
OS/Arch:      {{.Platform}}
`

func newVersionCommand() *cobra.Command {
	var (
		short        bool
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:     "version",
		Short:   "Print the version number of Conductor",
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if short {
				_, err := fmt.Fprintln(out, version.Version)
				return err
			}
			if mode := format.ParseMode(outputFormat); mode != format.ModeTable {
				return format.New(out, cmd.ErrOrStderr(), mode, false, false).PrintData(version.Get())
			}
			return printVersion(out)
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "Print only the version number")
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text, json or yaml")

	return cmd
}

func printVersion(w io.Writer) error {
	tmpl, err := template.New("version").Parse(versionTemplate)
	if err != nil {
		return err
	}
	return tmpl.Execute(w, version.Get())
}
