package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/urbangrammar/demoland-assistant/internal/scenario"
)

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the joined scenario table as CSV or XLSX",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("export"); err != nil {
			return err
		}

		env, err := initApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		var w io.Writer = cmd.OutOrStdout()
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return eris.Wrapf(err, "export: create %s", exportOut)
			}
			defer f.Close()
			w = f
		}

		if err := scenario.Export(env.Scenario, exportFormat, w); err != nil {
			return err
		}
		if exportOut != "" {
			zap.L().Info("scenario exported",
				zap.String("format", exportFormat),
				zap.String("path", exportOut),
				zap.Int("units", env.Scenario.Len()),
			)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", scenario.FormatCSV, "output format: csv or xlsx")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}
