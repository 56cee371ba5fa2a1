package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/urbangrammar/demoland-assistant/internal/layers"
)

var layersCmd = &cobra.Command{
	Use:   "layers",
	Short: "Inspect the reference layers",
}

var layersStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Load every configured layer and report its size",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("layers"); err != nil {
			return err
		}

		c := layers.New(cfg.Data.Sources())
		err := c.Warm(cmd.Context())
		printLayerStatus(cmd.OutOrStdout(), c.Loaded())
		return err
	},
}

func printLayerStatus(w io.Writer, statuses []layers.Status) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LAYER\tLOADED\tFEATURES\tPATH")
	for _, s := range statuses {
		path := s.Path
		if path == "" {
			path = "-"
		}
		fmt.Fprintf(tw, "%s\t%t\t%d\t%s\n", s.Name, s.Loaded, s.Features, path)
	}
	_ = tw.Flush()
}

func init() {
	layersCmd.AddCommand(layersStatusCmd)
	rootCmd.AddCommand(layersCmd)
}
