package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/urbangrammar/demoland-assistant/internal/toolkit"
)

var toolArgs string

var toolCmd = &cobra.Command{
	Use:   "tool <name>",
	Short: "Invoke a spatial query tool and print its JSON result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("tool"); err != nil {
			return err
		}

		input, err := parseToolArgs(toolArgs)
		if err != nil {
			return err
		}

		env, err := initApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.Tools.Invoke(cmd.Context(), args[0], input)
		if err != nil {
			if toolkit.Recoverable(err) {
				b, _ := json.MarshalIndent(toolkit.NewErrorResponse(err), "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(b))
			}
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

var toolListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the registered tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		printTools(cmd.OutOrStdout(), toolkit.Build(nil))
		return nil
	},
}

func parseToolArgs(raw string) (map[string]any, error) {
	out := map[string]any{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, eris.Wrap(err, "tool: --args must be a JSON object")
	}
	return out, nil
}

func printTools(w io.Writer, r *toolkit.Registry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDESCRIPTION")
	for _, t := range r.Tools() {
		fmt.Fprintf(tw, "%s\t%s\n", t.Name, firstLine(t.Description))
	}
	_ = tw.Flush()
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

func init() {
	toolCmd.Flags().StringVar(&toolArgs, "args", "", "tool arguments as a JSON object")
	toolCmd.AddCommand(toolListCmd)
	rootCmd.AddCommand(toolCmd)
}
