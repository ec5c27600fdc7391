package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Print the current analysis of a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := sessionFlag(cmd)
		if err != nil {
			return err
		}
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := commandContext(cmd)
		res, err := a.tracker.Analysis(ctx, id)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			m, err := a.tracker.Metrics(ctx, id)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{"analysis": res, "metrics": m})
		}
		fmt.Fprint(out, renderResult(res))
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a session's history as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOutput(cmd, func(a *app, w io.Writer) error {
			id, err := sessionFlag(cmd)
			if err != nil {
				return err
			}
			return a.tracker.ExportCSV(commandContext(cmd), w, id)
		})
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write the analysis and metrics as a text report",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOutput(cmd, func(a *app, w io.Writer) error {
			id, err := sessionFlag(cmd)
			if err != nil {
				return err
			}
			return a.tracker.WriteReport(commandContext(cmd), w, id)
		})
	},
}

// withOutput runs fn against --out, or stdout when it is empty. A partial
// file is removed on failure.
func withOutput(cmd *cobra.Command, fn func(*app, io.Writer) error) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	path, _ := cmd.Flags().GetString("out")
	if path == "" {
		return fn(a, cmd.OutOrStdout())
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(a, f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
	return nil
}

func init() {
	addSessionFlag(analyzeCmd)
	analyzeCmd.Flags().Bool("json", false, "Print analysis and metrics as JSON")

	for _, c := range []*cobra.Command{exportCmd, reportCmd} {
		addSessionFlag(c)
		c.Flags().StringP("out", "o", "", "Output file (default stdout)")
	}
}
