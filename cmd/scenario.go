package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/robofleet/pkg/export"
	"github.com/kilianp07/robofleet/qa/scenarios"
)

var scenarioFormat string

var scenarioCmd = &cobra.Command{
	Use:   "scenario <file>...",
	Short: "Run scripted scenarios and check their expectations",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runScenarios,
}

func init() {
	scenarioCmd.Flags().StringVarP(&scenarioFormat, "format", "f", "", "print the robot report as csv or json")
	rootCmd.AddCommand(scenarioCmd)
}

func runScenarios(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	var failed []error
	for _, path := range args {
		sc, err := scenarios.Load(path)
		if err != nil {
			return err
		}
		res, err := scenarios.Run(sc)
		if err != nil {
			return fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
		status := "ok"
		if err := scenarios.Check(sc, res); err != nil {
			status = "FAIL"
			failed = append(failed, fmt.Errorf("scenario %s: %w", sc.Name, err))
		}
		_, _ = fmt.Fprintf(out, "%-4s %s completed=%d deadlocks=%d distance=%.2f\n",
			status, sc.Name, res.Metrics.TasksCompleted, res.Deadlocks, res.Metrics.Distance)
		switch scenarioFormat {
		case "":
		case "csv":
			err = export.WriteCSV(out, res.Report)
		case "json":
			err = export.WriteJSON(out, res.Report)
		default:
			return fmt.Errorf("unknown format %q", scenarioFormat)
		}
		if err != nil {
			return err
		}
	}
	return errors.Join(failed...)
}
