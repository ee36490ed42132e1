package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/crosspost/errors"
	"github.com/teranos/crosspost/pulse/engine"
)

// ProcessCmd runs one processing pass
var ProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Run one processing pass",
	Long: `Find due jobs, publish them, and print the pass summary.

Equivalent to POST /api/scheduler/process. Safe to run while a server or
other process is also processing; per-job locks keep passes apart.
Per-job failures are reported in the summary and do not change the exit
status.`,
	RunE: runProcess,
}

func init() {
	ProcessCmd.Flags().BoolP("json", "j", false, "Print the summary as JSON")
}

func runProcess(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary := a.processor.ProcessDueJobs(ctx)

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return errors.Wrap(err, "failed to encode summary")
		}
	} else if err := renderSummary(cmd.OutOrStdout(), summary); err != nil {
		return err
	}
	return nil
}

func renderSummary(w io.Writer, s engine.Summary) error {
	table := pterm.TableData{
		{"Processed", "Successful", "Partial", "Failed", "Skipped", "Errors"},
		{
			strconv.Itoa(s.Processed),
			strconv.Itoa(s.Successful),
			strconv.Itoa(s.Partial),
			strconv.Itoa(s.Failed),
			strconv.Itoa(s.Skipped),
			strconv.Itoa(len(s.Errors)),
		},
	}
	out, err := pterm.DefaultTable.WithHasHeader().WithData(table).Srender()
	if err != nil {
		return errors.Wrap(err, "failed to render summary")
	}
	fmt.Fprintln(w, out)
	for _, e := range s.Errors {
		fmt.Fprintln(w, pterm.Warning.Sprint(e))
	}
	return nil
}
