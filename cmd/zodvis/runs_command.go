package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"zodvis/lib"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var ledgerPath string

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recorded render runs, or the frame outcomes of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if ledgerPath != "" {
				cfg.OutputBase.Ledger = ledgerPath
			}
			if cfg.OutputBase.Ledger == "" {
				return errors.New("no ledger configured; pass --ledger")
			}
			ledger, err := lib.OpenLedger(cfg.OutputBase.Ledger)
			if err != nil {
				return err
			}
			defer ledger.Close()

			if len(args) == 1 {
				return printFrameOutcomes(cmd, ledger, args[0])
			}
			return printRuns(cmd, ledger)
		},
	}
	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "sqlite ledger to read (overrides config)")
	return cmd
}

func printRuns(cmd *cobra.Command, ledger *lib.Ledger) error {
	runs, err := ledger.Runs(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		state := "finished"
		switch {
		case r.Cancelled:
			state = "cancelled"
		case r.Finished.IsZero():
			state = "incomplete"
		}
		rows = append(rows, []string{
			r.RunID,
			r.Variant,
			r.Started.Local().Format(time.DateTime),
			state,
			strconv.Itoa(r.Succeeded),
			strconv.Itoa(r.Degraded),
			strconv.Itoa(r.Failed),
			r.OutputDir,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Run", "Variant", "Started", "State", "Succeeded", "Degraded", "Failed", "Output"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	))
	return nil
}

func printFrameOutcomes(cmd *cobra.Command, ledger *lib.Ledger, runID string) error {
	records, err := ledger.FrameOutcomes(cmd.Context(), runID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no frame outcomes for run %s", runID)
	}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		detail := r.Err
		if detail == "" {
			var parts []string
			if len(r.SkippedLayers) > 0 {
				parts = append(parts, "skipped: "+strings.Join(r.SkippedLayers, ","))
			}
			if len(r.FailedLayers) > 0 {
				parts = append(parts, "failed: "+strings.Join(r.FailedLayers, ","))
			}
			detail = strings.Join(parts, "; ")
		}
		rows = append(rows, []string{
			strconv.Itoa(r.Index),
			r.FrameID,
			string(r.Status),
			r.Duration.String(),
			detail,
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"#", "Frame", "Status", "Duration", "Detail"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
	))
	return nil
}
