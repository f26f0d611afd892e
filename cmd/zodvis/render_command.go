package main

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/spf13/cobra"

	"zodvis/lib"
)

type datasetFlags struct {
	root    string
	version string
}

func (f *datasetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.root, "dataset-root", "", "Dataset root directory (overrides config)")
	cmd.Flags().StringVar(&f.version, "version", "", "Dataset version: mini or full (overrides config)")
}

func (f *datasetFlags) apply(cfg *lib.Config) {
	if f.root != "" {
		cfg.DataBase.DataRoot = f.root
	}
	if f.version != "" {
		cfg.DataBase.Version = f.version
	}
}

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var (
		dataset    datasetFlags
		output     string
		ledgerPath string
		plotPath   string
		noProgress bool
	)

	cmd := &cobra.Command{
		Use:       "render [camera|lidar_compensated|lidar]",
		Short:     "Render one visualization variant for every frame",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: lib.Variants,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.RenderBase.Variant = args[0]
			}
			dataset.apply(&cfg)
			if output != "" {
				cfg.OutputBase.OutputRoot = output
			}
			if ledgerPath != "" {
				cfg.OutputBase.Ledger = ledgerPath
			}
			if plotPath != "" {
				cfg.OutputBase.PlotPath = plotPath
			}
			if noProgress {
				cfg.RenderBase.ShowProgress = false
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runRender(cmd, cfg)
		},
	}

	dataset.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output root directory (overrides config)")
	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "Record run outcomes in this sqlite file")
	cmd.Flags().StringVar(&plotPath, "plot", "", "Save a bar chart of frame outcomes to this PNG")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
	return cmd
}

func runRender(cmd *cobra.Command, cfg lib.Config) error {
	ds, err := lib.NewDataset(cfg.DataBase.DataRoot, cfg.DataBase.Version)
	if err != nil {
		return err
	}
	ids, err := lib.AllFrameIDs(ds)
	if err != nil {
		return err
	}
	vis, err := lib.NewVisualizer(cfg)
	if err != nil {
		return err
	}

	batch := lib.NewBatch(cfg, ds, vis)
	if cfg.OutputBase.Ledger != "" {
		ledger, err := lib.OpenLedger(cfg.OutputBase.Ledger)
		if err != nil {
			return err
		}
		defer ledger.Close()
		batch.Ledger = ledger
	}

	summary, runErr := batch.Run(cmd.Context(), ids)
	if summary == nil {
		return runErr
	}
	lib.PrintSummary(cmd.OutOrStdout(), summary)
	if path, err := lib.SaveSummaryJSON(summary); err != nil {
		log.Printf("[Render] %v", err)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Summary written to %s\n", path)
	}
	if err := lib.SaveYaml(cfg, filepath.Join(summary.OutputDir, lib.ConfigFilename)); err != nil {
		log.Printf("[Render] %v", err)
	}
	if cfg.OutputBase.PlotPath != "" {
		if err := lib.SaveSummaryPlot(summary, cfg.OutputBase.PlotPath); err != nil {
			log.Printf("[Render] %v", err)
		}
	}
	return runErr
}
