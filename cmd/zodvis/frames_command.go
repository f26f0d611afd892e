package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"zodvis/lib"
)

func newFramesCommand(ctx *commandContext) *cobra.Command {
	var dataset datasetFlags

	cmd := &cobra.Command{
		Use:   "frames",
		Short: "List frame identifiers, train split first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dataset.apply(&cfg)
			ds, err := lib.NewDataset(cfg.DataBase.DataRoot, cfg.DataBase.Version)
			if err != nil {
				return err
			}
			ids, err := lib.AllFrameIDs(ds)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, id := range ids {
				fmt.Fprintln(out, id)
			}
			return nil
		},
	}
	dataset.register(cmd)
	return cmd
}
