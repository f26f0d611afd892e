package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"zodvis/lib"
)

func newResizeCommand(ctx *commandContext) *cobra.Command {
	var (
		width   int
		quality int
		source  string
		target  string
	)

	cmd := &cobra.Command{
		Use:   "resize",
		Short: "Downsize rendered images into a documentation tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("width") {
				cfg.ResizeBase.Width = width
			}
			if flags.Changed("quality") {
				cfg.ResizeBase.Quality = quality
			}
			if flags.Changed("source") {
				cfg.ResizeBase.Source = source
			}
			if flags.Changed("target") {
				cfg.ResizeBase.Target = target
			}
			if err := cfg.ValidateResize(); err != nil {
				return err
			}
			summary, err := lib.NewResizer(cfg).Run()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d resized, %d optimized, %d failed\n",
				summary.Resized, summary.Optimized, summary.Failed)
			return nil
		},
	}

	defaults := lib.DefaultConfig().ResizeBase
	cmd.Flags().IntVar(&width, "width", defaults.Width, "Maximum output width in pixels")
	cmd.Flags().IntVar(&quality, "quality", defaults.Quality, "JPEG quality (1-100)")
	cmd.Flags().StringVar(&source, "source", defaults.Source, "Folder holding one subfolder per variant")
	cmd.Flags().StringVar(&target, "target", defaults.Target, "Folder to write resized copies to")
	return cmd
}
