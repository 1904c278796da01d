package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-framestream/internal/log"
	"github.com/teslashibe/go-framestream/pkg/capture"
	"github.com/teslashibe/go-framestream/pkg/capture/opencv"
)

func newProbeCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "List capture devices and show which constraints would be used",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts, map[string]string{
				"facing": "capture.facing",
				"device": "capture.device",
			})
			if err != nil {
				return err
			}
			logger := log.L()
			out := cmd.OutOrStdout()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			opener := opencv.New(opencvConfig(cfg.Capture), logger)
			modes := opener.Probe(ctx)
			if len(modes) == 0 {
				fmt.Fprintln(out, "no capture devices found")
			}
			for _, m := range modes {
				fmt.Fprintln(out, m.String())
			}

			cc := cameraConfig(cfg)
			chain := capture.Chain(cc.Facing, cc.Width, cc.Height, cc.Framerate)
			dev, c, err := capture.Acquire(ctx, opener, chain, logger)
			if err != nil {
				fmt.Fprintln(out, capture.Describe(err))
				return err
			}
			defer dev.Close()
			fmt.Fprintf(out, "selected %s with %s\n", dev.Mode(), c)
			return nil
		},
	}

	f := cmd.Flags()
	f.String("facing", "environment", "preferred camera: environment, user or empty for any")
	f.Int("device", 0, "capture device index")
	f.DurationVar(&timeout, "timeout", 10*time.Second, "give up after this long")
	return cmd
}
