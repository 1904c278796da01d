package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-framestream/internal/config"
	"github.com/teslashibe/go-framestream/internal/log"
	"github.com/teslashibe/go-framestream/pkg/loopback"
)

func newLoopbackCmd(opts *rootOptions) *cobra.Command {
	var ack bool
	cmd := &cobra.Command{
		Use:   "loopback",
		Short: "Serve a local processing endpoint that echoes frames back",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts, map[string]string{
				"port":    "loopback.port",
				"latency": "loopback.latency",
				"debug":   "loopback.debug",
			})
			if err != nil {
				return err
			}

			logger := log.L()
			if cfg.Loopback.Debug {
				logger = log.New(cmd.ErrOrStderr(), "debug", cfg.Logging.Format)
			}

			srv := loopback.NewServer(loopback.Config{
				Latency: cfg.Loopback.Latency,
				Ack:     ack || cfg.Channel.RequireAck,
			}, nil, logger)

			addr := fmt.Sprintf(":%d", cfg.Loopback.Port)
			err = srv.ListenAndServe(cmd.Context(), addr)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	f := cmd.Flags()
	f.Int("port", config.DefaultLoopbackPort, "listen port")
	f.Duration("latency", 0, "artificial delay before each processed frame")
	f.Bool("debug", false, "log every connection")
	f.BoolVar(&ack, "ack", false, "acknowledge every message carrying an id")
	return cmd
}
