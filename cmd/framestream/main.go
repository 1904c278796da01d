// Command framestream streams camera frames to a processing service over a
// websocket and renders what comes back.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-framestream/internal/config"
	"github.com/teslashibe/go-framestream/internal/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "framestream:", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "framestream",
		Short:         "Stream camera frames to a processing service and render the results",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default: search "+config.ConfigPathEnvVar+" then ./framestream.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newLoopbackCmd(opts))
	root.AddCommand(newProbeCmd(opts))
	return root
}

// loadConfig loads the layered config and applies flags the user set.
// flagKeys maps flag names to config keys.
func loadConfig(cmd *cobra.Command, opts *rootOptions, flagKeys map[string]string) (*config.Config, error) {
	overrides := map[string]any{}
	if opts.logLevel != "" {
		overrides["logging.level"] = opts.logLevel
	}
	if opts.logFormat != "" {
		overrides["logging.format"] = opts.logFormat
	}

	flags := cmd.Flags()
	for name, key := range flagKeys {
		if !flags.Changed(name) {
			continue
		}
		f := flags.Lookup(name)
		switch f.Value.Type() {
		case "bool":
			v, _ := flags.GetBool(name)
			overrides[key] = v
		case "int":
			v, _ := flags.GetInt(name)
			overrides[key] = v
		case "float64":
			v, _ := flags.GetFloat64(name)
			overrides[key] = v
		case "duration":
			v, _ := flags.GetDuration(name)
			overrides[key] = v
		default:
			overrides[key] = f.Value.String()
		}
	}

	cfg, err := config.LoadWithOverrides(opts.configPath, overrides)
	if err != nil {
		return nil, err
	}
	log.Init(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}
