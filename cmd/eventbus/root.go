package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/yaoapp/eventbus/config"
	"github.com/yaoapp/eventbus/event"
	"github.com/yaoapp/kun/log"
)

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "eventbus",
		Short:         "In-process event bus demo",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before the environment")
	root.AddCommand(newRunCmd(&envFile))
	return root
}

func newRunCmd(envFile *string) *cobra.Command {
	opts := pipelineOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate random numbers through a throttled I/O handler and print them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			closer := cfg.SetupLogging()
			defer closer.Close()

			if cmd.Flags().Changed("io-workers") {
				cfg.IOWorkers = opts.ioWorkers
			}
			if cfg.IOWorkers < 1 {
				return fmt.Errorf("io-workers must be at least 1, got %d", cfg.IOWorkers)
			}

			bus := event.NewFromConfig(cfg)
			ctx, cancel := context.WithTimeout(context.Background(), cfg.DrainTimeout+opts.expected())
			defer cancel()
			defer func() {
				if err := bus.Close(ctx); err != nil {
					log.Error("eventbus close: %v", err)
				}
			}()

			w := cmd.OutOrStdout()
			out := newPrinter(w, opts.color && isTerminal(w))
			start := time.Now()
			if err := runPipeline(ctx, bus, opts, out); err != nil {
				return err
			}
			out.finished(time.Since(start), bus.Stats())
			return nil
		},
	}

	cmd.Flags().IntVarP(&opts.count, "count", "n", 2, "how many random numbers to generate")
	cmd.Flags().Float64Var(&opts.max, "max", 100, "upper bound of generated numbers")
	cmd.Flags().IntVar(&opts.throttle, "throttle", 1, "max random generations per window (0 = unthrottled)")
	cmd.Flags().DurationVar(&opts.window, "window", time.Second, "throttle window")
	cmd.Flags().IntVar(&opts.ioWorkers, "io-workers", 1, "I/O pool size (overrides EVENTBUS_IO_WORKERS)")
	cmd.Flags().BoolVar(&opts.color, "color", true, "colorize output when writing to a terminal")
	return cmd
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
