package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-attend/pkg/attend"
)

var (
	captureSource sourceOptions
	captureWarmup time.Duration
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Take one capture, print the verdict and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCapture(cmd.Context())
	},
}

func init() {
	captureCmd.Flags().StringVar(&captureSource.producer, "producer", "", "WebRTC producer name, empty for the first one")
	captureCmd.Flags().StringVar(&captureSource.staticImage, "image", "", "Image file for the static source (default test pattern)")
	captureCmd.Flags().DurationVar(&captureWarmup, "warmup", 0, "Wait this long after the feed starts before capturing")
	rootCmd.AddCommand(captureCmd)
}

func runCapture(ctx context.Context) error {
	// detect-only settings are irrelevant for a single manual capture
	cfg.Mode = string(attend.ModeManual)
	if err := cfg.Validate(); err != nil {
		return err
	}

	k, err := newKiosk(ctx, kioskOptions{mode: attend.ModeManual, source: captureSource})
	if err != nil {
		return err
	}
	defer k.close()

	if err := k.flow.Start(ctx); err != nil {
		return err
	}
	if captureWarmup > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(captureWarmup):
		}
	}

	res, err := k.flow.Capture(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s (capture %s, %s)\n", res.Message, res.ID, res.Duration.Round(time.Millisecond))
	return nil
}
