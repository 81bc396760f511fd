package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-attend/internal/log"
	"github.com/teslashibe/go-attend/pkg/attend"
	"github.com/teslashibe/go-attend/pkg/feed"
	"github.com/teslashibe/go-attend/pkg/web"
)

var (
	runSource sourceOptions
	runWindow bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the kiosk until interrupted",
	Long: `Run opens the configured feed and, depending on --mode, uploads a capture
whenever a face is detected (detect), on a fixed timer (interval), or only
when asked through the dashboard (manual).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runKiosk(cmd.Context())
	},
}

func init() {
	runCmd.Flags().StringVar(&runSource.producer, "producer", "", "WebRTC producer name, empty for the first one")
	runCmd.Flags().StringVar(&runSource.staticImage, "image", "", "Image file for the static source (default test pattern)")
	runCmd.Flags().BoolVar(&runWindow, "window", false, "Show the feed in a local OpenCV window")
	rootCmd.AddCommand(runCmd)
}

func runKiosk(ctx context.Context) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	mode, err := attend.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}

	opts := kioskOptions{mode: mode, source: runSource, window: runWindow}

	var dashboard *web.Server
	if cfg.DashboardPort != "" {
		dashboard = web.NewServer(cfg.DashboardPort)
		opts.displays = []feed.Display{dashboard}
		opts.observers = []attend.Observer{dashboard}
	}

	k, err := newKiosk(ctx, opts)
	if err != nil {
		return err
	}
	defer k.close()

	if dashboard != nil {
		dashboard.OnCapture = k.flow.Capture
		dashboard.Stats = k.flow.Stats
		dashboard.StartAsync(ctx)
	}

	if err := k.flow.Start(ctx); err != nil {
		return err
	}
	log.Info("kiosk running", "mode", mode, "source", cfg.Source, "endpoint", cfg.Endpoint)

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}
