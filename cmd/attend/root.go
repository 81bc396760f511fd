package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-attend/internal/config"
	"github.com/teslashibe/go-attend/internal/log"
)

// Version is the application version.
const Version = "0.1.0"

var (
	// cfg is loaded from .env and the environment, then overridden by flags.
	cfg config.Config

	envFile string
	flags   flagValues
)

// flagValues mirrors the config keys that can be overridden on the command line.
type flagValues struct {
	endpoint       string
	source         string
	device         string
	signallingURL  string
	mode           string
	detectInterval time.Duration
	uploadInterval time.Duration
	detector       string
	modelPath      string
	quality        int
	filename       string
	dashboardPort  string
	logLevel       string
	logFormat      string
}

var rootCmd = &cobra.Command{
	Use:          "attend",
	Short:        "Face-gated attendance kiosk",
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var files []string
		if envFile != "" {
			files = append(files, envFile)
		}
		loaded, err := config.Load(files...)
		if err != nil {
			return err
		}
		cfg = loaded
		applyFlags(cmd)

		log.Init(cfg.LogLevel, cfg.LogFormat)
		return nil
	},
}

func execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	d := config.Default()
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&envFile, "env-file", "", "Load settings from this file instead of .env")
	pf.StringVar(&flags.endpoint, "endpoint", d.Endpoint, "Attendance backend upload URL (ATTEND_ENDPOINT)")
	pf.StringVar(&flags.source, "source", d.Source, "Feed source: device, webrtc or static (ATTEND_SOURCE)")
	pf.StringVar(&flags.device, "device", d.Device, "Camera index or path (CAMERA_DEVICE)")
	pf.StringVar(&flags.signallingURL, "signalling-url", "", "WebRTC signalling server (SIGNALLING_URL)")
	pf.StringVar(&flags.mode, "mode", d.Mode, "Capture mode: detect, interval or manual (ATTEND_MODE)")
	pf.DurationVar(&flags.detectInterval, "detect-interval", d.DetectInterval, "Detection tick period (DETECT_INTERVAL)")
	pf.DurationVar(&flags.uploadInterval, "upload-interval", d.UploadInterval, "Interval mode capture period (UPLOAD_INTERVAL)")
	pf.StringVar(&flags.detector, "detector", d.Detector, "Face detector: yunet, haar or none (DETECTOR)")
	pf.StringVar(&flags.modelPath, "model", d.ModelPath, "Detector model file (DETECTOR_MODEL)")
	pf.IntVar(&flags.quality, "quality", d.Quality, "JPEG quality 1-100 (JPEG_QUALITY)")
	pf.StringVar(&flags.filename, "filename", d.Filename, "Multipart filename of each capture (CAPTURE_FILENAME)")
	pf.StringVar(&flags.dashboardPort, "dashboard-port", d.DashboardPort, "Dashboard port, empty to disable (DASHBOARD_PORT)")
	pf.StringVar(&flags.logLevel, "log-level", d.LogLevel, "Log level: debug, info, warn, error (LOG_LEVEL)")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: text or json (LOG_FORMAT)")
}

// applyFlags copies explicitly set flags over the loaded config, so
// environment values survive when a flag is left at its default.
func applyFlags(cmd *cobra.Command) {
	set := cmd.Flags().Changed
	if set("endpoint") {
		cfg.Endpoint = flags.endpoint
	}
	if set("source") {
		cfg.Source = flags.source
	}
	if set("device") {
		cfg.Device = flags.device
	}
	if set("signalling-url") {
		cfg.SignallingURL = flags.signallingURL
	}
	if set("mode") {
		cfg.Mode = flags.mode
	}
	if set("detect-interval") {
		cfg.DetectInterval = flags.detectInterval
	}
	if set("upload-interval") {
		cfg.UploadInterval = flags.uploadInterval
	}
	if set("detector") {
		cfg.Detector = flags.detector
	}
	if set("model") {
		cfg.ModelPath = flags.modelPath
	}
	if set("quality") {
		cfg.Quality = flags.quality
	}
	if set("filename") {
		cfg.Filename = flags.filename
	}
	if set("dashboard-port") {
		cfg.DashboardPort = flags.dashboardPort
	}
	if set("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if set("log-format") {
		cfg.LogFormat = flags.logFormat
	}
}
