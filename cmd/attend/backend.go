package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-attend/internal/config"
	"github.com/teslashibe/go-attend/internal/log"
	"github.com/teslashibe/go-attend/pkg/backend"
)

var backendFlags struct {
	addr    string
	matcher string
	match   bool
	userID  string
	name    string
	minArea float64
}

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Serve the reference attendance backend",
	Long: `Backend accepts kiosk uploads at /api/attendance and answers with a verdict.
The static matcher always answers --match; the detector matcher reports a
match when the upload contains a face.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBackend(cmd.Context())
	},
}

func init() {
	f := backendCmd.Flags()
	f.StringVar(&backendFlags.addr, "addr", ":"+config.DefaultBackendPort, "Listen address")
	f.StringVar(&backendFlags.matcher, "matcher", "static", "Matcher: static or detector")
	f.BoolVar(&backendFlags.match, "match", true, "Verdict returned by the static matcher")
	f.StringVar(&backendFlags.userID, "user-id", "", "User ID reported on a match")
	f.StringVar(&backendFlags.name, "name", "", "User name reported on a match")
	f.Float64Var(&backendFlags.minArea, "min-face-area", 0, "Detector matcher: smallest face area in square pixels that counts")
	rootCmd.AddCommand(backendCmd)
}

func runBackend(ctx context.Context) error {
	var matcher backend.Matcher
	switch backendFlags.matcher {
	case "static":
		matcher = backend.StaticMatcher{Verdict: backend.Verdict{
			Matched: backendFlags.match,
			UserID:  backendFlags.userID,
			Name:    backendFlags.name,
		}}
	case "detector":
		det, err := newDetector(cfg.Detector, cfg.ModelPath)
		if err != nil {
			return err
		}
		defer det.Close()
		matcher = backend.DetectorMatcher{
			Detector: det,
			MinArea:  backendFlags.minArea,
			UserID:   backendFlags.userID,
			Name:     backendFlags.name,
		}
	default:
		return fmt.Errorf("unknown matcher %q", backendFlags.matcher)
	}

	srv := backend.NewServer(matcher, backend.Options{})
	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(); err != nil {
			log.Warn("backend shutdown", "err", err)
		}
	}()
	return srv.Listen(backendFlags.addr)
}
