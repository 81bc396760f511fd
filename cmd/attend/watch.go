package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-attend/pkg/attend"
)

var watchURL string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print state updates from a running kiosk dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		url := watchURL
		if url == "" {
			url = "ws://localhost:" + cfg.DashboardPort + "/ws/status"
		}
		return runWatch(cmd.Context(), url)
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchURL, "url", "", "Status websocket URL (default ws://localhost:<dashboard-port>/ws/status)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(ctx context.Context, url string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", url, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	for {
		var state attend.State
		if err := conn.ReadJSON(&state); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read status: %w", err)
		}
		fmt.Println(formatState(state))
	}
}

func formatState(s attend.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s mode=%s live=%t face=%t", time.Now().Format("15:04:05"), s.Mode, s.FeedLive, s.FacePresent)
	if len(s.Boxes) > 0 {
		fmt.Fprintf(&b, " boxes=%d", len(s.Boxes))
	}
	if s.InFlight {
		b.WriteString(" uploading")
	}
	if s.Message != "" {
		fmt.Fprintf(&b, " message=%q", s.Message)
	}
	if s.LastCaptureID != "" {
		fmt.Fprintf(&b, " capture=%s", s.LastCaptureID)
	}
	return b.String()
}
