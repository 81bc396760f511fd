package attend

import (
	"sync/atomic"
	"time"
)

// Stats counts flow activity. All methods are safe for concurrent use.
type Stats struct {
	ticks           atomic.Int64
	skippedTicks    atomic.Int64
	faceTicks       atomic.Int64
	captures        atomic.Int64
	uploads         atomic.Int64
	matches         atomic.Int64
	misses          atomic.Int64
	busy            atomic.Int64
	encodeErrors    atomic.Int64
	transportErrors atomic.Int64
	authErrors      atomic.Int64
	detectErrors    atomic.Int64
	totalLatency    atomic.Int64
	lastUpload      atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Ticks           int64   `json:"ticks"`
	SkippedTicks    int64   `json:"skipped_ticks"`
	FaceTicks       int64   `json:"face_ticks"`
	Captures        int64   `json:"captures"`
	Uploads         int64   `json:"uploads"`
	Matches         int64   `json:"matches"`
	Misses          int64   `json:"misses"`
	Busy            int64   `json:"busy"`
	EncodeErrors    int64   `json:"encode_errors"`
	TransportErrors int64   `json:"transport_errors"`
	AuthErrors      int64   `json:"auth_errors"`
	DetectErrors    int64   `json:"detect_errors"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
	LastUpload      int64   `json:"last_upload,omitempty"`
}

func (s *Stats) recordTick(skipped, face bool) {
	s.ticks.Add(1)
	if skipped {
		s.skippedTicks.Add(1)
	}
	if face {
		s.faceTicks.Add(1)
	}
}

func (s *Stats) recordUpload(matched bool, d time.Duration) {
	s.uploads.Add(1)
	if matched {
		s.matches.Add(1)
	} else {
		s.misses.Add(1)
	}
	s.totalLatency.Add(d.Milliseconds())
	s.lastUpload.Store(time.Now().Unix())
}

func (s *Stats) recordTransportError(d time.Duration) {
	s.transportErrors.Add(1)
	s.totalLatency.Add(d.Milliseconds())
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Ticks:           s.ticks.Load(),
		SkippedTicks:    s.skippedTicks.Load(),
		FaceTicks:       s.faceTicks.Load(),
		Captures:        s.captures.Load(),
		Uploads:         s.uploads.Load(),
		Matches:         s.matches.Load(),
		Misses:          s.misses.Load(),
		Busy:            s.busy.Load(),
		EncodeErrors:    s.encodeErrors.Load(),
		TransportErrors: s.transportErrors.Load(),
		AuthErrors:      s.authErrors.Load(),
		DetectErrors:    s.detectErrors.Load(),
		LastUpload:      s.lastUpload.Load(),
	}
	if n := snap.Uploads + snap.TransportErrors; n > 0 {
		snap.AvgLatencyMs = float64(s.totalLatency.Load()) / float64(n)
	}
	return snap
}
