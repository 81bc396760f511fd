// Package webrtc receives a remote camera over WebRTC. It speaks the
// GStreamer webrtcsink signalling protocol, depacketizes the H264 track and
// decodes pictures with ffmpeg into a latest-frame buffer.
package webrtc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/rtp/codecs"
	pion "github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-attend/internal/log"
	"github.com/teslashibe/go-attend/pkg/feed"
)

// Config configures the remote feed.
type Config struct {
	// SignallingURL is the signalling websocket, e.g. ws://camera.local:8443.
	SignallingURL string

	// Producer is the producer meta name to attach to. Empty picks the first.
	Producer string

	// ConnectTimeout bounds signalling and the wait for the first picture.
	ConnectTimeout time.Duration

	// DecodeInterval is the minimum time between decodes.
	DecodeInterval time.Duration

	Decoder Decoder

	// ICEServers for the peer connection, usually empty on a LAN.
	ICEServers []string
}

// DefaultConfig returns LAN defaults for url.
func DefaultConfig(url string) Config {
	return Config{
		SignallingURL:  url,
		ConnectTimeout: 15 * time.Second,
		DecodeInterval: 100 * time.Millisecond,
	}
}

// Acquirer connects to a remote camera.
type Acquirer struct {
	Config Config
}

// NewAcquirer returns an acquirer for cfg.
func NewAcquirer(cfg Config) *Acquirer {
	return &Acquirer{Config: cfg}
}

// Acquire negotiates the session and waits for the first decoded picture.
// Every failure wraps feed.ErrDeviceUnavailable.
func (a *Acquirer) Acquire(ctx context.Context) (feed.Feed, error) {
	s, err := connect(ctx, a.Config)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", feed.ErrDeviceUnavailable, err)
	}
	return s, nil
}

// Stream is a connected remote feed.
type Stream struct {
	cfg    Config
	sig    *signaller
	pc     *pion.PeerConnection
	buf    *feed.FrameBuffer
	logger *slog.Logger

	mu        sync.Mutex
	sessionID string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func connect(ctx context.Context, cfg Config) (*Stream, error) {
	if cfg.SignallingURL == "" {
		return nil, errors.New("signalling URL is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	if cfg.DecodeInterval <= 0 {
		cfg.DecodeInterval = 100 * time.Millisecond
	}
	logger := log.Component("webrtc").With("url", cfg.SignallingURL)

	sig, err := dialSignaller(ctx, cfg.SignallingURL, cfg.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("signalling connect: %w", err)
	}

	peerID, err := sig.welcome(cfg.ConnectTimeout)
	if err != nil {
		sig.close()
		return nil, fmt.Errorf("welcome: %w", err)
	}
	producerID, err := sig.findProducer(cfg.Producer, cfg.ConnectTimeout)
	if err != nil {
		sig.close()
		return nil, fmt.Errorf("find producer: %w", err)
	}
	logger.Debug("signalling ready", "peer_id", peerID, "producer_id", producerID)

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Stream{
		cfg:    cfg,
		sig:    sig,
		buf:    feed.NewFrameBuffer(),
		logger: logger,
		ctx:    runCtx,
		cancel: cancel,
	}

	if err := s.createPeerConnection(); err != nil {
		s.Close()
		return nil, fmt.Errorf("peer connection: %w", err)
	}
	if err := sig.send(signalMessage{Type: "startSession", PeerID: producerID}); err != nil {
		s.Close()
		return nil, fmt.Errorf("start session: %w", err)
	}

	s.wg.Add(1)
	go s.handleSignalling()

	waitCtx, waitCancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer waitCancel()
	if err := s.buf.Wait(waitCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("waiting for video: %w", err)
	}

	logger.Info("remote camera connected")
	return s, nil
}

func (s *Stream) createPeerConnection() error {
	var config pion.Configuration
	if len(s.cfg.ICEServers) > 0 {
		config.ICEServers = []pion.ICEServer{{URLs: s.cfg.ICEServers}}
	}

	pc, err := pion.NewPeerConnection(config)
	if err != nil {
		return err
	}
	s.pc = pc

	if _, err := pc.AddTransceiverFromKind(pion.RTPCodecTypeVideo, pion.RTPTransceiverInit{
		Direction: pion.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}

	pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		s.logger.Info("track received", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		if track.Kind() != pion.RTPCodecTypeVideo || s.ctx.Err() != nil {
			return
		}
		s.wg.Add(1)
		go s.handleVideoTrack(track)
	})

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c != nil {
			s.sendICECandidate(c)
		}
	})

	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		s.logger.Debug("connection state", "state", state.String())
		if state == pion.PeerConnectionStateFailed {
			s.logger.Warn("peer connection failed")
		}
	})
	return nil
}

func (s *Stream) handleSignalling() {
	defer s.wg.Done()

	for {
		msg, err := s.sig.read(0)
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Warn("signalling closed", "err", err)
			}
			return
		}

		switch msg.Type {
		case "sessionStarted":
			s.mu.Lock()
			s.sessionID = msg.SessionID
			s.mu.Unlock()
		case "peer":
			if err := s.handlePeerMessage(msg); err != nil {
				s.logger.Warn("peer message failed", "err", err)
			}
		case "endSession":
			s.logger.Info("session ended by producer")
			return
		}
	}
}

func (s *Stream) handlePeerMessage(msg signalMessage) error {
	if msg.SDP != nil && msg.SDP.Type == "offer" {
		offer := pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: msg.SDP.SDP}
		if err := s.pc.SetRemoteDescription(offer); err != nil {
			return fmt.Errorf("set remote description: %w", err)
		}
		answer, err := s.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := s.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local description: %w", err)
		}
		return s.sig.send(signalMessage{
			Type:      "peer",
			SessionID: s.session(),
			SDP:       &sdpBody{Type: answer.Type.String(), SDP: answer.SDP},
		})
	}

	if msg.ICE != nil {
		return s.pc.AddICECandidate(pion.ICECandidateInit{
			Candidate:     msg.ICE.Candidate,
			SDPMid:        msg.ICE.SDPMid,
			SDPMLineIndex: msg.ICE.SDPMLineIndex,
		})
	}
	return nil
}

func (s *Stream) sendICECandidate(c *pion.ICECandidate) {
	id := s.session()
	if id == "" {
		return
	}
	cand := c.ToJSON()
	s.sig.send(signalMessage{
		Type:      "peer",
		SessionID: id,
		ICE: &iceBody{
			Candidate:     cand.Candidate,
			SDPMid:        cand.SDPMid,
			SDPMLineIndex: cand.SDPMLineIndex,
		},
	})
}

func (s *Stream) session() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// handleVideoTrack depacketizes H264 and decodes the latest group of
// pictures at most every DecodeInterval. The buffer restarts at each SPS so
// ffmpeg always sees parameter sets before the keyframe.
func (s *Stream) handleVideoTrack(track *pion.TrackRemote) {
	defer s.wg.Done()

	var (
		depack     codecs.H264Packet
		gop        bytes.Buffer
		haveSPS    bool
		haveIDR    bool
		lastDecode time.Time
	)

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if s.ctx.Err() != nil {
			return
		}

		nal, err := depack.Unmarshal(pkt.Payload)
		if err != nil || len(nal) == 0 {
			continue
		}
		if hasNALType(nal, nalSPS) {
			gop.Reset()
			haveSPS, haveIDR = true, false
		}
		if !haveSPS {
			continue
		}
		if gop.Len()+len(nal) > maxGOPSize {
			gop.Reset()
			haveSPS = false
			continue
		}
		gop.Write(nal)
		if hasNALType(nal, nalIDR) {
			haveIDR = true
		}
		if !haveIDR {
			continue
		}

		if time.Since(lastDecode) < s.cfg.DecodeInterval {
			continue
		}
		lastDecode = time.Now()

		img, err := s.cfg.Decoder.Decode(s.ctx, gop.Bytes())
		if err != nil {
			if !errors.Is(err, errNoPicture) {
				s.logger.Error("decode failed", "err", err)
			}
			continue
		}
		s.buf.Store(img)
	}
}

// Frame returns the latest decoded picture.
func (s *Stream) Frame() (image.Image, error) {
	return s.buf.Load()
}

// Close tears down the peer connection and signalling.
func (s *Stream) Close() error {
	s.once.Do(func() {
		s.cancel()
		if s.pc != nil {
			s.pc.Close()
		}
		if s.sig != nil {
			s.sig.close()
		}
		s.wg.Wait()
		s.buf.Close()
		s.logger.Info("remote camera closed")
	})
	return nil
}

// H264 NAL unit types used for buffering.
const (
	nalIDR = 5
	nalSPS = 7

	// maxGOPSize drops a group of pictures that never got a new SPS.
	maxGOPSize = 8 << 20
)

// hasNALType scans an Annex-B buffer for a NAL unit of type t.
func hasNALType(annexB []byte, t byte) bool {
	for i := 0; i+3 < len(annexB); i++ {
		if annexB[i] != 0 || annexB[i+1] != 0 {
			continue
		}
		switch {
		case annexB[i+2] == 1:
			if annexB[i+3]&0x1F == t {
				return true
			}
			i += 2
		case annexB[i+2] == 0 && i+4 < len(annexB) && annexB[i+3] == 1:
			if annexB[i+4]&0x1F == t {
				return true
			}
			i += 3
		}
	}
	return false
}
