package webrtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// signalMessage covers every message of the GStreamer webrtcsink
// signalling protocol that the client sends or handles.
type signalMessage struct {
	Type      string     `json:"type"`
	PeerID    string     `json:"peerId,omitempty"`
	SessionID string     `json:"sessionId,omitempty"`
	Producers []producer `json:"producers,omitempty"`
	SDP       *sdpBody   `json:"sdp,omitempty"`
	ICE       *iceBody   `json:"ice,omitempty"`
}

type producer struct {
	ID   string            `json:"id"`
	Meta map[string]string `json:"meta"`
}

type sdpBody struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type iceBody struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// signaller wraps the signalling websocket. Writes are serialized; reads
// happen from one goroutine at a time.
type signaller struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func dialSignaller(ctx context.Context, url string, timeout time.Duration) (*signaller, error) {
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &signaller{ws: ws}, nil
}

func (s *signaller) send(msg signalMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.ws.WriteJSON(msg)
}

// read returns the next message. A zero timeout blocks.
func (s *signaller) read(timeout time.Duration) (signalMessage, error) {
	if timeout > 0 {
		s.ws.SetReadDeadline(time.Now().Add(timeout))
		defer s.ws.SetReadDeadline(time.Time{})
	}
	_, data, err := s.ws.ReadMessage()
	if err != nil {
		return signalMessage{}, err
	}
	var msg signalMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return signalMessage{}, fmt.Errorf("decode signalling message: %w", err)
	}
	return msg, nil
}

// welcome waits for the server greeting and returns our peer ID.
func (s *signaller) welcome(timeout time.Duration) (string, error) {
	msg, err := s.read(timeout)
	if err != nil {
		return "", err
	}
	if msg.Type != "welcome" {
		return "", fmt.Errorf("expected welcome, got %q", msg.Type)
	}
	return msg.PeerID, nil
}

// findProducer lists producers and returns the one whose meta name matches.
// An empty name picks the first producer.
func (s *signaller) findProducer(name string, timeout time.Duration) (string, error) {
	if err := s.send(signalMessage{Type: "list"}); err != nil {
		return "", err
	}
	msg, err := s.read(timeout)
	if err != nil {
		return "", err
	}
	if msg.Type != "list" {
		return "", fmt.Errorf("expected list, got %q", msg.Type)
	}
	for _, p := range msg.Producers {
		if name == "" || p.Meta["name"] == name {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("producer %q not found among %d producers", name, len(msg.Producers))
}

func (s *signaller) close() error {
	s.writeMu.Lock()
	s.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	return s.ws.Close()
}
