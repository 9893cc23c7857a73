package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/nechamalaber-rgb/jewishdata.com/internal/log"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/archive"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/live"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/pcm"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/playback"
)

// liveClientMsg is a control frame from the browser. Microphone audio
// arrives separately as binary frames of raw 16kHz PCM16.
type liveClientMsg struct {
	Type string `json:"type"` // "start", "stop", "text", "frame"
	Text string `json:"text,omitempty"`
	Data string `json:"data,omitempty"` // base64 JPEG for "frame"
}

// liveServerEvent is an event frame sent to the browser.
type liveServerEvent struct {
	Type     string  `json:"type"`
	State    string  `json:"state,omitempty"`
	Role     string  `json:"role,omitempty"`
	Text     string  `json:"text,omitempty"`
	Final    bool    `json:"final,omitempty"`
	Data     string  `json:"data,omitempty"` // base64 PCM16 at 24kHz
	StartAt  float64 `json:"start_at,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Code     string  `json:"code,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// liveConn manages one browser connection to the voice bridge. At most
// one live session exists per connection; starting a new one tears down
// the previous session first.
type liveConn struct {
	server *Server
	conn   *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	session *live.Session
	sched   *playback.Scheduler
}

// handleLiveWS runs the voice bridge for a single connection.
func (s *Server) handleLiveWS(conn *websocket.Conn) {
	lc := &liveConn{server: s, conn: conn}
	defer lc.teardown()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			lc.forwardAudio(data)
		case websocket.TextMessage:
			lc.handleControl(data)
		}
	}
}

func (lc *liveConn) handleControl(data []byte) {
	var msg liveClientMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		lc.sendError("bad_request", "unparseable control frame")
		return
	}

	switch msg.Type {
	case "start":
		lc.startSession()
	case "stop":
		lc.teardown()
		lc.sendEvent(liveServerEvent{Type: "status", State: live.StateIdle.String()})
	case "text":
		lc.mu.Lock()
		session := lc.session
		lc.mu.Unlock()
		if session == nil {
			lc.sendError("not_connected", "no active session")
			return
		}
		if err := session.SendText(msg.Text); err != nil {
			lc.sendError("send_failed", err.Error())
		}
	case "frame":
		lc.forwardFrame(msg.Data)
	case "mic_denied":
		// Browser could not open the microphone; the session is useless.
		lc.teardown()
		lc.sendError("permission_denied", "microphone access denied")
		lc.sendEvent(liveServerEvent{Type: "status", State: live.StateIdle.String()})
	default:
		lc.sendError("bad_request", "unknown control type")
	}
}

// startSession opens a fresh live session, replacing any existing one.
func (lc *liveConn) startSession() {
	lc.teardown()

	sched := playback.NewScheduler(playback.NewSystemClock(), &wsSink{conn: lc})

	session, err := live.NewSession(lc.server.config.LiveConfig, live.Callbacks{
		OnAudioOut: func(pcm16 []byte) {
			buf, err := pcm.Decode(pcm16, pcm.OutputRate, 1)
			if err != nil {
				log.Debug("dropping undecodable response audio", "error", err)
				return
			}
			sched.Enqueue(buf)
		},
		OnTranscript: func(role live.Role, text string, final bool) {
			lc.sendEvent(liveServerEvent{Type: "transcript", Role: string(role), Text: text, Final: final})
		},
		OnInterrupted: func() {
			sched.InterruptAll()
			lc.sendEvent(liveServerEvent{Type: "interrupted"})
		},
		OnTurnComplete: func() {
			lc.sendEvent(liveServerEvent{Type: "turn_complete"})
		},
		OnError: func(err error) {
			lc.sendError("connection_failed", err.Error())
			lc.sendEvent(liveServerEvent{Type: "status", State: live.StateIdle.String()})
		},
	})
	if err != nil {
		lc.sendError("bad_config", err.Error())
		return
	}

	name, desc, params := archive.ToolDeclaration()
	session.RegisterTool(live.Tool{
		Name:        name,
		Description: desc,
		Parameters:  params,
		Handler:     lc.server.searcher.ToolHandler(),
	})

	lc.sendEvent(liveServerEvent{Type: "status", State: live.StateConnecting.String()})
	if err := session.Start(context.Background()); err != nil {
		lc.sendError("connection_failed", err.Error())
		lc.sendEvent(liveServerEvent{Type: "status", State: live.StateIdle.String()})
		return
	}

	lc.mu.Lock()
	lc.session = session
	lc.sched = sched
	lc.mu.Unlock()

	lc.sendEvent(liveServerEvent{Type: "status", State: live.StateOpen.String()})
	lc.server.broadcastEvent("live_session", fiber.Map{"state": "open"})
}

func (lc *liveConn) forwardAudio(pcm16 []byte) {
	lc.mu.Lock()
	session := lc.session
	lc.mu.Unlock()
	if session == nil {
		return
	}
	if err := session.SendAudio(pcm16); err != nil && !errors.Is(err, live.ErrNotConnected) {
		log.Debug("audio forward failed", "error", err)
	}
}

func (lc *liveConn) forwardFrame(encoded string) {
	lc.mu.Lock()
	session := lc.session
	lc.mu.Unlock()
	if session == nil {
		return
	}
	jpeg, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		lc.sendError("bad_request", "invalid frame encoding")
		return
	}
	if err := session.SendVisual(jpeg); err != nil && !errors.Is(err, live.ErrNotConnected) {
		log.Debug("frame forward failed", "error", err)
	}
}

// teardown stops the active session and discards queued playback.
func (lc *liveConn) teardown() {
	lc.mu.Lock()
	session := lc.session
	sched := lc.sched
	lc.session = nil
	lc.sched = nil
	lc.mu.Unlock()

	if sched != nil {
		sched.InterruptAll()
	}
	if session != nil {
		if err := session.Stop(); err != nil {
			log.Debug("session stop failed", "error", err)
		}
		lc.server.broadcastEvent("live_session", fiber.Map{"state": "closed"})
	}
}

func (lc *liveConn) sendEvent(event liveServerEvent) {
	lc.writeMu.Lock()
	defer lc.writeMu.Unlock()
	if err := lc.conn.WriteJSON(event); err != nil {
		log.Debug("live event write failed", "type", event.Type, "error", err)
	}
}

func (lc *liveConn) sendError(code, message string) {
	lc.sendEvent(liveServerEvent{Type: "error", Code: code, Message: message})
}

// wsSink delivers scheduled audio units to the browser when their start
// time arrives, so client playback follows the shared output clock.
type wsSink struct {
	conn *liveConn
}

func (s *wsSink) Play(u *playback.Unit) {
	s.conn.sendEvent(liveServerEvent{
		Type:     "audio",
		Data:     base64.StdEncoding.EncodeToString(pcm.Encode(u.Buffer.Mono())),
		StartAt:  u.StartAt,
		Duration: u.Duration(),
	})
}

func (s *wsSink) Stop(u *playback.Unit) {
	// Interruption is signalled once via the "interrupted" event.
}
