// Package live manages a realtime voice and vision session against the
// bidirectional streaming endpoint. A session streams microphone audio and
// screen frames up, and demultiplexes model audio, transcripts, barge-in
// interruptions and tool calls coming back.
package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nechamalaber-rgb/jewishdata.com/internal/log"
)

// State is the session lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

const (
	handshakeTimeout  = 10 * time.Second
	keepaliveInterval = 20 * time.Second
)

// Callbacks groups the session event callbacks. All callbacks are invoked
// from the session's read goroutine except tool handlers, which run
// concurrently.
type Callbacks struct {
	// OnAudioOut receives 24kHz mono PCM16 response audio.
	OnAudioOut func(pcm16 []byte)

	// OnTranscript receives transcript text per role. Fragments stream
	// with final=false; the accumulated turn arrives once with final=true.
	OnTranscript func(role Role, text string, final bool)

	// OnInterrupted fires when the user barges in over model speech.
	// Queued playback should be discarded.
	OnInterrupted func()

	// OnTurnComplete fires when the model finishes a response turn.
	OnTurnComplete func()

	// OnError receives transport and protocol errors. The session has
	// already transitioned back to idle when this fires.
	OnError func(err error)
}

// Session is a single live conversation. Create one with NewSession, then
// Start it; a stopped session can be started again.
type Session struct {
	config    Config
	callbacks Callbacks

	tools    []Tool
	toolsMap map[string]Tool

	ws   *websocket.Conn
	wsMu sync.Mutex

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}

	transcripts *transcripts

	// cancelled holds tool call ids revoked by the server; results for
	// these are dropped instead of submitted.
	cancelled sync.Map

	turns atomic.Int64
}

// NewSession creates a session with the given configuration and callbacks.
func NewSession(config Config, callbacks Callbacks) (*Session, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Session{
		config:      config,
		callbacks:   callbacks,
		toolsMap:    make(map[string]Tool),
		transcripts: newTranscripts(),
	}, nil
}

// RegisterTool adds a tool the model can invoke. Must be called before
// Start.
func (s *Session) RegisterTool(tool Tool) {
	s.tools = append(s.tools, tool)
	s.toolsMap[tool.Name] = tool
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsOpen reports whether the session is connected and streaming.
func (s *Session) IsOpen() bool {
	return s.State() == StateOpen
}

// Turns returns the number of completed model turns.
func (s *Session) Turns() int64 {
	return s.turns.Load()
}

// Start dials the streaming endpoint, sends the setup message and begins
// processing. Returns ErrAlreadyStarted if the session is not idle.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateConnecting
	s.mu.Unlock()

	url := s.config.baseURL()
	header := make(http.Header)
	if s.config.TokenSource != nil {
		token, err := s.config.TokenSource.Token()
		if err != nil {
			s.setState(StateIdle)
			return fmt.Errorf("%w: token: %v", ErrConnectionFailed, err)
		}
		header.Set("Authorization", "Bearer "+token.AccessToken)
	} else {
		url = fmt.Sprintf("%s?key=%s", url, s.config.APIKey)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		s.setState(StateIdle)
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.wsMu.Lock()
	s.ws = ws
	s.wsMu.Unlock()

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	if err := s.sendSetup(); err != nil {
		s.teardown()
		return fmt.Errorf("%w: setup: %v", ErrConnectionFailed, err)
	}

	s.setState(StateOpen)
	s.transcripts.reset()

	go s.readLoop(done)
	go s.keepalive(ctx)

	log.Info("live session open", "model", s.config.model())
	return nil
}

// Stop closes the connection and returns the session to idle. Safe to
// call multiple times; waits for the read loop to exit.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosing
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var err error
	s.wsMu.Lock()
	if s.ws != nil {
		_ = s.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.ws.Close()
	}
	s.wsMu.Unlock()
	if done != nil {
		<-done
	}

	s.setState(StateIdle)
	log.Info("live session closed")
	return err
}

// SendAudio streams a block of 16kHz mono PCM16 microphone audio.
func (s *Session) SendAudio(pcm16 []byte) error {
	return s.sendMedia(mediaChunk{
		Data:     base64.StdEncoding.EncodeToString(pcm16),
		MimeType: "audio/pcm",
	})
}

// SendVisual streams a JPEG screen-share or camera frame.
func (s *Session) SendVisual(jpeg []byte) error {
	return s.sendMedia(mediaChunk{
		Data:     base64.StdEncoding.EncodeToString(jpeg),
		MimeType: "image/jpeg",
	})
}

// SendText sends a typed user turn, completing it immediately.
func (s *Session) SendText(text string) error {
	if !s.IsOpen() {
		return ErrNotConnected
	}
	return s.sendJSON(clientContentMessage{
		ClientContent: clientContent{
			Turns: []clientTurn{{
				Role:  string(RoleUser),
				Parts: []textPart{{Text: text}},
			}},
			TurnComplete: true,
		},
	})
}

func (s *Session) sendMedia(chunk mediaChunk) error {
	if !s.IsOpen() {
		return ErrNotConnected
	}
	return s.sendJSON(realtimeInputMessage{
		RealtimeInput: realtimeInput{MediaChunks: []mediaChunk{chunk}},
	})
}

func (s *Session) sendSetup() error {
	setup := setupPayload{
		Model: s.config.model(),
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: voiceConfig{
					PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: s.config.voice()},
				},
			},
		},
		InputAudioTranscription:  &transcriptionOptIn{},
		OutputAudioTranscription: &transcriptionOptIn{},
	}

	if s.config.SystemPrompt != "" {
		setup.SystemInstruction = &contentPayload{
			Parts: []textPart{{Text: s.config.SystemPrompt}},
		}
	}

	if len(s.tools) > 0 {
		decls := make([]functionDeclaration, 0, len(s.tools))
		for _, tool := range s.tools {
			decls = append(decls, functionDeclaration{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			})
		}
		setup.Tools = []toolDeclarations{{FunctionDeclarations: decls}}
	}

	return s.sendJSON(setupMessage{Setup: setup})
}

// readLoop processes incoming messages until the socket closes.
func (s *Session) readLoop(done chan struct{}) {
	defer close(done)

	for {
		s.wsMu.Lock()
		ws := s.ws
		s.wsMu.Unlock()
		if ws == nil {
			return
		}

		_, data, err := ws.ReadMessage()
		if err != nil {
			if s.State() == StateClosing {
				return
			}
			// Transport failure mid-session: release everything, report once.
			s.teardown()
			log.Warn("live transport failed", "error", err)
			if s.callbacks.OnError != nil {
				s.callbacks.OnError(fmt.Errorf("%w: %v", ErrConnectionFailed, err))
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug("unparseable server message", "error", err)
			continue
		}
		s.handleMessage(&msg)
	}
}

func (s *Session) handleMessage(msg *serverMessage) {
	switch {
	case msg.SetupComplete != nil:
		log.Debug("live session ready")
	case msg.ServerContent != nil:
		s.handleServerContent(msg.ServerContent)
	case msg.ToolCall != nil:
		s.handleToolCall(msg.ToolCall)
	case msg.ToolCallCancellation != nil:
		for _, id := range msg.ToolCallCancellation.IDs {
			s.cancelled.Store(id, true)
		}
		log.Debug("tool calls cancelled", "count", len(msg.ToolCallCancellation.IDs))
	}
}

func (s *Session) handleServerContent(content *serverContent) {
	if content.Interrupted {
		// Barge-in: whatever the model had said so far becomes its turn.
		if text, ok := s.transcripts.finalize(RoleModel); ok && s.callbacks.OnTranscript != nil {
			s.callbacks.OnTranscript(RoleModel, text, true)
		}
		if s.callbacks.OnInterrupted != nil {
			s.callbacks.OnInterrupted()
		}
		return
	}

	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			if part.InlineData == nil {
				continue
			}
			if !isPCMAudio(part.InlineData.MimeType) {
				continue
			}
			audio, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil || len(audio) == 0 {
				continue
			}
			if s.callbacks.OnAudioOut != nil {
				s.callbacks.OnAudioOut(audio)
			}
		}
	}

	if content.InputTranscription != nil && content.InputTranscription.Text != "" {
		s.transcripts.append(RoleUser, content.InputTranscription.Text)
		if s.callbacks.OnTranscript != nil {
			s.callbacks.OnTranscript(RoleUser, content.InputTranscription.Text, false)
		}
	}

	if content.OutputTranscription != nil && content.OutputTranscription.Text != "" {
		s.transcripts.append(RoleModel, content.OutputTranscription.Text)
		if s.callbacks.OnTranscript != nil {
			s.callbacks.OnTranscript(RoleModel, content.OutputTranscription.Text, false)
		}
	}

	if content.TurnComplete {
		s.turns.Add(1)
		for _, role := range []Role{RoleUser, RoleModel} {
			if text, ok := s.transcripts.finalize(role); ok && s.callbacks.OnTranscript != nil {
				s.callbacks.OnTranscript(role, text, true)
			}
		}
		if s.callbacks.OnTurnComplete != nil {
			s.callbacks.OnTurnComplete()
		}
	}
}

// handleToolCall runs each function call concurrently. Every call gets
// exactly one response; a failed or unknown handler produces an empty
// result rather than an error, so the model can keep talking.
func (s *Session) handleToolCall(payload *toolCallPayload) {
	for _, call := range payload.FunctionCalls {
		go s.runTool(ToolCall{ID: call.ID, Name: call.Name, Arguments: call.Args})
	}
}

func (s *Session) runTool(call ToolCall) {
	var response map[string]any

	tool, ok := s.toolsMap[call.Name]
	if !ok || tool.Handler == nil {
		log.Warn("unknown tool invoked", "tool", call.Name)
		response = map[string]any{}
	} else {
		result, err := tool.Handler(call.Arguments)
		if err != nil {
			log.Warn("tool handler failed", "tool", call.Name, "error", err)
			response = map[string]any{}
		} else {
			response = result
		}
	}

	if _, dropped := s.cancelled.LoadAndDelete(call.ID); dropped {
		log.Debug("dropping cancelled tool result", "tool", call.Name)
		return
	}

	err := s.sendJSON(toolResponseMessage{
		ToolResponse: toolResponse{
			FunctionResponses: []functionResponse{{
				ID:       call.ID,
				Name:     call.Name,
				Response: response,
			}},
		},
	})
	if err != nil && s.callbacks.OnError != nil {
		s.callbacks.OnError(err)
	}
}

// keepalive pings the server so idle stretches of the conversation do not
// drop the connection.
func (s *Session) keepalive(ctx context.Context) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.wsMu.Lock()
			ws := s.ws
			if ws != nil {
				_ = ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
			}
			s.wsMu.Unlock()
		}
	}
}

func (s *Session) sendJSON(v any) error {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()

	if s.ws == nil {
		return ErrNotConnected
	}
	return s.ws.WriteJSON(v)
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// teardown cancels the session context and closes the socket. Used after
// a failed start and after a mid-session transport failure.
func (s *Session) teardown() {
	s.mu.Lock()
	cancel := s.cancel
	s.state = StateIdle
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	s.wsMu.Lock()
	if s.ws != nil {
		_ = s.ws.Close()
		s.ws = nil
	}
	s.wsMu.Unlock()
}

func isPCMAudio(mimeType string) bool {
	return mimeType == "audio/pcm" || mimeType == "audio/pcm;rate=24000"
}
