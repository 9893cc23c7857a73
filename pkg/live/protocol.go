package live

// Wire types for the bidirectional streaming endpoint. Outgoing messages
// use snake_case field names; the server replies in camelCase.

// setupMessage configures the session. Sent once, immediately after the
// socket opens.
type setupMessage struct {
	Setup setupPayload `json:"setup"`
}

type setupPayload struct {
	Model                    string              `json:"model"`
	GenerationConfig         generationConfig    `json:"generation_config"`
	SystemInstruction        *contentPayload     `json:"system_instruction,omitempty"`
	Tools                    []toolDeclarations  `json:"tools,omitempty"`
	InputAudioTranscription  *transcriptionOptIn `json:"input_audio_transcription,omitempty"`
	OutputAudioTranscription *transcriptionOptIn `json:"output_audio_transcription,omitempty"`
}

// transcriptionOptIn is an empty object; its presence enables transcription.
type transcriptionOptIn struct{}

type generationConfig struct {
	ResponseModalities []string      `json:"response_modalities"`
	SpeechConfig       *speechConfig `json:"speech_config,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voice_config"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuilt_voice_config"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voice_name"`
}

type contentPayload struct {
	Parts []textPart `json:"parts"`
}

type textPart struct {
	Text string `json:"text"`
}

type toolDeclarations struct {
	FunctionDeclarations []functionDeclaration `json:"function_declarations"`
}

type functionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// realtimeInputMessage streams microphone audio or screen frames.
type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtime_input"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"media_chunks"`
}

type mediaChunk struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
}

// clientContentMessage sends a typed user turn.
type clientContentMessage struct {
	ClientContent clientContent `json:"client_content"`
}

type clientContent struct {
	Turns        []clientTurn `json:"turns"`
	TurnComplete bool         `json:"turn_complete"`
}

type clientTurn struct {
	Role  string     `json:"role"`
	Parts []textPart `json:"parts"`
}

// toolResponseMessage returns function results to the model.
type toolResponseMessage struct {
	ToolResponse toolResponse `json:"tool_response"`
}

type toolResponse struct {
	FunctionResponses []functionResponse `json:"function_responses"`
}

type functionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name,omitempty"`
	Response map[string]any `json:"response"`
}

// serverMessage is the envelope for everything the server sends. Exactly
// one field is set per message.
type serverMessage struct {
	SetupComplete        *struct{}             `json:"setupComplete,omitempty"`
	ServerContent        *serverContent        `json:"serverContent,omitempty"`
	ToolCall             *toolCallPayload      `json:"toolCall,omitempty"`
	ToolCallCancellation *toolCallCancellation `json:"toolCallCancellation,omitempty"`
}

type serverContent struct {
	ModelTurn           *modelTurn     `json:"modelTurn,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
}

type modelTurn struct {
	Parts []serverPart `json:"parts"`
}

type serverPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type transcription struct {
	Text string `json:"text"`
}

type toolCallPayload struct {
	FunctionCalls []functionCall `json:"functionCalls"`
}

type functionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type toolCallCancellation struct {
	IDs []string `json:"ids"`
}
