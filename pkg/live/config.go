package live

import "golang.org/x/oauth2"

const (
	// defaultBaseURL is the bidirectional streaming endpoint.
	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// DefaultModel is the native-audio dialog model.
	DefaultModel = "models/gemini-2.5-flash-native-audio-preview-09-2025"

	// DefaultVoice is the prebuilt speech voice.
	DefaultVoice = "Zephyr"
)

// Config holds live session configuration.
type Config struct {
	// APIKey authenticates via query parameter. Required unless
	// TokenSource is set.
	APIKey string

	// TokenSource authenticates via bearer token instead of an API key,
	// for deployments using service-account credentials.
	TokenSource oauth2.TokenSource

	// BaseURL overrides the streaming endpoint. Used in tests.
	BaseURL string

	// Model is the model resource name. Defaults to DefaultModel.
	Model string

	// Voice is the prebuilt voice name. Defaults to DefaultVoice.
	Voice string

	// SystemPrompt steers the model's persona and behavior.
	SystemPrompt string
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.APIKey == "" && c.TokenSource == nil {
		return ErrMissingAPIKey
	}
	return nil
}

func (c *Config) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return defaultBaseURL
}

func (c *Config) model() string {
	if c.Model != "" {
		return c.Model
	}
	return DefaultModel
}

func (c *Config) voice() string {
	if c.Voice != "" {
		return c.Voice
	}
	return DefaultVoice
}
