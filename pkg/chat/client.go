// Package chat generates text replies for the widget's typed conversation
// mode, including the function-calling loop that lets the model search the
// genealogy archive mid-reply.
package chat

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nechamalaber-rgb/jewishdata.com/internal/log"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/archive"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultModel is the text generation model.
	DefaultModel = "gemini-2.5-flash"

	// maxToolRounds caps the function-calling loop so a confused model
	// cannot spin forever.
	maxToolRounds = 4

	maxRetries   = 3
	initialDelay = time.Second
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one turn of conversation history.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Client generates replies via the generateContent endpoint.
type Client struct {
	apiKey       string
	baseURL      string
	model        string
	systemPrompt string
	searcher     *archive.Client
	http         *http.Client

	// sleep is swapped out in tests to avoid real retry delays.
	sleep func(time.Duration)
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint. Used in tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithModel overrides the generation model.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithSystemPrompt sets the system instruction.
func WithSystemPrompt(prompt string) Option {
	return func(c *Client) { c.systemPrompt = prompt }
}

// WithSearcher wires in the archive search tool.
func WithSearcher(searcher *archive.Client) Option {
	return func(c *Client) { c.searcher = searcher }
}

// NewClient creates a chat client.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   DefaultModel,
		http:    &http.Client{Timeout: 60 * time.Second},
		sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// wire types for generateContent

type genRequest struct {
	Contents          []genContent `json:"contents"`
	SystemInstruction *genContent  `json:"systemInstruction,omitempty"`
	Tools             []genTool    `json:"tools,omitempty"`
}

type genContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []genPart `json:"parts"`
}

type genPart struct {
	Text             string           `json:"text,omitempty"`
	InlineData       *genInlineData   `json:"inlineData,omitempty"`
	FunctionCall     *genFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *genFunctionResp `json:"functionResponse,omitempty"`
}

type genInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type genFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type genFunctionResp struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type genTool struct {
	FunctionDeclarations []genFunctionDecl `json:"functionDeclarations"`
}

type genFunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type genResponse struct {
	Candidates []struct {
		Content genContent `json:"content"`
	} `json:"candidates"`
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Generate produces a reply to the user's message given prior history.
// An optional JPEG image is attached inline. Tool calls issued by the
// model are resolved against the archive before the final text returns.
func (c *Client) Generate(ctx context.Context, history []Message, text string, imageJPEG []byte) (string, error) {
	if strings.TrimSpace(text) == "" && len(imageJPEG) == 0 {
		return "", ErrEmptyMessage
	}

	contents := make([]genContent, 0, len(history)+1)
	for _, msg := range history {
		contents = append(contents, genContent{
			Role:  string(msg.Role),
			Parts: []genPart{{Text: msg.Text}},
		})
	}

	userParts := []genPart{}
	if text != "" {
		userParts = append(userParts, genPart{Text: text})
	}
	if len(imageJPEG) > 0 {
		userParts = append(userParts, genPart{InlineData: &genInlineData{
			MimeType: "image/jpeg",
			Data:     base64.StdEncoding.EncodeToString(imageJPEG),
		}})
	}
	contents = append(contents, genContent{Role: string(RoleUser), Parts: userParts})

	for round := 0; round < maxToolRounds; round++ {
		reply, err := c.generate(ctx, contents)
		if err != nil {
			return "", err
		}

		call := findFunctionCall(reply)
		if call == nil {
			if text := collectText(reply); text != "" {
				return text, nil
			}
			return "", ErrNoContent
		}

		result := c.runTool(call)
		contents = append(contents,
			genContent{Role: string(RoleModel), Parts: []genPart{{FunctionCall: call}}},
			genContent{Role: string(RoleUser), Parts: []genPart{{
				FunctionResponse: &genFunctionResp{Name: call.Name, Response: result},
			}}},
		)
	}

	return "", fmt.Errorf("chat: tool loop exceeded %d rounds", maxToolRounds)
}

// generate performs one request, retrying retryable failures with a
// doubling delay.
func (c *Client) generate(ctx context.Context, contents []genContent) (*genContent, error) {
	req := genRequest{Contents: contents}
	if c.systemPrompt != "" {
		req.SystemInstruction = &genContent{Parts: []genPart{{Text: c.systemPrompt}}}
	}
	if c.searcher != nil {
		name, desc, params := archive.ToolDeclaration()
		req.Tools = []genTool{{FunctionDeclarations: []genFunctionDecl{{
			Name:        name,
			Description: desc,
			Parameters:  params,
		}}}}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("chat: marshal: %w", err)
	}

	delay := initialDelay
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			log.Debug("retrying generation", "attempt", attempt+1, "delay", delay)
			c.sleep(delay)
			delay *= 2
		}

		reply, err := c.doRequest(ctx, body)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		apiErr, ok := err.(*APIError)
		if !ok || !apiErr.IsRetryable() {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) doRequest(ctx context.Context, body []byte) (*genContent, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("chat: request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseError(resp)
	}

	var result genResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("chat: decode response: %w", err)
	}
	if result.Error.Message != "" {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: result.Error.Message}
	}
	if len(result.Candidates) == 0 {
		return nil, ErrNoContent
	}
	return &result.Candidates[0].Content, nil
}

func (c *Client) runTool(call *genFunctionCall) map[string]any {
	if call.Name != archive.ToolName || c.searcher == nil {
		log.Warn("model requested unknown tool", "tool", call.Name)
		return map[string]any{}
	}
	handler := c.searcher.ToolHandler()
	result, _ := handler(call.Args)
	return result
}

func findFunctionCall(content *genContent) *genFunctionCall {
	for _, part := range content.Parts {
		if part.FunctionCall != nil {
			return part.FunctionCall
		}
	}
	return nil
}

func collectText(content *genContent) string {
	var b strings.Builder
	for _, part := range content.Parts {
		b.WriteString(part.Text)
	}
	return strings.TrimSpace(b.String())
}

// parseError reads and parses an error response.
func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	message := string(body)
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}
	return &APIError{StatusCode: resp.StatusCode, Message: message}
}
