package llm

import (
	"fmt"
	"strings"
	"time"
)

// Message represents a chat message
//
// Role: "system", "user", or "assistant"
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents a chat completion request
// Compatible with OpenAI API format
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// ChatResponse represents a chat completion response
// Compatible with OpenAI API format
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
	Error   *Error   `json:"error,omitempty"`
}

// Choice represents a completion choice
//
// FinishReason values: "stop", "length", "content_filter", "tool_calls", "function_call"
type Choice struct {
	Index        int         `json:"index"`
	Message      ChoiceDelta `json:"message"`
	Delta        ChoiceDelta `json:"delta"`
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason"`
}

// ChoiceDelta is the message body of a choice. Streaming chunks carry it
// under "delta", regular responses under "message".
type ChoiceDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
	Refusal string `json:"refusal,omitempty"`
}

// Usage represents token usage statistics
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Content returns the first non-empty content of the response and the
// finish reason reported with it.
func (r *ChatResponse) Content() (string, string) {
	var finishReason string
	for _, choice := range r.Choices {
		if finishReason == "" {
			finishReason = strings.TrimSpace(choice.FinishReason)
		}
		for _, v := range []string{choice.Message.Content, choice.Delta.Content, choice.Text} {
			if strings.TrimSpace(v) != "" {
				return v, finishReason
			}
		}
	}
	return "", finishReason
}

// Refusal returns the refusal message of the first choice that has one.
func (r *ChatResponse) Refusal() string {
	for _, choice := range r.Choices {
		if choice.Message.Refusal != "" {
			return choice.Message.Refusal
		}
		if choice.Delta.Refusal != "" {
			return choice.Delta.Refusal
		}
	}
	return ""
}

// Error represents an API error
type Error struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    any    `json:"code,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("LLM API Error: %s (type: %s, code: %v)", e.Message, e.Type, e.Code)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
	// API is the decoded error payload, if the body carried one.
	API *Error
}

func (e *StatusError) Error() string {
	if e.API != nil && e.API.Message != "" {
		return fmt.Sprintf("llm request: http %d: %s", e.StatusCode, e.API.Message)
	}
	return fmt.Sprintf("llm request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// EmptyContentError is returned when a completion finished without content.
type EmptyContentError struct {
	FinishReason string
	Refusal      string
}

func (e *EmptyContentError) Error() string {
	return fmt.Sprintf("empty content (finish_reason=%q, refusal=%q)", e.FinishReason, e.Refusal)
}

// Result is the outcome of one completion.
type Result struct {
	Content      string
	FinishReason string
	Usage        Usage
}

// ChatCompletionOptions represents options for chat completion
type ChatCompletionOptions struct {
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	// APIKey overrides the configured key for this request.
	APIKey string
}

// NewChatCompletionOptions creates a new chat completion options with defaults
func NewChatCompletionOptions() *ChatCompletionOptions {
	return &ChatCompletionOptions{
		Temperature: -1, // use configured temperature
	}
}

// WithSystemPrompt sets the system prompt
func (o *ChatCompletionOptions) WithSystemPrompt(prompt string) *ChatCompletionOptions {
	o.SystemPrompt = prompt
	return o
}

// WithMaxTokens sets the max tokens
func (o *ChatCompletionOptions) WithMaxTokens(maxTokens int) *ChatCompletionOptions {
	o.MaxTokens = maxTokens
	return o
}

// WithTemperature sets the temperature
func (o *ChatCompletionOptions) WithTemperature(temperature float64) *ChatCompletionOptions {
	o.Temperature = temperature
	return o
}

// WithAPIKey sets the key used for this request
func (o *ChatCompletionOptions) WithAPIKey(key string) *ChatCompletionOptions {
	o.APIKey = key
	return o
}
