package backend

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MimeLyc/subtitle-batch-translator/internal/llm"
	"github.com/MimeLyc/subtitle-batch-translator/pkg/log"
)

// ChatBackend translates through an OpenAI-compatible chat completion API.
type ChatBackend struct {
	name   string
	client *llm.Client
}

// NewChatBackend creates a chat backend. An empty name uses the model name.
func NewChatBackend(name string, client *llm.Client) *ChatBackend {
	if name == "" {
		name = client.Model()
	}
	return &ChatBackend{name: name, client: client}
}

func (b *ChatBackend) Name() string { return b.name }

func (b *ChatBackend) RetryPolicy() RetryPolicy { return RetryOnMismatch }

func (b *ChatBackend) Translate(ctx context.Context, req Request) (string, error) {
	result, err := b.client.ChatCompletion(ctx, messages(req), b.options(req))
	if err != nil {
		return "", b.classify(err)
	}
	if err := b.checkFinish(result.FinishReason); err != nil {
		return "", err
	}
	return result.Content, nil
}

func (b *ChatBackend) StreamTranslate(ctx context.Context, req Request, onPartial func(string)) (string, error) {
	var cumulative strings.Builder
	result, err := b.client.StreamChatCompletion(ctx, messages(req), b.options(req), func(delta string) {
		cumulative.WriteString(delta)
		if onPartial != nil {
			onPartial(cumulative.String())
		}
	})
	if err != nil {
		return "", b.classify(err)
	}
	if err := b.checkFinish(result.FinishReason); err != nil {
		return "", err
	}
	return result.Content, nil
}

// CountTokens is not offered by chat completion APIs.
func (b *ChatBackend) CountTokens(context.Context, Request) (int, error) {
	return 0, ErrTokenCountUnsupported
}

// EstimateTokenCount uses the rough 4 characters per token rule.
func (b *ChatBackend) EstimateTokenCount(text string) int {
	n := len([]rune(text))
	return (n + 3) / 4
}

func (b *ChatBackend) options(req Request) *llm.ChatCompletionOptions {
	opts := llm.NewChatCompletionOptions().WithSystemPrompt(req.Prompt)
	if !req.Credential.IsZero() {
		opts = opts.WithAPIKey(req.Credential.Secret())
	}
	return opts
}

func messages(req Request) []llm.Message {
	return []llm.Message{{Role: "user", Content: req.Content}}
}

// checkFinish maps a truncated or filtered completion to an error. A
// partial answer is worse than a retry here.
func (b *ChatBackend) checkFinish(reason string) error {
	switch reason {
	case "length":
		return NewError(KindTokenLimitExceeded, b.name, "completion truncated at max tokens")
	case "content_filter":
		return NewError(KindContentPolicy, b.name, "completion stopped by content filter")
	default:
		return nil
	}
}

func (b *ChatBackend) classify(err error) error {
	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		kind := kindForStatus(statusErr.StatusCode)
		if statusErr.API != nil {
			kind = refineKind(kind, statusErr.API.Type, statusErr.API.Message)
		} else {
			kind = refineKind(kind, "", statusErr.Body)
		}
		wrapped := WrapError(err, kind, b.name, "chat completion failed")
		wrapped.RetryAfter = statusErr.RetryAfter
		log.Debug("Backend %s: http %d classified as %s", b.name, statusErr.StatusCode, kind)
		return wrapped
	}

	var apiErr *llm.Error
	if errors.As(err, &apiErr) {
		return WrapError(err, refineKind(KindUnknown, apiErr.Type, apiErr.Message), b.name, "chat completion failed")
	}

	var emptyErr *llm.EmptyContentError
	if errors.As(err, &emptyErr) {
		if emptyErr.Refusal != "" || emptyErr.FinishReason == "content_filter" {
			return WrapError(err, KindContentPolicy, b.name, "model refused the content")
		}
		if emptyErr.FinishReason == "length" {
			return WrapError(err, KindTokenLimitExceeded, b.name, "completion truncated at max tokens")
		}
		// empty answers are usually provider hiccups
		return WrapError(err, KindNetwork, b.name, "empty completion")
	}

	return WrapError(err, KindOf(err), b.name, "chat completion failed")
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusRequestEntityTooLarge:
		return KindTokenLimitExceeded
	case status == http.StatusRequestTimeout, status >= http.StatusInternalServerError:
		return KindNetwork
	default:
		return KindUnknown
	}
}

// refineKind looks at the provider error text for the cases that share a
// generic 400 status.
func refineKind(kind ErrorKind, errType, message string) ErrorKind {
	text := strings.ToLower(errType + " " + message)
	switch {
	case strings.Contains(text, "context_length") || strings.Contains(text, "maximum context") ||
		strings.Contains(text, "too many tokens") || strings.Contains(text, "token limit"):
		return KindTokenLimitExceeded
	case strings.Contains(text, "content_policy") || strings.Contains(text, "content_filter") ||
		strings.Contains(text, "safety") || strings.Contains(text, "moderation"):
		return KindContentPolicy
	case strings.Contains(text, "rate_limit") || strings.Contains(text, "rate limit"):
		return KindRateLimit
	}
	return kind
}
