// Package backend defines the translation backend contract and its
// implementations: OpenAI-compatible chat models and native bulk
// translation APIs.
package backend

import (
	"context"

	"github.com/MimeLyc/subtitle-batch-translator/internal/credentials"
)

// RetryPolicy tells the engine how to treat count mismatches.
type RetryPolicy int

const (
	// RetryOnMismatch backends may hallucinate counts; mismatches get
	// targeted and full-batch retries.
	RetryOnMismatch RetryPolicy = iota
	// RetryNone backends are deterministic; mismatches are padded or
	// truncated once without another request.
	RetryNone
)

func (p RetryPolicy) String() string {
	if p == RetryNone {
		return "none"
	}
	return "on-mismatch"
}

// Request is one backend call.
type Request struct {
	Content        string
	SourceHint     string
	TargetLanguage string
	Prompt         string
	// Credential is the key selected for this call; a zero binding means
	// the backend's configured default.
	Credential credentials.Binding
}

// Backend is a pluggable text transformation service.
type Backend interface {
	Name() string
	Translate(ctx context.Context, req Request) (string, error)
	// StreamTranslate invokes onPartial zero or more times with the
	// cumulative output before returning the final text.
	StreamTranslate(ctx context.Context, req Request, onPartial func(cumulative string)) (string, error)
	// CountTokens returns ErrTokenCountUnsupported when the backend cannot count.
	CountTokens(ctx context.Context, req Request) (int, error)
	EstimateTokenCount(text string) int
	RetryPolicy() RetryPolicy
}
