package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/subtitle-batch-translator/internal/credentials"
	"github.com/MimeLyc/subtitle-batch-translator/internal/llm"
)

func newChat(t *testing.T, handler http.HandlerFunc) *ChatBackend {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := llm.NewClient(&llm.Config{
		APIKey:      "default-key",
		APIURL:      server.URL,
		Model:       "test-model",
		Temperature: 0.3,
		Timeout:     5,
	})
	require.NoError(t, err)
	return NewChatBackend("", client)
}

func TestChatBackend_TranslateUsesBoundCredential(t *testing.T) {
	t.Parallel()

	b := newChat(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key-b", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"1. Hallo"},"finish_reason":"stop"}]}`))
	})
	assert.Equal(t, "test-model", b.Name())
	assert.Equal(t, RetryOnMismatch, b.RetryPolicy())

	store := credentials.NewStore([]string{"key-a", "key-b"}, credentials.RotatePerBatch)
	out, err := b.Translate(context.Background(), Request{Content: "1. Hello", Prompt: "p", Credential: store.Binding(1)})
	require.NoError(t, err)
	assert.Equal(t, "1. Hallo", out)
}

func TestChatBackend_ErrorClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		header map[string]string
		body   string
		kind   ErrorKind
	}{
		{"rate limit", http.StatusTooManyRequests, map[string]string{"Retry-After": "3"}, `{"error":{"message":"slow"}}`, KindRateLimit},
		{"auth", http.StatusUnauthorized, nil, `{"error":{"message":"bad key","type":"authentication_error"}}`, KindAuth},
		{"context length", http.StatusBadRequest, nil, `{"error":{"message":"maximum context length exceeded","type":"invalid_request_error","code":"context_length_exceeded"}}`, KindTokenLimitExceeded},
		{"moderation", http.StatusBadRequest, nil, `{"error":{"message":"flagged by moderation"}}`, KindContentPolicy},
		{"server", http.StatusBadGateway, nil, `upstream down`, KindNetwork},
		{"bad request", http.StatusBadRequest, nil, `{"error":{"message":"unknown field"}}`, KindUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			b := newChat(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tc.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			_, err := b.Translate(context.Background(), Request{Content: "x"})
			require.Error(t, err)

			var be *Error
			require.True(t, errors.As(err, &be))
			assert.Equal(t, tc.kind, be.Kind)
			assert.Equal(t, "test-model", be.Provider)
			if tc.kind == KindRateLimit {
				assert.Equal(t, 3*time.Second, be.RetryAfter)
			}
		})
	}
}

func TestChatBackend_FinishReasons(t *testing.T) {
	t.Parallel()

	b := newChat(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"1. half"},"finish_reason":"length"}]}`))
	})
	_, err := b.Translate(context.Background(), Request{Content: "x"})
	assert.Equal(t, KindTokenLimitExceeded, KindOf(err))

	refused := newChat(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"","refusal":"cannot help"},"finish_reason":"stop"}]}`))
	})
	_, err = refused.Translate(context.Background(), Request{Content: "x"})
	assert.Equal(t, KindContentPolicy, KindOf(err))
}

func TestChatBackend_StreamCumulativePartials(t *testing.T) {
	t.Parallel()

	b := newChat(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"1. Ha", "llo\n\n2.", " Welt"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var partials []string
	out, err := b.StreamTranslate(context.Background(), Request{Content: "x"}, func(cumulative string) {
		partials = append(partials, cumulative)
	})
	require.NoError(t, err)
	assert.Equal(t, "1. Hallo\n\n2. Welt", out)
	assert.Equal(t, []string{"1. Ha", "1. Hallo\n\n2.", "1. Hallo\n\n2. Welt"}, partials)
}

func TestChatBackend_TokenCounting(t *testing.T) {
	t.Parallel()

	b := NewChatBackend("chat", nil)
	_, err := b.CountTokens(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrTokenCountUnsupported)
	assert.Equal(t, 3, b.EstimateTokenCount("123456789"))
}
