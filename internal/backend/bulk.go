package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MimeLyc/subtitle-batch-translator/internal/llm"
)

const defaultBulkURL = "https://api-free.deepl.com/v2/translate"

// BulkConfig configures a DeepL-style bulk translation API.
type BulkConfig struct {
	Name    string
	APIURL  string
	APIKey  string
	Timeout time.Duration
}

// BulkBackend sends the formatted batch as one XML document to a native
// translation API. It ignores prompts and never hallucinates entry counts.
type BulkBackend struct {
	cfg        BulkConfig
	httpClient *http.Client
}

func NewBulkBackend(cfg BulkConfig) *BulkBackend {
	if cfg.Name == "" {
		cfg.Name = "deepl"
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultBulkURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	return &BulkBackend{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (b *BulkBackend) Name() string { return b.cfg.Name }

func (b *BulkBackend) RetryPolicy() RetryPolicy { return RetryNone }

func (b *BulkBackend) Translate(ctx context.Context, req Request) (string, error) {
	key := req.Credential.Or(b.cfg.APIKey).Secret()
	if key == "" {
		return "", NewError(KindAuth, b.cfg.Name, "API key not configured")
	}

	form := url.Values{}
	form.Add("text", req.Content)
	form.Set("target_lang", bulkLangCode(req.TargetLanguage))
	if req.SourceHint != "" && req.SourceHint != "und" {
		form.Set("source_lang", bulkLangCode(req.SourceHint))
	}
	form.Set("tag_handling", "xml")
	form.Set("ignore_tags", "ctx")
	form.Set("split_sentences", "nonewlines")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.APIURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", WrapError(err, KindUnknown, b.cfg.Name, "create request")
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", "DeepL-Auth-Key "+key)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return "", WrapError(err, KindOf(err), b.cfg.Name, "bulk API request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", WrapError(err, KindNetwork, b.cfg.Name, "read response")
	}

	if resp.StatusCode != http.StatusOK {
		kind := kindForStatus(resp.StatusCode)
		// DeepL signals an exhausted quota with 456
		if resp.StatusCode == 456 {
			kind = KindProviderUnavailable
		}
		e := NewError(kind, b.cfg.Name, fmt.Sprintf("bulk API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body))))
		if kind == KindRateLimit {
			e.RetryAfter = retryAfter(resp.Header.Get("Retry-After"))
		}
		return "", e
	}

	var bulkResp struct {
		Translations []struct {
			Text string `json:"text"`
		} `json:"translations"`
	}
	if err := json.Unmarshal(body, &bulkResp); err != nil {
		return "", WrapError(err, KindUnknown, b.cfg.Name, "parse response")
	}
	if len(bulkResp.Translations) == 0 {
		return "", NewError(KindUnknown, b.cfg.Name, "response carried no translations")
	}
	return bulkResp.Translations[0].Text, nil
}

// StreamTranslate has no incremental output; the final text is reported
// as a single partial.
func (b *BulkBackend) StreamTranslate(ctx context.Context, req Request, onPartial func(string)) (string, error) {
	text, err := b.Translate(ctx, req)
	if err != nil {
		return "", err
	}
	if onPartial != nil {
		onPartial(text)
	}
	return text, nil
}

func (b *BulkBackend) CountTokens(context.Context, Request) (int, error) {
	return 0, ErrTokenCountUnsupported
}

// EstimateTokenCount counts characters; bulk APIs bill and limit by size.
func (b *BulkBackend) EstimateTokenCount(text string) int {
	return (len(text) + 3) / 4
}

// bulkLangCode upper-cases a BCP 47 tag the way DeepL expects.
func bulkLangCode(tag string) string {
	return strings.ToUpper(strings.ReplaceAll(tag, "_", "-"))
}

func retryAfter(value string) time.Duration {
	return llm.ParseRetryAfter(value)
}
