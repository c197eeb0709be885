package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MimeLyc/subtitle-batch-translator/internal/backend"
	"github.com/MimeLyc/subtitle-batch-translator/internal/translator"
	"github.com/MimeLyc/subtitle-batch-translator/pkg/log"
)

type ErrorType int

const (
	ErrFileNotFound ErrorType = iota
	ErrFileRead
	ErrFileWrite
	ErrParse
	ErrValidation
	ErrConfig
	ErrTranslation
	ErrUnknown
)

// Error is a failure of one file-level operation.
type Error struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *Error {
	e := NewError(errorType, message)
	e.Cause = cause
	return e
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var ctxParts []string
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

func (t ErrorType) String() string {
	switch t {
	case ErrFileNotFound:
		return "FileNotFound"
	case ErrFileRead:
		return "FileRead"
	case ErrFileWrite:
		return "FileWrite"
	case ErrParse:
		return "Parse"
	case ErrValidation:
		return "Validation"
	case ErrConfig:
		return "Config"
	case ErrTranslation:
		return "Translation"
	default:
		return "Unknown"
	}
}

// Advice returns a hint for the operator. Translation failures are refined
// by the backend error kind found in the chain.
func Advice(err error) string {
	var svcErr *Error
	if !errors.As(err, &svcErr) {
		return "Please review detailed error information and check relevant configuration and files"
	}

	switch svcErr.Type {
	case ErrFileNotFound:
		return "Please check that the file path is correct and ensure the file exists with read permissions"
	case ErrFileRead:
		return "Please check file permissions to ensure read access and verify the file is not corrupted"
	case ErrFileWrite:
		return "Please ensure the output directory exists and has write permissions"
	case ErrParse:
		return "Please verify the subtitle file is valid SRT"
	case ErrValidation:
		return "Please verify input parameters are correct; file paths cannot be empty"
	case ErrConfig:
		return "Please check that configuration files or environment variables are set correctly"
	case ErrTranslation:
		return translationAdvice(err)
	default:
		return "Please review detailed error information and check relevant configuration and files"
	}
}

func translationAdvice(err error) string {
	switch backend.KindOf(err) {
	case backend.KindAuth:
		return "Please check that the API keys are valid and have access to the configured model"
	case backend.KindRateLimit:
		return "The provider is rate limiting; add more API keys or lower CONCURRENCY"
	case backend.KindNetwork:
		return "Please check network connectivity to the API service"
	case backend.KindTokenLimitExceeded:
		return "Batches are too large for the model; lower BATCH_SIZE or set TOKEN_CEILING"
	case backend.KindContentPolicy:
		return "The provider refused the content even with a softened prompt; try another model"
	case backend.KindProviderUnavailable:
		return "Both the primary and the fallback provider failed; check their status and quotas"
	}
	if translator.IsErrorType(err, translator.ErrCanceled) {
		return "The job was canceled; committed batches are checkpointed and will be reused on the next run"
	}
	return "An issue occurred during translation; try reducing batch size or check the provider status"
}

// LogError logs err together with its advice.
func LogError(err error) {
	log.Error("Error Detail: %v\n advice: %s", err, Advice(err))
}

func IsErrorType(err error, errorType ErrorType) bool {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Type == errorType
	}
	return false
}
