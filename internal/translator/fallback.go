package translator

import (
	"fmt"

	"github.com/MimeLyc/subtitle-batch-translator/internal/backend"
)

// FallbackError reports that both the primary and the secondary backend
// failed the same batch.
type FallbackError struct {
	Primary           error
	Secondary         error
	PrimaryProvider   string
	SecondaryProvider string
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("all providers failed: %s: %v; %s: %v",
		e.PrimaryProvider, e.Primary, e.SecondaryProvider, e.Secondary)
}

func (e *FallbackError) Unwrap() []error {
	return []error{e.Primary, e.Secondary}
}

func (e *FallbackError) ErrorKind() backend.ErrorKind {
	return backend.KindProviderUnavailable
}
