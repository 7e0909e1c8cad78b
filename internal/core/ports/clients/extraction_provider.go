package clients

import (
	"context"

	"github.com/expensio/expensio_backend/internal/core/domain"
)

// ExtractionProvider turns a stored receipt into text plus key-value pairs.
// Exactly one implementation is selected at process start (remote service or
// deterministic stub) and injected; callers never branch on configuration.
type ExtractionProvider interface {
	// DetectText runs document understanding against the receipt at the given
	// blob store location. Provider failures (auth, timeout, malformed
	// document) wrap apperrors.ErrExtractionFailed.
	DetectText(ctx context.Context, receiptLocation string) (*domain.ExtractionResult, error)
}
