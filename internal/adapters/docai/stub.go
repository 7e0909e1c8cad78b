package docai

import (
	"context"
	"hash/fnv"
	"log/slog"

	"github.com/expensio/expensio_backend/internal/core/domain"
	"github.com/expensio/expensio_backend/internal/core/ports/clients"
)

// cannedReceipts are the fixtures the stub serves, modeled on real receipts
// the parser is exercised against.
var cannedReceipts = []struct {
	fullText string
	kv       map[string]string
}{
	{
		fullText: "RESTAURANTE BRASILEIRO\nData: 15/01/2025\nPrato Feito            1      R$ 25,90\nRefrigerante           1      R$  8,50\nTOTAL:  R$ 34,40",
		kv:       map[string]string{"total": "R$ 34,40", "date": "15/01/2025"},
	},
	{
		fullText: "UBER\nViagem #2025-001234\nData: 16/01/2025\nTOTAL:  R$ 32,50",
		kv:       map[string]string{"total": "R$ 32,50", "date": "16/01/2025"},
	},
	{
		fullText: "PAPELARIA CENTRAL\nData: 17/01/2025\nCaderno A4             10     R$ 45,00\nCaneta                 20     R$ 32,00\nTOTAL:  R$ 77,00",
		kv:       map[string]string{"total": "R$ 77,00", "date": "17/01/2025"},
	},
}

// StubProvider serves deterministic canned extraction results keyed off the
// receipt location. It stands in for the remote provider in development and
// test environments; every serve is logged and the result carries the stub
// source marker so the fallback stays observable.
type StubProvider struct {
	logger *slog.Logger
}

func NewStubProvider(logger *slog.Logger) *StubProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubProvider{logger: logger}
}

// Ensure StubProvider implements clients.ExtractionProvider
var _ clients.ExtractionProvider = (*StubProvider)(nil)

// DetectText returns the canned receipt selected by hashing the location.
// The same location always yields the same result.
func (p *StubProvider) DetectText(ctx context.Context, receiptLocation string) (*domain.ExtractionResult, error) {
	h := fnv.New32a()
	h.Write([]byte(receiptLocation))
	canned := cannedReceipts[int(h.Sum32())%len(cannedReceipts)]

	p.logger.Info("stub extraction provider served canned result",
		slog.String("receipt_location", receiptLocation))

	kv := make(map[string]string, len(canned.kv))
	for k, v := range canned.kv {
		kv[k] = v
	}

	return &domain.ExtractionResult{
		FullText:      canned.fullText,
		KeyValuePairs: kv,
		Confidence:    0.95,
		Source:        domain.ExtractionSourceStub,
	}, nil
}
