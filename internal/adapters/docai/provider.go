// Package docai implements the document-understanding providers behind the
// ExtractionProvider port: a remote HTTP service and a deterministic stub for
// environments without one. The choice is made once at startup and injected;
// extraction code never branches on configuration.
package docai

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

	"github.com/expensio/expensio_backend/internal/apperrors"
	"github.com/expensio/expensio_backend/internal/core/domain"
	"github.com/expensio/expensio_backend/internal/core/ports/clients"
)

const defaultDetectTimeout = 30 * time.Second

// Block types the provider reports. Lines carry the recognized text; key
// value blocks carry "Key: Value" form fields.
const (
	blockTypeLine     = "LINE"
	blockTypeKeyValue = "KEY_VALUE"
)

// RemoteProvider calls an external document-understanding service with the
// receipt bytes and normalizes its block list into text plus key-value pairs.
type RemoteProvider struct {
	endpoint   string
	apiKey     string
	blobs      clients.BlobStore
	httpClient *http.Client
}

func NewRemoteProvider(endpoint, apiKey string, blobs clients.BlobStore) *RemoteProvider {
	return &RemoteProvider{
		endpoint:   endpoint,
		apiKey:     apiKey,
		blobs:      blobs,
		httpClient: &http.Client{Timeout: defaultDetectTimeout},
	}
}

// Ensure RemoteProvider implements clients.ExtractionProvider
var _ clients.ExtractionProvider = (*RemoteProvider)(nil)

type detectTextRequest struct {
	Document    string `json:"document"` // base64 receipt bytes
	ContentType string `json:"contentType"`
}

type detectTextResponse struct {
	Blocks []struct {
		Type       string  `json:"type"`
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	} `json:"blocks"`
}

// DetectText fetches the receipt from the blob store, submits it to the
// provider, and flattens the returned blocks. All failures wrap
// ErrExtractionFailed so the extraction queue can record and retry them.
func (p *RemoteProvider) DetectText(ctx context.Context, receiptLocation string) (*domain.ExtractionResult, error) {
	data, err := p.blobs.Get(ctx, receiptLocation)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read receipt %s: %v", apperrors.ErrExtractionFailed, receiptLocation, err)
	}

	reqBody := detectTextRequest{
		Document:    base64.StdEncoding.EncodeToString(data),
		ContentType: http.DetectContentType(data),
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal provider request: %v", apperrors.ErrExtractionFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrExtractionFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: provider unreachable: %v", apperrors.ErrExtractionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: provider returned status %d: %s",
			apperrors.ErrExtractionFailed, resp.StatusCode, string(bodyBytes))
	}

	var respBody detectTextResponse
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return nil, fmt.Errorf("%w: failed to decode provider response: %v", apperrors.ErrExtractionFailed, err)
	}

	return normalizeBlocks(respBody), nil
}

// normalizeBlocks turns the provider's block list into the flat extraction
// result the parser consumes. Confidence is the mean per-line confidence;
// zero lines yield confidence 0, not an error.
func normalizeBlocks(resp detectTextResponse) *domain.ExtractionResult {
	var lines []string
	kv := map[string]string{}
	var confidenceSum float64
	var lineCount int

	for _, block := range resp.Blocks {
		switch block.Type {
		case blockTypeLine:
			if block.Text == "" {
				continue
			}
			lines = append(lines, block.Text)
			confidenceSum += block.Confidence
			lineCount++
		case blockTypeKeyValue:
			key, value, found := strings.Cut(block.Text, ":")
			if !found {
				continue
			}
			kv[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}

	var confidence float64
	if lineCount > 0 {
		confidence = confidenceSum / float64(lineCount)
	}
	// Some providers report percentages. The contract is [0,1].
	if confidence > 1 {
		confidence = confidence / 100
	}

	if len(kv) == 0 {
		kv = nil
	}
	return &domain.ExtractionResult{
		FullText:      strings.Join(lines, "\n"),
		KeyValuePairs: kv,
		Confidence:    confidence,
		Source:        domain.ExtractionSourceRemote,
	}
}
