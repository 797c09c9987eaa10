package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/obralink/oraculo/internal/metrics"
	"github.com/obralink/oraculo/pkg/config"
	"github.com/obralink/oraculo/pkg/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TextExtractor turns an uploaded document into plain text.
type TextExtractor interface {
	ExtractText(ctx context.Context, doc domain.RawDocument) (string, error)
}

// visionExtractor calls a Vision-style images:annotate endpoint. PDFs and
// images go through the same document-text-detection feature; the provider
// handles rasterization.
type visionExtractor struct {
	url    string
	apiKey string
	client *http.Client
	logger *slog.Logger
}

func NewTextExtractor(cfg config.OCRConfig, logger *slog.Logger) TextExtractor {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &visionExtractor{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type annotateRequest struct {
	Requests []annotateEntry `json:"requests"`
}

type annotateEntry struct {
	Image    annotateImage     `json:"image"`
	Features []annotateFeature `json:"features"`
}

type annotateImage struct {
	Content string `json:"content"`
}

type annotateFeature struct {
	Type string `json:"type"`
}

type annotateResponse struct {
	Responses []struct {
		FullTextAnnotation *struct {
			Text string `json:"text"`
		} `json:"fullTextAnnotation"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

func (e *visionExtractor) ExtractText(ctx context.Context, doc domain.RawDocument) (string, error) {
	ctx, span := otel.Tracer("oraculo/extraction").Start(ctx, "oraculo.ocr.extract_text",
		trace.WithAttributes(
			attribute.String("oraculo.media_type", string(doc.MediaType)),
			attribute.Int("oraculo.document_bytes", len(doc.Content)),
		),
	)
	defer span.End()

	text, err := e.annotate(ctx, doc)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.ExtractionFailuresTotal.WithLabelValues("ocr").Inc()
		return "", domain.NewExtractionError("ocr", err)
	}
	if text == "" && len(doc.Content) > 0 {
		// A non-empty document that yields no text means the provider choked,
		// not that the document is blank.
		err := errors.New("provider returned no text for non-empty document")
		span.SetStatus(codes.Error, err.Error())
		metrics.ExtractionFailuresTotal.WithLabelValues("ocr").Inc()
		return "", domain.NewExtractionError("ocr", err)
	}
	span.SetAttributes(attribute.Int("oraculo.text_length", len(text)))
	return text, nil
}

func (e *visionExtractor) annotate(ctx context.Context, doc domain.RawDocument) (string, error) {
	body := annotateRequest{
		Requests: []annotateEntry{{
			Image:    annotateImage{Content: base64.StdEncoding.EncodeToString(doc.Content)},
			Features: []annotateFeature{{Type: "DOCUMENT_TEXT_DETECTION"}},
		}},
	}
	bs, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(bs))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("X-Goog-Api-Key", e.apiKey)
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	e.logger.Debug("ocr response", "status", resp.StatusCode, "elapsed_ms", time.Since(start).Milliseconds())

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provider status %d: %s", resp.StatusCode, truncate(string(raw), 256))
	}

	var out annotateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Responses) == 0 {
		return "", errors.New("empty response")
	}
	first := out.Responses[0]
	if first.Error != nil {
		return "", fmt.Errorf("provider error %d: %s", first.Error.Code, first.Error.Message)
	}
	if first.FullTextAnnotation == nil {
		return "", nil
	}
	return first.FullTextAnnotation.Text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
