package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/obralink/oraculo/internal/metrics"
	"github.com/obralink/oraculo/pkg/config"
	"github.com/obralink/oraculo/pkg/domain"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// EntityExtractor pulls the structured report fields out of OCR text.
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, text string) (*domain.EntityRecord, error)
}

const entityPrompt = `Extract the following fields from this construction progress report.
Return ONLY a JSON object with exactly these keys:
  "responsible_engineer": the full name of the responsible engineer, or null if not present
  "date": the report date in DD/MM/YYYY format, or null if not present
  "construction_progress_percentage": the completion percentage as a number, or null if not present

Do not infer values that are not in the text. Report text follows:

`

// entitySchema constrains the model output before any field is trusted.
// Percentages sometimes come back as strings with a decimal comma, so the
// schema admits both forms and parsing normalizes them.
const entitySchema = `{
  "type": "object",
  "required": ["responsible_engineer", "date", "construction_progress_percentage"],
  "properties": {
    "responsible_engineer": {"type": ["string", "null"]},
    "date": {"type": ["string", "null"]},
    "construction_progress_percentage": {"type": ["number", "string", "null"]}
  }
}`

var compiledEntitySchema = jsonschema.MustCompileString("entity_schema.json", entitySchema)

// geminiExtractor calls a Gemini-style generateContent endpoint in JSON mode.
type geminiExtractor struct {
	url    string
	apiKey string
	model  string
	client *http.Client
	logger *slog.Logger
}

func NewEntityExtractor(cfg config.NERConfig, logger *slog.Logger) EntityExtractor {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &geminiExtractor{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type generateRequest struct {
	Contents         []generateContent `json:"contents"`
	GenerationConfig generationConfig  `json:"generationConfig"`
}

type generateContent struct {
	Parts []generatePart `json:"parts"`
}

type generatePart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"responseMimeType"`
	Temperature      float64 `json:"temperature"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []generatePart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *geminiExtractor) ExtractEntities(ctx context.Context, text string) (*domain.EntityRecord, error) {
	ctx, span := otel.Tracer("oraculo/extraction").Start(ctx, "oraculo.ner.extract_entities",
		trace.WithAttributes(attribute.Int("oraculo.text_length", len(text))),
	)
	defer span.End()

	raw, err := e.generate(ctx, entityPrompt+text)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.ExtractionFailuresTotal.WithLabelValues("ner").Inc()
		return nil, domain.NewExtractionError("ner", err)
	}

	rec, err := parseEntityPayload(raw)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.ExtractionFailuresTotal.WithLabelValues("ner").Inc()
		return nil, domain.NewExtractionError("ner", err)
	}
	return rec, nil
}

func (e *geminiExtractor) generate(ctx context.Context, prompt string) ([]byte, error) {
	body := generateRequest{
		Contents: []generateContent{{Parts: []generatePart{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			Temperature:      0,
		},
	}
	bs, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimSuffix(e.url, "/"), e.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("X-Goog-Api-Key", e.apiKey)
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	e.logger.Debug("ner response", "status", resp.StatusCode, "elapsed_ms", time.Since(start).Milliseconds())

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider status %d: %s", resp.StatusCode, truncate(string(raw), 256))
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("provider error %d: %s", out.Error.Code, out.Error.Message)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return nil, errors.New("no candidates in response")
	}
	return []byte(out.Candidates[0].Content.Parts[0].Text), nil
}

// parseEntityPayload validates the model output against the schema and maps it
// into an EntityRecord. Absent stays nil; no coercion to zero values.
func parseEntityPayload(raw []byte) (*domain.EntityRecord, error) {
	payload := stripCodeFence(raw)

	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("model output is not JSON: %w", err)
	}
	if err := compiledEntitySchema.Validate(v); err != nil {
		return nil, fmt.Errorf("model output does not match schema: %w", err)
	}

	obj := v.(map[string]any)
	rec := &domain.EntityRecord{}

	if s, ok := obj["responsible_engineer"].(string); ok {
		rec.ResponsibleEngineer = domain.StringPtr(s)
	}
	if s, ok := obj["date"].(string); ok {
		rec.Date = domain.StringPtr(s)
	}
	switch pct := obj["construction_progress_percentage"].(type) {
	case float64:
		rec.Percentage = domain.FloatPtr(pct)
	case string:
		f, err := parsePercentage(pct)
		if err != nil {
			return nil, err
		}
		rec.Percentage = domain.FloatPtr(f)
	}
	return rec, nil
}

// parsePercentage accepts Brazilian decimal-comma notation ("75,5") as well as
// plain decimals, with an optional percent sign.
func parsePercentage(s string) (float64, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("percentage %q is not a number: %w", s, err)
	}
	f, _ := d.Float64()
	return f, nil
}

// stripCodeFence removes a markdown fence some models wrap around JSON mode
// output despite the mime-type hint.
func stripCodeFence(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	return []byte(s)
}
