package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/obralink/oraculo/internal/metrics"
	"github.com/obralink/oraculo/internal/providers"
	"github.com/obralink/oraculo/pkg/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MilestoneOracle is the on-chain confirmation entry point the pipeline
// depends on. internal/oracle.Submitter satisfies it.
type MilestoneOracle interface {
	Submit(ctx context.Context, key domain.IdempotencyKey, ref domain.MilestoneReference) (*domain.SubmissionRecord, error)
}

// PipelineResult bundles everything one document run produced. Submission is
// nil when the verdict failed or the oracle path is disabled; the verdict
// itself is never altered by what happened on chain.
type PipelineResult struct {
	Entities   domain.EntityRecord
	Verdict    domain.Verdict
	Key        domain.IdempotencyKey
	Submission *domain.SubmissionRecord
}

// PipelineService runs a document through extraction, entity recognition,
// validation and, for valid documents, on-chain confirmation.
type PipelineService interface {
	Process(ctx context.Context, doc domain.RawDocument, ref domain.MilestoneReference) (*PipelineResult, error)
}

type pipelineService struct {
	ocr        TextExtractor
	ner        EntityExtractor
	validator  ValidationService
	oracle     MilestoneOracle // nil when the oracle path is disabled
	uploader   providers.Uploader
	keyWithDoc bool
	logger     *slog.Logger
	now        func() time.Time
}

func NewPipelineService(ocr TextExtractor, ner EntityExtractor, validator ValidationService, oracle MilestoneOracle, uploader providers.Uploader, keyWithDoc bool, logger *slog.Logger, now func() time.Time) PipelineService {
	return &pipelineService{
		ocr:        ocr,
		ner:        ner,
		validator:  validator,
		oracle:     oracle,
		uploader:   uploader,
		keyWithDoc: keyWithDoc,
		logger:     logger,
		now:        now,
	}
}

func (s *pipelineService) Process(ctx context.Context, doc domain.RawDocument, ref domain.MilestoneReference) (*PipelineResult, error) {
	start := s.now()
	ctx, span := otel.Tracer("oraculo/pipeline").Start(ctx, "oraculo.pipeline.process",
		trace.WithAttributes(
			attribute.Int64("oraculo.building_id", int64(ref.BuildingID)),
			attribute.Int("oraculo.milestone_number", int(ref.MilestoneNumber)),
			attribute.String("oraculo.media_type", string(doc.MediaType)),
		),
	)
	defer span.End()

	s.retain(ctx, doc, ref)

	text, err := s.ocr.ExtractText(ctx, doc)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	entities, err := s.ner.ExtractEntities(ctx, text)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	verdict := s.validator.Validate(*entities)
	verdictLabel := "invalid"
	if verdict.Valid() {
		verdictLabel = "valid"
	}
	metrics.DocumentsValidatedTotal.WithLabelValues(verdictLabel).Inc()
	defer func() {
		metrics.PipelineLatencySeconds.WithLabelValues(verdictLabel).Observe(s.now().Sub(start).Seconds())
	}()
	span.SetAttributes(attribute.Bool("oraculo.valid", verdict.Valid()))

	docDigest := ""
	if s.keyWithDoc {
		docDigest = doc.SHA256()
	}
	result := &PipelineResult{
		Entities: *entities,
		Verdict:  verdict,
		Key:      domain.NewIdempotencyKey(ref, docDigest),
	}

	if !verdict.Valid() {
		s.logger.Info("document rejected", "milestone", ref.String(), "reasons", verdict.Reasons)
		return result, nil
	}
	if s.oracle == nil {
		s.logger.Info("document valid, oracle disabled", "milestone", ref.String())
		return result, nil
	}

	sub, err := s.oracle.Submit(ctx, result.Key, ref)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("oracle submit: %w", err)
	}
	result.Submission = sub
	return result, nil
}

// retain ships the raw document to object storage. Best effort; a retention
// failure must never block or fail validation.
func (s *pipelineService) retain(ctx context.Context, doc domain.RawDocument, ref domain.MilestoneReference) {
	if s.uploader == nil {
		return
	}
	ext := "bin"
	switch doc.MediaType {
	case domain.MediaPDF:
		ext = "pdf"
	case domain.MediaPNG:
		ext = "png"
	case domain.MediaJPEG:
		ext = "jpg"
	}
	objectPath := fmt.Sprintf("documents/b%d/m%d/%s.%s", ref.BuildingID, ref.MilestoneNumber, doc.SHA256(), ext)
	if _, err := s.uploader.UploadBytes(ctx, objectPath, string(doc.MediaType), doc.Content); err != nil {
		s.logger.Warn("document retention failed", "object", objectPath, "error", err)
	}
}
