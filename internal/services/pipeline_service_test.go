package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/obralink/oraculo/pkg/domain"
)

type stubOCR struct {
	text string
	err  error
}

func (s *stubOCR) ExtractText(ctx context.Context, doc domain.RawDocument) (string, error) {
	return s.text, s.err
}

type stubNER struct {
	rec *domain.EntityRecord
	err error
}

func (s *stubNER) ExtractEntities(ctx context.Context, text string) (*domain.EntityRecord, error) {
	return s.rec, s.err
}

type stubOracle struct {
	calls []domain.IdempotencyKey
	rec   *domain.SubmissionRecord
	err   error
}

func (s *stubOracle) Submit(ctx context.Context, key domain.IdempotencyKey, ref domain.MilestoneReference) (*domain.SubmissionRecord, error) {
	s.calls = append(s.calls, key)
	if s.err != nil {
		return nil, s.err
	}
	rec := *s.rec
	rec.Key = key
	return &rec, nil
}

type stubUploader struct {
	objects []string
	err     error
}

func (s *stubUploader) UploadBytes(ctx context.Context, objectPath, contentType string, data []byte) (string, error) {
	s.objects = append(s.objects, objectPath)
	return "s3://bucket/" + objectPath, s.err
}

func validEntities() *domain.EntityRecord {
	return &domain.EntityRecord{
		ResponsibleEngineer: domain.StringPtr("Eng. Carla Dias"),
		Date:                domain.StringPtr("20/04/2026"),
		Percentage:          domain.FloatPtr(85),
	}
}

func newPipeline(ocr TextExtractor, ner EntityExtractor, oracle MilestoneOracle, up *stubUploader, keyWithDoc bool) PipelineService {
	if up == nil {
		return NewPipelineService(ocr, ner, NewValidationService(), oracle, nil, keyWithDoc, slog.Default(), time.Now)
	}
	return NewPipelineService(ocr, ner, NewValidationService(), oracle, up, keyWithDoc, slog.Default(), time.Now)
}

func TestProcessValidDocumentSubmits(t *testing.T) {
	oracle := &stubOracle{rec: &domain.SubmissionRecord{
		State:  domain.SubmissionConfirmed,
		TxHash: "0x1",
		Result: &domain.OracleResult{TransactionHash: "0x1", Status: "success"},
	}}
	svc := newPipeline(&stubOCR{text: "relatório"}, &stubNER{rec: validEntities()}, oracle, nil, false)

	ref := domain.MilestoneReference{BuildingID: 10, MilestoneNumber: 2}
	res, err := svc.Process(context.Background(), domain.RawDocument{Content: []byte("%PDF x"), MediaType: domain.MediaPDF}, ref)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !res.Verdict.Valid() {
		t.Fatalf("verdict invalid: %v", res.Verdict.Reasons)
	}
	if res.Key != domain.IdempotencyKey("b10:m2") {
		t.Fatalf("key = %s", res.Key)
	}
	if len(oracle.calls) != 1 || oracle.calls[0] != res.Key {
		t.Fatalf("oracle calls: %v", oracle.calls)
	}
	if res.Submission == nil || res.Submission.State != domain.SubmissionConfirmed {
		t.Fatalf("submission: %+v", res.Submission)
	}
}

func TestProcessInvalidDocumentSkipsOracle(t *testing.T) {
	oracle := &stubOracle{rec: &domain.SubmissionRecord{}}
	entities := &domain.EntityRecord{
		ResponsibleEngineer: domain.StringPtr("Eng. X"),
		Date:                domain.StringPtr("01/01/2026"),
		Percentage:          domain.FloatPtr(12),
	}
	svc := newPipeline(&stubOCR{text: "t"}, &stubNER{rec: entities}, oracle, nil, false)

	res, err := svc.Process(context.Background(), domain.RawDocument{Content: []byte("x")}, domain.MilestoneReference{BuildingID: 1, MilestoneNumber: 1})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Verdict.Valid() {
		t.Fatal("verdict should be invalid")
	}
	if len(oracle.calls) != 0 {
		t.Fatalf("oracle must not be called for invalid documents, calls=%v", oracle.calls)
	}
	if res.Submission != nil {
		t.Fatalf("submission should be nil: %+v", res.Submission)
	}
}

func TestProcessOracleDisabled(t *testing.T) {
	svc := newPipeline(&stubOCR{text: "t"}, &stubNER{rec: validEntities()}, nil, nil, false)

	res, err := svc.Process(context.Background(), domain.RawDocument{Content: []byte("x")}, domain.MilestoneReference{BuildingID: 2, MilestoneNumber: 1})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !res.Verdict.Valid() || res.Submission != nil {
		t.Fatalf("valid=%v submission=%+v", res.Verdict.Valid(), res.Submission)
	}
}

func TestProcessExtractionErrorPropagates(t *testing.T) {
	wantErr := domain.NewExtractionError("ocr", errors.New("provider down"))
	oracle := &stubOracle{rec: &domain.SubmissionRecord{}}
	svc := newPipeline(&stubOCR{err: wantErr}, &stubNER{rec: validEntities()}, oracle, nil, false)

	_, err := svc.Process(context.Background(), domain.RawDocument{Content: []byte("x")}, domain.MilestoneReference{BuildingID: 3, MilestoneNumber: 1})
	var xerr *domain.ExtractionError
	if !errors.As(err, &xerr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	if len(oracle.calls) != 0 {
		t.Fatal("oracle must not run after an extraction failure")
	}
}

func TestProcessKeyIncludesDocumentDigest(t *testing.T) {
	svc := newPipeline(&stubOCR{text: "t"}, &stubNER{rec: validEntities()}, nil, nil, true)

	doc := domain.RawDocument{Content: []byte("same bytes")}
	ref := domain.MilestoneReference{BuildingID: 4, MilestoneNumber: 1}
	res, err := svc.Process(context.Background(), doc, ref)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	want := domain.NewIdempotencyKey(ref, doc.SHA256())
	if res.Key != want {
		t.Fatalf("key = %s, want %s", res.Key, want)
	}
}

func TestProcessRetentionFailureIsNotFatal(t *testing.T) {
	up := &stubUploader{err: errors.New("bucket gone")}
	svc := newPipeline(&stubOCR{text: "t"}, &stubNER{rec: validEntities()}, nil, up, false)

	res, err := svc.Process(context.Background(), domain.RawDocument{Content: []byte("%PDF data"), MediaType: domain.MediaPDF}, domain.MilestoneReference{BuildingID: 5, MilestoneNumber: 2})
	if err != nil {
		t.Fatalf("retention failure must not fail the pipeline: %v", err)
	}
	if !res.Verdict.Valid() {
		t.Fatalf("verdict: %v", res.Verdict.Reasons)
	}
	if len(up.objects) != 1 {
		t.Fatalf("uploads = %d, want 1", len(up.objects))
	}
}
