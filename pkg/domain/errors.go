package domain

import "fmt"

// ExtractionError marks a failure in an upstream extraction stage (OCR or
// entity recognition). The pipeline maps it to 502 rather than an invalid
// verdict: a broken extractor says nothing about the document.
type ExtractionError struct {
	Stage string // "ocr" or "ner"
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s extraction: %v", e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func NewExtractionError(stage string, err error) *ExtractionError {
	return &ExtractionError{Stage: stage, Err: err}
}
