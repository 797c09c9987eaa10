package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/obralink/oraculo/pkg/config"
	"github.com/obralink/oraculo/pkg/domain"
)

func visionServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req annotateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Requests) != 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		resp := map[string]any{
			"responses": []map[string]any{
				{"fullTextAnnotation": map[string]string{"text": text}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestExtractText(t *testing.T) {
	srv := visionServer(t, "Relatório de progresso: 75,5%")
	defer srv.Close()

	svc := NewTextExtractor(config.OCRConfig{URL: srv.URL, APIKey: "k"}, slog.Default())
	doc := domain.RawDocument{Content: []byte("%PDF-1.7 fake"), MediaType: domain.MediaPDF}
	text, err := svc.ExtractText(context.Background(), doc)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if text != "Relatório de progresso: 75,5%" {
		t.Fatalf("text = %q", text)
	}
}

func TestExtractTextEmptyResultIsError(t *testing.T) {
	srv := visionServer(t, "")
	defer srv.Close()

	svc := NewTextExtractor(config.OCRConfig{URL: srv.URL}, slog.Default())
	doc := domain.RawDocument{Content: []byte("%PDF-1.7 fake"), MediaType: domain.MediaPDF}
	_, err := svc.ExtractText(context.Background(), doc)
	if err == nil {
		t.Fatal("empty text for a non-empty document must be an error")
	}
	var xerr *domain.ExtractionError
	if !errors.As(err, &xerr) || xerr.Stage != "ocr" {
		t.Fatalf("expected ocr ExtractionError, got %v", err)
	}
}

func TestExtractTextProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"responses": []map[string]any{
				{"error": map[string]any{"code": 3, "message": "bad image data"}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	svc := NewTextExtractor(config.OCRConfig{URL: srv.URL}, slog.Default())
	_, err := svc.ExtractText(context.Background(), domain.RawDocument{Content: []byte("x"), MediaType: domain.MediaJPEG})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestExtractTextHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	svc := NewTextExtractor(config.OCRConfig{URL: srv.URL}, slog.Default())
	_, err := svc.ExtractText(context.Background(), domain.RawDocument{Content: []byte("x"), MediaType: domain.MediaPNG})
	var xerr *domain.ExtractionError
	if !errors.As(err, &xerr) || xerr.Stage != "ocr" {
		t.Fatalf("expected ocr ExtractionError, got %v", err)
	}
}
