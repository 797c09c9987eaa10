package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

type MediaType string

const (
	MediaPDF  MediaType = "application/pdf"
	MediaPNG  MediaType = "image/png"
	MediaJPEG MediaType = "image/jpeg"
)

// RawDocument is the uploaded payload. It is owned by the request and is never
// persisted by the pipeline core itself (object-storage retention is a separate,
// best-effort concern).
type RawDocument struct {
	Content   []byte
	MediaType MediaType
	Filename  string
}

func (d RawDocument) IsPDF() bool {
	return d.MediaType == MediaPDF
}

// SHA256 returns the hex digest of the document content. It feeds the
// idempotency key so resubmissions of the same file collapse together.
func (d RawDocument) SHA256() string {
	sum := sha256.Sum256(d.Content)
	return hex.EncodeToString(sum[:])
}

var pdfMagic = []byte("%PDF")

// DetectMediaType resolves the media type from the filename extension, falling
// back to content sniffing when the extension is absent or unknown.
func DetectMediaType(filename string, content []byte) MediaType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return MediaPDF
	case ".png":
		return MediaPNG
	case ".jpg", ".jpeg":
		return MediaJPEG
	}
	if bytes.HasPrefix(content, pdfMagic) {
		return MediaPDF
	}
	if bytes.HasPrefix(content, []byte{0x89, 'P', 'N', 'G'}) {
		return MediaPNG
	}
	return MediaJPEG
}
