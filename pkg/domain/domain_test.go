package domain

import (
	"strings"
	"testing"
)

func TestNewIdempotencyKeyDeterministic(t *testing.T) {
	ref := MilestoneReference{BuildingID: 42, MilestoneNumber: 3}

	k1 := NewIdempotencyKey(ref, "")
	k2 := NewIdempotencyKey(ref, "")
	if k1 != k2 {
		t.Errorf("same inputs produced different keys: %q vs %q", k1, k2)
	}
	if k1 != "b42:m3" {
		t.Errorf("key = %q, want b42:m3", k1)
	}
}

func TestNewIdempotencyKeyWithDocumentHash(t *testing.T) {
	ref := MilestoneReference{BuildingID: 1, MilestoneNumber: 1}
	hash := strings.Repeat("ab", 32)

	k := NewIdempotencyKey(ref, hash)
	if k != IdempotencyKey("b1:m1:"+hash[:16]) {
		t.Errorf("key = %q, want truncated hash suffix", k)
	}

	other := NewIdempotencyKey(ref, strings.Repeat("cd", 32))
	if k == other {
		t.Error("different documents produced the same key")
	}
}

func TestNewIdempotencyKeyDistinctMilestones(t *testing.T) {
	a := NewIdempotencyKey(MilestoneReference{BuildingID: 1, MilestoneNumber: 1}, "")
	b := NewIdempotencyKey(MilestoneReference{BuildingID: 1, MilestoneNumber: 2}, "")
	c := NewIdempotencyKey(MilestoneReference{BuildingID: 2, MilestoneNumber: 1}, "")
	if a == b || a == c || b == c {
		t.Errorf("milestone keys collide: %q %q %q", a, b, c)
	}
}

func TestVerdictValidIffNoReasons(t *testing.T) {
	if !ValidVerdict().Valid() {
		t.Error("empty verdict should be valid")
	}
	v := InvalidVerdict(ReasonDateMissing)
	if v.Valid() {
		t.Error("verdict with reasons should be invalid")
	}
	if len(v.Reasons) != 1 || v.Reasons[0] != ReasonDateMissing {
		t.Errorf("reasons = %v", v.Reasons)
	}
}

func TestSubmissionStateTerminal(t *testing.T) {
	tests := []struct {
		state    SubmissionState
		terminal bool
	}{
		{SubmissionNotAttempted, false},
		{SubmissionPending, false},
		{SubmissionConfirmed, true},
		{SubmissionFailed, true},
	}
	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.state, got, tt.terminal)
		}
	}
}

func TestDetectMediaType(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  []byte
		want     MediaType
	}{
		{"pdf extension", "report.pdf", nil, MediaPDF},
		{"pdf uppercase", "REPORT.PDF", nil, MediaPDF},
		{"png extension", "photo.png", nil, MediaPNG},
		{"jpeg extension", "photo.jpeg", nil, MediaJPEG},
		{"no extension pdf magic", "report", []byte("%PDF-1.7 rest"), MediaPDF},
		{"no extension png magic", "photo", []byte{0x89, 'P', 'N', 'G', 0x0d}, MediaPNG},
		{"unknown defaults to jpeg", "photo.bin", []byte{0xff, 0xd8}, MediaJPEG},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectMediaType(tt.filename, tt.content); got != tt.want {
				t.Errorf("DetectMediaType() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRawDocumentSHA256(t *testing.T) {
	doc := RawDocument{Content: []byte("hello")}
	if doc.SHA256() != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
		t.Errorf("unexpected digest %s", doc.SHA256())
	}
}
