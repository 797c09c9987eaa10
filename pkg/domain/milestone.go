package domain

import (
	"encoding"
	"fmt"
)

// MilestoneReference identifies the on-chain target of a confirmation. It comes
// from the request context, never from document content.
type MilestoneReference struct {
	BuildingID      uint64 `json:"building_id"`
	MilestoneNumber uint8  `json:"milestone_number"`
}

func (m MilestoneReference) String() string {
	return fmt.Sprintf("building %d milestone %d", m.BuildingID, m.MilestoneNumber)
}

// IdempotencyKey collapses repeated submission attempts for the same milestone
// and document to a single effective on-chain confirmation.
type IdempotencyKey string

var (
	_ encoding.BinaryMarshaler = IdempotencyKey("")
	_ encoding.TextMarshaler   = IdempotencyKey("")
)

func (k IdempotencyKey) String() string                 { return string(k) }
func (k IdempotencyKey) MarshalBinary() ([]byte, error) { return []byte(k), nil }
func (k IdempotencyKey) MarshalText() ([]byte, error)   { return []byte(k), nil }

// NewIdempotencyKey derives a deterministic key from the milestone reference and
// the document content digest. The digest may be empty when the caller wants
// strictly per-milestone idempotency.
func NewIdempotencyKey(ref MilestoneReference, docSHA256 string) IdempotencyKey {
	if docSHA256 == "" {
		return IdempotencyKey(fmt.Sprintf("b%d:m%d", ref.BuildingID, ref.MilestoneNumber))
	}
	if len(docSHA256) > 16 {
		docSHA256 = docSHA256[:16]
	}
	return IdempotencyKey(fmt.Sprintf("b%d:m%d:%s", ref.BuildingID, ref.MilestoneNumber, docSHA256))
}
