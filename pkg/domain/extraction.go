package domain

// EntityRecord holds the fields extracted from a construction-progress report.
// A nil pointer means the extractor never produced the field; that is distinct
// from a field extracted as an empty string, and the validator relies on the
// difference. Values are never coerced from absent to zero.
type EntityRecord struct {
	ResponsibleEngineer *string
	Date                *string
	Percentage          *float64
}

// ExtractionOut is the wire shape of an EntityRecord in API responses.
// Absent fields serialize as JSON null.
type ExtractionOut struct {
	ResponsibleEngineer *string  `json:"responsible_engineer"`
	Date                *string  `json:"date"`
	Percentage          *float64 `json:"construction_progress_percentage"`
}

func (r EntityRecord) Out() ExtractionOut {
	return ExtractionOut{
		ResponsibleEngineer: r.ResponsibleEngineer,
		Date:                r.Date,
		Percentage:          r.Percentage,
	}
}

func StringPtr(s string) *string  { return &s }
func FloatPtr(f float64) *float64 { return &f }
