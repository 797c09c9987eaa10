package domain

// Rule-failure descriptions surfaced in verdict reasons. The wording is part of
// the API contract; clients match on these strings.
const (
	ReasonEngineerMissing   = "responsible_engineer missing or empty"
	ReasonDateMissing       = "date missing or empty"
	ReasonPercentageMissing = "construction_progress_percentage missing"
	ReasonPercentageNaN     = "construction_progress_percentage not a number"
	ReasonPercentageRange   = "construction_progress_percentage out of range [30,100]"
)

// Verdict is the outcome of business-rule validation. Validity is derived from
// the reasons rather than stored beside them, so the two can never disagree.
type Verdict struct {
	Reasons []string
}

// Valid reports whether every rule passed.
func (v Verdict) Valid() bool { return len(v.Reasons) == 0 }

func ValidVerdict() Verdict { return Verdict{} }

func InvalidVerdict(reasons ...string) Verdict {
	return Verdict{Reasons: reasons}
}
