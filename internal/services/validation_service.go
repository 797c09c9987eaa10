package services

import (
	"math"
	"strings"

	"github.com/obralink/oraculo/pkg/domain"
)

// ValidationService applies the business rules to an extracted record. It is
// deliberately pure: no I/O, no clock, same input same verdict.
type ValidationService interface {
	Validate(rec domain.EntityRecord) domain.Verdict
}

type validationService struct{}

func NewValidationService() ValidationService {
	return &validationService{}
}

const (
	minPercentage = 30.0
	maxPercentage = 100.0
)

// Validate checks every rule and collects every failure; it never stops at
// the first one. Rule order is fixed so reason lists compare stably.
func (s *validationService) Validate(rec domain.EntityRecord) domain.Verdict {
	var reasons []string

	if rec.ResponsibleEngineer == nil || strings.TrimSpace(*rec.ResponsibleEngineer) == "" {
		reasons = append(reasons, domain.ReasonEngineerMissing)
	}
	if rec.Date == nil || strings.TrimSpace(*rec.Date) == "" {
		reasons = append(reasons, domain.ReasonDateMissing)
	}
	switch {
	case rec.Percentage == nil:
		reasons = append(reasons, domain.ReasonPercentageMissing)
	case math.IsNaN(*rec.Percentage):
		reasons = append(reasons, domain.ReasonPercentageNaN)
	case *rec.Percentage < minPercentage || *rec.Percentage > maxPercentage:
		reasons = append(reasons, domain.ReasonPercentageRange)
	}

	return domain.Verdict{Reasons: reasons}
}
