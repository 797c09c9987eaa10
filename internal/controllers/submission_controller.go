package controllers

import (
	"errors"
	"net/http"

	"github.com/obralink/oraculo/pkg/domain"
	"github.com/obralink/oraculo/pkg/persistence"

	"github.com/gin-gonic/gin"
)

type submissionController struct {
	ledger persistence.LedgerStorage
}

func NewSubmissionController(ledger persistence.LedgerStorage) *submissionController {
	return &submissionController{ledger: ledger}
}

// Handle returns the ledger record for an idempotency key: state, attempts,
// and for terminal submissions the chain outcome.
func (h *submissionController) Handle(c *gin.Context) {
	key := domain.IdempotencyKey(c.Param("key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing key"})
		return
	}

	rec, err := h.ledger.Get(c.Request.Context(), key)
	if errors.Is(err, persistence.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "submission not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, rec)
}
