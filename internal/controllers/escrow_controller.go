package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/obralink/oraculo/pkg/domain"

	"github.com/gin-gonic/gin"
)

// EscrowReader is the read-only chain view the controller needs.
type EscrowReader interface {
	EscrowInfo(ctx context.Context, buildingID uint64) (*domain.EscrowInfo, error)
}

type escrowController struct {
	reader EscrowReader // nil when the oracle path is disabled
}

func NewEscrowController(reader EscrowReader) *escrowController {
	return &escrowController{reader: reader}
}

func (h *escrowController) Handle(c *gin.Context) {
	if h.reader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "oracle disabled"})
		return
	}
	buildingID, err := strconv.ParseUint(c.Param("buildingId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid building id"})
		return
	}

	info, err := h.reader.EscrowInfo(c.Request.Context(), buildingID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "chain query failed"})
		return
	}
	c.JSON(http.StatusOK, info)
}
