package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/obralink/oraculo/pkg/persistence"

	"github.com/gin-gonic/gin"
)

type healthController struct {
	store persistence.PluginPersistence
}

func NewHealthController(store persistence.PluginPersistence) *healthController {
	return &healthController{store: store}
}

func (h *healthController) Handle(c *gin.Context) {
	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Health(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
