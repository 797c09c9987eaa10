package app

import (
	"github.com/obralink/oraculo/internal/controllers"
	"github.com/obralink/oraculo/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupMappings(app *Application) {
	app.Engine.GET("/health", controllers.NewHealthController(app.Store).Handle)
	app.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := app.Engine.Group("/v1/oracle", middleware.ClientAuth(app.ClientValidator))
	{
		v1.POST("/validate",
			middleware.RateLimitValidate(app.RateLimiter, app.Config),
			controllers.NewValidateController(app.Pipeline).Handle)

		v1.GET("/submissions/:key", controllers.NewSubmissionController(app.Store.Ledger()).Handle)

		var escrow controllers.EscrowReader
		if app.Escrow != nil {
			escrow = app.Escrow
		}
		v1.GET("/escrow/:buildingId", controllers.NewEscrowController(escrow).Handle)
	}
}
