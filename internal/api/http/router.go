package http

import (
	"github.com/fleetops/botpanel/internal/api/http/handler"
	"github.com/fleetops/botpanel/internal/api/http/middleware"
	"github.com/fleetops/botpanel/internal/auth"
	"github.com/fleetops/botpanel/internal/bundle"
	"github.com/gin-gonic/gin"
)

type Services struct {
	Auth        *auth.Service
	Bundles     *bundle.Service
	JWTSecret   string
	AdminAPIKey string
}

func SetupRoute(engine *gin.Engine, srvs *Services) {
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler()
	engine.GET("/health", healthHandler.Check)

	authHandler := handler.NewAuthHandler(srvs.Auth)
	engine.POST("/api/auth/register", authHandler.Register)
	engine.POST("/api/auth/login", authHandler.Login)

	bundleHandler := handler.NewBundleHandler(srvs.Bundles)
	api := engine.Group("/api", middleware.Auth(srvs.JWTSecret, srvs.AdminAPIKey))
	{
		api.POST("/bundles", bundleHandler.Create)
		api.GET("/bundles", bundleHandler.List)
		api.GET("/bundles/:id", bundleHandler.Get)
		api.POST("/bundles/:id/activate", bundleHandler.Activate)
		api.POST("/bundles/:id/deactivate", bundleHandler.Deactivate)
		api.DELETE("/bundles/:id", bundleHandler.Delete)
	}
}
