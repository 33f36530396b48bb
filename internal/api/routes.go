package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"zipsales/server/internal/metrics"
)

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(handler *Handler, allowedOrigins []string, m *metrics.Metrics, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(m.Middleware())
	router.Use(cors.New(corsConfig(allowedOrigins)))

	SetupRoutes(router, handler)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	router.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, "Route not found")
	})
	return router
}

func SetupRoutes(router *gin.Engine, handler *Handler) {
	router.GET("/health", handler.Health)

	api := router.Group("/api")
	{
		api.GET("/sales/:zipcode", handler.GetSales)
		api.GET("/sales/:zipcode/geojson", handler.GetSalesGeoJSON)
		api.DELETE("/sales/:zipcode", handler.DeleteSales)
		api.DELETE("/sales", handler.DeleteAllSales)

		// Path used by existing frontends
		api.GET("/previous-sales/:zipcode", handler.GetSales)

		api.GET("/metadata", handler.ListMetadata)
		api.GET("/metadata/:zipcode", handler.GetMetadata)
		api.DELETE("/metadata/:zipcode", handler.DeleteMetadata)
		api.DELETE("/metadata", handler.ClearMetadata)
	}
}

func corsConfig(allowedOrigins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}

	for _, origin := range allowedOrigins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(allowedOrigins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = allowedOrigins
	return cfg
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if logger == nil || c.Request.URL.Path == "/health" || c.Request.URL.Path == "/metrics" {
			return
		}
		logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Info("Handled request")
	}
}
