package api

import (
	"net/http" // HTTP status codes
	"time"     // Timestamps

	"pixelforge/internal/api/response" // JSON envelope
	"pixelforge/internal/config"       // App version and environment
	"pixelforge/internal/generation"   // Generation types
	"pixelforge/internal/pricing"      // Resolutions

	"github.com/gin-gonic/gin" // Gin web framework
)

// endpoints lists the public surface reported by /api/info
var endpoints = []string{
	"GET /api/health",
	"GET /api/info",
	"GET /api/users/me",
	"PUT /api/users/me",
	"POST /api/images/generate",
	"GET /api/images",
	"GET /api/wallet/balance",
	"GET /api/wallet/transactions",
	"POST /api/wallet/topup",
}

func environment(cfg *config.Config) string {
	if cfg.IsProd {
		return "production"
	}
	return "development"
}

// HealthHandler reports liveness
func HealthHandler(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		response.OK(c, http.StatusOK, gin.H{
			"status":      "healthy",                             // Process is serving
			"timestamp":   time.Now().UTC().Format(time.RFC3339), // Server time
			"version":     cfg.AppVersion,                        // Build version
			"environment": environment(cfg),                      // production or development
		}, "Service is healthy")
	}
}

// InfoHandler describes the API
func InfoHandler(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		response.OK(c, http.StatusOK, gin.H{
			"name":            "PixelForge API",
			"version":         cfg.AppVersion,
			"environment":     environment(cfg),
			"endpoints":       endpoints,
			"resolutions":     pricing.Resolutions(),
			"generationTypes": generation.GenerationTypes(),
			"rupeesPerCredit": pricing.RupeesPerCredit,
		}, "API information")
	}
}
