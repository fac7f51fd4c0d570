// Package api exposes the service over HTTP under /api.
package api

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"pixelforge/internal/api/response"
	"pixelforge/internal/apperr"
	"pixelforge/internal/config"
	"pixelforge/internal/domain"
	"pixelforge/internal/generation"
	"pixelforge/internal/ledger"
	"pixelforge/internal/metrics"
	"pixelforge/internal/middleware"
	"pixelforge/internal/ratelimit"
	"pixelforge/internal/users"
	"pixelforge/internal/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// slowRequest is the latency above which a request is logged as slow.
const slowRequest = time.Second

// Deps are the services the HTTP layer is built on. Cache, Limiter and
// Metrics may be nil.
type Deps struct {
	Config  *config.Config
	Log     logrus.FieldLogger
	Users   *users.Service
	Ledger  *ledger.Ledger
	Flow    *generation.Flow
	Cache   *utils.Cache
	Limiter *ratelimit.Limiter
	Metrics *metrics.Collector
}

// NewRouter builds the gin engine with every route and middleware.
func NewRouter(d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	useJSONFieldNames()

	r := gin.New()
	r.Use(middleware.ResponseTime(), middleware.RequestID(), response.UseLogger(d.Log))
	if d.Metrics != nil {
		r.Use(middleware.Metrics(d.Metrics))
	}
	r.Use(
		middleware.RequestLogger(d.Log, slowRequest),
		gin.CustomRecovery(func(c *gin.Context, recovered any) {
			d.Log.WithField("panic", recovered).Error("handler panicked")
			response.Abort(c, errors.New("panic"))
		}),
	)
	if len(d.Config.CORSOrigins) > 0 {
		r.Use(cors.New(corsConfig(d.Config.CORSOrigins)))
	}
	r.Use(middleware.SecurityHeaders(), middleware.BodyLimit(d.Config.MaxBodyBytes))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, response.Envelope{
			Error:     "ENDPOINT_NOT_FOUND",
			Message:   "Endpoint " + c.Request.Method + " " + c.Request.URL.Path + " not found",
			Timestamp: time.Now().UTC(),
			RequestID: c.GetString(middleware.ContextRequestID),
		})
	})

	api := r.Group("/api")
	if d.Limiter != nil {
		api.Use(middleware.RateLimit(d.Limiter, d.Log))
	}

	// Public routes
	api.GET("/health", HealthHandler(d.Config))
	api.GET("/info", InfoHandler(d.Config))

	// User routes (bearer token from the auth provider)
	authed := api.Group("")
	authed.Use(middleware.JWTAuthMiddleware(d.Config.JWTSecret), middleware.EnsureUser(d.Users))
	authed.GET("/users/me", GetProfileHandler())
	authed.PUT("/users/me", UpdateProfileHandler(d.Users))
	authed.POST("/images/generate", GenerateImageHandler(d.Flow))
	authed.GET("/images", ListImagesHandler(d.Flow))
	authed.GET("/wallet/balance", GetBalanceHandler(d.Ledger, d.Cache))
	authed.GET("/wallet/transactions", GetTransactionHistoryHandler(d.Ledger, d.Cache))
	authed.POST("/wallet/topup", TopupHandler(d.Ledger, d.Log))

	// Admin routes (X-API-Key)
	admin := api.Group("/admin")
	admin.Use(middleware.AdminOnlyMiddleware(d.Config.AdminAPIKeyHash, d.Log))
	admin.GET("/users", ListUsersHandler(d.Users))
	admin.GET("/transactions", ListTransactionsHandler(d.Ledger, d.Cache))
	admin.POST("/users/:id/bonus", BonusHandler(d.Ledger, d.Log))
	admin.GET("/users/:id/audit", AuditHandler(d.Ledger))
	admin.POST("/images/:id/fail", FailImageHandler(d.Flow))
	if d.Metrics != nil {
		admin.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	return r
}

// corsConfig allows browser calls from origins, with the headers clients send
// and the ones they may read back.
func corsConfig(origins []string) cors.Config {
	return cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Authorization",
			IdempotencyKeyHeader, middleware.AdminAPIKeyHeader, response.RequestIDHeader,
		},
		ExposeHeaders: []string{
			response.RequestIDHeader, middleware.ResponseTimeHeader, "Retry-After",
			"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset",
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}

// CacheInvalidation drops a user's cached wallet views after every ledger
// commit that touched them.
func CacheInvalidation(cache *utils.Cache, log logrus.FieldLogger) ledger.CommitHook {
	return func(ctx context.Context, rec domain.WalletTransaction) {
		if err := cache.InvalidateUser(ctx, rec.UserID); err != nil {
			log.WithError(err).WithField("user_id", rec.UserID).Warn("cache invalidation failed")
		}
	}
}

var registerNames sync.Once

// useJSONFieldNames makes validation errors name fields the way clients send
// them.
func useJSONFieldNames() {
	registerNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
}

// bindJSON decodes the body into dst, aborting with InvalidRequest on failure.
func bindJSON(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}
	var (
		verrs  validator.ValidationErrors
		tooBig *http.MaxBytesError
	)
	switch {
	case errors.As(err, &verrs):
		response.Abort(c, err)
	case errors.As(err, &tooBig):
		response.Abort(c, apperr.Invalid("body", "exceeds the request size limit"))
	default:
		response.Abort(c, apperr.Invalid("body", "must be a valid JSON object"))
	}
	return false
}

// queryInt reads a positive integer query parameter.
func queryInt(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
