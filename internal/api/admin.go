package api

import (
	"errors"   // Error construction
	"net/http" // HTTP status codes
	"strings"  // String manipulation
	"time"     // Date filters

	"pixelforge/internal/api/response" // JSON envelope
	"pixelforge/internal/apperr"       // Error kinds
	"pixelforge/internal/domain"       // Transaction types
	"pixelforge/internal/generation"   // Refund on failure
	"pixelforge/internal/ledger"       // Wallet ledger
	"pixelforge/internal/users"        // User service
	"pixelforge/internal/utils"        // Redis cache

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/shopspring/decimal" // Money amounts
	"github.com/sirupsen/logrus"    // Logging library
)

// BonusRequest grants operator credit to a user
type BonusRequest struct {
	Amount      decimal.Decimal `json:"amount"`                                        // Positive amount in wallet currency
	Description string          `json:"description" binding:"required,min=3,max=255"` // Shown in the user's history
}

// FailImageRequest marks a completed image as failed
type FailImageRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=200"` // Appended to the refund description
}

// AdminTransactionsResponse is one cached page of the ledger
type AdminTransactionsResponse struct {
	*ledger.Page
	Cached bool `json:"cached"` // Served from Redis
}

// ListUsersHandler returns users with their balances, paginated
func ListUsersHandler(svc *users.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := queryInt(c, "page", 1)           // Default page number
		pageSize := queryInt(c, "page_size", 20) // Default page size
		result, err := svc.List(c.Request.Context(), page, pageSize)
		if err != nil {
			response.Abort(c, err)
			return
		}
		response.OK(c, http.StatusOK, result, "Users retrieved successfully")
	}
}

// ListTransactionsHandler returns all ledger entries, with optional filtering by user, type, or date
func ListTransactionsHandler(l *ledger.Ledger, cache *utils.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		// Build cache key from all query params
		var keyParts []string // Parts of the cache key
		// Append each query parameter to the key parts
		for _, k := range []string{"user_id", "type", "from", "to", "page", "page_size"} {
			keyParts = append(keyParts, k+"="+c.DefaultQuery(k, "")) // Append key-value pair
		}
		// Join key parts to form the final cache key
		cacheKey := utils.AdminTxPrefix + strings.Join(keyParts, ":")
		var cached AdminTransactionsResponse

		// If cached data found, return it
		found, err := cache.GetJSON(ctx, cacheKey, &cached)
		if err == nil && found && cached.Page != nil {
			cached.Cached = true
			response.OK(c, http.StatusOK, cached, "Transactions retrieved successfully")
			return
		}

		filter := ledger.Filter{
			UserID:   c.Query("user_id"),                      // Filter by user ID
			Type:     domain.TransactionType(c.Query("type")), // Filter by transaction type
			Page:     queryInt(c, "page", 1),                  // Page number
			PageSize: queryInt(c, "page_size", 20),            // Page size
		}
		if filter.From, err = parseTime(c.Query("from"), false); err != nil {
			response.Abort(c, apperr.Invalid("from", err.Error()))
			return
		}
		if filter.To, err = parseTime(c.Query("to"), true); err != nil {
			response.Abort(c, apperr.Invalid("to", err.Error()))
			return
		}
		page, err := l.ListTransactions(ctx, filter)
		if err != nil {
			response.Abort(c, err)
			return
		}
		resp := AdminTransactionsResponse{Page: page}
		// Cache the response for future requests
		_ = cache.SetJSON(ctx, cacheKey, resp)
		response.OK(c, http.StatusOK, resp, "Transactions retrieved successfully")
	}
}

// BonusHandler credits a user without a payment
func BonusHandler(l *ledger.Ledger, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BonusRequest // Bind JSON request to struct
		if !bindJSON(c, &req) {
			return
		}
		userID := c.Param("id") // Target user
		rec, err := l.AddBonus(c.Request.Context(), userID, req.Amount, req.Description)
		if err != nil {
			response.Abort(c, err)
			return
		}
		log.WithFields(logrus.Fields{
			"user_id":        userID,                    // Target user
			"amount":         rec.Amount.StringFixed(2), // Bonus amount
			"transaction_id": rec.ID,                    // Ledger entry
		}).Info("Bonus granted")
		response.OK(c, http.StatusCreated, rec, "Bonus granted")
	}
}

// AuditHandler replays a user's ledger against the stored balance
func AuditHandler(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		audit, err := l.Replay(c.Request.Context(), c.Param("id"))
		if err != nil {
			response.Abort(c, err)
			return
		}
		msg := "Ledger is consistent"
		if !audit.Consistent {
			msg = "Ledger replay does not match the stored balance"
		}
		response.OK(c, http.StatusOK, audit, msg)
	}
}

// FailImageHandler marks a completed image as failed and refunds its charge
func FailImageHandler(flow *generation.Flow) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req FailImageRequest
		if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
			return
		}
		rec, err := flow.MarkFailed(c.Request.Context(), c.Param("id"), req.Reason)
		if err != nil {
			response.Abort(c, err)
			return
		}
		response.OK(c, http.StatusOK, rec, "Image marked failed and refunded")
	}
}

// parseTime accepts RFC 3339 timestamps or plain dates. A plain date used as
// an upper bound covers the whole day.
func parseTime(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, errors.New("must be an RFC 3339 timestamp or a YYYY-MM-DD date")
	}
	if endOfDay {
		d = d.Add(24*time.Hour - time.Nanosecond)
	}
	return d, nil
}
