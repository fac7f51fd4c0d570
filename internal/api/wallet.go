package api

import (
	"fmt"      // Description formatting
	"net/http" // HTTP status codes
	"strconv"  // String conversion

	"pixelforge/internal/api/response" // JSON envelope
	"pixelforge/internal/domain"       // Ledger entries
	"pixelforge/internal/ledger"       // Wallet ledger
	"pixelforge/internal/middleware"   // Authenticated caller
	"pixelforge/internal/pricing"      // Credit conversion
	"pixelforge/internal/utils"        // Redis cache

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/shopspring/decimal" // Money amounts
	"github.com/sirupsen/logrus"    // Logging library
)

// TopupRequest represents a top-up request
type TopupRequest struct {
	Amount        decimal.Decimal `json:"amount"`                                  // Positive amount in wallet currency
	PaymentMethod string          `json:"paymentMethod" binding:"omitempty,max=32"` // Free-form label for the description
}

// TopupResponse is returned after a successful top-up
type TopupResponse struct {
	NewBalance        decimal.Decimal `json:"newBalance"`        // Balance after the top-up
	CreditsAdded      decimal.Decimal `json:"creditsAdded"`      // floor(amount / 25)
	TransactionAmount decimal.Decimal `json:"transactionAmount"` // Amount credited
	TransactionID     uint            `json:"transactionId"`     // Ledger entry id
}

// BalanceResponse is the cached view of a wallet
type BalanceResponse struct {
	Balance decimal.Decimal `json:"balance"` // Balance in wallet currency
	Credits decimal.Decimal `json:"credits"` // Whole credits the balance buys
	Cached  bool            `json:"cached"`  // Served from Redis
}

// TransactionHistoryResponse is the cached view of recent ledger entries
type TransactionHistoryResponse struct {
	Transactions []domain.WalletTransaction `json:"transactions"` // Newest first
	Limit        int                        `json:"limit"`        // Requested page size
	Cached       bool                       `json:"cached"`       // Served from Redis
}

// TopupHandler credits the caller's wallet
func TopupHandler(l *ledger.Ledger, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TopupRequest // Bind JSON request to struct
		if !bindJSON(c, &req) {
			return
		}
		method := req.PaymentMethod
		if method == "" {
			method = "default" // Label used when the client sends none
		}
		credits := pricing.CreditsFor(req.Amount)
		desc := fmt.Sprintf("Wallet top-up - %s credits via %s", credits.String(), method)

		rec, err := l.AddCredits(c.Request.Context(), middleware.UserID(c), req.Amount, desc)
		if err != nil {
			response.Abort(c, err)
			return
		}
		// Log successful top-up
		log.WithFields(logrus.Fields{
			"user_id":        rec.UserID,                      // User ID
			"amount":         rec.Amount.StringFixed(2),       // Top-up amount
			"credits_added":  rec.CreditsAdded.String(),       // Credits bought
			"payment_method": method,                          // Client label
			"balance_after":  rec.BalanceAfter.StringFixed(2), // New balance
		}).Info("Top-up transaction")
		response.OK(c, http.StatusOK, TopupResponse{
			NewBalance:        rec.BalanceAfter,
			CreditsAdded:      rec.CreditsAdded,
			TransactionAmount: rec.Amount,
			TransactionID:     rec.ID,
		}, "Wallet topped up successfully")
	}
}

// GetBalanceHandler returns the caller's balance, cached in Redis when available
func GetBalanceHandler(l *ledger.Ledger, cache *utils.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()                          // Context for Redis and DB
		userID := middleware.UserID(c)                      // Authenticated user
		cacheKey := utils.WalletKey(userID)                 // Cache key for wallet
		var cached BalanceResponse                          // Struct to hold cached data
		found, err := cache.GetJSON(ctx, cacheKey, &cached) // Try to get from cache
		// If found in cache, return it
		if err == nil && found {
			cached.Cached = true
			response.OK(c, http.StatusOK, cached, "Balance retrieved successfully")
			return
		}
		// If not in cache, read the committed balance
		balance, err := l.GetBalance(ctx, userID)
		if err != nil {
			response.Abort(c, err)
			return
		}
		resp := BalanceResponse{Balance: balance, Credits: pricing.CreditsFor(balance)}
		_ = cache.SetJSON(ctx, cacheKey, resp) // Cache until the next ledger commit or TTL
		response.OK(c, http.StatusOK, resp, "Balance retrieved successfully")
	}
}

// GetTransactionHistoryHandler returns the caller's latest ledger entries
func GetTransactionHistoryHandler(l *ledger.Ledger, cache *utils.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()        // Context for Redis and DB
		userID := middleware.UserID(c)    // Authenticated user
		limit := queryInt(c, "limit", 20) // Default page size
		if limit > 100 {
			limit = 100 // Upper bound
		}
		// Redis cache key
		cacheKey := utils.TxHistoryPrefix(userID) + "limit=" + strconv.Itoa(limit)
		var cached TransactionHistoryResponse
		// Try to get from cache
		found, err := cache.GetJSON(ctx, cacheKey, &cached)
		if err == nil && found {
			cached.Cached = true
			response.OK(c, http.StatusOK, cached, "Transactions retrieved successfully")
			return
		}
		txs, err := l.GetTransactions(ctx, userID, limit)
		if err != nil {
			response.Abort(c, err)
			return
		}
		resp := TransactionHistoryResponse{Transactions: txs, Limit: limit}
		_ = cache.SetJSON(ctx, cacheKey, resp) // Cache the page
		response.OK(c, http.StatusOK, resp, "Transactions retrieved successfully")
	}
}
