package api

import (
	"net/http" // HTTP status codes

	"pixelforge/internal/api/response" // JSON envelope
	"pixelforge/internal/middleware"   // Authenticated caller
	"pixelforge/internal/users"        // User service

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/shopspring/decimal" // Money amounts
)

// UpdateProfileRequest is a partial profile update; omitted fields are kept
type UpdateProfileRequest struct {
	Name                  *string          `json:"name" binding:"omitempty,max=255"` // Display name
	AutoRechargeEnabled   *bool            `json:"autoRechargeEnabled"`              // Toggle auto-recharge
	AutoRechargeThreshold *decimal.Decimal `json:"autoRechargeThreshold"`            // Recharge below this balance
	AutoRechargeAmount    *decimal.Decimal `json:"autoRechargeAmount"`               // Amount to recharge
}

// GetProfileHandler returns the caller's profile, provisioned on first call
func GetProfileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.OK(c, http.StatusOK, middleware.CurrentUser(c), "User profile retrieved")
	}
}

// UpdateProfileHandler updates the caller's name and auto-recharge settings
func UpdateProfileHandler(svc *users.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateProfileRequest // Bind JSON request to struct
		if !bindJSON(c, &req) {
			return
		}
		user, err := svc.UpdateSettings(c.Request.Context(), middleware.UserID(c), users.Settings{
			Name:                  req.Name,
			AutoRechargeEnabled:   req.AutoRechargeEnabled,
			AutoRechargeThreshold: req.AutoRechargeThreshold,
			AutoRechargeAmount:    req.AutoRechargeAmount,
		})
		if err != nil {
			response.Abort(c, err)
			return
		}
		response.OK(c, http.StatusOK, user, "User profile updated")
	}
}
