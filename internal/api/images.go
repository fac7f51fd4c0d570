package api

import (
	"net/http" // HTTP status codes

	"pixelforge/internal/api/response" // JSON envelope
	"pixelforge/internal/generation"   // Generation flow
	"pixelforge/internal/middleware"   // Authenticated caller

	"github.com/gin-gonic/gin" // Gin web framework
)

// IdempotencyKeyHeader identifies a generation request across retries
const IdempotencyKeyHeader = "Idempotency-Key"

// GenerateRequest is the body of POST /images/generate. The flow validates
// every field so a client sees all problems at once.
type GenerateRequest struct {
	Prompt            string   `json:"prompt"`
	Resolution        string   `json:"resolution"`
	GenerationType    string   `json:"generationType"`
	ProductImages     []string `json:"productImages"` // Base64 encoded images
	BackgroundRemoval bool     `json:"backgroundRemoval"`
	StyleTransfer     bool     `json:"styleTransfer"`
	IdempotencyKey    string   `json:"idempotencyKey"` // Used when the header is absent
}

// GenerateImageHandler runs one generation for the caller
func GenerateImageHandler(flow *generation.Flow) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GenerateRequest // Bind JSON request to struct
		if !bindJSON(c, &req) {
			return
		}
		key := c.GetHeader(IdempotencyKeyHeader) // Header wins over the body field
		if key == "" {
			key = req.IdempotencyKey
		}
		res, err := flow.Generate(c.Request.Context(), middleware.UserID(c), generation.Request{
			Prompt:            req.Prompt,
			Resolution:        req.Resolution,
			GenerationType:    req.GenerationType,
			ProductImages:     req.ProductImages,
			BackgroundRemoval: req.BackgroundRemoval,
			StyleTransfer:     req.StyleTransfer,
			IdempotencyKey:    key,
		})
		if err != nil {
			response.Abort(c, err)
			return
		}
		status, msg := http.StatusCreated, "Image generated successfully"
		if res.Replayed {
			status, msg = http.StatusOK, "Image already generated for this idempotency key"
		}
		response.OK(c, status, res, msg)
	}
}

// ListImagesHandler returns the caller's latest images
func ListImagesHandler(flow *generation.Flow) gin.HandlerFunc {
	return func(c *gin.Context) {
		images, err := flow.ListImages(c.Request.Context(), middleware.UserID(c), queryInt(c, "limit", 0))
		if err != nil {
			response.Abort(c, err)
			return
		}
		response.OK(c, http.StatusOK, images, "Images retrieved successfully")
	}
}
