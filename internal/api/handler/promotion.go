package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dropflow/internal/service"
)

// PromotionHandler handles staging-to-catalog promotion endpoints.
type PromotionHandler struct {
	promotionService *service.PromotionService
}

// NewPromotionHandler creates a new promotion handler.
// Parameters:
//   - promotionService: promotion service instance.
// Returns:
//   - *PromotionHandler: initialized handler.
func NewPromotionHandler(promotionService *service.PromotionService) *PromotionHandler {
	return &PromotionHandler{
		promotionService: promotionService,
	}
}

// Promote handles POST /api/v1/products/promote/:staging_id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *PromotionHandler) Promote(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	result, err := h.promotionService.Promote(c.Request.Context(), owner, c.Param("staging_id"))
	if err != nil {
		if errors.Is(err, service.ErrStagingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Staging product not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to promote product: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// PromoteBatchRequest is the body of POST /api/v1/products/promote-batch.
type PromoteBatchRequest struct {
	StagingIDs []string `json:"staging_ids"`
}

// PromoteBatch handles POST /api/v1/products/promote-batch.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *PromotionHandler) PromoteBatch(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	var req PromoteBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	if len(req.StagingIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "staging_ids must contain at least one ID",
		})
		return
	}

	result := h.promotionService.PromoteBatch(c.Request.Context(), owner, req.StagingIDs)
	c.JSON(http.StatusOK, result)
}
