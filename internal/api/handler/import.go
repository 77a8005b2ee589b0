package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"dropflow/internal/domain"
	"dropflow/internal/service"
)

// ownerID extracts the acting account from the X-Owner-ID header. Auth proper
// lives in front of this service; the header is trusted here.
func ownerID(c *gin.Context) (string, bool) {
	owner := strings.TrimSpace(c.GetHeader("X-Owner-ID"))
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "X-Owner-ID header is required",
		})
		return "", false
	}
	return owner, true
}

// ImportHandler handles bulk import endpoints.
type ImportHandler struct {
	importService *service.ImportService
}

// NewImportHandler creates a new import handler.
// Parameters:
//   - importService: import orchestration service.
// Returns:
//   - *ImportHandler: initialized handler.
func NewImportHandler(importService *service.ImportService) *ImportHandler {
	return &ImportHandler{
		importService: importService,
	}
}

// StartImportRequest is the body of POST /api/v1/imports.
type StartImportRequest struct {
	Source   string           `json:"source"`
	Items    []domain.JSONMap `json:"items"`
	Metadata domain.JSONMap   `json:"metadata"`
}

// StartImport handles POST /api/v1/imports.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ImportHandler) StartImport(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	var req StartImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	result, err := h.importService.Start(c.Request.Context(), owner, req.Source, req.Items, req.Metadata)
	if err != nil {
		if errors.Is(err, service.ErrEmptyBatch) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Import batch must contain at least one item",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to start import: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, result)
}

// GetStatus handles GET /api/v1/imports/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ImportHandler) GetStatus(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	result, err := h.importService.GetStatus(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Import job not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get import status: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetItems handles GET /api/v1/imports/:id/items.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ImportHandler) GetItems(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	status := c.DefaultQuery("status", "all")

	result, err := h.importService.GetItems(c.Request.Context(), owner, c.Param("id"), page, perPage, status)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Import job not found",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to list import items: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// RetryItemsRequest is the body of POST /api/v1/imports/:id/retry.
type RetryItemsRequest struct {
	ItemIDs        []string `json:"item_ids"`
	RetryAllFailed bool     `json:"retry_all_failed"`
}

// RetryItems handles POST /api/v1/imports/:id/retry.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ImportHandler) RetryItems(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	var req RetryItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	if len(req.ItemIDs) == 0 && !req.RetryAllFailed {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Either item_ids or retry_all_failed must be provided",
		})
		return
	}

	result, err := h.importService.RetryItems(c.Request.Context(), owner, c.Param("id"), req.ItemIDs, req.RetryAllFailed)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Import job not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retry items: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}
