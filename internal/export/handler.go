package export

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"assessment-backend/internal/assessments"
	"assessment-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the export service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches export routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/exports/pdf", h.generatePDF)
	rg.GET("/exports/*key", h.download)
}

type generatePDFRequest struct {
	Document assessments.Document `json:"document"`
}

// generatePDF renders the posted document. When no renderer is available the
// response asks the client to use its local fallback rather than erroring.
func (h *Handler) generatePDF(c *gin.Context) {
	var req generatePDFRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if len(req.Document.Hazards) == 0 && len(req.Document.EmergencyProcedures) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "document is empty", nil)
		return
	}

	rendered, err := h.Svc.Render(c.Request.Context(), req.Document.Normalize())
	if err != nil {
		if errors.Is(err, ErrRendererUnavailable) {
			respond.JSON(c, http.StatusOK, gin.H{
				"useFallback": true,
				"message":     "remote rendering unavailable; use local fallback",
			})
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to render pdf", nil)
		return
	}

	respond.JSON(c, http.StatusOK, gin.H{
		"success":     true,
		"downloadUrl": "/api/v1/exports/" + rendered.Key,
		"fileName":    rendered.FileName,
	})
}

func (h *Handler) download(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	rc, err := h.Svc.Open(c.Request.Context(), key)
	if err != nil {
		respond.Error(c, http.StatusNotFound, "not_found", "export not found", nil)
		return
	}
	defer rc.Close()

	c.Header("Content-Type", "application/pdf")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, rc)
}
