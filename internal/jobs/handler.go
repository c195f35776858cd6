package jobs

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"assessment-backend/internal/assessments"
	"assessment-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the jobs service.
type Handler struct {
	Svc     *Service
	limiter *pollLimiter
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc, limiter: newPollLimiter(pollLimitWindow, nil)}
}

// RegisterRoutes attaches job routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/jobs", h.createJob)
	rg.GET("/jobs", h.listJobs)
	rg.GET("/jobs/:id", h.getJobStatus)
	rg.POST("/jobs/:id/cancel", h.cancelJob)
}

type createJobRequest struct {
	Query       string      `json:"query"`
	WorkType    string      `json:"workType"`
	ProjectInfo ProjectInfo `json:"projectInfo"`
}

func (h *Handler) createJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	job, err := h.Svc.Create(c.Request.Context(), CreateInput{
		Query:       req.Query,
		WorkType:    assessments.WorkType(req.WorkType),
		ProjectInfo: req.ProjectInfo,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to create job", nil)
		}
		return
	}

	respond.JSON(c, http.StatusAccepted, gin.H{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

func (h *Handler) getJobStatus(c *gin.Context) {
	jobID := c.Param("id")
	if jobID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "job id is required", nil)
		return
	}

	if !h.limiter.Allow(c.ClientIP(), jobID) {
		c.Header("Retry-After", strconv.Itoa(h.limiter.RetryAfterSeconds()))
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "polling too fast", nil)
		return
	}

	job, err := h.Svc.Get(c.Request.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "job not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch job", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, statusPayload(job))
}

func (h *Handler) cancelJob(c *gin.Context) {
	jobID := c.Param("id")
	if jobID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "job id is required", nil)
		return
	}

	job, cancelled, err := h.Svc.Cancel(c.Request.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "job not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to cancel job", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, gin.H{
		"jobId":     job.ID,
		"status":    job.Status,
		"cancelled": cancelled,
	})
}

func (h *Handler) listJobs(c *gin.Context) {
	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit < 0 {
		limit = 0
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}

	list, err := h.Svc.List(c.Request.Context(), limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list jobs", nil)
		return
	}

	resp := make([]gin.H, 0, len(list))
	for _, job := range list {
		resp = append(resp, gin.H{
			"jobId":     job.ID,
			"status":    job.Status,
			"progress":  job.Progress,
			"workType":  job.WorkType,
			"createdAt": job.CreatedAt,
		})
	}
	respond.JSON(c, http.StatusOK, resp)
}

func statusPayload(job Job) gin.H {
	resp := gin.H{
		"jobId":       job.ID,
		"status":      job.Status,
		"progress":    job.Progress,
		"currentStep": job.CurrentStep,
	}
	switch job.Status {
	case StatusComplete:
		if job.Result != nil {
			resp["result"] = job.Result
		}
	case StatusFailed:
		if job.ErrorMessage != nil {
			resp["error"] = *job.ErrorMessage
		}
		if job.ErrorCode != nil {
			resp["errorCode"] = *job.ErrorCode
		}
	case StatusPending, StatusProcessing, StatusCancelled:
	}
	return resp
}
