package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pricepulse/pricepulse/internal/service"
)

// JobHandler serves the polling job management endpoints.
type JobHandler struct {
	marketService *service.MarketService
}

func NewJobHandler(marketService *service.MarketService) *JobHandler {
	return &JobHandler{
		marketService: marketService,
	}
}

type pollRequest struct {
	Symbols         []string `json:"symbols" binding:"required,min=1"`
	IntervalSeconds int      `json:"interval" binding:"omitempty,min=1"`
	Provider        string   `json:"provider"`
}

// Submit handles POST /prices/poll.
func (h *JobHandler) Submit(c *gin.Context) {
	var req pollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobID, err := h.marketService.SubmitJob(
		c.Request.Context(),
		req.Symbols,
		time.Duration(req.IntervalSeconds)*time.Second,
		req.Provider,
	)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id": jobID,
		"status": "accepted",
	})
}

// Get handles GET /jobs/:id.
func (h *JobHandler) Get(c *gin.Context) {
	job, err := h.marketService.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// List handles GET /jobs.
func (h *JobHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.marketService.ListJobs(c.Request.Context()))
}

// Pause handles POST /jobs/:id/pause.
func (h *JobHandler) Pause(c *gin.Context) {
	if err := h.marketService.PauseJob(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": c.Param("id"), "status": "paused"})
}

// Resume handles POST /jobs/:id/resume.
func (h *JobHandler) Resume(c *gin.Context) {
	if err := h.marketService.ResumeJob(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": c.Param("id"), "status": "resumed"})
}

// Cancel handles DELETE /jobs/:id.
func (h *JobHandler) Cancel(c *gin.Context) {
	if err := h.marketService.CancelJob(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": c.Param("id"), "status": "cancelled"})
}
