package handler

import (
	"net/http"

	"modelmine/internal/model"
	"modelmine/internal/service"

	"github.com/gin-gonic/gin"
)

// JobHandler handles job submission and queries
type JobHandler struct {
	jobService *service.JobService
}

// NewJobHandler creates job handler
func NewJobHandler(jobService *service.JobService) *JobHandler {
	return &JobHandler{jobService: jobService}
}

// Submit escrows the stake and schedules a job
// @Summary Submit job
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body model.SubmitRequest true "Job request"
// @Success 201 {object} model.Job
// @Router /jobs [post]
func (h *JobHandler) Submit(c *gin.Context) {
	var req model.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	job, err := h.jobService.Submit(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "submit job", err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

// Get returns a job with its contributions
// @Summary Get job
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} model.JobDetail
// @Router /jobs/{id} [get]
func (h *JobHandler) Get(c *gin.Context) {
	detail, err := h.jobService.Detail(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "get job", err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// ListBySubmitter lists a submitter's jobs, newest first
// @Summary List jobs
// @Tags jobs
// @Produce json
// @Param userId query string true "Submitter ID"
// @Success 200 {array} model.Job
// @Router /jobs [get]
func (h *JobHandler) ListBySubmitter(c *gin.Context) {
	jobs, err := h.jobService.ListBySubmitter(c.Request.Context(), c.Query("userId"))
	if err != nil {
		respondError(c, "list jobs", err)
		return
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	c.JSON(http.StatusOK, jobs)
}
