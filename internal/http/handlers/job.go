package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dewiapp/dewi-backend/internal/http/response"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/repos"
)

// JobHandler exposes background job status and abort controls.
type JobHandler struct {
	log  *logger.Logger
	jobs repos.JobRepo
}

func NewJobHandler(baseLog *logger.Logger, jobs repos.JobRepo) *JobHandler {
	return &JobHandler{
		log:  baseLog.With("handler", "JobHandler"),
		jobs: jobs,
	}
}

// GET /api/jobs/:id
func (h *JobHandler) Get(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.jobs.GetByID(c.Request.Context(), nil, jobID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	if job == nil {
		response.RespondError(c, http.StatusNotFound, "job_not_found", nil)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// POST /api/jobs/:id/abort
func (h *JobHandler) Abort(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	transitioned, err := h.jobs.RequestAbort(c.Request.Context(), nil, jobID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	if !transitioned {
		job, err := h.jobs.GetByID(c.Request.Context(), nil, jobID)
		if err != nil {
			response.RespondDomainError(c, err)
			return
		}
		if job == nil {
			response.RespondError(c, http.StatusNotFound, "job_not_found", nil)
			return
		}
		response.RespondError(c, http.StatusConflict, "job_not_abortable", nil)
		return
	}
	h.log.Info("Abort requested", "job_id", jobID)
	response.RespondOK(c, gin.H{"ok": true})
}
