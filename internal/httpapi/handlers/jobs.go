package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/quillforge/engine/internal/common"
	"github.com/quillforge/engine/internal/httpapi/middleware"
	"github.com/quillforge/engine/internal/job"
)

func ownerFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(middleware.OwnerIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

type submitJobReq struct {
	Type   string          `json:"type" binding:"required"`
	Params json.RawMessage `json:"params" binding:"required"`
}

func (h *Handler) SubmitJob(c *gin.Context) {
	owner, ok := ownerFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req submitJobReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	jobID, err := h.Manager.Submit(c.Request.Context(), owner, job.Type(req.Type), req.Params)
	if err != nil {
		switch {
		case errors.Is(err, job.ErrValidation):
			common.Fail(c, http.StatusBadRequest, 10002, err.Error())
		case errors.Is(err, job.ErrCapacity):
			common.Fail(c, http.StatusTooManyRequests, 42901, err.Error())
		default:
			h.Log.Error("submit failed", "error", err)
			common.Fail(c, http.StatusInternalServerError, 50001, "failed to submit job")
		}
		return
	}

	common.OK(c, gin.H{"job_id": jobID, "status": job.StatusQueued})
}

func (h *Handler) GetJobStatus(c *gin.Context) {
	if _, ok := ownerFromContext(c); !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	view, err := h.Manager.GetStatus(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "job not found")
			return
		}
		h.Log.Error("get status failed", "error", err)
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to read job")
		return
	}

	common.OK(c, view)
}

func (h *Handler) CancelJob(c *gin.Context) {
	if _, ok := ownerFromContext(c); !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	err := h.Manager.Cancel(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		switch {
		case errors.Is(err, job.ErrNotFound):
			common.Fail(c, http.StatusNotFound, 40401, "job not found")
		case errors.Is(err, job.ErrAlreadyFinished):
			common.Fail(c, http.StatusConflict, 40901, "job already finished")
		default:
			h.Log.Error("cancel failed", "error", err)
			common.Fail(c, http.StatusInternalServerError, 50003, "failed to cancel job")
		}
		return
	}

	common.OK(c, gin.H{"job_id": c.Param("job_id"), "status": job.StatusError})
}

func (h *Handler) ListJobs(c *gin.Context) {
	owner, ok := ownerFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))

	jobs, err := h.Manager.List(c.Request.Context(), owner, limit)
	if err != nil {
		h.Log.Error("list failed", "error", err)
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to list jobs")
		return
	}

	views := make([]*job.StatusView, 0, len(jobs))
	for i := range jobs {
		views = append(views, job.View(&jobs[i]))
	}
	common.OK(c, gin.H{"jobs": views})
}
