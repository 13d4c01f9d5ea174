package handlers

import (
	"net/http"

	"discovarr/internal/services"

	"github.com/gin-gonic/gin"
)

// GetSearchSchedule 返回搜索的调度，不存在时返回空数据
func (h *Handler) GetSearchSchedule(c *gin.Context) {
	searchID, ok := h.parseUintParam(c, "search_id")
	if !ok {
		return
	}

	schedule, err := h.scheduler.GetForSearch(c.Request.Context(), searchID)
	if err != nil {
		h.respondWithError(c, http.StatusInternalServerError, "Failed to load schedule: "+err.Error())
		return
	}

	h.respondWithSuccess(c, schedule)
}

// UpsertSearchSchedule 创建或更新搜索的调度
func (h *Handler) UpsertSearchSchedule(c *gin.Context) {
	searchID, ok := h.parseUintParam(c, "search_id")
	if !ok {
		return
	}

	// 调度必须指向存在的搜索
	if _, err := h.searches.Get(c.Request.Context(), searchID); err != nil {
		h.respondWithServiceError(c, err)
		return
	}

	var req services.ScheduleRequest
	if !h.bindJSON(c, &req) {
		return
	}

	schedule, err := h.scheduler.UpsertForSearch(c.Request.Context(), searchID, &req)
	if err != nil {
		h.respondWithError(c, http.StatusInternalServerError, "Failed to save schedule: "+err.Error())
		return
	}

	h.respondWithSuccess(c, schedule, "Schedule saved successfully")
}

// DeleteSearchSchedule 删除搜索的调度
func (h *Handler) DeleteSearchSchedule(c *gin.Context) {
	searchID, ok := h.parseUintParam(c, "search_id")
	if !ok {
		return
	}

	if err := h.scheduler.DeleteForSearch(c.Request.Context(), searchID); err != nil {
		h.respondWithServiceError(c, err)
		return
	}

	h.respondWithSuccess(c, nil, "Schedule deleted successfully")
}

// TriggerJob 立即执行指定的调度任务
func (h *Handler) TriggerJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		h.respondWithError(c, http.StatusBadRequest, "Missing parameter: job_id")
		return
	}

	if err := h.scheduler.Trigger(c.Request.Context(), jobID); err != nil {
		h.respondWithServiceError(c, err)
		return
	}

	h.respondWithSuccess(c, nil, "Job "+jobID+" executed successfully")
}
