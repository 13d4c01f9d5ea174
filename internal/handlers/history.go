package handlers

import (
	"net/http"
	"strconv"

	"discovarr/internal/services"

	"github.com/gin-gonic/gin"
)

// GetWatchHistoryGrouped 按用户分组返回观看历史，可选时间范围过滤
func (h *Handler) GetWatchHistoryGrouped(c *gin.Context) {
	start, ok := h.parseTimeQuery(c, "start_date")
	if !ok {
		return
	}
	end, ok := h.parseTimeQuery(c, "end_date")
	if !ok {
		return
	}

	groups, err := h.history.ListGrouped(c.Request.Context(), start, end)
	if err != nil {
		h.respondWithError(c, http.StatusInternalServerError, "Failed to list watch history: "+err.Error())
		return
	}

	h.respondWithSuccess(c, groups)
}

// GetWatchHistory 列出观看历史，支持limit和processed过滤
func (h *Handler) GetWatchHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.respondWithError(c, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = parsed
	}

	var processed *bool
	if raw := c.Query("processed"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			h.respondWithError(c, http.StatusBadRequest, "Invalid processed parameter")
			return
		}
		processed = &parsed
	}

	entries, err := h.history.List(c.Request.Context(), limit, processed)
	if err != nil {
		h.respondWithError(c, http.StatusInternalServerError, "Failed to list watch history: "+err.Error())
		return
	}

	h.respondWithSuccess(c, entries)
}

// ImportWatchHistory 手动添加或更新一条观看记录
func (h *Handler) ImportWatchHistory(c *gin.Context) {
	var req services.ManualWatchRequest
	if !h.bindJSON(c, &req) {
		return
	}

	entry, err := h.history.AddManual(c.Request.Context(), &req)
	if err != nil {
		h.respondWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	h.respondWithCreated(c, entry, "Watch history entry saved")
}

// DeleteWatchHistory 删除一条观看记录
func (h *Handler) DeleteWatchHistory(c *gin.Context) {
	id, ok := h.parseUintParam(c, "id")
	if !ok {
		return
	}

	if err := h.history.Delete(c.Request.Context(), id); err != nil {
		h.respondWithServiceError(c, err)
		return
	}

	h.respondWithSuccess(c, nil, "Watch history entry deleted")
}

// DeleteAllWatchHistory 清空观看历史
func (h *Handler) DeleteAllWatchHistory(c *gin.Context) {
	if err := h.history.DeleteAll(c.Request.Context()); err != nil {
		h.respondWithError(c, http.StatusInternalServerError, "Failed to delete watch history: "+err.Error())
		return
	}

	h.respondWithSuccess(c, nil, "All watch history deleted")
}
