package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetActiveMedia 列出未忽略的媒体
func (h *Handler) GetActiveMedia(c *gin.Context) {
	media, err := h.media.ListActive(c.Request.Context())
	if err != nil {
		h.respondWithError(c, http.StatusInternalServerError, "Failed to list active media: "+err.Error())
		return
	}

	h.respondWithSuccess(c, media)
}

// GetIgnoredMedia 列出已忽略的媒体
func (h *Handler) GetIgnoredMedia(c *gin.Context) {
	media, err := h.media.ListIgnored(c.Request.Context())
	if err != nil {
		h.respondWithError(c, http.StatusInternalServerError, "Failed to list ignored media: "+err.Error())
		return
	}

	h.respondWithSuccess(c, media)
}

// ToggleMediaIgnore 翻转媒体的忽略状态
func (h *Handler) ToggleMediaIgnore(c *gin.Context) {
	id, ok := h.parseUintParam(c, "id")
	if !ok {
		return
	}

	media, err := h.media.ToggleIgnore(c.Request.Context(), id)
	if err != nil {
		h.respondWithServiceError(c, err)
		return
	}

	h.respondWithSuccess(c, media, "Ignore status toggled")
}

// SetMediaIgnoreRequest 设置忽略状态的请求体
type SetMediaIgnoreRequest struct {
	Ignore *bool `json:"ignore" binding:"required"`
}

// SetMediaIgnore 设置媒体的忽略状态
func (h *Handler) SetMediaIgnore(c *gin.Context) {
	id, ok := h.parseUintParam(c, "id")
	if !ok {
		return
	}

	var req SetMediaIgnoreRequest
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.media.SetIgnore(c.Request.Context(), id, *req.Ignore); err != nil {
		h.respondWithServiceError(c, err)
		return
	}

	h.respondWithSuccess(c, nil, "Ignore status updated")
}

// DeleteMedia 删除媒体条目
func (h *Handler) DeleteMedia(c *gin.Context) {
	id, ok := h.parseUintParam(c, "id")
	if !ok {
		return
	}

	if err := h.media.Delete(c.Request.Context(), id); err != nil {
		h.respondWithServiceError(c, err)
		return
	}

	h.respondWithSuccess(c, nil, "Media deleted successfully")
}

// SearchMedia 按标题搜索媒体
func (h *Handler) SearchMedia(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		h.respondWithError(c, http.StatusBadRequest, "Query parameter cannot be empty")
		return
	}

	results, err := h.media.Search(c.Request.Context(), query)
	if err != nil {
		h.respondWithError(c, http.StatusInternalServerError, "Failed to search media: "+err.Error())
		return
	}

	h.respondWithSuccess(c, results)
}

// GetMediaFieldValues 返回指定列的全部唯一值
func (h *Handler) GetMediaFieldValues(c *gin.Context) {
	column := c.Param("col_name")

	values, err := h.media.FieldValues(c.Request.Context(), column)
	if err != nil {
		h.respondWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	h.respondWithSuccess(c, values)
}
