package handlers

import (
	"net/http"
	"strconv"

	"discovarr/internal/services"

	"github.com/gin-gonic/gin"
)

// GetSearches 列出最近的搜索，附带各自的调度
func (h *Handler) GetSearches(c *gin.Context) {
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.respondWithError(c, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = parsed
	}

	searches, err := h.searches.List(c.Request.Context(), limit)
	if err != nil {
		h.respondWithError(c, http.StatusInternalServerError, "Failed to list searches: "+err.Error())
		return
	}

	h.respondWithSuccess(c, searches)
}

// GetSearch 按ID取单条搜索
func (h *Handler) GetSearch(c *gin.Context) {
	id, ok := h.parseUintParam(c, "search_id")
	if !ok {
		return
	}

	search, err := h.searches.Get(c.Request.Context(), id)
	if err != nil {
		h.respondWithServiceError(c, err)
		return
	}

	h.respondWithSuccess(c, search)
}

// CreateSearch 保存新搜索
func (h *Handler) CreateSearch(c *gin.Context) {
	var req services.SearchRequest
	if !h.bindJSON(c, &req) {
		return
	}

	search, err := h.searches.Create(c.Request.Context(), &req)
	if err != nil {
		h.respondWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	h.respondWithCreated(c, search, "Search saved successfully")
}

// UpdateSearch 更新已有搜索
func (h *Handler) UpdateSearch(c *gin.Context) {
	id, ok := h.parseUintParam(c, "search_id")
	if !ok {
		return
	}

	var req services.SearchRequest
	if !h.bindJSON(c, &req) {
		return
	}

	search, err := h.searches.Update(c.Request.Context(), id, &req)
	if err != nil {
		h.respondWithServiceError(c, err)
		return
	}

	h.respondWithSuccess(c, search, "Search updated successfully")
}

// DeleteSearch 删除搜索及其调度
func (h *Handler) DeleteSearch(c *gin.Context) {
	id, ok := h.parseUintParam(c, "search_id")
	if !ok {
		return
	}

	if err := h.searches.Delete(c.Request.Context(), id); err != nil {
		h.respondWithServiceError(c, err)
		return
	}

	h.respondWithSuccess(c, nil, "Search deleted successfully")
}

// PromptPreviewRequest 提示词预览请求
type PromptPreviewRequest struct {
	Prompt    string `json:"prompt"`
	MediaName string `json:"media_name"`
}

// PreviewPrompt 渲染提示词模板供前端预览
func (h *Handler) PreviewPrompt(c *gin.Context) {
	var req PromptPreviewRequest
	if !h.bindJSON(c, &req) {
		return
	}

	rendered, err := h.discovery.RenderPrompt(c.Request.Context(), req.MediaName, req.Prompt)
	if err != nil {
		h.respondWithError(c, http.StatusInternalServerError, "Failed to render prompt: "+err.Error())
		return
	}

	h.respondWithSuccess(c, gin.H{"result": rendered})
}

// GetTokenStats 列出所有LLM调用的token统计
func (h *Handler) GetTokenStats(c *gin.Context) {
	stats, err := h.discovery.TokenStats(c.Request.Context())
	if err != nil {
		h.respondWithError(c, http.StatusInternalServerError, "Failed to list token stats: "+err.Error())
		return
	}

	h.respondWithSuccess(c, stats)
}

// GetTokenStatsSummary 按提供商聚合token用量，可选时间范围过滤
func (h *Handler) GetTokenStatsSummary(c *gin.Context) {
	start, ok := h.parseTimeQuery(c, "start_date")
	if !ok {
		return
	}
	end, ok := h.parseTimeQuery(c, "end_date")
	if !ok {
		return
	}

	summary, err := h.discovery.TokenStatsSummary(c.Request.Context(), start, end)
	if err != nil {
		h.respondWithError(c, http.StatusInternalServerError, "Failed to summarize token stats: "+err.Error())
		return
	}

	h.respondWithSuccess(c, summary)
}
