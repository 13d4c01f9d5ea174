package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"discovarr/internal/providers"

	"github.com/gin-gonic/gin"
)

// GetUsers 列出所有启用的媒体库提供商的用户
func (h *Handler) GetUsers(c *gin.Context) {
	bindings, err := h.gateway.LibraryProviders(c.Request.Context())
	if err != nil {
		h.respondWithError(c, http.StatusInternalServerError, "Failed to resolve library providers: "+err.Error())
		return
	}
	if len(bindings) == 0 {
		h.respondWithError(c, http.StatusServiceUnavailable, "No library providers enabled or error fetching users")
		return
	}

	users := make([]*providers.LibraryUser, 0)
	for _, binding := range bindings {
		providerUsers, err := binding.Provider.GetUsers(c.Request.Context())
		if err != nil {
			log.Printf("Failed to fetch users from %s: %v", binding.Name, err)
			continue
		}
		users = append(users, providerUsers...)
	}

	h.respondWithSuccess(c, users)
}

// SyncWatchHistory 立即同步所有提供商的观看历史
func (h *Handler) SyncWatchHistory(c *gin.Context) {
	results, err := h.history.SyncAll(c.Request.Context())
	if err != nil {
		h.respondWithError(c, http.StatusInternalServerError, "Failed to sync watch history: "+err.Error())
		return
	}

	h.respondWithSuccess(c, results, "Watch history synced successfully")
}

// TraktAuthenticate 发起Trakt设备授权流程
// 返回用户码和验证地址，令牌轮询在后台进行
func (h *Handler) TraktAuthenticate(c *gin.Context) {
	binding, err := h.gateway.LibraryProvider(c.Request.Context(), "trakt")
	if err != nil {
		h.respondWithError(c, http.StatusInternalServerError, "Failed to resolve trakt provider: "+err.Error())
		return
	}
	if binding == nil {
		h.respondWithError(c, http.StatusServiceUnavailable, "Trakt service is not configured or enabled")
		return
	}

	trakt, ok := binding.Provider.(*providers.TraktProvider)
	if !ok {
		h.respondWithError(c, http.StatusServiceUnavailable, "Trakt service is not configured or enabled")
		return
	}

	if trakt.IsAuthenticated() {
		h.respondWithSuccess(c, gin.H{"authenticated": true}, "Trakt is already authenticated")
		return
	}

	auth, err := trakt.StartDeviceAuth(c.Request.Context())
	if err != nil {
		h.respondWithError(c, http.StatusInternalServerError, "Failed to start trakt device authorization: "+err.Error())
		return
	}

	// 轮询必须在请求结束后继续，使用设备码的有效期作为超时
	go func() {
		deadline := auth.Expiry
		if deadline.IsZero() {
			deadline = time.Now().Add(10 * time.Minute)
		}
		ctx, cancel := context.WithDeadline(context.Background(), deadline)
		defer cancel()

		if err := trakt.WaitForDeviceToken(ctx, auth); err != nil {
			log.Printf("Trakt device authorization failed: %v", err)
			return
		}
		log.Printf("Trakt device authorization completed")
	}()

	h.respondWithSuccess(c, gin.H{
		"user_code":        auth.UserCode,
		"verification_url": auth.VerificationURI,
	}, "Trakt authentication started. Enter the user code at the verification URL.")
}

// GetLLMModels 列出启用的LLM提供商的可用模型
func (h *Handler) GetLLMModels(c *gin.Context) {
	models, err := h.discovery.AvailableModels(c.Request.Context())
	if err != nil {
		h.respondWithError(c, http.StatusServiceUnavailable, "LLM service unavailable or error fetching models: "+err.Error())
		return
	}

	h.respondWithSuccess(c, models)
}

// SimilarMediaByName 为指定媒体名生成推荐
func (h *Handler) SimilarMediaByName(c *gin.Context) {
	mediaName := c.Param("media_name")
	if mediaName == "" {
		h.respondWithError(c, http.StatusBadRequest, "Missing parameter: media_name")
		return
	}

	run, err := h.discovery.SimilarMedia(c.Request.Context(), mediaName, "", nil)
	if err != nil {
		h.respondWithError(c, http.StatusInternalServerError, "Failed to generate suggestions: "+err.Error())
		return
	}

	h.respondWithSuccess(c, run)
}

// SimilarMediaBySearch 运行保存的搜索
func (h *Handler) SimilarMediaBySearch(c *gin.Context) {
	searchID, ok := h.parseUintParam(c, "search_id")
	if !ok {
		return
	}

	search, err := h.searches.Get(c.Request.Context(), searchID)
	if err != nil {
		h.respondWithServiceError(c, err)
		return
	}

	run, err := h.discovery.SimilarMedia(c.Request.Context(), "", search.Prompt, &searchID)
	if err != nil {
		h.respondWithError(c, http.StatusInternalServerError, "Failed to run saved search: "+err.Error())
		return
	}

	h.respondWithSuccess(c, run)
}

// SimilarMediaRequest 自定义提示词推荐请求
type SimilarMediaRequest struct {
	Prompt    string `json:"prompt" binding:"required"`
	MediaName string `json:"media_name"`
}

// SimilarMediaCustom 用自定义提示词生成推荐
func (h *Handler) SimilarMediaCustom(c *gin.Context) {
	var req SimilarMediaRequest
	if !h.bindJSON(c, &req) {
		return
	}

	run, err := h.discovery.SimilarMedia(c.Request.Context(), req.MediaName, req.Prompt, nil)
	if err != nil {
		h.respondWithError(c, http.StatusInternalServerError, "Failed to generate suggestions: "+err.Error())
		return
	}

	h.respondWithSuccess(c, run)
}

// ProcessWatchHistory 消费未处理的观看历史并生成推荐
func (h *Handler) ProcessWatchHistory(c *gin.Context) {
	if err := h.discovery.ProcessWatchHistory(c.Request.Context()); err != nil {
		h.respondWithError(c, http.StatusInternalServerError, "Failed to process watch history: "+err.Error())
		return
	}

	h.respondWithSuccess(c, nil, "Watch history processed successfully")
}
