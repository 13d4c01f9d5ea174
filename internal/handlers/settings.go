package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetAllSettings 返回全部设置的分组视图
func (h *Handler) GetAllSettings(c *gin.Context) {
	settings, err := h.settings.GetAll(c.Request.Context())
	if err != nil {
		h.respondWithError(c, http.StatusInternalServerError, "Failed to load settings: "+err.Error())
		return
	}

	h.respondWithSuccess(c, settings)
}

// GetSettingsGroup 返回单个分组的生效值
func (h *Handler) GetSettingsGroup(c *gin.Context) {
	group := c.Param("group")

	values, err := h.settings.GetGroup(c.Request.Context(), group)
	if err != nil {
		h.respondWithServiceError(c, err)
		return
	}

	h.respondWithSuccess(c, values)
}

// UpdateSettingRequest 更新设置请求
type UpdateSettingRequest struct {
	Value string `json:"value"`
}

// UpdateSetting 更新单个设置值
func (h *Handler) UpdateSetting(c *gin.Context) {
	group := c.Param("group")
	name := c.Param("name")

	var req UpdateSettingRequest
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.settings.Set(c.Request.Context(), group, name, req.Value); err != nil {
		h.respondWithError(c, http.StatusBadRequest, "Failed to update setting: "+err.Error())
		return
	}

	h.respondWithSuccess(c, nil, "Setting "+group+"."+name+" updated successfully")
}
