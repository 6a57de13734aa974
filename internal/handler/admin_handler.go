// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"monet-probing/internal/model"
	"monet-probing/internal/service"
	"monet-probing/pkg/es"
	"monet-probing/pkg/log"

	"github.com/gin-gonic/gin"
)

// AdminHandler 负责处理所有运维相关的 API 请求。
type AdminHandler struct {
	adminService service.AdminService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

func probeKey(c *gin.Context) string {
	return model.SessionKey(c.Param("surveyId"), c.Param("questionId"), c.Param("respondentId"))
}

// GetProbe 返回一个会话的缓存状态与对话历史。
func (h *AdminHandler) GetProbe(c *gin.Context) {
	key := probeKey(c)
	inspection, err := h.adminService.InspectProbe(c.Request.Context(), key)
	if err != nil {
		log.Errorw("GetProbe: Failed to inspect probe", "key", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取探询会话失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": inspection})
}

// ResetProbe 清除一个会话的缓存与对话历史。
func (h *AdminHandler) ResetProbe(c *gin.Context) {
	key := probeKey(c)
	if err := h.adminService.ResetProbe(c.Request.Context(), key); err != nil {
		log.Errorw("ResetProbe: Failed to reset probe", "key", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "重置探询会话失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"key": key}})
}

// GetTranscript 返回已归档会话记录的临时下载地址。
func (h *AdminHandler) GetTranscript(c *gin.Context) {
	sessionNo, err := strconv.Atoi(c.Param("sessionNo"))
	if err != nil || sessionNo < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的会话号", "data": nil})
		return
	}
	key := probeKey(c)
	url, err := h.adminService.TranscriptURL(key, sessionNo)
	if err != nil {
		h.backendError(c, "GetTranscript", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"url": url}})
}

// SearchResponses 在检索索引中按关键词查询探询回答。
func (h *AdminHandler) SearchResponses(c *gin.Context) {
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))
	q := es.SearchQuery{
		Text:       c.Query("q"),
		SurveyID:   c.Query("su_id"),
		QuestionID: c.Query("qs_id"),
		Size:       size,
	}
	results, err := h.adminService.SearchResponses(c.Request.Context(), q)
	if err != nil {
		h.backendError(c, "SearchResponses", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": results})
}

func (h *AdminHandler) backendError(c *gin.Context, op string, err error) {
	if errors.Is(err, service.ErrFeatureDisabled) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "message": "该功能未启用", "data": nil})
		return
	}
	log.Errorw(op+": backend failure", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "服务暂时不可用", "data": nil})
}
