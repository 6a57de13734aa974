package handler

import (
	"context"
	"fmt"
	"net/http"

	"monet-probing/pkg/log"

	"github.com/gin-gonic/gin"
)

// SessionCounter 统计当前活跃的探询会话。
type SessionCounter interface {
	Count(ctx context.Context) (int, error)
}

// HealthHandler 提供存活检查接口。
type HealthHandler struct {
	sessions SessionCounter
}

func NewHealthHandler(sessions SessionCounter) *HealthHandler {
	return &HealthHandler{sessions: sessions}
}

// Root 返回服务运行状态。
func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "running"})
}

// Health 返回活跃会话数量；缓存不可用时报告 unhealthy。
func (h *HealthHandler) Health(c *gin.Context) {
	n, err := h.sessions.Count(c.Request.Context())
	if err != nil {
		log.Error("统计活跃会话失败", err)
		c.JSON(http.StatusOK, gin.H{"websocket_status": "unhealthy", "active_probe_sessions": 0})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"websocket_status":      fmt.Sprintf("healthy with %d active probe sessions", n),
		"active_probe_sessions": n,
	})
}
