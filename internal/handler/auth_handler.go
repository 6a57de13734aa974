// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"monet-probing/internal/config"
	"monet-probing/pkg/hash"
	"monet-probing/pkg/log"
	"monet-probing/pkg/token"

	"github.com/gin-gonic/gin"
)

// AuthHandler 负责为运维客户端签发 token。
type AuthHandler struct {
	creds      config.AuthConfig
	jwtManager *token.JWTManager
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(creds config.AuthConfig, jwtManager *token.JWTManager) *AuthHandler {
	return &AuthHandler{creds: creds, jwtManager: jwtManager}
}

// TokenRequest 定义了签发 token API 的请求体结构。
type TokenRequest struct {
	ClientID     string `json:"clientId" binding:"required"`
	ClientSecret string `json:"clientSecret" binding:"required"`
}

// IssueToken 校验客户端凭据并签发 ADMIN 角色的 access token。
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("IssueToken: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载：clientId 和 clientSecret 不能为空", "data": nil})
		return
	}

	if h.creds.ClientID == "" || req.ClientID != h.creds.ClientID || !hash.CheckPasswordHash(req.ClientSecret, h.creds.ClientSecretHash) {
		log.Warnf("IssueToken: rejected credentials for client '%s'", req.ClientID)
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的客户端凭据", "data": nil})
		return
	}

	accessToken, err := h.jwtManager.GenerateToken(req.ClientID, token.RoleAdmin)
	if err != nil {
		log.Error("IssueToken: Failed to sign token", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "签发 token 失败", "data": nil})
		return
	}

	log.Infof("Token issued for client '%s'", req.ClientID)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"token":     accessToken,
			"expiresIn": int(h.jwtManager.ExpiresIn().Seconds()),
		},
	})
}
