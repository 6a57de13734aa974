// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"

	"monet-probing/pkg/token"

	"github.com/gin-gonic/gin"
)

// AdminAuthMiddleware 检查调用方是否具有管理员权限。
// 此中间件必须在 AuthMiddleware 之后使用。
func AdminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get(ClaimsKey)
		if !exists {
			// AuthMiddleware 未能成功解析，这是一个服务器内部错误
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "无法获取调用方信息"})
			return
		}

		claims, ok := value.(*token.CustomClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "调用方数据类型错误"})
			return
		}

		if claims.Role != token.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "权限不足，需要管理员权限"})
			return
		}

		c.Next()
	}
}
