// Package middleware 提供 HTTP 请求的中间件
// 包括可选认证、CORS 跨域、日志记录等
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"ai-chat-server/pkg/jwt"
)

// OptionalAuthMiddleware 创建可选的 JWT 认证中间件
// 所有对话接口都开放匿名访问；携带有效 Token 时把用户ID存入上下文，
// 用于会话归属，没有或无效则按匿名继续处理
// 参数:
//   - jwtService: JWT 服务实例，用于解析和验证 Token
//
// 返回:
//   - gin.HandlerFunc: Gin 中间件函数
func OptionalAuthMiddleware(jwtService *jwt.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		// 格式: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.Next()
			return
		}

		claims, err := jwtService.ValidateToken(parts[1])
		if err != nil {
			c.Next()
			return
		}

		// 后续的 Handler 可以通过 c.Get("user_id") 获取
		c.Set("user_id", claims.UserID)
		c.Next()
	}
}

// GetUserID 从上下文获取用户 ID 的辅助函数
// 参数:
//   - c: Gin 上下文
//
// 返回:
//   - string: 用户 ID，匿名请求返回空串
func GetUserID(c *gin.Context) string {
	userID, exists := c.Get("user_id")
	if !exists {
		return ""
	}
	id, _ := userID.(string)
	return id
}
