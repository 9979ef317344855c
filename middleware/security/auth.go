package security

import (
	"net/http"
	"strings"

	"RoomChat/tools/errs"
	tsec "RoomChat/tools/security"

	"github.com/gin-gonic/gin"
)

// —— context key ——
// 后续 handler 统一用这俩 key 读取
const (
	CtxUserIDKey = "userID" // string
	CtxTokenKey  = "token"  // string
)

// Middleware 校验 Authorization: Bearer <jwt>，通过后把 user id
// 写进请求上下文；失败 401 终止。
func Middleware(opts tsec.Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrTokenInvalid)
			return
		}

		userID, err := tsec.Verify(opts, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrTokenInvalid.WithDetail(err.Error()))
			return
		}

		c.Set(CtxUserIDKey, userID)
		c.Set(CtxTokenKey, token)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authz := strings.TrimSpace(c.GetHeader("Authorization"))
	if authz != "" && strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	// 兼容直接塞 token 的旧客户端
	return strings.TrimSpace(c.GetHeader("authorization-token"))
}
