package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"RoomChat/logger"
	midsec "RoomChat/middleware/security"
	"RoomChat/service/ratelimit"
	"RoomChat/tools/errs"

	"github.com/gin-gonic/gin"
)

// RateLimit：业务逻辑前的准入控制。
// 客户端身份：已认证 user id > X-Forwarded-For 首跳 > 原始地址。
// 限流器内部错误一律 fail-open：放行并记 warning。
// 放行路径不主动调 Next，方便挂进 Manager 的手工链。
func RateLimit(limiter *ratelimit.Limiter, rules *ratelimit.RuleSet) gin.HandlerFunc {
	return func(c *gin.Context) {
		rule, limited := rules.Match(c.Request.URL.Path)
		if !limited {
			return
		}

		client := clientKey(c)
		key := client + ":" + c.Request.URL.Path

		d, err := limiter.Allow(c.Request.Context(), key, rule.Window, rule.Max, rule.Burst)
		if err != nil {
			logger.Warnf("[ratelimit] limiter unavailable, failing open path=%s client=%s err=%v",
				c.Request.URL.Path, client, err)
			return
		}

		h := c.Writer.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		h.Set("X-RateLimit-Reset", strconv.Itoa(d.Reset))
		h.Set("X-RateLimit-Window", strconv.Itoa(d.Window))

		if !d.Allowed {
			h.Set("Retry-After", strconv.Itoa(d.RetryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":        errs.ErrRateLimited.Code,
				"msg":         errs.ErrRateLimited.Msg,
				"retry_after": d.RetryAfter,
				"limit":       d.Limit,
				"window":      d.Window,
			})
		}
	}
}

func clientKey(c *gin.Context) string {
	if uid := c.GetString(midsec.CtxUserIDKey); uid != "" {
		return "u:" + uid
	}
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return "ip:" + first
		}
	}
	return "ip:" + c.ClientIP()
}
