package middleware

import (
	midsec "RoomChat/middleware/security"
	tsec "RoomChat/tools/security"

	"github.com/gin-gonic/gin"
)

// RouteOpt 配置选项
type RouteOpt struct {
	IsAuth bool
	JWT    tsec.Options
	// Before 挂在鉴权之后、业务之前（比如按 user 计费的限流）
	Before []gin.HandlerFunc
}

func (opt RouteOpt) chain(handler gin.HandlerFunc) []gin.HandlerFunc {
	hs := make([]gin.HandlerFunc, 0, 2+len(opt.Before))
	if opt.IsAuth {
		hs = append(hs, midsec.Middleware(opt.JWT))
	}
	hs = append(hs, opt.Before...)
	return append(hs, handler)
}

// POST 封装：按需挂鉴权
func POST(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.POST(path, opt.chain(handler)...)
}

// GET 封装：按需挂鉴权
func GET(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.GET(path, opt.chain(handler)...)
}
