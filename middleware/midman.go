package middleware

import (
	"sync"

	"github.com/gin-gonic/gin"
)

// Manager 可以自由注册/注销中间件，作为总控挂到 Engine 上。
type Manager struct {
	mu   sync.RWMutex
	mids []gin.HandlerFunc
}

func NewManager() *Manager {
	return &Manager{}
}

// Add 注册一个中间件
func (m *Manager) Add(h gin.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mids = append(m.mids, h)
}

// Clear 清空全部中间件
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mids = nil
}

// Use 返回总控 HandlerFunc；执行时拷贝一份快照，注册不影响在途请求。
func (m *Manager) Use() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.mu.RLock()
		handlers := append([]gin.HandlerFunc{}, m.mids...)
		m.mu.RUnlock()

		for _, h := range handlers {
			h(c)
			if c.IsAborted() {
				return
			}
		}
		c.Next()
	}
}
