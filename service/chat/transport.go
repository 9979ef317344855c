package chat

import (
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultWriteWait = 5 * time.Second

// Transport 是注册表独占持有的连接写端。
// gorilla 连接与单测里的假连接都实现它。
type Transport interface {
	WriteJSON(v any) error
	Close() error
	RemoteAddr() net.Addr
}

// wsTransport 包装 gorilla 连接：写带截止时间，且互斥
// （读循环手里的 pong/close 控制帧不走这里）。
type wsTransport struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	writeWait time.Duration
}

func NewWSTransport(conn *websocket.Conn) Transport {
	return &wsTransport{conn: conn, writeWait: defaultWriteWait}
}

func (t *wsTransport) WriteJSON(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeWait)); err != nil {
		return err
	}
	return t.conn.WriteJSON(v)
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeWait))
	_ = t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return t.conn.Close()
}

func (t *wsTransport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}
