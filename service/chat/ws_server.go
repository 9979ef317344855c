package chat

import (
	"context"
	"net"
	"net/http"
	"time"

	"RoomChat/logger"
	"RoomChat/module/chat/model"
	"RoomChat/tools/errs"
	"RoomChat/tools/ids"
	security "RoomChat/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// 自定义关闭码（4000~4999 应用自定义段）：
// 连接状态机 Connecting -> Authenticating -> Open -> Closed；
// 鉴权失败的连接永远到不了 Open。
const (
	CloseAuthFailed  = 4401
	CloseNotMember   = 4403
	CloseAuthTimeout = 4408
)

const (
	pongWait     = 75 * time.Second
	pingInterval = 25 * time.Second
	writeWait    = 10 * time.Second
)

// HandleWS ：/ws/:room 的升级入口。
func (s *Server) HandleWS(c *gin.Context) {
	roomID := c.Param("room")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 非 WebSocket 请求/握手失败
		logger.Infof("[ws] upgrade failed: %v", err)
		return
	}

	// ---- Authenticating ----
	user, room, authErr := s.authenticate(c, ws, roomID)
	if authErr != nil {
		code := CloseAuthFailed
		if ne, ok := authErr.(net.Error); ok && ne.Timeout() {
			code = CloseAuthTimeout
		} else if authErr == errNotMember {
			code = CloseNotMember
		}
		closeWith(ws, code, authErr.Error())
		return
	}

	// ---- Open ----
	transport := NewWSTransport(ws)
	connID := ids.GenerateString()
	conn := s.conns.Connect(transport, connID, user.UserID, roomID, user)
	if conn == nil {
		// 注册表在关停中，传输层已被 Connect 关闭
		return
	}
	logger.Infof("[ws] open user=%s room=%s conn=%s remote=%s", user.UserID, roomID, connID, ws.RemoteAddr())

	// 入场快照给本人，入场事件给其他成员
	s.sendTo(&session{conn: conn, user: user}, BuildRoomUsers(roomID, s.conns.RoomUsers(roomID)))
	s.broadcast(roomID, BuildPresenceEvent("user_joined", roomID, user), user.UserID)

	// 读超时靠 pong 续期；服务端周期性 ping
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	stopPing := startPing(ws)

	sess := &session{conn: conn, user: user, room: room}
	ctx := c.Request.Context()
	s.readLoop(ctx, ws, sess)

	// ---- Closed ----
	close(stopPing)
	if s.conns.dropConn(conn) {
		// 只有还没被重连顶替时才算真正离场
		s.broadcast(roomID, BuildPresenceEvent("user_left", roomID, user), user.UserID)
	}
	logger.Infof("[ws] closed user=%s room=%s conn=%s", user.UserID, roomID, connID)
}

// readLoop：帧按到达顺序串行处理；解码失败回错误帧不断连，
// 传输层错误才退出循环。
func (s *Server) readLoop(ctx context.Context, ws *websocket.Conn, sess *session) {
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[ws] peer closed user=%s room=%s", sess.user.UserID, sess.conn.RoomID)
			} else {
				logger.Infof("[ws] read err user=%s room=%s err=%v", sess.user.UserID, sess.conn.RoomID, err)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, perr := ParseInbound(data)
		if perr != nil {
			if ce := errs.AsCodeError(perr); ce != nil {
				s.sendTo(sess, BuildError(ce, ""))
			}
			continue
		}
		s.dispatch(ctx, sess, frame)
	}
}

var errNotMember = &notMemberError{}

type notMemberError struct{}

func (*notMemberError) Error() string { return "not a member of the room" }

// authenticate 等待鉴权完成：token 走 query 参数或首帧 auth。
// 超时/失败返回错误，连接不会进入注册表。
func (s *Server) authenticate(c *gin.Context, ws *websocket.Conn, roomID string) (UserInfo, *model.RoomModel, error) {
	deadline := time.Now().Add(s.conf.AuthTimeout)
	_ = ws.SetReadDeadline(deadline)
	defer func() { _ = ws.SetReadDeadline(time.Time{}) }()

	token := c.Query("token")
	if token == "" {
		// 首帧必须是 auth
		_, data, err := ws.ReadMessage()
		if err != nil {
			return UserInfo{}, nil, err
		}
		frame, err := ParseInbound(data)
		if err != nil || frame.Type != FrameAuth {
			return UserInfo{}, nil, errAuthExpected
		}
		payload, err := frame.AuthPayload()
		if err != nil || payload.Token == "" {
			return UserInfo{}, nil, errAuthExpected
		}
		token = payload.Token
	}

	userID, err := security.Verify(s.conf.JWT, token)
	if err != nil {
		return UserInfo{}, nil, err
	}

	octx, cancel := context.WithTimeout(context.Background(), s.conf.OpTimeout)
	defer cancel()

	room, err := s.rooms.GetRoom(octx, roomID)
	if err != nil {
		return UserInfo{}, nil, err
	}
	if !room.HasMember(userID) {
		return UserInfo{}, nil, errNotMember
	}

	info := UserInfo{UserID: userID, Name: userID}
	if u, err := s.users.GetUser(octx, userID); err == nil {
		info.Name = u.Name
		info.AvatarURL = u.AvatarURL
	}
	return info, room, nil
}

var errAuthExpected = &authExpectedError{}

type authExpectedError struct{}

func (*authExpectedError) Error() string { return "auth frame expected" }

func closeWith(ws *websocket.Conn, code int, reason string) {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	_ = ws.Close()
}

// startPing 周期性发 ping；返回的 chan 关闭后停止。
func startPing(ws *websocket.Conn) chan struct{} {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()
	return stop
}
