package chat

import (
	"sync"
	"time"

	"RoomChat/logger"
)

// ===== 数据结构 =====

// UserInfo 是用户展示属性的快照，同一用户的所有房间连接共享一份。
type UserInfo struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

type connKey struct {
	userID string
	roomID string
}

// Connection：一条活连接，(user, room) 唯一。
type Connection struct {
	ConnID      string
	UserID      string
	RoomID      string
	ConnectedAt time.Time

	transport Transport
}

// ConnManager 是进程内的连接注册表：主索引 (user,room)，
// 辅助索引 room -> user 与 user -> room，外加用户信息快照。
// 所有表由同一把锁保护；广播在锁内拍快照、锁外写。
type ConnManager struct {
	mu       sync.Mutex
	byKey    map[connKey]*Connection
	rooms    map[string]map[string]*Connection // roomID -> userID -> conn
	byUser   map[string]map[string]*Connection // userID -> roomID -> conn
	userInfo map[string]UserInfo

	clock  func() time.Time
	closed bool
}

func NewConnManager() *ConnManager {
	return &ConnManager{
		byKey:    make(map[connKey]*Connection),
		rooms:    make(map[string]map[string]*Connection),
		byUser:   make(map[string]map[string]*Connection),
		userInfo: make(map[string]UserInfo),
		clock:    time.Now,
	}
}

// Connect 登记一条连接。同 (user,room) 已有连接时走重连路径：
// 旧连接先出索引再尽力关闭，关闭失败只记日志。
// 注册表已关停时拒绝登记：关掉来者的传输层并返回 nil。
func (m *ConnManager) Connect(t Transport, connID, userID, roomID string, info UserInfo) *Connection {
	c := &Connection{
		ConnID:      connID,
		UserID:      userID,
		RoomID:      roomID,
		ConnectedAt: m.clock(),
		transport:   t,
	}
	key := connKey{userID: userID, roomID: roomID}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = t.Close()
		logger.Infof("[conn] registry closed, rejecting user=%s room=%s", userID, roomID)
		return nil
	}
	old := m.byKey[key]
	m.byKey[key] = c

	if m.rooms[roomID] == nil {
		m.rooms[roomID] = make(map[string]*Connection)
	}
	m.rooms[roomID][userID] = c

	if m.byUser[userID] == nil {
		m.byUser[userID] = make(map[string]*Connection)
	}
	m.byUser[userID][roomID] = c

	m.userInfo[userID] = info
	m.mu.Unlock()

	if old != nil {
		if err := old.transport.Close(); err != nil {
			logger.Warnf("[conn] close stale conn user=%s room=%s err=%v", userID, roomID, err)
		}
		logger.Infof("[conn] replaced duplicate user=%s room=%s old=%s new=%s", userID, roomID, old.ConnID, connID)
	}
	return c
}

// Disconnect 移除 (user,room) 的连接；该用户在别的房间的连接不受影响。
// 没有对应连接时是幂等 no-op。
func (m *ConnManager) Disconnect(userID, roomID string) {
	m.mu.Lock()
	c := m.removeLocked(userID, roomID)
	m.mu.Unlock()

	if c != nil {
		if err := c.transport.Close(); err != nil {
			logger.Debug("[conn] close on disconnect: " + err.Error())
		}
	}
}

// dropConn 只在连接仍是当前登记的那条时移除它，返回是否真的出表。
// 写失败的惰性回收走这里，避免误杀刚顶替上来的重连。
func (m *ConnManager) dropConn(c *Connection) bool {
	key := connKey{userID: c.UserID, roomID: c.RoomID}

	m.mu.Lock()
	cur := m.byKey[key]
	var removed *Connection
	if cur == c {
		removed = m.removeLocked(c.UserID, c.RoomID)
	}
	m.mu.Unlock()

	if removed != nil {
		_ = removed.transport.Close()
		return true
	}
	return false
}

// 持锁调用。返回被移除的连接（可能为 nil）。
func (m *ConnManager) removeLocked(userID, roomID string) *Connection {
	key := connKey{userID: userID, roomID: roomID}
	c, ok := m.byKey[key]
	if !ok {
		return nil
	}
	delete(m.byKey, key)

	if ru := m.rooms[roomID]; ru != nil {
		delete(ru, userID)
		if len(ru) == 0 {
			delete(m.rooms, roomID)
		}
	}
	if ur := m.byUser[userID]; ur != nil {
		delete(ur, roomID)
		if len(ur) == 0 {
			delete(m.byUser, userID)
			// 所有房间都不在线了才丢快照
			delete(m.userInfo, userID)
		}
	}
	return c
}

// SendToUser 向 (user,room) 的那条连接写一帧。
// 写失败按断连处理：连接出表并关闭，错误返回给调用方。
func (m *ConnManager) SendToUser(userID, roomID string, v any) error {
	m.mu.Lock()
	c := m.byKey[connKey{userID: userID, roomID: roomID}]
	m.mu.Unlock()
	if c == nil {
		return nil
	}
	if err := c.transport.WriteJSON(v); err != nil {
		logger.Warnf("[conn] write failed, evicting user=%s room=%s err=%v", userID, roomID, err)
		m.dropConn(c)
		return err
	}
	return nil
}

// Broadcast 向房间内除 excludeUser 外的所有连接写一帧。
// 单个连接失败不影响其余；空房间是 no-op。
func (m *ConnManager) Broadcast(roomID string, v any, excludeUser string) {
	m.mu.Lock()
	targets := make([]*Connection, 0, len(m.rooms[roomID]))
	for uid, c := range m.rooms[roomID] {
		if uid == excludeUser {
			continue
		}
		targets = append(targets, c)
	}
	m.mu.Unlock()

	for _, c := range targets {
		if err := c.transport.WriteJSON(v); err != nil {
			logger.Warnf("[conn] broadcast write failed, evicting user=%s room=%s err=%v", c.UserID, c.RoomID, err)
			m.dropConn(c)
		}
	}
}

// NotifyUser 向该用户所有房间的连接投递（跨房间通知）。
func (m *ConnManager) NotifyUser(userID string, v any) {
	m.mu.Lock()
	targets := make([]*Connection, 0, len(m.byUser[userID]))
	for _, c := range m.byUser[userID] {
		targets = append(targets, c)
	}
	m.mu.Unlock()

	for _, c := range targets {
		if err := c.transport.WriteJSON(v); err != nil {
			logger.Warnf("[conn] notify write failed, evicting user=%s room=%s err=%v", c.UserID, c.RoomID, err)
			m.dropConn(c)
		}
	}
}

// RoomUsers 返回房间内在线用户的信息快照。
func (m *ConnManager) RoomUsers(roomID string) []UserInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	ru := m.rooms[roomID]
	out := make([]UserInfo, 0, len(ru))
	for uid := range ru {
		if info, ok := m.userInfo[uid]; ok {
			out = append(out, info)
		}
	}
	return out
}

// RoomCount 返回房间在线人数（监控/调试用）。
func (m *ConnManager) RoomCount(roomID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms[roomID])
}

// Close 关停注册表：清空索引并关闭所有连接。
func (m *ConnManager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	conns := make([]*Connection, 0, len(m.byKey))
	for _, c := range m.byKey {
		conns = append(conns, c)
	}
	m.byKey = make(map[connKey]*Connection)
	m.rooms = make(map[string]map[string]*Connection)
	m.byUser = make(map[string]map[string]*Connection)
	m.userInfo = make(map[string]UserInfo)
	m.mu.Unlock()

	for _, c := range conns {
		_ = c.transport.Close()
	}
}
