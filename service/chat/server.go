package chat

import (
	"time"

	"RoomChat/logger"
	security "RoomChat/tools/security"
)

// BroadcastRelay 把本地广播镜像到集群内其他实例（可选）。
// 注册表本身是进程内的，跨实例扇出靠它补齐。
type BroadcastRelay interface {
	Publish(roomID, excludeUser string, frame any) error
}

type ServerConf struct {
	GatewayID   string
	JWT         security.Options
	AuthTimeout time.Duration // Authenticating 态的最长停留时间
	OpTimeout   time.Duration // 单次持久化调用上限
}

func (c *ServerConf) norm() {
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = 10 * time.Second
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 5 * time.Second
	}
	if c.GatewayID == "" {
		c.GatewayID = "gw-1"
	}
}

// Server 组装实时投递层：注册表、持久化协作方、通知扇出与
// 可选的跨实例中继。显式构造、显式关停，不走包级单例。
type Server struct {
	conf   ServerConf
	conns  *ConnManager
	msgs   MessageStore
	rooms  RoomStore
	users  UserStore
	fanout *Fanout
	relay  BroadcastRelay
}

func NewServer(conf ServerConf, stores Stores) *Server {
	conf.norm()
	conns := NewConnManager()
	return &Server{
		conf:   conf,
		conns:  conns,
		msgs:   stores,
		rooms:  stores,
		users:  stores,
		fanout: NewFanout(conns, stores),
	}
}

// SetRelay 挂接跨实例中继；必须在接入流量前调用。
func (s *Server) SetRelay(r BroadcastRelay) { s.relay = r }

func (s *Server) Conns() *ConnManager { return s.conns }
func (s *Server) Fanout() *Fanout     { return s.fanout }
func (s *Server) GatewayID() string   { return s.conf.GatewayID }

// Close 关停所有连接。
func (s *Server) Close() {
	s.conns.Close()
}

// broadcast 本地广播并镜像到中继；中继失败不影响本地投递。
func (s *Server) broadcast(roomID string, frame any, excludeUser string) {
	s.conns.Broadcast(roomID, frame, excludeUser)
	if s.relay != nil {
		if err := s.relay.Publish(roomID, excludeUser, frame); err != nil {
			logger.Warnf("[relay] publish failed room=%s: %v", roomID, err)
		}
	}
}
