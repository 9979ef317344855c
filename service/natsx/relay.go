package natsx

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"RoomChat/logger"
	"RoomChat/service/chat"

	"github.com/nats-io/nats.go"
)

// Relay 把房间广播镜像到集群：本实例发布，其他实例回放到各自的
// 本地注册表。注册表是进程内的，这层补齐跨实例扇出。

const subjectPrefix = "chat.room."

// RelayConfig 客户端配置
type RelayConfig struct {
	Servers       []string
	GatewayID     string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

type Relay struct {
	cfg   RelayConfig
	nc    *nats.Conn
	sub   *nats.Subscription
	conns *chat.ConnManager
}

type envelope struct {
	Origin  string          `json:"origin"`
	RoomID  string          `json:"room_id"`
	Exclude string          `json:"exclude,omitempty"`
	Frame   json.RawMessage `json:"frame"`
}

// NewRelay 连接 NATS 并订阅全量房间主题。
func NewRelay(cfg RelayConfig, conns *chat.ConnManager) (*Relay, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}

	opts := []nats.Option{
		nats.Name("roomchat-" + cfg.GatewayID),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, err
	}

	r := &Relay{cfg: cfg, nc: nc, conns: conns}
	sub, err := nc.Subscribe(subjectPrefix+">", r.onRemote)
	if err != nil {
		nc.Close()
		return nil, err
	}
	r.sub = sub
	return r, nil
}

// Publish 实现 chat.BroadcastRelay。
func (r *Relay) Publish(roomID, excludeUser string, frame any) error {
	raw, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	data, err := json.Marshal(envelope{
		Origin:  r.cfg.GatewayID,
		RoomID:  roomID,
		Exclude: excludeUser,
		Frame:   raw,
	})
	if err != nil {
		return err
	}
	return r.nc.Publish(subjectPrefix+roomID, data)
}

// onRemote 回放其他实例的广播；自己发布的跳过。
func (r *Relay) onRemote(m *nats.Msg) {
	var env envelope
	if err := json.Unmarshal(m.Data, &env); err != nil {
		logger.Warnf("[relay] bad envelope on %s: %v", m.Subject, err)
		return
	}
	if env.Origin == r.cfg.GatewayID {
		return
	}
	r.conns.Broadcast(env.RoomID, env.Frame, env.Exclude)
}

func (r *Relay) Close() {
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
	}
	if r.nc != nil {
		if err := r.nc.Drain(); err != nil {
			r.nc.Close()
		}
	}
}
