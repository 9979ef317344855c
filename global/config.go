package global

import (
	"encoding/json"
	"strings"
	"time"

	"RoomChat/logger"
	"RoomChat/service/ratelimit"
	"RoomChat/tools"
	"RoomChat/tools/ids"
)

// AppConfig：进程级配置，全部来自环境变量。
type AppConfig struct {
	ListenAddr string
	GatewayID  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MongoURI      string
	MongoDatabase string
	MongoUser     string
	MongoPassword string

	JWTSecret   string
	AuthTimeout time.Duration

	// 空表示不启用跨实例中继
	NatsServers []string

	// memory | redis
	RateStore     string
	RateDefault   ratelimit.Rule
	RateRules     []ratelimit.Rule
	RateAllowList []string
}

func Load() *AppConfig {
	cfg := &AppConfig{
		ListenAddr: tools.GetEnv("LISTEN_ADDR", ":8080"),
		GatewayID:  tools.GetEnv("GATEWAY_ID", "msg_gw-1"),

		RedisAddr:     tools.GetEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: tools.GetEnv("REDIS_PASSWORD", ""),
		RedisDB:       tools.GetEnvInt("REDIS_DB", 0),

		MongoURI:      tools.GetEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: tools.GetEnv("MONGO_DB", "roomchat"),
		MongoUser:     tools.GetEnv("MONGO_USER", ""),
		MongoPassword: tools.GetEnv("MONGO_PASSWORD", ""),

		JWTSecret:   tools.GetEnv("JWT_SECRET", "dev-secret-change-me"),
		AuthTimeout: tools.GetEnvDuration("AUTH_TIMEOUT", 10*time.Second),

		RateStore: tools.GetEnv("RATE_LIMIT_STORE", "redis"),
		RateDefault: ratelimit.Rule{
			Window: time.Duration(tools.GetEnvInt("RATE_DEFAULT_WINDOW", 60)) * time.Second,
			Max:    tools.GetEnvInt("RATE_DEFAULT_MAX", 120),
			Burst:  tools.GetEnvInt("RATE_DEFAULT_BURST", 0),
		},
	}

	if v := strings.TrimSpace(tools.GetEnv("NATS_SERVERS", "")); v != "" {
		cfg.NatsServers = strings.Split(v, ",")
	}

	// RATE_RULES：JSON 数组，如
	// [{"prefix":"/api/auth/","window_seconds":60,"max_requests":10,"burst_size":3}]
	if v := strings.TrimSpace(tools.GetEnv("RATE_RULES", "")); v != "" {
		var rules []ratelimit.Rule
		if err := json.Unmarshal([]byte(v), &rules); err != nil {
			logger.Warnf("[config] bad RATE_RULES, ignored: %v", err)
		} else {
			cfg.RateRules = rules
		}
	}

	allow := tools.GetEnv("RATE_ALLOWLIST", "/health,/static/")
	for _, p := range strings.Split(allow, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cfg.RateAllowList = append(cfg.RateAllowList, p)
		}
	}
	return cfg
}

func (c *AppConfig) JwtSecret() []byte {
	return []byte(c.JWTSecret)
}

// ConfigIds 配置雪花节点号。
func ConfigIds() {
	ids.SetNodeID(int64(tools.GetEnvInt("SNOWFLAKE_NODE_ID", 1)))
}
