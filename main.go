package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"RoomChat/global"
	"RoomChat/logger"
	mid "RoomChat/middleware"
	chatstore "RoomChat/module/chat/store"
	"RoomChat/service/chat"
	"RoomChat/service/mgo"
	"RoomChat/service/natsx"
	"RoomChat/service/ratelimit"
	redisx "RoomChat/service/storage/redis"
	security "RoomChat/tools/security"

	"github.com/gin-gonic/gin"
)

func main() {
	global.ConfigIds()
	cfg := global.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1) 限流后端：默认 Redis（多实例共享），可降级为进程内存储
	var rlStore ratelimit.Store
	if cfg.RateStore == "memory" {
		ms := ratelimit.NewMemoryStore()
		defer ms.Close()
		rlStore = ms
	} else {
		err := redisx.Init(redisx.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			// 准入控制整体 fail-open，启动也不因 Redis 缺席而失败
			logger.Warnf("[main] redis unavailable, rate limiting falls back to memory: %v", err)
			ms := ratelimit.NewMemoryStore()
			defer ms.Close()
			rlStore = ms
		} else {
			defer func() { _ = redisx.Close() }()
			rlStore = ratelimit.NewRedisStore(redisx.Get())
		}
	}
	limiter := ratelimit.NewLimiter(rlStore)
	rules := ratelimit.NewRuleSet(cfg.RateDefault, cfg.RateRules, cfg.RateAllowList)

	// 2) 持久化协作方
	err := mgo.Init(ctx, &mgo.Config{
		Uri:      cfg.MongoURI,
		Database: cfg.MongoDatabase,
		Username: cfg.MongoUser,
		Password: cfg.MongoPassword,
	})
	if err != nil {
		logger.Log.Fatal("mongo init failed: " + err.Error())
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = mgo.Close(cctx)
	}()
	stores := chatstore.NewStore(mgo.GetDB())

	// 3) 实时投递层
	jwtOpts := security.DefaultOptions(cfg.JwtSecret())
	srv := chat.NewServer(chat.ServerConf{
		GatewayID:   cfg.GatewayID,
		JWT:         jwtOpts,
		AuthTimeout: cfg.AuthTimeout,
	}, stores)
	defer srv.Close()

	// 4) 跨实例中继（可选）
	if len(cfg.NatsServers) > 0 {
		relay, rerr := natsx.NewRelay(natsx.RelayConfig{
			Servers:   cfg.NatsServers,
			GatewayID: cfg.GatewayID,
		}, srv.Conns())
		if rerr != nil {
			logger.Log.Fatal("nats relay init failed: " + rerr.Error())
		}
		defer relay.Close()
		srv.SetRelay(relay)
		logger.Infof("[main] nats relay on, servers=%v", cfg.NatsServers)
	}

	// 5) HTTP + WebSocket
	admission := mid.RateLimit(limiter, rules)

	// 全局链走 Manager 总控
	mgr := mid.NewManager()
	mgr.Add(mid.RequestID())

	r := gin.New()
	r.Use(gin.Recovery(), mgr.Use())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "gateway": cfg.GatewayID})
	})

	// WS 握手期内自行鉴权；准入按客户端 IP 计
	mid.GET(r, "/ws/:room", srv.HandleWS, mid.RouteOpt{Before: []gin.HandlerFunc{admission}})

	// REST：先鉴权后准入，限流 key 才能按 user 计
	api := r.Group("/api")
	apiOpt := mid.RouteOpt{IsAuth: true, JWT: jwtOpts, Before: []gin.HandlerFunc{admission}}
	mid.GET(api, "/rooms/:room/messages", srv.HandleRecentMessages, apiOpt)
	mid.GET(api, "/notifications/unread", srv.HandleUnreadCount, apiOpt)
	mid.POST(api, "/notifications/read", srv.HandleMarkRead, apiOpt)

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	go func() {
		logger.Infof("[main] listening on %s", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("http server failed: " + err.Error())
		}
	}()

	<-ctx.Done()
	logger.Info("[main] shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		logger.Warnf("[main] http shutdown: %v", err)
	}
	_ = os.Stdout.Sync()
}
