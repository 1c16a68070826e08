package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"roomchat_server/internal/config"
	"roomchat_server/internal/dao/gateway"
	dao "roomchat_server/internal/dao/mysql"
	myredis "roomchat_server/internal/dao/redis"
	"roomchat_server/internal/handler"
	"roomchat_server/internal/https_server"
	"roomchat_server/internal/infrastructure/logger"
	"roomchat_server/internal/infrastructure/middleware"
	mq "roomchat_server/internal/infrastructure/mq"
	"roomchat_server/internal/service"
	"roomchat_server/internal/service/chat"
	"roomchat_server/pkg/constants"
	"roomchat_server/pkg/util/jwt"
	"roomchat_server/pkg/util/snowflake"
	"roomchat_server/pkg/validate"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径，留空时按默认路径查找")
	flag.Parse()

	// 1. 加载配置
	conf := config.GetConfig()
	if *configPath != "" {
		c, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("load config failed: %v", err)
		}
		conf = c
	}

	// 2. 初始化日志
	if err := logger.Init(&conf.LogConfig, conf.Mode); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer func() { _ = zap.L().Sync() }()
	zap.L().Info("日志初始化成功")

	// 3. 参数校验翻译器，gin binding 和实时事件共用
	if err := validate.InitTrans(conf.Locale); err != nil {
		zap.L().Fatal("init validator translator failed", zap.Error(err))
	}

	// 4. 初始化 JWT 和雪花 ID
	jwt.Init(conf.JWTConfig.Secret, conf.JWTConfig.AccessTokenExpiry, conf.JWTConfig.RefreshTokenExpiry)
	snowflake.Init(conf.SnowflakeConfig.MachineID)

	// 5. 持久层
	store, err := newStore(conf)
	if err != nil {
		zap.L().Fatal("初始化存储失败", zap.Error(err))
	}
	zap.L().Info("存储初始化成功", zap.String("store_mode", conf.GatewayConfig.StoreMode))

	// 6. Redis（可选）：缓存、会话吊销、背板、集群在线计数
	var redisClient *goredis.Client
	var cache myredis.AsyncCacheService = myredis.NopCache{}
	if conf.RedisConfig.Host != "" {
		redisClient, err = myredis.NewClient(&conf.RedisConfig)
		if err != nil {
			zap.L().Fatal("Redis 初始化失败", zap.Error(err))
		}
		redisCache := myredis.NewRedisCache(redisClient, 10, 1000)
		defer redisCache.Close()
		cache = redisCache
		zap.L().Info("Redis 初始化成功")
	}

	// 7. 背板和在线计数
	processID := uuid.NewString()
	backplane, counter, err := newBackplane(conf, redisClient, processID)
	if err != nil {
		zap.L().Fatal("初始化背板失败", zap.Error(err))
	}

	// 8. 聊天服务器
	chatServer := chat.NewServer(store, cache, backplane, counter, chat.Options{
		ProcessID:      processID,
		HistoryLimit:   conf.GatewayConfig.HistoryLimit,
		FloodInterval:  conf.GatewayConfig.FloodInterval(),
		PersistTimeout: conf.GatewayConfig.PersistTimeout(),
		CacheTimeout:   constants.CACHE_TIMEOUT,
		StrictRoomJoin: conf.GatewayConfig.StrictRoomJoin,
		SendQueueSize:  conf.GatewayConfig.SendQueueSize,
		OverflowPolicy: chat.ParseOverflowPolicy(conf.GatewayConfig.OverflowPolicy),
	})

	// 9. Service 层和 Handler 层（依赖注入）
	services := service.NewServices(conf, service.Deps{
		Store:        store,
		Cache:        cache,
		Notifier:     chatServer,
		CacheIsRedis: redisClient != nil,
	})
	wsGateway := chat.NewWsGateway(chatServer, services.Auth, chat.WsConfig{
		HandshakeTimeout: conf.GatewayConfig.HandshakeTimeout(),
		PingInterval:     conf.GatewayConfig.PingInterval(),
		PongWait:         conf.GatewayConfig.PongWait(),
		WriteWait:        conf.GatewayConfig.WriteWait(),
		MaxFrameBytes:    conf.GatewayConfig.MaxFrameBytes,
	})
	handlers := handler.NewHandlers(services, wsGateway, store)

	limiter := middleware.NewLimiterPool(conf.RateLimitConfig.AuthRps, conf.RateLimitConfig.AuthBurst)
	defer limiter.Shutdown()

	engine := https_server.Init(conf, handlers, services.Auth, limiter)
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", conf.MainConfig.Host, conf.MainConfig.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 10. 启动：背板订阅 + HTTP 服务，收到信号后统一收尾
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	if err := chatServer.Start(gctx); err != nil {
		zap.L().Fatal("订阅背板失败", zap.Error(err))
	}

	g.Go(func() error {
		zap.L().Info("server listening", zap.String("addr", srv.Addr), zap.String("process_id", processID))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("关闭服务器...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		// 先关闭 WebSocket 连接，再停 HTTP；被劫持的连接不受 srv.Shutdown 管理
		if err := chatServer.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("chat server shutdown", zap.Error(err))
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zap.L().Error("server exited with error", zap.Error(err))
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	zap.L().Info("服务器已关闭")
}

// newStore storeMode=memory 时使用进程内存储，仅用于开发和演示
func newStore(conf *config.Config) (gateway.Gateway, error) {
	switch conf.GatewayConfig.StoreMode {
	case "memory":
		return gateway.NewMemoryGateway(), nil
	case "mysql":
		repos, err := dao.Init(&conf.MysqlConfig)
		if err != nil {
			return nil, err
		}
		return gateway.NewGormGateway(repos), nil
	default:
		return nil, fmt.Errorf("unknown storeMode %q", conf.GatewayConfig.StoreMode)
	}
}

// newBackplane 按 backplaneMode 选择跨进程广播实现
// 多进程部署时在线计数必须放在 Redis，否则各进程只能看到自己的连接
func newBackplane(conf *config.Config, client *goredis.Client, processID string) (chat.Backplane, chat.PresenceCounter, error) {
	var counter chat.PresenceCounter = chat.NewLocalPresenceCounter()
	if client != nil && conf.GatewayConfig.BackplaneMode != "local" {
		counter = myredis.NewPresenceCounter(client, processID, 0)
	}

	switch conf.GatewayConfig.BackplaneMode {
	case "local":
		return chat.LocalBackplane{}, counter, nil
	case "redis":
		if client == nil {
			return nil, nil, errors.New("backplaneMode redis requires redisConfig.host")
		}
		return myredis.NewBackplane(client, myredis.DefaultChannelPrefix), counter, nil
	case "kafka":
		if client == nil {
			zap.L().Warn("kafka backplane without redis: presence is per process")
		}
		return mq.NewKafkaBackplane(conf.KafkaConfig, processID), counter, nil
	default:
		return nil, nil, fmt.Errorf("unknown backplaneMode %q", conf.GatewayConfig.BackplaneMode)
	}
}
