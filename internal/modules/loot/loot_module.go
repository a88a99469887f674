// internal/modules/loot/loot_module.go
package loot

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/liangdas/mqant/conf"
	"github.com/liangdas/mqant/module"
	basemodule "github.com/liangdas/mqant/module/base"
	"github.com/liangdas/mqant/server"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"

	custommiddleware "tsu-loot/internal/middleware"
	"tsu-loot/internal/modules/loot/events"
	"tsu-loot/internal/modules/loot/generator"
	"tsu-loot/internal/modules/loot/handler"
	"tsu-loot/internal/modules/loot/service"
	"tsu-loot/internal/modules/loot/tasks"
	"tsu-loot/internal/modules/loot/transport"
	"tsu-loot/internal/pkg/config"
	"tsu-loot/internal/pkg/log"
	"tsu-loot/internal/pkg/metrics"
	natshealth "tsu-loot/internal/pkg/nats"
	"tsu-loot/internal/pkg/notify"
	redisClient "tsu-loot/internal/pkg/redis"
	"tsu-loot/internal/pkg/response"
	"tsu-loot/internal/pkg/validator"
	"tsu-loot/internal/protocol/lootpb"
	"tsu-loot/internal/repository/impl"
	"tsu-loot/internal/repository/interfaces"
)

const serviceName = "loot"

// LootModule 掉落容器服务
type LootModule struct {
	basemodule.BaseModule

	cfg    *config.LootConfig
	logger log.Logger

	// Infrastructure
	nc         *nats.Conn
	db         *sql.DB
	redis      *redisClient.Client
	httpServer *echo.Echo
	natsHealth *natshealth.HealthChecker
	respWriter response.Writer

	// Domain
	catalog    *generator.Catalog
	records    interfaces.DropRecordRepository
	spawner    *service.Spawner
	sessions   *transport.Sessions
	deaths     *transport.DeathHandler
	deathSub   *nats.Subscription
	rpcHandler *handler.LootRPCHandler
	sweepTask  *tasks.LootSweepTask

	cancel context.CancelFunc
}

// GetType returns module type
func (m *LootModule) GetType() string {
	return "loot"
}

// Version returns module version
func (m *LootModule) Version() string {
	return "1.0.0"
}

// OnAppConfigurationLoaded 当App初始化时调用
func (m *LootModule) OnAppConfigurationLoaded(app module.App) {
	m.BaseModule.OnAppConfigurationLoaded(app)
}

// OnInit module initialization
func (m *LootModule) OnInit(app module.App, settings *conf.ModuleSettings) {
	metrics.SetServiceName(serviceName)
	// TTL = 30s, 心跳间隔 = 15s (TTL 必须大于心跳间隔)
	m.BaseModule.OnInit(m, app, settings,
		server.RegisterInterval(15*time.Second),
		server.RegisterTTL(30*time.Second),
	)

	var moduleSettings map[string]interface{}
	if settings != nil {
		moduleSettings = settings.Settings
	}

	// 1. 配置与日志
	cfg, err := config.LoadLootConfig(moduleSettings)
	if err != nil {
		panic(fmt.Sprintf("加载掉落服务配置失败: %v", err))
	}
	m.cfg = cfg
	log.Init(log.ParseLevel(cfg.LogLevel), cfg.Environment)
	m.logger = log.GetLogger().With(log.String("module", serviceName))
	m.logger.Info("掉落服务配置已加载", log.Any("config", cfg.LogFields()))

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	// 2. NATS（由 main 注入）
	m.nc = app.Options().Nats
	if m.nc == nil {
		m.nc = notify.Conn()
	}
	if m.nc == nil {
		panic("NATS 连接未初始化")
	}
	if notify.Conn() == nil {
		notify.SetNatsConn(m.nc)
	}
	m.natsHealth = natshealth.NewHealthChecker(m.nc, 10*time.Second)
	go m.natsHealth.Start(ctx)

	// 3. 审计数据库（可选）
	if err := m.initDatabase(ctx); err != nil {
		panic(fmt.Sprintf("初始化审计数据库失败: %v", err))
	}

	// 4. Redis（可选）
	if err := m.initRedis(); err != nil {
		panic(fmt.Sprintf("初始化 Redis 失败: %v", err))
	}

	// 5. 掉落目录与注册表
	if err := m.initSpawner(); err != nil {
		panic(fmt.Sprintf("初始化掉落注册表失败: %v", err))
	}

	// 6. 死亡事件订阅
	sub, err := m.deaths.Subscribe(m.nc, cfg.DeathSubject)
	if err != nil {
		panic(fmt.Sprintf("订阅死亡事件失败: %v", err))
	}
	m.deathSub = sub

	// 7. HTTP 管理接口
	m.initHTTPServer()

	// 8. RPC
	m.setupRPCMethods()

	// 9. 巡检任务
	m.sweepTask = tasks.NewLootSweepTask(m.spawner, cfg.SweepSpec, metrics.DefaultLootMetrics, serviceName, m.logger)
	if err := m.sweepTask.Start(); err != nil {
		panic(fmt.Sprintf("启动巡检任务失败: %v", err))
	}

	// 10. Start HTTP server in background
	go m.startHTTPServer()
	if cfg.ConsulAddress != "" {
		go m.registerHTTPService()
	}

	m.logger.Info("Loot Module 初始化完成",
		log.String("death_subject", cfg.DeathSubject),
		log.String("http_port", cfg.HTTPPort))
}

// initDatabase 连接审计库并建表，未配置时跳过审计
func (m *LootModule) initDatabase(ctx context.Context) error {
	if m.cfg.DatabaseURL == "" {
		m.logger.Warn("未配置 TSU_LOOT_DATABASE_URL，掉落审计已禁用")
		return nil
	}

	db, err := sql.Open("postgres", m.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	records := impl.NewDropRecordRepository(db)
	if err := records.EnsureSchema(pingCtx); err != nil {
		db.Close()
		return err
	}

	m.db = db
	m.records = records
	m.logger.Info("审计数据库连接成功")

	go m.startDBPoolMonitoring(ctx, db)
	return nil
}

// initRedis 连接 Redis 掉落表缓存，未配置时直接使用本地目录
func (m *LootModule) initRedis() error {
	if m.cfg.RedisHost == "" {
		m.logger.Info("未配置 REDIS_HOST，掉落表直接从本地目录读取")
		return nil
	}

	client, err := redisClient.NewClient(redisClient.Config{
		Host:     m.cfg.RedisHost,
		Port:     m.cfg.RedisPort,
		Password: m.cfg.RedisPassword,
		DB:       m.cfg.RedisDB,
	}, metrics.GetServiceName())
	if err != nil {
		return err
	}

	m.redis = client
	m.logger.Info("Redis 连接成功",
		log.String("host", m.cfg.RedisHost),
		log.Int("port", m.cfg.RedisPort),
		log.Int("db", m.cfg.RedisDB))
	return nil
}

func (m *LootModule) initSpawner() error {
	catalog, err := generator.LoadCatalog(m.cfg.CatalogPath)
	if err != nil {
		return err
	}
	m.catalog = catalog

	var tables service.TableProvider = generator.NewCatalogProvider(catalog, m.logger)
	if m.redis != nil {
		tables = generator.NewRedisTableProvider(m.redis, catalog, m.logger)
	}

	listeners := []service.Listener{
		events.NewNatsListener(nil, m.logger, metrics.DefaultResourceMetrics),
	}
	if m.records != nil {
		listeners = append(listeners, events.NewAuditListener(m.records, m.logger))
	}

	m.spawner = service.NewSpawner(service.Deps{
		Tables:    tables,
		Generator: generator.NewWeightedGenerator(0),
		Listeners: listeners,
		Logger:    m.logger,
		Metrics:   metrics.DefaultLootMetrics,
	}, service.Options{
		DespawnAfter:     m.cfg.DespawnTimeout,
		LootingRadius:    m.cfg.LootingRadius,
		SweepGrace:       m.cfg.SweepGrace,
		StrictInvariants: m.cfg.Debug,
		MaxIdentifiers:   m.cfg.MaxIdentifiers,
		Service:          serviceName,
	})

	m.sessions = transport.NewSessions(m.nc, m.cfg.SessionSubject, m.logger, metrics.DefaultResourceMetrics)
	m.deaths = transport.NewDeathHandler(m.spawner, catalog, m.sessions, m.logger)
	m.rpcHandler = handler.NewLootRPCHandler(m.spawner, func(id service.EntityID) service.Player {
		return m.sessions.Player(id, lootpb.Vector3{})
	}, m.logger)
	return nil
}

// initHTTPServer 管理接口、健康检查与指标
func (m *LootModule) initHTTPServer() {
	m.respWriter = response.NewResponseHandler(m.logger, m.cfg.Environment)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validator.New()

	// ========== 中间件配置（顺序很重要！） ==========
	e.Use(custommiddleware.TraceID())
	e.Use(custommiddleware.RecoveryMiddleware(m.respWriter, m.logger))
	e.Use(custommiddleware.LoggingMiddleware(m.logger))
	e.Use(metrics.Middleware(metrics.DefaultHTTPMetrics, serviceName))

	health := &HealthHandler{module: m}
	e.GET("/health", health.Health)
	e.GET("/metrics", metrics.EchoHandler())

	admin := handler.NewAdminHandler(m.spawner, m.records, m.respWriter)
	admin.RegisterRoutes(e.Group("/api/v1/admin",
		custommiddleware.RateLimitMiddleware(m.respWriter, m.cfg.AdminRateLimit)))

	m.httpServer = e
}

// startHTTPServer starts HTTP server
func (m *LootModule) startHTTPServer() {
	m.logger.Info("启动 HTTP 服务器", log.String("port", m.cfg.HTTPPort))
	if err := m.httpServer.Start(":" + m.cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
		m.logger.Error("HTTP 服务器异常退出", err)
	}
}

// setupRPCMethods 注册 RPC 方法
// 供 game-server 在玩家进入视野、拾取、重连时调用
func (m *LootModule) setupRPCMethods() {
	m.GetServer().RegisterGO("QueryNearbyLoot", m.rpcHandler.QueryNearbyLoot)
	m.GetServer().RegisterGO("ResendLoot", m.rpcHandler.ResendLoot)
	m.GetServer().RegisterGO("DetachLootViewer", m.rpcHandler.DetachLootViewer)
	m.GetServer().RegisterGO("RemoveLoot", m.rpcHandler.RemoveLoot)
	m.logger.Info("Loot Module RPC 处理器注册完成")
}

// startDBPoolMonitoring 每 30 秒报告一次连接池统计信息到 Prometheus
func (m *LootModule) startDBPoolMonitoring(ctx context.Context, db *sql.DB) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			metrics.DefaultResourceMetrics.RecordDBPoolStats(
				metrics.GetServiceName(),
				"postgres",
				stats.OpenConnections,
				stats.InUse,
				stats.Idle,
			)
		}
	}
}

// Run module run
func (m *LootModule) Run(closeSig chan bool) {
	m.logger.Info("Loot Module 开始运行")
	<-closeSig
}

// OnDestroy module destroy
func (m *LootModule) OnDestroy() {
	m.logger.Info("Loot Module 正在关闭")

	if m.sweepTask != nil {
		m.sweepTask.Stop()
	}

	// 先停止接收死亡事件，再销毁所有容器并通知查看者
	if m.deathSub != nil {
		if err := m.deathSub.Unsubscribe(); err != nil {
			m.logger.Warn("取消死亡事件订阅失败", log.Any("error", err))
		}
	}
	if m.spawner != nil {
		m.spawner.Shutdown(context.Background())
	}

	if m.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.httpServer.Shutdown(ctx); err != nil {
			m.logger.Warn("关闭 HTTP 服务器失败", log.Any("error", err))
		}
		cancel()
	}

	if m.natsHealth != nil {
		m.natsHealth.Stop()
	}
	if m.cancel != nil {
		m.cancel()
	}

	if m.redis != nil {
		m.redis.Close()
	}
	if m.db != nil {
		if err := m.db.Close(); err != nil {
			m.logger.Warn("关闭审计数据库失败", log.Any("error", err))
		}
	}

	m.BaseModule.OnDestroy()
	m.logger.Info("Loot Module 已关闭")
}

// Module creates Loot module instance
func Module() module.Module {
	return new(LootModule)
}
