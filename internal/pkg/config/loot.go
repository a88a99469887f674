package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// 默认值与参考行为保持一致
const (
	DefaultDespawnTimeout = 60 * time.Second
	DefaultLootingRadius  = 1000.0
	DefaultSweepSpec      = "*/30 * * * * *"
	DefaultSweepGrace     = 5 * time.Second
	DefaultMaxIdentifiers = 1 << 20
	DefaultAdminRateLimit = 20.0
)

// LootConfig 掉落服务配置
type LootConfig struct {
	Environment string `validate:"oneof=development production test"`
	LogLevel    string `validate:"required"`

	// Debug 打开后，标识符池等不变量被破坏时直接 panic
	Debug bool

	DespawnTimeout time.Duration `validate:"gt=0"`
	LootingRadius  float64       `validate:"gt=0"`
	SweepSpec      string        `validate:"required"`
	SweepGrace     time.Duration `validate:"gte=0"`
	MaxIdentifiers uint32        `validate:"gt=0"`

	CatalogPath string `validate:"required"`

	NatsAddress    string `validate:"required"`
	DeathSubject   string `validate:"required"`
	SessionSubject string `validate:"required,contains=%d"`

	RedisHost     string
	RedisPort     int `validate:"gte=0,lte=65535"`
	RedisPassword string
	RedisDB       int `validate:"gte=0"`

	DatabaseURL string
	HTTPPort    string `validate:"required,numeric"`

	// AdminRateLimit 管理接口每个客户端每秒请求数
	AdminRateLimit float64 `validate:"gt=0"`

	// ConsulAddress 为空时不注册 HTTP 服务
	ConsulAddress string
}

// LoadLootConfig 从环境变量与 mqant 模块配置加载掉落服务配置
func LoadLootConfig(settings map[string]interface{}) (*LootConfig, error) {
	cfg := &LootConfig{
		Environment:    GetEnvOrDefault("ENVIRONMENT", "development"),
		LogLevel:       GetEnvOrDefault("LOG_LEVEL", "info"),
		Debug:          GetBoolEnvOrDefault("LOOT_DEBUG", false),
		DespawnTimeout: GetDurationEnvOrDefault("LOOT_DESPAWN_TIMEOUT", DefaultDespawnTimeout),
		LootingRadius:  GetFloatEnvOrDefault("LOOT_LOOTING_RADIUS", DefaultLootingRadius),
		SweepSpec:      GetEnvOrDefault("LOOT_SWEEP_SPEC", DefaultSweepSpec),
		SweepGrace:     GetDurationEnvOrDefault("LOOT_SWEEP_GRACE", DefaultSweepGrace),
		MaxIdentifiers: uint32(GetIntEnvOrDefault("LOOT_MAX_IDENTIFIERS", DefaultMaxIdentifiers)),
		CatalogPath:    SettingString(settings, "LOOT_CATALOG_PATH", "catalog_path", "./configs/loot/catalog.yaml"),
		NatsAddress:    GetEnvOrDefault("NATS_ADDRESS", "localhost:4222"),
		DeathSubject:   GetEnvOrDefault("LOOT_DEATH_SUBJECT", "world.npc.dead"),
		SessionSubject: GetEnvOrDefault("LOOT_SESSION_SUBJECT", "session.%d.push"),
		RedisHost:      GetEnvOrDefault("REDIS_HOST", ""),
		RedisPort:      GetIntEnvOrDefault("REDIS_PORT", 6379),
		RedisPassword:  GetEnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:        GetIntEnvOrDefault("REDIS_DB", 0),
		DatabaseURL:    SettingString(settings, "TSU_LOOT_DATABASE_URL", "database_url", ""),
		HTTPPort:       SettingString(settings, "LOOT_HTTP_PORT", "http_port", "8074"),
		ConsulAddress:  SettingString(settings, "CONSUL_HTTP_ADDRESS", "consul_address", ""),
		AdminRateLimit: GetFloatEnvOrDefault("LOOT_ADMIN_RATE_LIMIT", DefaultAdminRateLimit),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *LootConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("掉落服务配置无效: %w", err)
	}
	return nil
}

// LogFields 返回可打印的配置（敏感字段已脱敏）
func (c *LootConfig) LogFields() map[string]any {
	return SanitizeConfigForLog(map[string]any{
		"environment":      c.Environment,
		"debug":            c.Debug,
		"despawn_timeout":  c.DespawnTimeout.String(),
		"looting_radius":   c.LootingRadius,
		"sweep_spec":       c.SweepSpec,
		"catalog_path":     c.CatalogPath,
		"nats_address":     c.NatsAddress,
		"death_subject":    c.DeathSubject,
		"redis_host":       c.RedisHost,
		"redis_password":   c.RedisPassword,
		"database_url":     c.DatabaseURL,
		"http_port":        c.HTTPPort,
		"consul_address":   c.ConsulAddress,
		"admin_rate_limit": c.AdminRateLimit,
	})
}
