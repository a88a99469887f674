package generator

import (
	"context"
	"encoding/json"
	"time"

	"tsu-loot/internal/modules/loot/service"
	"tsu-loot/internal/pkg/log"
	"tsu-loot/internal/pkg/xerrors"
)

// DefaultKeyPrefix Redis 中掉落表的键前缀
const DefaultKeyPrefix = "loot:table:"

// CatalogProvider 直接从目录解析掉落表
type CatalogProvider struct {
	catalog *Catalog
	logger  log.Logger
}

// NewCatalogProvider 创建目录提供者
func NewCatalogProvider(catalog *Catalog, logger log.Logger) *CatalogProvider {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &CatalogProvider{catalog: catalog, logger: logger}
}

// GetTables 实现 service.TableProvider，未知表名记录告警后跳过
func (p *CatalogProvider) GetTables(ctx context.Context, names []string) ([]service.Table, error) {
	out := make([]service.Table, 0, len(names))
	for _, name := range names {
		t, ok := p.catalog.Table(name)
		if !ok {
			log.LogAppError(ctx, p.logger, "掉落表不存在，已跳过", xerrors.NewTableNotFoundError(name))
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// TableSource 批量读取序列化的掉落表（*redis.Client 实现）
type TableSource interface {
	GetMany(ctx context.Context, keys ...string) (map[string][]byte, error)
}

// TableSink 批量写入序列化的掉落表（*redis.Client 实现）
type TableSink interface {
	SetMany(ctx context.Context, values map[string][]byte, ttl time.Duration) error
}

// RedisTableProvider 从 Redis 读取运营下发的掉落表，缺失或损坏时回退到目录
type RedisTableProvider struct {
	source   TableSource
	fallback *Catalog
	prefix   string
	logger   log.Logger
}

// NewRedisTableProvider 创建 Redis 掉落表提供者，fallback 可以为空
func NewRedisTableProvider(source TableSource, fallback *Catalog, logger log.Logger) *RedisTableProvider {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &RedisTableProvider{
		source:   source,
		fallback: fallback,
		prefix:   DefaultKeyPrefix,
		logger:   logger.With(log.String("component", "redis_table_provider")),
	}
}

// GetTables 实现 service.TableProvider
//
// Redis 不可用且没有目录可回退时返回 CodeCacheError。
func (p *RedisTableProvider) GetTables(ctx context.Context, names []string) ([]service.Table, error) {
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = p.prefix + name
	}

	values, err := p.source.GetMany(ctx, keys...)
	if err != nil {
		if p.fallback == nil {
			return nil, xerrors.NewWithError(xerrors.CodeCacheError, "读取掉落表失败", err)
		}
		p.logger.WarnContext(ctx, "Redis 读取掉落表失败，回退到本地目录", log.Any("error", err))
		values = nil
	}

	out := make([]service.Table, 0, len(names))
	for i, name := range names {
		if raw, ok := values[keys[i]]; ok {
			t, err := decodeTable(raw)
			if err == nil {
				out = append(out, t)
				continue
			}
			p.logger.WarnContext(ctx, "Redis 中的掉落表无法解析", log.String("table", name), log.Any("error", err))
		}

		if p.fallback != nil {
			if t, ok := p.fallback.Table(name); ok {
				out = append(out, t)
				continue
			}
		}
		log.LogAppError(ctx, p.logger, "掉落表不存在，已跳过", xerrors.NewTableNotFoundError(name))
	}
	return out, nil
}

func decodeTable(raw []byte) (*TableSpec, error) {
	var t TableSpec
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// SyncTables 把目录中的所有掉落表写入 Redis，返回写入数量
func SyncTables(ctx context.Context, sink TableSink, catalog *Catalog, ttl time.Duration) (int, error) {
	values := make(map[string][]byte, len(catalog.Tables))
	for _, t := range catalog.Tables {
		b, err := json.Marshal(t)
		if err != nil {
			return 0, xerrors.NewWithError(xerrors.CodeInternalError, "序列化掉落表失败", err).
				WithMetadata("table", t.TableName)
		}
		values[DefaultKeyPrefix+t.TableName] = b
	}
	if err := sink.SetMany(ctx, values, ttl); err != nil {
		return 0, xerrors.NewWithError(xerrors.CodeCacheError, "写入掉落表失败", err)
	}
	return len(values), nil
}
