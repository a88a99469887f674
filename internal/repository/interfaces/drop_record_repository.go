package interfaces

import (
	"context"
	"database/sql"
	"time"
)

// DropRecord 掉落审计记录，每个归属键下的每个物品一行
type DropRecord struct {
	ID            string         `json:"id"`
	ContainerID   int64          `json:"container_id"`
	Victim        string         `json:"victim"`
	ShortCode     string         `json:"short_code"`
	OwnerID       int64          `json:"owner_id"`
	Shared        bool           `json:"shared"`
	ItemCode      string         `json:"item_code"`
	Quantity      int            `json:"quantity"`
	Quality       sql.NullString `json:"-"`
	SpawnedAt     time.Time      `json:"spawned_at"`
	DespawnedAt   sql.NullTime   `json:"-"`
	DespawnReason sql.NullString `json:"-"`
}

// DropRecordRepository 掉落审计仓储接口
type DropRecordRepository interface {
	// EnsureSchema 创建审计表（幂等）
	EnsureSchema(ctx context.Context) error

	// CreateBatch 在同一事务中写入一次生成的所有记录
	CreateBatch(ctx context.Context, records []*DropRecord) error

	// MarkDespawned 标记某次生成的容器已销毁，返回更新行数
	MarkDespawned(ctx context.Context, containerID uint32, spawnedAt time.Time, reason string, despawnedAt time.Time) (int64, error)

	// ListRecent 查询最近的掉落记录
	ListRecent(ctx context.Context, limit int) ([]*DropRecord, error)

	// ListByOwner 查询某个玩家的掉落记录
	ListByOwner(ctx context.Context, ownerID int64, limit int) ([]*DropRecord, error)
}
