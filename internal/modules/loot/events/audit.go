package events

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"tsu-loot/internal/modules/loot/service"
	"tsu-loot/internal/pkg/log"
	"tsu-loot/internal/pkg/xerrors"
	"tsu-loot/internal/repository/interfaces"
)

// AuditListener 把每次掉落写入审计表
//
// 审计失败不影响掉落本身，只记录日志。
type AuditListener struct {
	repo   interfaces.DropRecordRepository
	logger log.Logger
}

// NewAuditListener 创建审计监听者
func NewAuditListener(repo interfaces.DropRecordRepository, logger log.Logger) *AuditListener {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &AuditListener{repo: repo, logger: logger}
}

// OnLootSpawned 写入每个归属键下的每个物品
func (l *AuditListener) OnLootSpawned(ctx context.Context, ev service.SpawnEvent) {
	var records []*interfaces.DropRecord
	for _, owner := range ev.Partition.Owners() {
		for _, item := range ev.Partition.Items(owner) {
			records = append(records, &interfaces.DropRecord{
				ID:          uuid.NewString(),
				ContainerID: int64(ev.ContainerID),
				Victim:      ev.Victim,
				ShortCode:   ev.ShortCode,
				OwnerID:     int64(owner),
				Shared:      owner == service.GeneralOwner,
				ItemCode:    item.ItemCode,
				Quantity:    item.Quantity,
				Quality:     sql.NullString{String: item.Quality, Valid: item.Quality != ""},
				SpawnedAt:   ev.SpawnedAt,
			})
		}
	}

	if err := l.repo.CreateBatch(ctx, records); err != nil {
		appErr := xerrors.NewDatabaseError("insert", "loot_runtime.drop_records", err).
			WithMetadata("container_id", ev.ContainerID)
		log.LogAppError(ctx, l.logger, "写入掉落审计失败", appErr)
	}
}

// OnLootDespawned 标记销毁时间与原因
func (l *AuditListener) OnLootDespawned(ctx context.Context, ev service.DespawnEvent) {
	if _, err := l.repo.MarkDespawned(ctx, ev.ContainerID, ev.SpawnedAt, string(ev.Reason), ev.DespawnedAt); err != nil {
		appErr := xerrors.NewDatabaseError("update", "loot_runtime.drop_records", err).
			WithMetadata("container_id", ev.ContainerID)
		log.LogAppError(ctx, l.logger, "更新掉落审计失败", appErr)
	}
}
