package impl

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tsu-loot/internal/repository/interfaces"
)

const dropRecordSchema = `
	CREATE SCHEMA IF NOT EXISTS loot_runtime;
	CREATE TABLE IF NOT EXISTS loot_runtime.drop_records (
		id             UUID PRIMARY KEY,
		container_id   BIGINT       NOT NULL,
		victim         TEXT         NOT NULL,
		short_code     TEXT         NOT NULL DEFAULT '',
		owner_id       BIGINT       NOT NULL,
		shared         BOOLEAN      NOT NULL DEFAULT FALSE,
		item_code      TEXT         NOT NULL,
		quantity       INTEGER      NOT NULL,
		quality        TEXT,
		spawned_at     TIMESTAMPTZ  NOT NULL,
		despawned_at   TIMESTAMPTZ,
		despawn_reason TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_drop_records_owner ON loot_runtime.drop_records (owner_id, spawned_at DESC);
	CREATE INDEX IF NOT EXISTS idx_drop_records_container ON loot_runtime.drop_records (container_id, spawned_at);
`

const dropRecordColumns = `id, container_id, victim, short_code, owner_id, shared, item_code, quantity,
		quality, spawned_at, despawned_at, despawn_reason`

type dropRecordRepositoryImpl struct {
	db *sql.DB
}

// NewDropRecordRepository 创建掉落审计仓储实例
func NewDropRecordRepository(db *sql.DB) interfaces.DropRecordRepository {
	return &dropRecordRepositoryImpl{db: db}
}

func (r *dropRecordRepositoryImpl) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, dropRecordSchema); err != nil {
		return fmt.Errorf("创建掉落审计表失败: %w", err)
	}
	return nil
}

func (r *dropRecordRepositoryImpl) CreateBatch(ctx context.Context, records []*interfaces.DropRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO loot_runtime.drop_records (
			id, container_id, victim, short_code, owner_id, shared,
			item_code, quantity, quality, spawned_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`
	for _, rec := range records {
		_, err := tx.ExecContext(ctx, query,
			rec.ID,
			rec.ContainerID,
			rec.Victim,
			rec.ShortCode,
			rec.OwnerID,
			rec.Shared,
			rec.ItemCode,
			rec.Quantity,
			rec.Quality,
			rec.SpawnedAt,
		)
		if err != nil {
			return fmt.Errorf("插入掉落记录失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交掉落记录失败: %w", err)
	}
	return nil
}

func (r *dropRecordRepositoryImpl) MarkDespawned(ctx context.Context, containerID uint32, spawnedAt time.Time, reason string, despawnedAt time.Time) (int64, error) {
	query := `
		UPDATE loot_runtime.drop_records
		SET despawned_at = $1, despawn_reason = $2
		WHERE container_id = $3 AND spawned_at = $4 AND despawned_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, despawnedAt, reason, int64(containerID), spawnedAt)
	if err != nil {
		return 0, fmt.Errorf("更新掉落记录失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("获取更新行数失败: %w", err)
	}
	return n, nil
}

func (r *dropRecordRepositoryImpl) ListRecent(ctx context.Context, limit int) ([]*interfaces.DropRecord, error) {
	query := `SELECT ` + dropRecordColumns + `
		FROM loot_runtime.drop_records
		ORDER BY spawned_at DESC
		LIMIT $1`
	return r.query(ctx, "查询最近掉落记录失败", query, normalizeLimit(limit))
}

func (r *dropRecordRepositoryImpl) ListByOwner(ctx context.Context, ownerID int64, limit int) ([]*interfaces.DropRecord, error) {
	query := `SELECT ` + dropRecordColumns + `
		FROM loot_runtime.drop_records
		WHERE owner_id = $1
		ORDER BY spawned_at DESC
		LIMIT $2`
	return r.query(ctx, "查询玩家掉落记录失败", query, ownerID, normalizeLimit(limit))
}

func (r *dropRecordRepositoryImpl) query(ctx context.Context, failMsg, query string, args ...interface{}) ([]*interfaces.DropRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", failMsg, err)
	}
	defer rows.Close()

	var out []*interfaces.DropRecord
	for rows.Next() {
		rec := &interfaces.DropRecord{}
		if err := rows.Scan(
			&rec.ID,
			&rec.ContainerID,
			&rec.Victim,
			&rec.ShortCode,
			&rec.OwnerID,
			&rec.Shared,
			&rec.ItemCode,
			&rec.Quantity,
			&rec.Quality,
			&rec.SpawnedAt,
			&rec.DespawnedAt,
			&rec.DespawnReason,
		); err != nil {
			return nil, fmt.Errorf("%s: %w", failMsg, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", failMsg, err)
	}
	return out, nil
}
