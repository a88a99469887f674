// Package dto 掉落管理接口的请求与响应结构
package dto

import (
	"time"

	"tsu-loot/internal/modules/loot/service"
	"tsu-loot/internal/repository/interfaces"
)

// ContainerPathRequest 路径中携带容器 ID
type ContainerPathRequest struct {
	ContainerID uint32 `param:"id" validate:"required"`
}

// RemoveContainerRequest 管理端移除容器
type RemoveContainerRequest struct {
	ContainerID uint32 `param:"id" validate:"required"`
	Reason      string `query:"reason" validate:"despawn_reason"`
}

// DespawnReason 未指定时按管理操作处理
func (r *RemoveContainerRequest) DespawnReason() service.DespawnReason {
	if r.Reason == "" {
		return service.ReasonAdmin
	}
	return service.DespawnReason(r.Reason)
}

// NearbyLootRequest 查询某个实体附近可见的容器
type NearbyLootRequest struct {
	EntityID int64   `query:"entity_id" validate:"required"`
	X        float32 `query:"x"`
	Y        float32 `query:"y"`
	Z        float32 `query:"z"`
	Radius   float64 `query:"radius" validate:"gte=0"`
}

// DropRecordQuery 审计记录查询
type DropRecordQuery struct {
	OwnerID int64 `query:"owner_id" validate:"gte=0"`
	Limit   int   `query:"limit" validate:"gte=0,lte=500"`
}

// ContainerListResponse 容器列表
type ContainerListResponse struct {
	Items []service.ContainerInfo `json:"items"`
	Total int                     `json:"total"`
}

// RemoveContainerResponse 移除结果
type RemoveContainerResponse struct {
	ContainerID uint32 `json:"container_id"`
	Reason      string `json:"reason"`
}

// DropRecordResponse 审计记录，可空字段展开
type DropRecordResponse struct {
	ID            string     `json:"id"`
	ContainerID   int64      `json:"container_id"`
	Victim        string     `json:"victim"`
	ShortCode     string     `json:"short_code"`
	OwnerID       int64      `json:"owner_id"`
	Shared        bool       `json:"shared"`
	ItemCode      string     `json:"item_code"`
	Quantity      int        `json:"quantity"`
	Quality       string     `json:"quality,omitempty"`
	SpawnedAt     time.Time  `json:"spawned_at"`
	DespawnedAt   *time.Time `json:"despawned_at,omitempty"`
	DespawnReason string     `json:"despawn_reason,omitempty"`
}

// DropRecordListResponse 审计记录列表
type DropRecordListResponse struct {
	Items []DropRecordResponse `json:"items"`
	Total int                  `json:"total"`
}

// NewDropRecordResponse 仓储记录转响应
func NewDropRecordResponse(r *interfaces.DropRecord) DropRecordResponse {
	resp := DropRecordResponse{
		ID:          r.ID,
		ContainerID: r.ContainerID,
		Victim:      r.Victim,
		ShortCode:   r.ShortCode,
		OwnerID:     r.OwnerID,
		Shared:      r.Shared,
		ItemCode:    r.ItemCode,
		Quantity:    r.Quantity,
		SpawnedAt:   r.SpawnedAt,
	}
	if r.Quality.Valid {
		resp.Quality = r.Quality.String
	}
	if r.DespawnedAt.Valid {
		t := r.DespawnedAt.Time
		resp.DespawnedAt = &t
	}
	if r.DespawnReason.Valid {
		resp.DespawnReason = r.DespawnReason.String
	}
	return resp
}
