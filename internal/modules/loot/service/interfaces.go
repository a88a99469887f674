package service

import (
	"context"
	"time"

	"tsu-loot/internal/protocol/lootpb"
)

// EntityID 世界中实体的稳定 ID
type EntityID int64

// GeneralOwner 公共掉落的归属键，任何有资格的查看者都可以拾取。不是合法的实体 ID。
const GeneralOwner EntityID = -1

// Combatant 仇恨列表中的任意参与者（玩家、NPC、召唤物……）
type Combatant interface {
	ID() EntityID
}

// Player 可以拥有掉落的参与者
// Send 必须是非阻塞的投递，调用方不等待送达
type Player interface {
	Combatant
	Position() lootpb.Vector3
	Send(msg lootpb.Message)
}

// Victim 死亡的 NPC
type Victim interface {
	Name() string
	Position() lootpb.Vector3
	// LootTableNames 返回公共掉落表与个人掉落表的名称
	LootTableNames() (shared, perContributor []string)
	LootConfigShortCode() string
	// Aggressors 按加入仇恨列表的顺序返回参与击杀的实体
	Aggressors() []Combatant
}

// Table 掉落表引用
type Table interface {
	Name() string
}

// Item 一个掉落单位，对本模块来说不可再分
type Item struct {
	ItemCode string `json:"item_code"`
	Quantity int    `json:"quantity"`
	Quality  string `json:"quality,omitempty"`
}

// Generator 掉落生成器，对同一张表可能返回空结果
type Generator interface {
	GenerateLoot(table Table) []Item
}

// TableProvider 按名称解析掉落表。未知名称被跳过，只有基础设施故障才返回错误。
type TableProvider interface {
	GetTables(ctx context.Context, names []string) ([]Table, error)
}

// SpawnEvent 容器生成事件
type SpawnEvent struct {
	ContainerID uint32
	Victim      string
	Position    lootpb.Vector3
	ShortCode   string
	Partition   *Partition
	Viewers     []EntityID
	SpawnedAt   time.Time
	Deadline    time.Time
}

// DespawnEvent 容器销毁事件
type DespawnEvent struct {
	ContainerID uint32
	Victim      string
	Reason      DespawnReason
	SpawnedAt   time.Time
	DespawnedAt time.Time
}

// Listener 关心容器生命周期的一方（事件总线、审计……）
// 回调不持有注册表的锁，但在生命周期的关键路径上执行，不应长时间阻塞。
type Listener interface {
	OnLootSpawned(ctx context.Context, ev SpawnEvent)
	OnLootDespawned(ctx context.Context, ev DespawnEvent)
}
