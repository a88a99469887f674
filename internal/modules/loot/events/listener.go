// Package events 把容器生命周期广播到 NATS。
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tsu-loot/internal/modules/loot/service"
	"tsu-loot/internal/pkg/log"
	"tsu-loot/internal/pkg/metrics"
	"tsu-loot/internal/pkg/notify"
	"tsu-loot/internal/protocol/lootpb"
)

// 事件类型
const (
	TypeSpawned   = "loot.spawned"
	TypeDespawned = "loot.despawned"
)

// OwnerItems 某个归属键下的物品
type OwnerItems struct {
	OwnerID int64          `json:"owner_id"`
	Shared  bool           `json:"shared"`
	Items   []service.Item `json:"items"`
}

// LifecycleEvent 对外广播的容器事件
type LifecycleEvent struct {
	EventID     string          `json:"event_id"`
	Type        string          `json:"type"`
	ContainerID uint32          `json:"container_id"`
	Victim      string          `json:"victim"`
	ShortCode   string          `json:"short_code,omitempty"`
	Position    *lootpb.Vector3 `json:"position,omitempty"`
	Owners      []OwnerItems    `json:"owners,omitempty"`
	Viewers     []int64         `json:"viewers,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Deadline    *time.Time      `json:"deadline,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// MessageID 用作 Nats-Msg-Id，重复投递时下游按此去重
func (e LifecycleEvent) MessageID() string { return e.EventID }

// PublishFunc 发布函数，默认为 notify.PublishLootEvent
type PublishFunc func(ctx context.Context, subject string, payload interface{}) error

// NatsListener 实现 service.Listener，把生命周期事件发布到 NATS
type NatsListener struct {
	publish PublishFunc
	logger  log.Logger
	metrics *metrics.ResourceMetrics
}

// NewNatsListener publish 为空时使用全局 NATS 连接
func NewNatsListener(publish PublishFunc, logger log.Logger, m *metrics.ResourceMetrics) *NatsListener {
	if publish == nil {
		publish = notify.PublishLootEvent
	}
	if logger == nil {
		logger = log.GetLogger()
	}
	return &NatsListener{publish: publish, logger: logger, metrics: m}
}

// OnLootSpawned 广播生成事件
func (l *NatsListener) OnLootSpawned(ctx context.Context, ev service.SpawnEvent) {
	pos := ev.Position
	deadline := ev.Deadline
	out := LifecycleEvent{
		EventID:     uuid.NewString(),
		Type:        TypeSpawned,
		ContainerID: ev.ContainerID,
		Victim:      ev.Victim,
		ShortCode:   ev.ShortCode,
		Position:    &pos,
		Owners:      ownersOf(ev.Partition),
		Deadline:    &deadline,
		OccurredAt:  ev.SpawnedAt,
	}
	for _, id := range ev.Viewers {
		out.Viewers = append(out.Viewers, int64(id))
	}
	l.send(ctx, notify.SubjectLootSpawned, out)
}

// OnLootDespawned 广播销毁事件
func (l *NatsListener) OnLootDespawned(ctx context.Context, ev service.DespawnEvent) {
	l.send(ctx, notify.SubjectLootDespawned, LifecycleEvent{
		EventID:     uuid.NewString(),
		Type:        TypeDespawned,
		ContainerID: ev.ContainerID,
		Victim:      ev.Victim,
		Reason:      string(ev.Reason),
		OccurredAt:  ev.DespawnedAt,
	})
}

func (l *NatsListener) send(ctx context.Context, subject string, ev LifecycleEvent) {
	err := l.publish(ctx, subject, ev)
	if l.metrics != nil {
		l.metrics.RecordNatsPublish("lifecycle", err, "")
	}
	if err != nil {
		l.logger.WarnContext(ctx, "发布掉落事件失败",
			log.String("subject", subject),
			log.Uint32("container_id", ev.ContainerID),
			log.Any("error", err),
		)
	}
}

func ownersOf(p *service.Partition) []OwnerItems {
	owners := p.Owners()
	out := make([]OwnerItems, 0, len(owners))
	for _, owner := range owners {
		out = append(out, OwnerItems{
			OwnerID: int64(owner),
			Shared:  owner == service.GeneralOwner,
			Items:   p.Items(owner),
		})
	}
	return out
}
