package transport

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"tsu-loot/internal/modules/loot/generator"
	"tsu-loot/internal/modules/loot/service"
	"tsu-loot/internal/pkg/log"
	"tsu-loot/internal/pkg/xerrors"
	"tsu-loot/internal/protocol/lootpb"
)

// 参与者类型
const (
	KindPlayer = "player"
	KindNPC    = "npc"
)

// Position 事件中的坐标
type Position struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

func (p Position) vector() lootpb.Vector3 {
	return lootpb.Vector3{X: p.X, Y: p.Y, Z: p.Z}
}

// Aggressor 仇恨列表中的一项
type Aggressor struct {
	ID       int64    `json:"id"`
	Kind     string   `json:"kind"`
	Position Position `json:"position"`
}

// DeathEvent 世界服务发布的 NPC 死亡事件
type DeathEvent struct {
	EventID    string      `json:"event_id"`
	NPCID      int64       `json:"npc_id"`
	Prototype  string      `json:"prototype"`
	Position   Position    `json:"position"`
	Aggressors []Aggressor `json:"aggressors"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// Spawner 死亡事件的处理方
type Spawner interface {
	OnEntityDeath(ctx context.Context, victim service.Victim) *service.Container
}

// DeathHandler 把死亡事件解析为 Victim 并交给注册表
type DeathHandler struct {
	spawner  Spawner
	catalog  *generator.Catalog
	sessions *Sessions
	logger   log.Logger
}

// NewDeathHandler 创建死亡事件处理器
func NewDeathHandler(spawner Spawner, catalog *generator.Catalog, sessions *Sessions, logger log.Logger) *DeathHandler {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &DeathHandler{
		spawner:  spawner,
		catalog:  catalog,
		sessions: sessions,
		logger:   logger.With(log.String("component", "death_handler")),
	}
}

// Handle 处理一条死亡事件，返回生成的容器（可能为 nil）
func (h *DeathHandler) Handle(ctx context.Context, data []byte) (*service.Container, error) {
	var ev DeathEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, xerrors.NewWithError(xerrors.CodeInvalidRequest, "死亡事件格式错误", err)
	}
	if ev.Prototype == "" {
		return nil, xerrors.NewInvalidArgumentError("prototype", "不能为空")
	}

	proto, ok := h.catalog.Prototype(ev.Prototype)
	if !ok {
		return nil, xerrors.NewPrototypeNotFoundError(ev.Prototype).WithEventID(ev.EventID)
	}

	if ev.EventID != "" {
		ctx = log.WithEventID(ctx, ev.EventID)
	}
	return h.spawner.OnEntityDeath(ctx, h.victim(ev, proto)), nil
}

func (h *DeathHandler) victim(ev DeathEvent, proto generator.NPCPrototype) *npcVictim {
	aggressors := make([]service.Combatant, 0, len(ev.Aggressors))
	for _, a := range ev.Aggressors {
		id := service.EntityID(a.ID)
		switch a.Kind {
		case KindPlayer:
			aggressors = append(aggressors, h.sessions.Player(id, a.Position.vector()))
		default:
			aggressors = append(aggressors, npcCombatant(id))
		}
	}
	return &npcVictim{
		name:       proto.Name + "#" + strconv.FormatInt(ev.NPCID, 10),
		position:   ev.Position.vector(),
		proto:      proto,
		aggressors: aggressors,
	}
}

// Subscribe 订阅死亡事件主题
func (h *DeathHandler) Subscribe(conn *nats.Conn, subject string) (*nats.Subscription, error) {
	return conn.Subscribe(subject, h.onMessage)
}

func (h *DeathHandler) onMessage(msg *nats.Msg) {
	if _, err := h.Handle(context.Background(), msg.Data); err != nil {
		appErr := xerrors.Wrap(err, xerrors.CodeInvalidRequest, "处理死亡事件失败")
		log.LogAppError(context.Background(), h.logger, "处理死亡事件失败", appErr)
	}
}

type npcCombatant service.EntityID

func (n npcCombatant) ID() service.EntityID { return service.EntityID(n) }

type npcVictim struct {
	name       string
	position   lootpb.Vector3
	proto      generator.NPCPrototype
	aggressors []service.Combatant
}

func (v *npcVictim) Name() string                    { return v.name }
func (v *npcVictim) Position() lootpb.Vector3        { return v.position }
func (v *npcVictim) LootConfigShortCode() string     { return v.proto.LootConfigShortCode }
func (v *npcVictim) Aggressors() []service.Combatant { return v.aggressors }
func (v *npcVictim) LootTableNames() ([]string, []string) {
	return v.proto.GlobalTables, v.proto.UniqueTables
}
