package handler

import (
	"context"

	"tsu-loot/internal/modules/loot/dto"
	"tsu-loot/internal/modules/loot/service"
	"tsu-loot/internal/pkg/log"
	"tsu-loot/internal/pkg/validator"
	"tsu-loot/internal/pkg/xerrors"
	"tsu-loot/internal/protocol/lootpb"
)

// LootRegistry RPC 入口依赖的注册表能力
type LootRegistry interface {
	Registry
	ResendTo(p service.Player) int
	DetachViewer(containerID uint32, viewerID service.EntityID) bool
}

// PlayerResolver 按实体 ID 构造可推送消息的玩家
type PlayerResolver func(id service.EntityID) service.Player

// LootRPCHandler 掉落 RPC 处理器
// 供 game-server 在玩家进入视野、拾取、重连时调用
type LootRPCHandler struct {
	registry  LootRegistry
	players   PlayerResolver
	validator *validator.CustomValidator
	logger    log.Logger
}

// NewLootRPCHandler 创建掉落 RPC Handler
func NewLootRPCHandler(registry LootRegistry, players PlayerResolver, logger log.Logger) *LootRPCHandler {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &LootRPCHandler{
		registry:  registry,
		players:   players,
		validator: validator.New(),
		logger:    logger.With(log.String("component", "loot_rpc")),
	}
}

// ==================== RPC Methods ====================

// QueryNearbyLoot 查询实体附近可见的容器
func (h *LootRPCHandler) QueryNearbyLoot(data []byte) ([]byte, error) {
	req := &lootpb.QueryNearbyLootRequest{}
	if err := req.Unmarshal(data); err != nil {
		return nil, xerrors.NewInvalidArgumentError("request", "invalid protobuf data")
	}
	if req.EntityId == 0 {
		return nil, xerrors.NewInvalidArgumentError("entity_id", "实体ID不能为空")
	}

	found := h.registry.QueryNearby(service.EntityID(req.EntityId), req.Position, float64(req.Radius))
	resp := &lootpb.LootList{Loot: make([]*lootpb.SpawnLootActor, 0, len(found))}
	for _, c := range found {
		resp.Loot = append(resp.Loot, c.SpawnPacket())
	}
	return resp.Marshal()
}

// ResendLoot 把玩家可见的容器重新推送到其会话
func (h *LootRPCHandler) ResendLoot(data []byte) ([]byte, error) {
	req := &lootpb.EntityRequest{}
	if err := req.Unmarshal(data); err != nil {
		return nil, xerrors.NewInvalidArgumentError("request", "invalid protobuf data")
	}
	if req.EntityId == 0 {
		return nil, xerrors.NewInvalidArgumentError("entity_id", "实体ID不能为空")
	}

	n := h.registry.ResendTo(h.players(service.EntityID(req.EntityId)))
	h.logger.Debug("重发掉落通知", log.Int64("entity_id", req.EntityId), log.Int("count", n))

	return (&lootpb.BoolResponse{Ok: n > 0}).Marshal()
}

// DetachLootViewer 玩家不再能看到某个容器（例如已拾取自己的那份）
func (h *LootRPCHandler) DetachLootViewer(data []byte) ([]byte, error) {
	req := &lootpb.LootViewerRequest{}
	if err := req.Unmarshal(data); err != nil {
		return nil, xerrors.NewInvalidArgumentError("request", "invalid protobuf data")
	}

	ok := h.registry.DetachViewer(req.LootId, service.EntityID(req.EntityId))
	return (&lootpb.BoolResponse{Ok: ok}).Marshal()
}

// RemoveLoot 主动移除容器
func (h *LootRPCHandler) RemoveLoot(data []byte) ([]byte, error) {
	req := &lootpb.RemoveLootRequest{}
	if err := req.Unmarshal(data); err != nil {
		return nil, xerrors.NewInvalidArgumentError("request", "invalid protobuf data")
	}

	remove := &dto.RemoveContainerRequest{ContainerID: req.LootId, Reason: req.Reason}
	if err := h.validator.Struct(remove); err != nil {
		return nil, xerrors.New(xerrors.CodeInvalidParams, validator.TranslateValidationError(err))
	}

	if err := h.registry.Remove(context.Background(), remove.ContainerID, remove.DespawnReason()); err != nil {
		if xerrors.HasCode(err, xerrors.CodeLootContainerNotFound) {
			return (&lootpb.BoolResponse{Ok: false}).Marshal()
		}
		return nil, err
	}
	return (&lootpb.BoolResponse{Ok: true}).Marshal()
}
