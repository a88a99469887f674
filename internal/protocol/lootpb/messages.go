package lootpb

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Vector3 世界坐标
type Vector3 struct {
	X float32
	Y float32
	Z float32
}

// Distance 两点间的欧氏距离
func (v Vector3) Distance(o Vector3) float64 {
	dx := float64(v.X - o.X)
	dy := float64(v.Y - o.Y)
	dz := float64(v.Z - o.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func (v Vector3) appendTo(b []byte) []byte {
	b = appendFloat(b, 1, v.X)
	b = appendFloat(b, 2, v.Y)
	return appendFloat(b, 3, v.Z)
}

func (v *Vector3) unmarshal(b []byte) error {
	return decode("Vector3", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var dst *float32
		switch num {
		case 1:
			dst = &v.X
		case 2:
			dst = &v.Y
		case 3:
			dst = &v.Z
		default:
			return -1, nil
		}
		f, n, err := consumeFloat(typ, b)
		*dst = f
		return n, err
	})
}

// SpawnLootActor 通知客户端出现一个掉落容器
type SpawnLootActor struct {
	LootId    uint32
	Position  Vector3
	ShortCode string
}

func (*SpawnLootActor) MessageName() string { return "PckSpawnLootActor" }

func (m *SpawnLootActor) Marshal() ([]byte, error) {
	return m.appendTo(nil), nil
}

func (m *SpawnLootActor) appendTo(b []byte) []byte {
	b = appendVarint(b, 1, uint64(m.LootId))
	b = appendMessage(b, 2, m.Position.appendTo(nil))
	return appendString(b, 3, m.ShortCode)
}

func (m *SpawnLootActor) Unmarshal(b []byte) error {
	*m = SpawnLootActor{}
	return decode(m.MessageName(), b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			m.LootId = uint32(v)
			return n, err
		case 2:
			raw, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			return n, m.Position.unmarshal(raw)
		case 3:
			raw, n, err := consumeBytes(typ, b)
			m.ShortCode = string(raw)
			return n, err
		}
		return -1, nil
	})
}

// DespawnLootActor 通知客户端移除掉落容器
type DespawnLootActor struct {
	ActorId uint32
}

func (*DespawnLootActor) MessageName() string { return "PckDespawnLootActor" }

func (m *DespawnLootActor) Marshal() ([]byte, error) {
	return appendVarint(nil, 1, uint64(m.ActorId)), nil
}

func (m *DespawnLootActor) Unmarshal(b []byte) error {
	*m = DespawnLootActor{}
	return decode(m.MessageName(), b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return -1, nil
		}
		v, n, err := consumeVarint(typ, b)
		m.ActorId = uint32(v)
		return n, err
	})
}

// QueryNearbyLootRequest 拾取/交互前查询附近可见的掉落
type QueryNearbyLootRequest struct {
	EntityId int64
	Position Vector3
	Radius   float32 // <= 0 时使用服务端配置的拾取半径
}

func (*QueryNearbyLootRequest) MessageName() string { return "QueryNearbyLootRequest" }

func (m *QueryNearbyLootRequest) Marshal() ([]byte, error) {
	b := appendVarint(nil, 1, uint64(m.EntityId))
	b = appendMessage(b, 2, m.Position.appendTo(nil))
	return appendFloat(b, 3, m.Radius), nil
}

func (m *QueryNearbyLootRequest) Unmarshal(b []byte) error {
	*m = QueryNearbyLootRequest{}
	return decode(m.MessageName(), b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			m.EntityId = int64(v)
			return n, err
		case 2:
			raw, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			return n, m.Position.unmarshal(raw)
		case 3:
			f, n, err := consumeFloat(typ, b)
			m.Radius = f
			return n, err
		}
		return -1, nil
	})
}

// EntityRequest 只携带实体 ID 的请求（重发掉落等）
type EntityRequest struct {
	EntityId int64
}

func (*EntityRequest) MessageName() string { return "EntityRequest" }

func (m *EntityRequest) Marshal() ([]byte, error) {
	return appendVarint(nil, 1, uint64(m.EntityId)), nil
}

func (m *EntityRequest) Unmarshal(b []byte) error {
	*m = EntityRequest{}
	return decode(m.MessageName(), b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return -1, nil
		}
		v, n, err := consumeVarint(typ, b)
		m.EntityId = int64(v)
		return n, err
	})
}

// LootList 掉落容器列表
type LootList struct {
	Loot []*SpawnLootActor
}

func (*LootList) MessageName() string { return "LootList" }

func (m *LootList) Marshal() ([]byte, error) {
	var b []byte
	for _, l := range m.Loot {
		b = appendMessage(b, 1, l.appendTo(nil))
	}
	return b, nil
}

func (m *LootList) Unmarshal(b []byte) error {
	*m = LootList{}
	return decode(m.MessageName(), b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return -1, nil
		}
		raw, n, err := consumeBytes(typ, b)
		if err != nil {
			return 0, err
		}
		item := &SpawnLootActor{}
		if err := item.Unmarshal(raw); err != nil {
			return 0, err
		}
		m.Loot = append(m.Loot, item)
		return n, nil
	})
}

// LootViewerRequest 针对某个容器与某个实体的请求
type LootViewerRequest struct {
	LootId   uint32
	EntityId int64
}

func (*LootViewerRequest) MessageName() string { return "LootViewerRequest" }

func (m *LootViewerRequest) Marshal() ([]byte, error) {
	b := appendVarint(nil, 1, uint64(m.LootId))
	return appendVarint(b, 2, uint64(m.EntityId)), nil
}

func (m *LootViewerRequest) Unmarshal(b []byte) error {
	*m = LootViewerRequest{}
	return decode(m.MessageName(), b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			m.LootId = uint32(v)
			return n, err
		case 2:
			v, n, err := consumeVarint(typ, b)
			m.EntityId = int64(v)
			return n, err
		}
		return -1, nil
	})
}

// RemoveLootRequest 主动移除容器（拾取完毕或管理操作）
type RemoveLootRequest struct {
	LootId uint32
	Reason string
}

func (*RemoveLootRequest) MessageName() string { return "RemoveLootRequest" }

func (m *RemoveLootRequest) Marshal() ([]byte, error) {
	b := appendVarint(nil, 1, uint64(m.LootId))
	return appendString(b, 2, m.Reason), nil
}

func (m *RemoveLootRequest) Unmarshal(b []byte) error {
	*m = RemoveLootRequest{}
	return decode(m.MessageName(), b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			m.LootId = uint32(v)
			return n, err
		case 2:
			raw, n, err := consumeBytes(typ, b)
			m.Reason = string(raw)
			return n, err
		}
		return -1, nil
	})
}

// BoolResponse 通用布尔结果
type BoolResponse struct {
	Ok bool
}

func (*BoolResponse) MessageName() string { return "BoolResponse" }

func (m *BoolResponse) Marshal() ([]byte, error) {
	return appendBool(nil, 1, m.Ok), nil
}

func (m *BoolResponse) Unmarshal(b []byte) error {
	*m = BoolResponse{}
	return decode(m.MessageName(), b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return -1, nil
		}
		v, n, err := consumeVarint(typ, b)
		m.Ok = v != 0
		return n, err
	})
}
