package service

import (
	"github.com/samber/lo"

	"tsu-loot/internal/pkg/metrics"
	"tsu-loot/internal/pkg/xerrors"
)

// Allocator 根据掉落表与参与者生成归属划分
type Allocator struct {
	generator Generator
	metrics   *metrics.LootMetrics
	service   string
}

// NewAllocator 创建分配器，m 为空时不记录指标
func NewAllocator(generator Generator, m *metrics.LootMetrics, service string) *Allocator {
	return &Allocator{generator: generator, metrics: m, service: service}
}

// Allocate 计算一次死亡的掉落划分
//
// 两组表都为空时返回 (nil, nil)。参与者为空时返回 CodeLootNoContributors。
// 每张公共表只抽取一次，结果挂在 GeneralOwner 下；
// 每个参与者对每张个人表各抽取一次，参与者之间互不影响。
// 所有抽取都为空时同样返回 (nil, nil)。
func (a *Allocator) Allocate(shared, perContributor []Table, contributors []Player) (*Partition, error) {
	if len(shared) == 0 && len(perContributor) == 0 {
		return nil, nil
	}
	if len(contributors) == 0 {
		return nil, xerrors.FromCode(xerrors.CodeLootNoContributors)
	}

	p := newPartition()
	for _, table := range shared {
		p.add(GeneralOwner, a.roll("shared", table))
	}
	for _, contributor := range contributors {
		for _, table := range perContributor {
			p.add(contributor.ID(), a.roll("unique", table))
		}
	}

	if p.Len() == 0 {
		return nil, nil
	}
	return p, nil
}

func (a *Allocator) roll(kind string, table Table) []Item {
	items := a.generator.GenerateLoot(table)
	if a.metrics != nil {
		a.metrics.RecordRoll(kind, len(items), a.service)
	}
	return items
}

// EntitledViewers 计算初始查看者
//
// 有公共掉落时所有参与者都是查看者，否则只有在划分中拥有自己物品的参与者。
// 结果保持参与者的输入顺序。
func EntitledViewers(p *Partition, contributors []Player) []Player {
	if p.HasShared() {
		return append([]Player(nil), contributors...)
	}
	return lo.Filter(contributors, func(c Player, _ int) bool {
		return p.Has(c.ID())
	})
}

// ValidEntityID 实体 ID 必须为正数，GeneralOwner 与 0 都不能作为参与者
func ValidEntityID(id EntityID) bool {
	return id > 0
}

// FilterPlayers 从仇恨列表中挑出玩家，按 ID 去重并保持首次出现的顺序
//
// ID 不合法的玩家不参与分配，其 ID 按出现顺序（去重后）放入 rejected。
// 同一玩家在仇恨列表中出现多次时只保留一次，个人掉落表对每个玩家只抽取一次。
func FilterPlayers(aggressors []Combatant) (players []Player, rejected []EntityID) {
	all := lo.FilterMap(aggressors, func(c Combatant, _ int) (Player, bool) {
		p, ok := c.(Player)
		return p, ok
	})
	all = lo.UniqBy(all, func(p Player) EntityID {
		return p.ID()
	})

	for _, p := range all {
		if ValidEntityID(p.ID()) {
			players = append(players, p)
		} else {
			rejected = append(rejected, p.ID())
		}
	}
	return players, rejected
}
