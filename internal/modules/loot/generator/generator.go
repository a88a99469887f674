package generator

import (
	"math/rand"
	"sync"
	"time"

	"tsu-loot/internal/modules/loot/service"
)

// WeightedGenerator 按概率与品质权重抽取掉落
//
// 每个掉落项独立判定；必掉项先于随机项写入，MaxDrops 截断只会丢弃随机项。
type WeightedGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewWeightedGenerator 创建生成器，seed 为 0 时使用当前时间
func NewWeightedGenerator(seed int64) *WeightedGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &WeightedGenerator{rng: rand.New(rand.NewSource(seed))}
}

// GenerateLoot 实现 service.Generator，非 *TableSpec 的表返回空
func (g *WeightedGenerator) GenerateLoot(table service.Table) []service.Item {
	spec, ok := table.(*TableSpec)
	if !ok || spec == nil {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var guaranteed, rolled []service.Item
	for _, d := range spec.Drops {
		if d.Guaranteed {
			guaranteed = append(guaranteed, g.roll(d))
			continue
		}
		if g.rng.Float64() < d.Chance {
			rolled = append(rolled, g.roll(d))
		}
	}

	out := append(guaranteed, rolled...)
	if spec.MaxDrops > 0 && len(out) > spec.MaxDrops {
		keep := spec.MaxDrops
		if keep < len(guaranteed) {
			keep = len(guaranteed)
		}
		out = out[:keep]
	}
	return out
}

func (g *WeightedGenerator) roll(d Drop) service.Item {
	qty := d.Min
	if d.Max > d.Min {
		qty += g.rng.Intn(d.Max - d.Min + 1)
	}
	return service.Item{
		ItemCode: d.ItemCode,
		Quantity: qty,
		Quality:  g.pickQuality(d.Qualities),
	}
}

func (g *WeightedGenerator) pickQuality(weights []QualityWeight) string {
	total := 0
	for _, w := range weights {
		total += w.Weight
	}
	if total <= 0 {
		return ""
	}
	n := g.rng.Intn(total)
	for _, w := range weights {
		if n < w.Weight {
			return w.Quality
		}
		n -= w.Weight
	}
	return ""
}
