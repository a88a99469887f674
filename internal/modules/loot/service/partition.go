package service

// Partition 掉落归属划分：归属键 -> 物品序列
//
// 只在分配时构建一次，之后不可变；访问器返回副本。
// 键的顺序为首次写入的顺序（公共键在前，然后按参与者输入顺序）。
type Partition struct {
	owners []EntityID
	items  map[EntityID][]Item
}

func newPartition() *Partition {
	return &Partition{items: make(map[EntityID][]Item)}
}

// add 追加物品，空序列不会产生键
func (p *Partition) add(owner EntityID, items []Item) {
	if len(items) == 0 {
		return
	}
	if _, ok := p.items[owner]; !ok {
		p.owners = append(p.owners, owner)
	}
	p.items[owner] = append(p.items[owner], items...)
}

// Len 归属键数量
func (p *Partition) Len() int {
	if p == nil {
		return 0
	}
	return len(p.owners)
}

// Owners 按写入顺序返回所有归属键
func (p *Partition) Owners() []EntityID {
	if p == nil {
		return nil
	}
	out := make([]EntityID, len(p.owners))
	copy(out, p.owners)
	return out
}

// Has 判断归属键是否存在
func (p *Partition) Has(owner EntityID) bool {
	if p == nil {
		return false
	}
	_, ok := p.items[owner]
	return ok
}

// HasShared 是否存在公共掉落
func (p *Partition) HasShared() bool {
	return p.Has(GeneralOwner)
}

// Items 返回某个归属键的物品副本
func (p *Partition) Items(owner EntityID) []Item {
	if p == nil {
		return nil
	}
	src := p.items[owner]
	if len(src) == 0 {
		return nil
	}
	out := make([]Item, len(src))
	copy(out, src)
	return out
}

// ItemCount 所有归属键下的物品条目总数
func (p *Partition) ItemCount() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, items := range p.items {
		n += len(items)
	}
	return n
}
