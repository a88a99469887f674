// Package idpool 为短生命周期的世界对象发放可复用的整数标识符。
package idpool

import (
	"sync"

	"tsu-loot/internal/pkg/xerrors"
)

// Pool 标识符池
//
// 标识符从 1 开始递增发放，释放后按 FIFO 顺序复用，
// 刚释放的标识符尽量晚一些再发出去，客户端上残留的旧对象不容易和新对象混淆。
// 0 永远不会被发放。
type Pool struct {
	mu    sync.Mutex
	next  uint32
	limit uint32
	free  []uint32
	held  map[uint32]struct{}
}

// New 创建标识符池，limit 为可同时持有的最大标识符（含）
func New(limit uint32) *Pool {
	if limit == 0 {
		limit = ^uint32(0)
	}
	return &Pool{
		next:  1,
		limit: limit,
		held:  make(map[uint32]struct{}),
	}
}

// Get 发放一个当前未被持有的标识符
func (p *Pool) Get() (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var id uint32
	switch {
	case len(p.free) > 0:
		id = p.free[0]
		p.free = p.free[1:]
	case p.next <= p.limit && p.next != 0:
		id = p.next
		p.next++
	default:
		return 0, xerrors.NewIdentifierExhaustedError(p.limit)
	}

	p.held[id] = struct{}{}
	return id, nil
}

// Release 归还标识符。归还未被持有的标识符说明标识符空间已损坏，返回 CodeIdentifierNotHeld。
func (p *Pool) Release(id uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.held[id]; !ok {
		return xerrors.NewIdentifierNotHeldError(id)
	}
	delete(p.held, id)
	p.free = append(p.free, id)
	return nil
}

// Held 判断标识符是否正被持有
func (p *Pool) Held(id uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.held[id]
	return ok
}

// InUse 当前被持有的标识符数量
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.held)
}
