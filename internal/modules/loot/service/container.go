package service

import (
	"context"
	"sync"
	"time"

	"tsu-loot/internal/pkg/scheduler"
	"tsu-loot/internal/pkg/xerrors"
	"tsu-loot/internal/protocol/lootpb"
)

// State 容器生命周期状态
type State int

const (
	StateCreated State = iota
	StateActive
	StateDespawning
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateDespawning:
		return "despawning"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// DespawnReason 销毁原因
type DespawnReason string

const (
	ReasonTimeout  DespawnReason = "timeout"
	ReasonAdmin    DespawnReason = "admin"
	ReasonClaimed  DespawnReason = "claimed"
	ReasonSweep    DespawnReason = "sweep"
	ReasonShutdown DespawnReason = "shutdown"
)

// ContainerOptions 容器的外部依赖
type ContainerOptions struct {
	Victim    string
	ShortCode string

	// DespawnAfter 激活后多久自动销毁
	DespawnAfter time.Duration
	Scheduler    scheduler.Scheduler
	Clock        func() time.Time

	// OnTeardown 销毁时回调所属注册表，不持有容器锁
	// 为空时容器自行通知剩余查看者
	OnTeardown func(c *Container)
	Listeners  []Listener
}

// Container 世界中一处可拾取的掉落
type Container struct {
	id        uint32
	position  lootpb.Vector3
	victim    string
	shortCode string

	despawnAfter time.Duration
	scheduler    scheduler.Scheduler
	clock        func() time.Time
	onTeardown   func(c *Container)
	listeners    []Listener

	mu          sync.Mutex
	state       State
	partition   *Partition
	viewers     []Player
	timer       scheduler.Handle
	spawnedAt   time.Time
	deadline    time.Time
	despawnedAt time.Time
	reason      DespawnReason
}

// NewContainer 创建处于 Created 状态的容器
func NewContainer(id uint32, position lootpb.Vector3, opts ContainerOptions) *Container {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Scheduler == nil {
		opts.Scheduler = scheduler.New()
	}
	return &Container{
		id:           id,
		position:     position,
		victim:       opts.Victim,
		shortCode:    opts.ShortCode,
		despawnAfter: opts.DespawnAfter,
		scheduler:    opts.Scheduler,
		clock:        opts.Clock,
		onTeardown:   opts.OnTeardown,
		listeners:    opts.Listeners,
		state:        StateCreated,
	}
}

func (c *Container) ID() uint32 { return c.id }

func (c *Container) Position() lootpb.Vector3 { return c.position }

func (c *Container) ShortCode() string { return c.shortCode }

func (c *Container) Victim() string { return c.victim }

// Activate 写入划分、计算初始查看者并启动销毁定时器
func (c *Container) Activate(p *Partition, contributors []Player) error {
	if p.Len() == 0 {
		return xerrors.NewInvalidArgumentError("partition", "划分不能为空")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateCreated {
		return xerrors.NewContainerStateError(c.id, c.state.String())
	}

	c.partition = p
	c.viewers = EntitledViewers(p, contributors)
	c.spawnedAt = c.clock()
	c.deadline = c.spawnedAt.Add(c.despawnAfter)
	c.state = StateActive
	// 回调会等到本函数释放锁之后才能推进
	c.timer = c.scheduler.ScheduleOnce(func() {
		c.Despawn(context.Background(), ReasonTimeout)
	}, c.despawnAfter)
	return nil
}

// State 当前状态
func (c *Container) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Partition 归属划分（不可变）
func (c *Container) Partition() *Partition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.partition
}

// IsViewer 判断实体是否在查看者列表中
func (c *Container) IsViewer(id EntityID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexOfViewer(id) >= 0
}

// Viewers 查看者快照
func (c *Container) Viewers() []Player {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Player(nil), c.viewers...)
}

// ViewerIDs 查看者 ID 快照
func (c *Container) ViewerIDs() []EntityID {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]EntityID, len(c.viewers))
	for i, v := range c.viewers {
		ids[i] = v.ID()
	}
	return ids
}

// RemoveViewer 移除查看者，不发送任何消息
func (c *Container) RemoveViewer(id EntityID) bool {
	return c.detachViewer(id) != nil
}

func (c *Container) detachViewer(id EntityID) Player {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOfViewer(id)
	if i < 0 {
		return nil
	}
	p := c.viewers[i]
	c.viewers = append(c.viewers[:i:i], c.viewers[i+1:]...)
	return p
}

func (c *Container) indexOfViewer(id EntityID) int {
	for i, v := range c.viewers {
		if v.ID() == id {
			return i
		}
	}
	return -1
}

// SpawnPacket 生成通知
func (c *Container) SpawnPacket() *lootpb.SpawnLootActor {
	return &lootpb.SpawnLootActor{
		LootId:    c.id,
		Position:  c.position,
		ShortCode: c.shortCode,
	}
}

// DespawnPacket 销毁通知
func (c *Container) DespawnPacket() *lootpb.DespawnLootActor {
	return &lootpb.DespawnLootActor{ActorId: c.id}
}

// SpawnedAt 激活时间
func (c *Container) SpawnedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spawnedAt
}

// Deadline 预计自动销毁的时间
func (c *Container) Deadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadline
}

// DespawnReason 销毁原因，未销毁时为空
func (c *Container) DespawnReason() DespawnReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Despawn 销毁容器，幂等
//
// 只有第一次从 Active 进入 Despawning 的调用返回 true 并执行清理，
// 之后的调用（包括定时器与手动销毁的竞争）直接返回 false。
func (c *Container) Despawn(ctx context.Context, reason DespawnReason) bool {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return false
	}
	c.state = StateDespawning
	c.reason = reason
	timer := c.timer
	c.timer = nil
	c.mu.Unlock()

	if timer != nil {
		timer.Cancel()
	}

	if c.onTeardown != nil {
		c.onTeardown(c)
	} else {
		c.drainViewers()
	}

	c.mu.Lock()
	c.despawnedAt = c.clock()
	c.state = StateRemoved
	ev := DespawnEvent{
		ContainerID: c.id,
		Victim:      c.victim,
		Reason:      reason,
		SpawnedAt:   c.spawnedAt,
		DespawnedAt: c.despawnedAt,
	}
	c.mu.Unlock()

	for _, l := range c.listeners {
		l.OnLootDespawned(ctx, ev)
	}
	return true
}

// drainViewers 清空查看者并逐个发送销毁通知，返回通知数量
func (c *Container) drainViewers() int {
	c.mu.Lock()
	viewers := c.viewers
	c.viewers = nil
	c.mu.Unlock()

	packet := c.DespawnPacket()
	for _, v := range viewers {
		v.Send(packet)
	}
	return len(viewers)
}
