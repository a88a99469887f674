package service

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"tsu-loot/internal/pkg/idpool"
	"tsu-loot/internal/pkg/log"
	"tsu-loot/internal/pkg/metrics"
	"tsu-loot/internal/pkg/scheduler"
	"tsu-loot/internal/pkg/xerrors"
	"tsu-loot/internal/protocol/lootpb"
)

// Deps 注册表的外部依赖
type Deps struct {
	Tables    TableProvider
	Generator Generator
	Scheduler scheduler.Scheduler
	IDs       *idpool.Pool
	Listeners []Listener
	Logger    log.Logger
	Metrics   *metrics.LootMetrics
	Clock     func() time.Time
}

// Options 注册表参数
type Options struct {
	DespawnAfter  time.Duration
	LootingRadius float64
	// SweepGrace 超过截止时间多久后由巡检强制销毁
	SweepGrace time.Duration
	// StrictInvariants 不变量被破坏时 panic（调试环境）
	StrictInvariants bool
	MaxIdentifiers   uint32
	Service          string
}

// ContainerInfo 容器快照，供管理接口使用
type ContainerInfo struct {
	ID        uint32         `json:"id"`
	Victim    string         `json:"victim"`
	ShortCode string         `json:"short_code"`
	Position  lootpb.Vector3 `json:"position"`
	State     string         `json:"state"`
	Owners    []EntityID     `json:"owners"`
	Viewers   []EntityID     `json:"viewers"`
	ItemCount int            `json:"item_count"`
	SpawnedAt time.Time      `json:"spawned_at"`
	Deadline  time.Time      `json:"deadline"`
}

// Spawner 掉落容器注册表
//
// 负责死亡事件处理、标识符分配、查看者通知与容器销毁。
// 锁顺序固定为 Spawner -> Container；持有 Spawner 锁时不会调用 Container.Despawn。
type Spawner struct {
	tables    TableProvider
	allocator *Allocator
	scheduler scheduler.Scheduler
	ids       *idpool.Pool
	listeners []Listener
	logger    log.Logger
	metrics   *metrics.LootMetrics
	clock     func() time.Time
	opts      Options

	mu   sync.Mutex
	live map[uint32]*Container
}

// NewSpawner 创建注册表
func NewSpawner(deps Deps, opts Options) *Spawner {
	if opts.DespawnAfter <= 0 {
		opts.DespawnAfter = 60 * time.Second
	}
	if opts.LootingRadius <= 0 {
		opts.LootingRadius = 1000
	}
	if opts.MaxIdentifiers == 0 {
		opts.MaxIdentifiers = 1 << 20
	}
	if deps.Scheduler == nil {
		deps.Scheduler = scheduler.New()
	}
	if deps.IDs == nil {
		deps.IDs = idpool.New(opts.MaxIdentifiers)
	}
	if deps.Logger == nil {
		deps.Logger = log.GetLogger()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	return &Spawner{
		tables:    deps.Tables,
		allocator: NewAllocator(deps.Generator, deps.Metrics, opts.Service),
		scheduler: deps.Scheduler,
		ids:       deps.IDs,
		listeners: deps.Listeners,
		logger:    deps.Logger.With(log.String("component", "loot_spawner")),
		metrics:   deps.Metrics,
		clock:     deps.Clock,
		opts:      opts,
		live:      make(map[uint32]*Container),
	}
}

// LootingRadius 默认拾取半径
func (s *Spawner) LootingRadius() float64 {
	return s.opts.LootingRadius
}

// OnEntityDeath 处理 NPC 死亡，可能生成一个掉落容器
//
// 没有掉落表、没有参与者、没有玩家参与者或全部抽取为空时返回 nil。
// 掉落表解析与抽取在注册表锁之外完成；
// 标识符分配、登记与生成通知在锁内完成，监听者在锁释放后收到通知。
func (s *Spawner) OnEntityDeath(ctx context.Context, victim Victim) *Container {
	sharedNames, uniqueNames := victim.LootTableNames()
	if len(sharedNames) == 0 && len(uniqueNames) == 0 {
		s.skip("no_tables")
		return nil
	}

	aggressors := victim.Aggressors()
	players, rejected := FilterPlayers(aggressors)
	if len(rejected) > 0 {
		ids := lo.Map(rejected, func(id EntityID, _ int) int64 { return int64(id) })
		appErr := xerrors.NewInvalidContributorError(victim.Name(), ids)
		if len(players) == 0 {
			s.fail(ctx, "死亡事件中的玩家 ID 全部不合法，跳过掉落", appErr, "invalid_contributor")
			return nil
		}
		s.reject(ctx, "忽略 ID 不合法的玩家参与者", appErr)
	}
	if len(aggressors) > 0 && len(players) == 0 {
		s.fail(ctx, "死亡事件中没有玩家参与者，跳过掉落",
			xerrors.NewNoEligibleOwnerError(victim.Name(), len(aggressors)), "no_eligible_owner")
		return nil
	}

	shared, unique, err := s.resolveTables(ctx, sharedNames, uniqueNames)
	if err != nil {
		appErr := xerrors.Wrap(err, xerrors.CodeExternalServiceError, "解析掉落表失败").
			WithMetadata("victim", victim.Name())
		s.fail(ctx, "解析掉落表失败，跳过掉落", appErr, "table_error")
		return nil
	}
	if len(shared) == 0 && len(unique) == 0 {
		s.skip("no_tables")
		return nil
	}

	partition, err := s.allocator.Allocate(shared, unique, players)
	if err != nil {
		appErr := xerrors.Wrap(err, xerrors.CodeLootNoContributors, "死亡事件没有记录参与者").
			WithMetadata("victim", victim.Name())
		s.fail(ctx, "死亡事件没有参与者，跳过掉落", appErr, "no_contributors")
		return nil
	}
	if partition == nil {
		s.logger.DebugContext(ctx, "掉落抽取为空", log.String("victim", victim.Name()))
		s.skip("empty_roll")
		return nil
	}

	s.mu.Lock()
	id, err := s.ids.Get()
	if err != nil {
		s.mu.Unlock()
		appErr := xerrors.Wrap(err, xerrors.CodeIdentifierExhausted, "标识符已耗尽")
		s.fail(ctx, "无法为掉落容器分配标识符", appErr, "id_exhausted")
		return nil
	}

	c := NewContainer(id, victim.Position(), ContainerOptions{
		Victim:       victim.Name(),
		ShortCode:    victim.LootConfigShortCode(),
		DespawnAfter: s.opts.DespawnAfter,
		Scheduler:    s.scheduler,
		Clock:        s.clock,
		OnTeardown:   s.remove,
		Listeners:    s.listeners,
	})
	if err := c.Activate(partition, players); err != nil {
		s.releaseLocked(ctx, id)
		s.mu.Unlock()
		s.activationFailed(ctx, id, err)
		return nil
	}
	s.live[id] = c

	packet := c.SpawnPacket()
	viewers := c.Viewers()
	for _, v := range viewers {
		v.Send(packet)
	}
	if s.metrics != nil {
		s.metrics.RecordSpawned(s.opts.Service)
	}

	ev := SpawnEvent{
		ContainerID: id,
		Victim:      victim.Name(),
		Position:    c.Position(),
		ShortCode:   c.ShortCode(),
		Partition:   partition,
		Viewers:     c.ViewerIDs(),
		SpawnedAt:   c.SpawnedAt(),
		Deadline:    c.Deadline(),
	}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "掉落容器已生成",
		log.Uint32("container_id", id),
		log.String("victim", victim.Name()),
		log.Int("owners", partition.Len()),
		log.Int("viewers", len(viewers)),
	)
	for _, l := range s.listeners {
		l.OnLootSpawned(ctx, ev)
	}
	return c
}

func (s *Spawner) resolveTables(ctx context.Context, sharedNames, uniqueNames []string) ([]Table, []Table, error) {
	var shared, unique []Table
	var err error
	if len(sharedNames) > 0 {
		if shared, err = s.tables.GetTables(ctx, sharedNames); err != nil {
			return nil, nil, err
		}
	}
	if len(uniqueNames) > 0 {
		if unique, err = s.tables.GetTables(ctx, uniqueNames); err != nil {
			return nil, nil, err
		}
	}
	return shared, unique, nil
}

// OnViewerQuery 返回实体作为查看者的所有容器的生成通知，按容器 ID 升序
func (s *Spawner) OnViewerQuery(viewerID EntityID) []*lootpb.SpawnLootActor {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*lootpb.SpawnLootActor
	for _, c := range s.sortedLocked() {
		if c.IsViewer(viewerID) {
			out = append(out, c.SpawnPacket())
		}
	}
	return out
}

// ResendTo 把玩家可见的所有容器重新推送给该玩家，返回推送数量
func (s *Spawner) ResendTo(p Player) int {
	packets := s.OnViewerQuery(p.ID())
	for _, packet := range packets {
		p.Send(packet)
	}
	return len(packets)
}

// QueryNearby 返回实体作为查看者、且位于 at 半径范围内（含边界）的容器
// radius <= 0 时使用配置的拾取半径
func (s *Spawner) QueryNearby(viewerID EntityID, at lootpb.Vector3, radius float64) []*Container {
	if radius <= 0 {
		radius = s.opts.LootingRadius
	}
	if s.metrics != nil {
		s.metrics.RecordNearbyQuery(s.opts.Service)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Container
	for _, c := range s.sortedLocked() {
		if !c.IsViewer(viewerID) {
			continue
		}
		if c.Position().Distance(at) <= radius {
			out = append(out, c)
		}
	}
	return out
}

// DetachViewer 把实体从容器的查看者中移除，并只向该实体发送销毁通知
func (s *Spawner) DetachViewer(containerID uint32, viewerID EntityID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.live[containerID]
	if !ok {
		return false
	}
	p := c.detachViewer(viewerID)
	if p == nil {
		return false
	}
	p.Send(c.DespawnPacket())
	return true
}

// Remove 手动销毁容器
func (s *Spawner) Remove(ctx context.Context, containerID uint32, reason DespawnReason) error {
	c, ok := s.Get(containerID)
	if !ok {
		return xerrors.NewContainerNotFoundError(containerID)
	}
	if !c.Despawn(ctx, reason) {
		return xerrors.NewContainerStateError(containerID, c.State().String())
	}
	return nil
}

// Get 按 ID 查找存活容器
func (s *Spawner) Get(containerID uint32) (*Container, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.live[containerID]
	return c, ok
}

// Count 存活容器数量
func (s *Spawner) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Snapshot 所有存活容器的快照，按 ID 升序
func (s *Spawner) Snapshot() []ContainerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	containers := s.sortedLocked()
	out := make([]ContainerInfo, 0, len(containers))
	for _, c := range containers {
		out = append(out, Describe(c))
	}
	return out
}

// Describe 生成单个容器的快照
func Describe(c *Container) ContainerInfo {
	p := c.Partition()
	return ContainerInfo{
		ID:        c.ID(),
		Victim:    c.Victim(),
		ShortCode: c.ShortCode(),
		Position:  c.Position(),
		State:     c.State().String(),
		Owners:    p.Owners(),
		Viewers:   c.ViewerIDs(),
		ItemCount: p.ItemCount(),
		SpawnedAt: c.SpawnedAt(),
		Deadline:  c.Deadline(),
	}
}

// SweepExpired 销毁超过截止时间且超出宽限期仍存活的容器，返回销毁数量
// 定时器丢失时作为兜底
func (s *Spawner) SweepExpired(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	var expired []*Container
	for _, c := range s.sortedLocked() {
		if now.After(c.Deadline().Add(s.opts.SweepGrace)) {
			expired = append(expired, c)
		}
	}
	s.mu.Unlock()

	n := 0
	for _, c := range expired {
		if c.Despawn(ctx, ReasonSweep) {
			n++
		}
	}
	if n > 0 {
		s.logger.WarnContext(ctx, "巡检销毁了过期掉落容器", log.Int("count", n))
	}
	return n
}

// Shutdown 销毁所有存活容器，返回销毁数量
func (s *Spawner) Shutdown(ctx context.Context) int {
	s.mu.Lock()
	all := s.sortedLocked()
	s.mu.Unlock()

	n := 0
	for _, c := range all {
		if c.Despawn(ctx, ReasonShutdown) {
			n++
		}
	}
	s.logger.InfoContext(ctx, "掉落注册表已关闭", log.Int("despawned", n))
	return n
}

// remove 容器销毁回调：通知剩余查看者、注销并归还标识符
func (s *Spawner) remove(c *Container) {
	ctx := context.Background()

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.live[c.ID()]; !ok || cur != c {
		return
	}
	notified := c.drainViewers()
	delete(s.live, c.ID())
	s.releaseLocked(ctx, c.ID())

	reason := c.DespawnReason()
	if s.metrics != nil {
		s.metrics.RecordDespawned(string(reason), s.clock().Sub(c.SpawnedAt()), s.opts.Service)
	}
	s.logger.DebugContext(ctx, "掉落容器已销毁",
		log.Uint32("container_id", c.ID()),
		log.String("reason", string(reason)),
		log.Int("notified", notified),
	)
}

func (s *Spawner) releaseLocked(ctx context.Context, id uint32) {
	if err := s.ids.Release(id); err != nil {
		appErr := xerrors.Wrap(err, xerrors.CodeIdentifierNotHeld, "释放了未被持有的标识符")
		s.invariantViolation(ctx, appErr)
	}
}

func (s *Spawner) sortedLocked() []*Container {
	ids := make([]uint32, 0, len(s.live))
	for id := range s.live {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]*Container, len(ids))
	for i, id := range ids {
		out[i] = s.live[id]
	}
	return out
}

func (s *Spawner) skip(reason string) {
	if s.metrics != nil {
		s.metrics.RecordSkipped(reason, s.opts.Service)
	}
}

func (s *Spawner) fail(ctx context.Context, msg string, appErr *xerrors.AppError, reason string) {
	s.reject(ctx, msg, appErr)
	s.skip(reason)
}

// reject 记录可恢复的异常，不影响本次死亡的其余处理
func (s *Spawner) reject(ctx context.Context, msg string, appErr *xerrors.AppError) {
	appErr.WithService(s.opts.Service, "OnEntityDeath")
	log.LogAppError(ctx, s.logger, msg, appErr)
	if s.metrics != nil {
		s.metrics.RecordAppError(appErr, s.opts.Service)
	}
}

// activationFailed 新建的容器激活失败属于不变量被破坏
func (s *Spawner) activationFailed(ctx context.Context, id uint32, err error) {
	appErr := xerrors.Wrap(err, xerrors.CodeLootContainerState, "激活掉落容器失败").
		WithService(s.opts.Service, "OnEntityDeath").
		WithMetadata("container_id", id)
	appErr.Level = xerrors.LevelCritical
	s.skip("activate_failed")
	s.invariantViolation(ctx, appErr)
}

// invariantViolation 不变量被破坏：记录严重错误，调试环境下直接 panic
func (s *Spawner) invariantViolation(ctx context.Context, appErr *xerrors.AppError) {
	log.LogAppError(ctx, s.logger, "掉落注册表不变量被破坏", appErr)
	if s.metrics != nil {
		s.metrics.RecordAppError(appErr, s.opts.Service)
	}
	if s.opts.StrictInvariants {
		panic(appErr)
	}
}
