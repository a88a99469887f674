package service

import (
	"context"
	"sync"
	"time"

	"tsu-loot/internal/pkg/log"
	"tsu-loot/internal/pkg/scheduler"
	"tsu-loot/internal/protocol/lootpb"
)

type fakePlayer struct {
	id  EntityID
	pos lootpb.Vector3

	mu   sync.Mutex
	sent []lootpb.Message
}

func newPlayer(id EntityID, x, y float32) *fakePlayer {
	return &fakePlayer{id: id, pos: lootpb.Vector3{X: x, Y: y}}
}

func (p *fakePlayer) ID() EntityID             { return p.id }
func (p *fakePlayer) Position() lootpb.Vector3 { return p.pos }

func (p *fakePlayer) Send(msg lootpb.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
}

func (p *fakePlayer) spawns() []*lootpb.SpawnLootActor {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*lootpb.SpawnLootActor
	for _, m := range p.sent {
		if s, ok := m.(*lootpb.SpawnLootActor); ok {
			out = append(out, s)
		}
	}
	return out
}

func (p *fakePlayer) despawns() []*lootpb.DespawnLootActor {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*lootpb.DespawnLootActor
	for _, m := range p.sent {
		if d, ok := m.(*lootpb.DespawnLootActor); ok {
			out = append(out, d)
		}
	}
	return out
}

// fakeNPC 不能拥有掉落的参与者
type fakeNPC struct{ id EntityID }

func (n fakeNPC) ID() EntityID { return n.id }

type fakeVictim struct {
	name       string
	pos        lootpb.Vector3
	shared     []string
	unique     []string
	shortCode  string
	aggressors []Combatant
}

func (v *fakeVictim) Name() string                { return v.name }
func (v *fakeVictim) Position() lootpb.Vector3    { return v.pos }
func (v *fakeVictim) LootConfigShortCode() string { return v.shortCode }
func (v *fakeVictim) Aggressors() []Combatant     { return v.aggressors }
func (v *fakeVictim) LootTableNames() ([]string, []string) {
	return v.shared, v.unique
}

type fakeTable string

func (t fakeTable) Name() string { return string(t) }

type fakeTables struct {
	err error
}

func (f fakeTables) GetTables(_ context.Context, names []string) ([]Table, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []Table
	for _, n := range names {
		if n == "missing" {
			continue
		}
		out = append(out, fakeTable(n))
	}
	return out, nil
}

// scriptedGenerator 按表名依次返回预设结果，用完后返回空
type scriptedGenerator struct {
	mu     sync.Mutex
	script map[string][][]Item
	calls  map[string]int
}

func newScripted(script map[string][][]Item) *scriptedGenerator {
	return &scriptedGenerator{script: script, calls: make(map[string]int)}
}

func (g *scriptedGenerator) GenerateLoot(t Table) []Item {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[t.Name()]++
	queue := g.script[t.Name()]
	if len(queue) == 0 {
		return nil
	}
	g.script[t.Name()] = queue[1:]
	return queue[0]
}

// manualScheduler 手动触发的调度器
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

type manualTask struct {
	mu        sync.Mutex
	fn        func()
	delay     time.Duration
	done      bool
	cancelled bool
}

func (t *manualTask) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.cancelled = true
	return true
}

func (s *manualScheduler) ScheduleOnce(fn func(), delay time.Duration) scheduler.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTask{fn: fn, delay: delay}
	s.tasks = append(s.tasks, t)
	return t
}

// FireAll 执行所有尚未取消的任务
func (s *manualScheduler) FireAll() int {
	s.mu.Lock()
	tasks := append([]*manualTask(nil), s.tasks...)
	s.mu.Unlock()

	n := 0
	for _, t := range tasks {
		t.mu.Lock()
		if t.done {
			t.mu.Unlock()
			continue
		}
		t.done = true
		t.mu.Unlock()
		t.fn()
		n++
	}
	return n
}

func (s *manualScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		t.mu.Lock()
		if !t.done {
			n++
		}
		t.mu.Unlock()
	}
	return n
}

type recordingListener struct {
	mu        sync.Mutex
	spawned   []SpawnEvent
	despawned []DespawnEvent
}

func (l *recordingListener) OnLootSpawned(_ context.Context, ev SpawnEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.spawned = append(l.spawned, ev)
}

func (l *recordingListener) OnLootDespawned(_ context.Context, ev DespawnEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.despawned = append(l.despawned, ev)
}

func items(codes ...string) []Item {
	out := make([]Item, len(codes))
	for i, c := range codes {
		out[i] = Item{ItemCode: c, Quantity: 1}
	}
	return out
}

func players(ps ...*fakePlayer) []Player {
	out := make([]Player, len(ps))
	for i, p := range ps {
		out[i] = p
	}
	return out
}

func combatants(cs ...Combatant) []Combatant { return cs }

type spawnerFixture struct {
	spawner  *Spawner
	sched    *manualScheduler
	gen      *scriptedGenerator
	listener *recordingListener
	now      time.Time
}

func newFixture(script map[string][][]Item) *spawnerFixture {
	f := &spawnerFixture{
		sched:    &manualScheduler{},
		gen:      newScripted(script),
		listener: &recordingListener{},
		now:      time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	f.spawner = NewSpawner(Deps{
		Tables:    fakeTables{},
		Generator: f.gen,
		Scheduler: f.sched,
		Listeners: []Listener{f.listener},
		Logger:    log.NewNopLogger(),
		Clock:     func() time.Time { return f.now },
	}, Options{
		DespawnAfter:     time.Minute,
		LootingRadius:    1000,
		SweepGrace:       5 * time.Second,
		StrictInvariants: true,
		MaxIdentifiers:   16,
	})
	return f
}
