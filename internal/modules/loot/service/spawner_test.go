package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tsu-loot/internal/pkg/log"
	"tsu-loot/internal/pkg/metrics"
	"tsu-loot/internal/pkg/scheduler"
	"tsu-loot/internal/pkg/xerrors"
	"tsu-loot/internal/protocol/lootpb"
)

func TestSpawner_NoTablesCreatesNothing(t *testing.T) {
	f := newFixture(nil)
	pa := newPlayer(1, 0, 0)

	c := f.spawner.OnEntityDeath(context.Background(), &fakeVictim{
		name:       "rabbit",
		aggressors: combatants(pa),
	})

	assert.Nil(t, c)
	assert.Equal(t, 0, f.spawner.Count())
	assert.Empty(t, pa.sent)
	assert.Equal(t, 0, f.sched.pending())
}

func TestSpawner_UnknownTablesCreateNothing(t *testing.T) {
	f := newFixture(nil)
	c := f.spawner.OnEntityDeath(context.Background(), &fakeVictim{
		name:       "wolf",
		shared:     []string{"missing"},
		aggressors: combatants(newPlayer(1, 0, 0)),
	})
	assert.Nil(t, c)
}

func TestSpawner_SharedTableScenario(t *testing.T) {
	f := newFixture(map[string][][]Item{
		"boss": {items("sword", "shield")},
	})
	pa, pb := newPlayer(1, 0, 0), newPlayer(2, 0, 0)

	c := f.spawner.OnEntityDeath(context.Background(), &fakeVictim{
		name:       "dragon",
		pos:        lootpb.Vector3{X: 10, Y: 20},
		shared:     []string{"boss"},
		shortCode:  "dragon_loot",
		aggressors: combatants(pa, pb),
	})
	require.NotNil(t, c)

	p := c.Partition()
	assert.Equal(t, []EntityID{GeneralOwner}, p.Owners())
	assert.Len(t, p.Items(GeneralOwner), 2)
	assert.Equal(t, []EntityID{1, 2}, c.ViewerIDs())

	for _, player := range []*fakePlayer{pa, pb} {
		spawns := player.spawns()
		require.Len(t, spawns, 1)
		assert.Equal(t, c.ID(), spawns[0].LootId)
		assert.Equal(t, "dragon_loot", spawns[0].ShortCode)
		assert.Equal(t, lootpb.Vector3{X: 10, Y: 20}, spawns[0].Position)
	}

	require.Len(t, f.listener.spawned, 1)
	assert.Equal(t, c.ID(), f.listener.spawned[0].ContainerID)
	assert.Equal(t, f.now.Add(time.Minute), f.listener.spawned[0].Deadline)
}

func TestSpawner_PerContributorScenario(t *testing.T) {
	f := newFixture(map[string][][]Item{
		"quest": {items("token"), nil},
	})
	pa, pb := newPlayer(1, 0, 0), newPlayer(2, 0, 0)

	c := f.spawner.OnEntityDeath(context.Background(), &fakeVictim{
		name:       "bandit",
		unique:     []string{"quest"},
		aggressors: combatants(pa, pb),
	})
	require.NotNil(t, c)

	assert.Equal(t, []EntityID{1}, c.Partition().Owners())
	assert.Equal(t, []EntityID{1}, c.ViewerIDs())
	assert.Len(t, pa.spawns(), 1)
	assert.Empty(t, pb.sent, "B 没有自己的物品也没有公共掉落")
}

func TestSpawner_OnlyNonPlayerContributors(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(map[string][][]Item{"boss": {items("gold")}})
	m := metrics.NewLootMetricsWithRegistry("test", reg)
	f.spawner.metrics = m

	c := f.spawner.OnEntityDeath(context.Background(), &fakeVictim{
		name:       "wolf",
		shared:     []string{"boss"},
		aggressors: combatants(fakeNPC{id: 500}),
	})

	assert.Nil(t, c)
	assert.Equal(t, 0, f.gen.calls["boss"], "没有玩家参与者时不抽取")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeathsSkipped.WithLabelValues("no_eligible_owner", "loot")))
}

func TestSpawner_GeneralOwnerIDCannotClaimSharedLoot(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(map[string][][]Item{
		"quest": {items("token"), nil},
	})
	m := metrics.NewLootMetricsWithRegistry("test", reg)
	f.spawner.metrics = m
	bogus, pb := newPlayer(GeneralOwner, 0, 0), newPlayer(2, 0, 0)

	c := f.spawner.OnEntityDeath(context.Background(), &fakeVictim{
		name:       "bandit",
		unique:     []string{"quest"},
		aggressors: combatants(bogus, pb),
	})
	require.NotNil(t, c)

	p := c.Partition()
	assert.False(t, p.HasShared(), "个人掉落不能落到公共归属键上")
	assert.Equal(t, []EntityID{2}, p.Owners())
	assert.Equal(t, []EntityID{2}, c.ViewerIDs())
	assert.Equal(t, 1, f.gen.calls["quest"], "只为合法的玩家抽取")
	assert.Empty(t, bogus.sent)
	assert.Len(t, pb.spawns(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("900007", "loot", "WARN", "loot")))
}

func TestSpawner_OnlyInvalidPlayerIDs(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(map[string][][]Item{"boss": {items("gold")}})
	m := metrics.NewLootMetricsWithRegistry("test", reg)
	f.spawner.metrics = m
	bogus, zero := newPlayer(GeneralOwner, 0, 0), newPlayer(0, 0, 0)

	c := f.spawner.OnEntityDeath(context.Background(), &fakeVictim{
		name:       "wolf",
		shared:     []string{"boss"},
		aggressors: combatants(bogus, zero),
	})

	assert.Nil(t, c)
	assert.Equal(t, 0, f.spawner.Count())
	assert.Equal(t, 0, f.gen.calls["boss"])
	assert.Empty(t, bogus.sent)
	assert.Empty(t, zero.sent)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeathsSkipped.WithLabelValues("invalid_contributor", "loot")))
}

func TestSpawner_ActivationFailureIsInvariantViolation(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(nil)
	m := metrics.NewLootMetricsWithRegistry("test", reg)
	f.spawner.metrics = m

	p := newPartition()
	p.add(GeneralOwner, items("gold"))
	c := NewContainer(7, lootpb.Vector3{}, ContainerOptions{Scheduler: f.sched})
	require.NoError(t, c.Activate(p, nil))
	err := c.Activate(p, nil)
	require.Error(t, err)

	assert.Panics(t, func() {
		f.spawner.activationFailed(context.Background(), 7, err)
	}, "调试环境下直接 panic")

	f.spawner.opts.StrictInvariants = false
	assert.NotPanics(t, func() {
		f.spawner.activationFailed(context.Background(), 7, err)
	})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DeathsSkipped.WithLabelValues("activate_failed", "loot")))
}

func TestSpawner_NoContributors(t *testing.T) {
	f := newFixture(map[string][][]Item{"boss": {items("gold")}})

	c := f.spawner.OnEntityDeath(context.Background(), &fakeVictim{
		name:   "wolf",
		shared: []string{"boss"},
	})
	assert.Nil(t, c)
	assert.Equal(t, 0, f.spawner.Count())
}

func TestSpawner_TableProviderFailure(t *testing.T) {
	f := newFixture(nil)
	f.spawner.tables = fakeTables{err: errors.New("redis down")}

	c := f.spawner.OnEntityDeath(context.Background(), &fakeVictim{
		name:       "wolf",
		shared:     []string{"boss"},
		aggressors: combatants(newPlayer(1, 0, 0)),
	})
	assert.Nil(t, c)
}

func TestSpawner_EmptyRollsCreateNothing(t *testing.T) {
	f := newFixture(nil)
	pa := newPlayer(1, 0, 0)

	c := f.spawner.OnEntityDeath(context.Background(), &fakeVictim{
		name:       "wolf",
		shared:     []string{"boss"},
		unique:     []string{"quest"},
		aggressors: combatants(pa),
	})
	assert.Nil(t, c)
	assert.Empty(t, pa.sent)
	assert.Equal(t, 0, f.spawner.ids.InUse())
}

func TestSpawner_TimerTeardown(t *testing.T) {
	f := newFixture(map[string][][]Item{"boss": {items("gold")}})
	pa, pb := newPlayer(1, 0, 0), newPlayer(2, 0, 0)

	c := f.spawner.OnEntityDeath(context.Background(), &fakeVictim{
		name:       "dragon",
		shared:     []string{"boss"},
		aggressors: combatants(pa, pb),
	})
	require.NotNil(t, c)
	id := c.ID()

	f.sched.FireAll()

	assert.Equal(t, StateRemoved, c.State())
	assert.Equal(t, 0, f.spawner.Count())
	assert.False(t, f.spawner.ids.Held(id))
	for _, player := range []*fakePlayer{pa, pb} {
		despawns := player.despawns()
		require.Len(t, despawns, 1)
		assert.Equal(t, id, despawns[0].ActorId)
	}
	require.Len(t, f.listener.despawned, 1)
	assert.Equal(t, ReasonTimeout, f.listener.despawned[0].Reason)
}

func TestSpawner_TeardownIsIdempotent(t *testing.T) {
	f := newFixture(map[string][][]Item{"boss": {items("gold")}})
	pa, pb := newPlayer(1, 0, 0), newPlayer(2, 0, 0)

	c := f.spawner.OnEntityDeath(context.Background(), &fakeVictim{
		name:       "dragon",
		shared:     []string{"boss"},
		aggressors: combatants(pa, pb),
	})
	require.NotNil(t, c)

	require.NoError(t, f.spawner.Remove(context.Background(), c.ID(), ReasonAdmin))
	assert.False(t, c.Despawn(context.Background(), ReasonTimeout))
	f.sched.FireAll()

	assert.Len(t, pa.despawns(), 1)
	assert.Len(t, pb.despawns(), 1)
	assert.Len(t, f.listener.despawned, 1)

	err := f.spawner.Remove(context.Background(), c.ID(), ReasonAdmin)
	assert.True(t, xerrors.HasCode(err, xerrors.CodeLootContainerNotFound))
}

func TestSpawner_TimerFiresWithNoViewersLeft(t *testing.T) {
	f := newFixture(map[string][][]Item{"boss": {items("gold")}})
	pa, pb := newPlayer(1, 0, 0), newPlayer(2, 0, 0)

	c := f.spawner.OnEntityDeath(context.Background(), &fakeVictim{
		name:       "dragon",
		shared:     []string{"boss"},
		aggressors: combatants(pa, pb),
	})
	require.NotNil(t, c)
	id := c.ID()

	assert.True(t, c.RemoveViewer(1))
	assert.True(t, c.RemoveViewer(2))

	f.sched.FireAll()

	assert.Empty(t, pa.despawns())
	assert.Empty(t, pb.despawns())
	assert.False(t, f.spawner.ids.Held(id), "标识符已归还")
	_, ok := f.spawner.Get(id)
	assert.False(t, ok)
}

func TestSpawner_IdentifiersAreReused(t *testing.T) {
	f := newFixture(map[string][][]Item{"boss": {items("a"), items("b")}})
	victim := func() *fakeVictim {
		return &fakeVictim{name: "wolf", shared: []string{"boss"}, aggressors: combatants(newPlayer(1, 0, 0))}
	}

	first := f.spawner.OnEntityDeath(context.Background(), victim())
	require.NotNil(t, first)
	require.NoError(t, f.spawner.Remove(context.Background(), first.ID(), ReasonClaimed))

	second := f.spawner.OnEntityDeath(context.Background(), victim())
	require.NotNil(t, second)
	assert.Equal(t, first.ID(), second.ID())
}

func TestSpawner_IdentifierExhaustion(t *testing.T) {
	f := newFixture(map[string][][]Item{"boss": {items("a"), items("b")}})
	for f.spawner.ids.InUse() < 16 {
		_, err := f.spawner.ids.Get()
		require.NoError(t, err)
	}

	c := f.spawner.OnEntityDeath(context.Background(), &fakeVictim{
		name: "wolf", shared: []string{"boss"}, aggressors: combatants(newPlayer(1, 0, 0)),
	})
	assert.Nil(t, c)
}

func TestSpawner_QueryNearby(t *testing.T) {
	f := newFixture(map[string][][]Item{
		"boss":  {items("a"), items("b"), items("c")},
		"quest": {items("q")},
	})
	pa, pb := newPlayer(1, 0, 0), newPlayer(2, 0, 0)
	ctx := context.Background()

	near := f.spawner.OnEntityDeath(ctx, &fakeVictim{
		name: "near", pos: lootpb.Vector3{X: 3, Y: 4}, shared: []string{"boss"}, aggressors: combatants(pa, pb),
	})
	edge := f.spawner.OnEntityDeath(ctx, &fakeVictim{
		name: "edge", pos: lootpb.Vector3{X: 10}, shared: []string{"boss"}, aggressors: combatants(pa),
	})
	far := f.spawner.OnEntityDeath(ctx, &fakeVictim{
		name: "far", pos: lootpb.Vector3{X: 100}, shared: []string{"boss"}, aggressors: combatants(pa, pb),
	})
	require.NotNil(t, near)
	require.NotNil(t, edge)
	require.NotNil(t, far)

	ids := func(cs []*Container) []uint32 {
		var out []uint32
		for _, c := range cs {
			out = append(out, c.ID())
		}
		return out
	}

	assert.Equal(t, []uint32{near.ID(), edge.ID()}, ids(f.spawner.QueryNearby(1, pa.Position(), 10)), "边界上的容器包含在内")
	assert.Equal(t, []uint32{near.ID()}, ids(f.spawner.QueryNearby(2, pb.Position(), 10)), "B 不是 edge 的查看者")
	assert.Empty(t, f.spawner.QueryNearby(3, pa.Position(), 1000), "陌生人看不到任何容器")
	assert.Len(t, f.spawner.QueryNearby(1, pa.Position(), 1000), 3)
}

func TestSpawner_OnViewerQueryAndResend(t *testing.T) {
	f := newFixture(map[string][][]Item{"boss": {items("a"), items("b")}})
	pa, pb := newPlayer(1, 0, 0), newPlayer(2, 0, 0)
	ctx := context.Background()

	c1 := f.spawner.OnEntityDeath(ctx, &fakeVictim{name: "one", shared: []string{"boss"}, aggressors: combatants(pa)})
	c2 := f.spawner.OnEntityDeath(ctx, &fakeVictim{name: "two", shared: []string{"boss"}, aggressors: combatants(pa, pb)})
	require.NotNil(t, c1)
	require.NotNil(t, c2)

	packets := f.spawner.OnViewerQuery(1)
	require.Len(t, packets, 2)
	assert.Equal(t, c1.ID(), packets[0].LootId)
	assert.Equal(t, c2.ID(), packets[1].LootId)

	assert.Len(t, f.spawner.OnViewerQuery(2), 1)
	assert.Empty(t, f.spawner.OnViewerQuery(99))

	before := len(pb.spawns())
	assert.Equal(t, 1, f.spawner.ResendTo(pb))
	assert.Len(t, pb.spawns(), before+1)
}

func TestSpawner_DetachViewer(t *testing.T) {
	f := newFixture(map[string][][]Item{"boss": {items("a")}})
	pa, pb := newPlayer(1, 0, 0), newPlayer(2, 0, 0)

	c := f.spawner.OnEntityDeath(context.Background(), &fakeVictim{
		name: "wolf", shared: []string{"boss"}, aggressors: combatants(pa, pb),
	})
	require.NotNil(t, c)

	assert.True(t, f.spawner.DetachViewer(c.ID(), 1))
	assert.False(t, f.spawner.DetachViewer(c.ID(), 1))
	assert.False(t, f.spawner.DetachViewer(999, 2))

	assert.Len(t, pa.despawns(), 1)
	assert.Empty(t, pb.despawns())
	assert.Equal(t, []EntityID{2}, c.ViewerIDs())

	f.sched.FireAll()
	assert.Len(t, pa.despawns(), 1, "已分离的查看者不会再收到销毁通知")
	assert.Len(t, pb.despawns(), 1)
}

func TestSpawner_SnapshotAndSweep(t *testing.T) {
	f := newFixture(map[string][][]Item{"boss": {items("a"), items("b")}})
	ctx := context.Background()
	pa := newPlayer(1, 0, 0)

	old := f.spawner.OnEntityDeath(ctx, &fakeVictim{name: "old", shared: []string{"boss"}, aggressors: combatants(pa)})
	f.now = f.now.Add(30 * time.Second)
	fresh := f.spawner.OnEntityDeath(ctx, &fakeVictim{name: "fresh", shared: []string{"boss"}, aggressors: combatants(pa)})
	require.NotNil(t, old)
	require.NotNil(t, fresh)

	snap := f.spawner.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "old", snap[0].Victim)
	assert.Equal(t, []EntityID{GeneralOwner}, snap[0].Owners)
	assert.Equal(t, []EntityID{1}, snap[0].Viewers)
	assert.Equal(t, "active", snap[0].State)

	// old 的截止时间 + 宽限期之前不会被巡检
	assert.Equal(t, 0, f.spawner.SweepExpired(ctx, f.now.Add(35*time.Second)))
	assert.Equal(t, 1, f.spawner.SweepExpired(ctx, f.now.Add(36*time.Second)))
	assert.Equal(t, ReasonSweep, old.DespawnReason())
	assert.Equal(t, 1, f.spawner.Count())

	assert.Equal(t, 1, f.spawner.Shutdown(ctx))
	assert.Equal(t, ReasonShutdown, fresh.DespawnReason())
	assert.Equal(t, 0, f.spawner.Count())
}

func TestSpawner_MetricsFollowLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewLootMetricsWithRegistry("test", reg)
	f := newFixture(map[string][][]Item{"boss": {items("a")}})
	f.spawner.metrics = m
	f.spawner.allocator.metrics = m

	c := f.spawner.OnEntityDeath(context.Background(), &fakeVictim{
		name: "wolf", shared: []string{"boss"}, aggressors: combatants(newPlayer(1, 0, 0)),
	})
	require.NotNil(t, c)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ContainersLive.WithLabelValues("loot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LootRolls.WithLabelValues("shared", "hit", "loot")))

	f.sched.FireAll()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ContainersLive.WithLabelValues("loot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ContainersDespawned.WithLabelValues("timeout", "loot")))
}

func TestSpawner_ConcurrentDeathsAndTimers(t *testing.T) {
	script := map[string][][]Item{"boss": nil}
	for i := 0; i < 200; i++ {
		script["boss"] = append(script["boss"], items("gold"))
	}
	s := NewSpawner(Deps{
		Tables:    fakeTables{},
		Generator: newScripted(script),
		Scheduler: scheduler.New(),
		Logger:    log.NewNopLogger(),
	}, Options{DespawnAfter: time.Millisecond, StrictInvariants: true, MaxIdentifiers: 1024})

	pa := newPlayer(1, 0, 0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				s.OnEntityDeath(context.Background(), &fakeVictim{
					name: "wolf", shared: []string{"boss"}, aggressors: combatants(pa),
				})
				s.QueryNearby(1, pa.Position(), 1000)
			}
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool { return s.Count() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, s.ids.InUse())
	assert.Len(t, pa.spawns(), 200)
	assert.Len(t, pa.despawns(), 200)
}

func TestSpawner_QueryNearbyDefaultRadius(t *testing.T) {
	f := newFixture(map[string][][]Item{"boss": {items("a"), items("b")}})
	pa := newPlayer(1, 0, 0)
	ctx := context.Background()

	inside := f.spawner.OnEntityDeath(ctx, &fakeVictim{name: "inside", pos: lootpb.Vector3{X: 999}, shared: []string{"boss"}, aggressors: combatants(pa)})
	outside := f.spawner.OnEntityDeath(ctx, &fakeVictim{name: "outside", pos: lootpb.Vector3{X: 1001}, shared: []string{"boss"}, aggressors: combatants(pa)})
	require.NotNil(t, inside)
	require.NotNil(t, outside)

	got := f.spawner.QueryNearby(1, pa.Position(), 0)
	require.Len(t, got, 1)
	assert.Equal(t, inside.ID(), got[0].ID())
}
