package handler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"tsu-loot/internal/modules/loot/generator"
	"tsu-loot/internal/modules/loot/service"
	"tsu-loot/internal/modules/loot/transport"
	"tsu-loot/internal/pkg/log"
	"tsu-loot/internal/protocol/lootpb"
)

const catalogYAML = `
tables:
  - name: hoard
    drops:
      - item_code: gold
        guaranteed: true
npcs:
  - name: dragon
    global_tables: [hoard]
    loot_config_short_code: dragon_epic
`

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*nats.Msg
}

func (p *fakePublisher) PublishMsg(m *nats.Msg) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, m)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

type lootFixture struct {
	spawner  *service.Spawner
	deaths   *transport.DeathHandler
	sessions *transport.Sessions
	pub      *fakePublisher
}

func newLootFixture(t *testing.T) *lootFixture {
	t.Helper()
	catalog, err := generator.ParseCatalog([]byte(catalogYAML))
	require.NoError(t, err)

	spawner := service.NewSpawner(service.Deps{
		Tables:    generator.NewCatalogProvider(catalog, log.NewNopLogger()),
		Generator: generator.NewWeightedGenerator(1),
		Logger:    log.NewNopLogger(),
	}, service.Options{DespawnAfter: time.Hour, LootingRadius: 100})
	t.Cleanup(func() { spawner.Shutdown(context.Background()) })

	pub := &fakePublisher{}
	sessions := transport.NewSessions(pub, "session.%d.push", log.NewNopLogger(), nil)
	return &lootFixture{
		spawner:  spawner,
		deaths:   transport.NewDeathHandler(spawner, catalog, sessions, log.NewNopLogger()),
		sessions: sessions,
		pub:      pub,
	}
}

// kill 生成一个由给定玩家参与击杀的容器
func (f *lootFixture) kill(t *testing.T, npcID int64, pos transport.Position, players ...int64) *service.Container {
	t.Helper()
	ev := transport.DeathEvent{NPCID: npcID, Prototype: "dragon", Position: pos}
	for _, id := range players {
		ev.Aggressors = append(ev.Aggressors, transport.Aggressor{ID: id, Kind: transport.KindPlayer})
	}
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	c, err := f.deaths.Handle(context.Background(), data)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}

func (f *lootFixture) resolvePlayer(id service.EntityID) service.Player {
	return f.sessions.Player(id, lootpb.Vector3{})
}
