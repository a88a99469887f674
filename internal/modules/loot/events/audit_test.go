package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tsu-loot/internal/modules/loot/service"
	"tsu-loot/internal/pkg/log"
	"tsu-loot/internal/repository/interfaces"
)

type fakeRepo struct {
	batches  [][]*interfaces.DropRecord
	despawns []string
	err      error
}

func (r *fakeRepo) EnsureSchema(context.Context) error { return nil }

func (r *fakeRepo) CreateBatch(_ context.Context, records []*interfaces.DropRecord) error {
	r.batches = append(r.batches, records)
	return r.err
}

func (r *fakeRepo) MarkDespawned(_ context.Context, _ uint32, _ time.Time, reason string, _ time.Time) (int64, error) {
	r.despawns = append(r.despawns, reason)
	return 1, r.err
}

func (r *fakeRepo) ListRecent(context.Context, int) ([]*interfaces.DropRecord, error) {
	return nil, nil
}

func (r *fakeRepo) ListByOwner(context.Context, int64, int) ([]*interfaces.DropRecord, error) {
	return nil, nil
}

func TestAuditListener_RecordsEveryItem(t *testing.T) {
	repo := &fakeRepo{}
	s := service.NewSpawner(service.Deps{
		Tables:    staticTables{},
		Generator: fixedGenerator{},
		Listeners: []service.Listener{NewAuditListener(repo, log.NewNopLogger())},
		Logger:    log.NewNopLogger(),
	}, service.Options{DespawnAfter: time.Hour})

	c := s.OnEntityDeath(context.Background(), victim{aggressors: []service.Combatant{player{id: 4}}})
	require.NotNil(t, c)

	require.Len(t, repo.batches, 1)
	batch := repo.batches[0]
	require.Len(t, batch, 2)
	assert.True(t, batch[0].Shared)
	assert.Equal(t, int64(-1), batch[0].OwnerID)
	assert.Equal(t, "shared_item", batch[0].ItemCode)
	assert.Equal(t, int64(4), batch[1].OwnerID)
	assert.False(t, batch[1].Quality.Valid)
	assert.NotEqual(t, batch[0].ID, batch[1].ID)

	assert.Equal(t, 1, s.Shutdown(context.Background()))
	assert.Equal(t, []string{"shutdown"}, repo.despawns)
}

func TestAuditListener_FailureDoesNotPanic(t *testing.T) {
	repo := &fakeRepo{err: errors.New("db down")}
	l := NewAuditListener(repo, log.NewNopLogger())

	assert.NotPanics(t, func() {
		l.OnLootDespawned(context.Background(), service.DespawnEvent{ContainerID: 1, Reason: service.ReasonAdmin})
	})
}
