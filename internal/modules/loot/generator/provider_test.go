package generator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tsu-loot/internal/modules/loot/service"
	"tsu-loot/internal/pkg/log"
	"tsu-loot/internal/pkg/xerrors"
)

type fakeStore struct {
	values map[string][]byte
	err    error
	ttl    time.Duration
}

func (s *fakeStore) GetMany(_ context.Context, keys ...string) (map[string][]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string][]byte)
	for _, k := range keys {
		if v, ok := s.values[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (s *fakeStore) SetMany(_ context.Context, values map[string][]byte, ttl time.Duration) error {
	if s.err != nil {
		return s.err
	}
	if s.values == nil {
		s.values = make(map[string][]byte)
	}
	for k, v := range values {
		s.values[k] = v
	}
	s.ttl = ttl
	return nil
}

func tableNames(tables []service.Table) []string {
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name()
	}
	return names
}

func mustCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)
	return c
}

func TestCatalogProvider_SkipsUnknown(t *testing.T) {
	p := NewCatalogProvider(mustCatalog(t), log.NewNopLogger())

	tables, err := p.GetTables(context.Background(), []string{"quest", "nope", "wolf_common"})
	require.NoError(t, err)
	assert.Equal(t, []string{"quest", "wolf_common"}, tableNames(tables))
}

func TestRedisTableProvider_PrefersRedis(t *testing.T) {
	override, err := json.Marshal(TableSpec{TableName: "wolf_common", Drops: []Drop{{ItemCode: "golden_pelt"}}})
	require.NoError(t, err)

	store := &fakeStore{values: map[string][]byte{
		DefaultKeyPrefix + "wolf_common": override,
		DefaultKeyPrefix + "broken":      []byte("{not json"),
	}}
	p := NewRedisTableProvider(store, mustCatalog(t), log.NewNopLogger())

	tables, err := p.GetTables(context.Background(), []string{"wolf_common", "quest", "broken"})
	require.NoError(t, err)
	require.Equal(t, []string{"wolf_common", "quest"}, tableNames(tables))

	wolf := tables[0].(*TableSpec)
	require.Len(t, wolf.Drops, 1)
	assert.Equal(t, "golden_pelt", wolf.Drops[0].ItemCode)
	assert.Equal(t, 1.0, wolf.Drops[0].Chance, "Redis 中的表同样补全缺省值")
}

func TestRedisTableProvider_FallbackOnError(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}

	p := NewRedisTableProvider(store, mustCatalog(t), log.NewNopLogger())
	tables, err := p.GetTables(context.Background(), []string{"quest"})
	require.NoError(t, err)
	assert.Equal(t, []string{"quest"}, tableNames(tables))

	noFallback := NewRedisTableProvider(store, nil, log.NewNopLogger())
	_, err = noFallback.GetTables(context.Background(), []string{"quest"})
	require.Error(t, err)
	assert.True(t, xerrors.HasCode(err, xerrors.CodeCacheError))
}

func TestSyncTables(t *testing.T) {
	store := &fakeStore{}
	c := mustCatalog(t)

	n, err := SyncTables(context.Background(), store, c, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, time.Hour, store.ttl)

	// 同步后 Redis 提供者不依赖目录也能解析
	p := NewRedisTableProvider(store, nil, log.NewNopLogger())
	tables, err := p.GetTables(context.Background(), []string{"wolf_common", "quest"})
	require.NoError(t, err)
	assert.Equal(t, []string{"wolf_common", "quest"}, tableNames(tables))

	store.err = errors.New("readonly replica")
	_, err = SyncTables(context.Background(), store, c, 0)
	assert.True(t, xerrors.HasCode(err, xerrors.CodeCacheError))
}
