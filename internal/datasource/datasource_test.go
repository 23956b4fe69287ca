package datasource

import (
	"context"
	stdErrors "errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "Lumin-Agent/internal/errors"
	"Lumin-Agent/internal/storage/sqlstore"
)

func newSQLDirectory(t *testing.T) *SQLDirectory {
	t.Helper()
	db, err := sqlstore.Open(context.Background(), sqlstore.Config{Driver: sqlstore.DriverSQLite, DSN: ":memory:", AutoMigrate: true})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLDirectory(db)
}

func directories(t *testing.T) map[string]Directory {
	return map[string]Directory{
		"memory": NewMemoryDirectory(),
		"sql":    newSQLDirectory(t),
	}
}

func TestDirectoryScopesByOwner(t *testing.T) {
	for name, dir := range directories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sales, err := dir.Create(ctx, Source{UserID: 1, Name: "Sales", Type: TypeSpreadsheet, TableName: "sales_1a2b"})
			require.NoError(t, err)
			_, err = dir.Create(ctx, Source{UserID: 1, Name: "Warehouse", ConnectionURL: "postgres://db"})
			require.NoError(t, err)
			other, err := dir.Create(ctx, Source{UserID: 2, Name: "Private"})
			require.NoError(t, err)

			list, err := dir.ListByUser(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, []Ref{{ID: sales.ID, Name: "Sales"}, {ID: list[1].ID, Name: "Warehouse"}}, Refs(list))
			assert.Equal(t, TypeURL, list[1].Type)

			got, err := dir.Get(ctx, 1, sales.ID)
			require.NoError(t, err)
			assert.Equal(t, "sales_1a2b", got.TableName)

			_, err = dir.Get(ctx, 1, other.ID)
			assert.True(t, stdErrors.Is(err, ErrNotFound))
			assert.True(t, stdErrors.Is(dir.Delete(ctx, 1, other.ID), ErrNotFound))

			require.NoError(t, dir.Delete(ctx, 1, sales.ID))
			list, err = dir.ListByUser(ctx, 1)
			require.NoError(t, err)
			assert.Len(t, list, 1)
		})
	}
}

func TestDirectoryValidation(t *testing.T) {
	for name, dir := range directories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := dir.Create(ctx, Source{UserID: 1, Name: "  "})
			assert.Equal(t, CodeValidation, xerrors.CodeOf(err))
			_, err = dir.Create(ctx, Source{Name: "x"})
			assert.Equal(t, CodeValidation, xerrors.CodeOf(err))
			_, err = dir.Create(ctx, Source{UserID: 1, Name: "x", Type: "ftp"})
			assert.Equal(t, CodeValidation, xerrors.CodeOf(err))
		})
	}
}

type countingDirectory struct {
	Directory
	lists int
}

func (c *countingDirectory) ListByUser(ctx context.Context, userID int64) ([]Source, error) {
	c.lists++
	return c.Directory.ListByUser(ctx, userID)
}

func TestCachedDirectoryServesFromRedis(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	ctx := context.Background()
	backing := &countingDirectory{Directory: NewMemoryDirectory()}
	cached := NewCachedDirectory(backing, client, "test:ds:", time.Minute)

	_, err := cached.Create(ctx, Source{UserID: 7, Name: "Sales"})
	require.NoError(t, err)

	first, err := cached.ListByUser(ctx, 7)
	require.NoError(t, err)
	second, err := cached.ListByUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, backing.lists)
	assert.Equal(t, Refs(first), Refs(second))
	assert.True(t, srv.Exists("test:ds:7"))
	assert.Equal(t, time.Minute, srv.TTL("test:ds:7"))

	_, err = cached.Create(ctx, Source{UserID: 7, Name: "Costs"})
	require.NoError(t, err)
	assert.False(t, srv.Exists("test:ds:7"))

	list, err := cached.ListByUser(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 2, backing.lists)

	require.NoError(t, cached.Delete(ctx, 7, list[0].ID))
	assert.False(t, srv.Exists("test:ds:7"))
}

func TestCachedDirectoryFallsBackWhenRedisDown(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr(), MaxRetries: -1})
	defer client.Close()

	ctx := context.Background()
	backing := NewMemoryDirectory()
	_, err := backing.Create(ctx, Source{UserID: 3, Name: "Sales"})
	require.NoError(t, err)
	srv.Close()

	cached := NewCachedDirectory(backing, client, "", 0)
	list, err := cached.ListByUser(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestFindRef(t *testing.T) {
	refs := []Ref{{ID: 1, Name: "Sales"}, {ID: 4, Name: "Costs"}}
	ref, ok := FindRef(refs, 4)
	assert.True(t, ok)
	assert.Equal(t, "Costs", ref.Name)
	_, ok = FindRef(refs, 9)
	assert.False(t, ok)
}
