package task

import (
	"context"
	stdErrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Lumin-Agent/internal/storage/sqlstore"
)

type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time { return c.t }

func (c *fixedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newStores(t *testing.T, clock *fixedClock) map[string]Store {
	t.Helper()
	db, err := sqlstore.Open(context.Background(), sqlstore.Config{Driver: sqlstore.DriverSQLite, DSN: ":memory:", AutoMigrate: true})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlStore := NewSQLStore(db, sqlstore.DriverSQLite)
	sqlStore.now = clock.now
	memStore := NewMemoryStore()
	memStore.now = clock.now
	return map[string]Store{"memory": memStore, "sql": sqlStore}
}

func int64Ptr(v int64) *int64 { return &v }

func strPtr(v string) *string { return &v }

func TestStoreCreateAppliesDefaults(t *testing.T) {
	clock := &fixedClock{t: time.Date(2026, 3, 1, 9, 0, 0, 123456789, time.UTC)}
	for name, store := range newStores(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			created := &Task{UserID: 7, Title: "  Review outliers ", DataSourceID: int64Ptr(3)}
			require.NoError(t, store.Create(ctx, created))
			assert.NotZero(t, created.ID)
			assert.Equal(t, "Review outliers", created.Title)
			assert.Equal(t, StatusPending, created.Status)
			assert.Equal(t, PriorityMedium, created.Priority)
			assert.Equal(t, clock.t.Truncate(time.Millisecond), created.CreatedAt)

			got, err := store.Get(ctx, 7, created.ID)
			require.NoError(t, err)
			assert.Equal(t, created, got)

			err = store.Create(ctx, &Task{UserID: 7, Title: "   "})
			assert.Equal(t, CodeTaskValidation, codeOf(err))
			err = store.Create(ctx, &Task{UserID: 7, Title: "x", Status: "blocked"})
			assert.Equal(t, CodeTaskValidation, codeOf(err))
		})
	}
}

func TestStoreScopesByOwner(t *testing.T) {
	clock := &fixedClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	for name, store := range newStores(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			mine := &Task{UserID: 1, Title: "Quarterly report"}
			require.NoError(t, store.Create(ctx, mine))

			_, err := store.Get(ctx, 2, mine.ID)
			assert.True(t, stdErrors.Is(err, ErrTaskNotFound))
			_, err = store.FindByTitle(ctx, 2, "quarterly")
			assert.True(t, stdErrors.Is(err, ErrTaskNotFound))
			_, err = store.Update(ctx, 2, mine.ID, Patch{Title: strPtr("hijacked")})
			assert.True(t, stdErrors.Is(err, ErrTaskNotFound))
			_, err = store.Delete(ctx, 2, mine.ID)
			assert.True(t, stdErrors.Is(err, ErrTaskNotFound))

			list, err := store.List(ctx, 2, BuildListOptions())
			require.NoError(t, err)
			assert.Empty(t, list)

			got, err := store.Get(ctx, 1, mine.ID)
			require.NoError(t, err)
			assert.Equal(t, "Quarterly report", got.Title)
		})
	}
}

func TestStoreFindByTitlePrefersNewest(t *testing.T) {
	clock := &fixedClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	for name, store := range newStores(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			oldest := &Task{UserID: 1, Title: "Clean sales data"}
			require.NoError(t, store.Create(ctx, oldest))
			clock.advance(time.Second)
			first := &Task{UserID: 1, Title: "Export SALES dashboard"}
			require.NoError(t, store.Create(ctx, first))
			second := &Task{UserID: 1, Title: "Sales forecast"}
			require.NoError(t, store.Create(ctx, second))

			got, err := store.FindByTitle(ctx, 1, "sales")
			require.NoError(t, err)
			assert.Equal(t, second.ID, got.ID, "same timestamp falls back to the higher id")

			got, err = store.FindByTitle(ctx, 1, "CLEAN")
			require.NoError(t, err)
			assert.Equal(t, oldest.ID, got.ID)

			_, err = store.FindByTitle(ctx, 1, "inventory")
			assert.True(t, stdErrors.Is(err, ErrTaskNotFound))
		})
	}
}

func TestStoreFindByTitleTreatsWildcardsLiterally(t *testing.T) {
	clock := &fixedClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	for name, store := range newStores(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			percent := &Task{UserID: 1, Title: "Reach 50% coverage"}
			require.NoError(t, store.Create(ctx, percent))
			clock.advance(time.Second)
			require.NoError(t, store.Create(ctx, &Task{UserID: 1, Title: "Ship 500 units"}))
			clock.advance(time.Second)
			require.NoError(t, store.Create(ctx, &Task{UserID: 1, Title: "fix user-id column"}))

			got, err := store.FindByTitle(ctx, 1, "0%")
			require.NoError(t, err)
			assert.Equal(t, percent.ID, got.ID)

			_, err = store.FindByTitle(ctx, 1, "user_id")
			assert.True(t, stdErrors.Is(err, ErrTaskNotFound))
		})
	}
}

func TestStoreListOrderingAndFilters(t *testing.T) {
	clock := &fixedClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	for name, store := range newStores(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			titles := []string{"alpha", "beta", "gamma", "delta"}
			for i, title := range titles {
				status := StatusPending
				if i%2 == 1 {
					status = StatusCompleted
				}
				require.NoError(t, store.Create(ctx, &Task{UserID: 1, Title: title, Status: status}))
				clock.advance(time.Minute)
			}

			list, err := store.List(ctx, 1, BuildListOptions(WithLimit(3)))
			require.NoError(t, err)
			assert.Equal(t, []string{"delta", "gamma", "beta"}, titlesOf(list))

			list, err = store.List(ctx, 1, BuildListOptions(WithStatuses(StatusCompleted)))
			require.NoError(t, err)
			assert.Equal(t, []string{"delta", "beta"}, titlesOf(list))

			list, err = store.List(ctx, 1, BuildListOptions(WithQuery("LTA")))
			require.NoError(t, err)
			assert.Equal(t, []string{"delta"}, titlesOf(list))
		})
	}
}

func TestStoreUpdateDeleteAndStats(t *testing.T) {
	clock := &fixedClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	for name, store := range newStores(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			created := &Task{UserID: 1, Title: "Audit invoices", Description: "Q1"}
			require.NoError(t, store.Create(ctx, created))
			require.NoError(t, store.Create(ctx, &Task{UserID: 1, Title: "Other", DataSourceID: int64Ptr(9)}))

			clock.advance(time.Hour)
			status := StatusInProgress
			priority := PriorityHigh
			updated, err := store.Update(ctx, 1, created.ID, Patch{Status: &status, Priority: &priority, DataSourceID: int64Ptr(9)})
			require.NoError(t, err)
			assert.Equal(t, StatusInProgress, updated.Status)
			assert.Equal(t, PriorityHigh, updated.Priority)
			assert.Equal(t, "Q1", updated.Description)
			assert.Equal(t, created.CreatedAt, updated.CreatedAt)
			assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))

			reloaded, err := store.Get(ctx, 1, created.ID)
			require.NoError(t, err)
			assert.Equal(t, updated, reloaded)

			bad := Status("blocked")
			_, err = store.Update(ctx, 1, created.ID, Patch{Status: &bad})
			assert.Equal(t, CodeTaskValidation, codeOf(err))

			count, err := store.CountByDataSource(ctx, 1, 9)
			require.NoError(t, err)
			assert.Equal(t, 2, count)

			stats, err := store.Stats(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, Stats{Total: 2, Pending: 1, InProgress: 1}, stats)

			deleted, err := store.Delete(ctx, 1, created.ID)
			require.NoError(t, err)
			assert.Equal(t, "Audit invoices", deleted.Title)
			_, err = store.Get(ctx, 1, created.ID)
			assert.True(t, stdErrors.Is(err, ErrTaskNotFound))
			_, err = store.Delete(ctx, 1, created.ID)
			assert.True(t, stdErrors.Is(err, ErrTaskNotFound))
		})
	}
}

func titlesOf(tasks []*Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Title)
	}
	return out
}
