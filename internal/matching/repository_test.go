package matching_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastebuds/match-app/internal/db/dbtest"
	"github.com/tastebuds/match-app/internal/domain"
	"github.com/tastebuds/match-app/internal/matching"
)

func TestPostgresRepository(t *testing.T) {
	conn := dbtest.Setup(t)
	dbtest.Truncate(t, conn, "matches")
	repo := matching.NewPostgresRepository(conn)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Microsecond)
	m1 := &domain.Match{ID: "6f1d2c8e-0000-4000-8000-000000000001", SessionID: "s1", RestaurantID: "r1", User1ID: "a", User2ID: "b", CreatedAt: base}
	m2 := &domain.Match{ID: "6f1d2c8e-0000-4000-8000-000000000002", SessionID: "s1", RestaurantID: "r2", User1ID: "a", User2ID: "b", CreatedAt: base.Add(time.Second)}
	m3 := &domain.Match{ID: "6f1d2c8e-0000-4000-8000-000000000003", SessionID: "s2", RestaurantID: "r1", User1ID: "b", User2ID: "c", CreatedAt: base.Add(2 * time.Second)}

	for _, m := range []*domain.Match{m1, m2, m3} {
		ok, err := repo.Insert(ctx, m)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	t.Run("duplicate insert is a no-op", func(t *testing.T) {
		dup := *m1
		dup.ID = "6f1d2c8e-0000-4000-8000-000000000099"
		ok, err := repo.Insert(ctx, &dup)
		require.NoError(t, err)
		assert.False(t, ok)

		found, err := repo.FindBySessionRestaurant(ctx, "s1", "r1")
		require.NoError(t, err)
		assert.Equal(t, m1.ID, found.ID)
	})

	t.Run("find missing", func(t *testing.T) {
		_, err := repo.FindBySessionRestaurant(ctx, "s1", "r9")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("list by session newest first", func(t *testing.T) {
		ms, err := repo.ListBySession(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, ms, 2)
		assert.Equal(t, m2.ID, ms[0].ID)
		assert.Equal(t, m1.ID, ms[1].ID)
	})

	t.Run("list by user across sessions", func(t *testing.T) {
		ms, err := repo.ListByUser(ctx, "b")
		require.NoError(t, err)
		require.Len(t, ms, 3)
		assert.Equal(t, m3.ID, ms[0].ID)

		ms, err = repo.ListByUser(ctx, "c")
		require.NoError(t, err)
		assert.Len(t, ms, 1)

		ms, err = repo.ListByUser(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, ms)
	})
}
