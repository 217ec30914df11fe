package repository_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomoncle/learnx/database"
	"github.com/tomoncle/learnx/internal/testutil"
	"github.com/tomoncle/learnx/model"
	"github.com/tomoncle/learnx/repository"
	"github.com/tomoncle/learnx/types"
)

func init() {
	model.PasswordCost = bcrypt.MinCost
}

func seedUsers(t *testing.T, repo repository.Repository[model.User], n int) []*model.User {
	users := make([]*model.User, n)
	for i := range users {
		users[i] = model.NewUser(string(rune('A'+i))+" User", string(rune('a'+i))+"@learnx.com", "secret123", model.RoleStudent)
	}
	require.NoError(t, repo.Create(context.Background(), users...))
	return users
}

func TestCrud(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRepository[model.User](testutil.SyncedDB(t))
	users := seedUsers(t, repo, 3)
	require.NotEmpty(t, users[0].ID)

	got, err := repo.GetOne(ctx, users[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "a@learnx.com", got.Email)

	got.Bio = new(string)
	*got.Bio = "hello"
	require.NoError(t, repo.Update(ctx, got, "bio", "updated_at"))
	again, err := repo.FindOne(ctx, "email = ?", "a@learnx.com")
	require.NoError(t, err)
	require.NotNil(t, again.Bio)
	assert.Equal(t, "hello", *again.Bio)

	list, err := repo.List(ctx, types.NewQueryFilter("email LIKE ?", "%@learnx.com"))
	require.NoError(t, err)
	assert.Len(t, list, 3)

	require.NoError(t, repo.Delete(ctx, users[1].ID))
	_, err = repo.GetOne(ctx, users[1].ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	count, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// soft delete keeps the row
	withDeleted, err := repo.NewSelect().Model((*model.User)(nil)).WhereAllWithDeleted().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, withDeleted)

	assert.ErrorIs(t, repo.Delete(ctx, "missing"), sql.ErrNoRows)
}

func TestPage(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRepository[model.User](testutil.SyncedDB(t))
	seedUsers(t, repo, 5)

	page, err := repo.Page(ctx, types.NewPageRequest(2, 2).OrderBy("email ASC"))
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.Pages())
	require.Len(t, page.Items, 2)
	assert.Equal(t, "c@learnx.com", page.Items[0].Email)
	assert.Equal(t, "d@learnx.com", page.Items[1].Email)

	empty, err := repo.Page(ctx, types.NewPageRequest(1, 10).Where("email = ?", "nobody@learnx.com"))
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Empty(t, empty.Items)
}

func TestFindOrCreate(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRepository[model.User](testutil.SyncedDB(t))

	first, created, err := repo.FindOrCreate(ctx,
		model.NewUser("Ada Lovelace", "ada@learnx.com", "secret123", model.RoleTeacher), "email = ?", "ada@learnx.com")
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := repo.FindOrCreate(ctx,
		model.NewUser("Someone Else", "ada@learnx.com", "other456", model.RoleStudent), "email = ?", "ada@learnx.com")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Ada Lovelace", second.Name)

	// a conflicting insert is ignored instead of failing
	inserted, err := repo.CreateIfAbsent(ctx, model.NewUser("Ada Again", "ada@learnx.com", "secret123", model.RoleStudent))
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestFindOrCreateSeesSoftDeletedRows(t *testing.T) {
	ctx := context.Background()
	db := testutil.SyncedDB(t)
	repo := repository.NewRepository[model.User](db)

	ada, _, err := repo.FindOrCreate(ctx,
		model.NewUser("Ada Lovelace", "ada@learnx.com", "secret123", model.RoleTeacher), "email = ?", "ada@learnx.com")
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, ada.ID))

	again, created, err := repo.FindOrCreate(ctx,
		model.NewUser("Ada Again", "ada@learnx.com", "other456", model.RoleStudent), "email = ?", "ada@learnx.com")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, ada.ID, again.ID)
	assert.False(t, again.DeletedAt.IsZero())

	// models without soft delete take the plain lookup
	_, _, err = repository.NewRepository[database.Migration](db).FindOrCreate(ctx,
		&database.Migration{Version: "manual:v1", Name: "manual", AppliedAt: time.Now()}, "version = ?", "manual:v1")
	require.NoError(t, err)
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	db := testutil.SyncedDB(t)
	repo := repository.NewRepository[model.User](db)

	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		seedUsers(t, repo.WithTx(tx), 2)
		return sql.ErrTxDone
	})
	assert.ErrorIs(t, err, sql.ErrTxDone)

	count, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}
