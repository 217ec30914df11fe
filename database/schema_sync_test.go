package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/tomoncle/learnx/database"
	"github.com/tomoncle/learnx/internal/testutil"
	"github.com/tomoncle/learnx/model"
)

type widgetV1 struct {
	bun.BaseModel `bun:"table:widgets"`
	ID            int64  `bun:"id,pk,autoincrement"`
	Name          string `bun:"name,notnull"`
}

type widgetV2 struct {
	bun.BaseModel `bun:"table:widgets"`
	ID            int64   `bun:"id,pk,autoincrement"`
	Name          string  `bun:"name,notnull"`
	Color         string  `bun:"color,notnull,default:'red'"`
	Code          *string `bun:"code,unique"`
}

type gadget struct {
	bun.BaseModel `bun:"table:gadgets"`
	ID            int64 `bun:"id,pk,autoincrement"`
	WidgetID      int64 `bun:"widget_id"`
}

func devSync(db *bun.DB) *database.SchemaSynchronizer {
	return database.NewSchemaSynchronizer(db, database.SyncPolicy("development", false), database.NopLogger{})
}

func TestSyncPolicy(t *testing.T) {
	assert.Equal(t, database.SyncOptions{AlterExisting: true}, database.SyncPolicy("development", false))
	assert.Equal(t, database.SyncOptions{AlterExisting: true}, database.SyncPolicy("", false))
	assert.Equal(t, database.SyncOptions{}, database.SyncPolicy("production", false))
	assert.Equal(t, database.SyncOptions{ForceRecreate: true}, database.SyncPolicy(" PROD ", true))

	assert.True(t, database.IsProduction("Production"))
	assert.True(t, database.IsProduction("prod"))
	assert.False(t, database.IsProduction("staging"))
}

func TestSynchronizeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := testutil.SQLiteManager(t).GetDB()

	first, err := devSync(db).Synchronize(ctx, model.Entities())
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "courses", "enrollments"}, first.Created)
	assert.Empty(t, first.Warnings)
	assert.Contains(t, first.Columns["users"], "email")
	assert.Contains(t, first.Columns["enrollments"], "certificate_issued_at")

	second, err := devSync(db).Synchronize(ctx, model.Entities())
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	assert.Empty(t, second.Altered)
	assert.Equal(t, []string{"users", "courses", "enrollments"}, second.Skipped)
	assert.Equal(t, first.Columns, second.Columns)

	applied, err := database.NewMigrationManager(db, database.NopLogger{}).GetAppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Len(t, applied, 3)
}

func TestSynchronizeAltersWithoutLosingRows(t *testing.T) {
	ctx := context.Background()
	db := testutil.SQLiteManager(t).GetDB()

	_, err := devSync(db).Synchronize(ctx, []database.EntityDefinition{{Model: (*widgetV1)(nil)}})
	require.NoError(t, err)
	_, err = db.NewInsert().Model(&widgetV1{Name: "sprocket"}).Exec(ctx)
	require.NoError(t, err)

	report, err := devSync(db).Synchronize(ctx, []database.EntityDefinition{{Model: (*widgetV2)(nil)}})
	require.NoError(t, err)
	assert.Equal(t, []string{"widgets"}, report.Altered)
	assert.Equal(t, []string{"code", "color", "id", "name"}, report.Columns["widgets"])

	var rows []widgetV2
	require.NoError(t, db.NewSelect().Model(&rows).Scan(ctx))
	require.Len(t, rows, 1)
	assert.Equal(t, "sprocket", rows[0].Name)
	assert.Equal(t, "red", rows[0].Color)
	assert.Nil(t, rows[0].Code)

	var indexes int
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'uk_widgets_code'").Scan(&indexes))
	assert.Equal(t, 1, indexes)

	again, err := devSync(db).Synchronize(ctx, []database.EntityDefinition{{Model: (*widgetV2)(nil)}})
	require.NoError(t, err)
	assert.Equal(t, []string{"widgets"}, again.Skipped)
}

func TestSynchronizeLeavesExistingTablesInProduction(t *testing.T) {
	ctx := context.Background()
	db := testutil.SQLiteManager(t).GetDB()

	_, err := devSync(db).Synchronize(ctx, []database.EntityDefinition{{Model: (*widgetV1)(nil)}})
	require.NoError(t, err)

	prod := database.NewSchemaSynchronizer(db, database.SyncPolicy("production", false), database.NopLogger{})
	report, err := prod.Synchronize(ctx, []database.EntityDefinition{{Model: (*widgetV2)(nil)}})
	require.NoError(t, err)
	assert.Equal(t, []string{"widgets"}, report.Skipped)
	assert.Equal(t, []string{"id", "name"}, report.Columns["widgets"])
}

func TestSynchronizeForceRecreate(t *testing.T) {
	ctx := context.Background()
	db := testutil.SQLiteManager(t).GetDB()
	defs := []database.EntityDefinition{{Model: (*widgetV1)(nil)}}

	_, err := devSync(db).Synchronize(ctx, defs)
	require.NoError(t, err)
	_, err = db.NewInsert().Model(&widgetV1{Name: "sprocket"}).Exec(ctx)
	require.NoError(t, err)

	force := database.NewSchemaSynchronizer(db, database.SyncPolicy("development", true), database.NopLogger{})
	report, err := force.Synchronize(ctx, defs)
	require.NoError(t, err)
	assert.Equal(t, []string{"widgets"}, report.Dropped)
	assert.Equal(t, []string{"widgets"}, report.Created)

	count, err := db.NewSelect().Model((*widgetV1)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSynchronizeWarnsOnForeignKeyForExistingEmbeddedTable(t *testing.T) {
	ctx := context.Background()
	db := testutil.SQLiteManager(t).GetDB()

	_, err := devSync(db).Synchronize(ctx, []database.EntityDefinition{
		{Model: (*widgetV1)(nil)},
		{Model: (*gadget)(nil)},
	})
	require.NoError(t, err)

	report, err := devSync(db).Synchronize(ctx, []database.EntityDefinition{
		{Model: (*gadget)(nil), ForeignKeys: []database.ForeignKeyConstraint{
			{Table: "gadgets", Column: "widget_id", ReferenceTable: "widgets", OnDelete: "CASCADE"},
		}},
		{Model: (*widgetV1)(nil)},
	})
	require.NoError(t, err)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "fk_gadgets_widget_id")
	assert.Contains(t, report.Skipped, "gadgets")
}

func TestSynchronizeCreatesForeignKeysOnNewTables(t *testing.T) {
	ctx := context.Background()
	db := testutil.SyncedDB(t)

	_, err := db.NewInsert().Model(&model.Enrollment{UserID: "missing", CourseID: "missing", Status: model.EnrollmentActive}).Exec(ctx)
	require.Error(t, err)
	_, kind := database.IsSqlError(err)
	assert.Equal(t, database.ForeignKeyViolationErr, kind)
}

func TestCourseRequiresExistingInstructor(t *testing.T) {
	ctx := context.Background()
	db := testutil.SyncedDB(t)

	_, err := db.NewInsert().Model(model.NewCourse("Orphan Course", "A course without a teacher", "Testing", "no-such-user")).Exec(ctx)
	require.Error(t, err)
	_, kind := database.IsSqlError(err)
	assert.Equal(t, database.ForeignKeyViolationErr, kind)
}

func TestSynchronizeRejectsCycles(t *testing.T) {
	db := testutil.SQLiteManager(t).GetDB()
	_, err := devSync(db).Synchronize(context.Background(), []database.EntityDefinition{
		{Model: (*widgetV1)(nil), ForeignKeys: []database.ForeignKeyConstraint{{Table: "widgets", Column: "gadget_id", ReferenceTable: "gadgets"}}},
		{Model: (*gadget)(nil), ForeignKeys: []database.ForeignKeyConstraint{{Table: "gadgets", Column: "widget_id", ReferenceTable: "widgets"}}},
	})
	var syncErr *database.SyncError
	require.True(t, errors.As(err, &syncErr))
	assert.Equal(t, "order", syncErr.Stage)
}
