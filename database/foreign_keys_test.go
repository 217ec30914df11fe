package database

import (
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/schema"
)

func mockBun(t *testing.T, d schema.Dialect) *bun.DB {
	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqlDB, d)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func enrollmentUserFK() ForeignKeyConstraint {
	return ForeignKeyConstraint{
		Table:          "enrollments",
		Column:         "user_id",
		ReferenceTable: "users",
		OnDelete:       "restrict",
		OnUpdate:       "CASCADE",
	}
}

func TestForeignKeyGenerateSQL(t *testing.T) {
	fk := enrollmentUserFK()
	assert.Equal(t, "fk_enrollments_user_id", fk.GenerateConstraintName())

	assert.Equal(t,
		`ALTER TABLE "enrollments" ADD CONSTRAINT "fk_enrollments_user_id" FOREIGN KEY ("user_id") REFERENCES "users" ("id") ON DELETE RESTRICT ON UPDATE CASCADE`,
		fk.GenerateSQL(mockBun(t, pgdialect.New())))

	fk.ConstraintName = "enrollment_owner"
	fk.ReferenceColumn = "uid"
	fk.OnUpdate = ""
	assert.Equal(t,
		"ALTER TABLE `enrollments` ADD CONSTRAINT `enrollment_owner` FOREIGN KEY (`user_id`) REFERENCES `users` (`uid`) ON DELETE RESTRICT",
		fk.GenerateSQL(mockBun(t, mysqldialect.New())))
}

func TestForeignKeyApplyTo(t *testing.T) {
	db := mockBun(t, pgdialect.New())
	fk := enrollmentUserFK()
	q := fk.ApplyTo(db.NewCreateTable().Model((*book)(nil)))
	assert.Contains(t, q.String(), `FOREIGN KEY ("user_id") REFERENCES "users" ("id") ON DELETE RESTRICT ON UPDATE CASCADE`)
}

func TestForeignKeyValidate(t *testing.T) {
	fk := enrollmentUserFK()
	assert.NoError(t, fk.Validate())

	fk.OnDelete = "explode"
	assert.ErrorContains(t, fk.Validate(), "invalid referential action")

	assert.ErrorContains(t, (&ForeignKeyConstraint{}).Validate(), "table name")
	assert.ErrorContains(t, (&ForeignKeyConstraint{Table: "t"}).Validate(), "column name")
	assert.ErrorContains(t, (&ForeignKeyConstraint{Table: "t", Column: "c"}).Validate(), "reference table")
}

func TestForeignKeyConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "foreign_keys.yaml")
	want := []ForeignKeyConstraint{
		enrollmentUserFK(),
		{Table: "courses", Column: "instructor_id", ReferenceTable: "users", OnDelete: "RESTRICT", ConstraintName: "fk_course_instructor"},
	}
	require.NoError(t, ExportForeignKeyConfig(path, want))

	got, err := LoadForeignKeyConfig(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "users", got[0].ReferenceTable)
	assert.Equal(t, "id", got[0].ReferenceColumn)
	assert.Equal(t, "restrict", got[0].OnDelete)
	assert.Equal(t, "fk_course_instructor", got[1].GenerateConstraintName())
}

func TestLoadForeignKeyConfigRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadForeignKeyConfig(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read")

	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, ExportForeignKeyConfig(path, []ForeignKeyConstraint{{Table: "t", Column: "c"}}))
	_, err = LoadForeignKeyConfig(path)
	assert.ErrorContains(t, err, "reference table")
}
