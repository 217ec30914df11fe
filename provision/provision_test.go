package provision

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"syscall"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/learnx/database"
)

func serverConfig(d database.Dialect) *database.ConnectionConfig {
	cfg := database.DefaultConnectionConfig()
	cfg.Type = string(d)
	cfg.DBName = "learnx"
	return cfg
}

// sequenceOpener hands out the given handles in order and records the
// database names it was asked for.
func sequenceOpener(t *testing.T, names *[]string, dbs ...*sql.DB) Opener {
	return func(d database.Dialect, cfg *database.ConnectionConfig, dbName string) (*sql.DB, error) {
		*names = append(*names, dbName)
		require.NotEmpty(t, dbs, "unexpected connection to %q", dbName)
		db := dbs[0]
		dbs = dbs[1:]
		return db, nil
	}
}

func expectDescribe(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(regexp.QuoteMeta("SHOW server_version")).
		WillReturnRows(sqlmock.NewRows([]string{"server_version"}).AddRow("15.4"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT pg_database_size(current_database())")).
		WillReturnRows(sqlmock.NewRows([]string{"size"}).AddRow(int64(8_000_000)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT table_name FROM information_schema.tables")).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("courses").AddRow("users"))
}

func TestRunCreatesMissingPostgresDatabase(t *testing.T) {
	admin, adminMock, err := sqlmock.New()
	require.NoError(t, err)
	target, targetMock, err := sqlmock.New()
	require.NoError(t, err)

	adminMock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM pg_database WHERE datname = $1")).
		WithArgs("learnx").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	adminMock.ExpectExec(regexp.QuoteMeta(`CREATE DATABASE "learnx"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	expectDescribe(targetMock)

	var names []string
	p := New(serverConfig(database.DialectPostgres),
		WithOpener(sequenceOpener(t, &names, admin, target)), WithLogger(database.NopLogger{}))
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Created)
	assert.Equal(t, "15.4", report.ServerVersion)
	assert.Equal(t, "8.0 MB", report.Size)
	assert.Equal(t, []string{"courses", "users"}, report.Tables)
	assert.Equal(t, []string{"postgres", "learnx"}, names)
	assert.NoError(t, adminMock.ExpectationsWereMet())
	assert.NoError(t, targetMock.ExpectationsWereMet())
}

func TestRunSkipsExistingDatabase(t *testing.T) {
	admin, adminMock, err := sqlmock.New()
	require.NoError(t, err)
	target, targetMock, err := sqlmock.New()
	require.NoError(t, err)

	adminMock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM pg_database")).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	expectDescribe(targetMock)

	var names []string
	report, err := New(serverConfig(database.DialectPostgres),
		WithOpener(sequenceOpener(t, &names, admin, target)), WithLogger(database.NopLogger{})).
		Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Created)
	assert.NoError(t, adminMock.ExpectationsWereMet())
}

func TestRunTreatsConcurrentCreateAsSuccess(t *testing.T) {
	admin, adminMock, err := sqlmock.New()
	require.NoError(t, err)
	target, targetMock, err := sqlmock.New()
	require.NoError(t, err)

	adminMock.ExpectQuery("SELECT 1 FROM pg_database").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	adminMock.ExpectExec("CREATE DATABASE").
		WillReturnError(&pgconn.PgError{Code: "42P04", Message: `database "learnx" already exists`})
	expectDescribe(targetMock)

	var names []string
	report, err := New(serverConfig(database.DialectPostgres),
		WithOpener(sequenceOpener(t, &names, admin, target)), WithLogger(database.NopLogger{})).
		Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Created)
}

func TestRunPermissionDenied(t *testing.T) {
	admin, adminMock, err := sqlmock.New()
	require.NoError(t, err)

	adminMock.ExpectQuery("SELECT 1 FROM pg_database").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	adminMock.ExpectExec("CREATE DATABASE").
		WillReturnError(&pgconn.PgError{Code: "42501", Message: "permission denied to create database"})

	var names []string
	cfg := serverConfig(database.DialectPostgres)
	_, err = New(cfg, WithOpener(sequenceOpener(t, &names, admin)), WithLogger(database.NopLogger{})).
		Run(context.Background())

	var perr *ProvisionError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, KindPermission, perr.Kind)
	assert.Equal(t, "create", perr.Stage)
}

func TestRunClassifiesConnectFailures(t *testing.T) {
	cases := []struct {
		name    string
		dialect database.Dialect
		err     error
		kind    ErrorKind
	}{
		{"refused", database.DialectPostgres, fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), KindUnreachable},
		{"pg auth", database.DialectPostgres, &pgconn.PgError{Code: "28P01"}, KindAuth},
		{"mysql auth", database.DialectMySQL, &mysql.MySQLError{Number: 1045, Message: "Access denied"}, KindAuth},
		{"other", database.DialectPostgres, errors.New("boom"), KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
			require.NoError(t, err)
			mock.ExpectPing().WillReturnError(tc.err)

			var names []string
			_, err = New(serverConfig(tc.dialect), WithOpener(sequenceOpener(t, &names, db)), WithLogger(database.NopLogger{})).
				Run(context.Background())
			var perr *ProvisionError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tc.kind, perr.Kind)
			assert.Equal(t, "connect", perr.Stage)
		})
	}
}

func TestRunMySQL(t *testing.T) {
	admin, adminMock, err := sqlmock.New()
	require.NoError(t, err)
	target, targetMock, err := sqlmock.New()
	require.NoError(t, err)

	adminMock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM INFORMATION_SCHEMA.SCHEMATA WHERE SCHEMA_NAME = ?")).
		WithArgs("learnx").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	adminMock.ExpectExec(regexp.QuoteMeta("CREATE DATABASE `learnx` CHARACTER SET utf8mb4")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	targetMock.ExpectQuery(regexp.QuoteMeta("SELECT VERSION()")).
		WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow("8.0.36"))
	targetMock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"size"}).AddRow(int64(0)))
	targetMock.ExpectQuery("SELECT TABLE_NAME").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}))

	var names []string
	cfg := serverConfig(database.DialectMySQL)
	cfg.Port = 3306
	report, err := New(cfg, WithOpener(sequenceOpener(t, &names, admin, target)), WithLogger(database.NopLogger{})).
		Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Created)
	assert.Equal(t, "0 B", report.Size)
	assert.Empty(t, report.Tables)
	assert.Equal(t, []string{"", "learnx"}, names)
}

func TestProvisionEmbeddedIsNoop(t *testing.T) {
	cfg := database.DefaultConnectionConfig()
	cfg.DBName = ""
	opener := func(database.Dialect, *database.ConnectionConfig, string) (*sql.DB, error) {
		t.Fatal("embedded dialect must not connect")
		return nil, nil
	}
	assert.True(t, Provision(context.Background(), cfg, WithOpener(opener), WithLogger(database.NopLogger{})))
}

func TestProvisionReportsFailure(t *testing.T) {
	opener := func(database.Dialect, *database.ConnectionConfig, string) (*sql.DB, error) {
		return nil, errors.New("no driver")
	}
	assert.False(t, Provision(context.Background(), serverConfig(database.DialectPostgres),
		WithOpener(opener), WithLogger(database.NopLogger{})))
}

func TestCreateQuotesDatabaseName(t *testing.T) {
	assert.Equal(t,
		"CREATE DATABASE `learnx`` ; DROP DATABASE mysql; -- ` CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci",
		queries[database.DialectMySQL].create("learnx` ; DROP DATABASE mysql; -- "))
	assert.Equal(t, `CREATE DATABASE "learnx"" ; DROP DATABASE postgres; --"`,
		queries[database.DialectPostgres].create(`learnx" ; DROP DATABASE postgres; --`))
}
