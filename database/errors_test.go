package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsSqlError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		is   bool
		want SQLError
	}{
		{"nil", nil, false, UnknownErr},
		{"plain", errors.New("boom"), false, UnknownErr},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, true, DuplicateKeyErr},
		{"mysql table exists", &mysql.MySQLError{Number: 1050}, true, ExistTableErr},
		{"mysql fk", &mysql.MySQLError{Number: 1452}, true, ForeignKeyViolationErr},
		{"mysql other", &mysql.MySQLError{Number: 9999}, true, UnknownErr},
		{"pq unique", &pq.Error{Code: "23505"}, true, DuplicateKeyErr},
		{"pgx relation exists", &pgconn.PgError{Code: "42P07"}, true, ExistTableErr},
		{"pgx wrapped", fmt.Errorf("create: %w", &pgconn.PgError{Code: "42P01"}), true, NoTableErr},
		{"sqlite unique", errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)"), true, DuplicateKeyErr},
		{"sqlite fk", errors.New("constraint failed: FOREIGN KEY constraint failed (787)"), true, ForeignKeyViolationErr},
		{"sqlite not null", errors.New("NOT NULL constraint failed: users.name"), true, NotNullViolationErr},
		{"sqlite no table", errors.New("no such table: users"), true, NoTableErr},
		{"sqlite dup column", errors.New("duplicate column name: color"), true, ExistColumnErr},
		{"sqlite table exists", errors.New("table users already exists"), true, ExistTableErr},
		{"sqlite index exists", errors.New("index uk_users_email already exists"), true, ExistIndexErr},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			is, kind := IsSqlError(tc.err)
			assert.Equal(t, tc.is, is)
			assert.Equal(t, tc.want, kind)
		})
	}
}

func TestIsBenign(t *testing.T) {
	assert.False(t, IsBenign(nil))
	assert.False(t, IsBenign(errors.New("boom")))
	assert.False(t, IsBenign(&pgconn.PgError{Code: "23503"}))
	assert.True(t, IsBenign(&pgconn.PgError{Code: "42P07"}))
	assert.True(t, IsBenign(&mysql.MySQLError{Number: 1061}))
	assert.True(t, IsBenign(errors.New("constraint fk_x already exists")))
}

func TestClassifyConnectionError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ConnectionErrorKind
	}{
		{"nil", nil, ConnUnknown},
		{"errno", fmt.Errorf("dial tcp 127.0.0.1:5432: %w", syscall.ECONNREFUSED), ConnRefused},
		{"text refused", errors.New("dial tcp [::1]:3306: connect: connection refused"), ConnRefused},
		{"pg auth", &pgconn.PgError{Code: "28P01"}, ConnAuthRejected},
		{"pq auth", &pq.Error{Code: "28000"}, ConnAuthRejected},
		{"mysql auth", &mysql.MySQLError{Number: 1045}, ConnAuthRejected},
		{"pg unknown db", &pgconn.PgError{Code: "3D000"}, ConnUnknownDatabase},
		{"mysql unknown db", &mysql.MySQLError{Number: 1049}, ConnUnknownDatabase},
		{"dns", &net.DNSError{Err: "no such host", Name: "db.invalid"}, ConnUnreachable},
		{"deadline", fmt.Errorf("ping: %w", context.DeadlineExceeded), ConnUnreachable},
		{"other", errors.New("boom"), ConnUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyConnectionError(tc.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	connErr := &ConnectionError{Kind: ConnRefused, Dialect: DialectPostgres, Target: "localhost:5432/learnx", Attempts: 3, Err: syscall.ECONNREFUSED}
	assert.Contains(t, connErr.Error(), "refused")
	assert.Contains(t, connErr.Error(), "attempts=3")
	assert.ErrorIs(t, connErr, syscall.ECONNREFUSED)

	syncErr := &SyncError{Table: "users", Stage: "create", Err: assert.AnError}
	assert.Contains(t, syncErr.Error(), "table users at create")
	assert.ErrorIs(t, syncErr, assert.AnError)
	assert.Contains(t, (&SyncError{Stage: "order", Err: assert.AnError}).Error(), "failed at order")
}
