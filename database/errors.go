/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

type SQLError int

const (
	UnknownErr SQLError = iota
	NoRowsErr
	NoIndexErr
	NoColumnErr
	ExistIndexErr
	ExistColumnErr
	NoTableErr
	ExistTableErr
	ExistConstraintErr
	ExistDatabaseErr
	DuplicateKeyErr
	NotNullViolationErr
	ForeignKeyViolationErr
	CheckConstraintViolationErr
	DataTruncatedErr
	InvalidTypeCastErr
)

// IsSqlError classifies driver errors from MySQL, PostgreSQL (lib/pq and pgx)
// and SQLite. The boolean is false when err does not look like a SQL error.
func IsSqlError(err error) (is bool, sqlErr SQLError) {
	if err == nil {
		return false, UnknownErr
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1091:
			return true, NoIndexErr
		case 1054:
			return true, NoColumnErr
		case 1061:
			return true, ExistIndexErr
		case 1060:
			return true, ExistColumnErr
		case 1050:
			return true, ExistTableErr
		case 1007:
			return true, ExistDatabaseErr
		case 1826:
			return true, ExistConstraintErr
		case 1062:
			return true, DuplicateKeyErr
		case 1048:
			return true, NotNullViolationErr
		case 1216, 1217, 1451, 1452:
			return true, ForeignKeyViolationErr
		case 3819:
			return true, CheckConstraintViolationErr
		case 1265, 1406:
			return true, DataTruncatedErr
		case 1146:
			return true, NoTableErr
		default:
			return true, UnknownErr
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return true, sqlStateError(string(pqErr.Code))
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return true, sqlStateError(pgErr.Code)
	}

	s := strings.ToLower(err.Error())
	if strings.Contains(s, "sqlstate 42703") ||
		strings.Contains(s, "undefined column") ||
		strings.Contains(s, "no such column") {
		return true, NoColumnErr
	}
	if strings.Contains(s, "duplicate column name") {
		return true, ExistColumnErr
	}
	if strings.Contains(s, "sqlstate 42704") ||
		strings.Contains(s, "no such index") ||
		(strings.Contains(s, "does not exist") && strings.Contains(s, "index")) {
		return true, NoIndexErr
	}
	if strings.Contains(s, "sqlstate 42p01") ||
		strings.Contains(s, "undefined table") ||
		strings.Contains(s, "no such table") {
		return true, NoTableErr
	}
	if strings.Contains(s, "already exists") &&
		strings.Contains(s, "index") {
		return true, ExistIndexErr
	}
	if strings.Contains(s, "already exists") &&
		strings.Contains(s, "constraint") {
		return true, ExistConstraintErr
	}
	if strings.Contains(s, "already exists") &&
		strings.Contains(s, "database") {
		return true, ExistDatabaseErr
	}
	if strings.Contains(s, "already exists") &&
		strings.Contains(s, "table") ||
		strings.Contains(s, "relation") &&
			strings.Contains(s, "already exists") {
		return true, ExistTableErr
	}
	if strings.Contains(s, "duplicate key value") ||
		strings.Contains(s, "unique constraint failed") ||
		strings.Contains(s, "sqlstate 23505") {
		return true, DuplicateKeyErr
	}
	if strings.Contains(s, "not-null constraint") ||
		strings.Contains(s, "sqlstate 23502") ||
		strings.Contains(s, "not null constraint failed") {
		return true, NotNullViolationErr
	}
	if strings.Contains(s, "foreign key violation") ||
		strings.Contains(s, "foreign key constraint failed") ||
		strings.Contains(s, "sqlstate 23503") {
		return true, ForeignKeyViolationErr
	}
	if strings.Contains(s, "check constraint") ||
		strings.Contains(s, "sqlstate 23514") {
		return true, CheckConstraintViolationErr
	}
	if strings.Contains(s, "string data right truncation") ||
		strings.Contains(s, "sqlstate 22001") ||
		strings.Contains(s, "data truncated") {
		return true, DataTruncatedErr
	}
	if strings.Contains(s, "datatype mismatch") ||
		strings.Contains(s, "sqlstate 42804") {
		return true, InvalidTypeCastErr
	}
	return false, UnknownErr
}

func sqlStateError(code string) SQLError {
	switch strings.ToUpper(code) {
	case "42703":
		return NoColumnErr
	case "42704":
		return NoIndexErr
	case "42P01":
		return NoTableErr
	case "42P07":
		return ExistTableErr
	case "42701":
		return ExistColumnErr
	case "42710":
		return ExistConstraintErr
	case "42P04":
		return ExistDatabaseErr
	case "23505":
		return DuplicateKeyErr
	case "23502":
		return NotNullViolationErr
	case "23503":
		return ForeignKeyViolationErr
	case "23514":
		return CheckConstraintViolationErr
	case "22001":
		return DataTruncatedErr
	case "42804":
		return InvalidTypeCastErr
	default:
		return UnknownErr
	}
}

// IsBenign reports whether err only says that the object being created is
// already there.
func IsBenign(err error) bool {
	if err == nil {
		return false
	}
	if is, kind := IsSqlError(err); is {
		switch kind {
		case ExistTableErr, ExistIndexErr, ExistColumnErr, ExistConstraintErr, ExistDatabaseErr, DuplicateKeyErr:
			return true
		}
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "already exists") || strings.Contains(s, "duplicate")
}

// ConnectionErrorKind tags why a connection attempt failed.
type ConnectionErrorKind string

const (
	ConnRefused         ConnectionErrorKind = "refused"
	ConnAuthRejected    ConnectionErrorKind = "auth_rejected"
	ConnUnknownDatabase ConnectionErrorKind = "unknown_database"
	ConnUnreachable     ConnectionErrorKind = "unreachable"
	ConnUnknown         ConnectionErrorKind = "unknown"
)

// ClassifyConnectionError maps a ping or dial error onto a ConnectionErrorKind.
func ClassifyConnectionError(err error) ConnectionErrorKind {
	if err == nil {
		return ConnUnknown
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ConnRefused
	}

	var code string
	var pqErr *pq.Error
	var pgErr *pgconn.PgError
	var mysqlErr *mysql.MySQLError
	switch {
	case errors.As(err, &pqErr):
		code = string(pqErr.Code)
	case errors.As(err, &pgErr):
		code = pgErr.Code
	case errors.As(err, &mysqlErr):
		switch mysqlErr.Number {
		case 1045, 1044:
			return ConnAuthRejected
		case 1049:
			return ConnUnknownDatabase
		}
	}
	switch code {
	case "28P01", "28000":
		return ConnAuthRejected
	case "3D000":
		return ConnUnknownDatabase
	}

	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "connection refused"):
		return ConnRefused
	case strings.Contains(s, "password authentication failed"),
		strings.Contains(s, "access denied"):
		return ConnAuthRejected
	case strings.Contains(s, "database") && strings.Contains(s, "does not exist"),
		strings.Contains(s, "unknown database"):
		return ConnUnknownDatabase
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) || errors.Is(err, context.DeadlineExceeded) {
		return ConnUnreachable
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ConnUnreachable
	}
	return ConnUnknown
}

// ConnectionError is returned once the retry budget of a health check is
// spent without reaching the database.
type ConnectionError struct {
	Kind     ConnectionErrorKind
	Dialect  Dialect
	Target   string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database connection failed (%s, dialect=%s, target=%s, attempts=%d): %v",
		e.Kind, e.Dialect, e.Target, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SyncError aborts schema synchronization for a table.
type SyncError struct {
	Table string
	Stage string
	Err   error
}

func (e *SyncError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("schema sync failed at %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("schema sync failed for table %s at %s: %v", e.Table, e.Stage, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
