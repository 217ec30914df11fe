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

package provision

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tomoncle/learnx/database"
)

type ErrorKind string

const (
	KindPermission  ErrorKind = "permission"
	KindUnreachable ErrorKind = "unreachable"
	KindAuth        ErrorKind = "auth"
	KindUnknown     ErrorKind = "unknown"
)

// ProvisionError reports why the target database could not be prepared.
type ProvisionError struct {
	Kind     ErrorKind
	Database string
	Stage    string
	Err      error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provisioning %s failed at %s (%s): %v", e.Database, e.Stage, e.Kind, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

func classify(err error) ErrorKind {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42501" {
		return KindPermission
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1044, 1227:
			return KindPermission
		case 1045:
			return KindAuth
		}
	}
	if strings.Contains(strings.ToLower(err.Error()), "permission denied") {
		return KindPermission
	}
	switch database.ClassifyConnectionError(err) {
	case database.ConnAuthRejected:
		return KindAuth
	case database.ConnRefused, database.ConnUnreachable:
		return KindUnreachable
	}
	return KindUnknown
}

// hints explains a failure to the operator.
func hints(kind ErrorKind, cfg *database.ConnectionConfig) []string {
	switch kind {
	case KindPermission:
		return []string{
			fmt.Sprintf("user %q may not create databases", cfg.Username),
			"grant the privilege (PostgreSQL: `ALTER ROLE <user> CREATEDB`, MySQL: `GRANT CREATE ON *.* TO <user>`) or create the database as an administrator",
		}
	case KindAuth:
		return database.RemediationHints(database.ConnAuthRejected, cfg)
	case KindUnreachable:
		return database.RemediationHints(database.ConnRefused, cfg)
	default:
		return nil
	}
}

func isDuplicateDatabase(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P04"
	}
	_, kind := database.IsSqlError(err)
	return kind == database.ExistDatabaseErr
}
