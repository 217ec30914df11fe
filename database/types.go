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
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// Dialect identifies a database backend.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

const DefaultSQLitePath = "./database.sqlite"

// IsEmbedded reports whether the dialect stores everything in a local file.
func (d Dialect) IsEmbedded() bool { return d == DialectSQLite }

// ParseDialect accepts the common spellings of each supported dialect.
func ParseDialect(s string) (Dialect, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return DialectPostgres, true
	case "mysql", "mariadb":
		return DialectMySQL, true
	case "sqlite", "sqlite3", "embedded":
		return DialectSQLite, true
	default:
		return "", false
	}
}

// AbstractDatabaseManager owns one database handle: opening it, probing it
// with bounded retry and reporting its health.
type AbstractDatabaseManager interface {
	Open() error
	Connect(ctx context.Context) error
	Authenticate(ctx context.Context, maxAttempts int, delay time.Duration) *AuthResult
	Disconnect() error
	Ping(ctx context.Context) error
	HealthCheck(ctx context.Context) *HealthStatus
	GetDB() *bun.DB
	GetSQLDB() *sql.DB
	GetStats() *DBStats
	Config() ConnectionConfig
	Dialect() Dialect
	SetLogger(logger Logger)
}

// HealthStatus holds the result of a health check against the database.
type HealthStatus struct {
	Healthy       bool          `json:"healthy"`
	Connected     bool          `json:"connected"`
	Dialect       Dialect       `json:"dialect"`
	Target        string        `json:"target"`
	ResponseTime  time.Duration `json:"response_time"`
	ActiveConns   int           `json:"active_conns"`
	IdleConns     int           `json:"idle_conns"`
	MaxOpenConns  int           `json:"max_open_conns"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time"`
}

// DBStats mirrors database/sql stats returned by the manager.
type DBStats struct {
	MaxOpenConns      int           `json:"max_open_conns"`
	OpenConns         int           `json:"open_conns"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxIdleTimeClosed int64         `json:"max_idle_time_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
}

// ConnectionConfig describes how to connect to a database and tune its pool.
type ConnectionConfig struct {
	Type            string        `json:"type"` // postgres, mysql, sqlite
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Username        string        `json:"username"`
	Password        string        `json:"-"`
	DBName          string        `json:"dbname"`
	FilePath        string        `json:"file_path"`
	SSLMode         string        `json:"sslmode"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	MaxOpenConns    int           `json:"max_open_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `json:"connect_timeout"` // bounds every ping, the pool acquire timeout
	EnableQueryLog  bool          `json:"enable_query_log"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
	Charset         string        `json:"charset"` // MySQL only
}

// DefaultConnectionConfig returns the pool and server defaults used when the
// environment leaves them unset.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Type:            string(DialectPostgres),
		Host:            "localhost",
		Port:            5432,
		Username:        "postgres",
		Password:        "password",
		FilePath:        DefaultSQLitePath,
		SSLMode:         "disable",
		MaxIdleConns:    5,
		MaxOpenConns:    5,
		ConnMaxIdleTime: 10 * time.Second,
		ConnectTimeout:  30 * time.Second,
		SlowQueryTime:   2 * time.Second,
		Charset:         "utf8mb4",
	}
}

// ResolveDialect applies the selection rule: the embedded dialect when it is
// requested explicitly or when no database name is configured, otherwise the
// requested server dialect (postgres when unspecified).
func (c *ConnectionConfig) ResolveDialect() Dialect {
	d, ok := ParseDialect(c.Type)
	if ok && d.IsEmbedded() {
		return DialectSQLite
	}
	if strings.TrimSpace(c.DBName) == "" {
		return DialectSQLite
	}
	if ok {
		return d
	}
	return DialectPostgres
}

// Validate rejects dialect names that are neither empty nor supported.
func (c *ConnectionConfig) Validate() error {
	if strings.TrimSpace(c.Type) == "" {
		return nil
	}
	if _, ok := ParseDialect(c.Type); !ok {
		return fmt.Errorf("unsupported database type: %s, supported types: %v", c.Type,
			[]Dialect{DialectPostgres, DialectMySQL, DialectSQLite})
	}
	return nil
}

// EmbeddedFallback returns a copy of the configuration downgraded to the
// embedded dialect.
func (c ConnectionConfig) EmbeddedFallback() *ConnectionConfig {
	c.Type = string(DialectSQLite)
	if c.FilePath == "" {
		c.FilePath = DefaultSQLitePath
	}
	return &c
}

// SQLitePath is the database file used by the embedded dialect.
func (c *ConnectionConfig) SQLitePath() string {
	if strings.TrimSpace(c.FilePath) == "" {
		return DefaultSQLitePath
	}
	return c.FilePath
}

// Target describes where the configuration points, without credentials.
func (c *ConnectionConfig) Target() string {
	if c.ResolveDialect().IsEmbedded() {
		return c.SQLitePath()
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port)) + "/" + c.DBName
}
