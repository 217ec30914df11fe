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
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/tomoncle/learnx/database"
)

// Opener connects to dbName on the configured server. An empty dbName means
// the administrative connection.
type Opener func(d database.Dialect, cfg *database.ConnectionConfig, dbName string) (*sql.DB, error)

// Report describes the provisioned database.
type Report struct {
	Dialect       database.Dialect
	Database      string
	Created       bool
	ServerVersion string
	SizeBytes     uint64
	Size          string
	Tables        []string
}

type Option func(*Provisioner)

func WithOpener(fn Opener) Option {
	return func(p *Provisioner) { p.open = fn }
}

func WithLogger(l database.Logger) Option {
	return func(p *Provisioner) { p.logger = l }
}

// Provisioner creates the target database on a PostgreSQL or MySQL server.
type Provisioner struct {
	cfg    *database.ConnectionConfig
	open   Opener
	logger database.Logger
}

func New(cfg *database.ConnectionConfig, opts ...Option) *Provisioner {
	p := &Provisioner{cfg: cfg, open: defaultOpener, logger: database.GetLogger()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type dialectQueries struct {
	adminDB string
	exists  string
	create  func(name string) string
	version string
	size    string
	tables  string
}

var queries = map[database.Dialect]dialectQueries{
	database.DialectPostgres: {
		adminDB: "postgres",
		exists:  "SELECT 1 FROM pg_database WHERE datname = $1",
		create: func(name string) string {
			return "CREATE DATABASE " + pgx.Identifier{name}.Sanitize()
		},
		version: "SHOW server_version",
		size:    "SELECT pg_database_size(current_database())",
		tables:  "SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name",
	},
	database.DialectMySQL: {
		exists: "SELECT 1 FROM INFORMATION_SCHEMA.SCHEMATA WHERE SCHEMA_NAME = ?",
		create: func(name string) string {
			return "CREATE DATABASE " + quoteMySQL(name) + " CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci"
		},
		version: "SELECT VERSION()",
		size:    "SELECT COALESCE(SUM(DATA_LENGTH + INDEX_LENGTH), 0) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = DATABASE()",
		tables:  "SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME",
	},
}

func quoteMySQL(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Run makes sure the target database exists and describes it. The embedded
// dialect has nothing to provision.
func (p *Provisioner) Run(ctx context.Context) (*Report, error) {
	d := p.cfg.ResolveDialect()
	report := &Report{Dialect: d, Database: p.cfg.DBName}
	if d.IsEmbedded() {
		p.logger.Info("Embedded database selected, nothing to provision", "path", p.cfg.SQLitePath())
		return report, nil
	}
	q := queries[d]
	name := p.cfg.DBName

	admin, err := p.connect(ctx, d, q.adminDB)
	if err != nil {
		return nil, p.fail("connect", err)
	}
	created, err := p.ensure(ctx, admin, q, name)
	_ = admin.Close()
	if err != nil {
		return nil, err
	}
	report.Created = created

	target, err := p.connect(ctx, d, name)
	if err != nil {
		return nil, p.fail("verify", err)
	}
	defer target.Close()
	if err := p.describe(ctx, target, q, report); err != nil {
		return nil, p.fail("describe", err)
	}

	p.logger.Info("Database ready",
		"database", name, "created", report.Created, "server_version", report.ServerVersion,
		"size", report.Size, "tables", len(report.Tables))
	return report, nil
}

func (p *Provisioner) connect(ctx context.Context, d database.Dialect, dbName string) (*sql.DB, error) {
	db, err := p.open(d, p.cfg, dbName)
	if err != nil {
		return nil, err
	}
	timeout := p.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (p *Provisioner) ensure(ctx context.Context, admin *sql.DB, q dialectQueries, name string) (bool, error) {
	var one int
	err := admin.QueryRowContext(ctx, q.exists, name).Scan(&one)
	switch {
	case err == nil:
		p.logger.Info("Database already exists", "database", name)
		return false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, p.fail("lookup", err)
	}

	p.logger.Info("Creating database", "database", name)
	if _, err := admin.ExecContext(ctx, q.create(name)); err != nil {
		if isDuplicateDatabase(err) {
			p.logger.Warn("Database was created concurrently", "database", name)
			return false, nil
		}
		return false, p.fail("create", err)
	}
	return true, nil
}

func (p *Provisioner) describe(ctx context.Context, db *sql.DB, q dialectQueries, report *Report) error {
	if err := db.QueryRowContext(ctx, q.version).Scan(&report.ServerVersion); err != nil {
		return err
	}
	var size int64
	if err := db.QueryRowContext(ctx, q.size).Scan(&size); err != nil {
		return err
	}
	if size > 0 {
		report.SizeBytes = uint64(size)
	}
	report.Size = humanize.Bytes(report.SizeBytes)

	rows, err := db.QueryContext(ctx, q.tables)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return err
		}
		report.Tables = append(report.Tables, t)
	}
	return rows.Err()
}

func (p *Provisioner) fail(stage string, err error) error {
	kind := classify(err)
	for _, h := range hints(kind, p.cfg) {
		p.logger.Warn(h)
	}
	return &ProvisionError{Kind: kind, Database: p.cfg.DBName, Stage: stage, Err: err}
}

// Provision runs a Provisioner and reports success. Failures are logged.
func Provision(ctx context.Context, cfg *database.ConnectionConfig, opts ...Option) bool {
	p := New(cfg, opts...)
	if _, err := p.Run(ctx); err != nil {
		p.logger.Error("Database provisioning failed", "error", err)
		return false
	}
	return true
}

func defaultOpener(d database.Dialect, cfg *database.ConnectionConfig, dbName string) (*sql.DB, error) {
	switch d {
	case database.DialectMySQL:
		mc := mysql.NewConfig()
		mc.User = cfg.Username
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		mc.DBName = dbName
		mc.Timeout = cfg.ConnectTimeout
		connector, err := mysql.NewConnector(mc)
		if err != nil {
			return nil, err
		}
		return sql.OpenDB(connector), nil
	case database.DialectPostgres:
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(cfg.Username, cfg.Password),
			Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Path:     "/" + dbName,
			RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
		}
		connConfig, err := pgx.ParseConfig(u.String())
		if err != nil {
			return nil, err
		}
		if cfg.ConnectTimeout > 0 {
			connConfig.ConnectTimeout = cfg.ConnectTimeout
		}
		return stdlib.OpenDB(*connConfig), nil
	default:
		return nil, fmt.Errorf("dialect %s cannot be provisioned", d)
	}
}
