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
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"
)

// DefaultRetryDelay separates two authentication attempts.
const DefaultRetryDelay = 2 * time.Second

// SQLOpener builds the *sql.DB for one dialect. sql.Open does not dial, so
// an opener only fails on malformed configuration.
type SQLOpener func(cfg *ConnectionConfig) (*sql.DB, error)

// ManagerOption customizes a manager created by NewDatabaseManager.
type ManagerOption func(*defaultDatabaseManager)

// WithOpener replaces the driver used for a dialect.
func WithOpener(d Dialect, fn SQLOpener) ManagerOption {
	return func(dm *defaultDatabaseManager) {
		dm.openers[d] = fn
	}
}

// WithManagerLogger sets the logger before the first connection attempt.
func WithManagerLogger(l Logger) ManagerOption {
	return func(dm *defaultDatabaseManager) {
		dm.logger = l
	}
}

type defaultDatabaseManager struct {
	config    *ConnectionConfig
	dialect   Dialect
	db        *bun.DB
	sqlDB     *sql.DB
	logger    Logger
	openers   map[Dialect]SQLOpener
	sleep     func(ctx context.Context, d time.Duration) error
	mu        sync.RWMutex
	connected bool
	lastError error
}

// NewDatabaseManager returns an AbstractDatabaseManager backed by Bun.
// If config is nil, DefaultConnectionConfig is used.
func NewDatabaseManager(config *ConnectionConfig, opts ...ManagerOption) AbstractDatabaseManager {
	if config == nil {
		config = DefaultConnectionConfig()
	}
	dm := &defaultDatabaseManager{
		config:  config,
		dialect: config.ResolveDialect(),
		logger:  GetLogger(),
		sleep:   sleepContext,
		openers: map[Dialect]SQLOpener{
			DialectPostgres: openPostgres,
			DialectMySQL:    openMySQL,
			DialectSQLite:   openSQLite,
		},
	}
	for _, opt := range opts {
		opt(dm)
	}
	return dm
}

func (dm *defaultDatabaseManager) Open() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.openLocked()
}

func (dm *defaultDatabaseManager) openLocked() error {
	if dm.db != nil {
		return nil
	}
	if err := dm.config.Validate(); err != nil {
		return err
	}
	opener, ok := dm.openers[dm.dialect]
	if !ok {
		return fmt.Errorf("unsupported database type: %s", dm.dialect)
	}
	if dm.config.ConnectTimeout <= 0 {
		dm.config.ConnectTimeout = 30 * time.Second
	}

	sqlDB, err := opener(dm.config)
	if err != nil {
		dm.lastError = err
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	dm.sqlDB = sqlDB
	dm.configureConnectionPool()

	dm.db = bun.NewDB(sqlDB, bunDialect(dm.dialect))
	if dm.config.EnableQueryLog {
		dm.db.AddQueryHook(NewQueryHook(os.Stdout))
	} else {
		dm.db.AddQueryHook(bundebug.NewQueryHook(bundebug.FromEnv("BUNDEBUG")))
	}
	if dm.config.SlowQueryTime > 0 {
		dm.db.AddQueryHook(&slowQueryHook{slowTime: dm.config.SlowQueryTime, logger: dm.logger})
	}
	dm.logger.Debug("Database handle created", "dialect", dm.dialect, "target", dm.config.Target())
	return nil
}

func bunDialect(d Dialect) schema.Dialect {
	switch d {
	case DialectMySQL:
		return mysqldialect.New()
	case DialectSQLite:
		return sqlitedialect.New()
	default:
		return pgdialect.New()
	}
}

func openPostgres(cfg *ConnectionConfig) (*sql.DB, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("connect_timeout", strconv.Itoa(int(cfg.ConnectTimeout.Seconds())))
	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.DBName,
		RawQuery: q.Encode(),
	}
	return sql.Open("postgres", dsn.String())
}

func openMySQL(cfg *ConnectionConfig) (*sql.DB, error) {
	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = cfg.DBName
	mc.ParseTime = true
	mc.Loc = time.Local
	mc.Timeout = cfg.ConnectTimeout
	charset := cfg.Charset
	if charset == "" {
		charset = "utf8mb4"
	}
	mc.Params = map[string]string{"charset": charset}
	return sql.Open("mysql", mc.FormatDSN())
}

func openSQLite(cfg *ConnectionConfig) (*sql.DB, error) {
	path := cfg.SQLitePath()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
	}
	return sql.Open(sqliteshim.ShimName, path)
}

// configureConnectionPool applies pool limits. The embedded dialect keeps a
// single long-lived connection so per-connection pragmas stay in effect.
func (dm *defaultDatabaseManager) configureConnectionPool() {
	if dm.sqlDB == nil {
		return
	}
	if dm.dialect.IsEmbedded() {
		dm.sqlDB.SetMaxOpenConns(1)
		dm.sqlDB.SetMaxIdleConns(1)
		dm.sqlDB.SetConnMaxLifetime(0)
		dm.sqlDB.SetConnMaxIdleTime(0)
		return
	}
	maxOpen := dm.config.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 5
	}
	maxIdle := dm.config.MaxIdleConns
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}
	dm.sqlDB.SetMaxOpenConns(maxOpen)
	dm.sqlDB.SetMaxIdleConns(maxIdle)
	dm.sqlDB.SetConnMaxLifetime(dm.config.ConnMaxLifetime)
	dm.sqlDB.SetConnMaxIdleTime(dm.config.ConnMaxIdleTime)
}

// Connect opens the handle and probes it once.
func (dm *defaultDatabaseManager) Connect(ctx context.Context) error {
	res := dm.Authenticate(ctx, 1, 0)
	if res.Decision != DecisionHealthy {
		return fmt.Errorf("database connection test failed: %w", res.Err)
	}
	return nil
}

// Authenticate pings the database up to maxAttempts times, waiting delay
// between attempts, and returns the decision the caller should act on.
func (dm *defaultDatabaseManager) Authenticate(ctx context.Context, maxAttempts int, delay time.Duration) *AuthResult {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	res := &AuthResult{Dialect: dm.dialect, Target: dm.config.Target()}

	if err := dm.Open(); err != nil {
		res.Err = err
		res.Kind = ClassifyConnectionError(err)
		res.Decision = DecisionFail
		return res
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res.Attempts = attempt
		err := dm.probe(ctx)
		if err == nil {
			res.Err = nil
			res.Kind = ""
			res.Decision = DecisionHealthy
			dm.logger.Info("Database connected successfully", "dialect", dm.dialect, "target", res.Target, "attempt", attempt)
			return res
		}
		res.Err = err
		res.Kind = ClassifyConnectionError(err)
		dm.logger.Warn("Database authentication failed",
			"dialect", dm.dialect, "target", res.Target, "attempt", attempt, "max_attempts", maxAttempts, "error", err)

		if attempt < maxAttempts {
			if err := dm.sleep(ctx, delay); err != nil {
				res.Err = err
				res.Kind = ClassifyConnectionError(err)
				break
			}
		}
	}

	res.Decision = decide(res)
	return res
}

func (dm *defaultDatabaseManager) probe(ctx context.Context) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, dm.config.ConnectTimeout)
	defer cancel()

	dm.mu.Lock()
	defer dm.mu.Unlock()
	if err := dm.db.PingContext(ctxTimeout); err != nil {
		dm.connected = false
		dm.lastError = err
		return err
	}
	if dm.dialect.IsEmbedded() && !dm.connected {
		if _, err := dm.db.ExecContext(ctxTimeout, "PRAGMA foreign_keys = ON"); err != nil {
			dm.lastError = err
			return fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}
	dm.connected = true
	dm.lastError = nil
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (dm *defaultDatabaseManager) Disconnect() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.db == nil {
		return nil
	}
	err := dm.db.Close()
	dm.db = nil
	dm.sqlDB = nil
	dm.connected = false

	if err != nil {
		dm.logger.Error("Failed to close database connection", "error", err)
	} else {
		dm.logger.Info("Database connection closed", "dialect", dm.dialect)
	}
	return err
}

func (dm *defaultDatabaseManager) Ping(ctx context.Context) error {
	dm.mu.RLock()
	db := dm.db
	dm.mu.RUnlock()

	if db == nil {
		return fmt.Errorf("database not connected")
	}
	return db.PingContext(ctx)
}

func (dm *defaultDatabaseManager) GetDB() *bun.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.db
}

func (dm *defaultDatabaseManager) GetSQLDB() *sql.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.sqlDB
}

func (dm *defaultDatabaseManager) Config() ConnectionConfig {
	return *dm.config
}

func (dm *defaultDatabaseManager) Dialect() Dialect {
	return dm.dialect
}

func (dm *defaultDatabaseManager) HealthCheck(ctx context.Context) *HealthStatus {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	start := time.Now()
	status := &HealthStatus{
		LastCheckTime: start,
		Connected:     dm.connected,
		Dialect:       dm.dialect,
		Target:        dm.config.Target(),
	}

	if dm.db == nil {
		status.LastError = "Database not initialized"
		return status
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, dm.config.ConnectTimeout)
	defer cancel()

	err := dm.db.PingContext(ctxTimeout)
	status.ResponseTime = time.Since(start)

	if err != nil {
		status.Connected = false
		status.LastError = err.Error()
		dm.lastError = err
	} else {
		status.Healthy = true
		status.Connected = true
		dm.lastError = nil
	}

	if dm.sqlDB != nil {
		stats := dm.sqlDB.Stats()
		status.ActiveConns = stats.InUse
		status.IdleConns = stats.Idle
		status.MaxOpenConns = stats.MaxOpenConnections
	}

	return status
}

func (dm *defaultDatabaseManager) GetStats() *DBStats {
	dm.mu.RLock()
	sqlDB := dm.sqlDB
	dm.mu.RUnlock()

	if sqlDB == nil {
		return &DBStats{}
	}

	stats := sqlDB.Stats()
	return &DBStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxIdleTimeClosed: stats.MaxIdleTimeClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

func (dm *defaultDatabaseManager) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.logger = logger
}

type slowQueryHook struct {
	slowTime time.Duration
	logger   Logger
}

func (h *slowQueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *slowQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if event.Err != nil || h.logger == nil {
		return
	}
	duration := time.Since(event.StartTime)
	if duration > h.slowTime {
		h.logger.Warn("Database slow query detected",
			"duration", duration,
			"slow_threshold", h.slowTime,
			"query", event.Query,
		)
	}
}
