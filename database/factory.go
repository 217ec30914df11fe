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
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// BaseDatabaseFactory creates the database manager for a configuration and
// runs the startup health check, including the one-time downgrade to the
// embedded dialect.
type BaseDatabaseFactory struct {
	manager AbstractDatabaseManager
	logger  Logger
	options []ManagerOption
}

// ConnectOutcome records what the startup health check did.
type ConnectOutcome struct {
	Requested Dialect
	Dialect   Dialect
	FellBack  bool
	Results   []*AuthResult
}

// NewDatabaseFactory returns a factory; opts are passed to every manager it
// creates, including the fallback one.
func NewDatabaseFactory(opts ...ManagerOption) *BaseDatabaseFactory {
	return &BaseDatabaseFactory{
		logger:  GetLogger(),
		options: opts,
	}
}

// CreateFromConfig constructs a database manager from the given connection
// configuration.
func (f *BaseDatabaseFactory) CreateFromConfig(cfg *ConnectionConfig) (AbstractDatabaseManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := append([]ManagerOption{WithManagerLogger(f.logger)}, f.options...)
	manager := NewDatabaseManager(cfg, opts...)
	f.manager = manager

	f.logger.Info("Database configuration resolved",
		"requested", cfg.Type, "dialect", manager.Dialect(), "target", cfg.Target())
	return manager, nil
}

// HealthCheck authenticates the current manager up to maxAttempts times.
// When every attempt is refused by a server dialect, it logs remediation
// hints, swaps the manager for an embedded one and authenticates once more.
func (f *BaseDatabaseFactory) HealthCheck(ctx context.Context, maxAttempts int, delay time.Duration) (*ConnectOutcome, error) {
	if f.manager == nil {
		return nil, fmt.Errorf("database manager not created")
	}
	cfg := f.manager.Config()
	outcome := &ConnectOutcome{Requested: f.manager.Dialect(), Dialect: f.manager.Dialect()}

	res := f.manager.Authenticate(ctx, maxAttempts, delay)
	outcome.Results = append(outcome.Results, res)

	switch res.Decision {
	case DecisionHealthy:
		return outcome, nil
	case DecisionFail:
		f.logHints(res.Kind, &cfg)
		return outcome, res.AsError()
	}

	f.logHints(res.Kind, &cfg)
	fallback := cfg.EmbeddedFallback()
	f.logger.Warn("Falling back to the embedded database",
		"from", res.Dialect, "file", fallback.SQLitePath(), "attempts", res.Attempts)
	_ = f.manager.Disconnect()

	if _, err := f.CreateFromConfig(fallback); err != nil {
		return outcome, err
	}
	retry := f.manager.Authenticate(ctx, 1, 0)
	outcome.Results = append(outcome.Results, retry)
	outcome.Dialect = f.manager.Dialect()
	if retry.Decision != DecisionHealthy {
		return outcome, retry.AsError()
	}
	outcome.FellBack = true
	return outcome, nil
}

func (f *BaseDatabaseFactory) logHints(kind ConnectionErrorKind, cfg *ConnectionConfig) {
	for _, hint := range RemediationHints(kind, cfg) {
		f.logger.Warn("Hint: " + hint)
	}
}

// Connect creates the manager for cfg and runs HealthCheck.
func (f *BaseDatabaseFactory) Connect(ctx context.Context, cfg *ConnectionConfig, maxAttempts int, delay time.Duration) (AbstractDatabaseManager, *ConnectOutcome, error) {
	if _, err := f.CreateFromConfig(cfg); err != nil {
		return nil, nil, err
	}
	outcome, err := f.HealthCheck(ctx, maxAttempts, delay)
	if err != nil {
		_ = f.Close()
		return nil, outcome, err
	}
	return f.manager, outcome, nil
}

// GetManager returns the underlying database manager.
func (f *BaseDatabaseFactory) GetManager() AbstractDatabaseManager {
	return f.manager
}

// GetDB returns the Bun database instance, or nil if not initialized.
func (f *BaseDatabaseFactory) GetDB() *bun.DB {
	if f.manager == nil {
		return nil
	}
	return f.manager.GetDB()
}

// SetLogger sets the logger on the factory and the underlying manager.
func (f *BaseDatabaseFactory) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	f.logger = logger
	if f.manager != nil {
		f.manager.SetLogger(logger)
	}
}

// Close closes the database connection managed by the factory.
func (f *BaseDatabaseFactory) Close() error {
	if f.manager == nil {
		return nil
	}
	return f.manager.Disconnect()
}

// GetHealthStatus returns the current database health status from the manager.
func (f *BaseDatabaseFactory) GetHealthStatus(ctx context.Context) *HealthStatus {
	if f.manager == nil {
		return &HealthStatus{
			LastError:     "Database manager not initialized",
			LastCheckTime: time.Now(),
		}
	}
	return f.manager.HealthCheck(ctx)
}

// GetStats returns database connection statistics from the manager.
func (f *BaseDatabaseFactory) GetStats() *DBStats {
	if f.manager == nil {
		return &DBStats{}
	}
	return f.manager.GetStats()
}
