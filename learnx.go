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

// Package learnx bootstraps the LearnX database: connect with retry and
// embedded fallback, synchronize the schema, and optionally seed.
package learnx

import (
	"context"
	"fmt"

	"github.com/tomoncle/learnx/config"
	"github.com/tomoncle/learnx/database"
	"github.com/tomoncle/learnx/model"
	"github.com/tomoncle/learnx/seed"
	"github.com/tomoncle/learnx/utils"
)

// Result is what a successful Bootstrap produced. The caller owns Manager
// and must Disconnect it.
type Result struct {
	Manager database.AbstractDatabaseManager
	Connect *database.ConnectOutcome
	Sync    *database.SyncReport
	Seed    *seed.Report
}

type options struct {
	managerOpts []database.ManagerOption
	seedOpts    []seed.Option
	logger      database.Logger
}

type Option func(*options)

// WithManagerOptions passes options to every database manager created.
func WithManagerOptions(opts ...database.ManagerOption) Option {
	return func(o *options) { o.managerOpts = append(o.managerOpts, opts...) }
}

// WithSeedOptions passes options to the seed loader.
func WithSeedOptions(opts ...seed.Option) Option {
	return func(o *options) { o.seedOpts = append(o.seedOpts, opts...) }
}

func WithLogger(l database.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Bootstrap runs connect, health check, schema sync and, when configured,
// seeding. Any failure after connecting releases the handle.
func Bootstrap(ctx context.Context, cfg *config.Config, opts ...Option) (*Result, error) {
	utils.ConfigureLogLevel(cfg.LogLevel)
	utils.ConfigureLogFormat(cfg.LogFormat)

	o := &options{logger: database.GetLogger()}
	for _, opt := range opts {
		opt(o)
	}

	fks, err := cfg.ForeignKeys()
	if err != nil {
		return nil, err
	}
	registry, err := model.Registry(fks...)
	if err != nil {
		return nil, err
	}
	entities, err := registry.Entities()
	if err != nil {
		return nil, err
	}

	factory := database.NewDatabaseFactory(o.managerOpts...)
	factory.SetLogger(o.logger)
	manager, outcome, err := factory.Connect(ctx, cfg.ConnectionConfig(), cfg.Database.MaxAttempts, cfg.Database.RetryDelay)
	if err != nil {
		return nil, err
	}
	result := &Result{Manager: manager, Connect: outcome}

	fail := func(err error) (*Result, error) {
		_ = manager.Disconnect()
		return nil, err
	}

	syncOpts := cfg.SyncOptions()
	if syncOpts.ForceRecreate {
		o.logger.Warn("DB_FORCE_SYNC is set, all tables will be dropped and recreated")
	}
	result.Sync, err = database.NewSchemaSynchronizer(manager.GetDB(), syncOpts, o.logger).Synchronize(ctx, entities)
	if err != nil {
		return fail(err)
	}

	if cfg.Seed.OnStartup {
		seedOpts := append([]seed.Option{seed.WithLogger(o.logger), seed.WithSQLFiles(cfg.Seed.SQLPath, cfg.Environment)}, o.seedOpts...)
		result.Seed, err = seed.NewLoader(manager.GetDB(), seedOpts...).Seed(ctx)
		if err != nil {
			return fail(err)
		}
	}

	o.logger.Info("Database bootstrap completed",
		"dialect", manager.Dialect(), "fell_back", outcome.FellBack,
		"tables", fmt.Sprintf("%d created, %d altered, %d unchanged", len(result.Sync.Created), len(result.Sync.Altered), len(result.Sync.Skipped)))
	return result, nil
}
