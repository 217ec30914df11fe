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
	"strings"
	"sync"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// Migration is a row of the schema_migrations bookkeeping table. Schema
// synchronization records one version per applied table shape.
type Migration struct {
	bun.BaseModel `bun:"table:schema_migrations"`

	Version     string    `bun:"version,pk,type:varchar(191)"`
	Name        string    `bun:"name,notnull,type:varchar(100)"`
	AppliedAt   time.Time `bun:"applied_at,notnull"`
	Description string    `bun:"description,type:text"`
}

// MigrationManager reads and writes the bookkeeping table.
type MigrationManager struct {
	db     bun.IDB
	logger Logger
	mu     sync.RWMutex
	cache  map[string]struct{}
}

// NewMigrationManager constructs a MigrationManager over db.
func NewMigrationManager(db bun.IDB, logger Logger) *MigrationManager {
	if logger == nil {
		logger = GetLogger()
	}
	return &MigrationManager{db: db, logger: logger, cache: make(map[string]struct{})}
}

// EnsureTable creates the bookkeeping table if it is missing.
func (mm *MigrationManager) EnsureTable(ctx context.Context) error {
	_, err := mm.db.NewCreateTable().
		Model((*Migration)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil && !IsBenign(err) {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// IsApplied reports whether version was recorded before.
func (mm *MigrationManager) IsApplied(ctx context.Context, version string) (bool, error) {
	mm.mu.RLock()
	_, ok := mm.cache[version]
	mm.mu.RUnlock()
	if ok {
		return true, nil
	}

	exists, err := mm.db.NewSelect().
		Model((*Migration)(nil)).
		Where("version = ?", version).
		Exists(ctx)
	if err != nil {
		return false, err
	}
	if exists {
		mm.remember(version)
	}
	return exists, nil
}

// Record stores version; recording an existing version is a no-op.
func (mm *MigrationManager) Record(ctx context.Context, version, name, description string) error {
	rec := &Migration{
		Version:     version,
		Name:        name,
		AppliedAt:   time.Now(),
		Description: description,
	}
	ins := mm.db.NewInsert().Model(rec)
	switch mm.db.Dialect().Name() {
	case dialect.MySQL:
		ins = ins.Ignore()
	default:
		ins = ins.On("CONFLICT DO NOTHING")
	}
	if _, err := ins.Exec(ctx); err != nil {
		return err
	}
	mm.remember(version)
	mm.logger.Debug("Migration recorded", "version", version, "name", name)
	return nil
}

// Forget deletes every version starting with prefix.
func (mm *MigrationManager) Forget(ctx context.Context, prefix string) error {
	_, err := mm.db.NewDelete().
		Model((*Migration)(nil)).
		Where("version LIKE ?", prefix+"%").
		Exec(ctx)
	if err != nil {
		return err
	}
	mm.mu.Lock()
	for v := range mm.cache {
		if strings.HasPrefix(v, prefix) {
			delete(mm.cache, v)
		}
	}
	mm.mu.Unlock()
	return nil
}

// GetAppliedMigrations returns migration records ordered by version.
func (mm *MigrationManager) GetAppliedMigrations(ctx context.Context) ([]Migration, error) {
	var migrations []Migration
	err := mm.db.NewSelect().
		Model(&migrations).
		Order("version ASC").
		Scan(ctx)
	return migrations, err
}

func (mm *MigrationManager) remember(version string) {
	mm.mu.Lock()
	mm.cache[version] = struct{}{}
	mm.mu.Unlock()
}
