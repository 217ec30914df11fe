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

// Package testutil opens throwaway SQLite databases for package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/tomoncle/learnx/database"
	"github.com/tomoncle/learnx/model"
)

// SQLiteConfig points the embedded dialect at a file in a per-test directory.
func SQLiteConfig(t testing.TB) *database.ConnectionConfig {
	cfg := database.DefaultConnectionConfig()
	cfg.Type = string(database.DialectSQLite)
	cfg.FilePath = filepath.Join(t.TempDir(), "learnx.sqlite")
	return cfg
}

// SQLiteManager returns a connected manager that is closed when the test ends.
func SQLiteManager(t testing.TB) database.AbstractDatabaseManager {
	m := database.NewDatabaseManager(SQLiteConfig(t), database.WithManagerLogger(database.NopLogger{}))
	require.NoError(t, m.Connect(context.Background()))
	t.Cleanup(func() { _ = m.Disconnect() })
	return m
}

// SyncedDB returns a handle whose schema holds the LearnX tables.
func SyncedDB(t testing.TB) *bun.DB {
	db := SQLiteManager(t).GetDB()
	_, err := database.NewSchemaSynchronizer(db, database.SyncOptions{}, database.NopLogger{}).
		Synchronize(context.Background(), model.Entities())
	require.NoError(t, err)
	return db
}
