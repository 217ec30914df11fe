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

package repository

import (
	"context"

	"github.com/tomoncle/learnx/types"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// CrudRepository defines basic CRUD operations for a generic entity type.
type CrudRepository[T any] interface {
	GetOne(ctx context.Context, id any) (*T, error)

	FindOne(ctx context.Context, query string, args ...interface{}) (*T, error)

	List(ctx context.Context, filter *types.QueryFilter) ([]*T, error)

	Count(ctx context.Context, filter *types.QueryFilter) (int, error)

	Create(ctx context.Context, entity ...*T) error

	Update(ctx context.Context, entity *T, columns ...string) error

	Delete(ctx context.Context, id any) error
}

// FindOrCreateRepository looks records up by a natural key and inserts them
// when they are missing.
type FindOrCreateRepository[T any] interface {
	// CreateIfAbsent inserts entity unless it conflicts with a unique key
	// and reports whether a row was written.
	CreateIfAbsent(ctx context.Context, entity *T) (bool, error)

	// FindOrCreate returns the record matching query, inserting defaults
	// when there is none. The boolean reports whether it was created.
	FindOrCreate(ctx context.Context, defaults *T, query string, args ...interface{}) (*T, bool, error)
}

// PageQueryRepository defines pagination functionality for listing entities.
type PageQueryRepository[T any] interface {
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)
}

// Repository combines the operations above and exposes Bun query builders
// for everything else.
type Repository[T any] interface {
	CrudRepository[T]
	FindOrCreateRepository[T]
	PageQueryRepository[T]
	// WithTx returns a repository bound to tx.
	WithTx(tx bun.IDB) Repository[T]
	Dialect() schema.Dialect
	NewSelect() *bun.SelectQuery
	NewInsert() *bun.InsertQuery
	NewUpdate() *bun.UpdateQuery
}
