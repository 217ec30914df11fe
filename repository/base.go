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
	"database/sql"
	"errors"
	"fmt"
	"reflect"

	"github.com/tomoncle/learnx/types"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"
)

type baseRepositoryImpl[T any] struct {
	db bun.IDB
}

// NewRepository returns a generic repository over a database handle or a
// transaction.
func NewRepository[T any](db bun.IDB) Repository[T] {
	return &baseRepositoryImpl[T]{db: db}
}

func (r *baseRepositoryImpl[T]) WithTx(tx bun.IDB) Repository[T] {
	return &baseRepositoryImpl[T]{db: tx}
}

func (r *baseRepositoryImpl[T]) Dialect() schema.Dialect { return r.db.Dialect() }

func (r *baseRepositoryImpl[T]) NewSelect() *bun.SelectQuery { return r.db.NewSelect() }

func (r *baseRepositoryImpl[T]) NewInsert() *bun.InsertQuery { return r.db.NewInsert() }

func (r *baseRepositoryImpl[T]) NewUpdate() *bun.UpdateQuery { return r.db.NewUpdate() }

func (r *baseRepositoryImpl[T]) GetOne(ctx context.Context, id any) (*T, error) {
	return r.FindOne(ctx, "?TableAlias.id = ?", id)
}

func (r *baseRepositoryImpl[T]) FindOne(ctx context.Context, query string, args ...interface{}) (*T, error) {
	entity := new(T)
	err := r.db.NewSelect().Model(entity).Where(query, args...).Limit(1).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (r *baseRepositoryImpl[T]) List(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	var entities []*T
	query := r.db.NewSelect().Model(&entities)
	if filter != nil {
		query = query.Where(filter.Schema, filter.Args...)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context, filter *types.QueryFilter) (int, error) {
	query := r.db.NewSelect().Model((*T)(nil))
	if filter != nil {
		query = query.Where(filter.Schema, filter.Args...)
	}
	return query.Count(ctx)
}

func (r *baseRepositoryImpl[T]) Page(ctx context.Context, pageRequest *types.PageRequest) (*types.Pagination[T], error) {
	var entities []*T
	query := r.db.NewSelect().Model(&entities)
	if f := pageRequest.GetFilter(); f != nil {
		query = query.Where(f.Schema, f.Args...)
	}
	pagination := types.NewPagination[T](pageRequest.GetPage(), pageRequest.GetPageSize())
	total, err := query.Count(ctx)
	if err != nil || total == 0 {
		return pagination, err
	}
	err = query.
		Offset(pageRequest.GetOffset()).
		Limit(pageRequest.GetPageSize()).
		Order(pageRequest.GetOrders()...).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = entities
	return pagination, nil
}

func (r *baseRepositoryImpl[T]) Create(ctx context.Context, entity ...*T) error {
	if len(entity) == 0 {
		return nil
	}
	entities := make([]*T, len(entity))
	copy(entities, entity)
	_, err := r.db.NewInsert().Model(&entities).Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) Update(ctx context.Context, entity *T, columns ...string) error {
	q := r.db.NewUpdate().Model(entity).WherePK()
	if len(columns) > 0 {
		q = q.Column(columns...)
	}
	_, err := q.Exec(ctx)
	return err
}

// Delete soft-deletes models that carry a soft_delete column.
func (r *baseRepositoryImpl[T]) Delete(ctx context.Context, id any) error {
	entity, err := r.GetOne(ctx, id)
	if err != nil {
		return err
	}
	_, err = r.db.NewDelete().Model(entity).WherePK().Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) CreateIfAbsent(ctx context.Context, entity *T) (bool, error) {
	q := r.db.NewInsert().Model(entity)
	features := r.db.Dialect().Features()
	switch {
	case features.Has(feature.InsertOnConflict):
		q = q.On("CONFLICT DO NOTHING")
	case features.Has(feature.InsertIgnore):
		q = q.Ignore()
	default:
		return false, fmt.Errorf("dialect %s cannot ignore insert conflicts", r.db.Dialect().Name())
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FindOrCreate matches soft-deleted rows too: they still hold the unique key
// and are returned as found.
func (r *baseRepositoryImpl[T]) FindOrCreate(ctx context.Context, defaults *T, query string, args ...interface{}) (*T, bool, error) {
	found, err := r.findAny(ctx, query, args...)
	if err == nil {
		return found, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	created, err := r.CreateIfAbsent(ctx, defaults)
	if err != nil {
		return nil, false, err
	}
	if created {
		return defaults, true, nil
	}
	// Lost a race with a concurrent writer: the row exists now.
	found, err = r.findAny(ctx, query, args...)
	if err != nil {
		return nil, false, err
	}
	return found, false, nil
}

func (r *baseRepositoryImpl[T]) findAny(ctx context.Context, query string, args ...interface{}) (*T, error) {
	entity := new(T)
	q := r.db.NewSelect().Model(entity).Where(query, args...).Limit(1)
	if r.softDeletes() {
		q = q.WhereAllWithDeleted()
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return entity, nil
}

func (r *baseRepositoryImpl[T]) softDeletes() bool {
	table := r.db.Dialect().Tables().Get(reflect.TypeOf((*T)(nil)).Elem())
	return table != nil && table.SoftDeleteField != nil
}
