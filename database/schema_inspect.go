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
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

type columnSpec struct {
	Name          string
	Type          string
	NotNull       bool
	Default       string
	PrimaryKey    bool
	AutoIncrement bool
}

type indexSpec struct {
	Name    string
	Columns []string
	Unique  bool
}

func (s indexSpec) signature() string {
	cols := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = strings.ToLower(strings.TrimSpace(c))
	}
	return fmt.Sprintf("%t|%s", s.Unique, strings.Join(cols, ","))
}

func dialectOf(db bun.IDB) Dialect {
	switch db.Dialect().Name() {
	case dialect.MySQL:
		return DialectMySQL
	case dialect.SQLite:
		return DialectSQLite
	default:
		return DialectPostgres
	}
}

// inspector reads the live catalog. Every query drains and closes its rows
// before the next one starts: the embedded dialect runs on one connection.
type inspector struct {
	db      bun.IDB
	dialect Dialect
}

func newInspector(db bun.IDB) inspector {
	return inspector{db: db, dialect: dialectOf(db)}
}

func (in inspector) tables(ctx context.Context) (map[string]struct{}, error) {
	var query string
	switch in.dialect {
	case DialectPostgres:
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'`
	case DialectMySQL:
		query = `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE'`
	default:
		query = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`
	}
	rows, err := in.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		result[strings.ToLower(name)] = struct{}{}
	}
	return result, rows.Err()
}

func (in inspector) columns(ctx context.Context, table string) (map[string]columnSpec, error) {
	var rows *sql.Rows
	var err error
	switch in.dialect {
	case DialectPostgres:
		rows, err = in.db.QueryContext(ctx, `SELECT a.attname, format_type(a.atttypid, a.atttypmod), a.attnotnull, pg_get_expr(d.adbin, d.adrelid)
FROM pg_attribute a
JOIN pg_class c ON c.oid = a.attrelid
JOIN pg_namespace n ON n.oid = c.relnamespace
LEFT JOIN pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
WHERE c.relname = $1 AND n.nspname = current_schema() AND a.attnum > 0 AND NOT a.attisdropped
ORDER BY a.attnum`, table)
	case DialectMySQL:
		rows, err = in.db.QueryContext(ctx, `SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE = 'NO', COLUMN_DEFAULT, EXTRA FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION`, table)
	default:
		rows, err = in.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(in.db, table)))
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := map[string]columnSpec{}
	for rows.Next() {
		var spec columnSpec
		var def sql.NullString
		switch in.dialect {
		case DialectPostgres:
			if err := rows.Scan(&spec.Name, &spec.Type, &spec.NotNull, &def); err != nil {
				return nil, err
			}
			spec.AutoIncrement = strings.HasPrefix(def.String, "nextval(")
		case DialectMySQL:
			var extra string
			if err := rows.Scan(&spec.Name, &spec.Type, &spec.NotNull, &def, &extra); err != nil {
				return nil, err
			}
			spec.AutoIncrement = strings.Contains(strings.ToLower(extra), "auto_increment")
		default:
			var cid, notNull, pk int
			if err := rows.Scan(&cid, &spec.Name, &spec.Type, &notNull, &def, &pk); err != nil {
				return nil, err
			}
			spec.NotNull = notNull == 1 || pk > 0
			spec.PrimaryKey = pk > 0
		}
		if def.Valid {
			spec.Default = def.String
		}
		cols[strings.ToLower(spec.Name)] = spec
	}
	return cols, rows.Err()
}

func (in inspector) indexes(ctx context.Context, table string) ([]indexSpec, error) {
	switch in.dialect {
	case DialectPostgres:
		return in.pgIndexes(ctx, table)
	case DialectMySQL:
		return in.mysqlIndexes(ctx, table)
	default:
		return in.sqliteIndexes(ctx, table)
	}
}

func (in inspector) pgIndexes(ctx context.Context, table string) ([]indexSpec, error) {
	rows, err := in.db.QueryContext(ctx, `SELECT indexname, indexdef FROM pg_indexes WHERE schemaname = current_schema() AND tablename = $1`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var idx []indexSpec
	for rows.Next() {
		var name, def string
		if err := rows.Scan(&name, &def); err != nil {
			return nil, err
		}
		spec := indexSpec{Name: name, Unique: strings.Contains(strings.ToUpper(def), "UNIQUE")}
		open := strings.Index(def, "(")
		end := strings.LastIndex(def, ")")
		if open > 0 && end > open {
			for _, c := range strings.Split(def[open+1:end], ",") {
				spec.Columns = append(spec.Columns, strings.TrimSpace(strings.Trim(strings.TrimSpace(c), `"`)))
			}
		}
		idx = append(idx, spec)
	}
	return idx, rows.Err()
}

func (in inspector) mysqlIndexes(ctx context.Context, table string) ([]indexSpec, error) {
	rows, err := in.db.QueryContext(ctx, `SELECT INDEX_NAME, COLUMN_NAME, NON_UNIQUE FROM INFORMATION_SCHEMA.STATISTICS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? ORDER BY INDEX_NAME, SEQ_IN_INDEX`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var order []string
	byName := map[string]*indexSpec{}
	for rows.Next() {
		var name, col string
		var nonUnique int
		if err := rows.Scan(&name, &col, &nonUnique); err != nil {
			return nil, err
		}
		spec, ok := byName[name]
		if !ok {
			spec = &indexSpec{Name: name, Unique: nonUnique == 0}
			byName[name] = spec
			order = append(order, name)
		}
		spec.Columns = append(spec.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	idx := make([]indexSpec, 0, len(order))
	for _, name := range order {
		idx = append(idx, *byName[name])
	}
	return idx, nil
}

func (in inspector) sqliteIndexes(ctx context.Context, table string) ([]indexSpec, error) {
	rows, err := in.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%s)", quoteIdent(in.db, table)))
	if err != nil {
		return nil, err
	}
	var idx []indexSpec
	for rows.Next() {
		var seq, unique, partial int
		var name, origin string
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			_ = rows.Close()
			return nil, err
		}
		idx = append(idx, indexSpec{Name: name, Unique: unique == 1})
	}
	err = rows.Err()
	_ = rows.Close()
	if err != nil {
		return nil, err
	}

	for i := range idx {
		info, err := in.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%s)", quoteIdent(in.db, idx[i].Name)))
		if err != nil {
			return nil, err
		}
		for info.Next() {
			var seqno, cid int
			var col sql.NullString
			if err := info.Scan(&seqno, &cid, &col); err != nil {
				_ = info.Close()
				return nil, err
			}
			idx[i].Columns = append(idx[i].Columns, col.String)
		}
		err = info.Err()
		_ = info.Close()
		if err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// foreignKeys returns the relationships present on table keyed like
// ForeignKeyConstraint.key.
func (in inspector) foreignKeys(ctx context.Context, table string) (map[string]struct{}, error) {
	var rows *sql.Rows
	var err error
	switch in.dialect {
	case DialectPostgres:
		rows, err = in.db.QueryContext(ctx, `SELECT kcu.column_name, ccu.table_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
JOIN information_schema.constraint_column_usage ccu ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = current_schema() AND tc.table_name = $1`, table)
	case DialectMySQL:
		rows, err = in.db.QueryContext(ctx, `SELECT COLUMN_NAME, REFERENCED_TABLE_NAME FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND REFERENCED_TABLE_NAME IS NOT NULL`, table)
	default:
		rows, err = in.db.QueryContext(ctx, fmt.Sprintf(`SELECT "from", "table" FROM pragma_foreign_key_list(%s)`, quoteLiteral(table)))
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := map[string]struct{}{}
	for rows.Next() {
		var col, ref string
		if err := rows.Scan(&col, &ref); err != nil {
			return nil, err
		}
		keys[strings.ToLower(col)+"->"+strings.ToLower(ref)] = struct{}{}
	}
	return keys, rows.Err()
}

func quoteIdent(db bun.IDB, s string) string {
	if dialectOf(db) == DialectMySQL {
		return "`" + strings.ReplaceAll(s, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
