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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/uptrace/bun"
)

const schemaSyncPrefix = "schema_sync:"

// SyncOptions selects what the synchronizer may do to tables that already
// exist. Nothing is ever dropped unless ForceRecreate is set.
type SyncOptions struct {
	// AlterExisting applies additive changes (new columns, relaxed
	// nullability, type and default drift, missing unique indexes and
	// foreign keys) to tables that are already present.
	AlterExisting bool
	// ForceRecreate drops every managed table in reverse dependency order
	// and recreates it. Data is lost.
	ForceRecreate bool
}

// IsProduction reports whether environment names production. Both
// "production" and "prod" are accepted in any case.
func IsProduction(environment string) bool {
	env := strings.ToLower(strings.TrimSpace(environment))
	return env == "production" || env == "prod"
}

// SyncPolicy returns the options used for an application environment.
// Production only creates missing tables.
func SyncPolicy(environment string, force bool) SyncOptions {
	return SyncOptions{
		AlterExisting: !IsProduction(environment),
		ForceRecreate: force,
	}
}

// SyncReport summarizes one Synchronize call.
type SyncReport struct {
	Created  []string
	Altered  []string
	Skipped  []string
	Dropped  []string
	Warnings []string
	// Columns lists the column names of every managed table after the run.
	Columns map[string][]string
}

// SchemaSynchronizer reconciles entity definitions with the live schema.
type SchemaSynchronizer struct {
	db         *bun.DB
	dialect    Dialect
	options    SyncOptions
	logger     Logger
	migrations *MigrationManager
}

// NewSchemaSynchronizer constructs a synchronizer over an open handle.
func NewSchemaSynchronizer(db *bun.DB, options SyncOptions, logger Logger) *SchemaSynchronizer {
	if logger == nil {
		logger = GetLogger()
	}
	return &SchemaSynchronizer{
		db:         db,
		dialect:    dialectOf(db),
		options:    options,
		logger:     logger,
		migrations: NewMigrationManager(db, logger),
	}
}

type tablePlan struct {
	def     EntityDefinition
	table   string
	columns []columnSpec
	indexes []indexSpec
	version string
}

// Synchronize creates missing tables in dependency order and, depending on
// the options, alters or recreates existing ones.
func (s *SchemaSynchronizer) Synchronize(ctx context.Context, entities []EntityDefinition) (*SyncReport, error) {
	ordered, err := OrderEntities(entities)
	if err != nil {
		return nil, &SyncError{Stage: "order", Err: err}
	}
	plans := make([]tablePlan, 0, len(ordered))
	for _, def := range ordered {
		plan, err := s.plan(def)
		if err != nil {
			return nil, &SyncError{Stage: "plan", Err: err}
		}
		plans = append(plans, plan)
	}

	if err := s.migrations.EnsureTable(ctx); err != nil {
		return nil, &SyncError{Table: "schema_migrations", Stage: "bookkeeping", Err: err}
	}

	insp := newInspector(s.db)
	existing, err := insp.tables(ctx)
	if err != nil {
		return nil, &SyncError{Stage: "inspect", Err: err}
	}
	s.logger.Info("Existing tables", "dialect", s.dialect, "tables", sortedKeys(existing))

	report := &SyncReport{Columns: map[string][]string{}}

	if s.options.ForceRecreate {
		if err := s.dropAll(ctx, plans, existing, report); err != nil {
			return report, err
		}
	}

	for _, plan := range plans {
		if _, ok := existing[strings.ToLower(plan.table)]; !ok {
			if err := s.create(ctx, plan, report); err != nil {
				return report, err
			}
			continue
		}
		if !s.options.AlterExisting {
			s.logger.Debug("Table exists, leaving unchanged", "table", plan.table)
			report.Skipped = append(report.Skipped, plan.table)
			continue
		}
		if err := s.alter(ctx, insp, plan, report); err != nil {
			return report, err
		}
	}

	for _, plan := range plans {
		cols, err := insp.columns(ctx, plan.table)
		if err != nil {
			return report, &SyncError{Table: plan.table, Stage: "inspect", Err: err}
		}
		names := make([]string, 0, len(cols))
		for _, c := range cols {
			names = append(names, c.Name)
		}
		sort.Strings(names)
		report.Columns[plan.table] = names
		s.logger.Info("Table columns", "table", plan.table, "columns", strings.Join(names, ","))
	}

	s.logger.Info("Schema synchronized",
		"created", len(report.Created), "altered", len(report.Altered),
		"skipped", len(report.Skipped), "warnings", len(report.Warnings))
	return report, nil
}

func (s *SchemaSynchronizer) plan(def EntityDefinition) (tablePlan, error) {
	table, err := def.TableName()
	if err != nil {
		return tablePlan{}, err
	}
	typ := reflect.TypeOf(def.Model)
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	meta := s.db.Table(typ)

	plan := tablePlan{def: def, table: table}
	for _, f := range meta.Fields {
		plan.columns = append(plan.columns, columnSpec{
			Name:          f.Name,
			Type:          f.CreateTableSQLType,
			NotNull:       f.NotNull || f.IsPK,
			Default:       f.SQLDefault,
			PrimaryKey:    f.IsPK,
			AutoIncrement: f.AutoIncrement,
		})
	}
	for name, fields := range meta.Unique {
		if name == "" {
			for _, f := range fields {
				plan.indexes = append(plan.indexes, indexSpec{
					Name:    fmt.Sprintf("uk_%s_%s", table, f.Name),
					Columns: []string{f.Name},
					Unique:  true,
				})
			}
			continue
		}
		cols := make([]string, len(fields))
		for i, f := range fields {
			cols[i] = f.Name
		}
		plan.indexes = append(plan.indexes, indexSpec{Name: name, Columns: cols, Unique: true})
	}
	sort.Slice(plan.indexes, func(i, j int) bool { return plan.indexes[i].Name < plan.indexes[j].Name })

	plan.version = schemaSyncPrefix + table + ":" + plan.signature()
	return plan, nil
}

func (p tablePlan) signature() string {
	var b strings.Builder
	b.WriteString(p.table)
	b.WriteString("|cols:")
	cols := append([]columnSpec(nil), p.columns...)
	sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
	for _, c := range cols {
		fmt.Fprintf(&b, "%s %s nn=%t def=%s pk=%t ai=%t;", c.Name, strings.ToLower(c.Type), c.NotNull, c.Default, c.PrimaryKey, c.AutoIncrement)
	}
	b.WriteString("|idx:")
	for _, idx := range p.indexes {
		b.WriteString(idx.Name + "=" + idx.signature() + ";")
	}
	b.WriteString("|fk:")
	for _, fk := range p.def.ForeignKeys {
		b.WriteString(fk.key() + fk.actions() + ";")
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func (s *SchemaSynchronizer) dropAll(ctx context.Context, plans []tablePlan, existing map[string]struct{}, report *SyncReport) error {
	for i := len(plans) - 1; i >= 0; i-- {
		plan := plans[i]
		s.logger.Warn("Dropping table", "table", plan.table)
		if _, err := s.db.NewDropTable().Model(plan.def.Model).IfExists().Exec(ctx); err != nil {
			return &SyncError{Table: plan.table, Stage: "drop", Err: err}
		}
		if err := s.migrations.Forget(ctx, schemaSyncPrefix+plan.table+":"); err != nil {
			return &SyncError{Table: plan.table, Stage: "bookkeeping", Err: err}
		}
		delete(existing, strings.ToLower(plan.table))
		report.Dropped = append(report.Dropped, plan.table)
	}
	return nil
}

func (s *SchemaSynchronizer) create(ctx context.Context, plan tablePlan, report *SyncReport) error {
	q := s.db.NewCreateTable().Model(plan.def.Model).IfNotExists()
	for i := range plan.def.ForeignKeys {
		q = plan.def.ForeignKeys[i].ApplyTo(q)
	}
	if _, err := q.Exec(ctx); err != nil {
		if !IsBenign(err) {
			return &SyncError{Table: plan.table, Stage: "create", Err: err}
		}
		s.warn(report, plan.table, "create", err)
		report.Skipped = append(report.Skipped, plan.table)
		return nil
	}
	s.logger.Info("Created table", "table", plan.table, "foreign_keys", len(plan.def.ForeignKeys))
	report.Created = append(report.Created, plan.table)
	return s.record(ctx, plan, "create table")
}

func (s *SchemaSynchronizer) alter(ctx context.Context, insp inspector, plan tablePlan, report *SyncReport) error {
	applied, err := s.migrations.IsApplied(ctx, plan.version)
	if err != nil {
		return &SyncError{Table: plan.table, Stage: "bookkeeping", Err: err}
	}
	if applied {
		s.logger.Debug("Skip schema sync, shape unchanged", "table", plan.table)
		report.Skipped = append(report.Skipped, plan.table)
		return nil
	}

	existingCols, err := insp.columns(ctx, plan.table)
	if err != nil {
		return &SyncError{Table: plan.table, Stage: "inspect", Err: err}
	}
	existingIdx, err := insp.indexes(ctx, plan.table)
	if err != nil {
		return &SyncError{Table: plan.table, Stage: "inspect", Err: err}
	}
	existingFKs, err := insp.foreignKeys(ctx, plan.table)
	if err != nil {
		return &SyncError{Table: plan.table, Stage: "inspect", Err: err}
	}

	var stmts []string
	stmts = append(stmts, s.planColumns(plan, existingCols, report)...)
	stmts = append(stmts, s.planIndexes(plan, existingIdx)...)
	for i := range plan.def.ForeignKeys {
		fk := &plan.def.ForeignKeys[i]
		if _, ok := existingFKs[fk.key()]; ok {
			continue
		}
		if s.dialect == DialectSQLite {
			s.warn(report, plan.table, "foreign key", fmt.Errorf("cannot add %s to an existing table", fk.GenerateConstraintName()))
			continue
		}
		stmts = append(stmts, fk.GenerateSQL(s.db))
	}

	ran := 0
	for _, stmt := range stmts {
		s.logger.Info("Applying schema change", "table", plan.table, "sql", stmt)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			if !IsBenign(err) {
				return &SyncError{Table: plan.table, Stage: "alter", Err: err}
			}
			s.warn(report, plan.table, "alter", err)
			continue
		}
		ran++
	}
	if ran > 0 {
		report.Altered = append(report.Altered, plan.table)
	} else {
		report.Skipped = append(report.Skipped, plan.table)
	}
	return s.record(ctx, plan, fmt.Sprintf("%d statements", ran))
}

func (s *SchemaSynchronizer) record(ctx context.Context, plan tablePlan, description string) error {
	if err := s.migrations.Record(ctx, plan.version, "schema_sync "+plan.table, description); err != nil {
		return &SyncError{Table: plan.table, Stage: "bookkeeping", Err: err}
	}
	return nil
}

func (s *SchemaSynchronizer) warn(report *SyncReport, table, stage string, err error) {
	msg := fmt.Sprintf("%s %s: %v", table, stage, err)
	s.logger.Warn("Schema sync warning", "table", table, "stage", stage, "error", err)
	report.Warnings = append(report.Warnings, msg)
}

func (s *SchemaSynchronizer) planColumns(plan tablePlan, existing map[string]columnSpec, report *SyncReport) []string {
	var stmts []string
	for _, c := range plan.columns {
		cur, ok := existing[strings.ToLower(c.Name)]
		if !ok {
			if c.PrimaryKey {
				s.warn(report, plan.table, "column", fmt.Errorf("cannot add primary key column %s", c.Name))
				continue
			}
			add := s.addableColumn(c)
			if add.NotNull != c.NotNull || add.Default != c.Default {
				s.warn(report, plan.table, "column", fmt.Errorf("column %s added without NOT NULL or default", c.Name))
			}
			stmts = append(stmts, buildAddColumnSQL(s.db, plan.table, add))
			continue
		}
		if s.dialect == DialectSQLite || c.PrimaryKey {
			continue
		}
		stmts = append(stmts, buildModifyColumnSQL(s.db, s.dialect, plan.table, c, cur)...)
	}
	return stmts
}

// addableColumn relaxes a column so ADD COLUMN succeeds on a populated table.
func (s *SchemaSynchronizer) addableColumn(c columnSpec) columnSpec {
	if s.dialect == DialectSQLite && !isConstantDefault(c.Default) {
		c.Default = ""
	}
	if c.Default == "" {
		c.NotNull = false
	}
	return c
}

func (s *SchemaSynchronizer) planIndexes(plan tablePlan, existing []indexSpec) []string {
	have := make(map[string]struct{}, len(existing))
	for _, idx := range existing {
		have[idx.signature()] = struct{}{}
	}
	var stmts []string
	for _, idx := range plan.indexes {
		if _, ok := have[idx.signature()]; ok {
			continue
		}
		stmts = append(stmts, buildCreateIndexSQL(s.db, s.dialect, plan.table, idx))
	}
	return stmts
}

func buildAddColumnSQL(db bun.IDB, table string, c columnSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ALTER TABLE %s ADD COLUMN %s %s", quoteIdent(db, table), quoteIdent(db, c.Name), c.Type)
	if c.NotNull {
		b.WriteString(" NOT NULL")
	}
	if c.Default != "" {
		b.WriteString(" DEFAULT " + c.Default)
	}
	return b.String()
}

// buildModifyColumnSQL brings type and default in line. Nullability is only
// ever relaxed: tightening could fail on rows already present.
func buildModifyColumnSQL(db bun.IDB, d Dialect, table string, want, have columnSpec) []string {
	typeDrift := normalizeSQLType(d, want.Type) != normalizeSQLType(d, have.Type)
	defDrift := normalizeDefault(want.Default) != normalizeDefault(have.Default)
	relax := !want.NotNull && have.NotNull
	if !typeDrift && !defDrift && !relax {
		return nil
	}

	t, c := quoteIdent(db, table), quoteIdent(db, want.Name)
	switch d {
	case DialectPostgres:
		var stmts []string
		if typeDrift {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s", t, c, want.Type, c, want.Type))
		}
		if relax {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL", t, c))
		}
		if defDrift {
			if want.Default != "" {
				stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s", t, c, want.Default))
			} else {
				stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", t, c))
			}
		}
		return stmts
	case DialectMySQL:
		null := " NULL"
		if have.NotNull && !relax {
			null = " NOT NULL"
		}
		def := ""
		if want.Default != "" {
			def = " DEFAULT " + want.Default
		}
		auto := ""
		if want.AutoIncrement {
			auto = " AUTO_INCREMENT"
			null = " NOT NULL"
		}
		return []string{fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s %s%s%s%s", t, c, want.Type, null, def, auto)}
	default:
		return nil
	}
}

func buildCreateIndexSQL(db bun.IDB, d Dialect, table string, idx indexSpec) string {
	cols := make([]string, 0, len(idx.Columns))
	for _, c := range idx.Columns {
		cols = append(cols, quoteIdent(db, c))
	}
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	ifNotExists := "IF NOT EXISTS "
	if d == DialectMySQL {
		ifNotExists = ""
	}
	return fmt.Sprintf("CREATE %sINDEX %s%s ON %s (%s)", unique, ifNotExists, quoteIdent(db, idx.Name), quoteIdent(db, table), strings.Join(cols, ", "))
}

var sqlTypeAliases = map[string]string{
	"varchar":     "character varying",
	"char":        "character",
	"decimal":     "numeric",
	"timestamptz": "timestamp with time zone",
	"timestamp":   "timestamp without time zone",
	"int":         "integer",
	"int4":        "integer",
	"int8":        "bigint",
	"int2":        "smallint",
	"serial":      "integer",
	"bigserial":   "bigint",
	"bool":        "boolean",
	"float8":      "double precision",
	"float4":      "real",
}

func normalizeSQLType(d Dialect, typ string) string {
	s := strings.Join(strings.Fields(strings.ToLower(typ)), " ")
	switch d {
	case DialectPostgres:
		base, args := s, ""
		if i := strings.Index(s, "("); i > 0 {
			base, args = strings.TrimSpace(s[:i]), strings.ReplaceAll(s[i:], " ", "")
		}
		if alias, ok := sqlTypeAliases[base]; ok {
			base = alias
		}
		return base + args
	case DialectMySQL:
		if s == "boolean" || s == "bool" || s == "tinyint(1)" {
			return "tinyint(1)"
		}
		for _, name := range []string{"tinyint", "smallint", "mediumint", "int", "bigint"} {
			if strings.HasPrefix(s, name+"(") {
				if strings.Contains(s, "unsigned") {
					return name + " unsigned"
				}
				return name
			}
		}
		if s == "integer" {
			return "int"
		}
		return s
	default:
		return s
	}
}

func normalizeDefault(def string) string {
	s := strings.TrimSpace(def)
	if i := strings.Index(s, "::"); i > 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(strings.Trim(s, "()"))
	s = strings.Trim(s, "'")
	switch strings.ToLower(s) {
	case "", "null":
		return ""
	case "now", "current_timestamp":
		return "current_timestamp"
	case "true":
		return "1"
	case "false":
		return "0"
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return s
}

func isConstantDefault(def string) bool {
	switch strings.ToLower(strings.TrimSpace(def)) {
	case "current_timestamp", "current_date", "current_time", "now()":
		return false
	}
	return !strings.HasSuffix(strings.TrimSpace(def), ")")
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
