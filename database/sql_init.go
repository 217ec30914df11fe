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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/uptrace/bun"
)

const unorderedSQLFile = 999

// SQLInitManager runs optional seed SQL files found under a root directory:
// <root>/common first, then <root>/environments/<env>, each ordered by its
// numeric file prefix.
type SQLInitManager struct {
	db          bun.IDB
	environment string
	root        string
	logger      Logger
}

// SQLFileInfo is one discovered seed file.
type SQLFileInfo struct {
	Path  string
	Name  string
	Order int
	// Scope is "common" or the environment name.
	Scope string
}

// ExecutionResult contains the outcome of executing a single SQL file.
type ExecutionResult struct {
	File         string
	Success      bool
	Error        error
	Duration     time.Duration
	Statements   int
	RowsAffected int64
}

func NewSQLInitManager(db bun.IDB, environment, root string, logger Logger) *SQLInitManager {
	if logger == nil {
		logger = GetLogger()
	}
	return &SQLInitManager{db: db, environment: environment, root: root, logger: logger}
}

// ExecuteInitialization runs all discovered SQL files. A missing root
// directory means there is nothing to run. Each file runs in its own
// transaction and the first failing file stops the run.
func (s *SQLInitManager) ExecuteInitialization(ctx context.Context) ([]ExecutionResult, error) {
	if s.root == "" {
		return nil, nil
	}
	if _, err := os.Stat(s.root); errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("SQL seed directory not found", "sql_path", s.root)
		return nil, nil
	}

	files, err := s.GetSQLFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to list SQL files: %w", err)
	}
	if len(files) == 0 {
		s.logger.Info("No SQL seed files found", "sql_path", s.root)
		return nil, nil
	}
	s.logger.Info("Running SQL seed files", "environment", s.environment, "files", len(files))

	results := make([]ExecutionResult, 0, len(files))
	for _, file := range files {
		res := s.run(ctx, file)
		results = append(results, res)
		if !res.Success {
			s.logger.Error("SQL seed file failed", "file", file.Name, "scope", file.Scope, "error", res.Error)
			return results, fmt.Errorf("SQL seed file %s: %w", res.File, res.Error)
		}
		s.logger.Info("SQL seed file applied",
			"file", file.Name, "scope", file.Scope, "statements", res.Statements,
			"rows_affected", res.RowsAffected, "duration", res.Duration.String())
	}
	return results, nil
}

// GetSQLFiles lists the common files followed by the files of the current
// environment.
func (s *SQLInitManager) GetSQLFiles() ([]SQLFileInfo, error) {
	common, err := listSQLFiles(filepath.Join(s.root, "common"), "common")
	if err != nil {
		return nil, err
	}
	scoped, err := listSQLFiles(filepath.Join(s.root, "environments", s.environment), s.environment)
	if err != nil {
		return nil, err
	}
	return append(common, scoped...), nil
}

func listSQLFiles(dir, scope string) ([]SQLFileInfo, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var files []SQLFileInfo
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".sql") {
			continue
		}
		files = append(files, SQLFileInfo{
			Path:  filepath.Join(dir, e.Name()),
			Name:  e.Name(),
			Order: fileOrder(e.Name()),
			Scope: scope,
		})
	}
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Order != files[j].Order {
			return files[i].Order < files[j].Order
		}
		return files[i].Name < files[j].Name
	})
	return files, nil
}

// fileOrder reads the digits before the first underscore, "010_users.sql"
// sorts as 10. Files without a prefix run last.
func fileOrder(name string) int {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return unorderedSQLFile
	}
	n, err := strconv.Atoi(prefix)
	if err != nil || n < 0 {
		return unorderedSQLFile
	}
	return n
}

func (s *SQLInitManager) run(ctx context.Context, file SQLFileInfo) (res ExecutionResult) {
	start := time.Now()
	res.File = file.Path
	defer func() { res.Duration = time.Since(start) }()

	raw, err := os.ReadFile(file.Path)
	if err != nil {
		res.Error = err
		return res
	}
	content, err := s.render(file.Name, string(raw))
	if err != nil {
		res.Error = err
		return res
	}
	statements := splitStatements(content)
	res.Statements = len(statements)
	if len(statements) == 0 {
		res.Success = true
		return res
	}

	res.Error = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for i, stmt := range statements {
			r, err := tx.ExecContext(ctx, stmt)
			if err != nil {
				return fmt.Errorf("statement %d: %w", i+1, err)
			}
			if n, err := r.RowsAffected(); err == nil {
				res.RowsAffected += n
			}
		}
		return nil
	})
	res.Success = res.Error == nil
	return res
}

// render expands {{.ENVIRONMENT}}, {{.TIMESTAMP}}, any process environment
// variable by name, and {{env "NAME"}}.
func (s *SQLInitManager) render(name, content string) (string, error) {
	tmpl, err := template.New(name).
		Funcs(template.FuncMap{"env": os.Getenv}).
		Option("missingkey=zero").
		Parse(content)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}
	data := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			data[k] = v
		}
	}
	data["ENVIRONMENT"] = s.environment
	data["TIMESTAMP"] = time.Now().Format("2006-01-02 15:04:05")

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}

// splitStatements cuts a script at semicolons that are outside quotes and
// comments. Comments are dropped.
func splitStatements(script string) []string {
	var (
		stmts []string
		cur   strings.Builder
		quote rune
	)
	flush := func() {
		if stmt := strings.TrimSpace(cur.String()); stmt != "" {
			stmts = append(stmts, stmt)
		}
		cur.Reset()
	}
	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			cur.WriteRune(r)
			if r == quote {
				// doubled quote is an escaped quote
				if i+1 < len(runes) && runes[i+1] == quote {
					cur.WriteRune(runes[i+1])
					i++
				} else {
					quote = 0
				}
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
			cur.WriteRune(r)
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			cur.WriteRune('\n')
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i++
			cur.WriteRune(' ')
		case r == ';':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return stmts
}
