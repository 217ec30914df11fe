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
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// EntityDefinition is one table the synchronizer manages: the Bun model that
// describes its columns plus the relationships it declares.
type EntityDefinition struct {
	// Name is the table name. It is read from the model's bun.BaseModel tag
	// when empty.
	Name        string
	Model       interface{}
	ForeignKeys []ForeignKeyConstraint
	// Priority breaks ties between entities without a dependency between
	// them; lower values come first.
	Priority int
}

// TableName returns Name or the table tag of the model.
func (e EntityDefinition) TableName() (string, error) {
	if e.Name != "" {
		return e.Name, nil
	}
	return resolveTableName(e.Model)
}

// dependencies lists referenced tables other than the entity itself.
func (e EntityDefinition) dependencies(self string) []string {
	var deps []string
	for _, fk := range e.ForeignKeys {
		if fk.ReferenceTable != "" && !strings.EqualFold(fk.ReferenceTable, self) {
			deps = append(deps, strings.ToLower(fk.ReferenceTable))
		}
	}
	return deps
}

// EntityRegistry collects entity definitions and hands them out in
// dependency order.
type EntityRegistry struct {
	mu       sync.RWMutex
	entities []EntityDefinition
}

func NewEntityRegistry(defs ...EntityDefinition) *EntityRegistry {
	r := &EntityRegistry{}
	r.Register(defs...)
	return r
}

func (r *EntityRegistry) Register(defs ...EntityDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities = append(r.entities, defs...)
}

// ApplyForeignKeys merges constraints into the definitions whose table they
// name. A constraint on a column that already has one replaces it.
func (r *EntityRegistry) ApplyForeignKeys(constraints []ForeignKeyConstraint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, fk := range constraints {
		matched := false
		for i := range r.entities {
			name, err := r.entities[i].TableName()
			if err != nil {
				return err
			}
			if !strings.EqualFold(name, fk.Table) {
				continue
			}
			matched = true
			replaced := false
			for j, existing := range r.entities[i].ForeignKeys {
				if strings.EqualFold(existing.Column, fk.Column) {
					r.entities[i].ForeignKeys[j] = fk
					replaced = true
				}
			}
			if !replaced {
				r.entities[i].ForeignKeys = append(r.entities[i].ForeignKeys, fk)
			}
		}
		if !matched {
			return fmt.Errorf("foreign key %s targets unregistered table %s", fk.GenerateConstraintName(), fk.Table)
		}
	}
	return nil
}

// Entities returns the definitions ordered so that referenced tables come
// before the tables that reference them.
func (r *EntityRegistry) Entities() ([]EntityDefinition, error) {
	r.mu.RLock()
	defs := make([]EntityDefinition, len(r.entities))
	copy(defs, r.entities)
	r.mu.RUnlock()
	return OrderEntities(defs)
}

// OrderEntities sorts definitions topologically over their foreign keys.
// References to tables outside defs are assumed to exist already.
func OrderEntities(defs []EntityDefinition) ([]EntityDefinition, error) {
	names := make([]string, len(defs))
	index := make(map[string]int, len(defs))
	for i, def := range defs {
		name, err := def.TableName()
		if err != nil {
			return nil, err
		}
		key := strings.ToLower(name)
		if _, dup := index[key]; dup {
			return nil, fmt.Errorf("entity %s registered twice", name)
		}
		names[i] = key
		index[key] = i
	}

	pending := make([]int, len(defs))
	dependents := make(map[int][]int)
	for i, def := range defs {
		for _, dep := range def.dependencies(names[i]) {
			j, ok := index[dep]
			if !ok {
				continue
			}
			pending[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	less := func(a, b int) bool {
		if defs[a].Priority != defs[b].Priority {
			return defs[a].Priority < defs[b].Priority
		}
		return a < b
	}
	var ready []int
	for i := range defs {
		if pending[i] == 0 {
			ready = append(ready, i)
		}
	}

	ordered := make([]EntityDefinition, 0, len(defs))
	for len(ready) > 0 {
		sort.Slice(ready, func(x, y int) bool { return less(ready[x], ready[y]) })
		next := ready[0]
		ready = ready[1:]
		ordered = append(ordered, defs[next])
		for _, d := range dependents[next] {
			pending[d]--
			if pending[d] == 0 {
				ready = append(ready, d)
			}
		}
	}
	if len(ordered) != len(defs) {
		var cyclic []string
		for i := range defs {
			if pending[i] > 0 {
				cyclic = append(cyclic, names[i])
			}
		}
		return nil, fmt.Errorf("foreign key cycle between tables %v", cyclic)
	}
	return ordered, nil
}

func resolveTableName(model interface{}) (string, error) {
	if model == nil {
		return "", fmt.Errorf("entity model is nil")
	}
	t := reflect.TypeOf(model)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return "", fmt.Errorf("entity model %T is not a struct", model)
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Type.Name() == "BaseModel" && strings.Contains(f.Type.PkgPath(), "uptrace/bun") {
			for _, part := range strings.Split(f.Tag.Get("bun"), ",") {
				part = strings.TrimSpace(part)
				if strings.HasPrefix(part, "table:") {
					return strings.TrimPrefix(part, "table:"), nil
				}
			}
		}
	}
	return "", fmt.Errorf("missing table tag on bun.BaseModel of %T", model)
}
