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

package model

import "github.com/tomoncle/learnx/database"

// Entities returns the LearnX tables with their relationships. Nothing
// cascades on delete.
func Entities() []database.EntityDefinition {
	return []database.EntityDefinition{
		{Model: (*User)(nil), Priority: 0},
		{
			Model:    (*Course)(nil),
			Priority: 1,
			ForeignKeys: []database.ForeignKeyConstraint{
				{Table: "courses", Column: "instructor_id", ReferenceTable: "users", ReferenceColumn: "id", OnDelete: "RESTRICT", OnUpdate: "CASCADE"},
			},
		},
		{
			Model:    (*Enrollment)(nil),
			Priority: 2,
			ForeignKeys: []database.ForeignKeyConstraint{
				{Table: "enrollments", Column: "user_id", ReferenceTable: "users", ReferenceColumn: "id", OnDelete: "RESTRICT", OnUpdate: "CASCADE"},
				{Table: "enrollments", Column: "course_id", ReferenceTable: "courses", ReferenceColumn: "id", OnDelete: "RESTRICT", OnUpdate: "CASCADE"},
			},
		},
	}
}

// Registry returns an EntityRegistry holding Entities. Constraints loaded
// from a descriptor file replace the built-in ones column by column.
func Registry(extra ...database.ForeignKeyConstraint) (*database.EntityRegistry, error) {
	r := database.NewEntityRegistry(Entities()...)
	if err := r.ApplyForeignKeys(extra); err != nil {
		return nil, err
	}
	return r, nil
}
