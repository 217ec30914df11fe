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

package seed

import (
	"context"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	"github.com/tomoncle/learnx/database"
	"github.com/tomoncle/learnx/model"
	"github.com/tomoncle/learnx/repository"
	"github.com/tomoncle/learnx/service"
	"github.com/tomoncle/learnx/types"
)

// SeedError names the baseline record that could not be loaded.
type SeedError struct {
	Record string
	Err    error
}

func (e *SeedError) Error() string {
	return fmt.Sprintf("seed %s: %v", e.Record, e.Err)
}

func (e *SeedError) Unwrap() error { return e.Err }

// Record is one baseline row and whether this run inserted it.
type Record struct {
	Kind    string
	Key     string
	ID      string
	Created bool
}

// Report lists what Seed found or created.
type Report struct {
	Records  []Record
	SQLFiles []database.ExecutionResult
}

// Count returns how many records of kind exist after the run.
func (r *Report) Count(kind string) int {
	n := 0
	for _, rec := range r.Records {
		if rec.Kind == kind {
			n++
		}
	}
	return n
}

// Created returns how many records this run inserted.
func (r *Report) Created() int {
	n := 0
	for _, rec := range r.Records {
		if rec.Created {
			n++
		}
	}
	return n
}

type Option func(*Loader)

func WithLogger(l database.Logger) Option {
	return func(ld *Loader) { ld.logger = l }
}

// WithBaseline replaces the default records.
func WithBaseline(b Baseline) Option {
	return func(ld *Loader) { ld.baseline = b }
}

// WithSQLFiles runs the SQL files under root after the baseline.
func WithSQLFiles(root, environment string) Option {
	return func(ld *Loader) {
		ld.sqlRoot = root
		ld.environment = environment
	}
}

// Loader inserts the baseline records that are missing and leaves existing
// ones untouched.
type Loader struct {
	db          bun.IDB
	baseline    Baseline
	logger      database.Logger
	sqlRoot     string
	environment string
}

func NewLoader(db bun.IDB, opts ...Option) *Loader {
	l := &Loader{db: db, baseline: DefaultBaseline(), logger: database.GetLogger(), environment: "development"}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Seed finds or creates every baseline record by natural key. Re-running it
// against a seeded database changes nothing.
func (l *Loader) Seed(ctx context.Context) (*Report, error) {
	l.logger.Info("Starting database seeding")
	report := &Report{}

	users := repository.NewRepository[model.User](l.db)
	userIDs := map[string]string{}
	for _, s := range l.baseline.Users {
		defaults := model.NewUser(s.Name, s.Email, s.Password, s.Role)
		defaults.IsEmailVerified = true
		if s.Bio != "" {
			bio := s.Bio
			defaults.Bio = &bio
		}
		u, created, err := users.FindOrCreate(ctx, defaults, "email = ?", defaults.Email)
		if err != nil {
			return report, &SeedError{Record: "user " + s.Email, Err: err}
		}
		userIDs[strings.ToLower(s.Email)] = u.ID
		report.add(l.logger, "user", s.Email, u.ID, created)
	}

	courses := repository.NewRepository[model.Course](l.db)
	courseIDs := map[string]string{}
	for _, s := range l.baseline.Courses {
		instructorID, ok := userIDs[strings.ToLower(s.InstructorEmail)]
		if !ok {
			return report, &SeedError{Record: "course " + s.Title, Err: fmt.Errorf("unknown instructor %s", s.InstructorEmail)}
		}
		defaults := model.NewCourse(s.Title, s.Description, s.Category, instructorID)
		defaults.ShortDescription = s.ShortDescription
		defaults.Level = s.Level
		defaults.Duration = s.Duration
		defaults.Price = types.Decimal(s.Price)
		defaults.Requirements = types.StringList(s.Requirements)
		defaults.WhatYouLearn = types.StringList(s.WhatYouLearn)
		defaults.Tags = types.StringList(s.Tags)
		if err := defaults.Publish(); err != nil {
			return report, &SeedError{Record: "course " + s.Title, Err: err}
		}
		c, created, err := courses.FindOrCreate(ctx, defaults, "title = ?", defaults.Title)
		if err != nil {
			return report, &SeedError{Record: "course " + s.Title, Err: err}
		}
		courseIDs[s.Title] = c.ID
		report.add(l.logger, "course", s.Title, c.ID, created)
	}

	enrollments := repository.NewRepository[model.Enrollment](l.db)
	aggregates := service.NewCourseService(l.db, l.logger)
	for _, s := range l.baseline.Enrollments {
		key := s.UserEmail + " -> " + s.CourseTitle
		userID, ok := userIDs[strings.ToLower(s.UserEmail)]
		if !ok {
			return report, &SeedError{Record: "enrollment " + key, Err: fmt.Errorf("unknown user %s", s.UserEmail)}
		}
		courseID, ok := courseIDs[s.CourseTitle]
		if !ok {
			return report, &SeedError{Record: "enrollment " + key, Err: fmt.Errorf("unknown course %s", s.CourseTitle)}
		}
		defaults := model.NewEnrollment(userID, courseID)
		defaults.Progress = types.Decimal(s.Progress)
		defaults.CompletedLessons = types.StringList(s.CompletedLessons)
		e, created, err := enrollments.FindOrCreate(ctx, defaults, "user_id = ? AND course_id = ?", userID, courseID)
		if err != nil {
			return report, &SeedError{Record: "enrollment " + key, Err: err}
		}
		report.add(l.logger, "enrollment", key, e.ID, created)
		if created {
			if _, err := aggregates.RecomputeCourseAggregates(ctx, courseID); err != nil {
				return report, &SeedError{Record: "enrollment " + key, Err: err}
			}
		}
	}

	if l.sqlRoot != "" {
		results, err := database.NewSQLInitManager(l.db, l.environment, l.sqlRoot, l.logger).ExecuteInitialization(ctx)
		report.SQLFiles = results
		if err != nil {
			return report, &SeedError{Record: "sql files", Err: err}
		}
	}

	l.logger.Info("Database seeding completed",
		"users", report.Count("user"), "courses", report.Count("course"),
		"enrollments", report.Count("enrollment"), "created", report.Created())
	return report, nil
}

func (r *Report) add(logger database.Logger, kind, key, id string, created bool) {
	r.Records = append(r.Records, Record{Kind: kind, Key: key, ID: id, Created: created})
	if created {
		logger.Info("Seed record created", "kind", kind, "key", key)
	} else {
		logger.Debug("Seed record found", "kind", kind, "key", key)
	}
}

// Run seeds through the manager's handle and disconnects afterwards, whether
// seeding succeeded or not.
func Run(ctx context.Context, manager database.AbstractDatabaseManager, opts ...Option) (report *Report, err error) {
	defer func() {
		if cerr := manager.Disconnect(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to release database handle: %w", cerr)
		}
	}()
	db := manager.GetDB()
	if db == nil {
		return nil, &SeedError{Record: "connection", Err: fmt.Errorf("database handle is not open")}
	}
	return NewLoader(db, opts...).Seed(ctx)
}
