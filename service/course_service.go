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

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/tomoncle/learnx/database"
	"github.com/tomoncle/learnx/model"
	"github.com/tomoncle/learnx/repository"
	"github.com/tomoncle/learnx/types"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrCourseUnavailable = errors.New("course is not open for enrollment")
)

// CourseService applies course and enrollment lifecycle changes and keeps
// the course aggregates consistent with the enrollments.
type CourseService struct {
	db          bun.IDB
	users       repository.Repository[model.User]
	courses     repository.Repository[model.Course]
	enrollments repository.Repository[model.Enrollment]
	logger      database.Logger
	now         func() time.Time
}

func NewCourseService(db bun.IDB, logger database.Logger) *CourseService {
	if logger == nil {
		logger = database.GetLogger()
	}
	return &CourseService{
		db:          db,
		users:       repository.NewRepository[model.User](db),
		courses:     repository.NewRepository[model.Course](db),
		enrollments: repository.NewRepository[model.Enrollment](db),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func notFound(what string, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return err
}

// Enroll registers userID for a published course. An existing enrollment is
// returned unchanged unless it was dropped or deleted, in which case it is
// reactivated.
func (s *CourseService) Enroll(ctx context.Context, userID, courseID string) (*model.Enrollment, bool, error) {
	if _, err := s.users.GetOne(ctx, userID); err != nil {
		return nil, false, notFound("user", userID, err)
	}
	course, err := s.courses.GetOne(ctx, courseID)
	if err != nil {
		return nil, false, notFound("course", courseID, err)
	}
	if course.Status != model.CoursePublished || !course.IsActive {
		return nil, false, fmt.Errorf("%w: %s is %s", ErrCourseUnavailable, course.Title, course.Status)
	}

	enrollment, created, err := s.enrollments.FindOrCreate(ctx, model.NewEnrollment(userID, courseID),
		"user_id = ? AND course_id = ?", userID, courseID)
	if err != nil {
		return nil, false, err
	}
	if !created && (enrollment.Status == model.EnrollmentDropped || !enrollment.DeletedAt.IsZero()) {
		if enrollment.Status == model.EnrollmentDropped {
			enrollment.Status = model.EnrollmentActive
		}
		enrollment.DeletedAt = time.Time{}
		enrollment.LastAccessedAt = s.now()
		_, err := s.db.NewUpdate().Model(enrollment).
			Column("status", "deleted_at", "last_accessed_at", "updated_at").
			WherePK().
			WhereAllWithDeleted().
			Exec(ctx)
		if err != nil {
			return nil, false, err
		}
		created = true
	}
	if created {
		s.logger.Info("Enrolled", "user_id", userID, "course_id", courseID)
		if _, err := s.RecomputeCourseAggregates(ctx, courseID); err != nil {
			return nil, false, err
		}
	}
	return enrollment, created, nil
}

// UpdateProgress sets the progress percentage. Out-of-range values are
// rejected before the database is queried.
func (s *CourseService) UpdateProgress(ctx context.Context, enrollmentID string, progress float64) (*model.Enrollment, error) {
	if err := model.ValidateProgress(progress); err != nil {
		return nil, err
	}
	e, err := s.enrollments.GetOne(ctx, enrollmentID)
	if err != nil {
		return nil, notFound("enrollment", enrollmentID, err)
	}
	if err := e.SetProgress(progress, s.now()); err != nil {
		return nil, err
	}
	if err := s.enrollments.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// CompleteLesson records a finished lesson out of totalLessons.
func (s *CourseService) CompleteLesson(ctx context.Context, enrollmentID, lesson string, totalLessons int) (*model.Enrollment, error) {
	e, err := s.enrollments.GetOne(ctx, enrollmentID)
	if err != nil {
		return nil, notFound("enrollment", enrollmentID, err)
	}
	if err := e.CompleteLesson(lesson, totalLessons, s.now()); err != nil {
		return nil, err
	}
	if err := s.enrollments.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Drop withdraws an enrollment and updates the course aggregate.
func (s *CourseService) Drop(ctx context.Context, enrollmentID string) error {
	e, err := s.enrollments.GetOne(ctx, enrollmentID)
	if err != nil {
		return notFound("enrollment", enrollmentID, err)
	}
	if err := e.Drop(); err != nil {
		return err
	}
	if err := s.enrollments.Update(ctx, e, "status", "updated_at"); err != nil {
		return err
	}
	_, err = s.RecomputeCourseAggregates(ctx, e.CourseID)
	return err
}

// IssueCertificate marks a completed enrollment as certified.
func (s *CourseService) IssueCertificate(ctx context.Context, enrollmentID string) (*model.Enrollment, error) {
	e, err := s.enrollments.GetOne(ctx, enrollmentID)
	if err != nil {
		return nil, notFound("enrollment", enrollmentID, err)
	}
	if err := e.IssueCertificate(s.now()); err != nil {
		return nil, err
	}
	if err := s.enrollments.Update(ctx, e, "certificate_issued", "certificate_issued_at", "updated_at"); err != nil {
		return nil, err
	}
	return e, nil
}

// PublishCourse publishes a course whose instructor exists and may teach.
func (s *CourseService) PublishCourse(ctx context.Context, courseID string) (*model.Course, error) {
	course, err := s.courses.GetOne(ctx, courseID)
	if err != nil {
		return nil, notFound("course", courseID, err)
	}
	instructor, err := s.users.GetOne(ctx, course.InstructorID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !instructor.CanTeach()) {
		return nil, fmt.Errorf("%w: instructor %s cannot teach", model.ErrMissingInstructor, course.InstructorID)
	}
	if err != nil {
		return nil, err
	}
	if err := course.Publish(); err != nil {
		return nil, err
	}
	if err := s.courses.Update(ctx, course, "status", "is_active", "updated_at"); err != nil {
		return nil, err
	}
	return course, nil
}

// ArchiveCourse hides a published course.
func (s *CourseService) ArchiveCourse(ctx context.Context, courseID string) (*model.Course, error) {
	course, err := s.courses.GetOne(ctx, courseID)
	if err != nil {
		return nil, notFound("course", courseID, err)
	}
	if err := course.Archive(); err != nil {
		return nil, err
	}
	if err := s.courses.Update(ctx, course, "status", "updated_at"); err != nil {
		return nil, err
	}
	return course, nil
}

// RecomputeCourseAggregates sets total_students to the number of enrollments
// of the course that were not dropped and returns it.
func (s *CourseService) RecomputeCourseAggregates(ctx context.Context, courseID string) (int, error) {
	n, err := s.enrollments.Count(ctx, types.NewQueryFilter("course_id = ? AND status <> ?", courseID, model.EnrollmentDropped))
	if err != nil {
		return 0, err
	}
	_, err = s.db.NewUpdate().
		Table("courses").
		Set("total_students = ?", n).
		Set("updated_at = ?", s.now()).
		Where("id = ?", courseID).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to update aggregates of course %s: %w", courseID, err)
	}
	s.logger.Debug("Course aggregates recomputed", "course_id", courseID, "total_students", n)
	return n, nil
}

// ListCourses pages through courses with the given status, newest first.
func (s *CourseService) ListCourses(ctx context.Context, status model.CourseStatus, page, pageSize int) (*types.Pagination[model.Course], error) {
	req := types.NewPageRequest(page, pageSize).OrderBy("created_at DESC")
	if status != "" {
		req.Where("status = ?", status)
	}
	return s.courses.Page(ctx, req)
}
