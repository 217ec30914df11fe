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

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/tomoncle/learnx/types"
)

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentDropped   EnrollmentStatus = "dropped"
)

func (s EnrollmentStatus) IsValid() bool {
	switch s {
	case EnrollmentActive, EnrollmentCompleted, EnrollmentDropped:
		return true
	}
	return false
}

type Enrollment struct {
	bun.BaseModel `bun:"table:enrollments,alias:e"`

	ID                  string           `bun:"id,pk,type:varchar(36)" json:"id"`
	UserID              string           `bun:"user_id,notnull,type:varchar(36),unique:uq_enrollments_user_course" json:"userId"`
	CourseID            string           `bun:"course_id,notnull,type:varchar(36),unique:uq_enrollments_user_course" json:"courseId"`
	Progress            types.Decimal    `bun:"progress,notnull,type:decimal(5,2),default:0" json:"progress"`
	CompletedLessons    types.StringList `bun:"completed_lessons,type:json" json:"completedLessons"`
	StartedAt           time.Time        `bun:"started_at,notnull,default:current_timestamp" json:"startedAt"`
	CompletedAt         *time.Time       `bun:"completed_at" json:"completedAt,omitempty"`
	LastAccessedAt      time.Time        `bun:"last_accessed_at,notnull,default:current_timestamp" json:"lastAccessedAt"`
	CertificateIssued   bool             `bun:"certificate_issued,notnull,default:false" json:"certificateIssued"`
	CertificateIssuedAt *time.Time       `bun:"certificate_issued_at" json:"certificateIssuedAt,omitempty"`
	Status              EnrollmentStatus `bun:"status,notnull,type:varchar(20),default:'active'" json:"status"`
	User                *User            `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Course              *Course          `bun:"rel:belongs-to,join:course_id=id" json:"course,omitempty"`
	CreatedAt           time.Time        `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt           time.Time        `bun:"updated_at,notnull,default:current_timestamp" json:"updatedAt"`
	DeletedAt           time.Time        `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

var _ bun.BeforeAppendModelHook = (*Enrollment)(nil)

// NewEnrollment returns an active enrollment with no progress.
func NewEnrollment(userID, courseID string) *Enrollment {
	return &Enrollment{
		UserID:           userID,
		CourseID:         courseID,
		CompletedLessons: types.StringList{},
		Status:           EnrollmentActive,
	}
}

func (e *Enrollment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery:
		if e.Status == "" {
			e.Status = EnrollmentActive
		}
		if err := e.Validate(); err != nil {
			return err
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		touch(&e.CreatedAt, &e.UpdatedAt)
		if e.StartedAt.IsZero() {
			e.StartedAt = e.CreatedAt
		}
		if e.LastAccessedAt.IsZero() {
			e.LastAccessedAt = e.StartedAt
		}
	case *bun.UpdateQuery:
		if err := e.Validate(); err != nil {
			return err
		}
		touch(nil, &e.UpdatedAt)
	}
	return nil
}

func (e *Enrollment) Validate() error {
	if e.UserID == "" {
		return invalid("enrollment", "user_id", "must not be empty")
	}
	if e.CourseID == "" {
		return invalid("enrollment", "course_id", "must not be empty")
	}
	if err := ValidateProgress(e.Progress.Float64()); err != nil {
		return &ValidationError{Model: "enrollment", Field: "progress", Err: err}
	}
	if e.Status != "" && !e.Status.IsValid() {
		return invalid("enrollment", "status", "unknown status %q", e.Status)
	}
	return nil
}

// ValidateProgress checks a percentage without touching any row.
func ValidateProgress(p float64) error {
	if math.IsNaN(p) || p < 0 || p > 100 {
		return fmt.Errorf("%w: %v", ErrProgressOutOfRange, p)
	}
	return nil
}

// SetProgress records progress in percent. Reaching 100 completes the
// enrollment.
func (e *Enrollment) SetProgress(p float64, now time.Time) error {
	if err := ValidateProgress(p); err != nil {
		return err
	}
	if e.Status == EnrollmentDropped {
		return fmt.Errorf("%w: enrollment is dropped", ErrInvalidTransition)
	}
	e.Progress = types.Decimal(p).Round(2)
	e.LastAccessedAt = now
	if e.Progress >= 100 {
		return e.Complete(now)
	}
	return nil
}

// CompleteLesson marks lesson done and recomputes progress from totalLessons.
func (e *Enrollment) CompleteLesson(lesson string, totalLessons int, now time.Time) error {
	if totalLessons <= 0 {
		return fmt.Errorf("total lessons must be positive, got %d", totalLessons)
	}
	e.CompletedLessons.Add(lesson)
	p := float64(len(e.CompletedLessons)) * 100 / float64(totalLessons)
	return e.SetProgress(math.Min(p, 100), now)
}

func (e *Enrollment) Complete(now time.Time) error {
	if e.Status == EnrollmentDropped {
		return fmt.Errorf("%w: enrollment is dropped", ErrInvalidTransition)
	}
	e.Status = EnrollmentCompleted
	e.Progress = 100
	if e.CompletedAt == nil {
		t := now
		e.CompletedAt = &t
	}
	e.LastAccessedAt = now
	return nil
}

func (e *Enrollment) Drop() error {
	if e.Status == EnrollmentCompleted {
		return fmt.Errorf("%w: enrollment is completed", ErrInvalidTransition)
	}
	e.Status = EnrollmentDropped
	return nil
}

// IssueCertificate is only allowed once the enrollment is completed. Issuing
// twice keeps the first timestamp.
func (e *Enrollment) IssueCertificate(now time.Time) error {
	if e.Status != EnrollmentCompleted {
		return fmt.Errorf("%w: certificate requires a completed enrollment", ErrInvalidTransition)
	}
	if e.CertificateIssued {
		return nil
	}
	t := now
	e.CertificateIssued = true
	e.CertificateIssuedAt = &t
	return nil
}
