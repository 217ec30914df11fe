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
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/tomoncle/learnx/types"
)

type Level string

const (
	LevelBeginner     Level = "Beginner"
	LevelIntermediate Level = "Intermediate"
	LevelAdvanced     Level = "Advanced"
)

func (l Level) IsValid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	}
	return false
}

func ParseLevel(s string) (Level, error) {
	return types.ParseEnum(s, LevelBeginner, LevelIntermediate, LevelAdvanced)
}

type CourseStatus string

const (
	CourseDraft     CourseStatus = "draft"
	CoursePublished CourseStatus = "published"
	CourseArchived  CourseStatus = "archived"
)

func (s CourseStatus) IsValid() bool {
	switch s {
	case CourseDraft, CoursePublished, CourseArchived:
		return true
	}
	return false
}

type Course struct {
	bun.BaseModel `bun:"table:courses,alias:c"`

	ID               string           `bun:"id,pk,type:varchar(36)" json:"id"`
	Title            string           `bun:"title,notnull,unique,type:varchar(200)" json:"title"`
	Description      string           `bun:"description,notnull,type:text" json:"description"`
	ShortDescription string           `bun:"short_description,type:varchar(500)" json:"shortDescription"`
	Category         string           `bun:"category,notnull,type:varchar(100)" json:"category"`
	Level            Level            `bun:"level,notnull,type:varchar(20),default:'Beginner'" json:"level"`
	Duration         string           `bun:"duration,type:varchar(50)" json:"duration"`
	Image            string           `bun:"image,type:varchar(500)" json:"image"`
	Price            types.Decimal    `bun:"price,notnull,type:decimal(10,2),default:0" json:"price"`
	Status           CourseStatus     `bun:"status,notnull,type:varchar(20),default:'draft'" json:"status"`
	Requirements     types.StringList `bun:"requirements,type:json" json:"requirements"`
	WhatYouLearn     types.StringList `bun:"what_you_learn,type:json" json:"whatYouLearn"`
	Tags             types.StringList `bun:"tags,type:json" json:"tags"`
	Rating           types.Decimal    `bun:"rating,notnull,type:decimal(3,2),default:0" json:"rating"`
	TotalRatings     int              `bun:"total_ratings,notnull,default:0" json:"totalRatings"`
	TotalStudents    int              `bun:"total_students,notnull,default:0" json:"totalStudents"`
	IsActive         bool             `bun:"is_active,notnull,default:true" json:"isActive"`
	InstructorID     string           `bun:"instructor_id,notnull,type:varchar(36)" json:"instructorId"`
	Instructor       *User            `bun:"rel:belongs-to,join:instructor_id=id" json:"instructor,omitempty"`
	CreatedAt        time.Time        `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt        time.Time        `bun:"updated_at,notnull,default:current_timestamp" json:"updatedAt"`
	DeletedAt        time.Time        `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

var _ bun.BeforeAppendModelHook = (*Course)(nil)

// NewCourse returns an active draft course owned by instructorID.
func NewCourse(title, description, category string, instructorID string) *Course {
	return &Course{
		Title:        strings.TrimSpace(title),
		Description:  description,
		Category:     category,
		Level:        LevelBeginner,
		Status:       CourseDraft,
		Requirements: types.StringList{},
		WhatYouLearn: types.StringList{},
		Tags:         types.StringList{},
		IsActive:     true,
		InstructorID: instructorID,
	}
}

func (c *Course) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery:
		if c.Level == "" {
			c.Level = LevelBeginner
		}
		if c.Status == "" {
			c.Status = CourseDraft
		}
		if err := c.Validate(); err != nil {
			return err
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		touch(&c.CreatedAt, &c.UpdatedAt)
	case *bun.UpdateQuery:
		if err := c.Validate(); err != nil {
			return err
		}
		touch(nil, &c.UpdatedAt)
	}
	return nil
}

func (c *Course) Validate() error {
	if n := utf8.RuneCountInString(strings.TrimSpace(c.Title)); n < 5 || n > 200 {
		return invalid("course", "title", "length %d not in [5,200]", n)
	}
	if strings.TrimSpace(c.Description) == "" {
		return invalid("course", "description", "must not be empty")
	}
	if utf8.RuneCountInString(c.ShortDescription) > 500 {
		return invalid("course", "short_description", "longer than 500 characters")
	}
	if strings.TrimSpace(c.Category) == "" {
		return invalid("course", "category", "must not be empty")
	}
	if c.Level != "" && !c.Level.IsValid() {
		return invalid("course", "level", "unknown level %q", c.Level)
	}
	if c.Status != "" && !c.Status.IsValid() {
		return invalid("course", "status", "unknown status %q", c.Status)
	}
	if c.Price < 0 || c.Price >= 1e8 {
		return invalid("course", "price", "%.2f out of range", c.Price)
	}
	if c.Rating < 0 || c.Rating > 5 {
		return invalid("course", "rating", "%.2f not in [0,5]", c.Rating)
	}
	if c.InstructorID == "" {
		return invalid("course", "instructor_id", "%v", ErrMissingInstructor)
	}
	return nil
}

// Publish makes a draft or archived course visible. Whether the instructor
// row exists is checked by the caller that owns the database handle.
func (c *Course) Publish() error {
	if c.InstructorID == "" {
		return ErrMissingInstructor
	}
	if c.Status == CoursePublished {
		return nil
	}
	c.Status = CoursePublished
	c.IsActive = true
	return nil
}

// Archive hides the course without deleting it.
func (c *Course) Archive() error {
	if c.Status == CourseDraft {
		return ErrInvalidTransition
	}
	c.Status = CourseArchived
	return nil
}

// AddRating folds a 1..5 star rating into the running average.
func (c *Course) AddRating(stars int) error {
	if stars < 1 || stars > 5 {
		return invalid("course", "rating", "%d stars not in [1,5]", stars)
	}
	total := c.Rating.Float64()*float64(c.TotalRatings) + float64(stars)
	c.TotalRatings++
	c.Rating = types.Decimal(total / float64(c.TotalRatings)).Round(2)
	return nil
}
