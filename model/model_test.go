package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomoncle/learnx/database"
)

func init() {
	PasswordCost = bcrypt.MinCost
}

var insert = (*bun.InsertQuery)(nil)

func TestUserInsertHook(t *testing.T) {
	u := NewUser("Sarah Student", " Student@LearnX.com ", "student123", "")
	require.NoError(t, u.BeforeAppendModel(context.Background(), insert))

	assert.Len(t, u.ID, 36)
	assert.Equal(t, "student@learnx.com", u.Email)
	assert.Equal(t, RoleStudent, u.Role)
	assert.NotEqual(t, "student123", u.Password)
	assert.True(t, u.CheckPassword("student123"))
	assert.False(t, u.CreatedAt.IsZero())

	hashed := u.Password
	require.NoError(t, u.BeforeAppendModel(context.Background(), (*bun.UpdateQuery)(nil)))
	assert.Equal(t, hashed, u.Password, "an existing hash is not hashed again")
}

func TestUserValidate(t *testing.T) {
	cases := []struct {
		name  string
		user  *User
		field string
	}{
		{"short name", NewUser("A", "a@b.io", "pw", RoleStudent), "name"},
		{"bad email", NewUser("Alice", "not-an-email", "pw", RoleStudent), "email"},
		{"empty password", NewUser("Alice", "a@b.io", "", RoleStudent), "password"},
		{"bad role", NewUser("Alice", "a@b.io", "pw", Role("root")), "role"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.user.Validate()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("Teacher")
	require.NoError(t, err)
	assert.Equal(t, RoleTeacher, r)
	_, err = ParseRole("owner")
	assert.Error(t, err)
}

func TestCourseValidateAndLifecycle(t *testing.T) {
	c := NewCourse("Go", "desc", "Programming", "teacher-id")
	assert.Error(t, c.Validate(), "title shorter than 5")

	c.Title = "Go in Practice"
	require.NoError(t, c.BeforeAppendModel(context.Background(), insert))
	assert.Equal(t, CourseDraft, c.Status)
	assert.Equal(t, LevelBeginner, c.Level)

	assert.ErrorIs(t, c.Archive(), ErrInvalidTransition)
	require.NoError(t, c.Publish())
	assert.Equal(t, CoursePublished, c.Status)
	require.NoError(t, c.Archive())
	assert.Equal(t, CourseArchived, c.Status)

	c.InstructorID = ""
	assert.ErrorIs(t, c.Publish(), ErrMissingInstructor)

	c.Price = -1
	c.InstructorID = "teacher-id"
	assert.Error(t, c.Validate())
}

func TestCourseAddRating(t *testing.T) {
	c := NewCourse("Go in Practice", "desc", "Programming", "t")
	require.NoError(t, c.AddRating(5))
	require.NoError(t, c.AddRating(4))
	assert.Equal(t, 2, c.TotalRatings)
	assert.InDelta(t, 4.5, c.Rating.Float64(), 0.001)
	assert.Error(t, c.AddRating(6))
}

func TestEnrollmentProgress(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	e := NewEnrollment("u", "c")

	for _, p := range []float64{-0.01, 100.5} {
		err := e.SetProgress(p, now)
		assert.True(t, errors.Is(err, ErrProgressOutOfRange), "progress %v", p)
	}

	require.NoError(t, e.SetProgress(25.556, now))
	assert.Equal(t, 25.56, e.Progress.Float64())
	assert.Equal(t, EnrollmentActive, e.Status)

	require.NoError(t, e.SetProgress(100, now))
	assert.Equal(t, EnrollmentCompleted, e.Status)
	require.NotNil(t, e.CompletedAt)
	assert.Equal(t, now, *e.CompletedAt)
}

func TestEnrollmentValidateRejectsOutOfRange(t *testing.T) {
	e := NewEnrollment("u", "c")
	e.Progress = 150
	err := e.BeforeAppendModel(context.Background(), insert)
	assert.ErrorIs(t, err, ErrProgressOutOfRange)
	assert.Empty(t, e.ID, "hook fails before the row is prepared")
}

func TestInvalidRowsAreNotPrepared(t *testing.T) {
	u := NewUser("x", "not-an-email", "secret", RoleStudent)
	require.Error(t, u.BeforeAppendModel(context.Background(), insert))
	assert.Empty(t, u.ID)
	assert.Equal(t, "secret", u.Password)
	assert.True(t, u.CreatedAt.IsZero())

	c := NewCourse("Go", "desc", "Programming", "teacher-id")
	require.Error(t, c.BeforeAppendModel(context.Background(), insert))
	assert.Empty(t, c.ID)
	assert.True(t, c.CreatedAt.IsZero())
}

func TestEnrollmentTransitions(t *testing.T) {
	now := time.Now()

	e := NewEnrollment("u", "c")
	assert.ErrorIs(t, e.IssueCertificate(now), ErrInvalidTransition)
	require.NoError(t, e.Drop())
	assert.ErrorIs(t, e.SetProgress(10, now), ErrInvalidTransition)
	assert.ErrorIs(t, e.Complete(now), ErrInvalidTransition)

	e = NewEnrollment("u", "c")
	require.NoError(t, e.Complete(now))
	assert.ErrorIs(t, e.Drop(), ErrInvalidTransition)
	require.NoError(t, e.IssueCertificate(now))
	first := *e.CertificateIssuedAt
	require.NoError(t, e.IssueCertificate(now.Add(time.Hour)))
	assert.Equal(t, first, *e.CertificateIssuedAt)
}

func TestEnrollmentCompleteLesson(t *testing.T) {
	now := time.Now()
	e := NewEnrollment("u", "c")
	require.NoError(t, e.CompleteLesson("lesson1", 4, now))
	require.NoError(t, e.CompleteLesson("lesson1", 4, now))
	assert.Equal(t, 25.0, e.Progress.Float64())
	for _, l := range []string{"lesson2", "lesson3", "lesson4"} {
		require.NoError(t, e.CompleteLesson(l, 4, now))
	}
	assert.Equal(t, EnrollmentCompleted, e.Status)
	assert.Error(t, e.CompleteLesson("x", 0, now))
}

func TestEntitiesOrder(t *testing.T) {
	ordered, err := database.OrderEntities(Entities())
	require.NoError(t, err)
	var names []string
	for _, def := range ordered {
		name, err := def.TableName()
		require.NoError(t, err)
		names = append(names, name)
	}
	assert.Equal(t, []string{"users", "courses", "enrollments"}, names)

	for _, def := range ordered {
		for _, fk := range def.ForeignKeys {
			assert.NoError(t, fk.Validate())
			assert.Equal(t, "RESTRICT", fk.OnDelete)
		}
	}
}

func TestRegistryAppliesOverrides(t *testing.T) {
	r, err := Registry(database.ForeignKeyConstraint{
		Table: "courses", Column: "instructor_id", ReferenceTable: "users", OnDelete: "NO ACTION",
	})
	require.NoError(t, err)
	defs, err := r.Entities()
	require.NoError(t, err)
	require.Len(t, defs[1].ForeignKeys, 1)
	assert.Equal(t, "NO ACTION", defs[1].ForeignKeys[0].OnDelete)

	_, err = Registry(database.ForeignKeyConstraint{Table: "lessons", Column: "course_id", ReferenceTable: "courses"})
	assert.Error(t, err)
}
