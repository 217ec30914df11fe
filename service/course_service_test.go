package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomoncle/learnx/database"
	"github.com/tomoncle/learnx/internal/testutil"
	"github.com/tomoncle/learnx/model"
	"github.com/tomoncle/learnx/repository"
)

type fixture struct {
	svc     *CourseService
	db      *bun.DB
	teacher *model.User
	student *model.User
	course  *model.Course
}

func newFixture(t *testing.T) *fixture {
	model.PasswordCost = bcrypt.MinCost
	ctx := context.Background()
	db := testutil.SyncedDB(t)

	teacher := model.NewUser("John Instructor", "teacher@learnx.com", "teacher123", model.RoleTeacher)
	student := model.NewUser("Sarah Student", "student@learnx.com", "student123", model.RoleStudent)
	require.NoError(t, repository.NewRepository[model.User](db).Create(ctx, teacher, student))

	course := model.NewCourse("Complete React Development Course", "Learn React.", "Web Development", teacher.ID)
	require.NoError(t, course.Publish())
	require.NoError(t, repository.NewRepository[model.Course](db).Create(ctx, course))

	return &fixture{
		svc:     NewCourseService(db, database.NopLogger{}),
		db:      db,
		teacher: teacher,
		student: student,
		course:  course,
	}
}

func (f *fixture) totalStudents(t *testing.T) int {
	c, err := repository.NewRepository[model.Course](f.db).GetOne(context.Background(), f.course.ID)
	require.NoError(t, err)
	return c.TotalStudents
}

func TestEnrollIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, created, err := f.svc.Enroll(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.EnrollmentActive, e.Status)
	assert.Equal(t, 1, f.totalStudents(t))

	again, created, err := f.svc.Enroll(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, e.ID, again.ID)
	assert.Equal(t, 1, f.totalStudents(t))
}

func TestEnrollRejectsUnknownAndDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Enroll(ctx, "missing", f.course.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	draft := model.NewCourse("Draft course title", "Soon.", "Misc", f.teacher.ID)
	require.NoError(t, repository.NewRepository[model.Course](f.db).Create(ctx, draft))
	_, _, err = f.svc.Enroll(ctx, f.student.ID, draft.ID)
	assert.ErrorIs(t, err, ErrCourseUnavailable)
}

func TestUpdateProgressValidatesFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateProgress(ctx, "does-not-exist", 101)
	assert.ErrorIs(t, err, model.ErrProgressOutOfRange, "range check happens before the lookup")

	e, _, err := f.svc.Enroll(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)

	e, err = f.svc.UpdateProgress(ctx, e.ID, 25.5)
	require.NoError(t, err)
	assert.Equal(t, 25.5, e.Progress.Float64())

	e, err = f.svc.UpdateProgress(ctx, e.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, model.EnrollmentCompleted, e.Status)

	stored, err := repository.NewRepository[model.Enrollment](f.db).GetOne(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EnrollmentCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)

	e, err = f.svc.IssueCertificate(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, e.CertificateIssued)
}

func TestCompleteLesson(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, _, err := f.svc.Enroll(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)

	e, err = f.svc.CompleteLesson(ctx, e.ID, "lesson1", 2)
	require.NoError(t, err)
	assert.Equal(t, 50.0, e.Progress.Float64())

	stored, err := repository.NewRepository[model.Enrollment](f.db).GetOne(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"lesson1"}, []string(stored.CompletedLessons))
}

func TestDropRecomputesAndReenrollReactivates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, _, err := f.svc.Enroll(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Drop(ctx, e.ID))
	assert.Equal(t, 0, f.totalStudents(t))

	_, err = f.svc.IssueCertificate(ctx, e.ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	again, created, err := f.svc.Enroll(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, e.ID, again.ID)
	assert.Equal(t, 1, f.totalStudents(t))
}

func TestPublishRequiresTeachingInstructor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	courses := repository.NewRepository[model.Course](f.db)

	byStudent := model.NewCourse("Taught by a student", "No.", "Misc", f.student.ID)
	require.NoError(t, courses.Create(ctx, byStudent))
	_, err := f.svc.PublishCourse(ctx, byStudent.ID)
	assert.ErrorIs(t, err, model.ErrMissingInstructor)

	draft := model.NewCourse("Node.js Backend Development", "Build APIs.", "Backend Development", f.teacher.ID)
	require.NoError(t, courses.Create(ctx, draft))
	published, err := f.svc.PublishCourse(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CoursePublished, published.Status)

	archived, err := f.svc.ArchiveCourse(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CourseArchived, archived.Status)

	page, err := f.svc.ListCourses(ctx, model.CoursePublished, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, f.course.ID, page.Items[0].ID)
}

func TestZeroDecimalsReadBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	free := model.NewCourse("Free introduction course", "No cost.", "Misc", f.teacher.ID)
	require.NoError(t, repository.NewRepository[model.Course](f.db).Create(ctx, free))

	got, err := repository.NewRepository[model.Course](f.db).GetOne(ctx, free.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Price.Float64())
	assert.Zero(t, got.Rating.Float64())

	published, err := f.svc.PublishCourse(ctx, free.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CoursePublished, published.Status)

	list, err := f.svc.ListCourses(ctx, model.CoursePublished, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, list.Total)

	e, _, err := f.svc.Enroll(ctx, f.student.ID, free.ID)
	require.NoError(t, err)
	stored, err := repository.NewRepository[model.Enrollment](f.db).GetOne(ctx, e.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.Progress.Float64())
}

func TestEnrollRestoresDeletedEnrollment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	enrollments := repository.NewRepository[model.Enrollment](f.db)

	e, _, err := f.svc.Enroll(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)
	require.NoError(t, enrollments.Delete(ctx, e.ID))
	_, err = f.svc.RecomputeCourseAggregates(ctx, f.course.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.totalStudents(t))

	again, created, err := f.svc.Enroll(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, e.ID, again.ID)

	stored, err := enrollments.GetOne(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EnrollmentActive, stored.Status)
	assert.Equal(t, 1, f.totalStudents(t))
}
