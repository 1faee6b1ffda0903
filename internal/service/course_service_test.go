package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fundeport/academy-api/internal/models"
	appErrors "github.com/fundeport/academy-api/pkg/errors"
)

type mockCourseRepo struct {
	courses      map[string]*models.Course
	titles       map[string]string
	sectionCount int
	listCalls    int
}

func (m *mockCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	m.listCalls++
	var list []models.Course
	for _, c := range m.courses {
		list = append(list, *c)
	}
	return list, len(list), nil
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) ExistsByTitle(ctx context.Context, title string, excludeID string) (bool, error) {
	id, ok := m.titles[title]
	return ok && id != excludeID, nil
}

func (m *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	course.ID = "new-course"
	m.courses[course.ID] = course
	m.titles[course.Title] = course.ID
	return nil
}

func (m *mockCourseRepo) Update(ctx context.Context, course *models.Course) error {
	m.courses[course.ID] = course
	return nil
}

func (m *mockCourseRepo) CountSections(ctx context.Context, courseID string) (int, error) {
	return m.sectionCount, nil
}

func (m *mockCourseRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.courses[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.courses, id)
	return nil
}

// mockCacheStore keeps JSON payloads in a map the way the redis-backed
// repository does, including the miss sentinel.
type mockCacheStore struct {
	entries     map[string][]byte
	invalidated []string
}

func (m *mockCacheStore) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockCacheStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *mockCacheStore) DeleteByPattern(ctx context.Context, pattern string) error {
	m.invalidated = append(m.invalidated, pattern)
	for k := range m.entries {
		delete(m.entries, k)
	}
	return nil
}

func courseFixture() (*mockCourseRepo, *mockCacheStore, *CourseService) {
	repo := &mockCourseRepo{
		courses: map[string]*models.Course{
			"course-1": {ID: "course-1", Title: "Primary Math", TargetLevel: models.LevelPrimary, Active: true},
		},
		titles: map[string]string{"Primary Math": "course-1"},
	}
	store := &mockCacheStore{entries: make(map[string][]byte)}
	cache := NewCacheService(store, nil, time.Minute, zap.NewNop(), true)
	return repo, store, NewCourseService(repo, cache, validator.New(), zap.NewNop())
}

func TestCourseListCachesResult(t *testing.T) {
	repo, store, svc := courseFixture()
	filter := models.CourseFilter{Page: 1, PageSize: 20}

	courses, pagination, err := svc.List(context.Background(), filter)
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, 1, pagination.TotalCount)
	assert.Equal(t, 1, repo.listCalls)
	assert.NotEmpty(t, store.entries)

	// Second read is served from cache.
	courses, _, err = svc.List(context.Background(), filter)
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, 1, repo.listCalls)
}

func TestCourseGetCachesResult(t *testing.T) {
	repo, _, svc := courseFixture()

	course, err := svc.Get(context.Background(), "course-1")
	require.NoError(t, err)
	assert.Equal(t, "Primary Math", course.Title)

	delete(repo.courses, "course-1")
	course, err = svc.Get(context.Background(), "course-1")
	require.NoError(t, err)
	assert.Equal(t, "Primary Math", course.Title)
}

func TestCourseGetNotFound(t *testing.T) {
	_, _, svc := courseFixture()
	_, err := svc.Get(context.Background(), "ghost")
	assertCode(t, err, appErrors.ErrNotFound.Code)
}

func TestCourseCreateInvalidatesCache(t *testing.T) {
	repo, store, svc := courseFixture()

	_, _, err := svc.List(context.Background(), models.CourseFilter{Page: 1, PageSize: 20})
	require.NoError(t, err)
	require.NotEmpty(t, store.entries)

	course, err := svc.Create(context.Background(), CourseRequest{Title: "Secondary Physics", TargetLevel: "SECONDARY"}, "u1")
	require.NoError(t, err)
	assert.True(t, course.Active)
	assert.Equal(t, "u1", course.CreatedBy)
	assert.Empty(t, store.entries)
	assert.Contains(t, store.invalidated, "catalog:courses*")

	_, _, err = svc.List(context.Background(), models.CourseFilter{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.listCalls)
}

func TestCourseCreateDuplicateTitle(t *testing.T) {
	_, _, svc := courseFixture()

	_, err := svc.Create(context.Background(), CourseRequest{Title: "Primary Math", TargetLevel: "PRIMARY"}, "u1")
	assertCode(t, err, appErrors.ErrConflict.Code)
}

func TestCourseCreateInvalidLevel(t *testing.T) {
	_, _, svc := courseFixture()

	_, err := svc.Create(context.Background(), CourseRequest{Title: "Mystery", TargetLevel: "GRADUATE"}, "u1")
	assertCode(t, err, appErrors.ErrValidation.Code)
}

func TestCourseUpdateKeepsOwnTitle(t *testing.T) {
	_, _, svc := courseFixture()

	course, err := svc.Update(context.Background(), "course-1", CourseRequest{Title: "Primary Math", Description: "updated", TargetLevel: "PRIMARY"})
	require.NoError(t, err)
	assert.Equal(t, "updated", course.Description)
}

func TestCourseDeleteBlockedBySections(t *testing.T) {
	repo, _, svc := courseFixture()
	repo.sectionCount = 3

	err := svc.Delete(context.Background(), "course-1")
	assertCode(t, err, appErrors.ErrConflict.Code)
	assert.Contains(t, repo.courses, "course-1")
}

func TestCourseDeleteOK(t *testing.T) {
	repo, store, svc := courseFixture()

	require.NoError(t, svc.Delete(context.Background(), "course-1"))
	assert.NotContains(t, repo.courses, "course-1")
	assert.Contains(t, store.invalidated, "catalog:courses*")
}
