package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/uni-enrollment-api/internal/handler"
	"github.com/noah-isme/uni-enrollment-api/internal/models"
	"github.com/noah-isme/uni-enrollment-api/internal/repository"
	"github.com/noah-isme/uni-enrollment-api/internal/service"
	"github.com/noah-isme/uni-enrollment-api/pkg/config"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *u
	return &clone, nil
}

func (m *memUsers) Create(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repository.ErrDuplicate
		}
	}
	user.ID = uuid.NewString()
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *memUsers) Exists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.users[id]
	return ok, nil
}

type memCourses struct {
	mu      sync.Mutex
	courses map[string]models.Course
}

func (m *memCourses) List(context.Context, models.CourseFilter) ([]models.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Course{}
	for _, c := range m.courses {
		out = append(out, c)
	}
	return out, nil
}

func (m *memCourses) FindByID(_ context.Context, id string) (*models.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (m *memCourses) Create(_ context.Context, course *models.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	course.ID = uuid.NewString()
	m.courses[course.ID] = *course
	return nil
}

func (m *memCourses) Update(_ context.Context, course *models.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[course.ID]; !ok {
		return sql.ErrNoRows
	}
	m.courses[course.ID] = *course
	return nil
}

func (m *memCourses) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.courses, id)
	return nil
}

func (m *memCourses) CountEnrollments(context.Context, string) (int, error) { return 0, nil }

type memEnrollments struct {
	mu      sync.Mutex
	items   map[string]models.Enrollment
	users   *memUsers
	courses *memCourses
}

func (m *memEnrollments) CreateWithinQuota(_ context.Context, e *models.Enrollment, quota int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	count, duplicate := 0, false
	for _, existing := range m.items {
		if existing.UserID == e.UserID {
			count++
			duplicate = duplicate || existing.CourseID == e.CourseID
		}
	}
	if count >= quota {
		return repository.ErrQuotaReached
	}
	if duplicate {
		return repository.ErrDuplicate
	}
	now := time.Now().UTC()
	e.ID, e.Status, e.CreatedAt, e.UpdatedAt = uuid.NewString(), models.EnrollmentStatusPending, now, now
	m.items[e.ID] = *e
	return nil
}

func (m *memEnrollments) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	m.mu.Lock()
	e, ok := m.items[id]
	m.mu.Unlock()
	if !ok {
		return nil, sql.ErrNoRows
	}
	if u, err := m.users.FindByID(ctx, e.UserID); err == nil {
		info := u.Info()
		e.User = &info
	}
	if c, err := m.courses.FindByID(ctx, e.CourseID); err == nil {
		e.Course = c
	}
	return &e, nil
}

func (m *memEnrollments) List(context.Context, models.EnrollmentFilter) ([]models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Enrollment{}
	for _, e := range m.items {
		out = append(out, e)
	}
	return out, nil
}

func (m *memEnrollments) ListByUser(_ context.Context, userID string) ([]models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Enrollment{}
	for _, e := range m.items {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEnrollments) UpdateStatus(_ context.Context, id string, from, to models.EnrollmentStatus) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[id]
	if !ok || e.Status != from {
		return time.Time{}, repository.ErrStatusChanged
	}
	e.Status, e.UpdatedAt = to, time.Now().UTC()
	m.items[id] = e
	return e.UpdatedAt, nil
}

type memNotifications struct{}

func (memNotifications) ListByUser(context.Context, string, models.NotificationFilter) ([]models.Notification, int, error) {
	return []models.Notification{}, 0, nil
}

func (memNotifications) MarkRead(context.Context, string, string, time.Time) error { return sql.ErrNoRows }

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.EnrollmentStatusEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e models.EnrollmentStatusEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type testApp struct {
	router    *gin.Engine
	users     *memUsers
	publisher *recordingPublisher
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := &memUsers{users: map[string]*models.User{}}
	courses := &memCourses{courses: map[string]models.Course{}}
	enrollments := &memEnrollments{items: map[string]models.Enrollment{}, users: users, courses: courses}
	publisher := &recordingPublisher{}
	metrics := service.NewMetricsService()
	logr := zap.NewNop()

	hash, err := bcrypt.GenerateFromPassword([]byte("admin-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	adminID := uuid.NewString()
	users.users[adminID] = &models.User{ID: adminID, Name: "Registrar", Email: "registrar@example.edu", PasswordHash: string(hash), Role: models.RoleAdmin}

	authSvc := service.NewAuthService(users, nil, nil, logr, service.AuthConfig{
		AccessTokenSecret: "test-secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "uni-enrollment-api",
		BcryptCost:        bcrypt.MinCost,
	})
	courseSvc := service.NewCourseService(courses, nil, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollments, courses, users, publisher, metrics, nil, logr, service.EnrollmentPolicy{MaxPerStudent: 3, AllowDecisionReversal: true})
	exportSvc := service.NewExportService(enrollments, nil, nil, logr)
	notificationSvc := service.NewNotificationService(memNotifications{}, logr)

	cfg := &config.Config{Env: config.EnvDevelopment}
	router := NewRouter(cfg, logr, metrics, Handlers{
		Auth:          handler.NewAuthHandler(authSvc),
		Course:        handler.NewCourseHandler(courseSvc),
		Enrollment:    handler.NewEnrollmentHandler(enrollmentSvc, exportSvc),
		Notification:  handler.NewNotificationHandler(notificationSvc),
		Metrics:       handler.NewMetricsHandler(metrics, nil),
		Authenticator: authSvc,
	})
	return &testApp{router: router, users: users, publisher: publisher}
}

type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (a *testApp) call(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

func (a *testApp) token(t *testing.T, env envelope) (string, models.UserInfo) {
	t.Helper()
	var auth models.AuthResponse
	require.NoError(t, json.Unmarshal(env.Data, &auth))
	require.NotEmpty(t, auth.Token)
	return auth.Token, auth.User
}

func TestUnauthenticatedEnrollIsRejected(t *testing.T) {
	app := newTestApp(t)
	code, _ := app.call(t, http.MethodPost, "/enrollments", "", map[string]string{"course_id": uuid.NewString()})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRegisterIgnoresRequestedRole(t *testing.T) {
	app := newTestApp(t)
	code, env := app.call(t, http.MethodPost, "/register", "", map[string]string{
		"name":                  "Mallory",
		"email":                 "mallory@example.edu",
		"password":              "secret1",
		"password_confirmation": "secret1",
		"role":                  "admin",
	})
	require.Equal(t, http.StatusCreated, code)

	token, user := app.token(t, env)
	assert.Equal(t, models.RoleStudent, user.Role)

	code, _ = app.call(t, http.MethodPost, "/courses", token, map[string]string{"title": "T", "description": "D", "schedule": "S"})
	assert.Equal(t, http.StatusForbidden, code)
}

func TestRegisterValidation(t *testing.T) {
	app := newTestApp(t)
	code, _ := app.call(t, http.MethodPost, "/register", "", map[string]string{
		"name": "X", "email": "not-an-email", "password": "123", "password_confirmation": "456",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestEnrollmentLifecycleOverHTTP(t *testing.T) {
	app := newTestApp(t)

	code, env := app.call(t, http.MethodPost, "/login", "", map[string]string{"email": "registrar@example.edu", "password": "admin-pass"})
	require.Equal(t, http.StatusOK, code)
	adminToken, _ := app.token(t, env)

	code, env = app.call(t, http.MethodPost, "/register", "", map[string]string{
		"name": "Siti", "email": "siti@example.edu", "password": "secret1", "password_confirmation": "secret1",
	})
	require.Equal(t, http.StatusCreated, code)
	studentToken, student := app.token(t, env)

	var courseIDs []string
	for _, title := range []string{"Algorithms", "Databases", "Networks", "Compilers"} {
		code, env = app.call(t, http.MethodPost, "/courses", adminToken, map[string]string{"title": title, "description": title, "schedule": "Mon 08:00"})
		require.Equal(t, http.StatusCreated, code)
		var course models.Course
		require.NoError(t, json.Unmarshal(env.Data, &course))
		courseIDs = append(courseIDs, course.ID)
	}

	code, _ = app.call(t, http.MethodPost, "/enrollments", adminToken, map[string]string{"course_id": courseIDs[0]})
	assert.Equal(t, http.StatusForbidden, code)

	var first models.Enrollment
	for i, id := range courseIDs[:3] {
		code, env = app.call(t, http.MethodPost, "/enrollments", studentToken, map[string]string{"course_id": id})
		require.Equal(t, http.StatusCreated, code)
		if i == 0 {
			require.NoError(t, json.Unmarshal(env.Data, &first))
		}
	}

	code, env = app.call(t, http.MethodPost, "/enrollments", studentToken, map[string]string{"course_id": courseIDs[3]})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Max 3 courses allowed", env.Message)

	code, _ = app.call(t, http.MethodPost, "/enrollments/"+first.ID+"/approve", studentToken, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = app.call(t, http.MethodPost, "/enrollments/"+first.ID+"/approve", adminToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Enrollment approved successfully and student notified.", env.Message)

	code, env = app.call(t, http.MethodPost, "/enrollments/"+first.ID+"/approve", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Already approved", env.Message)

	require.Len(t, app.publisher.events, 1)
	assert.Equal(t, student.ID, app.publisher.events[0].UserID)
	assert.Equal(t, "Algorithms", app.publisher.events[0].CourseTitle)

	code, env = app.call(t, http.MethodGet, "/my-enrollments", studentToken, nil)
	require.Equal(t, http.StatusOK, code)
	var mine []models.Enrollment
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	assert.Len(t, mine, 3)
}

func TestListByUserWithoutEnrollments(t *testing.T) {
	app := newTestApp(t)
	code, env := app.call(t, http.MethodPost, "/login", "", map[string]string{"email": "registrar@example.edu", "password": "admin-pass"})
	require.Equal(t, http.StatusOK, code)
	adminToken, admin := app.token(t, env)

	code, env = app.call(t, http.MethodGet, "/users/"+admin.ID+"/enrollments", adminToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "No enrollments found for this user.", env.Message)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestHealthIsPublic(t *testing.T) {
	app := newTestApp(t)
	code, _ := app.call(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestMalformedIDsOverHTTP(t *testing.T) {
	app := newTestApp(t)
	code, env := app.call(t, http.MethodPost, "/login", "", map[string]string{"email": "registrar@example.edu", "password": "admin-pass"})
	require.Equal(t, http.StatusOK, code)
	adminToken, _ := app.token(t, env)

	course := map[string]string{"title": "Algorithms", "description": "Sorting", "schedule": "Mon 08:00"}
	code, _ = app.call(t, http.MethodGet, "/courses/abc", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = app.call(t, http.MethodPut, "/courses/abc", adminToken, course)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = app.call(t, http.MethodDelete, "/courses/abc", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = app.call(t, http.MethodGet, "/enrollments?course_id=abc", adminToken, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	code, _ = app.call(t, http.MethodGet, "/enrollments/export?course_id=abc", adminToken, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}
