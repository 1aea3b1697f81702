package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/uni-enrollment-api/internal/models"
	"github.com/noah-isme/uni-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/uni-enrollment-api/pkg/errors"
)

type mockAuthRepo struct {
	users     map[string]*models.User
	createErr error
	findErr   error
}

func newMockAuthRepo(users ...*models.User) *mockAuthRepo {
	repo := &mockAuthRepo{users: map[string]*models.User{}}
	for _, u := range users {
		repo.users[u.Email] = u
	}
	return repo
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	if u, ok := m.users[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.users[user.Email]; ok {
		return repository.ErrDuplicate
	}
	user.ID = "u-new"
	m.users[user.Email] = user
	return nil
}

type mockDenylist struct {
	enabled  bool
	revoked  map[string]time.Time
	checkErr error
}

func (m *mockDenylist) Enabled() bool { return m.enabled }

func (m *mockDenylist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if m.revoked == nil {
		m.revoked = map[string]time.Time{}
	}
	m.revoked[jti] = expiresAt
	return nil
}

func (m *mockDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if m.checkErr != nil {
		return false, m.checkErr
	}
	_, ok := m.revoked[jti]
	return ok, nil
}

func newAuthService(repo *mockAuthRepo, denylist *mockDenylist) *AuthService {
	return NewAuthService(repo, denylist, nil, zap.NewNop(), AuthConfig{
		AccessTokenSecret: "secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "uni-enrollment-api",
		BcryptCost:        bcrypt.MinCost,
	})
}

func hashed(t *testing.T, password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestRegisterAlwaysCreatesStudent(t *testing.T) {
	repo := newMockAuthRepo()
	svc := newAuthService(repo, &mockDenylist{})

	resp, err := svc.Register(context.Background(), models.RegisterRequest{
		Name:                 "Ana",
		Email:                "ana@uni.test",
		Password:             "secret1",
		PasswordConfirmation: "secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, resp.User.Role)
	assert.Equal(t, models.RoleStudent, repo.users["ana@uni.test"].Role)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.users["ana@uni.test"].PasswordHash), []byte("secret1")))
}

func TestRegisterValidation(t *testing.T) {
	svc := newAuthService(newMockAuthRepo(), &mockDenylist{})

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Name:                 "Ana",
		Email:                "not-an-email",
		Password:             "123",
		PasswordConfirmation: "456",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Details, "email")
	assert.Contains(t, appErr.Details, "password")
	assert.Contains(t, appErr.Details, "password_confirmation")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	existing := &models.User{ID: "u-1", Email: "ana@uni.test", Role: models.RoleStudent}
	svc := newAuthService(newMockAuthRepo(existing), &mockDenylist{})

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Name: "Ana", Email: "ana@uni.test", Password: "secret1", PasswordConfirmation: "secret1",
	})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, []string{"The email has already been taken."}, appErr.Details["email"])
}

func TestLogin(t *testing.T) {
	user := &models.User{ID: "u-1", Name: "Admin", Email: "admin@uni.test", PasswordHash: hashed(t, "password"), Role: models.RoleAdmin}
	svc := newAuthService(newMockAuthRepo(user), &mockDenylist{})

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@uni.test", Password: "password"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(context.Background(), resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestLoginInvalidCredentials(t *testing.T) {
	user := &models.User{ID: "u-1", Email: "admin@uni.test", PasswordHash: hashed(t, "password"), Role: models.RoleAdmin}
	svc := newAuthService(newMockAuthRepo(user), &mockDenylist{})

	for _, req := range []models.LoginRequest{
		{Email: "admin@uni.test", Password: "wrong"},
		{Email: "nobody@uni.test", Password: "password"},
	} {
		_, err := svc.Login(context.Background(), req)
		appErr := appErrors.FromError(err)
		assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
		assert.Equal(t, 401, appErr.Status)
		assert.Equal(t, "Invalid credentials", appErr.Message)
	}
}

func TestLoginRejectsCorruptedRole(t *testing.T) {
	user := &models.User{ID: "u-1", Email: "odd@uni.test", PasswordHash: hashed(t, "password"), Role: models.Role("teacher")}
	svc := newAuthService(newMockAuthRepo(user), &mockDenylist{})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "odd@uni.test", Password: "password"})
	appErr := appErrors.FromError(err)
	assert.Equal(t, 403, appErr.Status)
	assert.Equal(t, "User role is invalid", appErr.Message)
}

func TestLoginRepositoryFailureIsInternal(t *testing.T) {
	repo := newMockAuthRepo()
	repo.findErr = errors.New("connection reset")
	svc := newAuthService(repo, &mockDenylist{})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "a@uni.test", Password: "x"})
	assert.Equal(t, 500, appErrors.FromError(err).Status)
}

func TestLogoutRevokesToken(t *testing.T) {
	user := &models.User{ID: "u-1", Email: "ana@uni.test", PasswordHash: hashed(t, "password"), Role: models.RoleStudent}
	denylist := &mockDenylist{enabled: true}
	svc := newAuthService(newMockAuthRepo(user), denylist)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@uni.test", Password: "password"})
	require.NoError(t, err)
	claims, err := svc.ValidateToken(context.Background(), resp.Token)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), claims))
	assert.Contains(t, denylist.revoked, claims.ID)

	_, err = svc.ValidateToken(context.Background(), resp.Token)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenToleratesDenylistOutage(t *testing.T) {
	user := &models.User{ID: "u-1", Email: "ana@uni.test", PasswordHash: hashed(t, "password"), Role: models.RoleStudent}
	denylist := &mockDenylist{enabled: true, checkErr: errors.New("redis down")}
	svc := newAuthService(newMockAuthRepo(user), denylist)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@uni.test", Password: "password"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(context.Background(), resp.Token)
	assert.NoError(t, err)
}

func TestValidateTokenRejectsForeignSignatures(t *testing.T) {
	svc := newAuthService(newMockAuthRepo(), &mockDenylist{})

	claims := &models.JWTClaims{UserID: "u-1", Role: models.RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "uni-enrollment-api",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(context.Background(), forged)
	assert.Equal(t, 401, appErrors.FromError(err).Status)

	_, err = svc.ValidateToken(context.Background(), "garbage")
	assert.Equal(t, 401, appErrors.FromError(err).Status)
}

func TestMe(t *testing.T) {
	user := &models.User{ID: "u-1", Name: "Ana", Email: "ana@uni.test", Role: models.RoleStudent}
	svc := newAuthService(newMockAuthRepo(user), &mockDenylist{})

	info, err := svc.Me(context.Background(), models.Actor{ID: "u-1", Role: models.RoleStudent})
	require.NoError(t, err)
	assert.Equal(t, "Ana", info.Name)

	_, err = svc.Me(context.Background(), models.Actor{ID: "gone"})
	assert.Equal(t, 401, appErrors.FromError(err).Status)
}
