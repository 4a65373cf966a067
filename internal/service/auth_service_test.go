package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/config"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/dto"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/model"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeUserRepo struct {
	users map[uuid.UUID]*model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*model.User)}
}

func (r *fakeUserRepo) Create(_ context.Context, u *model.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	r.users[u.ID] = u
	return nil
}

func (r *fakeUserRepo) FindByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	return u, nil
}

func (r *fakeUserRepo) FindByUsername(_ context.Context, username string) (*model.User, error) {
	for _, u := range r.users {
		if u.Username == username && u.Active {
			return u, nil
		}
	}
	return nil, errors.New("record not found")
}

func (r *fakeUserRepo) List(_ context.Context, includeInactive bool) ([]model.User, error) {
	var out []model.User
	for _, u := range r.users {
		if !includeInactive && !u.Active {
			continue
		}
		out = append(out, *u)
	}
	return out, nil
}

func (r *fakeUserRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	u, ok := r.users[id]
	if !ok {
		return errors.New("record not found")
	}
	u.Active = active
	return nil
}

var _ repository.UserRepository = (*fakeUserRepo)(nil)

func newAuthFixture() (*fakeUserRepo, AuthService) {
	repo := newFakeUserRepo()
	cfg := &config.Config{
		JWTSecret:          "test-secret-do-not-use",
		JWTExpirationHours: 1,
		JWTRefreshHours:    24,
	}
	return repo, NewAuthService(repo, cfg)
}

func seedUser(repo *fakeUserRepo, username, password, role string) *model.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	u := &model.User{
		ID:           uuid.New(),
		Username:     username,
		Name:         "Test User",
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	}
	repo.users[u.ID] = u
	return u
}

func TestLoginIssuesTokenPair(t *testing.T) {
	repo, svc := newAuthFixture()
	seedUser(repo, "cashier1", "secret-pass", "cashier")

	resp, err := svc.Login(context.Background(), dto.LoginRequest{
		Username: "cashier1", Password: "secret-pass",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, 3600, resp.ExpiresIn)
	assert.Equal(t, "cashier1", resp.User.Username)
	assert.Equal(t, "cashier", resp.User.Role)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	repo, svc := newAuthFixture()
	u := seedUser(repo, "cashier1", "secret-pass", "cashier")
	ctx := context.Background()

	_, err := svc.Login(ctx, dto.LoginRequest{Username: "cashier1", Password: "wrong"})
	assert.EqualError(t, err, "invalid credentials")

	_, err = svc.Login(ctx, dto.LoginRequest{Username: "nobody", Password: "secret-pass"})
	assert.EqualError(t, err, "invalid credentials")

	// Deactivated accounts cannot log in.
	u.Active = false
	_, err = svc.Login(ctx, dto.LoginRequest{Username: "cashier1", Password: "secret-pass"})
	assert.EqualError(t, err, "invalid credentials")
}

func TestRefreshRotatesTokens(t *testing.T) {
	repo, svc := newAuthFixture()
	seedUser(repo, "manager1", "secret-pass", "manager")
	ctx := context.Background()

	login, err := svc.Login(ctx, dto.LoginRequest{Username: "manager1", Password: "secret-pass"})
	require.NoError(t, err)

	refreshed, err := svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.Equal(t, "manager1", refreshed.User.Username)
}

func TestRefreshRejectsGarbageAndDeactivatedUsers(t *testing.T) {
	repo, svc := newAuthFixture()
	u := seedUser(repo, "manager1", "secret-pass", "manager")
	ctx := context.Background()

	_, err := svc.Refresh(ctx, "not-a-token")
	assert.EqualError(t, err, "refresh token invalid or expired")

	login, err := svc.Login(ctx, dto.LoginRequest{Username: "manager1", Password: "secret-pass"})
	require.NoError(t, err)

	// A token issued before deactivation must not refresh after it.
	u.Active = false
	_, err = svc.Refresh(ctx, login.RefreshToken)
	assert.EqualError(t, err, "user not found or inactive")
}

func TestCreateUserHashesPassword(t *testing.T) {
	repo, svc := newAuthFixture()

	resp, err := svc.CreateUser(context.Background(), dto.CreateUserRequest{
		Username: "newadmin", Name: "New Admin", Password: "long-enough-pass", Role: "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, "admin", resp.Role)

	stored := repo.users[uuid.MustParse(resp.ID)]
	require.NotNil(t, stored)
	assert.NotEqual(t, "long-enough-pass", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("long-enough-pass")))
}

func TestDeactivateUserExcludedFromDefaultList(t *testing.T) {
	repo, svc := newAuthFixture()
	u := seedUser(repo, "cashier1", "secret-pass", "cashier")
	seedUser(repo, "cashier2", "secret-pass", "cashier")
	ctx := context.Background()

	require.NoError(t, svc.DeactivateUser(ctx, u.ID))

	active, err := svc.ListUsers(ctx, false)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	all, err := svc.ListUsers(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
