package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	appLogger "github.com/FACorreiaa/go-account-service/app/logger"
	"github.com/FACorreiaa/go-account-service/config"
	"github.com/FACorreiaa/go-account-service/internal/api/auth"
	"github.com/FACorreiaa/go-account-service/internal/api/media"
	"github.com/FACorreiaa/go-account-service/internal/api/user"
	"github.com/FACorreiaa/go-account-service/internal/router"
	"github.com/FACorreiaa/go-account-service/internal/types"
)

// memStore is an in-memory credential store with the same uniqueness and
// not-found behavior as the Postgres one.
type memStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*types.User
}

var _ user.UserRepo = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{users: make(map[uuid.UUID]*types.User)}
}

func (s *memStore) get(id uuid.UUID) (*types.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, types.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) FindByUsernameOrEmail(_ context.Context, username, email string) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if (username != "" && u.Username == username) || (email != "" && u.Email == email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("find user: %w", types.ErrNotFound)
}

func (s *memStore) FindByID(_ context.Context, id uuid.UUID) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id)
}

func (s *memStore) Create(_ context.Context, p types.CreateUserParams) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == p.Username || u.Email == p.Email {
			return nil, fmt.Errorf("create user: %w", types.ErrConflict)
		}
	}
	now := time.Now().UTC()
	u := &types.User{
		ID:            uuid.New(),
		Username:      p.Username,
		Email:         p.Email,
		Fullname:      p.Fullname,
		PasswordHash:  p.PasswordHash,
		AvatarURL:     p.AvatarURL,
		CoverImageURL: p.CoverImageURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.users[u.ID] = u
	return s.get(u.ID)
}

func (s *memStore) update(id uuid.UUID, fn func(u *types.User)) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, types.ErrNotFound)
	}
	fn(u)
	u.UpdatedAt = time.Now().UTC()
	return s.get(id)
}

func (s *memStore) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	_, err := s.update(id, func(u *types.User) { u.PasswordHash = hash })
	return err
}

func (s *memStore) SetRefreshToken(_ context.Context, id uuid.UUID, token *string) error {
	_, err := s.update(id, func(u *types.User) { u.RefreshToken = token })
	return err
}

func (s *memStore) UpdateAccountDetails(_ context.Context, id uuid.UUID, fullname, email *string) (*types.User, error) {
	return s.update(id, func(u *types.User) {
		if fullname != nil {
			u.Fullname = *fullname
		}
		if email != nil {
			u.Email = *email
		}
	})
}

func (s *memStore) UpdateAvatar(_ context.Context, id uuid.UUID, url string) (*types.User, error) {
	return s.update(id, func(u *types.User) { u.AvatarURL = url })
}

func (s *memStore) UpdateCoverImage(_ context.Context, id uuid.UUID, url string) (*types.User, error) {
	return s.update(id, func(u *types.User) { u.CoverImageURL = url })
}

func (s *memStore) storedRefreshToken(id uuid.UUID) *string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id].RefreshToken
}

// localUploader "uploads" by deleting the staged file, as the S3 uploader does.
type localUploader struct{}

func (localUploader) Upload(_ context.Context, localPath string) (*media.UploadResult, error) {
	if localPath == "" {
		return nil, media.ErrNoFile
	}
	defer os.Remove(localPath)
	key := "media/" + uuid.NewString() + ".png"
	return &media.UploadResult{URL: "http://cdn.test/" + key, Key: key}, nil
}

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
}

// E2ETestSuite drives the account workflows through the real router.
type E2ETestSuite struct {
	suite.Suite
	server *httptest.Server
	client *http.Client
	store  *memStore
	jwtCfg config.JWTConfig
}

func (suite *E2ETestSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	suite.jwtCfg = config.JWTConfig{
		AccessTokenSecret:  "e2e-access",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenSecret: "e2e-refresh",
		RefreshTokenTTL:    24 * time.Hour,
		Issuer:             "go-account-service",
	}
	suite.store = newMemStore()

	stager, err := media.NewStager(suite.T().TempDir())
	suite.Require().NoError(err)

	tokens := auth.NewTokenManager(suite.jwtCfg)
	hasher := auth.NewBcryptHasher(4)
	authService := auth.NewAuthService(suite.store, tokens, hasher, logger)
	userService := user.NewUserService(suite.store, hasher, localUploader{}, time.Minute, logger)

	api := router.SetupRouter(&router.Config{
		AuthHandler:            auth.NewAuthHandlerImpl(authService, auth.NewCookieOptions(config.CookieConfig{}, suite.jwtCfg), logger),
		UserHandler:            user.NewHandlerImpl(userService, stager, 1<<20, logger),
		AuthenticateMiddleware: auth.Authenticate(logger, tokens),
	})

	mux := chi.NewMux()
	mux.Use(middleware.RequestID)
	mux.Use(appLogger.StructuredLogger(logger))
	mux.Use(middleware.Recoverer)
	mux.Mount("/", api)

	suite.server = httptest.NewServer(mux)
	suite.client = &http.Client{Timeout: 10 * time.Second}
}

func (suite *E2ETestSuite) TearDownTest() {
	if suite.server != nil {
		suite.server.Close()
	}
}

func (suite *E2ETestSuite) url(path string) string {
	return suite.server.URL + "/api/v1/users" + path
}

func (suite *E2ETestSuite) do(req *http.Request) (*http.Response, envelope) {
	resp, err := suite.client.Do(req)
	suite.Require().NoError(err)
	defer resp.Body.Close()

	var env envelope
	suite.Require().NoError(json.NewDecoder(resp.Body).Decode(&env))
	suite.Equal(resp.StatusCode, env.StatusCode)
	return resp, env
}

func (suite *E2ETestSuite) postJSON(path, token string, body interface{}) (*http.Response, envelope) {
	b, err := json.Marshal(body)
	suite.Require().NoError(err)
	req, err := http.NewRequest(http.MethodPost, suite.url(path), bytes.NewReader(b))
	suite.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return suite.do(req)
}

func (suite *E2ETestSuite) register(username, email, password string) (*http.Response, envelope) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range map[string]string{
		"fullname": "Alice Liddell",
		"email":    email,
		"username": username,
		"password": password,
	} {
		suite.Require().NoError(mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("avatar", "avatar.png")
	suite.Require().NoError(err)
	_, err = fw.Write([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})
	suite.Require().NoError(err)
	suite.Require().NoError(mw.Close())

	req, err := http.NewRequest(http.MethodPost, suite.url("/register"), &body)
	suite.Require().NoError(err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return suite.do(req)
}

func (suite *E2ETestSuite) login(username, password string) (*http.Response, envelope, types.AuthSession) {
	resp, env := suite.postJSON("/login", "", map[string]string{"username": username, "password": password})
	var session types.AuthSession
	if env.Success {
		suite.Require().NoError(json.Unmarshal(env.Data, &session))
	}
	return resp, env, session
}

func (suite *E2ETestSuite) refresh(token string) (envelope, types.TokenPair) {
	_, env := suite.postJSON("/refresh-token", "", map[string]string{"refreshToken": token})
	var pair types.TokenPair
	if env.Success {
		suite.Require().NoError(json.Unmarshal(env.Data, &pair))
	}
	return env, pair
}

func (suite *E2ETestSuite) TestRegister() {
	resp, env := suite.register("alice", "a@x.com", "secret1")

	suite.Equal(http.StatusCreated, resp.StatusCode)
	suite.True(env.Success)
	suite.Equal("User registered successfully", env.Message)

	var data map[string]interface{}
	suite.Require().NoError(json.Unmarshal(env.Data, &data))
	suite.Equal("alice", data["username"])
	suite.NotEmpty(data["avatar"])
	for _, k := range []string{"password", "passwordHash", "refreshToken"} {
		suite.NotContains(data, k)
	}

	suite.Run("DuplicateConflicts", func() {
		resp, env := suite.register("ALICE", "other@x.com", "secret1")
		suite.Equal(http.StatusConflict, resp.StatusCode)
		suite.False(env.Success)
		suite.Equal("null", string(env.Data))
	})
}

func (suite *E2ETestSuite) TestLogin() {
	suite.register("alice", "a@x.com", "secret1")

	resp, env, session := suite.login("alice", "secret1")

	suite.Equal(http.StatusOK, resp.StatusCode)
	suite.NotEmpty(session.AccessToken)
	suite.NotEmpty(session.RefreshToken)
	suite.Equal("alice", session.User.Username)
	suite.NotContains(string(env.Data), "password")

	cookies := map[string]*http.Cookie{}
	for _, c := range resp.Cookies() {
		cookies[c.Name] = c
	}
	suite.Require().Contains(cookies, auth.AccessTokenCookie)
	suite.Require().Contains(cookies, auth.RefreshTokenCookie)
	suite.True(cookies[auth.AccessTokenCookie].HttpOnly)
	suite.Equal(session.RefreshToken, cookies[auth.RefreshTokenCookie].Value)
}

func (suite *E2ETestSuite) TestLoginWrongPassword() {
	suite.register("alice", "a@x.com", "secret1")

	resp, env, _ := suite.login("alice", "wrong")

	suite.Equal(http.StatusUnauthorized, resp.StatusCode)
	suite.False(env.Success)
	suite.Equal("Invalid user credentials", env.Message)

	suite.Run("UnknownUserLooksTheSame", func() {
		resp, other, _ := suite.login("nobody", "wrong")
		suite.Equal(http.StatusUnauthorized, resp.StatusCode)
		suite.Equal(env.Message, other.Message)
	})
}

func (suite *E2ETestSuite) TestRefreshReplayRejected() {
	suite.register("alice", "a@x.com", "secret1")
	_, _, session := suite.login("alice", "secret1")

	first, pair := suite.refresh(session.RefreshToken)
	suite.Require().True(first.Success)
	suite.NotEqual(session.RefreshToken, pair.RefreshToken)

	second, _ := suite.refresh(session.RefreshToken)
	suite.Equal(http.StatusUnauthorized, second.StatusCode)
	suite.False(second.Success)

	third, _ := suite.refresh(pair.RefreshToken)
	suite.True(third.Success)
}

func (suite *E2ETestSuite) TestLogoutRevokesRefresh() {
	suite.register("alice", "a@x.com", "secret1")
	_, _, session := suite.login("alice", "secret1")

	resp, env := suite.postJSON("/logout", session.AccessToken, nil)
	suite.Equal(http.StatusOK, resp.StatusCode)
	suite.Equal("User logged out", env.Message)
	suite.Nil(suite.store.storedRefreshToken(session.User.ID))

	after, _ := suite.refresh(session.RefreshToken)
	suite.Equal(http.StatusUnauthorized, after.StatusCode)
}

func (suite *E2ETestSuite) TestExpiredRefreshToken() {
	suite.register("alice", "a@x.com", "secret1")
	_, _, session := suite.login("alice", "secret1")

	cfg := suite.jwtCfg
	cfg.RefreshTokenTTL = -time.Minute
	expired, err := auth.NewTokenManager(cfg).IssueRefreshToken(session.User.ID)
	suite.Require().NoError(err)

	env, _ := suite.refresh(expired)
	suite.Equal(http.StatusUnauthorized, env.StatusCode)
	suite.Equal("Token has expired", env.Message)
}

func (suite *E2ETestSuite) TestProfileWorkflow() {
	suite.register("alice", "a@x.com", "secret1")
	_, _, session := suite.login("alice", "secret1")

	req, err := http.NewRequest(http.MethodGet, suite.url("/current-user"), nil)
	suite.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	resp, env := suite.do(req)
	suite.Equal(http.StatusOK, resp.StatusCode)
	suite.Equal("Current user fetched successfully", env.Message)

	req, err = http.NewRequest(http.MethodPatch, suite.url("/update-account"), strings.NewReader(`{"email":"Alice@Example.com"}`))
	suite.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	resp, env = suite.do(req)
	suite.Equal(http.StatusOK, resp.StatusCode)
	suite.Contains(string(env.Data), `"email":"alice@example.com"`)

	resp, env = suite.postJSON("/change-password", session.AccessToken,
		map[string]string{"oldPassword": "wrong", "newPassword": "secret2"})
	suite.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp, _ = suite.postJSON("/change-password", session.AccessToken,
		map[string]string{"oldPassword": "secret1", "newPassword": "secret2"})
	suite.Equal(http.StatusOK, resp.StatusCode)

	resp, _, _ = suite.login("alice", "secret2")
	suite.Equal(http.StatusOK, resp.StatusCode)
}

func (suite *E2ETestSuite) TestProtectedRoutesRequireToken() {
	req, err := http.NewRequest(http.MethodGet, suite.url("/current-user"), nil)
	suite.Require().NoError(err)

	resp, env := suite.do(req)

	suite.Equal(http.StatusUnauthorized, resp.StatusCode)
	suite.False(env.Success)
}

func TestE2E(t *testing.T) {
	suite.Run(t, new(E2ETestSuite))
}
