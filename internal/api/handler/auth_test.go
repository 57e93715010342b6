package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/versewise/versewise-server/config"
	"github.com/versewise/versewise-server/internal/model/dto"
	"github.com/versewise/versewise-server/internal/pkg/oauth"
	"github.com/versewise/versewise-server/internal/pkg/queue"
	"github.com/versewise/versewise-server/internal/pkg/response"
	"github.com/versewise/versewise-server/internal/repository"
	"github.com/versewise/versewise-server/internal/service"
	"github.com/versewise/versewise-server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type authHandlerEnv struct {
	handler *AuthHandler
	repo    *repository.UserRepository
	db      *gorm.DB
	cfg     *config.Config
}

func setupAuthHandler(t *testing.T) (*authHandlerEnv, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	redisClient, redisCleanup := testutil.SetupTestRedis(t)

	userRepo := repository.NewUserRepository(db)
	stateStore := oauth.NewStateStore(redisClient)
	notifyQueue := queue.NewQueue(redisClient, "test_notifications")

	cfg := &config.Config{
		Server: config.ServerConfig{
			Mode:        "release",
			FrontendURL: "http://localhost:3000",
		},
		JWT: config.JWTConfig{
			Secret:      "test-secret-key",
			ExpireHours: 24,
		},
		OAuth: config.OAuthConfig{
			Google: config.GoogleOAuthConfig{
				ClientID:     "test-client-id",
				ClientSecret: "test-client-secret",
				RedirectURI:  "http://localhost:8080/api/v1/auth/google/callback",
			},
		},
	}

	authService := service.NewAuthService(userRepo, stateStore, notifyQueue, cfg)
	handler := NewAuthHandler(authService, cfg)

	env := &authHandlerEnv{
		handler: handler,
		repo:    userRepo,
		db:      db,
		cfg:     cfg,
	}

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
		redisCleanup()
	}

	return env, cleanup
}

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func dataMap(t *testing.T, resp response.Response) map[string]interface{} {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "expected object data, got %T", resp.Data)
	return data
}

func TestAuthHandler_Register_Success(t *testing.T) {
	env, cleanup := setupAuthHandler(t)
	defer cleanup()

	router := gin.New()
	router.POST("/register", env.handler.Register)

	w := performRequest(router, "POST", "/register", dto.RegisterRequest{
		Name:     "Test User",
		Email:    "test@example.com",
		Password: "password123",
	})
	resp := parseResponse(t, w)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeSuccess, resp.Code)
	assert.NotZero(t, dataMap(t, resp)["user_id"])
}

func TestAuthHandler_Register_DuplicateEmail(t *testing.T) {
	env, cleanup := setupAuthHandler(t)
	defer cleanup()

	router := gin.New()
	router.POST("/register", env.handler.Register)

	req := dto.RegisterRequest{
		Name:     "First",
		Email:    "test@example.com",
		Password: "password123",
	}
	w := performRequest(router, "POST", "/register", req)
	assert.Equal(t, http.StatusOK, w.Code)

	req.Name = "Second"
	w = performRequest(router, "POST", "/register", req)
	resp := parseResponse(t, w)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeDuplicateAction, resp.Code)
}

func TestAuthHandler_Register_InvalidRequest(t *testing.T) {
	env, cleanup := setupAuthHandler(t)
	defer cleanup()

	router := gin.New()
	router.POST("/register", env.handler.Register)

	// Missing name and password, invalid email.
	w := performRequest(router, "POST", "/register", map[string]string{
		"email": "invalid-email",
	})
	resp := parseResponse(t, w)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestAuthHandler_Register_PasswordTooShort(t *testing.T) {
	env, cleanup := setupAuthHandler(t)
	defer cleanup()

	router := gin.New()
	router.POST("/register", env.handler.Register)

	w := performRequest(router, "POST", "/register", dto.RegisterRequest{
		Name:     "Short",
		Email:    "short@example.com",
		Password: "short",
	})
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestAuthHandler_RegisterVerifyLogin_FullFlow(t *testing.T) {
	env, cleanup := setupAuthHandler(t)
	defer cleanup()

	router := gin.New()
	router.POST("/register", env.handler.Register)
	router.POST("/verify-email", env.handler.VerifyEmail)
	router.POST("/login", env.handler.Login)

	w := performRequest(router, "POST", "/register", dto.RegisterRequest{
		Name:     "Flow User",
		Email:    "flow@example.com",
		Password: "password123",
	})
	require.Equal(t, response.CodeSuccess, parseResponse(t, w).Code)

	// Login before verification is refused.
	w = performRequest(router, "POST", "/login", dto.LoginRequest{
		Email:    "flow@example.com",
		Password: "password123",
	})
	assert.Equal(t, response.CodeAuthFailed, parseResponse(t, w).Code)

	// Pull the mailed code straight from storage.
	user, err := env.repo.GetByEmail("flow@example.com")
	require.NoError(t, err)
	require.NotNil(t, user.VerificationCode)

	w = performRequest(router, "POST", "/verify-email", dto.VerifyEmailRequest{
		Code: *user.VerificationCode,
	})
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.NotEmpty(t, dataMap(t, resp)["token"])

	// Login succeeds after verification.
	w = performRequest(router, "POST", "/login", dto.LoginRequest{
		Email:    "flow@example.com",
		Password: "password123",
	})
	resp = parseResponse(t, w)
	assert.Equal(t, response.CodeSuccess, resp.Code)
	assert.NotEmpty(t, dataMap(t, resp)["token"])
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	env, cleanup := setupAuthHandler(t)
	defer cleanup()

	router := gin.New()
	router.POST("/login", env.handler.Login)

	w := performRequest(router, "POST", "/login", dto.LoginRequest{
		Email:    "nonexistent@example.com",
		Password: "wrongpassword",
	})
	resp := parseResponse(t, w)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeAuthFailed, resp.Code)
}

func TestAuthHandler_Login_InvalidRequest(t *testing.T) {
	env, cleanup := setupAuthHandler(t)
	defer cleanup()

	router := gin.New()
	router.POST("/login", env.handler.Login)

	w := performRequest(router, "POST", "/login", map[string]string{})
	resp := parseResponse(t, w)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestAuthHandler_VerifyEmail_InvalidCode(t *testing.T) {
	env, cleanup := setupAuthHandler(t)
	defer cleanup()

	router := gin.New()
	router.POST("/verify-email", env.handler.VerifyEmail)

	w := performRequest(router, "POST", "/verify-email", dto.VerifyEmailRequest{
		Code: "invalid-code",
	})
	resp := parseResponse(t, w)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestAuthHandler_GoogleAuth_Redirect(t *testing.T) {
	env, cleanup := setupAuthHandler(t)
	defer cleanup()

	router := gin.New()
	router.GET("/google", env.handler.GoogleAuth)

	req := httptest.NewRequest("GET", "/google?redirect_uri=http://localhost:3000/done", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	location := w.Header().Get("Location")
	assert.Contains(t, location, "accounts.google.com")
	assert.Contains(t, location, "state=")
}

func TestAuthHandler_GoogleCallback_MissingCode(t *testing.T) {
	env, cleanup := setupAuthHandler(t)
	defer cleanup()

	router := gin.New()
	router.GET("/callback", env.handler.GoogleCallback)

	req := httptest.NewRequest("GET", "/callback", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := parseResponse(t, w)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestAuthHandler_GoogleCallback_ForgedState(t *testing.T) {
	env, cleanup := setupAuthHandler(t)
	defer cleanup()

	router := gin.New()
	router.GET("/callback", env.handler.GoogleCallback)

	req := httptest.NewRequest("GET", "/callback?code=some-code&state=forged", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := parseResponse(t, w)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeParamError, resp.Code)
}
