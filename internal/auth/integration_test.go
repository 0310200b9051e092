package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mrlokans/libmanage/internal/entities"
)

type testApp struct {
	router *gin.Engine
	svc    *Service
	db     *gorm.DB
}

func setupTestRouter(t *testing.T) *testApp {
	t.Helper()
	db := setupTestDB(t)
	cfg := testAuthConfig()

	svc := NewService(db, cfg)
	sm, err := NewSessionManager(db, cfg)
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}
	controller := NewAuthController(svc, sm, cfg)
	t.Cleanup(controller.Stop)

	router := gin.New()
	router.Use(sm.SessionLoadSave(), NewMiddleware(svc, sm).Handler())
	controller.RegisterRoutes(router.Group("/api/auth"))
	router.GET("/whoami", whoami)
	router.GET("/api/borrows", RequireAuth(), func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/api/admin/dashboard", RequireRole(entities.UserRoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	return &testApp{router: router, svc: svc, db: db}
}

func (a *testApp) do(method, path string, body any, cookie *http.Cookie, bearer string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func (a *testApp) createUser(t *testing.T, username string, role entities.UserRole) *entities.User {
	t.Helper()
	user, err := a.svc.CreateUser(context.Background(), username, username+"@example.com", testPassword, role)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func TestIntegration_LoginAndRoles(t *testing.T) {
	app := setupTestRouter(t)
	app.createUser(t, "reader", entities.UserRoleUser)

	if rr := app.do(http.MethodGet, "/api/borrows", nil, nil, ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("anonymous borrows: expected 401, got %d", rr.Code)
	}

	rr := app.do(http.MethodPost, "/api/auth/login", gin.H{"login": "reader", "password": "wrong-password-1"}, nil, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", rr.Code)
	}

	rr = app.do(http.MethodPost, "/api/auth/login", gin.H{"login": "reader", "password": testPassword}, nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if _, leaked := decodeBody(t, rr)["password_hash"]; leaked {
		t.Error("password hash must not be serialized")
	}
	cookie := sessionCookie(rr)
	if cookie == nil {
		t.Fatal("login should set the session cookie")
	}

	if rr := app.do(http.MethodGet, "/api/borrows", nil, cookie, ""); rr.Code != http.StatusOK {
		t.Errorf("signed-in borrows: expected 200, got %d", rr.Code)
	}
	if rr := app.do(http.MethodGet, "/api/admin/dashboard", nil, cookie, ""); rr.Code != http.StatusForbidden {
		t.Errorf("user on admin route: expected 403, got %d", rr.Code)
	}

	rr = app.do(http.MethodGet, "/api/auth/me", nil, cookie, "")
	if body := decodeBody(t, rr); body["username"] != "reader" {
		t.Errorf("me: unexpected body %v", body)
	}

	if rr := app.do(http.MethodPost, "/api/auth/logout", nil, cookie, ""); rr.Code != http.StatusNoContent {
		t.Errorf("logout: expected 204, got %d", rr.Code)
	}
	if rr := app.do(http.MethodGet, "/api/borrows", nil, cookie, ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("after logout: expected 401, got %d", rr.Code)
	}
}

func TestIntegration_Register(t *testing.T) {
	app := setupTestRouter(t)

	rr := app.do(http.MethodPost, "/api/auth/register", gin.H{
		"username": "newbie", "email": "newbie@example.com",
		"password": testPassword, "confirm_password": "something-else-1",
	}, nil, "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("mismatched confirmation: expected 400, got %d", rr.Code)
	}

	rr = app.do(http.MethodPost, "/api/auth/register", gin.H{
		"username": "newbie", "email": "newbie@example.com",
		"password": testPassword, "confirm_password": testPassword,
	}, nil, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if body := decodeBody(t, rr); body["role"] != string(entities.UserRoleUser) {
		t.Errorf("registered role = %v, want user", body["role"])
	}
	if sessionCookie(rr) == nil {
		t.Error("registration should sign the member in")
	}

	rr = app.do(http.MethodPost, "/api/auth/register", gin.H{
		"username": "newbie", "email": "other@example.com",
		"password": testPassword, "confirm_password": testPassword,
	}, nil, "")
	if rr.Code != http.StatusConflict {
		t.Errorf("duplicate: expected 409, got %d", rr.Code)
	}
}

func TestIntegration_DeactivatedSessionIsSignedOut(t *testing.T) {
	app := setupTestRouter(t)
	user := app.createUser(t, "reader", entities.UserRoleUser)

	rr := app.do(http.MethodPost, "/api/auth/login", gin.H{"login": "reader", "password": testPassword}, nil, "")
	cookie := sessionCookie(rr)
	if cookie == nil {
		t.Fatalf("login failed: %d %s", rr.Code, rr.Body.String())
	}

	app.db.Model(user).Update("is_active", false)

	rr = app.do(http.MethodGet, "/whoami", nil, cookie, "")
	if body := decodeBody(t, rr); body["auth_type"] != string(AuthTypeAnonymous) {
		t.Errorf("deactivated member should be anonymous, got %v", body)
	}
	if cleared := sessionCookie(rr); cleared == nil || cleared.MaxAge >= 0 {
		t.Error("the session cookie should be cleared")
	}

	rr = app.do(http.MethodPost, "/api/auth/login", gin.H{"login": "reader", "password": testPassword}, nil, "")
	if rr.Code != http.StatusForbidden {
		t.Errorf("deactivated login: expected 403, got %d", rr.Code)
	}
}

func TestIntegration_BearerToken(t *testing.T) {
	app := setupTestRouter(t)
	app.createUser(t, "admin", entities.UserRoleAdmin)

	rr := app.do(http.MethodPost, "/api/auth/token", gin.H{"login": "admin", "password": testPassword}, nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("token: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp tokenResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode token response: %v", err)
	}
	if resp.Token == "" || resp.TokenType != "Bearer" {
		t.Fatalf("unexpected token response: %+v", resp)
	}

	if rr := app.do(http.MethodGet, "/api/admin/dashboard", nil, nil, resp.Token); rr.Code != http.StatusOK {
		t.Errorf("bearer admin: expected 200, got %d", rr.Code)
	}
	if rr := app.do(http.MethodGet, "/api/admin/dashboard", nil, nil, "garbage"); rr.Code != http.StatusUnauthorized {
		t.Errorf("bad bearer: expected 401, got %d", rr.Code)
	}

	rr = app.do(http.MethodPost, "/api/auth/token", nil, nil, resp.Token)
	if rr.Code != http.StatusOK {
		t.Errorf("token refresh with bearer: expected 200, got %d", rr.Code)
	}
}

func TestIntegration_LoginThrottle(t *testing.T) {
	app := setupTestRouter(t)
	app.createUser(t, "reader", entities.UserRoleUser)

	for i := 0; i < 3; i++ {
		rr := app.do(http.MethodPost, "/api/auth/login", gin.H{"login": "reader", "password": "wrong-password-1"}, nil, "")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, rr.Code)
		}
	}

	rr := app.do(http.MethodPost, "/api/auth/login", gin.H{"login": "reader", "password": testPassword}, nil, "")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Retry-After should be set")
	}
}
