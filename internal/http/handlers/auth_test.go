package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/allwinromario/AirQ/internal/auth"
	"github.com/allwinromario/AirQ/internal/config"
	"github.com/allwinromario/AirQ/internal/domain/user"
	"github.com/allwinromario/AirQ/internal/http/handlers"
	"github.com/allwinromario/AirQ/internal/http/middlewares"
	"github.com/allwinromario/AirQ/internal/repo/postgres"
	"github.com/allwinromario/AirQ/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Make sure Gin does not spam the console during the test

func init() {
	gin.SetMode(gin.TestMode)
}

// Fake repository implementations of the handlers interfaces

type fakeUsersRepo struct {
	getByEmailFn func(ctx context.Context, email string) (user.User, error)
	getByIDFn    func(ctx context.Context, id string) (user.User, error)
	createFn     func(ctx context.Context, email, passwordHash, firstName, lastName, role string) (user.User, error)
}

func (f *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	if f.getByEmailFn != nil {
		return f.getByEmailFn(ctx, email)
	}

	return user.User{}, postgres.ErrUserNotFound
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}

	return user.User{}, postgres.ErrUserNotFound
}

func (f *fakeUsersRepo) Create(ctx context.Context, email, passwordHash, firstName, lastName, role string) (user.User, error) {
	if f.createFn != nil {
		return f.createFn(ctx, email, passwordHash, firstName, lastName, role)
	}

	now := time.Now().UTC()

	return user.User{
		ID:           uuid.NewString(),
		FirstName:    firstName,
		LastName:     lastName,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// fakeTx embeds the pgx.Tx interface; only Commit and Rollback are
// exercised by the handler.

type fakeTx struct {
	pgx.Tx
}

func (fakeTx) Commit(ctx context.Context) error   { return nil }
func (fakeTx) Rollback(ctx context.Context) error { return nil }

type fakeRefreshStore struct {
	rows map[string]postgres.RefreshTokenRow
}

func newFakeRefreshStore() *fakeRefreshStore {
	return &fakeRefreshStore{rows: map[string]postgres.RefreshTokenRow{}}
}

func (f *fakeRefreshStore) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return fakeTx{}, nil
}

func (f *fakeRefreshStore) Create(ctx context.Context, tx pgx.Tx, row postgres.RefreshTokenRow) error {
	f.rows[row.ID] = row
	return nil
}

func (f *fakeRefreshStore) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (postgres.RefreshTokenRow, error) {
	row, ok := f.rows[id]

	if !ok {
		return postgres.RefreshTokenRow{}, errors.New("not found")
	}

	return row, nil
}

func (f *fakeRefreshStore) Revoke(ctx context.Context, tx pgx.Tx, id string, replacedBy *string) error {
	row, ok := f.rows[id]

	if !ok {
		return errors.New("not found")
	}

	now := time.Now().UTC()
	row.RevokedAt = &now
	row.ReplacedBy = replacedBy
	f.rows[id] = row
	return nil
}

func (f *fakeRefreshStore) RevokeAllForUser(ctx context.Context, tx pgx.Tx, userID string) error {
	now := time.Now().UTC()

	for id, row := range f.rows {
		if row.UserID == userID && row.RevokedAt == nil {
			row.RevokedAt = &now
			f.rows[id] = row
		}
	}

	return nil
}

func testManager() *auth.Manager {
	return auth.NewManager("test-secret", time.Hour, 24*time.Hour)
}

func newAuthHandler(users *fakeUsersRepo, mgr *auth.Manager) *handlers.AuthHandler {
	return handlers.NewAuthHandler(users, users, mgr, newFakeRefreshStore(), config.Config{Env: "test"})
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		repoSetUp      func(*fakeUsersRepo)
		wantStatusCode int
	}{
		{
			name:           "success",
			body:           `{"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","password":"hunter2hunter2"}`,
			wantStatusCode: http.StatusCreated,
		},
		{
			name: "duplicate_email",
			body: `{"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","password":"hunter2hunter2"}`,
			repoSetUp: func(f *fakeUsersRepo) {
				f.createFn = func(ctx context.Context, email, hash, first, last, role string) (user.User, error) {
					return user.User{}, postgres.ErrEmailAlreadyUsed
				}
			},
			wantStatusCode: http.StatusConflict,
		},
		{
			name:           "short_password",
			body:           `{"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","password":"short"}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "bad_email",
			body:           `{"firstName":"Ada","lastName":"Lovelace","email":"not-an-email","password":"hunter2hunter2"}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "missing_names",
			body:           `{"email":"ada@example.com","password":"hunter2hunter2"}`,
			wantStatusCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			users := &fakeUsersRepo{}

			if tt.repoSetUp != nil {
				tt.repoSetUp(users)
			}

			h := newAuthHandler(users, testManager())

			r := gin.New()
			r.POST("/api/auth/register", h.Register)

			w := postJSON(r, "/api/auth/register", tt.body)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			if strings.Contains(w.Body.String(), "password") {
				t.Fatalf("response leaks password material: %s", w.Body.String())
			}

			if tt.wantStatusCode == http.StatusCreated {
				var resp struct {
					Success bool   `json:"success"`
					Token   string `json:"token"`
					User    struct {
						ID    string `json:"id"`
						Email string `json:"email"`
					} `json:"user"`
				}

				if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
					t.Fatalf("bad register response: %v", err)
				}

				if !resp.Success || resp.Token == "" || resp.User.ID == "" {
					t.Fatalf("incomplete register response: %s", w.Body.String())
				}
			}
		})
	}
}

func TestRegisterConflictOnSecondAttempt(t *testing.T) {
	// emulate a real unique index: first create wins, second hits 409
	seen := map[string]bool{}

	users := &fakeUsersRepo{
		createFn: func(ctx context.Context, email, hash, first, last, role string) (user.User, error) {
			if seen[email] {
				return user.User{}, postgres.ErrEmailAlreadyUsed
			}

			seen[email] = true

			return user.User{ID: uuid.NewString(), Email: email, Role: role}, nil
		},
	}

	h := newAuthHandler(users, testManager())

	r := gin.New()
	r.POST("/api/auth/register", h.Register)

	body := `{"firstName":"Ada","lastName":"Lovelace","email":"dup@example.com","password":"hunter2hunter2"}`

	if w := postJSON(r, "/api/auth/register", body); w.Code != http.StatusCreated {
		t.Fatalf("first register: got %d, body=%s", w.Code, w.Body.String())
	}

	w := postJSON(r, "/api/auth/register", body)

	if w.Code != http.StatusConflict {
		t.Fatalf("second register: got %d, want 409, body=%s", w.Code, w.Body.String())
	}
}

func TestLoginHandler(t *testing.T) {
	mgr := testManager()

	hash, err := security.HashPassword("hunter2hunter2")

	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	userID := uuid.NewString()

	stored := user.User{
		ID:           userID,
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Email:        "ada@example.com",
		PasswordHash: hash,
		Role:         user.RoleUser,
	}

	users := &fakeUsersRepo{
		getByEmailFn: func(ctx context.Context, email string) (user.User, error) {
			if email == stored.Email {
				return stored, nil
			}

			return user.User{}, postgres.ErrUserNotFound
		},
	}

	h := newAuthHandler(users, mgr)

	r := gin.New()
	r.POST("/api/auth/login", h.Login)

	t.Run("success_token_identifies_user", func(t *testing.T) {
		w := postJSON(r, "/api/auth/login", `{"email":"ada@example.com","password":"hunter2hunter2"}`)

		if w.Code != http.StatusOK {
			t.Fatalf("got %d, body=%s", w.Code, w.Body.String())
		}

		var resp struct {
			Token string `json:"token"`
		}

		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("bad login response: %v", err)
		}

		claims, err := mgr.VerifyAccessToken(resp.Token)

		if err != nil {
			t.Fatalf("token does not verify: %v", err)
		}

		if claims.UserID != userID {
			t.Fatalf("token subject = %s, want %s", claims.UserID, userID)
		}

		if strings.Contains(w.Body.String(), hash) {
			t.Fatalf("response leaks password hash")
		}
	})

	t.Run("wrong_password", func(t *testing.T) {
		w := postJSON(r, "/api/auth/login", `{"email":"ada@example.com","password":"wrong-password"}`)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("got %d, want 401, body=%s", w.Code, w.Body.String())
		}
	})

	t.Run("unknown_email", func(t *testing.T) {
		w := postJSON(r, "/api/auth/login", `{"email":"ghost@example.com","password":"hunter2hunter2"}`)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("got %d, want 401, body=%s", w.Code, w.Body.String())
		}
	})

	// absent credentials are an auth failure, not a validation failure
	t.Run("missing_password", func(t *testing.T) {
		w := postJSON(r, "/api/auth/login", `{"email":"ada@example.com"}`)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("got %d, want 401, body=%s", w.Code, w.Body.String())
		}
	})

	t.Run("missing_email", func(t *testing.T) {
		w := postJSON(r, "/api/auth/login", `{"password":"hunter2hunter2"}`)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("got %d, want 401, body=%s", w.Code, w.Body.String())
		}
	})

	t.Run("malformed_json_still_bad_request", func(t *testing.T) {
		w := postJSON(r, "/api/auth/login", `{"email":`)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("got %d, want 400, body=%s", w.Code, w.Body.String())
		}
	})
}

func TestMeHandler(t *testing.T) {
	mgr := testManager()

	userID := uuid.NewString()

	stored := user.User{
		ID:        userID,
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Role:      user.RoleUser,
	}

	users := &fakeUsersRepo{
		getByIDFn: func(ctx context.Context, id string) (user.User, error) {
			if id == userID {
				return stored, nil
			}

			return user.User{}, postgres.ErrUserNotFound
		},
	}

	h := newAuthHandler(users, mgr)
	mw := middlewares.NewAuthMiddleware(mgr)

	r := gin.New()
	r.GET("/api/auth/me", mw.RequireAuth(), h.Me)

	callMe := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)

		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("valid_token", func(t *testing.T) {
		token, err := mgr.GenerateAccessToken(userID, stored.Email, stored.Role)

		if err != nil {
			t.Fatalf("generate: %v", err)
		}

		w := callMe(token)

		if w.Code != http.StatusOK {
			t.Fatalf("got %d, body=%s", w.Code, w.Body.String())
		}

		var resp struct {
			User struct {
				ID    string `json:"id"`
				Email string `json:"email"`
			} `json:"user"`
		}

		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("bad me response: %v", err)
		}

		if resp.User.ID != userID || resp.User.Email != stored.Email {
			t.Fatalf("unexpected identity: %s", w.Body.String())
		}

		if strings.Contains(w.Body.String(), "password") {
			t.Fatalf("response leaks password material: %s", w.Body.String())
		}
	})

	t.Run("missing_token", func(t *testing.T) {
		if w := callMe(""); w.Code != http.StatusUnauthorized {
			t.Fatalf("got %d, want 401", w.Code)
		}
	})

	t.Run("tampered_token", func(t *testing.T) {
		token, err := mgr.GenerateAccessToken(userID, stored.Email, stored.Role)

		if err != nil {
			t.Fatalf("generate: %v", err)
		}

		// flip the last signature byte
		tampered := token[:len(token)-1]

		if strings.HasSuffix(token, "A") {
			tampered += "B"
		} else {
			tampered += "A"
		}

		if w := callMe(tampered); w.Code != http.StatusUnauthorized {
			t.Fatalf("got %d, want 401", w.Code)
		}
	})

	t.Run("expired_token", func(t *testing.T) {
		expiredMgr := auth.NewManager("test-secret", -time.Minute, 24*time.Hour)

		token, err := expiredMgr.GenerateAccessToken(userID, stored.Email, stored.Role)

		if err != nil {
			t.Fatalf("generate: %v", err)
		}

		if w := callMe(token); w.Code != http.StatusUnauthorized {
			t.Fatalf("got %d, want 401", w.Code)
		}
	})

	t.Run("wrong_secret", func(t *testing.T) {
		otherMgr := auth.NewManager("other-secret", time.Hour, 24*time.Hour)

		token, err := otherMgr.GenerateAccessToken(userID, stored.Email, stored.Role)

		if err != nil {
			t.Fatalf("generate: %v", err)
		}

		if w := callMe(token); w.Code != http.StatusUnauthorized {
			t.Fatalf("got %d, want 401", w.Code)
		}
	})

	t.Run("unknown_role_claim", func(t *testing.T) {
		// correctly signed, but carries a role we never issue
		token, err := mgr.GenerateAccessToken(userID, stored.Email, "superuser")

		if err != nil {
			t.Fatalf("generate: %v", err)
		}

		if w := callMe(token); w.Code != http.StatusUnauthorized {
			t.Fatalf("got %d, want 401, body=%s", w.Code, w.Body.String())
		}
	})

	t.Run("user_deleted", func(t *testing.T) {
		ghost := uuid.NewString()

		token, err := mgr.GenerateAccessToken(ghost, "ghost@example.com", user.RoleUser)

		if err != nil {
			t.Fatalf("generate: %v", err)
		}

		if w := callMe(token); w.Code != http.StatusNotFound {
			t.Fatalf("got %d, want 404, body=%s", w.Code, w.Body.String())
		}
	})
}

func TestRefreshRotation(t *testing.T) {
	mgr := testManager()
	store := newFakeRefreshStore()
	users := &fakeUsersRepo{}

	h := handlers.NewAuthHandler(users, users, mgr, store, config.Config{Env: "test"})

	r := gin.New()
	r.POST("/api/auth/login", h.Login)
	r.POST("/api/auth/refresh", h.Refresh)

	hash, err := security.HashPassword("hunter2hunter2")

	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	userID := uuid.NewString()

	users.getByEmailFn = func(ctx context.Context, email string) (user.User, error) {
		return user.User{ID: userID, Email: email, PasswordHash: hash, Role: user.RoleUser}, nil
	}

	login := postJSON(r, "/api/auth/login", `{"email":"ada@example.com","password":"hunter2hunter2"}`)

	if login.Code != http.StatusOK {
		t.Fatalf("login: got %d, body=%s", login.Code, login.Body.String())
	}

	cookies := login.Result().Cookies()

	var refreshCookie *http.Cookie

	for _, c := range cookies {
		if c.Name == "refresh_token" {
			refreshCookie = c
		}
	}

	if refreshCookie == nil {
		t.Fatalf("login did not set a refresh cookie")
	}

	doRefresh := func(c *http.Cookie) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
		req.AddCookie(c)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := doRefresh(refreshCookie)

	if first.Code != http.StatusOK {
		t.Fatalf("refresh: got %d, body=%s", first.Code, first.Body.String())
	}

	// the old token was revoked during rotation; replaying it must fail
	replay := doRefresh(refreshCookie)

	if replay.Code != http.StatusUnauthorized {
		t.Fatalf("replayed refresh: got %d, want 401, body=%s", replay.Code, replay.Body.String())
	}
}

func TestLogoutAllEndsEverySession(t *testing.T) {
	mgr := testManager()
	store := newFakeRefreshStore()
	users := &fakeUsersRepo{}

	h := handlers.NewAuthHandler(users, users, mgr, store, config.Config{Env: "test"})

	r := gin.New()
	r.POST("/api/auth/login", h.Login)
	r.POST("/api/auth/logout", h.Logout)
	r.POST("/api/auth/refresh", h.Refresh)

	hash, err := security.HashPassword("hunter2hunter2")

	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	userID := uuid.NewString()

	users.getByEmailFn = func(ctx context.Context, email string) (user.User, error) {
		return user.User{ID: userID, Email: email, PasswordHash: hash, Role: user.RoleUser}, nil
	}

	refreshCookieOf := func(w *httptest.ResponseRecorder) *http.Cookie {
		for _, c := range w.Result().Cookies() {
			if c.Name == "refresh_token" && c.Value != "" {
				return c
			}
		}
		return nil
	}

	// two concurrent sessions for the same account
	sessionA := refreshCookieOf(postJSON(r, "/api/auth/login", `{"email":"ada@example.com","password":"hunter2hunter2"}`))
	sessionB := refreshCookieOf(postJSON(r, "/api/auth/login", `{"email":"ada@example.com","password":"hunter2hunter2"}`))

	if sessionA == nil || sessionB == nil {
		t.Fatalf("logins did not set refresh cookies")
	}

	logout := httptest.NewRequest(http.MethodPost, "/api/auth/logout?all=true", nil)
	logout.AddCookie(sessionA)

	lw := httptest.NewRecorder()
	r.ServeHTTP(lw, logout)

	if lw.Code != http.StatusNoContent {
		t.Fatalf("logout: got %d, want 204", lw.Code)
	}

	// the other session's token must be dead too
	refresh := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	refresh.AddCookie(sessionB)

	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, refresh)

	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout-all: got %d, want 401, body=%s", rw.Code, rw.Body.String())
	}
}
