package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/walkiger/storyforge/internal/crypto"
	"github.com/walkiger/storyforge/internal/errs"
	"github.com/walkiger/storyforge/internal/limiter"
	"github.com/walkiger/storyforge/internal/model"
	"github.com/walkiger/storyforge/internal/repository"
	"github.com/walkiger/storyforge/internal/service"
	"github.com/walkiger/storyforge/internal/token"
)

type fakeRepo struct {
	byID map[uuid.UUID]*model.User
}

var _ repository.UserRepository = (*fakeRepo)(nil)

func (f *fakeRepo) Create(_ context.Context, u *model.User) error {
	for _, e := range f.byID {
		if strings.EqualFold(e.Email, u.Email) {
			return &errs.ConflictError{Field: "email"}
		}
		if strings.EqualFold(e.Username, u.Username) {
			return &errs.ConflictError{Field: "username"}
		}
	}
	cpy := *u
	cpy.CreatedAt = time.Now()
	f.byID[u.ID] = &cpy
	return nil
}

func (f *fakeRepo) FindByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	if u, ok := f.byID[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, errs.ErrNotFound
}

func (f *fakeRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.byID {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeRepo) FindByUsername(_ context.Context, username string) (*model.User, error) {
	for _, u := range f.byID {
		if strings.EqualFold(u.Username, username) {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeRepo) FindByEmailOrUsername(_ context.Context, email, username string) (*model.User, error) {
	for _, u := range f.byID {
		if strings.EqualFold(u.Email, email) || strings.EqualFold(u.Username, username) {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeRepo) UpdatePasswordHash(_ context.Context, id uuid.UUID, hash string) error {
	u, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (f *fakeRepo) UpdateProfile(_ context.Context, id uuid.UUID, upd model.ProfileUpdate) (*model.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if upd.Username != nil {
		u.Username = *upd.Username
	}
	if upd.FirstName != nil {
		u.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		u.LastName = *upd.LastName
	}
	c := *u
	return &c, nil
}

func (f *fakeRepo) List(_ context.Context) ([]model.User, error) {
	out := make([]model.User, 0, len(f.byID))
	for _, u := range f.byID {
		out = append(out, *u)
	}
	return out, nil
}

type testApp struct {
	router http.Handler
	repo   *fakeRepo
	now    *time.Time
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	repo := &fakeRepo{byID: map[uuid.UUID]*model.User{}}
	hasher, err := crypto.NewPasswordHasher(crypto.Params{
		Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16,
	})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	codec := token.NewCodec([]byte("test-secret-key-0123456789abcdef"))
	auth := service.NewAuthService(repo, hasher, codec, 30*time.Minute)

	now := time.Unix(1700000000, 0)
	lim := limiter.NewMemory(map[string]int{"chat": 2, "image": 2}, 100,
		limiter.WithClock(func() time.Time { return now }))

	srv := New(auth, repo, lim, zap.NewNop(), nil)
	return &testApp{router: srv.Router(), repo: repo, now: &now}
}

func (a *testApp) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "203.0.113.7:54321"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) register(t *testing.T, email, username string) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email": email, "username": username, "password": "pw12345",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status=%d body=%s", email, rec.Code, rec.Body.String())
	}
}

func (a *testApp) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": email, "password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status=%d body=%s", email, rec.Code, rec.Body.String())
	}
	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.TokenType != "bearer" {
		t.Fatalf("token_type=%q, want bearer", resp.TokenType)
	}
	return resp.AccessToken
}

func TestRegister_CreatesAndSanitizes(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	rec := app.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email": "a@x.com", "username": "alice", "password": "pw12345", "first_name": "Alice",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("response leaks password material: %s", rec.Body.String())
	}
	var resp struct {
		Email    string `json:"email"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Email != "a@x.com" || resp.Username != "alice" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestRegister_DuplicateEmailIsConflictNot500(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	app.register(t, "a@x.com", "alice")

	rec := app.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email": "a@x.com", "username": "different", "password": "pw12345",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
	var resp struct {
		Error string `json:"error"`
		Field string `json:"field"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != "conflict" || resp.Field != "email" {
		t.Fatalf("body=%s, want conflict on email", rec.Body.String())
	}
}

func TestLogin_EnumerationResistance(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	app.register(t, "a@x.com", "alice")

	wrongPw := app.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "a@x.com", "password": "wrong-password",
	})
	noUser := app.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "ghost@x.com", "password": "whatever1",
	})

	if wrongPw.Code != http.StatusUnauthorized || noUser.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d/%d, want 401/401", wrongPw.Code, noUser.Code)
	}
	if wrongPw.Body.String() != noUser.Body.String() {
		t.Fatalf("response bodies differ:\n%s\n%s", wrongPw.Body.String(), noUser.Body.String())
	}
	for _, rec := range []*httptest.ResponseRecorder{wrongPw, noUser} {
		if rec.Header().Get("WWW-Authenticate") != "Bearer" {
			t.Fatalf("missing WWW-Authenticate header")
		}
	}
}

func TestProtectedRoutes_RequireBearer(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	app.register(t, "a@x.com", "alice")
	tok := app.login(t, "a@x.com", "pw12345")

	if rec := app.do(t, http.MethodGet, "/users/me", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status=%d, want 401", rec.Code)
	}
	if rec := app.do(t, http.MethodGet, "/users/me", tok+"x", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("tampered token: status=%d, want 401", rec.Code)
	}
	rec := app.do(t, http.MethodGet, "/users/me", tok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: status=%d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "alice") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestListUsers_AdminGate(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	app.register(t, "a@x.com", "alice")
	tok := app.login(t, "a@x.com", "pw12345")

	rec := app.do(t, http.MethodGet, "/users", tok, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("standard user: status=%d, want 403", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "admin") {
		t.Fatalf("403 body should name the required permission: %s", rec.Body.String())
	}

	for _, u := range app.repo.byID {
		u.IsAdmin = true
	}
	tok = app.login(t, "a@x.com", "pw12345") // re-login to pick up the role
	if rec := app.do(t, http.MethodGet, "/users", tok, nil); rec.Code != http.StatusOK {
		t.Fatalf("admin: status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestUpdateProfile_AllowListOnly(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	app.register(t, "a@x.com", "alice")
	tok := app.login(t, "a@x.com", "pw12345")

	// Fields outside the allow-list are rejected outright.
	rec := app.do(t, http.MethodPatch, "/users/me", tok, map[string]string{"email": "evil@x.com"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: status=%d, want 400", rec.Code)
	}
	rec = app.do(t, http.MethodPatch, "/users/me", tok, map[string]string{"is_admin": "true"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("privilege field: status=%d, want 400", rec.Code)
	}

	rec = app.do(t, http.MethodPatch, "/users/me", tok, map[string]string{"first_name": "Alicia"})
	if rec.Code != http.StatusOK {
		t.Fatalf("allowed field: status=%d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Alicia") {
		t.Fatalf("update not applied: %s", rec.Body.String())
	}
}

func TestChangePassword_Flow(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	app.register(t, "a@x.com", "alice")
	tok := app.login(t, "a@x.com", "pw12345")

	rec := app.do(t, http.MethodPost, "/users/me/password", tok, map[string]string{
		"current_password": "wrong", "new_password": "newpass99",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong current: status=%d, want 401", rec.Code)
	}

	rec = app.do(t, http.MethodPost, "/users/me/password", tok, map[string]string{
		"current_password": "pw12345", "new_password": "newpass99",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("change: status=%d body=%s", rec.Code, rec.Body.String())
	}

	app.login(t, "a@x.com", "newpass99")
}

func TestMeteredEndpoint_LimitAndRecovery(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	app.register(t, "a@x.com", "alice")
	tok := app.login(t, "a@x.com", "pw12345")

	body := map[string]string{"prompt": "a story about a fox"}

	// Limit is 2 per minute for chat.
	for i := 0; i < 2; i++ {
		rec := app.do(t, http.MethodPost, "/generate/chat", tok, body)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("request %d: status=%d body=%s", i+1, rec.Code, rec.Body.String())
		}
		if rec.Header().Get("X-RateLimit-Limit-Requests") != "2" {
			t.Fatalf("missing limit header: %v", rec.Header())
		}
	}

	rec := app.do(t, http.MethodPost, "/generate/chat", tok, body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("3rd request: status=%d, want 429", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Remaining-Requests") != "0" {
		t.Fatalf("remaining=%q, want 0", rec.Header().Get("X-RateLimit-Remaining-Requests"))
	}
	if rec.Header().Get("Retry-After") == "" || rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Fatalf("denial must carry reset headers: %v", rec.Header())
	}
	if !strings.Contains(rec.Body.String(), "rate_limit_exceeded") {
		t.Fatalf("body=%s, want machine-readable code", rec.Body.String())
	}

	// The window rolls over and the client is admitted again.
	*app.now = app.now.Add(61 * time.Second)
	if rec := app.do(t, http.MethodPost, "/generate/chat", tok, body); rec.Code != http.StatusAccepted {
		t.Fatalf("after rollover: status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestMeteredEndpoint_TokenHeadersDecrease(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	app.register(t, "a@x.com", "alice")
	tok := app.login(t, "a@x.com", "pw12345")

	body := map[string]string{"prompt": "hello"}
	first := app.do(t, http.MethodPost, "/generate/chat", tok, body)
	if first.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", first.Code, first.Body.String())
	}
	if first.Header().Get("X-RateLimit-Limit-Tokens") != "100" {
		t.Fatalf("token limit header: %v", first.Header())
	}
	remaining := first.Header().Get("X-RateLimit-Remaining-Tokens")
	if remaining == "" || remaining == "100" {
		t.Fatalf("chat request must consume token budget, remaining=%q", remaining)
	}
}

func TestImageEndpoint_ZeroTokenCost(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	app.register(t, "a@x.com", "alice")
	tok := app.login(t, "a@x.com", "pw12345")

	rec := app.do(t, http.MethodPost, "/generate/image", tok, map[string]string{"prompt": "a fox"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-RateLimit-Remaining-Tokens"); got != "100" {
		t.Fatalf("image request consumed tokens: remaining=%q, want 100", got)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	if rec := app.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
}
