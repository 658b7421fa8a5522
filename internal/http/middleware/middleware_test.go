package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type fakeCounter struct {
	counts  map[string]int64
	expires map[string]time.Duration
	err     error
}

func (f *fakeCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeCounter) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.expires[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func TestRateLimit(t *testing.T) {
	counter := &fakeCounter{counts: map[string]int64{}, expires: map[string]time.Duration{}}
	app := fiber.New()
	app.Use(RateLimit(counter, RateLimitConfig{MaxRequests: 2, Window: time.Minute, KeyPrefix: "test"}, zap.NewNop()))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	for i, want := range []int{200, 200, 429} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if resp.StatusCode != want {
			t.Fatalf("request %d: expected %d, got %d", i, want, resp.StatusCode)
		}
	}

	if len(counter.expires) != 1 {
		t.Fatalf("expected expiry set once, got %v", counter.expires)
	}
	for key, exp := range counter.expires {
		if !strings.HasPrefix(key, "test:") || exp != time.Minute {
			t.Fatalf("unexpected expiry %s=%s", key, exp)
		}
	}
}

func TestRateLimit_FailsOpen(t *testing.T) {
	counter := &fakeCounter{err: errors.New("connection refused")}
	app := fiber.New()
	app.Use(RateLimit(counter, RateLimitConfig{MaxRequests: 1}, zap.NewNop()))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200 while redis is down, got %d", resp.StatusCode)
		}
	}
}

func TestRecovery(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID(), Recovery(zap.NewNop()))
	app.Get("/boom", func(c *fiber.Ctx) error { panic("boom") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Fatal("expected request id header")
	}
}

func TestRequestID_KeepsIncoming(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(requestID(c)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "abc-123" {
		t.Fatalf("expected incoming id, got %q", body)
	}
}

func newSessionApp(admins ...string) (*fiber.App, *session.Store, *CSRF) {
	store := session.New()
	csrf := NewCSRF(store, []byte("test-secret"))

	app := fiber.New()
	app.Use(Session(store, admins, zap.NewNop()))
	app.Use(csrf.Protect())

	app.Get("/login/:id", func(c *fiber.Ctx) error {
		sess, err := store.Get(c)
		if err != nil {
			return err
		}
		sess.Set(SessionUserKey, c.Params("id"))
		return sess.Save()
	})
	app.Get("/form", func(c *fiber.Ctx) error {
		token, err := csrf.Token(c)
		if err != nil {
			return err
		}
		return c.SendString(token)
	})
	app.Post("/submit", func(c *fiber.Ctx) error { return c.SendString("accepted") })
	app.Get("/private", RequireLogin(), func(c *fiber.Ctx) error { return c.SendString(CurrentUser(c)) })
	app.Get("/admin", RequireAdmin(), func(c *fiber.Ctx) error { return c.SendString("admin") })
	return app, store, csrf
}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == "session_id" {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func TestCSRF(t *testing.T) {
	app, _, _ := newSessionApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/form", nil))
	if err != nil {
		t.Fatalf("form request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	token := string(body)
	cookie := sessionCookie(t, resp)

	post := func(cookie *http.Cookie, token string) int {
		form := url.Values{CSRFField: {token}}
		req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(form.Encode()))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
		if cookie != nil {
			req.AddCookie(cookie)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
		return resp.StatusCode
	}

	if got := post(cookie, token); got != http.StatusOK {
		t.Fatalf("valid token: expected 200, got %d", got)
	}
	if got := post(cookie, "forged.token"); got != http.StatusForbidden {
		t.Fatalf("forged token: expected 403, got %d", got)
	}
	if got := post(nil, token); got != http.StatusForbidden {
		t.Fatalf("missing session: expected 403, got %d", got)
	}
}

func TestRequireLoginAndAdmin(t *testing.T) {
	app, _, _ := newSessionApp("42")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/private", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	login := func(id string) *http.Cookie {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/login/"+id, nil))
		if err != nil {
			t.Fatalf("login failed: %v", err)
		}
		return sessionCookie(t, resp)
	}
	get := func(path string, cookie *http.Cookie) (int, string) {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.AddCookie(cookie)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	user := login("7")
	if status, body := get("/private", user); status != http.StatusOK || body != "7" {
		t.Fatalf("expected user 7, got %d %q", status, body)
	}
	if status, _ := get("/admin", user); status != http.StatusForbidden {
		t.Fatalf("non-admin: expected 403, got %d", status)
	}

	admin := login("42")
	if status, _ := get("/admin", admin); status != http.StatusOK {
		t.Fatalf("admin: expected 200, got %d", status)
	}
}
