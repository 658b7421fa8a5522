package server

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/encryptcookie"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/sifan077/InviteGate/internal/app/repository"
	"github.com/sifan077/InviteGate/internal/app/service"
	inthttp "github.com/sifan077/InviteGate/internal/http/handler"
	"github.com/sifan077/InviteGate/internal/http/middleware"
	"go.uber.org/zap"
)

const sessionCookie = "session_id"

// Dependencies bundles infrastructure dependencies required by the HTTP server.
type Dependencies struct {
	Logger *zap.Logger
	// SessionStorage backs the session store; nil keeps sessions in memory.
	SessionStorage fiber.Storage
	// Limiter backs the per-IP rate limit; nil disables it.
	Limiter   middleware.Counter
	RateLimit middleware.RateLimitConfig

	Mappings    service.MappingService
	Accounts    service.AccountService
	Join        inthttp.Joiner
	OAuth       inthttp.OAuthClient
	AuditEvents repository.AuditEventRepository
	Ping        func(ctx context.Context) error

	Admins            []string
	SessionSecret     string
	SessionExpiration time.Duration
	CookieSecure      bool
	LoginRedirectURI  string
	JoinRedirectURI   string
	CaptchaSiteKey    string
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app      *fiber.App
	deps     Dependencies
	sessions *session.Store
	csrf     *middleware.CSRF
}

// New creates the HTTP server with middleware and every route registered.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	sessions := session.New(session.Config{
		Expiration:     deps.SessionExpiration,
		Storage:        deps.SessionStorage,
		KeyLookup:      "cookie:" + sessionCookie,
		CookieSecure:   deps.CookieSecure,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
	})
	csrf := middleware.NewCSRF(sessions, []byte(deps.SessionSecret))

	app := fiber.New(fiber.Config{
		AppName:      "InviteGate",
		ErrorHandler: inthttp.ErrorHandler(csrf, deps.Logger.Named("http")),
	})

	s := &Server{
		app:      app,
		deps:     deps,
		sessions: sessions,
		csrf:     csrf,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// App exposes the fiber application for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerMiddleware() {
	log := s.deps.Logger.Named("http")

	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Logger(log))
	s.app.Use(middleware.Recovery(log))
	s.app.Use(middleware.Metrics())
	s.app.Use(middleware.SecureHeaders())
	s.app.Use(encryptcookie.New(encryptcookie.Config{
		Key: cookieKey(s.deps.SessionSecret),
	}))
	s.app.Use(middleware.Session(s.sessions, s.deps.Admins, log))
	s.app.Use(s.csrf.Protect())

	for _, prefix := range []string{"/create", "/verify", "/callback"} {
		cfg := s.deps.RateLimit
		cfg.KeyPrefix = "invitegate:ratelimit" + prefix
		s.app.Use(prefix, middleware.RateLimit(s.deps.Limiter, cfg, log))
	}
}

func (s *Server) registerRoutes() {
	inthttp.NewHomeHandler(inthttp.HomeDeps{
		Logger: s.deps.Logger,
		CSRF:   s.csrf,
		Ping:   s.deps.Ping,
	}).Register(s.app)

	inthttp.NewAuthHandler(inthttp.AuthDeps{
		Logger:      s.deps.Logger.Named("auth"),
		Sessions:    s.sessions,
		CSRF:        s.csrf,
		OAuth:       s.deps.OAuth,
		Accounts:    s.deps.Accounts,
		RedirectURI: s.deps.LoginRedirectURI,
		Secret:      []byte(s.deps.SessionSecret),
	}).Register(s.app)

	inthttp.NewManageHandler(inthttp.ManageDeps{
		Logger:         s.deps.Logger.Named("manage"),
		CSRF:           s.csrf,
		Mappings:       s.deps.Mappings,
		CaptchaSiteKey: s.deps.CaptchaSiteKey,
	}).Register(s.app)

	inthttp.NewAdminHandler(inthttp.AdminDeps{
		Logger:      s.deps.Logger.Named("admin"),
		CSRF:        s.csrf,
		Accounts:    s.deps.Accounts,
		AuditEvents: s.deps.AuditEvents,
	}).Register(s.app)

	inthttp.NewJoinHandler(inthttp.JoinDeps{
		Logger:         s.deps.Logger.Named("join"),
		Sessions:       s.sessions,
		CSRF:           s.csrf,
		Mappings:       s.deps.Mappings,
		Join:           s.deps.Join,
		OAuth:          s.deps.OAuth,
		RedirectURI:    s.deps.JoinRedirectURI,
		CaptchaSiteKey: s.deps.CaptchaSiteKey,
	}).Register(s.app)
}

// cookieKey derives the AES-256 key encryptcookie expects from the session secret.
func cookieKey(secret string) string {
	sum := sha256.Sum256([]byte("invitegate-cookie|" + secret))
	return base64.StdEncoding.EncodeToString(sum[:])
}
