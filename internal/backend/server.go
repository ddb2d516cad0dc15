// Package backend is the REST service behind the agent: it issues caller
// join tokens and stores tenants and leads.
package backend

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// DefaultTokenTTL is how long a caller join token stays valid.
const DefaultTokenTTL = time.Hour

// LiveKit holds the credentials used to mint join tokens.
type LiveKit struct {
	URL       string
	APIKey    string
	APISecret string
}

// Config wires a Server.
type Config struct {
	Store       *Store
	Secret      string // shared secret for /api/internal
	LiveKit     LiveKit
	CORSOrigins []string
	TokenTTL    time.Duration
	Logger      *slog.Logger
}

// Server is the fiber app plus its dependencies.
type Server struct {
	app      *fiber.App
	store    *Store
	secret   string
	livekit  LiveKit
	tokenTTL time.Duration
	validate *validator.Validate
	logger   *slog.Logger
}

// New builds the app and registers routes.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		store:    cfg.Store,
		secret:   cfg.Secret,
		livekit:  cfg.LiveKit,
		tokenTTL: cfg.TokenTTL,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   cfg.Logger,
	}

	app := fiber.New(fiber.Config{
		AppName:               "inputright-backend",
		BodyLimit:             1 << 20,
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})

	app.Use(recover.New())
	origins := "*"
	if len(cfg.CORSOrigins) > 0 {
		origins = strings.Join(cfg.CORSOrigins, ", ")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")
	api.Post("/token", s.createToken)

	internal := api.Group("/internal", s.requireSecret)
	internal.Post("/tenants", s.createTenant)
	internal.Get("/tenants/:id", s.getTenant)
	internal.Get("/tenants/:id/leads", s.listLeads)
	internal.Post("/leads", s.createLead)

	s.app = app
	return s, nil
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Listen(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Backend listening", slog.String("addr", addr))
		errCh <- s.app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// requireSecret checks the Authorization header against the shared secret
// in constant time.
func (s *Server) requireSecret(c *fiber.Ctx) error {
	if s.secret == "" {
		s.logger.Error("Internal API secret is not configured")
		return fiber.NewError(fiber.StatusInternalServerError, "internal API secret is not configured")
	}
	got := c.Get(fiber.HeaderAuthorization)
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) != 1 {
		return fiber.NewError(fiber.StatusForbidden, "invalid credentials")
	}
	return c.Next()
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal error"

	var (
		fe *fiber.Error
		ve *validationError
	)
	switch {
	case errors.As(err, &ve):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": ve.Error(), "details": ve.details})
	case errors.As(err, &fe):
		code, msg = fe.Code, fe.Message
	case errors.Is(err, ErrNotFound):
		code, msg = fiber.StatusNotFound, err.Error()
	case errors.Is(err, ErrConflict):
		code, msg = fiber.StatusConflict, err.Error()
	default:
		s.logger.Error("Request failed",
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("error", err.Error()))
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
