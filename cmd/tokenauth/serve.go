package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/devmarvs/tokenauth"
	"github.com/devmarvs/tokenauth/adapter"
	"github.com/devmarvs/tokenauth/adapter/memory"
	"github.com/devmarvs/tokenauth/adapter/postgres"
	"github.com/devmarvs/tokenauth/apperr"
	"github.com/devmarvs/tokenauth/config"
	"github.com/devmarvs/tokenauth/handler"
	"github.com/devmarvs/tokenauth/health"
	"github.com/devmarvs/tokenauth/metrics"
	"github.com/devmarvs/tokenauth/middleware"
	"github.com/devmarvs/tokenauth/otel"
	"github.com/devmarvs/tokenauth/session"
	"github.com/devmarvs/tokenauth/settings"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	var (
		address  string
		seedPath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the token authenticated demo API",
		Long: `Serve starts an HTTP server with token authentication installed on
three controllers:

  GET    /api/profile       User token required
  GET    /admin/dashboard   SuperAdmin token or session cookie
  POST   /admin/session     exchange a SuperAdmin token for a session cookie
  DELETE /admin/session     sign the SuperAdmin out

Liveness is served at /health, adapter readiness at /ready.

Principals are read from PostgreSQL when database.dsn is set, otherwise from
the in-memory store seeded with --seed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Address = address
			}
			logger := newLogger(cmd, cfg)

			var seed io.Reader
			if seedPath != "" {
				file, err := os.Open(seedPath)
				if err != nil {
					return fmt.Errorf("open seed: %w", err)
				}
				defer file.Close()
				seed = file
			}

			srv, err := buildServer(cfg, logger, seed)
			if err != nil {
				return err
			}
			defer srv.Close()

			return srv.app.RunWithSignals()
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "listen address, overrides the config")
	cmd.Flags().StringVar(&seedPath, "seed", "", "JSON file of principals for the in-memory store")
	return cmd
}

// seedDocument is one principal of a seed file:
//
//	{"User": [{"id": "1", "token": "...", "fields": {"email": "alice@example.com"}}]}
type seedDocument struct {
	ID     string            `json:"id"`
	Token  string            `json:"token"`
	Fields map[string]string `json:"fields"`
}

type server struct {
	app       *tokenauth.App
	registrar *handler.Registrar
	settings  *settings.Registry
	sessions  *session.Store
	metrics   *metrics.Collector
	memory    *memory.Store
	closers   []io.Closer
}

// Close releases the database connection, if any.
func (s *server) Close() error {
	var firstErr error
	for _, closer := range s.closers {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func buildServer(cfg config.Config, logger *slog.Logger, seed io.Reader) (*server, error) {
	srv := &server{
		settings: settings.FromConfig(cfg, settings.WithLogger(logger)),
	}

	store, err := srv.openStore(cfg, seed)
	if err != nil {
		return nil, err
	}

	if cfg.Session.Key != "" {
		sessions, err := session.FromConfig(cfg.Session)
		if err != nil {
			return nil, err
		}
		srv.sessions = sessions
	}

	var hooks []tokenauth.AuthHooks
	var tracer *otel.Tracer
	if cfg.MetricsEnabled {
		srv.metrics = metrics.New()
		hooks = append(hooks, srv.metrics.Hooks())
	}
	if cfg.TracingEnabled {
		tracer = otel.NewTracer(cfg.TracerName)
		hooks = append(hooks, tracer.Hooks())
	}
	hooks = append(hooks, tokenauth.AuthHooks{
		AfterAuthenticate: func(ctx *tokenauth.Context, principalType string, principal *tokenauth.Principal, err error) {
			if principal != nil {
				ctx.Logger().Info("principal authenticated",
					slog.String("principal_type", principalType),
					slog.String("principal_id", principal.ID),
				)
			}
		},
	})

	srv.registrar = handler.NewRegistrar(
		handler.WithSettings(srv.settings),
		handler.WithAdapters(store),
		handler.WithAuthHooks(tokenauth.ChainAuthHooks(hooks...)),
		handler.WithLogger(logger),
	)

	srv.app = tokenauth.New(tokenauth.WithConfig(cfg), tokenauth.WithLogger(logger))
	srv.app.Use(middleware.RequestID(), middleware.Recover(), middleware.Logger())
	if tracer != nil {
		srv.app.Use(middleware.TraceWithOptions(middleware.DefaultTraceOptions(tracer)))
	}
	if srv.metrics != nil {
		srv.app.Use(middleware.Metrics(srv.metrics))
		srv.app.Mount("/metrics", srv.metrics.Handler())
	}

	checks := health.New(health.WithTimeout(2 * time.Second))
	checks.Add("process", nil)
	checks.AddAdapter(store)
	srv.app.Mount("/health", checks.Handler())
	srv.app.Mount("/ready", checks.ReadyHandler())

	if err := srv.routes(); err != nil {
		_ = srv.Close()
		return nil, err
	}
	return srv, nil
}

func (s *server) openStore(cfg config.Config, seed io.Reader) (adapter.Adapter, error) {
	if cfg.Database.DSN != "" {
		db, err := postgres.Open(cfg.Database.DSN, postgres.PoolOptions{MaxOpenConns: cfg.Database.MaxOpenConns})
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		s.closers = append(s.closers, db)
		return postgres.New(db, postgres.Options{
			TablePrefix:  cfg.Database.TablePrefix,
			QueryTimeout: cfg.Database.QueryTimeout,
		}), nil
	}

	s.memory = memory.New()
	if seed == nil {
		return s.memory, nil
	}

	var docs map[string][]seedDocument
	decoder := json.NewDecoder(seed)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&docs); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	for principalType, list := range docs {
		for _, doc := range list {
			s.memory.Put(principalType, memory.Document{ID: doc.ID, Token: doc.Token, Fields: doc.Fields})
		}
	}
	return s.memory, nil
}

func (s *server) routes() error {
	api := handler.NewController("ApiController", nil)
	if err := s.registrar.Register(api, "User", handler.FallbackToDevise(false)); err != nil {
		return err
	}
	api.Action("profile", profile("User"))

	admin := handler.NewController("AdminController", nil)
	adminOptions := []handler.RegisterOption{}
	if s.sessions != nil {
		adminOptions = append(adminOptions, handler.Fallback(s.sessions.Authenticator("SuperAdmin")))
	}
	if err := s.registrar.Register(admin, "SuperAdmin", adminOptions...); err != nil {
		return err
	}
	admin.Action("dashboard", profile("SuperAdmin"))

	sessions := handler.NewController("SessionsController", admin)
	sessions.SkipBeforeAction("authenticate_super_admin_from_token")
	if err := s.registrar.Register(sessions, "SuperAdmin", handler.FallbackToDevise(false), handler.Only("create")); err != nil {
		return err
	}
	sessions.Action("create", s.signIn)
	sessions.Action("destroy", s.signOut)

	s.app.GET("/api/profile", api.Handler("profile"))
	adminRoutes := s.app.Group("/admin")
	adminRoutes.GET("/dashboard", admin.Handler("dashboard"))
	adminRoutes.POST("/session", sessions.Handler("create"))
	adminRoutes.DELETE("/session", sessions.Handler("destroy"))
	return nil
}

func profile(principalType string) tokenauth.Handler {
	return func(ctx *tokenauth.Context) error {
		principal, ok := tokenauth.PrincipalFor(ctx, principalType)
		if !ok {
			return apperr.Unauthorized("unauthorized", tokenauth.ErrCredentialsMissing)
		}
		return ctx.JSON(http.StatusOK, principalJSON(principal))
	}
}

func (s *server) signIn(ctx *tokenauth.Context) error {
	if s.sessions == nil {
		return apperr.NotFound("sessions disabled", nil)
	}
	principal, ok := tokenauth.PrincipalFor(ctx, "SuperAdmin")
	if !ok {
		return apperr.Unauthorized("unauthorized", tokenauth.ErrCredentialsMissing)
	}
	if err := s.sessions.SignIn(ctx.ResponseWriter, ctx.Request, principal); err != nil {
		return apperr.Internal("sign in failed", err)
	}
	return ctx.JSON(http.StatusCreated, principalJSON(principal))
}

func (s *server) signOut(ctx *tokenauth.Context) error {
	if s.sessions == nil {
		return apperr.NotFound("sessions disabled", nil)
	}
	if err := s.sessions.SignOut(ctx.ResponseWriter, ctx.Request, "SuperAdmin"); err != nil {
		return apperr.Internal("sign out failed", err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func principalJSON(principal *tokenauth.Principal) map[string]string {
	return map[string]string{
		"id":         principal.ID,
		"type":       principal.Type,
		"identifier": principal.Identifier,
	}
}
