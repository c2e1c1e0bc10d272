// Package server wires the gophauth components together from configuration
// and runs the HTTP and gRPC servers until the context is cancelled.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/cookies"
	"github.com/dmitrijs2005/gophauth/internal/server/credentials"
	"github.com/dmitrijs2005/gophauth/internal/server/federation"
	gs "github.com/dmitrijs2005/gophauth/internal/server/grpc"
	"github.com/dmitrijs2005/gophauth/internal/server/httpapi"
	"github.com/dmitrijs2005/gophauth/internal/server/mailer"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"github.com/dmitrijs2005/gophauth/internal/server/tokens"
	"github.com/dmitrijs2005/gophauth/internal/server/workpool"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// App owns the HTTP and gRPC servers and their shared dependencies.
type App struct {
	config   *config.Config
	logger   logging.Logger
	sessions *services.SessionService
	router   *gin.Engine
	grpc     *gs.GRPCServer
	db       *sql.DB
}

// NewApp builds every collaborator from c. Logs are written to w.
func NewApp(ctx context.Context, c *config.Config, w io.Writer) (*App, error) {
	logger := logging.New(w, c.LogLevel)

	keys, err := cryptox.DeriveKeys([]byte(c.RootSecret))
	if err != nil {
		return nil, fmt.Errorf("derive keys: %w", err)
	}

	params := credentials.DefaultParams()
	params.Memory = c.Argon2Memory
	params.Time = c.Argon2Time
	params.Parallelism = c.Argon2Parallelism
	hasher, err := credentials.NewHasher(keys.PasswordPepper, params)
	if err != nil {
		return nil, fmt.Errorf("hasher init error: %w", err)
	}

	codec, err := cookies.NewCodec(keys.CookieEncryption, c.AccessTokenValidityDuration, c.RefreshTokenValidityDuration,
		cookies.WithStateTTL(c.OAuthStateTTL))
	if err != nil {
		return nil, fmt.Errorf("cookie codec init error: %w", err)
	}

	issuer := tokens.NewIssuer(keys.TokenSigning, c.TokenIssuer, c.TokenAudience, c.AccessTokenValidityDuration)

	mail, err := mailer.NewClient(c.MailBaseURL, c.MailSender, c.MailToken, c.MailTimeout)
	if err != nil {
		return nil, fmt.Errorf("mailer init error: %w", err)
	}

	var provider *federation.Provider
	if c.GoogleClientID != "" {
		provider, err = federation.New(federation.Google, federation.Config{
			ClientID:     c.GoogleClientID,
			ClientSecret: c.GoogleClientSecret,
			BaseURL:      c.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("federation init error: %w", err)
		}
	} else {
		logger.Info(ctx, "Google login disabled: no client id configured")
	}

	var (
		store repomanager.Store
		db    *sql.DB
	)
	if c.InMemoryStore {
		logger.Warn(ctx, "Using in-memory store, accounts are lost on restart")
		store = repomanager.NewMemoryStore()
	} else {
		store, db, err = repomanager.OpenPostgres(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
	}

	pool := workpool.New(c.Workers)

	sessions := services.NewSessionService(services.SessionDeps{
		Store:    store,
		Hasher:   hasher,
		Issuer:   issuer,
		Mailer:   mail,
		Pool:     pool,
		Provider: provider,
		BaseURL:  c.BaseURL,
		Logger:   logger,
	})

	return &App{
		config:   c,
		logger:   logger,
		sessions: sessions,
		router:   httpapi.NewRouter(httpapi.NewHandlers(sessions, codec, logger)),
		grpc:     gs.NewGRPCServer(c.GRPCAddr, logger, sessions),
		db:       db,
	}, nil
}

func (app *App) runHTTPServer(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run serves HTTP and gRPC until ctx is cancelled, SIGINT/SIGTERM arrives or
// either server fails.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting app...")

	lis, err := net.Listen("tcp", app.config.HTTPAddr)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.runHTTPServer(ctx, lis)
	})
	g.Go(func() error {
		return app.grpc.Run(ctx)
	})

	err = g.Wait()

	if app.db != nil {
		if cerr := app.db.Close(); cerr != nil {
			app.logger.Error(ctx, "db close error", "error", cerr.Error())
		}
	}
	if err != nil {
		app.logger.Error(ctx, "app stopped", "error", err.Error())
		return err
	}
	app.logger.Info(ctx, "App stopped")
	return nil
}
