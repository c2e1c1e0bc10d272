// Command mailsink runs a local stand-in for the email API so the server
// can be exercised without a real mail provider.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/mailsink"
)

func main() {
	addr := flag.String("a", "127.0.0.1:8001", "listen address")
	keep := flag.Int("n", 100, "messages kept in memory")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New(os.Stdout, "info")
	srv := &http.Server{
		Addr:              *addr,
		Handler:           mailsink.New(*keep, logger).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "Starting mail sink", "address", *addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(ctx, "mail sink stopped", "error", err.Error())
		os.Exit(1)
	}
}
