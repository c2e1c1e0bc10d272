package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/flagx"
)

// parseFlags overlays the short command-line flags.
//
//	-a string   HTTP bind address
//	-g string   gRPC bind address
//	-b string   public base URL (used in verification links and OAuth redirects)
//	-d string   PostgreSQL DSN
//	-m          use the in-memory store instead of PostgreSQL
//	-s string   root secret
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//	-w int      crypto worker count (0 = GOMAXPROCS)
//	-l string   log level
//
// Durations are given in minutes on the command line.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-g", "-b", "-d", "-m", "-s", "-t", "-r", "-w", "-l"})

	fs := flag.NewFlagSet("gophauth", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP address and port")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "gRPC address and port")
	fs.StringVar(&config.BaseURL, "b", config.BaseURL, "public base URL")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.BoolVar(&config.InMemoryStore, "m", config.InMemoryStore, "use in-memory store")
	fs.StringVar(&config.RootSecret, "s", config.RootSecret, "root secret")
	fs.IntVar(&config.Workers, "w", config.Workers, "crypto workers")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	access := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	refresh := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh token validity (in minutes)")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.AccessTokenValidityDuration = time.Duration(*access) * time.Minute
		case "r":
			config.RefreshTokenValidityDuration = time.Duration(*refresh) * time.Minute
		}
	})
	return nil
}
