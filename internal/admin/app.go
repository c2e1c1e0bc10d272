// Package admin implements gophauthctl, the operator tool. It shares the
// server configuration (file, GOPHAUTH_* environment and flags) so hashes
// it produces verify on the server and gRPC calls reach it.
//
//	gophauthctl hash [server flags]          print an Argon2id hash for a password
//	gophauthctl whoami -token T [flags]      resolve an access token via gRPC
//	gophauthctl health [flags]               query the gRPC health service
package admin

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/flagx"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/credentials"
	gs "github.com/dmitrijs2005/gophauth/internal/server/grpc"
	"github.com/dmitrijs2005/gophauth/internal/server/validation"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

const callTimeout = 5 * time.Second

var errUsage = errors.New("usage: gophauthctl hash|whoami|health [flags]")

// App runs one gophauthctl command per call to Run.
type App struct {
	out io.Writer
	// dial is a seam for tests.
	dial func(addr string) (*grpc.ClientConn, error)
}

// NewApp returns an App that prints command output to out.
func NewApp(out io.Writer) *App {
	return &App{out: out, dial: dialInsecure}
}

func dialInsecure(addr string) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// Run executes the subcommand named by args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	cmd, rest := args[0], args[1:]
	cfg, err := config.LoadArgs(rest)
	if err != nil {
		return err
	}

	switch cmd {
	case "hash":
		return a.Hash(cfg)
	case "whoami":
		return a.Whoami(ctx, cfg, rest)
	case "health":
		return a.Health(ctx, cfg)
	default:
		return errUsage
	}
}

// Hash reads a password twice and prints its PHC string, peppered with the
// key derived from the configured root secret.
func (a *App) Hash(cfg *config.Config) error {
	first, err := GetPassword(a.out, "Password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(first)

	second, err := GetPassword(a.out, "Repeat password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(second)

	if !bytes.Equal(first, second) {
		return errors.New("passwords do not match")
	}
	if msgs := validation.Check(string(first), validation.PasswordRules); len(msgs) > 0 {
		return validation.Errors{"password": msgs}
	}

	pepper, err := cryptox.DeriveKey([]byte(cfg.RootSecret), cryptox.PurposePasswordPepper)
	if err != nil {
		return err
	}
	params := credentials.DefaultParams()
	params.Memory = cfg.Argon2Memory
	params.Time = cfg.Argon2Time
	params.Parallelism = cfg.Argon2Parallelism

	hasher, err := credentials.NewHasher(pepper, params)
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(string(first))
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(a.out, hash)
	return err
}

// Whoami prints the user id the server resolves for -token.
func (a *App) Whoami(ctx context.Context, cfg *config.Config, args []string) error {
	var token string
	fs := flag.NewFlagSet("whoami", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&token, "token", "", "access token")
	if err := fs.Parse(flagx.FilterArgs(args, []string{"-token"})); err != nil {
		return err
	}

	conn, err := a.dial(cfg.GRPCAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, common.AccessTokenHeaderName, token)

	id, err := gs.NewSessionsClient(conn).Whoami(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.out, "user-%d\n", id)
	return err
}

// Health prints the serving status of the gRPC server.
func (a *App) Health(ctx context.Context, cfg *config.Config) error {
	conn, err := a.dial(cfg.GRPCAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, resp.GetStatus().String())
	return err
}
